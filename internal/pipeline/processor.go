// Package pipeline runs bounded batches of queued messages through the model,
// guarded by rate limiting, circuit breaking and retries, and persists either
// the model result or a flagged heuristic fallback for every message.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"triage/internal/archive"
	"triage/internal/config"
	"triage/internal/constants"
	"triage/internal/llm"
	"triage/internal/logger"
	"triage/internal/store"
	"triage/internal/vip"
	"triage/pkg/circuitbreaker"
	apperrors "triage/pkg/errors"
	"triage/pkg/fallback"
	"triage/pkg/logging"
	"triage/pkg/metrics"
	"triage/pkg/models"
	"triage/pkg/ratelimit"
	"triage/pkg/retry"
	"triage/pkg/scoring"
	"triage/pkg/tracing"
)

const tracerName = "triage-pipeline"

const (
	batchStatusCompleted = "completed"
	batchStatusEmpty     = "empty"
	batchStatusRejected  = "rejected"
	batchStatusError     = "error"
)

// ResultPublisher announces finished results to other services.
type ResultPublisher interface {
	PublishBatch(ctx context.Context, summary models.BatchSummary) error
}

// Deps are the collaborators of a Processor. Store, Provider and Limiter are
// required; everything else has a working default.
type Deps struct {
	Store     store.Store
	Provider  llm.Provider
	Limiter   *ratelimit.Limiter
	Breaker   *circuitbreaker.Wrapper
	Retrier   *retry.Handler
	Scorer    *scoring.Scorer
	Fallback  *fallback.Registry
	Errors    *apperrors.RingLog
	VIP       *vip.Matcher
	Publisher ResultPublisher
	Archive   archive.Archive
	Logger    logger.Logger
	Now       func() time.Time
}

type Processor struct {
	cfg       config.PipelineConfig
	store     store.Store
	provider  llm.Provider
	limiter   *ratelimit.Limiter
	breaker   *circuitbreaker.Wrapper
	retrier   *retry.Handler
	scorer    *scoring.Scorer
	fallback  *fallback.Registry
	errors    *apperrors.RingLog
	vip       *vip.Matcher
	publisher ResultPublisher
	archive   archive.Archive
	logger    logger.Logger
	now       func() time.Time
	tracer    trace.Tracer
}

func NewProcessor(cfg config.PipelineConfig, deps Deps) (*Processor, error) {
	if deps.Store == nil || deps.Provider == nil || deps.Limiter == nil {
		return nil, errors.New("pipeline: store, provider and limiter are required")
	}
	if cfg.DefaultBatchSize <= 0 {
		cfg.DefaultBatchSize = 10
	}
	if cfg.MaxBatchSize < cfg.DefaultBatchSize {
		cfg.MaxBatchSize = cfg.DefaultBatchSize
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.LeaseTimeout <= 0 {
		cfg.LeaseTimeout = 10 * time.Minute
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 10 * time.Second
	}
	if cfg.ModelTimeout <= 0 {
		cfg.ModelTimeout = 30 * time.Second
	}

	p := &Processor{
		cfg:       cfg,
		store:     deps.Store,
		provider:  deps.Provider,
		limiter:   deps.Limiter,
		breaker:   deps.Breaker,
		retrier:   deps.Retrier,
		scorer:    deps.Scorer,
		fallback:  deps.Fallback,
		errors:    deps.Errors,
		vip:       deps.VIP,
		publisher: deps.Publisher,
		archive:   deps.Archive,
		logger:    deps.Logger,
		now:       deps.Now,
		tracer:    tracing.GetTracer(tracerName),
	}
	if p.breaker == nil {
		p.breaker = circuitbreaker.NewWrapper(circuitbreaker.DefaultConfig(apperrors.ComponentModel))
	}
	if p.retrier == nil {
		p.retrier = retry.NewHandler(retry.DefaultConfig(), retry.WithName(apperrors.ComponentModel))
	}
	if p.scorer == nil {
		p.scorer = scoring.NewScorer()
	}
	if p.fallback == nil {
		p.fallback = fallback.NewRegistry(p.scorer, nil)
	}
	if p.logger == nil {
		p.logger = logger.NopLogger()
	}
	if p.errors == nil {
		p.errors = apperrors.NewRingLog(apperrors.DefaultRingLogCapacity, p.logger)
	}
	if p.archive == nil {
		p.archive = archive.Nop{}
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Errors exposes the ring log of classified failures.
func (p *Processor) Errors() *apperrors.RingLog {
	return p.errors
}

// Run processes one batch for req.OwnerID. An error is returned only when the
// batch could not start; failures of single messages end up in the summary.
func (p *Processor) Run(ctx context.Context, req models.ProcessRequest) (models.BatchSummary, error) {
	started := p.now()
	batchID := uuid.New().String()

	ctx = logging.WithOwnerID(ctx, req.OwnerID)
	ctx = logging.WithBatchID(ctx, batchID)
	ctx, span := p.tracer.Start(ctx, "pipeline.batch", trace.WithAttributes(
		attribute.String("owner_id", req.OwnerID),
		attribute.String("batch_id", batchID),
	))
	defer span.End()

	msgs, err := p.admitBatch(ctx, req, started)
	if err != nil {
		tracing.RecordError(span, err)
		status := batchStatusError
		if apperrors.IsRateLimited(err) {
			status = batchStatusRejected
		}
		metrics.ObservePipelineBatch(time.Since(started), status)
		return models.BatchSummary{}, err
	}

	summary := models.BatchSummary{
		BatchID:   batchID,
		OwnerID:   req.OwnerID,
		Results:   []models.ProcessingResult{},
		StartedAt: started,
	}
	if len(msgs) == 0 {
		summary.Message = "No messages to process"
		summary.FinishedAt = p.now()
		metrics.ObservePipelineBatch(time.Since(started), batchStatusEmpty)
		return summary, nil
	}

	run := models.BatchRun{ID: batchID, OwnerID: req.OwnerID, StartedAt: started}
	if err := p.store.StartBatchRun(ctx, run); err != nil {
		p.track(ctx, err, apperrors.ComponentDatabase, "start_batch_run", "")
		p.release(ctx, req.OwnerID, ids(msgs))
		tracing.RecordError(span, err)
		metrics.ObservePipelineBatch(time.Since(started), batchStatusError)
		return models.BatchSummary{}, err
	}

	results, skipped := p.processAll(ctx, req.OwnerID, msgs)
	for _, r := range results {
		summary.Results = append(summary.Results, r)
		if r.Success {
			summary.Successful++
		} else {
			summary.Failed++
		}
	}
	summary.Processed = len(summary.Results)
	summary.Skipped = len(skipped)
	if len(skipped) > 0 {
		summary.Message = fmt.Sprintf("%d messages left pending", len(skipped))
	}
	summary.FinishedAt = p.now()

	p.complete(ctx, summary)

	span.SetAttributes(
		attribute.Int("processed", summary.Processed),
		attribute.Int("successful", summary.Successful),
		attribute.Int("failed", summary.Failed),
		attribute.Int("skipped", summary.Skipped),
	)
	metrics.ObservePipelineBatch(time.Since(started), batchStatusCompleted)
	p.logger.InfowCtx(ctx, "Batch processed",
		"processed", summary.Processed,
		"successful", summary.Successful,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// admitBatch checks the caller and the hourly ceiling, then claims messages.
func (p *Processor) admitBatch(ctx context.Context, req models.ProcessRequest, now time.Time) ([]models.MessageRecord, error) {
	if req.OwnerID == "" {
		err := apperrors.ErrUnauthorized
		p.track(ctx, err, apperrors.ComponentAPI, "authenticate", "")
		return nil, err
	}
	if err := models.ValidateProcessRequest(req); err != nil {
		return nil, apperrors.ErrValidation.WithDetail("message", err.Error()).WithCause(err)
	}
	if len(req.MessageIDs) > p.cfg.MaxBatchSize {
		return nil, apperrors.ErrValidation.WithDetail("message",
			fmt.Sprintf("at most %d message ids per batch", p.cfg.MaxBatchSize))
	}

	// Check-then-act: concurrent requests from one owner can both pass
	// before either run is recorded.
	if p.cfg.HourlyBatchLimit > 0 {
		n, err := p.store.CountBatchRuns(ctx, req.OwnerID, now.Add(-constants.BatchCeilingWindow))
		if err != nil {
			p.track(ctx, err, apperrors.ComponentDatabase, "count_batch_runs", "")
			return nil, err
		}
		if n >= p.cfg.HourlyBatchLimit {
			err := apperrors.ErrRateLimited.
				WithDetail("retryAfter", constants.BatchCeilingRetryAfter).
				WithDetail("limit", p.cfg.HourlyBatchLimit)
			p.track(ctx, err, apperrors.ComponentAPI, "batch_ceiling", "")
			return nil, err
		}
	}

	opts := store.ClaimOptions{
		OwnerID:      req.OwnerID,
		Limit:        p.batchSize(req.BatchSize),
		LeaseTimeout: p.cfg.LeaseTimeout,
		Now:          now,
	}
	if len(req.MessageIDs) > 0 {
		opts.IDs = req.MessageIDs
		opts.Limit = len(req.MessageIDs)
	}

	msgs, err := p.store.Claim(ctx, opts)
	if err != nil {
		p.track(ctx, err, apperrors.ComponentDatabase, "claim", "")
		return nil, err
	}
	return msgs, nil
}

func (p *Processor) batchSize(requested int) int {
	switch {
	case requested <= 0:
		return p.cfg.DefaultBatchSize
	case requested > p.cfg.MaxBatchSize:
		return p.cfg.MaxBatchSize
	}
	return requested
}

// processAll fans messages out to a bounded worker pool. Each worker admits
// its message against the model rate limit once it holds a slot; after the
// first denial, or once ctx is done, no further message is admitted and the
// remaining ones are released back to pending.
func (p *Processor) processAll(ctx context.Context, ownerID string, msgs []models.MessageRecord) ([]models.ProcessingResult, []string) {
	workers := p.cfg.Concurrency
	if workers > len(msgs) {
		workers = len(msgs)
	}

	var (
		mu      sync.Mutex
		stopped atomic.Bool
		results = make([]*models.ProcessingResult, len(msgs))
		skipped []string
	)

	g := new(errgroup.Group)
	g.SetLimit(workers)

	for i, msg := range msgs {
		g.Go(func() error {
			if stopped.Load() || ctx.Err() != nil || !p.admit(ctx, ownerID) {
				stopped.Store(true)
				mu.Lock()
				skipped = append(skipped, msg.ID)
				mu.Unlock()
				return nil
			}
			res := p.processMessage(ctx, ownerID, msg)
			mu.Lock()
			results[i] = &res
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	p.release(ctx, ownerID, skipped)

	out := make([]models.ProcessingResult, 0, len(msgs))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, skipped
}

// admit asks the model limiter for a slot in ownerID's window. Limiter store
// failures admit the message rather than stall the batch.
func (p *Processor) admit(ctx context.Context, ownerID string) bool {
	d, err := p.limiter.Admit(ctx, ownerID)
	if err != nil {
		p.logger.WarnwCtx(ctx, "Rate limiter unavailable, admitting message", "error", err)
		return true
	}
	if !d.Allowed {
		p.logger.InfowCtx(ctx, "Model rate limit reached, stopping admissions",
			"limit", d.Limit,
			"retry_after", d.RetryAfterSeconds,
		)
	}
	return d.Allowed
}

func (p *Processor) processMessage(ctx context.Context, ownerID string, msg models.MessageRecord) models.ProcessingResult {
	start := p.now()
	ctx = logging.WithMessageID(ctx, msg.ID)
	ctx, span := p.tracer.Start(ctx, "pipeline.message", trace.WithAttributes(
		attribute.String("message_id", msg.ID),
		attribute.String("platform", string(msg.Platform)),
	))
	defer span.End()

	if p.vip != nil {
		msg = p.vip.Apply(ctx, msg)
	}
	heuristic := p.scorer.Score(msg)

	out, err := p.analyze(ctx, msg)

	var res models.ProcessingResult
	if err == nil {
		res = merge(msg, heuristic, out)
	} else {
		tracing.RecordError(span, err)
		details := p.track(ctx, err, apperrors.ComponentModel, "analyze", msg.ID)
		res = p.fallback.ForMessage(details, msg)
	}
	res.ProcessedAt = p.now()
	res.LatencyMs = res.ProcessedAt.Sub(start).Milliseconds()
	if res.LatencyMs < 0 {
		res.LatencyMs = 0
	}

	if err := p.persist(ctx, ownerID, res); err != nil {
		tracing.RecordError(span, err)
		p.track(ctx, err, apperrors.ComponentDatabase, "save_result", msg.ID)
		res.Success = false
		res.ErrorType = string(apperrors.TypeDatabase)
		res.UserMessage = fallback.UserMessage(apperrors.TypeDatabase)
	}

	status := "success"
	switch {
	case res.FallbackUsed:
		status = "fallback"
	case !res.Success:
		status = "failed"
	}
	metrics.IncPipelineMessage(status)
	metrics.ObservePipelineMessageDuration(time.Since(start), status)
	if !msg.ReceivedAt.IsZero() {
		metrics.ObserveMessageQueueWaitDuration(metrics.ServiceName, res.ProcessedAt.Sub(msg.ReceivedAt))
	}
	span.SetAttributes(
		attribute.Bool("fallback_used", res.FallbackUsed),
		attribute.Int("priority_score", res.PriorityScore),
	)
	return res
}

// analyze calls the model through retry and the model breaker. Every attempt
// passes the breaker. The model call itself runs on a context detached from
// cancellation so an in-flight request is allowed to finish, bounded by
// ModelTimeout; only the waits between attempts stop early.
func (p *Processor) analyze(ctx context.Context, msg models.MessageRecord) (llm.Output, error) {
	callCtx := context.WithoutCancel(ctx)
	in := llm.Input{
		Content:  msg.Content(),
		Sender:   msg.Sender,
		Platform: msg.Platform,
		IsVIP:    msg.IsVIP,
	}

	var (
		out     llm.Output
		lastErr error
	)
	err := p.retrier.Execute(ctx, func(context.Context) error {
		lastErr = p.breaker.Execute(callCtx, func(callCtx context.Context) error {
			attemptCtx, cancel := context.WithTimeout(callCtx, p.cfg.ModelTimeout)
			defer cancel()
			var err error
			out, err = p.provider.Analyze(attemptCtx, in)
			return err
		})
		return lastErr
	}, retry.IsTransient)
	if err != nil && lastErr != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		// cancelled while waiting to retry; report what the model said
		err = lastErr
	}
	return out, err
}

// persist writes res on a context that survives cancellation of the batch.
func (p *Processor) persist(ctx context.Context, ownerID string, res models.ProcessingResult) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.PersistTimeout)
	defer cancel()
	return p.store.SaveResult(writeCtx, ownerID, res)
}

func (p *Processor) release(ctx context.Context, ownerID string, msgIDs []string) {
	if len(msgIDs) == 0 {
		return
	}
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.PersistTimeout)
	defer cancel()
	if err := p.store.Release(relCtx, ownerID, msgIDs); err != nil {
		p.track(ctx, err, apperrors.ComponentDatabase, "release", "")
	}
}

// complete records the finished run and hands results to the publisher and
// the archive. None of these can fail the batch.
func (p *Processor) complete(ctx context.Context, summary models.BatchSummary) {
	doneCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.PersistTimeout)
	defer cancel()

	finished := summary.FinishedAt
	run := models.BatchRun{
		ID:         summary.BatchID,
		OwnerID:    summary.OwnerID,
		StartedAt:  summary.StartedAt,
		FinishedAt: &finished,
		Processed:  summary.Processed,
		Successful: summary.Successful,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
	}
	if err := p.store.FinishBatchRun(doneCtx, run); err != nil {
		p.track(ctx, err, apperrors.ComponentDatabase, "finish_batch_run", "")
	}

	if p.publisher != nil && len(summary.Results) > 0 {
		if err := p.publisher.PublishBatch(doneCtx, summary); err != nil {
			p.track(ctx, err, apperrors.ComponentBroker, "publish_results", "")
		}
	}
	if err := p.archive.Save(doneCtx, summary); err != nil {
		p.track(ctx, err, apperrors.ComponentArchive, "archive_results", "")
	}
}

func (p *Processor) track(ctx context.Context, err error, component, action, messageID string) apperrors.Details {
	return p.errors.Track(err, apperrors.Context{
		OwnerID:   logging.GetOwnerID(ctx),
		MessageID: messageID,
		Component: component,
		Action:    action,
	})
}

// merge combines model output with the heuristic score. The model's score and
// sentiment win when usable; the heuristic fills the gaps.
func merge(msg models.MessageRecord, heuristic scoring.Score, out llm.Output) models.ProcessingResult {
	score := heuristic.PriorityScore
	if out.PriorityScore != nil {
		score = scoring.Clamp(*out.PriorityScore)
	}
	sentiment := heuristic.Sentiment
	if s, ok := models.ParseSentiment(out.Sentiment); ok {
		sentiment = s
	}
	summary := out.Summary
	if summary == "" {
		summary = fallback.Summarize(msg)
	}
	items := out.ActionItems
	if items == nil {
		items = []models.ActionItem{}
	}
	tokens := out.TokensUsed
	if tokens < 0 {
		tokens = 0
	}

	return models.ProcessingResult{
		MessageID:     msg.ID,
		Success:       true,
		Summary:       summary,
		PriorityScore: score,
		Sentiment:     sentiment,
		ActionItems:   items,
		TokensUsed:    tokens,
	}
}

func ids(msgs []models.MessageRecord) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}
