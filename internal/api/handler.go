// Package api exposes the batch processor over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"triage/internal/archive"
	"triage/internal/constants"
	"triage/internal/logger"
	"triage/internal/store"
	"triage/pkg/circuitbreaker"
	apperrors "triage/pkg/errors"
	"triage/pkg/models"
	"triage/pkg/ratelimit"
)

type BatchRunner interface {
	Run(ctx context.Context, req models.ProcessRequest) (models.BatchSummary, error)
}

type StatsReader interface {
	Stats(ctx context.Context, ownerID string) (models.QueueStats, error)
}

type Handler struct {
	processor BatchRunner
	status    StatsReader
	runs      store.Store
	archive   archive.Archive
	breakers  *circuitbreaker.Registry
	limits    *ratelimit.Registry
	errors    *apperrors.RingLog
	logger    logger.Logger
}

type HandlerDeps struct {
	Processor BatchRunner
	Status    StatsReader
	Runs      store.Store
	Archive   archive.Archive
	Breakers  *circuitbreaker.Registry
	Limits    *ratelimit.Registry
	Errors    *apperrors.RingLog
	Logger    logger.Logger
}

func NewHandler(deps HandlerDeps) *Handler {
	h := &Handler{
		processor: deps.Processor,
		status:    deps.Status,
		runs:      deps.Runs,
		archive:   deps.Archive,
		breakers:  deps.Breakers,
		limits:    deps.Limits,
		errors:    deps.Errors,
		logger:    deps.Logger,
	}
	if h.archive == nil {
		h.archive = archive.Nop{}
	}
	if h.logger == nil {
		h.logger = logger.NopLogger()
	}
	return h
}

// RegisterRoutes mounts the API on group. processGuard, when set, wraps only
// POST /process; status reads are not counted.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup, processGuard ...gin.HandlerFunc) {
	start := make([]gin.HandlerFunc, 0, len(processGuard)+1)
	start = append(start, processGuard...)
	start = append(start, h.Process)
	group.POST("/process", start...)
	group.GET("/process", h.Status)
	group.GET("/resilience", h.Resilience)
	group.GET("/errors", h.Errors)
	group.GET("/history", h.History)
}

type ProcessRequest struct {
	MessageIDs []string `json:"messageIds"`
	BatchSize  int      `json:"batchSize"`
}

type ProcessResponse struct {
	Success    bool                      `json:"success"`
	BatchID    string                    `json:"batchId,omitempty"`
	Processed  int                       `json:"processed"`
	Successful int                       `json:"successful"`
	Failed     int                       `json:"failed"`
	Skipped    int                       `json:"skipped"`
	Results    []models.ProcessingResult `json:"results"`
	Message    string                    `json:"message,omitempty"`
}

type RateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

type ResilienceResponse struct {
	Breakers   []circuitbreaker.State       `json:"breakers"`
	RateLimits map[string]*ratelimit.Window `json:"rateLimits"`
}

type ErrorsResponse struct {
	Errors []apperrors.Details `json:"errors"`
	Total  int                 `json:"total"`
}

type HistoryResponse struct {
	Runs    []models.BatchRun `json:"runs"`
	Results []archive.Record  `json:"results"`
}

// Process godoc
// @Summary      Run one analysis batch
// @Description  Claims the oldest pending messages of the caller (or the given ids) and analyzes them
// @Tags         process
// @Accept       json
// @Produce      json
// @Param        request  body      ProcessRequest  false  "Batch options"
// @Success      200      {object}  ProcessResponse
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      401      {object}  errors.ErrorResponse
// @Failure      429      {object}  RateLimitedResponse
// @Failure      500      {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /process [post]
func (h *Handler) Process(c *gin.Context) {
	var req ProcessRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(apperrors.ErrValidation.WithCause(err)))
			return
		}
	}

	summary, err := h.processor.Run(c.Request.Context(), models.ProcessRequest{
		OwnerID:    ownerFrom(c),
		MessageIDs: req.MessageIDs,
		BatchSize:  req.BatchSize,
	})
	if err != nil {
		h.handleError(c, err)
		return
	}

	results := summary.Results
	if results == nil {
		results = []models.ProcessingResult{}
	}
	c.JSON(http.StatusOK, ProcessResponse{
		Success:    true,
		BatchID:    summary.BatchID,
		Processed:  summary.Processed,
		Successful: summary.Successful,
		Failed:     summary.Failed,
		Skipped:    summary.Skipped,
		Results:    results,
		Message:    summary.Message,
	})
}

// Status godoc
// @Summary      Queue counts for the caller
// @Description  Pending, completed and failed counts; served from cache with degraded=true while the database is unavailable
// @Tags         process
// @Produce      json
// @Success      200  {object}  models.QueueStats
// @Failure      401  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /process [get]
func (h *Handler) Status(c *gin.Context) {
	stats, err := h.status.Stats(c.Request.Context(), ownerFrom(c))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Resilience godoc
// @Summary      Breaker and rate-limit state
// @Tags         resilience
// @Produce      json
// @Success      200  {object}  ResilienceResponse
// @Security     BearerAuth
// @Router       /resilience [get]
func (h *Handler) Resilience(c *gin.Context) {
	resp := ResilienceResponse{
		Breakers:   []circuitbreaker.State{},
		RateLimits: map[string]*ratelimit.Window{},
	}
	if h.breakers != nil {
		resp.Breakers = h.breakers.Snapshot()
	}
	if h.limits != nil {
		owner := ownerFrom(c)
		for _, name := range h.limits.Resources() {
			l, _ := h.limits.Get(name)
			w, err := l.Status(c.Request.Context(), owner)
			if err != nil {
				h.logger.WarnwCtx(c.Request.Context(), "Rate window lookup failed", "resource", name, "error", err)
				continue
			}
			resp.RateLimits[name] = w
		}
	}
	c.JSON(http.StatusOK, resp)
}

// Errors godoc
// @Summary      Recent classified errors
// @Tags         resilience
// @Produce      json
// @Param        limit  query     int  false  "Maximum entries"  default(50)
// @Success      200    {object}  ErrorsResponse
// @Failure      400    {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /errors [get]
func (h *Handler) Errors(c *gin.Context) {
	limit, ok := queryLimit(c, constants.DefaultErrorLimit, constants.MaxErrorLimit)
	if !ok {
		return
	}
	resp := ErrorsResponse{Errors: []apperrors.Details{}}
	if h.errors != nil {
		resp.Errors = h.errors.Recent(limit)
		resp.Total = h.errors.Len()
	}
	c.JSON(http.StatusOK, resp)
}

// History godoc
// @Summary      Recent batches and archived results for the caller
// @Tags         process
// @Produce      json
// @Param        limit  query     int  false  "Maximum entries"  default(20)
// @Success      200    {object}  HistoryResponse
// @Failure      400    {object}  errors.ErrorResponse
// @Failure      500    {object}  errors.ErrorResponse
// @Security     BearerAuth
// @Router       /history [get]
func (h *Handler) History(c *gin.Context) {
	limit, ok := queryLimit(c, constants.DefaultHistoryLimit, constants.MaxHistoryLimit)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	owner := ownerFrom(c)

	resp := HistoryResponse{Runs: []models.BatchRun{}, Results: []archive.Record{}}
	if h.runs != nil {
		runs, err := h.runs.ListBatchRuns(ctx, owner, limit)
		if err != nil {
			h.handleError(c, err)
			return
		}
		if runs != nil {
			resp.Runs = runs
		}
	}

	records, err := h.archive.Recent(ctx, owner, limit)
	if err != nil {
		h.logger.WarnwCtx(ctx, "Archive lookup failed", "error", err)
	} else if records != nil {
		resp.Results = records
	}
	c.JSON(http.StatusOK, resp)
}

func queryLimit(c *gin.Context, def, max int) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		c.JSON(http.StatusBadRequest, apperrors.ToErrorResponse(
			apperrors.ErrValidation.WithDetail("message", "limit must be a positive integer")))
		return 0, false
	}
	if max > 0 && n > max {
		n = max
	}
	return n, true
}

func (h *Handler) handleError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		h.logger.ErrorwCtx(ctx, "Request failed", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	switch {
	case apperrors.IsUnauthorized(err):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
	case apperrors.IsRateLimited(err):
		retryAfter := retryAfterSeconds(appErr)
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, RateLimitedResponse{Error: "Rate limit exceeded", RetryAfter: retryAfter})
	case apperrors.IsValidation(err), apperrors.IsNotFound(err):
		c.JSON(apperrors.ToHTTPStatus(err), apperrors.ToErrorResponse(err))
	default:
		h.logger.ErrorwCtx(ctx, "Request failed", "error", err, "path", c.Request.URL.Path)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func retryAfterSeconds(e *apperrors.Error) int {
	switch v := e.Details["retryAfter"].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	case time.Duration:
		return int(v.Seconds())
	}
	return 60
}
