package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	apperrors "triage/pkg/errors"
	"triage/pkg/metrics"
	"triage/pkg/models"
)

const databaseLabel = "postgres"

const messageColumns = `id, owner_id, source_platform, sender_name, sender_address, subject, body,
	received_at, is_vip, processing_status, priority_score, summary, sentiment, action_items,
	last_processed_at, processing_started_at, fallback_used, queued`

type messageRow struct {
	ID                  string         `db:"id"`
	OwnerID             string         `db:"owner_id"`
	Platform            string         `db:"source_platform"`
	SenderName          string         `db:"sender_name"`
	SenderAddress       string         `db:"sender_address"`
	Subject             string         `db:"subject"`
	Body                string         `db:"body"`
	ReceivedAt          time.Time      `db:"received_at"`
	IsVIP               bool           `db:"is_vip"`
	Status              string         `db:"processing_status"`
	PriorityScore       sql.NullInt64  `db:"priority_score"`
	Summary             sql.NullString `db:"summary"`
	Sentiment           sql.NullString `db:"sentiment"`
	ActionItems         []byte         `db:"action_items"`
	LastProcessedAt     sql.NullTime   `db:"last_processed_at"`
	ProcessingStartedAt sql.NullTime   `db:"processing_started_at"`
	FallbackUsed        bool           `db:"fallback_used"`
	Queued              bool           `db:"queued"`
}

func (r messageRow) toModel() (models.MessageRecord, error) {
	m := models.MessageRecord{
		ID:           r.ID,
		OwnerID:      r.OwnerID,
		Platform:     models.SourcePlatform(r.Platform),
		Sender:       models.Sender{Name: r.SenderName, Address: r.SenderAddress},
		Subject:      r.Subject,
		Body:         r.Body,
		ReceivedAt:   r.ReceivedAt,
		IsVIP:        r.IsVIP,
		Status:       models.ProcessingStatus(r.Status),
		FallbackUsed: r.FallbackUsed,
		Queued:       r.Queued,
		ActionItems:  []models.ActionItem{},
	}
	if r.PriorityScore.Valid {
		score := int(r.PriorityScore.Int64)
		m.PriorityScore = &score
	}
	if r.Summary.Valid {
		m.Summary = &r.Summary.String
	}
	if r.Sentiment.Valid {
		s := models.Sentiment(r.Sentiment.String)
		m.Sentiment = &s
	}
	if r.LastProcessedAt.Valid {
		m.LastProcessedAt = &r.LastProcessedAt.Time
	}
	if r.ProcessingStartedAt.Valid {
		m.ProcessingStartedAt = &r.ProcessingStartedAt.Time
	}
	if len(r.ActionItems) > 0 {
		if err := json.Unmarshal(r.ActionItems, &m.ActionItems); err != nil {
			return models.MessageRecord{}, fmt.Errorf("failed to decode action items for %s: %w", r.ID, err)
		}
	}
	return m, nil
}

// PostgresStore is the production store. Claims use FOR UPDATE SKIP LOCKED so
// concurrent batches for one owner never take the same message.
type PostgresStore struct {
	db *sqlx.DB
}

func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) observe(op string, start time.Time, err error) error {
	metrics.ObserveDatabaseQuery(databaseLabel, op, start, err)
	if err == nil {
		return nil
	}
	var appErr *apperrors.Error
	if errors.As(err, &appErr) {
		return err
	}
	return apperrors.ErrDatabase.WithDetail("operation", op).WithCause(err)
}

func (s *PostgresStore) Enqueue(ctx context.Context, msg models.MessageRecord) error {
	if err := models.ValidateMessageRecord(&msg); err != nil {
		return apperrors.ErrValidation.WithCause(err)
	}
	if msg.Status == "" {
		msg.Status = models.StatusPending
	}
	items, err := json.Marshal(nonNilItems(msg.ActionItems))
	if err != nil {
		return fmt.Errorf("failed to encode action items: %w", err)
	}

	start := time.Now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (id, owner_id, source_platform, sender_name, sender_address,
			subject, body, received_at, is_vip, processing_status, action_items)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		msg.ID, msg.OwnerID, string(msg.Platform), msg.Sender.Name, msg.Sender.Address,
		msg.Subject, msg.Body, msg.ReceivedAt, msg.IsVIP, string(msg.Status), items,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		err = apperrors.ErrConflict.WithDetail("id", msg.ID).WithCause(err)
	}
	return s.observe("enqueue", start, err)
}

func (s *PostgresStore) Get(ctx context.Context, ownerID, id string) (*models.MessageRecord, error) {
	start := time.Now()
	var row messageRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrMessageNotFound.WithDetail("id", id)
	}
	if err = s.observe("get", start, err); err != nil {
		return nil, err
	}
	m, err := row.toModel()
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) Claim(ctx context.Context, opts ClaimOptions) ([]models.MessageRecord, error) {
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	leaseCutoff := opts.Now.Add(-opts.LeaseTimeout)

	var (
		query string
		args  []interface{}
	)
	if len(opts.IDs) > 0 {
		query = `
			UPDATE messages SET processing_status = 'processing', processing_started_at = $1
			WHERE id IN (
				SELECT id FROM messages
				WHERE owner_id = $2 AND id = ANY($3)
				  AND NOT (processing_status = 'processing' AND processing_started_at > $4)
				FOR UPDATE SKIP LOCKED
			)
			RETURNING ` + messageColumns
		args = []interface{}{opts.Now, opts.OwnerID, pq.Array(opts.IDs), leaseCutoff}
	} else {
		query = `
			UPDATE messages SET processing_status = 'processing', processing_started_at = $1
			WHERE id IN (
				SELECT id FROM messages
				WHERE owner_id = $2
				  AND (processing_status = 'pending'
				       OR (processing_status = 'processing' AND processing_started_at <= $3))
				ORDER BY received_at ASC, id ASC
				LIMIT $4
				FOR UPDATE SKIP LOCKED
			)
			RETURNING ` + messageColumns
		args = []interface{}{opts.Now, opts.OwnerID, leaseCutoff, opts.Limit}
	}

	start := time.Now()
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err = s.observe("claim", start, err); err != nil {
		return nil, err
	}

	out := make([]models.MessageRecord, 0, len(rows))
	for _, r := range rows {
		m, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	// RETURNING does not preserve the subquery order.
	sort.Slice(out, func(i, j int) bool {
		if out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ReceivedAt.Before(out[j].ReceivedAt)
	})
	return out, nil
}

func (s *PostgresStore) Release(ctx context.Context, ownerID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	start := time.Now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE messages SET processing_status = 'pending', processing_started_at = NULL
		WHERE owner_id = $1 AND id = ANY($2) AND processing_status = 'processing'`,
		ownerID, pq.Array(ids))
	return s.observe("release", start, err)
}

func (s *PostgresStore) SaveResult(ctx context.Context, ownerID string, result models.ProcessingResult) error {
	items, err := json.Marshal(nonNilItems(result.ActionItems))
	if err != nil {
		return fmt.Errorf("failed to encode action items: %w", err)
	}
	processedAt := result.ProcessedAt
	if processedAt.IsZero() {
		processedAt = time.Now()
	}

	start := time.Now()
	res, err := s.db.ExecContext(ctx, `
		UPDATE messages SET
			processing_status = $1,
			priority_score = $2,
			summary = $3,
			sentiment = $4,
			action_items = $5,
			last_processed_at = $6,
			processing_started_at = NULL,
			fallback_used = $7,
			queued = $8
		WHERE id = $9 AND owner_id = $10`,
		string(result.FinalStatus()), result.PriorityScore, result.Summary, nullIfEmpty(string(result.Sentiment)),
		items, processedAt, result.FallbackUsed, result.Queued, result.MessageID, ownerID,
	)
	if err == nil {
		var n int64
		n, err = res.RowsAffected()
		if err == nil && n == 0 {
			err = ErrMessageNotFound.WithDetail("id", result.MessageID)
		}
	}
	return s.observe("save_result", start, err)
}

func (s *PostgresStore) Stats(ctx context.Context, ownerID string) (models.QueueStats, error) {
	start := time.Now()
	var rows []struct {
		Status string `db:"processing_status"`
		Count  int    `db:"count"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT processing_status, COUNT(*) AS count
		FROM messages WHERE owner_id = $1
		GROUP BY processing_status`, ownerID)
	if err = s.observe("stats", start, err); err != nil {
		return models.QueueStats{}, err
	}

	var stats models.QueueStats
	for _, r := range rows {
		stats.Add(models.ProcessingStatus(r.Status), r.Count)
	}
	return stats, nil
}

func (s *PostgresStore) CountBatchRuns(ctx context.Context, ownerID string, since time.Time) (int, error) {
	start := time.Now()
	var n int
	err := s.db.GetContext(ctx, &n,
		`SELECT COUNT(*) FROM batch_runs WHERE owner_id = $1 AND started_at >= $2`, ownerID, since)
	if err = s.observe("count_batch_runs", start, err); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *PostgresStore) StartBatchRun(ctx context.Context, run models.BatchRun) error {
	start := time.Now()
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO batch_runs (id, owner_id, started_at, processed, successful, failed, skipped)
		VALUES (:id, :owner_id, :started_at, :processed, :successful, :failed, :skipped)`, run)
	return s.observe("start_batch_run", start, err)
}

func (s *PostgresStore) FinishBatchRun(ctx context.Context, run models.BatchRun) error {
	start := time.Now()
	res, err := s.db.NamedExecContext(ctx, `
		UPDATE batch_runs SET finished_at = :finished_at, processed = :processed,
			successful = :successful, failed = :failed, skipped = :skipped
		WHERE id = :id`, run)
	if err == nil {
		var n int64
		n, err = res.RowsAffected()
		if err == nil && n == 0 {
			err = apperrors.ErrNotFound.WithDetail("batch_id", run.ID)
		}
	}
	return s.observe("finish_batch_run", start, err)
}

func (s *PostgresStore) ListBatchRuns(ctx context.Context, ownerID string, limit int) ([]models.BatchRun, error) {
	if limit <= 0 {
		limit = 20
	}
	start := time.Now()
	var runs []models.BatchRun
	err := s.db.SelectContext(ctx, &runs, `
		SELECT id, owner_id, started_at, finished_at, processed, successful, failed, skipped
		FROM batch_runs WHERE owner_id = $1
		ORDER BY started_at DESC LIMIT $2`, ownerID, limit)
	if err = s.observe("list_batch_runs", start, err); err != nil {
		return nil, err
	}
	return runs, nil
}

// Ping lets the health registry probe the pool.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nonNilItems(items []models.ActionItem) []models.ActionItem {
	if items == nil {
		return []models.ActionItem{}
	}
	return items
}
