package broker

import (
	"context"
	"errors"

	"triage/internal/logger"
	apperrors "triage/pkg/errors"
	"triage/pkg/models"
	"triage/pkg/retry"
)

// BatchRunner runs one batch for a process request.
type BatchRunner interface {
	Run(ctx context.Context, req models.ProcessRequest) (models.BatchSummary, error)
}

// NewProcessRequestHandler adapts a BatchRunner to the consumer. Malformed
// requests and errors no retry can fix are marked fatal so they go straight
// to the DLQ.
func NewProcessRequestHandler(runner BatchRunner, log logger.Logger) HandlerFunc {
	return func(ctx context.Context, msg models.MessageEnvelope) error {
		req, err := models.ProcessRequestFromEnvelope(msg)
		if err != nil {
			return retry.NewFatalError(err)
		}

		summary, err := runner.Run(ctx, req)
		if err != nil {
			if isPermanent(err) {
				return retry.NewFatalError(err)
			}
			return err
		}

		log.InfowCtx(ctx, "Process request handled",
			"owner_id", req.OwnerID,
			"batch_id", summary.BatchID,
			"processed", summary.Processed,
			"skipped", summary.Skipped,
		)
		return nil
	}
}

func isPermanent(err error) bool {
	var ve *models.ValidationError
	if errors.As(err, &ve) {
		return true
	}
	return apperrors.IsUnauthorized(err) || apperrors.IsRateLimited(err) || apperrors.IsValidation(err)
}
