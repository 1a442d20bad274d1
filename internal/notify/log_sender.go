package notify

import (
	"context"

	"procurement/internal/domain"

	"go.uber.org/zap"
)

// LogSender writes jobs to the log. Used when no broker is configured.
type LogSender struct {
	logger *zap.Logger
}

func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger.Named("notify")}
}

func (s *LogSender) Send(ctx context.Context, job domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.logger.Info("Notification",
		zap.String("job_id", job.ID.String()),
		zap.String("kind", string(job.Kind)),
		zap.String("recipient_id", job.RecipientID.String()),
		zap.Any("payload", job.Payload),
	)
	return nil
}
