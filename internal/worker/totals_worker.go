package worker

import (
	"context"
	"fmt"
	"log/slog"

	"presupuesto/internal/amqp"
	"presupuesto/internal/services"
)

// TotalsWorker keeps the per-project totals snapshots current. Every row
// write publishes a sync message; the worker recomputes that project's
// aggregation from storage so dashboard reads can serve the snapshot
// instead of re-aggregating on every request.
type TotalsWorker struct {
	service *services.ForecastService
}

func NewTotalsWorker(service *services.ForecastService) *TotalsWorker {
	return &TotalsWorker{service: service}
}

// HandleRowSync processes one sync message. Failures are returned so the
// delivery gets requeued.
func (w *TotalsWorker) HandleRowSync(ctx context.Context, msg *amqp.RowSyncMessage) error {
	slog.InfoContext(ctx, "Processing row sync message",
		"message_id", msg.MessageID,
		"project_id", msg.ProjectID,
		"row_id", msg.RowID)

	if msg.ProjectID == "" {
		// Nothing to recompute; drop rather than requeue forever.
		slog.WarnContext(ctx, "Row sync message without project id", "message_id", msg.MessageID)
		return nil
	}

	if err := w.service.RefreshTotalsSnapshot(ctx, msg.ProjectID); err != nil {
		return fmt.Errorf("refresh totals for %s: %w", msg.ProjectID, err)
	}
	return nil
}

// Run consumes sync messages until ctx is cancelled.
func (w *TotalsWorker) Run(ctx context.Context, client *amqp.Client) error {
	return client.ConsumeRowSync(ctx, w.HandleRowSync)
}
