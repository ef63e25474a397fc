package worker

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/change-service/internal/config"
	"github.com/spec-kit/change-service/internal/events"
	"github.com/spec-kit/change-service/internal/repository"
)

const overdueBatchSize = 100

// OverdueWorker periodically flags changes whose planned end has passed
// without the change reaching a terminal state. It only emits events; it
// never mutates change or approval state.
type OverdueWorker struct {
	changes    repository.ChangeRepository
	dispatcher events.Dispatcher
	logger     *zap.Logger
	cfg        config.WorkerConfig
}

// NewOverdueWorker constructs the worker.
func NewOverdueWorker(changes repository.ChangeRepository, dispatcher events.Dispatcher, logger *zap.Logger, cfg config.WorkerConfig) *OverdueWorker {
	return &OverdueWorker{
		changes:    changes,
		dispatcher: dispatcher,
		logger:     logger,
		cfg:        cfg,
	}
}

// Start runs the sweep loop until the context is cancelled.
func (w *OverdueWorker) Start(ctx context.Context) {
	if !w.cfg.OverdueSweepEnabled {
		return
	}
	go w.run(ctx)
}

func (w *OverdueWorker) run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.SweepInterval())
	defer ticker.Stop()

	w.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *OverdueWorker) sweep(ctx context.Context) {
	now := time.Now()
	overdue, err := w.changes.ListOverdue(ctx, now, overdueBatchSize)
	if err != nil {
		w.logger.Error("overdue sweep failed", zap.Error(err))
		return
	}
	if len(overdue) == 0 {
		return
	}
	w.logger.Info("overdue sweep", zap.Int("count", len(overdue)))

	for i := range overdue {
		change := overdue[i]
		if change.PlannedEnd == nil {
			continue
		}
		event := events.Event{
			ID:        uuid.NewString(),
			Type:      events.EventChangeOverdue,
			ChangeID:  change.ID,
			Timestamp: now,
			Payload: events.ChangeOverduePayload{
				Status:     change.Status,
				PlannedEnd: *change.PlannedEnd,
			},
		}
		if err := w.dispatcher.Publish(ctx, event); err != nil {
			w.logger.Error("failed to publish overdue event", zap.Error(err), zap.String("change_id", change.ID))
		}
	}
}
