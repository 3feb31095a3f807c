package dispatcher

import (
	"context"
	"errors"
	"time"

	"github.com/chesschain/gasreld/internal/events"
	"github.com/chesschain/gasreld/internal/queue"
	"github.com/chesschain/gasreld/pkg/logging"
)

// WorkerStore is the subset of the store a per-actor worker drives.
type WorkerStore interface {
	ClaimNext(ctx context.Context, actor string) (*queue.Intent, error)
	MarkCompleted(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	IncrementRetries(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	RequeuePending(ctx context.Context, id, errMsg string) error
}

// WorkerConfig holds the retry tunables a worker consults.
type WorkerConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// Worker drains one actor's queue to exhaustion, enforcing at-most-one
// Processing row for that actor for the duration of the call.
type Worker struct {
	store     WorkerStore
	processor *Processor
	hub       Emitter
	cfg       WorkerConfig
	log       *logging.Logger
}

// NewWorker returns a Worker wired to store, processor, hub, and cfg.
func NewWorker(store WorkerStore, processor *Processor, hub Emitter, cfg WorkerConfig) *Worker {
	return &Worker{
		store:     store,
		processor: processor,
		hub:       hub,
		cfg:       cfg,
		log:       logging.GetDefault().Component("worker"),
	}
}

// DrainActor claims and processes intents for actor until none remain.
func (w *Worker) DrainActor(ctx context.Context, actor string) {
	for {
		intent, err := w.store.ClaimNext(ctx, actor)
		if errors.Is(err, queue.ErrNotFound) {
			return
		}
		if err != nil {
			w.log.Error("claim_next failed", "actor", actor, "error", err)
			return
		}

		w.emitProcessing(intent)

		if err := w.processor.Run(ctx, intent); err != nil {
			w.handleFailure(ctx, intent, err)
			continue
		}

		if err := w.store.MarkCompleted(ctx, intent.ID); err != nil {
			w.log.Error("mark_completed failed", "id", intent.ID, "error", err)
		}
		if err := w.store.Delete(ctx, intent.ID); err != nil {
			w.log.Error("delete completed row failed", "id", intent.ID, "error", err)
		}
	}
}

func (w *Worker) handleFailure(ctx context.Context, intent *queue.Intent, runErr error) {
	errMsg := runErr.Error()

	if err := w.store.IncrementRetries(ctx, intent.ID); err != nil {
		w.log.Error("increment_retries failed", "id", intent.ID, "error", err)
	}

	nextAttempt := intent.Retries + 1

	if nextAttempt >= w.cfg.MaxRetries {
		if err := w.store.MarkFailed(ctx, intent.ID, errMsg); err != nil {
			w.log.Error("mark_failed failed", "id", intent.ID, "error", err)
		}
		if !suppressed(intent.Kind, errMsg) {
			w.emitError(intent, errMsg)
		}
		if intent.Kind != queue.KindMintBadge {
			if err := w.store.Delete(ctx, intent.ID); err != nil {
				w.log.Error("delete failed row failed", "id", intent.ID, "error", err)
			}
		}
		return
	}

	if err := w.store.RequeuePending(ctx, intent.ID, errMsg); err != nil {
		w.log.Error("requeue_pending failed", "id", intent.ID, "error", err)
	}

	delay := backoff(intent.Kind, errMsg, nextAttempt, w.cfg.BaseDelay)
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

func (w *Worker) emitProcessing(intent *queue.Intent) {
	if w.hub == nil {
		return
	}
	w.hub.EmitToRoom(events.RoomForActor(intent.Actor), events.OutProcessing, events.Processing{
		ID:     intent.ID,
		Status: "processing",
		TS:     time.Now().Unix(),
	})
}

func (w *Worker) emitError(intent *queue.Intent, errMsg string) {
	if w.hub == nil {
		return
	}
	w.hub.EmitToRoom(events.RoomForActor(intent.Actor), events.OutResult, events.Result{
		ID:     intent.ID,
		Status: "error",
		Error:  errMsg,
		TS:     time.Now().Unix(),
	})
}
