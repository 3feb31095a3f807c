// Package dispatcher scans the queue for actors with pending work, runs at
// most one worker per actor at a time, and drives each claimed intent through
// the chain gateway and back into the store.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chesschain/gasreld/internal/chain"
	"github.com/chesschain/gasreld/internal/events"
	"github.com/chesschain/gasreld/internal/queue"
	"github.com/chesschain/gasreld/pkg/logging"
)

// ProcessorStore is the subset of the store the intent processor reconciles
// against after a successful submission.
type ProcessorStore interface {
	SetGameObjectID(ctx context.Context, gameRef, objectID string) error
	ListWaitingForGame(ctx context.Context, gameRef string) ([]*queue.Intent, error)
	UnblockWaiting(ctx context.Context, id, objectID string) error
	UpsertReward(ctx context.Context, playerRef, badgeType, objectID string) error
	PlayerRefForActor(ctx context.Context, actor string) (string, error)
	RecordFirstMove(ctx context.Context, playerRef string) error
	RecordGameCreated(ctx context.Context, playerRef string) error
	RecordVictory(ctx context.Context, playerRef string) error
}

// Gateway is the subset of the chain gateway the processor drives.
type Gateway interface {
	Build(intent *queue.Intent) (*chain.Tx, error)
	Submit(ctx context.Context, tx *chain.Tx) (*chain.SubmitResult, error)
	WaitAndExtract(ctx context.Context, digest, typePattern string) (objectID string, ok bool, err error)
}

// Emitter publishes an event to a room.
type Emitter interface {
	EmitToRoom(room, event string, data interface{})
}

// Processor runs one intent's submit/extract/reconcile lifecycle.
type Processor struct {
	store   ProcessorStore
	gateway Gateway
	hub     Emitter
	log     *logging.Logger
}

// NewProcessor returns a Processor wired to store, gateway, and hub.
func NewProcessor(store ProcessorStore, gateway Gateway, hub Emitter) *Processor {
	return &Processor{
		store:   store,
		gateway: gateway,
		hub:     hub,
		log:     logging.GetDefault().Component("processor"),
	}
}

// Run builds, submits, and (per kind) extracts and reconciles intent. An
// error returned here is the submission/extraction failure that the worker
// classifies and retries; reconciliation failures after a successful submit
// are logged, not returned, since the on-chain effect is already durable.
func (p *Processor) Run(ctx context.Context, intent *queue.Intent) error {
	tx, err := p.gateway.Build(intent)
	if err != nil {
		return fmt.Errorf("build: %w", err)
	}

	result, err := p.gateway.Submit(ctx, tx)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}

	var objectID string
	var extracted bool

	switch intent.Kind {
	case queue.KindCreateGame:
		objectID, extracted, err = p.gateway.WaitAndExtract(ctx, result.Digest, "::game::Game")
		if err != nil {
			return fmt.Errorf("wait_and_extract: %w", err)
		}
		if extracted && intent.GameRef != "" {
			if err := p.store.SetGameObjectID(ctx, intent.GameRef, objectID); err != nil {
				p.log.Error("set_game_object_id failed after successful submit", "game_ref", intent.GameRef, "error", err)
			} else if err := p.unblockWaiting(ctx, intent.GameRef, objectID); err != nil {
				p.log.Error("unblock waiting intents failed", "game_ref", intent.GameRef, "error", err)
			}
		}
		if intent.PlayerRef != "" {
			if err := p.store.RecordGameCreated(ctx, intent.PlayerRef); err != nil {
				p.log.Error("record_game_created failed after successful submit", "player_ref", intent.PlayerRef, "error", err)
			}
		}

	case queue.KindMintBadge:
		objectID, extracted, err = p.gateway.WaitAndExtract(ctx, result.Digest, "badge::Badge")
		if err != nil {
			return fmt.Errorf("wait_and_extract: %w", err)
		}
		if extracted && intent.PlayerRef != "" {
			if err := p.store.UpsertReward(ctx, intent.PlayerRef, intent.Payload.BadgeType, objectID); err != nil {
				p.log.Error("upsert_reward failed after successful mint", "player_ref", intent.PlayerRef, "error", err)
			}
		}

	case queue.KindMakeMove:
		if intent.PlayerRef != "" {
			if err := p.store.RecordFirstMove(ctx, intent.PlayerRef); err != nil {
				p.log.Error("record_first_move failed after successful submit", "player_ref", intent.PlayerRef, "error", err)
			}
		}

	case queue.KindEndGame:
		if intent.Payload.Winner != "" {
			if err := p.recordVictory(ctx, intent.Payload.Winner); err != nil {
				p.log.Error("record_victory failed after successful submit", "winner", intent.Payload.Winner, "error", err)
			}
		}
	}

	p.emitResult(intent, result.Digest, objectID)
	return nil
}

// recordVictory credits winnerActor's own player record, never the EndGame
// reporter's — Payload.Winner names whoever won, which is independent of
// which actor submitted the result.
func (p *Processor) recordVictory(ctx context.Context, winnerActor string) error {
	playerRef, err := p.store.PlayerRefForActor(ctx, winnerActor)
	if errors.Is(err, queue.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolve winner player_ref: %w", err)
	}
	return p.store.RecordVictory(ctx, playerRef)
}

func (p *Processor) unblockWaiting(ctx context.Context, gameRef, objectID string) error {
	waiting, err := p.store.ListWaitingForGame(ctx, gameRef)
	if err != nil {
		return fmt.Errorf("list_waiting_for_game: %w", err)
	}
	for _, w := range waiting {
		if err := p.store.UnblockWaiting(ctx, w.ID, objectID); err != nil {
			return fmt.Errorf("unblock_waiting %s: %w", w.ID, err)
		}
	}
	return nil
}

func (p *Processor) emitResult(intent *queue.Intent, digest, objectID string) {
	if p.hub == nil {
		return
	}
	payload := events.Result{
		ID:       intent.ID,
		Status:   "success",
		Digest:   digest,
		ObjectID: objectID,
		TS:       time.Now().Unix(),
	}
	if intent.Kind == queue.KindMintBadge {
		payload.BadgeType = intent.Payload.BadgeType
		payload.RewardName = intent.Payload.Name
	}
	p.hub.EmitToRoom(events.RoomForActor(intent.Actor), events.OutResult, payload)
}
