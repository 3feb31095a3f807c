// Package intake validates incoming intents, deduplicates reward intents,
// and persists accepted intents into the durable queue.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/chesschain/gasreld/internal/events"
	"github.com/chesschain/gasreld/internal/queue"
	"github.com/chesschain/gasreld/internal/reward"
	"github.com/chesschain/gasreld/pkg/logging"
)

// Store is the subset of the queue store intake needs.
type Store interface {
	Enqueue(ctx context.Context, in *queue.Intent) error
	ExistsActiveMintBadge(ctx context.Context, actor, playerRef, badgeType string) (bool, error)
	PlayerRefForActor(ctx context.Context, actor string) (string, error)
	UpsertPlayer(ctx context.Context, ref, actor string) error
}

// RewardDecider is the subset of the eligibility engine intake needs.
type RewardDecider interface {
	Decide(ctx context.Context, actor string, rewardKind reward.CheckKind) (badgeType string, ok bool, err error)
}

// Emitter publishes an event to a room. *events.Hub satisfies this.
type Emitter interface {
	EmitToRoom(room, event string, data interface{})
}

// Request is the validated intent-creation request handed to Accept. Callers
// (the event bus wiring) build one of these from the raw client payload.
type Request struct {
	Kind               queue.Kind
	Actor              string
	GameRef            string
	PlayerRef          string
	Payload            queue.Payload
	WaitingForObjectID bool
}

// Status values returned by Accept.
const (
	StatusQueued            = "queued"
	StatusWaitingForObjectID = "waiting_for_object_id"
	StatusDropped           = "" // silently dropped duplicate, no event emitted
)

// Intake validates, deduplicates, and persists intents.
type Intake struct {
	store  Store
	engine RewardDecider
	hub    Emitter
	log    *logging.Logger
}

// New returns an Intake wired to store, engine, and hub.
func New(store Store, engine RewardDecider, hub Emitter) *Intake {
	return &Intake{
		store:  store,
		engine: engine,
		hub:    hub,
		log:    logging.GetDefault().Component("intake"),
	}
}

// Accept validates req, applies the MintBadge duplicate pre-check, persists a
// queue row, and emits the queued/waiting event. A silently dropped duplicate
// returns ("", StatusDropped, nil).
func (in *Intake) Accept(ctx context.Context, req Request) (intentID string, status string, err error) {
	if err := validate(req.Kind, req.Actor, req.Payload); err != nil {
		return "", "", fmt.Errorf("validation failed: %w", err)
	}

	if req.Kind == queue.KindMintBadge {
		exists, err := in.store.ExistsActiveMintBadge(ctx, req.Actor, req.PlayerRef, req.Payload.BadgeType)
		if err != nil {
			return "", "", fmt.Errorf("check mint badge duplicate: %w", err)
		}
		if exists {
			return "", StatusDropped, nil
		}
	}

	intentStatus := queue.StatusPending
	outStatus := StatusQueued
	if req.Kind == queue.KindMakeMove && req.WaitingForObjectID {
		intentStatus = queue.StatusWaitingForParentId
		outStatus = StatusWaitingForObjectID
	}

	if req.PlayerRef != "" {
		if err := in.store.UpsertPlayer(ctx, req.PlayerRef, req.Actor); err != nil {
			return "", "", fmt.Errorf("upsert player: %w", err)
		}
	}

	id := uuid.NewString()
	intent := &queue.Intent{
		ID:        id,
		Kind:      req.Kind,
		Actor:     req.Actor,
		GameRef:   req.GameRef,
		PlayerRef: req.PlayerRef,
		Status:    intentStatus,
		Payload:   req.Payload,
	}

	if err := in.store.Enqueue(ctx, intent); err != nil {
		return "", "", fmt.Errorf("enqueue intent: %w", err)
	}

	if in.hub != nil {
		in.hub.EmitToRoom(events.RoomForActor(req.Actor), events.OutQueued, events.Queued{
			ID:     id,
			Status: outStatus,
			TS:     time.Now().Unix(),
		})
	}

	return id, outStatus, nil
}

// RequestReward is the server-side helper backing nftMint requests: it
// verifies the player exists, asks the eligibility engine for a badge, checks
// for an in-flight duplicate, and if eligible enqueues a MintBadge intent via
// Accept. Returns ("", nil) when nothing is currently eligible.
func (in *Intake) RequestReward(ctx context.Context, actor, playerID string, rewardKind reward.CheckKind) (taskID string, err error) {
	playerRef, err := in.store.PlayerRefForActor(ctx, actor)
	if err != nil {
		return "", fmt.Errorf("resolve player for %s: %w", actor, err)
	}

	badgeType, ok, err := in.engine.Decide(ctx, actor, rewardKind)
	if err != nil {
		return "", fmt.Errorf("decide reward for %s: %w", actor, err)
	}
	if !ok {
		return "", nil
	}

	entry, found := reward.Find(badgeType)
	if !found {
		return "", fmt.Errorf("decided badge_type %q has no catalog entry", badgeType)
	}

	id, status, err := in.Accept(ctx, Request{
		Kind:      queue.KindMintBadge,
		Actor:     actor,
		PlayerRef: playerRef,
		Payload: queue.Payload{
			Recipient:   actor,
			BadgeType:   entry.BadgeType,
			Name:        entry.Name,
			Description: entry.Description,
		},
	})
	if err != nil {
		return "", err
	}
	if status == StatusDropped {
		return "", nil
	}

	if in.hub != nil {
		in.hub.EmitToRoom(events.RoomForActor(actor), events.OutMintTaskQueued, events.MintTaskQueued{
			TaskID:           id,
			RewardType:       entry.BadgeType,
			PlayerID:         playerID,
			PlayerSuiAddress: actor,
		})
	}

	return id, nil
}
