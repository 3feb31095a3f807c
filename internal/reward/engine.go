package reward

import (
	"context"
	"fmt"

	"github.com/chesschain/gasreld/internal/queue"
)

// Store is the subset of the queue store the eligibility engine reads from.
// The engine never writes; deduplication against already-queued mints is
// intake's job via ExistsActiveMintBadge.
type Store interface {
	PlayerRefForActor(ctx context.Context, actor string) (string, error)
	InNoFirstGame(ctx context.Context, actor string) (bool, error)
	InNoFirstGameCreated(ctx context.Context, actor string) (bool, error)
	VictoriesTotal(ctx context.Context, actor string) (int, error)
	RewardBadgeTypes(ctx context.Context, playerRef string) (map[string]bool, error)
}

// Engine decides reward eligibility against a Store.
type Engine struct {
	store Store
}

// NewEngine returns an Engine backed by store.
func NewEngine(store Store) *Engine {
	return &Engine{store: store}
}

// Decide implements the three-step eligibility algorithm: resolve the
// player, check the relevant view for non-tiered kinds, or walk the tiered
// "wins" catalog in order for the tiered kind. Returns ok=false when no
// badge is currently earned for rewardKind.
func (e *Engine) Decide(ctx context.Context, actor string, rewardKind CheckKind) (badgeType string, ok bool, err error) {
	playerRef, err := e.store.PlayerRefForActor(ctx, actor)
	if err == queue.ErrNotFound {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolve player for %s: %w", actor, err)
	}

	granted, err := e.store.RewardBadgeTypes(ctx, playerRef)
	if err != nil {
		return "", false, fmt.Errorf("load granted rewards for %s: %w", playerRef, err)
	}

	switch rewardKind {
	case CheckFirstGame, CheckFirstGameCreated:
		entry, found := findByCheck(rewardKind)
		if !found {
			return "", false, fmt.Errorf("no catalog entry for check %q", rewardKind)
		}
		if granted[entry.BadgeType] {
			return "", false, nil
		}

		var inView bool
		if rewardKind == CheckFirstGame {
			inView, err = e.store.InNoFirstGame(ctx, actor)
		} else {
			inView, err = e.store.InNoFirstGameCreated(ctx, actor)
		}
		if err != nil {
			return "", false, fmt.Errorf("check eligibility view for %s: %w", actor, err)
		}
		if !inView {
			return "", false, nil
		}
		return entry.BadgeType, true, nil

	case CheckWins:
		wins, err := e.store.VictoriesTotal(ctx, actor)
		if err != nil {
			return "", false, fmt.Errorf("load win count for %s: %w", actor, err)
		}
		for _, entry := range Catalog {
			if entry.Check != CheckWins || granted[entry.BadgeType] {
				continue
			}
			if wins >= entry.Threshold {
				return entry.BadgeType, true, nil
			}
			return "", false, nil
		}
		return "", false, nil

	default:
		return "", false, fmt.Errorf("unknown reward kind %q", rewardKind)
	}
}

func findByCheck(check CheckKind) (Entry, bool) {
	for _, e := range Catalog {
		if e.Check == check {
			return e, true
		}
	}
	return Entry{}, false
}
