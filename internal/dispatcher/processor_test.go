package dispatcher

import (
	"context"
	"fmt"
	"testing"

	"github.com/chesschain/gasreld/internal/chain"
	"github.com/chesschain/gasreld/internal/queue"
)

type fakeGateway struct {
	submitErr  error
	digest     string
	objectID   string
	found      bool
	extractErr error
}

func (g *fakeGateway) Build(intent *queue.Intent) (*chain.Tx, error) {
	return &chain.Tx{}, nil
}

func (g *fakeGateway) Submit(ctx context.Context, tx *chain.Tx) (*chain.SubmitResult, error) {
	if g.submitErr != nil {
		return nil, g.submitErr
	}
	return &chain.SubmitResult{Digest: g.digest}, nil
}

func (g *fakeGateway) WaitAndExtract(ctx context.Context, digest, typePattern string) (string, bool, error) {
	return g.objectID, g.found, g.extractErr
}

type fakeProcessorStore struct {
	gameObjectIDs map[string]string
	waiting       map[string][]*queue.Intent
	unblocked     map[string]string
	rewards       map[string]string
	playerRefs    map[string]string
	firstMoves    map[string]bool
	gamesCreated  map[string]bool
	victories     map[string]int
}

func newFakeProcessorStore() *fakeProcessorStore {
	return &fakeProcessorStore{
		gameObjectIDs: map[string]string{},
		waiting:       map[string][]*queue.Intent{},
		unblocked:     map[string]string{},
		rewards:       map[string]string{},
		playerRefs:    map[string]string{},
		firstMoves:    map[string]bool{},
		gamesCreated:  map[string]bool{},
		victories:     map[string]int{},
	}
}

func (s *fakeProcessorStore) SetGameObjectID(ctx context.Context, gameRef, objectID string) error {
	s.gameObjectIDs[gameRef] = objectID
	return nil
}

func (s *fakeProcessorStore) ListWaitingForGame(ctx context.Context, gameRef string) ([]*queue.Intent, error) {
	return s.waiting[gameRef], nil
}

func (s *fakeProcessorStore) UnblockWaiting(ctx context.Context, id, objectID string) error {
	s.unblocked[id] = objectID
	return nil
}

func (s *fakeProcessorStore) UpsertReward(ctx context.Context, playerRef, badgeType, objectID string) error {
	s.rewards[playerRef+"|"+badgeType] = objectID
	return nil
}

func (s *fakeProcessorStore) PlayerRefForActor(ctx context.Context, actor string) (string, error) {
	ref, ok := s.playerRefs[actor]
	if !ok {
		return "", queue.ErrNotFound
	}
	return ref, nil
}

func (s *fakeProcessorStore) RecordFirstMove(ctx context.Context, playerRef string) error {
	s.firstMoves[playerRef] = true
	return nil
}

func (s *fakeProcessorStore) RecordGameCreated(ctx context.Context, playerRef string) error {
	s.gamesCreated[playerRef] = true
	return nil
}

func (s *fakeProcessorStore) RecordVictory(ctx context.Context, playerRef string) error {
	s.victories[playerRef]++
	return nil
}

type fakeEmitter struct {
	events []string
}

func (f *fakeEmitter) EmitToRoom(room, event string, data interface{}) {
	f.events = append(f.events, event)
}

func TestProcessorCreateGameReconciliation(t *testing.T) {
	store := newFakeProcessorStore()
	store.waiting["g1"] = []*queue.Intent{{ID: "t2"}}
	gw := &fakeGateway{digest: "d1", objectID: "o1", found: true}
	emitter := &fakeEmitter{}
	p := NewProcessor(store, gw, emitter)

	intent := &queue.Intent{ID: "t1", Kind: queue.KindCreateGame, Actor: "0xA", PlayerRef: "p1", GameRef: "g1"}
	if err := p.Run(context.Background(), intent); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.gameObjectIDs["g1"] != "o1" {
		t.Fatalf("game object id not set: %v", store.gameObjectIDs)
	}
	if store.unblocked["t2"] != "o1" {
		t.Fatalf("waiting intent not unblocked: %v", store.unblocked)
	}
	if !store.gamesCreated["p1"] {
		t.Fatal("expected first_game_created to be recorded for p1")
	}
	if len(emitter.events) != 1 || emitter.events[0] != "transaction:result" {
		t.Fatalf("expected one result event, got %v", emitter.events)
	}
}

func TestProcessorMakeMoveRecordsFirstMove(t *testing.T) {
	store := newFakeProcessorStore()
	gw := &fakeGateway{digest: "d3"}
	p := NewProcessor(store, gw, &fakeEmitter{})

	intent := &queue.Intent{ID: "t4", Kind: queue.KindMakeMove, Actor: "0xA", PlayerRef: "p1"}
	if err := p.Run(context.Background(), intent); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !store.firstMoves["p1"] {
		t.Fatal("expected first_move to be recorded for p1")
	}
	if len(store.gameObjectIDs) != 0 || len(store.rewards) != 0 {
		t.Fatal("MakeMove must not reconcile games or rewards")
	}
}

func TestProcessorEndGameCreditsWinnerNotReporter(t *testing.T) {
	store := newFakeProcessorStore()
	store.playerRefs["0xwinner"] = "p-winner"
	gw := &fakeGateway{digest: "d4"}
	p := NewProcessor(store, gw, &fakeEmitter{})

	intent := &queue.Intent{
		ID: "t5", Kind: queue.KindEndGame, Actor: "0xreporter", PlayerRef: "p-reporter",
		Payload: queue.Payload{Winner: "0xwinner", Result: "1-0"},
	}
	if err := p.Run(context.Background(), intent); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.victories["p-winner"] != 1 {
		t.Fatalf("expected winner p-winner credited once, got %v", store.victories)
	}
	if store.victories["p-reporter"] != 0 {
		t.Fatalf("reporter must not be credited a victory it didn't win: %v", store.victories)
	}
}

func TestProcessorEndGameUnknownWinnerIsNotAnError(t *testing.T) {
	store := newFakeProcessorStore()
	gw := &fakeGateway{digest: "d5"}
	p := NewProcessor(store, gw, &fakeEmitter{})

	intent := &queue.Intent{
		ID: "t6", Kind: queue.KindEndGame, Actor: "0xreporter",
		Payload: queue.Payload{Winner: "0xunregistered", Result: "1-0"},
	}
	if err := p.Run(context.Background(), intent); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.victories) != 0 {
		t.Fatalf("expected no victories recorded for an unregistered winner: %v", store.victories)
	}
}

func TestProcessorMintBadgeReconciliation(t *testing.T) {
	store := newFakeProcessorStore()
	gw := &fakeGateway{digest: "d2", objectID: "badge1", found: true}
	p := NewProcessor(store, gw, &fakeEmitter{})

	intent := &queue.Intent{
		ID: "t3", Kind: queue.KindMintBadge, Actor: "0xA", PlayerRef: "p1",
		Payload: queue.Payload{BadgeType: "first_game"},
	}
	if err := p.Run(context.Background(), intent); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if store.rewards["p1|first_game"] != "badge1" {
		t.Fatalf("reward not upserted: %v", store.rewards)
	}
}

func TestProcessorSubmitFailurePropagates(t *testing.T) {
	store := newFakeProcessorStore()
	gw := &fakeGateway{submitErr: fmt.Errorf("transient failure")}
	p := NewProcessor(store, gw, &fakeEmitter{})

	err := p.Run(context.Background(), &queue.Intent{ID: "t1", Kind: queue.KindCreateGame})
	if err == nil {
		t.Fatal("expected submit error to propagate")
	}
}

func TestProcessorMakeMoveHasNoReconciliation(t *testing.T) {
	store := newFakeProcessorStore()
	gw := &fakeGateway{digest: "d3"}
	p := NewProcessor(store, gw, &fakeEmitter{})

	err := p.Run(context.Background(), &queue.Intent{ID: "t4", Kind: queue.KindMakeMove, Actor: "0xA"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(store.gameObjectIDs) != 0 || len(store.rewards) != 0 {
		t.Fatal("MakeMove must not reconcile games or rewards")
	}
}
