package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chesschain/gasreld/internal/events"
	"github.com/chesschain/gasreld/internal/queue"
	"github.com/chesschain/gasreld/internal/reward"
	"github.com/chesschain/gasreld/pkg/logging"
)

// Handler adapts raw event-bus messages into Accept/RequestReward calls. Its
// Handle method has the events.InboundHandler signature.
type Handler struct {
	intake *Intake
	log    *logging.Logger
}

// NewHandler returns a Handler bound to in; pass its Handle method where an
// events.InboundHandler is expected.
func NewHandler(in *Intake) *Handler {
	return &Handler{intake: in, log: logging.GetDefault().Component("intake")}
}

// Handle dispatches one inbound event-bus message by name.
func (h *Handler) Handle(room, event string, raw json.RawMessage) {
	ctx := context.Background()

	switch event {
	case events.InCreateGame, events.InMakeMove, events.InEndGame, events.InMintNFT:
		h.handleTransaction(ctx, event, raw)
	case events.InNFTMint:
		h.handleNFTMint(ctx, raw)
	default:
		h.log.Warn("unhandled inbound event", "event", event)
	}
}

func (h *Handler) handleTransaction(ctx context.Context, event string, raw json.RawMessage) {
	var env events.InboundEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.log.Warn("malformed envelope", "event", event, "error", err)
		return
	}

	req, err := buildRequest(event, env)
	if err != nil {
		h.emitValidationError(env, err)
		return
	}

	id, status, err := h.intake.Accept(ctx, req)
	if err != nil {
		h.log.Warn("accept failed", "event", event, "actor", env.PlayerAddress, "error", err)
		h.emitValidationError(env, err)
		return
	}
	if status == StatusDropped {
		return
	}
	h.log.Debug("accepted intent", "id", id, "status", status, "event", event)
}

func (h *Handler) handleNFTMint(ctx context.Context, raw json.RawMessage) {
	var req events.NFTMintRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.log.Warn("malformed nftMint request", "error", err)
		return
	}

	if _, err := h.intake.RequestReward(ctx, req.PlayerSuiAddress, req.PlayerID, reward.CheckKind(req.RewardType)); err != nil {
		h.log.Warn("request reward failed", "actor", req.PlayerSuiAddress, "error", err)
	}
}

func (h *Handler) emitValidationError(env events.InboundEnvelope, err error) {
	if env.PlayerAddress == "" {
		return
	}
	h.intake.hub.EmitToRoom(events.RoomForActor(env.PlayerAddress), events.OutError, events.ErrorPayload{
		Error:         err.Error(),
		TransactionID: env.TransactionID,
	})
}

func buildRequest(event string, env events.InboundEnvelope) (Request, error) {
	switch event {
	case events.InCreateGame:
		var data events.CreateGameData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Request{}, fmt.Errorf("decode create_game data: %w", err)
		}
		return Request{
			Kind:      queue.KindCreateGame,
			Actor:     env.PlayerAddress,
			PlayerRef: env.PlayerID,
			GameRef:   env.GameID,
			Payload:   queue.Payload{Mode: data.Mode, Difficulty: data.Difficulty},
		}, nil

	case events.InMakeMove:
		var data events.MakeMoveData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Request{}, fmt.Errorf("decode make_move data: %w", err)
		}
		gameRef := env.GameID
		if gameRef == "" {
			gameRef = data.GameID
		}
		return Request{
			Kind:               queue.KindMakeMove,
			Actor:              env.PlayerAddress,
			PlayerRef:          env.PlayerID,
			GameRef:            gameRef,
			WaitingForObjectID: env.Status == "waiting_for_object_id",
			Payload: queue.Payload{
				GameObjectID: data.GameObjectID,
				IsComputer:   data.IsComputer,
				SAN:          data.SAN,
				FEN:          data.FEN,
				MoveHash:     data.MoveHash,
			},
		}, nil

	case events.InEndGame:
		var data events.EndGameData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Request{}, fmt.Errorf("decode end_game data: %w", err)
		}
		winner := ""
		if data.Winner != nil {
			winner = *data.Winner
		}
		return Request{
			Kind:      queue.KindEndGame,
			Actor:     env.PlayerAddress,
			PlayerRef: env.PlayerID,
			GameRef:   env.GameID,
			Payload: queue.Payload{
				GameObjectID: data.GameObjectID,
				Winner:       winner,
				Result:       data.Result,
				FinalFEN:     data.FinalFEN,
			},
		}, nil

	case events.InMintNFT:
		var data events.MintNFTData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Request{}, fmt.Errorf("decode mint_nft data: %w", err)
		}
		return Request{
			Kind:      queue.KindMintBadge,
			Actor:     env.PlayerAddress,
			PlayerRef: env.PlayerID,
			Payload: queue.Payload{
				Recipient:        data.RecipientAddress,
				BadgeType:        data.BadgeType,
				Name:             data.Name,
				Description:      data.Description,
				SourceURL:        data.SourceURL,
				RegistryObjectID: data.RegistryObjectID,
			},
		}, nil
	}

	return Request{}, fmt.Errorf("unknown event %q", event)
}
