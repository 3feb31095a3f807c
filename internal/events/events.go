// Package events centralizes event names, room naming, and payload shapes for
// the event bus between realtime clients and the dispatcher, so that event
// emission does not drift across handlers.
package events

import (
	"encoding/json"
	"fmt"
)

// Client -> server event names.
const (
	InCreateGame      = "transaction:create_game"
	InMakeMove        = "transaction:make_move"
	InEndGame         = "transaction:end_game"
	InMintNFT         = "transaction:mint_nft"
	InNFTMint         = "nftMint"
	InJoinPlayerRoom  = "join-player-room"
	InLeavePlayerRoom = "leave-player-room"
)

// Server -> client event names.
const (
	OutQueued         = "transaction:queued"
	OutProcessing     = "transaction:processing"
	OutResult         = "transaction:result"
	OutMintTaskQueued = "mint-task-queued"
	OutError          = "error"
)

// RoomForActor returns the event-bus room name for actor. Clients join and
// leave only their own room.
func RoomForActor(actor string) string {
	return fmt.Sprintf("player:%s", actor)
}

// Queued is the payload for OutQueued.
type Queued struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	TS     int64  `json:"ts"`
}

// Processing is the payload for OutProcessing.
type Processing struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	TS     int64  `json:"ts"`
}

// Result is the payload for OutResult.
type Result struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Digest    string `json:"digest,omitempty"`
	ObjectID  string `json:"object_id,omitempty"`
	RewardName string `json:"reward_name,omitempty"`
	BadgeType string `json:"badge_type,omitempty"`
	Error     string `json:"error,omitempty"`
	TS        int64  `json:"ts"`
}

// MintTaskQueued is the payload for OutMintTaskQueued.
type MintTaskQueued struct {
	TaskID          string `json:"task_id"`
	RewardType      string `json:"reward_type"`
	PlayerID        string `json:"player_id"`
	PlayerSuiAddress string `json:"player_sui_address"`
}

// ErrorPayload is the payload for OutError.
type ErrorPayload struct {
	Error         string `json:"error"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// CreateGameData is the inbound data field of InCreateGame.
type CreateGameData struct {
	Mode       int `json:"mode"`
	Difficulty int `json:"difficulty"`
}

// MakeMoveData is the inbound data field of InMakeMove.
type MakeMoveData struct {
	GameObjectID string `json:"game_object_id"`
	IsComputer   bool   `json:"is_computer"`
	SAN          string `json:"san"`
	FEN          string `json:"fen"`
	MoveHash     string `json:"move_hash"`
	GameID       string `json:"game_id,omitempty"`
}

// EndGameData is the inbound data field of InEndGame.
type EndGameData struct {
	GameObjectID string  `json:"game_object_id"`
	Winner       *string `json:"winner"`
	Result       string  `json:"result"`
	FinalFEN     string  `json:"final_fen"`
}

// MintNFTData is the inbound data field of InMintNFT.
type MintNFTData struct {
	RecipientAddress string `json:"recipient_address"`
	BadgeType        string `json:"badge_type"`
	Name             string `json:"name"`
	Description      string `json:"description"`
	SourceURL        string `json:"source_url"`
	RegistryObjectID string `json:"registry_object_id,omitempty"`
}

// InboundEnvelope is the common shape of every client -> server event.
type InboundEnvelope struct {
	TransactionID string          `json:"transaction_id"`
	GameID        string          `json:"game_id,omitempty"`
	PlayerAddress string          `json:"player_address"`
	PlayerID      string          `json:"player_id,omitempty"`
	Status        string          `json:"status,omitempty"`
	Data          json.RawMessage `json:"data"`
}

// NFTMintRequest is the payload of InNFTMint.
type NFTMintRequest struct {
	PlayerID         string `json:"player_id"`
	PlayerSuiAddress string `json:"player_sui_address"`
	RewardType       string `json:"reward_type"`
}
