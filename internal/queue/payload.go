package queue

import (
	"encoding/json"
	"fmt"
)

// Payload is the kind-specific body of an Intent, modeled as a tagged variant
// keyed by Kind and serialized as JSON for storage. Only the fields relevant
// to Intent.Kind are populated; the rest are left at zero value.
type Payload struct {
	// CreateGame
	Mode       int `json:"mode,omitempty"`
	Difficulty int `json:"difficulty,omitempty"`

	// MakeMove
	GameObjectID string `json:"game_object_id,omitempty"`
	IsComputer   bool   `json:"is_computer,omitempty"`
	SAN          string `json:"san,omitempty"`
	FEN          string `json:"fen,omitempty"`
	MoveHash     string `json:"move_hash,omitempty"`

	// EndGame
	Winner    string `json:"winner,omitempty"`
	Result    string `json:"result,omitempty"`
	FinalFEN  string `json:"final_fen,omitempty"`

	// MintBadge
	Recipient        string `json:"recipient,omitempty"`
	BadgeType        string `json:"badge_type,omitempty"`
	Name             string `json:"name,omitempty"`
	Description      string `json:"description,omitempty"`
	SourceURL        string `json:"source_url,omitempty"`
	RegistryObjectID string `json:"registry_object_id,omitempty"`
}

// MarshalPayload serializes a Payload for storage.
func MarshalPayload(p Payload) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

// UnmarshalPayload deserializes a Payload read from storage.
func UnmarshalPayload(data []byte) (Payload, error) {
	var p Payload
	if len(data) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("unmarshal payload: %w", err)
	}
	return p, nil
}
