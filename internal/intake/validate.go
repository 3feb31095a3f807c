package intake

import (
	"fmt"
	"net/url"

	"github.com/chesschain/gasreld/internal/queue"
)

func validate(kind queue.Kind, actor string, payload queue.Payload) error {
	if actor == "" {
		return fmt.Errorf("actor is required")
	}

	switch kind {
	case queue.KindCreateGame:
		if payload.Mode != 0 && payload.Mode != 1 {
			return fmt.Errorf("mode must be 0 or 1, got %d", payload.Mode)
		}
		if payload.Difficulty < 0 || payload.Difficulty > 2 {
			return fmt.Errorf("difficulty must be 0, 1, or 2, got %d", payload.Difficulty)
		}

	case queue.KindMakeMove:
		if payload.GameObjectID == "" && payload.SAN == "" {
			return fmt.Errorf("make_move requires game_object_id or san")
		}

	case queue.KindEndGame:
		switch payload.Result {
		case "1-0", "0-1", "1/2-1/2":
		default:
			return fmt.Errorf(`result must be one of "1-0", "0-1", "1/2-1/2", got %q`, payload.Result)
		}

	case queue.KindMintBadge:
		if payload.Recipient == "" {
			return fmt.Errorf("mint_badge requires a recipient")
		}
		if payload.BadgeType == "" {
			return fmt.Errorf("mint_badge requires a badge_type")
		}
		if payload.SourceURL != "" {
			if _, err := url.ParseRequestURI(payload.SourceURL); err != nil {
				return fmt.Errorf("source_url is not a valid URL: %w", err)
			}
		}

	default:
		return fmt.Errorf("unknown intent kind %q", kind)
	}

	return nil
}
