package chain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chesschain/gasreld/internal/queue"
	"github.com/chesschain/gasreld/pkg/helpers"
)

const (
	waitAttempts = 15
	waitInterval = time.Second
)

// Tx is a built, not-yet-submitted Move call: the package/module/function
// target plus positional arguments, in the shape the chain RPC expects.
type Tx struct {
	PackageID string
	Module    string
	Function  string
	Arguments []interface{}
	GasBudget uint64
}

// SubmitResult is what submit returns on a successful broadcast.
type SubmitResult struct {
	Digest string
}

// Gateway builds, signs, submits, and polls Move-call transactions against
// the chain RPC, paying gas from a single sponsor account.
type Gateway struct {
	rpc        *RPCClient
	sponsor    *Sponsor
	packageID  string
	registryID string
	gasBudget  uint64
}

// NewGateway returns a Gateway that targets packageID/registryID on the
// chain reachable through rpc, signing with sponsor and attaching gasBudget
// to every submission.
func NewGateway(rpc *RPCClient, sponsor *Sponsor, packageID, registryID string, gasBudget uint64) *Gateway {
	return &Gateway{
		rpc:        rpc,
		sponsor:    sponsor,
		packageID:  packageID,
		registryID: registryID,
		gasBudget:  gasBudget,
	}
}

// Build constructs the Move call for intent, pure and side-effect free.
func (g *Gateway) Build(intent *queue.Intent) (*Tx, error) {
	p := intent.Payload

	switch intent.Kind {
	case queue.KindCreateGame:
		return &Tx{
			PackageID: g.packageID,
			Module:    "game",
			Function:  "create_game",
			Arguments: []interface{}{p.Mode, p.Difficulty, "0x6"},
			GasBudget: g.gasBudget,
		}, nil

	case queue.KindMakeMove:
		return &Tx{
			PackageID: g.packageID,
			Module:    "game",
			Function:  "make_move",
			Arguments: []interface{}{p.GameObjectID, p.IsComputer, p.SAN, p.FEN, p.MoveHash, "0x6"},
			GasBudget: g.gasBudget,
		}, nil

	case queue.KindEndGame:
		winner := []string{}
		if p.Winner != "" {
			winner = []string{p.Winner}
		}
		return &Tx{
			PackageID: g.packageID,
			Module:    "game",
			Function:  "end_game",
			Arguments: []interface{}{p.GameObjectID, winner, p.Result, p.FinalFEN, "0x6"},
			GasBudget: g.gasBudget,
		}, nil

	case queue.KindMintBadge:
		registry := p.RegistryObjectID
		if registry == "" {
			registry = g.registryID
		}
		return &Tx{
			PackageID: g.packageID,
			Module:    "badge",
			Function:  "mint_badge",
			Arguments: []interface{}{registry, p.Recipient, p.BadgeType, p.Name, p.Description, p.SourceURL},
			GasBudget: g.gasBudget,
		}, nil

	default:
		return nil, fmt.Errorf("build: unknown intent kind %q", intent.Kind)
	}
}

// BuildSetAuthorizedMinter constructs the administrative call used by the
// out-of-band repair utility, not by the dispatcher's normal path.
func (g *Gateway) BuildSetAuthorizedMinter(registry, newMinter string) *Tx {
	return &Tx{
		PackageID: g.packageID,
		Module:    "badge",
		Function:  "set_authorized_minter",
		Arguments: []interface{}{registry, newMinter},
		GasBudget: g.gasBudget,
	}
}

type gasCoin struct {
	CoinObjectID string `json:"coinObjectId"`
	Balance      string `json:"balance"`
}

// Submit acquires a sponsor-owned gas coin, signs tx, and broadcasts it.
func (g *Gateway) Submit(ctx context.Context, tx *Tx) (*SubmitResult, error) {
	var coins struct {
		Data []gasCoin `json:"data"`
	}
	if err := g.rpc.Call(ctx, "suix_getCoins", []interface{}{g.sponsor.Address(), nil, nil, 1}, &coins); err != nil {
		return nil, fmt.Errorf("list sponsor gas coins: %w", err)
	}
	if len(coins.Data) == 0 {
		return nil, fmt.Errorf("sponsor %s has no gas coins", g.sponsor.Address())
	}
	gasCoinID := coins.Data[0].CoinObjectID

	var built struct {
		TxBytes string `json:"txBytes"`
	}
	params := []interface{}{
		g.sponsor.Address(),
		fmt.Sprintf("%s::%s::%s", tx.PackageID, tx.Module, tx.Function),
		[]interface{}{},
		tx.Arguments,
		gasCoinID,
		fmt.Sprintf("%d", tx.GasBudget),
	}
	if err := g.rpc.Call(ctx, "unsafe_moveCall", params, &built); err != nil {
		return nil, fmt.Errorf("build move call: %w", err)
	}

	signature := g.sponsor.Sign([]byte(built.TxBytes))

	var executed struct {
		Digest  string `json:"digest"`
		Effects struct {
			Status struct {
				Status string `json:"status"`
				Error  string `json:"error"`
			} `json:"status"`
		} `json:"effects"`
	}
	execParams := []interface{}{
		built.TxBytes,
		[]string{encodeSignature(signature)},
		map[string]interface{}{"showEffects": true},
		"WaitForLocalExecution",
	}
	if err := g.rpc.Call(ctx, "sui_executeTransactionBlock", execParams, &executed); err != nil {
		return nil, fmt.Errorf("submit transaction: %w", err)
	}
	if executed.Effects.Status.Status != "" && executed.Effects.Status.Status != "success" {
		return nil, fmt.Errorf("%s", executed.Effects.Status.Error)
	}

	return &SubmitResult{Digest: executed.Digest}, nil
}

type createdObject struct {
	ObjectType string `json:"objectType"`
	ObjectID   string `json:"objectId"`
}

type chainEvent struct {
	Type             string         `json:"type"`
	ParsedJSON       map[string]any `json:"parsedJson"`
}

// WaitAndExtract polls the chain for digest's effects up to waitAttempts
// times, returning the object id of a newly created object matching
// typePattern, or ok=false if none appears before the attempts are exhausted.
func (g *Gateway) WaitAndExtract(ctx context.Context, digest, typePattern string) (objectID string, ok bool, err error) {
	lowerPattern := strings.ToLower(typePattern)

	for attempt := 0; attempt < waitAttempts; attempt++ {
		var result struct {
			ObjectChanges []struct {
				Type       string `json:"type"`
				ObjectType string `json:"objectType"`
				ObjectID   string `json:"objectId"`
			} `json:"objectChanges"`
			Events []chainEvent `json:"events"`
		}

		callErr := g.rpc.Call(ctx, "sui_getTransactionBlock", []interface{}{
			digest,
			map[string]interface{}{"showObjectChanges": true, "showEvents": true},
		}, &result)
		if callErr == nil {
			for _, change := range result.ObjectChanges {
				if change.Type != "created" {
					continue
				}
				if matchesTypePattern(change.ObjectType, lowerPattern) {
					return change.ObjectID, true, nil
				}
			}

			if strings.Contains(lowerPattern, "game") {
				if id, found := extractEventField(result.Events, "GameCreated", "game_id"); found {
					return id, true, nil
				}
			}
			if strings.Contains(lowerPattern, "badge") {
				if id, found := extractEventField(result.Events, "BadgeMinted", "badge_id"); found {
					return id, true, nil
				}
			}
		}

		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-time.After(waitInterval):
		}
	}

	return "", false, nil
}

func matchesTypePattern(objectType, lowerPattern string) bool {
	lowerType := strings.ToLower(objectType)
	if strings.Contains(lowerType, lowerPattern) || strings.HasSuffix(lowerType, lowerPattern) {
		return true
	}
	for _, tok := range []string{"game", "badge"} {
		if strings.Contains(lowerPattern, tok) && strings.Contains(lowerType, tok) {
			return true
		}
	}
	return false
}

func extractEventField(events []chainEvent, eventNameSuffix, field string) (string, bool) {
	for _, ev := range events {
		if !strings.HasSuffix(ev.Type, "::"+eventNameSuffix) && !strings.Contains(ev.Type, eventNameSuffix) {
			continue
		}
		if v, exists := ev.ParsedJSON[field]; exists {
			if s, isStr := v.(string); isStr {
				return s, true
			}
		}
	}
	return "", false
}

func encodeSignature(sig []byte) string {
	return helpers.BytesToHex(sig)
}
