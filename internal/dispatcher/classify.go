package dispatcher

import (
	"time"

	"github.com/chesschain/gasreld/internal/chain"
	"github.com/chesschain/gasreld/internal/queue"
)

const mintBadgeVersionMismatchBase = 2 * time.Second

// backoff computes the linear retry delay for attempt (1-indexed), using a
// shorter base when the failure is a shared-object version mismatch on a
// MintBadge row, which clears quickly once the conflicting transaction lands.
func backoff(kind queue.Kind, errMsg string, attempt int, base time.Duration) time.Duration {
	if kind == queue.KindMintBadge && chain.Classify(errMsg) == chain.ClassVersionMismatch {
		base = mintBadgeVersionMismatchBase
	}
	return base * time.Duration(attempt)
}

// suppressed reports whether errMsg should not be surfaced to the user as a
// result{status:"error"} event, per the error taxonomy: duplicate MintBadge
// submissions and any version-mismatch class are retried silently.
func suppressed(kind queue.Kind, errMsg string) bool {
	class := chain.Classify(errMsg)
	if class == chain.ClassVersionMismatch {
		return true
	}
	if kind == queue.KindMintBadge && class == chain.ClassDuplicate {
		return true
	}
	return false
}
