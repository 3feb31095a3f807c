// Package queue implements the durable per-actor transaction queue (the store).
package queue

import "time"

// Kind identifies the type of on-chain transaction an intent describes.
type Kind string

const (
	KindCreateGame Kind = "CreateGame"
	KindMakeMove   Kind = "MakeMove"
	KindEndGame    Kind = "EndGame"
	KindMintBadge  Kind = "MintBadge"
)

// Status is the lifecycle state of a queue row.
type Status string

const (
	StatusPending           Status = "Pending"
	StatusProcessing        Status = "Processing"
	StatusCompleted         Status = "Completed"
	StatusFailed            Status = "Failed"
	StatusWaitingForParentId Status = "WaitingForParentId"
)

// Intent is a durable queue row describing one transaction to submit.
type Intent struct {
	ID          string
	Kind        Kind
	Actor       string
	GameRef     string
	PlayerRef   string
	Status      Status
	Payload     Payload
	Error       string
	Retries     int
	CreatedAt   time.Time
	UpdatedAt   time.Time
	ProcessedAt *time.Time
}
