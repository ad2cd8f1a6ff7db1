package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type ActorKind string

const (
	ActorCreator ActorKind = "creator"
	ActorBacker  ActorKind = "backer"
	ActorAdmin   ActorKind = "admin"
	ActorSystem  ActorKind = "system"
)

// Fact is one append-only custody record. Every fund-affecting transition
// writes exactly one fact in the same transaction as the transition itself.
type Fact struct {
	ID         uuid.UUID
	ActorKind  ActorKind
	ActorID    int64
	Action     string
	EntityType string
	EntityID   int64
	Amount     *decimal.Decimal
	Currency   *string
	Metadata   map[string]any
	CreatedAt  time.Time
}

type Filter struct {
	EntityType string
	EntityID   int64
	ActorKind  ActorKind
	Limit      int
}

type Audit interface {
	Append(tx *sql.Tx, f *Fact) error
	List(ctx context.Context, filter Filter) ([]*Fact, error)
}
