package pledges

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrPledgeNotFound = errors.New("pledge not found")
	ErrNotActive      = errors.New("pledge not active")
	ErrOverConsumed   = errors.New("pledge remaining amount exceeded")
)

type Status string

const (
	StatusActive    Status = "active"
	StatusRefunded  Status = "refunded"
	StatusCancelled Status = "cancelled"
)

// Pledge records a backer's commitment to a project. Amount is the original
// commitment and never changes; Remaining is the unspent escrowed part,
// consumed by releases in waterfall order and paid out by refunds.
type Pledge struct {
	ID         int64
	ProjectID  int64
	BackerID   int64
	Amount     decimal.Decimal
	Remaining  decimal.Decimal
	Currency   string
	Status     Status
	PaymentRef string
	CreatedAt  time.Time
}

type Stats struct {
	ActiveCount    int
	DistinctBacker int
}

type Pledges interface {
	Create(tx *sql.Tx, p *Pledge) error
	Get(ctx context.Context, id int64) (*Pledge, error)
	GetTx(tx *sql.Tx, id int64) (*Pledge, error)
	// ListActiveForUpdate returns the project's Active pledges in pledge-id
	// (FIFO) order, locking each row. The waterfall consumption order.
	ListActiveForUpdate(tx *sql.Tx, projectID int64) ([]*Pledge, error)
	ListByProject(ctx context.Context, projectID int64) ([]*Pledge, error)
	HasActive(tx *sql.Tx, projectID, backerID int64) (bool, error)
	// ConsumeRemaining reduces the pledge's unspent escrow, failing
	// ErrOverConsumed if amount exceeds what is left.
	ConsumeRemaining(tx *sql.Tx, id int64, amount decimal.Decimal) error
	// MarkRefunded flips Active -> Refunded, failing ErrNotActive otherwise.
	MarkRefunded(tx *sql.Tx, id int64) error
	SumActiveAmount(ctx context.Context, projectID int64) (decimal.Decimal, error)
	SumActiveAmountTx(tx *sql.Tx, projectID int64) (decimal.Decimal, error)
	SumActiveRemaining(ctx context.Context, projectID int64) (decimal.Decimal, error)
	ProjectStats(ctx context.Context, projectID int64) (*Stats, error)
}
