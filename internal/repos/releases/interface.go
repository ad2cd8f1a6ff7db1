package releases

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrAlreadyReleased = errors.New("funds already released for milestone")
	ErrReleaseNotFound = errors.New("release not found")
)

// Release is the immutable record of one milestone payout. The UNIQUE
// constraint on milestone_id is the at-most-once guarantee.
type Release struct {
	ID          int64
	MilestoneID int64
	Amount      decimal.Decimal
	WalletID    int64
	Currency    string
	TxRef       string
	ReleasedAt  time.Time
}

type Releases interface {
	Insert(tx *sql.Tx, rel *Release) error
	GetByMilestone(ctx context.Context, milestoneID int64) (*Release, error)
	SumReleased(ctx context.Context, currency string) (decimal.Decimal, error)
}
