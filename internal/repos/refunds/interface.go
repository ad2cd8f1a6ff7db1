package refunds

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrRefundNotFound  = errors.New("refund not found")
	ErrAlreadyResolved = errors.New("refund already resolved")
	ErrAlreadyRefunded = errors.New("pledge already refunded")
)

type Status string

const (
	StatusRequested Status = "requested"
	StatusProcessed Status = "processed"
	StatusRejected  Status = "rejected"
)

type Refund struct {
	ID          int64
	PledgeID    int64
	MilestoneID *int64
	Amount      decimal.Decimal
	Currency    string
	Status      Status
	Reason      string
	TxRef       string
	RequestedAt time.Time
	ResolvedAt  *time.Time
}

type Refunds interface {
	Create(tx *sql.Tx, rf *Refund) error
	Get(ctx context.Context, id int64) (*Refund, error)
	GetTx(tx *sql.Tx, id int64) (*Refund, error)
	// MarkProcessed flips Requested -> Processed, recording the amount
	// actually paid out. ErrAlreadyResolved when the refund left Requested;
	// ErrAlreadyRefunded when another refund of the same pledge already
	// processed (partial unique index).
	MarkProcessed(tx *sql.Tx, id int64, amount decimal.Decimal) error
	MarkRejected(tx *sql.Tx, id int64) error
	ListByPledge(ctx context.Context, pledgeID int64) ([]*Refund, error)
	SumProcessed(ctx context.Context, currency string) (decimal.Decimal, error)
}
