package wallets

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrWalletNotFound    = errors.New("wallet not found")
	ErrInvalidAmount     = errors.New("invalid amount")
)

// OwnerKind is the closed set of wallet owners.
type OwnerKind string

const (
	OwnerCreator  OwnerKind = "creator"
	OwnerBacker   OwnerKind = "backer"
	OwnerPlatform OwnerKind = "platform"
)

func ParseOwnerKind(s string) (OwnerKind, error) {
	switch OwnerKind(s) {
	case OwnerCreator, OwnerBacker, OwnerPlatform:
		return OwnerKind(s), nil
	default:
		return "", errors.New("invalid owner kind: " + s)
	}
}

type Wallet struct {
	ID        int64
	OwnerKind OwnerKind
	OwnerID   int64
	Currency  string
	Balance   decimal.Decimal
	CreatedAt time.Time
}

// Wallets is the ledger's balance store. Balances move only through
// Credit and Debit; GetOrCreate is the only implicit creation in the
// system (zero balance on first touch).
type Wallets interface {
	GetOrCreate(tx *sql.Tx, kind OwnerKind, ownerID int64, currency string) (*Wallet, error)
	Get(ctx context.Context, kind OwnerKind, ownerID int64, currency string) (*Wallet, error)
	Credit(tx *sql.Tx, walletID int64, amount decimal.Decimal) error
	Debit(tx *sql.Tx, walletID int64, amount decimal.Decimal) error
	SumBalances(ctx context.Context, currency string) (decimal.Decimal, error)
}
