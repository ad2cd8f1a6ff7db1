package wallets

import (
	"database/sql"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/repos/wallets"
)

// GetOrCreate returns the owner's wallet for the currency, inserting a
// zero-balance row if none exists yet. The upsert keeps concurrent first
// touches from racing each other.
func (r *walletsRepo) GetOrCreate(tx *sql.Tx, kind wallets.OwnerKind, ownerID int64, currency string) (*wallets.Wallet, error) {
	w := wallets.Wallet{
		OwnerKind: kind,
		OwnerID:   ownerID,
		Currency:  currency,
	}

	err := tx.QueryRow(`
		INSERT INTO wallets (owner_kind, owner_id, currency)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_kind, owner_id, currency)
			DO UPDATE SET owner_id = EXCLUDED.owner_id
		RETURNING id, balance, created_at
	`, kind, ownerID, currency).Scan(&w.ID, &w.Balance, &w.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get or create wallet: %w", err)
	}

	return &w, nil
}
