package wallets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/repos/wallets"
)

func (r *walletsRepo) Get(ctx context.Context, kind wallets.OwnerKind, ownerID int64, currency string) (*wallets.Wallet, error) {
	w := wallets.Wallet{
		OwnerKind: kind,
		OwnerID:   ownerID,
		Currency:  currency,
	}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, balance, created_at
		FROM wallets
		WHERE owner_kind = $1 AND owner_id = $2 AND currency = $3
	`, kind, ownerID, currency).Scan(&w.ID, &w.Balance, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, wallets.ErrWalletNotFound
		}

		return nil, fmt.Errorf("get wallet: %w", err)
	}

	return &w, nil
}
