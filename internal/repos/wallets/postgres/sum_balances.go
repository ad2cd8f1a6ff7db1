package wallets

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

func (r *walletsRepo) SumBalances(ctx context.Context, currency string) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance), 0)
		FROM wallets
		WHERE currency = $1
	`, currency).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sum balances: %w", err)
	}

	return total, nil
}
