package wallets

import (
	"database/sql"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/repos/wallets"
	"github.com/shopspring/decimal"
)

func (r *walletsRepo) Debit(tx *sql.Tx, walletID int64, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return wallets.ErrInvalidAmount
	}

	res, err := tx.Exec(`
		UPDATE wallets
		SET balance = balance - $2
		WHERE id = $1
		  AND balance >= $2
	`, walletID, amount)
	if err != nil {
		return fmt.Errorf("debit wallet: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return wallets.ErrInsufficientFunds
	}

	return nil
}
