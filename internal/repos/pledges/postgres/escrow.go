package pledges

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/repos/pledges"
	"github.com/shopspring/decimal"
)

func (r *pledgesRepo) ConsumeRemaining(tx *sql.Tx, id int64, amount decimal.Decimal) error {
	res, err := tx.Exec(`
		UPDATE pledges
		SET amount_remaining = amount_remaining - $2
		WHERE id = $1
		  AND status = 'active'
		  AND amount_remaining >= $2
	`, id, amount)
	if err != nil {
		return fmt.Errorf("consume pledge remaining: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return pledges.ErrOverConsumed
	}

	return nil
}

func (r *pledgesRepo) MarkRefunded(tx *sql.Tx, id int64) error {
	res, err := tx.Exec(`
		UPDATE pledges
		SET status = 'refunded'
		WHERE id = $1
		  AND status = 'active'
	`, id)
	if err != nil {
		return fmt.Errorf("mark pledge refunded: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return pledges.ErrNotActive
	}

	return nil
}

func (r *pledgesRepo) SumActiveAmount(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM pledges
		WHERE project_id = $1
		  AND status = 'active'
	`, projectID).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sum active pledges: %w", err)
	}

	return total, nil
}

func (r *pledgesRepo) SumActiveAmountTx(tx *sql.Tx, projectID int64) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := tx.QueryRow(`
		SELECT COALESCE(SUM(amount), 0)
		FROM pledges
		WHERE project_id = $1
		  AND status = 'active'
	`, projectID).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sum active pledges: %w", err)
	}

	return total, nil
}

func (r *pledgesRepo) SumActiveRemaining(ctx context.Context, projectID int64) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount_remaining), 0)
		FROM pledges
		WHERE project_id = $1
		  AND status = 'active'
	`, projectID).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sum active remaining: %w", err)
	}

	return total, nil
}

func (r *pledgesRepo) ProjectStats(ctx context.Context, projectID int64) (*pledges.Stats, error) {
	var s pledges.Stats

	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT backer_id)
		FROM pledges
		WHERE project_id = $1
		  AND status = 'active'
	`, projectID).Scan(&s.ActiveCount, &s.DistinctBacker)
	if err != nil {
		return nil, fmt.Errorf("pledge stats: %w", err)
	}

	return &s, nil
}
