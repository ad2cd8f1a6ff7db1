package refunds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/repos/refunds"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var _ refunds.Refunds = (*refundsRepo)(nil)

type refundsRepo struct{ db *sql.DB }

func New(db *sql.DB) *refundsRepo {
	return &refundsRepo{db: db}
}

const refundColumns = `id, pledge_id, milestone_id, amount, currency, status, reason, tx_ref, requested_at, resolved_at`

func (r *refundsRepo) Create(tx *sql.Tx, rf *refunds.Refund) error {
	err := tx.QueryRow(`
		INSERT INTO refunds (pledge_id, milestone_id, amount, currency, status, reason, tx_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, requested_at
	`, rf.PledgeID, rf.MilestoneID, rf.Amount, rf.Currency, rf.Status, rf.Reason, rf.TxRef).
		Scan(&rf.ID, &rf.RequestedAt)
	if err != nil {
		return fmt.Errorf("insert refund: %w", err)
	}

	return nil
}

func scanRefund(row *sql.Row) (*refunds.Refund, error) {
	var rf refunds.Refund

	err := row.Scan(&rf.ID, &rf.PledgeID, &rf.MilestoneID, &rf.Amount, &rf.Currency,
		&rf.Status, &rf.Reason, &rf.TxRef, &rf.RequestedAt, &rf.ResolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, refunds.ErrRefundNotFound
		}

		return nil, fmt.Errorf("scan refund: %w", err)
	}

	return &rf, nil
}

func (r *refundsRepo) Get(ctx context.Context, id int64) (*refunds.Refund, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+refundColumns+`
		FROM refunds
		WHERE id = $1
	`, id)

	return scanRefund(row)
}

func (r *refundsRepo) GetTx(tx *sql.Tx, id int64) (*refunds.Refund, error) {
	row := tx.QueryRow(`
		SELECT `+refundColumns+`
		FROM refunds
		WHERE id = $1
	`, id)

	return scanRefund(row)
}

func (r *refundsRepo) MarkProcessed(tx *sql.Tx, id int64, amount decimal.Decimal) error {
	res, err := tx.Exec(`
		UPDATE refunds
		SET status = 'processed', amount = $2, resolved_at = now()
		WHERE id = $1
		  AND status = 'requested'
	`, id, amount)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return refunds.ErrAlreadyRefunded
		}

		return fmt.Errorf("mark refund processed: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return refunds.ErrAlreadyResolved
	}

	return nil
}

func (r *refundsRepo) MarkRejected(tx *sql.Tx, id int64) error {
	res, err := tx.Exec(`
		UPDATE refunds
		SET status = 'rejected', resolved_at = now()
		WHERE id = $1
		  AND status = 'requested'
	`, id)
	if err != nil {
		return fmt.Errorf("mark refund rejected: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return refunds.ErrAlreadyResolved
	}

	return nil
}

func (r *refundsRepo) ListByPledge(ctx context.Context, pledgeID int64) ([]*refunds.Refund, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+refundColumns+`
		FROM refunds
		WHERE pledge_id = $1
		ORDER BY id
	`, pledgeID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()

	var out []*refunds.Refund
	for rows.Next() {
		var rf refunds.Refund
		err := rows.Scan(&rf.ID, &rf.PledgeID, &rf.MilestoneID, &rf.Amount, &rf.Currency,
			&rf.Status, &rf.Reason, &rf.TxRef, &rf.RequestedAt, &rf.ResolvedAt)
		if err != nil {
			return nil, fmt.Errorf("scan refund row: %w", err)
		}
		out = append(out, &rf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refunds: %w", err)
	}

	return out, nil
}

func (r *refundsRepo) SumProcessed(ctx context.Context, currency string) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM refunds
		WHERE currency = $1
		  AND status = 'processed'
	`, currency).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sum processed refunds: %w", err)
	}

	return total, nil
}
