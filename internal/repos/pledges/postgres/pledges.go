package pledges

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/repos/pledges"
)

var _ pledges.Pledges = (*pledgesRepo)(nil)

type pledgesRepo struct{ db *sql.DB }

func New(db *sql.DB) *pledgesRepo {
	return &pledgesRepo{db: db}
}

const pledgeColumns = `id, project_id, backer_id, amount, amount_remaining, currency, status, payment_ref, created_at`

func (r *pledgesRepo) Create(tx *sql.Tx, p *pledges.Pledge) error {
	err := tx.QueryRow(`
		INSERT INTO pledges (project_id, backer_id, amount, amount_remaining, currency, status, payment_ref)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`, p.ProjectID, p.BackerID, p.Amount, p.Remaining, p.Currency, p.Status, p.PaymentRef).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert pledge: %w", err)
	}

	return nil
}

func scanPledge(row *sql.Row) (*pledges.Pledge, error) {
	var p pledges.Pledge

	err := row.Scan(&p.ID, &p.ProjectID, &p.BackerID, &p.Amount, &p.Remaining,
		&p.Currency, &p.Status, &p.PaymentRef, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, pledges.ErrPledgeNotFound
		}

		return nil, fmt.Errorf("scan pledge: %w", err)
	}

	return &p, nil
}

func (r *pledgesRepo) Get(ctx context.Context, id int64) (*pledges.Pledge, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+pledgeColumns+`
		FROM pledges
		WHERE id = $1
	`, id)

	return scanPledge(row)
}

func (r *pledgesRepo) GetTx(tx *sql.Tx, id int64) (*pledges.Pledge, error) {
	row := tx.QueryRow(`
		SELECT `+pledgeColumns+`
		FROM pledges
		WHERE id = $1
	`, id)

	return scanPledge(row)
}

func (r *pledgesRepo) ListActiveForUpdate(tx *sql.Tx, projectID int64) ([]*pledges.Pledge, error) {
	rows, err := tx.Query(`
		SELECT `+pledgeColumns+`
		FROM pledges
		WHERE project_id = $1
		  AND status = 'active'
		ORDER BY id
		FOR UPDATE
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list active pledges for update: %w", err)
	}
	defer rows.Close()

	return collectPledges(rows)
}

func (r *pledgesRepo) ListByProject(ctx context.Context, projectID int64) ([]*pledges.Pledge, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+pledgeColumns+`
		FROM pledges
		WHERE project_id = $1
		ORDER BY id
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list pledges: %w", err)
	}
	defer rows.Close()

	return collectPledges(rows)
}

func collectPledges(rows *sql.Rows) ([]*pledges.Pledge, error) {
	var out []*pledges.Pledge
	for rows.Next() {
		var p pledges.Pledge
		err := rows.Scan(&p.ID, &p.ProjectID, &p.BackerID, &p.Amount, &p.Remaining,
			&p.Currency, &p.Status, &p.PaymentRef, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan pledge row: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pledges: %w", err)
	}

	return out, nil
}

func (r *pledgesRepo) HasActive(tx *sql.Tx, projectID, backerID int64) (bool, error) {
	var has bool

	err := tx.QueryRow(`
		SELECT EXISTS(
			SELECT 1
			FROM pledges
			WHERE project_id = $1
			  AND backer_id = $2
			  AND status = 'active'
		)
	`, projectID, backerID).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("check active pledge: %w", err)
	}

	return has, nil
}
