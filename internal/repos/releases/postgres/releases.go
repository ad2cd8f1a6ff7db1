package releases

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/repos/releases"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

var _ releases.Releases = (*releasesRepo)(nil)

type releasesRepo struct{ db *sql.DB }

func New(db *sql.DB) *releasesRepo {
	return &releasesRepo{db: db}
}

func (r *releasesRepo) Insert(tx *sql.Tx, rel *releases.Release) error {
	err := tx.QueryRow(`
		INSERT INTO releases (milestone_id, amount, wallet_id, currency, tx_ref)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, released_at
	`, rel.MilestoneID, rel.Amount, rel.WalletID, rel.Currency, rel.TxRef).
		Scan(&rel.ID, &rel.ReleasedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return releases.ErrAlreadyReleased
		}

		return fmt.Errorf("insert release: %w", err)
	}

	return nil
}

func (r *releasesRepo) GetByMilestone(ctx context.Context, milestoneID int64) (*releases.Release, error) {
	var rel releases.Release

	err := r.db.QueryRowContext(ctx, `
		SELECT id, milestone_id, amount, wallet_id, currency, tx_ref, released_at
		FROM releases
		WHERE milestone_id = $1
	`, milestoneID).Scan(&rel.ID, &rel.MilestoneID, &rel.Amount, &rel.WalletID,
		&rel.Currency, &rel.TxRef, &rel.ReleasedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, releases.ErrReleaseNotFound
		}

		return nil, fmt.Errorf("get release: %w", err)
	}

	return &rel, nil
}

func (r *releasesRepo) SumReleased(ctx context.Context, currency string) (decimal.Decimal, error) {
	var total decimal.Decimal

	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM releases
		WHERE currency = $1
	`, currency).Scan(&total)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("sum released: %w", err)
	}

	return total, nil
}
