package votes

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/repos/votes"
)

var _ votes.Votes = (*votesRepo)(nil)

type votesRepo struct{ db *sql.DB }

func New(db *sql.DB) *votesRepo {
	return &votesRepo{db: db}
}

func (r *votesRepo) Upsert(tx *sql.Tx, v *votes.Vote) error {
	err := tx.QueryRow(`
		INSERT INTO votes (milestone_id, backer_id, decision)
		VALUES ($1, $2, $3)
		ON CONFLICT (milestone_id, backer_id)
			DO UPDATE SET decision = EXCLUDED.decision, cast_at = now()
		RETURNING cast_at
	`, v.MilestoneID, v.BackerID, v.Decision).Scan(&v.CastAt)
	if err != nil {
		return fmt.Errorf("upsert vote: %w", err)
	}

	return nil
}

const countQuery = `
	SELECT
		COUNT(*) FILTER (WHERE decision = 'approve'),
		COUNT(*) FILTER (WHERE decision = 'reject')
	FROM votes
	WHERE milestone_id = $1
`

func (r *votesRepo) Count(tx *sql.Tx, milestoneID int64) (votes.Tally, error) {
	var t votes.Tally

	err := tx.QueryRow(countQuery, milestoneID).Scan(&t.Approve, &t.Reject)
	if err != nil {
		return votes.Tally{}, fmt.Errorf("count votes: %w", err)
	}

	return t, nil
}

func (r *votesRepo) CountCtx(ctx context.Context, milestoneID int64) (votes.Tally, error) {
	var t votes.Tally

	err := r.db.QueryRowContext(ctx, countQuery, milestoneID).Scan(&t.Approve, &t.Reject)
	if err != nil {
		return votes.Tally{}, fmt.Errorf("count votes: %w", err)
	}

	return t, nil
}

func (r *votesRepo) ListByMilestone(ctx context.Context, milestoneID int64) ([]*votes.Vote, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT milestone_id, backer_id, decision, cast_at
		FROM votes
		WHERE milestone_id = $1
		ORDER BY cast_at
	`, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}
	defer rows.Close()

	var out []*votes.Vote
	for rows.Next() {
		var v votes.Vote
		if err := rows.Scan(&v.MilestoneID, &v.BackerID, &v.Decision, &v.CastAt); err != nil {
			return nil, fmt.Errorf("scan vote row: %w", err)
		}
		out = append(out, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate votes: %w", err)
	}

	return out, nil
}
