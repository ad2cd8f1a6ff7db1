package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/fastprodman/escrowcore/internal/repos/projects"
	"github.com/jackc/pgx/v5/pgconn"
)

const milestoneColumns = `id, project_id, title, target_amount, order_index, status, voting_opened_at, created_at`

func (r *projectsRepo) CreateMilestone(tx *sql.Tx, m *projects.Milestone) error {
	err := tx.QueryRow(`
		INSERT INTO milestones (project_id, title, target_amount, order_index, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, m.ProjectID, m.Title, m.TargetAmount, m.OrderIndex, m.Status).
		Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" { // unique_violation
			return projects.ErrDuplicateOrderIndex
		}

		return fmt.Errorf("insert milestone: %w", err)
	}

	return nil
}

func scanMilestone(row *sql.Row) (*projects.Milestone, error) {
	var m projects.Milestone

	err := row.Scan(&m.ID, &m.ProjectID, &m.Title, &m.TargetAmount, &m.OrderIndex,
		&m.Status, &m.VotingOpenedAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, projects.ErrMilestoneNotFound
		}

		return nil, fmt.Errorf("scan milestone: %w", err)
	}

	return &m, nil
}

func (r *projectsRepo) GetMilestone(ctx context.Context, id int64) (*projects.Milestone, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+milestoneColumns+`
		FROM milestones
		WHERE id = $1
	`, id)

	return scanMilestone(row)
}

// GetMilestoneTx re-reads the milestone inside the caller's transaction,
// after the project row lock, so preconditions see committed state only.
func (r *projectsRepo) GetMilestoneTx(tx *sql.Tx, id int64) (*projects.Milestone, error) {
	row := tx.QueryRow(`
		SELECT `+milestoneColumns+`
		FROM milestones
		WHERE id = $1
	`, id)

	return scanMilestone(row)
}

func (r *projectsRepo) ListMilestones(ctx context.Context, projectID int64) ([]*projects.Milestone, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+milestoneColumns+`
		FROM milestones
		WHERE project_id = $1
		ORDER BY order_index
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var out []*projects.Milestone
	for rows.Next() {
		var m projects.Milestone
		err := rows.Scan(&m.ID, &m.ProjectID, &m.Title, &m.TargetAmount, &m.OrderIndex,
			&m.Status, &m.VotingOpenedAt, &m.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan milestone row: %w", err)
		}
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate milestones: %w", err)
	}

	return out, nil
}

func (r *projectsRepo) SetMilestoneStatus(tx *sql.Tx, id int64, from, to projects.MilestoneStatus) error {
	query := `
		UPDATE milestones
		SET status = $3
		WHERE id = $1
		  AND status = $2
	`
	if to == projects.MilestoneVoting {
		query = `
			UPDATE milestones
			SET status = $3, voting_opened_at = now()
			WHERE id = $1
			  AND status = $2
		`
	}

	res, err := tx.Exec(query, id, from, to)
	if err != nil {
		return fmt.Errorf("set milestone status: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return projects.ErrInvalidTransition
	}

	return nil
}

func (r *projectsRepo) CountMilestonesOutside(tx *sql.Tx, projectID int64, statuses ...projects.MilestoneStatus) (int, error) {
	if len(statuses) == 0 {
		return 0, errors.New("no statuses given")
	}

	placeholders := make([]string, len(statuses))
	args := []any{projectID}
	for i, s := range statuses {
		placeholders[i] = fmt.Sprintf("$%d", i+2)
		args = append(args, s)
	}

	var count int
	err := tx.QueryRow(`
		SELECT COUNT(*)
		FROM milestones
		WHERE project_id = $1
		  AND status NOT IN (`+strings.Join(placeholders, ", ")+`)
	`, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count milestones: %w", err)
	}

	return count, nil
}

func (r *projectsRepo) MilestoneStatusCounts(ctx context.Context, projectID int64) (map[projects.MilestoneStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM milestones
		WHERE project_id = $1
		GROUP BY status
	`, projectID)
	if err != nil {
		return nil, fmt.Errorf("milestone status counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[projects.MilestoneStatus]int)
	for rows.Next() {
		var s projects.MilestoneStatus
		var n int
		if err := rows.Scan(&s, &n); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[s] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}

	return counts, nil
}
