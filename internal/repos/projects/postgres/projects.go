package projects

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/repos/projects"
)

var _ projects.Projects = (*projectsRepo)(nil)

type projectsRepo struct{ db *sql.DB }

func New(db *sql.DB) *projectsRepo {
	return &projectsRepo{db: db}
}

func (r *projectsRepo) Create(tx *sql.Tx, p *projects.Project) error {
	err := tx.QueryRow(`
		INSERT INTO projects (creator_id, title, description, goal_amount, currency, status, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, p.CreatorID, p.Title, p.Description, p.GoalAmount, p.Currency, p.Status, p.StartAt, p.EndAt).
		Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}

	return nil
}

const projectColumns = `id, creator_id, title, description, goal_amount, currency, status, start_at, end_at, created_at`

func scanProject(row *sql.Row) (*projects.Project, error) {
	var p projects.Project

	err := row.Scan(&p.ID, &p.CreatorID, &p.Title, &p.Description, &p.GoalAmount,
		&p.Currency, &p.Status, &p.StartAt, &p.EndAt, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, projects.ErrProjectNotFound
		}

		return nil, fmt.Errorf("scan project: %w", err)
	}

	return &p, nil
}

func (r *projectsRepo) Get(ctx context.Context, id int64) (*projects.Project, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+projectColumns+`
		FROM projects
		WHERE id = $1
	`, id)

	return scanProject(row)
}

// LockForUpdate reads the project under FOR UPDATE. Every mutating escrow
// operation takes this lock first so that transitions on one aggregate
// never interleave.
func (r *projectsRepo) LockForUpdate(tx *sql.Tx, id int64) (*projects.Project, error) {
	row := tx.QueryRow(`
		SELECT `+projectColumns+`
		FROM projects
		WHERE id = $1
		FOR UPDATE
	`, id)

	return scanProject(row)
}

func (r *projectsRepo) List(ctx context.Context, status projects.Status) ([]*projects.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC`
	args := []any{}
	if status != "" {
		query = `SELECT ` + projectColumns + ` FROM projects WHERE status = $1 ORDER BY created_at DESC`
		args = append(args, status)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*projects.Project
	for rows.Next() {
		var p projects.Project
		err := rows.Scan(&p.ID, &p.CreatorID, &p.Title, &p.Description, &p.GoalAmount,
			&p.Currency, &p.Status, &p.StartAt, &p.EndAt, &p.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan project row: %w", err)
		}
		out = append(out, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate projects: %w", err)
	}

	return out, nil
}

func (r *projectsRepo) SetStatus(tx *sql.Tx, id int64, from, to projects.Status) error {
	res, err := tx.Exec(`
		UPDATE projects
		SET status = $3
		WHERE id = $1
		  AND status = $2
	`, id, from, to)
	if err != nil {
		return fmt.Errorf("set project status: %w", err)
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
