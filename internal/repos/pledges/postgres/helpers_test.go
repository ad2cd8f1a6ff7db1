package pledges

import (
	"database/sql"
	"errors"
	"testing"
)

func seedProject(t *testing.T, db *sql.DB) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(`
		INSERT INTO projects (creator_id, title, goal_amount, currency, status, start_at, end_at)
		VALUES (1, 'test project', 1000.00, 'USD', 'active', now(), now() + interval '30 days')
		RETURNING id
	`).Scan(&id)
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}

	return id
}

func seedPledge(t *testing.T, db *sql.DB, projectID, backerID int64, amount, remaining string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(`
		INSERT INTO pledges (project_id, backer_id, amount, amount_remaining, currency)
		VALUES ($1, $2, $3, $4, 'USD')
		RETURNING id
	`, projectID, backerID, amount, remaining).Scan(&id)
	if err != nil {
		t.Fatalf("seed pledge: %v", err)
	}

	return id
}

func errorsIsOrNil(err, want error) bool {
	if want == nil {
		return err == nil
	}

	return errors.Is(err, want)
}
