package projects

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/fastprodman/escrowcore/internal/infra/pgtestutil"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
)

func seedProjectRow(t *testing.T, db *sql.DB, status string) int64 {
	t.Helper()

	var id int64
	err := db.QueryRow(`
		INSERT INTO projects (creator_id, title, goal_amount, currency, status, start_at, end_at)
		VALUES (1, 'test project', 1000.00, 'USD', $1, now(), now() + interval '30 days')
		RETURNING id
	`, status).Scan(&id)
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}

	return id
}

func TestProjects_SetStatus_Guard(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		current string
		from    projects.Status
		to      projects.Status
		wantErr error
	}{
		{
			name:    "draft_to_active",
			current: "draft",
			from:    projects.StatusDraft,
			to:      projects.StatusActive,
			wantErr: nil,
		},
		{
			name:    "stale_from_state",
			current: "cancelled",
			from:    projects.StatusActive,
			to:      projects.StatusFunded,
			wantErr: projects.ErrInvalidTransition,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			db, cleanup := pgtestutil.NewTestDB(t)
			defer cleanup()

			repo := New(db)
			id := seedProjectRow(t, db, tt.current)

			tx, err := db.Begin()
			if err != nil {
				t.Fatalf("begin tx: %v", err)
			}
			defer tx.Rollback()

			err = repo.SetStatus(tx, id, tt.from, tt.to)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("set status: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("set status: got %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestProjects_CreateMilestone_DuplicateOrderIndex(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	projectID := seedProjectRow(t, db, "draft")

	create := func(orderIndex int) error {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		defer tx.Rollback()

		m := &projects.Milestone{
			ProjectID:    projectID,
			Title:        "phase",
			TargetAmount: mustDecimal(t, "100.00"),
			OrderIndex:   orderIndex,
			Status:       projects.MilestonePending,
		}
		if err := repo.CreateMilestone(tx, m); err != nil {
			return err
		}

		return tx.Commit()
	}

	if err := create(0); err != nil {
		t.Fatalf("first milestone: %v", err)
	}

	err := create(0)
	if !errors.Is(err, projects.ErrDuplicateOrderIndex) {
		t.Fatalf("duplicate order index: got %v, want %v", err, projects.ErrDuplicateOrderIndex)
	}

	if err := create(1); err != nil {
		t.Fatalf("next order index: %v", err)
	}
}

func TestProjects_SetMilestoneStatus_StampsVotingOpenedAt(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	projectID := seedProjectRow(t, db, "active")

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	m := &projects.Milestone{
		ProjectID:    projectID,
		Title:        "phase",
		TargetAmount: mustDecimal(t, "100.00"),
		OrderIndex:   0,
		Status:       projects.MilestonePending,
	}
	if err := repo.CreateMilestone(tx, m); err != nil {
		t.Fatalf("create milestone: %v", err)
	}

	if err := repo.SetMilestoneStatus(tx, m.ID, projects.MilestonePending, projects.MilestoneVoting); err != nil {
		t.Fatalf("open voting: %v", err)
	}

	got, err := repo.GetMilestoneTx(tx, m.ID)
	if err != nil {
		t.Fatalf("get milestone: %v", err)
	}

	if got.Status != projects.MilestoneVoting {
		t.Fatalf("status: want voting, got %s", got.Status)
	}
	if got.VotingOpenedAt == nil {
		t.Fatal("voting_opened_at not stamped")
	}

	// Stale transitions are rejected.
	err = repo.SetMilestoneStatus(tx, m.ID, projects.MilestonePending, projects.MilestoneVoting)
	if !errors.Is(err, projects.ErrInvalidTransition) {
		t.Fatalf("stale transition: got %v, want %v", err, projects.ErrInvalidTransition)
	}
}
