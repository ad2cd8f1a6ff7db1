package refunds

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/fastprodman/escrowcore/internal/infra/pgtestutil"
	"github.com/fastprodman/escrowcore/internal/repos/refunds"
	"github.com/shopspring/decimal"
)

func seedPledge(t *testing.T, db *sql.DB) int64 {
	t.Helper()

	var projectID int64
	err := db.QueryRow(`
		INSERT INTO projects (creator_id, title, goal_amount, currency, status, start_at, end_at)
		VALUES (1, 'test project', 1000.00, 'USD', 'active', now(), now() + interval '30 days')
		RETURNING id
	`).Scan(&projectID)
	if err != nil {
		t.Fatalf("seed project: %v", err)
	}

	var pledgeID int64
	err = db.QueryRow(`
		INSERT INTO pledges (project_id, backer_id, amount, amount_remaining, currency)
		VALUES ($1, 9, 100.00, 100.00, 'USD')
		RETURNING id
	`, projectID).Scan(&pledgeID)
	if err != nil {
		t.Fatalf("seed pledge: %v", err)
	}

	return pledgeID
}

func createRefund(t *testing.T, db *sql.DB, repo *refundsRepo, pledgeID int64) int64 {
	t.Helper()

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	rf := &refunds.Refund{
		PledgeID: pledgeID,
		Amount:   decimal.RequireFromString("100.00"),
		Currency: "USD",
		Status:   refunds.StatusRequested,
		Reason:   "test",
	}
	if err := repo.Create(tx, rf); err != nil {
		t.Fatalf("create refund: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	return rf.ID
}

func TestRefunds_MarkProcessed_Guards(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	pledgeID := seedPledge(t, db)
	refundID := createRefund(t, db, repo, pledgeID)

	mark := func(id int64, amount string) error {
		tx, err := db.Begin()
		if err != nil {
			t.Fatalf("begin tx: %v", err)
		}
		defer tx.Rollback()

		err = repo.MarkProcessed(tx, id, decimal.RequireFromString(amount))
		if err != nil {
			return err
		}

		return tx.Commit()
	}

	if err := mark(refundID, "100.00"); err != nil {
		t.Fatalf("first mark processed: %v", err)
	}

	// Re-processing a resolved refund fails the Requested guard.
	err := mark(refundID, "100.00")
	if !errors.Is(err, refunds.ErrAlreadyResolved) {
		t.Fatalf("reprocess: got %v, want %v", err, refunds.ErrAlreadyResolved)
	}

	// A second refund row for the same pledge trips the partial unique index.
	secondID := createRefund(t, db, repo, pledgeID)
	err = mark(secondID, "0.00")
	if !errors.Is(err, refunds.ErrAlreadyRefunded) {
		t.Fatalf("second refund process: got %v, want %v", err, refunds.ErrAlreadyRefunded)
	}
}

func TestRefunds_MarkRejected(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	pledgeID := seedPledge(t, db)
	refundID := createRefund(t, db, repo, pledgeID)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	if err := repo.MarkRejected(tx, refundID); err != nil {
		t.Fatalf("mark rejected: %v", err)
	}

	err = repo.MarkRejected(tx, refundID)
	if !errors.Is(err, refunds.ErrAlreadyResolved) {
		t.Fatalf("re-reject: got %v, want %v", err, refunds.ErrAlreadyResolved)
	}
}

func TestRefunds_MarkProcessed_RecordsAmountAndResolvedAt(t *testing.T) {
	t.Parallel()

	db, cleanup := pgtestutil.NewTestDB(t)
	defer cleanup()

	repo := New(db)
	pledgeID := seedPledge(t, db)
	refundID := createRefund(t, db, repo, pledgeID)

	tx, err := db.Begin()
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	// The amount actually paid can differ from the requested amount when
	// escrow was consumed between request and processing.
	if err := repo.MarkProcessed(tx, refundID, decimal.RequireFromString("60.00")); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	rf, err := repo.Get(t.Context(), refundID)
	if err != nil {
		t.Fatalf("get refund: %v", err)
	}

	if rf.Status != refunds.StatusProcessed {
		t.Fatalf("status: want processed, got %s", rf.Status)
	}
	if !rf.Amount.Equal(decimal.RequireFromString("60.00")) {
		t.Fatalf("amount: want 60.00, got %s", rf.Amount)
	}
	if rf.ResolvedAt == nil {
		t.Fatal("resolved_at not set")
	}
}
