package escrow

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/fastprodman/escrowcore/internal/infra/pgtestutil"
	"github.com/fastprodman/escrowcore/internal/money"
	"github.com/fastprodman/escrowcore/internal/repos/pledges"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
	"github.com/fastprodman/escrowcore/internal/repos/votes"
	"github.com/shopspring/decimal"
)

// fixture wires a Service against a throwaway database and carries the
// common actors scenario tests need.
type fixture struct {
	t   *testing.T
	db  *sql.DB
	svc *Service

	creator Actor
	admin   Actor
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()

	db, cleanup := pgtestutil.NewTestDB(t)
	t.Cleanup(cleanup)

	return &fixture{
		t:       t,
		db:      db,
		svc:     New(db, cfg),
		creator: Actor{ID: 1, Role: RoleCreator},
		admin:   Actor{ID: 900, Role: RoleAdmin},
	}
}

func backer(id int64) Actor {
	return Actor{ID: id, Role: RoleBacker}
}

func usd(t *testing.T, amount string) money.Money {
	t.Helper()

	m, err := money.FromString(amount, "USD")
	if err != nil {
		t.Fatalf("parse money %q: %v", amount, err)
	}

	return m
}

func (f *fixture) ctx() context.Context {
	return context.Background()
}

// activeProject creates and activates a project with the given goal and
// a 30-day funding window.
func (f *fixture) activeProject(goal string) *projects.Project {
	f.t.Helper()

	p, err := f.svc.CreateProject(f.ctx(), f.creator, NewProjectParams{
		Title:   "garden kit",
		Goal:    usd(f.t, goal),
		StartAt: time.Now(),
		EndAt:   time.Now().Add(30 * 24 * time.Hour),
	})
	if err != nil {
		f.t.Fatalf("create project: %v", err)
	}

	p, err = f.svc.ActivateProject(f.ctx(), f.creator, p.ID)
	if err != nil {
		f.t.Fatalf("activate project: %v", err)
	}

	return p
}

func (f *fixture) milestone(projectID int64, target string, orderIndex int) *projects.Milestone {
	f.t.Helper()

	m, err := f.svc.AddMilestone(f.ctx(), f.creator, projectID, "phase", usd(f.t, target), orderIndex)
	if err != nil {
		f.t.Fatalf("add milestone: %v", err)
	}

	return m
}

func (f *fixture) pledge(backerID, projectID int64, amount string) *pledges.Pledge {
	f.t.Helper()

	p, err := f.svc.CreatePledge(f.ctx(), backer(backerID), projectID, usd(f.t, amount), "")
	if err != nil {
		f.t.Fatalf("create pledge (backer %d): %v", backerID, err)
	}

	return p
}

func (f *fixture) openVoting(milestoneID int64) {
	f.t.Helper()

	if _, err := f.svc.OpenVoting(f.ctx(), f.creator, milestoneID); err != nil {
		f.t.Fatalf("open voting: %v", err)
	}
}

// approveMilestone opens voting and resolves the milestone Approved with a
// single approve vote (the tally re-evaluates after every committed vote).
func (f *fixture) approveMilestone(milestoneID, backerID int64) {
	f.t.Helper()

	f.openVoting(milestoneID)

	res, err := f.svc.CastVote(f.ctx(), backer(backerID), milestoneID, votes.DecisionApprove)
	if err != nil {
		f.t.Fatalf("cast approve (backer %d): %v", backerID, err)
	}
	if res.Milestone.Status != projects.MilestoneApproved {
		f.t.Fatalf("milestone %d not approved: %s", milestoneID, res.Milestone.Status)
	}
}

// rejectMilestone opens voting and resolves the milestone Rejected.
func (f *fixture) rejectMilestone(milestoneID, backerID int64) {
	f.t.Helper()

	f.openVoting(milestoneID)

	res, err := f.svc.CastVote(f.ctx(), backer(backerID), milestoneID, votes.DecisionReject)
	if err != nil {
		f.t.Fatalf("cast reject (backer %d): %v", backerID, err)
	}
	if res.Milestone.Status != projects.MilestoneRejected {
		f.t.Fatalf("milestone %d not rejected: %s", milestoneID, res.Milestone.Status)
	}
}

func (f *fixture) walletBalance(kind string, ownerID int64, currency string) decimal.Decimal {
	f.t.Helper()

	var bal decimal.Decimal
	err := f.db.QueryRow(`
		SELECT balance FROM wallets
		WHERE owner_kind = $1 AND owner_id = $2 AND currency = $3
	`, kind, ownerID, currency).Scan(&bal)
	if err != nil {
		f.t.Fatalf("read wallet balance: %v", err)
	}

	return bal
}

func (f *fixture) pledgeRemaining(pledgeID int64) decimal.Decimal {
	f.t.Helper()

	p, err := f.svc.GetPledge(f.ctx(), pledgeID)
	if err != nil {
		f.t.Fatalf("get pledge: %v", err)
	}

	return p.Remaining
}

func (f *fixture) milestoneStatus(milestoneID int64) projects.MilestoneStatus {
	f.t.Helper()

	mv, err := f.svc.GetMilestone(f.ctx(), milestoneID)
	if err != nil {
		f.t.Fatalf("get milestone: %v", err)
	}

	return mv.Milestone.Status
}

func requireDecimal(t *testing.T, got decimal.Decimal, want string, label string) {
	t.Helper()

	w := decimal.RequireFromString(want)
	if !got.Equal(w) {
		t.Fatalf("%s: want %s, got %s", label, w, got)
	}
}
