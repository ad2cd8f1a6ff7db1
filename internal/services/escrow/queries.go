package escrow

import (
	"context"
	"errors"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/money"
	"github.com/fastprodman/escrowcore/internal/repos/audit"
	"github.com/fastprodman/escrowcore/internal/repos/pledges"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
	"github.com/fastprodman/escrowcore/internal/repos/refunds"
	"github.com/fastprodman/escrowcore/internal/repos/releases"
	"github.com/fastprodman/escrowcore/internal/repos/votes"
	"github.com/fastprodman/escrowcore/internal/repos/wallets"
)

// ProjectView is a project with its derived escrow aggregates. TotalPledged
// and EscrowRemaining are recomputed per read, never cached.
type ProjectView struct {
	Project         *projects.Project
	Milestones      []*projects.Milestone
	TotalPledged    money.Money
	EscrowRemaining money.Money
	ProgressPercent float64
}

func (s *Service) GetProject(ctx context.Context, id int64) (*ProjectView, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	ms, err := s.projects.ListMilestones(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	pledged, err := s.pledges.SumActiveAmount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	remaining, err := s.pledges.SumActiveRemaining(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}

	total := money.Money{Amount: pledged, Currency: p.Currency}
	goal := money.Money{Amount: p.GoalAmount, Currency: p.Currency}

	return &ProjectView{
		Project:         p,
		Milestones:      ms,
		TotalPledged:    total,
		EscrowRemaining: money.Money{Amount: remaining, Currency: p.Currency},
		ProgressPercent: money.ProgressPercent(total, goal),
	}, nil
}

// ProjectStats is the read model behind the project statistics endpoint.
type ProjectStats struct {
	TotalPledged    money.Money
	ProgressPercent float64
	ActivePledges   int
	DistinctBackers int
	MilestoneCounts map[projects.MilestoneStatus]int
}

func (s *Service) GetProjectStats(ctx context.Context, id int64) (*ProjectStats, error) {
	p, err := s.projects.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("project stats: %w", err)
	}

	pledged, err := s.pledges.SumActiveAmount(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("project stats: %w", err)
	}

	st, err := s.pledges.ProjectStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("project stats: %w", err)
	}

	counts, err := s.projects.MilestoneStatusCounts(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("project stats: %w", err)
	}

	total := money.Money{Amount: pledged, Currency: p.Currency}
	goal := money.Money{Amount: p.GoalAmount, Currency: p.Currency}

	return &ProjectStats{
		TotalPledged:    total,
		ProgressPercent: money.ProgressPercent(total, goal),
		ActivePledges:   st.ActiveCount,
		DistinctBackers: st.DistinctBacker,
		MilestoneCounts: counts,
	}, nil
}

// MilestoneView is a milestone with its current tally and release, if any.
type MilestoneView struct {
	Milestone *projects.Milestone
	Tally     votes.Tally
	Release   *releases.Release
}

func (s *Service) GetMilestone(ctx context.Context, id int64) (*MilestoneView, error) {
	m, err := s.projects.GetMilestone(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get milestone: %w", err)
	}

	tally, err := s.votes.CountCtx(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get milestone: %w", err)
	}

	rel, err := s.releases.GetByMilestone(ctx, id)
	if err != nil {
		if !errors.Is(err, releases.ErrReleaseNotFound) {
			return nil, fmt.Errorf("get milestone: %w", err)
		}
		rel = nil
	}

	return &MilestoneView{Milestone: m, Tally: tally, Release: rel}, nil
}

func (s *Service) ListProjects(ctx context.Context, status projects.Status) ([]*projects.Project, error) {
	out, err := s.projects.List(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}

	return out, nil
}

func (s *Service) ListPledges(ctx context.Context, projectID int64) ([]*pledges.Pledge, error) {
	out, err := s.pledges.ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list pledges: %w", err)
	}

	return out, nil
}

func (s *Service) GetPledge(ctx context.Context, id int64) (*pledges.Pledge, error) {
	out, err := s.pledges.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get pledge: %w", err)
	}

	return out, nil
}

func (s *Service) GetRefund(ctx context.Context, id int64) (*refunds.Refund, error) {
	out, err := s.refunds.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get refund: %w", err)
	}

	return out, nil
}

func (s *Service) ListRefunds(ctx context.Context, pledgeID int64) ([]*refunds.Refund, error) {
	out, err := s.refunds.ListByPledge(ctx, pledgeID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}

	return out, nil
}

func (s *Service) ListVotes(ctx context.Context, milestoneID int64) ([]*votes.Vote, error) {
	out, err := s.votes.ListByMilestone(ctx, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("list votes: %w", err)
	}

	return out, nil
}

func (s *Service) GetWallet(ctx context.Context, kind wallets.OwnerKind, ownerID int64, currency string) (*wallets.Wallet, error) {
	z, err := money.Zero(currency)
	if err != nil {
		return nil, err
	}

	w, err := s.wallets.Get(ctx, kind, ownerID, z.Currency)
	if err != nil {
		return nil, fmt.Errorf("get wallet: %w", err)
	}

	return w, nil
}

// ReconciliationReport cross-checks the ledger against the payout records
// for one currency. Wallets are credited only by releases and processed
// refunds, so WalletTotal must equal ReleasedTotal + RefundedTotal.
type ReconciliationReport struct {
	Currency      string
	WalletTotal   money.Money
	ReleasedTotal money.Money
	RefundedTotal money.Money
	Balanced      bool
}

func (s *Service) Reconcile(ctx context.Context, actor Actor, currency string) (*ReconciliationReport, error) {
	if actor.Role != RoleAdmin {
		return nil, ErrForbidden
	}

	z, err := money.Zero(currency)
	if err != nil {
		return nil, err
	}
	cur := z.Currency

	walletTotal, err := s.wallets.SumBalances(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	released, err := s.releases.SumReleased(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	refunded, err := s.refunds.SumProcessed(ctx, cur)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	return &ReconciliationReport{
		Currency:      cur,
		WalletTotal:   money.Money{Amount: walletTotal, Currency: cur},
		ReleasedTotal: money.Money{Amount: released, Currency: cur},
		RefundedTotal: money.Money{Amount: refunded, Currency: cur},
		Balanced:      walletTotal.Equal(released.Add(refunded)),
	}, nil
}

func (s *Service) ListAuditFacts(ctx context.Context, filter audit.Filter) ([]*audit.Fact, error) {
	out, err := s.audit.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list audit facts: %w", err)
	}

	return out, nil
}
