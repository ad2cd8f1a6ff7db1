package escrow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/infra/pgutils"
	"github.com/fastprodman/escrowcore/internal/repos/audit"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
	"github.com/fastprodman/escrowcore/internal/repos/releases"
	"github.com/fastprodman/escrowcore/internal/repos/wallets"
	"github.com/shopspring/decimal"
)

// ReleaseMilestone moves an Approved milestone's target out of escrow into
// the creator's wallet, exactly once. The whole effect is one transaction:
// consume pledge remainders in waterfall order, insert the unique Release
// row, credit the wallet, flip the milestone to Paid, emit the audit fact.
// A concurrent second call observes ErrAlreadyReleased from the Release
// row's uniqueness, never a duplicate credit.
func (s *Service) ReleaseMilestone(ctx context.Context, actor Actor, milestoneID int64, txRef string) (*releases.Release, error) {
	ms, err := s.projects.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("release milestone: %w", err)
	}

	var out *releases.Release

	err = pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.projects.LockForUpdate(tx, ms.ProjectID)
		if err != nil {
			return err
		}
		if p.CreatorID != actor.ID && actor.Role != RoleAdmin {
			return ErrForbidden
		}

		m, err := s.projects.GetMilestoneTx(tx, milestoneID)
		if err != nil {
			return err
		}
		switch m.Status {
		case projects.MilestoneApproved:
		case projects.MilestonePaid:
			return ErrAlreadyReleased
		default:
			return ErrNotApproved
		}

		if err := s.consumeEscrow(tx, p.ID, m.TargetAmount); err != nil {
			return err
		}

		wallet, err := s.wallets.GetOrCreate(tx, wallets.OwnerCreator, p.CreatorID, p.Currency)
		if err != nil {
			return err
		}

		rel := &releases.Release{
			MilestoneID: m.ID,
			Amount:      m.TargetAmount,
			WalletID:    wallet.ID,
			Currency:    p.Currency,
			TxRef:       txRef,
		}
		if err := s.releases.Insert(tx, rel); err != nil {
			return err
		}

		if err := s.wallets.Credit(tx, wallet.ID, rel.Amount); err != nil {
			return err
		}

		if err := s.projects.SetMilestoneStatus(tx, m.ID, projects.MilestoneApproved, projects.MilestonePaid); err != nil {
			return err
		}

		if err := s.audit.Append(tx, &audit.Fact{
			ActorKind:  actor.auditKind(),
			ActorID:    actor.ID,
			Action:     "funds.released",
			EntityType: "milestone",
			EntityID:   m.ID,
			Amount:     &rel.Amount,
			Currency:   &rel.Currency,
			Metadata:   map[string]any{"wallet_id": wallet.ID, "release_id": rel.ID},
		}); err != nil {
			return err
		}

		if err := s.maybeMarkFunded(tx, actor, p); err != nil {
			return err
		}

		out = rel

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("release milestone: %w", err)
	}

	return out, nil
}

// consumeEscrow debits `amount` from the project's unspent pledge
// remainders in pledge-id (FIFO) order. Escrow short of the amount fails
// the whole transaction with ErrInsufficientFunds.
func (s *Service) consumeEscrow(tx *sql.Tx, projectID int64, amount decimal.Decimal) error {
	active, err := s.pledges.ListActiveForUpdate(tx, projectID)
	if err != nil {
		return err
	}

	need := amount
	for _, p := range active {
		if !need.IsPositive() {
			break
		}
		if !p.Remaining.IsPositive() {
			continue
		}

		take := decimal.Min(p.Remaining, need)
		if err := s.pledges.ConsumeRemaining(tx, p.ID, take); err != nil {
			return err
		}
		need = need.Sub(take)
	}

	if need.IsPositive() {
		return fmt.Errorf("escrow short by %s: %w", need, ErrInsufficientFunds)
	}

	return nil
}

// maybeMarkFunded derives project Funded after a release: every milestone
// Paid or Approved, and active pledges covering the goal.
func (s *Service) maybeMarkFunded(tx *sql.Tx, actor Actor, p *projects.Project) error {
	if p.Status != projects.StatusActive {
		return nil
	}

	outside, err := s.projects.CountMilestonesOutside(tx, p.ID,
		projects.MilestonePaid, projects.MilestoneApproved)
	if err != nil {
		return err
	}
	if outside > 0 {
		return nil
	}

	pledged, err := s.pledges.SumActiveAmountTx(tx, p.ID)
	if err != nil {
		return err
	}
	if pledged.Cmp(p.GoalAmount) < 0 {
		return nil
	}

	if err := s.projects.SetStatus(tx, p.ID, projects.StatusActive, projects.StatusFunded); err != nil {
		return err
	}

	return s.audit.Append(tx, &audit.Fact{
		ActorKind:  audit.ActorSystem,
		ActorID:    actor.ID,
		Action:     "project.funded",
		EntityType: "project",
		EntityID:   p.ID,
	})
}
