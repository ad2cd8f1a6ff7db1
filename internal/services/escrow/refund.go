package escrow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/infra/pgutils"
	"github.com/fastprodman/escrowcore/internal/repos/audit"
	"github.com/fastprodman/escrowcore/internal/repos/pledges"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
	"github.com/fastprodman/escrowcore/internal/repos/refunds"
	"github.com/fastprodman/escrowcore/internal/repos/wallets"
)

// RequestRefund records a backer's refund request for their Active pledge.
// The refundable amount is the pledge's unspent remainder. When the tied
// milestone is Rejected, or the project is Failed or Cancelled, the refund
// processes immediately in the same transaction instead of waiting for the
// manual path.
func (s *Service) RequestRefund(ctx context.Context, actor Actor, pledgeID int64, milestoneID *int64, reason string) (*refunds.Refund, error) {
	pl, err := s.pledges.Get(ctx, pledgeID)
	if err != nil {
		return nil, fmt.Errorf("request refund: %w", err)
	}

	var out *refunds.Refund

	err = pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.projects.LockForUpdate(tx, pl.ProjectID)
		if err != nil {
			return err
		}

		pledge, err := s.pledges.GetTx(tx, pledgeID)
		if err != nil {
			return err
		}
		if pledge.BackerID != actor.ID && actor.Role != RoleAdmin {
			return ErrForbidden
		}
		if pledge.Status != pledges.StatusActive {
			return ErrNotActive
		}

		var ms *projects.Milestone
		if milestoneID != nil {
			ms, err = s.projects.GetMilestoneTx(tx, *milestoneID)
			if err != nil {
				return err
			}
			if ms.ProjectID != pledge.ProjectID {
				return fmt.Errorf("milestone belongs to another project: %w", ErrInvalidState)
			}
		}

		rf := &refunds.Refund{
			PledgeID:    pledge.ID,
			MilestoneID: milestoneID,
			Amount:      pledge.Remaining,
			Currency:    pledge.Currency,
			Status:      refunds.StatusRequested,
			Reason:      reason,
		}
		if err := s.refunds.Create(tx, rf); err != nil {
			return err
		}

		if err := s.audit.Append(tx, &audit.Fact{
			ActorKind:  actor.auditKind(),
			ActorID:    actor.ID,
			Action:     "refund.requested",
			EntityType: "refund",
			EntityID:   rf.ID,
			Amount:     &rf.Amount,
			Currency:   &rf.Currency,
		}); err != nil {
			return err
		}

		if s.autoProcessable(p, ms) {
			if err := s.processLocked(tx, actor, rf, pledge); err != nil {
				return err
			}
		}

		out = rf

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("request refund: %w", err)
	}

	return out, nil
}

func (s *Service) autoProcessable(p *projects.Project, ms *projects.Milestone) bool {
	if ms != nil && ms.Status == projects.MilestoneRejected {
		return true
	}

	return p.Status == projects.StatusFailed || p.Status == projects.StatusCancelled
}

// ProcessRefund settles a Requested refund on the manual/admin path.
func (s *Service) ProcessRefund(ctx context.Context, actor Actor, refundID int64) (*refunds.Refund, error) {
	if actor.Role != RoleAdmin {
		return nil, fmt.Errorf("process refund: %w", ErrForbidden)
	}

	rf, err := s.refunds.Get(ctx, refundID)
	if err != nil {
		return nil, fmt.Errorf("process refund: %w", err)
	}
	pl, err := s.pledges.Get(ctx, rf.PledgeID)
	if err != nil {
		return nil, fmt.Errorf("process refund: %w", err)
	}

	var out *refunds.Refund

	err = pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.projects.LockForUpdate(tx, pl.ProjectID); err != nil {
			return err
		}

		refund, err := s.refunds.GetTx(tx, refundID)
		if err != nil {
			return err
		}
		if refund.Status != refunds.StatusRequested {
			return ErrAlreadyResolved
		}

		pledge, err := s.pledges.GetTx(tx, refund.PledgeID)
		if err != nil {
			return err
		}
		if pledge.Status != pledges.StatusActive {
			return ErrAlreadyRefunded
		}

		if err := s.processLocked(tx, actor, refund, pledge); err != nil {
			return err
		}
		out = refund

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("process refund: %w", err)
	}

	return out, nil
}

// RejectRefund declines a Requested refund without moving funds. Admin-only.
func (s *Service) RejectRefund(ctx context.Context, actor Actor, refundID int64) (*refunds.Refund, error) {
	if actor.Role != RoleAdmin {
		return nil, fmt.Errorf("reject refund: %w", ErrForbidden)
	}

	rf, err := s.refunds.Get(ctx, refundID)
	if err != nil {
		return nil, fmt.Errorf("reject refund: %w", err)
	}
	pl, err := s.pledges.Get(ctx, rf.PledgeID)
	if err != nil {
		return nil, fmt.Errorf("reject refund: %w", err)
	}

	var out *refunds.Refund

	err = pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.projects.LockForUpdate(tx, pl.ProjectID); err != nil {
			return err
		}

		if err := s.refunds.MarkRejected(tx, refundID); err != nil {
			return err
		}

		refund, err := s.refunds.GetTx(tx, refundID)
		if err != nil {
			return err
		}
		out = refund

		return s.audit.Append(tx, &audit.Fact{
			ActorKind:  actor.auditKind(),
			ActorID:    actor.ID,
			Action:     "refund.rejected",
			EntityType: "refund",
			EntityID:   refund.ID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("reject refund: %w", err)
	}

	return out, nil
}

// processLocked applies the refund effect under the caller's project lock:
// credit the backer's wallet with the pledge's unspent remainder, retire the
// pledge, resolve the refund, emit the audit fact. The remainder is re-read
// from the locked pledge row, not the request-time snapshot, so a release
// committed in between can never be paid out twice.
func (s *Service) processLocked(tx *sql.Tx, actor Actor, rf *refunds.Refund, pledge *pledges.Pledge) error {
	amount := pledge.Remaining

	if amount.IsPositive() {
		wallet, err := s.wallets.GetOrCreate(tx, wallets.OwnerBacker, pledge.BackerID, pledge.Currency)
		if err != nil {
			return err
		}
		if err := s.wallets.Credit(tx, wallet.ID, amount); err != nil {
			return err
		}
	}

	if err := s.pledges.MarkRefunded(tx, pledge.ID); err != nil {
		return err
	}

	if err := s.refunds.MarkProcessed(tx, rf.ID, amount); err != nil {
		return err
	}
	rf.Status = refunds.StatusProcessed
	rf.Amount = amount

	return s.audit.Append(tx, &audit.Fact{
		ActorKind:  actor.auditKind(),
		ActorID:    actor.ID,
		Action:     "refund.processed",
		EntityType: "refund",
		EntityID:   rf.ID,
		Amount:     &amount,
		Currency:   &rf.Currency,
		Metadata:   map[string]any{"pledge_id": pledge.ID},
	})
}
