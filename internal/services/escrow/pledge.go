package escrow

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fastprodman/escrowcore/internal/infra/pgutils"
	"github.com/fastprodman/escrowcore/internal/money"
	"github.com/fastprodman/escrowcore/internal/repos/audit"
	"github.com/fastprodman/escrowcore/internal/repos/pledges"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
)

// CreatePledge records the actor's commitment to an Active project. No
// wallet moves: the amount is escrowed as the pledge's unspent remainder,
// and payment capture belongs to the settlement collaborator (paymentRef
// correlates the two ledgers).
func (s *Service) CreatePledge(ctx context.Context, actor Actor, projectID int64, amount money.Money, paymentRef string) (*pledges.Pledge, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("create pledge: %w", ErrInvalidAmount)
	}

	p := &pledges.Pledge{
		ProjectID:  projectID,
		BackerID:   actor.ID,
		Amount:     amount.Amount,
		Remaining:  amount.Amount,
		Currency:   amount.Currency,
		Status:     pledges.StatusActive,
		PaymentRef: paymentRef,
	}

	err := pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		proj, err := s.projects.LockForUpdate(tx, projectID)
		if err != nil {
			return err
		}
		if proj.Status != projects.StatusActive {
			return ErrProjectNotActive
		}
		if amount.Currency != proj.Currency {
			return fmt.Errorf("pledge currency %s vs project %s: %w",
				amount.Currency, proj.Currency, money.ErrCurrencyMismatch)
		}

		if err := s.pledges.Create(tx, p); err != nil {
			return err
		}

		return s.audit.Append(tx, &audit.Fact{
			ActorKind:  actor.auditKind(),
			ActorID:    actor.ID,
			Action:     "pledge.created",
			EntityType: "pledge",
			EntityID:   p.ID,
			Amount:     &p.Amount,
			Currency:   &p.Currency,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create pledge: %w", err)
	}

	return p, nil
}
