package escrow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fastprodman/escrowcore/internal/infra/pgutils"
	"github.com/fastprodman/escrowcore/internal/money"
	"github.com/fastprodman/escrowcore/internal/repos/audit"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
)

// NewProjectParams describes a project to create. Projects start in Draft;
// activation is a separate creator action.
type NewProjectParams struct {
	Title       string
	Description string
	Goal        money.Money
	StartAt     time.Time
	EndAt       time.Time
}

func (s *Service) CreateProject(ctx context.Context, actor Actor, params NewProjectParams) (*projects.Project, error) {
	if params.Goal.Amount.IsNegative() {
		return nil, fmt.Errorf("goal: %w", ErrInvalidAmount)
	}
	if !params.EndAt.After(params.StartAt) {
		return nil, fmt.Errorf("funding window end must follow start: %w", ErrInvalidState)
	}

	p := &projects.Project{
		CreatorID:   actor.ID,
		Title:       params.Title,
		Description: params.Description,
		GoalAmount:  params.Goal.Amount,
		Currency:    params.Goal.Currency,
		Status:      projects.StatusDraft,
		StartAt:     params.StartAt,
		EndAt:       params.EndAt,
	}

	err := pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := s.projects.Create(tx, p); err != nil {
			return err
		}

		return s.audit.Append(tx, &audit.Fact{
			ActorKind:  actor.auditKind(),
			ActorID:    actor.ID,
			Action:     "project.created",
			EntityType: "project",
			EntityID:   p.ID,
			Amount:     &p.GoalAmount,
			Currency:   &p.Currency,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}

	return p, nil
}

// AddMilestone appends a milestone to a Draft or Active project. OrderIndex
// uniqueness within the project is enforced by the store.
func (s *Service) AddMilestone(ctx context.Context, actor Actor, projectID int64, title string, target money.Money, orderIndex int) (*projects.Milestone, error) {
	if !target.IsPositive() {
		return nil, fmt.Errorf("target: %w", ErrInvalidAmount)
	}

	m := &projects.Milestone{
		ProjectID:    projectID,
		Title:        title,
		TargetAmount: target.Amount,
		OrderIndex:   orderIndex,
		Status:       projects.MilestonePending,
	}

	err := pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.projects.LockForUpdate(tx, projectID)
		if err != nil {
			return err
		}
		if p.CreatorID != actor.ID && actor.Role != RoleAdmin {
			return ErrForbidden
		}
		if p.Status != projects.StatusDraft && p.Status != projects.StatusActive {
			return ErrInvalidState
		}
		if target.Currency != p.Currency {
			return fmt.Errorf("target currency %s vs project %s: %w", target.Currency, p.Currency, ErrInvalidAmount)
		}

		if err := s.projects.CreateMilestone(tx, m); err != nil {
			return err
		}

		return s.audit.Append(tx, &audit.Fact{
			ActorKind:  actor.auditKind(),
			ActorID:    actor.ID,
			Action:     "milestone.added",
			EntityType: "milestone",
			EntityID:   m.ID,
			Amount:     &m.TargetAmount,
			Currency:   &p.Currency,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("add milestone: %w", err)
	}

	return m, nil
}

// ActivateProject opens a Draft project for pledging. Creator-only.
func (s *Service) ActivateProject(ctx context.Context, actor Actor, projectID int64) (*projects.Project, error) {
	return s.transitionProject(ctx, actor, projectID, "project.activated",
		func(p *projects.Project) (projects.Status, error) {
			if p.CreatorID != actor.ID {
				return "", ErrForbidden
			}
			if p.Status != projects.StatusDraft {
				return "", ErrInvalidState
			}
			return projects.StatusActive, nil
		})
}

// CancelProject terminates an Active project. Creator or admin. Escrowed
// pledges become refundable: refund requests against a cancelled project
// auto-process.
func (s *Service) CancelProject(ctx context.Context, actor Actor, projectID int64) (*projects.Project, error) {
	return s.transitionProject(ctx, actor, projectID, "project.cancelled",
		func(p *projects.Project) (projects.Status, error) {
			if p.CreatorID != actor.ID && actor.Role != RoleAdmin {
				return "", ErrForbidden
			}
			if p.Status != projects.StatusActive {
				return "", ErrInvalidState
			}
			return projects.StatusCancelled, nil
		})
}

// CloseProject derives the terminal status of an Active project whose
// funding window has ended: Funded when the goal is met and every milestone
// is Paid or Approved, Failed otherwise. Admin-only.
func (s *Service) CloseProject(ctx context.Context, actor Actor, projectID int64) (*projects.Project, error) {
	if actor.Role != RoleAdmin {
		return nil, fmt.Errorf("close project: %w", ErrForbidden)
	}

	var out *projects.Project

	err := pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.projects.LockForUpdate(tx, projectID)
		if err != nil {
			return err
		}
		if p.Status != projects.StatusActive {
			return ErrInvalidState
		}
		if time.Now().Before(p.EndAt) {
			return fmt.Errorf("funding window still open: %w", ErrInvalidState)
		}

		to, err := s.deriveClosedStatus(tx, p)
		if err != nil {
			return err
		}

		if err := s.projects.SetStatus(tx, p.ID, p.Status, to); err != nil {
			return err
		}
		p.Status = to
		out = p

		action := "project.failed"
		if to == projects.StatusFunded {
			action = "project.funded"
		}

		return s.audit.Append(tx, &audit.Fact{
			ActorKind:  actor.auditKind(),
			ActorID:    actor.ID,
			Action:     action,
			EntityType: "project",
			EntityID:   p.ID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("close project: %w", err)
	}

	return out, nil
}

func (s *Service) deriveClosedStatus(tx *sql.Tx, p *projects.Project) (projects.Status, error) {
	pledged, err := s.pledges.SumActiveAmountTx(tx, p.ID)
	if err != nil {
		return "", err
	}
	if pledged.Cmp(p.GoalAmount) < 0 {
		return projects.StatusFailed, nil
	}

	outside, err := s.projects.CountMilestonesOutside(tx, p.ID,
		projects.MilestonePaid, projects.MilestoneApproved)
	if err != nil {
		return "", err
	}
	if outside > 0 {
		return projects.StatusFailed, nil
	}

	return projects.StatusFunded, nil
}

func (s *Service) transitionProject(ctx context.Context, actor Actor, projectID int64, action string,
	decide func(*projects.Project) (projects.Status, error),
) (*projects.Project, error) {
	var out *projects.Project

	err := pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.projects.LockForUpdate(tx, projectID)
		if err != nil {
			return err
		}

		to, err := decide(p)
		if err != nil {
			return err
		}

		if err := s.projects.SetStatus(tx, p.ID, p.Status, to); err != nil {
			return err
		}
		p.Status = to
		out = p

		return s.audit.Append(tx, &audit.Fact{
			ActorKind:  actor.auditKind(),
			ActorID:    actor.ID,
			Action:     action,
			EntityType: "project",
			EntityID:   p.ID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", action, err)
	}

	return out, nil
}
