package escrow

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fastprodman/escrowcore/internal/infra/pgutils"
	"github.com/fastprodman/escrowcore/internal/repos/audit"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
	"github.com/fastprodman/escrowcore/internal/repos/votes"
)

// OpenVoting moves a Pending milestone into Voting. Creator-only.
func (s *Service) OpenVoting(ctx context.Context, actor Actor, milestoneID int64) (*projects.Milestone, error) {
	ms, err := s.projects.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("open voting: %w", err)
	}

	var out *projects.Milestone

	err = pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		p, err := s.projects.LockForUpdate(tx, ms.ProjectID)
		if err != nil {
			return err
		}
		if p.CreatorID != actor.ID {
			return ErrForbidden
		}

		m, err := s.projects.GetMilestoneTx(tx, milestoneID)
		if err != nil {
			return err
		}
		if m.Status != projects.MilestonePending {
			return ErrInvalidState
		}

		if err := s.projects.SetMilestoneStatus(tx, m.ID, projects.MilestonePending, projects.MilestoneVoting); err != nil {
			return err
		}

		m, err = s.projects.GetMilestoneTx(tx, milestoneID)
		if err != nil {
			return err
		}
		out = m

		return s.audit.Append(tx, &audit.Fact{
			ActorKind:  actor.auditKind(),
			ActorID:    actor.ID,
			Action:     "voting.opened",
			EntityType: "milestone",
			EntityID:   m.ID,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("open voting: %w", err)
	}

	return out, nil
}

// VoteResult is the committed state after a vote: the upserted decision,
// the tally it produced, and the milestone (possibly transitioned).
type VoteResult struct {
	Vote      *votes.Vote
	Tally     votes.Tally
	Milestone *projects.Milestone
}

// CastVote upserts the backer's decision and re-evaluates the tally on the
// serialized vote set: approve majority transitions the milestone to
// Approved, reject majority to Rejected, a tie leaves it in Voting.
func (s *Service) CastVote(ctx context.Context, actor Actor, milestoneID int64, decision votes.Decision) (*VoteResult, error) {
	ms, err := s.projects.GetMilestone(ctx, milestoneID)
	if err != nil {
		return nil, fmt.Errorf("cast vote: %w", err)
	}

	var out VoteResult

	err = pgutils.WithSerializableTx(ctx, s.db, func(tx *sql.Tx) error {
		if _, err := s.projects.LockForUpdate(tx, ms.ProjectID); err != nil {
			return err
		}

		m, err := s.projects.GetMilestoneTx(tx, milestoneID)
		if err != nil {
			return err
		}
		if m.Status != projects.MilestoneVoting {
			return ErrVotingClosed
		}
		if s.votingExpired(m) {
			return fmt.Errorf("voting deadline passed: %w", ErrVotingClosed)
		}

		eligible, err := s.pledges.HasActive(tx, m.ProjectID, actor.ID)
		if err != nil {
			return err
		}
		if !eligible {
			return ErrNotEligible
		}

		v := &votes.Vote{MilestoneID: m.ID, BackerID: actor.ID, Decision: decision}
		if err := s.votes.Upsert(tx, v); err != nil {
			return err
		}

		tally, err := s.votes.Count(tx, m.ID)
		if err != nil {
			return err
		}

		if err := s.audit.Append(tx, &audit.Fact{
			ActorKind:  actor.auditKind(),
			ActorID:    actor.ID,
			Action:     "vote.cast",
			EntityType: "milestone",
			EntityID:   m.ID,
			Metadata:   map[string]any{"decision": string(decision)},
		}); err != nil {
			return err
		}

		if err := s.resolveTally(tx, actor, m, tally); err != nil {
			return err
		}

		m, err = s.projects.GetMilestoneTx(tx, m.ID)
		if err != nil {
			return err
		}

		out = VoteResult{Vote: v, Tally: tally, Milestone: m}

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("cast vote: %w", err)
	}

	return &out, nil
}

func (s *Service) votingExpired(m *projects.Milestone) bool {
	if s.cfg.VotingDeadline <= 0 || m.VotingOpenedAt == nil {
		return false
	}

	return time.Now().After(m.VotingOpenedAt.Add(s.cfg.VotingDeadline))
}

// resolveTally applies the majority rule. A tie (including zero votes)
// never resolves; the milestone stays in Voting until a later vote breaks
// it. Rejection makes the milestone's escrow share refundable through the
// refund path; it does not mint refund rows itself.
func (s *Service) resolveTally(tx *sql.Tx, actor Actor, m *projects.Milestone, tally votes.Tally) error {
	switch {
	case tally.Approve > tally.Reject:
		if err := s.projects.SetMilestoneStatus(tx, m.ID, projects.MilestoneVoting, projects.MilestoneApproved); err != nil {
			return err
		}

		return s.audit.Append(tx, &audit.Fact{
			ActorKind:  audit.ActorSystem,
			ActorID:    actor.ID,
			Action:     "milestone.approved",
			EntityType: "milestone",
			EntityID:   m.ID,
			Metadata:   map[string]any{"approve": tally.Approve, "reject": tally.Reject},
		})

	case tally.Reject > tally.Approve:
		if err := s.projects.SetMilestoneStatus(tx, m.ID, projects.MilestoneVoting, projects.MilestoneRejected); err != nil {
			return err
		}

		return s.audit.Append(tx, &audit.Fact{
			ActorKind:  audit.ActorSystem,
			ActorID:    actor.ID,
			Action:     "milestone.rejected",
			EntityType: "milestone",
			EntityID:   m.ID,
			Metadata:   map[string]any{"approve": tally.Approve, "reject": tally.Reject},
		})

	default:
		return nil
	}
}
