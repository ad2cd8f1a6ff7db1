package votes

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrInvalidDecision = errors.New("invalid vote decision")

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionApprove, DecisionReject:
		return Decision(s), nil
	default:
		return "", ErrInvalidDecision
	}
}

type Vote struct {
	MilestoneID int64
	BackerID    int64
	Decision    Decision
	CastAt      time.Time
}

// Tally is the vote count pair a milestone decision is computed from.
type Tally struct {
	Approve int
	Reject  int
}

type Votes interface {
	// Upsert records the backer's vote, replacing any earlier decision on
	// the same milestone.
	Upsert(tx *sql.Tx, v *Vote) error
	// Count tallies inside the caller's transaction so the decision is
	// computed on the serialized vote set.
	Count(tx *sql.Tx, milestoneID int64) (Tally, error)
	CountCtx(ctx context.Context, milestoneID int64) (Tally, error)
	ListByMilestone(ctx context.Context, milestoneID int64) ([]*Vote, error)
}
