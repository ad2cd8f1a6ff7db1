package projects

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrProjectNotFound     = errors.New("project not found")
	ErrMilestoneNotFound   = errors.New("milestone not found")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrDuplicateOrderIndex = errors.New("duplicate milestone order index")
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusFunded    Status = "funded"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

type MilestoneStatus string

const (
	MilestonePending  MilestoneStatus = "pending"
	MilestoneVoting   MilestoneStatus = "voting"
	MilestoneApproved MilestoneStatus = "approved"
	MilestoneRejected MilestoneStatus = "rejected"
	MilestonePaid     MilestoneStatus = "paid"
)

type Project struct {
	ID          int64
	CreatorID   int64
	Title       string
	Description string
	GoalAmount  decimal.Decimal
	Currency    string
	Status      Status
	StartAt     time.Time
	EndAt       time.Time
	CreatedAt   time.Time
}

type Milestone struct {
	ID             int64
	ProjectID      int64
	Title          string
	TargetAmount   decimal.Decimal
	OrderIndex     int
	Status         MilestoneStatus
	VotingOpenedAt *time.Time
	CreatedAt      time.Time
}

// Projects stores the project aggregate root and its milestones.
// LockForUpdate on the project row is what serializes every custody
// transition touching the aggregate.
type Projects interface {
	Create(tx *sql.Tx, p *Project) error
	Get(ctx context.Context, id int64) (*Project, error)
	LockForUpdate(tx *sql.Tx, id int64) (*Project, error)
	List(ctx context.Context, status Status) ([]*Project, error)
	// SetStatus moves id from 'from' to 'to', failing ErrInvalidTransition
	// if the row is no longer in 'from'.
	SetStatus(tx *sql.Tx, id int64, from, to Status) error

	CreateMilestone(tx *sql.Tx, m *Milestone) error
	GetMilestone(ctx context.Context, id int64) (*Milestone, error)
	GetMilestoneTx(tx *sql.Tx, id int64) (*Milestone, error)
	ListMilestones(ctx context.Context, projectID int64) ([]*Milestone, error)
	SetMilestoneStatus(tx *sql.Tx, id int64, from, to MilestoneStatus) error
	// CountMilestonesOutside counts the project's milestones whose status
	// is not in the given set. Zero means every milestone is inside it.
	CountMilestonesOutside(tx *sql.Tx, projectID int64, statuses ...MilestoneStatus) (int, error)
	MilestoneStatusCounts(ctx context.Context, projectID int64) (map[MilestoneStatus]int, error)
}
