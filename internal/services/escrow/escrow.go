package escrow

import (
	"database/sql"
	"time"

	"github.com/fastprodman/escrowcore/internal/repos/audit"
	pgaudit "github.com/fastprodman/escrowcore/internal/repos/audit/postgres"
	"github.com/fastprodman/escrowcore/internal/repos/pledges"
	pgpledges "github.com/fastprodman/escrowcore/internal/repos/pledges/postgres"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
	pgprojects "github.com/fastprodman/escrowcore/internal/repos/projects/postgres"
	"github.com/fastprodman/escrowcore/internal/repos/refunds"
	pgrefunds "github.com/fastprodman/escrowcore/internal/repos/refunds/postgres"
	"github.com/fastprodman/escrowcore/internal/repos/releases"
	pgreleases "github.com/fastprodman/escrowcore/internal/repos/releases/postgres"
	"github.com/fastprodman/escrowcore/internal/repos/votes"
	pgvotes "github.com/fastprodman/escrowcore/internal/repos/votes/postgres"
	"github.com/fastprodman/escrowcore/internal/repos/wallets"
	pgwallets "github.com/fastprodman/escrowcore/internal/repos/wallets/postgres"
)

// Role is the identity collaborator's claim. The service trusts the claim
// but re-verifies row-level preconditions (project ownership, pledge
// ownership) against its own data.
type Role string

const (
	RoleCreator Role = "creator"
	RoleBacker  Role = "backer"
	RoleAdmin   Role = "admin"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   int64
	Role Role
}

func (a Actor) auditKind() audit.ActorKind {
	switch a.Role {
	case RoleCreator:
		return audit.ActorCreator
	case RoleBacker:
		return audit.ActorBacker
	case RoleAdmin:
		return audit.ActorAdmin
	default:
		return audit.ActorSystem
	}
}

// Config carries escrow policy parameters.
type Config struct {
	// VotingDeadline bounds how long a milestone accepts votes after
	// voting opens. Zero disables the deadline; a permanently tied
	// milestone then stays in Voting indefinitely.
	VotingDeadline time.Duration
}

// Service is the escrow custody core. Every mutating operation runs as one
// serializable transaction that locks the project aggregate row before
// checking preconditions, so transitions on an aggregate never interleave.
type Service struct {
	db  *sql.DB
	cfg Config

	projects projects.Projects
	pledges  pledges.Pledges
	votes    votes.Votes
	wallets  wallets.Wallets
	releases releases.Releases
	refunds  refunds.Refunds
	audit    audit.Audit
}

func New(db *sql.DB, cfg Config) *Service {
	return &Service{
		db:       db,
		cfg:      cfg,
		projects: pgprojects.New(db),
		pledges:  pgpledges.New(db),
		votes:    pgvotes.New(db),
		wallets:  pgwallets.New(db),
		releases: pgreleases.New(db),
		refunds:  pgrefunds.New(db),
		audit:    pgaudit.New(db),
	}
}
