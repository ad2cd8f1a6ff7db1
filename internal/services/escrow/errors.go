package escrow

import (
	"errors"

	"github.com/fastprodman/escrowcore/internal/infra/pgutils"
	"github.com/fastprodman/escrowcore/internal/repos/pledges"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
	"github.com/fastprodman/escrowcore/internal/repos/refunds"
	"github.com/fastprodman/escrowcore/internal/repos/releases"
	"github.com/fastprodman/escrowcore/internal/repos/wallets"
)

// Business-rule outcomes. All are expected, recoverable, and never retried:
// a rule violation cannot succeed on retry.
var (
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrProjectNotActive = errors.New("project not active")
	ErrInvalidState     = errors.New("invalid state for requested transition")
	ErrVotingClosed     = errors.New("voting closed")
	ErrNotEligible      = errors.New("no active pledge backing this vote")
	ErrNotApproved      = errors.New("milestone not approved")
	ErrForbidden        = errors.New("forbidden")

	// Re-exported repo sentinels so callers match one taxonomy.
	ErrInsufficientFunds   = wallets.ErrInsufficientFunds
	ErrDuplicateOrderIndex = projects.ErrDuplicateOrderIndex
	ErrAlreadyReleased     = releases.ErrAlreadyReleased
	ErrAlreadyResolved     = refunds.ErrAlreadyResolved
	ErrAlreadyRefunded     = refunds.ErrAlreadyRefunded
	ErrNotActive           = pledges.ErrNotActive

	// ErrUnavailable wraps exhausted commit retries; state is unchanged.
	ErrUnavailable = pgutils.ErrUnavailable
)
