package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/fastprodman/escrowcore/internal/money"
	"github.com/fastprodman/escrowcore/internal/repos/audit"
	"github.com/fastprodman/escrowcore/internal/repos/pledges"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
	"github.com/fastprodman/escrowcore/internal/repos/refunds"
	"github.com/fastprodman/escrowcore/internal/repos/releases"
	"github.com/fastprodman/escrowcore/internal/repos/wallets"
	"github.com/fastprodman/escrowcore/internal/services/escrow"
	"github.com/go-chi/chi/v5"
)

// HandlerProvider wraps the escrow Service and exposes HTTP handlers.
type HandlerProvider struct {
	svc *escrow.Service
}

// NewHandler returns a new Handler provider.
func NewHandler(svc *escrow.Service) *HandlerProvider {
	return &HandlerProvider{svc: svc}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	err := json.NewEncoder(w).Encode(v)
	if err != nil {
		slog.Error("failed to encode JSON response", "error", err)

		http.Error(w, `{"error":"internal json encode failure"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps business-rule outcomes onto HTTP statuses. Anything
// unmatched is an infrastructure failure and logs as a 500.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, escrow.ErrInvalidAmount),
		errors.Is(err, escrow.ErrProjectNotActive),
		errors.Is(err, escrow.ErrInvalidState),
		errors.Is(err, escrow.ErrVotingClosed),
		errors.Is(err, escrow.ErrNotEligible),
		errors.Is(err, escrow.ErrNotApproved),
		errors.Is(err, escrow.ErrNotActive),
		errors.Is(err, money.ErrCurrencyMismatch),
		errors.Is(err, money.ErrInvalidCurrency):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, escrow.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, projects.ErrProjectNotFound),
		errors.Is(err, projects.ErrMilestoneNotFound),
		errors.Is(err, pledges.ErrPledgeNotFound),
		errors.Is(err, refunds.ErrRefundNotFound),
		errors.Is(err, releases.ErrReleaseNotFound),
		errors.Is(err, wallets.ErrWalletNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, escrow.ErrAlreadyReleased),
		errors.Is(err, escrow.ErrAlreadyResolved),
		errors.Is(err, escrow.ErrAlreadyRefunded),
		errors.Is(err, projects.ErrDuplicateOrderIndex),
		errors.Is(err, projects.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, escrow.ErrInsufficientFunds):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, escrow.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "temporarily unavailable")
	default:
		slog.Error("unhandled error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func parseIDParam(r *http.Request, name string) (int64, error) {
	idStr := chi.URLParam(r, name)
	if idStr == "" {
		return 0, fmt.Errorf("missing %s", name)
	}

	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}

	return id, nil
}

// actorFromRequest reads the identity collaborator's claim. The claim is
// trusted as authentication; role-specific preconditions are re-checked in
// the core against its own rows.
func actorFromRequest(r *http.Request) (escrow.Actor, error) {
	idStr := strings.TrimSpace(r.Header.Get("X-Actor-Id"))
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil || id <= 0 {
		return escrow.Actor{}, fmt.Errorf("invalid X-Actor-Id")
	}

	switch role := escrow.Role(strings.ToLower(strings.TrimSpace(r.Header.Get("X-Actor-Role")))); role {
	case escrow.RoleCreator, escrow.RoleBacker, escrow.RoleAdmin:
		return escrow.Actor{ID: id, Role: role}, nil
	default:
		return escrow.Actor{}, fmt.Errorf("invalid X-Actor-Role")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB cap
	defer r.Body.Close()

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	return dec.Decode(dst)
}

// --- Response shapes ---

const timeLayout = "2006-01-02T15:04:05Z07:00"

type projectResponse struct {
	ID          int64  `json:"id"`
	CreatorID   int64  `json:"creatorId"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Goal        string `json:"goal"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	StartAt     string `json:"startAt"`
	EndAt       string `json:"endAt"`
}

func renderProject(p *projects.Project) projectResponse {
	return projectResponse{
		ID:          p.ID,
		CreatorID:   p.CreatorID,
		Title:       p.Title,
		Description: p.Description,
		Goal:        p.GoalAmount.StringFixed(2),
		Currency:    p.Currency,
		Status:      string(p.Status),
		StartAt:     p.StartAt.UTC().Format(timeLayout),
		EndAt:       p.EndAt.UTC().Format(timeLayout),
	}
}

type milestoneResponse struct {
	ID         int64  `json:"id"`
	ProjectID  int64  `json:"projectId"`
	Title      string `json:"title"`
	Target     string `json:"target"`
	OrderIndex int    `json:"orderIndex"`
	Status     string `json:"status"`
}

func renderMilestone(m *projects.Milestone) milestoneResponse {
	return milestoneResponse{
		ID:         m.ID,
		ProjectID:  m.ProjectID,
		Title:      m.Title,
		Target:     m.TargetAmount.StringFixed(2),
		OrderIndex: m.OrderIndex,
		Status:     string(m.Status),
	}
}

type pledgeResponse struct {
	ID         int64  `json:"id"`
	ProjectID  int64  `json:"projectId"`
	BackerID   int64  `json:"backerId"`
	Amount     string `json:"amount"`
	Remaining  string `json:"remaining"`
	Currency   string `json:"currency"`
	Status     string `json:"status"`
	PaymentRef string `json:"paymentRef,omitempty"`
}

func renderPledge(p *pledges.Pledge) pledgeResponse {
	return pledgeResponse{
		ID:         p.ID,
		ProjectID:  p.ProjectID,
		BackerID:   p.BackerID,
		Amount:     p.Amount.StringFixed(2),
		Remaining:  p.Remaining.StringFixed(2),
		Currency:   p.Currency,
		Status:     string(p.Status),
		PaymentRef: p.PaymentRef,
	}
}

type refundResponse struct {
	ID          int64  `json:"id"`
	PledgeID    int64  `json:"pledgeId"`
	MilestoneID *int64 `json:"milestoneId,omitempty"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
	Reason      string `json:"reason,omitempty"`
}

func renderRefund(rf *refunds.Refund) refundResponse {
	return refundResponse{
		ID:          rf.ID,
		PledgeID:    rf.PledgeID,
		MilestoneID: rf.MilestoneID,
		Amount:      rf.Amount.StringFixed(2),
		Currency:    rf.Currency,
		Status:      string(rf.Status),
		Reason:      rf.Reason,
	}
}

type auditFactResponse struct {
	ID         string         `json:"id"`
	ActorKind  string         `json:"actorKind"`
	ActorID    int64          `json:"actorId"`
	Action     string         `json:"action"`
	EntityType string         `json:"entityType"`
	EntityID   int64          `json:"entityId"`
	Amount     *string        `json:"amount,omitempty"`
	Currency   *string        `json:"currency,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  string         `json:"createdAt"`
}

func renderFact(f *audit.Fact) auditFactResponse {
	out := auditFactResponse{
		ID:         f.ID.String(),
		ActorKind:  string(f.ActorKind),
		ActorID:    f.ActorID,
		Action:     f.Action,
		EntityType: f.EntityType,
		EntityID:   f.EntityID,
		Currency:   f.Currency,
		Metadata:   f.Metadata,
		CreatedAt:  f.CreatedAt.UTC().Format(timeLayout),
	}
	if f.Amount != nil {
		s := f.Amount.StringFixed(2)
		out.Amount = &s
	}

	return out
}
