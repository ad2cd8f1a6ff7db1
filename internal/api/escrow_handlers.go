package api

import (
	"net/http"
	"strconv"

	"github.com/fastprodman/escrowcore/internal/money"
	"github.com/fastprodman/escrowcore/internal/repos/audit"
	"github.com/fastprodman/escrowcore/internal/repos/votes"
	"github.com/fastprodman/escrowcore/internal/repos/wallets"
	"github.com/go-chi/chi/v5"
)

type createPledgeRequest struct {
	Amount     string `json:"amount"`
	Currency   string `json:"currency"`
	PaymentRef string `json:"paymentRef"`
}

// CreatePledgeHandler handles POST /projects/{projectId}/pledges.
func (h *HandlerProvider) CreatePledgeHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	projectID, err := parseIDParam(r, "projectId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req createPledgeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	amount, err := money.FromString(req.Amount, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := h.svc.CreatePledge(r.Context(), actor, projectID, amount, req.PaymentRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, renderPledge(p))
}

// ListPledgesHandler handles GET /projects/{projectId}/pledges.
func (h *HandlerProvider) ListPledgesHandler(w http.ResponseWriter, r *http.Request) {
	projectID, err := parseIDParam(r, "projectId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.svc.ListPledges(r.Context(), projectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]pledgeResponse, 0, len(list))
	for _, p := range list {
		out = append(out, renderPledge(p))
	}

	writeJSON(w, http.StatusOK, out)
}

// GetMilestoneHandler handles GET /milestones/{milestoneId}.
func (h *HandlerProvider) GetMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "milestoneId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.svc.GetMilestone(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"milestone": renderMilestone(view.Milestone),
		"votes": map[string]int{
			"approve": view.Tally.Approve,
			"reject":  view.Tally.Reject,
		},
	}
	if view.Release != nil {
		resp["release"] = map[string]any{
			"amount":     view.Release.Amount.StringFixed(2),
			"currency":   view.Release.Currency,
			"walletId":   view.Release.WalletID,
			"txRef":      view.Release.TxRef,
			"releasedAt": view.Release.ReleasedAt.UTC().Format(timeLayout),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// OpenVotingHandler handles POST /milestones/{milestoneId}/open-voting.
func (h *HandlerProvider) OpenVotingHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := parseIDParam(r, "milestoneId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.OpenVoting(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, renderMilestone(m))
}

type castVoteRequest struct {
	Decision string `json:"decision"`
}

// CastVoteHandler handles POST /milestones/{milestoneId}/votes.
func (h *HandlerProvider) CastVoteHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := parseIDParam(r, "milestoneId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req castVoteRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decision, err := votes.ParseDecision(req.Decision)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid decision")
		return
	}

	result, err := h.svc.CastVote(r.Context(), actor, id, decision)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"milestone": renderMilestone(result.Milestone),
		"decision":  string(result.Vote.Decision),
		"votes": map[string]int{
			"approve": result.Tally.Approve,
			"reject":  result.Tally.Reject,
		},
	})
}

// ListVotesHandler handles GET /milestones/{milestoneId}/votes.
func (h *HandlerProvider) ListVotesHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "milestoneId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.svc.ListVotes(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(list))
	for _, v := range list {
		out = append(out, map[string]any{
			"backerId": v.BackerID,
			"decision": string(v.Decision),
			"castAt":   v.CastAt.UTC().Format(timeLayout),
		})
	}

	writeJSON(w, http.StatusOK, out)
}

type releaseRequest struct {
	TxRef string `json:"txRef"`
}

// ReleaseMilestoneHandler handles POST /milestones/{milestoneId}/release.
func (h *HandlerProvider) ReleaseMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := parseIDParam(r, "milestoneId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req releaseRequest
	if r.ContentLength > 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	rel, err := h.svc.ReleaseMilestone(r.Context(), actor, id, req.TxRef)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"milestoneId": rel.MilestoneID,
		"amount":      rel.Amount.StringFixed(2),
		"currency":    rel.Currency,
		"walletId":    rel.WalletID,
		"txRef":       rel.TxRef,
		"releasedAt":  rel.ReleasedAt.UTC().Format(timeLayout),
	})
}

type requestRefundRequest struct {
	MilestoneID *int64 `json:"milestoneId"`
	Reason      string `json:"reason"`
}

// RequestRefundHandler handles POST /pledges/{pledgeId}/refunds.
func (h *HandlerProvider) RequestRefundHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	pledgeID, err := parseIDParam(r, "pledgeId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req requestRefundRequest
	if r.ContentLength > 0 {
		if err := decodeBody(w, r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}

	rf, err := h.svc.RequestRefund(r.Context(), actor, pledgeID, req.MilestoneID, req.Reason)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, renderRefund(rf))
}

// ListRefundsHandler handles GET /pledges/{pledgeId}/refunds.
func (h *HandlerProvider) ListRefundsHandler(w http.ResponseWriter, r *http.Request) {
	pledgeID, err := parseIDParam(r, "pledgeId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := h.svc.ListRefunds(r.Context(), pledgeID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]refundResponse, 0, len(list))
	for _, rf := range list {
		out = append(out, renderRefund(rf))
	}

	writeJSON(w, http.StatusOK, out)
}

// GetRefundHandler handles GET /refunds/{refundId}.
func (h *HandlerProvider) GetRefundHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "refundId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rf, err := h.svc.GetRefund(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, renderRefund(rf))
}

// ProcessRefundHandler handles POST /refunds/{refundId}/process.
func (h *HandlerProvider) ProcessRefundHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := parseIDParam(r, "refundId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rf, err := h.svc.ProcessRefund(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, renderRefund(rf))
}

// RejectRefundHandler handles POST /refunds/{refundId}/reject.
func (h *HandlerProvider) RejectRefundHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := parseIDParam(r, "refundId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	rf, err := h.svc.RejectRefund(r.Context(), actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, renderRefund(rf))
}

// GetWalletHandler handles GET /wallets/{ownerKind}/{ownerId}/{currency}.
func (h *HandlerProvider) GetWalletHandler(w http.ResponseWriter, r *http.Request) {
	kind, err := wallets.ParseOwnerKind(chi.URLParam(r, "ownerKind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ownerID, err := parseIDParam(r, "ownerId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	currency := chi.URLParam(r, "currency")

	wal, err := h.svc.GetWallet(r.Context(), kind, ownerID, currency)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ownerKind": string(wal.OwnerKind),
		"ownerId":   wal.OwnerID,
		"currency":  wal.Currency,
		"balance":   wal.Balance.StringFixed(2),
	})
}

// ReconcileHandler handles GET /reconciliation/{currency}. Admin only.
func (h *HandlerProvider) ReconcileHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	rep, err := h.svc.Reconcile(r.Context(), actor, chi.URLParam(r, "currency"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"currency":      rep.Currency,
		"walletTotal":   rep.WalletTotal.Amount.StringFixed(2),
		"releasedTotal": rep.ReleasedTotal.Amount.StringFixed(2),
		"refundedTotal": rep.RefundedTotal.Amount.StringFixed(2),
		"balanced":      rep.Balanced,
	})
}

// ListAuditHandler handles GET /audit with entityType/entityId/actorKind filters.
func (h *HandlerProvider) ListAuditHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{
		EntityType: q.Get("entityType"),
		ActorKind:  audit.ActorKind(q.Get("actorKind")),
	}
	if idStr := q.Get("entityId"); idStr != "" {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid entityId")
			return
		}
		filter.EntityID = id
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	facts, err := h.svc.ListAuditFacts(r.Context(), filter)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]auditFactResponse, 0, len(facts))
	for _, f := range facts {
		out = append(out, renderFact(f))
	}

	writeJSON(w, http.StatusOK, out)
}
