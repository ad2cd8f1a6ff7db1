package api

import (
	"net/http"

	"github.com/fastprodman/escrowcore/internal/services/escrow"
	"github.com/go-chi/chi/v5"
)

// NewRouter registers the escrow operation surface.
func NewRouter(svc *escrow.Service) http.Handler {
	h := NewHandler(svc)
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/projects", func(r chi.Router) {
		r.Post("/", h.CreateProjectHandler)
		r.Get("/", h.ListProjectsHandler)
		r.Get("/{projectId}", h.GetProjectHandler)
		r.Get("/{projectId}/stats", h.GetProjectStatsHandler)
		r.Post("/{projectId}/activate", h.ActivateProjectHandler)
		r.Post("/{projectId}/cancel", h.CancelProjectHandler)
		r.Post("/{projectId}/close", h.CloseProjectHandler)
		r.Post("/{projectId}/milestones", h.AddMilestoneHandler)
		r.Post("/{projectId}/pledges", h.CreatePledgeHandler)
		r.Get("/{projectId}/pledges", h.ListPledgesHandler)
	})

	r.Route("/milestones", func(r chi.Router) {
		r.Get("/{milestoneId}", h.GetMilestoneHandler)
		r.Post("/{milestoneId}/open-voting", h.OpenVotingHandler)
		r.Post("/{milestoneId}/votes", h.CastVoteHandler)
		r.Get("/{milestoneId}/votes", h.ListVotesHandler)
		r.Post("/{milestoneId}/release", h.ReleaseMilestoneHandler)
	})

	r.Post("/pledges/{pledgeId}/refunds", h.RequestRefundHandler)
	r.Get("/pledges/{pledgeId}/refunds", h.ListRefundsHandler)
	r.Get("/refunds/{refundId}", h.GetRefundHandler)
	r.Post("/refunds/{refundId}/process", h.ProcessRefundHandler)
	r.Post("/refunds/{refundId}/reject", h.RejectRefundHandler)

	r.Get("/wallets/{ownerKind}/{ownerId}/{currency}", h.GetWalletHandler)
	r.Get("/reconciliation/{currency}", h.ReconcileHandler)
	r.Get("/audit", h.ListAuditHandler)

	return r
}
