package api

import (
	"net/http"
	"time"

	"github.com/fastprodman/escrowcore/internal/money"
	"github.com/fastprodman/escrowcore/internal/repos/projects"
	"github.com/fastprodman/escrowcore/internal/services/escrow"
)

type createProjectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Goal        string `json:"goal"`
	Currency    string `json:"currency"`
	StartAt     string `json:"startAt"`
	EndAt       string `json:"endAt"`
}

// CreateProjectHandler handles POST /projects.
func (h *HandlerProvider) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	var req createProjectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	goal, err := money.FromString(req.Goal, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	startAt, err := time.Parse(timeLayout, req.StartAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid startAt")
		return
	}
	endAt, err := time.Parse(timeLayout, req.EndAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid endAt")
		return
	}

	p, err := h.svc.CreateProject(r.Context(), actor, escrow.NewProjectParams{
		Title:       req.Title,
		Description: req.Description,
		Goal:        goal,
		StartAt:     startAt,
		EndAt:       endAt,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, renderProject(p))
}

// ListProjectsHandler handles GET /projects?status=active.
func (h *HandlerProvider) ListProjectsHandler(w http.ResponseWriter, r *http.Request) {
	status := projects.Status(r.URL.Query().Get("status"))

	list, err := h.svc.ListProjects(r.Context(), status)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	out := make([]projectResponse, 0, len(list))
	for _, p := range list {
		out = append(out, renderProject(p))
	}

	writeJSON(w, http.StatusOK, out)
}

// GetProjectHandler handles GET /projects/{projectId}.
func (h *HandlerProvider) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "projectId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	view, err := h.svc.GetProject(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	milestones := make([]milestoneResponse, 0, len(view.Milestones))
	for _, m := range view.Milestones {
		milestones = append(milestones, renderMilestone(m))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"project":         renderProject(view.Project),
		"milestones":      milestones,
		"totalPledged":    view.TotalPledged.Amount.StringFixed(2),
		"escrowRemaining": view.EscrowRemaining.Amount.StringFixed(2),
		"progressPercent": view.ProgressPercent,
	})
}

// GetProjectStatsHandler handles GET /projects/{projectId}/stats.
func (h *HandlerProvider) GetProjectStatsHandler(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "projectId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	stats, err := h.svc.GetProjectStats(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	counts := make(map[string]int, len(stats.MilestoneCounts))
	for s, n := range stats.MilestoneCounts {
		counts[string(s)] = n
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"totalPledged":    stats.TotalPledged.Amount.StringFixed(2),
		"currency":        stats.TotalPledged.Currency,
		"progressPercent": stats.ProgressPercent,
		"activePledges":   stats.ActivePledges,
		"distinctBackers": stats.DistinctBackers,
		"milestones":      counts,
	})
}

func (h *HandlerProvider) projectTransition(w http.ResponseWriter, r *http.Request,
	op func(actor escrow.Actor, id int64) (*projects.Project, error),
) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := parseIDParam(r, "projectId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	p, err := op(actor, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, renderProject(p))
}

// ActivateProjectHandler handles POST /projects/{projectId}/activate.
func (h *HandlerProvider) ActivateProjectHandler(w http.ResponseWriter, r *http.Request) {
	h.projectTransition(w, r, func(actor escrow.Actor, id int64) (*projects.Project, error) {
		return h.svc.ActivateProject(r.Context(), actor, id)
	})
}

// CancelProjectHandler handles POST /projects/{projectId}/cancel.
func (h *HandlerProvider) CancelProjectHandler(w http.ResponseWriter, r *http.Request) {
	h.projectTransition(w, r, func(actor escrow.Actor, id int64) (*projects.Project, error) {
		return h.svc.CancelProject(r.Context(), actor, id)
	})
}

// CloseProjectHandler handles POST /projects/{projectId}/close.
func (h *HandlerProvider) CloseProjectHandler(w http.ResponseWriter, r *http.Request) {
	h.projectTransition(w, r, func(actor escrow.Actor, id int64) (*projects.Project, error) {
		return h.svc.CloseProject(r.Context(), actor, id)
	})
}

type addMilestoneRequest struct {
	Title      string `json:"title"`
	Target     string `json:"target"`
	Currency   string `json:"currency"`
	OrderIndex int    `json:"orderIndex"`
}

// AddMilestoneHandler handles POST /projects/{projectId}/milestones.
func (h *HandlerProvider) AddMilestoneHandler(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}

	id, err := parseIDParam(r, "projectId")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req addMilestoneRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target, err := money.FromString(req.Target, req.Currency)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.AddMilestone(r.Context(), actor, id, req.Title, target, req.OrderIndex)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, renderMilestone(m))
}
