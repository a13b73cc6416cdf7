package handlers

import (
	"net/http"

	"fundtrace/internal/ledger"
	"fundtrace/internal/middleware"
)

func (a *App) ProjectSchoolsSelect(w http.ResponseWriter, r *http.Request) {
	projectID, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req ledger.ParticipationInput
	if !a.decode(w, r, &req) {
		return
	}
	req.ProjectID = projectID
	ps, err := a.Ledger.SelectSchool(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, map[string]any{
		"project_id":       ps.ProjectID,
		"school_id":        ps.SchoolID,
		"allocated_budget": ps.AllocatedBudget,
		"selected_at":      ps.SelectedAt,
	})
}

func (a *App) UtilizationsCreate(w http.ResponseWriter, r *http.Request) {
	var req ledger.UtilizationInput
	if !a.decode(w, r, &req) {
		return
	}
	u, err := a.Ledger.RecordUtilization(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toUtilization(u))
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note"`
}

// UtilizationsReview records the authenticated subject as reviewer.
func (a *App) UtilizationsReview(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req reviewRequest
	if !a.decode(w, r, &req) {
		return
	}
	u, err := a.Ledger.ReviewUtilization(r.Context(), id, ledger.Review{
		ReviewerID: middleware.ActorFromContext(r.Context()),
		Approve:    req.Approve,
		Note:       req.Note,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toUtilization(u))
}
