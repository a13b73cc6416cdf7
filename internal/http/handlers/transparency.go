package handlers

import (
	"net/http"

	"fundtrace/internal/middleware"
	"fundtrace/internal/transparency"
)

func (a *App) TransparencyAttach(w http.ResponseWriter, r *http.Request) {
	utilizationID, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req transparency.EvidenceInput
	if !a.decode(w, r, &req) {
		return
	}
	req.UtilizationID = utilizationID
	// Verification goes through its own endpoint so it is always attributed.
	req.VerifierID = ""
	t, err := a.Verifier.AttachEvidence(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toTransparency(t))
}

func (a *App) TransparencyVerify(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	t, err := a.Verifier.Verify(r.Context(), id, middleware.ActorFromContext(r.Context()))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toTransparency(t))
}

func (a *App) TransparencyPublish(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	t, err := a.Verifier.Publish(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toTransparency(t))
}

// TransparencyGet serves published records only.
func (a *App) TransparencyGet(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	t, err := a.Reader.GetTransparency(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !t.IsPublic {
		a.error(w, http.StatusNotFound, "not_found", "transparency record not published")
		return
	}
	a.json(w, http.StatusOK, toTransparency(t))
}
