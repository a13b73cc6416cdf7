package handlers

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
	"fundtrace/internal/middleware"
)

type signalsRequest struct {
	AttendanceRate    *decimal.Decimal `json:"attendance_rate"`
	FamilyIncomeScore *decimal.Decimal `json:"family_income_score"`
	ParentStatusScore *decimal.Decimal `json:"parent_status_score"`
}

// requireScores rejects absent scores; a missing score would otherwise count
// as zero, the worst possible value.
func requireScores(fields ...scoreField) error {
	out := &domain.ValidationError{}
	for _, f := range fields {
		if f.value == nil {
			out.Fields = append(out.Fields, domain.FieldError{Field: f.name, Rule: "required"})
		}
	}
	if len(out.Fields) > 0 {
		return out
	}
	return nil
}

type scoreField struct {
	name  string
	value *decimal.Decimal
}

func (a *App) RiskCompute(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req signalsRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := requireScores(
		scoreField{"attendance_rate", req.AttendanceRate},
		scoreField{"family_income_score", req.FamilyIncomeScore},
		scoreField{"parent_status_score", req.ParentStatusScore},
	); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Risk.ComputeRisk(r.Context(), id, domain.RiskSignals{
		AttendanceRate:    *req.AttendanceRate,
		FamilyIncomeScore: *req.FamilyIncomeScore,
		ParentStatusScore: *req.ParentStatusScore,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toPrediction(res.Prediction, res.Diagnostics))
}

type attendanceRequest struct {
	Date    string `json:"date"`
	Present bool   `json:"present"`
}

func (a *App) RiskAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req attendanceRequest
	if !a.decode(w, r, &req) {
		return
	}
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		a.fail(w, r, domain.NewValidationError("date", "datetime=2006-01-02"))
		return
	}
	res, err := a.Risk.RecordAttendance(r.Context(), id, date, req.Present)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toPrediction(res.Prediction, res.Diagnostics))
}

type familyRequest struct {
	FamilyIncomeScore *decimal.Decimal `json:"family_income_score"`
	ParentStatusScore *decimal.Decimal `json:"parent_status_score"`
}

func (a *App) RiskFamily(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req familyRequest
	if !a.decode(w, r, &req) {
		return
	}
	if err := requireScores(
		scoreField{"family_income_score", req.FamilyIncomeScore},
		scoreField{"parent_status_score", req.ParentStatusScore},
	); err != nil {
		a.fail(w, r, err)
		return
	}
	res, err := a.Risk.UpdateFamilyData(r.Context(), id, *req.FamilyIncomeScore, *req.ParentStatusScore)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toPrediction(res.Prediction, res.Diagnostics))
}

type noteRequest struct {
	Text string `json:"text"`
}

func (a *App) RiskNote(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	var req noteRequest
	if !a.decode(w, r, &req) {
		return
	}
	p, err := a.Risk.AddInterventionNote(r.Context(), id, middleware.ActorFromContext(r.Context()), req.Text)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, toPrediction(p, nil))
}

func (a *App) RiskGet(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	p, err := a.Risk.Prediction(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toPrediction(p, nil))
}
