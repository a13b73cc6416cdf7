package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"fundtrace/pkg/zip"
)

type reportSummary struct {
	ProjectID       int64           `json:"project_id"`
	NgoID           int64           `json:"ngo_id"`
	Title           string          `json:"title"`
	AllocatedBudget decimal.Decimal `json:"allocated_budget"`
	Published       decimal.Decimal `json:"published_spend"`
	Records         int             `json:"records"`
	GeneratedAt     time.Time       `json:"generated_at"`
}

type reportEntry struct {
	Utilization  utilizationResponse  `json:"utilization"`
	Transparency transparencyResponse `json:"transparency"`
}

// ProjectReport streams a zip with the project's published evidence: a
// summary.json plus one file per utilization.
func (a *App) ProjectReport(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	report, err := a.Verifier.ProjectReport(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	now := a.now()
	summary, err := json.MarshalIndent(reportSummary{
		ProjectID:       report.Project.ID,
		NgoID:           report.Project.NgoID,
		Title:           report.Project.Title,
		AllocatedBudget: report.Project.AllocatedBudget,
		Published:       report.Published,
		Records:         len(report.Entries),
		GeneratedAt:     now,
	}, "", "  ")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	files := []zip.File{{Name: "summary.json", Data: summary}}
	for i := range report.Entries {
		e := &report.Entries[i]
		data, err := json.MarshalIndent(reportEntry{
			Utilization:  toUtilization(&e.Utilization),
			Transparency: toTransparency(&e.Transparency),
		}, "", "  ")
		if err != nil {
			a.fail(w, r, err)
			return
		}
		files = append(files, zip.File{Name: fmt.Sprintf("utilizations/%d.json", e.Utilization.ID), Data: data})
	}
	archive, err := zip.Archive(files, now)
	if err != nil {
		a.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="project-%d-transparency.zip"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(len(archive)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(archive)
}
