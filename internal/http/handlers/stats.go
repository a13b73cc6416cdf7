package handlers

import (
	"net/http"

	"github.com/shopspring/decimal"
)

func (a *App) DonorStats(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	s, err := a.Stats.DonorStats(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"donor_id":           s.DonorID,
		"total_donated":      s.TotalDonated,
		"schools_supported":  s.SchoolsSupported,
		"students_sponsored": s.StudentsSponsored,
		"projects_donated":   s.ProjectsDonated,
	})
}

func (a *App) ProjectSchoolBudget(w http.ResponseWriter, r *http.Request) {
	projectID, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	schoolID, ok := a.idParam(w, r, "schoolID")
	if !ok {
		return
	}
	b, err := a.Stats.ProjectSchoolBudget(r.Context(), projectID, schoolID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, toBudget(b))
}

func (a *App) NgoStats(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	s, err := a.Stats.NgoStats(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"ngo_id":                 s.NgoID,
		"projects":               s.Projects,
		"schools_reached":        s.SchoolsReached,
		"total_allocated":        s.TotalAllocated,
		"total_utilized":         s.TotalUtilized,
		"utilization_percentage": s.UtilizationPercentage,
	})
}

func (a *App) SchoolStats(w http.ResponseWriter, r *http.Request) {
	id, ok := a.idParam(w, r, "id")
	if !ok {
		return
	}
	s, err := a.Stats.SchoolStats(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	levels := make(map[string]int, len(s.RiskLevelCounts))
	for l, n := range s.RiskLevelCounts {
		levels[string(l)] = n
	}
	a.json(w, http.StatusOK, map[string]any{
		"school_id":         s.SchoolID,
		"projects":          s.Projects,
		"total_allocated":   s.TotalAllocated,
		"total_utilized":    s.TotalUtilized,
		"students":          s.Students,
		"students_at_risk":  s.StudentsAtRisk,
		"risk_level_counts": levels,
	})
}

func (a *App) StatsSummary(w http.ResponseWriter, r *http.Request) {
	s, err := a.Stats.PlatformSummary(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	byCountry := s.ByCountry
	if byCountry == nil {
		byCountry = map[string]decimal.Decimal{}
	}
	a.json(w, http.StatusOK, map[string]any{
		"completed_donations": s.CompletedDonations,
		"donors":              s.Donors,
		"total_donated":       s.TotalDonated,
		"total_utilized":      s.TotalUtilized,
		"by_country":          byCountry,
	})
}
