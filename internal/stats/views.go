package stats

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
)

// ProjectSchoolBudget returns the derived budget of a school's participation.
func (a *Aggregator) ProjectSchoolBudget(ctx context.Context, projectID, schoolID int64) (domain.BudgetView, error) {
	parts, err := a.ledger.ListParticipations(ctx, domain.ParticipationFilter{ProjectID: projectID, SchoolID: schoolID})
	if err != nil {
		return domain.BudgetView{}, err
	}
	if len(parts) == 0 {
		return domain.BudgetView{}, fmt.Errorf("school %d in project %d: %w", schoolID, projectID, domain.ErrNotFound)
	}
	approved, err := a.ledger.ListUtilizations(ctx, domain.UtilizationFilter{
		ProjectID: projectID, SchoolID: schoolID, Status: domain.UtilizationStatusApproved,
	})
	if err != nil {
		return domain.BudgetView{}, err
	}
	return domain.NewBudgetView(parts[0], approved), nil
}

// NgoStats rolls up every project of an NGO.
func (a *Aggregator) NgoStats(ctx context.Context, ngoID int64) (domain.NgoStats, error) {
	projects, err := a.ledger.ListProjects(ctx, domain.ProjectFilter{NgoID: ngoID})
	if err != nil {
		return domain.NgoStats{}, err
	}
	s := domain.NgoStats{NgoID: ngoID, Projects: len(projects), TotalAllocated: decimal.Zero, TotalUtilized: decimal.Zero}
	schools := map[int64]bool{}
	for _, p := range projects {
		s.TotalAllocated = s.TotalAllocated.Add(p.AllocatedBudget)
		approved, err := a.ledger.ListUtilizations(ctx, domain.UtilizationFilter{ProjectID: p.ID, Status: domain.UtilizationStatusApproved})
		if err != nil {
			return domain.NgoStats{}, err
		}
		s.TotalUtilized = s.TotalUtilized.Add(domain.SumApproved(approved))
		parts, err := a.ledger.ListParticipations(ctx, domain.ParticipationFilter{ProjectID: p.ID})
		if err != nil {
			return domain.NgoStats{}, err
		}
		for _, ps := range parts {
			schools[ps.SchoolID] = true
		}
	}
	s.SchoolsReached = len(schools)
	s.UtilizationPercentage = domain.Percentage(s.TotalUtilized, s.TotalAllocated)
	return s, nil
}

// SchoolStats rolls up a school's participations and its students' risk tiers.
func (a *Aggregator) SchoolStats(ctx context.Context, schoolID int64) (domain.SchoolStats, error) {
	if _, err := a.ledger.GetSchool(ctx, schoolID); err != nil {
		return domain.SchoolStats{}, err
	}
	parts, err := a.ledger.ListParticipations(ctx, domain.ParticipationFilter{SchoolID: schoolID})
	if err != nil {
		return domain.SchoolStats{}, err
	}
	s := domain.SchoolStats{
		SchoolID:        schoolID,
		Projects:        len(parts),
		TotalAllocated:  decimal.Zero,
		RiskLevelCounts: map[domain.RiskLevel]int{},
	}
	for _, ps := range parts {
		s.TotalAllocated = s.TotalAllocated.Add(ps.AllocatedBudget)
	}
	approved, err := a.ledger.ListUtilizations(ctx, domain.UtilizationFilter{SchoolID: schoolID, Status: domain.UtilizationStatusApproved})
	if err != nil {
		return domain.SchoolStats{}, err
	}
	s.TotalUtilized = domain.SumApproved(approved)

	students, err := a.ledger.ListStudents(ctx, schoolID)
	if err != nil {
		return domain.SchoolStats{}, err
	}
	s.Students = len(students)
	if a.risk == nil || len(students) == 0 {
		return s, nil
	}
	ids := make([]int64, 0, len(students))
	for _, st := range students {
		ids = append(ids, st.ID)
	}
	predictions, err := a.risk.ListPredictions(ctx, domain.PredictionFilter{StudentIDs: ids})
	if err != nil {
		return domain.SchoolStats{}, err
	}
	for _, p := range predictions {
		s.RiskLevelCounts[p.RiskLevel]++
		if p.RiskLevel.Elevated() {
			s.StudentsAtRisk++
		}
	}
	return s, nil
}

// PlatformSummary is the public headline view over all COMPLETED donations.
// Donations without a known origin are grouped under "UNKNOWN".
func (a *Aggregator) PlatformSummary(ctx context.Context) (domain.PlatformSummary, error) {
	donations, err := a.ledger.ListDonations(ctx, domain.DonationFilter{Status: domain.PaymentStatusCompleted})
	if err != nil {
		return domain.PlatformSummary{}, err
	}
	s := domain.PlatformSummary{
		CompletedDonations: len(donations),
		TotalDonated:       decimal.Zero,
		ByCountry:          map[string]decimal.Decimal{},
	}
	donors := map[int64]bool{}
	for _, d := range donations {
		donors[d.DonorID] = true
		s.TotalDonated = s.TotalDonated.Add(d.Amount)
		country := d.OriginCountry
		if country == "" {
			country = "UNKNOWN"
		}
		s.ByCountry[country] = s.ByCountry[country].Add(d.Amount)
	}
	s.Donors = len(donors)
	approved, err := a.ledger.ListUtilizations(ctx, domain.UtilizationFilter{Status: domain.UtilizationStatusApproved})
	if err != nil {
		return domain.PlatformSummary{}, err
	}
	s.TotalUtilized = domain.SumApproved(approved)
	return s, nil
}
