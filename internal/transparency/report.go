package transparency

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
)

// ReportEntry pairs a published transparency record with the spend it backs.
type ReportEntry struct {
	Utilization  domain.FundUtilization
	Transparency domain.FundTransparency
}

// Report is the public evidence of one project.
type Report struct {
	Project domain.Project
	Entries []ReportEntry
	// Published is the sum of AmountUsed over Entries.
	Published decimal.Decimal
}

// ProjectReport collects every published record of a project's approved
// spend, in utilization order. Unpublished evidence is left out.
func (v *Verifier) ProjectReport(ctx context.Context, projectID int64) (*Report, error) {
	project, err := v.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	uts, err := v.store.ListUtilizations(ctx, domain.UtilizationFilter{
		ProjectID: projectID,
		Status:    domain.UtilizationStatusApproved,
	})
	if err != nil {
		return nil, fmt.Errorf("list utilizations: %w", err)
	}
	report := &Report{Project: *project, Published: decimal.Zero}
	for _, u := range uts {
		t, err := v.store.GetTransparencyByUtilization(ctx, u.ID)
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("utilization %d: %w", u.ID, err)
		}
		if !t.IsPublic {
			continue
		}
		report.Entries = append(report.Entries, ReportEntry{Utilization: u, Transparency: *t})
		report.Published = report.Published.Add(u.AmountUsed)
	}
	return report, nil
}
