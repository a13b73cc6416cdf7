package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
)

// Violation is a ledger invariant found broken by Audit.
type Violation struct {
	Kind   string `json:"kind"`
	ID     int64  `json:"id"`
	Detail string `json:"detail"`
}

// Audit re-checks the ledger invariants against stored state. An empty result
// means the ledger is consistent.
func (e *Engine) Audit(ctx context.Context) ([]Violation, error) {
	var out []Violation

	donations, err := e.store.ListDonations(ctx, domain.DonationFilter{})
	if err != nil {
		return nil, fmt.Errorf("audit donations: %w", err)
	}
	for _, d := range donations {
		if (d.PaymentCompletedAt != nil) != (d.PaymentStatus == domain.PaymentStatusCompleted) {
			out = append(out, Violation{Kind: "donation_completed_at", ID: d.ID,
				Detail: fmt.Sprintf("status %s with completed_at set=%t", d.PaymentStatus, d.PaymentCompletedAt != nil)})
		}
		txs, err := e.store.ListTransactions(ctx, d.ID)
		if err != nil {
			return nil, fmt.Errorf("audit transactions of donation %d: %w", d.ID, err)
		}
		completed := 0
		for _, t := range txs {
			if t.Type == domain.TransactionTypeDonation && t.Status == domain.TransactionStatusCompleted {
				completed++
			}
		}
		if completed > 1 {
			out = append(out, Violation{Kind: "donation_multiple_settlements", ID: d.ID,
				Detail: fmt.Sprintf("%d completed transactions", completed)})
		}
		spend, err := e.store.ListUtilizations(ctx, domain.UtilizationFilter{DonationID: d.ID})
		if err != nil {
			return nil, fmt.Errorf("audit utilizations of donation %d: %w", d.ID, err)
		}
		if v, ok := overspent("donation_overspent", d.ID, d.Amount, domain.SumSpend(spend)); ok {
			out = append(out, v)
		}
	}

	projects, err := e.store.ListProjects(ctx, domain.ProjectFilter{})
	if err != nil {
		return nil, fmt.Errorf("audit projects: %w", err)
	}
	for _, p := range projects {
		spend, err := e.store.ListUtilizations(ctx, domain.UtilizationFilter{ProjectID: p.ID})
		if err != nil {
			return nil, fmt.Errorf("audit utilizations of project %d: %w", p.ID, err)
		}
		if v, ok := overspent("project_overspent", p.ID, p.AllocatedBudget, domain.SumSpend(spend)); ok {
			out = append(out, v)
		}
		parts, err := e.store.ListParticipations(ctx, domain.ParticipationFilter{ProjectID: p.ID})
		if err != nil {
			return nil, fmt.Errorf("audit participations of project %d: %w", p.ID, err)
		}
		allocated := decimal.Zero
		for _, ps := range parts {
			allocated = allocated.Add(ps.AllocatedBudget)
			schoolSpend, err := e.store.ListUtilizations(ctx, domain.UtilizationFilter{ProjectID: p.ID, SchoolID: ps.SchoolID})
			if err != nil {
				return nil, fmt.Errorf("audit utilizations of project %d school %d: %w", p.ID, ps.SchoolID, err)
			}
			if v, ok := overspent("participation_overspent", ps.SchoolID, ps.AllocatedBudget, domain.SumSpend(schoolSpend)); ok {
				v.Detail = fmt.Sprintf("project %d: %s", p.ID, v.Detail)
				out = append(out, v)
			}
		}
		if v, ok := overspent("project_overallocated", p.ID, p.AllocatedBudget, allocated); ok {
			out = append(out, v)
		}
	}

	if len(out) > 0 {
		e.logger.Warn().Int("violations", len(out)).Msg("ledger audit found violations")
	}
	return out, nil
}

func overspent(kind string, id int64, limit, used decimal.Decimal) (Violation, bool) {
	if used.LessThanOrEqual(limit) {
		return Violation{}, false
	}
	return Violation{Kind: kind, ID: id, Detail: fmt.Sprintf("%s exceeds %s", used, limit)}, true
}
