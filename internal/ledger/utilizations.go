package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"fundtrace/internal/domain"
	"fundtrace/internal/events"
	"fundtrace/internal/validate"
)

// UtilizationInput describes a spend of settled donation funds on a project.
type UtilizationInput struct {
	DonationID      int64           `json:"donation_id" validate:"required,gt=0"`
	ProjectID       int64           `json:"project_id" validate:"required,gt=0"`
	SchoolID        *int64          `json:"school_id" validate:"omitempty,gt=0"`
	Amount          decimal.Decimal `json:"amount_used"`
	Description     string          `json:"description" validate:"max=1000"`
	Vendor          string          `json:"vendor" validate:"required,max=200"`
	InvoiceNumber   string          `json:"invoice_number" validate:"required,max=100"`
	ReceiptURLs     []string        `json:"receipt_urls" validate:"required,min=1,dive,required,url"`
	UtilizationDate time.Time       `json:"utilization_date" validate:"required"`
}

// RecordUtilization books a PENDING spend. The amount, together with every
// pending and approved spend already booked, must stay within the donation
// amount, the project budget and, when a school is named, the school's
// allocation in the project.
func (e *Engine) RecordUtilization(ctx context.Context, in UtilizationInput) (*domain.FundUtilization, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	evidence := domain.Evidence{
		Vendor:        norm.NFC.String(strings.TrimSpace(in.Vendor)),
		InvoiceNumber: norm.NFC.String(strings.TrimSpace(in.InvoiceNumber)),
		ReceiptURLs:   append([]string(nil), in.ReceiptURLs...),
	}

	release := e.locks.lock(donationKey(in.DonationID), projectKey(in.ProjectID))
	defer release()

	var u *domain.FundUtilization
	err := e.store.WithinTx(ctx, func(tx domain.LedgerTx) error {
		d, err := tx.LockDonation(ctx, in.DonationID)
		if err != nil {
			return err
		}
		if !d.IsSettled() {
			return domain.ErrDonationNotSettled
		}
		p, err := tx.LockProject(ctx, in.ProjectID)
		if err != nil {
			return asInvalidTarget(err, "project", in.ProjectID)
		}
		if !p.Active {
			return fmt.Errorf("project %d inactive: %w", p.ID, domain.ErrInvalidTarget)
		}
		if d.Target.Type == domain.DonationTypeProject && *d.Target.ProjectID != p.ID {
			return fmt.Errorf("donation %d is earmarked for project %d: %w", d.ID, *d.Target.ProjectID, domain.ErrInvalidTarget)
		}

		if err := e.checkBound(ctx, tx, "donation", d.Amount, domain.UtilizationFilter{DonationID: d.ID}, in.Amount); err != nil {
			return err
		}
		if err := e.checkBound(ctx, tx, "project", p.AllocatedBudget, domain.UtilizationFilter{ProjectID: p.ID}, in.Amount); err != nil {
			return err
		}
		if in.SchoolID != nil {
			parts, err := tx.ListParticipations(ctx, domain.ParticipationFilter{ProjectID: p.ID, SchoolID: *in.SchoolID})
			if err != nil {
				return err
			}
			if len(parts) == 0 {
				return fmt.Errorf("school %d not in project %d: %w", *in.SchoolID, p.ID, domain.ErrInvalidTarget)
			}
			filter := domain.UtilizationFilter{ProjectID: p.ID, SchoolID: *in.SchoolID}
			if err := e.checkBound(ctx, tx, "participation", parts[0].AllocatedBudget, filter, in.Amount); err != nil {
				return err
			}
		}

		u, err = domain.NewFundUtilization(d.ID, p.ID, in.SchoolID, in.Amount,
			norm.NFC.String(in.Description), evidence, in.UtilizationDate, e.now())
		if err != nil {
			return err
		}
		return tx.CreateUtilization(ctx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("record utilization for donation %d: %w", in.DonationID, err)
	}

	e.logger.Info().Int64("utilization_id", u.ID).Int64("donation_id", u.DonationID).
		Int64("project_id", u.ProjectID).Str("amount", u.AmountUsed.String()).Msg("utilization recorded")
	ev := e.event(events.UtilizationRecorded)
	ev.UtilizationID, ev.DonationID, ev.ProjectID = u.ID, u.DonationID, u.ProjectID
	if u.SchoolID != nil {
		ev.SchoolID = *u.SchoolID
	}
	e.publish(ctx, ev)
	return u, nil
}

func (e *Engine) checkBound(ctx context.Context, tx domain.LedgerTx, scope string, limit decimal.Decimal, f domain.UtilizationFilter, amount decimal.Decimal) error {
	items, err := tx.ListUtilizations(ctx, f)
	if err != nil {
		return err
	}
	committed := domain.SumSpend(items)
	if committed.Add(amount).GreaterThan(limit) {
		e.logger.Warn().Str("scope", scope).Str("limit", limit.String()).
			Str("committed", committed.String()).Str("requested", amount.String()).Msg("over allocation rejected")
		return &domain.OverAllocationError{Scope: scope, Limit: limit, Committed: committed, Requested: amount}
	}
	return nil
}

// Review is a reviewer's decision on a pending utilization.
type Review struct {
	ReviewerID string `json:"reviewer_id" validate:"required,max=100"`
	Approve    bool   `json:"approve"`
	Note       string `json:"note" validate:"max=1000"`
}

// ReviewUtilization approves or rejects a PENDING utilization. Rejection
// releases the amount from every bound it counted against.
func (e *Engine) ReviewUtilization(ctx context.Context, utilizationID int64, r Review) (*domain.FundUtilization, error) {
	if err := validate.Struct(r); err != nil {
		return nil, err
	}
	current, err := e.store.GetUtilization(ctx, utilizationID)
	if err != nil {
		return nil, err
	}
	release := e.locks.lock(donationKey(current.DonationID), projectKey(current.ProjectID))
	defer release()

	var u *domain.FundUtilization
	err = e.store.WithinTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		u, err = tx.LockUtilization(ctx, utilizationID)
		if err != nil {
			return err
		}
		if err := u.Review(r.Approve, r.ReviewerID, r.Note, e.now()); err != nil {
			return err
		}
		return tx.UpdateUtilization(ctx, u)
	})
	if err != nil {
		return nil, fmt.Errorf("review utilization %d: %w", utilizationID, err)
	}

	e.logger.Info().Int64("utilization_id", u.ID).Str("status", string(u.Status)).
		Str("reviewer", u.ReviewedBy).Msg("utilization reviewed")
	t := events.UtilizationRejected
	if u.Status == domain.UtilizationStatusApproved {
		t = events.UtilizationApproved
	}
	ev := e.event(t)
	ev.UtilizationID, ev.DonationID, ev.ProjectID = u.ID, u.DonationID, u.ProjectID
	if u.SchoolID != nil {
		ev.SchoolID = *u.SchoolID
	}
	ev.Payload = map[string]any{"amount": u.AmountUsed.String(), "reviewer": u.ReviewedBy}
	e.publish(ctx, ev)
	return u, nil
}

// ParticipationInput selects a school into a project with its own allocation.
type ParticipationInput struct {
	ProjectID       int64           `json:"project_id" validate:"required,gt=0"`
	SchoolID        int64           `json:"school_id" validate:"required,gt=0"`
	AllocatedBudget decimal.Decimal `json:"allocated_budget"`
}

// SelectSchool creates a participation. Allocations across the project's
// schools may not exceed the project budget.
func (e *Engine) SelectSchool(ctx context.Context, in ParticipationInput) (*domain.ProjectSchool, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.AllocatedBudget.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	release := e.locks.lock(projectKey(in.ProjectID))
	defer release()

	var ps *domain.ProjectSchool
	err := e.store.WithinTx(ctx, func(tx domain.LedgerTx) error {
		p, err := tx.LockProject(ctx, in.ProjectID)
		if err != nil {
			return asInvalidTarget(err, "project", in.ProjectID)
		}
		if !p.Active {
			return fmt.Errorf("project %d inactive: %w", p.ID, domain.ErrInvalidTarget)
		}
		if _, err := tx.GetSchool(ctx, in.SchoolID); err != nil {
			return asInvalidTarget(err, "school", in.SchoolID)
		}
		existing, err := tx.ListParticipations(ctx, domain.ParticipationFilter{ProjectID: p.ID})
		if err != nil {
			return err
		}
		allocated := decimal.Zero
		for _, other := range existing {
			if other.SchoolID == in.SchoolID {
				return fmt.Errorf("school %d already in project %d: %w", in.SchoolID, p.ID, domain.ErrDuplicateOperation)
			}
			allocated = allocated.Add(other.AllocatedBudget)
		}
		if allocated.Add(in.AllocatedBudget).GreaterThan(p.AllocatedBudget) {
			return &domain.OverAllocationError{Scope: "project allocation", Limit: p.AllocatedBudget, Committed: allocated, Requested: in.AllocatedBudget}
		}
		ps = &domain.ProjectSchool{
			ProjectID:       p.ID,
			SchoolID:        in.SchoolID,
			AllocatedBudget: in.AllocatedBudget,
			SelectedAt:      e.now(),
		}
		return tx.CreateParticipation(ctx, ps)
	})
	if err != nil {
		return nil, fmt.Errorf("select school %d for project %d: %w", in.SchoolID, in.ProjectID, err)
	}

	e.logger.Info().Int64("project_id", ps.ProjectID).Int64("school_id", ps.SchoolID).
		Str("allocated", ps.AllocatedBudget.String()).Msg("school selected")
	ev := e.event(events.SchoolSelected)
	ev.ProjectID, ev.SchoolID = ps.ProjectID, ps.SchoolID
	e.publish(ctx, ev)
	return ps, nil
}
