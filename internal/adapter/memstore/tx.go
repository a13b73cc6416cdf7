package memstore

import (
	"context"
	"fmt"

	"fundtrace/internal/domain"
)

// tx writes copies into the private state of one unit of work.
type tx struct {
	reader
}

func (t *tx) LockDonation(ctx context.Context, id int64) (*domain.Donation, error) {
	return t.GetDonation(ctx, id)
}

func (t *tx) LockProject(ctx context.Context, id int64) (*domain.Project, error) {
	return t.GetProject(ctx, id)
}

func (t *tx) LockUtilization(ctx context.Context, id int64) (*domain.FundUtilization, error) {
	return t.GetUtilization(ctx, id)
}

func (t *tx) LockTransparency(ctx context.Context, id int64) (*domain.FundTransparency, error) {
	return t.GetTransparency(ctx, id)
}

func (t *tx) CreateDonation(_ context.Context, d *domain.Donation) error {
	d.ID = t.s.next("donation")
	cp := *d
	t.s.donations[d.ID] = &cp
	return nil
}

func (t *tx) UpdateDonation(_ context.Context, d *domain.Donation) error {
	if _, ok := t.s.donations[d.ID]; !ok {
		return notFound("donation", d.ID)
	}
	cp := *d
	t.s.donations[d.ID] = &cp
	return nil
}

func (t *tx) CreateTransaction(_ context.Context, p *domain.PaymentTransaction) error {
	for _, existing := range t.s.transactions {
		if existing.Reference == p.Reference {
			return fmt.Errorf("transaction reference %q: %w", p.Reference, domain.ErrDuplicateOperation)
		}
	}
	p.ID = t.s.next("transaction")
	cp := *p
	t.s.transactions[p.ID] = &cp
	return nil
}

func (t *tx) UpdateTransaction(_ context.Context, p *domain.PaymentTransaction) error {
	if _, ok := t.s.transactions[p.ID]; !ok {
		return notFound("transaction", p.ID)
	}
	cp := *p
	t.s.transactions[p.ID] = &cp
	return nil
}

func (t *tx) CreateUtilization(_ context.Context, u *domain.FundUtilization) error {
	u.ID = t.s.next("utilization")
	cp := copyUtilization(u)
	t.s.utilizations[u.ID] = &cp
	return nil
}

func (t *tx) UpdateUtilization(_ context.Context, u *domain.FundUtilization) error {
	stored, ok := t.s.utilizations[u.ID]
	if !ok {
		return notFound("utilization", u.ID)
	}
	if stored.Status != domain.UtilizationStatusPending {
		return fmt.Errorf("utilization %d is no longer pending: %w", u.ID, domain.ErrInvalidTransition)
	}
	cp := copyUtilization(u)
	t.s.utilizations[u.ID] = &cp
	return nil
}

func (t *tx) CreateTransparency(_ context.Context, ft *domain.FundTransparency) error {
	for _, existing := range t.s.transparencies {
		if existing.UtilizationID == ft.UtilizationID {
			return fmt.Errorf("transparency for utilization %d: %w", ft.UtilizationID, domain.ErrDuplicateOperation)
		}
	}
	ft.ID = t.s.next("transparency")
	cp := copyTransparency(ft)
	t.s.transparencies[ft.ID] = &cp
	return nil
}

func (t *tx) UpdateTransparency(_ context.Context, ft *domain.FundTransparency) error {
	if _, ok := t.s.transparencies[ft.ID]; !ok {
		return notFound("transparency", ft.ID)
	}
	cp := copyTransparency(ft)
	t.s.transparencies[ft.ID] = &cp
	return nil
}

func (t *tx) CreateParticipation(_ context.Context, ps *domain.ProjectSchool) error {
	key := [2]int64{ps.ProjectID, ps.SchoolID}
	if _, ok := t.s.participations[key]; ok {
		return fmt.Errorf("school %d already in project %d: %w", ps.SchoolID, ps.ProjectID, domain.ErrDuplicateOperation)
	}
	cp := *ps
	t.s.participations[key] = &cp
	return nil
}
