package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
	"fundtrace/internal/infra"
)

// TxRunner is an executor that can also open a transaction.
type TxRunner interface {
	infra.SQLExecutor
	InTx(ctx context.Context, fn func(infra.SQLExecutor) error) error
}

type scanner interface {
	Scan(dest ...any) error
}

// notFound converts a no-rows error into domain.ErrNotFound.
func notFound(err error, what string, id any) error {
	if infra.IsNoRows(err) {
		return fmt.Errorf("%s %v: %w", what, id, domain.ErrNotFound)
	}
	return err
}

// duplicate converts a unique violation into domain.ErrDuplicateOperation.
func duplicate(err error, what string) error {
	if infra.IsUniqueViolation(err) {
		return fmt.Errorf("%s: %w", what, domain.ErrDuplicateOperation)
	}
	return err
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

func scanDonation(row scanner) (*domain.Donation, error) {
	var (
		d              domain.Donation
		typ, status    string
		amount         string
		projID, studID *int64
	)
	if err := row.Scan(&d.ID, &d.DonorID, &typ, &projID, &studID, &amount, &d.Purpose, &d.IsAnonymous, &d.OriginCountry,
		&status, &d.PaymentCompletedAt, &d.RefundedAt, &d.CreatedAt, &d.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if d.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	d.Target = domain.Target{Type: domain.DonationType(typ), ProjectID: projID, StudentID: studID}
	d.PaymentStatus = domain.PaymentStatus(status)
	return &d, nil
}

func scanTransaction(row scanner) (*domain.PaymentTransaction, error) {
	var (
		t           domain.PaymentTransaction
		typ, status string
		amount      string
	)
	if err := row.Scan(&t.ID, &t.DonationID, &typ, &t.Method, &status, &t.Reference, &amount, &t.ResponseCode, &t.ResponseMessage,
		&t.Customer.Name, &t.Customer.Email, &t.Customer.Phone, &t.InitiatedAt, &t.CompletedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if t.Amount, err = parseDecimal("amount", amount); err != nil {
		return nil, err
	}
	t.Type = domain.TransactionType(typ)
	t.Status = domain.TransactionStatus(status)
	return &t, nil
}

func scanUtilization(row scanner) (*domain.FundUtilization, error) {
	var (
		u      domain.FundUtilization
		amount string
		status string
	)
	if err := row.Scan(&u.ID, &u.DonationID, &u.ProjectID, &u.SchoolID, &amount, &u.Description, &u.Evidence.Vendor,
		&u.Evidence.InvoiceNumber, &u.Evidence.ReceiptURLs, &u.UtilizationDate, &status, &u.ReviewedBy, &u.ReviewNote,
		&u.ReviewedAt, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if u.AmountUsed, err = parseDecimal("amount_used", amount); err != nil {
		return nil, err
	}
	u.Status = domain.UtilizationStatus(status)
	return &u, nil
}

func scanTransparency(row scanner) (*domain.FundTransparency, error) {
	var (
		t             domain.FundTransparency
		qty, unitCost string
		status        string
		warning       []byte
	)
	if err := row.Scan(&t.ID, &t.UtilizationID, &t.BeforePhotos, &t.AfterPhotos, &t.BeneficiaryFeedback, &qty, &unitCost,
		&status, &t.VerifiedBy, &t.VerifiedAt, &t.IsPublic, &t.PublishedAt, &warning, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if t.UnitQuantity, err = parseDecimal("unit_quantity", qty); err != nil {
		return nil, err
	}
	if t.UnitCost, err = parseDecimal("unit_cost", unitCost); err != nil {
		return nil, err
	}
	t.VerificationStatus = domain.VerificationStatus(status)
	if len(warning) > 0 && string(warning) != "null" {
		t.Warning = &domain.ReconciliationWarning{}
		if err := json.Unmarshal(warning, t.Warning); err != nil {
			return nil, fmt.Errorf("decode reconciliation_warning: %w", err)
		}
	}
	return &t, nil
}

func scanProject(row scanner) (*domain.Project, error) {
	var (
		p      domain.Project
		budget string
	)
	if err := row.Scan(&p.ID, &p.NgoID, &p.Title, &budget, &p.Active); err != nil {
		return nil, err
	}
	var err error
	if p.AllocatedBudget, err = parseDecimal("allocated_budget", budget); err != nil {
		return nil, err
	}
	return &p, nil
}

func scanParticipation(row scanner) (*domain.ProjectSchool, error) {
	var (
		ps     domain.ProjectSchool
		budget string
	)
	if err := row.Scan(&ps.ProjectID, &ps.SchoolID, &budget, &ps.SelectedAt); err != nil {
		return nil, err
	}
	var err error
	if ps.AllocatedBudget, err = parseDecimal("allocated_budget", budget); err != nil {
		return nil, err
	}
	return &ps, nil
}

// collect drains rows through scan.
func collect[T any](rows interface {
	scanner
	Next() bool
	Err() error
	Close()
}, scan func(scanner) (*T, error)) ([]T, error) {
	defer rows.Close()
	var items []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
