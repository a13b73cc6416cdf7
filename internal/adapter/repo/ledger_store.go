package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"fundtrace/internal/domain"
	"fundtrace/internal/infra"
	"fundtrace/internal/sqlinline"
)

// LedgerStore implements domain.LedgerStore on PostgreSQL.
type LedgerStore struct {
	queries
	db TxRunner
}

// NewLedgerStore wraps db.
func NewLedgerStore(db TxRunner) *LedgerStore {
	return &LedgerStore{queries: queries{sql: db}, db: db}
}

// WithinTx runs fn in a database transaction. Lock* calls take row locks that
// are held until fn returns.
func (s *LedgerStore) WithinTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	return s.db.InTx(ctx, func(sql infra.SQLExecutor) error {
		return fn(ledgerTx{queries: queries{sql: sql}})
	})
}

// queries holds the read side, shared by the store and its transactions.
type queries struct {
	sql infra.SQLExecutor
}

func (q queries) GetDonation(ctx context.Context, id int64) (*domain.Donation, error) {
	d, err := scanDonation(q.sql.QueryRow(ctx, sqlinline.QSelectDonation, id))
	if err != nil {
		return nil, notFound(err, "donation", id)
	}
	return d, nil
}

func (q queries) ListDonations(ctx context.Context, f domain.DonationFilter) ([]domain.Donation, error) {
	rows, err := q.sql.Query(ctx, sqlinline.QListDonations, f.DonorID, f.ProjectID, f.StudentID, string(f.Status))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanDonation)
}

func (q queries) ListTransactions(ctx context.Context, donationID int64) ([]domain.PaymentTransaction, error) {
	rows, err := q.sql.Query(ctx, sqlinline.QListTransactions, donationID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanTransaction)
}

func (q queries) FindTransactionByReference(ctx context.Context, reference string) (*domain.PaymentTransaction, error) {
	t, err := scanTransaction(q.sql.QueryRow(ctx, sqlinline.QSelectTransactionByReference, reference))
	if err != nil {
		return nil, notFound(err, "transaction", reference)
	}
	return t, nil
}

func (q queries) GetUtilization(ctx context.Context, id int64) (*domain.FundUtilization, error) {
	u, err := scanUtilization(q.sql.QueryRow(ctx, sqlinline.QSelectUtilization, id))
	if err != nil {
		return nil, notFound(err, "utilization", id)
	}
	return u, nil
}

func (q queries) ListUtilizations(ctx context.Context, f domain.UtilizationFilter) ([]domain.FundUtilization, error) {
	rows, err := q.sql.Query(ctx, sqlinline.QListUtilizations, f.DonationID, f.ProjectID, f.SchoolID, string(f.Status))
	if err != nil {
		return nil, err
	}
	return collect(rows, scanUtilization)
}

func (q queries) GetTransparency(ctx context.Context, id int64) (*domain.FundTransparency, error) {
	t, err := scanTransparency(q.sql.QueryRow(ctx, sqlinline.QSelectTransparency, id))
	if err != nil {
		return nil, notFound(err, "transparency", id)
	}
	return t, nil
}

func (q queries) GetTransparencyByUtilization(ctx context.Context, utilizationID int64) (*domain.FundTransparency, error) {
	t, err := scanTransparency(q.sql.QueryRow(ctx, sqlinline.QSelectTransparencyByUtilization, utilizationID))
	if err != nil {
		return nil, notFound(err, "transparency for utilization", utilizationID)
	}
	return t, nil
}

func (q queries) GetProject(ctx context.Context, id int64) (*domain.Project, error) {
	p, err := scanProject(q.sql.QueryRow(ctx, sqlinline.QSelectProject, id))
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

func (q queries) ListProjects(ctx context.Context, f domain.ProjectFilter) ([]domain.Project, error) {
	rows, err := q.sql.Query(ctx, sqlinline.QListProjects, f.NgoID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanProject)
}

func (q queries) GetSchool(ctx context.Context, id int64) (*domain.School, error) {
	var s domain.School
	if err := q.sql.QueryRow(ctx, sqlinline.QSelectSchool, id).Scan(&s.ID, &s.Name); err != nil {
		return nil, notFound(err, "school", id)
	}
	return &s, nil
}

func (q queries) GetStudent(ctx context.Context, id int64) (*domain.Student, error) {
	var s domain.Student
	if err := q.sql.QueryRow(ctx, sqlinline.QSelectStudent, id).Scan(&s.ID, &s.SchoolID, &s.Name); err != nil {
		return nil, notFound(err, "student", id)
	}
	return &s, nil
}

func (q queries) ListStudents(ctx context.Context, schoolID int64) ([]domain.Student, error) {
	rows, err := q.sql.Query(ctx, sqlinline.QListStudents, schoolID)
	if err != nil {
		return nil, err
	}
	return collect(rows, func(row scanner) (*domain.Student, error) {
		var s domain.Student
		if err := row.Scan(&s.ID, &s.SchoolID, &s.Name); err != nil {
			return nil, err
		}
		return &s, nil
	})
}

func (q queries) ListParticipations(ctx context.Context, f domain.ParticipationFilter) ([]domain.ProjectSchool, error) {
	rows, err := q.sql.Query(ctx, sqlinline.QListParticipations, f.ProjectID, f.SchoolID)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanParticipation)
}

type ledgerTx struct {
	queries
}

func (t ledgerTx) LockDonation(ctx context.Context, id int64) (*domain.Donation, error) {
	d, err := scanDonation(t.sql.QueryRow(ctx, sqlinline.QLockDonation, id))
	if err != nil {
		return nil, notFound(err, "donation", id)
	}
	return d, nil
}

func (t ledgerTx) LockProject(ctx context.Context, id int64) (*domain.Project, error) {
	p, err := scanProject(t.sql.QueryRow(ctx, sqlinline.QLockProject, id))
	if err != nil {
		return nil, notFound(err, "project", id)
	}
	return p, nil
}

func (t ledgerTx) LockUtilization(ctx context.Context, id int64) (*domain.FundUtilization, error) {
	u, err := scanUtilization(t.sql.QueryRow(ctx, sqlinline.QLockUtilization, id))
	if err != nil {
		return nil, notFound(err, "utilization", id)
	}
	return u, nil
}

func (t ledgerTx) LockTransparency(ctx context.Context, id int64) (*domain.FundTransparency, error) {
	ft, err := scanTransparency(t.sql.QueryRow(ctx, sqlinline.QLockTransparency, id))
	if err != nil {
		return nil, notFound(err, "transparency", id)
	}
	return ft, nil
}

func (t ledgerTx) CreateDonation(ctx context.Context, d *domain.Donation) error {
	err := t.sql.QueryRow(ctx, sqlinline.QInsertDonation,
		d.DonorID, string(d.Target.Type), d.Target.ProjectID, d.Target.StudentID, d.Amount.String(), d.Purpose,
		d.IsAnonymous, d.OriginCountry, string(d.PaymentStatus), d.PaymentCompletedAt, d.RefundedAt, d.CreatedAt,
	).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("insert donation: %w", err)
	}
	return nil
}

func (t ledgerTx) UpdateDonation(ctx context.Context, d *domain.Donation) error {
	tag, err := t.sql.Exec(ctx, sqlinline.QUpdateDonation,
		d.ID, string(d.PaymentStatus), d.PaymentCompletedAt, d.RefundedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update donation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("donation %d: %w", d.ID, domain.ErrNotFound)
	}
	return nil
}

func (t ledgerTx) CreateTransaction(ctx context.Context, tr *domain.PaymentTransaction) error {
	err := t.sql.QueryRow(ctx, sqlinline.QInsertTransaction,
		tr.DonationID, string(tr.Type), tr.Method, string(tr.Status), tr.Reference, tr.Amount.String(),
		tr.ResponseCode, tr.ResponseMessage, tr.Customer.Name, tr.Customer.Email, tr.Customer.Phone,
		tr.InitiatedAt, tr.CompletedAt, tr.UpdatedAt,
	).Scan(&tr.ID)
	if err != nil {
		return duplicate(err, "transaction reference "+tr.Reference)
	}
	return nil
}

func (t ledgerTx) UpdateTransaction(ctx context.Context, tr *domain.PaymentTransaction) error {
	tag, err := t.sql.Exec(ctx, sqlinline.QUpdateTransaction,
		tr.ID, tr.Method, string(tr.Status), tr.ResponseCode, tr.ResponseMessage, tr.CompletedAt, tr.UpdatedAt)
	if err != nil {
		return duplicate(err, "completed settlement")
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %d: %w", tr.ID, domain.ErrNotFound)
	}
	return nil
}

func (t ledgerTx) CreateUtilization(ctx context.Context, u *domain.FundUtilization) error {
	receipts := u.Evidence.ReceiptURLs
	if receipts == nil {
		receipts = []string{}
	}
	err := t.sql.QueryRow(ctx, sqlinline.QInsertUtilization,
		u.DonationID, u.ProjectID, u.SchoolID, u.AmountUsed.String(), u.Description, u.Evidence.Vendor,
		u.Evidence.InvoiceNumber, receipts, u.UtilizationDate, string(u.Status), u.CreatedAt,
	).Scan(&u.ID)
	if err != nil {
		return fmt.Errorf("insert utilization: %w", err)
	}
	return nil
}

func (t ledgerTx) UpdateUtilization(ctx context.Context, u *domain.FundUtilization) error {
	tag, err := t.sql.Exec(ctx, sqlinline.QUpdateUtilization,
		u.ID, string(u.Status), u.ReviewedBy, u.ReviewNote, u.ReviewedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update utilization: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("utilization %d is no longer pending: %w", u.ID, domain.ErrInvalidTransition)
	}
	return nil
}

func (t ledgerTx) CreateTransparency(ctx context.Context, tr *domain.FundTransparency) error {
	var warning []byte
	if tr.Warning != nil {
		raw, err := json.Marshal(tr.Warning)
		if err != nil {
			return fmt.Errorf("encode reconciliation_warning: %w", err)
		}
		warning = raw
	}
	before, after := tr.BeforePhotos, tr.AfterPhotos
	if before == nil {
		before = []string{}
	}
	if after == nil {
		after = []string{}
	}
	err := t.sql.QueryRow(ctx, sqlinline.QInsertTransparency,
		tr.UtilizationID, before, after, tr.BeneficiaryFeedback, tr.UnitQuantity.String(), tr.UnitCost.String(),
		string(tr.VerificationStatus), tr.VerifiedBy, tr.VerifiedAt, tr.IsPublic, tr.PublishedAt, warning, tr.CreatedAt,
	).Scan(&tr.ID)
	if err != nil {
		return duplicate(err, fmt.Sprintf("transparency for utilization %d", tr.UtilizationID))
	}
	return nil
}

func (t ledgerTx) UpdateTransparency(ctx context.Context, tr *domain.FundTransparency) error {
	tag, err := t.sql.Exec(ctx, sqlinline.QUpdateTransparency,
		tr.ID, string(tr.VerificationStatus), tr.VerifiedBy, tr.VerifiedAt, tr.IsPublic, tr.PublishedAt, tr.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update transparency: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transparency %d: %w", tr.ID, domain.ErrNotFound)
	}
	return nil
}

func (t ledgerTx) CreateParticipation(ctx context.Context, ps *domain.ProjectSchool) error {
	_, err := t.sql.Exec(ctx, sqlinline.QInsertParticipation,
		ps.ProjectID, ps.SchoolID, ps.AllocatedBudget.String(), ps.SelectedAt)
	if err != nil {
		return duplicate(err, fmt.Sprintf("school %d in project %d", ps.SchoolID, ps.ProjectID))
	}
	return nil
}

var (
	_ domain.LedgerStore = (*LedgerStore)(nil)
	_ domain.LedgerTx    = ledgerTx{}
)
