package repo

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
	"fundtrace/internal/infra"
	"fundtrace/internal/sqlinline"
)

type call struct {
	query string
	args  []any
}

// fakeDB replays scripted rows and records every statement.
type fakeDB struct {
	calls  []call
	row    []any
	rows   [][]any
	err    error
	tag    pgconn.CommandTag
	inTx   bool
	txErrs []error
}

func (f *fakeDB) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, call{query, args})
	return f.tag, f.err
}

func (f *fakeDB) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	f.calls = append(f.calls, call{query, args})
	if f.err != nil {
		return fakeRow{err: f.err}
	}
	if f.row == nil {
		return fakeRow{err: pgx.ErrNoRows}
	}
	return fakeRow{values: f.row}
}

func (f *fakeDB) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	f.calls = append(f.calls, call{query, args})
	if f.err != nil {
		return nil, f.err
	}
	return &fakeRows{data: f.rows, idx: -1}, nil
}

func (f *fakeDB) InTx(ctx context.Context, fn func(infra.SQLExecutor) error) error {
	f.inTx = true
	err := fn(f)
	f.txErrs = append(f.txErrs, err)
	return err
}

func (f *fakeDB) last() call {
	return f.calls[len(f.calls)-1]
}

type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

func assign(values, dest []any) error {
	if len(values) != len(dest) {
		return errors.New("column count mismatch")
	}
	for i, d := range dest {
		target := reflect.ValueOf(d).Elem()
		if values[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		target.Set(reflect.ValueOf(values[i]))
	}
	return nil
}

type fakeRows struct {
	data [][]any
	idx  int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Next() bool                                   { r.idx++; return r.idx < len(r.data) }
func (r *fakeRows) Scan(dest ...any) error                       { return assign(r.data[r.idx], dest) }
func (r *fakeRows) Values() ([]any, error)                       { return r.data[r.idx], nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func donationRow(id int64, projectID *int64, status string) []any {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []any{id, int64(7), "PROJECT", projectID, nil, "1000.50", "books", false, "ID",
		status, nil, nil, now, now}
}

func TestGetDonationScansRow(t *testing.T) {
	project := int64(3)
	db := &fakeDB{row: donationRow(11, &project, "PENDING")}
	store := NewLedgerStore(db)

	d, err := store.GetDonation(context.Background(), 11)
	if err != nil {
		t.Fatalf("GetDonation error: %v", err)
	}
	if d.ID != 11 || d.DonorID != 7 {
		t.Fatalf("unexpected ids: %+v", d)
	}
	if !d.Amount.Equal(decimal.RequireFromString("1000.50")) {
		t.Fatalf("expected amount 1000.50, got %s", d.Amount)
	}
	if d.Target.Type != domain.DonationTypeProject || d.Target.ProjectID == nil || *d.Target.ProjectID != 3 {
		t.Fatalf("unexpected target: %+v", d.Target)
	}
	if d.Target.StudentID != nil {
		t.Fatalf("expected nil student id")
	}
	if d.PaymentStatus != domain.PaymentStatusPending {
		t.Fatalf("expected PENDING, got %s", d.PaymentStatus)
	}
	if db.last().query != sqlinline.QSelectDonation {
		t.Fatalf("expected select donation query")
	}
}

func TestGetDonationNotFound(t *testing.T) {
	store := NewLedgerStore(&fakeDB{})
	_, err := store.GetDonation(context.Background(), 1)
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListDonationsPassesFilter(t *testing.T) {
	db := &fakeDB{rows: [][]any{donationRow(1, nil, "COMPLETED"), donationRow(2, nil, "COMPLETED")}}
	store := NewLedgerStore(db)

	items, err := store.ListDonations(context.Background(), domain.DonationFilter{DonorID: 7, Status: domain.PaymentStatusCompleted})
	if err != nil {
		t.Fatalf("ListDonations error: %v", err)
	}
	if len(items) != 2 || items[1].ID != 2 {
		t.Fatalf("unexpected items: %+v", items)
	}
	args := db.last().args
	if args[0] != int64(7) || args[1] != int64(0) || args[3] != "COMPLETED" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestWithinTxLocksThroughTransaction(t *testing.T) {
	db := &fakeDB{row: donationRow(5, nil, "COMPLETED")}
	store := NewLedgerStore(db)

	err := store.WithinTx(context.Background(), func(tx domain.LedgerTx) error {
		_, err := tx.LockDonation(context.Background(), 5)
		return err
	})
	if err != nil {
		t.Fatalf("WithinTx error: %v", err)
	}
	if !db.inTx {
		t.Fatalf("expected InTx to be used")
	}
	if db.last().query != sqlinline.QLockDonation {
		t.Fatalf("expected lock query, got %q", db.last().query)
	}
}

func utilizationRow(id int64, status string) []any {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	return []any{id, int64(5), int64(3), nil, "100", "desks", "CV Meja", "INV-1", []string{"r.pdf"}, now,
		status, "", "", nil, now, now}
}

func TestWithinTxLocksReviewedRows(t *testing.T) {
	tests := []struct {
		name  string
		row   []any
		lock  func(ctx context.Context, tx domain.LedgerTx) error
		query string
	}{
		{
			name: "utilization",
			row:  utilizationRow(8, "PENDING"),
			lock: func(ctx context.Context, tx domain.LedgerTx) error {
				_, err := tx.LockUtilization(ctx, 8)
				return err
			},
			query: sqlinline.QLockUtilization,
		},
		{
			name: "transparency",
			row: []any{int64(2), int64(8), []string{"a"}, []string{"b"}, "thanks", "10", "10",
				"UNVERIFIED", "", nil, false, nil, nil, time.Now(), time.Now()},
			lock: func(ctx context.Context, tx domain.LedgerTx) error {
				_, err := tx.LockTransparency(ctx, 2)
				return err
			},
			query: sqlinline.QLockTransparency,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := &fakeDB{row: tt.row}
			store := NewLedgerStore(db)

			err := store.WithinTx(context.Background(), func(tx domain.LedgerTx) error {
				return tt.lock(context.Background(), tx)
			})
			if err != nil {
				t.Fatalf("WithinTx error: %v", err)
			}
			if !db.inTx {
				t.Fatalf("expected InTx to be used")
			}
			if db.last().query != tt.query {
				t.Fatalf("expected lock query, got %q", db.last().query)
			}
			if !strings.Contains(tt.query, "for update") {
				t.Fatalf("lock query does not hold the row")
			}
		})
	}
}

func TestLockUtilizationMissingRow(t *testing.T) {
	db := &fakeDB{}
	store := NewLedgerStore(db)

	err := store.WithinTx(context.Background(), func(tx domain.LedgerTx) error {
		_, err := tx.LockUtilization(context.Background(), 99)
		return err
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateUtilizationAlreadyReviewed(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}
	store := NewLedgerStore(db)
	now := time.Now()

	err := store.WithinTx(context.Background(), func(tx domain.LedgerTx) error {
		return tx.UpdateUtilization(context.Background(), &domain.FundUtilization{
			ID: 8, Status: domain.UtilizationStatusApproved, ReviewedBy: "auditor", ReviewedAt: &now, UpdatedAt: now,
		})
	})
	if !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !strings.Contains(db.last().query, "status = 'PENDING'") {
		t.Fatalf("expected update guarded on PENDING status")
	}
}

func TestWithinTxPropagatesCallbackError(t *testing.T) {
	db := &fakeDB{}
	store := NewLedgerStore(db)
	boom := errors.New("boom")

	err := store.WithinTx(context.Background(), func(tx domain.LedgerTx) error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if len(db.txErrs) != 1 || !errors.Is(db.txErrs[0], boom) {
		t.Fatalf("expected InTx to observe the failure")
	}
}

func TestCreateTransactionDuplicateReference(t *testing.T) {
	db := &fakeDB{err: &pgconn.PgError{Code: "23505"}}
	store := NewLedgerStore(db)

	err := store.WithinTx(context.Background(), func(tx domain.LedgerTx) error {
		return tx.CreateTransaction(context.Background(), &domain.PaymentTransaction{
			DonationID: 1,
			Type:       domain.TransactionTypeDonation,
			Status:     domain.TransactionStatusCompleted,
			Reference:  "ref-1",
			Amount:     decimal.NewFromInt(10),
		})
	})
	if !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
}

func TestCreateDonationSendsDecimalAsText(t *testing.T) {
	db := &fakeDB{row: []any{int64(42)}}
	store := NewLedgerStore(db)
	d := &domain.Donation{
		DonorID:       1,
		Target:        domain.GeneralTarget(),
		Amount:        decimal.RequireFromString("250.75"),
		PaymentStatus: domain.PaymentStatusPending,
	}

	err := store.WithinTx(context.Background(), func(tx domain.LedgerTx) error {
		return tx.CreateDonation(context.Background(), d)
	})
	if err != nil {
		t.Fatalf("CreateDonation error: %v", err)
	}
	if d.ID != 42 {
		t.Fatalf("expected id 42, got %d", d.ID)
	}
	if got := db.last().args[4]; got != "250.75" {
		t.Fatalf("expected amount text 250.75, got %v", got)
	}
}

func TestUpdateDonationMissingRow(t *testing.T) {
	db := &fakeDB{tag: pgconn.NewCommandTag("UPDATE 0")}
	store := NewLedgerStore(db)

	err := store.WithinTx(context.Background(), func(tx domain.LedgerTx) error {
		return tx.UpdateDonation(context.Background(), &domain.Donation{ID: 9, PaymentStatus: domain.PaymentStatusFailed})
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetTransparencyDecodesWarning(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	warning := []byte(`{"expected":"100","actual":"90","delta":"10","allowed":"1","message":"mismatch"}`)
	db := &fakeDB{row: []any{int64(1), int64(2), []string{"a"}, []string{"b"}, "thanks", "10", "10",
		"UNVERIFIED", "", nil, false, nil, warning, now, now}}
	store := NewLedgerStore(db)

	tr, err := store.GetTransparency(context.Background(), 1)
	if err != nil {
		t.Fatalf("GetTransparency error: %v", err)
	}
	if tr.Warning == nil || !tr.Warning.Delta.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected decoded warning, got %+v", tr.Warning)
	}
	if !tr.NeedsReview() {
		t.Fatalf("expected record to need review")
	}
}

func TestListPredictionsEmptyFilter(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	notes := []byte(`[{"author":"ana","text":"home visit","created_at":"2026-02-01T00:00:00Z"}]`)
	db := &fakeDB{rows: [][]any{{int64(4), "40", "20", "50", "68", "HIGH", []string{"low-attendance"}, notes, now}}}
	store := NewRiskStore(db)

	items, err := store.ListPredictions(context.Background(), domain.PredictionFilter{})
	if err != nil {
		t.Fatalf("ListPredictions error: %v", err)
	}
	if len(items) != 1 || items[0].RiskLevel != domain.RiskLevelHigh {
		t.Fatalf("unexpected items: %+v", items)
	}
	if len(items[0].InterventionNotes) != 1 || items[0].InterventionNotes[0].Author != "ana" {
		t.Fatalf("expected decoded note, got %+v", items[0].InterventionNotes)
	}
	args := db.last().args
	if ids, ok := args[0].([]int64); !ok || len(ids) != 0 {
		t.Fatalf("expected empty id slice, got %#v", args[0])
	}
	if before, ok := args[2].(*time.Time); !ok || before != nil {
		t.Fatalf("expected nil cutoff, got %#v", args[2])
	}
}

func TestAddAttendanceUsesDay(t *testing.T) {
	db := &fakeDB{}
	store := NewRiskStore(db)
	at := time.Date(2026, 3, 5, 17, 30, 0, 0, time.UTC)

	if err := store.AddAttendance(context.Background(), domain.AttendanceRecord{StudentID: 1, Date: at, Present: true}); err != nil {
		t.Fatalf("AddAttendance error: %v", err)
	}
	if got := db.last().args[1]; got != "2026-03-05" {
		t.Fatalf("expected day 2026-03-05, got %v", got)
	}
}

func TestWithinStudentLocksStudentRow(t *testing.T) {
	db := &fakeDB{row: []any{int64(4)}}
	store := NewRiskStore(db)

	err := store.WithinStudent(context.Background(), 4, func(tx domain.RiskTx) error {
		return tx.SavePrediction(context.Background(), &domain.DropoutPrediction{StudentID: 4, RiskLevel: domain.RiskLevelLow})
	})
	if err != nil {
		t.Fatalf("WithinStudent error: %v", err)
	}
	if !db.inTx {
		t.Fatalf("expected InTx to be used")
	}
	if len(db.calls) != 2 || db.calls[0].query != sqlinline.QLockStudentRisk || db.calls[1].query != sqlinline.QUpsertPrediction {
		t.Fatalf("expected lock then upsert, got %d calls", len(db.calls))
	}
}

func TestWithinStudentUnknownStudent(t *testing.T) {
	db := &fakeDB{}
	store := NewRiskStore(db)
	called := false

	err := store.WithinStudent(context.Background(), 77, func(tx domain.RiskTx) error {
		called = true
		return nil
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if called {
		t.Fatalf("callback ran without the student lock")
	}
}
