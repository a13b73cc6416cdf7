package transparency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fundtrace/internal/adapter/memstore"
	"fundtrace/internal/domain"
	"fundtrace/internal/events"
	"fundtrace/internal/ledger"
	"fundtrace/internal/storage"
)

var fixedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	store    *memstore.Store
	ledger   *ledger.Engine
	verifier *Verifier
	events   *events.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	store.PutProject(domain.Project{ID: 1, NgoID: 1, Title: "Desks", AllocatedBudget: dec("10000"), Active: true})
	clock := func() time.Time { return fixedNow }
	rec := &events.Recorder{}
	return &fixture{
		store:  store,
		ledger: ledger.New(store, ledger.WithClock(clock)),
		verifier: New(store, DefaultConfig(), WithClock(clock), WithPublisher(rec),
			WithURLPolicy(storage.NewURLPolicy("https://files.example.org", nil))),
		events: rec,
	}
}

// utilization books a spend of amount and approves it when approve is set.
func (f *fixture) utilization(t *testing.T, amount string, approve bool) *domain.FundUtilization {
	t.Helper()
	ctx := context.Background()
	d, err := f.ledger.RecordDonation(ctx, ledger.DonationInput{DonorID: 1, Type: domain.DonationTypeGeneral, Amount: dec("5000")})
	if err != nil {
		t.Fatalf("RecordDonation: %v", err)
	}
	if _, err := f.ledger.SettlePayment(ctx, d.ID, domain.GatewayResult{ReferenceID: ledger.PaymentReference(d.ID), Status: domain.TransactionStatusCompleted}); err != nil {
		t.Fatalf("SettlePayment: %v", err)
	}
	u, err := f.ledger.RecordUtilization(ctx, ledger.UtilizationInput{
		DonationID:      d.ID,
		ProjectID:       1,
		Amount:          dec(amount),
		Vendor:          "CV Meubel",
		InvoiceNumber:   "INV-9",
		ReceiptURLs:     []string{"https://files.example.org/receipt/1.jpg"},
		UtilizationDate: fixedNow,
	})
	if err != nil {
		t.Fatalf("RecordUtilization: %v", err)
	}
	if approve {
		if u, err = f.ledger.ReviewUtilization(ctx, u.ID, ledger.Review{ReviewerID: "rev", Approve: true}); err != nil {
			t.Fatalf("ReviewUtilization: %v", err)
		}
	}
	return u
}

func evidence(utilizationID int64, qty, cost string) EvidenceInput {
	return EvidenceInput{
		UtilizationID: utilizationID,
		BeforePhotos:  []string{"https://files.example.org/before/1.jpg"},
		AfterPhotos:   []string{"https://files.example.org/after/1.jpg"},
		UnitQuantity:  dec(qty),
		UnitCost:      dec(cost),
	}
}

func TestReconcile(t *testing.T) {
	cfg := Config{Tolerance: dec("0.01"), TolerancePercent: dec("1")}
	cases := []struct {
		name                 string
		amount, qty, cost    string
		wantWarning          bool
		wantDelta, wantAllow string
	}{
		{name: "exact", amount: "1000", qty: "10", cost: "100"},
		{name: "within percent", amount: "1000", qty: "3", cost: "336.66"},
		{name: "beyond percent", amount: "1000", qty: "10", cost: "102", wantWarning: true, wantDelta: "20", wantAllow: "10"},
		{name: "small amount uses absolute tolerance", amount: "0.50", qty: "1", cost: "0.51"},
		{name: "small amount beyond absolute", amount: "0.50", qty: "1", cost: "0.52", wantWarning: true, wantDelta: "0.02", wantAllow: "0.01"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := Reconcile(dec(tc.amount), dec(tc.qty), dec(tc.cost), cfg)
			if (w != nil) != tc.wantWarning {
				t.Fatalf("warning = %+v, want %t", w, tc.wantWarning)
			}
			if w == nil {
				return
			}
			if !w.Delta.Equal(dec(tc.wantDelta)) || !w.Allowed.Equal(dec(tc.wantAllow)) {
				t.Fatalf("delta %s allowed %s", w.Delta, w.Allowed)
			}
		})
	}
}

func TestAttachEvidenceRequiresApprovedUtilization(t *testing.T) {
	f := newFixture(t)
	u := f.utilization(t, "1000", false)
	_, err := f.verifier.AttachEvidence(context.Background(), evidence(u.ID, "10", "100"))
	if !errors.Is(err, domain.ErrUtilizationNotApproved) {
		t.Fatalf("expected ErrUtilizationNotApproved, got %v", err)
	}
	if _, err := f.verifier.AttachEvidence(context.Background(), evidence(999, "10", "100")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAttachEvidenceFlagsMismatchButSucceeds(t *testing.T) {
	f := newFixture(t)
	u := f.utilization(t, "1000", true)
	ft, err := f.verifier.AttachEvidence(context.Background(), evidence(u.ID, "12", "100"))
	if err != nil {
		t.Fatalf("AttachEvidence: %v", err)
	}
	if !ft.NeedsReview() || !ft.Warning.Delta.Equal(dec("200")) {
		t.Fatalf("expected reconciliation warning, got %+v", ft.Warning)
	}
	if ft.IsPublic || ft.VerificationStatus != domain.VerificationStatusUnverified {
		t.Fatalf("new record must be private and unverified: %+v", ft)
	}
	stored, err := f.store.GetTransparencyByUtilization(context.Background(), u.ID)
	if err != nil || stored.Warning == nil {
		t.Fatalf("warning not persisted: %v %+v", err, stored)
	}
	if _, err := f.verifier.AttachEvidence(context.Background(), evidence(u.ID, "10", "100")); !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
}

func TestAttachEvidenceValidatesPhotos(t *testing.T) {
	f := newFixture(t)
	u := f.utilization(t, "1000", true)

	in := evidence(u.ID, "10", "100")
	in.AfterPhotos = nil
	if _, err := f.verifier.AttachEvidence(context.Background(), in); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing photos: %v", err)
	}
	in = evidence(u.ID, "10", "100")
	in.BeforePhotos = []string{"https://elsewhere.example.net/x.jpg"}
	if _, err := f.verifier.AttachEvidence(context.Background(), in); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("foreign host: %v", err)
	}
	if _, err := f.verifier.AttachEvidence(context.Background(), evidence(u.ID, "0", "100")); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("zero quantity: %v", err)
	}
}

func TestPublishRequiresVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	u := f.utilization(t, "1000", true)
	ft, err := f.verifier.AttachEvidence(ctx, evidence(u.ID, "10", "100"))
	if err != nil {
		t.Fatalf("AttachEvidence: %v", err)
	}
	if _, err := f.verifier.Publish(ctx, ft.ID); !errors.Is(err, domain.ErrNotVerified) {
		t.Fatalf("expected ErrNotVerified, got %v", err)
	}
	stored, _ := f.store.GetTransparency(ctx, ft.ID)
	if stored.IsPublic {
		t.Fatal("unverified record became public")
	}
	if _, err := f.verifier.Verify(ctx, ft.ID, " "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank verifier: %v", err)
	}
	if _, err := f.verifier.Verify(ctx, ft.ID, "auditor-7"); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	published, err := f.verifier.Publish(ctx, ft.ID)
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !published.IsPublic || published.PublishedAt == nil || published.VerifiedBy != "auditor-7" {
		t.Fatalf("unexpected published record %+v", published)
	}
	if _, err := f.verifier.Publish(ctx, ft.ID); err != nil {
		t.Fatalf("second publish: %v", err)
	}
	count := 0
	for _, typ := range f.events.Types() {
		if typ == events.TransparencyPublished {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("published events = %d, want 1", count)
	}
}

func TestAttachEvidenceWithVerifierStartsVerified(t *testing.T) {
	f := newFixture(t)
	u := f.utilization(t, "1000", true)
	in := evidence(u.ID, "10", "100")
	in.VerifierID = "auditor-1"
	ft, err := f.verifier.AttachEvidence(context.Background(), in)
	if err != nil {
		t.Fatalf("AttachEvidence: %v", err)
	}
	if ft.VerificationStatus != domain.VerificationStatusVerified || ft.VerifiedAt == nil {
		t.Fatalf("expected verified record, got %+v", ft)
	}
	if _, err := f.verifier.Publish(context.Background(), ft.ID); err != nil {
		t.Fatalf("Publish: %v", err)
	}
}
