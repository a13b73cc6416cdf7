package stats

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"fundtrace/internal/adapter/memstore"
	"fundtrace/internal/domain"
	"fundtrace/internal/events"
	"fundtrace/internal/ledger"
)

var fixedNow = time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(v int64) *int64 { return &v }

type fixture struct {
	store  *memstore.Store
	ledger *ledger.Engine
	agg    *Aggregator
}

// newFixture wires the aggregator to ledger events unless detached is set.
func newFixture(t *testing.T, detached bool) *fixture {
	t.Helper()
	store := memstore.New()
	store.PutProject(domain.Project{ID: 1, NgoID: 10, Title: "Library", AllocatedBudget: dec("10000"), Active: true})
	store.PutProject(domain.Project{ID: 2, NgoID: 10, Title: "Meals", AllocatedBudget: dec("2000"), Active: true})
	store.PutProject(domain.Project{ID: 3, NgoID: 20, Title: "Water", AllocatedBudget: dec("500"), Active: true})
	for _, id := range []int64{1, 2, 3} {
		store.PutSchool(domain.School{ID: id})
	}
	store.PutStudent(domain.Student{ID: 1, SchoolID: 1})
	store.PutStudent(domain.Student{ID: 2, SchoolID: 3})
	store.PutStudent(domain.Student{ID: 3, SchoolID: 3})

	agg := New(store, WithRiskStore(store))
	var pub events.Publisher = agg
	if detached {
		pub = events.Nop{}
	}
	engine := ledger.New(store, ledger.WithClock(func() time.Time { return fixedNow }), ledger.WithPublisher(events.Fanout{pub}))
	return &fixture{store: store, ledger: engine, agg: agg}
}

func (f *fixture) donate(t *testing.T, in ledger.DonationInput, settle bool) *domain.Donation {
	t.Helper()
	ctx := context.Background()
	d, err := f.ledger.RecordDonation(ctx, in)
	if err != nil {
		t.Fatalf("RecordDonation: %v", err)
	}
	if settle {
		if _, err := f.ledger.SettlePayment(ctx, d.ID, domain.GatewayResult{ReferenceID: ledger.PaymentReference(d.ID), Status: domain.TransactionStatusCompleted}); err != nil {
			t.Fatalf("SettlePayment: %v", err)
		}
	}
	return d
}

func (f *fixture) selectSchool(t *testing.T, projectID, schoolID int64, alloc string) {
	t.Helper()
	if _, err := f.ledger.SelectSchool(context.Background(), ledger.ParticipationInput{ProjectID: projectID, SchoolID: schoolID, AllocatedBudget: dec(alloc)}); err != nil {
		t.Fatalf("SelectSchool: %v", err)
	}
}

func (f *fixture) spend(t *testing.T, donationID, projectID, schoolID int64, amount string, approve bool) {
	t.Helper()
	ctx := context.Background()
	u, err := f.ledger.RecordUtilization(ctx, ledger.UtilizationInput{
		DonationID: donationID, ProjectID: projectID, SchoolID: ptr(schoolID), Amount: dec(amount),
		Vendor: "v", InvoiceNumber: "i", ReceiptURLs: []string{"https://files.example.org/r.jpg"}, UtilizationDate: fixedNow,
	})
	if err != nil {
		t.Fatalf("RecordUtilization: %v", err)
	}
	if approve {
		if _, err := f.ledger.ReviewUtilization(ctx, u.ID, ledger.Review{ReviewerID: "rev", Approve: true}); err != nil {
			t.Fatalf("ReviewUtilization: %v", err)
		}
	}
}

func TestDonorStatsCountsDistinctTargets(t *testing.T) {
	f := newFixture(t, false)
	f.selectSchool(t, 1, 1, "1000")
	f.selectSchool(t, 1, 2, "1000")

	f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeProject, ProjectID: ptr(1), Amount: dec("100")}, true)
	f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeProject, ProjectID: ptr(1), Amount: dec("50.25")}, true)
	f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeStudent, StudentID: ptr(1), Amount: dec("20")}, true)
	f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeStudent, StudentID: ptr(2), Amount: dec("20")}, true)
	f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeGeneral, Amount: dec("9.75")}, true)
	f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeProject, ProjectID: ptr(2), Amount: dec("999")}, false)
	f.donate(t, ledger.DonationInput{DonorID: 8, Type: domain.DonationTypeGeneral, Amount: dec("1")}, true)

	s, err := f.agg.DonorStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("DonorStats: %v", err)
	}
	if !s.TotalDonated.Equal(dec("200")) {
		t.Fatalf("total = %s, want 200", s.TotalDonated)
	}
	if s.ProjectsDonated != 1 || s.StudentsSponsored != 2 || s.SchoolsSupported != 3 {
		t.Fatalf("unexpected stats %+v", s)
	}
}

func TestDonorStatsCacheFollowsLedgerEvents(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeGeneral, Amount: dec("10")}, true)

	if s, _ := f.agg.DonorStats(ctx, 7); !s.TotalDonated.Equal(dec("10")) {
		t.Fatalf("total = %s", s.TotalDonated)
	}
	d := f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeGeneral, Amount: dec("5")}, true)
	if s, _ := f.agg.DonorStats(ctx, 7); !s.TotalDonated.Equal(dec("15")) {
		t.Fatalf("cache not invalidated on settlement: %s", s.TotalDonated)
	}
	if _, err := f.ledger.RefundDonation(ctx, d.ID, domain.GatewayResult{ReferenceID: "rf-1", Status: domain.TransactionStatusCompleted}); err != nil {
		t.Fatalf("RefundDonation: %v", err)
	}
	if s, _ := f.agg.DonorStats(ctx, 7); !s.TotalDonated.Equal(dec("10")) {
		t.Fatalf("cache not invalidated on refund: %s", s.TotalDonated)
	}
	drifts, err := f.agg.Reconcile(ctx)
	if err != nil || len(drifts) != 0 {
		t.Fatalf("Reconcile = %+v, %v", drifts, err)
	}
}

func TestReconcileReportsDriftWhenDetached(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeGeneral, Amount: dec("10")}, true)
	if _, err := f.agg.DonorStats(ctx, 7); err != nil {
		t.Fatalf("DonorStats: %v", err)
	}
	f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeGeneral, Amount: dec("5")}, true)

	drifts, err := f.agg.Reconcile(ctx)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(drifts) != 1 || !drifts[0].Fresh.TotalDonated.Equal(dec("15")) {
		t.Fatalf("drifts = %+v", drifts)
	}
	if s, _ := f.agg.DonorStats(ctx, 7); !s.TotalDonated.Equal(dec("15")) {
		t.Fatalf("reconcile did not repair cache: %s", s.TotalDonated)
	}
}

func TestDonorStatsNeverDivergeFromRecompute(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 60; i++ {
		donor := int64(rng.Intn(3) + 1)
		amount := decimal.New(int64(rng.Intn(100000)+1), -2)
		f.donate(t, ledger.DonationInput{DonorID: donor, Type: domain.DonationTypeGeneral, Amount: amount}, rng.Intn(4) != 0)
		if _, err := f.agg.DonorStats(ctx, donor); err != nil {
			t.Fatalf("DonorStats: %v", err)
		}
		for id := int64(1); id <= 3; id++ {
			cached, _ := f.agg.DonorStats(ctx, id)
			fresh, err := f.agg.computeDonor(ctx, id)
			if err != nil {
				t.Fatalf("computeDonor: %v", err)
			}
			if !sameDonorStats(cached, fresh) {
				t.Fatalf("step %d donor %d: cached %+v fresh %+v", i, id, cached, fresh)
			}
		}
	}
}

func TestProjectSchoolBudget(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.selectSchool(t, 1, 1, "1000")
	f.selectSchool(t, 1, 2, "0")
	d := f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeGeneral, Amount: dec("5000")}, true)
	f.spend(t, d.ID, 1, 1, "250", true)
	f.spend(t, d.ID, 1, 1, "100", false)

	b, err := f.agg.ProjectSchoolBudget(ctx, 1, 1)
	if err != nil {
		t.Fatalf("ProjectSchoolBudget: %v", err)
	}
	if !b.Utilized.Equal(dec("250")) || !b.Remaining().Equal(dec("750")) || !b.UtilizationPercentage().Equal(dec("25")) {
		t.Fatalf("unexpected budget utilized=%s remaining=%s pct=%s", b.Utilized, b.Remaining(), b.UtilizationPercentage())
	}
	empty, err := f.agg.ProjectSchoolBudget(ctx, 1, 2)
	if err != nil || !empty.UtilizationPercentage().IsZero() {
		t.Fatalf("zero allocation: %+v %v", empty, err)
	}
	if _, err := f.agg.ProjectSchoolBudget(ctx, 2, 1); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNgoSchoolAndPlatformStats(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()
	f.selectSchool(t, 1, 1, "1000")
	f.selectSchool(t, 2, 1, "500")
	f.selectSchool(t, 2, 3, "500")
	d := f.donate(t, ledger.DonationInput{DonorID: 7, Type: domain.DonationTypeGeneral, Amount: dec("3000"), OriginCountry: "ID"}, true)
	f.donate(t, ledger.DonationInput{DonorID: 8, Type: domain.DonationTypeGeneral, Amount: dec("40")}, true)
	f.spend(t, d.ID, 1, 1, "600", true)
	f.spend(t, d.ID, 2, 1, "200", true)
	f.spend(t, d.ID, 2, 3, "100", false)

	ngo, err := f.agg.NgoStats(ctx, 10)
	if err != nil {
		t.Fatalf("NgoStats: %v", err)
	}
	// 800 approved of 12000 allocated
	if ngo.Projects != 2 || ngo.SchoolsReached != 2 || !ngo.TotalUtilized.Equal(dec("800")) || !ngo.UtilizationPercentage.Equal(dec("6.67")) {
		t.Fatalf("unexpected ngo stats %+v", ngo)
	}

	_ = f.store.SavePrediction(ctx, &domain.DropoutPrediction{StudentID: 2, RiskLevel: domain.RiskLevelCritical})
	_ = f.store.SavePrediction(ctx, &domain.DropoutPrediction{StudentID: 3, RiskLevel: domain.RiskLevelLow})
	school, err := f.agg.SchoolStats(ctx, 3)
	if err != nil {
		t.Fatalf("SchoolStats: %v", err)
	}
	if school.Projects != 1 || school.Students != 2 || school.StudentsAtRisk != 1 || !school.TotalUtilized.IsZero() {
		t.Fatalf("unexpected school stats %+v", school)
	}
	if school.RiskLevelCounts[domain.RiskLevelCritical] != 1 || school.RiskLevelCounts[domain.RiskLevelLow] != 1 {
		t.Fatalf("unexpected risk counts %v", school.RiskLevelCounts)
	}
	if _, err := f.agg.SchoolStats(ctx, 42); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	sum, err := f.agg.PlatformSummary(ctx)
	if err != nil {
		t.Fatalf("PlatformSummary: %v", err)
	}
	if sum.CompletedDonations != 2 || sum.Donors != 2 || !sum.TotalDonated.Equal(dec("3040")) || !sum.TotalUtilized.Equal(dec("800")) {
		t.Fatalf("unexpected summary %+v", sum)
	}
	if !sum.ByCountry["ID"].Equal(dec("3000")) || !sum.ByCountry["UNKNOWN"].Equal(dec("40")) {
		t.Fatalf("unexpected by-country %v", sum.ByCountry)
	}
}
