package risk

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"fundtrace/internal/adapter/memstore"
	"fundtrace/internal/domain"
	"fundtrace/internal/events"
)

func newService(t *testing.T, now *time.Time) (*Service, *memstore.Store, *events.Recorder) {
	t.Helper()
	store := memstore.New()
	store.PutStudent(domain.Student{ID: 1, SchoolID: 1, Name: "Ayu"})
	rec := &events.Recorder{}
	svc, err := NewService(store, store, WithClock(func() time.Time { return *now }), WithPublisher(rec))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store, rec
}

func TestComputeRiskStoresPrediction(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, store, rec := newService(t, &now)
	ctx := context.Background()

	res, err := svc.ComputeRisk(ctx, 1, signals("40", "20", "30"))
	if err != nil {
		t.Fatalf("ComputeRisk: %v", err)
	}
	if res.Prediction.RiskLevel != domain.RiskLevelHigh || !res.Prediction.LastCalculated.Equal(now) {
		t.Fatalf("unexpected prediction %+v", res.Prediction)
	}
	stored, err := store.GetPrediction(ctx, 1)
	if err != nil || !stored.OverallRiskScore.Equal(dec("68")) {
		t.Fatalf("stored prediction %+v %v", stored, err)
	}
	if got := rec.Types(); len(got) != 1 || got[0] != events.RiskTierChanged {
		t.Fatalf("events = %v", got)
	}

	if _, err := svc.ComputeRisk(ctx, 1, signals("41", "20", "30")); err != nil {
		t.Fatalf("ComputeRisk: %v", err)
	}
	if len(rec.Types()) != 1 {
		t.Fatalf("same tier must not emit another event: %v", rec.Types())
	}
	if _, err := svc.ComputeRisk(ctx, 99, signals("40", "20", "30")); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestComputeRiskKeepsNotes(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, _, _ := newService(t, &now)
	ctx := context.Background()

	if _, err := svc.AddInterventionNote(ctx, 1, "cw", "home visit"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("note before prediction: %v", err)
	}
	if _, err := svc.ComputeRisk(ctx, 1, signals("40", "20", "30")); err != nil {
		t.Fatalf("ComputeRisk: %v", err)
	}
	if _, err := svc.AddInterventionNote(ctx, 1, "cw", "  "); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("blank note: %v", err)
	}
	if _, err := svc.AddInterventionNote(ctx, 1, "cw", "home visit"); err != nil {
		t.Fatalf("AddInterventionNote: %v", err)
	}
	res, err := svc.UpdateFamilyData(ctx, 1, dec("90"), dec("90"))
	if err != nil {
		t.Fatalf("UpdateFamilyData: %v", err)
	}
	p := res.Prediction
	// attendance stays 40: 0.5*60 + 0.3*10 + 0.2*10
	if !p.OverallRiskScore.Equal(dec("35")) || p.RiskLevel != domain.RiskLevelMedium {
		t.Fatalf("unexpected rescore %s %s", p.OverallRiskScore, p.RiskLevel)
	}
	if len(p.InterventionNotes) != 1 || p.InterventionNotes[0].Text != "home visit" {
		t.Fatalf("notes lost on recompute: %+v", p.InterventionNotes)
	}
}

func TestRecordAttendanceDerivesRate(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, _, _ := newService(t, &now)
	ctx := context.Background()

	day := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	var res *Result
	var err error
	for i, present := range []bool{true, false, false, true} {
		res, err = svc.RecordAttendance(ctx, 1, day.AddDate(0, 0, i), present)
		if err != nil {
			t.Fatalf("RecordAttendance: %v", err)
		}
	}
	p := res.Prediction
	if !p.Signals.AttendanceRate.Equal(dec("50")) {
		t.Fatalf("attendance rate = %s, want 50", p.Signals.AttendanceRate)
	}
	// only attendance is known: 0.5*50
	if !p.OverallRiskScore.Equal(dec("25")) || p.RiskLevel != domain.RiskLevelMedium {
		t.Fatalf("unexpected prediction %s %s", p.OverallRiskScore, p.RiskLevel)
	}
	if _, err := svc.RecordAttendance(ctx, 1, time.Time{}, true); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestComputeRiskReportsClampedSignals(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, _, _ := newService(t, &now)
	res, err := svc.ComputeRisk(context.Background(), 1, signals("120", "50", "50"))
	if err != nil {
		t.Fatalf("clamped signals must still score: %v", err)
	}
	if len(res.Diagnostics) != 1 || !errors.Is(res.Diagnostics[0], domain.ErrSignalOutOfRange) {
		t.Fatalf("diagnostics = %v", res.Diagnostics)
	}
}

func TestRefreshStale(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, store, _ := newService(t, &now)
	ctx := context.Background()
	if _, err := svc.ComputeRisk(ctx, 1, signals("40", "20", "30")); err != nil {
		t.Fatalf("ComputeRisk: %v", err)
	}
	now = now.AddDate(0, 1, 0)
	n, err := svc.RefreshStale(ctx, now.AddDate(0, 0, -7))
	if err != nil || n != 1 {
		t.Fatalf("RefreshStale = %d, %v", n, err)
	}
	p, _ := store.GetPrediction(ctx, 1)
	if !p.LastCalculated.Equal(now) || !p.OverallRiskScore.Equal(dec("68")) {
		t.Fatalf("unexpected refreshed prediction %+v", p)
	}
	if n, _ := svc.RefreshStale(ctx, now.AddDate(0, 0, -7)); n != 0 {
		t.Fatalf("fresh predictions refreshed again: %d", n)
	}
}

// hookStore runs callbacks at chosen points of the service's store access.
type hookStore struct {
	*memstore.Store
	afterList func()
	afterGet  func()
}

func (h *hookStore) ListPredictions(ctx context.Context, f domain.PredictionFilter) ([]domain.DropoutPrediction, error) {
	out, err := h.Store.ListPredictions(ctx, f)
	if h.afterList != nil {
		h.afterList()
	}
	return out, err
}

func (h *hookStore) WithinStudent(ctx context.Context, studentID int64, fn func(tx domain.RiskTx) error) error {
	return h.Store.WithinStudent(ctx, studentID, func(tx domain.RiskTx) error {
		return fn(hookTx{RiskTx: tx, afterGet: h.afterGet})
	})
}

type hookTx struct {
	domain.RiskTx
	afterGet func()
}

func (t hookTx) GetPrediction(ctx context.Context, studentID int64) (*domain.DropoutPrediction, error) {
	p, err := t.RiskTx.GetPrediction(ctx, studentID)
	if t.afterGet != nil {
		t.afterGet()
	}
	return p, err
}

func newHookedService(t *testing.T, now *time.Time) (*Service, *hookStore) {
	t.Helper()
	store := &hookStore{Store: memstore.New()}
	store.PutStudent(domain.Student{ID: 1, SchoolID: 1, Name: "Ayu"})
	svc, err := NewService(store, store, WithClock(func() time.Time { return *now }))
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc, store
}

func TestNoteAddedDuringRescoreSurvives(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, store := newHookedService(t, &now)
	ctx := context.Background()
	if _, err := svc.ComputeRisk(ctx, 1, signals("40", "20", "30")); err != nil {
		t.Fatalf("ComputeRisk: %v", err)
	}

	done := make(chan error, 1)
	var once sync.Once
	store.afterGet = func() {
		once.Do(func() {
			go func() {
				_, err := svc.AddInterventionNote(ctx, 1, "cw", "called parents")
				done <- err
			}()
		})
	}
	if _, err := svc.UpdateFamilyData(ctx, 1, dec("90"), dec("90")); err != nil {
		t.Fatalf("UpdateFamilyData: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("AddInterventionNote: %v", err)
	}

	p, err := store.GetPrediction(ctx, 1)
	if err != nil {
		t.Fatalf("GetPrediction: %v", err)
	}
	if len(p.InterventionNotes) != 1 || p.InterventionNotes[0].Text != "called parents" {
		t.Fatalf("note lost: %+v", p.InterventionNotes)
	}
	if !p.Signals.FamilyIncomeScore.Equal(dec("90")) {
		t.Fatalf("family update lost: %s", p.Signals.FamilyIncomeScore)
	}
}

func TestConcurrentNotesAndRescores(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, store, _ := newService(t, &now)
	ctx := context.Background()
	if _, err := svc.ComputeRisk(ctx, 1, signals("40", "20", "30")); err != nil {
		t.Fatalf("ComputeRisk: %v", err)
	}

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, 2*n)
	for i := 0; i < n; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			_, err := svc.AddInterventionNote(ctx, 1, "cw", fmt.Sprintf("note %d", i))
			errs <- err
		}(i)
		go func() {
			defer wg.Done()
			_, err := svc.UpdateFamilyData(ctx, 1, dec("50"), dec("50"))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent update: %v", err)
		}
	}

	p, _ := store.GetPrediction(ctx, 1)
	if len(p.InterventionNotes) != n {
		t.Fatalf("expected %d notes, got %d", n, len(p.InterventionNotes))
	}
}

func TestRefreshStaleSkipsRescoredSinceListing(t *testing.T) {
	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	svc, store := newHookedService(t, &now)
	ctx := context.Background()
	if _, err := svc.ComputeRisk(ctx, 1, signals("40", "20", "30")); err != nil {
		t.Fatalf("ComputeRisk: %v", err)
	}
	now = now.AddDate(0, 1, 0)
	store.afterList = func() {
		if _, err := svc.ComputeRisk(ctx, 1, signals("90", "90", "90")); err != nil {
			t.Errorf("ComputeRisk: %v", err)
		}
	}

	n, err := svc.RefreshStale(ctx, now.AddDate(0, 0, -7))
	if err != nil || n != 0 {
		t.Fatalf("RefreshStale = %d, %v", n, err)
	}
	p, _ := store.GetPrediction(ctx, 1)
	if !p.Signals.AttendanceRate.Equal(dec("90")) {
		t.Fatalf("refresh overwrote newer signals: %+v", p.Signals)
	}
}

func TestNewServiceRejectsBadModel(t *testing.T) {
	m := DefaultModel()
	m.AttendanceWeight = dec("0.9")
	if _, err := NewService(memstore.New(), memstore.New(), WithModel(m)); err == nil {
		t.Fatal("expected invalid model error")
	}
}
