package risk

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func signals(att, inc, par string) domain.RiskSignals {
	return domain.RiskSignals{AttendanceRate: dec(att), FamilyIncomeScore: dec(inc), ParentStatusScore: dec(par)}
}

func TestComputeReferenceStudent(t *testing.T) {
	a := Compute(signals("40", "20", "30"), DefaultModel())
	// 0.5*60 + 0.3*80 + 0.2*70
	if !a.Score.Equal(dec("68")) {
		t.Fatalf("score = %s, want 68", a.Score)
	}
	if a.Level != domain.RiskLevelHigh {
		t.Fatalf("level = %s, want HIGH", a.Level)
	}
	want := []string{domain.FactorLowAttendance, domain.FactorLowIncome, domain.FactorSingleParentOrOrphan}
	if !reflect.DeepEqual(a.Factors, want) {
		t.Fatalf("factors = %v, want %v", a.Factors, want)
	}
	if len(a.Diagnostics) != 0 {
		t.Fatalf("unexpected diagnostics %v", a.Diagnostics)
	}
}

func TestComputeIsDeterministic(t *testing.T) {
	in := signals("57.3", "12.25", "81")
	first := Compute(in, DefaultModel())
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got := Compute(in, DefaultModel())
			if !got.Score.Equal(first.Score) || got.Level != first.Level || !reflect.DeepEqual(got.Factors, first.Factors) {
				t.Errorf("non deterministic result %+v vs %+v", got, first)
			}
		}()
	}
	wg.Wait()
}

func TestLevelBoundaries(t *testing.T) {
	m := DefaultModel()
	cases := map[string]domain.RiskLevel{
		"0":     domain.RiskLevelLow,
		"24":    domain.RiskLevelLow,
		"24.99": domain.RiskLevelLow,
		"25":    domain.RiskLevelMedium,
		"49.99": domain.RiskLevelMedium,
		"50":    domain.RiskLevelHigh,
		"74":    domain.RiskLevelHigh,
		"74.99": domain.RiskLevelHigh,
		"75":    domain.RiskLevelCritical,
		"100":   domain.RiskLevelCritical,
	}
	for score, want := range cases {
		if got := m.Level(dec(score)); got != want {
			t.Fatalf("Level(%s) = %s, want %s", score, got, want)
		}
	}
}

func TestComputeScoresAtBoundaries(t *testing.T) {
	m := DefaultModel()
	cases := []struct {
		in        domain.RiskSignals
		wantScore string
		want      domain.RiskLevel
	}{
		// attendance only: 0.5*(100-a)
		{signals("52", "100", "100"), "24", domain.RiskLevelLow},
		{signals("50", "100", "100"), "25", domain.RiskLevelMedium},
		{signals("0", "100", "30"), "64", domain.RiskLevelHigh},
		{signals("0", "50", "100"), "65", domain.RiskLevelHigh},
		{signals("0", "0", "70"), "86", domain.RiskLevelCritical},
		{signals("0", "100", "0"), "70", domain.RiskLevelHigh},
		{signals("0", "0", "0"), "100", domain.RiskLevelCritical},
		{signals("100", "100", "100"), "0", domain.RiskLevelLow},
	}
	for _, tc := range cases {
		a := Compute(tc.in, m)
		if !a.Score.Equal(dec(tc.wantScore)) || a.Level != tc.want {
			t.Fatalf("Compute(%+v) = %s/%s, want %s/%s", tc.in, a.Score, a.Level, tc.wantScore, tc.want)
		}
	}
}

func TestComputeClampsOutOfRangeSignals(t *testing.T) {
	a := Compute(signals("-10", "140", "50"), DefaultModel())
	if len(a.Diagnostics) != 2 {
		t.Fatalf("diagnostics = %v", a.Diagnostics)
	}
	if !errors.Is(a.Diagnostics[0], domain.ErrSignalOutOfRange) {
		t.Fatalf("diagnostic does not match ErrSignalOutOfRange: %v", a.Diagnostics[0])
	}
	if a.Diagnostics[0].Signal != "attendance_rate" || !a.Diagnostics[0].Clamped.IsZero() {
		t.Fatalf("unexpected first diagnostic %+v", a.Diagnostics[0])
	}
	if a.Diagnostics[1].Signal != "family_income_score" || !a.Diagnostics[1].Clamped.Equal(dec("100")) {
		t.Fatalf("unexpected second diagnostic %+v", a.Diagnostics[1])
	}
	// 0.5*100 + 0.3*0 + 0.2*50
	if !a.Score.Equal(dec("60")) {
		t.Fatalf("score = %s, want 60", a.Score)
	}
	if !a.Signals.AttendanceRate.IsZero() {
		t.Fatalf("stored signal not clamped: %s", a.Signals.AttendanceRate)
	}
}

func TestComputeRoundsToTwoPlaces(t *testing.T) {
	a := Compute(signals("33.333", "100", "100"), DefaultModel())
	if a.Score.String() != "33.33" {
		t.Fatalf("score = %s, want 33.33", a.Score)
	}
}

func TestFactorThresholdsAreStrict(t *testing.T) {
	a := Compute(signals("60", "30", "50"), DefaultModel())
	if len(a.Factors) != 0 {
		t.Fatalf("signals at thresholds should not raise factors: %v", a.Factors)
	}
}

func TestModelValidate(t *testing.T) {
	if err := DefaultModel().Validate(); err != nil {
		t.Fatalf("default model invalid: %v", err)
	}
	bad := DefaultModel()
	bad.IncomeWeight = dec("0.4")
	if err := bad.Validate(); err == nil {
		t.Fatal("expected weight sum error")
	}
	bad = DefaultModel()
	bad.HighCutoff = dec("20")
	if err := bad.Validate(); err == nil {
		t.Fatal("expected cutoff ordering error")
	}
}
