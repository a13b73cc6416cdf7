package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
)

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// Model holds the weights, tier cutoffs and per-signal factor thresholds.
// Every signal is 0-100 with higher meaning better off, so each enters the
// score inverted.
type Model struct {
	AttendanceWeight decimal.Decimal
	IncomeWeight     decimal.Decimal
	ParentWeight     decimal.Decimal

	// Scores at or above a cutoff fall into that tier.
	MediumCutoff   decimal.Decimal
	HighCutoff     decimal.Decimal
	CriticalCutoff decimal.Decimal

	// Signals strictly below a threshold raise the matching factor.
	LowAttendanceBelow decimal.Decimal
	LowIncomeBelow     decimal.Decimal
	ParentStatusBelow  decimal.Decimal
}

// DefaultModel weights attendance 50%, income 30% and parental status 20%.
func DefaultModel() Model {
	return Model{
		AttendanceWeight:   decimal.RequireFromString("0.5"),
		IncomeWeight:       decimal.RequireFromString("0.3"),
		ParentWeight:       decimal.RequireFromString("0.2"),
		MediumCutoff:       decimal.NewFromInt(25),
		HighCutoff:         decimal.NewFromInt(50),
		CriticalCutoff:     decimal.NewFromInt(75),
		LowAttendanceBelow: decimal.NewFromInt(60),
		LowIncomeBelow:     decimal.NewFromInt(30),
		ParentStatusBelow:  decimal.NewFromInt(50),
	}
}

// Validate requires non-negative weights summing to 1 and strictly increasing
// cutoffs inside (0, 100].
func (m Model) Validate() error {
	for name, w := range map[string]decimal.Decimal{
		"attendance": m.AttendanceWeight, "income": m.IncomeWeight, "parent": m.ParentWeight,
	} {
		if w.IsNegative() {
			return fmt.Errorf("risk model: %s weight %s is negative", name, w)
		}
	}
	sum := m.AttendanceWeight.Add(m.IncomeWeight).Add(m.ParentWeight)
	if !sum.Equal(decimal.NewFromInt(1)) {
		return fmt.Errorf("risk model: weights sum to %s, want 1", sum)
	}
	if !m.MediumCutoff.IsPositive() || !m.MediumCutoff.LessThan(m.HighCutoff) ||
		!m.HighCutoff.LessThan(m.CriticalCutoff) || m.CriticalCutoff.GreaterThan(hundred) {
		return errors.New("risk model: tier cutoffs must increase strictly within (0, 100]")
	}
	return nil
}

// Level maps a score to its tier. Each tier includes its lower bound.
func (m Model) Level(score decimal.Decimal) domain.RiskLevel {
	switch {
	case score.GreaterThanOrEqual(m.CriticalCutoff):
		return domain.RiskLevelCritical
	case score.GreaterThanOrEqual(m.HighCutoff):
		return domain.RiskLevelHigh
	case score.GreaterThanOrEqual(m.MediumCutoff):
		return domain.RiskLevelMedium
	default:
		return domain.RiskLevelLow
	}
}

// Assessment is the outcome of Compute. Diagnostics lists every signal that
// was clamped; they never prevent a score.
type Assessment struct {
	Signals     domain.RiskSignals
	Score       decimal.Decimal
	Level       domain.RiskLevel
	Factors     []string
	Diagnostics []*domain.SignalOutOfRangeError
}

// Compute scores a student's signals. It is pure: the same signals and model
// always yield the same assessment.
func Compute(s domain.RiskSignals, m Model) Assessment {
	var a Assessment
	attendance := clamp("attendance_rate", s.AttendanceRate, &a.Diagnostics)
	income := clamp("family_income_score", s.FamilyIncomeScore, &a.Diagnostics)
	parent := clamp("parent_status_score", s.ParentStatusScore, &a.Diagnostics)
	a.Signals = domain.RiskSignals{AttendanceRate: attendance, FamilyIncomeScore: income, ParentStatusScore: parent}

	a.Score = m.AttendanceWeight.Mul(hundred.Sub(attendance)).
		Add(m.IncomeWeight.Mul(hundred.Sub(income))).
		Add(m.ParentWeight.Mul(hundred.Sub(parent))).
		Round(2)
	a.Level = m.Level(a.Score)

	a.Factors = []string{}
	if attendance.LessThan(m.LowAttendanceBelow) {
		a.Factors = append(a.Factors, domain.FactorLowAttendance)
	}
	if income.LessThan(m.LowIncomeBelow) {
		a.Factors = append(a.Factors, domain.FactorLowIncome)
	}
	if parent.LessThan(m.ParentStatusBelow) {
		a.Factors = append(a.Factors, domain.FactorSingleParentOrOrphan)
	}
	return a
}

func clamp(name string, v decimal.Decimal, diags *[]*domain.SignalOutOfRangeError) decimal.Decimal {
	c := v
	switch {
	case v.LessThan(zero):
		c = zero
	case v.GreaterThan(hundred):
		c = hundred
	default:
		return v
	}
	*diags = append(*diags, &domain.SignalOutOfRangeError{Signal: name, Value: v, Clamped: c})
	return c
}
