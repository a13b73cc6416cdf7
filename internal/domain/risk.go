package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RiskLevel is the discrete dropout-risk tier.
type RiskLevel string

const (
	RiskLevelLow      RiskLevel = "LOW"
	RiskLevelMedium   RiskLevel = "MEDIUM"
	RiskLevelHigh     RiskLevel = "HIGH"
	RiskLevelCritical RiskLevel = "CRITICAL"
)

// Valid reports whether l is a known tier.
func (l RiskLevel) Valid() bool {
	switch l {
	case RiskLevelLow, RiskLevelMedium, RiskLevelHigh, RiskLevelCritical:
		return true
	}
	return false
}

// Elevated reports whether the tier calls for intervention.
func (l RiskLevel) Elevated() bool {
	return l == RiskLevelHigh || l == RiskLevelCritical
}

// Risk factor labels.
const (
	FactorLowAttendance        = "low-attendance"
	FactorLowIncome            = "low-income"
	FactorSingleParentOrOrphan = "single-parent-or-orphan"
)

// RiskSignals are the normalized 0-100 inputs for a student. Higher is better
// for every signal.
type RiskSignals struct {
	AttendanceRate    decimal.Decimal
	FamilyIncomeScore decimal.Decimal
	ParentStatusScore decimal.Decimal
}

// InterventionNote is a free-text note left by a caseworker.
type InterventionNote struct {
	Author    string
	Text      string
	CreatedAt time.Time
}

// DropoutPrediction is the latest risk assessment of a student. Recomputation
// overwrites it in place.
type DropoutPrediction struct {
	StudentID         int64
	Signals           RiskSignals
	OverallRiskScore  decimal.Decimal
	RiskLevel         RiskLevel
	RiskFactors       []string
	InterventionNotes []InterventionNote
	LastCalculated    time.Time
}

// AddNote appends a caseworker note.
func (p *DropoutPrediction) AddNote(author, text string, now time.Time) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return NewValidationError("text", "required")
	}
	author = strings.TrimSpace(author)
	if author == "" {
		return NewValidationError("author", "required")
	}
	p.InterventionNotes = append(p.InterventionNotes, InterventionNote{Author: author, Text: text, CreatedAt: now})
	return nil
}

// AttendanceRecord is one day of attendance for a student.
type AttendanceRecord struct {
	StudentID int64
	Date      time.Time
	Present   bool
}
