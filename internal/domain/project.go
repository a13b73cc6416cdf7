package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Project is an NGO-run initiative with an allocated budget.
type Project struct {
	ID              int64
	NgoID           int64
	Title           string
	AllocatedBudget decimal.Decimal
	Active          bool
}

// School is a participating school.
type School struct {
	ID   int64
	Name string
}

// Student belongs to a school and may be sponsored directly.
type Student struct {
	ID       int64
	SchoolID int64
	Name     string
}

// ProjectSchool is the participation of a school in an NGO project. Only the
// allocation is stored; spend figures are derived from the ledger.
type ProjectSchool struct {
	ProjectID       int64
	SchoolID        int64
	AllocatedBudget decimal.Decimal
	SelectedAt      time.Time
}

// BudgetView exposes the derived budget figures of a participation.
type BudgetView struct {
	ProjectID int64
	SchoolID  int64
	Allocated decimal.Decimal
	Utilized  decimal.Decimal
}

// NewBudgetView derives a view from a participation and its approved utilizations.
func NewBudgetView(ps ProjectSchool, approved []FundUtilization) BudgetView {
	return BudgetView{
		ProjectID: ps.ProjectID,
		SchoolID:  ps.SchoolID,
		Allocated: ps.AllocatedBudget,
		Utilized:  SumApproved(approved),
	}
}

// Remaining is allocated minus utilized.
func (b BudgetView) Remaining() decimal.Decimal {
	return b.Allocated.Sub(b.Utilized)
}

// UtilizationPercentage is utilized/allocated*100 rounded to two places, 0 when
// nothing was allocated.
func (b BudgetView) UtilizationPercentage() decimal.Decimal {
	return Percentage(b.Utilized, b.Allocated)
}

// Percentage returns part/whole*100 rounded to two places, 0 for a zero whole.
func Percentage(part, whole decimal.Decimal) decimal.Decimal {
	if whole.IsZero() {
		return decimal.Zero
	}
	return part.Mul(hundred).DivRound(whole, 2)
}
