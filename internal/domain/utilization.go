package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// UtilizationStatus enumerates the review lifecycle of a spend record.
type UtilizationStatus string

const (
	UtilizationStatusPending  UtilizationStatus = "PENDING"
	UtilizationStatusApproved UtilizationStatus = "APPROVED"
	UtilizationStatusRejected UtilizationStatus = "REJECTED"
)

var utilizationStatusTransitions = map[UtilizationStatus][]UtilizationStatus{
	UtilizationStatusPending:  {UtilizationStatusApproved, UtilizationStatusRejected},
	UtilizationStatusApproved: nil,
	UtilizationStatusRejected: nil,
}

// Valid reports whether s is a known utilization status.
func (s UtilizationStatus) Valid() bool {
	_, ok := utilizationStatusTransitions[s]
	return ok
}

// CanTransitionTo reports whether a utilization may move from s to next.
func (s UtilizationStatus) CanTransitionTo(next UtilizationStatus) bool {
	for _, allowed := range utilizationStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Evidence is the vendor paperwork backing a spend. Receipt files live in the
// evidence store; only their URLs are kept here.
type Evidence struct {
	Vendor        string
	InvoiceNumber string
	ReceiptURLs   []string
}

// FundUtilization records spend of part of a donation against a project.
type FundUtilization struct {
	ID              int64
	DonationID      int64
	ProjectID       int64
	SchoolID        *int64
	AmountUsed      decimal.Decimal
	Description     string
	Evidence        Evidence
	UtilizationDate time.Time
	Status          UtilizationStatus
	ReviewedBy      string
	ReviewNote      string
	ReviewedAt      *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewFundUtilization builds a PENDING utilization.
func NewFundUtilization(donationID, projectID int64, schoolID *int64, amount decimal.Decimal, description string, evidence Evidence, date, now time.Time) (*FundUtilization, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	return &FundUtilization{
		DonationID:      donationID,
		ProjectID:       projectID,
		SchoolID:        schoolID,
		AmountUsed:      amount,
		Description:     strings.TrimSpace(description),
		Evidence:        evidence,
		UtilizationDate: date,
		Status:          UtilizationStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// CountsTowardSpend reports whether the amount is reserved against its bounds.
// Rejected spend is released.
func (u FundUtilization) CountsTowardSpend() bool {
	return u.Status == UtilizationStatusPending || u.Status == UtilizationStatusApproved
}

// Review applies a reviewer decision.
func (u *FundUtilization) Review(approve bool, reviewer, note string, now time.Time) error {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return NewValidationError("reviewer_id", "required")
	}
	next := UtilizationStatusRejected
	if approve {
		next = UtilizationStatusApproved
	}
	if !u.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	u.Status = next
	u.ReviewedBy = reviewer
	u.ReviewNote = strings.TrimSpace(note)
	reviewed := now
	u.ReviewedAt = &reviewed
	u.UpdatedAt = now
	return nil
}

// SumSpend totals the utilizations that still count toward their bounds.
func SumSpend(items []FundUtilization) decimal.Decimal {
	total := decimal.Zero
	for _, u := range items {
		if u.CountsTowardSpend() {
			total = total.Add(u.AmountUsed)
		}
	}
	return total
}

// SumApproved totals approved utilizations only.
func SumApproved(items []FundUtilization) decimal.Decimal {
	total := decimal.Zero
	for _, u := range items {
		if u.Status == UtilizationStatusApproved {
			total = total.Add(u.AmountUsed)
		}
	}
	return total
}
