package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// VerificationStatus tracks whether a transparency record has been checked.
type VerificationStatus string

const (
	VerificationStatusUnverified VerificationStatus = "UNVERIFIED"
	VerificationStatusVerified   VerificationStatus = "VERIFIED"
)

// ReconciliationWarning flags a cost breakdown that does not match the spend.
// It is advisory and never blocks the record.
type ReconciliationWarning struct {
	Expected decimal.Decimal `json:"expected"`
	Actual   decimal.Decimal `json:"actual"`
	Delta    decimal.Decimal `json:"delta"`
	Allowed  decimal.Decimal `json:"allowed"`
	Message  string          `json:"message"`
}

// FundTransparency is the public evidence attached to one utilization.
type FundTransparency struct {
	ID                  int64
	UtilizationID       int64
	BeforePhotos        []string
	AfterPhotos         []string
	BeneficiaryFeedback string
	UnitQuantity        decimal.Decimal
	UnitCost            decimal.Decimal
	VerificationStatus  VerificationStatus
	VerifiedBy          string
	VerifiedAt          *time.Time
	IsPublic            bool
	PublishedAt         *time.Time
	Warning             *ReconciliationWarning
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewFundTransparency builds an unverified, private record.
func NewFundTransparency(utilizationID int64, before, after []string, feedback string, qty, unitCost decimal.Decimal, now time.Time) *FundTransparency {
	return &FundTransparency{
		UtilizationID:       utilizationID,
		BeforePhotos:        append([]string(nil), before...),
		AfterPhotos:         append([]string(nil), after...),
		BeneficiaryFeedback: strings.TrimSpace(feedback),
		UnitQuantity:        qty,
		UnitCost:            unitCost,
		VerificationStatus:  VerificationStatusUnverified,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// TotalCost is quantity times unit cost.
func (t FundTransparency) TotalCost() decimal.Decimal {
	return t.UnitQuantity.Mul(t.UnitCost)
}

// NeedsReview reports whether reconciliation flagged the record.
func (t FundTransparency) NeedsReview() bool {
	return t.Warning != nil
}

// Verify records the verifier identity.
func (t *FundTransparency) Verify(verifier string, now time.Time) error {
	verifier = strings.TrimSpace(verifier)
	if verifier == "" {
		return NewValidationError("verifier_id", "required")
	}
	t.VerifiedBy = verifier
	t.VerificationStatus = VerificationStatusVerified
	verified := now
	t.VerifiedAt = &verified
	t.UpdatedAt = now
	return nil
}

// Publish makes the record public. Only verified records may be published.
func (t *FundTransparency) Publish(now time.Time) error {
	if t.VerifiedBy == "" {
		return ErrNotVerified
	}
	if t.IsPublic {
		return nil
	}
	t.IsPublic = true
	published := now
	t.PublishedAt = &published
	t.UpdatedAt = now
	return nil
}
