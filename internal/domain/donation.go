package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DonationType enumerates what a donation is earmarked for.
type DonationType string

const (
	DonationTypeProject DonationType = "PROJECT"
	DonationTypeStudent DonationType = "STUDENT"
	DonationTypeGeneral DonationType = "GENERAL"
)

// Valid reports whether t is a known donation type.
func (t DonationType) Valid() bool {
	switch t {
	case DonationTypeProject, DonationTypeStudent, DonationTypeGeneral:
		return true
	}
	return false
}

// PaymentStatus enumerates the settlement state of a donation.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusRefunded  PaymentStatus = "REFUNDED"
)

var paymentStatusTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentStatusPending:   {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusFailed:    {PaymentStatusCompleted, PaymentStatusFailed},
	PaymentStatusCompleted: {PaymentStatusRefunded},
	PaymentStatusRefunded:  nil,
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	_, ok := paymentStatusTransitions[s]
	return ok
}

// CanTransitionTo reports whether the donation may move from s to next.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	for _, allowed := range paymentStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Target identifies what a donation funds.
type Target struct {
	Type      DonationType
	ProjectID *int64
	StudentID *int64
}

// ProjectTarget earmarks a donation for a project.
func ProjectTarget(projectID int64) Target {
	return Target{Type: DonationTypeProject, ProjectID: &projectID}
}

// StudentTarget earmarks a donation for a sponsored student.
func StudentTarget(studentID int64) Target {
	return Target{Type: DonationTypeStudent, StudentID: &studentID}
}

// GeneralTarget leaves the donation unrestricted.
func GeneralTarget() Target {
	return Target{Type: DonationTypeGeneral}
}

// Validate checks the target shape. Existence of the referenced entity is the
// ledger's concern.
func (t Target) Validate() error {
	switch t.Type {
	case DonationTypeProject:
		if t.ProjectID == nil || *t.ProjectID <= 0 || t.StudentID != nil {
			return ErrInvalidTarget
		}
	case DonationTypeStudent:
		if t.StudentID == nil || *t.StudentID <= 0 || t.ProjectID != nil {
			return ErrInvalidTarget
		}
	case DonationTypeGeneral:
		if t.ProjectID != nil || t.StudentID != nil {
			return ErrInvalidTarget
		}
	default:
		return ErrInvalidTarget
	}
	return nil
}

// Donation represents a donor's pledge toward a project, student or the general fund.
type Donation struct {
	ID                 int64
	DonorID            int64
	Target             Target
	Amount             decimal.Decimal
	Purpose            string
	IsAnonymous        bool
	OriginCountry      string
	PaymentStatus      PaymentStatus
	PaymentCompletedAt *time.Time
	RefundedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// NewDonation builds a PENDING donation. Amount must be strictly positive.
func NewDonation(donorID int64, target Target, amount decimal.Decimal, purpose string, anonymous bool, now time.Time) (*Donation, error) {
	if donorID <= 0 {
		return nil, NewValidationError("donor_id", "required")
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return &Donation{
		DonorID:       donorID,
		Target:        target,
		Amount:        amount,
		Purpose:       strings.TrimSpace(purpose),
		IsAnonymous:   anonymous,
		PaymentStatus: PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Transition moves the donation to next, keeping PaymentCompletedAt set iff
// the donation is COMPLETED.
func (d *Donation) Transition(next PaymentStatus, at time.Time) error {
	if !d.PaymentStatus.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	d.PaymentStatus = next
	d.UpdatedAt = at
	switch next {
	case PaymentStatusCompleted:
		completed := at
		d.PaymentCompletedAt = &completed
	case PaymentStatusRefunded:
		refunded := at
		d.RefundedAt = &refunded
		d.PaymentCompletedAt = nil
	default:
		d.PaymentCompletedAt = nil
	}
	return nil
}

// IsSettled reports whether the donation's funds are available for spending.
func (d Donation) IsSettled() bool {
	return d.PaymentStatus == PaymentStatusCompleted
}
