package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionType distinguishes incoming settlements from refunds.
type TransactionType string

const (
	TransactionTypeDonation TransactionType = "DONATION"
	TransactionTypeRefund   TransactionType = "REFUND"
)

// TransactionStatus enumerates gateway attempt states.
type TransactionStatus string

const (
	TransactionStatusInitiated TransactionStatus = "INITIATED"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

var transactionStatusTransitions = map[TransactionStatus][]TransactionStatus{
	TransactionStatusInitiated: {TransactionStatusCompleted, TransactionStatusFailed},
	TransactionStatusCompleted: nil,
	TransactionStatusFailed:    nil,
}

// Valid reports whether s is a known transaction status.
func (s TransactionStatus) Valid() bool {
	_, ok := transactionStatusTransitions[s]
	return ok
}

// Terminal reports whether no further transition is possible.
func (s TransactionStatus) Terminal() bool {
	return s.Valid() && len(transactionStatusTransitions[s]) == 0
}

// CanTransitionTo reports whether a transaction may move from s to next.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	for _, allowed := range transactionStatusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// CustomerSnapshot is the payer identity captured when the attempt starts.
// It is never refreshed from the donor profile.
type CustomerSnapshot struct {
	Name  string
	Email string
	Phone string
}

// GatewayResult is what the payment gateway adapter reports for an attempt.
type GatewayResult struct {
	ReferenceID     string
	Status          TransactionStatus
	Method          string
	ResponseCode    string
	ResponseMessage string
}

// Validate checks that the result is a terminal, referenced outcome.
func (r GatewayResult) Validate() error {
	if strings.TrimSpace(r.ReferenceID) == "" {
		return NewValidationError("reference_id", "required")
	}
	if !r.Status.Terminal() {
		return NewValidationError("status", "oneof=COMPLETED FAILED")
	}
	return nil
}

// PaymentTransaction links a donation to one gateway settlement attempt.
type PaymentTransaction struct {
	ID              int64
	DonationID      int64
	Type            TransactionType
	Method          string
	Status          TransactionStatus
	Reference       string
	Amount          decimal.Decimal
	ResponseCode    string
	ResponseMessage string
	Customer        CustomerSnapshot
	InitiatedAt     time.Time
	CompletedAt     *time.Time
	UpdatedAt       time.Time
}

// NewPaymentTransaction starts an INITIATED attempt for the full donation amount.
func NewPaymentTransaction(d *Donation, typ TransactionType, method, reference string, customer CustomerSnapshot, now time.Time) *PaymentTransaction {
	return &PaymentTransaction{
		DonationID:  d.ID,
		Type:        typ,
		Method:      strings.TrimSpace(method),
		Status:      TransactionStatusInitiated,
		Reference:   strings.TrimSpace(reference),
		Amount:      d.Amount,
		Customer:    customer,
		InitiatedAt: now,
		UpdatedAt:   now,
	}
}

// Apply records the gateway outcome. Transitions are monotonic.
func (t *PaymentTransaction) Apply(result GatewayResult, now time.Time) error {
	if !t.Status.CanTransitionTo(result.Status) {
		return ErrInvalidTransition
	}
	t.Status = result.Status
	t.ResponseCode = result.ResponseCode
	t.ResponseMessage = result.ResponseMessage
	if result.Method != "" {
		t.Method = result.Method
	}
	t.UpdatedAt = now
	if result.Status == TransactionStatusCompleted {
		completed := now
		t.CompletedAt = &completed
	}
	return nil
}
