package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound               = errors.New("not found")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrValidation             = errors.New("validation failed")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidTarget          = errors.New("invalid target")
	ErrOverAllocation         = errors.New("over allocation")
	ErrDonationNotSettled     = errors.New("donation not settled")
	ErrAlreadySettled         = errors.New("already settled")
	ErrUtilizationNotApproved = errors.New("utilization not approved")
	ErrNotVerified            = errors.New("not verified")
	ErrSignalOutOfRange       = errors.New("signal out of range")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrDuplicateOperation     = errors.New("duplicate operation")
	ErrFundsCommitted         = errors.New("funds already committed")
)

// FieldError names a single rejected input field.
type FieldError struct {
	Field string
	Rule  string
}

// ValidationError reports malformed or missing input. It is raised before any
// state is touched.
type ValidationError struct {
	Fields []FieldError
}

// NewValidationError builds a ValidationError for a single field.
func NewValidationError(field, rule string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Rule: rule}}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+" ("+f.Rule+")")
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, ", ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// SignalOutOfRangeError is a recoverable diagnostic: the signal was clamped.
type SignalOutOfRangeError struct {
	Signal  string
	Value   decimal.Decimal
	Clamped decimal.Decimal
}

func (e *SignalOutOfRangeError) Error() string {
	return fmt.Sprintf("%s: %s=%s clamped to %s", ErrSignalOutOfRange, e.Signal, e.Value, e.Clamped)
}

func (e *SignalOutOfRangeError) Is(target error) bool {
	return target == ErrSignalOutOfRange
}

// OverAllocationError describes which bound a utilization would exceed.
type OverAllocationError struct {
	Scope     string
	Limit     decimal.Decimal
	Committed decimal.Decimal
	Requested decimal.Decimal
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("%s: %s limit %s, committed %s, requested %s",
		ErrOverAllocation, e.Scope, e.Limit, e.Committed, e.Requested)
}

func (e *OverAllocationError) Is(target error) bool {
	return target == ErrOverAllocation
}

// Headroom is what is still spendable under the exceeded bound.
func (e *OverAllocationError) Headroom() decimal.Decimal {
	return e.Limit.Sub(e.Committed)
}
