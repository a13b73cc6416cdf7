package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
	"fundtrace/internal/events"
	"fundtrace/internal/validate"
)

// DonationInput is what a donor pledges.
type DonationInput struct {
	DonorID       int64               `json:"donor_id" validate:"required,gt=0"`
	Type          domain.DonationType `json:"type" validate:"required,oneof=PROJECT STUDENT GENERAL"`
	ProjectID     *int64              `json:"project_id" validate:"omitempty,gt=0"`
	StudentID     *int64              `json:"student_id" validate:"omitempty,gt=0"`
	Amount        decimal.Decimal     `json:"amount"`
	Purpose       string              `json:"purpose" validate:"max=500"`
	IsAnonymous   bool                `json:"is_anonymous"`
	OriginCountry string              `json:"origin_country" validate:"omitempty,iso3166_1_alpha2"`
}

func (in DonationInput) target() domain.Target {
	return domain.Target{Type: in.Type, ProjectID: in.ProjectID, StudentID: in.StudentID}
}

// RecordDonation creates a PENDING donation after checking that its target exists.
func (e *Engine) RecordDonation(ctx context.Context, in DonationInput) (*domain.Donation, error) {
	in.OriginCountry = strings.ToUpper(strings.TrimSpace(in.OriginCountry))
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if !in.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	target := in.target()
	if err := target.Validate(); err != nil {
		return nil, err
	}
	if err := e.checkTargetExists(ctx, target); err != nil {
		return nil, err
	}

	d, err := domain.NewDonation(in.DonorID, target, in.Amount, in.Purpose, in.IsAnonymous, e.now())
	if err != nil {
		return nil, err
	}
	d.OriginCountry = in.OriginCountry

	if err := e.store.WithinTx(ctx, func(tx domain.LedgerTx) error {
		return tx.CreateDonation(ctx, d)
	}); err != nil {
		return nil, fmt.Errorf("record donation: %w", err)
	}

	e.logger.Info().Int64("donation_id", d.ID).Int64("donor_id", d.DonorID).
		Str("type", string(d.Target.Type)).Str("amount", d.Amount.String()).Msg("donation recorded")
	ev := e.event(events.DonationRecorded)
	ev.DonationID, ev.DonorID = d.ID, d.DonorID
	e.publish(ctx, ev)
	return d, nil
}

func (e *Engine) checkTargetExists(ctx context.Context, t domain.Target) error {
	switch t.Type {
	case domain.DonationTypeProject:
		p, err := e.store.GetProject(ctx, *t.ProjectID)
		if err != nil {
			return asInvalidTarget(err, "project", *t.ProjectID)
		}
		if !p.Active {
			return fmt.Errorf("project %d inactive: %w", p.ID, domain.ErrInvalidTarget)
		}
	case domain.DonationTypeStudent:
		if _, err := e.store.GetStudent(ctx, *t.StudentID); err != nil {
			return asInvalidTarget(err, "student", *t.StudentID)
		}
	}
	return nil
}

// PaymentInit starts a gateway attempt. The customer fields are a snapshot and
// are never updated afterwards.
type PaymentInit struct {
	Method        string `json:"method" validate:"required,max=50"`
	Reference     string `json:"reference" validate:"omitempty,max=100"`
	CustomerName  string `json:"customer_name" validate:"max=200"`
	CustomerEmail string `json:"customer_email" validate:"omitempty,email"`
	CustomerPhone string `json:"customer_phone" validate:"omitempty,max=30"`
}

// PaymentReference builds the gateway order id for a donation.
func PaymentReference(donationID int64) string {
	return fmt.Sprintf("don-%d-%s", donationID, strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// DonationIDFromReference extracts the donation id from a reference built by
// PaymentReference.
func DonationIDFromReference(ref string) (int64, bool) {
	parts := strings.SplitN(strings.TrimSpace(ref), "-", 3)
	if len(parts) != 3 || parts[0] != "don" || parts[2] == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// InitiatePayment records an INITIATED transaction for a donation that has not settled yet.
func (e *Engine) InitiatePayment(ctx context.Context, donationID int64, in PaymentInit) (*domain.PaymentTransaction, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	release := e.locks.lock(donationKey(donationID))
	defer release()

	var pt *domain.PaymentTransaction
	err := e.store.WithinTx(ctx, func(tx domain.LedgerTx) error {
		d, err := tx.LockDonation(ctx, donationID)
		if err != nil {
			return err
		}
		if d.PaymentStatus == domain.PaymentStatusCompleted || d.PaymentStatus == domain.PaymentStatusRefunded {
			return domain.ErrAlreadySettled
		}
		ref := strings.TrimSpace(in.Reference)
		if ref == "" {
			ref = PaymentReference(d.ID)
		}
		customer := domain.CustomerSnapshot{
			Name:  strings.TrimSpace(in.CustomerName),
			Email: strings.TrimSpace(in.CustomerEmail),
			Phone: strings.TrimSpace(in.CustomerPhone),
		}
		pt = domain.NewPaymentTransaction(d, domain.TransactionTypeDonation, in.Method, ref, customer, e.now())
		return tx.CreateTransaction(ctx, pt)
	})
	if err != nil {
		return nil, fmt.Errorf("initiate payment for donation %d: %w", donationID, err)
	}
	e.logger.Info().Int64("donation_id", donationID).Str("reference", pt.Reference).Msg("payment initiated")
	return pt, nil
}

// SettlePayment applies a gateway outcome to a donation. A callback repeating
// an already recorded outcome for the same reference returns the stored
// transaction unchanged.
func (e *Engine) SettlePayment(ctx context.Context, donationID int64, result domain.GatewayResult) (*domain.PaymentTransaction, error) {
	result.ReferenceID = strings.TrimSpace(result.ReferenceID)
	if err := result.Validate(); err != nil {
		return nil, err
	}
	release := e.locks.lock(donationKey(donationID))
	defer release()

	var (
		pt        *domain.PaymentTransaction
		d         *domain.Donation
		duplicate bool
	)
	err := e.store.WithinTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		d, err = tx.LockDonation(ctx, donationID)
		if err != nil {
			return err
		}
		existing, err := tx.FindTransactionByReference(ctx, result.ReferenceID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			existing = nil
		case err != nil:
			return err
		}
		if existing != nil {
			if existing.DonationID != donationID || existing.Type != domain.TransactionTypeDonation {
				return fmt.Errorf("reference %q belongs to another transaction: %w", result.ReferenceID, domain.ErrDuplicateOperation)
			}
			if existing.Status == result.Status {
				pt, duplicate = existing, true
				return nil
			}
			if existing.Status == domain.TransactionStatusCompleted {
				return domain.ErrAlreadySettled
			}
		}
		if d.PaymentStatus == domain.PaymentStatusCompleted || d.PaymentStatus == domain.PaymentStatusRefunded {
			return domain.ErrAlreadySettled
		}

		now := e.now()
		if existing != nil {
			if err := existing.Apply(result, now); err != nil {
				return err
			}
			pt = existing
			if err := tx.UpdateTransaction(ctx, pt); err != nil {
				return err
			}
		} else {
			pt = domain.NewPaymentTransaction(d, domain.TransactionTypeDonation, result.Method, result.ReferenceID, domain.CustomerSnapshot{}, now)
			if err := pt.Apply(result, now); err != nil {
				return err
			}
			if err := tx.CreateTransaction(ctx, pt); err != nil {
				return err
			}
		}

		next := domain.PaymentStatusFailed
		if result.Status == domain.TransactionStatusCompleted {
			next = domain.PaymentStatusCompleted
		}
		if err := d.Transition(next, now); err != nil {
			return err
		}
		return tx.UpdateDonation(ctx, d)
	})
	if err != nil {
		return nil, fmt.Errorf("settle donation %d: %w", donationID, err)
	}
	if duplicate {
		e.logger.Info().Int64("donation_id", donationID).Str("reference", pt.Reference).Msg("duplicate settlement ignored")
		return pt, nil
	}

	e.logger.Info().Int64("donation_id", donationID).Str("reference", pt.Reference).
		Str("status", string(pt.Status)).Msg("payment settled")
	t := events.DonationPaymentFailed
	if pt.Status == domain.TransactionStatusCompleted {
		t = events.DonationSettled
	}
	ev := e.event(t)
	ev.DonationID, ev.DonorID = d.ID, d.DonorID
	ev.Payload = map[string]any{"amount": d.Amount.String(), "reference": pt.Reference}
	e.publish(ctx, ev)
	return pt, nil
}

// RefundDonation records a refund attempt. Only settled donations whose funds
// are not committed to any pending or approved utilization can be refunded.
func (e *Engine) RefundDonation(ctx context.Context, donationID int64, result domain.GatewayResult) (*domain.PaymentTransaction, error) {
	result.ReferenceID = strings.TrimSpace(result.ReferenceID)
	if err := result.Validate(); err != nil {
		return nil, err
	}
	release := e.locks.lock(donationKey(donationID))
	defer release()

	var (
		pt        *domain.PaymentTransaction
		d         *domain.Donation
		duplicate bool
	)
	err := e.store.WithinTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		d, err = tx.LockDonation(ctx, donationID)
		if err != nil {
			return err
		}
		existing, err := tx.FindTransactionByReference(ctx, result.ReferenceID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil {
			if existing.DonationID == donationID && existing.Type == domain.TransactionTypeRefund && existing.Status == result.Status {
				pt, duplicate = existing, true
				return nil
			}
			return fmt.Errorf("reference %q already used: %w", result.ReferenceID, domain.ErrDuplicateOperation)
		}
		if d.PaymentStatus == domain.PaymentStatusRefunded {
			return domain.ErrInvalidTransition
		}
		if !d.IsSettled() {
			return domain.ErrDonationNotSettled
		}
		spent, err := tx.ListUtilizations(ctx, domain.UtilizationFilter{DonationID: donationID})
		if err != nil {
			return err
		}
		if committed := domain.SumSpend(spent); committed.IsPositive() {
			return fmt.Errorf("%s committed: %w", committed, domain.ErrFundsCommitted)
		}

		now := e.now()
		pt = domain.NewPaymentTransaction(d, domain.TransactionTypeRefund, result.Method, result.ReferenceID, domain.CustomerSnapshot{}, now)
		if err := pt.Apply(result, now); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, pt); err != nil {
			return err
		}
		if result.Status != domain.TransactionStatusCompleted {
			return nil
		}
		if err := d.Transition(domain.PaymentStatusRefunded, now); err != nil {
			return err
		}
		return tx.UpdateDonation(ctx, d)
	})
	if err != nil {
		return nil, fmt.Errorf("refund donation %d: %w", donationID, err)
	}
	if duplicate || pt.Status != domain.TransactionStatusCompleted {
		return pt, nil
	}

	e.logger.Info().Int64("donation_id", donationID).Str("reference", pt.Reference).Msg("donation refunded")
	ev := e.event(events.DonationRefunded)
	ev.DonationID, ev.DonorID = d.ID, d.DonorID
	ev.Payload = map[string]any{"amount": d.Amount.String(), "reference": pt.Reference}
	e.publish(ctx, ev)
	return pt, nil
}
