package gateway

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	midtrans "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"
	"github.com/midtrans/midtrans-go/snap"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
	"fundtrace/internal/ledger"
)

var (
	// ErrMissingServerKey indicates that the client was configured without credentials.
	ErrMissingServerKey = errors.New("midtrans: server key is required")
	ErrInvalidSignature = errors.New("midtrans: invalid signature")

	// ErrNotFinal marks notifications that do not settle a donation, such as
	// pending or fraud-challenged captures.
	ErrNotFinal     = errors.New("midtrans: notification is not final")
	ErrUnknownOrder = errors.New("midtrans: order id is not a donation reference")
)

// Notification is the HTTP notification body Midtrans posts for a transaction.
type Notification = coreapi.TransactionStatusResponse

// Options configures the Midtrans client.
type Options struct {
	ServerKey  string
	Production bool
	Logger     zerolog.Logger
}

// Outcome is a verified notification translated for the ledger.
type Outcome struct {
	DonationID  int64
	GrossAmount decimal.Decimal
	Result      domain.GatewayResult
}

// Midtrans verifies payment notifications and opens Snap checkouts.
type Midtrans struct {
	serverKey string
	snap      snap.Client
	logger    zerolog.Logger
}

func NewMidtrans(opts Options) (*Midtrans, error) {
	key := strings.TrimSpace(opts.ServerKey)
	if key == "" {
		return nil, ErrMissingServerKey
	}
	env := midtrans.Sandbox
	if opts.Production {
		env = midtrans.Production
	}
	m := &Midtrans{serverKey: key, logger: opts.Logger}
	m.snap.New(key, env)
	return m, nil
}

// Signature is SHA512(order_id + status_code + gross_amount + server_key) in hex.
func Signature(orderID, statusCode, grossAmount, serverKey string) string {
	sum := sha512.Sum512([]byte(orderID + statusCode + grossAmount + serverKey))
	return hex.EncodeToString(sum[:])
}

// VerifySignature checks the notification signature against the server key.
func (m *Midtrans) VerifySignature(n Notification) error {
	want := Signature(n.OrderID, n.StatusCode, n.GrossAmount, m.serverKey)
	got := strings.ToLower(strings.TrimSpace(n.SignatureKey))
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(want)) != 1 {
		return ErrInvalidSignature
	}
	return nil
}

// Interpret verifies n and maps it to a terminal gateway result.
func (m *Midtrans) Interpret(n Notification) (Outcome, error) {
	if err := m.VerifySignature(n); err != nil {
		return Outcome{}, err
	}
	donationID, ok := ledger.DonationIDFromReference(n.OrderID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownOrder, n.OrderID)
	}
	gross, err := decimal.NewFromString(strings.TrimSpace(n.GrossAmount))
	if err != nil {
		return Outcome{}, fmt.Errorf("midtrans: gross_amount %q: %w", n.GrossAmount, err)
	}
	status, err := mapStatus(n.TransactionStatus, n.FraudStatus)
	if err != nil {
		return Outcome{}, err
	}
	m.logger.Debug().Str("order_id", n.OrderID).Str("transaction_status", n.TransactionStatus).
		Str("fraud_status", n.FraudStatus).Msg("midtrans notification")
	return Outcome{
		DonationID:  donationID,
		GrossAmount: gross,
		Result: domain.GatewayResult{
			ReferenceID:     n.OrderID,
			Status:          status,
			Method:          n.PaymentType,
			ResponseCode:    n.StatusCode,
			ResponseMessage: n.StatusMessage,
		},
	}, nil
}

func mapStatus(transactionStatus, fraudStatus string) (domain.TransactionStatus, error) {
	switch strings.ToLower(transactionStatus) {
	case "settlement":
		return domain.TransactionStatusCompleted, nil
	case "capture":
		switch strings.ToLower(fraudStatus) {
		case "", "accept":
			return domain.TransactionStatusCompleted, nil
		case "deny":
			return domain.TransactionStatusFailed, nil
		}
		return "", ErrNotFinal
	case "deny", "cancel", "expire", "failure":
		return domain.TransactionStatusFailed, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFinal, transactionStatus)
}

// Checkout is the Snap session opened for a payment attempt.
type Checkout struct {
	Token       string
	RedirectURL string
}

// CreateCheckout opens a Snap session whose order id is the transaction reference.
func (m *Midtrans) CreateCheckout(d *domain.Donation, pt *domain.PaymentTransaction) (*Checkout, error) {
	gross := pt.Amount.Round(0).IntPart()
	if gross <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	req := &snap.Request{
		TransactionDetails: midtrans.TransactionDetails{
			OrderID:  pt.Reference,
			GrossAmt: gross,
		},
		CustomerDetail: &midtrans.CustomerDetails{
			FName: pt.Customer.Name,
			Email: pt.Customer.Email,
			Phone: pt.Customer.Phone,
		},
		Items: &[]midtrans.ItemDetails{{
			ID:       fmt.Sprintf("donation-%d", d.ID),
			Price:    gross,
			Qty:      1,
			Name:     itemName(d),
			Category: string(d.Target.Type),
		}},
	}
	resp, merr := m.snap.CreateTransaction(req)
	if merr != nil {
		return nil, fmt.Errorf("midtrans: create transaction: %s", merr.Message)
	}
	return &Checkout{Token: resp.Token, RedirectURL: resp.RedirectURL}, nil
}

// Midtrans rejects item names longer than 50 characters.
func itemName(d *domain.Donation) string {
	name := d.Purpose
	if name == "" {
		name = "Donation"
	}
	if r := []rune(name); len(r) > 50 {
		name = string(r[:50])
	}
	return name
}
