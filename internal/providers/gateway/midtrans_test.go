package gateway

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
)

const testKey = "SB-Mid-server-test"

func signed(n Notification) Notification {
	n.SignatureKey = Signature(n.OrderID, n.StatusCode, n.GrossAmount, testKey)
	return n
}

func newTestMidtrans(t *testing.T) *Midtrans {
	t.Helper()
	m, err := NewMidtrans(Options{ServerKey: testKey, Logger: zerolog.Nop()})
	if err != nil {
		t.Fatalf("NewMidtrans error: %v", err)
	}
	return m
}

func TestNewMidtransRequiresKey(t *testing.T) {
	if _, err := NewMidtrans(Options{ServerKey: "  "}); !errors.Is(err, ErrMissingServerKey) {
		t.Fatalf("expected ErrMissingServerKey, got %v", err)
	}
}

func TestInterpretMapsStatuses(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		fraud   string
		want    domain.TransactionStatus
		wantErr error
	}{
		{"settlement", "settlement", "", domain.TransactionStatusCompleted, nil},
		{"capture accepted", "capture", "accept", domain.TransactionStatusCompleted, nil},
		{"capture challenged", "capture", "challenge", "", ErrNotFinal},
		{"capture denied", "capture", "deny", domain.TransactionStatusFailed, nil},
		{"expire", "expire", "", domain.TransactionStatusFailed, nil},
		{"cancel", "cancel", "", domain.TransactionStatusFailed, nil},
		{"pending", "pending", "", "", ErrNotFinal},
		{"refund", "refund", "", "", ErrNotFinal},
	}
	m := newTestMidtrans(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			n := signed(Notification{
				OrderID:           "don-12-abc",
				StatusCode:        "200",
				GrossAmount:       "150000.00",
				TransactionStatus: tc.status,
				FraudStatus:       tc.fraud,
				PaymentType:       "bank_transfer",
			})
			out, err := m.Interpret(n)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Interpret error: %v", err)
			}
			if out.DonationID != 12 || out.Result.Status != tc.want {
				t.Fatalf("unexpected outcome: %+v", out)
			}
			if out.Result.ReferenceID != "don-12-abc" || out.Result.Method != "bank_transfer" {
				t.Fatalf("unexpected result: %+v", out.Result)
			}
			if !out.GrossAmount.Equal(decimal.NewFromInt(150000)) {
				t.Fatalf("unexpected gross amount %s", out.GrossAmount)
			}
			if err := out.Result.Validate(); err != nil {
				t.Fatalf("result should be terminal: %v", err)
			}
		})
	}
}

func TestInterpretRejectsBadSignature(t *testing.T) {
	m := newTestMidtrans(t)
	n := signed(Notification{OrderID: "don-1-abc", StatusCode: "200", GrossAmount: "10.00", TransactionStatus: "settlement"})
	n.GrossAmount = "1000000.00"
	if _, err := m.Interpret(n); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
	n.SignatureKey = ""
	if _, err := m.Interpret(n); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature for empty signature, got %v", err)
	}
}

func TestInterpretRejectsForeignOrder(t *testing.T) {
	m := newTestMidtrans(t)
	n := signed(Notification{OrderID: "SPP-2024-01", StatusCode: "200", GrossAmount: "10.00", TransactionStatus: "settlement"})
	if _, err := m.Interpret(n); !errors.Is(err, ErrUnknownOrder) {
		t.Fatalf("expected ErrUnknownOrder, got %v", err)
	}
}

func TestItemNameTruncates(t *testing.T) {
	long := "Renovasi ruang kelas dan perpustakaan sekolah dasar negeri di pelosok"
	if got := itemName(&domain.Donation{Purpose: long}); len([]rune(got)) != 50 {
		t.Fatalf("expected 50 runes, got %d", len([]rune(got)))
	}
	if got := itemName(&domain.Donation{}); got != "Donation" {
		t.Fatalf("expected default name, got %q", got)
	}
}
