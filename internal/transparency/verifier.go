package transparency

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/text/unicode/norm"

	"fundtrace/internal/domain"
	"fundtrace/internal/events"
	"fundtrace/internal/validate"
)

var hundred = decimal.NewFromInt(100)

// Config holds the reconciliation tolerance. A breakdown is flagged when
// |quantity*unitCost - amountUsed| exceeds the larger of Tolerance and
// TolerancePercent percent of amountUsed.
type Config struct {
	Tolerance        decimal.Decimal
	TolerancePercent decimal.Decimal
}

// DefaultConfig allows one cent or one percent, whichever is larger.
func DefaultConfig() Config {
	return Config{Tolerance: decimal.New(1, -2), TolerancePercent: decimal.NewFromInt(1)}
}

// URLChecker validates evidence URLs.
type URLChecker interface {
	CheckAll(field string, urls []string) error
}

// Verifier attaches evidence to approved utilizations and gates publication.
type Verifier struct {
	store  domain.LedgerStore
	cfg    Config
	urls   URLChecker
	now    func() time.Time
	logger zerolog.Logger
	events events.Publisher
}

// Option configures a Verifier.
type Option func(*Verifier)

func WithClock(now func() time.Time) Option { return func(v *Verifier) { v.now = now } }

func WithLogger(l zerolog.Logger) Option { return func(v *Verifier) { v.logger = l } }

func WithPublisher(p events.Publisher) Option { return func(v *Verifier) { v.events = p } }

// WithURLPolicy restricts which photo URLs are accepted.
func WithURLPolicy(c URLChecker) Option { return func(v *Verifier) { v.urls = c } }

// New builds a Verifier.
func New(store domain.LedgerStore, cfg Config, opts ...Option) *Verifier {
	v := &Verifier{
		store:  store,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		logger: zerolog.Nop(),
		events: events.Nop{},
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Reconcile compares a cost breakdown with the recorded spend. It returns nil
// when the difference is within tolerance.
func Reconcile(amountUsed, quantity, unitCost decimal.Decimal, cfg Config) *domain.ReconciliationWarning {
	expected := quantity.Mul(unitCost)
	delta := expected.Sub(amountUsed).Abs()
	allowed := decimal.Max(cfg.Tolerance, amountUsed.Mul(cfg.TolerancePercent).Div(hundred))
	if delta.LessThanOrEqual(allowed) {
		return nil
	}
	return &domain.ReconciliationWarning{
		Expected: expected,
		Actual:   amountUsed,
		Delta:    delta,
		Allowed:  allowed,
		Message:  fmt.Sprintf("unit breakdown %s differs from amount used %s by %s", expected, amountUsed, delta),
	}
}

// EvidenceInput is the evidence for one approved utilization.
type EvidenceInput struct {
	UtilizationID       int64           `json:"utilization_id" validate:"required,gt=0"`
	BeforePhotos        []string        `json:"before_photos" validate:"required,min=1,dive,required,url"`
	AfterPhotos         []string        `json:"after_photos" validate:"required,min=1,dive,required,url"`
	UnitQuantity        decimal.Decimal `json:"unit_quantity"`
	UnitCost            decimal.Decimal `json:"unit_cost"`
	BeneficiaryFeedback string          `json:"beneficiary_feedback" validate:"max=2000"`
	VerifierID          string          `json:"verifier_id" validate:"omitempty,max=100"`
}

// AttachEvidence creates the transparency record of an approved utilization.
// A breakdown outside tolerance is flagged for review, not rejected.
func (v *Verifier) AttachEvidence(ctx context.Context, in EvidenceInput) (*domain.FundTransparency, error) {
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if !in.UnitQuantity.IsPositive() || in.UnitCost.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}
	if v.urls != nil {
		if err := v.urls.CheckAll("before_photos", in.BeforePhotos); err != nil {
			return nil, err
		}
		if err := v.urls.CheckAll("after_photos", in.AfterPhotos); err != nil {
			return nil, err
		}
	}

	var (
		ft *domain.FundTransparency
		u  *domain.FundUtilization
	)
	err := v.store.WithinTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		u, err = tx.LockUtilization(ctx, in.UtilizationID)
		if err != nil {
			return err
		}
		if u.Status != domain.UtilizationStatusApproved {
			return domain.ErrUtilizationNotApproved
		}
		switch _, err := tx.GetTransparencyByUtilization(ctx, u.ID); {
		case err == nil:
			return fmt.Errorf("utilization %d already has evidence: %w", u.ID, domain.ErrDuplicateOperation)
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		now := v.now()
		ft = domain.NewFundTransparency(u.ID, in.BeforePhotos, in.AfterPhotos,
			norm.NFC.String(in.BeneficiaryFeedback), in.UnitQuantity, in.UnitCost, now)
		ft.Warning = Reconcile(u.AmountUsed, in.UnitQuantity, in.UnitCost, v.cfg)
		if verifier := strings.TrimSpace(in.VerifierID); verifier != "" {
			if err := ft.Verify(verifier, now); err != nil {
				return err
			}
		}
		return tx.CreateTransparency(ctx, ft)
	})
	if err != nil {
		return nil, fmt.Errorf("attach evidence to utilization %d: %w", in.UtilizationID, err)
	}

	if ft.Warning != nil {
		v.logger.Warn().Int64("utilization_id", u.ID).Int64("transparency_id", ft.ID).
			Str("delta", ft.Warning.Delta.String()).Str("allowed", ft.Warning.Allowed.String()).
			Msg("cost breakdown needs review")
	}
	v.logger.Info().Int64("utilization_id", u.ID).Int64("transparency_id", ft.ID).Msg("evidence attached")
	ev := events.New(events.TransparencyAttached, v.now())
	ev.UtilizationID, ev.ProjectID, ev.DonationID = u.ID, u.ProjectID, u.DonationID
	ev.Payload = map[string]any{"transparency_id": ft.ID, "needs_review": ft.NeedsReview()}
	v.publish(ctx, ev)
	return ft, nil
}

// Verify records the verifier of a transparency record. Verifying an already
// verified record leaves it unchanged.
func (v *Verifier) Verify(ctx context.Context, transparencyID int64, verifierID string) (*domain.FundTransparency, error) {
	var (
		ft      *domain.FundTransparency
		changed bool
	)
	err := v.store.WithinTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		ft, err = tx.LockTransparency(ctx, transparencyID)
		if err != nil {
			return err
		}
		if ft.VerifiedBy != "" {
			return nil
		}
		if err := ft.Verify(verifierID, v.now()); err != nil {
			return err
		}
		changed = true
		return tx.UpdateTransparency(ctx, ft)
	})
	if err != nil {
		return nil, fmt.Errorf("verify transparency %d: %w", transparencyID, err)
	}
	if changed {
		v.logger.Info().Int64("transparency_id", ft.ID).Str("verifier", ft.VerifiedBy).Msg("transparency verified")
		ev := events.New(events.TransparencyVerified, v.now())
		ev.UtilizationID = ft.UtilizationID
		ev.Payload = map[string]any{"transparency_id": ft.ID}
		v.publish(ctx, ev)
	}
	return ft, nil
}

// Publish makes a verified record public. Publishing twice is a no-op.
func (v *Verifier) Publish(ctx context.Context, transparencyID int64) (*domain.FundTransparency, error) {
	var (
		ft      *domain.FundTransparency
		changed bool
	)
	err := v.store.WithinTx(ctx, func(tx domain.LedgerTx) error {
		var err error
		ft, err = tx.LockTransparency(ctx, transparencyID)
		if err != nil {
			return err
		}
		wasPublic := ft.IsPublic
		if err := ft.Publish(v.now()); err != nil {
			return err
		}
		if wasPublic {
			return nil
		}
		changed = true
		return tx.UpdateTransparency(ctx, ft)
	})
	if err != nil {
		return nil, fmt.Errorf("publish transparency %d: %w", transparencyID, err)
	}
	if changed {
		v.logger.Info().Int64("transparency_id", ft.ID).Msg("transparency published")
		ev := events.New(events.TransparencyPublished, v.now())
		ev.UtilizationID = ft.UtilizationID
		ev.Payload = map[string]any{"transparency_id": ft.ID}
		v.publish(ctx, ev)
	}
	return ft, nil
}

func (v *Verifier) publish(ctx context.Context, ev events.Event) {
	if err := v.events.Publish(ctx, ev); err != nil {
		v.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("event publish failed")
	}
}
