package stats

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
	"fundtrace/internal/events"
)

// Aggregator derives dashboard figures from the ledger. Nothing here is a
// source of truth: every figure can be recomputed from the ledger, and cached
// donor figures are dropped whenever a ledger event could change them.
type Aggregator struct {
	ledger domain.LedgerReader
	risk   domain.RiskStore
	logger zerolog.Logger

	mu       sync.Mutex
	donors   map[int64]domain.DonorStats
	versions map[int64]uint64
	epoch    uint64
}

var _ events.Publisher = (*Aggregator)(nil)

// Option configures an Aggregator.
type Option func(*Aggregator)

func WithLogger(l zerolog.Logger) Option { return func(a *Aggregator) { a.logger = l } }

// WithRiskStore enables the risk figures of SchoolStats.
func WithRiskStore(r domain.RiskStore) Option { return func(a *Aggregator) { a.risk = r } }

// New builds an Aggregator over ledger.
func New(ledger domain.LedgerReader, opts ...Option) *Aggregator {
	a := &Aggregator{
		ledger:   ledger,
		logger:   zerolog.Nop(),
		donors:   map[int64]domain.DonorStats{},
		versions: map[int64]uint64{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Publish receives ledger events and invalidates the cache entries they touch.
func (a *Aggregator) Publish(_ context.Context, e events.Event) error {
	switch e.Type {
	case events.DonationSettled, events.DonationRefunded:
		a.invalidate(e.DonorID)
	case events.SchoolSelected:
		a.invalidateAll()
	}
	return nil
}

func (a *Aggregator) invalidate(donorID int64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.donors, donorID)
	a.versions[donorID]++
}

func (a *Aggregator) invalidateAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.donors = map[int64]domain.DonorStats{}
	a.epoch++
}

func (a *Aggregator) version(donorID int64) (uint64, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.versions[donorID], a.epoch
}

// store caches s unless the donor was invalidated while it was computed.
func (a *Aggregator) store(s domain.DonorStats, version, epoch uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.versions[s.DonorID] != version || a.epoch != epoch {
		return
	}
	a.donors[s.DonorID] = s
}

// DonorStats returns the donor's totals over COMPLETED donations.
func (a *Aggregator) DonorStats(ctx context.Context, donorID int64) (domain.DonorStats, error) {
	a.mu.Lock()
	cached, ok := a.donors[donorID]
	a.mu.Unlock()
	if ok {
		return cached, nil
	}
	version, epoch := a.version(donorID)
	s, err := a.computeDonor(ctx, donorID)
	if err != nil {
		return domain.DonorStats{}, err
	}
	a.store(s, version, epoch)
	return s, nil
}

func (a *Aggregator) computeDonor(ctx context.Context, donorID int64) (domain.DonorStats, error) {
	donations, err := a.ledger.ListDonations(ctx, domain.DonationFilter{DonorID: donorID, Status: domain.PaymentStatusCompleted})
	if err != nil {
		return domain.DonorStats{}, fmt.Errorf("donor %d donations: %w", donorID, err)
	}
	s := domain.DonorStats{DonorID: donorID, TotalDonated: decimal.Zero}
	projects := map[int64]bool{}
	students := map[int64]bool{}
	schools := map[int64]bool{}
	for _, d := range donations {
		s.TotalDonated = s.TotalDonated.Add(d.Amount)
		switch d.Target.Type {
		case domain.DonationTypeProject:
			projects[*d.Target.ProjectID] = true
		case domain.DonationTypeStudent:
			students[*d.Target.StudentID] = true
		}
	}
	for projectID := range projects {
		parts, err := a.ledger.ListParticipations(ctx, domain.ParticipationFilter{ProjectID: projectID})
		if err != nil {
			return domain.DonorStats{}, fmt.Errorf("project %d schools: %w", projectID, err)
		}
		for _, ps := range parts {
			schools[ps.SchoolID] = true
		}
	}
	for studentID := range students {
		st, err := a.ledger.GetStudent(ctx, studentID)
		if err != nil {
			return domain.DonorStats{}, fmt.Errorf("student %d: %w", studentID, err)
		}
		schools[st.SchoolID] = true
	}
	s.ProjectsDonated = len(projects)
	s.StudentsSponsored = len(students)
	s.SchoolsSupported = len(schools)
	return s, nil
}

// Drift is a cached donor entry that disagreed with a fresh recomputation.
type Drift struct {
	DonorID int64
	Cached  domain.DonorStats
	Fresh   domain.DonorStats
}

// Reconcile recomputes every cached donor entry and reports disagreements.
// Drifted entries are replaced with the fresh figures.
func (a *Aggregator) Reconcile(ctx context.Context) ([]Drift, error) {
	a.mu.Lock()
	cached := make([]domain.DonorStats, 0, len(a.donors))
	for _, s := range a.donors {
		cached = append(cached, s)
	}
	a.mu.Unlock()

	var drifts []Drift
	for _, c := range cached {
		version, epoch := a.version(c.DonorID)
		fresh, err := a.computeDonor(ctx, c.DonorID)
		if err != nil {
			return drifts, err
		}
		if !sameDonorStats(c, fresh) {
			drifts = append(drifts, Drift{DonorID: c.DonorID, Cached: c, Fresh: fresh})
			a.logger.Warn().Int64("donor_id", c.DonorID).Str("cached_total", c.TotalDonated.String()).
				Str("fresh_total", fresh.TotalDonated.String()).Msg("donor stats drift")
		}
		a.store(fresh, version, epoch)
	}
	return drifts, nil
}

func sameDonorStats(x, y domain.DonorStats) bool {
	return x.DonorID == y.DonorID && x.TotalDonated.Equal(y.TotalDonated) &&
		x.SchoolsSupported == y.SchoolsSupported && x.StudentsSponsored == y.StudentsSponsored &&
		x.ProjectsDonated == y.ProjectsDonated
}
