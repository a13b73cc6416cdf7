package risk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
	"fundtrace/internal/events"
)

// StudentLookup confirms a student exists.
type StudentLookup interface {
	GetStudent(ctx context.Context, id int64) (*domain.Student, error)
}

// Service keeps each student's latest prediction in step with their signals.
// Recomputation overwrites the stored prediction and keeps its notes. Each
// update of one student runs under the store's per-student unit of work.
type Service struct {
	store    domain.RiskStore
	students StudentLookup
	model    Model
	now      func() time.Time
	logger   zerolog.Logger
	events   events.Publisher
}

// Option configures a Service.
type Option func(*Service)

func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.logger = l } }

func WithPublisher(p events.Publisher) Option { return func(s *Service) { s.events = p } }

// WithModel replaces the default weights and thresholds.
func WithModel(m Model) Option { return func(s *Service) { s.model = m } }

// NewService builds a Service. The model is validated up front.
func NewService(store domain.RiskStore, students StudentLookup, opts ...Option) (*Service, error) {
	s := &Service{
		store:    store,
		students: students,
		model:    DefaultModel(),
		now:      func() time.Time { return time.Now().UTC() },
		logger:   zerolog.Nop(),
		events:   events.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.model.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Result is a stored prediction with the diagnostics of its last computation.
type Result struct {
	Prediction  *domain.DropoutPrediction
	Diagnostics []*domain.SignalOutOfRangeError
}

// ComputeRisk scores the given signals and stores the result as the student's
// current prediction.
func (s *Service) ComputeRisk(ctx context.Context, studentID int64, signals domain.RiskSignals) (*Result, error) {
	if _, err := s.students.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.rescore(ctx, studentID, func(_ domain.RiskTx, _ *domain.DropoutPrediction) (domain.RiskSignals, bool, error) {
		return signals, true, nil
	})
}

// RecordAttendance stores one day of attendance, derives the attendance rate
// from everything recorded so far and re-scores the student.
func (s *Service) RecordAttendance(ctx context.Context, studentID int64, date time.Time, present bool) (*Result, error) {
	if _, err := s.students.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, domain.NewValidationError("date", "required")
	}
	return s.rescore(ctx, studentID, func(tx domain.RiskTx, prev *domain.DropoutPrediction) (domain.RiskSignals, bool, error) {
		if err := tx.AddAttendance(ctx, domain.AttendanceRecord{StudentID: studentID, Date: date, Present: present}); err != nil {
			return domain.RiskSignals{}, false, fmt.Errorf("record attendance: %w", err)
		}
		attended, total, err := tx.AttendanceSummary(ctx, studentID)
		if err != nil {
			return domain.RiskSignals{}, false, fmt.Errorf("attendance summary: %w", err)
		}
		signals := s.baseline(prev)
		signals.AttendanceRate = decimal.NewFromInt(int64(attended)).Mul(hundred).DivRound(decimal.NewFromInt(int64(total)), 2)
		return signals, true, nil
	})
}

// UpdateFamilyData replaces the income and parental-status signals and
// re-scores the student.
func (s *Service) UpdateFamilyData(ctx context.Context, studentID int64, incomeScore, parentScore decimal.Decimal) (*Result, error) {
	if _, err := s.students.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return s.rescore(ctx, studentID, func(_ domain.RiskTx, prev *domain.DropoutPrediction) (domain.RiskSignals, bool, error) {
		signals := s.baseline(prev)
		signals.FamilyIncomeScore = incomeScore
		signals.ParentStatusScore = parentScore
		return signals, true, nil
	})
}

// AddInterventionNote appends a caseworker note to the current prediction.
func (s *Service) AddInterventionNote(ctx context.Context, studentID int64, author, text string) (*domain.DropoutPrediction, error) {
	var p *domain.DropoutPrediction
	err := s.store.WithinStudent(ctx, studentID, func(tx domain.RiskTx) error {
		var err error
		p, err = tx.GetPrediction(ctx, studentID)
		if err != nil {
			return err
		}
		if err := p.AddNote(author, text, s.now()); err != nil {
			return err
		}
		if err := tx.SavePrediction(ctx, p); err != nil {
			return fmt.Errorf("save prediction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("student_id", studentID).Str("author", strings.TrimSpace(author)).Msg("intervention note added")
	return p, nil
}

// Prediction returns the student's current prediction.
func (s *Service) Prediction(ctx context.Context, studentID int64) (*domain.DropoutPrediction, error) {
	return s.store.GetPrediction(ctx, studentID)
}

// RefreshStale re-scores predictions computed before cutoff with the current
// model. It returns how many were refreshed. A prediction updated after it was
// listed is left alone.
func (s *Service) RefreshStale(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.store.ListPredictions(ctx, domain.PredictionFilter{CalculatedBefore: cutoff})
	if err != nil {
		return 0, fmt.Errorf("list stale predictions: %w", err)
	}
	refreshed := 0
	for i := range stale {
		if err := ctx.Err(); err != nil {
			return refreshed, err
		}
		res, err := s.rescore(ctx, stale[i].StudentID, func(_ domain.RiskTx, prev *domain.DropoutPrediction) (domain.RiskSignals, bool, error) {
			if prev == nil || !prev.LastCalculated.Before(cutoff) {
				return domain.RiskSignals{}, false, nil
			}
			return prev.Signals, true, nil
		})
		if err != nil {
			return refreshed, err
		}
		if res != nil {
			refreshed++
		}
	}
	return refreshed, nil
}

// nextSignals derives the signals to score from the stored prediction, which
// is nil for a student never scored. Returning false skips the update.
type nextSignals func(tx domain.RiskTx, prev *domain.DropoutPrediction) (domain.RiskSignals, bool, error)

// rescore reads, scores and saves one student as a single unit of work and
// publishes the tier change once it is stored. It returns nil when next skips.
func (s *Service) rescore(ctx context.Context, studentID int64, next nextSignals) (*Result, error) {
	var (
		res      *Result
		oldLevel domain.RiskLevel
	)
	err := s.store.WithinStudent(ctx, studentID, func(tx domain.RiskTx) error {
		prev, err := current(ctx, tx, studentID)
		if err != nil {
			return err
		}
		signals, ok, err := next(tx, prev)
		if err != nil || !ok {
			return err
		}
		if prev != nil {
			oldLevel = prev.RiskLevel
		}
		res, err = s.apply(ctx, tx, studentID, prev, signals)
		return err
	})
	if err != nil || res == nil {
		return nil, err
	}

	p := res.Prediction
	if oldLevel != p.RiskLevel {
		ev := events.New(events.RiskTierChanged, p.LastCalculated)
		ev.StudentID = studentID
		ev.Payload = map[string]any{"from": string(oldLevel), "to": string(p.RiskLevel), "score": p.OverallRiskScore.String()}
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn().Err(err).Int64("student_id", studentID).Msg("event publish failed")
		}
	}
	return res, nil
}

func current(ctx context.Context, tx domain.RiskTx, studentID int64) (*domain.DropoutPrediction, error) {
	p, err := tx.GetPrediction(ctx, studentID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, nil
	}
	return p, err
}

// baseline is the starting point for a partial update: the stored signals, or
// a student with no recorded risk.
func (s *Service) baseline(prev *domain.DropoutPrediction) domain.RiskSignals {
	if prev != nil {
		return prev.Signals
	}
	return domain.RiskSignals{AttendanceRate: hundred, FamilyIncomeScore: hundred, ParentStatusScore: hundred}
}

func (s *Service) apply(ctx context.Context, tx domain.RiskTx, studentID int64, prev *domain.DropoutPrediction, signals domain.RiskSignals) (*Result, error) {
	a := Compute(signals, s.model)
	for _, d := range a.Diagnostics {
		s.logger.Warn().Int64("student_id", studentID).Str("signal", d.Signal).
			Str("value", d.Value.String()).Msg("risk signal clamped")
	}

	p := &domain.DropoutPrediction{StudentID: studentID}
	if prev != nil {
		p.InterventionNotes = prev.InterventionNotes
	}
	p.Signals = a.Signals
	p.OverallRiskScore = a.Score
	p.RiskLevel = a.Level
	p.RiskFactors = a.Factors
	p.LastCalculated = s.now()
	if err := tx.SavePrediction(ctx, p); err != nil {
		return nil, fmt.Errorf("save prediction: %w", err)
	}

	s.logger.Debug().Int64("student_id", studentID).Str("score", p.OverallRiskScore.String()).
		Str("level", string(p.RiskLevel)).Msg("risk computed")
	return &Result{Prediction: p, Diagnostics: a.Diagnostics}, nil
}
