package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"fundtrace/internal/domain"
)

type riskState struct {
	mu          sync.RWMutex
	predictions map[int64]*domain.DropoutPrediction
	attendance  map[int64]map[string]bool
}

// riskTx works on riskState with risk.mu already held.
type riskTx struct {
	r *riskState
}

// WithinStudent holds the risk lock for the whole of fn.
func (s *Store) WithinStudent(ctx context.Context, _ int64, fn func(tx domain.RiskTx) error) error {
	s.risk.mu.Lock()
	defer s.risk.mu.Unlock()
	return fn(riskTx{r: &s.risk})
}

func (s *Store) GetPrediction(ctx context.Context, studentID int64) (*domain.DropoutPrediction, error) {
	s.risk.mu.RLock()
	defer s.risk.mu.RUnlock()
	return riskTx{r: &s.risk}.GetPrediction(ctx, studentID)
}

// SavePrediction overwrites the student's prediction.
func (s *Store) SavePrediction(ctx context.Context, p *domain.DropoutPrediction) error {
	s.risk.mu.Lock()
	defer s.risk.mu.Unlock()
	return riskTx{r: &s.risk}.SavePrediction(ctx, p)
}

// AddAttendance records one day; recording the same day again replaces it.
func (s *Store) AddAttendance(ctx context.Context, rec domain.AttendanceRecord) error {
	s.risk.mu.Lock()
	defer s.risk.mu.Unlock()
	return riskTx{r: &s.risk}.AddAttendance(ctx, rec)
}

func (s *Store) AttendanceSummary(ctx context.Context, studentID int64) (int, int, error) {
	s.risk.mu.RLock()
	defer s.risk.mu.RUnlock()
	return riskTx{r: &s.risk}.AttendanceSummary(ctx, studentID)
}

func (t riskTx) GetPrediction(_ context.Context, studentID int64) (*domain.DropoutPrediction, error) {
	p, ok := t.r.predictions[studentID]
	if !ok {
		return nil, notFound("prediction for student", studentID)
	}
	cp := copyPrediction(p)
	return &cp, nil
}

func (t riskTx) SavePrediction(_ context.Context, p *domain.DropoutPrediction) error {
	cp := copyPrediction(p)
	t.r.predictions[p.StudentID] = &cp
	return nil
}

// AddAttendance keys the record by its UTC day.
func (t riskTx) AddAttendance(_ context.Context, rec domain.AttendanceRecord) error {
	days, ok := t.r.attendance[rec.StudentID]
	if !ok {
		days = map[string]bool{}
		t.r.attendance[rec.StudentID] = days
	}
	days[rec.Date.UTC().Format(time.DateOnly)] = rec.Present
	return nil
}

func (t riskTx) AttendanceSummary(_ context.Context, studentID int64) (int, int, error) {
	present := 0
	days := t.r.attendance[studentID]
	for _, p := range days {
		if p {
			present++
		}
	}
	return present, len(days), nil
}

func (s *Store) ListPredictions(_ context.Context, f domain.PredictionFilter) ([]domain.DropoutPrediction, error) {
	s.risk.mu.RLock()
	defer s.risk.mu.RUnlock()
	students := make(map[int64]bool, len(f.StudentIDs))
	for _, id := range f.StudentIDs {
		students[id] = true
	}
	levels := make(map[domain.RiskLevel]bool, len(f.Levels))
	for _, l := range f.Levels {
		levels[l] = true
	}
	var out []domain.DropoutPrediction
	for _, p := range s.risk.predictions {
		if len(students) > 0 && !students[p.StudentID] {
			continue
		}
		if len(levels) > 0 && !levels[p.RiskLevel] {
			continue
		}
		if !f.CalculatedBefore.IsZero() && !p.LastCalculated.Before(f.CalculatedBefore) {
			continue
		}
		out = append(out, copyPrediction(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func copyPrediction(p *domain.DropoutPrediction) domain.DropoutPrediction {
	cp := *p
	cp.RiskFactors = append([]string(nil), p.RiskFactors...)
	cp.InterventionNotes = append([]domain.InterventionNote(nil), p.InterventionNotes...)
	return cp
}
