package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fundtrace/internal/domain"
	"fundtrace/internal/infra"
	"fundtrace/internal/sqlinline"
)

// RiskStore implements domain.RiskStore on PostgreSQL.
type RiskStore struct {
	sql infra.SQLExecutor
	db  TxRunner
}

// NewRiskStore wraps db.
func NewRiskStore(db TxRunner) *RiskStore {
	return &RiskStore{sql: db, db: db}
}

// WithinStudent runs fn in a transaction holding the student's row lock.
func (s *RiskStore) WithinStudent(ctx context.Context, studentID int64, fn func(tx domain.RiskTx) error) error {
	return s.db.InTx(ctx, func(sql infra.SQLExecutor) error {
		var id int64
		if err := sql.QueryRow(ctx, sqlinline.QLockStudentRisk, studentID).Scan(&id); err != nil {
			return notFound(err, "student", studentID)
		}
		return fn(&RiskStore{sql: sql})
	})
}

type noteRecord struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *RiskStore) GetPrediction(ctx context.Context, studentID int64) (*domain.DropoutPrediction, error) {
	p, err := scanPrediction(s.sql.QueryRow(ctx, sqlinline.QSelectPrediction, studentID))
	if err != nil {
		return nil, notFound(err, "prediction for student", studentID)
	}
	return p, nil
}

func (s *RiskStore) SavePrediction(ctx context.Context, p *domain.DropoutPrediction) error {
	notes := make([]noteRecord, 0, len(p.InterventionNotes))
	for _, n := range p.InterventionNotes {
		notes = append(notes, noteRecord{Author: n.Author, Text: n.Text, CreatedAt: n.CreatedAt})
	}
	raw, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("encode intervention_notes: %w", err)
	}
	factors := p.RiskFactors
	if factors == nil {
		factors = []string{}
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertPrediction,
		p.StudentID, p.Signals.AttendanceRate.String(), p.Signals.FamilyIncomeScore.String(),
		p.Signals.ParentStatusScore.String(), p.OverallRiskScore.String(), string(p.RiskLevel),
		factors, raw, p.LastCalculated)
	if err != nil {
		return fmt.Errorf("save prediction: %w", err)
	}
	return nil
}

func (s *RiskStore) ListPredictions(ctx context.Context, f domain.PredictionFilter) ([]domain.DropoutPrediction, error) {
	ids := f.StudentIDs
	if ids == nil {
		ids = []int64{}
	}
	levels := make([]string, 0, len(f.Levels))
	for _, l := range f.Levels {
		levels = append(levels, string(l))
	}
	var before *time.Time
	if !f.CalculatedBefore.IsZero() {
		before = &f.CalculatedBefore
	}
	rows, err := s.sql.Query(ctx, sqlinline.QListPredictions, ids, levels, before)
	if err != nil {
		return nil, err
	}
	return collect(rows, scanPrediction)
}

func (s *RiskStore) AddAttendance(ctx context.Context, rec domain.AttendanceRecord) error {
	day := rec.Date.UTC().Format(time.DateOnly)
	if _, err := s.sql.Exec(ctx, sqlinline.QUpsertAttendance, rec.StudentID, day, rec.Present); err != nil {
		return fmt.Errorf("record attendance: %w", err)
	}
	return nil
}

func (s *RiskStore) AttendanceSummary(ctx context.Context, studentID int64) (present, total int, err error) {
	var p, t int64
	if err := s.sql.QueryRow(ctx, sqlinline.QAttendanceSummary, studentID).Scan(&p, &t); err != nil {
		return 0, 0, err
	}
	return int(p), int(t), nil
}

func scanPrediction(row scanner) (*domain.DropoutPrediction, error) {
	var (
		p                          domain.DropoutPrediction
		attendance, income, parent string
		score, level               string
		notes                      []byte
	)
	if err := row.Scan(&p.StudentID, &attendance, &income, &parent, &score, &level, &p.RiskFactors, &notes, &p.LastCalculated); err != nil {
		return nil, err
	}
	var err error
	if p.Signals.AttendanceRate, err = parseDecimal("attendance_rate", attendance); err != nil {
		return nil, err
	}
	if p.Signals.FamilyIncomeScore, err = parseDecimal("family_income_score", income); err != nil {
		return nil, err
	}
	if p.Signals.ParentStatusScore, err = parseDecimal("parent_status_score", parent); err != nil {
		return nil, err
	}
	if p.OverallRiskScore, err = parseDecimal("overall_risk_score", score); err != nil {
		return nil, err
	}
	p.RiskLevel = domain.RiskLevel(level)
	if len(notes) > 0 {
		var records []noteRecord
		if err := json.Unmarshal(notes, &records); err != nil {
			return nil, fmt.Errorf("decode intervention_notes: %w", err)
		}
		for _, r := range records {
			p.InterventionNotes = append(p.InterventionNotes, domain.InterventionNote{Author: r.Author, Text: r.Text, CreatedAt: r.CreatedAt})
		}
	}
	return &p, nil
}

var _ domain.RiskStore = (*RiskStore)(nil)
