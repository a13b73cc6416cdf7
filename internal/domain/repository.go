package domain

import (
	"context"
	"time"
)

// DonationFilter narrows ListDonations. Zero values do not filter.
type DonationFilter struct {
	DonorID   int64
	ProjectID int64
	StudentID int64
	Status    PaymentStatus
}

// UtilizationFilter narrows ListUtilizations. Zero values do not filter.
type UtilizationFilter struct {
	DonationID int64
	ProjectID  int64
	SchoolID   int64
	Status     UtilizationStatus
}

// ProjectFilter narrows ListProjects. Zero values do not filter.
type ProjectFilter struct {
	NgoID int64
}

// ParticipationFilter narrows ListParticipations. Zero values do not filter.
type ParticipationFilter struct {
	ProjectID int64
	SchoolID  int64
}

// PredictionFilter narrows ListPredictions. Zero values do not filter.
type PredictionFilter struct {
	StudentIDs       []int64
	Levels           []RiskLevel
	CalculatedBefore time.Time
}

// LedgerReader exposes the read side of the ledger. Getters return ErrNotFound
// for unknown ids.
type LedgerReader interface {
	GetDonation(ctx context.Context, id int64) (*Donation, error)
	ListDonations(ctx context.Context, f DonationFilter) ([]Donation, error)
	ListTransactions(ctx context.Context, donationID int64) ([]PaymentTransaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*PaymentTransaction, error)
	GetUtilization(ctx context.Context, id int64) (*FundUtilization, error)
	ListUtilizations(ctx context.Context, f UtilizationFilter) ([]FundUtilization, error)
	GetTransparency(ctx context.Context, id int64) (*FundTransparency, error)
	GetTransparencyByUtilization(ctx context.Context, utilizationID int64) (*FundTransparency, error)
	GetProject(ctx context.Context, id int64) (*Project, error)
	ListProjects(ctx context.Context, f ProjectFilter) ([]Project, error)
	GetSchool(ctx context.Context, id int64) (*School, error)
	GetStudent(ctx context.Context, id int64) (*Student, error)
	ListStudents(ctx context.Context, schoolID int64) ([]Student, error)
	ListParticipations(ctx context.Context, f ParticipationFilter) ([]ProjectSchool, error)
}

// LedgerTx is a unit of work. Writes become visible to other readers only when
// the surrounding WithinTx callback returns nil.
type LedgerTx interface {
	LedgerReader
	// Lock* hold the row until the unit of work ends.
	LockDonation(ctx context.Context, id int64) (*Donation, error)
	LockProject(ctx context.Context, id int64) (*Project, error)
	LockUtilization(ctx context.Context, id int64) (*FundUtilization, error)
	LockTransparency(ctx context.Context, id int64) (*FundTransparency, error)

	CreateDonation(ctx context.Context, d *Donation) error
	UpdateDonation(ctx context.Context, d *Donation) error
	CreateTransaction(ctx context.Context, t *PaymentTransaction) error
	UpdateTransaction(ctx context.Context, t *PaymentTransaction) error
	CreateUtilization(ctx context.Context, u *FundUtilization) error
	// UpdateUtilization stores a review. It fails with ErrInvalidTransition
	// when the stored utilization is no longer PENDING.
	UpdateUtilization(ctx context.Context, u *FundUtilization) error
	CreateTransparency(ctx context.Context, t *FundTransparency) error
	UpdateTransparency(ctx context.Context, t *FundTransparency) error
	CreateParticipation(ctx context.Context, ps *ProjectSchool) error
}

// LedgerStore persists ledger records.
type LedgerStore interface {
	LedgerReader
	WithinTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

// RiskTx reads and writes one student's risk data.
type RiskTx interface {
	GetPrediction(ctx context.Context, studentID int64) (*DropoutPrediction, error)
	SavePrediction(ctx context.Context, p *DropoutPrediction) error
	AddAttendance(ctx context.Context, rec AttendanceRecord) error
	// AttendanceSummary returns days present and days recorded.
	AttendanceSummary(ctx context.Context, studentID int64) (present, total int, err error)
}

// RiskStore persists the latest prediction and attendance per student.
type RiskStore interface {
	RiskTx
	ListPredictions(ctx context.Context, f PredictionFilter) ([]DropoutPrediction, error)
	// WithinStudent runs fn as one unit of work. No other WithinStudent call
	// for the same student runs until fn returns.
	WithinStudent(ctx context.Context, studentID int64, fn func(tx RiskTx) error) error
}
