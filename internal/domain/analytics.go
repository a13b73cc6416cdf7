package domain

import "github.com/shopspring/decimal"

// DonorStats summarises what a donor has funded.
type DonorStats struct {
	DonorID           int64
	TotalDonated      decimal.Decimal
	SchoolsSupported  int
	StudentsSponsored int
	ProjectsDonated   int
}

// NgoStats rolls up the budgets of an NGO's projects.
type NgoStats struct {
	NgoID                 int64
	Projects              int
	SchoolsReached        int
	TotalAllocated        decimal.Decimal
	TotalUtilized         decimal.Decimal
	UtilizationPercentage decimal.Decimal
}

// SchoolStats rolls up project participation and student risk for a school.
type SchoolStats struct {
	SchoolID        int64
	Projects        int
	TotalAllocated  decimal.Decimal
	TotalUtilized   decimal.Decimal
	Students        int
	StudentsAtRisk  int
	RiskLevelCounts map[RiskLevel]int
}

// PlatformSummary is the public headline view of the ledger.
type PlatformSummary struct {
	CompletedDonations int
	Donors             int
	TotalDonated       decimal.Decimal
	TotalUtilized      decimal.Decimal
	ByCountry          map[string]decimal.Decimal
}
