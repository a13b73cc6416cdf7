package handlers

import (
	"time"

	"github.com/shopspring/decimal"

	"fundtrace/internal/domain"
)

type donationResponse struct {
	ID                 int64           `json:"id"`
	DonorID            *int64          `json:"donor_id,omitempty"`
	Type               string          `json:"type"`
	ProjectID          *int64          `json:"project_id,omitempty"`
	StudentID          *int64          `json:"student_id,omitempty"`
	Amount             decimal.Decimal `json:"amount"`
	Purpose            string          `json:"purpose,omitempty"`
	IsAnonymous        bool            `json:"is_anonymous"`
	OriginCountry      string          `json:"origin_country,omitempty"`
	PaymentStatus      string          `json:"payment_status"`
	PaymentCompletedAt *time.Time      `json:"payment_completed_at,omitempty"`
	RefundedAt         *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt          time.Time       `json:"created_at"`
}

// toDonation hides the donor of an anonymous donation unless reveal is set.
func toDonation(d *domain.Donation, reveal bool) donationResponse {
	resp := donationResponse{
		ID:                 d.ID,
		Type:               string(d.Target.Type),
		ProjectID:          d.Target.ProjectID,
		StudentID:          d.Target.StudentID,
		Amount:             d.Amount,
		Purpose:            d.Purpose,
		IsAnonymous:        d.IsAnonymous,
		OriginCountry:      d.OriginCountry,
		PaymentStatus:      string(d.PaymentStatus),
		PaymentCompletedAt: d.PaymentCompletedAt,
		RefundedAt:         d.RefundedAt,
		CreatedAt:          d.CreatedAt,
	}
	if reveal || !d.IsAnonymous {
		donor := d.DonorID
		resp.DonorID = &donor
	}
	return resp
}

type transactionResponse struct {
	ID              int64           `json:"id"`
	DonationID      int64           `json:"donation_id"`
	Type            string          `json:"type"`
	Method          string          `json:"method,omitempty"`
	Status          string          `json:"status"`
	Reference       string          `json:"reference"`
	Amount          decimal.Decimal `json:"amount"`
	ResponseCode    string          `json:"response_code,omitempty"`
	ResponseMessage string          `json:"response_message,omitempty"`
	InitiatedAt     time.Time       `json:"initiated_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
}

func toTransaction(t *domain.PaymentTransaction) transactionResponse {
	return transactionResponse{
		ID:              t.ID,
		DonationID:      t.DonationID,
		Type:            string(t.Type),
		Method:          t.Method,
		Status:          string(t.Status),
		Reference:       t.Reference,
		Amount:          t.Amount,
		ResponseCode:    t.ResponseCode,
		ResponseMessage: t.ResponseMessage,
		InitiatedAt:     t.InitiatedAt,
		CompletedAt:     t.CompletedAt,
	}
}

type utilizationResponse struct {
	ID              int64           `json:"id"`
	DonationID      int64           `json:"donation_id"`
	ProjectID       int64           `json:"project_id"`
	SchoolID        *int64          `json:"school_id,omitempty"`
	AmountUsed      decimal.Decimal `json:"amount_used"`
	Description     string          `json:"description,omitempty"`
	Vendor          string          `json:"vendor"`
	InvoiceNumber   string          `json:"invoice_number"`
	ReceiptURLs     []string        `json:"receipt_urls"`
	UtilizationDate time.Time       `json:"utilization_date"`
	Status          string          `json:"status"`
	ReviewedBy      string          `json:"reviewed_by,omitempty"`
	ReviewNote      string          `json:"review_note,omitempty"`
	ReviewedAt      *time.Time      `json:"reviewed_at,omitempty"`
}

func toUtilization(u *domain.FundUtilization) utilizationResponse {
	return utilizationResponse{
		ID:              u.ID,
		DonationID:      u.DonationID,
		ProjectID:       u.ProjectID,
		SchoolID:        u.SchoolID,
		AmountUsed:      u.AmountUsed,
		Description:     u.Description,
		Vendor:          u.Evidence.Vendor,
		InvoiceNumber:   u.Evidence.InvoiceNumber,
		ReceiptURLs:     u.Evidence.ReceiptURLs,
		UtilizationDate: u.UtilizationDate,
		Status:          string(u.Status),
		ReviewedBy:      u.ReviewedBy,
		ReviewNote:      u.ReviewNote,
		ReviewedAt:      u.ReviewedAt,
	}
}

type transparencyResponse struct {
	ID                  int64                         `json:"id"`
	UtilizationID       int64                         `json:"utilization_id"`
	BeforePhotos        []string                      `json:"before_photos"`
	AfterPhotos         []string                      `json:"after_photos"`
	BeneficiaryFeedback string                        `json:"beneficiary_feedback,omitempty"`
	UnitQuantity        decimal.Decimal               `json:"unit_quantity"`
	UnitCost            decimal.Decimal               `json:"unit_cost"`
	TotalCost           decimal.Decimal               `json:"total_cost"`
	VerificationStatus  string                        `json:"verification_status"`
	VerifiedBy          string                        `json:"verified_by,omitempty"`
	VerifiedAt          *time.Time                    `json:"verified_at,omitempty"`
	IsPublic            bool                          `json:"is_public"`
	PublishedAt         *time.Time                    `json:"published_at,omitempty"`
	NeedsReview         bool                          `json:"needs_review"`
	Warning             *domain.ReconciliationWarning `json:"reconciliation_warning,omitempty"`
}

func toTransparency(t *domain.FundTransparency) transparencyResponse {
	return transparencyResponse{
		ID:                  t.ID,
		UtilizationID:       t.UtilizationID,
		BeforePhotos:        t.BeforePhotos,
		AfterPhotos:         t.AfterPhotos,
		BeneficiaryFeedback: t.BeneficiaryFeedback,
		UnitQuantity:        t.UnitQuantity,
		UnitCost:            t.UnitCost,
		TotalCost:           t.TotalCost(),
		VerificationStatus:  string(t.VerificationStatus),
		VerifiedBy:          t.VerifiedBy,
		VerifiedAt:          t.VerifiedAt,
		IsPublic:            t.IsPublic,
		PublishedAt:         t.PublishedAt,
		NeedsReview:         t.NeedsReview(),
		Warning:             t.Warning,
	}
}

type noteResponse struct {
	Author    string    `json:"author"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type predictionResponse struct {
	StudentID         int64           `json:"student_id"`
	AttendanceRate    decimal.Decimal `json:"attendance_rate"`
	FamilyIncomeScore decimal.Decimal `json:"family_income_score"`
	ParentStatusScore decimal.Decimal `json:"parent_status_score"`
	OverallRiskScore  decimal.Decimal `json:"overall_risk_score"`
	RiskLevel         string          `json:"risk_level"`
	RiskFactors       []string        `json:"risk_factors"`
	InterventionNotes []noteResponse  `json:"intervention_notes"`
	LastCalculated    time.Time       `json:"last_calculated"`
	Diagnostics       []string        `json:"diagnostics,omitempty"`
}

func toPrediction(p *domain.DropoutPrediction, diagnostics []*domain.SignalOutOfRangeError) predictionResponse {
	resp := predictionResponse{
		StudentID:         p.StudentID,
		AttendanceRate:    p.Signals.AttendanceRate,
		FamilyIncomeScore: p.Signals.FamilyIncomeScore,
		ParentStatusScore: p.Signals.ParentStatusScore,
		OverallRiskScore:  p.OverallRiskScore,
		RiskLevel:         string(p.RiskLevel),
		RiskFactors:       p.RiskFactors,
		InterventionNotes: make([]noteResponse, 0, len(p.InterventionNotes)),
		LastCalculated:    p.LastCalculated,
	}
	if resp.RiskFactors == nil {
		resp.RiskFactors = []string{}
	}
	for _, n := range p.InterventionNotes {
		resp.InterventionNotes = append(resp.InterventionNotes, noteResponse{Author: n.Author, Text: n.Text, CreatedAt: n.CreatedAt})
	}
	for _, d := range diagnostics {
		resp.Diagnostics = append(resp.Diagnostics, d.Error())
	}
	return resp
}

type budgetResponse struct {
	ProjectID             int64           `json:"project_id"`
	SchoolID              int64           `json:"school_id"`
	AllocatedBudget       decimal.Decimal `json:"allocated_budget"`
	UtilizedBudget        decimal.Decimal `json:"utilized_budget"`
	RemainingBudget       decimal.Decimal `json:"remaining_budget"`
	UtilizationPercentage decimal.Decimal `json:"budget_utilization_percentage"`
}

func toBudget(b domain.BudgetView) budgetResponse {
	return budgetResponse{
		ProjectID:             b.ProjectID,
		SchoolID:              b.SchoolID,
		AllocatedBudget:       b.Allocated,
		UtilizedBudget:        b.Utilized,
		RemainingBudget:       b.Remaining(),
		UtilizationPercentage: b.UtilizationPercentage(),
	}
}
