package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	ProjectStatusActive = "active"
	ProjectStatusClosed = "closed"
)

// Project is one savings cycle of a group. The cycle parameters are read by
// validation; the totals are written only by the cycle roll-up.
type Project struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID     uuid.UUID `gorm:"type:uuid;index;not null" json:"group_id"`
	Name        string    `gorm:"not null;size:150" json:"name"`
	IsVSLACycle bool      `gorm:"not null;default:false" json:"is_vsla_cycle"`
	Status      string    `gorm:"not null;default:active;size:20" json:"status"`

	ShareValue      decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"share_value"`
	InterestRate    decimal.Decimal `gorm:"type:decimal(6,2);not null;default:0" json:"interest_rate"`
	MaxLoanMultiple decimal.Decimal `gorm:"type:decimal(6,2);not null;default:0" json:"max_loan_multiple"`
	PenaltyRate     decimal.Decimal `gorm:"type:decimal(6,2);not null;default:0" json:"penalty_rate"`

	StartDate *time.Time `gorm:"type:date" json:"start_date,omitempty"`
	EndDate   *time.Time `gorm:"type:date" json:"end_date,omitempty"`

	TotalIncome   decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_income"`
	TotalExpenses decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total_expenses"`
	NetSurplus    decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"net_surplus"`

	CreatedBy uuid.UUID `gorm:"type:uuid" json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Project) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Project) IsActive() bool {
	return p.Status == ProjectStatusActive
}

type CreateProjectRequest struct {
	Name            string          `json:"name" binding:"required"`
	IsVSLACycle     bool            `json:"is_vsla_cycle"`
	ShareValue      decimal.Decimal `json:"share_value"`
	InterestRate    decimal.Decimal `json:"interest_rate"`
	MaxLoanMultiple decimal.Decimal `json:"max_loan_multiple"`
	PenaltyRate     decimal.Decimal `json:"penalty_rate"`
	StartDate       string          `json:"start_date"` // YYYY-MM-DD
	EndDate         string          `json:"end_date"`   // YYYY-MM-DD
}

// Share is an investor's stake in a project, used to weight disbursements.
type Share struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	InvestorID     uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_share_investor_project" json:"investor_id"`
	ProjectID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_share_investor_project" json:"project_id"`
	NumberOfShares decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"number_of_shares"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (s *Share) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// Disbursement is a cycle-level profit distribution event.
type Disbursement struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID        uuid.UUID       `gorm:"type:uuid;index;not null" json:"project_id"`
	Amount           decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	DisbursementDate time.Time       `gorm:"type:date;not null" json:"disbursement_date"`
	Description      string          `gorm:"size:255" json:"description"`
	CreatedByID      uuid.UUID       `gorm:"type:uuid" json:"created_by_id"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	DeletedAt        gorm.DeletedAt  `gorm:"index" json:"-"`
}

func (d *Disbursement) BeforeCreate(tx *gorm.DB) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	return nil
}

type CreateDisbursementRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Date        string          `json:"disbursement_date"` // YYYY-MM-DD
	Description string          `json:"description"`
}
