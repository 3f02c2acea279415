package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	MeetingPending     = "pending"
	MeetingProcessing  = "processing"
	MeetingCompleted   = "completed"
	MeetingFailed      = "failed"
	MeetingNeedsReview = "needs_review"
)

// MeetingRecord is one offline-submitted meeting. The raw arrays are kept as
// submitted so the batch can be processed again.
type MeetingRecord struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	LocalID       string    `gorm:"size:100;not null;uniqueIndex" json:"local_id"`
	CycleID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_meeting_number,priority:1" json:"cycle_id"`
	GroupID       uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_meeting_number,priority:2" json:"group_id"`
	MeetingNumber int       `gorm:"not null;uniqueIndex:idx_meeting_number,priority:3" json:"meeting_number"`
	MeetingDate   time.Time `gorm:"type:date;not null" json:"meeting_date"`
	Notes         string    `gorm:"type:text" json:"notes,omitempty"`
	CreatedByID   uuid.UUID `gorm:"type:uuid" json:"created_by_id"`

	Attendance     datatypes.JSON `json:"attendance"`
	Transactions   datatypes.JSON `json:"transactions"`
	Loans          datatypes.JSON `json:"loans"`
	SharePurchases datatypes.JSON `json:"share_purchases"`
	ActionPlans    datatypes.JSON `json:"action_plans"`

	MembersPresent   int            `gorm:"not null;default:0" json:"members_present"`
	ProcessingStatus string         `gorm:"size:20;not null;default:pending;index" json:"processing_status"`
	HasErrors        bool           `gorm:"not null;default:false" json:"has_errors"`
	HasWarnings      bool           `gorm:"not null;default:false" json:"has_warnings"`
	Errors           datatypes.JSON `json:"errors"`
	Warnings         datatypes.JSON `json:"warnings"`
	ProcessedAt      *time.Time     `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (m *MeetingRecord) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

// StaleProcessingAfter is how long a meeting may sit in processing before a
// reprocess request may take it over.
const StaleProcessingAfter = 15 * time.Minute

// CanReprocess reports whether a reprocess may start at now: the last run
// failed or needs review, or a run stopped without recording its outcome.
func (m *MeetingRecord) CanReprocess(now time.Time) bool {
	switch m.ProcessingStatus {
	case MeetingFailed, MeetingNeedsReview:
		return true
	case MeetingProcessing:
		return m.UpdatedAt.Before(now.Add(-StaleProcessingAfter))
	}
	return false
}

// MeetingPayload is the batch a device uploads after an offline meeting.
type MeetingPayload struct {
	LocalID        string                 `json:"local_id" binding:"required"`
	CycleID        string                 `json:"cycle_id" binding:"required"`
	GroupID        string                 `json:"group_id"`
	MeetingDate    string                 `json:"meeting_date"` // YYYY-MM-DD
	Notes          string                 `json:"notes"`
	Attendance     []AttendanceItem       `json:"attendance"`
	Transactions   []MeetingTransaction   `json:"transactions"`
	Loans          []MeetingLoan          `json:"loans"`
	SharePurchases []MeetingSharePurchase `json:"share_purchases"`
	ActionPlans    []ActionPlan           `json:"action_plans"`
}

type AttendanceItem struct {
	MemberID string `json:"member_id"`
	Status   string `json:"status"` // present, absent, excused
	Notes    string `json:"notes,omitempty"`
}

type MeetingTransaction struct {
	MemberID    string          `json:"member_id"`
	Type        string          `json:"type"` // savings, fine, loan_repayment
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

type MeetingLoan struct {
	BorrowerID     string           `json:"borrower_id"`
	Amount         decimal.Decimal  `json:"amount"`
	InterestRate   *decimal.Decimal `json:"interest_rate,omitempty"`
	DurationMonths int              `json:"duration_months,omitempty"`
	Purpose        string           `json:"purpose"`
}

type MeetingSharePurchase struct {
	InvestorID     string          `json:"investor_id"`
	NumberOfShares decimal.Decimal `json:"number_of_shares"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
}

type ActionPlan struct {
	Action     string `json:"action"`
	AssignedTo string `json:"assigned_to_member_id,omitempty"`
	DueDate    string `json:"due_date,omitempty"`
}

// MeetingResult is the outcome of submitting or reprocessing a meeting.
type MeetingResult struct {
	Success          bool      `json:"success"`
	MeetingID        uuid.UUID `json:"meeting_id"`
	MeetingNumber    int       `json:"meeting_number"`
	ProcessingStatus string    `json:"processing_status"`
	Errors           []string  `json:"errors"`
	Warnings         []string  `json:"warnings"`
}
