package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActivitySaving          = "saving_recorded"
	ActivitySharePurchase   = "shares_purchased"
	ActivityLoanDisbursed   = "loan_disbursed"
	ActivityLoanRepaid      = "loan_repaid"
	ActivityFine            = "fine_recorded"
	ActivityEntryDeleted    = "entry_deleted"
	ActivityEntryRestored   = "entry_restored"
	ActivityDisbursement    = "disbursement_created"
	ActivityDisbursementDel = "disbursement_deleted"
	ActivityMeeting         = "meeting_processed"
)

type Activity struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	GroupID     uuid.UUID `gorm:"type:uuid;index" json:"group_id"`
	UserID      uuid.UUID `gorm:"type:uuid" json:"user_id"`
	Type        string    `gorm:"not null;size:30" json:"type"`
	ReferenceID uuid.UUID `gorm:"type:uuid" json:"reference_id,omitempty"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (a *Activity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
