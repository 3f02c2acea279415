package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type OwnerType string

const (
	OwnerUser  OwnerType = "user"
	OwnerGroup OwnerType = "group"
)

type AccountType string

const (
	AccountSavings  AccountType = "savings"
	AccountLoan     AccountType = "loan"
	AccountFine     AccountType = "fine"
	AccountInterest AccountType = "interest"
	AccountCash     AccountType = "cash"
	AccountShare    AccountType = "share"
)

func (a AccountType) Valid() bool {
	switch a {
	case AccountSavings, AccountLoan, AccountFine, AccountInterest, AccountCash, AccountShare:
		return true
	}
	return false
}

type EntryType string

const (
	EntryIncome  EntryType = "income"
	EntryExpense EntryType = "expense"
)

const (
	SourceSaving           = "saving"
	SourceSharePurchase    = "share_purchase"
	SourceLoanDisbursement = "loan_disbursement"
	SourceLoanInterest     = "loan_interest"
	SourceLoanRepayment    = "loan_repayment"
	SourceInterestPayment  = "interest_payment"
	SourceFine             = "fine"
	SourceDisbursement     = "disbursement"
	SourceMeetingSync      = "meeting_sync"
)

// Owner identifies the account holder of an entry: a member or a group.
// Build it with UserOwner or GroupOwner.
type Owner struct {
	Type OwnerType `json:"type"`
	ID   uuid.UUID `json:"id"`
}

func UserOwner(id uuid.UUID) Owner  { return Owner{Type: OwnerUser, ID: id} }
func GroupOwner(id uuid.UUID) Owner { return Owner{Type: OwnerGroup, ID: id} }

func (o Owner) IsUser() bool  { return o.Type == OwnerUser }
func (o Owner) IsGroup() bool { return o.Type == OwnerGroup }

func (o Owner) String() string {
	return fmt.Sprintf("%s:%s", o.Type, o.ID)
}

// LedgerEntry is one signed monetary fact. Entries are written only by the
// transaction engine, in contra pairs except for distribution credits.
type LedgerEntry struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ProjectID     uuid.UUID       `gorm:"type:uuid;not null;index:idx_entry_project_owner,priority:1" json:"project_id"`
	OwnerType     OwnerType       `gorm:"size:10;not null;index:idx_entry_project_owner,priority:2;index:idx_entry_owner,priority:1" json:"owner_type"`
	OwnerID       uuid.UUID       `gorm:"type:uuid;not null;index:idx_entry_project_owner,priority:3;index:idx_entry_owner,priority:2" json:"owner_id"`
	AccountType   AccountType     `gorm:"size:20;not null;index" json:"account_type"`
	Amount        decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount"`
	AmountSigned  decimal.Decimal `gorm:"type:decimal(14,2);not null" json:"amount_signed"`
	IsContraEntry bool            `gorm:"not null;default:false" json:"is_contra_entry"`
	ContraEntryID *uuid.UUID      `gorm:"type:uuid;index" json:"contra_entry_id,omitempty"`
	Type          EntryType       `gorm:"size:10;not null;index" json:"type"`
	Source        string          `gorm:"size:40;not null" json:"source"`
	Description   string          `gorm:"size:255" json:"description"`

	// Set on distribution credits and the matching cash expense
	DisbursementID *uuid.UUID `gorm:"type:uuid;index" json:"disbursement_id,omitempty"`
	// meeting:<id>:<section>:<index> for entries expanded from a meeting
	Reference *string `gorm:"size:120;index" json:"reference,omitempty"`

	TransactionDate time.Time      `gorm:"type:date;not null;index" json:"transaction_date"`
	CreatedByID     uuid.UUID      `gorm:"type:uuid" json:"created_by_id"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"-"`
}

func (e *LedgerEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}

func (e *LedgerEntry) Owner() Owner {
	return Owner{Type: e.OwnerType, ID: e.OwnerID}
}

// Request structs
type PostTransactionRequest struct {
	UserID       string           `json:"user_id" binding:"required"`
	Amount       decimal.Decimal  `json:"amount"`
	InterestRate *decimal.Decimal `json:"interest_rate"`
	Shares       decimal.Decimal  `json:"number_of_shares"`
	Description  string           `json:"description"`
	Date         string           `json:"transaction_date"` // YYYY-MM-DD
}
