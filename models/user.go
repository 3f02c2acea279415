package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email    string    `gorm:"size:255;index" json:"email,omitempty"`
	Phone    string    `gorm:"size:20" json:"phone,omitempty"`
	Name     string    `gorm:"not null;size:100" json:"name"`
	FCMToken string    `json:"-"`

	// Derived from ledger_entries, refreshed after every write touching the user
	Balance     decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"balance"`
	LoanBalance decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"loan_balance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// CreateMemberRequest registers a member on behalf of the group. Many
// members have no email or smartphone.
type CreateMemberRequest struct {
	Name  string `json:"name" binding:"required"`
	Phone string `json:"phone"`
	Email string `json:"email" binding:"omitempty,email"`
}

type UpdateFCMTokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// Response struct (what we return to clients)
type UserResponse struct {
	ID          uuid.UUID       `json:"id"`
	Email       string          `json:"email,omitempty"`
	Phone       string          `json:"phone,omitempty"`
	Name        string          `json:"name"`
	Balance     decimal.Decimal `json:"balance"`
	LoanBalance decimal.Decimal `json:"loan_balance"`
}

func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Email:       u.Email,
		Phone:       u.Phone,
		Name:        u.Name,
		Balance:     u.Balance,
		LoanBalance: u.LoanBalance,
	}
}
