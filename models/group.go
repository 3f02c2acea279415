package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	GroupTypeVSLA   = "vsla"
	GroupTypeFarmer = "farmer"
	GroupTypeOther  = "other"
)

type Group struct {
	ID        uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string        `gorm:"not null;size:100" json:"name"`
	Type      string        `gorm:"default:other;size:20" json:"type"` // vsla, farmer, other
	CreatedBy uuid.UUID     `gorm:"type:uuid" json:"created_by"`
	Members   []GroupMember `gorm:"foreignKey:GroupID" json:"members,omitempty"`

	// Cash on hand and loans outstanding, derived from ledger_entries
	Balance     decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"balance"`
	LoanBalance decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"loan_balance"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (g *Group) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

func (g *Group) IsVSLA() bool {
	return g.Type == GroupTypeVSLA
}

type GroupMember struct {
	GroupID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"group_id"`
	UserID   uuid.UUID `gorm:"type:uuid;primaryKey" json:"user_id"`
	User     User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role     string    `gorm:"default:member;size:20" json:"role"` // chairperson, treasurer, secretary, member
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`
}

// Request structs
type CreateGroupRequest struct {
	Name    string   `json:"name" binding:"required"`
	Type    string   `json:"type" binding:"omitempty,oneof=vsla farmer other"`
	Members []string `json:"members"` // user IDs
}

type AddMemberRequest struct {
	UserID string `json:"user_id"`
	Phone  string `json:"phone"`
	Role   string `json:"role"`
}

// Response structs
type GroupResponse struct {
	ID          uuid.UUID             `json:"id"`
	Name        string                `json:"name"`
	Type        string                `json:"type"`
	CreatedBy   uuid.UUID             `json:"created_by"`
	Balance     decimal.Decimal       `json:"balance"`
	LoanBalance decimal.Decimal       `json:"loan_balance"`
	Members     []GroupMemberResponse `json:"members"`
	CreatedAt   time.Time             `json:"created_at"`
}

type GroupMemberResponse struct {
	UserID   uuid.UUID `json:"user_id"`
	Name     string    `json:"name"`
	Phone    string    `json:"phone,omitempty"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}
