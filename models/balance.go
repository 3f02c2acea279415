package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemberBalance is returned for GET /api/members/:id/balance
type MemberBalance struct {
	UserID      uuid.UUID       `json:"user_id"`
	ProjectID   *uuid.UUID      `json:"project_id,omitempty"`
	Savings     decimal.Decimal `json:"savings"`
	Loans       decimal.Decimal `json:"loans"`
	Fines       decimal.Decimal `json:"fines"`
	Interest    decimal.Decimal `json:"interest"`
	NetPosition decimal.Decimal `json:"net_position"`
}

// GroupBalance is returned for GET /api/groups/:id/balance
type GroupBalance struct {
	GroupID                uuid.UUID          `json:"group_id"`
	ProjectID              *uuid.UUID         `json:"project_id,omitempty"`
	Cash                   decimal.Decimal    `json:"cash"`
	TotalSavings           decimal.Decimal    `json:"total_savings"`
	LoansOutstanding       decimal.Decimal    `json:"loans_outstanding"`
	FinesCollected         decimal.Decimal    `json:"fines_collected"`
	InterestEarned         decimal.Decimal    `json:"interest_earned"`
	AccountingVerification *AccountingBalance `json:"accounting_verification,omitempty"`
}

// AccountingBalance is the result of the double-entry audit for one project.
type AccountingBalance struct {
	ProjectID    uuid.UUID       `json:"project_id"`
	TotalDebits  decimal.Decimal `json:"total_debits"`
	TotalCredits decimal.Decimal `json:"total_credits"`
	Difference   decimal.Decimal `json:"difference"`
	IsBalanced   bool            `json:"is_balanced"`
}

// CycleTotals is what the roll-up derives from a project's entries.
type CycleTotals struct {
	Income   decimal.Decimal `json:"income"`
	Expenses decimal.Decimal `json:"expenses"`
	Surplus  decimal.Decimal `json:"surplus"`
}
