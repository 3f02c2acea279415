package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	DefaultStatementLimit = 50
	MaxStatementLimit     = 500
)

var hundred = decimal.NewFromInt(100)

// TransactionInput is what every member-level posting needs. CreatedBy is the
// caller; the ledger never reads an ambient user.
type TransactionInput struct {
	UserID      uuid.UUID
	ProjectID   uuid.UUID
	Amount      decimal.Decimal
	Description string
	Date        time.Time
	CreatedBy   uuid.UUID

	reference *string
}

type LoanInput struct {
	TransactionInput
	// Falls back to the cycle's interest rate when nil.
	InterestRate *decimal.Decimal
}

type SharePurchaseInput struct {
	TransactionInput
	Shares decimal.Decimal
}

type TransactionResult struct {
	Success  bool                 `json:"success"`
	Message  string               `json:"message"`
	Entries  []models.LedgerEntry `json:"entries"`
	Warnings []string             `json:"warnings,omitempty"`
}

type StatementFilter struct {
	ProjectID   *uuid.UUID
	AccountType *models.AccountType
	Limit       int
}

// LedgerService exposes the named ledger operations. Each one is a fixed
// template over the engine.
type LedgerService struct {
	db       *gorm.DB
	engine   *Engine
	notifier Notifier
}

func NewLedgerService(db *gorm.DB, engine *Engine, notifier Notifier) *LedgerService {
	return &LedgerService{db: db, engine: engine, notifier: notifier}
}

func (s *LedgerService) Engine() *Engine { return s.engine }

type postingContext struct {
	project models.Project
	member  models.User
}

func (s *LedgerService) prepare(ctx context.Context, in TransactionInput) (*postingContext, error) {
	if in.UserID == uuid.Nil {
		return nil, validationError("user_id is required")
	}
	if in.ProjectID == uuid.Nil {
		return nil, validationError("project_id is required")
	}
	if !in.Amount.IsPositive() {
		return nil, validationError("amount must be greater than 0")
	}

	pc := &postingContext{}
	if err := s.db.WithContext(ctx).First(&pc.project, "id = ?", in.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationError("project %s not found", in.ProjectID)
		}
		return nil, internalError("failed to load project", err)
	}
	if !pc.project.IsActive() {
		return nil, businessError(ErrTypeInactiveCycle, "cycle %q is %s", pc.project.Name, pc.project.Status)
	}
	if err := s.db.WithContext(ctx).First(&pc.member, "id = ?", in.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, validationError("user %s not found", in.UserID)
		}
		return nil, internalError("failed to load user", err)
	}
	return pc, nil
}

func (in TransactionInput) posting(groupID uuid.UUID, description string) posting {
	if in.Description != "" {
		description = in.Description
	}
	return posting{
		projectID:   in.ProjectID,
		userID:      in.UserID,
		groupID:     groupID,
		amount:      in.Amount,
		description: description,
		date:        in.Date,
		createdBy:   in.CreatedBy,
		reference:   in.reference,
	}
}

func flatten(pairs []Pair) []models.LedgerEntry {
	entries := make([]models.LedgerEntry, 0, len(pairs)*2)
	for _, p := range pairs {
		entries = append(entries, p.Primary, p.Contra)
	}
	return entries
}

func (s *LedgerService) RecordSaving(ctx context.Context, in TransactionInput) (*TransactionResult, error) {
	pc, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	primary, contra := savingTemplate.build(in.posting(pc.project.GroupID, "Savings deposit"))
	pairs, err := s.engine.post(ctx, []pairSpec{{primary, contra}}, nil)
	if err != nil {
		return nil, err
	}

	s.afterPosting(pc, in, models.ActivitySaving, models.SourceSaving, pairs[0].Primary.ID)
	return &TransactionResult{
		Success: true,
		Message: "Savings recorded successfully",
		Entries: flatten(pairs),
	}, nil
}

// RecordSharePurchase records the cash paid for shares and adds the shares to
// the investor's stake in the cycle. Amount defaults to shares x share value.
func (s *LedgerService) RecordSharePurchase(ctx context.Context, in SharePurchaseInput) (*TransactionResult, error) {
	if !in.Shares.IsPositive() {
		return nil, validationError("number_of_shares must be greater than 0")
	}
	if in.Amount.IsZero() && in.ProjectID != uuid.Nil {
		var project models.Project
		if err := s.db.WithContext(ctx).Select("id", "share_value").First(&project, "id = ?", in.ProjectID).Error; err == nil {
			in.Amount = in.Shares.Mul(project.ShareValue).Round(2)
		}
	}

	pc, err := s.prepare(ctx, in.TransactionInput)
	if err != nil {
		return nil, err
	}

	desc := fmt.Sprintf("Purchase of %s shares", in.Shares.String())
	primary, contra := sharePurchaseTemplate.build(in.posting(pc.project.GroupID, desc))
	pairs, err := s.engine.post(ctx, []pairSpec{{primary, contra}}, func(tx *gorm.DB) error {
		return addShares(tx, in.UserID, in.ProjectID, in.Shares)
	})
	if err != nil {
		return nil, err
	}

	s.afterPosting(pc, in.TransactionInput, models.ActivitySharePurchase, models.SourceSharePurchase, pairs[0].Primary.ID)
	return &TransactionResult{
		Success: true,
		Message: "Share purchase recorded successfully",
		Entries: flatten(pairs),
	}, nil
}

func addShares(tx *gorm.DB, investorID, projectID uuid.UUID, shares decimal.Decimal) error {
	res := tx.Model(&models.Share{}).
		Where("investor_id = ? AND project_id = ?", investorID, projectID).
		Update("number_of_shares", gorm.Expr("number_of_shares + ?", shares))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	return tx.Create(&models.Share{InvestorID: investorID, ProjectID: projectID, NumberOfShares: shares}).Error
}

// DisburseLoan posts the principal and, when the rate is positive, the flat
// interest owed on it. Both pairs commit together.
func (s *LedgerService) DisburseLoan(ctx context.Context, in LoanInput) (*TransactionResult, error) {
	pc, err := s.prepare(ctx, in.TransactionInput)
	if err != nil {
		return nil, err
	}

	rate := pc.project.InterestRate
	if in.InterestRate != nil {
		rate = *in.InterestRate
	}
	if rate.IsNegative() {
		return nil, validationError("interest_rate cannot be negative")
	}

	var warnings []string
	if pc.project.MaxLoanMultiple.IsPositive() {
		savings, err := s.engine.balances.CalculateBalance(ctx, models.UserOwner(in.UserID), models.AccountSavings, &in.ProjectID)
		if err != nil {
			return nil, internalError("failed to read savings", err)
		}
		limit := savings.Mul(pc.project.MaxLoanMultiple).Round(2)
		if in.Amount.GreaterThan(limit) {
			warnings = append(warnings, fmt.Sprintf("loan of %s exceeds %sx savings (%s)",
				in.Amount.StringFixed(2), pc.project.MaxLoanMultiple.String(), limit.StringFixed(2)))
		}
	}

	p := in.posting(pc.project.GroupID, "Loan disbursement")
	primary, contra := loanTemplate.build(p)
	specs := []pairSpec{{primary, contra}}

	interest := in.Amount.Mul(rate).Div(hundred).Round(2)
	if interest.IsPositive() {
		ip := p
		ip.amount = interest
		ip.description = fmt.Sprintf("Interest at %s%% on loan of %s", rate.String(), in.Amount.StringFixed(2))
		ip.reference = nil
		iPrimary, iContra := interestTemplate.build(ip)
		specs = append(specs, pairSpec{iPrimary, iContra})
	}

	pairs, err := s.engine.post(ctx, specs, nil)
	if err != nil {
		return nil, err
	}

	s.afterPosting(pc, in.TransactionInput, models.ActivityLoanDisbursed, models.SourceLoanDisbursement, pairs[0].Primary.ID)
	return &TransactionResult{
		Success:  true,
		Message:  "Loan disbursed successfully",
		Entries:  flatten(pairs),
		Warnings: warnings,
	}, nil
}

// RecordLoanRepayment applies a payment to the member's outstanding principal
// first and to accrued interest after that. A payment larger than both
// together is rejected.
func (s *LedgerService) RecordLoanRepayment(ctx context.Context, in TransactionInput) (*TransactionResult, error) {
	pc, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	owner := models.UserOwner(in.UserID)
	principal, err := s.engine.balances.CalculateBalance(ctx, owner, models.AccountLoan, &in.ProjectID)
	if err != nil {
		return nil, internalError("failed to read loan balance", err)
	}
	interest, err := s.engine.balances.CalculateBalance(ctx, owner, models.AccountInterest, &in.ProjectID)
	if err != nil {
		return nil, internalError("failed to read interest balance", err)
	}
	principal = decimal.Max(principal, decimal.Zero)
	interest = decimal.Max(interest, decimal.Zero)
	owed := principal.Add(interest)
	if !owed.IsPositive() {
		return nil, businessError(ErrTypeNoOutstandingLoan, "member has no outstanding loan in this cycle")
	}
	if in.Amount.GreaterThan(owed) {
		return nil, businessError(ErrTypeLoanOverpayment, "repayment of %s exceeds outstanding loan of %s",
			in.Amount.StringFixed(2), owed.StringFixed(2))
	}

	toPrincipal := decimal.Min(in.Amount, principal)
	toInterest := in.Amount.Sub(toPrincipal)

	p := in.posting(pc.project.GroupID, "Loan repayment")
	var specs []pairSpec
	if toPrincipal.IsPositive() {
		pp := p
		pp.amount = toPrincipal
		primary, contra := repaymentTemplate.build(pp)
		specs = append(specs, pairSpec{primary, contra})
	}
	if toInterest.IsPositive() {
		ip := p
		ip.amount = toInterest
		ip.description = "Interest payment"
		if len(specs) > 0 {
			ip.reference = nil
		}
		primary, contra := interestPaymentTemplate.build(ip)
		specs = append(specs, pairSpec{primary, contra})
	}

	pairs, err := s.engine.post(ctx, specs, func(tx *gorm.DB) error {
		// Re-check under the write in case a concurrent repayment landed first.
		agg := NewBalanceAggregator(tx)
		for _, account := range []models.AccountType{models.AccountLoan, models.AccountInterest} {
			after, err := agg.CalculateBalance(ctx, owner, account, &in.ProjectID)
			if err != nil {
				return err
			}
			if after.IsNegative() {
				return businessError(ErrTypeLoanOverpayment, "repayment of %s exceeds outstanding loan", in.Amount.StringFixed(2))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.afterPosting(pc, in, models.ActivityLoanRepaid, models.SourceLoanRepayment, pairs[0].Primary.ID)
	return &TransactionResult{
		Success: true,
		Message: "Loan repayment recorded successfully",
		Entries: flatten(pairs),
	}, nil
}

func (s *LedgerService) RecordFine(ctx context.Context, in TransactionInput) (*TransactionResult, error) {
	if in.Description == "" {
		return nil, validationError("description is required for a fine")
	}
	pc, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}

	primary, contra := fineTemplate.build(in.posting(pc.project.GroupID, ""))
	pairs, err := s.engine.post(ctx, []pairSpec{{primary, contra}}, nil)
	if err != nil {
		return nil, err
	}

	s.afterPosting(pc, in, models.ActivityFine, models.SourceFine, pairs[0].Primary.ID)
	return &TransactionResult{
		Success: true,
		Message: "Fine recorded successfully",
		Entries: flatten(pairs),
	}, nil
}

func (s *LedgerService) GetMemberBalance(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) (*models.MemberBalance, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, internalError("failed to load user", err)
	}
	if count == 0 {
		return nil, notFoundError("user %s not found", userID)
	}
	bal, err := s.engine.balances.CalculateUserBalances(ctx, userID, projectID)
	if err != nil {
		return nil, internalError("failed to calculate balance", err)
	}
	return bal, nil
}

// GetGroupBalance serves from the balance cache when it can. A project-scoped
// request also carries the accounting audit for that project.
func (s *LedgerService) GetGroupBalance(ctx context.Context, groupID uuid.UUID, projectID *uuid.UUID) (*models.GroupBalance, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Group{}).Where("id = ?", groupID).Count(&count).Error; err != nil {
		return nil, internalError("failed to load group", err)
	}
	if count == 0 {
		return nil, notFoundError("group %s not found", groupID)
	}

	key := balanceKey(projectID)
	if bal, ok := s.engine.cache.Get(ctx, groupID, key); ok {
		return bal, nil
	}
	gen, genErr := s.engine.cache.Generation(ctx, groupID)

	bal, err := s.engine.balances.CalculateGroupBalances(ctx, groupID, projectID)
	if err != nil {
		return nil, internalError("failed to calculate balance", err)
	}
	if projectID != nil {
		verification, err := s.engine.balances.VerifyAccountingBalance(ctx, *projectID)
		if err != nil {
			return nil, asLedgerError("failed to verify accounting balance", err)
		}
		bal.AccountingVerification = verification
	}

	if genErr != nil {
		log.Printf("⚠️  Not caching balance for group %s: %v", groupID, genErr)
	} else if err := s.engine.cache.Set(ctx, groupID, key, gen, bal); err != nil {
		log.Printf("⚠️  Failed to cache balance for group %s: %v", groupID, err)
	}
	return bal, nil
}

func (s *LedgerService) VerifyAccountingBalance(ctx context.Context, projectID uuid.UUID) (*models.AccountingBalance, error) {
	res, err := s.engine.balances.VerifyAccountingBalance(ctx, projectID)
	if err != nil {
		return nil, asLedgerError("failed to verify accounting balance", err)
	}
	return res, nil
}

// GetMemberStatement lists a member's entries, most recent first.
func (s *LedgerService) GetMemberStatement(ctx context.Context, userID uuid.UUID, f StatementFilter) ([]models.LedgerEntry, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultStatementLimit
	}
	if f.Limit > MaxStatementLimit {
		f.Limit = MaxStatementLimit
	}
	if f.AccountType != nil && !f.AccountType.Valid() {
		return nil, validationError("unknown account_type %q", *f.AccountType)
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Count(&count).Error; err != nil {
		return nil, internalError("failed to load user", err)
	}
	if count == 0 {
		return nil, notFoundError("user %s not found", userID)
	}

	q := s.db.WithContext(ctx).Where("owner_type = ? AND owner_id = ?", models.OwnerUser, userID)
	if f.ProjectID != nil {
		q = q.Where("project_id = ?", *f.ProjectID)
	}
	if f.AccountType != nil {
		q = q.Where("account_type = ?", *f.AccountType)
	}

	var entries []models.LedgerEntry
	if err := q.Order("transaction_date DESC").Order("created_at DESC").Limit(f.Limit).Find(&entries).Error; err != nil {
		return nil, internalError("failed to load statement", err)
	}
	return entries, nil
}

// DeleteTransaction soft-deletes the pair containing entryID.
func (s *LedgerService) DeleteTransaction(ctx context.Context, actor, entryID uuid.UUID) (*TransactionResult, error) {
	entries, err := s.engine.DeleteTransaction(ctx, entryID)
	if err != nil {
		return nil, err
	}
	s.recordEntryActivity(ctx, actor, entries, models.ActivityEntryDeleted, "Deleted")
	return &TransactionResult{Success: true, Message: "Transaction deleted successfully", Entries: entries}, nil
}

func (s *LedgerService) RestoreTransaction(ctx context.Context, actor, entryID uuid.UUID) (*TransactionResult, error) {
	entries, err := s.engine.RestoreTransaction(ctx, entryID)
	if err != nil {
		return nil, err
	}
	s.recordEntryActivity(ctx, actor, entries, models.ActivityEntryRestored, "Restored")
	return &TransactionResult{Success: true, Message: "Transaction restored successfully", Entries: entries}, nil
}

func (s *LedgerService) recordEntryActivity(ctx context.Context, actor uuid.UUID, entries []models.LedgerEntry, activityType, verb string) {
	if len(entries) == 0 {
		return
	}
	var project models.Project
	if err := s.db.WithContext(ctx).Select("id", "group_id").First(&project, "id = ?", entries[0].ProjectID).Error; err != nil {
		log.Printf("⚠️  Failed to load project for activity: %v", err)
		return
	}
	e := entries[0]
	recordActivity(s.db.WithContext(ctx), project.GroupID, actor, activityType, e.ID,
		fmt.Sprintf("%s %s entry of %s", verb, e.Source, e.Amount.StringFixed(2)))
}

func (s *LedgerService) afterPosting(pc *postingContext, in TransactionInput, activityType, source string, refID uuid.UUID) {
	recordActivity(s.db, pc.project.GroupID, in.CreatedBy, activityType, refID,
		fmt.Sprintf("%s: %s for %s", source, in.Amount.StringFixed(2), pc.member.Name))

	if s.notifier == nil {
		return
	}
	member, groupID, amount := pc.member, pc.project.GroupID, in.Amount
	go func() {
		var group models.Group
		if err := s.db.First(&group, "id = ?", groupID).Error; err != nil {
			log.Printf("⚠️  Notification skipped, group %s: %v", groupID, err)
			return
		}
		s.notifier.NotifyTransaction(member, group, source, amount)
	}()
}

func recordActivity(db *gorm.DB, groupID, userID uuid.UUID, activityType string, refID uuid.UUID, description string) {
	activity := models.Activity{
		GroupID:     groupID,
		UserID:      userID,
		Type:        activityType,
		ReferenceID: refID,
		Description: description,
	}
	if err := db.Create(&activity).Error; err != nil {
		log.Printf("⚠️  Failed to record activity %s: %v", activityType, err)
	}
}

// ListActivity returns a group's feed, newest first.
func (s *LedgerService) ListActivity(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]models.Activity, error) {
	var activities []models.Activity
	err := s.db.WithContext(ctx).Where("group_id = ?", groupID).
		Order("created_at DESC").Limit(limit).Offset(offset).
		Find(&activities).Error
	if err != nil {
		return nil, internalError("failed to load activity", err)
	}
	return activities, nil
}
