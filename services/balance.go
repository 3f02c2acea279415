package services

import (
	"context"
	"errors"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var balanceTolerance = decimal.NewFromFloat(0.01)

// BalanceAggregator answers every balance question by summing the entry log.
// It keeps no state of its own.
type BalanceAggregator struct {
	db *gorm.DB
}

func NewBalanceAggregator(db *gorm.DB) *BalanceAggregator {
	return &BalanceAggregator{db: db}
}

func sumSigned(q *gorm.DB) (decimal.Decimal, error) {
	var total decimal.Decimal
	if err := q.Select("COALESCE(SUM(amount_signed), 0)").Row().Scan(&total); err != nil {
		return decimal.Zero, err
	}
	return total.Round(2), nil
}

// CalculateBalance is the signed sum of one owner's account, optionally
// limited to a single project.
func (b *BalanceAggregator) CalculateBalance(ctx context.Context, owner models.Owner, account models.AccountType, projectID *uuid.UUID) (decimal.Decimal, error) {
	q := b.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Where("owner_type = ? AND owner_id = ? AND account_type = ?", owner.Type, owner.ID, account)
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	}
	return sumSigned(q)
}

func (b *BalanceAggregator) CalculateUserBalances(ctx context.Context, userID uuid.UUID, projectID *uuid.UUID) (*models.MemberBalance, error) {
	owner := models.UserOwner(userID)
	res := &models.MemberBalance{UserID: userID, ProjectID: projectID}

	targets := []struct {
		account models.AccountType
		dst     *decimal.Decimal
	}{
		{models.AccountSavings, &res.Savings},
		{models.AccountLoan, &res.Loans},
		{models.AccountFine, &res.Fines},
		{models.AccountInterest, &res.Interest},
	}
	for _, t := range targets {
		v, err := b.CalculateBalance(ctx, owner, t.account, projectID)
		if err != nil {
			return nil, err
		}
		*t.dst = v
	}

	res.NetPosition = res.Savings.Sub(res.Loans).Sub(res.Fines).Sub(res.Interest)
	return res, nil
}

// CalculateGroupBalances reports the group's own accounts plus the member-side
// totals of every project the group runs.
func (b *BalanceAggregator) CalculateGroupBalances(ctx context.Context, groupID uuid.UUID, projectID *uuid.UUID) (*models.GroupBalance, error) {
	owner := models.GroupOwner(groupID)
	res := &models.GroupBalance{GroupID: groupID, ProjectID: projectID}

	groupAccounts := []struct {
		account models.AccountType
		dst     *decimal.Decimal
	}{
		{models.AccountCash, &res.Cash},
		{models.AccountFine, &res.FinesCollected},
		{models.AccountInterest, &res.InterestEarned},
	}
	for _, t := range groupAccounts {
		v, err := b.CalculateBalance(ctx, owner, t.account, projectID)
		if err != nil {
			return nil, err
		}
		*t.dst = v
	}

	memberAccounts := []struct {
		account models.AccountType
		dst     *decimal.Decimal
	}{
		{models.AccountSavings, &res.TotalSavings},
		{models.AccountLoan, &res.LoansOutstanding},
	}
	for _, t := range memberAccounts {
		q := b.db.WithContext(ctx).Model(&models.LedgerEntry{}).
			Where("owner_type = ? AND account_type = ?", models.OwnerUser, t.account)
		if projectID != nil {
			q = q.Where("project_id = ?", *projectID)
		} else {
			q = q.Where("project_id IN (?)", b.db.Model(&models.Project{}).Select("id").Where("group_id = ?", groupID))
		}
		v, err := sumSigned(q)
		if err != nil {
			return nil, err
		}
		*t.dst = v
	}

	return res, nil
}

// RefreshUserBalance rewrites the cached balance fields on the user from a
// fresh read of the log across all projects.
func (b *BalanceAggregator) RefreshUserBalance(ctx context.Context, userID uuid.UUID) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		agg := NewBalanceAggregator(tx)
		bal, err := agg.CalculateUserBalances(ctx, userID, nil)
		if err != nil {
			return err
		}
		return tx.Model(&models.User{}).Where("id = ?", userID).Updates(map[string]interface{}{
			"balance":      bal.Savings.Sub(bal.Fines.Abs()),
			"loan_balance": bal.Loans.Abs(),
		}).Error
	})
}

func (b *BalanceAggregator) RefreshGroupBalance(ctx context.Context, groupID uuid.UUID) error {
	return b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		agg := NewBalanceAggregator(tx)
		bal, err := agg.CalculateGroupBalances(ctx, groupID, nil)
		if err != nil {
			return err
		}
		return tx.Model(&models.Group{}).Where("id = ?", groupID).Updates(map[string]interface{}{
			"balance":      bal.Cash,
			"loan_balance": bal.LoansOutstanding.Abs(),
		}).Error
	})
}

type accountSums struct {
	OwnerType   models.OwnerType
	AccountType models.AccountType
	Positive    decimal.Decimal
	Negative    decimal.Decimal
}

// VerifyAccountingBalance audits one project: debits and credits, oriented by
// each account's normal side, must agree to within a cent.
func (b *BalanceAggregator) VerifyAccountingBalance(ctx context.Context, projectID uuid.UUID) (*models.AccountingBalance, error) {
	var count int64
	if err := b.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, notFoundError("project %s not found", projectID)
	}

	rows, err := b.db.WithContext(ctx).Model(&models.LedgerEntry{}).
		Select(`owner_type, account_type,
			COALESCE(SUM(CASE WHEN amount_signed > 0 THEN amount_signed ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN amount_signed < 0 THEN amount_signed ELSE 0 END), 0)`).
		Where("project_id = ?", projectID).
		Group("owner_type, account_type").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	debits, credits := decimal.Zero, decimal.Zero
	for rows.Next() {
		var s accountSums
		if err := rows.Scan(&s.OwnerType, &s.AccountType, &s.Positive, &s.Negative); err != nil {
			return nil, err
		}
		if _, ok := normalSide(s.OwnerType, s.AccountType); !ok {
			return nil, internalError("unknown account in ledger", errors.New(string(s.OwnerType)+"/"+string(s.AccountType)))
		}
		for _, v := range []decimal.Decimal{s.Positive, s.Negative} {
			dv := debitValue(s.OwnerType, s.AccountType, v)
			if dv.IsPositive() {
				debits = debits.Add(dv)
			} else {
				credits = credits.Add(dv.Abs())
			}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	debits, credits = debits.Round(2), credits.Round(2)
	diff := debits.Sub(credits).Abs()
	return &models.AccountingBalance{
		ProjectID:    projectID,
		TotalDebits:  debits,
		TotalCredits: credits,
		Difference:   diff,
		IsBalanced:   diff.LessThan(balanceTolerance),
	}, nil
}
