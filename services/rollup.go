package services

import (
	"context"
	"errors"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CycleRollup keeps a project's income, expense and surplus columns in step
// with its entries.
type CycleRollup struct {
	db *gorm.DB
}

func NewCycleRollup(db *gorm.DB) *CycleRollup {
	return &CycleRollup{db: db}
}

// cycleTotals sums the group-side legs of a project by entry type. Member-side
// legs mirror them, so they are left out. Interest accrued at disbursement is
// not income until it is paid, so only interest payments count.
func cycleTotals(db *gorm.DB, projectID uuid.UUID) (models.CycleTotals, error) {
	rows, err := db.Model(&models.LedgerEntry{}).
		Select("type, COALESCE(SUM(amount), 0)").
		Where("project_id = ? AND owner_type = ?", projectID, models.OwnerGroup).
		Where("source <> ?", models.SourceLoanInterest).
		Group("type").
		Rows()
	if err != nil {
		return models.CycleTotals{}, err
	}
	defer rows.Close()

	totals := models.CycleTotals{Income: decimal.Zero, Expenses: decimal.Zero}
	for rows.Next() {
		var (
			entryType models.EntryType
			sum       decimal.Decimal
		)
		if err := rows.Scan(&entryType, &sum); err != nil {
			return models.CycleTotals{}, err
		}
		switch entryType {
		case models.EntryIncome:
			totals.Income = sum.Round(2)
		case models.EntryExpense:
			totals.Expenses = sum.Round(2)
		}
	}
	if err := rows.Err(); err != nil {
		return models.CycleTotals{}, err
	}

	totals.Surplus = totals.Income.Sub(totals.Expenses)
	return totals, nil
}

// Totals reads the current figures without writing them back.
func (r *CycleRollup) Totals(ctx context.Context, projectID uuid.UUID) (models.CycleTotals, error) {
	return cycleTotals(r.db.WithContext(ctx), projectID)
}

// RecalculateFromTransactions recomputes and stores the project's totals and
// returns the id of the group that owns it.
func (r *CycleRollup) RecalculateFromTransactions(ctx context.Context, projectID uuid.UUID) (uuid.UUID, error) {
	var groupID uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.Select("id", "group_id").First(&project, "id = ?", projectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("project %s not found", projectID)
			}
			return err
		}
		groupID = project.GroupID

		totals, err := cycleTotals(tx, projectID)
		if err != nil {
			return err
		}
		return tx.Model(&models.Project{}).Where("id = ?", projectID).Updates(map[string]interface{}{
			"total_income":   totals.Income,
			"total_expenses": totals.Expenses,
			"net_surplus":    totals.Surplus,
		}).Error
	})
	return groupID, err
}
