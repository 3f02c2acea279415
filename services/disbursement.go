package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type DisbursementInput struct {
	ProjectID   uuid.UUID
	Amount      decimal.Decimal
	Date        time.Time
	Description string
	CreatedBy   uuid.UUID
}

type DisbursementResult struct {
	Disbursement models.Disbursement  `json:"disbursement"`
	Allocations  []Allocation         `json:"allocations"`
	Entries      []models.LedgerEntry `json:"entries"`
}

// DisbursementService pays a cycle's surplus out to its investors pro rata
// by shares held.
type DisbursementService struct {
	db       *gorm.DB
	engine   *Engine
	notifier Notifier
}

func NewDisbursementService(db *gorm.DB, engine *Engine, notifier Notifier) *DisbursementService {
	return &DisbursementService{db: db, engine: engine, notifier: notifier}
}

// allocate splits amount across shares rounded to cents. The rounding
// residue goes to the largest shareholder, lowest investor id on ties, so the
// portions always add up to amount exactly.
func allocate(amount decimal.Decimal, shares []models.Share) []Allocation {
	sorted := make([]models.Share, len(shares))
	copy(sorted, shares)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].InvestorID.String() < sorted[j].InvestorID.String()
	})

	total := decimal.Zero
	for _, sh := range sorted {
		total = total.Add(sh.NumberOfShares)
	}

	allocs := make([]Allocation, 0, len(sorted))
	distributed := decimal.Zero
	largest := 0
	for i, sh := range sorted {
		portion := amount.Mul(sh.NumberOfShares).Div(total).Round(2)
		allocs = append(allocs, Allocation{InvestorID: sh.InvestorID, Shares: sh.NumberOfShares, Amount: portion})
		distributed = distributed.Add(portion)
		if sh.NumberOfShares.GreaterThan(sorted[largest].NumberOfShares) {
			largest = i
		}
	}

	if residue := amount.Sub(distributed); !residue.IsZero() && len(allocs) > 0 {
		allocs[largest].Amount = allocs[largest].Amount.Add(residue)
	}
	return allocs
}

func (s *DisbursementService) Create(ctx context.Context, in DisbursementInput) (*DisbursementResult, error) {
	if in.ProjectID == uuid.Nil {
		return nil, validationError("project_id is required")
	}
	if !in.Amount.IsPositive() {
		return nil, validationError("amount must be greater than 0")
	}
	if !in.Amount.Equal(in.Amount.Round(2)) {
		return nil, validationError("amount %s has more than 2 decimal places", in.Amount)
	}
	if in.Date.IsZero() {
		in.Date = today()
	}
	if in.Description == "" {
		in.Description = "Profit distribution"
	}

	var (
		result  DisbursementResult
		groupID uuid.UUID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var project models.Project
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&project, "id = ?", in.ProjectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return validationError("project %s not found", in.ProjectID)
			}
			return err
		}
		groupID = project.GroupID

		totals, err := cycleTotals(tx, project.ID)
		if err != nil {
			return err
		}
		if !totals.Surplus.IsPositive() {
			return businessError(ErrTypeInsufficientFunds, "cycle has no surplus available for disbursement")
		}
		if in.Amount.GreaterThan(totals.Surplus) {
			return businessError(ErrTypeInsufficientFunds, "disbursement of %s exceeds available funds of %s",
				in.Amount.StringFixed(2), totals.Surplus.StringFixed(2))
		}

		cash, err := NewBalanceAggregator(tx).CalculateBalance(ctx, models.GroupOwner(project.GroupID), models.AccountCash, &project.ID)
		if err != nil {
			return err
		}
		if in.Amount.GreaterThan(cash) {
			return businessError(ErrTypeInsufficientFunds, "disbursement of %s exceeds cash on hand of %s",
				in.Amount.StringFixed(2), cash.StringFixed(2))
		}

		var shares []models.Share
		if err := tx.Where("project_id = ? AND number_of_shares > 0", project.ID).Find(&shares).Error; err != nil {
			return err
		}
		if len(shares) == 0 {
			return businessError(ErrTypeNoInvestors, "cycle has no investors to distribute to")
		}

		result.Disbursement = models.Disbursement{
			ProjectID:        project.ID,
			Amount:           in.Amount,
			DisbursementDate: in.Date,
			Description:      in.Description,
			CreatedByID:      in.CreatedBy,
		}
		if err := tx.Create(&result.Disbursement).Error; err != nil {
			return err
		}

		result.Allocations = allocate(in.Amount, shares)
		entries, err := s.engine.postDistribution(tx, &result.Disbursement, project.GroupID, result.Allocations)
		if err != nil {
			return err
		}
		result.Entries = entries
		return nil
	})
	if err != nil {
		return nil, asLedgerError("failed to create disbursement", err)
	}

	touched := newTouchSet()
	touched.addEntries(result.Entries...)
	s.engine.refresh(ctx, touched)

	recordActivity(s.db.WithContext(ctx), groupID, in.CreatedBy, models.ActivityDisbursement, result.Disbursement.ID,
		fmt.Sprintf("Disbursed %s to %d investors", in.Amount.StringFixed(2), len(result.Allocations)))
	s.notifyInvestors(groupID, result.Allocations)

	log.Printf("✅ Disbursement %s of %s created for cycle %s", result.Disbursement.ID, in.Amount.StringFixed(2), in.ProjectID)
	return &result, nil
}

func (s *DisbursementService) notifyInvestors(groupID uuid.UUID, allocs []Allocation) {
	if s.notifier == nil {
		return
	}
	go func() {
		var group models.Group
		if err := s.db.First(&group, "id = ?", groupID).Error; err != nil {
			return
		}
		for _, a := range allocs {
			var investor models.User
			if err := s.db.First(&investor, "id = ?", a.InvestorID).Error; err != nil {
				continue
			}
			s.notifier.NotifyDisbursement(investor, group, a.Amount)
		}
	}()
}

// Delete removes the disbursement and every entry tagged with it.
func (s *DisbursementService) Delete(ctx context.Context, actor, disbursementID uuid.UUID) error {
	var (
		removed []models.LedgerEntry
		d       models.Disbursement
		groupID uuid.UUID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&d, "id = ?", disbursementID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("disbursement %s not found", disbursementID)
			}
			return err
		}

		var project models.Project
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Select("id", "group_id").First(&project, "id = ?", d.ProjectID).Error; err != nil {
			return err
		}
		groupID = project.GroupID

		entries, err := s.engine.removeDistribution(tx, d.ID)
		if err != nil {
			return err
		}
		removed = entries
		return tx.Delete(&d).Error
	})
	if err != nil {
		return asLedgerError("failed to delete disbursement", err)
	}

	touched := newTouchSet()
	touched.projects[d.ProjectID] = struct{}{}
	touched.addEntries(removed...)
	s.engine.refresh(ctx, touched)

	recordActivity(s.db.WithContext(ctx), groupID, actor, models.ActivityDisbursementDel, d.ID,
		fmt.Sprintf("Deleted disbursement of %s", d.Amount.StringFixed(2)))
	return nil
}

func (s *DisbursementService) List(ctx context.Context, projectID uuid.UUID) ([]models.Disbursement, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Project{}).Where("id = ?", projectID).Count(&count).Error; err != nil {
		return nil, internalError("failed to load project", err)
	}
	if count == 0 {
		return nil, notFoundError("project %s not found", projectID)
	}

	var list []models.Disbursement
	if err := s.db.WithContext(ctx).Where("project_id = ?", projectID).
		Order("disbursement_date DESC").Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, internalError("failed to load disbursements", err)
	}
	return list, nil
}
