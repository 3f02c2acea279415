package services

import (
	"context"
	"errors"
	"log"
	"time"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// EntrySpec is a fully populated description of one ledger entry. The caller
// chooses the sign; the engine only checks that the pair balances.
type EntrySpec struct {
	ProjectID       uuid.UUID
	Owner           models.Owner
	Account         models.AccountType
	AmountSigned    decimal.Decimal
	Type            models.EntryType
	Source          string
	Description     string
	TransactionDate time.Time
	CreatedByID     uuid.UUID
	Reference       *string
}

func (s EntrySpec) entry(contra bool) models.LedgerEntry {
	return models.LedgerEntry{
		ProjectID:       s.ProjectID,
		OwnerType:       s.Owner.Type,
		OwnerID:         s.Owner.ID,
		AccountType:     s.Account,
		Amount:          s.AmountSigned.Abs(),
		AmountSigned:    s.AmountSigned,
		IsContraEntry:   contra,
		Type:            s.Type,
		Source:          s.Source,
		Description:     s.Description,
		Reference:       s.Reference,
		TransactionDate: s.TransactionDate,
		CreatedByID:     s.CreatedByID,
	}
}

// Pair is a primary entry and its contra, linked in both directions.
type Pair struct {
	Primary models.LedgerEntry `json:"primary"`
	Contra  models.LedgerEntry `json:"contra"`
}

type pairSpec struct {
	primary EntrySpec
	contra  EntrySpec
}

// Engine is the only writer of ledger_entries. Every write commits in one
// database transaction and is followed by a refresh of the derived balances
// and cycle totals it touched.
type Engine struct {
	db       *gorm.DB
	balances *BalanceAggregator
	rollup   *CycleRollup
	cache    BalanceCache
}

func NewEngine(db *gorm.DB, cache BalanceCache) *Engine {
	if cache == nil {
		cache = NoopCache{}
	}
	return &Engine{
		db:       db,
		balances: NewBalanceAggregator(db),
		rollup:   NewCycleRollup(db),
		cache:    cache,
	}
}

func (e *Engine) Balances() *BalanceAggregator { return e.balances }
func (e *Engine) Rollup() *CycleRollup         { return e.rollup }
func (e *Engine) Cache() BalanceCache          { return e.cache }

// CreateWithContra writes primary and contra atomically. Either both entries
// exist afterwards or neither does.
func (e *Engine) CreateWithContra(ctx context.Context, primary, contra EntrySpec) (*Pair, error) {
	pairs, err := e.post(ctx, []pairSpec{{primary, contra}}, nil)
	if err != nil {
		return nil, err
	}
	return &pairs[0], nil
}

// post writes all pairs in one transaction. within, when set, runs inside the
// same transaction after the entries are inserted.
func (e *Engine) post(ctx context.Context, specs []pairSpec, within func(tx *gorm.DB) error) ([]Pair, error) {
	for i := range specs {
		if err := validatePair(&specs[i]); err != nil {
			return nil, err
		}
	}

	var pairs []Pair
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ps := range specs {
			if err := checkReferences(tx, ps); err != nil {
				return err
			}
			pair, err := insertPair(tx, ps.primary, ps.contra)
			if err != nil {
				return err
			}
			pairs = append(pairs, *pair)
		}
		if within != nil {
			return within(tx)
		}
		return nil
	})
	if err != nil {
		return nil, asLedgerError("failed to record transaction", err)
	}

	touched := newTouchSet()
	for _, p := range pairs {
		touched.addEntries(p.Primary, p.Contra)
	}
	e.refresh(ctx, touched)
	return pairs, nil
}

func insertPair(tx *gorm.DB, primarySpec, contraSpec EntrySpec) (*Pair, error) {
	primary := primarySpec.entry(false)
	if err := tx.Create(&primary).Error; err != nil {
		return nil, err
	}

	contra := contraSpec.entry(true)
	contra.ContraEntryID = &primary.ID
	if err := tx.Create(&contra).Error; err != nil {
		return nil, err
	}

	if err := tx.Model(&primary).Update("contra_entry_id", contra.ID).Error; err != nil {
		return nil, err
	}
	primary.ContraEntryID = &contra.ID

	return &Pair{Primary: primary, Contra: contra}, nil
}

func validateLeg(s *EntrySpec) error {
	if s.ProjectID == uuid.Nil {
		return validationError("project is required")
	}
	if s.Owner.ID == uuid.Nil || (!s.Owner.IsUser() && !s.Owner.IsGroup()) {
		return validationError("entry owner is required")
	}
	if _, ok := normalSide(s.Owner.Type, s.Account); !ok {
		return validationError("account %q is not valid for a %s owner", s.Account, s.Owner.Type)
	}
	if !s.AmountSigned.IsPositive() && !s.AmountSigned.IsNegative() {
		return validationError("amount must be greater than 0")
	}
	if !s.AmountSigned.Equal(s.AmountSigned.Round(2)) {
		return validationError("amount %s has more than 2 decimal places", s.AmountSigned)
	}
	if s.Type != models.EntryIncome && s.Type != models.EntryExpense {
		return validationError("entry type must be income or expense")
	}
	if s.Source == "" {
		return validationError("entry source is required")
	}
	if s.TransactionDate.IsZero() {
		s.TransactionDate = today()
	}
	return nil
}

func validatePair(ps *pairSpec) error {
	if err := validateLeg(&ps.primary); err != nil {
		return err
	}
	if err := validateLeg(&ps.contra); err != nil {
		return err
	}
	if ps.primary.ProjectID != ps.contra.ProjectID {
		return validationError("primary and contra entries must belong to the same project")
	}
	net := debitValue(ps.primary.Owner.Type, ps.primary.Account, ps.primary.AmountSigned).
		Add(debitValue(ps.contra.Owner.Type, ps.contra.Account, ps.contra.AmountSigned))
	if !net.IsZero() {
		return validationError("entry pair does not balance (%s/%s %s against %s/%s %s)",
			ps.primary.Owner.Type, ps.primary.Account, ps.primary.AmountSigned,
			ps.contra.Owner.Type, ps.contra.Account, ps.contra.AmountSigned)
	}
	return nil
}

// checkReferences makes sure the project and every owner exist and that group
// legs post to the project's own group.
func checkReferences(tx *gorm.DB, ps pairSpec) error {
	var project models.Project
	if err := tx.Select("id", "group_id").First(&project, "id = ?", ps.primary.ProjectID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return validationError("project %s not found", ps.primary.ProjectID)
		}
		return err
	}

	for _, s := range []EntrySpec{ps.primary, ps.contra} {
		switch {
		case s.Owner.IsUser():
			var count int64
			if err := tx.Model(&models.User{}).Where("id = ?", s.Owner.ID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return validationError("user %s not found", s.Owner.ID)
			}
		case s.Owner.IsGroup():
			if s.Owner.ID != project.GroupID {
				return validationError("group %s does not own project %s", s.Owner.ID, project.ID)
			}
		}
	}
	return nil
}

// DeleteTransaction soft-deletes an entry together with its contra.
func (e *Engine) DeleteTransaction(ctx context.Context, entryID uuid.UUID) ([]models.LedgerEntry, error) {
	var removed []models.LedgerEntry
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.LedgerEntry
		if err := tx.First(&entry, "id = ?", entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("entry %s not found", entryID)
			}
			return err
		}
		if entry.DisbursementID != nil {
			return businessError(ErrTypeInvalidStatus, "distribution entries are removed by deleting their disbursement")
		}

		ids := pairIDs(entry)
		if err := tx.Where("id IN ?", ids).Find(&removed).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.LedgerEntry{}).Error
	})
	if err != nil {
		return nil, asLedgerError("failed to delete transaction", err)
	}

	touched := newTouchSet()
	touched.addEntries(removed...)
	e.refresh(ctx, touched)
	return removed, nil
}

// RestoreTransaction undoes DeleteTransaction for the pair containing entryID.
func (e *Engine) RestoreTransaction(ctx context.Context, entryID uuid.UUID) ([]models.LedgerEntry, error) {
	var restored []models.LedgerEntry
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entry models.LedgerEntry
		if err := tx.Unscoped().First(&entry, "id = ?", entryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return notFoundError("entry %s not found", entryID)
			}
			return err
		}
		if !entry.DeletedAt.Valid {
			return businessError(ErrTypeInvalidStatus, "entry %s is not deleted", entryID)
		}
		if entry.DisbursementID != nil {
			return businessError(ErrTypeInvalidStatus, "distribution entries cannot be restored individually")
		}

		ids := pairIDs(entry)
		if err := tx.Unscoped().Model(&models.LedgerEntry{}).Where("id IN ?", ids).Update("deleted_at", nil).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Find(&restored).Error
	})
	if err != nil {
		return nil, asLedgerError("failed to restore transaction", err)
	}

	touched := newTouchSet()
	touched.addEntries(restored...)
	e.refresh(ctx, touched)
	return restored, nil
}

func pairIDs(entry models.LedgerEntry) []uuid.UUID {
	ids := []uuid.UUID{entry.ID}
	if entry.ContraEntryID != nil {
		ids = append(ids, *entry.ContraEntryID)
	}
	return ids
}

// Allocation is one investor's portion of a disbursement.
type Allocation struct {
	InvestorID uuid.UUID       `json:"investor_id"`
	Shares     decimal.Decimal `json:"shares"`
	Amount     decimal.Decimal `json:"amount"`
}

// postDistribution writes the cash expense of a disbursement and one unpaired
// share credit per investor. It runs inside the caller's transaction.
func (e *Engine) postDistribution(tx *gorm.DB, d *models.Disbursement, groupID uuid.UUID, allocs []Allocation) ([]models.LedgerEntry, error) {
	total := decimal.Zero
	for _, a := range allocs {
		total = total.Add(a.Amount)
	}
	if !total.Equal(d.Amount) {
		return nil, internalError("distribution does not add up", errors.New(total.String()+" != "+d.Amount.String()))
	}

	entries := make([]models.LedgerEntry, 0, len(allocs)+1)
	expense := models.LedgerEntry{
		ProjectID:       d.ProjectID,
		OwnerType:       models.OwnerGroup,
		OwnerID:         groupID,
		AccountType:     models.AccountCash,
		Amount:          d.Amount,
		AmountSigned:    d.Amount.Neg(),
		Type:            models.EntryExpense,
		Source:          models.SourceDisbursement,
		Description:     d.Description,
		DisbursementID:  &d.ID,
		TransactionDate: d.DisbursementDate,
		CreatedByID:     d.CreatedByID,
	}
	entries = append(entries, expense)

	for _, a := range allocs {
		if a.Amount.IsZero() {
			continue
		}
		entries = append(entries, models.LedgerEntry{
			ProjectID:       d.ProjectID,
			OwnerType:       models.OwnerUser,
			OwnerID:         a.InvestorID,
			AccountType:     models.AccountShare,
			Amount:          a.Amount,
			AmountSigned:    a.Amount,
			Type:            models.EntryIncome,
			Source:          models.SourceDisbursement,
			Description:     d.Description,
			DisbursementID:  &d.ID,
			TransactionDate: d.DisbursementDate,
			CreatedByID:     d.CreatedByID,
		})
	}

	if err := tx.Create(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// removeDistribution soft-deletes every entry tagged with the disbursement.
func (e *Engine) removeDistribution(tx *gorm.DB, disbursementID uuid.UUID) ([]models.LedgerEntry, error) {
	var entries []models.LedgerEntry
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("disbursement_id = ?", disbursementID).Find(&entries).Error; err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	if err := tx.Where("disbursement_id = ?", disbursementID).Delete(&models.LedgerEntry{}).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// referencePosted reports whether an entry carrying ref was ever written,
// including entries that were later soft-deleted.
func (e *Engine) referencePosted(ctx context.Context, ref string) (bool, error) {
	var count int64
	err := e.db.WithContext(ctx).Unscoped().Model(&models.LedgerEntry{}).
		Where("reference = ?", ref).Count(&count).Error
	return count > 0, err
}

type touchSet struct {
	users    map[uuid.UUID]struct{}
	groups   map[uuid.UUID]struct{}
	projects map[uuid.UUID]struct{}
}

func newTouchSet() *touchSet {
	return &touchSet{
		users:    map[uuid.UUID]struct{}{},
		groups:   map[uuid.UUID]struct{}{},
		projects: map[uuid.UUID]struct{}{},
	}
}

func (t *touchSet) addEntries(entries ...models.LedgerEntry) {
	for _, en := range entries {
		t.projects[en.ProjectID] = struct{}{}
		switch en.OwnerType {
		case models.OwnerUser:
			t.users[en.OwnerID] = struct{}{}
		case models.OwnerGroup:
			t.groups[en.OwnerID] = struct{}{}
		}
	}
}

// refresh re-derives every cached figure the committed write touched. It runs
// after commit so each recomputation reads committed data; a failure here
// leaves the write in place and is only logged.
func (e *Engine) refresh(ctx context.Context, t *touchSet) {
	for userID := range t.users {
		if err := e.balances.RefreshUserBalance(ctx, userID); err != nil {
			log.Printf("⚠️  Failed to refresh balance for user %s: %v", userID, err)
		}
	}
	for projectID := range t.projects {
		groupID, err := e.rollup.RecalculateFromTransactions(ctx, projectID)
		if err != nil {
			log.Printf("⚠️  Failed to recalculate cycle %s: %v", projectID, err)
			continue
		}
		t.groups[groupID] = struct{}{}
	}
	for groupID := range t.groups {
		if err := e.balances.RefreshGroupBalance(ctx, groupID); err != nil {
			log.Printf("⚠️  Failed to refresh balance for group %s: %v", groupID, err)
		}
		if err := e.cache.Invalidate(ctx, groupID); err != nil {
			log.Printf("⚠️  Failed to invalidate balance cache for group %s: %v", groupID, err)
		}
	}
}

func today() time.Time {
	now := time.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
