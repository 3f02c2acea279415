package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"
	"vsla-ledger/database"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := database.Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", name), "silent")
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func amt(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...interface{}) {
	t.Helper()
	assert.True(t, amt(want).Equal(got), "want %s, got %s %v", want, got.String(), msgAndArgs)
}

type fixture struct {
	t         *testing.T
	ctx       context.Context
	db        *gorm.DB
	engine    *Engine
	ledger    *LedgerService
	disburse  *DisbursementService
	meetings  *MeetingService
	group     models.Group
	project   models.Project
	treasurer models.User
	alice     models.User
	bob       models.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := newTestDB(t)
	engine := NewEngine(db, NewMemoryBalanceCache(time.Minute))
	ledger := NewLedgerService(db, engine, nil)

	f := &fixture{
		t:        t,
		ctx:      context.Background(),
		db:       db,
		engine:   engine,
		ledger:   ledger,
		disburse: NewDisbursementService(db, engine, nil),
		meetings: NewMeetingService(db, ledger, nil),
	}

	f.treasurer = f.newUser("Treasurer")
	f.alice = f.newUser("Alice")
	f.bob = f.newUser("Bob")

	f.group = models.Group{Name: "Umoja VSLA", Type: models.GroupTypeVSLA, CreatedBy: f.treasurer.ID}
	require.NoError(t, db.Create(&f.group).Error)
	for _, u := range []models.User{f.treasurer, f.alice, f.bob} {
		require.NoError(t, db.Create(&models.GroupMember{GroupID: f.group.ID, UserID: u.ID, Role: "member"}).Error)
	}

	f.project = f.newProject(f.group.ID, true)
	return f
}

func (f *fixture) newUser(name string) models.User {
	u := models.User{Name: name}
	require.NoError(f.t, f.db.Create(&u).Error)
	return u
}

func (f *fixture) newProject(groupID uuid.UUID, vsla bool) models.Project {
	p := models.Project{
		GroupID:         groupID,
		Name:            "Cycle 2026",
		IsVSLACycle:     vsla,
		Status:          models.ProjectStatusActive,
		ShareValue:      amt("1000"),
		InterestRate:    amt("10"),
		MaxLoanMultiple: amt("3"),
		CreatedBy:       f.treasurer.ID,
	}
	require.NoError(f.t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) input(user models.User, amount string) TransactionInput {
	return TransactionInput{
		UserID:    user.ID,
		ProjectID: f.project.ID,
		Amount:    amt(amount),
		CreatedBy: f.treasurer.ID,
	}
}

func (f *fixture) save(user models.User, amount string) {
	f.t.Helper()
	_, err := f.ledger.RecordSaving(f.ctx, f.input(user, amount))
	require.NoError(f.t, err)
}

func (f *fixture) lend(user models.User, amount, rate string) {
	f.t.Helper()
	r := amt(rate)
	_, err := f.ledger.DisburseLoan(f.ctx, LoanInput{TransactionInput: f.input(user, amount), InterestRate: &r})
	require.NoError(f.t, err)
}

func (f *fixture) entryCount() int64 {
	var n int64
	require.NoError(f.t, f.db.Model(&models.LedgerEntry{}).Count(&n).Error)
	return n
}

func (f *fixture) cash() decimal.Decimal {
	v, err := f.engine.balances.CalculateBalance(f.ctx, models.GroupOwner(f.group.ID), models.AccountCash, &f.project.ID)
	require.NoError(f.t, err)
	return v
}

func (f *fixture) memberBalance(user models.User) *models.MemberBalance {
	bal, err := f.ledger.GetMemberBalance(f.ctx, user.ID, &f.project.ID)
	require.NoError(f.t, err)
	return bal
}

func (f *fixture) reloadProject() models.Project {
	var p models.Project
	require.NoError(f.t, f.db.First(&p, "id = ?", f.project.ID).Error)
	return p
}

func requireKind(t *testing.T, err error, kind ErrorKind, errType string) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, KindOf(err), err.Error())
	if errType != "" {
		var le *LedgerError
		require.True(t, errors.As(err, &le))
		assert.Equal(t, errType, le.Type)
	}
}

// failContraInserts makes every contra insert on db fail.
func failContraInserts(t *testing.T, db *gorm.DB) {
	t.Helper()
	const name = "test:fail_contra"
	err := db.Callback().Create().Before("gorm:create").Register(name, func(tx *gorm.DB) {
		if e, ok := tx.Statement.Dest.(*models.LedgerEntry); ok && e.IsContraEntry {
			tx.AddError(errors.New("injected contra failure"))
		}
	})
	require.NoError(t, err)
	t.Cleanup(func() { db.Callback().Create().Remove(name) })
}

// failMeetingOutcomeWrites makes the write of a meeting's processing outcome
// fail on db until the returned func is called.
func failMeetingOutcomeWrites(t *testing.T, db *gorm.DB) func() {
	t.Helper()
	const name = "test:fail_meeting_outcome"
	err := db.Callback().Update().Before("gorm:update").Register(name, func(tx *gorm.DB) {
		if values, ok := tx.Statement.Dest.(map[string]interface{}); ok {
			if _, ok := values["processed_at"]; ok {
				tx.AddError(errors.New("injected outcome failure"))
			}
		}
	})
	require.NoError(t, err)
	var once sync.Once
	restore := func() { once.Do(func() { db.Callback().Update().Remove(name) }) }
	t.Cleanup(restore)
	return restore
}
