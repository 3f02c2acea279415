package services

import (
	"testing"
	"time"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarioSavingsDeposit(t *testing.T) {
	f := newFixture(t)
	cashBefore := f.cash()

	res, err := f.ledger.RecordSaving(f.ctx, f.input(f.alice, "10000"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, res.Entries, 2)

	bal := f.memberBalance(f.alice)
	assertAmount(t, "10000", bal.Savings)
	assertAmount(t, "0", bal.Loans)
	assertAmount(t, "0", bal.Fines)
	assertAmount(t, "10000", bal.NetPosition)
	assertAmount(t, "10000", f.cash().Sub(cashBefore))
}

func TestScenarioLoanAndRepayment(t *testing.T) {
	f := newFixture(t)
	f.save(f.alice, "20000")
	cashBefore := f.cash()

	rate := amt("10")
	res, err := f.ledger.DisburseLoan(f.ctx, LoanInput{TransactionInput: f.input(f.alice, "50000"), InterestRate: &rate})
	require.NoError(t, err)
	require.Len(t, res.Entries, 4, "principal and interest pairs")

	bal := f.memberBalance(f.alice)
	assertAmount(t, "50000", bal.Loans)
	assertAmount(t, "5000", bal.Interest)
	assertAmount(t, "-50000", f.cash().Sub(cashBefore))

	cashBefore = f.cash()
	_, err = f.ledger.RecordLoanRepayment(f.ctx, f.input(f.alice, "20000"))
	require.NoError(t, err)

	assertAmount(t, "30000", f.memberBalance(f.alice).Loans)
	assertAmount(t, "20000", f.cash().Sub(cashBefore))

	var user models.User
	require.NoError(t, f.db.First(&user, "id = ?", f.alice.ID).Error)
	assertAmount(t, "30000", user.LoanBalance)
	assertAmount(t, "20000", user.Balance)

	var group models.Group
	require.NoError(t, f.db.First(&group, "id = ?", f.group.ID).Error)
	assertAmount(t, "-10000", group.Balance)
	assertAmount(t, "30000", group.LoanBalance)
}

func TestLoanUsesCycleRateAndWarnsAboveMultiple(t *testing.T) {
	f := newFixture(t)
	f.save(f.alice, "1000")

	res, err := f.ledger.DisburseLoan(f.ctx, LoanInput{TransactionInput: f.input(f.alice, "4000")})
	require.NoError(t, err)
	require.Len(t, res.Entries, 4)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "exceeds")

	assertAmount(t, "400", f.memberBalance(f.alice).Interest)
}

func TestRepaymentRules(t *testing.T) {
	f := newFixture(t)
	f.save(f.bob, "5000")

	_, err := f.ledger.RecordLoanRepayment(f.ctx, f.input(f.bob, "100"))
	requireKind(t, err, KindBusiness, ErrTypeNoOutstandingLoan)

	f.lend(f.bob, "1000", "0")
	before := f.entryCount()

	_, err = f.ledger.RecordLoanRepayment(f.ctx, f.input(f.bob, "1000.01"))
	requireKind(t, err, KindBusiness, ErrTypeLoanOverpayment)
	assert.Equal(t, before, f.entryCount())

	_, err = f.ledger.RecordLoanRepayment(f.ctx, f.input(f.bob, "1000"))
	require.NoError(t, err)
	assertAmount(t, "0", f.memberBalance(f.bob).Loans)
}

func TestRepaymentCoversPrincipalThenInterest(t *testing.T) {
	f := newFixture(t)
	f.save(f.bob, "1000")
	f.lend(f.bob, "1000", "10")
	assertAmount(t, "1000", f.reloadProject().TotalIncome, "accrued interest is not income")

	_, err := f.ledger.RecordLoanRepayment(f.ctx, f.input(f.bob, "600"))
	require.NoError(t, err)
	bal := f.memberBalance(f.bob)
	assertAmount(t, "400", bal.Loans)
	assertAmount(t, "100", bal.Interest)

	before := f.entryCount()
	_, err = f.ledger.RecordLoanRepayment(f.ctx, f.input(f.bob, "500.01"))
	requireKind(t, err, KindBusiness, ErrTypeLoanOverpayment)
	assert.Equal(t, before, f.entryCount())

	res, err := f.ledger.RecordLoanRepayment(f.ctx, f.input(f.bob, "500"))
	require.NoError(t, err)
	require.Len(t, res.Entries, 4, "principal and interest pairs")
	assert.Equal(t, models.SourceLoanRepayment, res.Entries[0].Source)
	assertAmount(t, "400", res.Entries[0].Amount)
	assert.Equal(t, models.SourceInterestPayment, res.Entries[2].Source)
	assertAmount(t, "100", res.Entries[2].Amount)

	bal = f.memberBalance(f.bob)
	assertAmount(t, "0", bal.Loans)
	assertAmount(t, "0", bal.Interest)
	assertAmount(t, "1100", f.cash())

	p := f.reloadProject()
	assertAmount(t, "2100", p.TotalIncome)
	assertAmount(t, "1000", p.TotalExpenses)
	assertAmount(t, "1100", p.NetSurplus)

	_, err = f.ledger.RecordLoanRepayment(f.ctx, f.input(f.bob, "0.01"))
	requireKind(t, err, KindBusiness, ErrTypeNoOutstandingLoan)

	verify, err := f.engine.balances.VerifyAccountingBalance(f.ctx, f.project.ID)
	require.NoError(t, err)
	assert.True(t, verify.IsBalanced)
}

func TestRecordFine(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.RecordFine(f.ctx, f.input(f.bob, "50"))
	requireKind(t, err, KindValidation, "")

	in := f.input(f.bob, "50")
	in.Description = "Late to meeting"
	_, err = f.ledger.RecordFine(f.ctx, in)
	require.NoError(t, err)

	bal := f.memberBalance(f.bob)
	assertAmount(t, "50", bal.Fines)
	assertAmount(t, "-50", bal.NetPosition)

	gb, err := f.ledger.GetGroupBalance(f.ctx, f.group.ID, &f.project.ID)
	require.NoError(t, err)
	assertAmount(t, "50", gb.FinesCollected)
	assertAmount(t, "0", gb.Cash)
}

func TestValidationBeforeAnyWrite(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.RecordSaving(f.ctx, f.input(f.alice, "0"))
	requireKind(t, err, KindValidation, "")

	_, err = f.ledger.RecordSaving(f.ctx, f.input(f.alice, "-5"))
	requireKind(t, err, KindValidation, "")

	in := f.input(f.alice, "10")
	in.UserID = uuid.New()
	_, err = f.ledger.RecordSaving(f.ctx, in)
	requireKind(t, err, KindValidation, "")

	in = f.input(f.alice, "10")
	in.ProjectID = uuid.New()
	_, err = f.ledger.RecordSaving(f.ctx, in)
	requireKind(t, err, KindValidation, "")

	require.NoError(t, f.db.Model(&models.Project{}).Where("id = ?", f.project.ID).Update("status", models.ProjectStatusClosed).Error)
	_, err = f.ledger.RecordSaving(f.ctx, f.input(f.alice, "10"))
	requireKind(t, err, KindBusiness, ErrTypeInactiveCycle)

	assert.Zero(t, f.entryCount())
}

func TestSharePurchaseAccumulatesShares(t *testing.T) {
	f := newFixture(t)

	_, err := f.ledger.RecordSharePurchase(f.ctx, SharePurchaseInput{TransactionInput: f.input(f.alice, "0"), Shares: amt("2")})
	require.NoError(t, err)
	_, err = f.ledger.RecordSharePurchase(f.ctx, SharePurchaseInput{TransactionInput: f.input(f.alice, "1500"), Shares: amt("1")})
	require.NoError(t, err)

	var share models.Share
	require.NoError(t, f.db.First(&share, "investor_id = ? AND project_id = ?", f.alice.ID, f.project.ID).Error)
	assertAmount(t, "3", share.NumberOfShares)

	assertAmount(t, "3500", f.memberBalance(f.alice).Savings)
	assertAmount(t, "3500", f.reloadProject().TotalIncome)

	_, err = f.ledger.RecordSharePurchase(f.ctx, SharePurchaseInput{TransactionInput: f.input(f.alice, "100"), Shares: amt("0")})
	requireKind(t, err, KindValidation, "")
}

func TestMemberStatement(t *testing.T) {
	f := newFixture(t)
	for i, day := range []int{3, 1, 2} {
		in := f.input(f.alice, "100")
		in.Date = time.Date(2026, 2, day, 0, 0, 0, 0, time.UTC)
		in.Description = []string{"third", "first", "second"}[i]
		_, err := f.ledger.RecordSaving(f.ctx, in)
		require.NoError(t, err)
	}
	f.lend(f.alice, "100", "0")

	entries, err := f.ledger.GetMemberStatement(f.ctx, f.alice.ID, StatementFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, models.OwnerUser, e.OwnerType)
		assert.Equal(t, f.alice.ID, e.OwnerID)
	}

	savings := models.AccountSavings
	entries, err = f.ledger.GetMemberStatement(f.ctx, f.alice.ID, StatementFilter{AccountType: &savings, Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "third", entries[0].Description)
	assert.Equal(t, "second", entries[1].Description)

	bogus := models.AccountType("bogus")
	_, err = f.ledger.GetMemberStatement(f.ctx, f.alice.ID, StatementFilter{AccountType: &bogus})
	requireKind(t, err, KindValidation, "")

	_, err = f.ledger.GetMemberStatement(f.ctx, uuid.New(), StatementFilter{})
	requireKind(t, err, KindNotFound, "")
}

func TestGroupBalanceCacheIsInvalidatedOnWrite(t *testing.T) {
	f := newFixture(t)
	f.save(f.alice, "100")

	first, err := f.ledger.GetGroupBalance(f.ctx, f.group.ID, nil)
	require.NoError(t, err)
	assertAmount(t, "100", first.Cash)

	_, hit := f.engine.cache.Get(f.ctx, f.group.ID, balanceKey(nil))
	assert.True(t, hit)

	f.save(f.bob, "50")
	_, hit = f.engine.cache.Get(f.ctx, f.group.ID, balanceKey(nil))
	assert.False(t, hit)

	second, err := f.ledger.GetGroupBalance(f.ctx, f.group.ID, nil)
	require.NoError(t, err)
	assertAmount(t, "150", second.Cash)
	assertAmount(t, "150", second.TotalSavings)
	assert.Nil(t, second.AccountingVerification)

	scoped, err := f.ledger.GetGroupBalance(f.ctx, f.group.ID, &f.project.ID)
	require.NoError(t, err)
	require.NotNil(t, scoped.AccountingVerification)
	assert.True(t, scoped.AccountingVerification.IsBalanced)

	_, err = f.ledger.GetGroupBalance(f.ctx, uuid.New(), nil)
	requireKind(t, err, KindNotFound, "")
}

func TestActivityFeedRecordsPostings(t *testing.T) {
	f := newFixture(t)
	f.save(f.alice, "100")
	f.lend(f.alice, "50", "0")

	feed, err := f.ledger.ListActivity(f.ctx, f.group.ID, 10, 0)
	require.NoError(t, err)
	require.Len(t, feed, 2)

	types := []string{feed[0].Type, feed[1].Type}
	assert.ElementsMatch(t, []string{models.ActivitySaving, models.ActivityLoanDisbursed}, types)
}
