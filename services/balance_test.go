package services

import (
	"fmt"
	"math/rand"
	"testing"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runRandomOperations applies a deterministic mix of every ledger operation.
// Rejected operations (overpayments, missing loans) are part of the mix.
func runRandomOperations(t *testing.T, f *fixture, seed int64, n int) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	members := []models.User{f.alice, f.bob, f.treasurer}
	var posted []uuid.UUID

	for i := 0; i < n; i++ {
		m := members[rng.Intn(len(members))]
		amount := fmt.Sprintf("%d.%02d", 1+rng.Intn(500), rng.Intn(100))
		in := f.input(m, amount)

		var (
			res *TransactionResult
			err error
		)
		switch rng.Intn(7) {
		case 0, 1:
			res, err = f.ledger.RecordSaving(f.ctx, in)
		case 2:
			rate := decimal.NewFromInt(int64(rng.Intn(15)))
			res, err = f.ledger.DisburseLoan(f.ctx, LoanInput{TransactionInput: in, InterestRate: &rate})
		case 3:
			res, err = f.ledger.RecordLoanRepayment(f.ctx, in)
		case 4:
			in.Description = "Fine"
			res, err = f.ledger.RecordFine(f.ctx, in)
		case 5:
			res, err = f.ledger.RecordSharePurchase(f.ctx, SharePurchaseInput{TransactionInput: in, Shares: decimal.NewFromInt(1)})
		case 6:
			if len(posted) > 0 {
				id := posted[rng.Intn(len(posted))]
				_, err = f.ledger.DeleteTransaction(f.ctx, f.treasurer.ID, id)
				if err == nil {
					_, err = f.ledger.RestoreTransaction(f.ctx, f.treasurer.ID, id)
				}
			}
		}
		if err != nil {
			kind := KindOf(err)
			require.True(t, kind == KindBusiness || kind == KindNotFound, "op %d: %v", i, err)
			continue
		}
		if res != nil {
			posted = append(posted, res.Entries[0].ID)
		}
	}
}

func TestCachedBalancesMatchRecomputation(t *testing.T) {
	for _, seed := range []int64{1, 7, 42} {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			f := newFixture(t)
			runRandomOperations(t, f, seed, 60)

			for _, m := range []models.User{f.alice, f.bob, f.treasurer} {
				var cached models.User
				require.NoError(t, f.db.First(&cached, "id = ?", m.ID).Error)

				fresh, err := f.engine.balances.CalculateUserBalances(f.ctx, m.ID, nil)
				require.NoError(t, err)

				assert.True(t, cached.Balance.Equal(fresh.Savings.Sub(fresh.Fines.Abs())), "%s balance drifted", m.Name)
				assert.True(t, cached.LoanBalance.Equal(fresh.Loans.Abs()), "%s loan_balance drifted", m.Name)

				served, err := f.ledger.GetMemberBalance(f.ctx, m.ID, nil)
				require.NoError(t, err)
				assert.True(t, served.NetPosition.Equal(fresh.NetPosition))
			}

			var group models.Group
			require.NoError(t, f.db.First(&group, "id = ?", f.group.ID).Error)
			fresh, err := f.engine.balances.CalculateGroupBalances(f.ctx, f.group.ID, nil)
			require.NoError(t, err)
			assert.True(t, group.Balance.Equal(fresh.Cash))
			assert.True(t, group.LoanBalance.Equal(fresh.LoansOutstanding.Abs()))

			totals, err := f.engine.rollup.Totals(f.ctx, f.project.ID)
			require.NoError(t, err)
			p := f.reloadProject()
			assert.True(t, p.TotalIncome.Equal(totals.Income))
			assert.True(t, p.TotalExpenses.Equal(totals.Expenses))
			assert.True(t, p.NetSurplus.Equal(totals.Surplus))
		})
	}
}

func TestAccountingBalancedAfterAnySequence(t *testing.T) {
	for _, seed := range []int64{3, 11, 99} {
		t.Run(fmt.Sprintf("seed_%d", seed), func(t *testing.T) {
			f := newFixture(t)
			runRandomOperations(t, f, seed, 50)

			require.NoError(t, addShares(f.db, f.bob.ID, f.project.ID, amt("2")))
			p := f.reloadProject()
			if p.NetSurplus.GreaterThan(amt("10")) && f.cash().GreaterThan(amt("10")) {
				_, err := f.disburse.Create(f.ctx, DisbursementInput{ProjectID: f.project.ID, Amount: amt("10"), CreatedBy: f.treasurer.ID})
				require.NoError(t, err)
			}

			res, err := f.engine.balances.VerifyAccountingBalance(f.ctx, f.project.ID)
			require.NoError(t, err)
			assert.True(t, res.IsBalanced, "debits %s credits %s", res.TotalDebits, res.TotalCredits)
			assertAmount(t, "0", res.Difference)
		})
	}
}

func TestVerifyAccountingBalanceTotals(t *testing.T) {
	f := newFixture(t)
	f.save(f.alice, "1000")
	f.lend(f.alice, "400", "10")

	res, err := f.engine.balances.VerifyAccountingBalance(f.ctx, f.project.ID)
	require.NoError(t, err)
	// debits: cash 1000, loan 400, user interest 40
	// credits: savings 1000, cash 400, group interest 40
	assertAmount(t, "1440", res.TotalDebits)
	assertAmount(t, "1440", res.TotalCredits)
	assert.True(t, res.IsBalanced)

	_, err = f.engine.balances.VerifyAccountingBalance(f.ctx, uuid.New())
	requireKind(t, err, KindNotFound, "")
}

func TestGroupBalancesSpanProjects(t *testing.T) {
	f := newFixture(t)
	f.save(f.alice, "100")

	second := f.newProject(f.group.ID, true)
	in := f.input(f.bob, "40")
	in.ProjectID = second.ID
	_, err := f.ledger.RecordSaving(f.ctx, in)
	require.NoError(t, err)

	all, err := f.engine.balances.CalculateGroupBalances(f.ctx, f.group.ID, nil)
	require.NoError(t, err)
	assertAmount(t, "140", all.Cash)
	assertAmount(t, "140", all.TotalSavings)

	one, err := f.engine.balances.CalculateGroupBalances(f.ctx, f.group.ID, &second.ID)
	require.NoError(t, err)
	assertAmount(t, "40", one.Cash)
	assertAmount(t, "40", one.TotalSavings)
}
