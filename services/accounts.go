package services

import (
	"time"
	"vsla-ledger/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type side int

const (
	debitNormal side = iota + 1
	creditNormal
)

type accountKey struct {
	owner   models.OwnerType
	account models.AccountType
}

// normalSides fixes which side a positive amount_signed lands on for every
// owner/account combination the ledger accepts.
var normalSides = map[accountKey]side{
	{models.OwnerUser, models.AccountSavings}:   creditNormal,
	{models.OwnerUser, models.AccountLoan}:      debitNormal,
	{models.OwnerUser, models.AccountFine}:      debitNormal,
	{models.OwnerUser, models.AccountInterest}:  debitNormal,
	{models.OwnerUser, models.AccountShare}:     debitNormal,
	{models.OwnerGroup, models.AccountCash}:     debitNormal,
	{models.OwnerGroup, models.AccountFine}:     creditNormal,
	{models.OwnerGroup, models.AccountInterest}: creditNormal,
}

func normalSide(owner models.OwnerType, account models.AccountType) (side, bool) {
	s, ok := normalSides[accountKey{owner, account}]
	return s, ok
}

// debitValue is the entry's contribution to total debits minus total credits.
func debitValue(owner models.OwnerType, account models.AccountType, signed decimal.Decimal) decimal.Decimal {
	if s, _ := normalSide(owner, account); s == creditNormal {
		return signed.Neg()
	}
	return signed
}

// leg is one half of a fixed posting template.
type leg struct {
	owner   models.OwnerType
	account models.AccountType
	sign    int64
}

type pairTemplate struct {
	source    string
	entryType models.EntryType
	primary   leg
	contra    leg
}

var (
	savingTemplate = pairTemplate{
		source:    models.SourceSaving,
		entryType: models.EntryIncome,
		primary:   leg{models.OwnerUser, models.AccountSavings, 1},
		contra:    leg{models.OwnerGroup, models.AccountCash, 1},
	}
	sharePurchaseTemplate = pairTemplate{
		source:    models.SourceSharePurchase,
		entryType: models.EntryIncome,
		primary:   leg{models.OwnerUser, models.AccountSavings, 1},
		contra:    leg{models.OwnerGroup, models.AccountCash, 1},
	}
	loanTemplate = pairTemplate{
		source:    models.SourceLoanDisbursement,
		entryType: models.EntryExpense,
		primary:   leg{models.OwnerUser, models.AccountLoan, 1},
		contra:    leg{models.OwnerGroup, models.AccountCash, -1},
	}
	interestTemplate = pairTemplate{
		source:    models.SourceLoanInterest,
		entryType: models.EntryIncome,
		primary:   leg{models.OwnerUser, models.AccountInterest, 1},
		contra:    leg{models.OwnerGroup, models.AccountInterest, 1},
	}
	repaymentTemplate = pairTemplate{
		source:    models.SourceLoanRepayment,
		entryType: models.EntryIncome,
		primary:   leg{models.OwnerUser, models.AccountLoan, -1},
		contra:    leg{models.OwnerGroup, models.AccountCash, 1},
	}
	interestPaymentTemplate = pairTemplate{
		source:    models.SourceInterestPayment,
		entryType: models.EntryIncome,
		primary:   leg{models.OwnerUser, models.AccountInterest, -1},
		contra:    leg{models.OwnerGroup, models.AccountCash, 1},
	}
	fineTemplate = pairTemplate{
		source:    models.SourceFine,
		entryType: models.EntryIncome,
		primary:   leg{models.OwnerUser, models.AccountFine, 1},
		contra:    leg{models.OwnerGroup, models.AccountFine, 1},
	}
)

// posting carries what varies between two uses of the same template.
type posting struct {
	projectID   uuid.UUID
	userID      uuid.UUID
	groupID     uuid.UUID
	amount      decimal.Decimal
	description string
	date        time.Time
	createdBy   uuid.UUID
	reference   *string
}

// build expands the template into the two entry specs of the pair.
func (t pairTemplate) build(p posting) (EntrySpec, EntrySpec) {
	ownerFor := func(o models.OwnerType) models.Owner {
		if o == models.OwnerUser {
			return models.UserOwner(p.userID)
		}
		return models.GroupOwner(p.groupID)
	}
	spec := func(l leg) EntrySpec {
		return EntrySpec{
			ProjectID:       p.projectID,
			Owner:           ownerFor(l.owner),
			Account:         l.account,
			AmountSigned:    p.amount.Mul(decimal.NewFromInt(l.sign)),
			Type:            t.entryType,
			Source:          t.source,
			Description:     p.description,
			TransactionDate: p.date,
			CreatedByID:     p.createdBy,
		}
	}
	primary, contra := spec(t.primary), spec(t.contra)
	primary.Reference = p.reference
	return primary, contra
}
