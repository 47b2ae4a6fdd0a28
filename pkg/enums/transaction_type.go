package enums

import "fmt"

// TransactionType classifies an immutable ledger record.
type TransactionType string

const (
	TransactionCredit         TransactionType = "credit"
	TransactionDebit          TransactionType = "debit"
	TransactionReserveHold    TransactionType = "reserve_hold"
	TransactionReserveRelease TransactionType = "reserve_release"
)

var validTransactionTypes = []TransactionType{
	TransactionCredit,
	TransactionDebit,
	TransactionReserveHold,
	TransactionReserveRelease,
}

func (t TransactionType) String() string {
	return string(t)
}

func (t TransactionType) IsValid() bool {
	for _, candidate := range validTransactionTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// BalanceSign is the effect of one unit of this type on a wallet balance.
// Holds are escrow audit markers and do not move the wallet.
func (t TransactionType) BalanceSign() int64 {
	switch t {
	case TransactionCredit, TransactionReserveRelease:
		return 1
	case TransactionDebit:
		return -1
	default:
		return 0
	}
}

func ParseTransactionType(value string) (TransactionType, error) {
	for _, candidate := range validTransactionTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction type %q", value)
}
