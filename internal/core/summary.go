package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is the transaction list as last fetched from the backend.
// It is replaced wholesale and never mutated in place.
type Snapshot struct {
	Transactions []Transaction
	FetchedAt    time.Time
}

// NewSnapshot copies the list so later changes to the input do not leak in.
func NewSnapshot(items []Transaction, at time.Time) Snapshot {
	cp := make([]Transaction, len(items))
	copy(cp, items)
	return Snapshot{Transactions: cp, FetchedAt: at}
}

// Find returns the transaction with the given id.
func (s Snapshot) Find(id TransactionID) (Transaction, bool) {
	for _, t := range s.Transactions {
		if t.ID == id {
			return t, true
		}
	}
	return Transaction{}, false
}

func (s Snapshot) Len() int {
	return len(s.Transactions)
}

// Summary aggregates the amounts of a snapshot by type.
type Summary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Skipped int
}

// Balance is income minus expense.
func (s Summary) Balance() decimal.Decimal {
	return s.Income.Sub(s.Expense)
}

// Summarize totals the snapshot. Amounts that are not decimal numbers and
// transactions of an unknown type are counted in Skipped.
func Summarize(s Snapshot) Summary {
	sum := Summary{Income: decimal.Zero, Expense: decimal.Zero}
	for _, t := range s.Transactions {
		amt, err := decimal.NewFromString(strings.TrimSpace(t.Amount.String()))
		if err != nil {
			sum.Skipped++
			continue
		}
		switch t.Type {
		case Income:
			sum.Income = sum.Income.Add(amt)
		case Expense:
			sum.Expense = sum.Expense.Add(amt)
		default:
			sum.Skipped++
		}
	}
	return sum
}
