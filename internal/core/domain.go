package core

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

const (
	Expense TransactionType = "expense"
	Income  TransactionType = "income"
)

const (
	Groceries Category = "groceries"
	Bills     Category = "bills"
	Salary    Category = "salary"
)

type (
	TransactionType string

	Category string

	// TransactionID is the backend-assigned identifier in its textual form.
	// The backend may send it as a JSON string or number.
	TransactionID string

	// Amount is the amount exactly as typed or as returned by the backend.
	// It is never parsed before being sent.
	Amount string

	Transaction struct {
		ID       TransactionID   `json:"id"`
		Date     string          `json:"date"`
		Amount   Amount          `json:"amount"`
		Type     TransactionType `json:"type"`
		Category Category        `json:"category"`
	}

	// TransactionInput is the body of create and update calls.
	TransactionInput struct {
		Date     string          `json:"date"`
		Amount   Amount          `json:"amount"`
		Type     TransactionType `json:"type"`
		Category Category        `json:"category"`
	}

	// Credentials is the body of login and signup calls.
	Credentials struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
)

var ErrNotAuthenticated = errors.New("not authenticated")

// TransactionTypes lists the selectable types in display order.
var TransactionTypes = []TransactionType{Expense, Income}

// Categories lists the selectable categories in display order.
var Categories = []Category{Groceries, Bills, Salary}

func (t TransactionType) Valid() bool {
	return t == Expense || t == Income
}

// Label returns the human readable option text.
func (t TransactionType) Label() string {
	return titleCase(string(t))
}

func (c Category) Valid() bool {
	switch c {
	case Groceries, Bills, Salary:
		return true
	default:
		return false
	}
}

func (c Category) Label() string {
	return titleCase(string(c))
}

func (id TransactionID) String() string {
	return string(id)
}

func (id *TransactionID) UnmarshalJSON(data []byte) error {
	s, err := scalarText(data)
	if err != nil {
		return fmt.Errorf("transaction id: %w", err)
	}
	*id = TransactionID(s)
	return nil
}

func (a Amount) String() string {
	return string(a)
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	s, err := scalarText(data)
	if err != nil {
		return fmt.Errorf("amount: %w", err)
	}
	*a = Amount(s)
	return nil
}

// Input returns the editable fields of the transaction.
func (t Transaction) Input() TransactionInput {
	return TransactionInput{
		Date:     t.Date,
		Amount:   t.Amount,
		Type:     t.Type,
		Category: t.Category,
	}
}

// scalarText accepts a JSON string, number or null and returns its text.
func scalarText(data []byte) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
