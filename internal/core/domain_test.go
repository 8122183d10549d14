package core

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTransactionUnmarshalScalarForms(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		id     TransactionID
		amount Amount
	}{
		{"string id and amount", `{"id":"a1","amount":"42.50"}`, "a1", "42.50"},
		{"numeric id and amount", `{"id":17,"amount":42.5}`, "17", "42.5"},
		{"null amount", `{"id":3,"amount":null}`, "3", ""},
		{"free text amount", `{"id":"x","amount":"about ten"}`, "x", "about ten"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var tx Transaction
			if err := json.Unmarshal([]byte(tc.body), &tx); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if tx.ID != tc.id {
				t.Errorf("id = %q, want %q", tx.ID, tc.id)
			}
			if tx.Amount != tc.amount {
				t.Errorf("amount = %q, want %q", tx.Amount, tc.amount)
			}
		})
	}
}

func TestTransactionUnmarshalRejectsObjects(t *testing.T) {
	var tx Transaction
	if err := json.Unmarshal([]byte(`{"id":{"nested":1}}`), &tx); err == nil {
		t.Fatalf("expected error for object id")
	}
}

func TestTransactionInputMarshalsAmountAsString(t *testing.T) {
	in := TransactionInput{Date: "2024-01-05", Amount: "42.50", Type: Expense, Category: Groceries}
	b, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"date":"2024-01-05","amount":"42.50","type":"expense","category":"groceries"}`
	if string(b) != want {
		t.Fatalf("body = %s, want %s", b, want)
	}
}

func TestEnumsValidAndLabels(t *testing.T) {
	for _, tt := range TransactionTypes {
		if !tt.Valid() {
			t.Errorf("%q should be valid", tt)
		}
	}
	for _, c := range Categories {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if TransactionType("transfer").Valid() {
		t.Errorf("transfer should not be valid")
	}
	if Category("rent").Valid() {
		t.Errorf("rent should not be valid")
	}
	if got := Groceries.Label(); got != "Groceries" {
		t.Errorf("label = %q", got)
	}
	if got := Income.Label(); got != "Income" {
		t.Errorf("label = %q", got)
	}
}

func TestFormResetAndOpenEdit(t *testing.T) {
	f := NewForm()
	if f.Date != "" || f.Amount != "" || f.Type != Expense || f.Category != Groceries || f.IsEditing() {
		t.Fatalf("unexpected defaults: %+v", f)
	}

	tx := Transaction{ID: "7", Date: "2024-02-01", Amount: "1200", Type: Income, Category: Salary}
	f.OpenEdit(tx)
	if !f.IsEditing() || f.Editing.ID != "7" {
		t.Fatalf("expected editing 7, got %+v", f.Editing)
	}
	if f.Input() != tx.Input() {
		t.Fatalf("form input = %+v, want %+v", f.Input(), tx.Input())
	}

	f.Set(TransactionInput{Date: "2024-02-02", Amount: "1300", Type: Income, Category: Salary})
	if f.Editing.ID != "7" || f.Amount != "1300" {
		t.Fatalf("Set must keep the edited transaction: %+v", f)
	}
	if f.Editing.Amount != "1200" {
		t.Fatalf("edited copy must not change: %+v", f.Editing)
	}

	f.Reset()
	if f != NewForm() {
		t.Fatalf("reset form = %+v", f)
	}
}

func TestNotificationTitles(t *testing.T) {
	d := DefaultNotificationDuration
	cases := []struct {
		n     Notification
		level Level
		title string
	}{
		{Succeeded(ActionCreate, d), LevelSuccess, "Transaction added"},
		{Failed(ActionCreate, d), LevelError, "Error adding transaction"},
		{Succeeded(ActionUpdate, d), LevelSuccess, "Transaction updated"},
		{Failed(ActionUpdate, d), LevelError, "Error updating transaction"},
		{Succeeded(ActionDelete, d), LevelSuccess, "Transaction deleted"},
		{Failed(ActionDelete, d), LevelError, "Error deleting transaction"},
		{Succeeded(ActionLogin, d), LevelSuccess, "Logged in successfully"},
		{Failed(ActionLogin, d), LevelError, "Invalid email or password"},
		{Succeeded(ActionSignup, d), LevelSuccess, "Signed up successfully"},
		{Failed(ActionSignup, d), LevelError, "Error signing up"},
	}
	for _, tc := range cases {
		if tc.n.Level != tc.level || tc.n.Title != tc.title {
			t.Errorf("got %+v, want %s %q", tc.n, tc.level, tc.title)
		}
	}
	if got := Succeeded(ActionCreate, d).DurationMs(); got != 3000 {
		t.Errorf("duration ms = %d", got)
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	items := []Transaction{{ID: "1"}, {ID: "2"}}
	s := NewSnapshot(items, time.Now())
	items[0].ID = "changed"
	if _, ok := s.Find("1"); !ok {
		t.Fatalf("snapshot must not see later changes")
	}
	if _, ok := s.Find("changed"); ok {
		t.Fatalf("snapshot leaked mutation")
	}
	if s.Len() != 2 {
		t.Fatalf("len = %d", s.Len())
	}
}

func TestSummarize(t *testing.T) {
	s := NewSnapshot([]Transaction{
		{ID: "1", Amount: "1200", Type: Income},
		{ID: "2", Amount: "42.50", Type: Expense},
		{ID: "3", Amount: " 7.5 ", Type: Expense},
		{ID: "4", Amount: "n/a", Type: Expense},
		{ID: "5", Amount: "3", Type: "transfer"},
	}, time.Now())

	sum := Summarize(s)
	if got := sum.Income.String(); got != "1200" {
		t.Errorf("income = %s", got)
	}
	if got := sum.Expense.String(); got != "50" {
		t.Errorf("expense = %s", got)
	}
	if got := sum.Balance().StringFixed(2); got != "1150.00" {
		t.Errorf("balance = %s", got)
	}
	if sum.Skipped != 2 {
		t.Errorf("skipped = %d", sum.Skipped)
	}
}
