package core

// Form holds the fields shared by the add form and the edit modal.
// Editing is nil unless a transaction was opened for editing.
type Form struct {
	Date     string
	Amount   Amount
	Type     TransactionType
	Category Category
	Editing  *Transaction
}

// NewForm returns a form with default values.
func NewForm() Form {
	var f Form
	f.Reset()
	return f
}

// Reset clears every field back to its default.
func (f *Form) Reset() {
	f.Date = ""
	f.Amount = ""
	f.Type = Expense
	f.Category = Groceries
	f.Editing = nil
}

// OpenEdit copies the transaction into the form and marks it as edited.
func (f *Form) OpenEdit(t Transaction) {
	edited := t
	f.Editing = &edited
	f.Date = t.Date
	f.Amount = t.Amount
	f.Type = t.Type
	f.Category = t.Category
}

// Set replaces the editable fields, keeping the edited transaction.
func (f *Form) Set(in TransactionInput) {
	f.Date = in.Date
	f.Amount = in.Amount
	f.Type = in.Type
	f.Category = in.Category
}

// Input returns the current field values as a request body.
func (f Form) Input() TransactionInput {
	return TransactionInput{
		Date:     f.Date,
		Amount:   f.Amount,
		Type:     f.Type,
		Category: f.Category,
	}
}

// IsEditing reports whether a transaction is opened in the edit modal.
func (f Form) IsEditing() bool {
	return f.Editing != nil
}
