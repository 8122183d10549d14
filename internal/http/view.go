package http

import (
	"bytes"
	"fmt"
	"html/template"

	"tally/internal/core"
	"tally/internal/session"
	"tally/internal/storage"
	appweb "tally/web"
)

// Template names.
const (
	tmplIndex    = "index.html"
	tmplApp      = "app"
	tmplModal    = "modal"
	tmplTable    = "table"
	tmplActivity = "activity"
)

type toastView struct {
	Level    string
	Message  string
	Duration int
}

type summaryView struct {
	Income  string
	Expense string
	Balance string
	Skipped int
}

// pageView is what every template renders from.
type pageView struct {
	Authenticated bool
	Email         string
	Form          core.Form
	Types         []core.TransactionType
	Categories    []core.Category
	Transactions  []core.Transaction
	Summary       summaryView
	FetchedAt     string
	Flash         []toastView
	HasActivity   bool
}

type activityRow struct {
	At            string
	Action        string
	Outcome       string
	TransactionID string
	StatusCode    int
}

type activityView struct {
	Recent []activityRow
	Counts []storage.OutcomeCount
}

func parseTemplates() (*template.Template, error) {
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}
	return t, nil
}

// pageFor builds the view of sess. Callers hold the session lock.
func (s *Server) pageFor(sess *session.Session) pageView {
	sum := core.Summarize(sess.Snapshot)
	v := pageView{
		Authenticated: sess.Authenticated(),
		Email:         sess.Email,
		Form:          sess.Form,
		Types:         core.TransactionTypes,
		Categories:    core.Categories,
		Transactions:  sess.Snapshot.Transactions,
		Summary: summaryView{
			Income:  formatMoney(sum.Income),
			Expense: formatMoney(sum.Expense),
			Balance: formatMoney(sum.Balance()),
			Skipped: sum.Skipped,
		},
		FetchedAt:   formatTimestamp(sess.Snapshot.FetchedAt),
		HasActivity: s.journal != nil,
	}
	return v
}

func toasts(ns []core.Notification) []toastView {
	out := make([]toastView, 0, len(ns))
	for _, n := range ns {
		out = append(out, toastView{Level: string(n.Level), Message: n.Title, Duration: n.DurationMs()})
	}
	return out
}

func activityRows(items []core.Activity) []activityRow {
	rows := make([]activityRow, 0, len(items))
	for _, a := range items {
		rows = append(rows, activityRow{
			At:            formatTimestamp(a.At),
			Action:        string(a.Action),
			Outcome:       string(a.Outcome),
			TransactionID: a.TransactionID.String(),
			StatusCode:    a.StatusCode,
		})
	}
	return rows
}

// render executes a template into memory so a failing template never leaves
// a half-written response.
func (s *Server) render(name string, data any) ([]byte, error) {
	if s.templates == nil {
		return nil, errTemplatesNotLoaded
	}
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return nil, fmt.Errorf("execute template %s: %w", name, err)
	}
	return buf.Bytes(), nil
}
