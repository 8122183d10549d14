// Package apitest provides an in-memory stand-in for the transactions backend.
package apitest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"

	"tally/internal/core"
)

// Call is one request received by the backend.
type Call struct {
	Method        string
	Path          string
	Authorization string
	Body          map[string]any
}

// Backend serves the six backend routes from memory.
type Backend struct {
	*httptest.Server

	mu     sync.Mutex
	nextID int
	items  []core.Transaction
	users  map[string]string
	calls  []Call
	fail   map[string]int
	Token  string
}

// NewBackend starts a backend with one registered user.
func NewBackend(email, password string) *Backend {
	b := &Backend{
		users: map[string]string{email: password},
		fail:  map[string]int{},
		Token: "token-123",
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /login", b.handleLogin)
	mux.HandleFunc("POST /signup", b.handleSignup)
	mux.HandleFunc("GET /transactions", b.handleList)
	mux.HandleFunc("POST /transactions", b.handleCreate)
	mux.HandleFunc("PUT /transactions/{id}", b.handleUpdate)
	mux.HandleFunc("DELETE /transactions/{id}", b.handleDelete)
	b.Server = httptest.NewServer(b.record(mux))
	return b
}

// Seed replaces the stored transactions.
func (b *Backend) Seed(items ...core.Transaction) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append([]core.Transaction(nil), items...)
	for _, t := range items {
		if n, err := strconv.Atoi(t.ID.String()); err == nil && n > b.nextID {
			b.nextID = n
		}
	}
}

// Fail makes every request matching "METHOD /path" answer with status.
// Passing 0 clears the failure.
func (b *Backend) Fail(route string, status int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if status == 0 {
		delete(b.fail, route)
		return
	}
	b.fail[route] = status
}

// Calls returns the requests received so far.
func (b *Backend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

// CountCalls counts requests with the given method and path.
func (b *Backend) CountCalls(method, path string) int {
	n := 0
	for _, c := range b.Calls() {
		if c.Method == method && c.Path == path {
			n++
		}
	}
	return n
}

// Items returns the stored transactions.
func (b *Backend) Items() []core.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.Transaction(nil), b.items...)
}

func (b *Backend) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = json.Unmarshal(raw, &body)

		b.mu.Lock()
		b.calls = append(b.calls, Call{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
		})
		status := b.fail[r.Method+" "+routeOf(r.URL.Path)]
		b.mu.Unlock()

		if status != 0 {
			http.Error(w, `{"error":"forced"}`, status)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(raw))
		next.ServeHTTP(w, r)
	})
}

func (b *Backend) authorized(r *http.Request) bool {
	return r.Header.Get("Authorization") == "Bearer "+b.Token
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds core.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	pw, ok := b.users[creds.Email]
	b.mu.Unlock()
	if !ok || pw != creds.Password {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"accessToken": b.Token})
}

func (b *Backend) handleSignup(w http.ResponseWriter, r *http.Request) {
	var creds core.Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.users[creds.Email]; exists {
		w.WriteHeader(http.StatusConflict)
		return
	}
	b.users[creds.Email] = creds.Password
	w.WriteHeader(http.StatusCreated)
}

func (b *Backend) handleList(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	writeJSON(w, http.StatusOK, b.Items())
}

func (b *Backend) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var in core.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	b.mu.Lock()
	b.nextID++
	t := core.Transaction{
		ID:       core.TransactionID(strconv.Itoa(b.nextID)),
		Date:     in.Date,
		Amount:   in.Amount,
		Type:     in.Type,
		Category: in.Category,
	}
	b.items = append(b.items, t)
	b.mu.Unlock()
	writeJSON(w, http.StatusCreated, t)
}

func (b *Backend) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	var in core.TransactionInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	id := core.TransactionID(r.PathValue("id"))
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		if b.items[i].ID == id {
			b.items[i] = core.Transaction{ID: id, Date: in.Date, Amount: in.Amount, Type: in.Type, Category: in.Category}
			w.WriteHeader(http.StatusOK)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (b *Backend) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !b.authorized(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	id := core.TransactionID(r.PathValue("id"))
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.items {
		if b.items[i].ID == id {
			b.items = append(b.items[:i], b.items[i+1:]...)
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

// routeOf collapses /transactions/{id} so failures can target every id.
func routeOf(path string) string {
	if strings.HasPrefix(path, "/transactions/") {
		return "/transactions/{id}"
	}
	return path
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
