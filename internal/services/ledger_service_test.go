package services_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/api"
	"tally/internal/api/apitest"
	"tally/internal/core"
	"tally/internal/services"
	"tally/internal/session"
)

const (
	email    = "ada@example.com"
	password = "s3cret"
)

type recordingSink struct {
	mu   sync.Mutex
	seen []core.Activity
	err  error
}

func (r *recordingSink) Record(_ context.Context, a core.Activity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, a)
	return r.err
}

func (r *recordingSink) last() core.Activity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seen[len(r.seen)-1]
}

type fixture struct {
	backend *apitest.Backend
	svc     *services.LedgerService
	sess    *session.Session
	sink    *recordingSink
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend := apitest.NewBackend(email, password)
	t.Cleanup(backend.Close)

	client, err := api.NewHTTPClient(api.Config{BaseURL: backend.URL, Timeout: 2 * time.Second})
	require.NoError(t, err)

	sink := &recordingSink{}
	svc := services.NewLedgerService(client, services.LedgerConfig{Sink: sink})
	sess, _ := session.NewStore(10, time.Hour).Load("")
	return &fixture{backend: backend, svc: svc, sess: sess, sink: sink}
}

func (f *fixture) login(t *testing.T) {
	t.Helper()
	res := f.svc.Login(context.Background(), f.sess, email, password)
	require.True(t, res.OK(), "login: %v", res.Err)
}

func groceries(date, amount string) core.TransactionInput {
	return core.TransactionInput{Date: date, Amount: core.Amount(amount), Type: core.Expense, Category: core.Groceries}
}

func TestLoginFetchesOnce(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed(core.Transaction{ID: "1", Date: "2024-01-01", Amount: "10", Type: core.Expense, Category: core.Bills})

	res := f.svc.Login(context.Background(), f.sess, email, password)

	require.True(t, res.OK())
	require.NotNil(t, res.Notification)
	assert.Equal(t, "Logged in successfully", res.Notification.Title)
	assert.Equal(t, core.LevelSuccess, res.Notification.Level)
	assert.True(t, res.Refetched)
	assert.True(t, f.sess.Authenticated())
	assert.Equal(t, 1, f.backend.CountCalls(http.MethodGet, "/transactions"))
	assert.Equal(t, 1, f.sess.Snapshot.Len())
	assert.Equal(t, core.OutcomeSuccess, f.sink.last().Outcome)
}

func TestLoginRejected(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Login(context.Background(), f.sess, email, "wrong")

	require.False(t, res.OK())
	require.NotNil(t, res.Notification)
	assert.Equal(t, "Invalid email or password", res.Notification.Title)
	assert.Equal(t, core.LevelError, res.Notification.Level)
	assert.False(t, f.sess.Authenticated())
	assert.Equal(t, email, f.sess.Email)
	assert.Zero(t, f.backend.CountCalls(http.MethodGet, "/transactions"))

	last := f.sink.last()
	assert.Equal(t, core.OutcomeFailure, last.Outcome)
	assert.Equal(t, http.StatusUnauthorized, last.StatusCode)
}

func TestSignupDoesNotAuthenticate(t *testing.T) {
	f := newFixture(t)

	res := f.svc.Signup(context.Background(), f.sess, "new@example.com", "pw")
	require.True(t, res.OK())
	assert.Equal(t, "Signed up successfully", res.Notification.Title)
	assert.False(t, f.sess.Authenticated())

	res = f.svc.Signup(context.Background(), f.sess, "new@example.com", "pw")
	require.False(t, res.OK())
	assert.Equal(t, "Error signing up", res.Notification.Title)
}

func TestCreateResetsFormAndRefetches(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	res := f.svc.Create(context.Background(), f.sess, groceries("2024-01-05", "42.50"))

	require.True(t, res.OK())
	assert.Equal(t, "Transaction added", res.Notification.Title)
	assert.True(t, res.Refetched)
	assert.True(t, res.FormReset)
	assert.Equal(t, core.NewForm(), f.sess.Form)
	assert.Equal(t, 2, f.backend.CountCalls(http.MethodGet, "/transactions"))

	require.Equal(t, 1, f.sess.Snapshot.Len())
	got := f.sess.Snapshot.Transactions[0]
	assert.Equal(t, "2024-01-05", got.Date)
	assert.Equal(t, core.Amount("42.50"), got.Amount)
}

func TestCreateRejectedKeepsForm(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	f.backend.Fail("POST /transactions", http.StatusBadRequest)

	in := groceries("2024-01-05", "42.50")
	res := f.svc.Create(context.Background(), f.sess, in)

	require.False(t, res.OK())
	assert.Equal(t, "Error adding transaction", res.Notification.Title)
	assert.False(t, res.Refetched)
	assert.False(t, res.FormReset)
	assert.Equal(t, in, f.sess.Form.Input())
	assert.Equal(t, 1, f.backend.CountCalls(http.MethodGet, "/transactions"), "only the login fetch")
	assert.Equal(t, http.StatusBadRequest, api.StatusCode(res.Err))
}

func TestUpdateSendsModalValues(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed(core.Transaction{ID: "7", Date: "2024-02-01", Amount: "900", Type: core.Income, Category: core.Salary})
	f.login(t)

	require.NoError(t, f.svc.OpenEdit(f.sess, "7"))
	assert.True(t, f.sess.EditOpen())
	assert.Equal(t, core.Amount("900"), f.sess.Form.Amount)

	edited := core.TransactionInput{Date: "2024-02-02", Amount: "950", Type: core.Income, Category: core.Salary}
	res := f.svc.Update(context.Background(), f.sess, edited)

	require.True(t, res.OK())
	assert.Equal(t, "Transaction updated", res.Notification.Title)
	assert.True(t, res.ModalClosed)
	assert.False(t, f.sess.EditOpen())

	var put *apitest.Call
	for _, c := range f.backend.Calls() {
		if c.Method == http.MethodPut {
			c := c
			put = &c
		}
	}
	require.NotNil(t, put)
	assert.Equal(t, "/transactions/7", put.Path)
	assert.Equal(t, "950", put.Body["amount"])
	assert.Equal(t, "2024-02-02", put.Body["date"])
	assert.Equal(t, core.Amount("950"), f.sess.Snapshot.Transactions[0].Amount)
}

func TestUpdateRejectedKeepsModalOpen(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed(core.Transaction{ID: "7", Date: "2024-02-01", Amount: "900", Type: core.Income, Category: core.Salary})
	f.login(t)
	require.NoError(t, f.svc.OpenEdit(f.sess, "7"))
	f.backend.Fail("PUT /transactions/{id}", http.StatusInternalServerError)

	res := f.svc.Update(context.Background(), f.sess, groceries("2024-03-03", "1"))

	require.False(t, res.OK())
	assert.Equal(t, "Error updating transaction", res.Notification.Title)
	assert.True(t, f.sess.EditOpen())
	assert.Equal(t, core.Amount("1"), f.sess.Form.Amount)
	assert.Equal(t, core.TransactionID("7"), f.sess.Form.Editing.ID)
}

func TestUpdateWithoutEditIsRejected(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	before := len(f.backend.Calls())

	res := f.svc.Update(context.Background(), f.sess, groceries("2024-03-03", "1"))

	assert.ErrorIs(t, res.Err, services.ErrNotEditing)
	assert.Equal(t, "Error updating transaction", res.Notification.Title)
	assert.Len(t, f.backend.Calls(), before)
}

func TestDeleteRemovesExactlyOne(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed(
		core.Transaction{ID: "1", Date: "2024-01-01", Amount: "1", Type: core.Expense, Category: core.Bills},
		core.Transaction{ID: "2", Date: "2024-01-02", Amount: "2", Type: core.Expense, Category: core.Bills},
		core.Transaction{ID: "3", Date: "2024-01-03", Amount: "3", Type: core.Expense, Category: core.Bills},
	)
	f.login(t)

	res := f.svc.Delete(context.Background(), f.sess, "2")

	require.True(t, res.OK())
	assert.Equal(t, "Transaction deleted", res.Notification.Title)
	ids := []core.TransactionID{}
	for _, tx := range f.sess.Snapshot.Transactions {
		ids = append(ids, tx.ID)
	}
	assert.Equal(t, []core.TransactionID{"1", "3"}, ids)
	assert.Equal(t, core.TransactionID("2"), f.sink.last().TransactionID)
}

func TestDeleteUnknownReportsError(t *testing.T) {
	f := newFixture(t)
	f.login(t)

	res := f.svc.Delete(context.Background(), f.sess, "99")

	require.False(t, res.OK())
	assert.Equal(t, "Error deleting transaction", res.Notification.Title)
	assert.False(t, res.Refetched)
}

func TestAnonymousMutationsSendNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		run   func() services.Result
		title string
	}{
		{"create", func() services.Result { return f.svc.Create(ctx, f.sess, groceries("2024-01-01", "1")) }, "Error adding transaction"},
		{"delete", func() services.Result { return f.svc.Delete(ctx, f.sess, "1") }, "Error deleting transaction"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := tt.run()
			assert.ErrorIs(t, res.Err, core.ErrNotAuthenticated)
			require.NotNil(t, res.Notification)
			assert.Equal(t, tt.title, res.Notification.Title)
			assert.Equal(t, core.OutcomeRejected, f.sink.last().Outcome)
		})
	}

	assert.ErrorIs(t, f.svc.Refresh(ctx, f.sess), core.ErrNotAuthenticated)
	assert.Empty(t, f.backend.Calls())
}

func TestRefreshFailureKeepsSnapshot(t *testing.T) {
	f := newFixture(t)
	f.backend.Seed(core.Transaction{ID: "1", Date: "2024-01-01", Amount: "1", Type: core.Expense, Category: core.Bills})
	f.login(t)
	f.backend.Fail("GET /transactions", http.StatusBadGateway)

	err := f.svc.Refresh(context.Background(), f.sess)

	require.Error(t, err)
	assert.Equal(t, 1, f.sess.Snapshot.Len())
	last := f.sink.last()
	assert.Equal(t, core.ActionList, last.Action)
	assert.Equal(t, core.OutcomeFailure, last.Outcome)
	assert.Equal(t, http.StatusBadGateway, last.StatusCode)
}

func TestSuccessfulRefreshIsNotRecorded(t *testing.T) {
	f := newFixture(t)
	f.login(t)
	before := len(f.sink.seen)

	require.NoError(t, f.svc.Refresh(context.Background(), f.sess))

	assert.Len(t, f.sink.seen, before)
}

func TestOpenEditUnknownID(t *testing.T) {
	f := newFixture(t)

	err := f.svc.OpenEdit(f.sess, "nope")

	assert.ErrorIs(t, err, services.ErrTransactionNotFound)
	assert.False(t, f.sess.EditOpen())
}

func TestCloseEditResetsForm(t *testing.T) {
	f := newFixture(t)
	f.sess.Snapshot = core.NewSnapshot([]core.Transaction{{ID: "4", Date: "2024-01-01", Amount: "5", Type: core.Income, Category: core.Salary}}, time.Now())
	require.NoError(t, f.svc.OpenEdit(f.sess, "4"))

	f.svc.CloseEdit(f.sess)

	assert.Equal(t, core.NewForm(), f.sess.Form)
}

// stubClient fails every call with a transport error.
type stubClient struct{ err error }

func (s stubClient) List(context.Context, string) ([]core.Transaction, error) { return nil, s.err }
func (s stubClient) Create(context.Context, string, core.TransactionInput) error {
	return s.err
}
func (s stubClient) Update(context.Context, string, core.TransactionID, core.TransactionInput) error {
	return s.err
}
func (s stubClient) Delete(context.Context, string, core.TransactionID) error { return s.err }
func (s stubClient) Login(context.Context, core.Credentials) (string, error) {
	return "", s.err
}
func (s stubClient) Signup(context.Context, core.Credentials) error { return s.err }

func TestTransportErrorsAreOnlyLogged(t *testing.T) {
	sink := &recordingSink{}
	svc := services.NewLedgerService(stubClient{err: errors.New("connection refused")}, services.LedgerConfig{Sink: sink})
	sess, _ := session.NewStore(10, time.Hour).Load("")

	res := svc.Login(context.Background(), sess, email, password)
	assert.Nil(t, res.Notification)
	assert.False(t, sess.Authenticated())
	assert.Equal(t, core.OutcomeError, sink.last().Outcome)

	sess.AccessToken = "tok"
	in := groceries("2024-01-01", "3")
	res = svc.Create(context.Background(), sess, in)
	assert.Nil(t, res.Notification)
	assert.Error(t, res.Err)
	assert.Equal(t, in, sess.Form.Input())
}

func TestSinkFailureDoesNotChangeOutcome(t *testing.T) {
	f := newFixture(t)
	f.sink.err = errors.New("journal down")

	res := f.svc.Login(context.Background(), f.sess, email, password)

	assert.True(t, res.OK())
	assert.True(t, f.sess.Authenticated())
}

func TestMultiSinkJoinsErrors(t *testing.T) {
	a, b := &recordingSink{}, &recordingSink{err: errors.New("b failed")}
	multi := services.MultiSink{a, nil, b}

	err := multi.Record(context.Background(), core.Activity{Action: core.ActionCreate})

	assert.EqualError(t, err, "b failed")
	assert.Len(t, a.seen, 1)
	assert.Len(t, b.seen, 1)
}
