package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tally/internal/api"
	"tally/internal/core"
	"tally/internal/log"
	"tally/internal/session"
)

var (
	// ErrTransactionNotFound is returned when an id is not in the current snapshot.
	ErrTransactionNotFound = errors.New("transaction not found in snapshot")
	// ErrNotEditing is returned when an update is submitted with no open edit.
	ErrNotEditing = errors.New("no transaction is being edited")
)

// LedgerConfig holds tunables for LedgerService.
type LedgerConfig struct {
	// NotificationDuration is how long toasts stay visible (default: 3s)
	NotificationDuration time.Duration

	// Sink receives one activity per action outcome (default: NopSink)
	Sink ActivitySink

	// Logger is used for transport errors and sink failures (default: log.Discard)
	Logger *log.Logger

	// Now is the clock used for snapshots and activities (default: time.Now)
	Now func() time.Time
}

// DefaultLedgerConfig returns sensible defaults
func DefaultLedgerConfig() LedgerConfig {
	return LedgerConfig{
		NotificationDuration: core.DefaultNotificationDuration,
		Sink:                 NopSink{},
		Logger:               log.Discard(),
		Now:                  time.Now,
	}
}

// Result describes what an action did to the session, so the web layer can
// pick the matching partials and browser events.
type Result struct {
	// Notification is nil when the action is only logged.
	Notification *core.Notification
	Refetched    bool
	FormReset    bool
	ModalClosed  bool
	// Err is the cause of a failed action, nil on success.
	Err error
}

// OK reports whether the action succeeded.
func (r Result) OK() bool {
	return r.Err == nil
}

// LedgerService performs the auth and transaction actions of one session
// against the backend. Callers must hold the session lock.
type LedgerService struct {
	client     api.Client
	sink       ActivitySink
	logger     *log.Logger
	structured *log.StructuredLogger
	notify     time.Duration
	now        func() time.Time
}

// NewLedgerService creates a service. Zero fields of cfg take their defaults.
func NewLedgerService(client api.Client, cfg LedgerConfig) *LedgerService {
	def := DefaultLedgerConfig()
	if cfg.NotificationDuration <= 0 {
		cfg.NotificationDuration = def.NotificationDuration
	}
	if cfg.Sink == nil {
		cfg.Sink = def.Sink
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	logger := cfg.Logger.WithComponent(log.ComponentLedger)
	return &LedgerService{
		client:     client,
		sink:       cfg.Sink,
		logger:     logger,
		structured: log.NewStructuredLogger(logger),
		notify:     cfg.NotificationDuration,
		now:        cfg.Now,
	}
}

// Refresh replaces the snapshot with the backend's list. Anonymous sessions
// send no request. Failures are logged, recorded as list activity and keep
// the previous snapshot. Successful fetches are not recorded.
func (s *LedgerService) Refresh(ctx context.Context, sess *session.Session) error {
	if !sess.Authenticated() {
		return core.ErrNotAuthenticated
	}
	items, err := s.client.List(ctx, sess.AccessToken)
	if err != nil {
		s.structured.LogError(ctx, "Failed to fetch transactions", err, log.ComponentLedger, log.OpList,
			log.NewFields().WithSession(sess.ShortID(), true))
		outcome, status := core.OutcomeError, 0
		if api.IsStatusError(err) {
			outcome, status = core.OutcomeFailure, api.StatusCode(err)
		}
		s.record(ctx, sess, core.ActionList, outcome, "", status)
		return fmt.Errorf("list transactions: %w", err)
	}
	sess.Snapshot = core.NewSnapshot(items, s.now())
	s.logger.DebugContext(ctx, "Transactions fetched",
		log.FieldSession, sess.ShortID(),
		log.FieldCount, len(items))
	return nil
}

// Login exchanges the credentials for a token. On success the list is fetched
// once; on rejection the session stays anonymous.
func (s *LedgerService) Login(ctx context.Context, sess *session.Session, email, password string) Result {
	sess.Email = strings.TrimSpace(email)
	token, err := s.client.Login(ctx, core.Credentials{Email: sess.Email, Password: password})
	if err != nil {
		return s.fail(ctx, sess, core.ActionLogin, "", err)
	}

	sess.AccessToken = token
	res := s.succeed(ctx, sess, core.ActionLogin, "")
	res.Refetched = s.Refresh(ctx, sess) == nil
	return res
}

// Signup registers the credentials. It does not authenticate the session.
func (s *LedgerService) Signup(ctx context.Context, sess *session.Session, email, password string) Result {
	sess.Email = strings.TrimSpace(email)
	if err := s.client.Signup(ctx, core.Credentials{Email: sess.Email, Password: password}); err != nil {
		return s.fail(ctx, sess, core.ActionSignup, "", err)
	}
	return s.succeed(ctx, sess, core.ActionSignup, "")
}

// Create adds a transaction. The form keeps the submitted values unless the
// backend accepted them.
func (s *LedgerService) Create(ctx context.Context, sess *session.Session, in core.TransactionInput) Result {
	s.SetForm(sess, in)
	if !sess.Authenticated() {
		return s.fail(ctx, sess, core.ActionCreate, "", core.ErrNotAuthenticated)
	}
	if err := s.client.Create(ctx, sess.AccessToken, in); err != nil {
		return s.fail(ctx, sess, core.ActionCreate, "", err)
	}

	res := s.succeed(ctx, sess, core.ActionCreate, "")
	res.Refetched = s.Refresh(ctx, sess) == nil
	sess.Form.Reset()
	res.FormReset = true
	return res
}

// Update saves the edit modal's values to the transaction opened with
// OpenEdit. On failure the modal stays open with the submitted values.
func (s *LedgerService) Update(ctx context.Context, sess *session.Session, in core.TransactionInput) Result {
	if !sess.Form.IsEditing() {
		return s.fail(ctx, sess, core.ActionUpdate, "", ErrNotEditing)
	}
	s.SetForm(sess, in)
	id := sess.Form.Editing.ID
	if !sess.Authenticated() {
		return s.fail(ctx, sess, core.ActionUpdate, id, core.ErrNotAuthenticated)
	}
	if err := s.client.Update(ctx, sess.AccessToken, id, in); err != nil {
		return s.fail(ctx, sess, core.ActionUpdate, id, err)
	}

	res := s.succeed(ctx, sess, core.ActionUpdate, id)
	res.Refetched = s.Refresh(ctx, sess) == nil
	sess.Form.Reset()
	res.FormReset = true
	res.ModalClosed = true
	return res
}

// Delete removes a transaction and refetches the list.
func (s *LedgerService) Delete(ctx context.Context, sess *session.Session, id core.TransactionID) Result {
	if !sess.Authenticated() {
		return s.fail(ctx, sess, core.ActionDelete, id, core.ErrNotAuthenticated)
	}
	if err := s.client.Delete(ctx, sess.AccessToken, id); err != nil {
		return s.fail(ctx, sess, core.ActionDelete, id, err)
	}

	res := s.succeed(ctx, sess, core.ActionDelete, id)
	res.Refetched = s.Refresh(ctx, sess) == nil
	return res
}

// OpenEdit copies the snapshot entry with the given id into the form.
func (s *LedgerService) OpenEdit(sess *session.Session, id core.TransactionID) error {
	t, ok := sess.Snapshot.Find(id)
	if !ok {
		return fmt.Errorf("open edit %q: %w", id, ErrTransactionNotFound)
	}
	sess.Form.OpenEdit(t)
	return nil
}

// CloseEdit closes the modal and clears the form.
func (s *LedgerService) CloseEdit(sess *session.Session) {
	sess.Form.Reset()
}

// SetForm records typed values without sending anything. The edited
// transaction, if any, is kept.
func (s *LedgerService) SetForm(sess *session.Session, in core.TransactionInput) {
	sess.Form.Set(in)
}

func (s *LedgerService) succeed(ctx context.Context, sess *session.Session, action core.Action, id core.TransactionID) Result {
	n := core.Succeeded(action, s.notify)
	s.record(ctx, sess, action, core.OutcomeSuccess, id, 0)
	return Result{Notification: &n}
}

// fail maps err to the two error tiers: backend rejections and local
// rejections are shown to the user, transport problems are only logged.
func (s *LedgerService) fail(ctx context.Context, sess *session.Session, action core.Action, id core.TransactionID, err error) Result {
	res := Result{Err: err}
	switch {
	case api.IsStatusError(err):
		n := core.Failed(action, s.notify)
		res.Notification = &n
		s.record(ctx, sess, action, core.OutcomeFailure, id, api.StatusCode(err))
	case errors.Is(err, core.ErrNotAuthenticated), errors.Is(err, ErrNotEditing):
		n := core.Failed(action, s.notify)
		res.Notification = &n
		s.record(ctx, sess, action, core.OutcomeRejected, id, 0)
	default:
		s.structured.LogError(ctx, "Backend request failed", err, log.ComponentLedger, string(action),
			log.NewFields().
				WithSession(sess.ShortID(), sess.Authenticated()).
				WithTransaction(id.String(), "", ""))
		s.record(ctx, sess, action, core.OutcomeError, id, 0)
	}
	return res
}

func (s *LedgerService) record(ctx context.Context, sess *session.Session, action core.Action, outcome core.Outcome, id core.TransactionID, status int) {
	fields := log.NewFields().WithTransaction(id.String(), "", "")
	if status != 0 {
		fields[log.FieldBackendStatus] = status
	}
	s.structured.LogAction(ctx, string(action), string(outcome), sess.ShortID(), sess.Authenticated(), fields)

	a := core.Activity{
		Action:        action,
		Outcome:       outcome,
		TransactionID: id,
		Session:       sess.ShortID(),
		StatusCode:    status,
		At:            s.now(),
	}
	if err := s.sink.Record(ctx, a); err != nil {
		s.logger.WarnContext(ctx, "Failed to record activity",
			log.FieldOperation, log.OpRecord,
			log.FieldError, err.Error())
	}
}
