package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"tally/internal/log"
	"tally/internal/middleware/ratelimit"
	"tally/internal/services"
	"tally/internal/session"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

// withSession resolves the session cookie and runs h with the session locked.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := s.resolveSession(w, r)

		sess.Lock()
		defer sess.Unlock()

		logger := log.FromContext(r.Context()).With(log.FieldSession, sess.ShortID())
		h(w, r.WithContext(log.NewContext(r.Context(), logger)), sess)
	}
}

// resolveSession stores new sessions only for mutating requests, which are
// rate limited. Reads without a live session render an unstored anonymous
// one and set no cookie.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(s.cookieName); err == nil {
		id = c.Value
	}
	if !ratelimit.Mutating(r) {
		if sess, ok := s.sessions.Get(id); ok {
			return sess
		}
		return s.sessions.Anonymous()
	}

	sess, created := s.sessions.Load(id)
	if created {
		http.SetCookie(w, &http.Cookie{
			Name:     s.cookieName,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			Secure:   s.cookieSecure,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// handleHealth performs basic liveness check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.metrics.started).Round(time.Second).String(),
	})
}

// handleReady checks templates, the backend and the activity dependencies.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	status := "ready"
	httpStatus := http.StatusOK
	checks := make(map[string]string)
	fail := func(name string, err error) {
		checks[name] = "failed: " + err.Error()
		status = "not_ready"
		httpStatus = http.StatusServiceUnavailable
	}

	if s.templates == nil {
		fail("templates", errTemplatesNotLoaded)
	} else {
		checks["templates"] = "ok"
	}

	if s.backend == nil {
		checks["backend"] = "not_configured"
	} else if err := s.backend.Ping(ctx); err != nil {
		fail("backend", err)
	} else {
		checks["backend"] = "ok"
	}

	if s.publisher != nil {
		if err := s.publisher.Ping(ctx); err != nil {
			fail("publisher", err)
		} else {
			checks["publisher"] = "ok"
		}
	}

	if p, ok := s.journal.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			fail("journal", err)
		} else {
			checks["journal"] = "ok"
		}
	}

	writeJSON(w, httpStatus, map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleIndex renders the full page. Loading the page is the mount that
// refetches the list of an authenticated session, unless it follows the
// redirect of an action that already refetched.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if sess.Authenticated() && !sess.TakeFresh() {
		// Failures are logged by the service; the page shows the last snapshot.
		_ = s.ledger.Refresh(r.Context(), sess)
	}
	page := s.pageFor(sess)
	page.Flash = toasts(sess.TakeFlash())
	s.writePage(w, r, NewHTMXResponse(), tmplIndex, page)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	creds := ParseCredentials(p)
	s.respond(w, r, sess, s.ledger.Login(r.Context(), sess, creds.Email, creds.Password))
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	creds := ParseCredentials(p)
	s.respond(w, r, sess, s.ledger.Signup(r.Context(), sess, creds.Email, creds.Password))
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	s.respond(w, r, sess, s.ledger.Create(r.Context(), sess, ParseTransactionInput(p)))
}

// handleOpenEdit opens the modal for a transaction of the current snapshot.
func (s *Server) handleOpenEdit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	id := transactionID(r)
	if err := s.ledger.OpenEdit(sess, id); err != nil {
		if errors.Is(err, services.ErrTransactionNotFound) {
			NotFoundError("Transaction not found").Write(w)
			return
		}
		s.structured.LogError(r.Context(), "Open edit failed", err, log.ComponentHTTP, log.OpOpenEdit, nil)
		InternalServerError("Could not open transaction").Write(w)
		return
	}
	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	s.writePage(w, r, NewHTMXResponse(), tmplModal, s.pageFor(sess))
}

// handleUpdate saves the modal. The path id must match the open edit so a
// stale form cannot overwrite a different transaction.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	p, ok := s.parseBody(w, r)
	if !ok {
		return
	}
	if sess.Form.IsEditing() && sess.Form.Editing.ID != transactionID(r) {
		BadRequestError("Transaction is not being edited").Write(w)
		return
	}
	s.respond(w, r, sess, s.ledger.Update(r.Context(), sess, ParseTransactionInput(p)))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	id := transactionID(r)
	if id == "" {
		BadRequestError("Missing transaction id").Write(w)
		return
	}
	s.respond(w, r, sess, s.ledger.Delete(r.Context(), sess, id))
}

func (s *Server) handleCloseEdit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.ledger.CloseEdit(sess)
	if !isHTMX(r) {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	b := NewHTMXResponse().TriggerModalClose().TriggerFormReset()
	s.writePage(w, r, b, tmplApp, s.pageFor(sess))
}

// handleTable refetches and renders the table partial.
func (s *Server) handleTable(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if sess.Authenticated() {
		_ = s.ledger.Refresh(r.Context(), sess)
	}
	s.writePage(w, r, NewHTMXResponse(), tmplTable, s.pageFor(sess))
}

// handleActivity renders the most recent journal entries. It needs no
// session: the journal is server-wide.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		NotFoundError("Activity journal not configured").Write(w)
		return
	}
	recent, err := s.journal.ListRecent(r.Context(), recentActivityLimit)
	if err != nil {
		s.structured.LogError(r.Context(), "Activity list failed", err, log.ComponentActivity, log.OpList, nil)
		InternalServerError("Could not load activity").Write(w)
		return
	}
	counts, err := s.journal.OutcomeCounts(r.Context())
	if err != nil {
		s.structured.LogError(r.Context(), "Activity counts failed", err, log.ComponentActivity, log.OpList, nil)
		InternalServerError("Could not load activity").Write(w)
		return
	}
	s.writePage(w, r, NewHTMXResponse(), tmplActivity, activityView{Recent: activityRows(recent), Counts: counts})
}

// recentActivityLimit is how many journal entries the panel shows.
const recentActivityLimit = 20

// respond finishes an action. htmx requests get the re-rendered app and the
// browser events; plain form posts get a flash and a redirect to the page.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, sess *session.Session, res services.Result) {
	if !isHTMX(r) {
		if res.Notification != nil {
			sess.AddFlash(*res.Notification)
		}
		if res.Refetched {
			sess.MarkFresh()
		}
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	b := NewHTMXResponse()
	if res.Notification != nil {
		b.TriggerNotification(*res.Notification)
	}
	if res.FormReset {
		b.TriggerFormReset()
	}
	if res.ModalClosed {
		b.TriggerModalClose()
	}
	if res.Refetched {
		b.TriggerTransactionsRefresh()
	}
	s.writePage(w, r, b, tmplApp, s.pageFor(sess))
}

func (s *Server) parseBody(w http.ResponseWriter, r *http.Request) (*RequestBodyParser, bool) {
	p := NewRequestBodyParser(r)
	if err := p.Parse(); err != nil {
		s.logger.WarnContext(r.Context(), "Invalid request body",
			log.FieldError, err,
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		BadRequestError("Invalid request format").Write(w)
		return nil, false
	}
	return p, true
}

func (s *Server) writePage(w http.ResponseWriter, r *http.Request, b *HTMXResponseBuilder, name string, data any) {
	body, err := s.render(name, data)
	if err != nil {
		s.structured.LogError(r.Context(), "Template execution failed", err, log.ComponentTemplate, log.OpRender,
			log.NewFields().WithHTTPRequest(r.Method, r.URL.Path, "", "", ""))
		InternalServerError("Could not render page").Write(w)
		return
	}
	b.BodyHTML(body).Write(w)
}
