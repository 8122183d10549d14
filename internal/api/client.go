// Package api is the typed client for the remote transactions backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tally/internal/core"
)

// DefaultBaseURL is the backend the application talks to unless configured otherwise.
const DefaultBaseURL = "https://backengine-6529.fly.dev"

// maxErrorBody bounds how much of a failed response body is kept for logs.
const maxErrorBody = 512

// Client is the set of backend calls the UI performs.
type Client interface {
	List(ctx context.Context, token string) ([]core.Transaction, error)
	Create(ctx context.Context, token string, in core.TransactionInput) error
	Update(ctx context.Context, token string, id core.TransactionID, in core.TransactionInput) error
	Delete(ctx context.Context, token string, id core.TransactionID) error
	Login(ctx context.Context, creds core.Credentials) (accessToken string, err error)
	Signup(ctx context.Context, creds core.Credentials) error
}

// ErrMissingToken is returned when a successful login response has no token.
var ErrMissingToken = errors.New("login response has no access token")

// StatusError is a non-2xx answer from the backend.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.Path, e.StatusCode)
	}
	return fmt.Sprintf("%s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// IsStatusError reports whether err carries a non-2xx backend response.
func IsStatusError(err error) bool {
	var se *StatusError
	return errors.As(err, &se)
}

// StatusCode returns the backend status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

// Config holds HTTP client settings.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPClient implements Client over net/http.
type HTTPClient struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client. An empty base URL falls back to DefaultBaseURL.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL %q: scheme must be http or https", base)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{baseURL: base, timeout: cfg.Timeout, httpClient: hc}, nil
}

// BaseURL returns the configured backend root.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

func (c *HTTPClient) List(ctx context.Context, token string) ([]core.Transaction, error) {
	resp, err := c.do(ctx, http.MethodGet, "/transactions", token, true, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var items []core.Transaction
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode transactions: %w", err)
	}
	return items, nil
}

func (c *HTTPClient) Create(ctx context.Context, token string, in core.TransactionInput) error {
	return c.discard(c.do(ctx, http.MethodPost, "/transactions", token, true, in))
}

func (c *HTTPClient) Update(ctx context.Context, token string, id core.TransactionID, in core.TransactionInput) error {
	return c.discard(c.do(ctx, http.MethodPut, transactionPath(id), token, true, in))
}

func (c *HTTPClient) Delete(ctx context.Context, token string, id core.TransactionID) error {
	return c.discard(c.do(ctx, http.MethodDelete, transactionPath(id), token, true, nil))
}

func (c *HTTPClient) Login(ctx context.Context, creds core.Credentials) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/login", "", false, creds)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if body.AccessToken == "" {
		return "", ErrMissingToken
	}
	return body.AccessToken, nil
}

func (c *HTTPClient) Signup(ctx context.Context, creds core.Credentials) error {
	return c.discard(c.do(ctx, http.MethodPost, "/signup", "", false, creds))
}

// Ping reports whether the backend answers at all. Any HTTP status counts.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ping backend: %w", err)
	}
	resp.Body.Close()
	return nil
}

func (c *HTTPClient) discard(resp *http.Response, err error) error {
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// do sends one request. A non-2xx response is returned as *StatusError with
// the body already closed; on success the caller owns resp.Body.
func (c *HTTPClient) do(ctx context.Context, method, path, token string, bearer bool, payload any) (*http.Response, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s %s body: %w", method, path, err)
		}
		body = bytes.NewReader(b)
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		resp, err := c.send(ctx, method, path, token, bearer, body, payload != nil)
		if err != nil {
			cancel()
			return nil, err
		}
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil
	}
	return c.send(ctx, method, path, token, bearer, body, payload != nil)
}

func (c *HTTPClient) send(ctx context.Context, method, path, token string, bearer bool, body io.Reader, hasBody bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s request: %w", method, path, err)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if bearer {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}
	return resp, nil
}

func transactionPath(id core.TransactionID) string {
	return "/transactions/" + url.PathEscape(id.String())
}

// cancelOnClose releases the per-call timeout once the body is consumed.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
