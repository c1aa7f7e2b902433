package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"
)

// DefaultPathPrefix is the common prefix of every auth endpoint.
const DefaultPathPrefix = "/api/auth"

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 1 << 20

// Config describes where the authentication service lives.
type Config struct {
	// BaseURL is scheme://host[:port] of the service.
	BaseURL string
	// PathPrefix is prepended to every endpoint path. Empty uses DefaultPathPrefix.
	PathPrefix string
	// UserAgent is sent on every request when non-empty.
	UserAgent string
	// HTTPClient is used for transport. Its Timeout is left as configured by the
	// caller; the gateway never adds one. A cookie jar is attached when absent.
	HTTPClient *http.Client
}

// Client implements the backend contract over JSON/HTTP with cookie credentials.
type Client struct {
	base      *url.URL
	prefix    string
	userAgent string
	logger    *zap.Logger

	mu   sync.RWMutex
	http *http.Client
}

// New validates cfg and returns a client. A nil logger disables logging.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	raw := strings.TrimSpace(cfg.BaseURL)
	if raw == "" {
		return nil, errors.New("gateway BaseURL required")
	}
	base, err := url.Parse(strings.TrimRight(raw, "/"))
	if err != nil {
		return nil, fmt.Errorf("gateway BaseURL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("gateway BaseURL scheme must be http or https, got %q", base.Scheme)
	}
	if base.Host == "" {
		return nil, errors.New("gateway BaseURL host required")
	}

	prefix := cfg.PathPrefix
	if prefix == "" {
		prefix = DefaultPathPrefix
	}
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	hc := &http.Client{}
	if cfg.HTTPClient != nil {
		copied := *cfg.HTTPClient
		hc = &copied
	}
	if hc.Jar == nil {
		jar, err := newJar()
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}

	return &Client{
		base:      base,
		prefix:    prefix,
		userAgent: cfg.UserAgent,
		logger:    logger.Named("gateway"),
		http:      hc,
	}, nil
}

func newJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("gateway cookie jar: %w", err)
	}
	return jar, nil
}

// ResetSession drops every cookie held for the service.
func (c *Client) ResetSession() {
	jar, err := newJar()
	if err != nil {
		c.logger.Warn("cookie jar reset failed", zap.Error(err))
		return
	}
	c.mu.Lock()
	next := *c.http
	next.Jar = jar
	c.http = &next
	c.mu.Unlock()
}

// Cookies returns the cookies the jar would send to the service.
func (c *Client) Cookies() []*http.Cookie {
	c.mu.RLock()
	jar := c.http.Jar
	c.mu.RUnlock()
	return jar.Cookies(c.base)
}

// Register creates an unverified account.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, "register", http.MethodPost, "/register", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Login submits credentials. A successful response either completes the login
// or asks for secondary verification (RequiresSecurity).
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var out LoginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/login", loginRequest{Email: email, Password: password}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyEmail confirms the emailed registration code.
func (c *Client) VerifyEmail(ctx context.Context, email, code string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, "verify-email", http.MethodPost, "/verify-code", emailCodeRequest{Email: email, Code: code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResendEmailCode asks the service to send a new registration code.
func (c *Client) ResendEmailCode(ctx context.Context, email string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, "resend-email-code", http.MethodPost, "/resend-verification-code", emailCodeRequest{Email: email}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifySecurity confirms the security code of a pending security session.
func (c *Client) VerifySecurity(ctx context.Context, sessionID, code string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, "verify-security", http.MethodPost, "/verify-security", securityCodeRequest{SessionID: sessionID, Code: code}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResendSecurityCode asks the service to send a new security code.
func (c *Client) ResendSecurityCode(ctx context.Context, sessionID string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, "resend-security-code", http.MethodPost, "/resend-security-code", securityCodeRequest{SessionID: sessionID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CurrentUser fetches the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var out User
	if err := c.do(ctx, "get-current-user", http.MethodGet, "/me", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AccessLogs fetches the access log in the order the service returns it.
func (c *Client) AccessLogs(ctx context.Context) ([]AccessLogEntry, error) {
	var out accessLogsResponse
	if err := c.do(ctx, "get-access-logs", http.MethodGet, "/access-logs", nil, &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// Logout ends the server session.
func (c *Client) Logout(ctx context.Context) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, "logout", http.MethodPost, "/logout", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + c.prefix + path
	return u.String()
}

func (c *Client) do(ctx context.Context, op, method, path string, in, out any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	requestID := uuid.NewString()
	fail := func(status int, msg string, cause error) error {
		return &BackendError{Op: op, Status: status, Message: msg, RequestID: requestID, cause: cause}
	}

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fail(0, DefaultErrorMessage, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return fail(0, DefaultErrorMessage, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	c.mu.RLock()
	hc := c.http
	c.mu.RUnlock()

	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			zap.String("op", op),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return fail(0, transportMessage(err), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(resp.StatusCode, DefaultErrorMessage, err)
	}

	c.logger.Debug("request settled",
		zap.String("op", op),
		zap.String("request_id", requestID),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeFailure(op, requestID, resp.StatusCode, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fail(resp.StatusCode, "Invalid response from server", err)
	}
	return nil
}

func decodeFailure(op, requestID string, status int, data []byte) error {
	be := &BackendError{Op: op, Status: status, Message: DefaultErrorMessage, RequestID: requestID}
	var body errorResponse
	if err := json.Unmarshal(data, &body); err != nil {
		return be
	}
	if msg := strings.TrimSpace(body.Message); msg != "" {
		be.Message = msg
	}
	be.Code = body.Error
	if body.BlockedUntil != "" {
		if t, ok := parseTimestamp(body.BlockedUntil); ok {
			be.BlockedUntil = t
		}
	}
	return be
}

func transportMessage(err error) string {
	switch {
	case errors.Is(err, context.Canceled):
		return "Request canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	default:
		return "Unable to reach the server"
	}
}
