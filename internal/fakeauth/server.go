// Package fakeauth is an in-process implementation of the authentication
// service contract. It backs the controller's end-to-end tests and the
// examples/dev-backend binary. Codes are delivered to a Mailer instead of email.
package fakeauth

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

const (
	// CookieName is the session cookie issued after a completed login.
	CookieName = "amfa.sid"

	sessionTTL              = 24 * time.Hour
	verificationCodeTTL     = 15 * time.Minute
	securityCodeTTL         = 30 * time.Minute
	securityMaxAttempts     = 3
	resendCooldown          = 60 * time.Second
	maxLoginFailures        = 5
	bruteForceWindow        = 2 * time.Minute
	emailBlockDuration      = 15 * time.Minute
	accessLogLimit          = 50
	errorCodeSecurityBlock  = "SECURITY_BLOCKED"
	invalidCredentialsError = "Invalid credentials or unverified account. Check your email and password."
)

// Mailer receives every code the service would have emailed.
type Mailer func(kind, email, code string)

// RiskPolicy decides whether a password login must be confirmed with a security code.
type RiskPolicy func(email, ip string, knownIP bool) bool

// NeverChallenge completes every password login directly.
func NeverChallenge(string, string, bool) bool { return false }

// AlwaysChallenge requires a security code on every password login.
func AlwaysChallenge(string, string, bool) bool { return true }

// ChallengeUnknownIP requires a security code when the address never logged in successfully.
func ChallengeUnknownIP(_, _ string, knownIP bool) bool { return !knownIP }

type user struct {
	id           string
	name         string
	email        string
	passwordHash []byte
	verified     bool
	createdAt    time.Time

	code       string
	codeExpiry time.Time
	codeSentAt time.Time
}

type securitySession struct {
	userID    string
	code      string
	expiresAt time.Time
	attempts  int
}

type accessLog struct {
	Action     string `json:"action"`
	IPAddress  string `json:"ipAddress"`
	Location   string `json:"location,omitempty"`
	DeviceInfo string `json:"deviceInfo,omitempty"`
	UserAgent  string `json:"userAgent,omitempty"`
	Success    bool   `json:"success"`
	Timestamp  string `json:"timestamp"`
}

type failure struct {
	status  int
	message string
}

type sessionClaims struct {
	UID string `json:"uid"`
	jwt.RegisteredClaims
}

// Server is safe for concurrent use.
type Server struct {
	router *mux.Router
	secret []byte
	now    func() time.Time

	mu        sync.Mutex
	users     map[string]*user
	security  map[string]*securitySession
	logs      map[string][]accessLog
	failures  map[string][]time.Time
	blocked   map[string]time.Time
	forced    map[string]failure
	delays    map[string]chan struct{}
	calls     map[string]int
	mailer    Mailer
	risk      RiskPolicy
	bcryptCst int
}

// Option customizes a Server.
type Option func(*Server)

// WithMailer installs the code sink.
func WithMailer(m Mailer) Option {
	return func(s *Server) { s.mailer = m }
}

// WithRiskPolicy installs the secondary-verification policy.
func WithRiskPolicy(p RiskPolicy) Option {
	return func(s *Server) { s.risk = p }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// WithSigningSecret fixes the HS256 cookie secret.
func WithSigningSecret(secret []byte) Option {
	return func(s *Server) { s.secret = append([]byte(nil), secret...) }
}

// New returns a server mounted under prefix (e.g. "/api/auth").
func New(prefix string, opts ...Option) *Server {
	s := &Server{
		now:       time.Now,
		users:     make(map[string]*user),
		security:  make(map[string]*securitySession),
		logs:      make(map[string][]accessLog),
		failures:  make(map[string][]time.Time),
		blocked:   make(map[string]time.Time),
		forced:    make(map[string]failure),
		delays:    make(map[string]chan struct{}),
		calls:     make(map[string]int),
		mailer:    func(string, string, string) {},
		risk:      NeverChallenge,
		bcryptCst: bcrypt.MinCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(s.secret) == 0 {
		s.secret = []byte(uuid.NewString())
	}

	r := mux.NewRouter()
	api := r.PathPrefix("/" + strings.Trim(prefix, "/")).Subrouter()
	api.HandleFunc("/register", s.instrument("register", s.handleRegister)).Methods(http.MethodPost)
	api.HandleFunc("/login", s.instrument("login", s.handleLogin)).Methods(http.MethodPost)
	api.HandleFunc("/verify-code", s.instrument("verify-code", s.handleVerifyCode)).Methods(http.MethodPost)
	api.HandleFunc("/resend-verification-code", s.instrument("resend-verification-code", s.handleResendCode)).Methods(http.MethodPost)
	api.HandleFunc("/verify-security", s.instrument("verify-security", s.handleVerifySecurity)).Methods(http.MethodPost)
	api.HandleFunc("/resend-security-code", s.instrument("resend-security-code", s.handleResendSecurity)).Methods(http.MethodPost)
	api.HandleFunc("/me", s.instrument("me", s.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/access-logs", s.instrument("access-logs", s.handleAccessLogs)).Methods(http.MethodGet)
	api.HandleFunc("/logout", s.instrument("logout", s.handleLogout)).Methods(http.MethodPost)
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Fail forces every following call to endpoint (e.g. "me") to answer with
// status and message until Recover is called.
func (s *Server) Fail(endpoint string, status int, message string) {
	s.mu.Lock()
	s.forced[endpoint] = failure{status: status, message: message}
	s.mu.Unlock()
}

// Recover removes a forced failure.
func (s *Server) Recover(endpoint string) {
	s.mu.Lock()
	delete(s.forced, endpoint)
	s.mu.Unlock()
}

// Hold makes calls to endpoint block until the returned release func is called.
func (s *Server) Hold(endpoint string) (release func()) {
	ch := make(chan struct{})
	s.mu.Lock()
	s.delays[endpoint] = ch
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.delays[endpoint] == ch {
				delete(s.delays, endpoint)
			}
			s.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns how many requests reached endpoint.
func (s *Server) Calls(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[endpoint]
}

// EmailCode returns the current registration code for email.
func (s *Server) EmailCode(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[normalizeEmail(email)]
	if !ok || u.code == "" {
		return "", false
	}
	return u.code, true
}

// SecurityCode returns the current code of a pending security session.
func (s *Server) SecurityCode(sessionID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sec, ok := s.security[sessionID]
	if !ok {
		return "", false
	}
	return sec.code, true
}

// SeedUser inserts an account directly. Verified accounts can log in immediately.
func (s *Server) SeedUser(name, email, password string, verified bool) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCst)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalizeEmail(email)
	if _, exists := s.users[key]; exists {
		return errors.New("user exists")
	}
	s.users[key] = &user{
		id:           uuid.NewString(),
		name:         name,
		email:        key,
		passwordHash: hash,
		verified:     verified,
		createdAt:    s.now().UTC(),
	}
	return nil
}

func (s *Server) instrument(endpoint string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[endpoint]++
		hold := s.delays[endpoint]
		forced, isForced := s.forced[endpoint]
		s.mu.Unlock()

		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		if isForced {
			writeMessage(w, forced.status, forced.message)
			return
		}
		h(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(nil, r.Body, 1<<16)).Decode(v)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func newCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (u *user) view() map[string]any {
	return map[string]any{
		"id":            u.id,
		"name":          u.name,
		"email":         u.email,
		"role":          "user",
		"emailVerified": u.verified,
		"createdAt":     u.createdAt.Format("2006-01-02T15:04:05.000000"),
	}
}
