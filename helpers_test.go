package authflow

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/gateway"
	"github.com/MrEthical07/authflow/session"
	"go.uber.org/zap/zaptest"
)

type stubBackend struct {
	mu    sync.Mutex
	calls map[string]int
	gates map[string]*gate

	loginResp *gateway.LoginResponse
	loginErr  error

	registerErr       error
	verifyEmailErr    error
	resendEmailErr    error
	verifySecurityErr error
	resendSecurityErr error
	logoutErr         error

	user    *gateway.User
	userErr error
	logs    []gateway.AccessLogEntry
	logsErr error

	lastRegister  gateway.RegisterRequest
	lastEmail     string
	lastCode      string
	lastSessionID string
	resets        int
}

type gate struct {
	entered chan struct{}
	release chan struct{}
}

func newStubBackend() *stubBackend {
	return &stubBackend{
		calls:     make(map[string]int),
		gates:     make(map[string]*gate),
		loginResp: &gateway.LoginResponse{Message: "Login successful"},
		user:      &gateway.User{Name: "Ana", Email: "ana@x.com", EmailVerified: true},
		logs: []gateway.AccessLogEntry{
			{Action: "login", IPAddress: "10.0.0.2", Success: true},
			{Action: "register", IPAddress: "10.0.0.1", Success: true},
		},
	}
}

// hold blocks the next calls to op until release is called.
func (s *stubBackend) hold(op string) (entered <-chan struct{}, release func()) {
	g := &gate{entered: make(chan struct{}, 16), release: make(chan struct{})}
	s.mu.Lock()
	s.gates[op] = g
	s.mu.Unlock()
	var once sync.Once
	return g.entered, func() { once.Do(func() { close(g.release) }) }
}

func (s *stubBackend) enter(ctx context.Context, op string) error {
	s.mu.Lock()
	s.calls[op]++
	g := s.gates[op]
	s.mu.Unlock()
	if g == nil {
		return nil
	}
	g.entered <- struct{}{}
	select {
	case <-g.release:
		return nil
	case <-ctx.Done():
		return &gateway.BackendError{Op: op, Message: "Request canceled"}
	}
}

func (s *stubBackend) count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *stubBackend) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		n += c
	}
	return n
}

func (s *stubBackend) Register(ctx context.Context, req gateway.RegisterRequest) (*gateway.MessageResponse, error) {
	if err := s.enter(ctx, "register"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastRegister = req
	if s.registerErr != nil {
		return nil, s.registerErr
	}
	return &gateway.MessageResponse{Message: "created"}, nil
}

func (s *stubBackend) Login(ctx context.Context, email, password string) (*gateway.LoginResponse, error) {
	if err := s.enter(ctx, "login"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEmail = email
	if s.loginErr != nil {
		return nil, s.loginErr
	}
	resp := *s.loginResp
	return &resp, nil
}

func (s *stubBackend) VerifyEmail(ctx context.Context, email, code string) (*gateway.MessageResponse, error) {
	if err := s.enter(ctx, "verify-code"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEmail, s.lastCode = email, code
	if s.verifyEmailErr != nil {
		return nil, s.verifyEmailErr
	}
	return &gateway.MessageResponse{Message: "verified"}, nil
}

func (s *stubBackend) ResendEmailCode(ctx context.Context, email string) (*gateway.MessageResponse, error) {
	if err := s.enter(ctx, "resend-verification-code"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEmail = email
	if s.resendEmailErr != nil {
		return nil, s.resendEmailErr
	}
	return &gateway.MessageResponse{Message: "sent"}, nil
}

func (s *stubBackend) VerifySecurity(ctx context.Context, sessionID, code string) (*gateway.MessageResponse, error) {
	if err := s.enter(ctx, "verify-security"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSessionID, s.lastCode = sessionID, code
	if s.verifySecurityErr != nil {
		return nil, s.verifySecurityErr
	}
	return &gateway.MessageResponse{Message: "approved"}, nil
}

func (s *stubBackend) ResendSecurityCode(ctx context.Context, sessionID string) (*gateway.MessageResponse, error) {
	if err := s.enter(ctx, "resend-security-code"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSessionID = sessionID
	if s.resendSecurityErr != nil {
		return nil, s.resendSecurityErr
	}
	return &gateway.MessageResponse{Message: "sent"}, nil
}

func (s *stubBackend) CurrentUser(ctx context.Context) (*gateway.User, error) {
	if err := s.enter(ctx, "me"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.userErr != nil {
		return nil, s.userErr
	}
	u := *s.user
	return &u, nil
}

func (s *stubBackend) AccessLogs(ctx context.Context) ([]gateway.AccessLogEntry, error) {
	if err := s.enter(ctx, "access-logs"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logsErr != nil {
		return nil, s.logsErr
	}
	return append([]gateway.AccessLogEntry(nil), s.logs...), nil
}

func (s *stubBackend) Logout(ctx context.Context) (*gateway.MessageResponse, error) {
	if err := s.enter(ctx, "logout"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.logoutErr != nil {
		return nil, s.logoutErr
	}
	return &gateway.MessageResponse{Message: "bye"}, nil
}

func (s *stubBackend) ResetSession() {
	s.mu.Lock()
	s.resets++
	s.mu.Unlock()
}

func backendErr(op string, status int, msg string) error {
	return &gateway.BackendError{Op: op, Status: status, Message: msg}
}

type failingStore struct{}

func (failingStore) Get(context.Context, session.Key) (string, error) {
	return "", fmt.Errorf("%w: disk gone", session.ErrUnavailable)
}

func (failingStore) Set(context.Context, session.Key, string) error {
	return fmt.Errorf("%w: disk gone", session.ErrUnavailable)
}

func (failingStore) Clear(context.Context, session.Key) error {
	return fmt.Errorf("%w: disk gone", session.ErrUnavailable)
}

type testEnv struct {
	t       *testing.T
	ctrl    *Controller
	backend *stubBackend
	store   session.Store
	sink    *ChannelSink
}

type envOption func(*Builder)

func newTestEnv(t *testing.T, backend *stubBackend, store session.Store, opts ...envOption) *testEnv {
	t.Helper()
	if backend == nil {
		backend = newStubBackend()
	}
	if store == nil {
		store = session.NewMemoryStore()
	}
	sink := NewChannelSink(64)
	b := New().
		WithBackend(backend).
		WithSessionStore(store).
		WithNotificationSink(sink).
		WithLogger(zaptest.NewLogger(t)).
		WithCaptchaSource(rand.New(rand.NewPCG(7, 11)))
	for _, opt := range opts {
		opt(b)
	}
	ctrl, err := b.Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	t.Cleanup(ctrl.Close)
	return &testEnv{t: t, ctrl: ctrl, backend: backend, store: store, sink: sink}
}

func (e *testEnv) start(path string) View {
	e.t.Helper()
	v, err := e.ctrl.Start(context.Background(), path)
	if err != nil {
		e.t.Fatalf("Start(%q): %v", path, err)
	}
	return v
}

// drain returns every notification emitted so far.
func (e *testEnv) drain() []Notification {
	var out []Notification
	for {
		select {
		case n := <-e.sink.Notifications():
			out = append(out, n)
		default:
			return out
		}
	}
}

func (e *testEnv) expectOne(severity Severity) Notification {
	e.t.Helper()
	got := e.drain()
	if len(got) != 1 {
		e.t.Fatalf("expected exactly one notification, got %d: %+v", len(got), got)
	}
	if got[0].Severity != severity {
		e.t.Fatalf("severity = %q, want %q (%+v)", got[0].Severity, severity, got[0])
	}
	return got[0]
}

func (e *testEnv) expectNone() {
	e.t.Helper()
	if got := e.drain(); len(got) != 0 {
		e.t.Fatalf("expected no notifications, got %+v", got)
	}
}

func (e *testEnv) stored(k session.Key) (string, bool) {
	e.t.Helper()
	v, err := e.store.Get(context.Background(), k)
	if err != nil {
		return "", false
	}
	return v, true
}

func correctLogin(v View, email, password string) LoginForm {
	return LoginForm{
		Email:         email,
		Password:      password,
		Challenge:     v.Login.Challenge,
		CaptchaAnswer: strconv.Itoa(v.Login.Challenge.Expected),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met before deadline")
}
