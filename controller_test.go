package authflow

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authflow/captcha"
	"github.com/MrEthical07/authflow/gateway"
	"github.com/MrEthical07/authflow/session"
)

func TestStartEntersLoginWithCaptcha(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	v := env.start("/")
	if v.Step != StepLogin || v.Login == nil || v.Login.Challenge.IsZero() {
		t.Fatalf("unexpected view %+v", v)
	}
	if v.Theme != ThemeDark {
		t.Fatalf("theme = %q", v.Theme)
	}
	env.expectNone()
}

func TestNavigateToCurrentLocationIsIdempotent(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	first := env.start("/login")

	again, err := env.ctrl.Navigate(context.Background(), "/login/")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	if again.Login.Challenge != first.Login.Challenge {
		t.Fatalf("captcha regenerated on idempotent navigation")
	}
	if hist, _ := env.ctrl.History(); len(hist) != 1 {
		t.Fatalf("history = %v", hist)
	}
	if got := env.ctrl.MetricsSnapshot().Counters[MetricNavigation]; got != 1 {
		t.Fatalf("navigations = %d", got)
	}
}

func TestUnknownRouteIsNotFound(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.start("/")
	v, err := env.ctrl.Navigate(context.Background(), "/nope")
	if err != nil || v.Step != StepNotFound {
		t.Fatalf("got %v, %v", v.Step, err)
	}
	env.expectNone()
}

func TestVerifyEmailWithoutEmailRedirectsToLogin(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.start("/register")

	v, err := env.ctrl.Navigate(context.Background(), "/verify-email")
	if !errors.Is(err, ErrEmailNotProvided) {
		t.Fatalf("err = %v", err)
	}
	if v.Step != StepLogin || v.Location.Path != PathLogin || v.VerifyEmail != nil {
		t.Fatalf("rendered %+v", v)
	}
	n := env.expectOne(SeverityDestructive)
	if n.Description != "Email not provided" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestLoginCaptchaMismatchNeverCallsBackend(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	v := env.start("/login")

	tests := []struct {
		name string
		form LoginForm
	}{
		{"wrong answer", LoginForm{Email: "a@x.com", Password: "pw", Challenge: v.Login.Challenge, CaptchaAnswer: strconv.Itoa(v.Login.Challenge.Expected + 1)}},
		{"not a number", LoginForm{Email: "a@x.com", Password: "pw", Challenge: v.Login.Challenge, CaptchaAnswer: "seven"}},
		{"forged challenge", LoginForm{Email: "a@x.com", Password: "pw", Challenge: captcha.Challenge{OperandA: 100, OperandB: 100, Expected: 200}, CaptchaAnswer: "200"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.ctrl.SubmitLogin(context.Background(), tt.form)
			if !errors.Is(err, ErrCaptchaMismatch) || !errors.Is(err, ErrLocalValidation) {
				t.Fatalf("err = %v", err)
			}
			if got.Step != StepLogin || got.Login == nil || got.Disabled(ControlLogin) {
				t.Fatalf("view = %+v", got)
			}
			if n := env.expectOne(SeverityDestructive); n.Description != "Incorrect captcha" {
				t.Fatalf("notification = %+v", n)
			}
		})
	}
	if env.backend.total() != 0 {
		t.Fatalf("backend called %d times", env.backend.total())
	}
	if got := env.ctrl.MetricsSnapshot().Counters[MetricCaptchaMismatch]; got != 3 {
		t.Fatalf("captcha mismatches = %d", got)
	}
}

func TestLoginRequiringSecurityStoresPendingSession(t *testing.T) {
	backend := newStubBackend()
	backend.loginResp = &gateway.LoginResponse{RequiresSecurity: true, SessionID: "s1", UserEmail: "ana@x.com", Message: "Check your email"}
	env := newTestEnv(t, backend, nil)
	v := env.start("/login")

	got, err := env.ctrl.SubmitLogin(context.Background(), correctLogin(v, "ana@x.com", "Passw0rd!"))
	if err != nil {
		t.Fatalf("SubmitLogin: %v", err)
	}
	if got.Step != StepVerifySecurity || got.VerifySecurity.UserEmail != "ana@x.com" {
		t.Fatalf("view = %+v", got)
	}
	if id, _ := env.stored(session.KeySecuritySessionID); id != "s1" {
		t.Fatalf("securitySessionId = %q", id)
	}
	if email, _ := env.stored(session.KeyUserEmail); email != "ana@x.com" {
		t.Fatalf("userEmail = %q", email)
	}
	if n := env.expectOne(SeverityDefault); n.Description != "Check your email" {
		t.Fatalf("notification = %+v", n)
	}
	if res := ResolveStep(context.Background(), MustParseLocation(PathVerifySecurity), env.store); res.Step != StepVerifySecurity {
		t.Fatalf("resolved %v", res.Step)
	}
}

func TestLoginSecurityResponseWithoutSessionFails(t *testing.T) {
	backend := newStubBackend()
	backend.loginResp = &gateway.LoginResponse{RequiresSecurity: true}
	env := newTestEnv(t, backend, nil)
	v := env.start("/login")

	got, err := env.ctrl.SubmitLogin(context.Background(), correctLogin(v, "ana@x.com", "pw"))
	if !errors.Is(err, ErrBackend) || got.Step != StepLogin {
		t.Fatalf("got %v, %v", got.Step, err)
	}
	if _, ok := env.stored(session.KeySecuritySessionID); ok {
		t.Fatalf("incomplete session stored")
	}
	env.expectOne(SeverityDestructive)
}

func TestLoginSuccessLoadsDashboard(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	v := env.start("/")

	got, err := env.ctrl.SubmitLogin(context.Background(), correctLogin(v, " ana@x.com ", "pw"))
	if err != nil {
		t.Fatalf("SubmitLogin: %v", err)
	}
	if got.Step != StepDashboard || got.Dashboard.State != DashboardLoaded {
		t.Fatalf("view = %+v", got)
	}
	if got.Dashboard.User.Email != "ana@x.com" || len(got.Dashboard.Logs) != 2 || got.Dashboard.Logs[0].Action != "login" {
		t.Fatalf("dashboard = %+v", got.Dashboard)
	}
	if env.backend.lastEmail != "ana@x.com" {
		t.Fatalf("email sent = %q", env.backend.lastEmail)
	}
	if _, ok := env.stored(session.KeySecuritySessionID); ok {
		t.Fatalf("pending session stored for direct login")
	}
	if n := env.expectOne(SeverityDefault); n.Title != "Access granted" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestLoginBackendFailureStaysAndRegenerates(t *testing.T) {
	backend := newStubBackend()
	backend.loginErr = backendErr("login", 401, "Invalid credentials")
	env := newTestEnv(t, backend, nil)
	v := env.start("/login")

	regenerated := false
	for i := 0; i < 5 && !regenerated; i++ {
		got, err := env.ctrl.SubmitLogin(context.Background(), correctLogin(v, "ana@x.com", "bad"))
		var be *BackendError
		if !errors.As(err, &be) || be.Status != 401 {
			t.Fatalf("err = %v", err)
		}
		if got.Step != StepLogin || got.Disabled(ControlLogin) {
			t.Fatalf("view = %+v", got)
		}
		n := env.expectOne(SeverityDestructive)
		if n.Title != "Access denied" || n.Description != "Invalid credentials" {
			t.Fatalf("notification = %+v", n)
		}
		regenerated = got.Login.Challenge != v.Login.Challenge
		v = got
	}
	if !regenerated {
		t.Fatalf("captcha never regenerated after failures")
	}
	if got := env.ctrl.MetricsSnapshot().Counters[MetricLoginFailure]; got == 0 {
		t.Fatalf("failures not counted")
	}
}

func TestLoginBlockedShowsUnblockTime(t *testing.T) {
	backend := newStubBackend()
	backend.loginErr = &gateway.BackendError{
		Op: "login", Status: 429, Message: "Too many attempts",
		Code: gateway.CodeSecurityBlocked, BlockedUntil: time.Date(2026, 10, 15, 12, 30, 0, 0, time.UTC),
	}
	env := newTestEnv(t, backend, nil)
	v := env.start("/login")

	_, _ = env.ctrl.SubmitLogin(context.Background(), correctLogin(v, "ana@x.com", "pw"))
	n := env.expectOne(SeverityDestructive)
	if n.Description != "Too many attempts (blocked until 2026-10-15 12:30:00 UTC)" {
		t.Fatalf("description = %q", n.Description)
	}
	if got := env.ctrl.MetricsSnapshot().Counters[MetricLoginBlocked]; got != 1 {
		t.Fatalf("blocked = %d", got)
	}
}

func TestRegisterPasswordMismatchIsLocal(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.start("/register")

	v, err := env.ctrl.SubmitRegister(context.Background(), RegisterForm{Name: "Ana", Email: "ana@x.com", Password: "a", ConfirmPassword: "b"})
	if !errors.Is(err, ErrPasswordMismatch) || v.Step != StepRegister {
		t.Fatalf("got %v, %v", v.Step, err)
	}
	if env.backend.total() != 0 {
		t.Fatalf("backend called")
	}
	if n := env.expectOne(SeverityDestructive); n.Description != "Passwords do not match" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestRegisterBackendFailureStays(t *testing.T) {
	backend := newStubBackend()
	backend.registerErr = backendErr("register", 409, "A user with this email already exists")
	env := newTestEnv(t, backend, nil)
	env.start("/register")

	v, err := env.ctrl.SubmitRegister(context.Background(), RegisterForm{Name: "Ana", Email: "ana@x.com", Password: "p", ConfirmPassword: "p"})
	if !errors.Is(err, ErrBackend) || v.Step != StepRegister || v.Disabled(ControlRegister) {
		t.Fatalf("got %+v, %v", v, err)
	}
	if n := env.expectOne(SeverityDestructive); n.Description != "A user with this email already exists" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestEmailVerificationFailureStaysAndResendDoesNotMove(t *testing.T) {
	backend := newStubBackend()
	backend.verifyEmailErr = backendErr("verify-email", 400, "Invalid verification code")
	env := newTestEnv(t, backend, nil)
	env.start("/verify-email?email=ana%40x.com")

	v, err := env.ctrl.SubmitEmailVerification(context.Background(), "", "111111")
	if !errors.Is(err, ErrBackend) || v.Step != StepVerifyEmail {
		t.Fatalf("got %v, %v", v.Step, err)
	}
	if backend.lastEmail != "ana@x.com" {
		t.Fatalf("email defaulted to %q", backend.lastEmail)
	}
	env.expectOne(SeverityDestructive)

	v, err = env.ctrl.ResendEmailVerification(context.Background(), "")
	if err != nil || v.Step != StepVerifyEmail {
		t.Fatalf("resend: %v, %v", v.Step, err)
	}
	if n := env.expectOne(SeverityDefault); n.Description != "Code resent to your email" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestSecurityVerificationClearsPendingState(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	_ = env.store.Set(ctx, session.KeySecuritySessionID, "s9")
	_ = env.store.Set(ctx, session.KeyUserEmail, "ana@x.com")
	env.start("/verify-security")

	v, err := env.ctrl.SubmitSecurityVerification(ctx, " 654321 ")
	if err != nil {
		t.Fatalf("SubmitSecurityVerification: %v", err)
	}
	if env.backend.lastSessionID != "s9" || env.backend.lastCode != "654321" {
		t.Fatalf("sent %q/%q", env.backend.lastSessionID, env.backend.lastCode)
	}
	if v.Step != StepDashboard {
		t.Fatalf("step = %v", v.Step)
	}
	if _, ok := env.stored(session.KeySecuritySessionID); ok {
		t.Fatalf("securitySessionId not cleared")
	}
	if _, ok := env.stored(session.KeyUserEmail); ok {
		t.Fatalf("userEmail not cleared")
	}
	env.expectOne(SeverityDefault)

	v, err = env.ctrl.Navigate(ctx, "/verify-security")
	if !errors.Is(err, ErrSecuritySessionNotFound) || v.Step != StepLogin {
		t.Fatalf("re-entry: %v, %v", v.Step, err)
	}
	env.expectOne(SeverityDestructive)
}

func TestSecurityVerificationFailureKeepsPending(t *testing.T) {
	backend := newStubBackend()
	backend.verifySecurityErr = backendErr("verify-security", 400, "Invalid security code")
	env := newTestEnv(t, backend, nil)
	ctx := context.Background()
	_ = env.store.Set(ctx, session.KeySecuritySessionID, "s1")
	_ = env.store.Set(ctx, session.KeyUserEmail, "ana@x.com")
	env.start("/verify-security")

	v, err := env.ctrl.SubmitSecurityVerification(ctx, "000000")
	if !errors.Is(err, ErrBackend) || v.Step != StepVerifySecurity {
		t.Fatalf("got %v, %v", v.Step, err)
	}
	if id, _ := env.stored(session.KeySecuritySessionID); id != "s1" {
		t.Fatalf("pending lost: %q", id)
	}
	env.expectOne(SeverityDestructive)
}

func TestSecurityIntentWithoutPendingRedirects(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	_ = env.store.Set(ctx, session.KeySecuritySessionID, "s1")
	_ = env.store.Set(ctx, session.KeyUserEmail, "ana@x.com")
	env.start("/verify-security")

	_ = env.store.Clear(ctx, session.KeyUserEmail)

	v, err := env.ctrl.ResendSecurityCode(ctx)
	if !errors.Is(err, ErrSecuritySessionNotFound) || v.Step != StepLogin {
		t.Fatalf("got %v, %v", v.Step, err)
	}
	if env.backend.total() != 0 {
		t.Fatalf("backend called")
	}
	if n := env.expectOne(SeverityDestructive); n.Description != "Security session not found" {
		t.Fatalf("notification = %+v", n)
	}
	hist, cursor := env.ctrl.History()
	if len(hist) != 1 || hist[cursor].Path != PathLogin {
		t.Fatalf("redirect should replace the entry: %v @%d", hist, cursor)
	}
}

func TestLogoutAlwaysClearsPendingAndLandsOnLogin(t *testing.T) {
	for _, fail := range []bool{false, true} {
		t.Run(strconv.FormatBool(fail), func(t *testing.T) {
			backend := newStubBackend()
			if fail {
				backend.logoutErr = backendErr("logout", 500, "boom")
			}
			env := newTestEnv(t, backend, nil)
			ctx := context.Background()
			env.start("/dashboard")
			_ = env.store.Set(ctx, session.KeySecuritySessionID, "s1")
			_ = env.store.Set(ctx, session.KeyUserEmail, "ana@x.com")
			env.drain()

			v, err := env.ctrl.Logout(ctx)
			if fail != (err != nil) {
				t.Fatalf("err = %v", err)
			}
			if v.Step != StepLogin || v.Login == nil {
				t.Fatalf("step = %v", v.Step)
			}
			if _, ok := env.stored(session.KeySecuritySessionID); ok {
				t.Fatalf("pending not cleared")
			}
			if _, ok := env.stored(session.KeyUserEmail); ok {
				t.Fatalf("pending email not cleared")
			}
			if backend.resets != 1 {
				t.Fatalf("cookie session resets = %d", backend.resets)
			}
			want := SeverityDefault
			if fail {
				want = SeverityDestructive
			}
			env.expectOne(want)
		})
	}
}

func TestDashboardHasNoPartialSuccess(t *testing.T) {
	tests := []struct {
		name    string
		userErr error
		logsErr error
	}{
		{"user fails", backendErr("me", 401, "Authentication required"), nil},
		{"logs fail", nil, backendErr("access-logs", 500, "boom")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := newStubBackend()
			backend.userErr, backend.logsErr = tt.userErr, tt.logsErr
			env := newTestEnv(t, backend, nil)

			v, err := env.ctrl.Start(context.Background(), "/dashboard")
			if !errors.Is(err, ErrBackend) {
				t.Fatalf("err = %v", err)
			}
			if v.Step != StepDashboard || v.Dashboard.State != DashboardFailed {
				t.Fatalf("view = %+v", v.Dashboard)
			}
			if v.Dashboard.User != nil || v.Dashboard.Logs != nil {
				t.Fatalf("partial data rendered: %+v", v.Dashboard)
			}
			if n := env.expectOne(SeverityDestructive); n.Description != "Failed to load dashboard data" {
				t.Fatalf("notification = %+v", n)
			}
		})
	}
}

func TestDashboardFetchesConcurrently(t *testing.T) {
	backend := newStubBackend()
	meEntered, releaseMe := backend.hold("me")
	logsEntered, releaseLogs := backend.hold("access-logs")
	env := newTestEnv(t, backend, nil)

	done := make(chan View, 1)
	go func() {
		v, _ := env.ctrl.Start(context.Background(), "/dashboard")
		done <- v
	}()

	<-meEntered
	<-logsEntered
	if v := env.ctrl.Current(); v.Dashboard == nil || v.Dashboard.State != DashboardLoading {
		t.Fatalf("expected loading state, got %+v", v)
	}
	releaseMe()
	releaseLogs()
	if v := <-done; v.Dashboard.State != DashboardLoaded {
		t.Fatalf("state = %v", v.Dashboard.State)
	}
}

func TestStaleLoginOutcomeIsDiscarded(t *testing.T) {
	backend := newStubBackend()
	backend.loginResp = &gateway.LoginResponse{RequiresSecurity: true, SessionID: "s1", UserEmail: "ana@x.com"}
	entered, release := backend.hold("login")
	env := newTestEnv(t, backend, nil)
	v := env.start("/login")

	type result struct {
		v   View
		err error
	}
	done := make(chan result, 1)
	go func() {
		got, err := env.ctrl.SubmitLogin(context.Background(), correctLogin(v, "ana@x.com", "pw"))
		done <- result{got, err}
	}()
	<-entered

	if cur := env.ctrl.Current(); !cur.Disabled(ControlLogin) {
		t.Fatalf("login control should be disabled while in flight")
	}
	if _, err := env.ctrl.Navigate(context.Background(), "/register"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	release()

	res := <-done
	if !errors.Is(res.err, ErrStaleResponse) {
		t.Fatalf("err = %v", res.err)
	}
	if res.v.Step != StepRegister || env.ctrl.Current().Step != StepRegister {
		t.Fatalf("stale outcome applied: %v", res.v.Step)
	}
	if _, ok := env.stored(session.KeySecuritySessionID); ok {
		t.Fatalf("stale outcome persisted")
	}
	env.expectNone()
	if got := env.ctrl.MetricsSnapshot().Counters[MetricStaleResponse]; got == 0 {
		t.Fatalf("stale responses not counted")
	}
}

func TestStaleSecurityVerificationKeepsNewerPendingSession(t *testing.T) {
	backend := newStubBackend()
	backend.loginResp = &gateway.LoginResponse{RequiresSecurity: true, SessionID: "s2", UserEmail: "ana@x.com", Message: "Check your email"}
	entered, release := backend.hold("verify-security")
	env := newTestEnv(t, backend, nil)
	ctx := context.Background()
	_ = env.store.Set(ctx, session.KeySecuritySessionID, "s1")
	_ = env.store.Set(ctx, session.KeyUserEmail, "ana@x.com")
	env.start("/verify-security")

	done := make(chan error, 1)
	go func() {
		_, err := env.ctrl.SubmitSecurityVerification(ctx, "111111")
		done <- err
	}()
	<-entered

	v, err := env.ctrl.Navigate(ctx, "/login")
	if err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	v, err = env.ctrl.SubmitLogin(ctx, correctLogin(v, "ana@x.com", "pw"))
	if err != nil || v.Step != StepVerifySecurity {
		t.Fatalf("second login: %v, %v", v.Step, err)
	}
	env.drain()

	release()
	if err := <-done; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("err = %v", err)
	}
	if id, _ := env.stored(session.KeySecuritySessionID); id != "s2" {
		t.Fatalf("securitySessionId = %q, want s2", id)
	}
	if email, _ := env.stored(session.KeyUserEmail); email != "ana@x.com" {
		t.Fatalf("userEmail = %q", email)
	}
	if cur := env.ctrl.Current(); cur.Step != StepVerifySecurity || cur.Disabled(ControlVerifySecurity) {
		t.Fatalf("current = %v busy=%v", cur.Step, cur.Busy)
	}
	env.expectNone()

	v, err = env.ctrl.SubmitSecurityVerification(ctx, "222222")
	if err != nil || v.Step != StepDashboard {
		t.Fatalf("verify s2: %v, %v", v.Step, err)
	}
	if backend.lastSessionID != "s2" {
		t.Fatalf("verified %q, want s2", backend.lastSessionID)
	}
	if _, ok := env.stored(session.KeySecuritySessionID); ok {
		t.Fatalf("s2 not cleared after its own verification")
	}
}

func TestStaleSecurityVerificationStillClearsItsSession(t *testing.T) {
	backend := newStubBackend()
	entered, release := backend.hold("verify-security")
	env := newTestEnv(t, backend, nil)
	ctx := context.Background()
	_ = env.store.Set(ctx, session.KeySecuritySessionID, "s1")
	_ = env.store.Set(ctx, session.KeyUserEmail, "ana@x.com")
	env.start("/verify-security")

	done := make(chan error, 1)
	go func() {
		_, err := env.ctrl.SubmitSecurityVerification(ctx, "111111")
		done <- err
	}()
	<-entered
	if _, err := env.ctrl.Navigate(ctx, "/register"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}
	release()

	if err := <-done; !errors.Is(err, ErrStaleResponse) {
		t.Fatalf("err = %v", err)
	}
	if env.ctrl.Current().Step != StepRegister {
		t.Fatalf("stale outcome moved the view to %v", env.ctrl.Current().Step)
	}
	if _, ok := env.stored(session.KeySecuritySessionID); ok {
		t.Fatalf("consumed session s1 still stored")
	}
	if _, ok := env.stored(session.KeyUserEmail); ok {
		t.Fatalf("userEmail still stored")
	}
	env.expectNone()
	if got := env.ctrl.MetricsSnapshot().Counters[MetricSecurityVerificationSuccess]; got != 0 {
		t.Fatalf("stale success counted: %d", got)
	}
}

func TestStaleDashboardLoadIsDiscarded(t *testing.T) {
	backend := newStubBackend()
	entered, release := backend.hold("me")
	defer release()
	env := newTestEnv(t, backend, nil)
	env.start("/login")

	type result struct {
		v   View
		err error
	}
	done := make(chan result, 1)
	go func() {
		v, err := env.ctrl.Navigate(context.Background(), "/dashboard")
		done <- result{v, err}
	}()
	<-entered

	if cur := env.ctrl.Current(); cur.Step != StepDashboard || cur.Dashboard.State != DashboardLoading {
		t.Fatalf("current = %+v", cur)
	}
	if _, err := env.ctrl.Navigate(context.Background(), "/login"); err != nil {
		t.Fatalf("Navigate: %v", err)
	}

	res := <-done
	if !errors.Is(res.err, ErrStaleResponse) {
		t.Fatalf("err = %v", res.err)
	}
	if res.v.Step != StepLogin || env.ctrl.Current().Step != StepLogin {
		t.Fatalf("stale dashboard applied: %v", env.ctrl.Current().Step)
	}
	env.expectNone()
	snap := env.ctrl.MetricsSnapshot().Counters
	if snap[MetricDashboardFailed] != 0 || snap[MetricDashboardLoaded] != 0 {
		t.Fatalf("stale dashboard counted: failed=%d loaded=%d", snap[MetricDashboardFailed], snap[MetricDashboardLoaded])
	}
	if snap[MetricStaleResponse] == 0 {
		t.Fatalf("stale responses not counted")
	}
}

func TestLoginRequiringSecurityWithoutMessage(t *testing.T) {
	backend := newStubBackend()
	backend.loginResp = &gateway.LoginResponse{RequiresSecurity: true, SessionID: "s1", UserEmail: "ana@x.com"}
	env := newTestEnv(t, backend, nil)
	v := env.start("/login")

	if _, err := env.ctrl.SubmitLogin(context.Background(), correctLogin(v, "ana@x.com", "pw")); err != nil {
		t.Fatalf("SubmitLogin: %v", err)
	}
	if n := env.expectOne(SeverityDefault); n.Description != "A security code was sent to your email" {
		t.Fatalf("notification = %+v", n)
	}
}

func TestSecondSubmitWhileInFlightIsRejected(t *testing.T) {
	backend := newStubBackend()
	entered, release := backend.hold("register")
	env := newTestEnv(t, backend, nil)
	env.start("/register")
	form := RegisterForm{Name: "Ana", Email: "ana@x.com", Password: "p", ConfirmPassword: "p"}

	done := make(chan error, 1)
	go func() {
		_, err := env.ctrl.SubmitRegister(context.Background(), form)
		done <- err
	}()
	<-entered

	v, err := env.ctrl.SubmitRegister(context.Background(), form)
	if !errors.Is(err, ErrRequestInFlight) || !v.Disabled(ControlRegister) {
		t.Fatalf("second submit: %v busy=%v", err, v.Busy)
	}
	release()
	if err := <-done; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if backend.count("register") != 1 {
		t.Fatalf("register calls = %d", backend.count("register"))
	}
	if v := env.ctrl.Current(); v.Disabled(ControlRegister) || v.Step != StepVerifyEmail {
		t.Fatalf("after settle: %+v", v)
	}
	env.expectOne(SeverityDefault)
}

func TestIntentForOtherStepIsIgnored(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.start("/register")
	if _, err := env.ctrl.SubmitSecurityVerification(context.Background(), "1"); !errors.Is(err, ErrStepMismatch) {
		t.Fatalf("err = %v", err)
	}
	if _, err := env.ctrl.RefreshCaptcha(); !errors.Is(err, ErrStepMismatch) {
		t.Fatalf("err = %v", err)
	}
	env.expectNone()
}

func TestDelayedTransition(t *testing.T) {
	t.Run("applies after delay", func(t *testing.T) {
		env := newTestEnv(t, nil, nil, func(b *Builder) { b.WithTransitionDelay(20 * time.Millisecond) })
		env.start("/verify-email?email=ana%40x.com")

		v, err := env.ctrl.SubmitEmailVerification(context.Background(), "ana@x.com", "123456")
		if err != nil || v.Step != StepVerifyEmail {
			t.Fatalf("immediate view: %v, %v", v.Step, err)
		}
		waitFor(t, func() bool { return env.ctrl.Current().Step == StepLogin })
	})

	t.Run("canceled by navigation", func(t *testing.T) {
		env := newTestEnv(t, nil, nil, func(b *Builder) { b.WithTransitionDelay(30 * time.Millisecond) })
		env.start("/verify-email?email=ana%40x.com")

		if _, err := env.ctrl.SubmitEmailVerification(context.Background(), "ana@x.com", "123456"); err != nil {
			t.Fatalf("submit: %v", err)
		}
		if _, err := env.ctrl.Navigate(context.Background(), "/register"); err != nil {
			t.Fatalf("Navigate: %v", err)
		}
		time.Sleep(80 * time.Millisecond)
		if got := env.ctrl.Current().Step; got != StepRegister {
			t.Fatalf("delayed transition applied after navigation: %v", got)
		}
	})
}

func TestBackAndForwardResolveFresh(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ctx := context.Background()
	env.start("/login")
	_, _ = env.ctrl.Navigate(ctx, "/register")
	_, _ = env.ctrl.Navigate(ctx, "/dashboard")

	v, err := env.ctrl.Back(ctx)
	if err != nil || v.Step != StepRegister {
		t.Fatalf("back: %v, %v", v.Step, err)
	}
	v, _ = env.ctrl.Back(ctx)
	if v.Step != StepLogin {
		t.Fatalf("back twice: %v", v.Step)
	}
	v, _ = env.ctrl.Back(ctx)
	if v.Step != StepLogin {
		t.Fatalf("back past start: %v", v.Step)
	}
	before := env.backend.count("me")
	v, _ = env.ctrl.Forward(ctx)
	v, _ = env.ctrl.Forward(ctx)
	if v.Step != StepDashboard || env.backend.count("me") != before+1 {
		t.Fatalf("forward: %v, me calls %d", v.Step, env.backend.count("me"))
	}
}

func TestReloadRerunsEntryEffects(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	env.start("/dashboard")
	if _, err := env.ctrl.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if got := env.backend.count("me"); got != 2 {
		t.Fatalf("me calls = %d", got)
	}
}

func TestToggleThemePersists(t *testing.T) {
	store := session.NewMemoryStore()
	_ = store.Set(context.Background(), session.KeyTheme, ThemeLight)
	env := newTestEnv(t, nil, store)
	if v := env.start("/"); v.Theme != ThemeLight {
		t.Fatalf("stored theme ignored: %q", v.Theme)
	}
	v, err := env.ctrl.ToggleTheme(context.Background())
	if err != nil || v.Theme != ThemeDark || env.ctrl.Theme() != ThemeDark {
		t.Fatalf("toggle: %q, %v", v.Theme, err)
	}
	if got, _ := env.stored(session.KeyTheme); got != ThemeDark {
		t.Fatalf("stored = %q", got)
	}
}

func TestStoreFailureSurfacesOnce(t *testing.T) {
	backend := newStubBackend()
	backend.loginResp = &gateway.LoginResponse{RequiresSecurity: true, SessionID: "s1", UserEmail: "ana@x.com"}
	env := newTestEnv(t, backend, failingStore{})
	v := env.start("/login")
	env.drain()

	got, err := env.ctrl.SubmitLogin(context.Background(), correctLogin(v, "ana@x.com", "pw"))
	if !errors.Is(err, session.ErrUnavailable) || got.Step != StepLogin {
		t.Fatalf("got %v, %v", got.Step, err)
	}
	if n := env.expectOne(SeverityDestructive); !strings.Contains(n.Description, "security session") {
		t.Fatalf("notification = %+v", n)
	}
}

func TestClosedControllerRejectsIntents(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	v := env.start("/")
	env.ctrl.Close()
	if _, err := env.ctrl.SubmitLogin(context.Background(), correctLogin(v, "a", "b")); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("err = %v", err)
	}
	if _, err := env.ctrl.Navigate(context.Background(), "/register"); !errors.Is(err, ErrControllerClosed) {
		t.Fatalf("err = %v", err)
	}
}
