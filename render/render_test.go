package render

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/captcha"
	"github.com/MrEthical07/authflow/gateway"
	"github.com/MrEthical07/authflow/notify"
)

func TestLoginShowsQuestionNotAnswer(t *testing.T) {
	v := authflow.View{
		Step:     authflow.StepLogin,
		Location: authflow.MustParseLocation("/login"),
		Theme:    authflow.ThemeDark,
		Login:    &authflow.LoginView{Challenge: captcha.Challenge{OperandA: 3, OperandB: 4, Expected: 7}},
		Busy:     map[authflow.Control]bool{authflow.ControlLogin: true},
	}
	out := String(v, nil)
	if !strings.Contains(out, "3 + 4 = ?") {
		t.Fatalf("missing question:\n%s", out)
	}
	if strings.Contains(out, "7") {
		t.Fatalf("answer leaked:\n%s", out)
	}
	if !strings.Contains(out, "login: waiting for response") {
		t.Fatalf("disabled control not marked:\n%s", out)
	}
}

func TestDashboardPlaceholders(t *testing.T) {
	when := time.Date(2026, 10, 15, 9, 30, 0, 0, time.UTC)
	v := authflow.View{
		Step:     authflow.StepDashboard,
		Location: authflow.MustParseLocation("/dashboard"),
		Dashboard: &authflow.DashboardView{
			State: authflow.DashboardLoaded,
			User:  &gateway.User{Name: "Ada", Email: "ada@example.com", Role: "user"},
			Logs: []gateway.AccessLogEntry{
				{Action: "login", IPAddress: "10.0.0.1", Success: true, Timestamp: gateway.Timestamp{Time: when}},
				{Action: "login", IPAddress: "10.0.0.2", Location: "Berlin", DeviceInfo: "Firefox on Linux"},
			},
		},
	}
	out := String(v, nil)
	for _, want := range []string{"Welcome, Ada <ada@example.com>", unknownLocation, unknownDevice, "Berlin", "Firefox on Linux", "2026-10-15 09:30:00"} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q:\n%s", want, out)
		}
	}

	v.Dashboard.Logs = nil
	if out := String(v, nil); !strings.Contains(out, noAccess) {
		t.Fatalf("empty logs not reported:\n%s", out)
	}
}

func TestDashboardFailedOffersLogin(t *testing.T) {
	v := authflow.View{
		Step:      authflow.StepDashboard,
		Dashboard: &authflow.DashboardView{State: authflow.DashboardFailed, Err: errors.New("boom")},
	}
	out := String(v, nil)
	if !strings.Contains(out, "go /login") || strings.Contains(out, "Welcome") {
		t.Fatalf("unexpected failed dashboard:\n%s", out)
	}
}

func TestNotificationsInOrder(t *testing.T) {
	v := authflow.View{Step: authflow.StepNotFound}
	notes := []notify.Entry{
		{ID: 1, Notification: authflow.Notification{Title: "Error", Description: "Incorrect captcha", Severity: authflow.SeverityDestructive}},
		{ID: 2, Notification: authflow.Notification{Title: "Code resent to your email"}},
	}
	out := String(v, notes)
	first := strings.Index(out, "[! #1] Error: Incorrect captcha")
	second := strings.Index(out, "[i #2] Code resent to your email")
	if first < 0 || second < 0 || first > second {
		t.Fatalf("notifications out of order:\n%s", out)
	}
}
