// Package render turns a controller View into terminal text. It keeps no
// state and never calls the backend; the caller forwards user input to the
// controller and renders the View it gets back.
package render

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/MrEthical07/authflow"
	"github.com/MrEthical07/authflow/gateway"
	"github.com/MrEthical07/authflow/notify"
)

const (
	unknownLocation = "unknown location"
	unknownDevice   = "unknown device"
	noAccess        = "no access recorded"
	timeLayout      = "2006-01-02 15:04:05"
)

// String renders v followed by the visible notifications.
func String(v authflow.View, notes []notify.Entry) string {
	var b strings.Builder
	_ = Write(&b, v, notes)
	return b.String()
}

// Write renders v to w.
func Write(w io.Writer, v authflow.View, notes []notify.Entry) error {
	p := &printer{w: w}
	p.linef("== %s  [%s]  (%s theme)", title(v.Step), v.Location, v.Theme)

	switch v.Step {
	case authflow.StepLogin:
		p.login(v)
	case authflow.StepRegister:
		p.line("Create an account: register <name> <email> <password> <confirm>")
		p.control(v, authflow.ControlRegister, "register")
		p.line("Have an account? go /login")
	case authflow.StepVerifyEmail:
		p.verifyEmail(v)
	case authflow.StepVerifySecurity:
		p.verifySecurity(v)
	case authflow.StepDashboard:
		p.dashboard(v)
	case authflow.StepNotFound:
		p.line("Page not found.")
		p.line("go /login")
	}

	for _, n := range notes {
		marker := "i"
		if n.Severity == authflow.SeverityDestructive {
			marker = "!"
		}
		if n.Description != "" {
			p.linef("[%s #%d] %s: %s", marker, n.ID, n.Title, n.Description)
		} else {
			p.linef("[%s #%d] %s", marker, n.ID, n.Title)
		}
	}
	return p.err
}

type printer struct {
	w   io.Writer
	err error
}

func (p *printer) line(s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, s+"\n")
}

func (p *printer) linef(format string, args ...any) {
	p.line(fmt.Sprintf(format, args...))
}

func (p *printer) control(v authflow.View, c authflow.Control, label string) {
	if v.Disabled(c) {
		p.linef("  (%s: waiting for response)", label)
	}
}

func (p *printer) login(v authflow.View) {
	p.line("Sign in: login <email> <password> <answer>")
	if v.Login != nil {
		p.linef("Captcha: %s   (captcha to refresh)", v.Login.Challenge.Question())
	}
	p.control(v, authflow.ControlLogin, "login")
	p.line("No account? go /register")
}

func (p *printer) verifyEmail(v authflow.View) {
	email := ""
	if v.VerifyEmail != nil {
		email = v.VerifyEmail.Email
	}
	p.linef("A verification code was sent to %s", email)
	p.line("verify <code> | resend")
	p.control(v, authflow.ControlVerifyEmail, "verify")
	p.control(v, authflow.ControlResendEmail, "resend")
}

func (p *printer) verifySecurity(v authflow.View) {
	email := ""
	if v.VerifySecurity != nil {
		email = v.VerifySecurity.UserEmail
	}
	p.linef("Unusual sign-in. A security code was sent to %s", email)
	p.line("verify <code> | resend")
	p.control(v, authflow.ControlVerifySecurity, "verify")
	p.control(v, authflow.ControlResendSecurity, "resend")
}

func (p *printer) dashboard(v authflow.View) {
	d := v.Dashboard
	if d == nil || d.State == authflow.DashboardLoading {
		p.line("Loading...")
		return
	}
	if d.State == authflow.DashboardFailed {
		p.line("Could not load your dashboard.")
		p.line("go /login to return to sign in")
		return
	}
	if d.User != nil {
		p.linef("Welcome, %s <%s>", d.User.Name, d.User.Email)
		if d.User.Role != "" {
			p.linef("Role: %s", d.User.Role)
		}
		if !d.User.CreatedAt.IsZero() {
			p.linef("Member since: %s", d.User.CreatedAt.UTC().Format("2006-01-02"))
		}
	}
	p.line("Recent access:")
	if len(d.Logs) == 0 {
		p.line("  " + noAccess)
	} else if p.err == nil {
		p.err = writeLogs(p.w, d.Logs)
	}
	p.line("logout")
	p.control(v, authflow.ControlLogout, "logout")
}

func writeLogs(w io.Writer, logs []gateway.AccessLogEntry) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  TIME\tACTION\tRESULT\tIP\tLOCATION\tDEVICE")
	for _, e := range logs {
		result := "failed"
		if e.Success {
			result = "ok"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\t%s\n",
			formatTime(e.Timestamp.Time), e.Action, result, e.IPAddress,
			orDefault(e.Location, unknownLocation), orDefault(e.DeviceInfo, unknownDevice))
	}
	return tw.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func title(s authflow.AuthStep) string {
	switch s {
	case authflow.StepLogin:
		return "Sign in"
	case authflow.StepRegister:
		return "Register"
	case authflow.StepVerifyEmail:
		return "Verify email"
	case authflow.StepVerifySecurity:
		return "Security check"
	case authflow.StepDashboard:
		return "Dashboard"
	default:
		return "Not found"
	}
}
