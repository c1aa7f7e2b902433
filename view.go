package authflow

import (
	"github.com/MrEthical07/authflow/captcha"
	"github.com/MrEthical07/authflow/gateway"
)

// Control names a submit control. Each admits one outstanding request.
type Control string

const (
	ControlLogin          Control = "login"
	ControlRegister       Control = "register"
	ControlVerifyEmail    Control = "verify-email"
	ControlResendEmail    Control = "resend-email"
	ControlVerifySecurity Control = "verify-security"
	ControlResendSecurity Control = "resend-security"
	ControlLogout         Control = "logout"
)

// DashboardState is the load state of the dashboard. There is no partial state.
type DashboardState uint8

const (
	DashboardLoading DashboardState = iota
	DashboardLoaded
	DashboardFailed
)

func (s DashboardState) String() string {
	switch s {
	case DashboardLoading:
		return "loading"
	case DashboardLoaded:
		return "loaded"
	case DashboardFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// View is everything a renderer needs for the current step. Exactly one of
// the step-specific fields is set, matching Step. NotFound carries none.
type View struct {
	Step     AuthStep
	Location Location
	Theme    string

	Login          *LoginView
	Register       *RegisterView
	VerifyEmail    *VerifyEmailView
	VerifySecurity *VerifySecurityView
	Dashboard      *DashboardView

	// Busy lists the controls whose request has not settled yet.
	Busy map[Control]bool
}

// Disabled reports whether c must be rendered disabled.
func (v View) Disabled(c Control) bool {
	return v.Busy[c]
}

// LoginView carries the captcha issued for this rendering. The renderer shows
// Challenge.Question() and returns Challenge unchanged in the LoginForm.
type LoginView struct {
	Challenge captcha.Challenge
}

// RegisterView has no data of its own.
type RegisterView struct{}

// VerifyEmailView carries the address the code was sent to.
type VerifyEmailView struct {
	Email string
}

// VerifySecurityView carries the address the security code was sent to.
type VerifySecurityView struct {
	UserEmail string
}

// DashboardView is fetched fresh on every entry.
type DashboardView struct {
	State DashboardState
	User  *gateway.User
	Logs  []gateway.AccessLogEntry
	// Err is set in DashboardFailed. The renderer offers a way back to Login.
	Err error
}

// LoginForm is the submitted login. Challenge is the one received in LoginView.
type LoginForm struct {
	Email         string
	Password      string
	Challenge     captcha.Challenge
	CaptchaAnswer string
}

// RegisterForm is the submitted registration.
type RegisterForm struct {
	Name            string
	Email           string
	Password        string
	ConfirmPassword string
}

func (v View) clone() View {
	out := v
	out.Location = v.Location.clone()
	if v.Login != nil {
		l := *v.Login
		out.Login = &l
	}
	if v.Register != nil {
		r := *v.Register
		out.Register = &r
	}
	if v.VerifyEmail != nil {
		e := *v.VerifyEmail
		out.VerifyEmail = &e
	}
	if v.VerifySecurity != nil {
		s := *v.VerifySecurity
		out.VerifySecurity = &s
	}
	if v.Dashboard != nil {
		d := *v.Dashboard
		if v.Dashboard.User != nil {
			u := *v.Dashboard.User
			d.User = &u
		}
		d.Logs = append([]gateway.AccessLogEntry(nil), v.Dashboard.Logs...)
		out.Dashboard = &d
	}
	out.Busy = make(map[Control]bool, len(v.Busy))
	for k, b := range v.Busy {
		if b {
			out.Busy[k] = true
		}
	}
	return out
}
