package authflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/MrEthical07/authflow/session"
)

// AuthStep is one screen of the funnel. Exactly one is current at any time.
type AuthStep uint8

const (
	StepLogin AuthStep = iota
	StepRegister
	StepVerifyEmail
	StepVerifySecurity
	StepDashboard
	StepNotFound
)

const (
	PathRoot           = "/"
	PathLogin          = "/login"
	PathRegister       = "/register"
	PathVerifyEmail    = "/verify-email"
	PathVerifySecurity = "/verify-security"
	PathDashboard      = "/dashboard"

	// QueryEmail carries the address awaiting verification on PathVerifyEmail.
	QueryEmail = "email"
)

func (s AuthStep) String() string {
	switch s {
	case StepLogin:
		return "login"
	case StepRegister:
		return "register"
	case StepVerifyEmail:
		return "verify-email"
	case StepVerifySecurity:
		return "verify-security"
	case StepDashboard:
		return "dashboard"
	case StepNotFound:
		return "not-found"
	default:
		return fmt.Sprintf("AuthStep(%d)", uint8(s))
	}
}

// Location is the addressable client-side route: a path plus query parameters.
type Location struct {
	Path  string
	Query url.Values
}

// ParseLocation parses "/verify-email?email=a%40b.c" style routes. Only the
// path and query are kept; the path is cleaned so "/login/" equals "/login".
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{Path: PathRoot}, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("%w: %v", ErrInvalidLocation, err)
	}
	if u.Scheme != "" || u.Host != "" {
		return Location{}, fmt.Errorf("%w: %q is not a client route", ErrInvalidLocation, raw)
	}
	return Location{Path: cleanPath(u.Path), Query: u.Query()}, nil
}

// MustParseLocation is ParseLocation for constant routes.
func MustParseLocation(raw string) Location {
	loc, err := ParseLocation(raw)
	if err != nil {
		panic(err)
	}
	return loc
}

// VerifyEmailLocation returns the verification route carrying email.
func VerifyEmailLocation(email string) Location {
	return Location{Path: PathVerifyEmail, Query: url.Values{QueryEmail: []string{email}}}
}

func cleanPath(p string) string {
	if p == "" {
		return PathRoot
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

func (l Location) String() string {
	p := l.Path
	if p == "" {
		p = PathRoot
	}
	if len(l.Query) == 0 {
		return p
	}
	return p + "?" + l.Query.Encode()
}

// Equal compares cleaned paths and encoded queries.
func (l Location) Equal(o Location) bool {
	return cleanPath(l.Path) == cleanPath(o.Path) && l.Query.Encode() == o.Query.Encode()
}

func (l Location) clone() Location {
	out := Location{Path: l.Path}
	if l.Query != nil {
		out.Query = make(url.Values, len(l.Query))
		for k, v := range l.Query {
			out.Query[k] = append([]string(nil), v...)
		}
	}
	return out
}

// Resolution is the outcome of ResolveStep.
type Resolution struct {
	Step AuthStep
	// Redirected is true when the requested route's precondition failed and
	// the user must be sent to Login instead.
	Redirected bool
	// Cause explains a redirect. It wraps ErrInvariantViolation.
	Cause error
	// Email is the address awaiting verification on StepVerifyEmail.
	Email string
	// Pending is the stored security session on StepVerifySecurity.
	Pending PendingSecurityVerification
}

// ResolveStep maps a location and the stored pending-security state to a step.
// It never writes to the store.
func ResolveStep(ctx context.Context, loc Location, store session.Store) Resolution {
	switch cleanPath(loc.Path) {
	case PathRoot, PathLogin:
		return Resolution{Step: StepLogin}
	case PathRegister:
		return Resolution{Step: StepRegister}
	case PathVerifyEmail:
		email := strings.TrimSpace(loc.Query.Get(QueryEmail))
		if email == "" {
			return redirectToLogin(ErrEmailNotProvided)
		}
		return Resolution{Step: StepVerifyEmail, Email: email}
	case PathVerifySecurity:
		pending, err := loadPendingSecurity(ctx, store)
		if err != nil {
			return redirectToLogin(err)
		}
		return Resolution{Step: StepVerifySecurity, Pending: pending}
	case PathDashboard:
		return Resolution{Step: StepDashboard}
	default:
		return Resolution{Step: StepNotFound}
	}
}

func redirectToLogin(cause error) Resolution {
	if !errors.Is(cause, ErrInvariantViolation) {
		cause = fmt.Errorf("%w: %w", ErrInvariantViolation, cause)
	}
	return Resolution{Step: StepLogin, Redirected: true, Cause: cause}
}
