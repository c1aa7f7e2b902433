package authflow

import (
	"context"
	"time"

	"github.com/MrEthical07/authflow/gateway"
)

// Backend is the authentication service as seen by the controller.
// *gateway.Client implements it.
type Backend interface {
	Register(ctx context.Context, req gateway.RegisterRequest) (*gateway.MessageResponse, error)
	Login(ctx context.Context, email, password string) (*gateway.LoginResponse, error)
	VerifyEmail(ctx context.Context, email, code string) (*gateway.MessageResponse, error)
	ResendEmailCode(ctx context.Context, email string) (*gateway.MessageResponse, error)
	VerifySecurity(ctx context.Context, sessionID, code string) (*gateway.MessageResponse, error)
	ResendSecurityCode(ctx context.Context, sessionID string) (*gateway.MessageResponse, error)
	CurrentUser(ctx context.Context) (*gateway.User, error)
	AccessLogs(ctx context.Context) ([]gateway.AccessLogEntry, error)
	Logout(ctx context.Context) (*gateway.MessageResponse, error)
}

// sessionResetter is implemented by backends that hold a client-side cookie
// session which must be dropped on logout.
type sessionResetter interface {
	ResetSession()
}

var _ Backend = (*gateway.Client)(nil)

// timed runs one backend call and records its latency.
func timed[T any](c *Controller, call func() (T, error)) (T, error) {
	if !c.metrics.LatencyEnabled() {
		return call()
	}
	start := time.Now()
	out, err := call()
	c.metrics.Observe(MetricBackendLatency, time.Since(start))
	return out, err
}
