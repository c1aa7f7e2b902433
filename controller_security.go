package authflow

import (
	"context"
	"strings"

	"github.com/MrEthical07/authflow/gateway"
	"go.uber.org/zap"
)

// SubmitSecurityVerification confirms the security code for the stored
// pending session. Success clears the pending session and moves to Dashboard.
// A missing pending session redirects to Login.
func (c *Controller) SubmitSecurityVerification(ctx context.Context, code string) (View, error) {
	gen, view, err := c.begin(ControlVerifySecurity, StepVerifySecurity)
	if err != nil {
		return view, err
	}

	pending, err := loadPendingSecurity(ctx, c.store)
	if err != nil {
		return c.pendingLost(ctx, ControlVerifySecurity, gen, err)
	}

	_, err = timed(c, func() (*gateway.MessageResponse, error) {
		return c.backend.VerifySecurity(ctx, pending.SessionID, strings.TrimSpace(code))
	})
	if err != nil {
		v, current := c.finish(ControlVerifySecurity, gen)
		if !current {
			return v, ErrStaleResponse
		}
		c.metrics.Inc(MetricSecurityVerificationFailure)
		c.notify(ctx, StepVerifySecurity, "Error", c.backendFailure("verify-security", err), SeverityDestructive)
		return v, err
	}

	// The service consumed this session, so its stored copy goes even when the
	// outcome is stale. A pending session from a later login stays.
	c.mu.Lock()
	delete(c.inflight, ControlVerifySecurity)
	current := !c.closed && c.generation == gen
	cleared, cerr := consumePendingSecurity(context.WithoutCancel(ctx), c.store, pending.SessionID)
	v := c.snapshotLocked()
	c.mu.Unlock()

	if !cleared && cerr == nil {
		c.logger.Debug("stored pending security session is not the verified one, left in place")
	}
	if cerr != nil {
		c.metrics.Inc(MetricStoreFailure)
		c.logger.Error("pending security session not cleared", zap.Error(cerr))
	}
	if !current {
		c.discardStale(string(ControlVerifySecurity), v.Location)
		c.publish(v)
		return v, ErrStaleResponse
	}
	c.publish(v)

	c.metrics.Inc(MetricSecurityVerificationSuccess)
	c.notify(ctx, StepVerifySecurity, "Success", "Verification complete! Welcome.", SeverityDefault)
	return c.transition(ctx, gen, Location{Path: PathDashboard})
}

// ResendSecurityCode asks for a new security code for the stored pending session.
func (c *Controller) ResendSecurityCode(ctx context.Context) (View, error) {
	gen, view, err := c.begin(ControlResendSecurity, StepVerifySecurity)
	if err != nil {
		return view, err
	}

	pending, err := loadPendingSecurity(ctx, c.store)
	if err != nil {
		return c.pendingLost(ctx, ControlResendSecurity, gen, err)
	}

	_, err = timed(c, func() (*gateway.MessageResponse, error) {
		return c.backend.ResendSecurityCode(ctx, pending.SessionID)
	})
	v, current := c.finish(ControlResendSecurity, gen)
	if !current {
		return v, ErrStaleResponse
	}
	if err != nil {
		c.metrics.Inc(MetricSecurityCodeResendFailure)
		c.notify(ctx, StepVerifySecurity, "Error", c.backendFailure("resend-security-code", err), SeverityDestructive)
		return v, err
	}
	c.metrics.Inc(MetricSecurityCodeResent)
	c.notify(ctx, StepVerifySecurity, "Success", "Security code resent", SeverityDefault)
	return v, nil
}

// pendingLost handles a VerifySecurity intent whose pending session vanished
// from the store: the control is released and the user is sent to Login.
func (c *Controller) pendingLost(ctx context.Context, ctl Control, gen uint64, cause error) (View, error) {
	if v, current := c.finish(ctl, gen); !current {
		return v, ErrStaleResponse
	}
	v, err := c.enter(ctx, Location{Path: PathLogin}, historyReplace, gen)
	if err != nil {
		return v, err
	}
	c.metrics.Inc(MetricInvariantRedirect)
	c.logger.Warn("pending security session missing, redirected to login", zap.Error(cause))
	c.notify(ctx, StepLogin, "Error", invariantMessage(cause), SeverityDestructive)
	return v, cause
}
