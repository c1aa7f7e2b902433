package authflow

import (
	"context"
	"strings"

	"github.com/MrEthical07/authflow/captcha"
	"github.com/MrEthical07/authflow/gateway"
	"go.uber.org/zap"
)

const securityCodeSentMessage = "A security code was sent to your email"

// SubmitLogin checks the captcha locally and, on a match, logs in. A login
// that requires secondary verification stores the pending session and moves
// to VerifySecurity; otherwise the user lands on Dashboard. Any failure
// regenerates the captcha and stays on Login.
func (c *Controller) SubmitLogin(ctx context.Context, form LoginForm) (View, error) {
	gen, view, err := c.begin(ControlLogin, StepLogin)
	if err != nil {
		return view, err
	}

	issued := view.Login.Challenge
	answer, perr := captcha.ParseAnswer(form.CaptchaAnswer)
	if perr != nil || form.Challenge != issued || !captcha.Check(issued, answer) {
		if _, current := c.finish(ControlLogin, gen); !current {
			return c.Current(), ErrStaleResponse
		}
		c.metrics.Inc(MetricCaptchaMismatch)
		v := c.regenerateCaptcha(gen)
		c.notify(ctx, StepLogin, "Error", "Incorrect captcha", SeverityDestructive)
		return v, ErrCaptchaMismatch
	}

	email := strings.TrimSpace(form.Email)
	resp, err := timed(c, func() (*gateway.LoginResponse, error) {
		return c.backend.Login(ctx, email, form.Password)
	})
	if err == nil && resp.RequiresSecurity && (resp.SessionID == "" || resp.UserEmail == "") {
		err = &gateway.BackendError{Op: "login", Status: 200, Message: "Invalid response from server"}
	}
	if err != nil {
		if _, current := c.finish(ControlLogin, gen); !current {
			return c.Current(), ErrStaleResponse
		}
		c.metrics.Inc(MetricLoginFailure)
		if be, ok := gateway.AsBackendError(err); ok && be.Blocked() {
			c.metrics.Inc(MetricLoginBlocked)
		}
		msg := c.backendFailure("login", err)
		v := c.regenerateCaptcha(gen)
		c.notify(ctx, StepLogin, "Access denied", msg, SeverityDestructive)
		return v, err
	}

	if resp.RequiresSecurity {
		return c.requireSecurity(ctx, gen, resp)
	}

	if _, current := c.finish(ControlLogin, gen); !current {
		return c.Current(), ErrStaleResponse
	}
	c.metrics.Inc(MetricLoginSuccess)
	c.logger.Info("login completed", zap.String("step", StepLogin.String()))
	c.notify(ctx, StepLogin, "Access granted", "Login successful!", SeverityDefault)
	return c.transition(ctx, gen, Location{Path: PathDashboard})
}

// requireSecurity persists the pending verification, but only while the
// login outcome is still current, then moves to VerifySecurity.
func (c *Controller) requireSecurity(ctx context.Context, gen uint64, resp *gateway.LoginResponse) (View, error) {
	pending := PendingSecurityVerification{SessionID: resp.SessionID, UserEmail: resp.UserEmail}

	c.mu.Lock()
	delete(c.inflight, ControlLogin)
	if c.closed || c.generation != gen {
		v := c.snapshotLocked()
		c.mu.Unlock()
		c.discardStale(string(ControlLogin), v.Location)
		c.publish(v)
		return v, ErrStaleResponse
	}
	serr := savePendingSecurity(ctx, c.store, pending)
	if serr != nil {
		c.view.Login = &LoginView{Challenge: c.captcha.Generate()}
	}
	v := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(v)

	if serr != nil {
		c.metrics.Inc(MetricStoreFailure)
		c.logger.Error("pending security session not stored", zap.Error(serr))
		c.notify(ctx, StepLogin, "Error", "Unable to store the security session", SeverityDestructive)
		return v, serr
	}

	c.metrics.Inc(MetricLoginSecurityRequired)
	c.logger.Info("secondary verification required", zap.String("step", StepLogin.String()))
	msg := strings.TrimSpace(resp.Message)
	if msg == "" {
		msg = securityCodeSentMessage
	}
	c.notify(ctx, StepLogin, "Security verification required", msg, SeverityDefault)
	return c.transition(ctx, gen, Location{Path: PathVerifySecurity})
}

// RefreshCaptcha issues a new challenge on the Login step.
func (c *Controller) RefreshCaptcha() (View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrControllerClosed
	}
	if c.view.Step != StepLogin || c.view.Login == nil {
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, ErrStepMismatch
	}
	gen := c.generation
	c.mu.Unlock()
	return c.regenerateCaptcha(gen), nil
}

// regenerateCaptcha replaces the challenge if the Login rendering of gen is still current.
func (c *Controller) regenerateCaptcha(gen uint64) View {
	c.mu.Lock()
	if !c.closed && c.generation == gen && c.view.Step == StepLogin {
		c.view.Login = &LoginView{Challenge: c.captcha.Generate()}
	}
	v := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(v)
	return v
}
