package authflow

import (
	"context"
	"strings"

	"github.com/MrEthical07/authflow/gateway"
)

// SubmitEmailVerification confirms the emailed code. An empty email falls
// back to the one carried by the current location. Success moves to Login.
func (c *Controller) SubmitEmailVerification(ctx context.Context, email, code string) (View, error) {
	gen, view, err := c.begin(ControlVerifyEmail, StepVerifyEmail)
	if err != nil {
		return view, err
	}
	email = pickEmail(email, view)

	_, err = timed(c, func() (*gateway.MessageResponse, error) {
		return c.backend.VerifyEmail(ctx, email, strings.TrimSpace(code))
	})
	v, current := c.finish(ControlVerifyEmail, gen)
	if !current {
		return v, ErrStaleResponse
	}
	if err != nil {
		c.metrics.Inc(MetricEmailVerificationFailure)
		c.notify(ctx, StepVerifyEmail, "Error", c.backendFailure("verify-email", err), SeverityDestructive)
		return v, err
	}

	c.metrics.Inc(MetricEmailVerificationSuccess)
	c.notify(ctx, StepVerifyEmail, "Success", "Email verified! Redirecting...", SeverityDefault)
	return c.transition(ctx, gen, Location{Path: PathLogin})
}

// ResendEmailVerification asks for a new code. The step does not change.
func (c *Controller) ResendEmailVerification(ctx context.Context, email string) (View, error) {
	gen, view, err := c.begin(ControlResendEmail, StepVerifyEmail)
	if err != nil {
		return view, err
	}
	email = pickEmail(email, view)

	_, err = timed(c, func() (*gateway.MessageResponse, error) {
		return c.backend.ResendEmailCode(ctx, email)
	})
	v, current := c.finish(ControlResendEmail, gen)
	if !current {
		return v, ErrStaleResponse
	}
	if err != nil {
		c.metrics.Inc(MetricEmailCodeResendFailure)
		c.notify(ctx, StepVerifyEmail, "Error", c.backendFailure("resend-email-code", err), SeverityDestructive)
		return v, err
	}
	c.metrics.Inc(MetricEmailCodeResent)
	c.notify(ctx, StepVerifyEmail, "Success", "Code resent to your email", SeverityDefault)
	return v, nil
}

func pickEmail(email string, v View) string {
	if email = strings.TrimSpace(email); email != "" {
		return email
	}
	if v.VerifyEmail != nil {
		return v.VerifyEmail.Email
	}
	return ""
}
