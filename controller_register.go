package authflow

import (
	"context"
	"strings"

	"github.com/MrEthical07/authflow/gateway"
)

// SubmitRegister creates an account. Mismatched passwords fail locally; a
// backend success moves to VerifyEmail carrying the address.
func (c *Controller) SubmitRegister(ctx context.Context, form RegisterForm) (View, error) {
	gen, view, err := c.begin(ControlRegister, StepRegister)
	if err != nil {
		return view, err
	}

	if form.Password != form.ConfirmPassword {
		v, current := c.finish(ControlRegister, gen)
		if !current {
			return v, ErrStaleResponse
		}
		c.metrics.Inc(MetricPasswordMismatch)
		c.notify(ctx, StepRegister, "Error", "Passwords do not match", SeverityDestructive)
		return v, ErrPasswordMismatch
	}

	email := strings.TrimSpace(form.Email)
	_, err = timed(c, func() (*gateway.MessageResponse, error) {
		return c.backend.Register(ctx, gateway.RegisterRequest{
			Name:            strings.TrimSpace(form.Name),
			Email:           email,
			Password:        form.Password,
			ConfirmPassword: form.ConfirmPassword,
		})
	})
	v, current := c.finish(ControlRegister, gen)
	if !current {
		return v, ErrStaleResponse
	}
	if err != nil {
		c.metrics.Inc(MetricRegisterFailure)
		c.notify(ctx, StepRegister, "Error", c.backendFailure("register", err), SeverityDestructive)
		return v, err
	}

	c.metrics.Inc(MetricRegisterSuccess)
	c.notify(ctx, StepRegister, "Success", "Account created! Check your email.", SeverityDefault)
	return c.transition(ctx, gen, VerifyEmailLocation(email))
}
