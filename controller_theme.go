package authflow

import (
	"context"

	"github.com/MrEthical07/authflow/session"
	"go.uber.org/zap"
)

// Theme returns the active theme.
func (c *Controller) Theme() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.theme == "" {
		return c.cfg.Theme.Default
	}
	return c.theme
}

// ToggleTheme flips between dark and light and persists the choice. The
// flip applies even when persisting fails; the failure is notified.
func (c *Controller) ToggleTheme(ctx context.Context) (View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrControllerClosed
	}
	next := ThemeLight
	if c.theme == ThemeLight {
		next = ThemeDark
	}
	c.theme = next
	step := c.view.Step
	v := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(v)

	if err := c.store.Set(ctx, session.KeyTheme, next); err != nil {
		c.metrics.Inc(MetricStoreFailure)
		c.logger.Warn("theme preference not saved", zap.Error(err))
		c.notify(ctx, step, "Error", "Unable to save theme preference", SeverityDestructive)
		return v, err
	}
	return v, nil
}
