package authflow

import (
	"context"

	"github.com/MrEthical07/authflow/gateway"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// loadDashboard fetches the user and the access logs concurrently. Both must
// succeed; otherwise the dashboard enters its failed state and stays there
// until the user navigates.
func (c *Controller) loadDashboard(ctx context.Context, gen uint64) (View, error) {
	var (
		user *gateway.User
		logs []gateway.AccessLogEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		u, err := timed(c, func() (*gateway.User, error) { return c.backend.CurrentUser(gctx) })
		user = u
		return err
	})
	g.Go(func() error {
		l, err := timed(c, func() ([]gateway.AccessLogEntry, error) { return c.backend.AccessLogs(gctx) })
		logs = l
		return err
	})
	err := g.Wait()
	if err == nil && user == nil {
		err = &gateway.BackendError{Op: "me", Status: 200, Message: "Invalid response from server"}
	}

	c.mu.Lock()
	if c.closed || c.generation != gen {
		v := c.snapshotLocked()
		c.mu.Unlock()
		c.discardStale("dashboard", v.Location)
		return v, ErrStaleResponse
	}
	c.cancelDashboardLocked()
	if err != nil {
		c.view.Dashboard = &DashboardView{State: DashboardFailed, Err: err}
	} else {
		c.view.Dashboard = &DashboardView{State: DashboardLoaded, User: user, Logs: logs}
	}
	v := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(v)

	if err != nil {
		c.metrics.Inc(MetricDashboardFailed)
		c.backendFailure("dashboard", err)
		c.notify(ctx, StepDashboard, "Error", "Failed to load dashboard data", SeverityDestructive)
		return v, err
	}
	c.metrics.Inc(MetricDashboardLoaded)
	c.logger.Debug("dashboard loaded", zap.Int("logs", len(logs)))
	return v, nil
}

// Logout ends the session on the service, clears every locally held session
// artifact and lands on Login whatever the backend answered. A backend
// failure is notified and returned alongside the Login view.
func (c *Controller) Logout(ctx context.Context) (View, error) {
	_, view, err := c.begin(ControlLogout)
	if err != nil {
		return view, err
	}

	_, lerr := timed(c, func() (*gateway.MessageResponse, error) {
		return c.backend.Logout(ctx)
	})

	local := context.WithoutCancel(ctx)
	c.mu.Lock()
	delete(c.inflight, ControlLogout)
	cerr := clearPendingSecurity(local, c.store)
	c.mu.Unlock()
	if r, ok := c.backend.(sessionResetter); ok {
		r.ResetSession()
	}
	if cerr != nil {
		c.metrics.Inc(MetricStoreFailure)
		c.logger.Error("pending security session not cleared on logout", zap.Error(cerr))
	}

	v, err := c.enter(local, Location{Path: PathLogin}, historyPush, 0)
	if err != nil && lerr == nil {
		return v, err
	}

	if lerr != nil {
		c.metrics.Inc(MetricLogoutFailure)
		c.notify(ctx, StepLogin, "Error", c.backendFailure("logout", lerr), SeverityDestructive)
		return v, lerr
	}
	c.metrics.Inc(MetricLogout)
	c.notify(ctx, StepLogin, "Success", "Logged out successfully", SeverityDefault)
	return v, nil
}
