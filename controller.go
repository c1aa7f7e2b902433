package authflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrEthical07/authflow/captcha"
	"github.com/MrEthical07/authflow/gateway"
	"github.com/MrEthical07/authflow/session"
	"go.uber.org/zap"
)

// ViewObserver receives every view the controller settles on, including
// those produced asynchronously by delayed transitions. Calls are made
// without holding controller locks and may interleave under concurrent use;
// Current is authoritative.
type ViewObserver func(View)

type historyMode uint8

const (
	historyPush historyMode = iota
	historyReplace
)

// Controller drives the authentication funnel. Build one with New().Build().
type Controller struct {
	cfg      Config
	backend  Backend
	store    session.Store
	captcha  *captcha.Generator
	notifier *notificationDispatcher
	metrics  *Metrics
	logger   *zap.Logger
	observer ViewObserver
	now      func() time.Time

	mu         sync.Mutex
	closed     bool
	started    bool
	theme      string
	view       View
	generation uint64
	history    []Location
	cursor     int
	inflight   map[Control]bool
	timers     map[uint64]*time.Timer
	timerSeq   uint64
	dashCancel context.CancelFunc
}

// Start loads the stored theme and enters the initial location ("" means "/").
func (c *Controller) Start(ctx context.Context, initial string) (View, error) {
	loc, err := ParseLocation(initial)
	if err != nil {
		return c.Current(), err
	}

	theme, terr := c.store.Get(ctx, session.KeyTheme)
	switch {
	case terr == nil && (theme == ThemeDark || theme == ThemeLight):
	case terr == nil, errors.Is(terr, session.ErrNotFound):
		theme = c.cfg.Theme.Default
	default:
		c.metrics.Inc(MetricStoreFailure)
		c.logger.Warn("theme preference unavailable", zap.Error(terr))
		theme = c.cfg.Theme.Default
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrControllerClosed
	}
	c.started = true
	c.theme = theme
	c.mu.Unlock()

	return c.enter(ctx, loc, historyPush, 0)
}

// Navigate moves to raw without a reload. Navigating to the current location
// returns the current view without re-running entry effects.
func (c *Controller) Navigate(ctx context.Context, raw string) (View, error) {
	loc, err := ParseLocation(raw)
	if err != nil {
		return c.Current(), err
	}
	return c.NavigateTo(ctx, loc)
}

// NavigateTo is Navigate for an already parsed location.
func (c *Controller) NavigateTo(ctx context.Context, loc Location) (View, error) {
	loc = Location{Path: cleanPath(loc.Path), Query: loc.clone().Query}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrControllerClosed
	}
	if c.started && loc.Equal(c.view.Location) {
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, nil
	}
	c.started = true
	if c.theme == "" {
		c.theme = c.cfg.Theme.Default
	}
	c.mu.Unlock()

	return c.enter(ctx, loc, historyPush, 0)
}

// Back re-enters the previous history entry, resolved fresh.
func (c *Controller) Back(ctx context.Context) (View, error) {
	return c.step(ctx, -1)
}

// Forward re-enters the next history entry, resolved fresh.
func (c *Controller) Forward(ctx context.Context) (View, error) {
	return c.step(ctx, 1)
}

func (c *Controller) step(ctx context.Context, delta int) (View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrControllerClosed
	}
	next := c.cursor + delta
	if next < 0 || next >= len(c.history) {
		v := c.snapshotLocked()
		c.mu.Unlock()
		return v, nil
	}
	c.cursor = next
	loc := c.history[next].clone()
	c.mu.Unlock()

	return c.enter(ctx, loc, historyReplace, 0)
}

// Reload re-resolves the current location from scratch: a new captcha on
// Login, a fresh fetch on Dashboard, pending state re-read on VerifySecurity.
func (c *Controller) Reload(ctx context.Context) (View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrControllerClosed
	}
	loc := c.view.Location.clone()
	if !c.started {
		loc = Location{Path: PathRoot}
		c.started = true
	}
	c.mu.Unlock()

	return c.enter(ctx, loc, historyReplace, 0)
}

// Current returns a copy of the current view.
func (c *Controller) Current() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// History returns the navigation history and the index of the current entry.
func (c *Controller) History() ([]Location, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Location, len(c.history))
	for i, l := range c.history {
		out[i] = l.clone()
	}
	return out, c.cursor
}

// Close cancels pending transitions and dashboard fetches and drains queued
// notifications. Operations return ErrControllerClosed afterwards.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.closed = true
	for id, t := range c.timers {
		t.Stop()
		delete(c.timers, id)
	}
	if c.dashCancel != nil {
		c.dashCancel()
		c.dashCancel = nil
	}
	c.mu.Unlock()

	c.notifier.Close()
}

// NotificationsDropped counts notifications lost to dispatcher backpressure.
func (c *Controller) NotificationsDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.notifier.Dropped()
}

// MetricsSnapshot returns the current counters and histograms.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// enter makes loc current. A non-zero guard makes the entry conditional on
// the generation still being guard, which is how settled outcomes and delayed
// transitions are dropped once the user navigated elsewhere.
func (c *Controller) enter(ctx context.Context, loc Location, mode historyMode, guard uint64) (View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrControllerClosed
	}
	if guard != 0 && c.generation != guard {
		v := c.snapshotLocked()
		c.mu.Unlock()
		c.discardStale("transition", loc)
		return v, ErrStaleResponse
	}
	c.generation++
	gen := c.generation
	c.cancelDashboardLocked()
	c.mu.Unlock()

	res := ResolveStep(ctx, loc, c.store)
	if res.Redirected {
		loc = Location{Path: PathLogin}
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return View{}, ErrControllerClosed
	}
	if c.generation != gen {
		v := c.snapshotLocked()
		c.mu.Unlock()
		c.discardStale("navigation", loc)
		return v, ErrStaleResponse
	}
	c.recordHistoryLocked(loc, mode)
	c.view = c.viewForLocked(res, loc)
	var dashCtx context.Context
	if res.Step == StepDashboard {
		var cancel context.CancelFunc
		dashCtx, cancel = context.WithCancel(ctx)
		c.dashCancel = cancel
	}
	v := c.snapshotLocked()
	c.mu.Unlock()

	c.metrics.Inc(MetricNavigation)
	c.logger.Debug("step entered",
		zap.String("step", res.Step.String()),
		zap.String("path", loc.String()),
		zap.Uint64("generation", gen),
	)
	c.publish(v)

	if res.Redirected {
		c.metrics.Inc(MetricInvariantRedirect)
		if errors.Is(res.Cause, session.ErrUnavailable) {
			c.metrics.Inc(MetricStoreFailure)
		}
		c.logger.Warn("step precondition failed, redirected to login", zap.Error(res.Cause))
		c.notify(ctx, StepLogin, "Error", invariantMessage(res.Cause), SeverityDestructive)
		return v, res.Cause
	}
	if res.Step == StepDashboard {
		return c.loadDashboard(dashCtx, gen)
	}
	return v, nil
}

func (c *Controller) viewForLocked(res Resolution, loc Location) View {
	v := View{Step: res.Step, Location: loc}
	switch res.Step {
	case StepLogin:
		v.Login = &LoginView{Challenge: c.captcha.Generate()}
	case StepRegister:
		v.Register = &RegisterView{}
	case StepVerifyEmail:
		v.VerifyEmail = &VerifyEmailView{Email: res.Email}
	case StepVerifySecurity:
		v.VerifySecurity = &VerifySecurityView{UserEmail: res.Pending.UserEmail}
	case StepDashboard:
		v.Dashboard = &DashboardView{State: DashboardLoading}
	}
	return v
}

func (c *Controller) recordHistoryLocked(loc Location, mode historyMode) {
	if len(c.history) == 0 {
		c.history = append(c.history, loc.clone())
		c.cursor = 0
		return
	}
	if mode == historyReplace {
		c.history[c.cursor] = loc.clone()
		return
	}
	c.history = append(c.history[:c.cursor+1], loc.clone())
	if over := len(c.history) - c.cfg.Flow.HistoryLimit; over > 0 {
		c.history = slices.Delete(c.history, 0, over)
	}
	c.cursor = len(c.history) - 1
}

func (c *Controller) cancelDashboardLocked() {
	if c.dashCancel != nil {
		c.dashCancel()
		c.dashCancel = nil
	}
}

func (c *Controller) snapshotLocked() View {
	v := c.view.clone()
	v.Theme = c.theme
	for ctl, busy := range c.inflight {
		if busy {
			v.Busy[ctl] = true
		}
	}
	return v
}

// begin claims ctl for one request. The current step must be one of steps.
func (c *Controller) begin(ctl Control, steps ...AuthStep) (uint64, View, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, View{}, ErrControllerClosed
	}
	if !c.started || (len(steps) > 0 && !slices.Contains(steps, c.view.Step)) {
		v := c.snapshotLocked()
		c.mu.Unlock()
		c.logger.Debug("intent ignored for current step",
			zap.String("control", string(ctl)),
			zap.String("step", v.Step.String()),
		)
		return 0, v, ErrStepMismatch
	}
	if c.inflight[ctl] {
		v := c.snapshotLocked()
		c.mu.Unlock()
		c.metrics.Inc(MetricRequestInFlightRejected)
		return 0, v, ErrRequestInFlight
	}
	c.inflight[ctl] = true
	gen := c.generation
	v := c.snapshotLocked()
	c.mu.Unlock()

	c.publish(v)
	return gen, v, nil
}

// finish releases ctl and reports whether the outcome is still current.
func (c *Controller) finish(ctl Control, gen uint64) (View, bool) {
	c.mu.Lock()
	delete(c.inflight, ctl)
	current := !c.closed && c.generation == gen
	v := c.snapshotLocked()
	c.mu.Unlock()

	if !current {
		c.discardStale(string(ctl), v.Location)
	}
	c.publish(v)
	return v, current
}

// transition moves to loc after a successful submit, either now or after
// Flow.TransitionDelay. A navigation in between cancels it.
func (c *Controller) transition(ctx context.Context, gen uint64, loc Location) (View, error) {
	delay := c.cfg.Flow.TransitionDelay
	if delay <= 0 {
		return c.enter(ctx, loc, historyPush, gen)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return View{}, ErrControllerClosed
	}
	c.timerSeq++
	id := c.timerSeq
	c.timers[id] = time.AfterFunc(delay, func() {
		c.mu.Lock()
		delete(c.timers, id)
		closed := c.closed
		c.mu.Unlock()
		if closed {
			return
		}
		if _, err := c.enter(context.Background(), loc, historyPush, gen); err != nil &&
			!errors.Is(err, ErrStaleResponse) && !errors.Is(err, ErrControllerClosed) {
			c.logger.Warn("delayed transition failed", zap.String("path", loc.String()), zap.Error(err))
		}
	})
	return c.snapshotLocked(), nil
}

func (c *Controller) discardStale(op string, loc Location) {
	c.metrics.Inc(MetricStaleResponse)
	c.logger.Debug("stale outcome discarded", zap.String("op", op), zap.String("path", loc.String()))
}

func (c *Controller) publish(v View) {
	if c.observer != nil {
		c.observer(v)
	}
}

func (c *Controller) notify(ctx context.Context, step AuthStep, title, description string, severity Severity) {
	if ctx == nil {
		ctx = context.Background()
	}
	c.notifier.Emit(context.WithoutCancel(ctx), Notification{
		Title:       title,
		Description: description,
		Severity:    severity,
		At:          c.now(),
		TTL:         c.cfg.Notifications.TTL,
		Step:        step.String(),
	})
}

// backendFailure logs err and returns the user-visible description.
func (c *Controller) backendFailure(op string, err error) string {
	be, ok := gateway.AsBackendError(err)
	if !ok {
		c.logger.Warn("backend call failed", zap.String("op", op), zap.Error(err))
		return gateway.DefaultErrorMessage
	}
	c.logger.Info("backend rejected request",
		zap.String("op", op),
		zap.Int("status", be.Status),
		zap.String("request_id", be.RequestID),
		zap.String("message", be.Message),
	)
	msg := be.Message
	if msg == "" {
		msg = gateway.DefaultErrorMessage
	}
	if be.Blocked() && !be.BlockedUntil.IsZero() {
		msg = fmt.Sprintf("%s (blocked until %s UTC)", msg, be.BlockedUntil.UTC().Format(time.DateTime))
	}
	return msg
}

func invariantMessage(err error) string {
	switch {
	case errors.Is(err, ErrEmailNotProvided):
		return "Email not provided"
	case errors.Is(err, ErrSecuritySessionNotFound):
		return "Security session not found"
	default:
		return "Invalid step"
	}
}
