package authflow

import (
	"errors"
	"math/rand/v2"
	"time"

	"github.com/MrEthical07/authflow/captcha"
	"github.com/MrEthical07/authflow/session"
	"go.uber.org/zap"
)

// Builder assembles a Controller. It is single use.
type Builder struct {
	config Config

	backend  Backend
	store    session.Store
	sink     NotificationSink
	logger   *zap.Logger
	observer ViewObserver
	rng      *rand.Rand
	clock    func() time.Time

	built bool
}

// New returns a Builder holding DefaultConfig.
func New() *Builder {
	return &Builder{
		config: DefaultConfig(),
	}
}

// WithConfig replaces the whole configuration with a copy of cfg.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend sets the authentication service, usually a *gateway.Client.
func (b *Builder) WithBackend(backend Backend) *Builder {
	b.backend = backend
	return b
}

// WithSessionStore sets the durable store for the theme and the pending security session.
func (b *Builder) WithSessionStore(store session.Store) *Builder {
	b.store = store
	return b
}

// WithNotificationSink sets where outcome notifications go. Defaults to NoOpSink.
func (b *Builder) WithNotificationSink(sink NotificationSink) *Builder {
	b.sink = sink
	return b
}

// WithLogger sets the logger. Defaults to zap.NewNop.
func (b *Builder) WithLogger(logger *zap.Logger) *Builder {
	b.logger = logger
	return b
}

// WithViewObserver registers fn to receive every settled view.
func (b *Builder) WithViewObserver(fn ViewObserver) *Builder {
	b.observer = fn
	return b
}

// WithCaptchaSource makes captcha operands deterministic. Meant for tests.
func (b *Builder) WithCaptchaSource(rng *rand.Rand) *Builder {
	b.rng = rng
	return b
}

// WithClock replaces time.Now for notification timestamps.
func (b *Builder) WithClock(now func() time.Time) *Builder {
	b.clock = now
	return b
}

// WithMetricsEnabled toggles all controller counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the backend latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// WithTransitionDelay postpones step changes after a successful submit.
func (b *Builder) WithTransitionDelay(d time.Duration) *Builder {
	b.config.Flow.TransitionDelay = d
	return b
}

// Build validates the configuration and returns the controller. It performs
// no I/O; call Controller.Start to enter the first location.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}
	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.backend == nil {
		return nil, errors.New("backend required")
	}
	if b.store == nil {
		return nil, errors.New("session store required")
	}

	gen, err := captcha.NewGenerator(cfg.Captcha.Min, cfg.Captcha.Max, b.rng)
	if err != nil {
		return nil, err
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := b.clock
	if clock == nil {
		clock = time.Now
	}

	c := &Controller{
		cfg:      cfg,
		backend:  b.backend,
		store:    b.store,
		captcha:  gen,
		notifier: newNotificationDispatcher(cfg.Notifications, b.sink),
		metrics:  NewMetrics(cfg.Metrics),
		logger:   logger.Named("authflow"),
		observer: b.observer,
		now:      clock,
		view:     View{Step: StepLogin, Location: Location{Path: PathRoot}},
		inflight: make(map[Control]bool),
		timers:   make(map[uint64]*time.Timer),
	}

	b.built = true
	return c, nil
}
