// Package steam is the public facade of the bridge. A Client owns one
// backend (native or mock), the callback tracker, and the feature managers,
// and exposes the whole surface behind a single initialization guard.
package steam

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/steambridge/steambridge/internal/achievements"
	"github.com/steambridge/steambridge/internal/callbacks"
	"github.com/steambridge/steambridge/internal/config"
	"github.com/steambridge/steambridge/internal/metrics"
	"github.com/steambridge/steambridge/internal/mock"
	"github.com/steambridge/steambridge/internal/native"
	"github.com/steambridge/steambridge/internal/stats"
	"github.com/steambridge/steambridge/pkg/errors"
	"github.com/steambridge/steambridge/pkg/retry"
	"github.com/steambridge/steambridge/pkg/types"
	"github.com/steambridge/steambridge/pkg/utils"
)

// Observer receives instrumentation events from the client, its backend and
// the request tracker. The metrics collector satisfies it; a nil observer
// disables reporting.
type Observer interface {
	native.Observer
	callbacks.Observer
	SetInitialized(backend string, up bool)
}

// Options carries the client's dependencies. Everything is optional except
// the configuration; nil dependencies get working defaults.
type Options struct {
	Config   *config.Configuration
	Logger   *utils.Logger
	Observer Observer

	// Backend overrides backend selection entirely. Intended for tests.
	Backend types.Backend
}

// Client is the entry point. Construct one with New, call Init, use the
// feature managers, and Shutdown when done. All methods are safe for
// concurrent use.
type Client struct {
	mu  sync.Mutex
	cfg *config.Configuration
	log *utils.Logger
	obs Observer

	backend     types.Backend
	tracker     *callbacks.Tracker
	achievement *achievements.Manager
	stat        *stats.Manager

	// collector is owned by the client when the configuration enables
	// metrics and no observer was supplied; its endpoint runs between
	// Init and Shutdown.
	collector *metrics.Collector

	override    types.Backend
	initialized atomic.Bool
}

// New builds an uninitialized client from the given options. When the
// configuration enables metrics and no observer is supplied, the client owns
// a Prometheus collector and serves its endpoint while initialized.
func New(opts Options) (*Client, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.NewDefault()
	}

	log := opts.Logger
	if log == nil {
		log = defaultLogger(cfg)
	}

	c := &Client{
		cfg:      cfg,
		log:      log.WithComponent("steam"),
		obs:      opts.Observer,
		override: opts.Backend,
	}

	if c.obs == nil && cfg.Global.MetricsEnabled {
		collector, err := metrics.NewCollector(&metrics.Config{
			Enabled:   true,
			Port:      cfg.Global.MetricsPort,
			Path:      "/metrics",
			Namespace: "steambridge",
		})
		if err != nil {
			return nil, err
		}
		c.collector = collector
		c.obs = collector
	}
	return c, nil
}

// Default builds a client from the environment alone: defaults, then
// STEAMBRIDGE_* variables and the SteamAppId convention.
func Default() (*Client, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, err
	}
	return New(Options{Config: cfg})
}

func defaultLogger(cfg *config.Configuration) *utils.Logger {
	lc := utils.DefaultLoggerConfig()
	if level, err := utils.ParseLogLevel(cfg.Global.LogLevel); err == nil {
		lc.Level = level
	}
	if format, err := utils.ParseLogFormat(cfg.Global.LogFormat); err == nil {
		lc.Format = format
	}
	return utils.NewLogger(lc)
}

// Init selects a backend, brings it up, and wires the feature managers.
// Calling Init on an initialized client is an error; a failed Init leaves
// the client reusable.
func (c *Client) Init(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized.Load() {
		return errors.NewError(errors.ErrCodeAlreadyInitialized, "client already initialized").
			WithComponent("steam")
	}

	backend, err := c.selectBackend()
	if err != nil {
		return err
	}

	if err := c.initBackend(ctx, backend); err != nil {
		if c.override == nil && backend.Name() == native.BackendName && c.cfg.Mock.FallbackToMock {
			c.log.Warn("native backend unavailable, falling back to mock", map[string]interface{}{
				"error": err.Error(),
			})
			backend = c.newMock()
			if err := backend.Init(c.cfg.Steam.AppID); err != nil {
				return err
			}
		} else {
			return err
		}
	}

	var trackerObs callbacks.Observer
	if c.obs != nil {
		trackerObs = c.obs
	}
	c.backend = backend
	c.tracker = callbacks.New(backend, c.log, callbacks.Config{
		PollInterval: c.cfg.Polling.PollInterval,
		PollTimeout:  c.cfg.Polling.PollTimeout,
		SettlePumps:  c.cfg.Polling.SettlePumps,
		Observer:     trackerObs,
	})
	ready := c.initialized.Load
	c.achievement = achievements.New(backend, c.tracker, c.log, ready)
	c.stat = stats.New(backend, c.tracker, c.log, ready)
	c.initialized.Store(true)

	if c.collector != nil {
		if err := c.collector.Start(ctx); err != nil {
			c.log.Warn("metrics endpoint failed to start", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	if c.obs != nil {
		c.obs.SetInitialized(backend.Name(), true)
	}
	c.log.Info("client initialized", map[string]interface{}{
		"backend": backend.Name(),
		"app_id":  backend.AppID(),
	})

	select {
	case <-ctx.Done():
		c.shutdownLocked()
		return ctx.Err()
	default:
	}
	return nil
}

// initBackend brings a backend up, retrying the transient failure modes. A
// Steam client that is still starting reports STEAM_NOT_RUNNING for a few
// seconds; a short backoff covers that window without masking fatal
// environment errors, which abort on the first attempt.
func (c *Client) initBackend(ctx context.Context, backend types.Backend) error {
	retryer := retry.New(retry.Config{
		Multiplier: 2.0,
		Jitter:     true,
		RetryableErrors: []errors.ErrorCode{
			errors.ErrCodeSteamNotRunning,
			errors.ErrCodeNotAvailable,
		},
		OnRetry: func(attempt int, err error, delay time.Duration) {
			c.log.Warn("backend init failed, retrying", map[string]interface{}{
				"attempt": attempt,
				"delay":   delay.String(),
				"error":   err.Error(),
			})
		},
	}).WithMaxAttempts(3).WithInitialDelay(250 * time.Millisecond)

	return retryer.DoWithContext(ctx, func(context.Context) error {
		return backend.Init(c.cfg.Steam.AppID)
	})
}

func (c *Client) selectBackend() (types.Backend, error) {
	if c.override != nil {
		return c.override, nil
	}
	if c.cfg.Mock.Enabled {
		return c.newMock(), nil
	}
	if c.cfg.Steam.AppID == 0 {
		return nil, errors.NewError(errors.ErrCodeMissingAppID,
			"no application id configured; set steam.app_id or SteamAppId").
			WithComponent("steam")
	}
	var obs native.Observer
	if c.obs != nil {
		obs = c.obs
	}
	return native.New(native.Options{
		SDKRoot:     expandedPath(c.cfg.Steam.SDKRoot),
		LibraryPath: expandedPath(c.cfg.Steam.LibraryPath),
		MarkerDir:   expandedPath(c.cfg.Steam.MarkerDir),
		Logger:      c.log,
		Observer:    obs,
	}), nil
}

func (c *Client) newMock() types.Backend {
	return mock.New(mock.Options{
		StatePath: expandedPath(c.cfg.Mock.StatePath),
		Logger:    c.log,
	})
}

// expandedPath resolves "~" and relative segments in a configured path.
// Paths that fail to expand pass through unchanged so the consumer reports
// the real failure.
func expandedPath(path string) string {
	if path == "" {
		return ""
	}
	if abs, err := utils.ExpandPath(path); err == nil {
		return abs
	}
	return path
}

// Shutdown tears the backend down. Safe to call multiple times and on an
// uninitialized client.
func (c *Client) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shutdownLocked()
}

func (c *Client) shutdownLocked() {
	if !c.initialized.Load() {
		return
	}
	name := c.backend.Name()
	c.initialized.Store(false)
	c.backend.Shutdown()
	if c.collector != nil {
		if err := c.collector.Stop(context.Background()); err != nil {
			c.log.Warn("metrics endpoint failed to stop", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}
	if c.obs != nil {
		c.obs.SetInitialized(name, false)
	}
	c.log.Info("client shut down", map[string]interface{}{"backend": name})
}

// Initialized reports whether Init has completed successfully.
func (c *Client) Initialized() bool {
	return c.initialized.Load()
}

// Status reports the current session.
func (c *Client) Status() types.Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized.Load() {
		return types.Status{}
	}
	return types.Status{
		Initialized: true,
		AppID:       c.backend.AppID(),
		SteamID:     c.backend.SteamID(),
		PersonaName: c.backend.PersonaName(),
		Backend:     c.backend.Name(),
	}
}

// RunCallbacks pumps the backend's callback queue once. Call it from the
// application's frame loop when not relying on the tracker alone.
func (c *Client) RunCallbacks() {
	if !c.initialized.Load() {
		return
	}
	c.backend.RunCallbacks()
}

// Settle pumps the callback queue a few rounds, giving handle-less
// callbacks a chance to land.
func (c *Client) Settle(ctx context.Context) error {
	if !c.initialized.Load() {
		return errors.NewError(errors.ErrCodeNotInitialized, "client not initialized").
			WithComponent("steam")
	}
	return c.tracker.Settle(ctx)
}

// Achievements returns the achievements manager. Before Init it returns a
// guard-only manager whose operations fail with NOT_INITIALIZED; fetch the
// manager after Init (or per call) for live operations.
func (c *Client) Achievements() *achievements.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.achievement == nil {
		return achievements.New(nil, nil, c.log, func() bool { return false })
	}
	return c.achievement
}

// Stats returns the stats manager, with the same pre-Init behavior as
// Achievements.
func (c *Client) Stats() *stats.Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stat == nil {
		return stats.New(nil, nil, c.log, func() bool { return false })
	}
	return c.stat
}
