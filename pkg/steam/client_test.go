package steam

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steambridge/steambridge/internal/config"
	"github.com/steambridge/steambridge/internal/metrics"
	"github.com/steambridge/steambridge/internal/mock"
	"github.com/steambridge/steambridge/pkg/errors"
	"github.com/steambridge/steambridge/pkg/types"
)

func mockConfig() *config.Configuration {
	cfg := config.NewDefault()
	cfg.Steam.AppID = 480
	cfg.Mock.Enabled = true
	cfg.Polling.PollInterval = time.Millisecond
	cfg.Polling.PollTimeout = 100 * time.Millisecond
	return cfg
}

// recordingObserver captures instrumentation events for assertions.
type recordingObserver struct {
	mu       sync.Mutex
	calls    []string
	outcomes []string
	pumps    int
	pending  int
	backend  string
	up       bool
}

func (o *recordingObserver) RecordNativeCall(function string, _ time.Duration, _ bool) {
	o.mu.Lock()
	o.calls = append(o.calls, function)
	o.mu.Unlock()
}

func (o *recordingObserver) RecordPump() {
	o.mu.Lock()
	o.pumps++
	o.mu.Unlock()
}

func (o *recordingObserver) RecordRequest(outcome string) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func (o *recordingObserver) UpdatePendingRequests(count int) {
	o.mu.Lock()
	o.pending = count
	o.mu.Unlock()
}

func (o *recordingObserver) SetInitialized(backend string, up bool) {
	o.mu.Lock()
	o.backend = backend
	o.up = up
	o.mu.Unlock()
}

func TestAchievementLifecycle(t *testing.T) {
	t.Parallel()

	client, err := New(Options{Config: mockConfig()})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, client.Init(ctx))

	records, err := client.Achievements().List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	target := records[0].APIName

	unlocked, err := client.Achievements().IsUnlocked(target)
	require.NoError(t, err)
	assert.False(t, unlocked)

	require.NoError(t, client.Achievements().Unlock(ctx, target))
	unlocked, err = client.Achievements().IsUnlocked(target)
	require.NoError(t, err)
	assert.True(t, unlocked)

	require.NoError(t, client.Achievements().Clear(ctx, target))
	unlocked, err = client.Achievements().IsUnlocked(target)
	require.NoError(t, err)
	assert.False(t, unlocked)

	client.Shutdown()
	client.Shutdown() // second shutdown is a no-op

	_, err = client.Achievements().IsUnlocked(target)
	var bridgeErr *errors.BridgeError
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, errors.ErrCodeNotInitialized, bridgeErr.Code)
}

func TestGuardBeforeInit(t *testing.T) {
	t.Parallel()

	client, err := New(Options{Config: mockConfig()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = client.Achievements().List(ctx)
	assert.Error(t, err)
	_, err = client.Stats().GetInt("NumWins")
	assert.Error(t, err)
	assert.Error(t, client.Settle(ctx))
	assert.False(t, client.Initialized())
	assert.Equal(t, "", client.Status().Backend)

	client.RunCallbacks() // must not panic
}

func TestDoubleInit(t *testing.T) {
	t.Parallel()

	client, err := New(Options{Config: mockConfig()})
	require.NoError(t, err)
	defer client.Shutdown()

	require.NoError(t, client.Init(context.Background()))
	err = client.Init(context.Background())
	var bridgeErr *errors.BridgeError
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, errors.ErrCodeAlreadyInitialized, bridgeErr.Code)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	client, err := New(Options{Config: mockConfig()})
	require.NoError(t, err)
	defer client.Shutdown()
	require.NoError(t, client.Init(context.Background()))

	status := client.Status()
	assert.True(t, status.Initialized)
	assert.Equal(t, uint32(480), status.AppID)
	assert.Equal(t, mock.BackendName, status.Backend)
	assert.NotZero(t, status.SteamID)
	assert.NotEmpty(t, status.PersonaName)
}

func TestStatsThroughFacade(t *testing.T) {
	t.Parallel()

	client, err := New(Options{Config: mockConfig()})
	require.NoError(t, err)
	defer client.Shutdown()
	ctx := context.Background()
	require.NoError(t, client.Init(ctx))

	require.NoError(t, client.Stats().SetInt(ctx, "NumWins", 2))
	v, err := client.Stats().GetInt("NumWins")
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)

	count, err := client.Stats().CurrentPlayers(ctx)
	require.NoError(t, err)
	assert.Positive(t, count.Players)
}

func TestObserverSeesLifecycle(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	client, err := New(Options{Config: mockConfig(), Observer: obs})
	require.NoError(t, err)

	require.NoError(t, client.Init(context.Background()))
	obs.mu.Lock()
	assert.Equal(t, mock.BackendName, obs.backend)
	assert.True(t, obs.up)
	obs.mu.Unlock()

	count, err := client.Stats().CurrentPlayers(context.Background())
	require.NoError(t, err)
	assert.Positive(t, count.Players)
	obs.mu.Lock()
	assert.Contains(t, obs.outcomes, "completed")
	obs.mu.Unlock()

	client.Shutdown()
	obs.mu.Lock()
	assert.False(t, obs.up)
	obs.mu.Unlock()
}

func TestMetricsCollectorAsObserver(t *testing.T) {
	t.Parallel()

	collector, err := metrics.NewCollector(&metrics.Config{Enabled: true, Namespace: "test"})
	require.NoError(t, err)

	client, err := New(Options{Config: mockConfig(), Observer: collector})
	require.NoError(t, err)
	defer client.Shutdown()
	ctx := context.Background()

	require.NoError(t, client.Init(ctx))
	_, err = client.Stats().CurrentPlayers(ctx)
	require.NoError(t, err)
}

func TestBackendOverride(t *testing.T) {
	t.Parallel()

	backend := mock.New(mock.Options{})
	cfg := config.NewDefault()
	cfg.Steam.AppID = 480
	client, err := New(Options{Config: cfg, Backend: backend})
	require.NoError(t, err)
	defer client.Shutdown()

	require.NoError(t, client.Init(context.Background()))
	assert.Equal(t, mock.BackendName, client.Status().Backend)
}

func TestMissingAppIDWithoutMock(t *testing.T) {
	t.Parallel()

	cfg := config.NewDefault()
	cfg.Mock.Enabled = false
	cfg.Mock.FallbackToMock = false
	client, err := New(Options{Config: cfg})
	require.NoError(t, err)

	err = client.Init(context.Background())
	var bridgeErr *errors.BridgeError
	require.ErrorAs(t, err, &bridgeErr)
	assert.Equal(t, errors.ErrCodeMissingAppID, bridgeErr.Code)
}

func TestNativeFallsBackToMock(t *testing.T) {
	// Not parallel: native init writes the app-id environment variables.
	dir := t.TempDir()

	cfg := config.NewDefault()
	cfg.Steam.AppID = 480
	cfg.Steam.SDKRoot = filepath.Join(dir, "sdk") // no redistributables here
	cfg.Steam.MarkerDir = dir
	cfg.Mock.FallbackToMock = true

	client, err := New(Options{Config: cfg})
	require.NoError(t, err)
	defer client.Shutdown()

	require.NoError(t, client.Init(context.Background()))
	assert.Equal(t, mock.BackendName, client.Status().Backend)
}

func TestNativeFailureSurfacesWithoutFallback(t *testing.T) {
	// Not parallel: native init writes the app-id environment variables.
	dir := t.TempDir()

	cfg := config.NewDefault()
	cfg.Steam.AppID = 480
	cfg.Steam.SDKRoot = filepath.Join(dir, "sdk")
	cfg.Steam.MarkerDir = dir
	cfg.Mock.FallbackToMock = false

	client, err := New(Options{Config: cfg})
	require.NoError(t, err)

	assert.Error(t, client.Init(context.Background()))
	assert.False(t, client.Initialized())
}

// failingBackend fails Init with a fixed error code a configurable number of
// times before delegating to the wrapped backend.
type failingBackend struct {
	types.Backend
	code     errors.ErrorCode
	failures int
	attempts int
}

func (f *failingBackend) Init(appID uint32) error {
	f.attempts++
	if f.attempts <= f.failures {
		return errors.NewError(f.code, "backend init failed")
	}
	return f.Backend.Init(appID)
}

func TestInitRetriesTransientBackendFailure(t *testing.T) {
	t.Parallel()

	backend := &failingBackend{
		Backend:  mock.New(mock.Options{}),
		code:     errors.ErrCodeSteamNotRunning,
		failures: 2,
	}
	client, err := New(Options{Config: mockConfig(), Backend: backend})
	require.NoError(t, err)
	defer client.Shutdown()

	require.NoError(t, client.Init(context.Background()))
	assert.Equal(t, 3, backend.attempts)
	assert.True(t, client.Initialized())
}

func TestInitDoesNotRetryFatalFailure(t *testing.T) {
	t.Parallel()

	backend := &failingBackend{
		Backend:  mock.New(mock.Options{}),
		code:     errors.ErrCodeLibraryNotFound,
		failures: 10,
	}
	client, err := New(Options{Config: mockConfig(), Backend: backend})
	require.NoError(t, err)

	require.Error(t, client.Init(context.Background()))
	assert.Equal(t, 1, backend.attempts)
}

func TestMetricsCollectorWiredFromConfig(t *testing.T) {
	t.Parallel()

	cfg := mockConfig()
	cfg.Global.MetricsEnabled = true
	cfg.Global.MetricsPort = 0 // ephemeral port; only the wiring is asserted here

	client, err := New(Options{Config: cfg})
	require.NoError(t, err)
	require.NotNil(t, client.collector)

	ctx := context.Background()
	require.NoError(t, client.Init(ctx))
	_, err = client.Stats().CurrentPlayers(ctx)
	require.NoError(t, err)
	client.Shutdown()

	// A caller-supplied observer takes precedence over the owned collector.
	withObs, err := New(Options{Config: cfg, Observer: &recordingObserver{}})
	require.NoError(t, err)
	assert.Nil(t, withObs.collector)
}

func TestMockStatePathExpandsTilde(t *testing.T) {
	// Not parallel: overrides HOME.
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg := mockConfig()
	cfg.Mock.StatePath = "~/steambridge/state.db"
	ctx := context.Background()

	client, err := New(Options{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, client.Init(ctx))
	require.NoError(t, client.Achievements().Unlock(ctx, "ACH_WIN_ONE_GAME"))
	client.Shutdown()

	_, statErr := os.Stat(filepath.Join(home, "steambridge", "state.db"))
	assert.NoError(t, statErr)
}

func TestMockStatePersistsAcrossClients(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "mock.db")
	cfg := mockConfig()
	cfg.Mock.StatePath = statePath
	ctx := context.Background()

	client, err := New(Options{Config: cfg})
	require.NoError(t, err)
	require.NoError(t, client.Init(ctx))
	require.NoError(t, client.Achievements().Unlock(ctx, "ACH_WIN_ONE_GAME"))
	client.Shutdown()

	cfg2 := mockConfig()
	cfg2.Mock.StatePath = statePath
	reopened, err := New(Options{Config: cfg2})
	require.NoError(t, err)
	require.NoError(t, reopened.Init(ctx))
	defer reopened.Shutdown()

	unlocked, err := reopened.Achievements().IsUnlocked("ACH_WIN_ONE_GAME")
	require.NoError(t, err)
	assert.True(t, unlocked)
}
