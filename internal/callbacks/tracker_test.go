package callbacks

import (
	"context"
	stderr "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steambridge/steambridge/pkg/errors"
	"github.com/steambridge/steambridge/pkg/types"
)

// fakeSource completes calls after a configurable number of pumps.
type fakeSource struct {
	mu         sync.Mutex
	pumps      int
	completeAt map[types.APICall]int
	failing    map[types.APICall]bool
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		completeAt: make(map[types.APICall]int),
		failing:    make(map[types.APICall]bool),
	}
}

func (f *fakeSource) RunCallbacks() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pumps++
}

func (f *fakeSource) CallCompleted(call types.APICall) (bool, bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	at, known := f.completeAt[call]
	if !known {
		return false, false, false
	}
	if f.pumps >= at {
		return true, f.failing[call], true
	}
	return false, false, true
}

func fastConfig() Config {
	return Config{
		PollInterval: time.Millisecond,
		PollTimeout:  200 * time.Millisecond,
		SettlePumps:  2,
	}
}

func TestWaitResolvesOnCompletion(t *testing.T) {
	src := newFakeSource()
	src.completeAt[types.APICall(7)] = 3

	tr := New(src, nil, fastConfig())
	req := tr.Track(types.APICall(7))

	require.NoError(t, tr.Wait(context.Background(), req))
	assert.NoError(t, req.Err())
	assert.Equal(t, 0, tr.Pending())
	assert.GreaterOrEqual(t, src.pumps, 3, "the wait must drive the pump")
}

func TestWaitReportsBackendFailure(t *testing.T) {
	src := newFakeSource()
	src.completeAt[types.APICall(8)] = 1
	src.failing[types.APICall(8)] = true

	tr := New(src, nil, fastConfig())
	req := tr.Track(types.APICall(8))

	err := tr.Wait(context.Background(), req)
	require.Error(t, err)

	var bridgeErr *errors.BridgeError
	require.True(t, stderr.As(err, &bridgeErr))
	assert.Equal(t, errors.ErrCodeCallFailed, bridgeErr.Code)
}

func TestWaitEvictsTimedOutRequest(t *testing.T) {
	src := newFakeSource()
	src.completeAt[types.APICall(9)] = 1 << 30 // effectively never

	tr := New(src, nil, fastConfig())
	req := tr.Track(types.APICall(9))

	err := tr.Wait(context.Background(), req)
	require.Error(t, err)

	var bridgeErr *errors.BridgeError
	require.True(t, stderr.As(err, &bridgeErr))
	assert.Equal(t, errors.ErrCodeCallTimeout, bridgeErr.Code)
	assert.Equal(t, req.ID(), bridgeErr.RequestID)

	// An abandoned request must not stay in the table.
	assert.Equal(t, 0, tr.Pending())
}

func TestRepeatedTimeoutsDoNotGrowTable(t *testing.T) {
	src := newFakeSource()
	cfg := fastConfig()
	cfg.PollTimeout = 3 * time.Millisecond
	tr := New(src, nil, cfg)

	for i := 0; i < 50; i++ {
		call := types.APICall(100 + i)
		src.completeAt[call] = 1 << 30
		require.Error(t, tr.Wait(context.Background(), tr.Track(call)))
	}
	assert.Equal(t, 0, tr.Pending())
}

func TestWaitEvictsCanceledRequest(t *testing.T) {
	src := newFakeSource()
	src.completeAt[types.APICall(12)] = 1 << 30

	tr := New(src, nil, fastConfig())
	req := tr.Track(types.APICall(12))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.Error(t, tr.Wait(ctx, req))
	assert.Equal(t, 0, tr.Pending())
}

func TestTrackInvalidCallResolvesImmediately(t *testing.T) {
	tr := New(newFakeSource(), nil, fastConfig())
	req := tr.Track(types.InvalidAPICall)

	select {
	case <-req.Done():
	default:
		t.Fatal("invalid call should resolve immediately")
	}

	var bridgeErr *errors.BridgeError
	require.True(t, stderr.As(req.Err(), &bridgeErr))
	assert.Equal(t, errors.ErrCodeCallFailed, bridgeErr.Code)
	assert.Equal(t, 0, tr.Pending())
}

func TestErrBeforeResolution(t *testing.T) {
	src := newFakeSource()
	src.completeAt[types.APICall(10)] = 1 << 30

	tr := New(src, nil, fastConfig())
	req := tr.Track(types.APICall(10))

	var bridgeErr *errors.BridgeError
	require.True(t, stderr.As(req.Err(), &bridgeErr))
	assert.Equal(t, errors.ErrCodeNotAvailable, bridgeErr.Code)
}

func TestSettlePumpsFixedRounds(t *testing.T) {
	src := newFakeSource()
	tr := New(src, nil, fastConfig())

	require.NoError(t, tr.Settle(context.Background()))
	assert.Equal(t, 2, src.pumps)
}

func TestSettleHonorsContext(t *testing.T) {
	src := newFakeSource()
	cfg := fastConfig()
	cfg.PollInterval = 50 * time.Millisecond
	tr := New(src, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := tr.Settle(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "canceled")
}

func TestWaitResolvesOtherPendingRequests(t *testing.T) {
	src := newFakeSource()
	src.completeAt[types.APICall(1)] = 1
	src.completeAt[types.APICall(2)] = 1

	tr := New(src, nil, fastConfig())
	first := tr.Track(types.APICall(1))
	second := tr.Track(types.APICall(2))

	require.NoError(t, tr.Wait(context.Background(), first))

	// The sweep resolves everything it observes, not just the waited one.
	select {
	case <-second.Done():
		assert.NoError(t, second.Err())
	default:
		t.Fatal("second request should have been swept")
	}
}

// countingObserver records outcomes and the last pending-table size.
type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
	pending  int
}

func (o *countingObserver) RecordRequest(outcome string) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func (o *countingObserver) UpdatePendingRequests(count int) {
	o.mu.Lock()
	o.pending = count
	o.mu.Unlock()
}

func TestObserverSeesOutcomes(t *testing.T) {
	obs := &countingObserver{}
	src := newFakeSource()
	src.completeAt[types.APICall(1)] = 1
	src.completeAt[types.APICall(2)] = 1
	src.failing[types.APICall(2)] = true

	cfg := fastConfig()
	cfg.Observer = obs
	tr := New(src, nil, cfg)

	require.NoError(t, tr.Wait(context.Background(), tr.Track(types.APICall(1))))
	assert.Error(t, tr.Wait(context.Background(), tr.Track(types.APICall(2))))
	tr.Track(types.InvalidAPICall)

	obs.mu.Lock()
	defer obs.mu.Unlock()
	assert.Contains(t, obs.outcomes, OutcomeCompleted)
	assert.Contains(t, obs.outcomes, OutcomeFailed)
	assert.Contains(t, obs.outcomes, OutcomeRejected)
	assert.Equal(t, 0, obs.pending)
}
