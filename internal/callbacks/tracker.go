// Package callbacks turns the SDK's fire-and-forget request convention into
// bounded waits. Requests are tracked in a pending table keyed by their
// native call handle; the table is drained by pumping the callback queue and
// asking the backend which calls have completed.
package callbacks

import (
	"context"
	stderr "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/steambridge/steambridge/pkg/errors"
	"github.com/steambridge/steambridge/pkg/retry"
	"github.com/steambridge/steambridge/pkg/types"
	"github.com/steambridge/steambridge/pkg/utils"
)

// Source is the slice of the backend the tracker needs: a pump and a
// completion probe.
type Source interface {
	RunCallbacks()
	CallCompleted(call types.APICall) (completed bool, failed bool, ok bool)
}

// Request is one tracked asynchronous call. Done is closed when the backend
// answers; Err reports how it resolved.
type Request struct {
	id     string
	call   types.APICall
	issued time.Time

	done chan struct{}
	err  error
	once sync.Once
}

// ID returns the request's correlation id, used in logs and error context.
func (r *Request) ID() string { return r.id }

// Call returns the native call handle.
func (r *Request) Call() types.APICall { return r.call }

// Done is closed once the request resolves.
func (r *Request) Done() <-chan struct{} { return r.done }

// Err reports the outcome after Done is closed; nil means the answer
// arrived successfully.
func (r *Request) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return errors.NewError(errors.ErrCodeNotAvailable, "request still pending").
			WithComponent("callbacks").
			WithRequestID(r.id)
	}
}

func (r *Request) resolve(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Request outcomes reported to the observer.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeTimeout   = "timeout"
	OutcomeRejected  = "rejected"
)

// Observer receives tracker instrumentation. A nil observer disables it.
type Observer interface {
	RecordRequest(outcome string)
	UpdatePendingRequests(count int)
}

// Config tunes the settle cycle.
type Config struct {
	// PollInterval is the delay between pump iterations.
	PollInterval time.Duration

	// PollTimeout bounds a single Wait. The backend exposes no blocking
	// wait primitive, so this ceiling is all that stands between a slow
	// backend and an eternal loop.
	PollTimeout time.Duration

	// SettlePumps is how many pump+delay rounds a plain Settle performs
	// for results that arrive without a call handle.
	SettlePumps int

	Observer Observer
}

// DefaultConfig returns the settle tuning used when the caller does not
// override it.
func DefaultConfig() Config {
	return Config{
		PollInterval: 100 * time.Millisecond,
		PollTimeout:  3 * time.Second,
		SettlePumps:  2,
	}
}

// Tracker is the pending-request table.
type Tracker struct {
	mu      sync.Mutex
	src     Source
	log     *utils.Logger
	cfg     Config
	obs     Observer
	pending map[types.APICall]*Request
}

// New creates a tracker over the given source.
func New(src Source, log *utils.Logger, cfg Config) *Tracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = DefaultConfig().PollTimeout
	}
	if cfg.SettlePumps <= 0 {
		cfg.SettlePumps = DefaultConfig().SettlePumps
	}
	if log == nil {
		log = utils.NewLogger(nil)
	}
	return &Tracker{
		src:     src,
		log:     log.WithComponent("callbacks"),
		cfg:     cfg,
		obs:     cfg.Observer,
		pending: make(map[types.APICall]*Request),
	}
}

func (t *Tracker) observe(outcome string) {
	if t.obs != nil {
		t.obs.RecordRequest(outcome)
	}
}

// reportPendingLocked pushes the table size to the observer. Callers hold mu.
func (t *Tracker) reportPendingLocked() {
	if t.obs != nil {
		t.obs.UpdatePendingRequests(len(t.pending))
	}
}

// Track registers a just-issued call in the pending table.
func (t *Tracker) Track(call types.APICall) *Request {
	req := &Request{
		id:     uuid.NewString(),
		call:   call,
		issued: time.Now(),
		done:   make(chan struct{}),
	}

	if call == types.InvalidAPICall {
		req.resolve(errors.NewError(errors.ErrCodeCallFailed, "request was not issued").
			WithComponent("callbacks").
			WithRequestID(req.id))
		t.observe(OutcomeRejected)
		return req
	}

	t.mu.Lock()
	t.pending[call] = req
	t.reportPendingLocked()
	t.mu.Unlock()

	t.log.Debug("tracking request", map[string]interface{}{
		"request_id": req.id,
		"call":       uint64(call),
	})
	return req
}

// Pending reports the number of unresolved requests.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Forget drops a request from the table without resolving it. Wait calls it
// for abandoned requests; callers holding a Request they will never wait on
// again should do the same.
func (t *Tracker) Forget(req *Request) {
	t.mu.Lock()
	delete(t.pending, req.call)
	t.reportPendingLocked()
	t.mu.Unlock()
}

// sweep resolves every pending request the backend reports complete.
func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for call, req := range t.pending {
		completed, failed, ok := t.src.CallCompleted(call)
		if !ok || !completed {
			continue
		}
		delete(t.pending, call)

		if failed {
			req.resolve(errors.NewError(errors.ErrCodeCallFailed, "backend reported the call failed").
				WithComponent("callbacks").
				WithRequestID(req.id))
			t.observe(OutcomeFailed)
		} else {
			req.resolve(nil)
			t.observe(OutcomeCompleted)
		}
		t.log.Debug("request resolved", map[string]interface{}{
			"request_id": req.id,
			"failed":     failed,
			"elapsed":    time.Since(req.issued).String(),
		})
	}
	t.reportPendingLocked()
}

// Wait pumps the callback queue until the request resolves or the poll
// window closes. An abandoned wait, whether timed out or canceled, evicts
// the request from the table; the caller re-issues the whole request rather
// than re-polling a stale handle.
func (t *Tracker) Wait(ctx context.Context, req *Request) error {
	err := retry.Poll(ctx, t.cfg.PollInterval, t.cfg.PollTimeout, func() (bool, error) {
		select {
		case <-req.done:
			return true, req.err
		default:
		}

		t.src.RunCallbacks()
		t.sweep()

		select {
		case <-req.done:
			return true, req.err
		default:
			return false, nil
		}
	})
	if err == nil {
		return nil
	}

	select {
	case <-req.done:
	default:
		t.Forget(req)
	}

	var bridgeErr *errors.BridgeError
	if stderr.As(err, &bridgeErr) && bridgeErr.Code == errors.ErrCodeCallTimeout {
		t.observe(OutcomeTimeout)
		return errors.NewError(errors.ErrCodeCallTimeout,
			fmt.Sprintf("request %s not answered within %s", req.id, t.cfg.PollTimeout)).
			WithComponent("callbacks").
			WithRequestID(req.id)
	}
	return err
}

// Settle runs the fixed pump-and-wait cycle used for answers that arrive
// through the callback queue without a call handle (e.g. current-user stats
// after RequestCurrentStats). This is a heuristic wait, not an event
// notification; callers needing certainty must re-issue the read.
func (t *Tracker) Settle(ctx context.Context) error {
	for i := 0; i < t.cfg.SettlePumps; i++ {
		t.src.RunCallbacks()
		t.sweep()

		select {
		case <-ctx.Done():
			return fmt.Errorf("settle canceled: %w", ctx.Err())
		case <-time.After(t.cfg.PollInterval):
		}
	}
	return nil
}
