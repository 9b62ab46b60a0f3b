// Package stats implements the statistics feature manager: local user stats,
// global aggregates, friend stats and the concurrent-player count.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/steambridge/steambridge/internal/callbacks"
	"github.com/steambridge/steambridge/pkg/errors"
	"github.com/steambridge/steambridge/pkg/types"
	"github.com/steambridge/steambridge/pkg/utils"
)

// Manager groups every stat operation behind the initialization guard.
// Reads of the signed-in user's stats are served from the backend's local
// snapshot and return immediately; global and friend stats are request/poll
// pairs routed through the tracker.
type Manager struct {
	backend types.Backend
	tracker *callbacks.Tracker
	log     *utils.Logger
	ready   func() bool
}

// New constructs the manager. ready reports whether the owning client has
// completed initialization.
func New(backend types.Backend, tracker *callbacks.Tracker, log *utils.Logger, ready func() bool) *Manager {
	if log == nil {
		log = utils.NewLogger(nil)
	}
	return &Manager{
		backend: backend,
		tracker: tracker,
		log:     log.WithComponent("stats"),
		ready:   ready,
	}
}

func (m *Manager) guard(op string) error {
	if m.ready == nil || !m.ready() {
		return errors.NewError(errors.ErrCodeNotInitialized, "client not initialized").
			WithComponent("stats").
			WithOperation(op)
	}
	return nil
}

func (m *Manager) readFailure(op, name string) *errors.BridgeError {
	return errors.NewError(errors.ErrCodeNativeCallFailed,
		fmt.Sprintf("stat %q could not be read", name)).
		WithComponent("stats").
		WithOperation(op).
		WithContext("stat", name)
}

// GetInt reads an INT stat of the signed-in user.
func (m *Manager) GetInt(name string) (int32, error) {
	if err := m.guard("get_int"); err != nil {
		return 0, err
	}
	v, ok := m.backend.StatInt(name)
	if !ok {
		return 0, m.readFailure("get_int", name)
	}
	return v, nil
}

// GetFloat reads a FLOAT stat of the signed-in user.
func (m *Manager) GetFloat(name string) (float32, error) {
	if err := m.guard("get_float"); err != nil {
		return 0, err
	}
	v, ok := m.backend.StatFloat(name)
	if !ok {
		return 0, m.readFailure("get_float", name)
	}
	return v, nil
}

// SetInt writes an INT stat and persists it. The write and the persist
// succeed or fail independently; both must succeed.
func (m *Manager) SetInt(ctx context.Context, name string, value int32) error {
	if err := m.guard("set_int"); err != nil {
		return err
	}
	return m.writeAndStore(ctx, "set_int", name, func() bool {
		return m.backend.SetStatInt(name, value)
	})
}

// SetFloat writes a FLOAT stat and persists it.
func (m *Manager) SetFloat(ctx context.Context, name string, value float32) error {
	if err := m.guard("set_float"); err != nil {
		return err
	}
	return m.writeAndStore(ctx, "set_float", name, func() bool {
		return m.backend.SetStatFloat(name, value)
	})
}

// UpdateAvgRate feeds one session into an AVGRATE stat. The sliding window
// is maintained backend-side; the caller only reports count and duration.
func (m *Manager) UpdateAvgRate(ctx context.Context, name string, sessionCount float32, sessionLength float64) error {
	if err := m.guard("update_avg_rate"); err != nil {
		return err
	}
	return m.writeAndStore(ctx, "update_avg_rate", name, func() bool {
		return m.backend.UpdateAvgRateStat(name, sessionCount, sessionLength)
	})
}

func (m *Manager) writeAndStore(ctx context.Context, op, name string, write func() bool) error {
	if !write() {
		return errors.NewError(errors.ErrCodeNativeCallFailed,
			fmt.Sprintf("stat %q rejected by the backend", name)).
			WithComponent("stats").
			WithOperation(op).
			WithContext("stat", name)
	}

	if !m.backend.StoreStats() {
		return errors.NewError(errors.ErrCodeStoreFailed,
			fmt.Sprintf("stat %q was written but could not be persisted", name)).
			WithComponent("stats").
			WithOperation(op).
			WithContext("stat", name)
	}

	m.backend.RunCallbacks()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s interrupted: %w", op, ctx.Err())
	default:
	}

	m.log.Debug("stat persisted", map[string]interface{}{"stat": name, "op": op})
	return nil
}

// ResetAll wipes the signed-in user's stats, and optionally achievements
// too, then persists the wipe. Intended for development builds.
func (m *Manager) ResetAll(ctx context.Context, achievementsToo bool) error {
	if err := m.guard("reset_all"); err != nil {
		return err
	}
	return m.writeAndStore(ctx, "reset_all", "*", func() bool {
		return m.backend.ResetAllStats(achievementsToo)
	})
}

// GlobalInt64 fetches a global aggregate INT64 stat. historyDays bounds the
// aggregation window the backend downloads; the value returned is the
// current total.
func (m *Manager) GlobalInt64(ctx context.Context, name string, historyDays int32) (int64, error) {
	if err := m.guard("global_int64"); err != nil {
		return 0, err
	}
	if err := m.awaitGlobalStats(ctx, historyDays); err != nil {
		return 0, err
	}
	v, ok := m.backend.GlobalStatInt64(name)
	if !ok {
		return 0, m.readFailure("global_int64", name)
	}
	return v, nil
}

// GlobalDouble fetches a global aggregate DOUBLE stat.
func (m *Manager) GlobalDouble(ctx context.Context, name string, historyDays int32) (float64, error) {
	if err := m.guard("global_double"); err != nil {
		return 0, err
	}
	if err := m.awaitGlobalStats(ctx, historyDays); err != nil {
		return 0, err
	}
	v, ok := m.backend.GlobalStatDouble(name)
	if !ok {
		return 0, m.readFailure("global_double", name)
	}
	return v, nil
}

func (m *Manager) awaitGlobalStats(ctx context.Context, historyDays int32) error {
	call, ok := m.backend.RequestGlobalStats(historyDays)
	if !ok {
		return errors.NewError(errors.ErrCodeNativeCallFailed, "RequestGlobalStats failed").
			WithComponent("stats").
			WithOperation("global_stats")
	}
	return m.tracker.Wait(ctx, m.tracker.Track(call))
}

// FriendStatInt fetches an INT stat belonging to another user. The backend
// has to download the user's stat block first, so this is a request/poll
// pair like the global reads.
func (m *Manager) FriendStatInt(ctx context.Context, steamID uint64, name string) (int32, error) {
	if err := m.guard("friend_stat_int"); err != nil {
		return 0, err
	}

	call, ok := m.backend.RequestUserStats(steamID)
	if !ok {
		return 0, errors.NewError(errors.ErrCodeNativeCallFailed, "RequestUserStats failed").
			WithComponent("stats").
			WithOperation("friend_stat_int")
	}
	if err := m.tracker.Wait(ctx, m.tracker.Track(call)); err != nil {
		return 0, err
	}

	v, ok := m.backend.UserStatInt(steamID, name)
	if !ok {
		return 0, errors.NewError(errors.ErrCodeNotAvailable,
			fmt.Sprintf("stat %q for user %d not available", name, steamID)).
			WithComponent("stats").
			WithOperation("friend_stat_int").
			WithContext("stat", name)
	}
	return v, nil
}

// CurrentPlayers fetches the live concurrent-player count for the
// application. The count arrives via a call-result payload, so the request
// is tracked to completion before the decoded value is read.
func (m *Manager) CurrentPlayers(ctx context.Context) (types.PlayerCount, error) {
	if err := m.guard("current_players"); err != nil {
		return types.PlayerCount{}, err
	}

	call, ok := m.backend.RequestCurrentPlayers()
	if !ok {
		return types.PlayerCount{}, errors.NewError(errors.ErrCodeNativeCallFailed, "GetNumberOfCurrentPlayers failed").
			WithComponent("stats").
			WithOperation("current_players")
	}

	req := m.tracker.Track(call)
	if err := m.tracker.Wait(ctx, req); err != nil {
		return types.PlayerCount{}, err
	}

	players, ok := m.backend.CurrentPlayers()
	if !ok {
		return types.PlayerCount{}, errors.NewError(errors.ErrCodeCallFailed, "current-player result could not be decoded").
			WithComponent("stats").
			WithOperation("current_players").
			WithRequestID(req.ID())
	}
	return types.PlayerCount{Players: players, FetchedAt: time.Now().UTC()}, nil
}
