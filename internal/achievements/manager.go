// Package achievements implements the achievements feature manager: guarded,
// typed operations over the backend's achievement slice of the flat API.
package achievements

import (
	"context"
	"fmt"
	"time"

	"github.com/steambridge/steambridge/internal/callbacks"
	"github.com/steambridge/steambridge/pkg/errors"
	"github.com/steambridge/steambridge/pkg/types"
	"github.com/steambridge/steambridge/pkg/utils"
)

// Display attribute keys understood by the SDK.
const (
	attrName   = "name"
	attrDesc   = "desc"
	attrHidden = "hidden"
)

// Manager groups every achievement operation. All operations require the
// owning client to be initialized; the guard is checked locally before any
// native call is made.
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
		log:     log.WithComponent("achievements"),
		ready:   ready,
	}
}

func (m *Manager) guard(op string) error {
	if m.ready == nil || !m.ready() {
		return errors.NewError(errors.ErrCodeNotInitialized, "client not initialized").
			WithComponent("achievements").
			WithOperation(op)
	}
	return nil
}

// List enumerates the application's achievement catalogue. Records are built
// fresh on every call by walking the native index space; an index that fails
// to decode is logged and skipped, never fatal to the enumeration.
func (m *Manager) List(ctx context.Context) ([]types.AchievementRecord, error) {
	if err := m.guard("list"); err != nil {
		return nil, err
	}

	count, ok := m.backend.NumAchievements()
	if !ok {
		return nil, errors.NewError(errors.ErrCodeNativeCallFailed, "GetNumAchievements failed").
			WithComponent("achievements").
			WithOperation("list")
	}

	records := make([]types.AchievementRecord, 0, count)
	for i := uint32(0); i < count; i++ {
		select {
		case <-ctx.Done():
			return records, fmt.Errorf("enumeration canceled: %w", ctx.Err())
		default:
		}

		apiName, ok := m.backend.AchievementName(i)
		if !ok {
			m.log.Warn("skipping achievement with unreadable name", map[string]interface{}{"index": i})
			continue
		}

		record, err := m.record(apiName)
		if err != nil {
			m.log.Warn("skipping undecodable achievement", map[string]interface{}{
				"index":    i,
				"api_name": apiName,
				"error":    err.Error(),
			})
			continue
		}
		records = append(records, record)
	}

	m.log.Debug("enumerated achievements", map[string]interface{}{
		"declared": count,
		"decoded":  len(records),
	})
	return records, nil
}

// Get returns one achievement by its API name.
func (m *Manager) Get(apiName string) (types.AchievementRecord, error) {
	if err := m.guard("get"); err != nil {
		return types.AchievementRecord{}, err
	}
	return m.record(apiName)
}

func (m *Manager) record(apiName string) (types.AchievementRecord, error) {
	unlocked, unlockTime, ok := m.backend.AchievementState(apiName)
	if !ok {
		return types.AchievementRecord{}, errors.NewError(errors.ErrCodeUnknownAchievement,
			fmt.Sprintf("achievement %q not in the catalogue", apiName)).
			WithComponent("achievements").
			WithContext("api_name", apiName)
	}

	record := types.AchievementRecord{
		APIName:  apiName,
		Unlocked: unlocked,
	}
	if unlockTime != 0 {
		record.UnlockTime = time.Unix(int64(unlockTime), 0).UTC()
	}

	// Display attributes are decorative; absence is not an error.
	if v, ok := m.backend.AchievementDisplayAttribute(apiName, attrName); ok {
		record.DisplayName = v
	}
	if v, ok := m.backend.AchievementDisplayAttribute(apiName, attrDesc); ok {
		record.Description = v
	}
	if v, ok := m.backend.AchievementDisplayAttribute(apiName, attrHidden); ok {
		record.Hidden = v == "1"
	}
	return record, nil
}

// IsUnlocked reports whether the achievement is currently unlocked. An
// unknown id is a typed failure, not a fault.
func (m *Manager) IsUnlocked(apiName string) (bool, error) {
	if err := m.guard("is_unlocked"); err != nil {
		return false, err
	}

	unlocked, _, ok := m.backend.AchievementState(apiName)
	if !ok {
		return false, errors.NewError(errors.ErrCodeUnknownAchievement,
			fmt.Sprintf("achievement %q not in the catalogue", apiName)).
			WithComponent("achievements").
			WithOperation("is_unlocked").
			WithContext("api_name", apiName)
	}
	return unlocked, nil
}

// Unlock sets the achievement flag and persists it. The flag-set and the
// persist step succeed or fail independently; a set that persists badly is
// an overall failure. The callback queue is pumped once afterwards so the
// overlay notification fires promptly.
func (m *Manager) Unlock(ctx context.Context, apiName string) error {
	if err := m.guard("unlock"); err != nil {
		return err
	}
	return m.setAndStore(ctx, "unlock", apiName, m.backend.SetAchievement)
}

// Clear resets the achievement flag and persists it.
func (m *Manager) Clear(ctx context.Context, apiName string) error {
	if err := m.guard("clear"); err != nil {
		return err
	}
	return m.setAndStore(ctx, "clear", apiName, m.backend.ClearAchievement)
}

func (m *Manager) setAndStore(ctx context.Context, op, apiName string, mutate func(string) bool) error {
	if !mutate(apiName) {
		return errors.NewError(errors.ErrCodeUnknownAchievement,
			fmt.Sprintf("achievement %q rejected by the backend", apiName)).
			WithComponent("achievements").
			WithOperation(op).
			WithContext("api_name", apiName)
	}

	if !m.backend.StoreStats() {
		return errors.NewError(errors.ErrCodeStoreFailed,
			fmt.Sprintf("flag for %q was set but could not be persisted", apiName)).
			WithComponent("achievements").
			WithOperation(op).
			WithContext("api_name", apiName)
	}

	m.backend.RunCallbacks()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s interrupted: %w", op, ctx.Err())
	default:
	}

	m.log.Info("achievement "+op+"ed", map[string]interface{}{"api_name": apiName})
	return nil
}

// Refresh re-requests the signed-in user's stats and achievements from the
// backend and settles the callback queue. Callers needing certainty after a
// slow round-trip should Refresh and re-read.
func (m *Manager) Refresh(ctx context.Context) error {
	if err := m.guard("refresh"); err != nil {
		return err
	}

	if !m.backend.RequestCurrentStats() {
		return errors.NewError(errors.ErrCodeNativeCallFailed, "RequestCurrentStats failed").
			WithComponent("achievements").
			WithOperation("refresh")
	}
	return m.tracker.Settle(ctx)
}

// UserUnlocked reports whether another user has the achievement unlocked.
// Friend-scoped data lives on the backend, so this is a request/poll pair:
// request, wait for the answer, then read.
func (m *Manager) UserUnlocked(ctx context.Context, steamID uint64, apiName string) (bool, error) {
	if err := m.guard("user_unlocked"); err != nil {
		return false, err
	}

	call, ok := m.backend.RequestUserStats(steamID)
	if !ok {
		return false, errors.NewError(errors.ErrCodeNativeCallFailed, "RequestUserStats failed").
			WithComponent("achievements").
			WithOperation("user_unlocked")
	}

	req := m.tracker.Track(call)
	if err := m.tracker.Wait(ctx, req); err != nil {
		return false, err
	}

	unlocked, ok := m.backend.UserAchievement(steamID, apiName)
	if !ok {
		return false, errors.NewError(errors.ErrCodeNotAvailable,
			fmt.Sprintf("achievement %q for user %d not available", apiName, steamID)).
			WithComponent("achievements").
			WithOperation("user_unlocked").
			WithRequestID(req.ID())
	}
	return unlocked, nil
}
