package mock

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steambridge/steambridge/pkg/types"
)

func newInitialized(t *testing.T, opt Options) *Backend {
	t.Helper()
	b := New(opt)
	require.NoError(t, b.Init(480))
	t.Cleanup(b.Shutdown)
	return b
}

func TestInitAndShutdown(t *testing.T) {
	t.Parallel()

	b := New(Options{})
	require.NoError(t, b.Init(480))
	assert.Error(t, b.Init(480), "second init must be rejected")

	assert.Equal(t, uint32(480), b.AppID())
	assert.Equal(t, BackendName, b.Name())
	assert.NotZero(t, b.SteamID())
	assert.NotEmpty(t, b.PersonaName())

	b.Shutdown()
	b.Shutdown() // idempotent

	_, ok := b.NumAchievements()
	assert.False(t, ok, "operations after shutdown return the failure sentinel")
}

func TestUninitializedSentinels(t *testing.T) {
	t.Parallel()

	b := New(Options{})

	_, ok := b.NumAchievements()
	assert.False(t, ok)
	assert.False(t, b.SetAchievement("ACH_WIN_ONE_GAME"))
	assert.False(t, b.StoreStats())
	_, ok = b.StatInt("NumWins")
	assert.False(t, ok)
	call, ok := b.RequestCurrentPlayers()
	assert.False(t, ok)
	assert.Equal(t, types.InvalidAPICall, call)
}

func TestCatalogue(t *testing.T) {
	t.Parallel()

	b := newInitialized(t, Options{})

	count, ok := b.NumAchievements()
	require.True(t, ok)
	assert.Equal(t, uint32(4), count)

	name, ok := b.AchievementName(0)
	require.True(t, ok)
	assert.Equal(t, "ACH_WIN_ONE_GAME", name)

	_, ok = b.AchievementName(count)
	assert.False(t, ok, "out-of-range index fails")

	display, ok := b.AchievementDisplayAttribute("ACH_TRAVEL_FAR_ACCUM", "hidden")
	require.True(t, ok)
	assert.Equal(t, "1", display)

	_, ok = b.AchievementDisplayAttribute("ACH_WIN_ONE_GAME", "bogus")
	assert.False(t, ok)
}

func TestUnlockClearCycle(t *testing.T) {
	t.Parallel()

	b := newInitialized(t, Options{})

	unlocked, ts, ok := b.AchievementState("ACH_WIN_ONE_GAME")
	require.True(t, ok)
	assert.False(t, unlocked)
	assert.Zero(t, ts)

	require.True(t, b.SetAchievement("ACH_WIN_ONE_GAME"))
	unlocked, ts, ok = b.AchievementState("ACH_WIN_ONE_GAME")
	require.True(t, ok)
	assert.True(t, unlocked)
	assert.NotZero(t, ts)

	first := ts
	require.True(t, b.SetAchievement("ACH_WIN_ONE_GAME"))
	_, ts, _ = b.AchievementState("ACH_WIN_ONE_GAME")
	assert.Equal(t, first, ts, "re-unlock keeps the original timestamp")

	require.True(t, b.ClearAchievement("ACH_WIN_ONE_GAME"))
	unlocked, _, _ = b.AchievementState("ACH_WIN_ONE_GAME")
	assert.False(t, unlocked)

	assert.False(t, b.SetAchievement("ACH_NOPE"), "unknown id is rejected")
	_, _, ok = b.AchievementState("ACH_NOPE")
	assert.False(t, ok)
}

func TestStatKindsAreEnforced(t *testing.T) {
	t.Parallel()

	b := newInitialized(t, Options{})

	assert.True(t, b.SetStatInt("NumWins", 7))
	v, ok := b.StatInt("NumWins")
	require.True(t, ok)
	assert.Equal(t, int32(7), v)

	assert.False(t, b.SetStatInt("FeetTraveled", 7), "int write to a float stat fails")
	assert.False(t, b.SetStatFloat("NumWins", 7), "float write to an int stat fails")
	_, ok = b.StatFloat("NumWins")
	assert.False(t, ok)

	assert.True(t, b.SetStatFloat("FeetTraveled", 123.5))
	f, ok := b.StatFloat("FeetTraveled")
	require.True(t, ok)
	assert.Equal(t, float32(123.5), f)
}

func TestAvgRateAccumulates(t *testing.T) {
	t.Parallel()

	b := newInitialized(t, Options{})

	require.True(t, b.UpdateAvgRateStat("AverageSpeed", 100, 10))
	v, ok := b.StatFloat("AverageSpeed")
	require.True(t, ok)
	assert.InDelta(t, 10.0, v, 1e-6)

	require.True(t, b.UpdateAvgRateStat("AverageSpeed", 0, 10))
	v, _ = b.StatFloat("AverageSpeed")
	assert.InDelta(t, 5.0, v, 1e-6)

	assert.False(t, b.UpdateAvgRateStat("AverageSpeed", 1, 0), "zero-length session is rejected")
	assert.False(t, b.UpdateAvgRateStat("NumWins", 1, 10), "avg-rate write to an int stat fails")
}

func TestResetAllStats(t *testing.T) {
	t.Parallel()

	b := newInitialized(t, Options{})
	require.True(t, b.SetStatInt("NumWins", 5))
	require.True(t, b.SetAchievement("ACH_WIN_ONE_GAME"))

	require.True(t, b.ResetAllStats(false))
	v, _ := b.StatInt("NumWins")
	assert.Zero(t, v)
	unlocked, _, _ := b.AchievementState("ACH_WIN_ONE_GAME")
	assert.True(t, unlocked, "achievements survive a stats-only reset")

	require.True(t, b.ResetAllStats(true))
	unlocked, _, _ = b.AchievementState("ACH_WIN_ONE_GAME")
	assert.False(t, unlocked)
}

func TestRequestsCompleteImmediately(t *testing.T) {
	t.Parallel()

	b := newInitialized(t, Options{})

	call, ok := b.RequestGlobalStats(30)
	require.True(t, ok)
	completed, failed, ok := b.CallCompleted(call)
	assert.True(t, completed)
	assert.False(t, failed)
	assert.True(t, ok)

	_, _, ok = b.CallCompleted(types.APICall(9999))
	assert.False(t, ok, "unknown handle is not reported complete")

	_, ok = b.RequestGlobalStats(-1)
	assert.False(t, ok, "negative history window is rejected")

	total, ok := b.GlobalStatInt64("GamesPlayed")
	require.True(t, ok)
	assert.Equal(t, int64(48_000_000), total)

	avg, ok := b.GlobalStatDouble("AvgSessionLength")
	require.True(t, ok)
	assert.Equal(t, 1260.5, avg)
}

func TestUserStatsMirrorLocalState(t *testing.T) {
	t.Parallel()

	b := newInitialized(t, Options{})
	require.True(t, b.SetStatInt("NumWins", 11))
	require.True(t, b.SetAchievement("ACH_WIN_ONE_GAME"))

	_, ok := b.RequestUserStats(7656120)
	require.True(t, ok)
	_, ok = b.RequestUserStats(0)
	assert.False(t, ok)

	v, ok := b.UserStatInt(7656120, "NumWins")
	require.True(t, ok)
	assert.Equal(t, int32(11), v)

	unlocked, ok := b.UserAchievement(7656120, "ACH_WIN_ONE_GAME")
	require.True(t, ok)
	assert.True(t, unlocked)
}

func TestCurrentPlayers(t *testing.T) {
	t.Parallel()

	b := newInitialized(t, Options{CurrentPlayers: 256})

	call, ok := b.RequestCurrentPlayers()
	require.True(t, ok)
	assert.NotEqual(t, types.InvalidAPICall, call)

	players, ok := b.CurrentPlayers()
	require.True(t, ok)
	assert.Equal(t, int32(256), players)
}

func TestStatePersistsAcrossSessions(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "state", "mock.db")

	b := New(Options{StatePath: path})
	require.NoError(t, b.Init(480))
	require.True(t, b.SetAchievement("ACH_WIN_ONE_GAME"))
	require.True(t, b.SetStatInt("NumWins", 3))
	require.True(t, b.SetStatFloat("FeetTraveled", 99.5))
	require.True(t, b.StoreStats())
	b.Shutdown()

	reopened := New(Options{StatePath: path})
	require.NoError(t, reopened.Init(480))
	defer reopened.Shutdown()

	unlocked, ts, ok := reopened.AchievementState("ACH_WIN_ONE_GAME")
	require.True(t, ok)
	assert.True(t, unlocked)
	assert.NotZero(t, ts)

	v, ok := reopened.StatInt("NumWins")
	require.True(t, ok)
	assert.Equal(t, int32(3), v)

	f, ok := reopened.StatFloat("FeetTraveled")
	require.True(t, ok)
	assert.Equal(t, float32(99.5), f)
}

func TestUnflushedStateIsNotPersisted(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "mock.db")

	b := New(Options{StatePath: path})
	require.NoError(t, b.Init(480))
	require.True(t, b.SetAchievement("ACH_WIN_ONE_GAME"))
	require.True(t, b.StoreStats())
	require.True(t, b.SetAchievement("ACH_WIN_100_GAMES")) // never flushed
	b.Shutdown()

	reopened := New(Options{StatePath: path})
	require.NoError(t, reopened.Init(480))
	defer reopened.Shutdown()

	unlocked, _, _ := reopened.AchievementState("ACH_WIN_ONE_GAME")
	assert.True(t, unlocked)
	unlocked, _, _ = reopened.AchievementState("ACH_WIN_100_GAMES")
	assert.False(t, unlocked)
}
