package types

// Backend is the low-level surface over one Steamworks client. Two
// implementations exist: the native binding (internal/native) that forwards
// every method to a bound flat-API entry point, and the offline mock
// (internal/mock) used when no Steam client is available.
//
// Methods mirror the native convention: predicates return a bare bool where
// the flat API returns one, and getters return (value, ok) where the flat API
// writes through an out-pointer. A false never represents a fault; faults are
// converted to errors by Init or swallowed into the failure return.
//
// Backends are not safe for concurrent use. The facade serializes access.
type Backend interface {
	// Name identifies the backend in status output and logs.
	Name() string

	// Init brings the underlying client up for the given application.
	// It is called exactly once before any other method.
	Init(appID uint32) error

	// Shutdown tears the client down. Idempotent.
	Shutdown()

	// RunCallbacks advances the client's internal callback queue. Results
	// of request-shaped operations only become visible after pumping.
	RunCallbacks()

	// Identity, resident after Init.
	SteamID() uint64
	AppID() uint32
	PersonaName() string

	// CallCompleted reports whether the asynchronous request identified by
	// call has been answered. ok is false when the backend cannot tell
	// (invalid handle).
	CallCompleted(call APICall) (completed bool, failed bool, ok bool)

	// Achievements.
	RequestCurrentStats() bool
	NumAchievements() (uint32, bool)
	AchievementName(index uint32) (string, bool)
	AchievementDisplayAttribute(apiName, key string) (string, bool)
	AchievementState(apiName string) (unlocked bool, unlockTime uint32, ok bool)
	SetAchievement(apiName string) bool
	ClearAchievement(apiName string) bool
	StoreStats() bool

	// User stats.
	StatInt(name string) (int32, bool)
	SetStatInt(name string, value int32) bool
	StatFloat(name string) (float32, bool)
	SetStatFloat(name string, value float32) bool
	UpdateAvgRateStat(name string, sessionCount float32, sessionLength float64) bool
	ResetAllStats(achievementsToo bool) bool

	// Global (all-player) stats: request/poll pair.
	RequestGlobalStats(historyDays int32) (APICall, bool)
	GlobalStatInt64(name string) (int64, bool)
	GlobalStatDouble(name string) (float64, bool)

	// Friend-scoped stats: request/poll pair.
	RequestUserStats(steamID uint64) (APICall, bool)
	UserStatInt(steamID uint64, name string) (int32, bool)
	UserAchievement(steamID uint64, apiName string) (unlocked bool, ok bool)

	// Current player count: request/poll pair.
	RequestCurrentPlayers() (APICall, bool)
	CurrentPlayers() (int32, bool)
}
