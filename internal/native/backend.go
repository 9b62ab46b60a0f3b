// Package native implements the Steamworks binding backend: it loads the
// platform's steam_api library, binds the flat-API function catalogue once,
// and marshals every call through a serialized, panic-safe adapter.
package native

import (
	"fmt"
	"sync"
	"time"
	"unsafe"

	"github.com/steambridge/steambridge/internal/platform"
	"github.com/steambridge/steambridge/pkg/errors"
	"github.com/steambridge/steambridge/pkg/types"
	"github.com/steambridge/steambridge/pkg/utils"
)

// ESteamAPIInitResult values returned by SteamAPI_InitFlat.
const (
	initResultOK              = 0
	initResultFailedGeneric   = 1
	initResultNoSteamClient   = 2
	initResultVersionMismatch = 3
)

// steamErrMsgSize is the size of the SteamErrMsg buffer SteamAPI_InitFlat
// writes its diagnostic into.
const steamErrMsgSize = 1024

// Observer receives native-call instrumentation. Implemented by the metrics
// collector; a nil Observer disables instrumentation.
type Observer interface {
	RecordNativeCall(function string, duration time.Duration, success bool)
	RecordPump()
}

// Options configures the native backend.
type Options struct {
	// SDKRoot is where platform resolution looks for redistributables.
	SDKRoot string

	// LibraryPath bypasses platform resolution when set.
	LibraryPath string

	// MarkerDir is where steam_appid.txt is written; empty means the
	// working directory.
	MarkerDir string

	Logger   *utils.Logger
	Observer Observer
}

// Backend is the real types.Backend over the vendor SDK. All native calls
// are serialized on callMu: the underlying library is not safe for
// concurrent invocation.
type Backend struct {
	opts Options
	log  *utils.Logger
	obs  Observer

	// callMu serializes every native call. No two calls may be in flight
	// at once, and teardown runs as one critical section on it so nothing
	// can call into the SDK between SteamAPI_Shutdown and the unload.
	// lib, fn, the handles and playersCall are all guarded by it once Init
	// has published the backend.
	callMu sync.Mutex

	lib   uintptr
	fn    procs
	appID uint32

	// Cached interface handles, fetched once at Init, cleared at Shutdown.
	hUserStats uintptr
	hUser      uintptr
	hUtils     uintptr
	hFriends   uintptr

	// Last current-player-count request, decoded lazily by CurrentPlayers.
	playersCall types.APICall

	initialized bool
}

var _ types.Backend = (*Backend)(nil)

// New constructs an unopened native backend.
func New(opts Options) *Backend {
	log := opts.Logger
	if log == nil {
		log = utils.NewLogger(nil)
	}
	return &Backend{
		opts: opts,
		log:  log.WithComponent("native"),
		obs:  opts.Observer,
	}
}

// BackendName identifies the native binding in status reports.
const BackendName = "native"

// Name implements types.Backend.
func (b *Backend) Name() string { return BackendName }

// Init locates, loads, and binds the steam_api library, then initializes the
// vendor SDK for the given application. Environment failures here are fatal
// and not retried.
func (b *Backend) Init(appID uint32) error {
	if b.initialized {
		return errors.NewError(errors.ErrCodeAlreadyInitialized, "native backend already initialized").
			WithComponent("native")
	}
	if !platform.Is64Bit {
		return errors.NewError(errors.ErrCodeUnsupportedPlatform,
			"the binding layer requires a 64-bit process").
			WithComponent("native")
	}

	// App-id discovery contract: marker file plus environment, written
	// before the SDK initializes.
	markerPath, err := platform.WriteMarker(b.opts.MarkerDir, appID)
	if err != nil {
		return err
	}
	if err := platform.SetEnvironment(appID); err != nil {
		return errors.NewError(errors.ErrCodeInternalError, "cannot export app id").
			WithComponent("native").
			WithCause(err)
	}
	b.log.Debug("app id discovery prepared", map[string]interface{}{
		"marker": markerPath,
		"app_id": appID,
	})

	libPath := b.opts.LibraryPath
	if libPath != "" {
		libPath, err = platform.VerifyOverride(libPath)
	} else {
		libPath, err = platform.Resolve(b.opts.SDKRoot)
	}
	if err != nil {
		return err
	}

	lib, err := openLibrary(libPath)
	if err != nil {
		return err
	}

	if err := bindAll(lib, &b.fn); err != nil {
		_ = closeLibrary(lib)
		return err
	}
	b.lib = lib
	b.log.Info("steam_api loaded", map[string]interface{}{
		"path":    libPath,
		"symbols": len(symbolNames()),
	})

	if b.fn.IsSteamRunning != nil {
		running := b.predicate("SteamAPI_IsSteamRunning", func() bool {
			return b.fn.IsSteamRunning()
		})
		if !running {
			b.log.Warn("no running Steam client detected; initialization will likely fail")
		}
	}

	if err := b.initSDK(); err != nil {
		b.fn = procs{}
		_ = closeLibrary(lib)
		b.lib = 0
		return err
	}

	if err := b.fetchHandles(); err != nil {
		b.shutdownSDK()
		return err
	}

	b.appID = appID
	b.initialized = true

	// Ask the backend for the signed-in user's stats so direct reads have
	// data resident; answered through the callback queue.
	b.RequestCurrentStats()
	b.RunCallbacks()

	return nil
}

// initSDK runs SteamAPI_InitFlat, falling back to the legacy boolean
// SteamAPI_Init on older redistributables.
func (b *Backend) initSDK() error {
	if b.fn.InitFlat != nil {
		var msg [steamErrMsgSize]byte
		var result int32
		b.invoke("SteamAPI_InitFlat", func() {
			result = b.fn.InitFlat(&msg[0])
		})
		if result == initResultOK {
			return nil
		}
		return initError(result, cString(msg[:]))
	}

	if b.fn.InitLegacy != nil {
		var ok bool
		b.invoke("SteamAPI_Init", func() {
			ok = b.fn.InitLegacy()
		})
		if ok {
			return nil
		}
		return initError(initResultFailedGeneric, "SteamAPI_Init returned false")
	}

	return errors.NewError(errors.ErrCodeSymbolMissing,
		"neither SteamAPI_InitFlat nor SteamAPI_Init is exported").
		WithComponent("native")
}

func initError(result int32, detail string) error {
	code := errors.ErrCodeNativeInitFailed
	msg := "SteamAPI initialization failed"
	switch result {
	case initResultNoSteamClient:
		code = errors.ErrCodeSteamNotRunning
		msg = "no Steam client running"
	case initResultVersionMismatch:
		msg = "steam_api version mismatch"
	}
	if detail != "" {
		msg = fmt.Sprintf("%s: %s", msg, detail)
	}
	return errors.NewError(code, msg).
		WithComponent("native").
		WithDetail("init_result", result)
}

// fetchHandles caches the per-subsystem interface handles. The handles are
// opaque; they are only ever passed back into flat-API calls.
func (b *Backend) fetchHandles() error {
	b.invoke("accessors", func() {
		b.hUserStats = b.fn.SteamUserStats()
		b.hUser = b.fn.SteamUser()
		b.hUtils = b.fn.SteamUtils()
		b.hFriends = b.fn.SteamFriends()
	})

	if b.hUserStats == 0 || b.hUser == 0 || b.hUtils == 0 || b.hFriends == 0 {
		return errors.NewError(errors.ErrCodeNativeInitFailed,
			"SDK returned a null interface handle").
			WithComponent("native").
			WithDetail("user_stats", b.hUserStats != 0).
			WithDetail("user", b.hUser != 0).
			WithDetail("utils", b.hUtils != 0).
			WithDetail("friends", b.hFriends != 0)
	}
	return nil
}

// Shutdown tears the SDK down and releases the library. Safe to call twice.
func (b *Backend) Shutdown() {
	if !b.initialized {
		return
	}
	b.shutdownSDK()
	b.initialized = false
	b.appID = 0
	b.log.Info("native backend shut down")
}

// shutdownSDK tears the SDK down and releases the library as a single
// critical section on callMu. A feature call racing the teardown serializes
// either entirely before it, against the live SDK, or entirely after, where
// invoke observes the released library and drops the call.
func (b *Backend) shutdownSDK() {
	b.callMu.Lock()
	defer b.callMu.Unlock()

	if b.fn.Shutdown != nil {
		b.invokeLocked("SteamAPI_Shutdown", func() {
			b.fn.Shutdown()
		})
	}
	b.hUserStats, b.hUser, b.hUtils, b.hFriends = 0, 0, 0, 0
	b.playersCall = 0
	if b.lib != 0 {
		if err := closeLibrary(b.lib); err != nil {
			b.log.Warn("closing steam_api failed", map[string]interface{}{"error": err})
		}
		b.lib = 0
	}
	b.fn = procs{}
}

// invoke runs one native call on the serialized adapter. Calls arriving
// after the library has been released are dropped; the closure never runs,
// its out-values stay zero, and the caller reports a typed failure.
func (b *Backend) invoke(op string, fn func()) {
	b.callMu.Lock()
	defer b.callMu.Unlock()

	if b.lib == 0 {
		return
	}
	b.invokeLocked(op, fn)
}

// invokeLocked is the adapter body: it times the call and recovers any
// native-side panic so nothing propagates as a fault. Callers hold callMu.
func (b *Backend) invokeLocked(op string, fn func()) {
	start := time.Now()
	success := true
	defer func() {
		if r := recover(); r != nil {
			success = false
			b.log.Error("native call panicked", map[string]interface{}{
				"function": op,
				"panic":    fmt.Sprintf("%v", r),
			})
		}
		if b.obs != nil {
			b.obs.RecordNativeCall(op, time.Since(start), success)
		}
	}()
	fn()
}

// predicate is invoke for native functions whose boolean return signals
// whether the operation took effect. A false return is a typed failure at
// higher layers, never a fault. Closures read the catalogue and handles
// themselves, under callMu, so a concurrent teardown cannot hand them a
// half-cleared backend.
func (b *Backend) predicate(op string, fn func() bool) bool {
	ok := false
	b.invoke(op, func() {
		ok = fn()
	})
	return ok
}

// RunCallbacks pumps the SDK's internal callback queue.
func (b *Backend) RunCallbacks() {
	pumped := false
	b.invoke("SteamAPI_RunCallbacks", func() {
		if b.fn.RunCallbacks == nil {
			return
		}
		b.fn.RunCallbacks()
		pumped = true
	})
	if pumped && b.obs != nil {
		b.obs.RecordPump()
	}
}

// SteamID implements types.Backend.
func (b *Backend) SteamID() uint64 {
	var id uint64
	b.invoke("GetSteamID", func() {
		if b.fn.GetSteamID != nil && b.hUser != 0 {
			id = b.fn.GetSteamID(b.hUser)
		}
	})
	return id
}

// AppID implements types.Backend.
func (b *Backend) AppID() uint32 {
	var id uint32
	b.invoke("GetAppID", func() {
		if b.fn.GetAppID != nil && b.hUtils != 0 {
			id = b.fn.GetAppID(b.hUtils)
		} else {
			id = b.appID
		}
	})
	return id
}

// PersonaName implements types.Backend. An absent name decodes to the empty
// string, never a fault.
func (b *Backend) PersonaName() string {
	var name string
	b.invoke("GetPersonaName", func() {
		if b.fn.GetPersonaName != nil && b.hFriends != 0 {
			name = b.fn.GetPersonaName(b.hFriends)
		}
	})
	return name
}

// CallCompleted implements types.Backend.
func (b *Backend) CallCompleted(call types.APICall) (completed bool, failed bool, ok bool) {
	if call == types.InvalidAPICall {
		return false, false, false
	}
	var hasFailed bool
	var done, answered bool
	b.invoke("IsAPICallCompleted", func() {
		if b.fn.IsAPICallCompleted == nil || b.hUtils == 0 {
			return
		}
		answered = true
		done = b.fn.IsAPICallCompleted(b.hUtils, uint64(call), &hasFailed)
	})
	return done, hasFailed, answered
}

// RequestCurrentStats implements types.Backend.
func (b *Backend) RequestCurrentStats() bool {
	return b.predicate("RequestCurrentStats", func() bool {
		return b.fn.RequestCurrentStats != nil && b.hUserStats != 0 &&
			b.fn.RequestCurrentStats(b.hUserStats)
	})
}

// NumAchievements implements types.Backend.
func (b *Backend) NumAchievements() (uint32, bool) {
	var n uint32
	ok := b.predicate("GetNumAchievements", func() bool {
		if b.fn.GetNumAchievements == nil || b.hUserStats == 0 {
			return false
		}
		n = b.fn.GetNumAchievements(b.hUserStats)
		return true
	})
	return n, ok
}

// AchievementName implements types.Backend.
func (b *Backend) AchievementName(index uint32) (string, bool) {
	var name string
	b.invoke("GetAchievementName", func() {
		if b.fn.GetAchievementName != nil && b.hUserStats != 0 {
			name = b.fn.GetAchievementName(b.hUserStats, index)
		}
	})
	if name == "" {
		return "", false
	}
	return name, true
}

// AchievementDisplayAttribute implements types.Backend.
func (b *Backend) AchievementDisplayAttribute(apiName, key string) (string, bool) {
	var value string
	ok := b.predicate("GetAchievementDisplayAttribute", func() bool {
		if b.fn.GetAchievementDisplayAttribute == nil || b.hUserStats == 0 {
			return false
		}
		value = b.fn.GetAchievementDisplayAttribute(b.hUserStats, apiName, key)
		return true
	})
	return value, ok
}

// AchievementState implements types.Backend. The unlocked flag travels
// through an out-pointer on the native side; the scratch buffer never leaves
// this method. Redistributables without GetAchievementAndUnlockTime fall
// back to GetAchievement and report a zero unlock time.
func (b *Backend) AchievementState(apiName string) (unlocked bool, unlockTime uint32, ok bool) {
	var achieved bool
	var ts uint32
	got := b.predicate("GetAchievementAndUnlockTime", func() bool {
		if b.hUserStats == 0 {
			return false
		}
		if b.fn.GetAchievementAndUnlockTime != nil {
			return b.fn.GetAchievementAndUnlockTime(b.hUserStats, apiName, &achieved, &ts)
		}
		if b.fn.GetAchievement != nil {
			return b.fn.GetAchievement(b.hUserStats, apiName, &achieved)
		}
		return false
	})
	return achieved, ts, got
}

// SetAchievement implements types.Backend.
func (b *Backend) SetAchievement(apiName string) bool {
	return b.predicate("SetAchievement", func() bool {
		return b.fn.SetAchievement != nil && b.hUserStats != 0 &&
			b.fn.SetAchievement(b.hUserStats, apiName)
	})
}

// ClearAchievement implements types.Backend.
func (b *Backend) ClearAchievement(apiName string) bool {
	return b.predicate("ClearAchievement", func() bool {
		return b.fn.ClearAchievement != nil && b.hUserStats != 0 &&
			b.fn.ClearAchievement(b.hUserStats, apiName)
	})
}

// StoreStats implements types.Backend.
func (b *Backend) StoreStats() bool {
	return b.predicate("StoreStats", func() bool {
		return b.fn.StoreStats != nil && b.hUserStats != 0 &&
			b.fn.StoreStats(b.hUserStats)
	})
}

// StatInt implements types.Backend.
func (b *Backend) StatInt(name string) (int32, bool) {
	var value int32
	ok := b.predicate("GetStatInt32", func() bool {
		return b.fn.GetStatInt32 != nil && b.hUserStats != 0 &&
			b.fn.GetStatInt32(b.hUserStats, name, &value)
	})
	return value, ok
}

// SetStatInt implements types.Backend.
func (b *Backend) SetStatInt(name string, value int32) bool {
	return b.predicate("SetStatInt32", func() bool {
		return b.fn.SetStatInt32 != nil && b.hUserStats != 0 &&
			b.fn.SetStatInt32(b.hUserStats, name, value)
	})
}

// StatFloat implements types.Backend.
func (b *Backend) StatFloat(name string) (float32, bool) {
	var value float32
	ok := b.predicate("GetStatFloat", func() bool {
		return b.fn.GetStatFloat != nil && b.hUserStats != 0 &&
			b.fn.GetStatFloat(b.hUserStats, name, &value)
	})
	return value, ok
}

// SetStatFloat implements types.Backend.
func (b *Backend) SetStatFloat(name string, value float32) bool {
	return b.predicate("SetStatFloat", func() bool {
		return b.fn.SetStatFloat != nil && b.hUserStats != 0 &&
			b.fn.SetStatFloat(b.hUserStats, name, value)
	})
}

// UpdateAvgRateStat implements types.Backend.
func (b *Backend) UpdateAvgRateStat(name string, sessionCount float32, sessionLength float64) bool {
	return b.predicate("UpdateAvgRateStat", func() bool {
		return b.fn.UpdateAvgRateStat != nil && b.hUserStats != 0 &&
			b.fn.UpdateAvgRateStat(b.hUserStats, name, sessionCount, sessionLength)
	})
}

// ResetAllStats implements types.Backend.
func (b *Backend) ResetAllStats(achievementsToo bool) bool {
	return b.predicate("ResetAllStats", func() bool {
		return b.fn.ResetAllStats != nil && b.hUserStats != 0 &&
			b.fn.ResetAllStats(b.hUserStats, achievementsToo)
	})
}

// RequestGlobalStats implements types.Backend.
func (b *Backend) RequestGlobalStats(historyDays int32) (types.APICall, bool) {
	var call uint64
	b.invoke("RequestGlobalStats", func() {
		if b.fn.RequestGlobalStats != nil && b.hUserStats != 0 {
			call = b.fn.RequestGlobalStats(b.hUserStats, historyDays)
		}
	})
	return types.APICall(call), call != 0
}

// GlobalStatInt64 implements types.Backend.
func (b *Backend) GlobalStatInt64(name string) (int64, bool) {
	var value int64
	ok := b.predicate("GetGlobalStatInt64", func() bool {
		return b.fn.GetGlobalStatInt64 != nil && b.hUserStats != 0 &&
			b.fn.GetGlobalStatInt64(b.hUserStats, name, &value)
	})
	return value, ok
}

// GlobalStatDouble implements types.Backend.
func (b *Backend) GlobalStatDouble(name string) (float64, bool) {
	var value float64
	ok := b.predicate("GetGlobalStatDouble", func() bool {
		return b.fn.GetGlobalStatDouble != nil && b.hUserStats != 0 &&
			b.fn.GetGlobalStatDouble(b.hUserStats, name, &value)
	})
	return value, ok
}

// RequestUserStats implements types.Backend.
func (b *Backend) RequestUserStats(steamID uint64) (types.APICall, bool) {
	var call uint64
	b.invoke("RequestUserStats", func() {
		if b.fn.RequestUserStats != nil && b.hUserStats != 0 {
			call = b.fn.RequestUserStats(b.hUserStats, steamID)
		}
	})
	return types.APICall(call), call != 0
}

// UserStatInt implements types.Backend.
func (b *Backend) UserStatInt(steamID uint64, name string) (int32, bool) {
	var value int32
	ok := b.predicate("GetUserStatInt32", func() bool {
		return b.fn.GetUserStatInt32 != nil && b.hUserStats != 0 &&
			b.fn.GetUserStatInt32(b.hUserStats, steamID, name, &value)
	})
	return value, ok
}

// UserAchievement implements types.Backend.
func (b *Backend) UserAchievement(steamID uint64, apiName string) (bool, bool) {
	var achieved bool
	ok := b.predicate("GetUserAchievement", func() bool {
		return b.fn.GetUserAchievement != nil && b.hUserStats != 0 &&
			b.fn.GetUserAchievement(b.hUserStats, steamID, apiName, &achieved)
	})
	return achieved, ok
}

// numberOfCurrentPlayersResult mirrors the SDK's NumberOfCurrentPlayers_t
// callback struct.
type numberOfCurrentPlayersResult struct {
	Success uint8
	_       [3]byte
	Players int32
}

// numberOfCurrentPlayersCallbackID is k_iSteamUserStatsCallbacks + 7.
const numberOfCurrentPlayersCallbackID = 1107

// RequestCurrentPlayers implements types.Backend.
func (b *Backend) RequestCurrentPlayers() (types.APICall, bool) {
	var call uint64
	b.invoke("GetNumberOfCurrentPlayers", func() {
		if b.fn.GetNumberOfCurrentPlayers != nil && b.hUserStats != 0 {
			call = b.fn.GetNumberOfCurrentPlayers(b.hUserStats)
			b.playersCall = types.APICall(call)
		}
	})
	return types.APICall(call), call != 0
}

// CurrentPlayers implements types.Backend: it decodes the answer to the most
// recent RequestCurrentPlayers out of the SDK's call-result buffer.
func (b *Backend) CurrentPlayers() (int32, bool) {
	var result numberOfCurrentPlayersResult
	var failed bool
	ok := b.predicate("GetAPICallResult", func() bool {
		if b.fn.GetAPICallResult == nil || b.hUtils == 0 || b.playersCall == types.InvalidAPICall {
			return false
		}
		return b.fn.GetAPICallResult(
			b.hUtils,
			uint64(b.playersCall),
			unsafe.Pointer(&result),
			int32(unsafe.Sizeof(result)),
			numberOfCurrentPlayersCallbackID,
			&failed,
		)
	})
	if !ok || failed || result.Success == 0 {
		return 0, false
	}
	return result.Players, true
}

// cString decodes a NUL-terminated byte buffer into a Go string.
func cString(buf []byte) string {
	for i, c := range buf {
		if c == 0 {
			return string(buf[:i])
		}
	}
	return string(buf)
}
