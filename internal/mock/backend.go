// Package mock provides an in-process stand-in backend for development
// machines without the native library or a running client. It implements the
// same backend contract as the native binding, answers every request
// immediately, and can persist its state to disk so unlocks survive
// restarts.
package mock

import (
	"sync"
	"time"

	"github.com/steambridge/steambridge/pkg/errors"
	"github.com/steambridge/steambridge/pkg/types"
	"github.com/steambridge/steambridge/pkg/utils"
)

// BackendName identifies the mock in status reports.
const BackendName = "mock"

// Fixed identity the mock reports. The steam id is a valid 64-bit
// individual-account id that no real account uses.
const (
	mockSteamID     = uint64(76561197960265729)
	mockPersonaName = "Mock User"
)

type achievementDef struct {
	apiName string
	name    string
	desc    string
	hidden  bool
}

// The canned catalogue mirrors the layout of a typical sample app: a couple
// of progress achievements plus hidden ones, and stats of every kind.
var defaultCatalogue = []achievementDef{
	{apiName: "ACH_WIN_ONE_GAME", name: "Winner", desc: "Win one game."},
	{apiName: "ACH_WIN_100_GAMES", name: "Champion", desc: "Win 100 games."},
	{apiName: "ACH_TRAVEL_FAR_ACCUM", name: "Interstellar", desc: "Travel 250,000 feet.", hidden: true},
	{apiName: "ACH_TRAVEL_FAR_SINGLE", name: "Orbiter", desc: "Travel 500 feet in one game."},
}

var defaultStatKinds = map[string]types.StatKind{
	"NumGames":        types.StatInt32,
	"NumWins":         types.StatInt32,
	"NumLosses":       types.StatInt32,
	"FeetTraveled":    types.StatFloat,
	"MaxFeetTraveled": types.StatFloat,
	"AverageSpeed":    types.StatAvgRate,
}

var defaultGlobalInt64 = map[string]int64{
	"GamesPlayed": 48_000_000,
}

var defaultGlobalDouble = map[string]float64{
	"AvgSessionLength": 1260.5,
}

// Options configures the mock backend.
type Options struct {
	// StatePath, when set, names a bbolt file the backend persists its
	// unlock and stat tables to on every StoreStats.
	StatePath string

	// PersonaName overrides the reported display name.
	PersonaName string

	// CurrentPlayers overrides the canned concurrent-player count.
	CurrentPlayers int32

	Logger *utils.Logger
}

type avgRateState struct {
	totalCount  float64
	totalLength float64
}

// Backend is the mock implementation of the backend contract. All methods
// are safe for concurrent use.
type Backend struct {
	mu  sync.Mutex
	log *utils.Logger
	opt Options

	initialized bool
	appID       uint32
	store       *Store

	catalogue []achievementDef
	statKinds map[string]types.StatKind

	unlocks  map[string]uint32
	ints     map[string]int32
	floats   map[string]float32
	avgRates map[string]*avgRateState

	globalInt64  map[string]int64
	globalDouble map[string]float64

	nextCall  types.APICall
	completed map[types.APICall]struct{}
	players   int32
}

var _ types.Backend = (*Backend)(nil)

// New constructs an uninitialized mock backend.
func New(opt Options) *Backend {
	log := opt.Logger
	if log == nil {
		log = utils.NewLogger(nil)
	}
	players := opt.CurrentPlayers
	if players == 0 {
		players = 42
	}
	return &Backend{
		log:          log.WithComponent("mock"),
		opt:          opt,
		catalogue:    defaultCatalogue,
		statKinds:    defaultStatKinds,
		unlocks:      make(map[string]uint32),
		ints:         make(map[string]int32),
		floats:       make(map[string]float32),
		avgRates:     make(map[string]*avgRateState),
		globalInt64:  defaultGlobalInt64,
		globalDouble: defaultGlobalDouble,
		nextCall:     types.APICall(1),
		completed:    make(map[types.APICall]struct{}),
		players:      players,
	}
}

// Name implements the backend contract.
func (b *Backend) Name() string { return BackendName }

// Init brings the mock up and restores any persisted state.
func (b *Backend) Init(appID uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return errors.NewError(errors.ErrCodeAlreadyInitialized, "mock backend already initialized").
			WithComponent("mock")
	}

	if b.opt.StatePath != "" {
		store, err := OpenStore(b.opt.StatePath)
		if err != nil {
			return err
		}
		unlocks, err := store.LoadUnlocks()
		if err != nil {
			store.Close()
			return err
		}
		ints, floats, err := store.LoadStats()
		if err != nil {
			store.Close()
			return err
		}
		b.store = store
		b.unlocks = unlocks
		b.ints = ints
		b.floats = floats
	}

	b.appID = appID
	b.initialized = true
	b.log.Info("mock backend initialized", map[string]interface{}{
		"app_id":    appID,
		"persisted": b.opt.StatePath != "",
	})
	return nil
}

// Shutdown tears the mock down. Idempotent.
func (b *Backend) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return
	}
	if b.store != nil {
		if err := b.store.Close(); err != nil {
			b.log.Warn("state file close failed", map[string]interface{}{"error": err.Error()})
		}
		b.store = nil
	}
	b.initialized = false
	b.appID = 0
}

// RunCallbacks is a no-op pump; the mock has no queue to drain.
func (b *Backend) RunCallbacks() {}

// SteamID implements the backend contract.
func (b *Backend) SteamID() uint64 { return mockSteamID }

// AppID implements the backend contract.
func (b *Backend) AppID() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appID
}

// PersonaName implements the backend contract.
func (b *Backend) PersonaName() string {
	if b.opt.PersonaName != "" {
		return b.opt.PersonaName
	}
	return mockPersonaName
}

func (b *Backend) issueCall() types.APICall {
	call := b.nextCall
	b.nextCall++
	b.completed[call] = struct{}{}
	return call
}

// CallCompleted reports every issued handle as already complete; the mock
// answers synchronously.
func (b *Backend) CallCompleted(call types.APICall) (bool, bool, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.completed[call]; !ok {
		return false, false, false
	}
	return true, false, true
}

// RequestCurrentStats always succeeds; the state is already local.
func (b *Backend) RequestCurrentStats() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

func (b *Backend) findDef(apiName string) (achievementDef, bool) {
	for _, def := range b.catalogue {
		if def.apiName == apiName {
			return def, true
		}
	}
	return achievementDef{}, false
}

// NumAchievements implements the backend contract.
func (b *Backend) NumAchievements() (uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return 0, false
	}
	return uint32(len(b.catalogue)), true
}

// AchievementName implements the backend contract.
func (b *Backend) AchievementName(index uint32) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized || int(index) >= len(b.catalogue) {
		return "", false
	}
	return b.catalogue[index].apiName, true
}

// AchievementDisplayAttribute implements the backend contract.
func (b *Backend) AchievementDisplayAttribute(apiName, key string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return "", false
	}
	def, ok := b.findDef(apiName)
	if !ok {
		return "", false
	}
	switch key {
	case "name":
		return def.name, true
	case "desc":
		return def.desc, true
	case "hidden":
		if def.hidden {
			return "1", true
		}
		return "0", true
	}
	return "", false
}

// AchievementState implements the backend contract.
func (b *Backend) AchievementState(apiName string) (bool, uint32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return false, 0, false
	}
	if _, ok := b.findDef(apiName); !ok {
		return false, 0, false
	}
	ts, unlocked := b.unlocks[apiName]
	return unlocked, ts, true
}

// SetAchievement implements the backend contract. Unknown ids are rejected
// the way the real client rejects them.
func (b *Backend) SetAchievement(apiName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return false
	}
	if _, ok := b.findDef(apiName); !ok {
		return false
	}
	if _, already := b.unlocks[apiName]; !already {
		b.unlocks[apiName] = uint32(time.Now().Unix())
	}
	return true
}

// ClearAchievement implements the backend contract.
func (b *Backend) ClearAchievement(apiName string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return false
	}
	if _, ok := b.findDef(apiName); !ok {
		return false
	}
	delete(b.unlocks, apiName)
	return true
}

// StoreStats flushes the unlock and stat tables to the state file when one
// is configured.
func (b *Backend) StoreStats() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return false
	}
	if b.store == nil {
		return true
	}
	if err := b.store.SaveUnlocks(b.unlocks); err != nil {
		b.log.Error("unlock table flush failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	if err := b.store.SaveStats(b.ints, b.floats); err != nil {
		b.log.Error("stat table flush failed", map[string]interface{}{"error": err.Error()})
		return false
	}
	return true
}

// StatInt implements the backend contract. Reads are kind-checked: asking
// for an INT value of a FLOAT stat fails like the real client.
func (b *Backend) StatInt(name string) (int32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized || b.statKinds[name] != types.StatInt32 {
		return 0, false
	}
	return b.ints[name], true
}

// SetStatInt implements the backend contract.
func (b *Backend) SetStatInt(name string, value int32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized || b.statKinds[name] != types.StatInt32 {
		return false
	}
	b.ints[name] = value
	return true
}

// StatFloat implements the backend contract. AVGRATE stats read as floats,
// matching the real client.
func (b *Backend) StatFloat(name string) (float32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return 0, false
	}
	switch b.statKinds[name] {
	case types.StatFloat, types.StatAvgRate:
		return b.floats[name], true
	}
	return 0, false
}

// SetStatFloat implements the backend contract.
func (b *Backend) SetStatFloat(name string, value float32) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized || b.statKinds[name] != types.StatFloat {
		return false
	}
	b.floats[name] = value
	return true
}

// UpdateAvgRateStat implements the backend contract. The rate is the total
// count over the total session length seen so far.
func (b *Backend) UpdateAvgRateStat(name string, sessionCount float32, sessionLength float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized || b.statKinds[name] != types.StatAvgRate || sessionLength <= 0 {
		return false
	}
	st := b.avgRates[name]
	if st == nil {
		st = &avgRateState{}
		b.avgRates[name] = st
	}
	st.totalCount += float64(sessionCount)
	st.totalLength += sessionLength
	b.floats[name] = float32(st.totalCount / st.totalLength)
	return true
}

// ResetAllStats implements the backend contract.
func (b *Backend) ResetAllStats(achievementsToo bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return false
	}
	b.ints = make(map[string]int32)
	b.floats = make(map[string]float32)
	b.avgRates = make(map[string]*avgRateState)
	if achievementsToo {
		b.unlocks = make(map[string]uint32)
	}
	return true
}

// RequestGlobalStats implements the backend contract. The aggregates are
// canned, so the call completes immediately.
func (b *Backend) RequestGlobalStats(historyDays int32) (types.APICall, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized || historyDays < 0 {
		return types.InvalidAPICall, false
	}
	return b.issueCall(), true
}

// GlobalStatInt64 implements the backend contract.
func (b *Backend) GlobalStatInt64(name string) (int64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return 0, false
	}
	v, ok := b.globalInt64[name]
	return v, ok
}

// GlobalStatDouble implements the backend contract.
func (b *Backend) GlobalStatDouble(name string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return 0, false
	}
	v, ok := b.globalDouble[name]
	return v, ok
}

// RequestUserStats implements the backend contract. The mock only knows the
// local user, so any id resolves to the local tables.
func (b *Backend) RequestUserStats(steamID uint64) (types.APICall, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized || steamID == 0 {
		return types.InvalidAPICall, false
	}
	return b.issueCall(), true
}

// UserStatInt implements the backend contract.
func (b *Backend) UserStatInt(_ uint64, name string) (int32, bool) {
	return b.StatInt(name)
}

// UserAchievement implements the backend contract.
func (b *Backend) UserAchievement(_ uint64, apiName string) (bool, bool) {
	unlocked, _, ok := b.AchievementState(apiName)
	return unlocked, ok
}

// RequestCurrentPlayers implements the backend contract.
func (b *Backend) RequestCurrentPlayers() (types.APICall, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return types.InvalidAPICall, false
	}
	return b.issueCall(), true
}

// CurrentPlayers implements the backend contract.
func (b *Backend) CurrentPlayers() (int32, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.initialized {
		return 0, false
	}
	return b.players, true
}
