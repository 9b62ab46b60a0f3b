package native

import (
	"fmt"
	"reflect"
	"strings"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/steambridge/steambridge/pkg/errors"
)

// procs is the function catalogue: one typed function pointer per flat-API
// entry point this binding needs. Fields are bound exactly once by bindAll
// during Init and never rebound. Interface methods take the owning interface
// handle as their first argument, matching the flat-API calling convention.
//
// A ",optional" tag suffix marks symbols that older redistributables lack;
// their absence is tolerated and the field stays nil.
type procs struct {
	// Lifecycle
	InitFlat     func(errMsg *byte) int32 `steam:"SteamAPI_InitFlat,optional"`
	InitLegacy   func() bool              `steam:"SteamAPI_Init,optional"`
	Shutdown     func()                   `steam:"SteamAPI_Shutdown"`
	RunCallbacks func()                   `steam:"SteamAPI_RunCallbacks"`

	IsSteamRunning func() bool `steam:"SteamAPI_IsSteamRunning"`

	// Interface accessors. Each returns an opaque handle owned by the SDK;
	// the shim only passes it back into further calls.
	SteamUserStats func() uintptr `steam:"SteamAPI_SteamUserStats_v012"`
	SteamUser      func() uintptr `steam:"SteamAPI_SteamUser_v023"`
	SteamUtils     func() uintptr `steam:"SteamAPI_SteamUtils_v010"`
	SteamFriends   func() uintptr `steam:"SteamAPI_SteamFriends_v017"`

	// ISteamUser / ISteamUtils / ISteamFriends
	GetSteamID         func(user uintptr) uint64                                                                                                `steam:"SteamAPI_ISteamUser_GetSteamID"`
	GetAppID           func(utils uintptr) uint32                                                                                               `steam:"SteamAPI_ISteamUtils_GetAppID"`
	IsAPICallCompleted func(utils uintptr, call uint64, failed *bool) bool                                                                      `steam:"SteamAPI_ISteamUtils_IsAPICallCompleted"`
	GetAPICallResult   func(utils uintptr, call uint64, callback unsafe.Pointer, callbackSize int32, callbackExpected int32, failed *bool) bool `steam:"SteamAPI_ISteamUtils_GetAPICallResult"`
	GetPersonaName     func(friends uintptr) string                                                                                             `steam:"SteamAPI_ISteamFriends_GetPersonaName"`

	// ISteamUserStats: achievements
	RequestCurrentStats            func(us uintptr) bool                                                  `steam:"SteamAPI_ISteamUserStats_RequestCurrentStats"`
	GetNumAchievements             func(us uintptr) uint32                                                `steam:"SteamAPI_ISteamUserStats_GetNumAchievements"`
	GetAchievementName             func(us uintptr, index uint32) string                                  `steam:"SteamAPI_ISteamUserStats_GetAchievementName"`
	GetAchievementDisplayAttribute func(us uintptr, name string, key string) string                       `steam:"SteamAPI_ISteamUserStats_GetAchievementDisplayAttribute"`
	GetAchievement                 func(us uintptr, name string, achieved *bool) bool                     `steam:"SteamAPI_ISteamUserStats_GetAchievement"`
	GetAchievementAndUnlockTime    func(us uintptr, name string, achieved *bool, unlockTime *uint32) bool `steam:"SteamAPI_ISteamUserStats_GetAchievementAndUnlockTime"`
	SetAchievement                 func(us uintptr, name string) bool                                     `steam:"SteamAPI_ISteamUserStats_SetAchievement"`
	ClearAchievement               func(us uintptr, name string) bool                                     `steam:"SteamAPI_ISteamUserStats_ClearAchievement"`
	StoreStats                     func(us uintptr) bool                                                  `steam:"SteamAPI_ISteamUserStats_StoreStats"`

	// ISteamUserStats: user stats
	GetStatInt32      func(us uintptr, name string, out *int32) bool                                  `steam:"SteamAPI_ISteamUserStats_GetStatInt32"`
	SetStatInt32      func(us uintptr, name string, value int32) bool                                 `steam:"SteamAPI_ISteamUserStats_SetStatInt32"`
	GetStatFloat      func(us uintptr, name string, out *float32) bool                                `steam:"SteamAPI_ISteamUserStats_GetStatFloat"`
	SetStatFloat      func(us uintptr, name string, value float32) bool                               `steam:"SteamAPI_ISteamUserStats_SetStatFloat"`
	UpdateAvgRateStat func(us uintptr, name string, sessionCount float32, sessionLength float64) bool `steam:"SteamAPI_ISteamUserStats_UpdateAvgRateStat"`
	ResetAllStats     func(us uintptr, achievementsToo bool) bool                                     `steam:"SteamAPI_ISteamUserStats_ResetAllStats"`

	// ISteamUserStats: global and friend scopes (request/poll)
	RequestGlobalStats  func(us uintptr, historyDays int32) uint64                         `steam:"SteamAPI_ISteamUserStats_RequestGlobalStats"`
	GetGlobalStatInt64  func(us uintptr, name string, out *int64) bool                     `steam:"SteamAPI_ISteamUserStats_GetGlobalStatInt64"`
	GetGlobalStatDouble func(us uintptr, name string, out *float64) bool                   `steam:"SteamAPI_ISteamUserStats_GetGlobalStatDouble"`
	RequestUserStats    func(us uintptr, steamID uint64) uint64                            `steam:"SteamAPI_ISteamUserStats_RequestUserStats"`
	GetUserStatInt32    func(us uintptr, steamID uint64, name string, out *int32) bool     `steam:"SteamAPI_ISteamUserStats_GetUserStatInt32"`
	GetUserAchievement  func(us uintptr, steamID uint64, name string, achieved *bool) bool `steam:"SteamAPI_ISteamUserStats_GetUserAchievement"`

	GetNumberOfCurrentPlayers func(us uintptr) uint64 `steam:"SteamAPI_ISteamUserStats_GetNumberOfCurrentPlayers"`
}

// parseTag splits a steam struct tag into symbol name and optional flag.
func parseTag(tag string) (symbol string, optional bool) {
	parts := strings.Split(tag, ",")
	symbol = parts[0]
	for _, p := range parts[1:] {
		if p == "optional" {
			optional = true
		}
	}
	return symbol, optional
}

// bindAll resolves every catalogued symbol from the loaded library and
// registers a typed trampoline for it. Any required symbol that is missing
// aborts the whole bind; the SDK binary is then too old for this binding.
func bindAll(lib uintptr, p *procs) error {
	t := reflect.TypeOf(p).Elem()
	v := reflect.ValueOf(p).Elem()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("steam")
		if tag == "" || field.Type.Kind() != reflect.Func {
			continue
		}
		symbol, optional := parseTag(tag)

		addr, err := lookupSymbol(lib, symbol)
		if err != nil {
			if optional {
				continue
			}
			return err
		}

		if err := register(v.Field(i).Addr().Interface(), addr, symbol); err != nil {
			return err
		}
	}
	return nil
}

// register wraps purego.RegisterFunc, converting its panics on signature
// problems into a typed error.
func register(fptr interface{}, addr uintptr, symbol string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewError(errors.ErrCodeInternalError,
				fmt.Sprintf("cannot register %s: %v", symbol, r)).
				WithComponent("native").
				WithContext("symbol", symbol)
		}
	}()
	purego.RegisterFunc(fptr, addr)
	return nil
}

// symbolNames returns every symbol the catalogue declares, for diagnostics.
func symbolNames() []string {
	t := reflect.TypeOf(procs{})
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if tag := t.Field(i).Tag.Get("steam"); tag != "" {
			symbol, _ := parseTag(tag)
			names = append(names, symbol)
		}
	}
	return names
}
