package types

import (
	"time"
)

// APICall identifies an in-flight asynchronous request inside the Steam
// client. Zero is the invalid handle.
type APICall uint64

// InvalidAPICall is returned by request operations that failed to issue.
const InvalidAPICall APICall = 0

// AchievementRecord represents a single achievement from the application's
// catalogue. Records are produced fresh on every enumeration; they are not
// cached by the binding layer.
type AchievementRecord struct {
	APIName     string    `json:"api_name"`
	DisplayName string    `json:"display_name"`
	Description string    `json:"description"`
	Hidden      bool      `json:"hidden"`
	Unlocked    bool      `json:"unlocked"`
	UnlockTime  time.Time `json:"unlock_time,omitempty"`
}

// StatKind identifies how a stat was declared on the Steamworks backend.
// The kind used locally must match the partner-site declaration; a mismatch
// is a caller error and is not validated by the binding layer.
type StatKind string

const (
	StatInt32   StatKind = "int32"
	StatFloat   StatKind = "float"
	StatInt64   StatKind = "int64"
	StatDouble  StatKind = "double"
	StatAvgRate StatKind = "avgrate"
)

// StatValue represents a single named stat and its current value. Exactly
// one of Int or Float carries the value, selected by Kind.
type StatValue struct {
	Name  string   `json:"name"`
	Kind  StatKind `json:"kind"`
	Int   int64    `json:"int_value,omitempty"`
	Float float64  `json:"float_value,omitempty"`
}

// GlobalStatValue represents an aggregated stat across all players.
type GlobalStatValue struct {
	Name   string   `json:"name"`
	Kind   StatKind `json:"kind"`
	Int64  int64    `json:"int64_value,omitempty"`
	Double float64  `json:"double_value,omitempty"`
}

// InitOptions carries everything needed to bring the binding layer up.
type InitOptions struct {
	// AppID is the Steam application identifier. Required, must be positive.
	AppID uint32

	// SDKRoot is the directory holding the Steamworks redistributable
	// binaries. Defaults to "./sdk" when empty.
	SDKRoot string

	// LibraryPath overrides platform resolution entirely when set.
	LibraryPath string
}

// Status is the snapshot returned by the facade's Status operation.
type Status struct {
	Initialized bool   `json:"initialized"`
	AppID       uint32 `json:"app_id"`
	SteamID     uint64 `json:"steam_id"`
	PersonaName string `json:"persona_name,omitempty"`
	Backend     string `json:"backend"`
}

// PlayerCount is the result of a current-player-count request.
type PlayerCount struct {
	Players   int32     `json:"players"`
	FetchedAt time.Time `json:"fetched_at"`
}
