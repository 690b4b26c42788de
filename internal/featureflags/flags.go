// Package featureflags provides runtime kill-switches for the leave-time
// pipeline, read through a short-lived cache in front of a repository.
package featureflags

import (
	"time"
)

// Well-known flag keys.
const (
	// FlagDisableRemotePrediction makes the orchestrator skip the remote
	// model and use the local heuristic.
	FlagDisableRemotePrediction = "disable_remote_prediction"

	// FlagDisableNotificationSending holds due notifications in the center.
	FlagDisableNotificationSending = "disable_notification_sending"

	// FlagDisableManualRefresh rejects manual refresh requests at the API.
	FlagDisableManualRefresh = "disable_manual_refresh"
)

// Flag is a feature flag with its current value. Values decoded from JSON
// arrive as bool, float64 or string.
type Flag struct {
	Key       string    `json:"key"`
	Value     any       `json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FlagUpdate is a single flag update.
type FlagUpdate struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// FlagUpdateRequest is the body of a flag update.
type FlagUpdateRequest struct {
	Updates []FlagUpdate `json:"updates"`
	Reason  string       `json:"reason"`
}

// BoolValue returns the value as a boolean, or def when f is nil or not a
// boolean. Non-zero numbers are true.
func (f *Flag) BoolValue(def bool) bool {
	if f == nil {
		return def
	}
	switch v := f.Value.(type) {
	case bool:
		return v
	case float64:
		return v != 0
	default:
		return def
	}
}

// IntValue returns the value as an integer, or def when f is nil or not a
// number.
func (f *Flag) IntValue(def int) int {
	if f == nil {
		return def
	}
	switch v := f.Value.(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return def
	}
}

// DefaultFlags returns the flags in effect when the repository has none.
// Every kill-switch defaults to off.
func DefaultFlags() map[string]*Flag {
	keys := []string{
		FlagDisableRemotePrediction,
		FlagDisableNotificationSending,
		FlagDisableManualRefresh,
	}
	flags := make(map[string]*Flag, len(keys))
	for _, k := range keys {
		flags[k] = &Flag{Key: k, Value: false}
	}
	return flags
}

// Known reports whether key is a well-known flag.
func Known(key string) bool {
	_, ok := DefaultFlags()[key]
	return ok
}
