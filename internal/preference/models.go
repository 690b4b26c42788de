// Package preference stores the per-user settings that shape scheduling:
// the default buffer applied to trips without their own, and whether leave
// notifications are delivered at all.
package preference

import (
	"errors"
	"time"
)

// DefaultBufferMinutes is used for users that never saved preferences.
const DefaultBufferMinutes = 10

// MaxBufferMinutes bounds the default buffer.
const MaxBufferMinutes = 180

// ErrPreferencesNotFound is returned when a user has no stored preferences.
var ErrPreferencesNotFound = errors.New("preferences not found")

// Preferences are the scheduling preferences of one user.
type Preferences struct {
	UserID                    string
	DefaultBufferMinutes      int
	LeaveNotificationsEnabled bool
	UpdatedAt                 time.Time
}

// Defaults returns the preferences of a user that never saved any.
func Defaults(userID string) *Preferences {
	return &Preferences{
		UserID:                    userID,
		DefaultBufferMinutes:      DefaultBufferMinutes,
		LeaveNotificationsEnabled: true,
	}
}
