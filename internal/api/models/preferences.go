package models

// Preferences are the user's scheduling preferences.
type Preferences struct {
	DefaultBufferMinutes      int       `json:"defaultBufferMinutes"`
	LeaveNotificationsEnabled bool      `json:"leaveNotificationsEnabled"`
	UpdatedAt                 Timestamp `json:"updatedAt"`
}

// PreferencesInput is the request body for updating preferences.
type PreferencesInput struct {
	DefaultBufferMinutes      *int  `json:"defaultBufferMinutes,omitempty"`
	LeaveNotificationsEnabled *bool `json:"leaveNotificationsEnabled,omitempty"`
}

// LocationUpdate reports a significant change of the user's position.
type LocationUpdate struct {
	Point Point `json:"point"`
}
