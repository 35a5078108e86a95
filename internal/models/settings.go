package models

// Settings are operator preferences persisted with the filter state.
type Settings struct {
	Language      string `json:"language"`
	Theme         string `json:"theme"`
	Notifications *bool  `json:"notifications"`
}

// DefaultSettings mirrors the first-run preferences of the dashboard.
func DefaultSettings() Settings {
	on := true
	return Settings{Language: "ru", Theme: "light", Notifications: &on}
}

// Merge overlays the non-zero fields of patch onto s.
func (s Settings) Merge(patch Settings) Settings {
	if patch.Language != "" {
		s.Language = patch.Language
	}
	if patch.Theme != "" {
		s.Theme = patch.Theme
	}
	if patch.Notifications != nil {
		v := *patch.Notifications
		s.Notifications = &v
	}
	return s
}

// NotificationsEnabled treats an unset flag as enabled.
func (s Settings) NotificationsEnabled() bool {
	return s.Notifications == nil || *s.Notifications
}

// User is the signed-in operator, if any.
type User struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}
