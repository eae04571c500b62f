package domain

import "time"

// User represents an authenticated user account in the system.
type User struct {
	Syncable
	Email         string    `json:"email"`
	PasswordHash  string    `json:"password_hash,omitempty"` // Stored hashed, filter from API responses
	DisplayName   string    `json:"display_name"`
	PhotoID       string    `json:"photo_id,omitempty"`
	PhotoBlurHash string    `json:"photo_blur_hash,omitempty"`
	LastLoginAt   time.Time `json:"last_login_at"`
}

// Name returns the best available name to display for the user.
// Prefers DisplayName, falls back to email.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Email
}

// Session represents an active user session with refresh token.
// Each device gets its own session - you can see what's connected.
type Session struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	RefreshTokenHash string    `json:"refresh_token_hash,omitempty"` // Stored hashed, filter from API responses
	ExpiresAt        time.Time `json:"expires_at"`
	CreatedAt        time.Time `json:"created_at"`
	LastSeenAt       time.Time `json:"last_seen_at"`
	IPAddress        string    `json:"ip_address,omitempty"`

	// Device information reported by the client at login.
	Platform   string `json:"platform,omitempty"`    // iOS, Android, Web
	ClientName string `json:"client_name,omitempty"` // Tally Mobile, Tally Web
	DeviceName string `json:"device_name,omitempty"` // user-set, optional
}

// Touch updates the session's last seen timestamp.
func (s *Session) Touch() {
	s.LastSeenAt = time.Now()
}

// IsExpired checks if the session has passed its expiration time.
func (s *Session) IsExpired() bool {
	return time.Now().After(s.ExpiresAt)
}

// DisplayName returns a human-readable description of the device.
func (s *Session) DisplayName() string {
	if s.DeviceName != "" {
		return s.DeviceName
	}
	if s.Platform != "" {
		return s.Platform
	}
	if s.ClientName != "" {
		return s.ClientName
	}
	return "Unknown Device"
}
