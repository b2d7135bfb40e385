package session

import "time"

// Session is a time-bounded authentication grant tied to one Pi user.
// Metadata is unstructured extension data supplied at authentication time;
// nothing in the gateway branches on its contents.
type Session struct {
	ID          string         `json:"session_id"`
	UserID      string         `json:"user_id"`
	Username    string         `json:"username"`
	AccessToken string         `json:"access_token"`
	CreatedAt   time.Time      `json:"created_at"`
	ExpiresAt   time.Time      `json:"expires_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Expired reports whether the session has passed its expiry at the given time.
// A session is valid up to and including its expiry instant.
func (s *Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}
