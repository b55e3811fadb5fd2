package model

import "time"

// Session is issued to a client so its requests share one rate limit
// window.
type Session struct {
	ID           string    `json:"session_id"`
	ClientSecret string    `json:"client_secret"`
	ExpiresAt    time.Time `json:"expires_at"`
}
