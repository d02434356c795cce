// Package session keeps server-side sessions. A session expires after a period
// of inactivity or when its absolute lifetime runs out, whichever comes first.
package session

import (
	"errors"
	"time"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
)

type Session struct {
	ID             string    `json:"id"`
	UserID         int64     `json:"userId"`
	CreatedAt      time.Time `json:"createdAt"`
	LastActivity   time.Time `json:"lastActivity"`
	ExpiresAt      time.Time `json:"expiresAt"`
	AbsoluteExpiry time.Time `json:"absoluteExpiry"`
	IPAddress      string    `json:"ipAddress,omitempty"`
	UserAgent      string    `json:"userAgent,omitempty"`
}

func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt) || !now.Before(s.AbsoluteExpiry)
}

// extend slides the inactivity deadline without passing the absolute expiry.
func (s *Session) extend(now time.Time, timeout time.Duration) {
	s.LastActivity = now
	s.ExpiresAt = now.Add(timeout)
	if s.ExpiresAt.After(s.AbsoluteExpiry) {
		s.ExpiresAt = s.AbsoluteExpiry
	}
}
