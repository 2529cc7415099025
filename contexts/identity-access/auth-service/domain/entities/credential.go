package entities

import "time"

// Credential is the local identity record. The password is only ever held
// as a bcrypt hash.
type Credential struct {
	UserID       string
	Name         string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is the server-side view of an issued token; SessionID is the
// token's jti and is what logout revokes.
type Session struct {
	SessionID string
	UserID    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (s Session) ExpiredAt(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
