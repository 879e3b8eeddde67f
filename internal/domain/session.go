package domain

import "time"

// SessionStatus is the lifecycle state of the source session.
type SessionStatus string

const (
	SessionUnauthenticated   SessionStatus = "unauthenticated"
	SessionActive            SessionStatus = "active"
	SessionChallengeRequired SessionStatus = "challenge_required"
	SessionExpired           SessionStatus = "expired"
)

// Credentials are the operator's login details for the source.
type Credentials struct {
	Username string
	Password string
	// Email answers the "confirm your identity" prompt some logins show before the password.
	Email string
}

// Session holds the authenticated cookie jar for the source.
type Session struct {
	Credentials   map[string]string
	Status        SessionStatus
	LastValidated time.Time
}

// Usable reports whether the session may be handed to the source adapter.
func (s Session) Usable(now time.Time, freshness time.Duration) bool {
	if s.Status != SessionActive || len(s.Credentials) == 0 || s.LastValidated.IsZero() {
		return false
	}
	return now.Sub(s.LastValidated) < freshness
}

// Clone returns a copy that does not share the cookie map.
func (s Session) Clone() Session {
	out := s
	if s.Credentials != nil {
		out.Credentials = make(map[string]string, len(s.Credentials))
		for k, v := range s.Credentials {
			out.Credentials[k] = v
		}
	}
	return out
}
