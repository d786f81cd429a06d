package model

import "time"

// TokenResponse is the token endpoint payload for authorization-code and
// refresh-token grants. RefreshToken and ExpiresIn are zero when the
// endpoint omits them.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	InstanceURL  string
	ID           string
	IssuedAt     string
	Signature    string
	ExpiresIn    time.Duration
}

// DefaultTokenLifetime is assumed when the token endpoint reports no
// expires_in.
const DefaultTokenLifetime = 2 * time.Hour

// RefreshLeadTime is how long before expiry a token is refreshed.
const RefreshLeadTime = 5 * time.Minute

// Expiry returns the absolute expiry for a token issued at now.
func (r TokenResponse) Expiry(now time.Time) time.Time {
	lifetime := r.ExpiresIn
	if lifetime <= 0 {
		lifetime = DefaultTokenLifetime
	}
	return now.Add(lifetime)
}
