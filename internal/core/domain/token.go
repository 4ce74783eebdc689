package domain

import "time"

// TokenTTL is the absolute lifetime of an AuthToken.
const TokenTTL = 15 * time.Minute

// AuthToken authorizes one new agent on an account. Only Hash is persisted;
// Secret is set once at issuance and handed to the issuing agent.
type AuthToken struct {
	Hash      string    `json:"hash"`
	Secret    string    `json:"-"`
	AccountID string    `json:"account_id"`
	IssuedBy  string    `json:"issued_by"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the token is no longer usable at now.
// The expiry instant itself is already out.
func (t *AuthToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
