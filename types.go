package tokenlife

import "time"

// TokenKind discriminates the three token roles inside a [TokenSet].
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
	KindID      TokenKind = "id"
)

// Token is an opaque signed value plus the local metadata recorded at
// issuance. Tokens are immutable once issued; a rotation produces a distinct
// Token with a new ID.
type Token struct {
	Value     string    `json:"value"`
	ID        string    `json:"id"`
	Kind      TokenKind `json:"kind"`
	UserID    string    `json:"user_id"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// TokenSet is the unit of issuance: the access+refresh(+id) bundle created
// atomically for one authenticated identity. A set is owned by exactly one
// session registry entry until it is revoked or replaced by rotation.
type TokenSet struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	AccessToken  Token     `json:"access_token"`
	RefreshToken Token     `json:"refresh_token"`
	IDToken      *Token    `json:"id_token,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// ChainID identifies the rotation chain this set belongs to. It is
	// constant across rotations; ChainIssuedAt anchors the absolute-expiry
	// check to the original issuance, not the latest rotation.
	ChainID       string    `json:"chain_id"`
	ChainIssuedAt time.Time `json:"chain_issued_at"`
	// RefreshChain counts rotation depth for auditing; 0 for a fresh set.
	RefreshChain int `json:"refresh_chain"`
	// PreviousTokenID references the refresh token consumed to mint this
	// set, empty for a fresh set.
	PreviousTokenID string `json:"previous_token_id,omitempty"`

	SecurityContext SecurityContext `json:"security_context"`
}

// SecurityContext captures the contextual binding data observed at issuance
// or use time. It is used for anomaly detection and the optional strict
// binding checks, never for authorization decisions.
type SecurityContext struct {
	ClientIP  string `json:"client_ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	DeviceID  string `json:"device_id,omitempty"`
}

// UserPayload is the authenticated identity handed to [Engine.CreateTokenSet].
type UserPayload struct {
	UserID      string
	Role        string
	Permissions []string
	// Profile claims are carried by the optional identity token only.
	Profile map[string]string
}

// ValidationResult is returned by [Engine.ValidateAccessToken]. Failures are
// reported through Valid/Code/Reason rather than an error; the error return
// is reserved for infrastructure faults.
type ValidationResult struct {
	Valid  bool   `json:"valid"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`

	TokenID     string    `json:"token_id,omitempty"`
	TokenSetID  string    `json:"token_set_id,omitempty"`
	UserID      string    `json:"user_id,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`

	// ShouldRefresh signals the caller that the token is inside its renewal
	// window and a proactive refresh is advised.
	ShouldRefresh bool `json:"should_refresh"`
	// Warnings carries non-fatal security anomalies (advisory binding
	// mismatches, suspected replay). A warning never fails validation.
	Warnings []string `json:"warnings,omitempty"`
}

// RevocationRecord is the denylist entry produced by a revoke operation. The
// record is forgotten after TTL elapses; the denylist bounds memory growth,
// not security.
type RevocationRecord struct {
	TokenID   string        `json:"token_id"`
	UserID    string        `json:"user_id,omitempty"`
	Reason    string        `json:"reason"`
	RevokedAt time.Time     `json:"revoked_at"`
	TTL       time.Duration `json:"ttl"`
	// NewTokenSetID references the replacement set when the reason is
	// rotation.
	NewTokenSetID string `json:"new_token_set_id,omitempty"`
}

// Well-known revocation reasons. Any non-empty string is accepted.
const (
	ReasonRotated     = "rotated"
	ReasonUserRequest = "user_request"
	ReasonEvicted     = "evicted"
	ReasonRevokeAll   = "revoke_all"
)

// RevokeAllResult reports the outcome of a batch revocation. Individual
// failures do not abort the batch.
type RevokeAllResult struct {
	UserID        string   `json:"user_id"`
	RevokedSetIDs []string `json:"revoked_set_ids"`
	Failed        int      `json:"failed"`
}

// SessionInfo describes one user's active sessions.
type SessionInfo struct {
	UserID      string   `json:"user_id"`
	Count       int      `json:"count"`
	TokenSetIDs []string `json:"token_set_ids"`
}

// SessionSummary is the global observability view of the session registry.
type SessionSummary struct {
	Users    int `json:"users"`
	Sessions int `json:"sessions"`
}
