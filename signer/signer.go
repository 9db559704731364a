package signer

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the JWT signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

var (
	// ErrMalformed is returned for tokens that cannot be parsed or whose
	// signature does not verify.
	ErrMalformed = errors.New("token malformed or signature invalid")
	// ErrExpired is returned when a token's exp claim has elapsed.
	ErrExpired = errors.New("token expired")
)

// Payload is the claim set handed to [Signer.CreateToken].
type Payload struct {
	UserID      string
	Kind        string
	SetID       string
	Role        string
	Permissions []string
	Profile     map[string]string
}

// CreateOptions carries per-mint parameters; issuer and audience come from
// the manager configuration.
type CreateOptions struct {
	TTL time.Duration
}

// Created is the mint result: the signed token plus the identifiers the
// lifecycle layer records.
type Created struct {
	Token     string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Claims is the verified view of a presented token.
type Claims struct {
	TokenID     string
	UserID      string
	Kind        string
	SetID       string
	Role        string
	Permissions []string
	Profile     map[string]string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Signer is the contract the engine consumes. Verification failures are
// reported as [ErrMalformed] or [ErrExpired]; anything else is an
// infrastructure fault.
type Signer interface {
	CreateToken(ctx context.Context, payload Payload, opts CreateOptions) (*Created, error)
	ValidateToken(ctx context.Context, token string) (*Claims, error)
	// Peek extracts the token id and subject without verifying the
	// signature. Best-effort; used for revocation lookups that must run
	// before cryptographic checks and for the refresh gate key, never for
	// authorization.
	Peek(token string) (tokenID, userID string, err error)
}

// Config holds the signing manager parameters.
type Config struct {
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
	// KeyID is stamped into minted token headers. VerifyKeys maps key ids
	// to public keys so rotated signing keys keep verifying old tokens.
	KeyID      string
	VerifyKeys map[string][]byte
	// Clock overrides time.Now for deterministic tests.
	Clock func() time.Time
}

// Manager is the JWT implementation of [Signer].
type Manager struct {
	config Config
	now    func() time.Time
}

type lifecycleClaims struct {
	Kind        string            `json:"tkn"`
	SetID       string            `json:"set,omitempty"`
	Role        string            `json:"role,omitempty"`
	Permissions []string          `json:"perm,omitempty"`
	Profile     map[string]string `json:"profile,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates the configuration and returns a ready Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)
	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
	case MethodEd25519:
		if len(cfg.PrivateKey) > 0 {
			if _, err := parseEdPrivateKey(cfg.PrivateKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.PublicKey) > 0 {
			if _, err := parseEdPublicKey(cfg.PublicKey); err != nil {
				return nil, err
			}
		}
		if len(cfg.VerifyKeys) == 0 && len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
		for kid, key := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			if _, err := parseEdPublicKey(key); err != nil {
				return nil, fmt.Errorf("invalid ed25519 verify key for kid %q: %w", kid, err)
			}
		}
	default:
		return nil, errors.New("unsupported signing method")
	}
	if cfg.KeyID != "" && len(cfg.VerifyKeys) > 0 {
		if _, ok := cfg.VerifyKeys[cfg.KeyID]; !ok {
			return nil, errors.New("KeyID is not present in VerifyKeys")
		}
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Manager{config: cfg, now: now}, nil
}

// CreateToken mints a signed token with a fresh UUID token id.
func (m *Manager) CreateToken(_ context.Context, payload Payload, opts CreateOptions) (*Created, error) {
	if opts.TTL <= 0 {
		return nil, errors.New("token TTL must be positive")
	}
	if payload.UserID == "" {
		return nil, errors.New("payload user id required")
	}

	now := m.now()
	tokenID := uuid.NewString()
	expiresAt := now.Add(opts.TTL)

	claims := lifecycleClaims{
		Kind:        payload.Kind,
		SetID:       payload.SetID,
		Role:        payload.Role,
		Permissions: payload.Permissions,
		Profile:     payload.Profile,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   payload.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	token := jwt.NewWithClaims(m.getMethod(), claims)
	if m.config.KeyID != "" {
		token.Header["kid"] = m.config.KeyID
	}

	signKey, err := m.getSignKey()
	if err != nil {
		return nil, err
	}
	signed, err := token.SignedString(signKey)
	if err != nil {
		return nil, err
	}

	return &Created{
		Token:     signed,
		TokenID:   tokenID,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}, nil
}

// ValidateToken verifies signature, expiry, issuer, and audience.
func (m *Manager) ValidateToken(_ context.Context, tokenStr string) (*Claims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.getMethod().Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &lifecycleClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != m.getMethod().Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		if len(m.config.VerifyKeys) > 0 {
			kid, _ := t.Header["kid"].(string)
			if kid == "" {
				return nil, errors.New("missing kid")
			}
			key, ok := m.config.VerifyKeys[kid]
			if !ok {
				return nil, errors.New("unknown kid")
			}
			return m.keyBytesToVerifyKey(key)
		}

		return m.getVerifyKey()
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	claims, ok := token.Claims.(*lifecycleClaims)
	if !ok || !token.Valid {
		return nil, ErrMalformed
	}

	out := &Claims{
		TokenID:     claims.ID,
		UserID:      claims.Subject,
		Kind:        claims.Kind,
		SetID:       claims.SetID,
		Role:        claims.Role,
		Permissions: claims.Permissions,
		Profile:     claims.Profile,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Peek reads the jti and sub claims without signature verification.
func (m *Manager) Peek(tokenStr string) (string, string, error) {
	parser := jwt.NewParser()
	token, _, err := parser.ParseUnverified(tokenStr, &lifecycleClaims{})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	claims, ok := token.Claims.(*lifecycleClaims)
	if !ok || claims.ID == "" {
		return "", "", ErrMalformed
	}
	return claims.ID, claims.Subject, nil
}

func (m *Manager) getMethod() jwt.SigningMethod {
	switch m.config.SigningMethod {
	case MethodHS256:
		return jwt.SigningMethodHS256
	default:
		return jwt.SigningMethodEdDSA
	}
}

func (m *Manager) getSignKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPrivateKey(m.config.PrivateKey)
	}
}

func (m *Manager) getVerifyKey() (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return m.config.PrivateKey, nil
	default:
		return parseEdPublicKey(m.config.PublicKey)
	}
}

func (m *Manager) keyBytesToVerifyKey(key []byte) (interface{}, error) {
	switch m.config.SigningMethod {
	case MethodHS256:
		return key, nil
	default:
		return parseEdPublicKey(key)
	}
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid ed25519 private key length")
	}
	return ed25519.PrivateKey(key), nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) != ed25519.PublicKeySize {
		return nil, errors.New("invalid ed25519 public key length")
	}
	return ed25519.PublicKey(key), nil
}
