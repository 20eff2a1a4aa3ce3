// Package auth verifies session tokens and classifies callers as admins or
// applicants.
package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionTTL is the lifetime of a freshly signed session token.
const SessionTTL = 7 * 24 * time.Hour

var (
	// ErrUnauthorized covers every reason a caller is not let through: no
	// token, a bad signature, a malformed claim set, expiry or the wrong role.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidCredentials is returned when an email/password pair does not match.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type Role string

const (
	RoleAdmin     Role = "admin"
	RoleApplicant Role = "applicant"
)

// Identity is the part of a user record that is carried in a session.
type Identity struct {
	ID             int64
	Email          string
	IsAdmin        bool
	IsOwner        bool
	ApplicantOrgID *int64
}

type Claims struct {
	ID             int64  `json:"id"`
	Email          string `json:"email"`
	IsAdmin        bool   `json:"isAdmin"`
	IsOwner        bool   `json:"isOwner"`
	ApplicantOrgID *int64 `json:"applicantOrgId"`
	jwt.RegisteredClaims
}

func (c *Claims) Identity() Identity {
	return Identity{
		ID:             c.ID,
		Email:          c.Email,
		IsAdmin:        c.IsAdmin,
		IsOwner:        c.IsOwner,
		ApplicantOrgID: c.ApplicantOrgID,
	}
}

// OrgID returns the applicant organization, or 0 for admin identities.
func (c *Claims) OrgID() int64 {
	if c.ApplicantOrgID == nil {
		return 0
	}
	return *c.ApplicantOrgID
}

// wellFormed enforces the claim shape: an id and email are always present,
// admins and owners never belong to an organization, applicants always do.
func (c *Claims) wellFormed() bool {
	if c.ID <= 0 || c.Email == "" {
		return false
	}
	if c.IsAdmin || c.IsOwner {
		return c.ApplicantOrgID == nil
	}
	return c.ApplicantOrgID != nil && *c.ApplicantOrgID > 0
}

type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

type IssuerOption func(*Issuer)

// WithClock overrides the time source used for issuing and verifying.
func WithClock(now func() time.Time) IssuerOption {
	return func(i *Issuer) { i.now = now }
}

func WithTTL(ttl time.Duration) IssuerOption {
	return func(i *Issuer) { i.ttl = ttl }
}

func NewIssuer(secret string, opts ...IssuerOption) *Issuer {
	issuer := &Issuer{secret: []byte(secret), ttl: SessionTTL, now: time.Now}
	for _, opt := range opts {
		opt(issuer)
	}
	return issuer
}

// Sign mints an HS256 token for the identity.
func (i *Issuer) Sign(id Identity) (string, time.Time, error) {
	now := i.now()
	expiresAt := now.Add(i.ttl)
	claims := &Claims{
		ID:             id.ID,
		Email:          id.Email,
		IsAdmin:        id.IsAdmin,
		IsOwner:        id.IsOwner,
		ApplicantOrgID: id.ApplicantOrgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if !claims.wellFormed() {
		return "", time.Time{}, errors.New("identity violates session claim shape")
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Authenticate verifies the token and returns its claims. All failures are
// reported as ErrUnauthorized.
func (i *Issuer) Authenticate(token string) (*Claims, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrUnauthorized
	}
	if !claims.wellFormed() {
		return nil, ErrUnauthorized
	}
	return claims, nil
}

// RequireRole narrows an authenticated caller to a role.
func RequireRole(claims *Claims, role Role) (*Claims, error) {
	if claims == nil {
		return nil, ErrUnauthorized
	}
	switch role {
	case RoleAdmin:
		if claims.IsAdmin {
			return claims, nil
		}
	case RoleApplicant:
		if !claims.IsAdmin && !claims.IsOwner && claims.ApplicantOrgID != nil {
			return claims, nil
		}
	}
	return nil, ErrUnauthorized
}

// IsAuthError reports whether err is expected, caller-caused auth traffic
// that should be kept out of error telemetry.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrInvalidCredentials)
}
