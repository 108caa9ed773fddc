// Package model defines domain entities used by services and repositories.
package model

import (
	"slices"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is a named privilege held through a Grant.
type Role string

// Known roles.
const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleAdmin || r == RoleUser }

// GrantType is an OAuth 2.0 flow variant.
type GrantType string

// Supported grant types.
const (
	GrantPassword     GrantType = "password"
	GrantRefreshToken GrantType = "refresh_token"
)

// Valid reports whether g is a supported grant type.
func (g GrantType) Valid() bool { return g == GrantPassword || g == GrantRefreshToken }

// Gender is an optional profile attribute.
type Gender string

// Accepted genders.
const (
	GenderMale   Gender = "Male"
	GenderFemale Gender = "Female"
)

// Valid reports whether g is empty or one of the accepted values.
func (g Gender) Valid() bool { return g == "" || g == GenderMale || g == GenderFemale }

// TokenTypeBearer is the only token type issued.
const TokenTypeBearer = "Bearer"

// User represents an account. The password is never stored in plaintext.
type User struct {
	ID       uuid.UUID // PK
	Username string    // unique, public identifier
	Email    string    // unique
	PwdHash  []byte    // Argon2id(password, SaltAuth)
	SaltAuth []byte    // per-user auth salt

	Name   string
	URL    string
	Bio    string
	Born   *time.Time
	Gender Gender

	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Identity returns the typed identity carried by tokens.
func (u *User) Identity() UserIdentity {
	return UserIdentity{ID: u.ID, Username: u.Username}
}

// UserIdentity is the minimal owner reference of a token.
type UserIdentity struct {
	ID       uuid.UUID
	Username string
}

// Valid reports whether the identity carries its key.
func (i UserIdentity) Valid() bool { return i.ID != uuid.Nil }

// Application groups clients under a single owning user.
type Application struct {
	ID          uuid.UUID
	Name        string
	Description string
	URL         string
	OwnerID     uuid.UUID // unique
	CreatedAt   time.Time
	ModifiedAt  time.Time
}

// Client is a registered application credential.
type Client struct {
	ID                uuid.UUID
	SecretHash        []byte // bcrypt
	Name              string
	RedirectURI       string
	AllowedGrantTypes []GrantType
	AppID             uuid.UUID // uuid.Nil when detached
	CreatedAt         time.Time
}

// Allows reports whether the client may use grant type g.
func (c *Client) Allows(g GrantType) bool {
	return slices.Contains(c.AllowedGrantTypes, g)
}

// Token is a live bearer credential. ExpiresIn is the TTL in seconds recorded at issuance.
type Token struct {
	ID           uuid.UUID
	UserID       uuid.UUID
	ClientID     uuid.UUID
	TokenType    string
	AccessToken  string
	RefreshToken string // empty when absent
	ExpiresIn    int64
	CreatedAt    time.Time
}

// ExpiresAt returns the absolute expiry instant.
func (t *Token) ExpiresAt() time.Time {
	return t.CreatedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
}

// Expired reports whether now is past created + ttl.
func (t *Token) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt())
}

// RemainingExpiresIn returns whole seconds left before expiry, never negative.
func (t *Token) RemainingExpiresIn(now time.Time) int64 {
	left := t.ExpiresAt().Sub(now)
	if left <= 0 {
		return 0
	}
	return int64(left / time.Second)
}

// Grant is a (user, role) access-control entry.
type Grant struct {
	UserID    uuid.UUID
	Role      Role
	CreatedAt time.Time
}
