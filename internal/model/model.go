// Package model defines domain entities shared by the client session layer and the backend.
package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
)

// Role is the marketplace side an account acts on.
type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool { return r == RoleClient || r == RoleFreelancer }

// ParseRole normalizes s into a Role.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// User is the identity half of a session as the client sees it.
type User struct {
	Email       string `json:"email"`
	Role        Role   `json:"role"`
	DisplayName string `json:"name,omitempty"`
}

// Credentials is the bundle persisted by the client token store.
type Credentials struct {
	AccessToken  string
	RefreshToken string // empty when absent
	User         User
}

// Tokens collects issued access/refresh tokens.
type Tokens struct {
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken,omitempty"`
	ExpiresAt    time.Time `json:"-"` // access token expiry (for diagnostics)
}

// Account represents a marketplace account stored on the server. Passwords are never stored in plaintext.
type Account struct {
	ID        uuid.UUID // PK
	Email     string    // unique, lower-cased
	Role      Role
	Name      string
	PwdHash   []byte // Argon2id(password, SaltAuth)
	SaltAuth  []byte // per-account salt
	CreatedAt time.Time
}

// Profile is the public projection of an Account.
func (a Account) Profile() User {
	return User{Email: a.Email, Role: a.Role, DisplayName: a.Name}
}

// RefreshRecord tracks an issued refresh token by the hash of its jti.
type RefreshRecord struct {
	IDHash    []byte // sha256(jti)
	AccountID uuid.UUID
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}
