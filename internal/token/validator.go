// Package token holds local, network-free checks over bearer tokens.
//
// The checks are structural: a token is three dot-separated base64 segments whose
// middle segment is a JSON claims record. Signatures are never verified here; the
// backend remains the trust boundary.
package token

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var errNoExpiry = errors.New("token: no exp claim")

// segments are decoded leniently: padding optional, both alphabets accepted.
var segParser = jwt.NewParser(jwt.WithPaddingAllowed())

var alphabet = strings.NewReplacer("+", "-", "/", "_")

// Claims is the subset of the payload the client cares about.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	Name  string `json:"name,omitempty"`
	Type  string `json:"typ,omitempty"`
}

// Validator answers format and expiry questions about token strings.
// The zero value is ready to use and reads the wall clock.
type Validator struct {
	now func() time.Time
}

// NewValidator returns a Validator using clock for expiry comparisons (nil means time.Now).
func NewValidator(clock func() time.Time) *Validator {
	return &Validator{now: clock}
}

func (v *Validator) clock() time.Time {
	if v == nil || v.now == nil {
		return time.Now()
	}
	return v.now()
}

func decodeSegment(seg string) ([]byte, error) {
	return segParser.DecodeSegment(alphabet.Replace(seg))
}

// IsValidFormat reports whether tok has exactly three segments and every non-empty
// segment decodes as base64.
func (v *Validator) IsValidFormat(tok string) bool {
	if tok == "" {
		return false
	}
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return false
	}
	for _, seg := range parts {
		if seg == "" {
			continue
		}
		if _, err := decodeSegment(seg); err != nil {
			return false
		}
	}
	return true
}

// ExpiryTime returns the exp claim of tok. ok is false when the payload cannot be
// decoded or carries no exp.
func (v *Validator) ExpiryTime(tok string) (time.Time, bool) {
	exp, err := v.expiry(tok)
	if err != nil {
		return time.Time{}, false
	}
	return exp, true
}

// IsExpired reports whether tok is past its exp. Anything undecodable counts as expired.
func (v *Validator) IsExpired(tok string) bool {
	exp, err := v.expiry(tok)
	if err != nil {
		return true
	}
	return exp.Before(v.clock())
}

func (v *Validator) expiry(tok string) (time.Time, error) {
	payload, err := payloadSegment(tok)
	if err != nil {
		return time.Time{}, err
	}
	var c struct {
		Exp *jwt.NumericDate `json:"exp"`
	}
	if err := json.Unmarshal(payload, &c); err != nil {
		return time.Time{}, err
	}
	if c.Exp == nil {
		return time.Time{}, errNoExpiry
	}
	return c.Exp.Time, nil
}

// Claims decodes the payload of tok without verifying it.
func (v *Validator) Claims(tok string) (Claims, error) {
	var c Claims
	payload, err := payloadSegment(tok)
	if err != nil {
		return c, err
	}
	if err := json.Unmarshal(payload, &c); err != nil {
		return Claims{}, err
	}
	return c, nil
}

func payloadSegment(tok string) ([]byte, error) {
	parts := strings.Split(tok, ".")
	if len(parts) != 3 {
		return nil, jwt.ErrTokenMalformed
	}
	return decodeSegment(parts[1])
}
