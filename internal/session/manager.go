// Package session is the single authority over the client's credential lifecycle.
//
// Manager sits between callers and the token store: nothing reaches the store
// without passing format validation, and malformed values found in the store are
// erased on sight instead of being handed out.
package session

import (
	"go.uber.org/zap"

	"github.com/and161185/gigmarket/internal/model"
	"github.com/and161185/gigmarket/internal/token"
	"github.com/and161185/gigmarket/internal/tokenstore"
)

// Manager composes a token store and a validator.
type Manager struct {
	store tokenstore.Store
	v     *token.Validator
	log   *zap.Logger
}

// NewManager wires a Manager. Nil arguments fall back to a Nop store, a wall-clock
// validator and a no-op logger.
func NewManager(store tokenstore.Store, v *token.Validator, log *zap.Logger) *Manager {
	if store == nil {
		store = tokenstore.Nop{}
	}
	if v == nil {
		v = token.NewValidator(nil)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Manager{store: store, v: v, log: log}
}

// Validator exposes the validator the manager checks tokens with.
func (m *Manager) Validator() *token.Validator { return m.v }

// AccessToken returns the stored access token. A malformed one wipes the whole session.
func (m *Manager) AccessToken() (string, bool) {
	tok, ok := m.store.Read(tokenstore.SlotAccessToken)
	if !ok || tok == "" {
		return "", false
	}
	if !m.v.IsValidFormat(tok) {
		m.log.Warn("malformed access token in store, clearing session")
		m.store.EraseAll()
		return "", false
	}
	return tok, true
}

// RefreshToken returns the stored refresh token. A malformed one is removed on its own;
// the access token and identity stay.
func (m *Manager) RefreshToken() (string, bool) {
	tok, ok := m.store.Read(tokenstore.SlotRefreshToken)
	if !ok || tok == "" {
		return "", false
	}
	if !m.v.IsValidFormat(tok) {
		m.log.Warn("malformed refresh token in store, removing it")
		if err := m.store.Remove(tokenstore.SlotRefreshToken); err != nil {
			m.log.Warn("remove refresh token", zap.Error(err))
		}
		return "", false
	}
	return tok, true
}

// CurrentUser returns the stored identity; false unless email and role are both set.
func (m *Manager) CurrentUser() (model.User, bool) {
	email, _ := m.store.Read(tokenstore.SlotEmail)
	role, _ := m.store.Read(tokenstore.SlotRole)
	if email == "" || role == "" {
		return model.User{}, false
	}
	name, _ := m.store.Read(tokenstore.SlotName)
	return model.User{Email: email, Role: model.Role(role), DisplayName: name}, true
}

// HasSession reports a format-valid access token plus an identity. Expiry is not
// consulted: an expired but refreshable session still counts as logged in.
func (m *Manager) HasSession() bool {
	if _, ok := m.AccessToken(); !ok {
		return false
	}
	_, ok := m.CurrentUser()
	return ok
}

// SetSession stores a complete credential bundle. Nothing is written when any
// token is malformed or the identity is incomplete.
func (m *Manager) SetSession(access, refresh string, user model.User) bool {
	if !m.v.IsValidFormat(access) {
		m.log.Warn("rejecting session: malformed access token")
		return false
	}
	if refresh != "" && !m.v.IsValidFormat(refresh) {
		m.log.Warn("rejecting session: malformed refresh token")
		return false
	}
	if user.Email == "" || !user.Role.Valid() {
		m.log.Warn("rejecting session: incomplete identity", zap.String("role", string(user.Role)))
		return false
	}

	values := map[tokenstore.Slot]string{
		tokenstore.SlotAccessToken: access,
		tokenstore.SlotEmail:       user.Email,
		tokenstore.SlotRole:        string(user.Role),
	}
	var stale []tokenstore.Slot
	if refresh != "" {
		values[tokenstore.SlotRefreshToken] = refresh
	} else {
		stale = append(stale, tokenstore.SlotRefreshToken)
	}
	if user.DisplayName != "" {
		values[tokenstore.SlotName] = user.DisplayName
	} else {
		stale = append(stale, tokenstore.SlotName)
	}

	if err := m.store.Write(values); err != nil {
		m.log.Error("persist session", zap.Error(err))
		return false
	}
	// optional slots left over from a previous session
	if len(stale) > 0 {
		if err := m.store.Remove(stale...); err != nil {
			m.log.Warn("drop stale session slots", zap.Error(err))
		}
	}
	m.log.Debug("session stored", zap.String("email", user.Email), zap.String("role", string(user.Role)))
	return true
}

// ClearSession erases every credential slot. It never fails.
func (m *Manager) ClearSession() {
	m.store.EraseAll()
}

// UpdateAccessToken replaces the access token only.
func (m *Manager) UpdateAccessToken(tok string) bool {
	if !m.v.IsValidFormat(tok) {
		m.log.Warn("rejecting access token update: malformed token")
		return false
	}
	if err := m.store.Write(map[tokenstore.Slot]string{tokenstore.SlotAccessToken: tok}); err != nil {
		m.log.Error("persist access token", zap.Error(err))
		return false
	}
	return true
}

// PruneIfExpired clears the session when the access token is well-formed but expired.
// Any other state is left untouched.
func (m *Manager) PruneIfExpired() bool {
	tok, ok := m.store.Read(tokenstore.SlotAccessToken)
	if !ok || !m.v.IsValidFormat(tok) || !m.v.IsExpired(tok) {
		return false
	}
	m.log.Info("access token expired, clearing session")
	m.ClearSession()
	return true
}

// Snapshot returns the stored bundle as-is, with malformed tokens blanked.
// It has no side effects.
func (m *Manager) Snapshot() model.Credentials {
	var c model.Credentials
	if tok, ok := m.store.Read(tokenstore.SlotAccessToken); ok && m.v.IsValidFormat(tok) {
		c.AccessToken = tok
	}
	if tok, ok := m.store.Read(tokenstore.SlotRefreshToken); ok && m.v.IsValidFormat(tok) {
		c.RefreshToken = tok
	}
	if u, ok := m.CurrentUser(); ok {
		c.User = u
	}
	return c
}

// Restore re-creates a session from a snapshot with a new access token.
func (m *Manager) Restore(c model.Credentials, access string) bool {
	return m.SetSession(access, c.RefreshToken, c.User)
}
