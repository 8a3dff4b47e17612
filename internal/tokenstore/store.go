// Package tokenstore persists the client's credential slots.
//
// A Store is a flat string key-value space with fixed slot names. It does no
// validation of its own: the session manager decides what is allowed in.
package tokenstore

import "errors"

// Slot names a persisted value. The string is the on-disk key.
type Slot string

const (
	SlotAccessToken  Slot = "accessToken"
	SlotRefreshToken Slot = "refreshToken"
	SlotEmail        Slot = "email"
	SlotRole         Slot = "role"
	SlotName         Slot = "name"

	// SlotLegacyToken is the single-token key older clients wrote. It is
	// removed on every write and never written.
	SlotLegacyToken Slot = "token"
	// SlotProfilePhoto caches the avatar URL; it only goes away on logout.
	SlotProfilePhoto Slot = "profilePhoto"
)

// SessionSlots are the five slots making up a credential bundle.
var SessionSlots = []Slot{SlotAccessToken, SlotRefreshToken, SlotEmail, SlotRole, SlotName}

// AllSlots is everything EraseAll clears.
var AllSlots = append(append([]Slot{}, SessionSlots...), SlotLegacyToken, SlotProfilePhoto)

// ErrLegacyWrite is returned when a caller tries to write the legacy slot.
var ErrLegacyWrite = errors.New("tokenstore: legacy token slot is read-only")

// Store is the persistence capability injected into the session manager.
type Store interface {
	// Read returns the slot value; false if unset or there is no backing storage.
	Read(slot Slot) (string, bool)
	// Write sets every provided slot and drops the legacy slot.
	Write(values map[Slot]string) error
	// Remove deletes only the named slots.
	Remove(slots ...Slot) error
	// EraseAll clears AllSlots. It is idempotent and never fails.
	EraseAll()
}

func checkWrite(values map[Slot]string) error {
	if _, ok := values[SlotLegacyToken]; ok {
		return ErrLegacyWrite
	}
	return nil
}
