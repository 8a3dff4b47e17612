package tokenstore

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/and161185/gigmarket/internal/crypto/sealbox"
)

type plantable interface {
	Store
	plant(slot Slot, v string)
}

type memHarness struct{ *Memory }

func (m memHarness) plant(s Slot, v string) { m.Set(s, v) }

type fileHarness struct {
	*File
	t *testing.T
}

// plant writes straight into the document, bypassing the legacy cleanup.
func (f fileHarness) plant(s Slot, v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	doc[s] = v
	if err := f.save(doc); err != nil {
		f.t.Fatalf("plant: %v", err)
	}
}

func stores(t *testing.T) map[string]plantable {
	t.Helper()
	dir := t.TempDir()
	key, err := sealbox.Rand(sealbox.KeyLen)
	if err != nil {
		t.Fatalf("key: %v", err)
	}
	log := zaptest.NewLogger(t)
	return map[string]plantable{
		"memory": memHarness{NewMemory()},
		"file":   fileHarness{NewFile(filepath.Join(dir, "plain", "tokens.json"), WithLogger(log)), t},
		"sealed": fileHarness{NewFile(filepath.Join(dir, "sealed", "tokens.bin"), WithSealKey(key), WithLogger(log)), t},
	}
}

func TestStore_WriteReadRemovesLegacy(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		s.plant(SlotLegacyToken, "old-format-token")

		err := s.Write(map[Slot]string{SlotAccessToken: "a.b.c", SlotEmail: "ann@example.com"})
		if err != nil {
			t.Fatalf("%s: Write: %v", name, err)
		}
		if v, ok := s.Read(SlotAccessToken); !ok || v != "a.b.c" {
			t.Fatalf("%s: access = %q %v", name, v, ok)
		}
		if v, ok := s.Read(SlotEmail); !ok || v != "ann@example.com" {
			t.Fatalf("%s: email = %q %v", name, v, ok)
		}
		if _, ok := s.Read(SlotLegacyToken); ok {
			t.Fatalf("%s: legacy slot survived write", name)
		}
		if _, ok := s.Read(SlotRefreshToken); ok {
			t.Fatalf("%s: unset slot reported present", name)
		}
	}
}

func TestStore_WriteLegacyRejected(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		err := s.Write(map[Slot]string{SlotLegacyToken: "x", SlotAccessToken: "a.b.c"})
		if !errors.Is(err, ErrLegacyWrite) {
			t.Fatalf("%s: want ErrLegacyWrite, got %v", name, err)
		}
		if _, ok := s.Read(SlotAccessToken); ok {
			t.Fatalf("%s: rejected write must not be partial", name)
		}
	}
}

func TestStore_RemoveIsNarrow(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		_ = s.Write(map[Slot]string{SlotAccessToken: "a.b.c", SlotRefreshToken: "r.r.r"})
		if err := s.Remove(SlotRefreshToken); err != nil {
			t.Fatalf("%s: Remove: %v", name, err)
		}
		if _, ok := s.Read(SlotRefreshToken); ok {
			t.Fatalf("%s: refresh not removed", name)
		}
		if _, ok := s.Read(SlotAccessToken); !ok {
			t.Fatalf("%s: access removed by narrow Remove", name)
		}
		if err := s.Remove(SlotRefreshToken); err != nil {
			t.Fatalf("%s: second Remove: %v", name, err)
		}
	}
}

func TestStore_EraseAllIdempotent(t *testing.T) {
	t.Parallel()
	for name, s := range stores(t) {
		_ = s.Write(map[Slot]string{
			SlotAccessToken: "a.b.c", SlotRefreshToken: "r.r.r",
			SlotEmail: "e", SlotRole: "client", SlotName: "Ann",
		})
		s.plant(SlotProfilePhoto, "https://cdn.example.com/p.png")
		s.plant(SlotLegacyToken, "legacy")

		s.EraseAll()
		s.EraseAll()
		for _, slot := range AllSlots {
			if _, ok := s.Read(slot); ok {
				t.Fatalf("%s: slot %s survived EraseAll", name, slot)
			}
		}
	}
}

func TestFile_UnrelatedKeysKeptOnErase(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "tokens.json")
	f := NewFile(path)
	_ = f.Write(map[Slot]string{SlotAccessToken: "a.b.c", Slot("theme"): "dark"})

	f.EraseAll()
	if v, ok := f.Read(Slot("theme")); !ok || v != "dark" {
		t.Fatalf("unrelated key lost: %q %v", v, ok)
	}
	st, err := os.Stat(path)
	if err != nil || st.Mode().Perm() != 0o600 {
		t.Fatalf("document mode: %v %v", st, err)
	}

	_ = f.Remove(Slot("theme"))
	f.EraseAll()
	if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("empty document should be removed, stat err=%v", err)
	}
}

func TestFile_CorruptDocumentReadsEmpty(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	for name, doc := range map[string]string{"garbage": "{not json", "null": "null", "wrong types": `{"accessToken":5}`} {
		plain := filepath.Join(dir, name+".json")
		_ = os.WriteFile(plain, []byte(doc), 0o600)
		f := NewFile(plain, WithLogger(zaptest.NewLogger(t)))
		if _, ok := f.Read(SlotAccessToken); ok {
			t.Fatalf("%s: corrupt document must read empty", name)
		}
		if err := f.Write(map[Slot]string{SlotAccessToken: "a.b.c"}); err != nil {
			t.Fatalf("%s: write over corrupt doc: %v", name, err)
		}
		if v, _ := f.Read(SlotAccessToken); v != "a.b.c" {
			t.Fatalf("%s: write after corruption lost: %q", name, v)
		}
		if err := f.Remove(SlotAccessToken); err != nil {
			t.Fatalf("%s: remove: %v", name, err)
		}
	}

	// sealed with one key, opened with another
	k1, _ := sealbox.Rand(sealbox.KeyLen)
	k2, _ := sealbox.Rand(sealbox.KeyLen)
	sealed := filepath.Join(dir, "tokens.bin")
	_ = NewFile(sealed, WithSealKey(k1)).Write(map[Slot]string{SlotAccessToken: "a.b.c"})
	if _, ok := NewFile(sealed, WithSealKey(k2)).Read(SlotAccessToken); ok {
		t.Fatalf("foreign key must not open the document")
	}
	if v, ok := NewFile(sealed, WithSealKey(k1)).Read(SlotAccessToken); !ok || v != "a.b.c" {
		t.Fatalf("own key must open the document: %q %v", v, ok)
	}
}

func TestNop(t *testing.T) {
	t.Parallel()
	var s Store = Nop{}
	if err := s.Write(map[Slot]string{SlotAccessToken: "a.b.c"}); err != nil {
		t.Fatalf("Nop.Write: %v", err)
	}
	if _, ok := s.Read(SlotAccessToken); ok {
		t.Fatalf("Nop must never hold values")
	}
	if err := s.Remove(SlotAccessToken); err != nil {
		t.Fatalf("Nop.Remove: %v", err)
	}
	s.EraseAll()
}
