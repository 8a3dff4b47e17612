package tokenstore

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"

	"github.com/and161185/gigmarket/internal/crypto/sealbox"
)

var sealAAD = []byte("gigmarket/tokenstore/v1")

// File keeps slots in a JSON document on disk, optionally sealed.
// A document that cannot be opened or parsed reads as empty.
type File struct {
	path string
	key  []byte
	log  *zap.Logger

	mu sync.Mutex
}

var _ Store = (*File)(nil)

// FileOption configures a File store.
type FileOption func(*File)

// WithSealKey encrypts the document with key (sealbox.KeyLen bytes).
func WithSealKey(key []byte) FileOption {
	return func(f *File) { f.key = append([]byte(nil), key...) }
}

// WithLogger sets the logger used for non-fatal storage problems.
func WithLogger(log *zap.Logger) FileOption {
	return func(f *File) { f.log = log }
}

// NewFile returns a store backed by the document at path.
func NewFile(path string, opts ...FileOption) *File {
	f := &File{path: path, log: zap.NewNop()}
	for _, o := range opts {
		o(f)
	}
	if f.log == nil {
		f.log = zap.NewNop()
	}
	return f
}

// Path returns the document location.
func (f *File) Path() string { return f.path }

func (f *File) Read(slot Slot) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.load()[slot]
	return v, ok
}

func (f *File) Write(values map[Slot]string) error {
	if err := checkWrite(values); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	for k, v := range values {
		doc[k] = v
	}
	delete(doc, SlotLegacyToken)
	return f.save(doc)
}

func (f *File) Remove(slots ...Slot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	changed := false
	for _, s := range slots {
		if _, ok := doc[s]; ok {
			delete(doc, s)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return f.save(doc)
}

func (f *File) EraseAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc := f.load()
	for _, s := range AllSlots {
		delete(doc, s)
	}
	var err error
	if len(doc) == 0 {
		err = os.Remove(f.path)
		if errors.Is(err, os.ErrNotExist) {
			err = nil
		}
	} else {
		err = f.save(doc)
	}
	if err != nil {
		f.log.Warn("token store erase", zap.String("path", f.path), zap.Error(err))
	}
}

func (f *File) load() map[Slot]string {
	doc := map[Slot]string{}
	b, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.log.Warn("token store read", zap.String("path", f.path), zap.Error(err))
		}
		return doc
	}
	if f.key != nil {
		b, err = sealbox.Open(f.key, sealAAD, b)
		if err != nil {
			f.log.Warn("token store unseal, treating as empty", zap.String("path", f.path), zap.Error(err))
			return doc
		}
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		f.log.Warn("token store decode, treating as empty", zap.String("path", f.path), zap.Error(err))
		return map[Slot]string{}
	}
	// a literal null decodes to a nil map
	if doc == nil {
		f.log.Warn("token store holds null, treating as empty", zap.String("path", f.path))
		return map[Slot]string{}
	}
	return doc
}

// save replaces the document atomically: temp file in the same dir, then rename.
func (f *File) save(doc map[Slot]string) error {
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	if f.key != nil {
		if b, err = sealbox.Seal(f.key, sealAAD, b); err != nil {
			return err
		}
	}
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".tokens-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}
