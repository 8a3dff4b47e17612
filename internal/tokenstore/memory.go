package tokenstore

import "sync"

// Memory keeps slots in process memory. Safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[Slot]string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: map[Slot]string{}}
}

func (m *Memory) Read(slot Slot) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[slot]
	return v, ok
}

func (m *Memory) Write(values map[Slot]string) error {
	if err := checkWrite(values); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.data[k] = v
	}
	delete(m.data, SlotLegacyToken)
	return nil
}

func (m *Memory) Remove(slots ...Slot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range slots {
		delete(m.data, s)
	}
	return nil
}

func (m *Memory) EraseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range AllSlots {
		delete(m.data, s)
	}
}

// Set writes a single slot without the legacy cleanup. Tests use it to plant
// states older clients left behind.
func (m *Memory) Set(slot Slot, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[slot] = value
}

// Len reports how many slots are set.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
