package paramstore

import "sync"

// tagged associates a stored value with the clear-tag(s) that should erase
// it, mirroring the real store's per-key tag metadata.
type tagged struct {
	value []byte
	tags  map[string]bool
}

// Memory is an in-memory ParamStore used by tests and standalone runs.
type Memory struct {
	mu     sync.RWMutex
	values map[string]*tagged
	// tagsByKey records which tag(s) a key should be cleared by, set via
	// SetTags (not part of the ParamStore interface — an in-memory-only
	// convenience since the real store's key->tag mapping is static
	// config this daemon never needs to write).
	tagsByKey map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		values:    make(map[string]*tagged),
		tagsByKey: make(map[string][]string),
	}
}

// SetTags declares which clear-tag(s) apply to a key. Call during setup,
// before the key is Put (cmd/boardd tags CarVin, CarParams and
// ControlsReady at startup); the worker loops only clear by tag.
func (m *Memory) SetTags(key string, tags ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tagsByKey[key] = tags
}

func (m *Memory) Get(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v.value...), nil
}

func (m *Memory) GetBool(key string) (bool, error) {
	v, err := m.Get(key)
	if err != nil {
		return false, err
	}
	return len(v) == 1 && v[0] != 0, nil
}

func (m *Memory) Put(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tags := m.tagsByKey[key]
	tagSet := make(map[string]bool, len(tags))
	for _, t := range tags {
		tagSet[t] = true
	}
	m.values[key] = &tagged{value: append([]byte(nil), value...), tags: tagSet}
	return nil
}

func (m *Memory) ClearAll(tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, v := range m.values {
		if v.tags[tag] {
			delete(m.values, key)
		}
	}
	return nil
}

var _ ParamStore = (*Memory)(nil)
