package store

import (
	"bytes"
	"sync"
	"time"
)

type memEntry struct {
	data  []byte
	mtime time.Time
}

// Memory is an in-process store with the same semantics as [Files].
type Memory struct {
	mu    sync.Mutex
	now   func() time.Time
	items map[string]map[string]memEntry
}

// NewMemory returns an empty store. A nil clock means time.Now.
func NewMemory(now func() time.Time) *Memory {
	if now == nil {
		now = time.Now
	}

	return &Memory{now: now, items: map[string]map[string]memEntry{}}
}

func (m *Memory) Write(namespace, key string, payload []byte) error {
	if err := checkName(namespace); err != nil {
		return wrapErr(namespace, key, err)
	}

	if err := checkName(key); err != nil {
		return wrapErr(namespace, key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.items[namespace]
	if !ok {
		ns = map[string]memEntry{}
		m.items[namespace] = ns
	}

	mtime := m.now()
	if prev, ok := ns[key]; ok && !mtime.After(prev.mtime) {
		mtime = prev.mtime.Add(time.Millisecond)
	}

	ns[key] = memEntry{data: bytes.Clone(payload), mtime: mtime}

	return nil
}

func (m *Memory) List(namespace string) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]time.Time, len(m.items[namespace]))
	for k, e := range m.items[namespace] {
		out[k] = e.mtime
	}

	return out, nil
}

func (m *Memory) Read(namespace, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.items[namespace][key]
	if !ok {
		return nil, wrapErr(namespace, key, ErrNotFound)
	}

	return bytes.Clone(e.data), nil
}

func (m *Memory) Delete(namespace, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[namespace][key]; !ok {
		return wrapErr(namespace, key, ErrNotFound)
	}

	delete(m.items[namespace], key)

	return nil
}
