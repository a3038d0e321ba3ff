package asset

import (
	"fmt"
	"sync"
)

// Memory is an in-process Directory keeping snapshots on the heap. It is the
// default for tests and ad-hoc launches; nothing survives the process.
type Memory struct {
	mu    sync.Mutex
	slots map[string]*memoryHandle
}

// NewMemory returns an empty in-memory state directory.
func NewMemory() *Memory {
	return &Memory{slots: make(map[string]*memoryHandle)}
}

// State implements Directory.
func (m *Memory) State(keys []string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	scope := make(map[string]*memoryHandle, len(keys))
	for _, key := range keys {
		handle, ok := m.slots[key]
		if !ok {
			handle = &memoryHandle{}
			m.slots[key] = handle
		}
		scope[key] = handle
	}
	return memoryState{slots: scope}, nil
}

type memoryState struct {
	slots map[string]*memoryHandle
}

func (s memoryState) Get(key string) (Handle, error) {
	handle, ok := s.slots[key]
	if !ok {
		return nil, fmt.Errorf("asset: state key %q not allocated for this composition", key)
	}
	return handle, nil
}

type memoryHandle struct {
	sync.Mutex
	snapshot []byte
}

func (h *memoryHandle) Load() ([]byte, error) {
	if h.snapshot == nil {
		return nil, nil
	}
	out := make([]byte, len(h.snapshot))
	copy(out, h.snapshot)
	return out, nil
}

func (h *memoryHandle) Save(snapshot []byte) error {
	out := make([]byte, len(snapshot))
	copy(out, snapshot)
	h.snapshot = out
	return nil
}
