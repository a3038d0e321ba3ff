package asset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
)

const generationExt = ".bin"

// FS is a file-backed Directory: one subdirectory per state key holding
// numbered generation files. Load reads the highest generation; Save writes
// the next one through a temp file and an atomic rename, so a crashed or
// cancelled run never leaves a partially written snapshot visible.
type FS struct {
	root string

	mu    sync.Mutex
	slots map[string]*fsHandle
}

// NewFS opens (creating if needed) a file-backed state directory at root.
func NewFS(root string) (*FS, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("asset: creating state directory: %w", err)
	}
	return &FS{root: root, slots: make(map[string]*fsHandle)}, nil
}

// Root returns the backing directory path.
func (f *FS) Root() string { return f.root }

// State implements Directory.
func (f *FS) State(keys []string) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	scope := make(map[string]*fsHandle, len(keys))
	for _, key := range keys {
		if strings.ContainsAny(key, `/\`) {
			return nil, fmt.Errorf("asset: invalid state key %q", key)
		}
		handle, ok := f.slots[key]
		if !ok {
			handle = &fsHandle{dir: filepath.Join(f.root, key)}
			f.slots[key] = handle
		}
		scope[key] = handle
	}
	return fsState{slots: scope}, nil
}

type fsState struct {
	slots map[string]*fsHandle
}

func (s fsState) Get(key string) (Handle, error) {
	handle, ok := s.slots[key]
	if !ok {
		return nil, fmt.Errorf("asset: state key %q not allocated for this composition", key)
	}
	return handle, nil
}

type fsHandle struct {
	sync.Mutex
	dir string
}

func (h *fsHandle) Load() ([]byte, error) {
	generation, ok, err := latestGeneration(h.dir)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	data, err := os.ReadFile(filepath.Join(h.dir, generationFile(generation)))
	if err != nil {
		return nil, fmt.Errorf("asset: loading state: %w", err)
	}
	return data, nil
}

func (h *fsHandle) Save(snapshot []byte) error {
	if err := os.MkdirAll(h.dir, 0o755); err != nil {
		return fmt.Errorf("asset: creating state slot: %w", err)
	}
	generation, _, err := latestGeneration(h.dir)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(h.dir, "pending-*")
	if err != nil {
		return fmt.Errorf("asset: staging state: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(snapshot); err != nil {
		tmp.Close()
		return fmt.Errorf("asset: staging state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("asset: staging state: %w", err)
	}
	target := filepath.Join(h.dir, generationFile(generation+1))
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("asset: committing state: %w", err)
	}
	return nil
}

func generationFile(generation int) string {
	return fmt.Sprintf("%08d%s", generation, generationExt)
}

// latestGeneration returns the highest committed generation number in dir,
// with ok=false for an empty or missing slot.
func latestGeneration(dir string) (int, bool, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("asset: reading state slot: %w", err)
	}
	var generations []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, generationExt) {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, generationExt))
		if err != nil {
			continue
		}
		generations = append(generations, n)
	}
	if len(generations) == 0 {
		return 0, false, nil
	}
	sort.Ints(generations)
	return generations[len(generations)-1], true, nil
}
