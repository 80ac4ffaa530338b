package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/kestrel-dev/devc/internal/errors"
	"github.com/kestrel-dev/devc/internal/util"
)

// DefaultPath returns the location of the on-disk registry, honoring the
// same XDG conventions as the feature cache.
func DefaultPath() (string, error) {
	dir, err := util.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "containers.json"), nil
}

// Store is the in-process handle to the persisted registry at Path. It is
// safe for concurrent use: reads take the RLock, writes take the Lock, and
// the lock is never held across the I/O in Save/merge — only around the
// in-memory mutation.
type Store struct {
	mu   sync.RWMutex
	data *StateStore
	path string
	lock *fileLock
}

// Load reads the store at path, returning an empty store (not an error) if
// the file does not exist. A version newer than CurrentVersion is accepted
// with a logged warning, never refused.
func Load(path string) (*Store, error) {
	s := &Store{path: path, lock: newFileLock(path)}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			s.data = newStore()
			return s, nil
		}
		return nil, errors.NewStateError("failed to read state store", err)
	}

	var loaded StateStore
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, errors.NewStateError("failed to parse state store", err)
	}
	if loaded.Containers == nil {
		loaded.Containers = make(map[string]*ContainerState)
	}
	if loaded.Version > CurrentVersion {
		// Newer store format than this build knows about. Load it anyway.
		util.Warn("state store %s has version %d, newer than supported version %d", path, loaded.Version, CurrentVersion)
	}
	s.data = &loaded
	return s, nil
}

// NewEmpty returns an unbacked, in-memory-only store. Save still writes to
// a ".lock"-suffixed sibling of an empty path in the working directory;
// this exists only as a last-resort fallback when the on-disk location
// itself cannot be determined, not as a supported mode of operation.
func NewEmpty() *Store {
	return &Store{data: newStore(), lock: newFileLock("")}
}

// Get returns a copy-free pointer to the record with the given id, or nil.
func (s *Store) Get(id string) *ContainerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Containers[id]
}

// FindByConfigPath returns the first record whose ConfigPath matches, or
// nil. Add is what keeps config paths unique.
func (s *Store) FindByConfigPath(configPath string) *ContainerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.Containers {
		if c.ConfigPath == configPath {
			return c
		}
	}
	return nil
}

// FindByWorkspaceID returns the record tagged with the given computed
// workspace id (base32(sha256(realpath))), or nil.
func (s *Store) FindByWorkspaceID(workspaceID string) *ContainerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.Containers {
		if c.WorkspaceID == workspaceID {
			return c
		}
	}
	return nil
}

// FindByName returns the first record with the given name, or nil.
func (s *Store) FindByName(name string) *ContainerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.Containers {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// FindByWorkspace returns the first record with the given workspace path,
// or nil.
func (s *Store) FindByWorkspace(workspacePath string) *ContainerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, c := range s.data.Containers {
		if c.WorkspacePath == workspacePath {
			return c
		}
	}
	return nil
}

// List returns a snapshot slice of all records.
func (s *Store) List() []*ContainerState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ContainerState, 0, len(s.data.Containers))
	for _, c := range s.data.Containers {
		out = append(out, c)
	}
	return out
}

// Add inserts a new record, rejecting a duplicate config path. Callers may
// leave ID empty and let Add assign one.
func (s *Store) Add(c *ContainerState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Status == "" {
		return errors.NewInvalidStateError("cannot persist a container state with no status", nil)
	}
	for _, existing := range s.data.Containers {
		if existing.ConfigPath == c.ConfigPath {
			return errors.NewStateError(fmt.Sprintf("a container is already registered for %s", c.ConfigPath), nil)
		}
	}
	if c.ID == "" {
		c.ID = NewID()
	}
	s.data.Containers[c.ID] = c
	return nil
}

// Remove drops a record by id. Not an error if it doesn't exist.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data.Containers, id)
}

// Save atomically persists the current in-memory snapshot to disk under
// the cross-process lock.
func (s *Store) Save() error {
	return s.lock.withLock(func() error {
		s.mu.RLock()
		snapshot := s.data
		s.mu.RUnlock()
		return atomicWriteJSON(s.path, snapshot)
	})
}

// MergeAndSaveSnapshot is the primitive that makes concurrent devc
// invocations safe. Under the cross-process lock it: reloads the latest
// on-disk store, deletes every id in removedIDs, overwrites with every
// entry in snapshot, writes back atomically, and returns the merged
// result. Records not mentioned in snapshot or removedIDs survive
// untouched — this is what lets two invocations each working on a
// different container merge without clobbering each other.
func (s *Store) MergeAndSaveSnapshot(snapshot map[string]*ContainerState, removedIDs []string) (*StateStore, error) {
	var merged *StateStore
	err := s.lock.withLock(func() error {
		onDisk, err := loadRaw(s.path)
		if err != nil {
			return err
		}
		for _, id := range removedIDs {
			delete(onDisk.Containers, id)
		}
		for id, c := range snapshot {
			onDisk.Containers[id] = c
		}
		if err := atomicWriteJSON(s.path, onDisk); err != nil {
			return err
		}
		merged = onDisk
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.data = merged
	s.mu.Unlock()
	return merged, nil
}

func loadRaw(path string) (*StateStore, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return newStore(), nil
		}
		return nil, errors.NewStateError("failed to read state store", err)
	}
	var loaded StateStore
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, errors.NewStateError("failed to parse state store", err)
	}
	if loaded.Containers == nil {
		loaded.Containers = make(map[string]*ContainerState)
	}
	return &loaded, nil
}

// atomicWriteJSON marshals v and replaces path with the result by writing
// to a sibling temp file first, then renaming over the target. A crash
// between the write and the rename leaves the original file untouched;
// nothing ever observes a partially written store.
func atomicWriteJSON(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.NewStateError("failed to create state directory", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return errors.NewStateError("failed to create temp state file", err)
	}
	tmpPath := tmp.Name()
	// If anything below fails before the rename, clean up the temp file
	// rather than leaving a stray tmp-* file next to the registry.
	succeeded := false
	defer func() {
		if !succeeded {
			_ = os.Remove(tmpPath)
		}
	}()

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		return errors.NewStateError("failed to encode state store", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.NewStateError("failed to flush state store", err)
	}
	if err := tmp.Close(); err != nil {
		return errors.NewStateError("failed to close temp state file", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return errors.NewStateError("failed to replace state store", err)
	}
	succeeded = true
	return nil
}
