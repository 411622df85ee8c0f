package imagestore

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Memory is an in-process Store used by tests. FailNames makes Put fail for
// the listed file names; FailDelete makes every Delete fail.
type Memory struct {
	mu         sync.Mutex
	files      map[string]File
	deleted    []string
	FailNames  map[string]bool
	FailDelete bool
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{files: map[string]File{}, FailNames: map[string]bool{}}
}

// Put implements Store.
func (m *Memory) Put(_ context.Context, f File) (Stored, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailNames[f.Name] {
		return Stored{}, fmt.Errorf("imagestore: memory put %s: forced failure", f.Name)
	}
	if err := validate(f); err != nil {
		return Stored{}, err
	}
	id := NewObjectID(f.Name)
	m.files[id] = f
	return Stored{URL: "mem://" + id, ID: id}, nil
}

// Get implements Getter.
func (m *Memory) Get(_ context.Context, id string) (File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return File{}, fmt.Errorf("imagestore: %s: %w", id, ErrNotFound)
	}
	return f, nil
}

// Delete implements Store.
func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDelete {
		return errors.New("imagestore: memory delete: forced failure")
	}
	delete(m.files, id)
	m.deleted = append(m.deleted, id)
	return nil
}

// Deleted returns the IDs passed to Delete, in order.
func (m *Memory) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// Len returns the number of stored files.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}
