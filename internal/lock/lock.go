// Package lock implements the per-object locking that serializes
// concurrent mutations against a single object id (spec.md §4.4
// "Repository Façade", "each mutating operation holds a per-object lock
// for its duration"). The lock is an in-memory mutex per id inside one
// process; nothing is written to storage, so it works the same way over
// local disk or S3 but does not exclude other processes.
package lock

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	ocflfs "github.com/ocflkit/ocflkit/fs"
)

// Manager serializes access to objects by id. It is process-local: two
// Manager instances (e.g. two CLI invocations) racing on the same object
// are not mutually exclusive, matching the single-process design of the
// repository façade.
type Manager struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewManager returns a ready-to-use lock Manager.
func NewManager() *Manager { return &Manager{locks: make(map[string]*sync.Mutex)} }

func (m *Manager) mutexFor(id string) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	mu, ok := m.locks[id]
	if !ok {
		mu = &sync.Mutex{}
		m.locks[id] = mu
	}
	return mu
}

// Handle represents a held lock; release it with Unlock.
type Handle struct {
	mu   *sync.Mutex
	once sync.Once
}

// Unlock releases the lock. Calls after the first do nothing.
func (h *Handle) Unlock() { h.once.Do(h.mu.Unlock) }

// Lock blocks until id's lock is free, then returns a Handle the caller
// must Unlock.
func (m *Manager) Lock(ctx context.Context, id string) (*Handle, error) {
	mu := m.mutexFor(id)
	done := make(chan struct{})
	go func() { mu.Lock(); close(done) }()
	select {
	case <-done:
		return &Handle{mu: mu}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StagingName returns a collision-resistant directory name for a new
// staging area, used so two concurrent stages of the same object id never
// share a directory (spec.md §4.3 shadow object placement).
func StagingName(id string) string {
	return fmt.Sprintf("%x-%s", hashID(id), uuid.NewString())
}

func hashID(id string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(id); i++ {
		h ^= uint32(id[i])
		h *= 16777619
	}
	return h
}

// Touch writes an empty marker file at path. Manager.Lock and
// Handle.Unlock do not call it.
func Touch(ctx context.Context, fsys ocflfs.WriteFS, path string) error {
	_, err := ocflfs.Write(ctx, fsys, path, emptyReader{})
	return err
}

type emptyReader struct{}

func (emptyReader) Read([]byte) (int, error) { return 0, io.EOF }
