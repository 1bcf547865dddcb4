package task

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/afero"
)

// ErrNotFound is returned by a Backend when nothing is stored under a key.
var ErrNotFound = errors.New("not found")

// Backend is the durable key/value medium under the Store. Save must
// replace the value for key in a single write.
type Backend interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
}

// Storage drivers accepted by OpenBackend.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
	DriverMemory = "memory"
)

// OpenBackend returns the backend for driver. path is the database file for
// sqlite and the directory for file; memory ignores it.
// The returned close function releases the backend.
func OpenBackend(driver, path string) (Backend, func() error, error) {
	switch driver {
	case DriverSQLite:
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create data dir: %w", err)
		}
		b, err := NewSQLiteBackend(path)
		if err != nil {
			return nil, nil, err
		}
		return b, b.Close, nil
	case DriverFile:
		return NewFileBackend(afero.NewOsFs(), path), func() error { return nil }, nil
	case DriverMemory:
		return NewMemoryBackend(), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// MemoryBackend keeps values in process memory.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{data: make(map[string][]byte)}
}

func (m *MemoryBackend) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *MemoryBackend) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), data...)
	return nil
}
