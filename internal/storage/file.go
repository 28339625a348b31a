package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// FileStore keeps every key in one JSON object on disk. A sidecar lock file
// serializes writers across processes; mu does the same within one.
type FileStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
}

func OpenFile(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return &FileStore{path: path, lock: flock.New(path + ".lock")}, nil
}

func (s *FileStore) withLock(ctx context.Context, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok, err := s.lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock %s: %w", s.path, err)
	}
	if !ok {
		return fmt.Errorf("lock %s: not acquired", s.path)
	}
	defer s.lock.Unlock()
	return fn()
}

func (s *FileStore) load() (map[string]string, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	m := map[string]string{}
	if len(b) == 0 {
		return m, nil
	}
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return m, nil
}

func (s *FileStore) save(m map[string]string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	var out []byte
	err := s.withLock(ctx, func() error {
		m, err := s.load()
		if err != nil {
			return err
		}
		v, ok := m[key]
		if !ok {
			return ErrNotFound
		}
		out = []byte(v)
		return nil
	})
	return out, err
}

func (s *FileStore) Set(ctx context.Context, key string, value []byte) error {
	return s.withLock(ctx, func() error {
		m, err := s.load()
		if err != nil {
			// a corrupt file is replaced rather than blocking every write
			m = map[string]string{}
		}
		m[key] = string(value)
		return s.save(m)
	})
}

func (s *FileStore) Delete(ctx context.Context, key string) error {
	return s.withLock(ctx, func() error {
		m, err := s.load()
		if err != nil {
			return err
		}
		if _, ok := m[key]; !ok {
			return nil
		}
		delete(m, key)
		return s.save(m)
	})
}

func (s *FileStore) Close() error {
	return s.lock.Close()
}
