package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// MemoryObjectStorage keeps objects in process memory. It backs snapshot
// archiving in development when no S3 endpoint is configured. It cannot
// presign, so snapshots are served inline.
type MemoryObjectStorage struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryObjectStorage creates an empty in-memory store
func NewMemoryObjectStorage() *MemoryObjectStorage {
	return &MemoryObjectStorage{objects: make(map[string]memoryObject)}
}

// Upload stores a copy of data under storageKey
func (s *MemoryObjectStorage) Upload(_ context.Context, storageKey string, data []byte, contentType string) error {
	if storageKey == "" {
		return errors.New("storage key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[storageKey] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// GetObject returns a copy of the stored object
func (s *MemoryObjectStorage) GetObject(_ context.Context, storageKey string) ([]byte, error) {
	if storageKey == "" {
		return nil, errors.New("storage key is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[storageKey]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, storageKey)
	}
	return append([]byte(nil), obj.data...), nil
}

// ObjectExists reports whether storageKey is stored
func (s *MemoryObjectStorage) ObjectExists(_ context.Context, storageKey string) (bool, error) {
	if storageKey == "" {
		return false, errors.New("storage key is required")
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[storageKey]
	return ok, nil
}
