// Package storage persists opaque document payloads. The signing core
// only sees put/get over references; it never interprets blob internals.
package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// BlobStore is the collaborator the state machine stores assembled
// document bytes through. Put returns an opaque reference later passed
// to Get.
type BlobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// MemBlobStore keeps blobs in memory for tests and local runs.
type MemBlobStore struct {
	mu    sync.Mutex
	blobs map[string][]byte
}

// NewMemBlobStore returns an empty in-memory blob store.
func NewMemBlobStore() *MemBlobStore {
	return &MemBlobStore{blobs: make(map[string][]byte)}
}

func (m *MemBlobStore) Put(ctx context.Context, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ref := uuid.NewString()
	m.blobs[ref] = append([]byte(nil), data...)
	return ref, nil
}

func (m *MemBlobStore) Get(ctx context.Context, ref string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.blobs[ref]
	if !ok {
		return nil, errors.Errorf("blob %s not found", ref)
	}
	return append([]byte(nil), data...), nil
}

// Len reports how many blobs are stored.
func (m *MemBlobStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blobs)
}
