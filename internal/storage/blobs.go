package storage

import (
	"context"
	"fmt"
	"path"
	"sync"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/afesign/internal/apperr"
)

// MemoryBlobs is a blob store backed by a map. Keys are "<area>/<uuid>-<name>".
type MemoryBlobs struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobs constructs an empty blob store.
func NewMemoryBlobs() *MemoryBlobs {
	return &MemoryBlobs{blobs: make(map[string][]byte)}
}

// Put stores a copy of data under a fresh key.
func (b *MemoryBlobs) Put(ctx context.Context, area, name string, data []byte) (string, error) {
	key := fmt.Sprintf("%s/%s-%s", area, uuid.NewString(), path.Base(name))
	buf := make([]byte, len(data))
	copy(buf, data)
	b.mu.Lock()
	b.blobs[key] = buf
	b.mu.Unlock()
	return key, nil
}

// Get returns a copy of the blob.
func (b *MemoryBlobs) Get(ctx context.Context, key string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.blobs[key]
	if !ok {
		return nil, apperr.NotFound("get blob", "file not found")
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Len reports how many blobs are stored.
func (b *MemoryBlobs) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.blobs)
}
