package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/weison-t/thereader/internal/models"
)

// ErrNotFound is returned by MemoryStore for unknown keys.
var ErrNotFound = errors.New("object not found")

type memObject struct {
	data     []byte
	modified time.Time
}

// MemoryStore keeps objects in process. It backs tests and deployments
// without an object storage endpoint.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]memObject{}, now: time.Now}
}

func (m *MemoryStore) Put(ctx context.Context, key string, r io.Reader, _ int64, _ string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = memObject{data: data, modified: m.now()}
	return nil
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]models.StoredObject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.StoredObject, 0)
	for k, o := range m.objects {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		out = append(out, models.StoredObject{Key: k, Name: path.Base(k), Size: int64(len(o.data)), LastModified: o.modified})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[key]
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(o.data)), nil
}

func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStore) PresignPut(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s?expires=%d", key, m.now().Add(expiry).Unix()), nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }
