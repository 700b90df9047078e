package blobstore

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-process Store for tests and local runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
	now     func() time.Time
}

type memoryObject struct {
	body        []byte
	contentType string
	modified    time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objects: map[string]memoryObject{}, now: time.Now}
}

func (m *Memory) Put(_ context.Context, path string, body []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path] = memoryObject{body: append([]byte(nil), body...), contentType: contentType, modified: m.now().UTC()}
	return nil
}

func (m *Memory) Get(_ context.Context, path string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), obj.body...), nil
}

func (m *Memory) Stat(_ context.Context, path string) (Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path]
	if !ok {
		return Object{}, ErrNotFound
	}
	return Object{Path: path, Size: int64(len(obj.body)), LastModified: obj.modified}, nil
}

func (m *Memory) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Object
	for path, obj := range m.objects {
		if strings.HasPrefix(path, prefix) {
			out = append(out, Object{Path: path, Size: int64(len(obj.body)), LastModified: obj.modified})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (m *Memory) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path)
	return nil
}

func (m *Memory) PresignGetURL(_ context.Context, path string, ttl time.Duration) (string, error) {
	expires := m.now().Add(ttl).Unix()
	return fmt.Sprintf("memory://blobs/%s?expires=%d", url.PathEscape(path), expires), nil
}
