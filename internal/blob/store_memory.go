package blob

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"intake/pkg/platform/sentinel"
)

// InMemory keeps blobs in process memory for tests/dev.
type InMemory struct {
	mu      sync.RWMutex
	objects map[string]Object
}

func NewInMemory() *InMemory {
	return &InMemory{objects: make(map[string]Object)}
}

func (s *InMemory) Store(_ context.Context, data []byte, contentType string) (string, error) {
	ref := ContentRef(data)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[ref] = Object{Ref: ref, ContentType: contentType, Data: slices.Clone(data)}
	return ref, nil
}

func (s *InMemory) Fetch(_ context.Context, ref string) (*Object, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[ref]
	if !ok {
		return nil, fmt.Errorf("blob %s: %w", ref, sentinel.ErrNotFound)
	}
	obj.Data = slices.Clone(obj.Data)
	return &obj, nil
}

// Len returns the number of stored blobs.
func (s *InMemory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
