// Package memory is an in-process kv backend. Several kv.Storage instances
// sharing one Store behave like browser tabs sharing local storage: each sees
// the others' writes through the notifier.
package memory

import (
	"context"
	"sync"

	"github.com/vbonduro/diamondinv/internal/kv"
)

type Store struct {
	mu        sync.RWMutex
	data      map[string][]byte
	nextID    int
	listeners map[int]func(kv.Change)
}

func New() *Store {
	return &Store{
		data:      make(map[string][]byte),
		listeners: make(map[int]func(kv.Change)),
	}
}

func (s *Store) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *Store) Set(_ context.Context, key string, value []byte) error {
	v := make([]byte, len(value))
	copy(v, value)
	s.mu.Lock()
	s.data[key] = v
	s.mu.Unlock()
	return nil
}

func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) Close() error { return nil }

// Publish delivers c synchronously to every listener, including the
// publisher's own; kv.Storage filters those out by source.
func (s *Store) Publish(_ context.Context, c kv.Change) error {
	s.mu.RLock()
	fns := make([]func(kv.Change), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(c)
	}
	return nil
}

func (s *Store) Listen(ctx context.Context, fn func(kv.Change)) error {
	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}()
	return nil
}
