// Package store holds the entities written by mappings through store.set.
package store

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/woxQAQ/subgraph-abi/pkg/graph"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("store is closed")

// Store is the entity store behind the store.* host imports.
type Store interface {
	// Get returns the entity, or ok false when it does not exist.
	Get(ctx context.Context, entityType, id string) (e *graph.Entity, ok bool, err error)
	// Set replaces the entity stored under entityType and id.
	Set(ctx context.Context, entityType, id string, e *graph.Entity) error
	// Remove deletes the entity. Removing a missing entity is not an error.
	Remove(ctx context.Context, entityType, id string) error
	// List returns the entities of a type ordered by id.
	List(ctx context.Context, entityType string) ([]*graph.Entity, error)
	Close() error
}

type key struct {
	entityType string
	id         string
}

// MemoryStore is an in-process Store.
type MemoryStore struct {
	mu       sync.RWMutex
	entities map[key]*graph.Entity
	closed   bool
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entities: make(map[key]*graph.Entity)}
}

func (s *MemoryStore) Get(_ context.Context, entityType, id string) (*graph.Entity, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	e, ok := s.entities[key{entityType, id}]
	if !ok {
		return nil, false, nil
	}
	return clone(e), true, nil
}

func (s *MemoryStore) Set(_ context.Context, entityType, id string, e *graph.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.entities[key{entityType, id}] = clone(e)
	return nil
}

func (s *MemoryStore) Remove(_ context.Context, entityType, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.entities, key{entityType, id})
	return nil
}

func (s *MemoryStore) List(_ context.Context, entityType string) ([]*graph.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var ids []string
	for k := range s.entities {
		if k.entityType == entityType {
			ids = append(ids, k.id)
		}
	}
	sort.Strings(ids)
	out := make([]*graph.Entity, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(s.entities[key{entityType, id}]))
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func clone(e *graph.Entity) *graph.Entity {
	if e == nil {
		return graph.NewEntity()
	}
	return graph.NewEntity(e.Fields()...)
}
