// Package keylock serializes work per id while letting different ids proceed in parallel.
package keylock

import (
	"sync"

	"github.com/google/uuid"
)

type Map struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func New() *Map {
	return &Map{locks: make(map[uuid.UUID]*refMutex)}
}

// Lock blocks until id is free and returns the matching unlock func.
func (k *Map) Lock(id uuid.UUID) func() {
	k.mu.Lock()

	m, ok := k.locks[id]
	if !ok {
		m = &refMutex{}
		k.locks[id] = m
	}

	m.refs++
	k.mu.Unlock()

	m.Lock()

	return func() {
		m.Unlock()

		k.mu.Lock()
		m.refs--

		if m.refs == 0 {
			delete(k.locks, id)
		}

		k.mu.Unlock()
	}
}

// Len reports how many ids are held or waited on.
func (k *Map) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()

	return len(k.locks)
}
