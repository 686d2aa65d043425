// Package cache holds computed metric snapshots in front of the SQLite store.
package cache

import (
	"context"
	"errors"
	"sync"

	cycling "github.com/lucasjlepore/cycling-analyzer"
	"github.com/lucasjlepore/cycling-analyzer/internal/store"
)

// ErrMiss is returned when a snapshot is not cached.
var ErrMiss = errors.New("snapshot cache miss")

// Snapshots is a keyed snapshot cache.
type Snapshots interface {
	Get(ctx context.Context, key store.SnapshotKey) (*cycling.MetricSnapshot, error)
	Put(ctx context.Context, key store.SnapshotKey, snap *cycling.MetricSnapshot) error
}

// Memory is an in-process Snapshots used when no Redis address is configured.
type Memory struct {
	mu sync.RWMutex
	m  map[string]*cycling.MetricSnapshot
}

func NewMemory() *Memory {
	return &Memory{m: make(map[string]*cycling.MetricSnapshot)}
}

func (c *Memory) Get(_ context.Context, key store.SnapshotKey) (*cycling.MetricSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap, ok := c.m[key.String()]
	if !ok {
		return nil, ErrMiss
	}
	return snap, nil
}

func (c *Memory) Put(_ context.Context, key store.SnapshotKey, snap *cycling.MetricSnapshot) error {
	c.mu.Lock()
	c.m[key.String()] = snap
	c.mu.Unlock()
	return nil
}

func (c *Memory) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.m)
}
