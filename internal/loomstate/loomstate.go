// Package loomstate holds the last known snapshot of every loom in memory
// and writes each change through to the backend.
package loomstate

import (
	"context"
	"sort"
	"sync"

	"github.com/interteks/loomtrack/internal/data/store"
	"github.com/interteks/loomtrack/internal/domain/loom"
	"github.com/interteks/loomtrack/internal/platform/logger"
)

type Store struct {
	mu      sync.RWMutex
	looms   map[string]loom.Snapshot
	backend store.Backend
	log     *logger.Logger
}

func New(backend store.Backend, baseLog *logger.Logger) *Store {
	return &Store{
		looms:   map[string]loom.Snapshot{},
		backend: backend,
		log:     baseLog.With("service", "LoomState"),
	}
}

// Load replaces the in-memory map with what the backend has persisted.
func (s *Store) Load(ctx context.Context) error {
	snaps, err := s.backend.LoadSnapshots(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.looms = make(map[string]loom.Snapshot, len(snaps))
	for _, snap := range snaps {
		s.looms[snap.LoomID] = snap
	}
	s.log.Info("Loaded loom snapshots", "count", len(snaps), "backend", string(s.backend.Kind()))
	return nil
}

func (s *Store) Get(loomID string) (loom.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.looms[loomID]
	return snap, ok
}

// All returns every snapshot ordered by loom id.
func (s *Store) All() []loom.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sortedLocked()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.looms)
}

func (s *Store) sortedLocked() []loom.Snapshot {
	out := make([]loom.Snapshot, 0, len(s.looms))
	for _, snap := range s.looms {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LoomID < out[j].LoomID })
	return out
}

// Upsert records snap in memory and commits it with credit. Memory stays
// updated when the backend write fails; the error is returned so the caller
// can report it.
func (s *Store) Upsert(ctx context.Context, snap loom.Snapshot, credit *store.Credit) error {
	s.mu.Lock()
	s.looms[snap.LoomID] = snap
	all := s.sortedLocked()
	s.mu.Unlock()

	w := store.IngestWrite{Snapshot: snap, Credit: credit}
	if !s.backend.Kind().Relational() {
		w.All = all
	}
	if err := s.backend.Commit(ctx, w); err != nil {
		s.log.Error("Persist snapshot failed", "loom_id", snap.LoomID, "error", err)
		return err
	}
	return nil
}
