// Package aststore is the shared store of parsed sources, keyed by file
// handle and by module qualifier. It is the only state mutated by
// parallel workers; every operation is atomic per key, with no cross-key
// guarantees.
package aststore

import (
	"encoding/hex"
	"io"
	"os"
	"sort"
	"sync"

	"github.com/zeebo/xxh3"

	"github.com/foundrylab/pyfoundry/internal/pysrc"
)

const shardCount = 32

type shard struct {
	mu      sync.RWMutex
	sources map[pysrc.Handle]*pysrc.Source
}

// Store holds parsed sources, first-pass module registrations, and
// per-path content hashes.
type Store struct {
	shards [shardCount]shard

	modMu   sync.RWMutex
	modules map[pysrc.Qualifier]pysrc.Module

	hashMu sync.RWMutex
	hashes map[string]string // path -> hex xxh3
}

// New returns an empty Store.
func New() *Store {
	s := &Store{
		modules: make(map[pysrc.Qualifier]pysrc.Module),
		hashes:  make(map[string]string),
	}
	for i := range s.shards {
		s.shards[i].sources = make(map[pysrc.Handle]*pysrc.Source)
	}
	return s
}

func (s *Store) shardFor(h pysrc.Handle) *shard {
	return &s.shards[xxh3.HashString(string(h))%shardCount]
}

// Add inserts a source under its handle. Last write for a handle wins.
func (s *Store) Add(h pysrc.Handle, src *pysrc.Source) {
	sh := s.shardFor(h)
	sh.mu.Lock()
	sh.sources[h] = src
	sh.mu.Unlock()
}

// Get returns the source for a handle, or nil.
func (s *Store) Get(h pysrc.Handle) *pysrc.Source {
	sh := s.shardFor(h)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	return sh.sources[h]
}

// Remove evicts one handle's source.
func (s *Store) Remove(h pysrc.Handle) {
	sh := s.shardFor(h)
	sh.mu.Lock()
	delete(sh.sources, h)
	sh.mu.Unlock()
}

// Len returns the number of stored sources.
func (s *Store) Len() int {
	n := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		n += len(sh.sources)
		sh.mu.RUnlock()
	}
	return n
}

// Handles returns a sorted snapshot of all stored handles. Callers must
// not invoke this while workers are still writing.
func (s *Store) Handles() []pysrc.Handle {
	var handles []pysrc.Handle
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for h := range sh.sources {
			handles = append(handles, h)
		}
		sh.mu.RUnlock()
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i] < handles[j] })
	return handles
}

// RegisterModule records a first-pass module registration. Re-registering
// a qualifier overwrites.
func (s *Store) RegisterModule(m pysrc.Module) {
	s.modMu.Lock()
	s.modules[m.Qualifier] = m
	s.modMu.Unlock()
}

// Module returns the registration for a qualifier.
func (s *Store) Module(q pysrc.Qualifier) (pysrc.Module, bool) {
	s.modMu.RLock()
	defer s.modMu.RUnlock()
	m, ok := s.modules[q]
	return m, ok
}

// ModuleQualifiers returns a sorted snapshot of registered qualifiers.
func (s *Store) ModuleQualifiers() []pysrc.Qualifier {
	s.modMu.RLock()
	qs := make([]pysrc.Qualifier, 0, len(s.modules))
	for q := range s.modules {
		qs = append(qs, q)
	}
	s.modMu.RUnlock()
	sort.Slice(qs, func(i, j int) bool { return qs[i] < qs[j] })
	return qs
}

// RemoveModules bulk-evicts module registrations, clearing stale entries
// for files no longer discovered by the current catalog scan.
func (s *Store) RemoveModules(qualifiers []pysrc.Qualifier) {
	s.modMu.Lock()
	for _, q := range qualifiers {
		delete(s.modules, q)
	}
	s.modMu.Unlock()
}

// AddPathHash records a content fingerprint for the file at path, for
// later change detection.
func (s *Store) AddPathHash(path string) error {
	hash, err := hashFile(path)
	if err != nil {
		return err
	}
	s.hashMu.Lock()
	s.hashes[path] = hash
	s.hashMu.Unlock()
	return nil
}

// PathHash returns the recorded fingerprint for a path.
func (s *Store) PathHash(path string) (string, bool) {
	s.hashMu.RLock()
	defer s.hashMu.RUnlock()
	h, ok := s.hashes[path]
	return h, ok
}

// PathHashes returns a copy of all recorded path fingerprints.
func (s *Store) PathHashes() map[string]string {
	s.hashMu.RLock()
	defer s.hashMu.RUnlock()
	out := make(map[string]string, len(s.hashes))
	for k, v := range s.hashes {
		out[k] = v
	}
	return out
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxh3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
