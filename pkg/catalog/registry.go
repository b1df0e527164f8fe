package catalog

import (
	"fmt"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
)

// Registry is the in-memory catalog of discovered plugins, keyed by
// manifest content hash
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Upsert inserts a new entry or refreshes an existing one. Because the id
// is the content hash, re-discovering an unchanged plugin only refreshes
// the mutable fields; DiscoveredAt never changes after the first insert.
// Returns true when the entry was newly inserted.
func (r *Registry) Upsert(entry *Entry, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.entries[entry.ID]
	if ok {
		existing.SourceURL = entry.SourceURL
		existing.LogicPath = entry.LogicPath
		existing.LastValidatedAt = now
		return false
	}

	clone := *entry
	clone.DiscoveredAt = now
	clone.LastValidatedAt = now
	r.entries[entry.ID] = &clone
	return true
}

// Get returns an entry by its content hash
func (r *Registry) Get(id string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	clone := *entry
	return &clone, true
}

// FindByProvider returns the entry with the highest version for a provider
// slug. Provider ids are not unique across versions.
func (r *Registry) FindByProvider(providerID string) (*Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Entry
	var bestVersion *semver.Version

	for _, entry := range r.entries {
		if entry.ProviderID != providerID {
			continue
		}

		v, err := semver.NewVersion(entry.Version)
		if err != nil {
			// versions are validated at ingestion; treat the rare bad
			// one as lowest
			if best == nil {
				best = entry
			}
			continue
		}

		if best == nil || bestVersion == nil || v.GreaterThan(bestVersion) {
			best = entry
			bestVersion = v
		}
	}

	if best == nil {
		return nil, fmt.Errorf("plugin provider %s not found in catalog", providerID)
	}

	clone := *best
	return &clone, nil
}

// List returns all entries
func (r *Registry) List() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.entries))
	for _, entry := range r.entries {
		clone := *entry
		entries = append(entries, &clone)
	}
	return entries
}

// Load replaces the registry contents, used when restoring a snapshot
func (r *Registry) Load(entries []*Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*Entry, len(entries))
	for _, entry := range entries {
		clone := *entry
		r.entries[entry.ID] = &clone
	}
}

// Len returns the number of entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
