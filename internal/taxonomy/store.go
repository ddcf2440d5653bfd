package taxonomy

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"
)

//go:embed taxonomy.json
var bundledFS embed.FS

const bundledPath = "taxonomy.json"

// RemoteFetcher retrieves the taxonomy document from a remote object store.
// It is only consulted when the bundled copy is missing or unreadable.
type RemoteFetcher interface {
	Fetch(ctx context.Context) ([]byte, error)
}

// Store holds the canonical taxonomy table, the legacy alias map and the
// derived lookup indexes. It is constructed once at startup and passed by
// reference to everything that resolves rubros; there is no package-global
// table.
type Store struct {
	remote RemoteFetcher

	loadGroup singleflight.Group

	mu           sync.RWMutex
	loaded       bool
	entries      []Entry
	aliases      map[string]string
	byID         map[string]*Entry
	byKey        map[string]*Entry
	sortedKeys   []string
	canonicalIDs map[string]struct{}
}

// NewStore creates an empty store. remote may be nil when no object-store
// fallback is configured.
func NewStore(remote RemoteFetcher) *Store {
	return &Store{
		remote:       remote,
		aliases:      map[string]string{},
		byID:         map[string]*Entry{},
		byKey:        map[string]*Entry{},
		canonicalIDs: map[string]struct{}{},
	}
}

// EnsureLoaded loads the taxonomy exactly once. Concurrent callers collapse
// into a single in-flight load; repeated calls after a completed load are
// no-ops. A load that fails from both sources leaves the table empty rather
// than returning an error: resolution then degrades to nil results.
func (s *Store) EnsureLoaded(ctx context.Context) error {
	s.mu.RLock()
	loaded := s.loaded
	s.mu.RUnlock()
	if loaded {
		return nil
	}

	_, err, _ := s.loadGroup.Do("load", func() (any, error) {
		s.mu.RLock()
		loaded := s.loaded
		s.mu.RUnlock()
		if loaded {
			return nil, nil
		}
		s.load(ctx)
		return nil, nil
	})
	return err
}

// load tries the bundled document first, then the remote fallback. Index
// rebuild happens inside setTable so neither path can forget it.
func (s *Store) load(ctx context.Context) {
	if doc, err := readBundled(); err == nil {
		s.setTable(doc.Rubros, doc.LegacyAliases)
		slog.InfoContext(ctx, "Taxonomy loaded from bundled file", "rubros", len(doc.Rubros), "aliases", len(doc.LegacyAliases))
		return
	} else {
		slog.WarnContext(ctx, "Bundled taxonomy unreadable, trying remote fallback", "error", err)
	}

	if s.remote != nil {
		if raw, err := s.remote.Fetch(ctx); err == nil {
			if doc, err := parseTable(raw); err == nil {
				s.setTable(doc.Rubros, doc.LegacyAliases)
				slog.InfoContext(ctx, "Taxonomy loaded from remote store", "rubros", len(doc.Rubros))
				return
			} else {
				slog.WarnContext(ctx, "Remote taxonomy document malformed", "error", err)
			}
		} else {
			slog.WarnContext(ctx, "Remote taxonomy fetch failed", "error", err)
		}
	}

	// Both sources failed: keep an empty but consistent table.
	s.setTable(nil, nil)
	slog.WarnContext(ctx, "Taxonomy unavailable, resolver will degrade to raw identifiers")
}

// Reload discards the current table and loads again. Callers holding lookup
// caches must discard them after a reload.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.loaded = false
	s.mu.Unlock()
	return s.EnsureLoaded(ctx)
}

// setTable installs a new table and rebuilds every derived index. This is
// the single mutation point for store state: both load paths and the empty
// fallback go through it, so the id-set can never drift from the entry list.
func (s *Store) setTable(entries []Entry, aliases map[string]string) {
	byID := make(map[string]*Entry, len(entries))
	byKey := make(map[string]*Entry, len(entries)*2)
	canonicalIDs := make(map[string]struct{}, len(entries))
	owned := make([]Entry, len(entries))
	copy(owned, entries)

	for i := range owned {
		e := &owned[i]
		e.IsLabor = e.CategoryCode == LaborCategoryCode
		byID[e.ID] = e
		canonicalIDs[e.ID] = struct{}{}
		if k := NormalizeKey(e.ID); k != "" {
			byKey[k] = e
		}
		if k := NormalizeKey(e.Label); k != "" {
			if _, taken := byKey[k]; !taken {
				byKey[k] = e
			}
		}
	}

	normAliases := make(map[string]string, len(aliases))
	for alias, id := range aliases {
		k := NormalizeKey(alias)
		if k == "" {
			continue
		}
		if _, ok := byID[id]; !ok {
			continue
		}
		normAliases[k] = id
	}

	sortedKeys := make([]string, 0, len(byKey))
	for k := range byKey {
		sortedKeys = append(sortedKeys, k)
	}
	sort.Strings(sortedKeys)

	s.mu.Lock()
	s.entries = owned
	s.aliases = normAliases
	s.byID = byID
	s.byKey = byKey
	s.sortedKeys = sortedKeys
	s.canonicalIDs = canonicalIDs
	s.loaded = true
	s.mu.Unlock()
}

// Entries returns a copy of the loaded taxonomy rows.
func (s *Store) Entries() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Len reports how many canonical entries are loaded.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// CanonicalIDs returns the set of every canonical id. Its size always
// matches Len after a load from either source.
func (s *Store) CanonicalIDs() map[string]struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]struct{}, len(s.canonicalIDs))
	for id := range s.canonicalIDs {
		out[id] = struct{}{}
	}
	return out
}

// IsCanonical reports whether id is a loaded canonical id.
func (s *Store) IsCanonical(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.canonicalIDs[id]
	return ok
}

// Get returns the entry for a canonical id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func readBundled() (tableFile, error) {
	raw, err := bundledFS.ReadFile(bundledPath)
	if err != nil {
		return tableFile{}, fmt.Errorf("read bundled taxonomy: %w", err)
	}
	return parseTable(raw)
}

func parseTable(raw []byte) (tableFile, error) {
	var doc tableFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return tableFile{}, fmt.Errorf("parse taxonomy document: %w", err)
	}
	return doc, nil
}
