package taxonomy

import (
	"regexp"
	"strings"
)

// fuzzyThreshold is the minimum shared-run similarity for a tolerant match.
const fuzzyThreshold = 0.6

// laborKey matches normalized keys shaped like a canonical direct-labor id
// ("mod-lead", "mod-ing-sr"). Such keys resolve structurally even when the
// table does not carry them, so labor rubros work before a full load.
var laborKey = regexp.MustCompile(`^mod(-[a-z0-9]+)+$`)

// Cache remembers resolution results for a logical session (one page load,
// one aggregation request). A nil result is remembered too: misses are as
// expensive as hits to recompute. Callers must supply a fresh cache if the
// taxonomy might have been reloaded.
type Cache struct {
	results map[string]*Entry
}

func NewCache() *Cache {
	return &Cache{results: map[string]*Entry{}}
}

func (c *Cache) get(key string) (*Entry, bool) {
	if c == nil {
		return nil, false
	}
	e, ok := c.results[key]
	return e, ok
}

func (c *Cache) put(key string, e *Entry) {
	if c == nil {
		return
	}
	c.results[key] = e
}

// Len reports how many keys the cache currently holds.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.results)
}

// Resolve finds the canonical taxonomy entry for a record given every
// identifier/label candidate the record exposes, in priority order. Tiers:
// exact key/alias match, structural labor synthesis, tolerant matching.
// Whatever the outcome, it is cached under every candidate key that was
// tried, so a later lookup through a different field of the same record
// still hits.
func (s *Store) Resolve(candidates []string, cache *Cache) *Entry {
	keys := normalizeCandidates(candidates)
	if len(keys) == 0 {
		return nil
	}

	for _, key := range keys {
		if hit, ok := cache.get(key); ok {
			cacheAll(cache, keys, hit)
			return hit
		}
	}

	result := s.resolveKeys(keys)
	cacheAll(cache, keys, result)
	return result
}

func (s *Store) resolveKeys(keys []string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Tier 1: exact match against the normalized-key index and alias map.
	for _, key := range keys {
		if e, ok := s.byKey[key]; ok {
			return e
		}
		if id, ok := s.aliases[key]; ok {
			if e, ok := s.byID[id]; ok {
				return e
			}
		}
	}

	// Tier 2: synthesize labor entries from the canonical id shape.
	for _, key := range keys {
		if laborKey.MatchString(key) {
			return synthesizeLabor(key)
		}
	}

	// Tier 3: tolerant match over every table key.
	for _, key := range keys {
		if e := s.fuzzyMatch(key); e != nil {
			return e
		}
	}
	return nil
}

// CanonicalizeID maps one raw identifier to its taxonomy entry using the
// exact and labor tiers only. The write path uses this instead of Resolve:
// tolerant matching is acceptable when shaping a dashboard, not when
// deciding what id to persist.
func (s *Store) CanonicalizeID(raw string, cache *Cache) *Entry {
	key := NormalizeKey(raw)
	if key == "" {
		return nil
	}
	if hit, ok := cache.get(key); ok {
		return hit
	}

	s.mu.RLock()
	var result *Entry
	if e, ok := s.byKey[key]; ok {
		result = e
	} else if id, ok := s.aliases[key]; ok {
		result = s.byID[id]
	} else if laborKey.MatchString(key) {
		result = synthesizeLabor(key)
	}
	s.mu.RUnlock()

	cache.put(key, result)
	return result
}

// fuzzyMatch scans the table keys for substring containment, then for the
// best shared-run similarity above the threshold. Table keys are walked in
// sorted order so results are deterministic.
func (s *Store) fuzzyMatch(key string) *Entry {
	if len(key) < 3 {
		return nil
	}
	var best *Entry
	var bestScore float64
	for _, tk := range s.sortedKeys {
		if strings.Contains(tk, key) || strings.Contains(key, tk) {
			return s.byKey[tk]
		}
		if score := similarity(key, tk); score > fuzzyThreshold && score > bestScore {
			best = s.byKey[tk]
			bestScore = score
		}
	}
	return best
}

// similarity is the longest shared character run divided by the longer
// key's length.
func similarity(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	run := longestSharedRun(a, b)
	max := len(a)
	if len(b) > max {
		max = len(b)
	}
	return float64(run) / float64(max)
}

func longestSharedRun(a, b string) int {
	// prev[j] = length of the common run ending at a[i-1], b[j-1].
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	best := 0
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > best {
					best = cur[j]
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return best
}

func synthesizeLabor(key string) *Entry {
	id := strings.ToUpper(key)
	return &Entry{
		ID:            id,
		Label:         id,
		CategoryCode:  LaborCategoryCode,
		CategoryName:  "Mano de Obra Directa",
		CostType:      CostOpex,
		ExecutionType: ExecRecurring,
		IsLabor:       true,
		Synthesized:   true,
	}
}

func normalizeCandidates(candidates []string) []string {
	keys := make([]string, 0, len(candidates))
	seen := make(map[string]struct{}, len(candidates))
	for _, cand := range candidates {
		key := NormalizeKey(cand)
		if key == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		keys = append(keys, key)
	}
	return keys
}

func cacheAll(cache *Cache, keys []string, result *Entry) {
	for _, key := range keys {
		cache.put(key, result)
	}
}
