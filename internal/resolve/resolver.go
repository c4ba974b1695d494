package resolve

import (
	"strings"
	"sync"
	"time"

	"deskbot/internal/domain"
)

const (
	// DefaultTTL bounds how long an enumeration stays usable; windows
	// come and go, stale lists resolve to wrong targets.
	DefaultTTL = 30 * time.Second

	// fuzzyThreshold is the minimum raw score for a fuzzy match.
	fuzzyThreshold = 15
)

type cacheEntry struct {
	windows  []domain.WindowInfo
	cachedAt time.Time
}

// Resolver maps loose user references ("the second one", "my editor")
// onto concrete windows from a recent enumeration. Enumerations are
// cached per normalized process name with a TTL.
type Resolver struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewResolver(ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Resolver{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// Store records a fresh enumeration for a process.
func (r *Resolver) Store(processName string, windows []domain.WindowInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[normalizeText(processName)] = cacheEntry{
		windows:  windows,
		cachedAt: r.now(),
	}
}

// Cached returns the unexpired enumeration for a process, purging it
// if the TTL has elapsed.
func (r *Resolver) Cached(processName string) ([]domain.WindowInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := normalizeText(processName)
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	if r.now().Sub(e.cachedAt) > r.ttl {
		delete(r.entries, key)
		return nil, false
	}
	return e.windows, true
}

// Resolve finds the window a reference names within one process's
// cached enumeration. Priority: ordinal position, exact title,
// normalized title, fuzzy score. Returns nil when nothing matches
// clearly; the caller should re-enumerate or ask the user.
func (r *Resolver) Resolve(processName, reference string) *domain.WindowInfo {
	windows, ok := r.Cached(processName)
	if !ok || len(windows) == 0 {
		return nil
	}
	return resolveIn(windows, reference)
}

// ResolveAny widens the search across every cached process. Raw scores
// are normalized to 0-100 so candidates from references of different
// lengths compare fairly; the best normalized score wins, first seen
// breaking ties.
func (r *Resolver) ResolveAny(reference string) *domain.WindowInfo {
	r.mu.Lock()
	now := r.now()
	var all []domain.WindowInfo
	for key, e := range r.entries {
		if now.Sub(e.cachedAt) > r.ttl {
			delete(r.entries, key)
			continue
		}
		all = append(all, e.windows...)
	}
	r.mu.Unlock()

	if len(all) == 0 {
		return nil
	}

	refNorm := normalizeText(reference)
	refTokens := strings.Fields(refNorm)
	max := maxScore(refTokens)

	best := -1
	bestScore := 0
	for i, w := range all {
		raw := scoreWindow(refNorm, refTokens, w)
		if raw < fuzzyThreshold {
			continue
		}
		norm := raw * 100 / max
		if norm > bestScore {
			best, bestScore = i, norm
		}
	}
	if best < 0 {
		return nil
	}
	return &all[best]
}

func resolveIn(windows []domain.WindowInfo, reference string) *domain.WindowInfo {
	// Ordinal references pick by position and skip matching entirely.
	if idx := ordinalIndex(reference); idx >= 0 {
		if idx < len(windows) {
			return &windows[idx]
		}
		return nil
	}

	for i, w := range windows {
		if w.Title == reference {
			return &windows[i]
		}
	}

	refNorm := normalizeText(reference)
	for i, w := range windows {
		if normalizeText(w.Title) == refNorm {
			return &windows[i]
		}
	}

	refTokens := strings.Fields(refNorm)
	best := -1
	bestScore := 0
	for i, w := range windows {
		score := scoreWindow(refNorm, refTokens, w)
		if score >= fuzzyThreshold && score > bestScore {
			best, bestScore = i, score
		}
	}
	if best < 0 {
		return nil
	}
	return &windows[best]
}

// scoreWindow rates how well a window title matches the reference.
// Prefix matches dominate, then whole-substring containment, then
// per-token overlap; active windows and titles of similar length get a
// small nudge.
func scoreWindow(refNorm string, refTokens []string, w domain.WindowInfo) int {
	title := normalizeText(w.Title)
	if refNorm == "" || title == "" {
		return 0
	}

	score := 0
	switch {
	case strings.HasPrefix(title, refNorm):
		score += 60
	case strings.Contains(title, refNorm):
		score += 45
	}

	matched := 0
	for _, tok := range refTokens {
		if strings.Contains(title, tok) {
			score += 10
			matched++
		}
	}
	if len(refTokens) > 0 && matched == len(refTokens) {
		score += 10
	}

	if w.IsActive {
		score += 5
	}
	diff := len(title) - len(refNorm)
	if diff < 0 {
		diff = -diff
	}
	if diff <= 10 {
		score += 5
	}
	return score
}

func maxScore(refTokens []string) int {
	return 60 + 10*len(refTokens) + 10 + 5 + 5
}
