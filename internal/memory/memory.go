// File: internal/memory/memory.go
package memory

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

const (
	hashLength    = 16
	maxTextLength = 80
	noveltyStep   = 0.2
	noveltyCap    = 0.9
	noveltyFloor  = 0.1
)

// ElementMemory is the persisted interaction history of one element on one page.
type ElementMemory struct {
	Selector        string    `json:"selector"`
	PagePath        string    `json:"pagePath"`
	Text            string    `json:"text"`
	ClickCount      int       `json:"clickCount"`
	FirstSeen       time.Time `json:"firstSeen"`
	LastInteraction time.Time `json:"lastInteraction"`
	LastSucceeded   bool      `json:"lastSucceeded"`
}

// Stats summarises the contents of the store.
type Stats struct {
	Elements    int       `json:"elements"`
	Pages       int       `json:"pages"`
	TotalClicks int       `json:"totalClicks"`
	PageVisits  int       `json:"pageVisits"`
	SavedAt     time.Time `json:"savedAt,omitempty"`
}

// Store maps (page path, selector) identities to interaction history and
// scores candidate elements by novelty. Every mutation reloads the backing
// file, merges the change and writes the whole document back, so several
// processes can share one file. Concurrent writers may lose increments.
type Store struct {
	logger *zap.Logger
	path   string
	now    func() time.Time

	mu         sync.Mutex
	elements   map[string]ElementMemory
	pageVisits map[string]int
	savedAt    time.Time
}

// New opens the store backed by path. A missing or unreadable file yields an
// empty store. An empty path keeps the store purely in memory.
func New(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		logger:     logger.Named("memory"),
		path:       path,
		now:        func() time.Time { return time.Now().UTC() },
		elements:   make(map[string]ElementMemory),
		pageVisits: make(map[string]int),
	}
	if snap, err := readSnapshot(path); err != nil {
		s.logger.Warn("Navigation memory unreadable, starting empty.", zap.String("path", path), zap.Error(err))
	} else if snap != nil {
		s.apply(snap)
		s.logger.Info("Navigation memory loaded.",
			zap.String("path", path),
			zap.Int("elements", len(s.elements)),
			zap.Int("pages", len(s.pageVisits)))
	}
	return s
}

// Path returns the backing file location.
func (s *Store) Path() string { return s.path }

// NormalizePath reduces a page URL to its path component. Scheme, host, query
// and fragment are dropped; an empty path becomes "/".
func NormalizePath(pageURL string) string {
	p := pageURL
	if u, err := url.Parse(pageURL); err == nil {
		p = u.Path
	} else if i := strings.IndexAny(p, "?#"); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// Hash is the identity of an element: the first 16 hex characters of the
// sha256 of the normalized page path and the raw selector.
func Hash(selector, pageURL string) string {
	sum := sha256.Sum256([]byte(NormalizePath(pageURL) + "\x00" + selector))
	return hex.EncodeToString(sum[:])[:hashLength]
}

// NoveltyForCount maps a click count onto [0.1, 1.0].
func NoveltyForCount(n int) float64 {
	if n <= 0 {
		return 1.0
	}
	decay := float64(n) * noveltyStep
	if decay > noveltyCap {
		decay = noveltyCap
	}
	score := 1.0 - decay
	if score < noveltyFloor {
		return noveltyFloor
	}
	return score
}

// RecordInteraction bumps the click counter of el on pageURL, creating the
// record on first contact, and persists the store. The in-memory update
// always happens; the returned error only reports a failed write.
func (s *Store) RecordInteraction(el schemas.InteractiveElement, pageURL string, succeeded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reloadLocked()

	now := s.now()
	key := Hash(el.Selector, pageURL)
	rec, ok := s.elements[key]
	if !ok {
		rec = ElementMemory{
			Selector:  el.Selector,
			PagePath:  NormalizePath(pageURL),
			FirstSeen: now,
		}
	}
	rec.Text = truncate(el.Text, maxTextLength)
	rec.ClickCount++
	rec.LastInteraction = now
	rec.LastSucceeded = succeeded
	s.elements[key] = rec

	return s.writeLocked()
}

// NoveltyScore returns 1.0 for an unknown element, otherwise the decayed score
// for its click count.
func (s *Store) NoveltyScore(selector, pageURL string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return NoveltyForCount(s.elements[Hash(selector, pageURL)].ClickCount)
}

// Lookup returns the record for an element, if one exists.
func (s *Store) Lookup(selector, pageURL string) (ElementMemory, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.elements[Hash(selector, pageURL)]
	return rec, ok
}

// RecordPageVisit increments the visit counter of the page's normalized path
// and persists the store.
func (s *Store) RecordPageVisit(pageURL string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reloadLocked()
	s.pageVisits[NormalizePath(pageURL)]++
	return s.writeLocked()
}

// VisitCount returns how often the page's normalized path was visited.
func (s *Store) VisitCount(pageURL string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageVisits[NormalizePath(pageURL)]
}

// NoveltyMap scores every element, keyed by selector.
func (s *Store) NoveltyMap(elements []schemas.InteractiveElement, pageURL string) map[string]float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	scores := make(map[string]float64, len(elements))
	for _, el := range elements {
		scores[el.Selector] = NoveltyForCount(s.elements[Hash(el.Selector, pageURL)].ClickCount)
	}
	return scores
}

// RankByNovelty returns a copy of elements sorted by descending novelty.
// Ties keep their original relative order.
func (s *Store) RankByNovelty(elements []schemas.InteractiveElement, pageURL string) []schemas.InteractiveElement {
	scores := s.NoveltyMap(elements, pageURL)
	ranked := make([]schemas.InteractiveElement, len(elements))
	copy(ranked, elements)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scores[ranked[i].Selector] > scores[ranked[j].Selector]
	})
	return ranked
}

// Reload merges the on-disk snapshot into the store.
func (s *Store) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloadLocked()
}

// Save writes the full store to disk.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeLocked()
}

// Clear forgets every record and removes the backing file.
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elements = make(map[string]ElementMemory)
	s.pageVisits = make(map[string]int)
	s.savedAt = time.Time{}
	return removeSnapshot(s.path)
}

// Stats reports the size of the store.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Elements: len(s.elements), Pages: len(s.pageVisits), SavedAt: s.savedAt}
	for _, rec := range s.elements {
		st.TotalClicks += rec.ClickCount
	}
	for _, n := range s.pageVisits {
		st.PageVisits += n
	}
	return st
}

// MostClicked returns up to n records ordered by click count.
func (s *Store) MostClicked(n int) []ElementMemory {
	s.mu.Lock()
	recs := make([]ElementMemory, 0, len(s.elements))
	for _, rec := range s.elements {
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	sort.Slice(recs, func(i, j int) bool {
		if recs[i].ClickCount != recs[j].ClickCount {
			return recs[i].ClickCount > recs[j].ClickCount
		}
		return recs[i].Selector < recs[j].Selector
	})
	if n >= 0 && len(recs) > n {
		recs = recs[:n]
	}
	return recs
}

// reloadLocked replaces the in-memory tables with the on-disk snapshot. When
// the file is missing or corrupt the current state is kept so a damaged file
// never erases what this process already knows.
func (s *Store) reloadLocked() {
	snap, err := readSnapshot(s.path)
	if err != nil {
		s.logger.Warn("Failed to reload navigation memory, keeping in-memory state.", zap.Error(err))
		return
	}
	if snap == nil {
		return
	}
	s.apply(snap)
}

func (s *Store) apply(snap *snapshot) {
	elements := make(map[string]ElementMemory, len(snap.Elements))
	for _, e := range snap.Elements {
		elements[e.Hash] = e.Record
	}
	visits := make(map[string]int, len(snap.PageVisits))
	for _, v := range snap.PageVisits {
		visits[v.Path] = v.Count
	}
	s.elements = elements
	s.pageVisits = visits
	s.savedAt = snap.SavedAt
}

func (s *Store) writeLocked() error {
	if s.path == "" {
		return nil
	}
	snap := &snapshot{SavedAt: s.now()}
	keys := make([]string, 0, len(s.elements))
	for k := range s.elements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		snap.Elements = append(snap.Elements, elementEntry{Hash: k, Record: s.elements[k]})
	}
	paths := make([]string, 0, len(s.pageVisits))
	for p := range s.pageVisits {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		snap.PageVisits = append(snap.PageVisits, visitEntry{Path: p, Count: s.pageVisits[p]})
	}

	if err := writeSnapshot(s.path, snap); err != nil {
		s.logger.Warn("Failed to persist navigation memory.", zap.String("path", s.path), zap.Error(err))
		return err
	}
	s.savedAt = snap.SavedAt
	return nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
