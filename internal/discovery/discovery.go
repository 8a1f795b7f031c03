// File: internal/discovery/discovery.go
package discovery

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/memory"
)

var newFeatureID = uuid.NewString

// Feature is one deduplicated catalog entry, keyed by selector within a page.
type Feature struct {
	ID           string    `json:"id"`
	Selector     string    `json:"selector"`
	Tag          string    `json:"tag"`
	Role         string    `json:"role,omitempty"`
	Text         string    `json:"text"`
	Category     Category  `json:"category"`
	TimesSeen    int       `json:"timesSeen"`
	Interactions int       `json:"interactions"`
	FirstSeen    time.Time `json:"firstSeen"`
	LastSeen     time.Time `json:"lastSeen"`
}

type page struct {
	path         string
	title        string
	visits       int
	firstVisited time.Time
	lastVisited  time.Time
	features     map[string]*Feature
	order        []string
}

// Discovery catalogs every interactive element the agent has seen, whether or
// not it was acted upon. It is safe for concurrent use.
type Discovery struct {
	logger  *zap.Logger
	now     func() time.Time
	started time.Time

	mu    sync.Mutex
	pages map[string]*page
}

// New creates an empty catalog; elapsed durations are measured from now.
func New(logger *zap.Logger) *Discovery {
	if logger == nil {
		logger = zap.NewNop()
	}
	now := func() time.Time { return time.Now().UTC() }
	return &Discovery{
		logger:  logger.Named("discovery"),
		now:     now,
		started: now(),
		pages:   make(map[string]*page),
	}
}

// RegisterFeatures records a visit to pageURL and merges the visible, labelled
// elements into the catalog. It returns how many features were new.
func (d *Discovery) RegisterFeatures(elements []schemas.InteractiveElement, pageURL, title string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	path := memory.NormalizePath(pageURL)
	p, ok := d.pages[path]
	if !ok {
		p = &page{path: path, firstVisited: now, features: make(map[string]*Feature)}
		d.pages[path] = p
	}
	p.visits++
	p.lastVisited = now
	if title != "" {
		p.title = title
	}

	added := 0
	for _, el := range elements {
		text := strings.TrimSpace(el.Text)
		if !el.Visible || text == "" {
			continue
		}
		if f, exists := p.features[el.Selector]; exists {
			f.TimesSeen++
			f.LastSeen = now
			f.Text = text
			continue
		}
		p.features[el.Selector] = &Feature{
			ID:        newFeatureID(),
			Selector:  el.Selector,
			Tag:       el.Tag,
			Role:      el.Role,
			Text:      text,
			Category:  Categorize(el),
			TimesSeen: 1,
			FirstSeen: now,
			LastSeen:  now,
		}
		p.order = append(p.order, el.Selector)
		added++
	}
	if added > 0 {
		d.logger.Debug("New features discovered.", zap.String("page", path), zap.Int("added", added))
	}
	return added
}

// RecordInteraction bumps the interaction counter of a known feature. Unknown
// features are ignored.
func (d *Discovery) RecordInteraction(selector, pageURL string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pages[memory.NormalizePath(pageURL)]
	if !ok {
		return
	}
	if f, ok := p.features[selector]; ok {
		f.Interactions++
		f.LastSeen = d.now()
	}
}

// PageCatalog is the view of one page in a Catalog.
type PageCatalog struct {
	Path         string    `json:"path"`
	Title        string    `json:"title"`
	Visits       int       `json:"visits"`
	FirstVisited time.Time `json:"firstVisited"`
	LastVisited  time.Time `json:"lastVisited"`
	Features     []Feature `json:"features"`
}

// Catalog is an immutable snapshot of everything discovered so far.
type Catalog struct {
	GeneratedAt     time.Time        `json:"generatedAt"`
	Duration        string           `json:"duration"`
	DurationSeconds float64          `json:"durationSeconds"`
	TotalPages      int              `json:"totalPages"`
	TotalFeatures   int              `json:"totalFeatures"`
	UniqueFeatures  int              `json:"uniqueFeatures"`
	ByCategory      map[Category]int `json:"byCategory"`
	Pages           []PageCatalog    `json:"pages"`
}

// BuildCatalog returns a page-sorted snapshot. Unique features are counted by
// visible text across all pages.
func (d *Discovery) BuildCatalog() Catalog {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	elapsed := now.Sub(d.started).Round(time.Second)
	cat := Catalog{
		GeneratedAt:     now,
		Duration:        elapsed.String(),
		DurationSeconds: elapsed.Seconds(),
		TotalPages:      len(d.pages),
		ByCategory:      make(map[Category]int),
		Pages:           make([]PageCatalog, 0, len(d.pages)),
	}

	unique := make(map[string]struct{})
	for _, p := range d.pages {
		pc := PageCatalog{
			Path:         p.path,
			Title:        p.title,
			Visits:       p.visits,
			FirstVisited: p.firstVisited,
			LastVisited:  p.lastVisited,
			Features:     make([]Feature, 0, len(p.order)),
		}
		for _, sel := range p.order {
			f := *p.features[sel]
			pc.Features = append(pc.Features, f)
			cat.ByCategory[f.Category]++
			unique[strings.ToLower(f.Text)] = struct{}{}
		}
		cat.TotalFeatures += len(pc.Features)
		cat.Pages = append(cat.Pages, pc)
	}
	cat.UniqueFeatures = len(unique)
	sort.Slice(cat.Pages, func(i, j int) bool { return cat.Pages[i].Path < cat.Pages[j].Path })
	return cat
}

// VisitedPages lists every page path seen, sorted.
func (d *Discovery) VisitedPages() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	paths := make([]string, 0, len(d.pages))
	for p := range d.pages {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
