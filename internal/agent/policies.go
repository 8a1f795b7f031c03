// File: internal/agent/policies.go
package agent

import (
	"math/rand"
	"time"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/memory"
	"github.com/xkilldash9x/explorer-cli/internal/ring"
)

const rageClickRun = 3

// rageClickDetector fires when the last three actions are clicks on the same
// selector. A triple that has fired cannot fire again; the next one must
// consist of three new actions.
type rageClickDetector struct {
	// armedAt is the action count before which no click may be part of a new triple.
	armedAt int
}

// Observe inspects the history after an action was appended and reports the
// selector when a rage click is detected.
func (d *rageClickDetector) Observe(history *ring.Ring[schemas.TestAction]) (string, bool) {
	if history.Total()-d.armedAt < rageClickRun {
		return "", false
	}
	last := history.Last(rageClickRun)
	if len(last) < rageClickRun {
		return "", false
	}
	selector := last[0].Selector
	for _, a := range last {
		if a.Kind != schemas.ActionClick || a.Selector != selector || selector == "" {
			return "", false
		}
	}
	d.armedAt = history.Total()
	return selector, true
}

// failureEscalation counts consecutive failed actions.
type failureEscalation struct {
	threshold   int
	consecutive int
}

// Record updates the counter and reports whether the threshold was reached.
// The counter is reset when it fires.
func (f *failureEscalation) Record(succeeded bool) bool {
	if succeeded {
		f.consecutive = 0
		return false
	}
	f.consecutive++
	if f.threshold > 0 && f.consecutive >= f.threshold {
		f.consecutive = 0
		return true
	}
	return false
}

// Reset clears the counter.
func (f *failureEscalation) Reset() { f.consecutive = 0 }

// nextPriorityRoute returns the first route whose path has not been visited,
// or a uniformly random route when every one has been. ok is false when there
// are no routes.
func nextPriorityRoute(routes []string, visited map[string]bool, rng *rand.Rand) (string, bool) {
	if len(routes) == 0 {
		return "", false
	}
	for _, r := range routes {
		if !visited[memory.NormalizePath(r)] {
			return r, true
		}
	}
	return routes[rng.Intn(len(routes))], true
}

// pickRandom returns a uniformly random element of items.
func pickRandom[T any](items []T, rng *rand.Rand) (T, bool) {
	var zero T
	if len(items) == 0 {
		return zero, false
	}
	return items[rng.Intn(len(items))], true
}

// snapshotTimer fires on a fixed wall-clock interval.
type snapshotTimer struct {
	interval time.Duration
	last     time.Time
}

// Due reports whether an interval has elapsed since the last snapshot and
// restarts the interval when it has.
func (s *snapshotTimer) Due(now time.Time) bool {
	if s.interval <= 0 {
		return false
	}
	if now.Sub(s.last) < s.interval {
		return false
	}
	s.last = now
	return true
}
