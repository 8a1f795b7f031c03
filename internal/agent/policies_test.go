// File: internal/agent/policies_test.go
package agent

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
	"github.com/xkilldash9x/explorer-cli/internal/ring"
)

func TestRageClickDetector(t *testing.T) {
	t.Run("fires once per qualifying triple", func(t *testing.T) {
		history := ring.New[schemas.TestAction](10)
		var d rageClickDetector

		fired := 0
		for i := 0; i < 3; i++ {
			history.Push(schemas.Click("#a", "a"))
			if _, ok := d.Observe(history); ok {
				fired++
			}
		}
		assert.Equal(t, 1, fired)

		// A fourth click overlaps the triple that already fired.
		history.Push(schemas.Click("#a", "a"))
		_, ok := d.Observe(history)
		assert.False(t, ok)
	})

	t.Run("re-arms after three new clicks", func(t *testing.T) {
		history := ring.New[schemas.TestAction](10)
		var d rageClickDetector
		var selectors []string
		for i := 0; i < 6; i++ {
			history.Push(schemas.Click("#a", "a"))
			if sel, ok := d.Observe(history); ok {
				selectors = append(selectors, sel)
			}
		}
		assert.Equal(t, []string{"#a", "#a"}, selectors)
	})

	t.Run("does not fire on mixed selectors", func(t *testing.T) {
		history := ring.New[schemas.TestAction](10)
		var d rageClickDetector
		for _, sel := range []string{"#a", "#b", "#a"} {
			history.Push(schemas.Click(sel, sel))
			_, ok := d.Observe(history)
			assert.False(t, ok)
		}
	})

	t.Run("does not fire on other action kinds", func(t *testing.T) {
		history := ring.New[schemas.TestAction](10)
		var d rageClickDetector
		history.Push(schemas.Click("#a", "a"))
		history.Push(schemas.Type("#a", "x", "a"))
		history.Push(schemas.Click("#a", "a"))
		_, ok := d.Observe(history)
		assert.False(t, ok)
	})
}

func TestFailureEscalationBoundary(t *testing.T) {
	t.Run("fifth consecutive failure triggers", func(t *testing.T) {
		f := failureEscalation{threshold: 5}
		for i := 1; i <= 4; i++ {
			assert.False(t, f.Record(false), "failure %d", i)
		}
		assert.True(t, f.Record(false))
		assert.Zero(t, f.consecutive, "counter resets after firing")
	})

	t.Run("success before the threshold resets", func(t *testing.T) {
		f := failureEscalation{threshold: 5}
		for i := 0; i < 4; i++ {
			require.False(t, f.Record(false))
		}
		assert.False(t, f.Record(true))
		assert.False(t, f.Record(false))
		assert.Equal(t, 1, f.consecutive)
	})

	t.Run("zero threshold never fires", func(t *testing.T) {
		f := failureEscalation{}
		for i := 0; i < 20; i++ {
			assert.False(t, f.Record(false))
		}
	})
}

func TestNextPriorityRoute(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	routes := []string{"/polls", "/settings", "/about"}

	route, ok := nextPriorityRoute(routes, map[string]bool{"/polls": true}, rng)
	require.True(t, ok)
	assert.Equal(t, "/settings", route)

	all := map[string]bool{"/polls": true, "/settings": true, "/about": true}
	for i := 0; i < 10; i++ {
		route, ok = nextPriorityRoute(routes, all, rng)
		require.True(t, ok)
		assert.Contains(t, routes, route)
	}

	_, ok = nextPriorityRoute(nil, all, rng)
	assert.False(t, ok)
}

func TestPickRandom(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	_, ok := pickRandom([]int(nil), rng)
	assert.False(t, ok)

	v, ok := pickRandom([]string{"only"}, rng)
	assert.True(t, ok)
	assert.Equal(t, "only", v)
}

func TestSnapshotTimer(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := snapshotTimer{interval: time.Minute, last: start}

	assert.False(t, s.Due(start.Add(30*time.Second)))
	assert.True(t, s.Due(start.Add(time.Minute)))
	assert.False(t, s.Due(start.Add(90*time.Second)), "interval restarts when it fires")
	assert.True(t, s.Due(start.Add(2*time.Minute)))

	disabled := snapshotTimer{}
	assert.False(t, disabled.Due(start.Add(time.Hour)))
}
