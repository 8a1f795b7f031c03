// File: internal/memory/memory_test.go
package memory

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/explorer-cli/api/schemas"
)

func button(selector, text string) schemas.InteractiveElement {
	return schemas.InteractiveElement{Selector: selector, Tag: "button", Text: text, Role: schemas.RoleButton, Visible: true}
}

func setupStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "navigation-memory.json")
	return New(path, zaptest.NewLogger(t)), path
}

func TestNoveltyForCount(t *testing.T) {
	tests := []struct {
		clicks int
		want   float64
	}{
		{0, 1.0},
		{1, 0.8},
		{2, 0.6},
		{3, 0.4},
		{4, 0.2},
		{5, 0.1},
		{6, 0.1},
		{100, 0.1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, NoveltyForCount(tt.clicks), 1e-9, "clicks=%d", tt.clicks)
	}
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "/poll/abc", NormalizePath("https://app.example.com/poll/abc?tab=results#top"))
	assert.Equal(t, "/poll/abc", NormalizePath("/poll/abc/"))
	assert.Equal(t, "/", NormalizePath("https://app.example.com"))
	assert.Equal(t, "/", NormalizePath(""))
}

func TestHash(t *testing.T) {
	a := Hash("button#send", "/poll/abc")
	assert.Equal(t, a, Hash("button#send", "/poll/abc"))
	assert.Len(t, a, 16)
	assert.NotEqual(t, a, Hash("button#cancel", "/poll/abc"))
	// Host and query do not take part in the identity.
	assert.Equal(t, a, Hash("button#send", "http://localhost:3000/poll/abc?x=1"))
	assert.NotEqual(t, a, Hash("button#send", "/poll/xyz"))
}

func TestRecordInteractionAndNovelty(t *testing.T) {
	s, _ := setupStore(t)
	el := button("button#send", "Send")

	assert.Equal(t, 1.0, s.NoveltyScore(el.Selector, "/poll/abc"))

	require.NoError(t, s.RecordInteraction(el, "/poll/abc", true))
	assert.InDelta(t, 0.8, s.NoveltyScore(el.Selector, "/poll/abc"), 1e-9)

	require.NoError(t, s.RecordInteraction(el, "/poll/abc", false))
	require.NoError(t, s.RecordInteraction(el, "/poll/abc", true))
	assert.InDelta(t, 0.4, s.NoveltyScore(el.Selector, "/poll/abc"), 1e-9)

	rec, ok := s.Lookup(el.Selector, "https://host/poll/abc")
	require.True(t, ok)
	assert.Equal(t, 3, rec.ClickCount)
	assert.True(t, rec.LastSucceeded)
	assert.Equal(t, "/poll/abc", rec.PagePath)
	assert.Equal(t, "Send", rec.Text)
	assert.False(t, rec.FirstSeen.After(rec.LastInteraction))

	// Same selector on a different page is a different element.
	assert.Equal(t, 1.0, s.NoveltyScore(el.Selector, "/poll/other"))
}

func TestRankByNoveltyIsStable(t *testing.T) {
	s, _ := setupStore(t)
	a, b, c, d := button("#a", "A"), button("#b", "B"), button("#c", "C"), button("#d", "D")

	require.NoError(t, s.RecordInteraction(a, "/", true))
	require.NoError(t, s.RecordInteraction(a, "/", true))
	require.NoError(t, s.RecordInteraction(c, "/", true))

	ranked := s.RankByNovelty([]schemas.InteractiveElement{a, b, c, d}, "/")
	var order []string
	for _, el := range ranked {
		order = append(order, el.Selector)
	}
	assert.Equal(t, []string{"#b", "#d", "#c", "#a"}, order)
}

func TestPageVisits(t *testing.T) {
	s, _ := setupStore(t)
	require.NoError(t, s.RecordPageVisit("https://app/polls?page=2"))
	require.NoError(t, s.RecordPageVisit("/polls"))
	assert.Equal(t, 2, s.VisitCount("/polls/"))
	assert.Equal(t, 0, s.VisitCount("/settings"))
}

func TestPersistenceRoundTrip(t *testing.T) {
	s, path := setupStore(t)
	require.NoError(t, s.RecordInteraction(button("#a", "A"), "/polls", true))
	require.NoError(t, s.RecordInteraction(button("#a", "A"), "/polls", true))
	require.NoError(t, s.RecordInteraction(button("#b", "B"), "/forms", false))
	require.NoError(t, s.RecordPageVisit("/polls"))

	reloaded := New(path, zaptest.NewLogger(t))

	for _, probe := range []struct{ sel, page string }{{"#a", "/polls"}, {"#b", "/forms"}, {"#c", "/polls"}} {
		assert.Equal(t, s.NoveltyScore(probe.sel, probe.page), reloaded.NoveltyScore(probe.sel, probe.page))
	}
	if diff := cmp.Diff(s.MostClicked(-1), reloaded.MostClicked(-1)); diff != "" {
		t.Errorf("reloaded store mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, reloaded.VisitCount("/polls"))
}

func TestPersistedSchema(t *testing.T) {
	s, path := setupStore(t)
	require.NoError(t, s.RecordInteraction(button("button#send", "Send"), "/poll/abc", true))
	require.NoError(t, s.RecordPageVisit("/poll/abc"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Contains(t, doc, "savedAt")

	elements, ok := doc["elements"].([]interface{})
	require.True(t, ok)
	require.Len(t, elements, 1)
	pair, ok := elements[0].([]interface{})
	require.True(t, ok)
	require.Len(t, pair, 2)
	assert.Equal(t, Hash("button#send", "/poll/abc"), pair[0])
	record, ok := pair[1].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "button#send", record["selector"])
	assert.EqualValues(t, 1, record["clickCount"])

	visits, ok := doc["pageVisits"].([]interface{})
	require.True(t, ok)
	assert.Equal(t, []interface{}{"/poll/abc", float64(1)}, visits[0])
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	s := New(path, zaptest.NewLogger(t))
	assert.Equal(t, 0, s.Stats().Elements)

	// A mutation still succeeds and repairs the file.
	require.NoError(t, s.RecordInteraction(button("#a", "A"), "/", true))
	reloaded := New(path, zaptest.NewLogger(t))
	assert.Equal(t, 1, reloaded.Stats().Elements)
}

func TestMissingFileStartsEmpty(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "nested", "memory.json"), zaptest.NewLogger(t))
	assert.Equal(t, Stats{}, s.Stats())
	require.NoError(t, s.RecordPageVisit("/"))
	assert.FileExists(t, s.Path())
}

func TestReloadMergeAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.json")
	first := New(path, zaptest.NewLogger(t))
	second := New(path, zaptest.NewLogger(t))

	require.NoError(t, first.RecordInteraction(button("#a", "A"), "/", true))
	require.NoError(t, second.RecordInteraction(button("#a", "A"), "/", true))
	require.NoError(t, second.RecordInteraction(button("#b", "B"), "/", true))

	// The second instance reloaded before mutating, so it saw the first click.
	assert.InDelta(t, 0.6, second.NoveltyScore("#a", "/"), 1e-9)

	first.Reload()
	assert.InDelta(t, 0.6, first.NoveltyScore("#a", "/"), 1e-9)
	assert.InDelta(t, 0.8, first.NoveltyScore("#b", "/"), 1e-9)
}

func TestConcurrentWritersKeepFileReadable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shared.json")
	stores := []*Store{New(path, zaptest.NewLogger(t)), New(path, zaptest.NewLogger(t)), New(path, zaptest.NewLogger(t))}

	var wg sync.WaitGroup
	for i, s := range stores {
		wg.Add(1)
		go func(i int, s *Store) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				_ = s.RecordInteraction(button("#shared", "Shared"), "/", true)
				_ = s.RecordPageVisit("/")
			}
		}(i, s)
	}
	wg.Wait()

	snap, err := readSnapshot(path)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Len(t, snap.Elements, 1)
	// Lost updates are allowed, but never more clicks than were made.
	assert.GreaterOrEqual(t, snap.Elements[0].Record.ClickCount, 1)
	assert.LessOrEqual(t, snap.Elements[0].Record.ClickCount, 30)
}

func TestClear(t *testing.T) {
	s, path := setupStore(t)
	require.NoError(t, s.RecordInteraction(button("#a", "A"), "/", true))
	require.FileExists(t, path)

	require.NoError(t, s.Clear())
	assert.NoFileExists(t, path)
	assert.Equal(t, 1.0, s.NoveltyScore("#a", "/"))
	assert.NoError(t, s.Clear(), "clearing twice is fine")
}

func TestStatsAndMostClicked(t *testing.T) {
	s, _ := setupStore(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, s.RecordInteraction(button("#a", "A"), "/", true))
	}
	require.NoError(t, s.RecordInteraction(button("#b", "B"), "/x", true))
	require.NoError(t, s.RecordPageVisit("/"))
	require.NoError(t, s.RecordPageVisit("/x"))
	require.NoError(t, s.RecordPageVisit("/x"))

	st := s.Stats()
	assert.Equal(t, 2, st.Elements)
	assert.Equal(t, 2, st.Pages)
	assert.Equal(t, 4, st.TotalClicks)
	assert.Equal(t, 3, st.PageVisits)
	assert.False(t, st.SavedAt.IsZero())

	top := s.MostClicked(1)
	require.Len(t, top, 1)
	assert.Equal(t, "#a", top[0].Selector)
}

func TestInMemoryOnly(t *testing.T) {
	s := New("", nil)
	require.NoError(t, s.RecordInteraction(button("#a", "A"), "/", true))
	assert.InDelta(t, 0.8, s.NoveltyScore("#a", "/"), 1e-9)
	require.NoError(t, s.Save())
}
