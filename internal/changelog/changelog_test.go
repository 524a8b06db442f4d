package changelog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddGroupsByDateNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "CHANGELOG.md")
	c := New(nil, path)

	_, err := c.Add(Entry{Date: "2025-01-02", Title: "Older", Description: "first"})
	require.NoError(t, err)
	_, err = c.Add(Entry{Date: "2025-03-10", Title: "Newer", Description: "second"})
	require.NoError(t, err)
	_, err = c.Add(Entry{Date: "2025-01-02", Title: "Same day", Description: "line one\nline two"})
	require.NoError(t, err)

	entries, err := c.Entries()
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{Date: "2025-03-10", Title: "Newer", Description: "second"},
		{Date: "2025-01-02", Title: "Same day", Description: "line one\nline two"},
		{Date: "2025-01-02", Title: "Older", Description: "first"},
	}, entries)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(data)
	assert.Contains(t, doc, "# Changelog\n")
	assert.Contains(t, doc, "[Keep a Changelog]")
	assert.Less(t, strings.Index(doc, "## 2025-03-10"), strings.Index(doc, "## 2025-01-02"))
}

func TestAddDefaultsDateAndRequiresTitle(t *testing.T) {
	c := New(nil, filepath.Join(t.TempDir(), "CHANGELOG.md"))
	c.now = func() time.Time { return time.Date(2025, 7, 4, 15, 0, 0, 0, time.UTC) }

	e, err := c.Add(Entry{Title: "  Settings updated  "})
	require.NoError(t, err)
	assert.Equal(t, "2025-07-04", e.Date)
	assert.Equal(t, "Settings updated", e.Title)

	_, err = c.Add(Entry{Title: "   "})
	assert.ErrorIs(t, err, ErrEmptyTitle)
}

func TestEntriesMissingFile(t *testing.T) {
	entries, err := New(nil, filepath.Join(t.TempDir(), "none.md")).Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseIgnoresStrayText(t *testing.T) {
	md := "# Changelog\n\nintro text\n\n### orphan title\n\n## 2025-02-01\n\n### Real\n\nbody\n"
	assert.Equal(t, []Entry{{Date: "2025-02-01", Title: "Real", Description: "body"}}, Parse(md))
}

func TestRenderUnparseableDatesLast(t *testing.T) {
	doc := Render([]Entry{{Date: "someday", Title: "A"}, {Date: "2024-12-31", Title: "B"}})
	assert.Less(t, strings.Index(doc, "## 2024-12-31"), strings.Index(doc, "## someday"))
}
