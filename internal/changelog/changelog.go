// Package changelog maintains CHANGELOG.md in the Keep a Changelog layout:
// one "## <date>" section per day, newest first, each holding "### <title>"
// entries followed by their description.
package changelog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"go.uber.org/zap"
)

// DateLayout is the section date format.
const DateLayout = "2006-01-02"

const header = `# Changelog

All notable changes to this streaming setup will be documented in this file.

The format is based on [Keep a Changelog](https://keepachangelog.com/en/1.0.0/),
and this project adheres to [Semantic Versioning](https://semver.org/spec/v2.0.0.html).

`

// ErrEmptyTitle is returned by Add for an entry without a title.
var ErrEmptyTitle = errors.New("changelog entry title is required")

// Entry is one changelog item.
type Entry struct {
	Date        string `json:"date"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Changelog reads and rewrites a markdown changelog file.
type Changelog struct {
	log  *zap.Logger
	path string
	now  func() time.Time

	mu sync.Mutex // serializes read-modify-write
}

// New returns a changelog stored at path.
func New(log *zap.Logger, path string) *Changelog {
	if log == nil {
		log = zap.NewNop()
	}
	return &Changelog{log: log.Named("changelog"), path: path, now: time.Now}
}

// Entries returns all entries, newest date first. A missing file has none.
func (c *Changelog) Entries() ([]Entry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

func (c *Changelog) read() ([]Entry, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Entry{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read changelog: %w", err)
	}
	return Parse(string(data)), nil
}

// Add prepends e (dated today when Date is empty) and rewrites the file.
func (c *Changelog) Add(e Entry) (Entry, error) {
	e.Title = strings.TrimSpace(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	e.Date = strings.TrimSpace(e.Date)
	if e.Title == "" {
		return Entry{}, ErrEmptyTitle
	}
	if e.Date == "" {
		e.Date = c.now().Format(DateLayout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entries, err := c.read()
	if err != nil {
		return Entry{}, err
	}
	entries = append([]Entry{e}, entries...)

	if err := renameio.WriteFile(c.path, []byte(Render(entries)), 0o644); err != nil {
		return Entry{}, fmt.Errorf("write changelog: %w", err)
	}

	c.log.Info("changelog entry added", zap.String("date", e.Date), zap.String("title", e.Title))
	return e, nil
}

// Record adds an entry and logs instead of returning a failure. Used for
// automatic entries that must not fail the operation that triggered them.
func (c *Changelog) Record(title, description string) {
	if _, err := c.Add(Entry{Title: title, Description: description}); err != nil {
		c.log.Warn("failed to record changelog entry", zap.String("title", title), zap.Error(err))
	}
}

// Render produces the markdown document. Entries are grouped by date with the
// newest date first; within a date the given order is kept.
func Render(entries []Entry) string {
	var dates []string
	byDate := make(map[string][]Entry)
	for _, e := range entries {
		if _, ok := byDate[e.Date]; !ok {
			dates = append(dates, e.Date)
		}
		byDate[e.Date] = append(byDate[e.Date], e)
	}
	sort.SliceStable(dates, func(i, j int) bool { return dateAfter(dates[i], dates[j]) })

	var b strings.Builder
	b.WriteString(header)
	for _, d := range dates {
		fmt.Fprintf(&b, "## %s\n\n", d)
		for _, e := range byDate[d] {
			fmt.Fprintf(&b, "### %s\n\n", e.Title)
			if e.Description != "" {
				b.WriteString(e.Description)
				b.WriteString("\n\n")
			}
		}
	}
	return b.String()
}

// dateAfter orders parseable dates newest first, ahead of unparseable ones.
func dateAfter(a, b string) bool {
	ta, errA := time.Parse(DateLayout, a)
	tb, errB := time.Parse(DateLayout, b)
	switch {
	case errA == nil && errB == nil:
		return ta.After(tb)
	case errA == nil:
		return true
	default:
		return false
	}
}

// Parse reads entries back from a document produced by Render. Text outside
// "## " and "### " sections is ignored.
func Parse(md string) []Entry {
	entries := []Entry{}
	var (
		date string
		cur  *Entry
		desc []string
	)
	flush := func() {
		if cur != nil {
			cur.Description = strings.TrimSpace(strings.Join(desc, "\n"))
			entries = append(entries, *cur)
		}
		cur, desc = nil, nil
	}

	for _, line := range strings.Split(md, "\n") {
		switch {
		case strings.HasPrefix(line, "### "):
			flush()
			if date != "" {
				cur = &Entry{Date: date, Title: strings.TrimSpace(line[4:])}
			}
		case strings.HasPrefix(line, "## "):
			flush()
			date = strings.TrimSpace(line[3:])
		case strings.HasPrefix(line, "# "):
			flush()
			date = ""
		default:
			if cur != nil {
				desc = append(desc, line)
			}
		}
	}
	flush()
	return entries
}
