// Package suggest answers autocomplete lookups over static suggestion lists
// (place names, calendar days).
package suggest

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ujung/wetter/internal/dwd"
)

// Entry is one suggestion. Data is passed through to the client untouched.
type Entry struct {
	Value string          `json:"value"`
	Data  json.RawMessage `json:"data"`
}

// Result is the autocomplete response body.
type Result struct {
	Query       string  `json:"query"`
	Suggestions []Entry `json:"suggestions"`
}

// List is an immutable suggestion list.
type List struct {
	entries []Entry
	folded  []string
}

// Load reads a JSON array of {"value", "data"} objects. Read and decode
// failures are reported as *dwd.ConfigError.
func Load(path string) (*List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &dwd.ConfigError{Path: path, Err: err}
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &dwd.ConfigError{Path: path, Err: fmt.Errorf("decode suggestions: %w", err)}
	}
	return New(entries), nil
}

func New(entries []Entry) *List {
	l := &List{
		entries: append([]Entry(nil), entries...),
		folded:  make([]string, len(entries)),
	}
	for i, e := range entries {
		l.folded[i] = strings.ToLower(e.Value)
	}
	return l
}

// Len returns the number of entries.
func (l *List) Len() int {
	return len(l.entries)
}

// Query returns the entries whose value contains q, ignoring case, in list
// order. An empty query matches everything.
func (l *List) Query(q string) Result {
	q = strings.ToLower(q)
	res := Result{Query: "Unit", Suggestions: []Entry{}}
	for i, f := range l.folded {
		if strings.Contains(f, q) {
			res.Suggestions = append(res.Suggestions, l.entries[i])
		}
	}
	return res
}
