package suggest

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ujung/wetter/internal/dwd"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "suggestions.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestQuery(t *testing.T) {
	path := writeFile(t, `[
		{"value": "80331 München", "data": {"lat": 48.137, "lon": 11.575}},
		{"value": "10115 Berlin", "data": {"lat": 52.532, "lon": 13.384}},
		{"value": "81541 München Au", "data": {"lat": 48.123, "lon": 11.589}}
	]`)

	list, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	tests := []struct {
		query string
		want  []string
	}{
		{"münchen", []string{"80331 München", "81541 München Au"}},
		{"BERLIN", []string{"10115 Berlin"}},
		{"801", nil},
		{"", []string{"80331 München", "10115 Berlin", "81541 München Au"}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res := list.Query(tt.query)
			if res.Query != "Unit" {
				t.Errorf("Query = %q, want Unit", res.Query)
			}
			if len(res.Suggestions) != len(tt.want) {
				t.Fatalf("got %d suggestions, want %d", len(res.Suggestions), len(tt.want))
			}
			for i, s := range res.Suggestions {
				if s.Value != tt.want[i] {
					t.Errorf("suggestion %d = %q, want %q", i, s.Value, tt.want[i])
				}
			}
		})
	}
}

func TestQuery_EncodesEmptyList(t *testing.T) {
	list := New(nil)
	b, err := json.Marshal(list.Query("x"))
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if got, want := string(b), `{"query":"Unit","suggestions":[]}`; got != want {
		t.Errorf("json = %s, want %s", got, want)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing", func(t *testing.T) string { return filepath.Join(t.TempDir(), "none.json") }},
		{"malformed", func(t *testing.T) string { return writeFile(t, `{"value":`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.path(t))
			var cfgErr *dwd.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want *dwd.ConfigError", err)
			}
		})
	}
}
