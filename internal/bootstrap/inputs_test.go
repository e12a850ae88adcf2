package bootstrap

import (
	"os"
	"path/filepath"
	"testing"

	"minutes/internal/services"
)

func TestLoadTranscript(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
		return path
	}

	text, err := LoadTranscript(write("notes.txt", "  hello team \n"))
	if err != nil || text != "hello team" {
		t.Fatalf("unexpected text %q, %v", text, err)
	}
	raw := `{"transcript":"hi"}`
	text, err = LoadTranscript(write("notes.json", raw))
	if err != nil || text != raw {
		t.Fatalf("expected JSON passed through verbatim, got %q, %v", text, err)
	}

	cases := []struct {
		name string
		path string
		kind services.Kind
	}{
		{"wrong extension", write("notes.docx", "x"), services.KindResourceInvalid},
		{"empty", write("empty.txt", " \n"), services.KindResourceInvalid},
		{"missing", filepath.Join(dir, "missing.txt"), services.KindResourceNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadTranscript(tc.path); !services.Is(err, tc.kind) {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
		})
	}
}
