package catalog

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/locus-lens/locus/internal/index"
	"github.com/locus-lens/locus/internal/inference"
	"github.com/locus-lens/locus/internal/isolation"
)

const testDim = 4

func TestNameAndStore(t *testing.T) {
	tests := []struct {
		filename string
		name     string
		store    string
	}{
		{"zara_red_dress.jpg", "zara red dress", "Zara"},
		{"BERSHKA_mom_jeans.jpeg", "BERSHKA mom jeans", "Bershka"},
		{"virgin.png", "virgin", "Virgin"},
		{"h_m_tote.tar.png", "h m tote", "H"},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			if got := NameFromFilename(tt.filename); got != tt.name {
				t.Errorf("NameFromFilename: got %q, want %q", got, tt.name)
			}
			if got := StoreFromFilename(tt.filename); got != tt.store {
				t.Errorf("StoreFromFilename: got %q, want %q", got, tt.store)
			}
		})
	}
}

func TestLoadDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mall.yaml")
	yaml := `
ABC Achrafieh:
  Zara:
    level: L2
  Bershka:
    level: L3
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	d, err := LoadDirectory(path)
	if err != nil {
		t.Fatalf("LoadDirectory failed: %v", err)
	}
	if got := d.Level("ABC Achrafieh", "Zara", "L1"); got != "L2" {
		t.Errorf("Zara level: got %s", got)
	}
	if got := d.Level("ABC Achrafieh", "Nike", "L1"); got != "L1" {
		t.Errorf("unknown store should use the fallback, got %s", got)
	}
	if got := d.Level("Other Mall", "Zara", "L1"); got != "L1" {
		t.Errorf("unknown mall should use the fallback, got %s", got)
	}

	missing, err := LoadDirectory(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil || len(missing) != 0 {
		t.Errorf("missing file should give an empty directory, got %v, %v", missing, err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b_bag.jpg", "a_dress.png", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub.jpg"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	t.Run("directory", func(t *testing.T) {
		entries, err := LoadManifest("", dir)
		if err != nil {
			t.Fatalf("LoadManifest failed: %v", err)
		}
		if len(entries) != 2 || entries[0].Filename != "a_dress.png" || entries[1].Filename != "b_bag.jpg" {
			t.Errorf("unexpected entries %+v", entries)
		}
	})

	t.Run("jsonl", func(t *testing.T) {
		path := filepath.Join(dir, "manifest.jsonl")
		content := `{"filename":"a_dress.png","store":"Acme","level":"L4"}

{"filename":"b_bag.jpg"}
`
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		entries, err := LoadManifest(path, dir)
		if err != nil {
			t.Fatalf("LoadManifest failed: %v", err)
		}
		if len(entries) != 2 || entries[0].Store != "Acme" || entries[0].Level != "L4" {
			t.Errorf("unexpected entries %+v", entries)
		}
	})

	t.Run("jsonl missing filename", func(t *testing.T) {
		path := filepath.Join(dir, "bad.jsonl")
		if err := os.WriteFile(path, []byte(`{"name":"x"}`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := LoadManifest(path, dir); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("parquet", func(t *testing.T) {
		path := filepath.Join(dir, "manifest.parquet")
		rows := []Entry{
			{Filename: "a_dress.png", Mall: "Central"},
			{Filename: "b_bag.jpg", CategoryTag: "bag"},
		}
		if err := parquet.WriteFile(path, rows); err != nil {
			t.Fatalf("write parquet: %v", err)
		}
		entries, err := LoadManifest(path, dir)
		if err != nil {
			t.Fatalf("LoadManifest failed: %v", err)
		}
		if len(entries) != 2 || entries[0].Mall != "Central" || entries[1].CategoryTag != "bag" {
			t.Errorf("unexpected entries %+v", entries)
		}
	})

	t.Run("unsupported", func(t *testing.T) {
		if _, err := LoadManifest("manifest.csv", dir); err == nil {
			t.Error("expected error")
		}
	})
}

// stubIsolator returns a fixed unit vector for every input except "empty".
type stubIsolator struct {
	category *string
	err      error
}

func (s stubIsolator) Process(_ context.Context, data []byte) (isolation.Result, error) {
	if s.err != nil {
		return isolation.Result{}, s.err
	}
	if string(data) == "empty" {
		return isolation.Result{}, nil
	}
	debug := base64.StdEncoding.EncodeToString([]byte("png"))
	return isolation.Result{Vector: []float32{0, 1, 0, 0}, Category: s.category, DebugImage: &debug}, nil
}

func writeImages(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir
}

func TestIngestor_Run(t *testing.T) {
	dir := writeImages(t, map[string]string{
		"zara_red_dress.jpg": "img",
		"mango_blank.jpg":    "empty",
	})
	idx := index.NewMemory(testDim)
	dress := "dress"
	in := NewIngestor(stubIsolator{category: &dress}, idx, Options{
		ImageDir:  dir,
		Mall:      "ABC Achrafieh",
		Directory: Directory{"ABC Achrafieh": {"Zara": {Level: "L2"}}},
	})

	entries := []Entry{{Filename: "zara_red_dress.jpg"}, {Filename: "mango_blank.jpg"}, {Filename: "missing.jpg"}}
	summary, err := in.Run(context.Background(), entries)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary != (Summary{Added: 1, Failed: 2}) {
		t.Errorf("unexpected summary %+v", summary)
	}

	hits, err := idx.Search(context.Background(), []float32{0, 1, 0, 0}, nil, 5)
	if err != nil || len(hits) != 1 {
		t.Fatalf("expected one stored record, got %v, %v", hits, err)
	}
	r := hits[0].Record
	if r.Name != "zara red dress" || r.Store != "Zara" || r.Level != "L2" || r.Mall != "ABC Achrafieh" {
		t.Errorf("unexpected metadata %+v", r)
	}
	if r.CategoryTag == nil || *r.CategoryTag != "dress" {
		t.Errorf("category tag: got %v", r.CategoryTag)
	}
	if r.ID == "" {
		t.Error("record should have an id")
	}

	again, err := in.Run(context.Background(), entries[:1])
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if again != (Summary{Skipped: 1}) {
		t.Errorf("already indexed files should be skipped, got %+v", again)
	}
}

func TestIngestor_CollaboratorFailureAborts(t *testing.T) {
	dir := writeImages(t, map[string]string{"a.jpg": "img", "b.jpg": "img"})
	in := NewIngestor(stubIsolator{err: inference.ErrUnavailable}, index.NewMemory(testDim), Options{ImageDir: dir})

	summary, err := in.Run(context.Background(), []Entry{{Filename: "a.jpg"}, {Filename: "b.jpg"}})
	if !errors.Is(err, inference.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if summary.Added != 0 || summary.Failed != 0 {
		t.Errorf("run should stop at the first collaborator failure, got %+v", summary)
	}
}

func TestIngestor_CategorizerFallback(t *testing.T) {
	idx := index.NewMemory(testDim)
	var seen []byte
	categorizer := func(_ context.Context, png []byte) (*string, error) {
		seen = png
		label := "bag"
		return &label, nil
	}
	in := NewIngestor(stubIsolator{}, idx, Options{Categorizer: categorizer})

	resp, err := in.Add(context.Background(), []byte("img"), Metadata{Name: "tote", Filename: "tote.jpg"})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if resp.CategoryTag == nil || *resp.CategoryTag != "bag" {
		t.Errorf("expected provider category, got %v", resp.CategoryTag)
	}
	if string(seen) != "png" {
		t.Errorf("categorizer should receive the decoded debug image, got %q", seen)
	}

	failing := NewIngestor(stubIsolator{}, idx, Options{Categorizer: func(context.Context, []byte) (*string, error) {
		return nil, errors.New("quota")
	}})
	resp, err = failing.Add(context.Background(), []byte("img"), Metadata{Filename: "x.jpg"})
	if err != nil {
		t.Fatalf("provider failures must not fail ingestion: %v", err)
	}
	if resp.CategoryTag != nil {
		t.Errorf("expected no category, got %v", *resp.CategoryTag)
	}
}

func TestIngestor_AddNoItem(t *testing.T) {
	in := NewIngestor(stubIsolator{}, index.NewMemory(testDim), Options{})
	if _, err := in.Add(context.Background(), []byte("empty"), Metadata{Filename: "e.jpg"}); !errors.Is(err, ErrNoItem) {
		t.Errorf("expected ErrNoItem, got %v", err)
	}
}
