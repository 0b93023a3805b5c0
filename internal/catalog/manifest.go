package catalog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
)

// Entry is one catalog image to ingest. Empty fields are derived from the
// filename and the mall directory.
type Entry struct {
	Filename    string `json:"filename" parquet:"filename"`
	Name        string `json:"name,omitempty" parquet:"name"`
	Store       string `json:"store,omitempty" parquet:"store"`
	Level       string `json:"level,omitempty" parquet:"level"`
	Mall        string `json:"mall,omitempty" parquet:"mall"`
	CategoryTag string `json:"category_tag,omitempty" parquet:"category_tag"`
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// IsImageFile reports whether name has a supported image extension
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// LoadManifest loads entries from a JSONL or Parquet manifest. An empty path
// scans imageDir instead.
func LoadManifest(path, imageDir string) ([]Entry, error) {
	if path == "" {
		return ScanDir(imageDir)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".parquet":
		return loadParquet(path)
	case ".jsonl", ".json":
		return loadJSONL(path)
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s (supported: .parquet, .jsonl)", ext)
	}
}

// ScanDir lists the images in dir, sorted by name
func ScanDir(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read image directory: %w", err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !IsImageFile(f.Name()) {
			continue
		}
		entries = append(entries, Entry{Filename: f.Name()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Filename < entries[j].Filename })

	slog.Debug("Scanned image directory", "dir", dir, "images", len(entries))
	return entries, nil
}

func loadJSONL(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			return nil, fmt.Errorf("failed to parse JSON at line %d: %w", lineNum, err)
		}
		if e.Filename == "" {
			return nil, fmt.Errorf("line %d: missing filename", lineNum)
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading manifest: %w", err)
	}

	slog.Debug("Finished reading JSONL manifest", "entries", len(entries), "lines", lineNum)
	return entries, nil
}

func loadParquet(path string) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open parquet: %w", err)
	}

	reader := parquet.NewGenericReader[Entry](pf)
	defer reader.Close()

	var entries []Entry
	rows := make([]Entry, 128)
	for {
		n, err := reader.Read(rows)
		for _, e := range rows[:n] {
			if e.Filename != "" {
				entries = append(entries, e)
			}
		}
		if err != nil {
			break
		}
	}

	slog.Debug("Finished reading Parquet manifest", "entries", len(entries), "rows", pf.NumRows())
	return entries, nil
}
