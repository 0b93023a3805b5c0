package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"
)

// StoreInfo is where a store sits inside a mall
type StoreInfo struct {
	Level string `yaml:"level"`
}

// Directory maps mall name to store name to location, e.g.
//
//	ABC Achrafieh:
//	  Zara: {level: L2}
//	  Bershka: {level: L1}
type Directory map[string]map[string]StoreInfo

// LoadDirectory reads a YAML mall directory. A missing file gives an empty directory.
func LoadDirectory(path string) (Directory, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Mall directory not found, every store gets the default level", "path", path)
		return Directory{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read mall directory: %w", err)
	}

	var d Directory
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse mall directory: %w", err)
	}
	if d == nil {
		d = Directory{}
	}
	return d, nil
}

// Level returns the level of store in mall, or fallback when unknown
func (d Directory) Level(mall, store, fallback string) string {
	if info, ok := d[mall][store]; ok && info.Level != "" {
		return info.Level
	}
	return fallback
}

// NameFromFilename turns "zara_red_dress.jpg" into "zara red dress"
func NameFromFilename(filename string) string {
	base := filename
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	return strings.ReplaceAll(base, "_", " ")
}

// StoreFromFilename turns "zara_red_dress.jpg" into "Zara"
func StoreFromFilename(filename string) string {
	token := strings.SplitN(filename, "_", 2)[0]
	if i := strings.Index(token, "."); i >= 0 {
		token = token[:i]
	}
	if token == "" {
		return ""
	}
	r := []rune(strings.ToLower(token))
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
