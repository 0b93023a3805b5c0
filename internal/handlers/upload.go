package handlers

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/locus-lens/locus/internal/catalog"
)

// HandleAdd ingests one catalog image. Form fields name, store, level and mall
// are optional and derived from the filename when absent.
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodPost) {
		return
	}

	data, filename, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}
	if filename == "" || filename == "." || !catalog.IsImageFile(filename) {
		h.writeError(w, "A filename with an image extension is required", http.StatusBadRequest)
		return
	}

	meta := h.ingestor.Metadata(catalog.Entry{
		Filename: filename,
		Name:     r.FormValue("name"),
		Store:    r.FormValue("store"),
		Level:    r.FormValue("level"),
		Mall:     r.FormValue("mall"),
	})

	resp, err := h.ingestor.Add(r.Context(), data, meta)
	if err != nil {
		h.writeError(w, "Failed to add item: "+err.Error(), statusFor(err))
		return
	}

	if err := h.saveCatalogImage(filename, data); err != nil {
		slog.Warn("Item indexed but image not saved", "filename", filename, "err", err)
	}

	h.writeJSON(w, resp)
}

// saveCatalogImage keeps a copy of an added image so /images/ can serve it.
// Existing files are left alone.
func (h *Handler) saveCatalogImage(filename string, data []byte) error {
	if h.imageDir == "" {
		return nil
	}
	if err := os.MkdirAll(h.imageDir, 0755); err != nil {
		return fmt.Errorf("failed to create image directory: %w", err)
	}

	path := filepath.Join(h.imageDir, filename)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to save image: %w", err)
	}
	slog.Info("Image saved", "filename", filename)
	return nil
}
