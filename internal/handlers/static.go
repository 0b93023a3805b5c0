package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	"github.com/locus-lens/locus/internal/catalog"
)

// HandleImages serves catalog images from the image directory
func (h *Handler) HandleImages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := strings.TrimPrefix(r.URL.Path, "/images/")

	// Prevent directory traversal attacks
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		http.Error(w, "Invalid file path", http.StatusBadRequest)
		return
	}
	if !catalog.IsImageFile(name) {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, filepath.Join(h.imageDir, name))
}

// HandleRoot reports the service status
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.writeJSON(w, map[string]string{"status": "online", "service": "Locus"})
}
