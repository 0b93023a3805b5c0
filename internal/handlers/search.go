package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/locus-lens/locus/internal/models"
	"github.com/locus-lens/locus/internal/search"
)

func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodPost) {
		return
	}

	data, _, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	crop, err := parseCrop(r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	resp, err := h.searcher.SearchImage(r.Context(), data, crop)
	if err != nil {
		h.writeError(w, "Search failed: "+err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, resp)
}

// parseCrop reads the optional x1, y1, x2, y2 form fields. Either all four or none must be set.
func parseCrop(r *http.Request) (*models.Box, error) {
	keys := []string{"x1", "y1", "x2", "y2"}
	var box models.Box
	present := 0
	for i, k := range keys {
		v := r.FormValue(k)
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", k, v)
		}
		box[i] = int(f)
		present++
	}

	switch present {
	case 0:
		return nil, nil
	case len(keys):
		return &box, nil
	default:
		return nil, fmt.Errorf("crop needs all of x1, y1, x2, y2")
	}
}

func (h *Handler) HandleRank(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodPost) {
		return
	}

	var request struct {
		QueryVector      []float32   `json:"query_vector"`
		CandidateVectors [][]float32 `json:"candidate_vectors"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxUpload)).Decode(&request); err != nil {
		h.writeError(w, "Invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}

	ranked, err := search.Rank(request.QueryVector, request.CandidateVectors)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, map[string]any{"matches": ranked})
}
