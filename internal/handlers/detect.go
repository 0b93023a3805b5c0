package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/locus-lens/locus/internal/models"
	"github.com/locus-lens/locus/internal/storage"
)

func (h *Handler) HandleDetect(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodPost) {
		return
	}

	data, _, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, h.detect(r.Context(), data))
}

// detect serves from the cache when the same image was seen recently
func (h *Handler) detect(ctx context.Context, data []byte) models.DetectResponse {
	digest := storage.Digest(data)

	cached, ok, err := h.cache.Get(ctx, digest)
	if err != nil {
		slog.Warn("Detection cache read failed", "md5", digest, "err", err)
	}
	if ok {
		slog.Debug("Detection cache hit", "md5", digest)
		return *cached
	}

	resp := h.detector.DetectObjects(ctx, data)
	if resp.Degraded {
		slog.Warn("Detection degraded, not caching", "md5", digest)
		return resp
	}
	if resp.ImageWidth > 0 {
		if err := h.cache.Set(ctx, digest, &resp); err != nil {
			slog.Warn("Detection cache write failed", "md5", digest, "err", err)
		}
	}
	return resp
}

func (h *Handler) HandleVectorize(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodPost) {
		return
	}

	data, _, err := h.readUpload(w, r)
	if err != nil {
		h.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.isolator.Process(r.Context(), data)
	if err != nil {
		h.writeError(w, "Failed to vectorize image: "+err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, models.VectorizeResponse{
		Vector:         result.Vector,
		Category:       result.Category,
		ProcessedImage: result.DebugImage,
	})
}
