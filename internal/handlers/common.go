// Package handlers exposes the detection, isolation, search and ingestion
// pipeline over HTTP and websocket.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"

	"github.com/gorilla/websocket"

	"github.com/locus-lens/locus/internal/catalog"
	"github.com/locus-lens/locus/internal/index"
	"github.com/locus-lens/locus/internal/inference"
	"github.com/locus-lens/locus/internal/isolation"
	"github.com/locus-lens/locus/internal/models"
	"github.com/locus-lens/locus/internal/storage"
)

// DefaultMaxUploadSize bounds uploaded images
const DefaultMaxUploadSize = 20 << 20

// Detector finds item regions. Implemented by fusion.Engine.
type Detector interface {
	DetectObjects(ctx context.Context, data []byte) models.DetectResponse
}

// Isolator embeds the item in an image. Implemented by isolation.Pipeline.
type Isolator interface {
	Process(ctx context.Context, data []byte) (isolation.Result, error)
}

// Searcher finds similar catalog items. Implemented by search.Service.
type Searcher interface {
	SearchImage(ctx context.Context, data []byte, crop *models.Box) (models.SearchResponse, error)
}

// Ingestor adds catalog items. Implemented by catalog.Ingestor.
type Ingestor interface {
	Add(ctx context.Context, data []byte, meta catalog.Metadata) (models.AddResponse, error)
	Metadata(e catalog.Entry) catalog.Metadata
}

// Deps are the collaborators of a Handler
type Deps struct {
	Detector Detector
	Isolator Isolator
	Searcher Searcher
	Ingestor Ingestor
	Cache    storage.DetectionStore // optional
	ImageDir string
	// MaxUploadSize defaults to DefaultMaxUploadSize
	MaxUploadSize int64
}

type Handler struct {
	detector  Detector
	isolator  Isolator
	searcher  Searcher
	ingestor  Ingestor
	cache     storage.DetectionStore
	imageDir  string
	maxUpload int64
	upgrader  websocket.Upgrader
}

func New(d Deps) *Handler {
	if d.Cache == nil {
		d.Cache = storage.NopStore{}
	}
	if d.MaxUploadSize <= 0 {
		d.MaxUploadSize = DefaultMaxUploadSize
	}
	return &Handler{
		detector:  d.Detector,
		isolator:  d.Isolator,
		searcher:  d.Searcher,
		ingestor:  d.Ingestor,
		cache:     d.Cache,
		imageDir:  d.ImageDir,
		maxUpload: d.MaxUploadSize,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1 << 16,
			WriteBufferSize: 1 << 16,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Routes registers every endpoint on mux
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/detect", h.HandleDetect)
	mux.HandleFunc("/api/vectorize", h.HandleVectorize)
	mux.HandleFunc("/api/search", h.HandleSearch)
	mux.HandleFunc("/api/add", h.HandleAdd)
	mux.HandleFunc("/api/rank", h.HandleRank)
	mux.HandleFunc("/ws/detect", h.HandleDetectStream)
	mux.HandleFunc("/images/", h.HandleImages)
	mux.HandleFunc("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			slog.Error("Unable to write healthcheck", "err", err)
		}
	})
	mux.HandleFunc("/", h.HandleRoot)
}

// Response helpers
func (h *Handler) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Unable to encode JSON response", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, message string, code int) {
	slog.Error(message, "status", code)
	http.Error(w, message, code)
}

// statusFor maps pipeline errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, inference.ErrUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, index.ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, catalog.ErrNoItem):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// readUpload returns the multipart "file" field and its base filename
func (h *Handler) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		return nil, "", fmt.Errorf("failed to parse form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, "", fmt.Errorf("failed to read file contents: %w", err)
	}
	return data, filepath.Base(header.Filename), nil
}

func (h *Handler) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		h.writeError(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}
