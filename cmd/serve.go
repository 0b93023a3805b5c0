package cmd

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/locus-lens/locus/internal/handlers"
)

func newServeCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the detection and search API",
		Long: `Starts the Locus HTTP API.

Endpoints: /api/detect, /api/vectorize, /api/search, /api/add, /api/rank,
/ws/detect (websocket), /images/{filename} and /healthcheck.

The model server must be reachable at startup: the classifier embeds its
label vocabulary once before the server accepts requests.`,
		Example: `  # Start server on default port 8000
  locus serve

  # Start server on custom port with an in-memory index
  LOCUS_INDEX_BACKEND=memory locus serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := s.cfg
			a, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if created, err := a.index.EnsureCollection(cmd.Context()); err != nil {
				return err
			} else if created {
				slog.Info("Created empty collection, run `locus ingest` to populate it", "collection", cfg.Index.Collection)
			}

			cache, err := newCache(cmd.Context(), cfg.Cache)
			if err != nil {
				return err
			}
			defer cache.Close()

			handler := handlers.New(handlers.Deps{
				Detector:      a.engine,
				Isolator:      a.pipeline,
				Searcher:      a.search,
				Ingestor:      a.ingestor,
				Cache:         cache,
				ImageDir:      cfg.Ingest.ImageDir,
				MaxUploadSize: cfg.Server.MaxUploadSize,
			})

			mux := http.NewServeMux()
			handler.Routes(mux)

			addr := ":" + cfg.Server.Port
			server := &http.Server{
				Addr:         addr,
				Handler:      handlers.LogRequests(mux),
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			// Start server in goroutine
			serverErr := make(chan error, 1)
			go func() {
				slog.Info("Locus API available", "addr", addr, "url", "http://localhost"+addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					serverErr <- err
				}
			}()

			// Wait for context cancellation (Ctrl+C) or server error
			select {
			case <-cmd.Context().Done():
				slog.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					slog.Error("Server shutdown failed", "err", err)
					return err
				}
				slog.Info("Server stopped")
				return nil
			case err := <-serverErr:
				return err
			}
		},
	}

	cmd.Flags().StringP("port", "p", "8000", "Port to listen on")
	cmd.Annotations = map[string]string{"port": "server.port"}

	return cmd
}
