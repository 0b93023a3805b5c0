package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/locus-lens/locus/internal/catalog"
)

func newIngestCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Add catalog images to the vector index",
		Long: `Isolates and embeds every catalog image and stores it in the vector index
with its store, level and mall.

Images come from a manifest (JSONL or Parquet with filename, name, store,
level, mall columns) or, without one, from every image in the image
directory. Missing names and stores are derived from the filename, e.g.
zara_red_dress.jpg becomes "zara red dress" sold by "Zara", and levels are
looked up in the mall directory. Files already in the index are skipped.`,
		Example: `  # Ingest every image in ./demo_images
  locus ingest

  # Ingest from a parquet manifest
  locus ingest --manifest catalog.parquet --image-dir ./catalog

  # Ask a vision model for categories the classifier is unsure about
  locus ingest --provider ollama --model llava:13b`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := s.cfg
			ctx := cmd.Context()

			entries, err := catalog.LoadManifest(cfg.Ingest.Manifest, cfg.Ingest.ImageDir)
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				slog.Warn("Nothing to ingest", "manifest", cfg.Ingest.Manifest, "image_dir", cfg.Ingest.ImageDir)
				return nil
			}
			slog.Info("Manifest loaded", "entries", len(entries))

			a, err := newApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := a.index.EnsureCollection(ctx); err != nil {
				return err
			}

			summary, err := a.ingestor.Run(ctx, entries)
			if err != nil {
				return fmt.Errorf("ingest stopped after %d items: %w", summary.Added, err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Added %d, skipped %d, failed %d\n", summary.Added, summary.Skipped, summary.Failed)
			return nil
		},
	}

	cmd.Flags().String("manifest", "", "Manifest file (.jsonl, .json or .parquet), empty scans the image directory")
	cmd.Flags().String("image-dir", "demo_images", "Directory holding the catalog images")
	cmd.Flags().String("mall", "ABC Achrafieh", "Mall assigned to items without one")
	cmd.Flags().String("provider", "", "Vision LLM for the category fallback (ollama, openai, or gemini)")
	cmd.Flags().String("model", "", "Model name (defaults to provider's default)")
	cmd.Annotations = map[string]string{
		"manifest":  "ingest.manifest",
		"image-dir": "ingest.image_dir",
		"mall":      "ingest.mall",
		"provider":  "ingest.provider",
		"model":     "ingest.model",
	}

	return cmd
}
