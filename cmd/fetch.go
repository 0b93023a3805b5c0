package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/locus-lens/locus/internal/images"
)

func newFetchCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the demo catalog images",
		Long: `Downloads every image listed in the demo list (a YAML map of filename to
URL) into the image directory. Files already present are left alone.`,
		Example: `  locus fetch
  locus fetch --list demo_images.yaml --image-dir ./demo_images`,
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := images.LoadList(s.cfg.Ingest.DemoList)
			if err != nil {
				return err
			}

			result, err := images.NewFetcher().FetchAll(cmd.Context(), sources, s.cfg.Ingest.ImageDir)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %d, existing %d, failed %d\n", result.Downloaded, result.Existing, result.Failed)
			return nil
		},
	}

	cmd.Flags().String("list", "demo_images.yaml", "YAML map of filename to image URL")
	cmd.Flags().String("image-dir", "demo_images", "Directory to download into")
	cmd.Annotations = map[string]string{
		"list":      "ingest.demo_list",
		"image-dir": "ingest.image_dir",
	}

	return cmd
}
