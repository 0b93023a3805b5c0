package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newIndexCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain the vector index collection",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create the collection and its payload indexes if missing",
		Long: `Creates the catalog collection (cosine distance) with full-text indexes on
name and category_tag and a keyword index on filename. Running it against an
existing collection changes nothing.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := newIndex(s.cfg.Index)
			if err != nil {
				return err
			}
			defer idx.Close()

			created, err := idx.EnsureCollection(cmd.Context())
			if err != nil {
				return err
			}
			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Created collection %s\n", s.cfg.Index.Collection)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Collection %s already exists\n", s.cfg.Index.Collection)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether the collection exists and how many items it holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			idx, err := newIndex(s.cfg.Index)
			if err != nil {
				return err
			}
			defer idx.Close()

			exists, err := idx.Exists(cmd.Context())
			if err != nil {
				return err
			}
			if !exists {
				fmt.Fprintf(cmd.OutOrStdout(), "Collection %s does not exist, run `locus index init`\n", s.cfg.Index.Collection)
				return nil
			}

			count, err := idx.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Collection %s: %d items\n", s.cfg.Index.Collection, count)
			return nil
		},
	})

	return cmd
}
