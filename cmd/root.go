package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/locus-lens/locus/internal/config"
)

// state is shared by every subcommand once the root command has loaded the configuration
type state struct {
	v   *viper.Viper
	cfg *config.Config
}

func NewRootCmd() *cobra.Command {
	s := &state{v: viper.New()}
	var configFile string

	cmd := &cobra.Command{
		Use:   "locus",
		Short: "Find where to buy the items in a photo",
		Long: `Locus detects clothing and accessories in a photo, isolates the chosen item
and searches a catalog of mall store items for the closest matches.

It runs the HTTP API, ingests catalog images into the vector index and
maintains the index collection.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// Load .env file if present (ignore errors)
			_ = godotenv.Load()

			if err := bindFlags(s.v, cmd); err != nil {
				return err
			}
			cfg, err := config.Load(s.v, configFile)
			if err != nil {
				return err
			}
			s.cfg = cfg
			return setupLogging(cfg.Log)
		},
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Config file (default ./locus.yaml when present)")
	cmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	_ = s.v.BindPFlag("log.level", cmd.PersistentFlags().Lookup("log-level"))

	cmd.AddCommand(newServeCmd(s))
	cmd.AddCommand(newIngestCmd(s))
	cmd.AddCommand(newIndexCmd(s))
	cmd.AddCommand(newFetchCmd(s))

	return cmd
}

// bindFlags binds the flags of the running command to the config keys named
// in its annotations, so two commands can share a key.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range cmd.Annotations {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}
	return nil
}

func setupLogging(c config.LogConfig) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", c.Level, err)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if c.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}
