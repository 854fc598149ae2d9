package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/vitwit/chaindonate"
	"github.com/vitwit/chaindonate/config"
	"github.com/vitwit/chaindonate/logger"
	"github.com/vitwit/chaindonate/metrics"
)

type rootFlags struct {
	configPath string
	envFile    string
	output     string
}

// newRootCmd wires the CLI. Every subcommand loads the .env file, then the
// YAML config, before building the engine.
func newRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "chaindonated",
		Short:         "Multi-chain donation intent and verification engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadEnv(flags.envFile)
		},
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "chaindonate.yaml", "Path to the YAML config")
	root.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Optional dotenv file loaded before the config")
	root.PersistentFlags().StringVarP(&flags.output, "output", "o", "text", "Output format: json|text")

	root.AddCommand(
		newServeCmd(flags),
		newDeriveCmd(flags),
		newExpireCmd(flags),
		newVersionCmd(flags),
	)
	return root
}

// loadEnv loads path into the environment. A missing file is fine;
// variables already set win.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func loadConfig(flags *rootFlags) (*config.Config, logger.Logger, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, nil, err
	}
	log, err := logger.NewZapLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func buildEngine(ctx context.Context, cfg *config.Config, log logger.Logger, rec metrics.Recorder) (*chaindonate.Engine, error) {
	return chaindonate.NewFromConfig(ctx, cfg, chaindonate.WithLogger(log), chaindonate.WithMetrics(rec))
}

func printOut(w io.Writer, format string, v any, text func(io.Writer)) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "text", "":
		text(w)
		return nil
	default:
		return fmt.Errorf("invalid --output: %s (use json|text)", format)
	}
}
