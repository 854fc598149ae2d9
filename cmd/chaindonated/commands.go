package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/vitwit/chaindonate"
	"github.com/vitwit/chaindonate/metrics"
)

func newDeriveCmd(flags *rootFlags) *cobra.Command {
	var campaign, network, asset string
	cmd := &cobra.Command{
		Use:   "derive",
		Short: "Print the deposit address a campaign gets for an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			engine, err := buildEngine(cmd.Context(), cfg, log, metrics.NoopRecorder{})
			if err != nil {
				return err
			}
			defer engine.Close()

			key, err := engine.DeriveAddress(campaign, network, asset)
			if err != nil {
				return err
			}
			out := map[string]any{
				"address":     key.Address,
				"path":        key.Path,
				"index":       key.AddressIndex,
				"recoverable": key.Recoverable,
			}
			return printOut(cmd.OutOrStdout(), flags.output, out, func(w io.Writer) {
				fmt.Fprintf(w, "%s\t%s\n", key.Address, key.Path)
				if !key.Recoverable {
					fmt.Fprintln(w, "WARNING: master seed is ephemeral, this address is not recoverable")
				}
			})
		},
	}
	cmd.Flags().StringVar(&campaign, "campaign", "", "Campaign id")
	cmd.Flags().StringVar(&network, "network", "", "Network id")
	cmd.Flags().StringVar(&asset, "asset", "", "Asset id")
	_ = cmd.MarkFlagRequired("campaign")
	_ = cmd.MarkFlagRequired("network")
	_ = cmd.MarkFlagRequired("asset")
	return cmd
}

func newExpireCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "expire",
		Short: "Expire open intents whose verification window has closed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(flags)
			if err != nil {
				return err
			}
			engine, err := buildEngine(cmd.Context(), cfg, log, metrics.NoopRecorder{})
			if err != nil {
				return err
			}
			defer engine.Close()

			n, err := engine.ExpireIntents(cmd.Context(), time.Now())
			if err != nil {
				return err
			}
			return printOut(cmd.OutOrStdout(), flags.output, map[string]int{"expired": n}, func(w io.Writer) {
				fmt.Fprintf(w, "expired %d intents\n", n)
			})
		},
	}
}

func newVersionCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			return printOut(cmd.OutOrStdout(), flags.output, chaindonate.GetVersion(), func(w io.Writer) {
				fmt.Fprintf(w, "chaindonated %s\n", chaindonate.Version)
			})
		},
	}
}
