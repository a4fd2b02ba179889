// Have I Been Drained - Solana wallet threat detection.
// Copyright (c) 2025 haveibeendrained
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/analysis"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/api"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/config"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/domain"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/provider"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/ratelimit"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/registry"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/repository"
	"github.com/digitaldrreamer/haveibeendrained-sub003/internal/retry"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// globalOptions are shared by every subcommand.
type globalOptions struct {
	configPath string
	rpc        string
	program    string
	authority  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:           "hibd",
		Short:         "Check Solana wallets for drainer activity",
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", os.Getenv("HIBD_CONFIG"), "path to a YAML config file")
	root.PersistentFlags().StringVar(&opts.rpc, "rpc", "", "Solana RPC endpoint (overrides config)")
	root.PersistentFlags().StringVar(&opts.program, "program", "", "registry program id (overrides config)")
	root.PersistentFlags().StringVar(&opts.authority, "authority", "", "registry program authority (overrides config)")

	root.AddCommand(
		newAnalyzeCmd(opts),
		newDrainerCmd(opts),
		newReportIxCmd(opts),
		newPDACmd(opts),
		newAPIKeyCmd(opts),
	)
	return root
}

func (o *globalOptions) load() (*domain.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.rpc != "" {
		cfg.Solana.RPCEndpoint = o.rpc
	}
	if o.program != "" {
		cfg.Solana.RegistryProgramID = o.program
	}
	if o.authority != "" {
		cfg.Solana.ProgramAuthority = o.authority
	}
	return cfg, nil
}

func (o *globalOptions) registryProgram(cfg *domain.Config) (*registry.Program, error) {
	return registry.NewProgram(cfg.Solana.RegistryProgramID, cfg.Solana.ProgramAuthority)
}

func newAnalyzeCmd(opts *globalOptions) *cobra.Command {
	var limit int
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "analyze <address>",
		Short: "Analyze a wallet's recent transactions and print the risk report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if limit > 0 {
				cfg.Analysis.TransactionLimit = limit
			}
			if timeout > 0 {
				cfg.Analysis.Timeout = timeout
			}

			program, err := opts.registryProgram(cfg)
			if err != nil {
				return err
			}
			txProvider, rpcClient, err := provider.NewSolanaProvider(cfg.Solana)
			if err != nil {
				return err
			}
			client, err := registry.NewClient(program, rpcClient, cfg.Solana.Commitment)
			if err != nil {
				return err
			}
			oracle := registry.NewCachedOracle(client, nil, 0, 0, retry.DefaultPolicy())

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			analyzer := analysis.New(txProvider, oracle, analysis.ConfigFrom(cfg.Analysis))
			res, err := analyzer.Analyze(ctx, args[0])
			if err != nil {
				return err
			}

			for _, w := range res.Warnings {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: %s\n", w)
			}
			if res.Partial {
				fmt.Fprintln(cmd.ErrOrStderr(), "Warning: report is partial")
			}
			return printJSON(cmd.OutOrStdout(), res.Report)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "number of recent transactions to inspect (1-200)")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "overall analysis deadline")
	return cmd
}

func newDrainerCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "drainer <address>",
		Short: "Print the registry entry for a reported address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			program, err := opts.registryProgram(cfg)
			if err != nil {
				return err
			}
			_, rpcClient, err := provider.NewSolanaProvider(cfg.Solana)
			if err != nil {
				return err
			}
			client, err := registry.NewClient(program, rpcClient, cfg.Solana.Commitment)
			if err != nil {
				return err
			}

			entry, err := client.GetEntry(cmd.Context(), args[0])
			if errors.Is(err, domain.ErrDrainerNotFound) {
				return fmt.Errorf("%s has not been reported", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), entry)
		},
	}
}

func newReportIxCmd(opts *globalOptions) *cobra.Command {
	var amount string

	cmd := &cobra.Command{
		Use:   "report-ix <drainer> <reporter>",
		Short: "Build an unsigned report_drainer instruction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			program, err := opts.registryProgram(cfg)
			if err != nil {
				return err
			}

			var sol *decimal.Decimal
			if amount != "" {
				d, err := decimal.NewFromString(amount)
				if err != nil {
					return fmt.Errorf("invalid --amount value: %w", err)
				}
				sol = &d
			}

			ix, err := program.BuildReportInstruction(args[0], args[1], sol)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ix.View())
		},
	}

	cmd.Flags().StringVar(&amount, "amount", "", "amount stolen in SOL")
	return cmd
}

func newPDACmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "pda <address>",
		Short: "Derive the registry report account for an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			program, err := opts.registryProgram(cfg)
			if err != nil {
				return err
			}
			drainer, err := registry.ParseAddress("address", args[0])
			if err != nil {
				return err
			}
			pda, bump, err := program.DrainerPDA(drainer)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"address": drainer.String(),
				"pda":     pda.String(),
				"bump":    bump,
				"program": program.ID.String(),
			})
		},
	}
}

func newAPIKeyCmd(opts *globalOptions) *cobra.Command {
	var name, tier string
	var rpm int

	root := &cobra.Command{
		Use:   "apikey",
		Short: "Manage API keys",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key and print it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" {
				return fmt.Errorf("--name is required")
			}
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			repo, err := repository.New(cfg.Repository)
			if err != nil {
				return err
			}
			defer repo.Close()

			raw := "hibd_" + strings.ReplaceAll(uuid.New().String(), "-", "")
			key := &domain.APIKey{
				ID:                uuid.New().String(),
				Name:              name,
				KeyHash:           api.HashAPIKey(raw),
				Tier:              tier,
				RequestsPerMinute: rpm,
				Enabled:           true,
				CreatedAt:         time.Now().UTC(),
			}
			if err := repo.SaveAPIKey(cmd.Context(), key); err != nil {
				return err
			}

			fmt.Fprintf(cmd.ErrOrStderr(), "Store this key now, it cannot be shown again.\n")
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"id":   key.ID,
				"name": key.Name,
				"key":  raw,
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key owner label")
	create.Flags().StringVar(&tier, "tier", ratelimit.TierKeyed, "rate limit tier")
	create.Flags().IntVar(&rpm, "rpm", 0, "requests per minute (0 uses the tier default)")

	root.AddCommand(create)
	return root
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
