package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"medvault/api/server"
	"medvault/core/config"
	"medvault/core/genesis"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "medvaultd",
		Short:   "Permissioned medical record vault node",
		Version: server.NodeVersion(),
	}
	rootCmd.PersistentFlags().String("env-file", ".env", "Optional dotenv file read before the environment")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(quoteCmd())
	rootCmd.AddCommand(verifyCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	return config.Load(envFile)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Open the vault and serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			n, err := openNode(ctx, cfg, os.Stdout)
			if err != nil {
				return err
			}
			defer n.Close()
			return n.Serve(ctx)
		},
	}
}

func initCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a development genesis file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			ownerHex, _ := cmd.Flags().GetString("owner")
			if !common.IsHexAddress(ownerHex) {
				return fmt.Errorf("--owner must be a 0x address, got %q", ownerHex)
			}
			g := genesis.Default(common.HexToAddress(ownerHex))
			if v, _ := cmd.Flags().GetString("vault-id"); v != "" {
				g.VaultID = v
			}
			if err := g.Validate(); err != nil {
				return err
			}
			if err := g.Write(cfg.GenesisPath); err != nil {
				if errors.Is(err, os.ErrExist) {
					return fmt.Errorf("%s already exists", cfg.GenesisPath)
				}
				return err
			}
			fmt.Printf("Wrote genesis for %s to %s\n", g.VaultID, cfg.GenesisPath)
			return nil
		},
	}
	cmd.Flags().String("owner", "", "Vault owner address")
	cmd.Flags().String("vault-id", "", "Vault identifier (default medvault-dev)")
	_ = cmd.MarkFlagRequired("owner")
	return cmd
}

func quoteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "quote",
		Short: "Print the current XRP upload fee in drops",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			n, err := openNode(cmd.Context(), cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer n.Close()
			q, err := n.vault.Quote(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(q)
		},
	}
}

func verifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify-journal",
		Short: "Recompute the event hash chain",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			n, err := openNode(cmd.Context(), cfg, os.Stderr)
			if err != nil {
				return err
			}
			defer n.Close()
			broken, err := n.vault.VerifyJournal()
			if err != nil {
				return err
			}
			if broken != 0 {
				return fmt.Errorf("journal broken at event %d", broken)
			}
			st, err := n.vault.Status()
			if err != nil {
				return err
			}
			fmt.Printf("Journal intact: %d events, head %s\n", st.HeadSeq, st.HeadHash)
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
