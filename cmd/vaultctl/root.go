package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"medvault/api/client"
	"medvault/core/auth"
	"medvault/types/ids"
)

type globals struct {
	server string
	token  string
	caller *common.Address
	output string
	out    io.Writer
}

func (g *globals) client() *client.Client {
	c := client.New(g.server)
	c.Token = g.token
	c.Caller = *g.caller
	return c
}

func (g *globals) print(v interface{}, plain func(w io.Writer)) error {
	if g.output == "json" || plain == nil {
		enc := json.NewEncoder(g.out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	plain(g.out)
	return nil
}

func newRootCmd(out io.Writer) *cobra.Command {
	g := &globals{out: out}
	root := &cobra.Command{
		Use:           "vaultctl",
		Short:         "Command-line client for a medvault node",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	pf := root.PersistentFlags()
	pf.StringVar(&g.server, "server", envOr("VAULTCTL_SERVER", "http://localhost:8080"), "Node API base URL")
	pf.StringVar(&g.token, "token", os.Getenv("VAULTCTL_TOKEN"), "Bearer token")
	g.caller = addressFlag(pf, "as", "Caller address sent in dev mode when no token is set")
	pf.StringVarP(&g.output, "output", "o", "plain", "Output format: plain|json")

	root.AddCommand(
		statusCmd(g),
		healthCmd(g),
		metaCmd(g),
		roleCmd(g, "set-guardian", "Bind a patient's guardian (owner only)"),
		roleCmd(g, "set-insurer", "Bind a patient's insurer (guardian only)"),
		grantCmd(g),
		uploadCmd(g),
		readCmd(g),
		depositCmd(g),
		balanceCmd(g),
		feesCmd(g),
		quoteCmd(g),
		withdrawCmd(g),
		eventsCmd(g),
		checkpointCmd(g),
		derivePIDCmd(g),
		tokenCmd(g),
	)
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func derivePIDCmd(g *globals) *cobra.Command {
	var salt string
	cmd := &cobra.Command{
		Use:   "derive-pid MRN",
		Short: "Derive a patient id from a medical record number and salt",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pid := ids.DerivePatientID(args[0], salt)
			return g.print(map[string]string{"patientId": pid.Hex()}, func(w io.Writer) {
				fmt.Fprintln(w, pid.Hex())
			})
		},
	}
	cmd.Flags().StringVar(&salt, "salt", "", "Deployment salt")
	_ = cmd.MarkFlagRequired("salt")
	return cmd
}

func tokenCmd(g *globals) *cobra.Command {
	var (
		secret, issuer string
		ttl            time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an API token for --as (needs the node's JWT secret)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if *g.caller == (common.Address{}) {
				return fmt.Errorf("--as is required")
			}
			if secret == "" {
				return fmt.Errorf("--secret or VAULT_JWT_SECRET is required")
			}
			tok, err := auth.NewAuthenticator(secret, issuer).Issue(*g.caller, ttl)
			if err != nil {
				return err
			}
			return g.print(map[string]string{"token": tok}, func(w io.Writer) { fmt.Fprintln(w, tok) })
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("VAULT_JWT_SECRET"), "HS256 signing secret")
	cmd.Flags().StringVar(&issuer, "issuer", "medvault", "Token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
