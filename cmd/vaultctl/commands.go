package main

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"medvault/api/types"
)

func statusCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:     "status",
		Short:   "Query node and vault status",
		Example: "  vaultctl status\n  vaultctl status --output json",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := g.client().Status(cmd.Context())
			if err != nil {
				return err
			}
			return g.print(st, func(w io.Writer) {
				v, _ := st["vault"].(map[string]interface{})
				fmt.Fprintf(w, "Status: %v\nVersion: %v\nOwner: %v\nEvents: %v\n", st["status"], st["version"], v["owner"], v["headSeq"])
			})
		},
	}
}

func healthCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Query node health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := g.client()
			ready, err := c.Readiness(cmd.Context())
			if err != nil {
				return err
			}
			h, err := c.NodeHealth(cmd.Context())
			if err != nil {
				return err
			}
			h["ready"] = ready
			return g.print(h, func(w io.Writer) {
				m, _ := h["metrics"].(map[string]interface{})
				fmt.Fprintf(w, "Status: %v\nReady: %v\nUptime: %vs\nCPU: %.1f%%\n", h["status"], ready, m["uptime_seconds"], m["cpu_load_percent"])
			})
		},
	}
}

func metaCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "meta",
		Short: "Show record metadata for a patient (all kinds, or one with --kind)",
	}
	pid := patientFlag(cmd.Flags())
	kind := kindFlag(cmd.Flags())
	_ = cmd.MarkFlagRequired("patient")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c := g.client()
		if cmd.Flags().Changed("kind") {
			entry, err := c.RecordMeta(cmd.Context(), *pid, *kind)
			if err != nil {
				return err
			}
			return g.print(entry, func(w io.Writer) {
				fmt.Fprintf(w, "%s v%d %s (%s)\n", entry.Kind, entry.Version, entry.PointerURI, entry.Provenance.Method)
			})
		}
		entries, err := c.PatientMeta(cmd.Context(), *pid)
		if err != nil {
			return err
		}
		return g.print(entries, func(w io.Writer) {
			for _, e := range entries {
				fmt.Fprintf(w, "%-13s v%-3d %s\n", e.Kind, e.Version, e.PointerURI)
			}
		})
	}
	return cmd
}

func roleCmd(g *globals, use, short string) *cobra.Command {
	cmd := &cobra.Command{Use: use, Short: short}
	pid := patientFlag(cmd.Flags())
	addr := addressFlag(cmd.Flags(), "address", "Address to bind")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("address")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c := g.client()
		var err error
		if use == "set-guardian" {
			err = c.SetGuardian(cmd.Context(), *pid, *addr)
		} else {
			err = c.SetInsurer(cmd.Context(), *pid, *addr)
		}
		if err != nil {
			return err
		}
		return g.print(types.OKResponse{OK: true}, func(w io.Writer) { fmt.Fprintln(w, "ok") })
	}
	return cmd
}

func grantCmd(g *globals) *cobra.Command {
	var (
		accessors []string
		revoke    bool
	)
	cmd := &cobra.Command{
		Use:   "grant",
		Short: "Grant (or with --revoke, revoke) read access",
	}
	pid := patientFlag(cmd.Flags())
	cmd.Flags().StringSliceVar(&accessors, "accessor", nil, "Accessor address (repeatable)")
	cmd.Flags().BoolVar(&revoke, "revoke", false, "Revoke instead of grant")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("accessor")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		addrs := make([]common.Address, 0, len(accessors))
		for _, a := range accessors {
			if !common.IsHexAddress(a) {
				return fmt.Errorf("not a 0x address: %q", a)
			}
			addrs = append(addrs, common.HexToAddress(a))
		}
		if err := g.client().GrantAccess(cmd.Context(), *pid, addrs, !revoke); err != nil {
			return err
		}
		return g.print(types.OKResponse{OK: true}, func(w io.Writer) { fmt.Fprintf(w, "updated %d accessor(s)\n", len(addrs)) })
	}
	return cmd
}

func uploadCmd(g *globals) *cobra.Command {
	var (
		uri, receipt           string
		proof, stmtID, proofID string
		paidDrops              uint64
	)
	cmd := &cobra.Command{
		Use:   "upload",
		Short: "Upload a record pointer (free, native payment, or XRPL attestation)",
	}
	pid := patientFlag(cmd.Flags())
	kind := kindFlag(cmd.Flags())
	fs := cmd.Flags()
	fs.StringVar(&uri, "uri", "", "Off-chain pointer URI")
	fs.StringVar(&receipt, "receipt", "", "Pay natively with this gateway payment receipt (compact JWS)")
	fs.StringVar(&proof, "proof", "", "XRPL payment attestation (compact JWS)")
	fs.StringVar(&stmtID, "statement-id", "", "Attested statement id")
	fs.StringVar(&proofID, "proof-id", "", "Attestation proof id")
	fs.Uint64Var(&paidDrops, "paid-drops", 0, "Drops paid on the XRP Ledger")
	cmd.MarkFlagsRequiredTogether("proof", "statement-id", "proof-id", "paid-drops")
	cmd.MarkFlagsMutuallyExclusive("receipt", "proof")
	for _, f := range []string{"patient", "kind", "uri"} {
		_ = cmd.MarkFlagRequired(f)
	}
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		c := g.client()
		ctx := cmd.Context()
		var err error
		var entry interface{}
		switch {
		case proof != "":
			entry, err = c.UploadXRPL(ctx, *pid, *kind, types.UploadXRPLRequest{
				PointerURI: uri, Proof: proof, StatementID: stmtID, ProofID: proofID, PaidDrops: paidDrops,
			})
		case receipt != "":
			entry, err = c.UploadNative(ctx, *pid, *kind, uri, receipt)
		default:
			entry, err = c.UploadRecord(ctx, *pid, *kind, uri)
		}
		if err != nil {
			return err
		}
		return g.print(entry, nil)
	}
	return cmd
}

func readCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "read",
		Short: "Read a record, charging the patient's insurer",
	}
	pid := patientFlag(cmd.Flags())
	kind := kindFlag(cmd.Flags())
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("kind")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := g.client().Read(cmd.Context(), *pid, *kind)
		if err != nil {
			return err
		}
		return g.print(r, func(w io.Writer) {
			fmt.Fprintf(w, "%s\ncharged %s wei to %s, %s wei left\n", r.Record.PointerURI, r.FeeWei, r.Insurer, r.RemainingWei)
		})
	}
	return cmd
}

func depositCmd(g *globals) *cobra.Command {
	var receipt string
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Credit a settled native payment to the insurer balance of a patient",
	}
	pid := patientFlag(cmd.Flags())
	cmd.Flags().StringVar(&receipt, "receipt", "", "Gateway payment receipt (compact JWS)")
	_ = cmd.MarkFlagRequired("patient")
	_ = cmd.MarkFlagRequired("receipt")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := g.client().Deposit(cmd.Context(), *pid, receipt)
		if err != nil {
			return err
		}
		return g.print(r, func(w io.Writer) { fmt.Fprintf(w, "%s balance: %s wei\n", r.Insurer, r.BalanceWei) })
	}
	return cmd
}

func balanceCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show an insurer's prepaid balance",
	}
	insurer := addressFlag(cmd.Flags(), "insurer", "Insurer address")
	_ = cmd.MarkFlagRequired("insurer")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		r, err := g.client().InsurerBalance(cmd.Context(), *insurer)
		if err != nil {
			return err
		}
		return g.print(r, func(w io.Writer) { fmt.Fprintf(w, "%s wei\n", r.BalanceWei) })
	}
	return cmd
}

func feesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "fees",
		Short: "Show the fee schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := g.client().Fees(cmd.Context())
			if err != nil {
				return err
			}
			return g.print(f, func(w io.Writer) {
				fmt.Fprintf(w, "access: %s wei\nupload: %s wei or %d USD cents\ncollector: %s\nmax oracle age: %ds\n",
					f.AccessFeeWei, f.UploadFeeWei, f.UploadFeeUSDCents, f.FeeCollector.Hex(), f.MaxOracleStalenessSeconds)
			})
		},
	}
}

func quoteCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "quote",
		Short: "Show the XRP upload fee in drops",
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := g.client().Quote(cmd.Context())
			if err != nil {
				return err
			}
			return g.print(q, func(w io.Writer) { fmt.Fprintf(w, "%s drops (%d USD cents)\n", q.Drops, q.FeeUSDCents) })
		},
	}
}

func withdrawCmd(g *globals) *cobra.Command {
	var amountWei string
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw from the vault balance (owner only)",
	}
	to := addressFlag(cmd.Flags(), "to", "Recipient address")
	cmd.Flags().StringVar(&amountWei, "amount-wei", "", "Amount in wei")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("amount-wei")
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if err := g.client().Withdraw(cmd.Context(), *to, amountWei); err != nil {
			return err
		}
		return g.print(types.OKResponse{OK: true}, func(w io.Writer) { fmt.Fprintln(w, "ok") })
	}
	return cmd
}

func eventsCmd(g *globals) *cobra.Command {
	var (
		from  uint64
		limit int
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List journal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			evs, err := g.client().Events(cmd.Context(), from, limit)
			if err != nil {
				return err
			}
			return g.print(evs, func(w io.Writer) {
				for _, ev := range evs {
					fmt.Fprintf(w, "%6d %-22s %s %s\n", ev.Seq, ev.Type, ev.Actor.Hex(), ev.Timestamp.Format("2006-01-02T15:04:05Z"))
				}
			})
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "First sequence number")
	cmd.Flags().IntVar(&limit, "limit", 100, "Maximum events")
	return cmd
}

func checkpointCmd(g *globals) *cobra.Command {
	var (
		from, to uint64
		signer   string
	)
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Fetch a journal checkpoint and check its signature",
		RunE: func(cmd *cobra.Command, args []string) error {
			cp, err := g.client().Checkpoint(cmd.Context(), from, to)
			if err != nil {
				return err
			}
			if cp.Signature != "" && !cp.VerifySignature() {
				return fmt.Errorf("checkpoint %d..%d: bad signature", cp.FromSeq, cp.ToSeq)
			}
			if signer != "" && cp.Signer != signer {
				return fmt.Errorf("checkpoint signed by %q, want %q", cp.Signer, signer)
			}
			return g.print(cp, func(w io.Writer) {
				fmt.Fprintf(w, "events %d..%d (%d)\nroot %s\nhead %s\n", cp.FromSeq, cp.ToSeq, cp.Count, cp.Root, cp.HeadHash)
				if cp.Signer != "" {
					fmt.Fprintf(w, "signed by %s\n", cp.Signer)
				}
			})
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "First sequence number (default 1)")
	cmd.Flags().Uint64Var(&to, "to", 0, "Last sequence number (default head)")
	cmd.Flags().StringVar(&signer, "signer", "", "Expected node public key (hex)")
	return cmd
}
