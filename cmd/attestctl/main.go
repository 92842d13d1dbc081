// attestctl issues XRPL payment attestations and native payment receipts
// signed with a local key, for development nodes that trust that key.
package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"medvault/core/oracle"
	"medvault/types/ids"
)

func main() {
	root := &cobra.Command{
		Use:          "attestctl",
		Short:        "Development payment attestation and receipt issuer",
		SilenceUsage: true,
	}
	root.AddCommand(keygenCmd(), issueCmd(), receiptCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func keygenCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an Ed25519 attestation keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, priv, err := ed25519.GenerateKey(rand.Reader)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return err
			}
			privPath := filepath.Join(dir, "attestation.key")
			pubPath := filepath.Join(dir, "attestation.pub")
			if err := oracle.WriteKeyPairPEM(priv, privPath, pubPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "private key: %s\npublic key:  %s (set VAULT_ATTESTATION_KEY_PATH)\n", privPath, pubPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", ".", "Output directory")
	return cmd
}

func issueCmd() *cobra.Command {
	var (
		keyPath, kid, stmt, proofID, dest string
		drops                             uint64
	)
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign an attestation that drops were paid",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := oracle.LoadPrivateKeyPEM(keyPath)
			if err != nil {
				return err
			}
			if stmt == "" {
				stmt = uuid.NewString()
			}
			if proofID == "" {
				proofID = uuid.NewString()
			}
			jws, err := (&oracle.Issuer{Key: key, Kid: kid}).Issue(stmt, proofID, drops, dest)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "statement-id: %s\nproof-id:     %s\npaid-drops:   %d\nproof:        %s\n", stmt, proofID, drops, jws)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&keyPath, "key", "attestation.key", "PKCS#8 private key")
	fs.StringVar(&kid, "kid", "", "Key id header")
	fs.StringVar(&stmt, "statement-id", "", "Statement id (random when empty)")
	fs.StringVar(&proofID, "proof-id", "", "Proof id (random when empty)")
	fs.StringVar(&dest, "dest", "", "XRPL destination the payment went to")
	fs.Uint64Var(&drops, "drops", 0, "Drops paid")
	_ = cmd.MarkFlagRequired("drops")
	return cmd
}

func receiptCmd() *cobra.Command {
	var keyPath, kid, txHash, payer, valueWei, purpose, patient string
	cmd := &cobra.Command{
		Use:   "receipt",
		Short: "Sign a receipt that a native payment settled",
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := oracle.LoadPrivateKeyPEM(keyPath)
			if err != nil {
				return err
			}
			if !common.IsHexAddress(payer) {
				return fmt.Errorf("invalid payer %q", payer)
			}
			value, ok := new(big.Int).SetString(valueWei, 10)
			if !ok || value.Sign() < 0 {
				return fmt.Errorf("invalid value %q", valueWei)
			}
			p := oracle.Purpose(purpose)
			if p != oracle.PurposeUpload && p != oracle.PurposeDeposit {
				return fmt.Errorf("purpose must be %s or %s", oracle.PurposeUpload, oracle.PurposeDeposit)
			}
			pid, err := ids.FromString(patient)
			if err != nil {
				return fmt.Errorf("invalid patient id: %w", err)
			}
			if txHash == "" {
				txHash = uuid.NewString()
			}
			jws, err := (&oracle.Issuer{Key: key, Kid: kid}).IssueReceipt(txHash, common.HexToAddress(payer), value, p, pid)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "tx:      %s\nreceipt: %s\n", txHash, jws)
			return nil
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&keyPath, "key", "attestation.key", "PKCS#8 private key")
	fs.StringVar(&kid, "kid", "", "Key id header")
	fs.StringVar(&txHash, "tx", "", "Settled transaction hash (random when empty)")
	fs.StringVar(&payer, "payer", "", "Address that paid; must be the caller redeeming the receipt")
	fs.StringVar(&valueWei, "value-wei", "0", "Amount paid in wei")
	fs.StringVar(&purpose, "purpose", string(oracle.PurposeUpload), "upload or deposit")
	fs.StringVar(&patient, "patient", "", "Patient id the payment is for")
	_ = cmd.MarkFlagRequired("payer")
	_ = cmd.MarkFlagRequired("patient")
	return cmd
}
