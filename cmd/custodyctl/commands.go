package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/better-wallet/agent-custody/internal/chain"
	"github.com/better-wallet/agent-custody/internal/crypto"
	"github.com/better-wallet/agent-custody/internal/kms"
)

const masterSecretSize = 32

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "custodyctl",
		Short:         "Operator tooling for the agent key custody service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newChainsCmd(), newGenSecretCmd(), newWrapSecretCmd())
	return root
}

func newChainsCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "chains",
		Short: "Print the chain classification table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			table := chain.Table()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(table)
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tFAMILY\tCURVE\tADDRESS\tCHAIN ID\tACCOUNT ABSTRACTION")
			for _, c := range table {
				chainID := "-"
				if c.ChainID != nil {
					chainID = fmt.Sprint(*c.ChainID)
				}
				aa, err := chain.IsEVMFamily(c.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%t\n", c.ID, c.Family, c.Curve, c.AddressFormat, chainID, aa)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newGenSecretCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gen-secret",
		Short: "Generate a random 32-byte master secret as hex",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := make([]byte, masterSecretSize)
			if _, err := rand.Read(secret); err != nil {
				return fmt.Errorf("failed to generate secret: %w", err)
			}
			defer crypto.Zero(secret)
			_, err := fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(secret))
			return err
		},
	}
}

func newWrapSecretCmd() *cobra.Command {
	cfg := kms.Config{}
	var secretHex string

	cmd := &cobra.Command{
		Use:   "wrap-secret",
		Short: "Encrypt a hex master secret with a KMS provider for MASTER_SECRET",
		Long: "Reads the hex master secret from --secret or stdin and prints the wrapped value\n" +
			"to use as MASTER_SECRET with the same MASTER_SECRET_PROVIDER.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secretHex == "" {
				line, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				secretHex = line
			}

			secret, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(secretHex), "0x"))
			if err != nil {
				return fmt.Errorf("secret must be hex encoded")
			}
			defer crypto.Zero(secret)
			if len(secret) < masterSecretSize {
				return fmt.Errorf("secret must be at least %d bytes, got %d", masterSecretSize, len(secret))
			}

			provider, err := kms.NewProvider(cmd.Context(), &cfg)
			if err != nil {
				return err
			}
			wrapped, err := provider.Wrap(cmd.Context(), secret)
			if err != nil {
				return fmt.Errorf("failed to wrap secret via %s: %w", provider.Provider(), err)
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), wrapped)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&secretHex, "secret", "", "hex master secret (read from stdin when empty)")
	f.StringVar(&cfg.Provider, "provider", envOr("MASTER_SECRET_PROVIDER", string(kms.ProviderLocal)), "local, aws-kms or vault")
	f.StringVar(&cfg.AWSKMSKeyID, "aws-kms-key-id", os.Getenv("AWS_KMS_KEY_ID"), "AWS KMS key id or ARN")
	f.StringVar(&cfg.AWSKMSRegion, "aws-region", os.Getenv("AWS_REGION"), "AWS region")
	f.StringVar(&cfg.VaultAddress, "vault-addr", os.Getenv("VAULT_ADDR"), "Vault address")
	f.StringVar(&cfg.VaultToken, "vault-token", os.Getenv("VAULT_TOKEN"), "Vault token")
	f.StringVar(&cfg.VaultTransitKey, "vault-transit-key", envOr("VAULT_TRANSIT_KEY", "agent-custody"), "Vault transit key name")
	return cmd
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("no secret provided")
	}
	return line, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
