package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmakwana01/InsightTiers/pkg/wallet"
)

var keygenOut string

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a wallet key",
	Long: `Generate a new secp256k1 wallet key for development.

If no output file is specified, the key is printed to stdout.

Example:
  insight keygen
  insight keygen --out dev.key`,
	Args: cobra.NoArgs,
	RunE: runKeygen,
}

func init() {
	keygenCmd.Flags().StringVar(&keygenOut, "out", "", "output file for the private key")
}

func runKeygen(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	k, err := wallet.Generate()
	if err != nil {
		return fmt.Errorf("key generation failed: %w", err)
	}
	fmt.Fprintf(out, "Address: %s\n", k.Address().Hex())

	if keygenOut == "" {
		fmt.Fprintf(out, "Private key: %s\n", k.PrivateKeyHex())
		fmt.Fprintln(out, "(Use --out <file> to save to a file)")
		return nil
	}
	if err := k.SaveKeyFile(keygenOut); err != nil {
		return fmt.Errorf("saving key: %w", err)
	}
	fmt.Fprintf(out, "Private key saved to: %s\n", keygenOut)
	return nil
}
