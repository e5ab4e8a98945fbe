package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/jmakwana01/InsightTiers/internal/app"
	"github.com/jmakwana01/InsightTiers/pkg/access"
	"github.com/jmakwana01/InsightTiers/pkg/session"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show wallet balances, stake, tier and privileges",
	Long: `Connect the wallet and print its on-chain state and content access.

Example:
  insight status --key dev.key
  insight status --server http://localhost:8080`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output as JSON")
}

func runStatus(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	if c, ok := remote(); ok {
		resp, err := c.Session(cmd.Context())
		if err != nil {
			return err
		}
		if statusJSON {
			return printJSON(out, resp)
		}
		printSnapshot(out, resp.Snapshot)
		return nil
	}

	return withConnectedApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		snap := a.Session.Snapshot()
		if statusJSON {
			return printJSON(out, map[string]any{
				"session": snap,
				"access":  access.Decide(snap.Chain),
			})
		}
		printSnapshot(out, snap)
		return nil
	})
}

func printSnapshot(w io.Writer, snap session.Snapshot) {
	if !snap.Connected() {
		fmt.Fprintf(w, "Wallet: %s\n", snap.State)
		return
	}
	d := access.Decide(snap.Chain)

	fmt.Fprintf(w, "Account:    %s\n", snap.Account.Hex())
	fmt.Fprintf(w, "Balance:    %s INSIGHT\n", snap.Chain.TokenBalance.Format(2))
	fmt.Fprintf(w, "Staked:     %s INSIGHT\n", snap.Chain.StakedAmount.Format(2))
	fmt.Fprintf(w, "Tier:       %s\n", d.TierName)
	fmt.Fprintf(w, "Privileges: premium=%v webinars=%v support=%v\n",
		snap.Chain.Privileges.Premium, snap.Chain.Privileges.Webinars, snap.Chain.Privileges.Support)
	if !d.HasAccess {
		fmt.Fprintln(w, "Content:    locked (stake INSIGHT tokens to access premium content)")
	} else {
		names := make([]string, len(d.Accessible))
		for i, t := range d.Accessible {
			names[i] = t.Name
		}
		fmt.Fprintf(w, "Content:    %v\n", names)
	}
	if snap.LastReadError != "" {
		fmt.Fprintf(w, "Last read error: %s\n", snap.LastReadError)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
