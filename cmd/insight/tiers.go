package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jmakwana01/InsightTiers/internal/app"
	"github.com/jmakwana01/InsightTiers/pkg/access"
	"github.com/jmakwana01/InsightTiers/pkg/chainstate"
	"github.com/jmakwana01/InsightTiers/pkg/server"
	"github.com/jmakwana01/InsightTiers/pkg/tiers"
	"github.com/jmakwana01/InsightTiers/pkg/txflow"
	"github.com/jmakwana01/InsightTiers/pkg/units"
)

var tiersStake string

var tiersCmd = &cobra.Command{
	Use:   "tiers",
	Short: "Show the tier table",
	Long: `Print the tier table. With a wallet (or --server) each tier is labelled
Current, Unlocked or Locked, and --stake previews the tier an additional
stake would reach.

Example:
  insight tiers
  insight tiers --key dev.key --stake 600`,
	Args: cobra.NoArgs,
	RunE: runTiers,
}

func init() {
	tiersCmd.Flags().StringVar(&tiersStake, "stake", "", "preview staking this many more tokens")
}

func runTiers(cmd *cobra.Command, args []string) error {
	stake := units.Zero()
	if tiersStake != "" {
		var err error
		if stake, err = parseAmountArg(tiersStake); err != nil {
			return err
		}
	}
	out := cmd.OutOrStdout()

	if c, ok := remote(); ok {
		resp, err := c.Tiers(cmd.Context(), stake)
		if err != nil {
			return err
		}
		printTiers(out, resp)
		return nil
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.HasWallet() {
		printTiers(out, tierTable(nil, stake))
		return nil
	}
	return withConnectedApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		snap := a.Session.Snapshot()
		printTiers(out, tierTable(&snap.Chain, stake))
		return nil
	})
}

// tierTable builds the same view the server returns. st is nil when no
// wallet is connected.
func tierTable(st *chainstate.UserState, stake units.Amount) *server.TiersResponse {
	resp := &server.TiersResponse{Connected: st != nil}
	current, base := tiers.ID(-1), chainstate.UserState{}
	if st != nil {
		current, base = st.Tier, *st
	}
	for _, t := range tiers.All() {
		resp.Tiers = append(resp.Tiers, server.TierResponse{Info: t, Status: access.StatusFor(t.ID, current)})
	}
	if !stake.IsZero() {
		p := txflow.ProjectStake(base, stake)
		resp.Projection = &p
	}
	return resp
}

func printTiers(w io.Writer, resp *server.TiersResponse) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if resp.Connected {
		fmt.Fprintln(tw, "TIER\tMIN STAKE\tSTATUS\tFEATURES")
	} else {
		fmt.Fprintln(tw, "TIER\tMIN STAKE\tFEATURES")
	}
	for _, t := range resp.Tiers {
		features := strings.Join(t.Features, ", ")
		if resp.Connected {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.Name, t.MinStake, t.Status, features)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.MinStake, features)
		}
	}
	tw.Flush()

	if p := resp.Projection; p != nil {
		fmt.Fprintf(w, "\nAfter staking: %s INSIGHT staked, tier %s\n", p.Staked.Format(2), p.TierName)
	}
}
