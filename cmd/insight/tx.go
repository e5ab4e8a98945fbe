package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/jmakwana01/InsightTiers/internal/app"
	"github.com/jmakwana01/InsightTiers/pkg/apiclient"
	"github.com/jmakwana01/InsightTiers/pkg/quote"
	"github.com/jmakwana01/InsightTiers/pkg/txflow"
	"github.com/jmakwana01/InsightTiers/pkg/units"
)

var quoteCmd = &cobra.Command{
	Use:   "quote <amount>",
	Short: "Price a token purchase",
	Long: `Ask the minter how many INSIGHT tokens a payment buys.

Example:
  insight quote 2.5`,
	Args: cobra.ExactArgs(1),
	RunE: runQuote,
}

var purchaseCmd = &cobra.Command{
	Use:   "purchase <amount>",
	Short: "Buy INSIGHT tokens with native currency",
	Long: `Send a payable purchaseTokens transaction and wait for it to be mined.

Example:
  insight purchase 0.5 --key dev.key`,
	Args: cobra.ExactArgs(1),
	RunE: runPurchase,
}

var stakeCmd = &cobra.Command{
	Use:   "stake <amount>",
	Short: "Approve and stake INSIGHT tokens",
	Long: `Approve the staking contract for amount and then stake it. Each step
waits for its receipt; a failed stake leaves the approval in place.

Example:
  insight stake 600 --key dev.key`,
	Args: cobra.ExactArgs(1),
	RunE: runStake,
}

func parseAmountArg(arg string) (units.Amount, error) {
	amount, err := units.Parse(arg)
	if err != nil {
		return units.Amount{}, err
	}
	if amount.Sign() <= 0 {
		return units.Amount{}, txflow.ErrInvalidAmount
	}
	return amount, nil
}

func runQuote(cmd *cobra.Command, args []string) error {
	amount, err := parseAmountArg(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	if c, ok := remote(); ok {
		q, err := c.Quote(cmd.Context(), amount)
		if err != nil {
			return err
		}
		printQuote(out, q.Quote)
		return nil
	}

	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
		q, err := a.Quotes.Estimate(ctx, amount)
		if err != nil {
			return err
		}
		printQuote(out, q)
		return nil
	})
}

func printQuote(w io.Writer, q quote.Quote) {
	fmt.Fprintf(w, "You pay:     %s\n", q.Input)
	fmt.Fprintf(w, "You receive: %s INSIGHT\n", q.Expected.Format(2))
	if rate, ok := q.RatePerUnit(); ok {
		fmt.Fprintf(w, "Rate:        1 = %s INSIGHT\n", rate.FloatString(2))
	}
}

func runPurchase(cmd *cobra.Command, args []string) error {
	amount, err := parseAmountArg(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var res txflow.PurchaseResult
	if c, ok := remote(); ok {
		r, err := c.Purchase(cmd.Context(), amount)
		if err != nil {
			return err
		}
		res = *r
	} else {
		err = withConnectedApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			res, err = a.Tx.Purchase(ctx, amount)
			return err
		})
		if err != nil {
			return err
		}
	}

	fmt.Fprintln(out, "Tokens purchased successfully!")
	fmt.Fprintf(out, "Paid:  %s\n", res.Paid)
	fmt.Fprintf(out, "Tx:    %s (block %d)\n", res.Hash.Hex(), res.BlockNumber)
	return nil
}

func runStake(cmd *cobra.Command, args []string) error {
	amount, err := parseAmountArg(args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var res txflow.StakeResult
	if c, ok := remote(); ok {
		r, err := c.Stake(cmd.Context(), amount)
		if err != nil {
			var stakeErr *apiclient.StakeError
			if errors.As(err, &stakeErr) {
				printStake(out, stakeErr.Result)
			}
			return err
		}
		res = *r
	} else {
		err = withConnectedApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
			res, err = a.Tx.Stake(ctx, amount)
			return err
		})
		if err != nil {
			printStake(out, res)
			return err
		}
	}

	fmt.Fprintln(out, "Tokens staked successfully!")
	printStake(out, res)
	return nil
}

func printStake(w io.Writer, res txflow.StakeResult) {
	fmt.Fprintf(w, "State:   %s\n", res.State)
	if res.ApproveHash != (common.Hash{}) {
		fmt.Fprintf(w, "Approve: %s\n", res.ApproveHash.Hex())
	}
	if res.StakeHash != (common.Hash{}) {
		fmt.Fprintf(w, "Stake:   %s\n", res.StakeHash.Hex())
	}
}
