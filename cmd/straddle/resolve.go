package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/instrument"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/model"
)

func (a *app) resolver(ctx context.Context) (*instrument.Resolver, error) {
	st := a.openStores()
	defer st.Close()
	load, err := a.loadCatalog(ctx, st)
	if err != nil {
		return nil, err
	}
	return instrument.NewResolver(load.catalog), nil
}

func newResolveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Look up instrument tokens in the scrip master",
	}

	var optType, side, expiry, strikeStr string
	option := &cobra.Command{
		Use:     "option NAME",
		Short:   "Resolve one option contract",
		Example: "  straddle resolve option NIFTY --strike 23500 --side CE --expiry 05DEC2024",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			strikeVal, err := decimal.NewFromString(strikeStr)
			if err != nil {
				return fmt.Errorf("--strike: %w", err)
			}
			res, err := a.resolver(cmd.Context())
			if err != nil {
				return err
			}
			typ := model.InstrumentType(strings.ToUpper(optType))
			name := strings.ToUpper(args[0])

			var exp time.Time
			if strings.EqualFold(expiry, "nearest") {
				exp, err = res.NearestExpiry(name, typ, time.Now())
				if err != nil {
					return err
				}
			} else {
				var ok bool
				if exp, ok = instrument.ParseExpiry(expiry); !ok {
					return fmt.Errorf("--expiry: cannot parse %q", expiry)
				}
			}
			return printOption(cmd, res, name, typ, strikeVal, side, exp)
		},
	}
	option.Flags().StringVar(&optType, "type", string(model.TypeOptionIndex), "OPTIDX or OPTSTK")
	option.Flags().StringVar(&strikeStr, "strike", "", "Strike in rupees")
	option.Flags().StringVar(&side, "side", "", "CE or PE")
	option.Flags().StringVar(&expiry, "expiry", "nearest", "Expiry date or \"nearest\"")
	_ = option.MarkFlagRequired("strike")
	_ = option.MarkFlagRequired("side")

	var futType string
	future := &cobra.Command{
		Use:   "future NAME",
		Short: "List futures contracts, nearest expiry first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.resolver(cmd.Context())
			if err != nil {
				return err
			}
			insts, err := res.ResolveFuture(strings.ToUpper(args[0]), model.InstrumentType(strings.ToUpper(futType)))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), insts)
		},
	}
	future.Flags().StringVar(&futType, "type", string(model.TypeFutureIndex), "FUTIDX or FUTSTK")

	var segment string
	equity := &cobra.Command{
		Use:   "equity NAME",
		Short: "Resolve a cash equity or index",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.resolver(cmd.Context())
			if err != nil {
				return err
			}
			inst, err := res.ResolveEquityOrIndex(strings.ToUpper(args[0]), model.Segment(strings.ToUpper(segment)))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), inst)
		},
	}
	equity.Flags().StringVar(&segment, "segment", string(model.SegmentNSE), "Exchange segment")

	var expType string
	expiries := &cobra.Command{
		Use:   "expiries NAME",
		Short: "List the listed expiries of a derivative",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := a.resolver(cmd.Context())
			if err != nil {
				return err
			}
			dates := res.Catalog().Expiries(strings.ToUpper(args[0]), model.SegmentNFO, model.InstrumentType(strings.ToUpper(expType)))
			out := make([]string, len(dates))
			for i, d := range dates {
				out[i] = d.Format("2006-01-02")
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	expiries.Flags().StringVar(&expType, "type", string(model.TypeOptionIndex), "Instrument type")

	cmd.AddCommand(option, future, equity, expiries)
	return cmd
}

func printOption(cmd *cobra.Command, res *instrument.Resolver, name string, typ model.InstrumentType, strikeVal decimal.Decimal, side string, exp time.Time) error {
	inst, err := res.ResolveOption(name, typ, strikeVal, model.OptionSide(strings.ToUpper(side)), exp)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), inst)
}
