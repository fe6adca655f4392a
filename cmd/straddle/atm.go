package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/swapnilk30/AlgoTradingSetup01/internal/markethours"
	"github.com/swapnilk30/AlgoTradingSetup01/internal/strike"
)

func newATMCmd() *cobra.Command {
	var step int64
	var offset int
	cmd := &cobra.Command{
		Use:     "atm SPOT",
		Short:   "Compute the ATM strike for a spot price",
		Example: "  straddle atm 23461.35 --step 50",
		Args:    cobra.ExactArgs(1),
		// no config needed
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, args []string) error {
			spot, err := decimal.NewFromString(args[0])
			if err != nil {
				return fmt.Errorf("spot: %w", err)
			}
			atm, err := strike.ComputeATM(spot, step)
			if err != nil {
				return err
			}
			shifted, err := strike.Offset(atm, step, offset)
			if err != nil {
				return err
			}
			nearest, err := strike.Nearest(spot, step)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]string{
				"spot":    spot.String(),
				"atm":     atm.String(),
				"strike":  shifted.String(),
				"nearest": nearest.String(),
			})
		},
	}
	cmd.Flags().Int64Var(&step, "step", 100, "Strike interval")
	cmd.Flags().IntVar(&offset, "offset", 0, "Steps away from ATM")
	return cmd
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the NSE market status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cal, err := markethours.NewCalendar(a.cfg.Market.Holidays)
			if err != nil {
				return err
			}
			now := time.Now()
			_, err = fmt.Fprintln(cmd.OutOrStdout(), cal.StatusString(now))
			return err
		},
	}
}
