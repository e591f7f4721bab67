package main

import (
	"context"
	"fmt"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/aristath/simtrader/internal/modules/simulation"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newStepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "step <portfolio-id>",
		Short: "Simulate the next trading day of a portfolio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			result, err := a.container.SimulationService.StepOnce(cmd.Context(), ids[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}
}

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run <portfolio-id>",
		Short: "Simulate a portfolio until its run length is reached or data runs out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			result, err := a.container.SimulationService.RunSimulation(cmd.Context(), ids[0])
			if result != nil {
				if printErr := printJSON(cmd.OutOrStdout(), result); printErr != nil {
					return printErr
				}
			}
			return err
		},
	}
}

func newResetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <portfolio-id>",
		Short: "Discard simulated history and restore the initial cash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			if err := a.container.SimulationService.ResetPortfolio(cmd.Context(), ids[0]); err != nil {
				return err
			}
			a.log.Info().Int64("portfolio_id", ids[0]).Msg("Portfolio reset")
			return nil
		},
	}
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		workers        int
		all            bool
		cash           string
		firstDate      string
		runLength      int
		reserve        []string
		reinvestPeriod []int
		reinvestAmount []string
		bankThreshold  []string
		crypto         []string
		maxExposure    []string
		strategies     []string
	)

	cmd := &cobra.Command{
		Use:   "search [portfolio-id...]",
		Short: "Run a parameter grid concurrently and rank the portfolios by final value",
		Long: "Without arguments, creates one portfolio per combination of the grid flags " +
			"(resetting portfolios left by an earlier search with the same values), runs them " +
			"to completion on a worker pool and prints the outcomes ranked by final total value. " +
			"With portfolio ids, or --all, runs existing portfolios instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			switch {
			case len(ids) > 0:
			case all:
				if ids, err = a.allPortfolioIDs(ctx); err != nil {
					return err
				}
			default:
				grid := searchGrid{ReinvestPeriod: reinvestPeriod, Crypto: crypto, Strategies: strategies}
				if grid.InitialCash, err = decimal.NewFromString(cash); err != nil {
					return fmt.Errorf("invalid --cash: %w", err)
				}
				if grid.Reserve, err = parseDecimals("reserve", reserve); err != nil {
					return err
				}
				if grid.ReinvestAmount, err = parseDecimals("reinvest-amount", reinvestAmount); err != nil {
					return err
				}
				if grid.BankThreshold, err = parseDecimals("bank-threshold", bankThreshold); err != nil {
					return err
				}
				if grid.MaxExposure, err = parseDecimals("max-exposure", maxExposure); err != nil {
					return err
				}
				if len(grid.Strategies) == 0 {
					grid.Strategies = a.container.Registry.Names()
				}

				points, err := grid.expand()
				if err != nil {
					return err
				}
				var first time.Time
				if firstDate != "" {
					if first, err = utils.ParseDate(firstDate); err != nil {
						return err
					}
				}
				if ids, err = a.preparePortfolios(ctx, points, grid.InitialCash, first, runLength); err != nil {
					return err
				}
			}

			if workers == 0 {
				workers = a.cfg.Workers
			}
			outcomes := a.container.SimulationService.RunMany(ctx, ids, workers)
			return printRanking(cmd, outcomes)
		},
	}

	f := cmd.Flags()
	f.IntVarP(&workers, "workers", "w", 0, "parallel runs (default SIMULATION_WORKERS, else physical cores - 1)")
	f.BoolVar(&all, "all", false, "run every existing portfolio instead of a grid")
	f.StringVar(&cash, "cash", "1200", "opening deposit of each grid portfolio")
	f.StringVar(&firstDate, "from", "", "first simulated date, YYYY-MM-DD (default today)")
	f.IntVar(&runLength, "days", 0, "run length in calendar days (default 365)")
	f.StringSliceVar(&reserve, "reserve", []string{"1"}, "reserve cash percents")
	f.IntSliceVar(&reinvestPeriod, "reinvest-period", []int{3650}, "days between reinvestments")
	f.StringSliceVar(&reinvestAmount, "reinvest-amount", []string{"100"}, "reinvestment amounts")
	f.StringSliceVar(&bankThreshold, "bank-threshold", []string{"1000"}, "bank sweep thresholds")
	f.StringSliceVar(&crypto, "crypto", []string{cryptoOnly, cryptoNo}, "crypto filters: only, no or any")
	f.StringSliceVar(&maxExposure, "max-exposure", []string{"75"}, "per-position caps as percent of total value")
	f.StringSliceVarP(&strategies, "strategy", "s", nil, "strategies to try (default every registered strategy)")
	return cmd
}

func (a *app) allPortfolioIDs(ctx context.Context) ([]int64, error) {
	portfolios, err := a.container.SimulationService.ListPortfolios(ctx)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(portfolios))
	for _, p := range portfolios {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

func finalValue(o simulation.Outcome) decimal.Decimal {
	if o.Result == nil || o.Result.FinalSnapshot == nil {
		return decimal.Zero
	}
	return o.Result.FinalSnapshot.TotalValue
}

func printRanking(cmd *cobra.Command, outcomes []simulation.Outcome) error {
	sort.SliceStable(outcomes, func(i, j int) bool {
		return finalValue(outcomes[i]).GreaterThan(finalValue(outcomes[j]))
	})

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RANK\tPORTFOLIO\tSTATUS\tDAYS\tTOTAL VALUE\tMAX DRAWDOWN\tERROR")

	failed := 0
	for i, o := range outcomes {
		status, days, drawdown, errText := "-", 0, "-", ""
		if o.Result != nil {
			status = string(o.Result.Status)
			days = o.Result.DaysStepped
			if o.Result.FinalSnapshot != nil {
				drawdown = fmt.Sprintf("%.2f%%", o.Result.FinalSnapshot.MaxDrawdown*100)
			}
		}
		if o.Err != nil {
			errText = o.Err.Error()
			failed++
		}
		fmt.Fprintf(w, "%d\t%d\t%s\t%d\t%s\t%s\t%s\n",
			i+1, o.PortfolioID, status, days, finalValue(o).StringFixed(2), drawdown, errText)
	}

	if err := w.Flush(); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d runs failed", failed, len(outcomes))
	}
	return nil
}
