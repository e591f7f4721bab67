package main

import (
	"fmt"
	"time"

	"github.com/aristath/simtrader/internal/modules/portfolio"
	"github.com/aristath/simtrader/internal/modules/simulation"
	"github.com/aristath/simtrader/internal/utils"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

func newPortfolioCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Create and inspect simulated portfolios",
	}
	cmd.AddCommand(newPortfolioCreateCmd(a), newPortfolioListCmd(a), newPortfolioShowCmd(a))
	return cmd
}

func newPortfolioCreateCmd(a *app) *cobra.Command {
	var (
		name          string
		strategy      string
		cash          string
		firstDate     string
		runLength     int
		reserve       string
		maxExposure   string
		dividendOnly  bool
		sectorsDenied []string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a portfolio with the default policy for a strategy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			policy := portfolio.DefaultPolicy(strategy)
			policy.DividendOnly = dividendOnly
			policy.SectorsForbidden = sectorsDenied

			var err error
			if reserve != "" {
				if policy.ReserveCashPercent, err = decimal.NewFromString(reserve); err != nil {
					return fmt.Errorf("invalid --reserve: %w", err)
				}
			}
			if maxExposure != "" {
				if policy.MaxExposurePercent, err = decimal.NewFromString(maxExposure); err != nil {
					return fmt.Errorf("invalid --max-exposure: %w", err)
				}
			}

			initial, err := decimal.NewFromString(cash)
			if err != nil {
				return fmt.Errorf("invalid --cash: %w", err)
			}

			var first time.Time
			if firstDate != "" {
				if first, err = utils.ParseDate(firstDate); err != nil {
					return err
				}
			}

			p, err := a.container.SimulationService.CreatePortfolio(cmd.Context(), simulation.CreateRequest{
				Name:          name,
				Policy:        policy,
				InitialCash:   initial,
				FirstDate:     first,
				RunLengthDays: runLength,
			})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&name, "name", "n", "", "portfolio name")
	f.StringVarP(&strategy, "strategy", "s", "", "strategy name")
	f.StringVar(&cash, "cash", "10000", "opening deposit")
	f.StringVar(&firstDate, "from", "", "first simulated date, YYYY-MM-DD (default today)")
	f.IntVar(&runLength, "days", 0, "run length in calendar days (default 365)")
	f.StringVar(&reserve, "reserve", "", "reserve cash percent")
	f.StringVar(&maxExposure, "max-exposure", "", "per-position cap as percent of total value")
	f.BoolVar(&dividendOnly, "dividend-only", false, "only buy dividend-paying products")
	f.StringSliceVar(&sectorsDenied, "forbid-sector", nil, "sector to exclude (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("strategy")

	return cmd
}

func newPortfolioListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List portfolios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			portfolios, err := a.container.SimulationService.ListPortfolios(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), portfolios)
		},
	}
}

func newPortfolioShowCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <portfolio-id>",
		Short: "Show a portfolio with its positions, progress and metrics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}
			detail, err := a.container.SimulationService.Portfolio(cmd.Context(), ids[0])
			if err != nil {
				return err
			}
			metrics, err := a.container.SimulationService.Metrics(cmd.Context(), ids[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]interface{}{
				"detail":  detail,
				"metrics": metrics,
			})
		},
	}
}
