package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aristath/simtrader/internal/utils"
	"github.com/spf13/cobra"
)

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Load market data from CSV files",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "bars <file.csv>",
			Short: "Import daily bars (date,symbol,open,high,low,close,volume)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.importFile(cmd.Context(), "bars", args[0], a.container.Importer.ImportBars)
			},
		},
		&cobra.Command{
			Use:   "products <file.csv>",
			Short: "Import product metadata (symbol,name,sector,dividend_rate,active)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.importFile(cmd.Context(), "products", args[0], a.container.Importer.ImportProducts)
			},
		},
	)

	return cmd
}

func (a *app) importFile(ctx context.Context, kind, path string, load func(context.Context, io.Reader) (int, error)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s file: %w", kind, err)
	}
	defer f.Close()

	done := utils.OperationTimer("import_"+kind, time.Minute, a.log)
	n, err := load(ctx, f)
	done(n)
	if err != nil {
		return fmt.Errorf("failed to import %s from %s: %w", kind, path, err)
	}

	a.log.Info().Str("kind", kind).Str("file", path).Int("rows", n).Msg("Import completed")
	return nil
}
