package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"

	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/app"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/config"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/domain"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/internal/service"
	"github.com/InstanceChile/Plan-Demanda-Automatizacion/pkg/logger"
)

type appKey struct{}

func main() {
	cfg := config.Load()
	logger.Setup("debug", cfg.LogLevel)

	cliApp := &cli.App{
		Name:  "planctl",
		Usage: "Operate the demand plan store: migrations, reconciliation passes and file loads",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "driver",
				Usage:   "Record store driver (postgres, pgx, sqlite3, memory)",
				Value:   "pgx",
				EnvVars: []string{"STORE_DRIVER"},
			},
			&cli.StringFlag{
				Name:    "db-url",
				Usage:   "Database connection string",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
				Value: cfg.LogLevel,
			},
		},
		Before: initApp,
		After:  closeApp,
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Create the tables and indexes if they do not exist",
				Action: runMigrate,
			},
			{
				Name:  "sales",
				Usage: "Run the sales pass from a CSV file or from the configured sales source",
				Flags: []cli.Flag{
					weekFlag(), nodeFlag(),
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Sales extract CSV"},
					&cli.BoolFlag{Name: "sync", Usage: "Pull the extract from SALES_SOURCE_DSN instead of a file"},
				},
				Action: runSales,
			},
			{
				Name:   "stock",
				Usage:  "Run the stock pass with the snapshot of the week's Monday",
				Flags:  []cli.Flag{weekFlag(), nodeFlag()},
				Action: runStock,
			},
			{
				Name:   "sweep",
				Usage:  "Fill null derived fields of a cohort",
				Flags:  []cli.Flag{weekFlag(), nodeFlag()},
				Action: runSweep,
			},
			{
				Name:   "relative-errors",
				Usage:  "Write the legacy relative error of a week",
				Flags:  []cli.Flag{weekFlag(), &cli.StringFlag{Name: "node", Usage: "Limit to one node"}},
				Action: runRelativeErrors,
			},
			{
				Name:  "import-stock",
				Usage: "Load a stock snapshot from a CSV/XLSX file or the latest file of a Drive folder",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Local CSV or XLSX file"},
					&cli.StringFlag{Name: "drive-folder", Usage: "Drive folder id or path", EnvVars: []string{"GOOGLE_DRIVE_STOCK_FOLDER"}},
					&cli.StringFlag{Name: "date", Usage: "Snapshot date (YYYY-MM-DD or DD-MM-YYYY), overrides the file"},
					&cli.StringFlag{Name: "country", Usage: "Snapshot country, overrides the file"},
				},
				Action: runImportStock,
			},
			{
				Name:  "plan",
				Usage: "Load a demand plan CSV",
				Flags: []cli.Flag{
					weekFlag(), nodeFlag(),
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Plan CSV", Required: true},
				},
				Action: runPlan,
			},
			{
				Name:  "scenarios",
				Usage: "Load a scenario catalog CSV",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "file", Aliases: []string{"f"}, Usage: "Scenario catalog CSV", Required: true},
				},
				Action: runScenarios,
			},
			{
				Name:  "runs",
				Usage: "List recent reconciliation runs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "week", Usage: "Filter by week (YYYYWW)"},
					&cli.StringFlag{Name: "node", Usage: "Filter by node"},
					&cli.IntFlag{Name: "limit", Value: 20},
				},
				Action: runRuns,
			},
		},
	}

	if err := cliApp.Run(os.Args); err != nil {
		logger.Log.Fatal().Err(err).Msg("planctl failed")
	}
}

func weekFlag() *cli.IntFlag {
	return &cli.IntFlag{Name: "week", Aliases: []string{"w"}, Usage: "Week in YYYYWW form", Required: true}
}

func nodeFlag() *cli.StringFlag {
	return &cli.StringFlag{Name: "node", Aliases: []string{"n"}, Usage: "Sales channel (defaults to RECONCILE_DEFAULT_NODE)"}
}

func initApp(c *cli.Context) error {
	logger.SetLevel(c.String("log-level"))

	cfg := *config.Load()
	cfg.Database.Driver = c.String("driver")
	if url := c.String("db-url"); url != "" {
		cfg.Database.URL = url
	}

	a, err := app.New(c.Context, &cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("failed to initialize: %v", err), 2)
	}
	c.Context = context.WithValue(c.Context, appKey{}, a)
	return nil
}

func closeApp(c *cli.Context) error {
	if a, ok := c.Context.Value(appKey{}).(*app.App); ok && a != nil {
		return a.Close()
	}
	return nil
}

func appFrom(c *cli.Context) *app.App {
	return c.Context.Value(appKey{}).(*app.App)
}

func weekArg(c *cli.Context) (domain.Week, error) {
	week := domain.Week(c.Int("week"))
	if err := week.Validate(); err != nil {
		return 0, err
	}
	return week, nil
}

func runMigrate(c *cli.Context) error {
	a := appFrom(c)
	if a.DB == nil {
		return fmt.Errorf("migrate needs a SQL store, got STORE_DRIVER=%s", a.Config.Database.Driver)
	}
	if err := a.DB.Migrate(c.Context); err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, "schema up to date")
	return nil
}

func runSales(c *cli.Context) error {
	a := appFrom(c)
	week, err := weekArg(c)
	if err != nil {
		return err
	}

	var result *domain.SalesResult
	switch {
	case c.Bool("sync"):
		result, err = a.Reconcile.SyncSales(c.Context, week, c.String("node"))
	case c.String("file") != "":
		path := c.String("file")
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return fmt.Errorf("read %s: %w", path, rerr)
		}
		result, err = a.Reconcile.UploadSales(c.Context, week, c.String("node"), filepath.Base(path), data)
	default:
		return fmt.Errorf("either --file or --sync is required")
	}
	if err != nil {
		return explain(err)
	}

	fmt.Fprintln(c.App.Writer, result.Message())
	printErrors(c, result.ErrorMessages())
	return nil
}

func runStock(c *cli.Context) error {
	week, err := weekArg(c)
	if err != nil {
		return err
	}
	result, err := appFrom(c).Reconcile.UpdateStock(c.Context, week, c.String("node"))
	if err != nil {
		return explain(err)
	}
	fmt.Fprintln(c.App.Writer, result.Message())
	printErrors(c, result.ErrorMessages())
	return nil
}

func runSweep(c *cli.Context) error {
	week, err := weekArg(c)
	if err != nil {
		return err
	}
	result, err := appFrom(c).Reconcile.Sweep(c.Context, week, c.String("node"))
	if err != nil {
		return explain(err)
	}
	fmt.Fprintf(c.App.Writer, "%d of %d records completed\n", result.Updated, result.Scanned)
	printErrors(c, result.ErrorMessages())
	return nil
}

func runRelativeErrors(c *cli.Context) error {
	week, err := weekArg(c)
	if err != nil {
		return err
	}
	result, err := appFrom(c).Reconcile.RelativeErrors(c.Context, week, c.String("node"))
	if err != nil {
		return explain(err)
	}
	fmt.Fprintf(c.App.Writer, "%d records, average error %.4f\n", result.Processed, result.AvgError)
	return nil
}

func runImportStock(c *cli.Context) error {
	a := appFrom(c)
	date, country := c.String("date"), c.String("country")

	var (
		result *service.StockImportResult
		err    error
	)
	if path := c.String("file"); path != "" {
		data, rerr := os.ReadFile(path)
		if rerr != nil {
			return fmt.Errorf("read %s: %w", path, rerr)
		}
		result, err = a.StockImport.ImportFile(c.Context, filepath.Base(path), data, date, country)
	} else {
		result, err = a.StockImport.ImportFromDrive(c.Context, c.String("drive-folder"), date, country)
	}
	if err != nil {
		return explain(err)
	}

	for _, load := range result.Loads {
		fmt.Fprintf(c.App.Writer, "%s %s: %d rows\n", load.Country, load.Date, load.Rows)
	}
	fmt.Fprintf(c.App.Writer, "%s: %d rows loaded\n", result.File, result.Total)
	return nil
}

func runPlan(c *cli.Context) error {
	week, err := weekArg(c)
	if err != nil {
		return err
	}
	path := c.String("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	result, err := appFrom(c).Plan.UploadPlan(c.Context, week, c.String("node"), filepath.Base(path), data)
	if err != nil {
		return explain(err)
	}
	fmt.Fprintln(c.App.Writer, result.Message())
	printErrors(c, result.Errors)
	return nil
}

func runScenarios(c *cli.Context) error {
	path := c.String("file")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	result, err := appFrom(c).Plan.UploadScenarios(c.Context, filepath.Base(path), data)
	if err != nil {
		return explain(err)
	}
	fmt.Fprintln(c.App.Writer, result.Message())
	printErrors(c, result.LineErrors)
	printErrors(c, result.DBErrors)
	return nil
}

func runRuns(c *cli.Context) error {
	runs, err := appFrom(c).Reconcile.Runs(c.Context, domain.Week(c.Int("week")), c.String("node"), c.Int("limit"))
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Fprintf(c.App.Writer, "%s\t%s\t%d\t%s\t%s\tupdated=%d inserted=%d zeroed=%d failed=%d\t%dms\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Pass, int(r.Week), r.Node, r.Status,
			r.Updated, r.Inserted, r.Zeroed, r.Failed, r.DurationMS)
	}
	return nil
}

// explain turns an expected failure into its user-facing message.
func explain(err error) error {
	if pe, ok := domain.AsPassError(err); ok {
		return cli.Exit(fmt.Sprintf("%s (%s)", pe.Message, pe.Type), 1)
	}
	return err
}

func printErrors(c *cli.Context, msgs []string) {
	for _, m := range msgs {
		fmt.Fprintln(c.App.ErrWriter, "  - "+m)
	}
}
