package main

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/akhenakh/rrf/internal/batch"
	"github.com/akhenakh/rrf/internal/config"
	"github.com/akhenakh/rrf/internal/conformance"
	"github.com/akhenakh/rrf/internal/mcpserver"
	"github.com/akhenakh/rrf/internal/output"
	"github.com/akhenakh/rrf/internal/pgext"
	"github.com/akhenakh/rrf/internal/rrf"
	"github.com/akhenakh/rrf/internal/sqlhost"
	"github.com/akhenakh/rrf/internal/util"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Flags
	configPath string
	debugLog   string

	kFlag      int64
	limitFlag  int
	outputFlag string

	idsAFlag string
	idsBFlag string

	checkHost string
	pgDSN     string
	pgSchema  string

	// Global instances
	globalConfig *config.Config
)

// effectiveK prefers an explicit --k over the configured default.
func effectiveK(cmd *cobra.Command) int64 {
	if cmd.Flags().Changed("k") {
		return kFlag
	}
	return globalConfig.K
}

func effectiveOutput(cmd *cobra.Command) string {
	if cmd.Flags().Changed("output") {
		return outputFlag
	}
	return globalConfig.Output
}

func effectiveLimit(cmd *cobra.Command) int {
	if cmd.Flags().Changed("limit") {
		return limitFlag
	}
	return globalConfig.Limit
}

func applyPostgresFlags(cmd *cobra.Command) {
	if cmd.Flags().Changed("dsn") {
		globalConfig.Postgres.DSN = pgDSN
	}
	if cmd.Flags().Changed("schema") {
		globalConfig.Postgres.Schema = pgSchema
	}
}

func printRows(cmd *cobra.Command, rows []rrf.Row) {
	rrf.SortByScore(rows)
	rows = rrf.Top(rows, effectiveLimit(cmd))

	switch effectiveOutput(cmd) {
	case config.OutputJSON:
		if err := output.WriteJSON(os.Stdout, rows); err != nil {
			log.Fatal(err)
		}
	default:
		if len(rows) == 0 {
			fmt.Println("No rows.")
			return
		}
		fmt.Println(output.RowsTable(rows))
	}
}

func parseRanks(args []string) []sql.NullInt64 {
	ranks := make([]sql.NullInt64, len(args))
	for i, a := range args {
		r, err := util.ParseRank(a)
		if err != nil {
			log.Fatal(err)
		}
		ranks[i] = r
	}
	return ranks
}

// openScorer connects to the named host. The returned func releases it.
func openScorer(cfg *config.Config, name string) (conformance.Scorer, func() error, error) {
	switch name {
	case "core":
		return conformance.Core{}, func() error { return nil }, nil
	case "sqlite":
		host, err := sqlhost.Open(cfg.SQLite.DSN, cfg.SQLite.LoadVec)
		if err != nil {
			return nil, nil, err
		}
		return host, host.Close, nil
	case "postgres":
		client, err := pgext.Open(cfg.Postgres.DSN, cfg.Postgres.Schema)
		if err != nil {
			return nil, nil, err
		}
		return client, client.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown host %q (core, sqlite or postgres)", name)
	}
}

// runCheck prints the report for the named host and reports whether it passed.
// The host is closed before returning.
func runCheck(ctx context.Context, w io.Writer, cfg *config.Config, name string) (bool, error) {
	scorer, closeScorer, err := openScorer(cfg, name)
	if err != nil {
		return false, err
	}
	defer closeScorer()

	report := conformance.Run(ctx, scorer)
	fmt.Fprintf(w, "Host %s: %d passed, %d failed\n", name, report.Passed, len(report.Failures))
	for _, f := range report.Failures {
		fmt.Fprintf(w, "  FAIL %-20s %s\n", f.Case, f.Reason)
	}
	return report.OK(), nil
}

func main() {
	var rootCmd = &cobra.Command{
		Use:   "rrf",
		Short: "Reciprocal Rank Fusion scoring and list fusion",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			var err error

			// Load Config
			globalConfig, err = config.Load(configPath)
			if err != nil {
				log.Fatalf("Failed to load config: %v", err)
			}

			if cmd.Flags().Changed("debug-log") {
				globalConfig.DebugLog = debugLog
			}
			if globalConfig.DebugLog != "" {
				if err := util.InitDebugLogger(globalConfig.DebugLog); err != nil {
					log.Printf("Warning: Could not open debug log %s: %v", globalConfig.DebugLog, err)
				}
			}
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			util.CloseDebugLogger()
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ~/.config/rrf.yml)")
	rootCmd.PersistentFlags().StringVar(&debugLog, "debug-log", "", "Append debug output to this file ('-' for stderr)")

	addFusionFlags := func(cmd *cobra.Command) {
		cmd.Flags().Int64Var(&kFlag, "k", rrf.DefaultK, "Smoothing constant, must be positive")
		cmd.Flags().IntVar(&limitFlag, "limit", 0, "Max number of rows to print, 0 for all")
		cmd.Flags().StringVarP(&outputFlag, "output", "o", config.OutputTable, "Output format: table or json")
	}

	var cmdScore = &cobra.Command{
		Use:   "score RANK_A RANK_B",
		Short: "RRF score of one item ranked by two sources",
		Long:  "Prints 1/(k+RANK_A) + 1/(k+RANK_B). Use 'null' or '-' for a source that did not rank the item; NULL is printed when no source did.",
		Args:  cobra.ExactArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			ranks := parseRanks(args)
			score, err := rrf.Score(ranks[0], ranks[1], effectiveK(cmd))
			if err != nil {
				log.Fatal(err)
			}
			fmt.Println(util.FormatScore(score))
		},
	}
	cmdScore.Flags().Int64Var(&kFlag, "k", rrf.DefaultK, "Smoothing constant, must be positive")

	var cmdScore3 = &cobra.Command{
		Use:   "score3 RANK_A RANK_B RANK_C",
		Short: "RRF score of one item ranked by three sources",
		Args:  cobra.ExactArgs(3),
		Run: func(cmd *cobra.Command, args []string) {
			ranks := parseRanks(args)
			score, err := rrf.Score3(ranks[0], ranks[1], ranks[2], effectiveK(cmd))
			if err != nil {
				log.Fatal(err)
			}
			fmt.Println(util.FormatScore(score))
		},
	}
	cmdScore3.Flags().Int64Var(&kFlag, "k", rrf.DefaultK, "Smoothing constant, must be positive")

	var cmdFuse = &cobra.Command{
		Use:     "fuse",
		Short:   "Fuse two ranked id lists",
		Example: "  rrf fuse --a 10,20,30 --b 20,40 --k 60",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			idsA, err := util.ParseIDList(idsAFlag)
			if err != nil {
				log.Fatalf("--a: %v", err)
			}
			idsB, err := util.ParseIDList(idsBFlag)
			if err != nil {
				log.Fatalf("--b: %v", err)
			}

			rows, err := rrf.Fuse(idsA, idsB, effectiveK(cmd))
			if err != nil {
				log.Fatal(err)
			}
			printRows(cmd, rows)
		},
	}
	cmdFuse.Flags().StringVar(&idsAFlag, "a", "", "Comma separated ids ranked by the first source, best first")
	cmdFuse.Flags().StringVar(&idsBFlag, "b", "", "Comma separated ids ranked by the second source, best first")
	addFusionFlags(cmdFuse)

	var cmdBatch = &cobra.Command{
		Use:   "batch FILE",
		Short: "Fuse every request of a YAML stream (optionally zstd compressed)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			results, err := batch.ProcessFile(args[0], effectiveK(cmd))
			if err != nil {
				log.Fatal(err)
			}

			failed := 0
			for _, res := range results {
				if res.Err != nil {
					log.Printf("Error in request %s: %v", res.Name, res.Err)
					failed++
					continue
				}
				if effectiveOutput(cmd) == config.OutputTable {
					fmt.Printf("\033[1;36m%s\033[0m (k=%d)\n", res.Name, res.K)
				}
				printRows(cmd, res.Rows)
			}
			if failed > 0 {
				log.Fatalf("%d of %d requests failed", failed, len(results))
			}
		},
	}
	addFusionFlags(cmdBatch)

	var cmdSQL = &cobra.Command{
		Use:          "sql QUERY [ARGS...]",
		Short:        "Run SQL against SQLite with rrf, rrf3 and rrf_fuse registered",
		Example:      `  rrf sql "SELECT rrf(1, 2, 60)"` + "\n" + `  rrf sql "SELECT json_extract(value, '$.id') FROM json_each(rrf_fuse('[10,20]', '[20]'))"` + "\n" + `  rrf sql "SELECT rrf(?, ?, 60)" 1 2`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			host, err := sqlhost.Open(globalConfig.SQLite.DSN, globalConfig.SQLite.LoadVec)
			if err != nil {
				return err
			}
			defer host.Close()

			queryArgs := make([]any, 0, len(args)-1)
			for _, a := range args[1:] {
				queryArgs = append(queryArgs, a)
			}
			cols, cells, err := host.Query(cmd.Context(), args[0], queryArgs...)
			if err != nil {
				return err
			}
			fmt.Println(output.Grid(cols, cells))
			return nil
		},
	}

	var cmdCheck = &cobra.Command{
		Use:          "check",
		Short:        "Verify a host of the rrf functions against the built-in implementation",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyPostgresFlags(cmd)

			ok, err := runCheck(cmd.Context(), os.Stdout, globalConfig, checkHost)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("host %s failed the checks", checkHost)
			}
			return nil
		},
	}
	cmdCheck.Flags().StringVar(&checkHost, "host", "sqlite", "Host to check: core, sqlite or postgres")
	cmdCheck.Flags().StringVar(&pgDSN, "dsn", "", "PostgreSQL connection string")
	cmdCheck.Flags().StringVar(&pgSchema, "schema", "", "PostgreSQL schema holding the functions")

	var cmdPG = &cobra.Command{
		Use:   "pg",
		Short: "PostgreSQL host commands",
	}

	var cmdPGInstall = &cobra.Command{
		Use:          "install",
		Short:        "Install rrf, rrf3 and rrf_fuse as PostgreSQL functions",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			applyPostgresFlags(cmd)

			client, err := pgext.Open(globalConfig.Postgres.DSN, globalConfig.Postgres.Schema)
			if err != nil {
				return err
			}
			defer client.Close()

			if err := client.Install(cmd.Context()); err != nil {
				return err
			}
			fmt.Printf("Installed rrf functions into schema %s\n", client.Schema)
			return nil
		},
	}
	cmdPGInstall.Flags().StringVar(&pgDSN, "dsn", "", "PostgreSQL connection string (default postgres.dsn or DATABASE_URL)")
	cmdPGInstall.Flags().StringVar(&pgSchema, "schema", "", "Target schema (default postgres.schema)")

	var cmdPGSQL = &cobra.Command{
		Use:   "sql",
		Short: "Print the function definitions instead of installing them",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Print(pgext.InstallSQL())
		},
	}
	cmdPG.AddCommand(cmdPGInstall, cmdPGSQL)

	var cmdServer = &cobra.Command{
		Use:   "server",
		Short: "Start MCP server",
		Run: func(cmd *cobra.Command, args []string) {
			mcpSrv := mcpserver.NewServer(globalConfig.K, globalConfig.Limit)

			log.SetOutput(os.Stderr)
			if err := mcpSrv.Start(); err != nil {
				log.Fatal(err)
			}
		},
	}

	var cmdConfig = &cobra.Command{
		Use:   "config",
		Short: "Show or initialize the configuration",
	}

	var cmdConfigShow = &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Run: func(cmd *cobra.Command, args []string) {
			data, err := yaml.Marshal(globalConfig)
			if err != nil {
				log.Fatal(err)
			}
			fmt.Print(string(data))

			host, err := sqlhost.Open(globalConfig.SQLite.DSN, globalConfig.SQLite.LoadVec)
			if err != nil {
				log.Printf("Warning: SQLite host unavailable: %v", err)
				return
			}
			defer host.Close()
			if globalConfig.SQLite.LoadVec {
				if v, err := host.VecVersion(context.Background()); err == nil {
					fmt.Printf("# sqlite-vec %s\n", v)
				}
			}
		},
	}

	var cmdConfigInit = &cobra.Command{
		Use:   "init",
		Short: "Write the default configuration file",
		Run: func(cmd *cobra.Command, args []string) {
			if err := config.Save(configPath, config.Default()); err != nil {
				log.Fatal(err)
			}
			path := configPath
			if path == "" {
				path, _ = config.GetConfigPath()
			}
			fmt.Printf("Wrote default configuration to %s\n", path)
		},
	}
	cmdConfig.AddCommand(cmdConfigShow, cmdConfigInit)

	rootCmd.AddCommand(cmdScore, cmdScore3, cmdFuse, cmdBatch, cmdSQL, cmdCheck, cmdPG, cmdServer, cmdConfig)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
