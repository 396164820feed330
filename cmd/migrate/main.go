package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"sitefeed/migrations"
)

var dbPath string

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the SQLite cache store schema",
	Long: `migrate applies the embedded schema migrations to the SQLite database
used by CACHE_BACKEND=sqlite.

Example usage:
  migrate up                    # Migrate to the latest version
  migrate status                # Show applied and pending migrations
  migrate --db ./data/cache.db down`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", envOrDefault("CACHE_SQLITE_PATH", "./data/cache.db"), "path to sqlite database")

	rootCmd.AddCommand(
		providerCmd("up", "Migrate to the latest version", func(ctx context.Context, p *goose.Provider) error {
			results, err := p.Up(ctx)
			printResults(results...)
			return err
		}),
		providerCmd("up-one", "Migrate one version up", func(ctx context.Context, p *goose.Provider) error {
			res, err := p.UpByOne(ctx)
			if res != nil {
				printResults(res)
			}
			return err
		}),
		providerCmd("down", "Roll back one version", func(ctx context.Context, p *goose.Provider) error {
			res, err := p.Down(ctx)
			if res != nil {
				printResults(res)
			}
			return err
		}),
		providerCmd("reset", "Roll back all migrations", func(ctx context.Context, p *goose.Provider) error {
			results, err := p.DownTo(ctx, 0)
			printResults(results...)
			return err
		}),
		providerCmd("status", "Show migration status", func(ctx context.Context, p *goose.Provider) error {
			statuses, err := p.Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				applied := "-"
				if s.State == goose.StateApplied {
					applied = s.AppliedAt.Format("2006-01-02 15:04:05")
				}
				fmt.Printf("%-8s %-20s %s\n", s.State, applied, s.Source.Path)
			}
			return nil
		}),
		providerCmd("version", "Show current version", func(ctx context.Context, p *goose.Provider) error {
			v, err := p.GetDBVersion(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("version %d\n", v)
			return nil
		}),
	)
}

func providerCmd(use, short string, run func(context.Context, *goose.Provider) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, err := sql.Open("sqlite", dbPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = db.Close() }()

			p, err := migrations.NewProvider(db)
			if err != nil {
				return err
			}
			if err := run(cmd.Context(), p); err != nil {
				return fmt.Errorf("%s: %w", use, err)
			}
			return nil
		},
	}
}

func printResults(results ...*goose.MigrationResult) {
	for _, r := range results {
		fmt.Println(r)
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
