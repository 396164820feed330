package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"sitefeed/internal/app"
	"sitefeed/internal/config"
	"sitefeed/internal/filter"
	"sitefeed/internal/logging"
	"sitefeed/internal/render"
)

var (
	limit     int
	format    string
	sitePath  string
	include   []string
	exclude   []string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "feedgen",
	Short: "Build the feed once and print it",
	Long: `feedgen runs the listing-to-feed pipeline a single time and writes the
result to stdout. Configuration comes from the same environment variables
as the server; flags override the ones listed below.

Example usage:
  feedgen                           # RSS with the default item count
  feedgen -n 5 --format json        # five items as JSON Feed
  feedgen --site ./site.yaml --filterout '广告'`,
	Args:         cobra.NoArgs,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	f := rootCmd.Flags()
	f.IntVarP(&limit, "limit", "n", 0, "number of items (0 uses FEED_DEFAULT_LIMIT)")
	f.StringVarP(&format, "format", "f", "rss", "output format: rss, atom or json")
	f.StringVar(&sitePath, "site", "", "site profile YAML (overrides SITE_PROFILE)")
	f.StringArrayVar(&include, "filter", nil, "keep items whose title or content match this regexp (repeatable)")
	f.StringArrayVar(&exclude, "filterout", nil, "drop items whose title or content match this regexp (repeatable)")
	f.StringVar(&logFormat, "log-format", "", "log format on stderr: text or json")
}

func run(cmd *cobra.Command, _ []string) error {
	out, err := render.ParseFormat(format)
	if err != nil {
		return err
	}
	engine, err := filter.New(rules(include, exclude))
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if sitePath != "" {
		cfg.SiteProfile = sitePath
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	a, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	feed, err := a.Pipeline.Run(cmd.Context(), limit)
	if err != nil {
		return err
	}
	feed.Items = engine.Apply(feed.Items)

	w := bufio.NewWriter(cmd.OutOrStdout())
	if err := render.Write(w, feed, out); err != nil {
		return fmt.Errorf("render feed: %w", err)
	}
	return w.Flush()
}

func rules(include, exclude []string) []filter.Rule {
	out := make([]filter.Rule, 0, len(include)+len(exclude))
	for _, v := range include {
		out = append(out, filter.Rule{Kind: filter.IncludeRe, Scope: filter.ScopeAll, Value: v})
	}
	for _, v := range exclude {
		out = append(out, filter.Rule{Kind: filter.ExcludeRe, Scope: filter.ScopeAll, Value: v})
	}
	return out
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
