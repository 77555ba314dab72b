// 单次采集的命令行入口：适合手动触发或由外部定时任务调用
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/LJTian/LingoNews/internal/app"
	"github.com/LJTian/LingoNews/internal/collector"
	"github.com/LJTian/LingoNews/internal/config"
	"github.com/LJTian/LingoNews/internal/fundus"
	"github.com/LJTian/LingoNews/internal/logger"
	"github.com/LJTian/LingoNews/internal/scheduler"
)

// exitStartup 数据库等基础设施不可用
const exitStartup = 1

type flags struct {
	sources []string
	mode    string
	max     int
	dryRun  bool
	verbose bool
	timeout time.Duration
	workers int
}

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout))
}

func execute(args []string, out io.Writer) int {
	code := scheduler.ExitOK
	cmd := newRootCmd(out, &code)
	cmd.SetArgs(args)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if code == scheduler.ExitOK {
			code = exitCodeFor(err)
		}
	}
	return code
}

func newRootCmd(out io.Writer, code *int) *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Fetch English news articles and store them for learners",
		Long: `crawl runs one ingestion pass over the selected sources.

Example usage:
  crawl --source all                 # every traditional source
  crawl --source BBC,CNN --max 5     # two sources, five articles each
  crawl --source uk.BBC --mode fundus --dry-run`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := applyFlags(cfg, cmd, f); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			report, err := runCrawl(ctx, cfg, f)
			if err != nil {
				return err
			}
			printReport(out, report)
			*code = report.ExitCode()
			return nil
		},
	}

	fl := cmd.Flags()
	fl.StringSliceVarP(&f.sources, "source", "s", []string{collector.SourceAll}, "source ids, comma separated, or \"all\"")
	fl.StringVarP(&f.mode, "mode", "m", "", "traditional, fundus or both (default from CRAWL_MODE)")
	fl.IntVarP(&f.max, "max", "n", 0, "max articles per source (default from MAX_ARTICLES_PER_SOURCE)")
	fl.BoolVar(&f.dryRun, "dry-run", false, "fetch and extract but do not write")
	fl.BoolVarP(&f.verbose, "verbose", "v", false, "debug logging")
	fl.DurationVar(&f.timeout, "timeout", 0, "whole-run deadline (default from RUN_TIMEOUT)")
	fl.IntVarP(&f.workers, "workers", "w", 0, "parallel source workers (default from WORKER_POOL)")

	cmd.AddCommand(newSourcesCmd(out))
	return cmd
}

// applyFlags 命令行显式给出的参数覆盖配置，覆盖后重新校验
func applyFlags(cfg *config.Config, cmd *cobra.Command, f flags) error {
	p := &cfg.Pipeline
	if cmd.Flags().Changed("mode") {
		mode, err := config.ParseMode(f.mode)
		if err != nil {
			return err
		}
		p.Mode = mode
	}
	if cmd.Flags().Changed("max") {
		p.MaxArticlesPerSource = f.max
	}
	if cmd.Flags().Changed("timeout") {
		p.RunTimeout = f.timeout
	}
	if cmd.Flags().Changed("workers") {
		p.WorkerPool = f.workers
	}
	if f.dryRun {
		p.DryRun = true
	}
	if f.verbose {
		cfg.LogLevel = "debug"
	}
	return cfg.Validate()
}

func runCrawl(ctx context.Context, cfg *config.Config, f flags) (*scheduler.RunReport, error) {
	log := logger.New(logger.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Verbose: f.verbose})

	a, err := app.Build(ctx, cfg, nil, log)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}()

	return a.Coordinator.Run(ctx, a.DefaultRequest(f.sources))
}

func exitCodeFor(err error) int {
	var ce *config.ConfigError
	switch {
	case errors.As(err, &ce):
		return scheduler.ExitConfig
	case errors.Is(err, context.Canceled):
		return scheduler.ExitCancelled
	default:
		return exitStartup
	}
}

func printReport(w io.Writer, r *scheduler.RunReport) {
	fmt.Fprintf(w, "run %s (%s)\n", r.RunID, r.Status())
	fmt.Fprintf(w, "%-16s %9s %7s %5s %7s %6s\n", "SOURCE", "ATTEMPTED", "YIELDED", "SAVED", "SKIPPED", "ERRORS")
	for _, s := range r.Sources {
		fmt.Fprintf(w, "%-16s %9d %7d %5d %7d %6d", s.Source, s.Attempted, s.Yielded, s.Saved, s.Skipped, s.Errors)
		if s.Failed {
			fmt.Fprintf(w, "  failed: %s", s.Err)
		}
		fmt.Fprintln(w)
	}
	t := r.Totals
	fmt.Fprintf(w, "saved=%d duplicate_url=%d duplicate_title=%d too_short=%d recent_cap=%d dry_run=%d errors=%d\n",
		t.Saved, t.DuplicateURL, t.DuplicateTitle, t.TooShort, t.RecentCap, t.DryRun, t.Errors)
}

func newSourcesCmd(out io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "List the available source ids",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintln(out, "traditional:")
			for _, s := range collector.Builtin(collector.Deps{}) {
				fmt.Fprintln(out, "  "+s.Name())
			}
			fmt.Fprintln(out, "fundus:")
			for _, p := range fundus.Publishers() {
				fmt.Fprintf(out, "  %-16s %s\n", p.ID, p.Name)
			}
		},
	}
}
