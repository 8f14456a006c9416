package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/shrey-shah842/phishguard/internal/config"
	"github.com/shrey-shah842/phishguard/internal/risk"
	"github.com/shrey-shah842/phishguard/internal/verdict"
)

var errWarned = errors.New("one or more warnings raised")

var checkFlags struct {
	clientConfig
	serverSide bool
	summary    bool
	failOnWarn bool
	timeout    time.Duration
}

var checkCmd = &cobra.Command{
	Use:   "check <url>...",
	Short: "Evaluate URLs and print verdicts as they are reached",
	Long: `Evaluate one or more URLs. Each verdict is printed to stdout as a JSON line
as soon as it is reached; warnings are listed on stderr at the end.

Modes:
  (default)          → in-process service context
  --api-url          → page side runs here, lookups go to a remote server
  --server-side      → the remote server runs the whole evaluation`,
	Args: cobra.MinimumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	addClientFlags(checkCmd, &checkFlags.clientConfig)
	checkCmd.Flags().BoolVar(&checkFlags.serverSide, "server-side", false, "run the evaluation on the remote server (requires --api-url)")
	checkCmd.Flags().BoolVar(&checkFlags.summary, "summary", false, "print the evaluation summary after each URL")
	checkCmd.Flags().BoolVar(&checkFlags.failOnWarn, "fail-on-warning", false, "exit non-zero when any warning is raised")
	checkCmd.Flags().DurationVar(&checkFlags.timeout, "timeout", 0, "overall deadline per URL (0 for none)")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if checkFlags.serverSide && !checkFlags.remote() {
		return fmt.Errorf("--server-side requires --api-url")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	board := verdict.NewBoard(cfg.Warning.DismissAfter, nil)
	var warned atomic.Bool
	presenter := verdict.Multi{
		verdict.NewWriterPresenter(os.Stdout),
		board,
		verdict.PresenterFunc(func(_ context.Context, v verdict.Verdict) {
			if v.Warns() {
				warned.Store(true)
			}
		}),
	}

	if checkFlags.serverSide {
		if err := checkServerSide(ctx, args, presenter); err != nil {
			return err
		}
		return reportWarnings(board, warned.Load())
	}

	evaluate, closeFn, err := checkEvaluator(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	for _, rawURL := range args {
		evalCtx, cancel := withOptionalTimeout(ctx, checkFlags.timeout)
		eval := evaluate(evalCtx, rawURL, presenter)
		cancel()
		if checkFlags.summary {
			printSummary(eval)
		}
		if ctx.Err() != nil {
			break
		}
	}
	return reportWarnings(board, warned.Load())
}

// checkEvaluator returns the evaluator for the local or remote-bus mode.
func checkEvaluator(ctx context.Context, cfg *config.Config) (func(context.Context, string, verdict.Presenter) risk.Evaluation, func(), error) {
	if checkFlags.remote() {
		c, err := checkFlags.newClient()
		if err != nil {
			return nil, nil, err
		}
		o := newOrchestrator(cfg, remoteWhitelist{c: c}, c, logger)
		return o.Evaluate, func() {}, nil
	}

	st, err := openStack(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return st.orchestrator().Evaluate, st.Close, nil
}

func checkServerSide(ctx context.Context, args []string, p verdict.Presenter) error {
	c, err := checkFlags.newClient()
	if err != nil {
		return err
	}
	for _, rawURL := range args {
		evalCtx, cancel := withOptionalTimeout(ctx, checkFlags.timeout)
		resp, err := c.Evaluate(evalCtx, rawURL)
		cancel()
		if err != nil {
			return fmt.Errorf("evaluate %s: %w", rawURL, err)
		}
		for _, v := range resp.Verdicts {
			p.Present(ctx, v)
		}
		if checkFlags.summary {
			printSummary(resp)
		}
	}
	return nil
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func printSummary(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return
	}
	fmt.Fprintln(os.Stderr, string(b))
}

// reportWarnings lists the warnings still on the board. Warnings that were
// already dismissed still count for --fail-on-warning.
func reportWarnings(board *verdict.Board, warned bool) error {
	for _, w := range board.Active() {
		fmt.Fprintf(os.Stderr, "WARNING %s: %s\n", w.Verdict.URL, w.Message)
	}
	if checkFlags.failOnWarn && warned {
		return errWarned
	}
	return nil
}
