package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/logger"
)

// Runner runs the pipeline for one symbol. *Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, symbol string) (RunResult, error)
}

// BatchReport lists one RunResult per requested symbol, in request order.
type BatchReport struct {
	Results  []RunResult
	Started  time.Time
	Finished time.Time
}

// Succeeded counts runs that reached StageDone.
func (r BatchReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil && !res.Skipped {
			n++
		}
	}
	return n
}

// Failed returns the runs that returned an error.
func (r BatchReport) Failed() []RunResult {
	var out []RunResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// BatchRunner runs independent per-symbol pipelines.
//
// Policies:
//   - best-effort: every symbol runs; failures are collected and returned together.
//   - fail-fast: after the first failure no new symbol starts. Runs already in flight
//     finish; the rest are reported as Skipped.
type BatchRunner struct {
	runner      Runner
	policy      string
	parallelism int
}

// NewBatchRunner validates policy and clamps parallelism to at least 1.
func NewBatchRunner(r Runner, policy string, parallelism int) (*BatchRunner, error) {
	switch policy {
	case "":
		policy = config.PolicyBestEffort
	case config.PolicyBestEffort, config.PolicyFailFast:
	default:
		return nil, fmt.Errorf("unknown batch policy %q", policy)
	}
	if parallelism < 1 {
		parallelism = 1
	}
	return &BatchRunner{runner: r, policy: policy, parallelism: parallelism}, nil
}

// Run processes symbols and returns the combined error of every failed run (nil if none).
func (b *BatchRunner) Run(ctx context.Context, symbols []string) (BatchReport, error) {
	report := BatchReport{Results: make([]RunResult, len(symbols)), Started: time.Now()}
	errs := make([]error, len(symbols))
	var stopped atomic.Bool

	logger.L().Info().
		Strs("symbols", symbols).
		Str("policy", b.policy).
		Int("parallelism", b.parallelism).
		Msg("batch start")

	// Goroutines never return an error so one failure does not cancel siblings.
	var g errgroup.Group
	g.SetLimit(b.parallelism)
	for i, symbol := range symbols {
		g.Go(func() error {
			if stopped.Load() || ctx.Err() != nil {
				report.Results[i] = RunResult{Symbol: symbol, Skipped: true}
				return nil
			}
			res, err := b.runner.Run(ctx, symbol)
			res.Symbol = symbol
			report.Results[i] = res
			if err != nil {
				errs[i] = fmt.Errorf("%s: %w", symbol, err)
				if b.policy == config.PolicyFailFast {
					stopped.Store(true)
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	report.Finished = time.Now()
	err := multierr.Combine(errs...)

	skipped := 0
	for _, res := range report.Results {
		if res.Skipped {
			skipped++
		}
	}
	ev := logger.L().Info()
	if err != nil {
		ev = logger.L().Warn()
	}
	ev.Int("total", len(symbols)).
		Int("succeeded", report.Succeeded()).
		Int("failed", len(report.Failed())).
		Int("skipped", skipped).
		Dur("elapsed", report.Finished.Sub(report.Started)).
		Msg("batch finished")
	return report, err
}
