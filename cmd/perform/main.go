// Command perform runs a handful of demo tasks through a LocalRunner built
// from a YAML config, then prints every run with its journaled events.
//
//	perform -config perform.yaml -runs 3
//	perform -print-config > perform.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync/atomic"
	"time"

	"github.com/jfet97/perform"
	"github.com/jfet97/perform/internal/config"
	"github.com/jfet97/perform/internal/engine"
	"github.com/jfet97/perform/pkg/api"
)

func main() {
	configPath := flag.String("config", "", "path to perform.yaml (defaults apply when empty)")
	runs := flag.Int("runs", 1, "how many times to submit each demo task")
	timeout := flag.Duration("timeout", 30*time.Second, "give up waiting for runs after this long")
	printConfig := flag.Bool("print-config", false, "print the default configuration and exit")
	flag.Parse()

	if *printConfig {
		fmt.Print(config.DefaultYAML())
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		die("load config: %v", err)
	}
	logger := config.NewLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	journal, err := config.OpenJournal(ctx, cfg.Journal)
	if err != nil {
		die("open journal: %v", err)
	}
	defer func() {
		if err := journal.Close(context.Background()); err != nil {
			logger.Warn("close journal", "error", err)
		}
	}()

	metrics := &api.BasicMetrics{}
	eng := engine.NewEngine(journal.Persistence,
		engine.WithLogger(logger),
		engine.WithBackoff(cfg.Backoff()),
		engine.WithObserver(perform.NewCompositeObserver(
			perform.NewLoggingObserver(logger),
			metrics,
		)),
	)

	runner := perform.NewLocalRunner(
		perform.WithRunnerEngine(eng),
		perform.WithQueueCapacity(cfg.Runner.QueueCapacity),
		perform.WithRunnerLogger(logger),
	)
	if err := runner.StartWorkers(ctx, cfg.Runner.Workers); err != nil {
		die("start workers: %v", err)
	}
	defer runner.Stop()

	var results []<-chan *perform.Run
	for i := 0; i < *runs; i++ {
		chans, err := runner.SubmitAll(ctx, demoTasks()...)
		if err != nil {
			die("submit: %v", err)
		}
		results = append(results, chans...)
	}

	for _, ch := range results {
		select {
		case run := <-ch:
			printRun(ctx, eng, run)
		case <-ctx.Done():
			die("waiting for runs: %v", ctx.Err())
		}
	}

	snap := metrics.Snapshot()
	fmt.Printf("\njournal=%s runs=%d completed=%d absorbed=%d restarts=%d\n",
		journal.Driver, snap.RunsStarted, snap.RunsCompleted, snap.RunsAbsorbed, snap.Restarts)
}

// demoTasks returns one task per recovery strategy.
func demoTasks() []perform.Ready {
	var flaky atomic.Int32
	retry := perform.Async(func(ctx context.Context, y perform.Yielder) error {
		y.Yield(func() (any, error) {
			if flaky.Add(1) < 3 {
				return nil, errors.New("quote service timed out")
			}
			return 42.5, nil
		})
		return nil
	}, perform.WithName("fetch-quote")).
		Catch(func(ctx context.Context, ec perform.ErrorContext, c perform.Controls) {
			_ = c.Retry(5)
		})

	fallback := perform.Async(func(ctx context.Context, y perform.Yielder) error {
		rate, ok := perform.Await(y, func(ctx context.Context) (float64, error) {
			return 0, errors.New("fx feed offline")
		})
		if !ok || rate <= 0 {
			return fmt.Errorf("bad rate %v", rate)
		}
		return nil
	}, perform.WithName("convert-currency")).
		Catch(func(ctx context.Context, ec perform.ErrorContext, c perform.Controls) {
			c.Recover(1.08)
		})

	var starts atomic.Int32
	restart := perform.Async(func(ctx context.Context, y perform.Yielder) error {
		if starts.Add(1) == 1 {
			return errors.New("stale session")
		}
		y.Yield(time.Now())
		return nil
	}, perform.WithName("sync-session")).
		Catch(func(ctx context.Context, ec perform.ErrorContext, c perform.Controls) {
			c.Restart()
		}).
		Finally(func(ctx context.Context) {})

	absorb := perform.Async(func(ctx context.Context, y perform.Yielder) error {
		y.Yield(func() error {
			if rand.Intn(2) == 0 {
				return errors.New("disk full")
			}
			return nil
		})
		return nil
	}, perform.WithName("write-report")).
		Catch(func(ctx context.Context, ec perform.ErrorContext, c perform.Controls) {})

	return []perform.Ready{retry, fallback, restart, absorb}
}

func printRun(ctx context.Context, eng perform.Engine, run *perform.Run) {
	fmt.Printf("%s %-16s %-9s attempts=%d retries=%d recoveries=%d",
		run.ID, run.Name, run.Status, run.Attempts, run.Retries, run.Recoveries)
	if run.Err != nil {
		fmt.Printf(" err=%q", run.Err)
	}
	fmt.Println()

	events, err := eng.ListEvents(ctx, run.ID)
	if err != nil {
		fmt.Printf("  events unavailable: %v\n", err)
		return
	}
	for _, ev := range events {
		fmt.Printf("  #%d %-16s %s\n", ev.Attempt, ev.Type, ev.Detail)
	}
}

func die(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
