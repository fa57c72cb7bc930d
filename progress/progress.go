// Package progress renders an interactive progress bar and the final batch
// summary for runs whose message total is known upfront.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/benoit-getinside/archive-news/stats"
)

// Bar tracks the archival batch on an interactive progress bar.
type Bar struct {
	pb      *pterm.ProgressbarPrinter
	total   int
	mu      sync.Mutex
	enabled bool
}

// New creates a progress bar when logLevel is "info"; other levels keep the
// plain log stream readable. A disabled bar accepts updates and does nothing.
func New(total int, logLevel string) *Bar {
	enabled := logLevel == "info" && total > 0

	bar := &Bar{
		total:   total,
		enabled: enabled,
	}

	if enabled {
		pb, _ := pterm.DefaultProgressbar.
			WithTotal(total).
			WithTitle("Archiving newsletters").
			Start()
		bar.pb = pb

		pterm.Info.Printf("Messages to process: %d\n", total)
		pterm.Println()
	}

	return bar
}

// Enabled reports whether the bar renders anything.
func (b *Bar) Enabled() bool {
	return b.enabled
}

// Update advances the bar for each message that reached a terminal state.
func (b *Bar) Update(evt stats.Event) {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch evt.Type {
	case stats.EventTypeArchived, stats.EventTypeSkipped, stats.EventTypeDryRun:
		b.pb.Increment()
		if evt.Subject != "" {
			display := evt.Subject
			if len(display) > 40 {
				display = display[:37] + "..."
			}
			b.pb.UpdateTitle("Archived: " + display)
		}
	case stats.EventTypeAssetFailed:
		// Asset failures are per-image, the entry still completes.
	case stats.EventTypeError:
		if evt.Err != nil {
			pterm.Error.Printf("Error: %v\n", evt.Err)
		}
	}
}

// Stop finalizes the progress bar.
func (b *Bar) Stop() {
	if !b.enabled || b.pb == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.pb.Current < b.total {
		b.pb.Current = b.total
	}

	b.pb.Stop()
	pterm.Success.Println("Archive up to date!")
}

// Reporter drives the bar and the batch summary from a single event
// subscription, so every event reaches both and the stream always has a
// consumer, bar enabled or not.
type Reporter struct {
	bar       *Bar
	collector *stats.Collector
	logger    *slog.Logger
	started   time.Time
}

// NewReporter subscribes one consumer to the event stream. It must be
// registered in every run that does not use stats.NewReporter; an
// unconsumed stream blocks the pipeline once the event buffer fills.
func NewReporter(stream stats.EventStream, bar *Bar, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		bar:       bar,
		collector: stats.NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("progress-reporter", reporter.consume)
	return reporter
}

func (pr *Reporter) consume(ctx context.Context, events <-chan stats.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-events:
			if !ok {
				pr.report()
				return nil
			}
			pr.collector.Observe(evt)
			if pr.bar != nil {
				pr.bar.Update(evt)
			}
		}
	}
}

func (pr *Reporter) report() {
	summary := pr.collector.Snapshot()
	duration := time.Since(pr.started)

	if pr.bar == nil || !pr.bar.Enabled() {
		if pr.logger != nil {
			pr.logger.Info("stats summary", append(summary.LogAttrs(), "duration", duration)...)
		}
		return
	}

	pterm.Println()
	pterm.DefaultSection.Println("Batch Summary")
	pterm.Info.Printf("Duration: %v\n", duration)
	pterm.Info.Printf("Fetched: %d\n", summary.Fetched)
	pterm.Info.Printf("Archived: %d\n", summary.Archived)
	pterm.Info.Printf("Skipped: %d\n", summary.Skipped)
	pterm.Info.Printf("Assets saved: %d\n", summary.AssetsSaved)
	pterm.Info.Printf("Assets left remote: %d\n", summary.AssetsFailed)
	pterm.Info.Printf("Dry-run: %d\n", summary.DryRun)
	pterm.Info.Printf("Errors: %d\n", summary.Errors)
	if summary.LastError != nil {
		pterm.Error.Printf("Last error: %v\n", summary.LastError)
	}
}

// Summary returns the counts collected so far.
func (pr *Reporter) Summary() stats.Summary {
	return pr.collector.Snapshot()
}
