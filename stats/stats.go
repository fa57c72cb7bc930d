package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

type Stage string

const (
	StageSource  Stage = "source"
	StageArchive Stage = "archive"
	StageIndex   Stage = "index"
)

type EventType string

const (
	EventTypeFetched     EventType = "fetched"
	EventTypeSkipped     EventType = "skipped"
	EventTypeArchived    EventType = "archived"
	EventTypeAssetSaved  EventType = "asset_saved"
	EventTypeAssetFailed EventType = "asset_failed"
	EventTypeDryRun      EventType = "dry_run"
	EventTypeError       EventType = "error"
)

type Event struct {
	Stage   Stage
	Type    EventType
	Subject string
	Err     error
	Detail  string
	Count   int
}

type Summary struct {
	Fetched      int
	Skipped      int
	Archived     int
	AssetsSaved  int
	AssetsFailed int
	DryRun       int
	Errors       int
	LastError    error
}

func (s Summary) LogAttrs() []any {
	attrs := []any{
		"fetched", s.Fetched,
		"skipped", s.Skipped,
		"archived", s.Archived,
		"assetsSaved", s.AssetsSaved,
		"assetsFailed", s.AssetsFailed,
		"dryRun", s.DryRun,
		"errors", s.Errors,
	}
	if s.LastError != nil {
		attrs = append(attrs, "lastError", s.LastError.Error())
	}
	return attrs
}

type Collector struct {
	mu      sync.Mutex
	summary Summary
}

func NewCollector() *Collector {
	return &Collector{}
}

func (c *Collector) Run(ctx context.Context, events <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-events:
			if !ok {
				return
			}
			c.Observe(evt)
		}
	}
}

func (c *Collector) Snapshot() Summary {
	c.mu.Lock()
	summary := c.summary
	c.mu.Unlock()
	return summary
}

// Observe folds a single event into the running summary. An event Count of
// zero means one.
func (c *Collector) Observe(evt Event) {
	count := evt.Count
	if count == 0 {
		count = 1
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch evt.Type {
	case EventTypeFetched:
		c.summary.Fetched += count
	case EventTypeSkipped:
		c.summary.Skipped += count
	case EventTypeArchived:
		c.summary.Archived += count
	case EventTypeAssetSaved:
		c.summary.AssetsSaved += count
	case EventTypeAssetFailed:
		c.summary.AssetsFailed += count
	case EventTypeDryRun:
		c.summary.DryRun += count
	case EventTypeError:
		c.summary.Errors += count
		if evt.Err != nil {
			c.summary.LastError = evt.Err
		}
	}
}

type EventStream interface {
	SubscribeStats(name string, fn func(context.Context, <-chan Event) error)
}

type Reporter struct {
	collector *Collector
	logger    *slog.Logger
	started   time.Time
}

func NewReporter(stream EventStream, logger *slog.Logger) *Reporter {
	reporter := &Reporter{
		collector: NewCollector(),
		logger:    logger,
		started:   time.Now(),
	}
	stream.SubscribeStats("stats-reporter", reporter.consume)
	return reporter
}

func (r *Reporter) consume(ctx context.Context, events <-chan Event) error {
	r.collector.Run(ctx, events)
	summary := r.collector.Snapshot()
	attrs := append(summary.LogAttrs(), "duration", time.Since(r.started))
	if ctx.Err() != nil {
		if r.logger != nil {
			r.logger.Debug("stats collection stopped", append(attrs, "err", ctx.Err())...)
		}
		return ctx.Err()
	}
	if r.logger != nil {
		r.logger.Info("stats summary", attrs...)
	}
	return nil
}

func (r *Reporter) Summary() Summary {
	return r.collector.Snapshot()
}

// PrettyPrintTop prints the top N most frequent items in a map.
func PrettyPrintTop(m map[string]int, limit int) {
	type pair struct {
		Key   string
		Value int
	}

	var pairs []pair
	for k, v := range m {
		pairs = append(pairs, pair{k, v})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Value > pairs[j].Value
	})

	for i := 0; i < limit && i < len(pairs); i++ {
		fmt.Printf("%d. %s (%d)\n", i+1, pairs[i].Key, pairs[i].Value)
	}
}
