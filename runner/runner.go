package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benoit-getinside/archive-news/config"
	"github.com/benoit-getinside/archive-news/filter"
	"github.com/benoit-getinside/archive-news/model"
	"github.com/benoit-getinside/archive-news/stats"
)

type StageFunc func(context.Context) error

// Runner wires a message source stage to the archive stage through buffered
// channels and owns the shared pipeline lifecycle: context cancellation,
// fail-fast error latching and the stats event stream.
type Runner struct {
	cfg    config.Config
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	messages chan model.Envelope
	archive  chan model.Message
	events   chan stats.Event

	filter *filter.Filter

	workWG  sync.WaitGroup
	statsWG sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeMailboxOnce sync.Once
	closeArchiveOnce sync.Once
	closeEventsOnce  sync.Once
	since            time.Time
}

func New(cfg config.Config, logger *slog.Logger) (*Runner, error) {
	ctx, cancel := context.WithCancel(context.Background())

	f, err := filter.New(filter.Options{
		IncludeHeader: cfg.IncludeHeader,
		IncludeBody:   cfg.IncludeBody,
		ExcludeHeader: cfg.ExcludeHeader,
		ExcludeBody:   cfg.ExcludeBody,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("message filter: %w", err)
	}

	r := &Runner{
		cfg:      cfg,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		messages: make(chan model.Envelope, 32),
		archive:  make(chan model.Message, 32),
		events:   make(chan stats.Event, 128),
		filter:   f,
	}

	r.AddStage("bridge", r.bridge)
	return r, nil
}

func (r *Runner) Config() config.Config {
	return r.cfg
}

func (r *Runner) Logger() *slog.Logger {
	return r.logger
}

func (r *Runner) Context() context.Context {
	return r.ctx
}

func (r *Runner) MailboxWriter() chan<- model.Envelope {
	return r.messages
}

func (r *Runner) CloseMailbox() {
	r.closeMailboxOnce.Do(func() {
		close(r.messages)
	})
}

func (r *Runner) Archive() <-chan model.Message {
	return r.archive
}

func (r *Runner) EmitEvent(evt stats.Event) {
	select {
	case <-r.ctx.Done():
	case r.events <- evt:
	}
}

func (r *Runner) SubscribeStats(name string, fn func(context.Context, <-chan stats.Event) error) {
	r.statsWG.Add(1)
	go func() {
		defer r.statsWG.Done()
		if err := fn(r.ctx, r.events); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stats: %w", name, err))
		}
	}()
}

func (r *Runner) AddStage(name string, fn StageFunc) {
	r.workWG.Add(1)
	go func() {
		defer r.workWG.Done()
		if err := fn(r.ctx); err != nil && !errors.Is(err, context.Canceled) {
			r.fail(fmt.Errorf("%s stage: %w", name, err))
		}
	}()
}

// Start blocks until every stage has drained, then reports the pipeline
// outcome. Entries written before a failure stay valid on disk.
func (r *Runner) Start() error {
	r.since = time.Now()

	r.workWG.Wait()
	r.closeEvents()
	r.statsWG.Wait()

	r.cancel()

	err := r.err
	duration := time.Since(r.since)
	if err != nil {
		r.logger.Error("pipeline failed", "duration", duration, "err", err)
		return err
	}

	r.logger.Info("pipeline completed", "duration", duration)
	return nil
}

// bridge moves envelopes from the source to the archive stage, dropping
// messages rejected by the configured header/body filter. A source-level
// envelope error is systemic and fails the run.
func (r *Runner) bridge(ctx context.Context) error {
	defer r.closeArchive()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case envelope, ok := <-r.messages:
			if !ok {
				return nil
			}

			if envelope.Err != nil {
				r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeError, Err: envelope.Err})
				r.fail(fmt.Errorf("source envelope: %w", envelope.Err))
				continue
			}

			msg := envelope.Message
			r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeFetched, Subject: msg.Subject})

			header, body := filter.SplitRawMessage(msg.Raw)
			if !r.filter.Allows(header, body) {
				r.EmitEvent(stats.Event{Stage: stats.StageSource, Type: stats.EventTypeSkipped, Subject: msg.Subject, Detail: "filtered"})
				continue
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			case r.archive <- msg:
			}
		}
	}
}

func (r *Runner) closeArchive() {
	r.closeArchiveOnce.Do(func() {
		close(r.archive)
	})
}

func (r *Runner) closeEvents() {
	r.closeEventsOnce.Do(func() {
		close(r.events)
	})
}

func (r *Runner) fail(err error) {
	if err == nil {
		return
	}
	r.errMu.Lock()
	if r.err == nil {
		r.err = err
		r.cancel()
	}
	r.errMu.Unlock()
}
