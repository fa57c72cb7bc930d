// Package archiver consumes raw messages from the runner and turns each one
// into an archive entry: extract, transform, write. After the batch drains it
// regenerates the index.
package archiver

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/benoit-getinside/archive-news/archive"
	"github.com/benoit-getinside/archive-news/assets"
	"github.com/benoit-getinside/archive-news/extract"
	"github.com/benoit-getinside/archive-news/model"
	"github.com/benoit-getinside/archive-news/runner"
	"github.com/benoit-getinside/archive-news/slug"
	"github.com/benoit-getinside/archive-news/stats"
	"github.com/benoit-getinside/archive-news/transform"
)

// untitled is the filename stem used when a message carries no usable subject.
const untitled = "Untitled"

type Options struct {
	OutputDir      string
	ExtractMain    bool
	GenerateIndex  bool
	InjectBackLink bool
	RehostRemote   bool
	FetchTimeout   time.Duration
	DryRun         bool
}

type Archiver struct {
	opts        Options
	runner      *runner.Runner
	logger      *slog.Logger
	writer      *archive.Writer
	transformer *transform.Transformer
	messages    <-chan model.Message
}

func New(opts Options, r *runner.Runner, logger *slog.Logger) (*Archiver, error) {
	a := &Archiver{
		opts:     opts,
		runner:   r,
		logger:   logger,
		messages: r.Archive(),
	}

	if !opts.DryRun {
		store, err := assets.NewStore(opts.OutputDir, opts.FetchTimeout, logger)
		if err != nil {
			return nil, err
		}
		writer, err := archive.NewWriter(opts.OutputDir, logger)
		if err != nil {
			return nil, err
		}
		a.writer = writer
		a.transformer = transform.New(store, transform.Options{
			ExtractMain:    opts.ExtractMain,
			InjectBackLink: opts.InjectBackLink,
			RehostRemote:   opts.RehostRemote,
		}, logger)
	}

	r.AddStage("archive", a.run)
	return a, nil
}

func (a *Archiver) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-a.messages:
			if !ok {
				return a.finish()
			}
			if err := a.process(ctx, msg); err != nil {
				return err
			}
		}
	}
}

// process archives one message. Extraction problems and missing HTML bodies
// are per-message skips; write failures indicate an environment problem and
// abort the run.
func (a *Archiver) process(ctx context.Context, msg model.Message) error {
	content, err := extract.Content(msg.Raw)
	if err != nil {
		a.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeSkipped, Subject: msg.Subject, Err: err})
		if a.logger != nil {
			a.logger.Warn("skipping unparseable message", "id", msg.ID, "err", err)
		}
		return nil
	}

	if content.HTMLBody == "" {
		a.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeSkipped, Subject: content.Subject, Detail: "no html body"})
		if a.logger != nil {
			a.logger.Info("no html body, skipping", "id", msg.ID, "subject", content.Subject)
		}
		return nil
	}

	subject := content.Subject
	if subject == "" {
		subject = untitled
	}
	stem := slug.Make(subject)
	if stem == "" {
		stem = untitled
	}

	if a.opts.DryRun {
		a.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeDryRun, Subject: subject})
		if a.logger != nil {
			a.logger.Info("dry run, would archive", "subject", subject, "entry", stem+".html", "inlineAssets", len(content.Inlines))
		}
		return nil
	}

	doc, report, err := a.transformer.Apply(ctx, content, stem)
	if err != nil {
		a.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeError, Subject: subject, Err: err})
		return fmt.Errorf("transform %q: %w", subject, err)
	}

	path, err := a.writer.Write(stem, doc)
	if err != nil {
		a.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeError, Subject: subject, Err: err})
		return err
	}

	a.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeArchived, Subject: subject})
	if saved := report.InlineRewritten + report.RemoteRehosted; saved > 0 {
		a.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeAssetSaved, Subject: subject, Count: saved})
	}
	if report.RemoteFailed > 0 {
		a.runner.EmitEvent(stats.Event{Stage: stats.StageArchive, Type: stats.EventTypeAssetFailed, Subject: subject, Count: report.RemoteFailed})
	}

	if a.logger != nil {
		a.logger.Info("archived newsletter",
			"subject", subject,
			"path", path,
			"inlineAssets", report.InlineRewritten,
			"remoteAssets", report.RemoteRehosted,
			"failedAssets", report.RemoteFailed,
			"removedNodes", report.NodesRemoved,
		)
	}
	return nil
}

// finish runs once the batch has drained and regenerates the index over
// everything present in the output directory.
func (a *Archiver) finish() error {
	if a.opts.DryRun || !a.opts.GenerateIndex {
		return nil
	}
	if err := archive.BuildIndex(a.opts.OutputDir, a.logger); err != nil {
		a.runner.EmitEvent(stats.Event{Stage: stats.StageIndex, Type: stats.EventTypeError, Err: err})
		return fmt.Errorf("build index: %w", err)
	}
	return nil
}
