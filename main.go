package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/benoit-getinside/archive-news/archiver"
	"github.com/benoit-getinside/archive-news/cmd"
	"github.com/benoit-getinside/archive-news/config"
	"github.com/benoit-getinside/archive-news/imap"
	"github.com/benoit-getinside/archive-news/mbox"
	"github.com/benoit-getinside/archive-news/progress"
	"github.com/benoit-getinside/archive-news/runner"
	"github.com/benoit-getinside/archive-news/stats"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "archive-news",
		Short: "Archive email newsletters as self-contained static HTML pages",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(c)
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			slog.SetDefault(logger)
			logger.Info("starting archive-news",
				"output", cfg.OutputDir,
				"mailbox", cfg.Mailbox,
				"mbox", cfg.MboxPath,
				"dryRun", cfg.DryRun,
			)

			return run(cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	cmd.Register(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	r, err := runner.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("runner.New: %w", err)
	}

	var bar *progress.Bar
	if cfg.MboxPath != "" {
		// The mbox total is known upfront, so the progress bar can be sized.
		total, err := mbox.CountMessages(cfg.MboxPath)
		if err != nil {
			return fmt.Errorf("mbox.CountMessages: %w", err)
		}
		bar = progress.New(total, cfg.LogLevel)
		progress.NewReporter(r, bar, logger)
	} else {
		stats.NewReporter(r, logger)
	}

	if cfg.MboxPath != "" {
		if _, err := mbox.NewProducer(mbox.Options{Path: cfg.MboxPath}, r, logger); err != nil {
			return fmt.Errorf("mbox.NewProducer: %w", err)
		}
	} else {
		producerOpts := imap.Options{
			Host:     cfg.IMAPHost,
			Port:     cfg.IMAPPort,
			Username: cfg.IMAPUser,
			Password: cfg.IMAPPass,
			Mailbox:  cfg.Mailbox,
			All:      cfg.All,
		}
		if _, err := imap.NewProducer(producerOpts, r, logger); err != nil {
			return fmt.Errorf("imap.NewProducer: %w", err)
		}
	}

	archiverOpts := archiver.Options{
		OutputDir:      cfg.OutputDir,
		ExtractMain:    cfg.ExtractMain,
		GenerateIndex:  cfg.GenerateIndex,
		InjectBackLink: cfg.InjectBackLink,
		RehostRemote:   cfg.RehostRemote,
		FetchTimeout:   cfg.FetchTimeout,
		DryRun:         cfg.DryRun,
	}
	if _, err := archiver.New(archiverOpts, r, logger); err != nil {
		return fmt.Errorf("archiver.New: %w", err)
	}

	err = r.Start()
	if bar != nil {
		bar.Stop()
	}
	return err
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		logFilePath := filepath.Join(cfg.LogDir, fmt.Sprintf("archive-news-%s.log", time.Now().Format("20060102T150405")))
		file, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, cleanup, err
		}

		handler := slog.NewTextHandler(io.MultiWriter(os.Stdout, file), opts)
		cleanup = func() error {
			return file.Close()
		}
		return slog.New(handler), cleanup, nil
	}

	handler := slog.NewTextHandler(os.Stdout, opts)
	return slog.New(handler), cleanup, nil
}
