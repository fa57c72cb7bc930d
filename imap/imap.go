// Package imap fetches newsletters from a live mailbox and feeds them into
// the pipeline as raw MIME messages.
package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strconv"

	imapv2 "github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/benoit-getinside/archive-news/mailhdr"
	"github.com/benoit-getinside/archive-news/model"
	"github.com/benoit-getinside/archive-news/runner"
)

type Options struct {
	Host     string
	Port     int
	Username string
	Password string
	// Mailbox is the folder or label newsletters are filed under.
	Mailbox string
	// All fetches every message instead of only unseen ones.
	All bool
}

type Producer struct {
	opts   Options
	runner *runner.Runner
	logger *slog.Logger
}

func NewProducer(opts Options, r *runner.Runner, logger *slog.Logger) (*Producer, error) {
	if opts.Host == "" {
		return nil, fmt.Errorf("imap host is empty")
	}
	if opts.Port <= 0 {
		return nil, fmt.Errorf("imap port must be positive")
	}
	if opts.Mailbox == "" {
		opts.Mailbox = "INBOX"
	}
	producer := &Producer{opts: opts, runner: r, logger: logger}
	r.AddStage("imap", producer.run)
	return producer, nil
}

// run connects, selects the mailbox and streams each matching message into
// the pipeline. Connectivity and authentication problems are systemic and
// fail the whole invocation.
func (p *Producer) run(ctx context.Context) error {
	defer p.runner.CloseMailbox()

	client, cleanup, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	if _, err := client.Select(p.opts.Mailbox, nil).Wait(); err != nil {
		return fmt.Errorf("select mailbox %s: %w", p.opts.Mailbox, err)
	}

	criteria := &imapv2.SearchCriteria{}
	if !p.opts.All {
		criteria.NotFlag = []imapv2.Flag{imapv2.FlagSeen}
	}

	searchData, err := client.UIDSearch(criteria, &imapv2.SearchOptions{ReturnAll: true}).Wait()
	if err != nil {
		return fmt.Errorf("search mailbox %s: %w", p.opts.Mailbox, err)
	}

	uids := searchData.AllUIDs()
	if p.logger != nil {
		p.logger.Info("mailbox searched", "mailbox", p.opts.Mailbox, "matches", len(uids))
	}
	if len(uids) == 0 {
		return nil
	}

	// Non-peek fetch: the server flags delivered messages as seen, so the
	// next run's unseen search starts where this one left off.
	bodySection := &imapv2.FetchItemBodySection{}
	fetchOpts := &imapv2.FetchOptions{
		Envelope:    true,
		UID:         true,
		RFC822Size:  true,
		BodySection: []*imapv2.FetchItemBodySection{bodySection},
	}

	fetchCmd := client.Fetch(imapv2.UIDSetNum(uids...), fetchOpts)

	for {
		if err := ctx.Err(); err != nil {
			_ = fetchCmd.Close()
			return err
		}

		msgData := fetchCmd.Next()
		if msgData == nil {
			break
		}

		buf, err := msgData.Collect()
		if err != nil {
			_ = fetchCmd.Close()
			return fmt.Errorf("collect message: %w", err)
		}

		raw := buf.FindBodySection(bodySection)
		if len(raw) == 0 {
			continue
		}

		msg := model.Message{
			ID:   fmt.Sprintf("uid-%d", buf.UID),
			Size: int64(len(raw)),
			Raw:  raw,
		}
		if buf.Envelope != nil {
			if buf.Envelope.MessageID != "" {
				msg.ID = buf.Envelope.MessageID
			}
			msg.Subject = mailhdr.DecodeHeader(buf.Envelope.Subject)
			msg.ReceivedAt = buf.Envelope.Date
		}

		select {
		case <-ctx.Done():
			_ = fetchCmd.Close()
			return ctx.Err()
		case p.runner.MailboxWriter() <- model.Envelope{Message: msg}:
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return fmt.Errorf("fetch close: %w", err)
	}

	return nil
}

func (p *Producer) dial(ctx context.Context) (*imapclient.Client, func(), error) {
	address := net.JoinHostPort(p.opts.Host, strconv.Itoa(p.opts.Port))
	options := &imapclient.Options{
		TLSConfig: &tls.Config{ServerName: p.opts.Host},
	}

	client, err := imapclient.DialTLS(address, options)
	if err != nil {
		return nil, nil, fmt.Errorf("dial imap %s: %w", address, err)
	}

	if err := client.Login(p.opts.Username, p.opts.Password).Wait(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("imap login failed: %w", err)
	}

	if p.logger != nil {
		p.logger.Debug("imap connection established", "address", address, "user", p.opts.Username, "mailbox", p.opts.Mailbox)
	}

	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})

	cleanup := func() {
		stopClose()
		if ctx.Err() == nil {
			if err := client.Logout().Wait(); err != nil {
				if p.logger != nil {
					p.logger.Warn("imap logout failed", "err", err)
				}
			}
		}
		if err := client.Close(); err != nil && p.logger != nil {
			p.logger.Debug("imap connection closed", "err", err)
		}
	}

	return client, cleanup, nil
}
