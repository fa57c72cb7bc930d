package mbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/benoit-getinside/archive-news/model"
)

const sampleMbox = "From news@example.com Thu Jan  1 10:00:00 2026\n" +
	"From: news@example.com\n" +
	"Message-Id: <one@example.com>\n" +
	"Subject: First Issue\n" +
	"Content-Type: text/html\n" +
	"\n" +
	"<html><body>one</body></html>\n" +
	"\n" +
	"From news@example.com Fri Jan  2 10:00:00 2026\n" +
	"From: news@example.com\n" +
	"Subject: =?UTF-8?Q?Deuxi=C3=A8me_=C3=89dition?=\n" +
	"Content-Type: text/html\n" +
	"\n" +
	"<html><body>two</body></html>\n"

func streamAll(t *testing.T, path string) []model.Envelope {
	t.Helper()
	reader, err := NewReader(Options{Path: path}, nil)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}

	out := make(chan model.Envelope, 16)
	done := make(chan error, 1)
	go func() {
		done <- reader.Stream(context.Background(), out)
		close(out)
	}()

	var envelopes []model.Envelope
	for env := range out {
		envelopes = append(envelopes, env)
	}
	if err := <-done; err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	return envelopes
}

func TestStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.mbox")
	if err := os.WriteFile(path, []byte(sampleMbox), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	envelopes := streamAll(t, path)
	if len(envelopes) != 2 {
		t.Fatalf("got %d envelopes, want 2", len(envelopes))
	}

	first := envelopes[0].Message
	if first.ID != "one@example.com" {
		t.Errorf("first.ID = %q", first.ID)
	}
	if first.Subject != "First Issue" {
		t.Errorf("first.Subject = %q", first.Subject)
	}
	if len(first.Raw) == 0 || first.Size != int64(len(first.Raw)) {
		t.Errorf("raw payload not captured: size=%d len=%d", first.Size, len(first.Raw))
	}

	second := envelopes[1].Message
	if second.Subject != "Deuxième Édition" {
		t.Errorf("second.Subject = %q, want decoded header", second.Subject)
	}
	if second.ID != "mbox-1" {
		t.Errorf("second.ID = %q, want synthesized fallback", second.ID)
	}
}

func TestCountMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.mbox")
	if err := os.WriteFile(path, []byte(sampleMbox), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	count, err := CountMessages(path)
	if err != nil {
		t.Fatalf("CountMessages() error = %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

// brokenReader serves a prefix of the sample and then fails, like a
// truncated read from a bad disk.
type brokenReader struct {
	data []byte
	off  int
}

func (b *brokenReader) Read(p []byte) (int, error) {
	if b.off >= len(b.data) {
		return 0, errors.New("read failure")
	}
	n := copy(p, b.data[b.off:])
	b.off += n
	return n, nil
}

func TestCountMessages_ReadErrorPropagates(t *testing.T) {
	r := &brokenReader{data: []byte(sampleMbox[:40])}
	if _, err := countMessages(r); err == nil {
		t.Fatal("countMessages() expected error from failing reader")
	}
}

func TestNewReader_EmptyPath(t *testing.T) {
	if _, err := NewReader(Options{}, nil); err == nil {
		t.Fatal("NewReader() expected error for empty path")
	}
}

func TestStream_MissingFile(t *testing.T) {
	reader, err := NewReader(Options{Path: filepath.Join(t.TempDir(), "nope.mbox")}, nil)
	if err != nil {
		t.Fatalf("NewReader() error = %v", err)
	}
	out := make(chan model.Envelope, 1)
	if err := reader.Stream(context.Background(), out); err == nil {
		t.Fatal("Stream() expected error for missing file")
	}
}
