// Package mailhdr extracts lightweight header metadata from raw messages
// without parsing the full MIME tree.
package mailhdr

import (
	"bytes"
	"io"
	"mime"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
)

// Meta holds decoded header fields of interest to the pipeline.
type Meta struct {
	MessageID string
	Subject   string
	Date      time.Time
}

// wordDecoder handles RFC 2047 encoded words in any charset the message
// declares, not just UTF-8.
var wordDecoder = &mime.WordDecoder{
	CharsetReader: func(label string, input io.Reader) (io.Reader, error) {
		return charset.NewReaderLabel(label, input)
	},
}

// Parse reads the message headers and decodes the fields it knows about.
// Best effort: a message whose headers cannot be read yields a zero Meta.
func Parse(raw []byte) Meta {
	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return Meta{}
	}

	var meta Meta

	meta.MessageID = strings.Trim(msg.Header.Get("Message-Id"), " <>")

	meta.Subject = DecodeHeader(msg.Header.Get("Subject"))

	if date := msg.Header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			meta.Date = t
		}
	}

	return meta
}

// DecodeHeader decodes an RFC 2047 encoded header value to plain Unicode,
// returning the input unchanged when decoding fails.
func DecodeHeader(value string) string {
	decoded, err := wordDecoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
