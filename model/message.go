package model

import "time"

// Message represents a single raw email message handed off by a source.
type Message struct {
	ID         string
	Subject    string
	ReceivedAt time.Time
	Size       int64
	Raw        []byte
}

// Envelope wraps a message alongside an optional error encountered while decoding.
type Envelope struct {
	Message Message
	Err     error
}

// InlineAsset is a Content-ID addressed binary part captured from a message,
// typically an image referenced from the HTML body via a cid: URL.
type InlineAsset struct {
	Data      []byte
	MediaType string
}

// Content is the renderable payload extracted from one message. An empty
// HTMLBody means the message carried nothing to archive and must be skipped.
type Content struct {
	Subject  string
	HTMLBody string
	Inlines  map[string]InlineAsset
}
