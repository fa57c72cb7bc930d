// Package extract locates the renderable HTML body and the inline
// Content-ID-addressed assets of a raw MIME message.
package extract

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"

	"github.com/benoit-getinside/archive-news/model"
)

// Content parses a raw MIME byte stream and returns the subject, the HTML
// body and any inline image assets keyed by Content-ID. An empty HTMLBody in
// the result is a skip signal, not an error: the message simply has nothing
// to archive.
func Content(raw []byte) (model.Content, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return model.Content{}, fmt.Errorf("parse mime envelope: %w", err)
	}

	content := model.Content{
		Subject:  env.GetHeader("Subject"),
		HTMLBody: env.HTML,
		Inlines:  inlineAssets(env),
	}

	if content.HTMLBody == "" {
		content.HTMLBody = singlePartFallback(env)
	}

	return content, nil
}

// singlePartFallback treats the whole payload of a non-multipart message as
// the body regardless of its declared type.
func singlePartFallback(env *enmime.Envelope) string {
	root := env.Root
	if root == nil || strings.HasPrefix(root.ContentType, "multipart/") {
		return ""
	}
	if len(root.Content) > 0 {
		return string(root.Content)
	}
	return env.Text
}

func inlineAssets(env *enmime.Envelope) map[string]model.InlineAsset {
	assets := make(map[string]model.InlineAsset)

	parts := make([]*enmime.Part, 0, len(env.Inlines)+len(env.OtherParts)+len(env.Attachments))
	parts = append(parts, env.Inlines...)
	parts = append(parts, env.OtherParts...)
	parts = append(parts, env.Attachments...)

	for _, part := range parts {
		if part.ContentID == "" || !strings.HasPrefix(part.ContentType, "image") {
			continue
		}
		cid := strings.Trim(part.ContentID, "<>")
		if cid == "" {
			continue
		}
		assets[cid] = model.InlineAsset{
			Data:      part.Content,
			MediaType: part.ContentType,
		}
	}

	return assets
}
