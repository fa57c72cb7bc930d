// Package transform turns a raw newsletter HTML body into a sanitized,
// self-contained archive document with all images resolved locally.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/benoit-getinside/archive-news/assets"
	"github.com/benoit-getinside/archive-news/model"
)

// Options selects the optional transformation policies. The zero value
// preserves the whole document, injects no navigation and leaves remote
// images where they are.
type Options struct {
	// ExtractMain narrows the document to the newsletter platform's main
	// content container when one can be found. Best effort, may drop
	// sidebars and footers.
	ExtractMain bool
	// InjectBackLink prepends a fixed banner linking back to index.html.
	InjectBackLink bool
	// RehostRemote downloads http(s) images and rewrites them to local files.
	RehostRemote bool
}

// Report counts what happened to a single document's images.
type Report struct {
	InlineRewritten int
	RemoteRehosted  int
	RemoteFailed    int
	NodesRemoved    int
}

// Transformer applies the sanitize-and-rewrite pipeline to one document at a
// time. It is not safe for concurrent use on the same document, but the
// pipeline processes messages sequentially anyway.
type Transformer struct {
	store  *assets.Store
	opts   Options
	logger *slog.Logger
}

func New(store *assets.Store, opts Options, logger *slog.Logger) *Transformer {
	return &Transformer{store: store, opts: opts, logger: logger}
}

// Apply runs the full transformation for one extracted message and returns
// the serialized standalone document. Only asset write failures propagate;
// malformed markup and failed remote fetches degrade gracefully.
func (t *Transformer) Apply(ctx context.Context, content model.Content, stem string) (string, Report, error) {
	var report Report

	inlineMap, err := t.store.SaveInline(stem, content.Inlines)
	if err != nil {
		return "", report, err
	}

	// The parser is permissive: broken markup yields a best-effort tree,
	// never an error worth aborting a message for.
	doc, err := html.Parse(strings.NewReader(content.HTMLBody))
	if err != nil {
		return "", report, fmt.Errorf("parse html: %w", err)
	}

	report.NodesRemoved = removeNodes(doc, func(n *html.Node) bool {
		switch n.DataAtom {
		case atom.Script, atom.Iframe, atom.Object:
			return true
		}
		return hasAnyClass(n, "gmail_quote", "gmail_attr")
	})

	t.rewriteImages(ctx, doc, inlineMap, stem, &report)

	body := findElement(doc, atom.Body)
	if body != nil && t.opts.ExtractMain {
		narrowToMain(body)
	}
	if body != nil && t.opts.InjectBackLink {
		body.InsertBefore(backLinkBanner(), body.FirstChild)
	}

	ensureHead(doc, content.Subject)

	var buf bytes.Buffer
	if err := html.Render(&buf, doc); err != nil {
		return "", report, fmt.Errorf("render html: %w", err)
	}
	return buf.String(), report, nil
}

// rewriteImages resolves every <img> in document order. Sequence numbers for
// remote assets follow that order, so filenames stay deterministic.
func (t *Transformer) rewriteImages(ctx context.Context, doc *html.Node, inlineMap map[string]string, stem string, report *Report) {
	seq := 0
	for _, img := range collectElements(doc, atom.Img) {
		src := getAttr(img, "src")
		if src == "" || strings.HasPrefix(src, "data:") {
			continue
		}

		if strings.HasPrefix(src, "cid:") {
			cid := strings.Trim(strings.TrimPrefix(src, "cid:"), "<>")
			local, ok := inlineMap[cid]
			if !ok {
				continue
			}
			setAttr(img, "src", local)
			dropAttr(img, "srcset")
			report.InlineRewritten++
			continue
		}

		if !isRemote(src) {
			continue
		}

		if !t.opts.RehostRemote {
			setAttr(img, "src", assets.UpgradeToHTTPS(src))
			continue
		}

		seq++
		local, err := t.store.FetchRemote(ctx, src, stem, seq)
		if err != nil {
			// Soft failure: keep pointing at the origin, upgraded to
			// https so browsers do not block it as mixed content.
			setAttr(img, "src", assets.UpgradeToHTTPS(src))
			report.RemoteFailed++
			if t.logger != nil {
				t.logger.Warn("remote image kept at origin", "src", src, "err", err)
			}
			continue
		}
		setAttr(img, "src", local)
		dropAttr(img, "srcset")
		report.RemoteRehosted++
	}
}

func isRemote(src string) bool {
	return strings.HasPrefix(src, "http://") ||
		strings.HasPrefix(src, "https://") ||
		strings.HasPrefix(src, "//")
}

// mainContainerID reports whether an element id looks like the main content
// container of a common newsletter platform template.
func mainContainerID(id string) bool {
	if id == "" {
		return false
	}
	return id == "templateBody" ||
		strings.HasSuffix(id, "-content") ||
		strings.HasSuffix(id, "_content")
}

// narrowToMain replaces the body's children with the first recognized main
// content container. When none matches the body is left untouched. The body
// node itself never qualifies, narrowing to it would detach everything.
func narrowToMain(body *html.Node) {
	main := findFirst(body, func(n *html.Node) bool {
		return n != body && n.Type == html.ElementNode && mainContainerID(getAttr(n, "id"))
	})
	if main == nil {
		return
	}

	main.Parent.RemoveChild(main)
	for body.FirstChild != nil {
		body.RemoveChild(body.FirstChild)
	}
	body.AppendChild(main)
}

// backLinkBanner builds the fixed navigation element injected at the top of
// the body. Inline styles keep it rendering above whatever the newsletter
// ships.
func backLinkBanner() *html.Node {
	div := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.Div,
		Data:     "div",
		Attr: []html.Attribute{{
			Key: "style",
			Val: "background-color:#1a1a1a;color:white;padding:10px;text-align:center;font-family:sans-serif;font-size:14px;position:relative;z-index:99999;",
		}},
	}
	a := &html.Node{
		Type:     html.ElementNode,
		DataAtom: atom.A,
		Data:     "a",
		Attr: []html.Attribute{
			{Key: "href", Val: "index.html"},
			{Key: "style", Val: "color:white;text-decoration:none;font-weight:bold;"},
		},
	}
	a.AppendChild(&html.Node{Type: html.TextNode, Data: "← Back to index"})
	div.AppendChild(a)
	return div
}

// ensureHead normalizes the head for standalone viewing: a utf-8 charset
// declaration (the serialized document is always UTF-8) and a title from the
// subject when the newsletter did not bring one.
func ensureHead(doc *html.Node, subject string) {
	head := findElement(doc, atom.Head)
	if head == nil {
		return
	}

	hasCharset := false
	hasTitle := false
	for c := head.FirstChild; c != nil; c = c.NextSibling {
		switch c.DataAtom {
		case atom.Meta:
			for i, attr := range c.Attr {
				if strings.EqualFold(attr.Key, "charset") {
					c.Attr[i].Val = "utf-8"
					hasCharset = true
				}
				if strings.EqualFold(attr.Key, "http-equiv") && strings.EqualFold(attr.Val, "content-type") {
					c.Attr = []html.Attribute{
						{Key: "http-equiv", Val: "Content-Type"},
						{Key: "content", Val: "text/html; charset=utf-8"},
					}
					hasCharset = true
				}
			}
		case atom.Title:
			hasTitle = true
		}
	}

	if !hasCharset {
		meta := &html.Node{
			Type:     html.ElementNode,
			DataAtom: atom.Meta,
			Data:     "meta",
			Attr:     []html.Attribute{{Key: "charset", Val: "utf-8"}},
		}
		head.InsertBefore(meta, head.FirstChild)
	}

	if !hasTitle && subject != "" {
		title := &html.Node{Type: html.ElementNode, DataAtom: atom.Title, Data: "title"}
		title.AppendChild(&html.Node{Type: html.TextNode, Data: subject})
		head.AppendChild(title)
	}
}
