package transform

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/benoit-getinside/archive-news/assets"
	"github.com/benoit-getinside/archive-news/model"
)

func newTestTransformer(t *testing.T, opts Options) (*Transformer, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := assets.NewStore(dir, 0, nil)
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	return New(store, opts, nil), dir
}

func apply(t *testing.T, tr *Transformer, content model.Content, stem string) (string, Report) {
	t.Helper()
	out, report, err := tr.Apply(context.Background(), content, stem)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	return out, report
}

func TestApply_RemovesDangerousElements(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{})
	content := model.Content{
		HTMLBody: `<html><body>
			<script>alert(1)</script>
			<iframe src="https://evil.example"></iframe>
			<object data="x"></object>
			<p>keep me</p>
		</body></html>`,
	}

	out, report := apply(t, tr, content, "n")

	for _, tag := range []string{"<script", "<iframe", "<object"} {
		if strings.Contains(out, tag) {
			t.Errorf("output still contains %s:\n%s", tag, out)
		}
	}
	if !strings.Contains(out, "<p>keep me</p>") {
		t.Errorf("output lost legitimate content:\n%s", out)
	}
	if report.NodesRemoved != 3 {
		t.Errorf("NodesRemoved = %d, want 3", report.NodesRemoved)
	}
}

func TestApply_StripsMailClientQuotes(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{})
	content := model.Content{
		HTMLBody: `<body><div class="gmail_quote"><div class="gmail_attr">Fwd banner</div>quoted</div><p>real</p></body>`,
	}

	out, _ := apply(t, tr, content, "n")
	if strings.Contains(out, "gmail_quote") || strings.Contains(out, "Fwd banner") {
		t.Errorf("forwarded-message block survived:\n%s", out)
	}
	if !strings.Contains(out, "<p>real</p>") {
		t.Errorf("real content lost:\n%s", out)
	}
}

func TestApply_RewritesInlineImages(t *testing.T) {
	tr, dir := newTestTransformer(t, Options{})
	png := []byte("\x89PNG-data")
	content := model.Content{
		HTMLBody: `<body><img src="cid:img1" srcset="https://cdn/a.png 2x"></body>`,
		Inlines: map[string]model.InlineAsset{
			"img1": {Data: png, MediaType: "image/png"},
		},
	}

	out, report := apply(t, tr, content, "Weekly_Update")

	if !strings.Contains(out, `src="Weekly_Update_img_img1.png"`) {
		t.Errorf("cid src not rewritten:\n%s", out)
	}
	if strings.Contains(out, "srcset") {
		t.Errorf("srcset survived local rewrite:\n%s", out)
	}
	if report.InlineRewritten != 1 {
		t.Errorf("InlineRewritten = %d, want 1", report.InlineRewritten)
	}

	data, err := os.ReadFile(filepath.Join(dir, "Weekly_Update_img_img1.png"))
	if err != nil {
		t.Fatalf("inline asset not written: %v", err)
	}
	if string(data) != string(png) {
		t.Errorf("asset bytes = %q, want original", data)
	}
}

func TestApply_UncapturedCIDLeftAlone(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{})
	content := model.Content{HTMLBody: `<body><img src="cid:ghost"></body>`}

	out, _ := apply(t, tr, content, "n")
	if !strings.Contains(out, `src="cid:ghost"`) {
		t.Errorf("uncaptured cid should stay untouched:\n%s", out)
	}
}

func TestApply_RehostsRemoteImages(t *testing.T) {
	body := []byte("png-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	tr, dir := newTestTransformer(t, Options{RehostRemote: true})
	content := model.Content{
		HTMLBody: `<body><img src="` + srv.URL + `/a.png" srcset="big.png 2x"></body>`,
	}

	out, report := apply(t, tr, content, "News")

	if !strings.Contains(out, `src="News_img_r1.png"`) {
		t.Errorf("remote src not rewritten:\n%s", out)
	}
	if strings.Contains(out, "srcset") {
		t.Errorf("srcset survived rehosting:\n%s", out)
	}
	if report.RemoteRehosted != 1 {
		t.Errorf("RemoteRehosted = %d, want 1", report.RemoteRehosted)
	}

	data, err := os.ReadFile(filepath.Join(dir, "News_img_r1.png"))
	if err != nil {
		t.Fatalf("rehosted asset not written: %v", err)
	}
	if string(data) != string(body) {
		t.Errorf("asset bytes = %q, want fetched bytes", data)
	}
}

func TestApply_FailedFetchKeepsOriginalSrc(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	tr, dir := newTestTransformer(t, Options{RehostRemote: true})
	content := model.Content{
		HTMLBody: `<body><img src="` + srv.URL + `/gone.png"><p>rest of doc</p></body>`,
	}

	out, report := apply(t, tr, content, "News")

	upgraded := "https://" + strings.TrimPrefix(srv.URL, "http://")
	if !strings.Contains(out, `src="`+upgraded+`/gone.png"`) {
		t.Errorf("failed fetch should keep the origin src, https-upgraded:\n%s", out)
	}
	if !strings.Contains(out, "rest of doc") {
		t.Errorf("failure must not interrupt the rest of the document:\n%s", out)
	}
	if report.RemoteFailed != 1 {
		t.Errorf("RemoteFailed = %d, want 1", report.RemoteFailed)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("no file should exist after failed fetch, found %d", len(entries))
	}
}

func TestApply_UpgradesBareHTTPWithoutRehosting(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{RehostRemote: false})
	content := model.Content{HTMLBody: `<body><img src="http://cdn.example.com/a.png"></body>`}

	out, _ := apply(t, tr, content, "n")
	if !strings.Contains(out, `src="https://cdn.example.com/a.png"`) {
		t.Errorf("bare http src not upgraded:\n%s", out)
	}
}

func TestApply_SkipsDataURIs(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{RehostRemote: true})
	content := model.Content{HTMLBody: `<body><img src="data:image/gif;base64,R0lGOD"></body>`}

	out, report := apply(t, tr, content, "n")
	if !strings.Contains(out, `src="data:image/gif;base64,R0lGOD"`) {
		t.Errorf("data URI should stay untouched:\n%s", out)
	}
	if report.RemoteRehosted != 0 || report.RemoteFailed != 0 {
		t.Errorf("data URI must not count as remote: %+v", report)
	}
}

func TestApply_InjectsBackLink(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{InjectBackLink: true})
	content := model.Content{HTMLBody: `<body><p>news</p></body>`}

	out, _ := apply(t, tr, content, "n")
	if !strings.Contains(out, `href="index.html"`) {
		t.Errorf("back link missing:\n%s", out)
	}
	if !strings.Contains(out, "z-index:99999") {
		t.Errorf("banner stacking style missing:\n%s", out)
	}

	banner := strings.Index(out, `href="index.html"`)
	news := strings.Index(out, "<p>news</p>")
	if banner == -1 || news == -1 || banner > news {
		t.Errorf("banner not at top of body:\n%s", out)
	}
}

func TestApply_BodylessFragmentStillWellFormed(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{InjectBackLink: true})
	content := model.Content{HTMLBody: `<p>bare fragment</p>`}

	out, _ := apply(t, tr, content, "n")
	if !strings.Contains(out, "<body>") || !strings.Contains(out, "</html>") {
		t.Errorf("output is not a well-formed document:\n%s", out)
	}
	if !strings.Contains(out, `href="index.html"`) {
		t.Errorf("back link missing in synthesized body:\n%s", out)
	}
}

func TestApply_ExtractMain(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{ExtractMain: true})
	content := model.Content{
		HTMLBody: `<body><div id="sidebar">chrome</div><div id="templateBody"><p>the goods</p></div><div id="footer">legal</div></body>`,
	}

	out, _ := apply(t, tr, content, "n")
	if !strings.Contains(out, "the goods") {
		t.Errorf("main content lost:\n%s", out)
	}
	if strings.Contains(out, "chrome") || strings.Contains(out, "legal") {
		t.Errorf("narrowing kept surrounding chrome:\n%s", out)
	}
}

func TestApply_ExtractMainIgnoresBodyID(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{ExtractMain: true})
	content := model.Content{
		HTMLBody: `<body id="newsletter-content"><p>keep me</p></body>`,
	}

	out, _ := apply(t, tr, content, "n")
	if !strings.Contains(out, "keep me") {
		t.Errorf("body with a matching id must keep its content:\n%s", out)
	}
	if !strings.Contains(out, "<body") {
		t.Errorf("body element lost:\n%s", out)
	}
}

func TestApply_ExtractMainFallsBackToFullBody(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{ExtractMain: true})
	content := model.Content{
		HTMLBody: `<body><div id="whatever">everything</div></body>`,
	}

	out, _ := apply(t, tr, content, "n")
	if !strings.Contains(out, "everything") {
		t.Errorf("fallback should preserve full body:\n%s", out)
	}
}

func TestApply_SetsTitleFromSubject(t *testing.T) {
	tr, _ := newTestTransformer(t, Options{})
	content := model.Content{
		Subject:  "Weekly Update!",
		HTMLBody: `<body><p>x</p></body>`,
	}

	out, _ := apply(t, tr, content, "n")
	if !strings.Contains(out, "<title>Weekly Update!</title>") {
		t.Errorf("title not derived from subject:\n%s", out)
	}
	if !strings.Contains(out, `charset="utf-8"`) {
		t.Errorf("utf-8 charset declaration missing:\n%s", out)
	}
}
