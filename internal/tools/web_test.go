package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xonecas/agentcore/internal/tool"
	"github.com/xonecas/agentcore/internal/webcache"
)

func TestExtractText(t *testing.T) {
	html := []byte(`<html><head><title>Hello</title><script>var x=1;</script><style>body{}</style></head>
<body><h1>Title</h1><p>Some <b>bold</b> text.</p><div>Another block</div></body></html>`)

	text := extractText(html)

	for _, want := range []string{"Title", "Some bold text.", "Another block"} {
		if !strings.Contains(text, want) {
			t.Errorf("expected text to contain %q, got:\n%s", want, text)
		}
	}
	for _, unwanted := range []string{"var x=1", "body{}"} {
		if strings.Contains(text, unwanted) {
			t.Errorf("expected text to NOT contain %q, got:\n%s", unwanted, text)
		}
	}
}

func TestExtractTextPlainPassthrough(t *testing.T) {
	text := extractText([]byte("just plain text"))
	if text != "just plain text" {
		t.Errorf("expected plain passthrough, got %q", text)
	}
}

func TestTruncateChars(t *testing.T) {
	s := "hello world"
	if got := truncateChars(s, 100); got != s {
		t.Errorf("should not truncate, got %q", got)
	}
	if got := truncateChars(s, 5); got != "hello\n\n[Truncated]" {
		t.Errorf("unexpected truncation, got %q", got)
	}
}

func TestWebFetchReturnsCleanedTextAndCaches(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<p>hello from server</p>"))
	}))
	defer srv.Close()

	cache, err := webcache.Open(filepath.Join(t.TempDir(), "cache.db"), time.Hour)
	if err != nil {
		t.Fatalf("open cache: %v", err)
	}
	defer cache.Close()

	wf := NewWebFetch(cache)
	args, _ := json.Marshal(webFetchArgs{URL: srv.URL})

	res, toolErr := wf.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr != nil {
		t.Fatalf("unexpected error: %v", toolErr)
	}
	if !strings.Contains(res.Blocks[0].Text, "hello from server") {
		t.Fatalf("unexpected result: %q", res.Blocks[0].Text)
	}
	res, toolErr = wf.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr != nil {
		t.Fatalf("unexpected error on cached fetch: %v", toolErr)
	}
	if !strings.Contains(res.Blocks[0].Text, "hello from server") {
		t.Fatalf("unexpected cached result: %q", res.Blocks[0].Text)
	}
	if hits != 1 {
		t.Fatalf("expected 1 http hit, got %d", hits)
	}
}

func TestWebFetchRequiresURL(t *testing.T) {
	wf := NewWebFetch(nil)
	args, _ := json.Marshal(webFetchArgs{})
	_, toolErr := wf.Execute(context.Background(), tool.ExecContext{}, args)
	if toolErr == nil || toolErr.Kind != tool.ErrInvalidArgs {
		t.Fatalf("expected invalid_args error, got %v", toolErr)
	}
}
