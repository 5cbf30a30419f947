package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/xonecas/agentcore/internal/tool"
	"github.com/xonecas/agentcore/internal/webcache"
)

const defaultMaxChars = 10000

// WebFetch fetches a URL and returns its content as cleaned text, caching
// results so repeated fetches within the TTL skip the network.
type WebFetch struct {
	client *http.Client
	cache  *webcache.Cache
}

// NewWebFetch builds a WebFetch tool. cache may be nil, in which case every
// call hits the network.
func NewWebFetch(cache *webcache.Cache) *WebFetch {
	return &WebFetch{
		client: &http.Client{Timeout: 15 * time.Second},
		cache:  cache,
	}
}

func (t *WebFetch) Name() string  { return "web_fetch" }
func (t *WebFetch) Label() string { return "Web Fetch" }
func (t *WebFetch) Description() string {
	return "Fetch a URL and return its content as cleaned text (HTML tags, scripts, and styles stripped). Results are cached."
}

func (t *WebFetch) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"url":       {"type": "string", "minLength": 1, "description": "The URL to fetch."},
			"max_chars": {"type": "integer", "description": "Maximum characters to return. Default: 10000"}
		},
		"required": ["url"]
	}`)
}

type webFetchArgs struct {
	URL      string `json:"url"`
	MaxChars int    `json:"max_chars,omitempty"`
}

func (t *WebFetch) Execute(ctx context.Context, ectx tool.ExecContext, rawArgs json.RawMessage) (tool.Result, *tool.Error) {
	if verr := tool.ValidateArgs(t.Schema(), rawArgs); verr != nil {
		return tool.Result{}, verr
	}

	var args webFetchArgs
	if err := json.Unmarshal(rawArgs, &args); err != nil {
		return tool.Result{}, tool.InvalidArgs("invalid arguments: %v", err)
	}
	if args.MaxChars <= 0 {
		args.MaxChars = defaultMaxChars
	}

	if cached, ok := t.cache.Get(args.URL); ok {
		return tool.TextResult(truncateChars(cached, args.MaxChars)), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, args.URL, nil)
	if err != nil {
		return tool.Result{}, tool.InvalidArgs("bad url: %v", err)
	}
	req.Header.Set("User-Agent", "agentcore/0.1")
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.5")

	if ectx.OnProgress != nil {
		ectx.OnProgress(fmt.Sprintf("fetching %s", args.URL))
	}

	resp, err := t.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return tool.Result{}, tool.Cancelled()
		}
		return tool.Result{}, tool.Failed("fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return tool.Result{}, tool.Failed("http %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return tool.Result{}, tool.Failed("read failed: %v", err)
	}

	var text string
	if strings.Contains(resp.Header.Get("Content-Type"), "text/html") {
		text = extractText(body)
	} else {
		text = string(body)
	}

	t.cache.Set(args.URL, text)
	return tool.TextResult(truncateChars(text, args.MaxChars)), nil
}

func isSkipTag(tag string) bool {
	return tag == "script" || tag == "style" || tag == "noscript"
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "tr", "td", "th", "blockquote", "pre", "hr",
		"header", "footer", "section", "article", "nav", "main":
		return true
	}
	return false
}

// extractText parses HTML and returns visible text, with script/style/noscript
// element contents suppressed.
func extractText(data []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(data))
	var b strings.Builder
	skip := 0

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return collapseWhitespace(b.String())
		}
		tn, _ := tokenizer.TagName()
		tag := string(tn)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if isSkipTag(tag) {
				skip++
			}
			if isBlockElement(tag) && b.Len() > 0 {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			if isSkipTag(tag) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blanks := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blanks++
			if blanks <= 1 {
				out = append(out, "")
			}
			continue
		}
		blanks = 0
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

func truncateChars(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + "\n\n[Truncated]"
}
