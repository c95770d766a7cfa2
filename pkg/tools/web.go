package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/html"
)

const (
	userAgent          = "valorbot/1.0"
	maxFetchBytes      = 2 * 1024 * 1024
	maxPageText        = 4000
	defaultSearchCount = 5
	maxSearchCount     = 10
	fetchCacheSize     = 128
	fetchCacheTTL      = 15 * time.Minute
)

type fetchLinkInput struct {
	URL string `json:"url" description:"Absolute http or https URL to fetch."`
}

type searchWebInput struct {
	Query      string `json:"query" description:"Search query."`
	MaxResults int    `json:"max_results,omitempty" description:"Maximum number of results (default 5, max 10)."`
}

type page struct {
	Title       string
	Description string
	Text        string
}

type searchResult struct {
	Title   string
	URL     string
	Snippet string
}

type webTools struct {
	client    *http.Client
	searchURL string
	timeout   time.Duration
	cache     *expirable.LRU[string, page]
}

func newWebTools(opts Options) *webTools {
	return &webTools{
		client:    opts.HTTPClient,
		searchURL: strings.TrimSpace(opts.SearchURL),
		timeout:   opts.FetchTimeout,
		cache:     expirable.NewLRU[string, page](fetchCacheSize, nil, fetchCacheTTL),
	}
}

func (w *webTools) fetchLink(ctx context.Context, input fetchLinkInput) (string, error) {
	target, err := parseHTTPURL(input.URL)
	if err != nil {
		return "", err
	}

	p, ok := w.cache.Get(target)
	if !ok {
		body, contentType, err := w.get(ctx, target)
		if err != nil {
			return "", err
		}
		p = parsePage(body, contentType)
		w.cache.Add(target, p)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s", target)
	if p.Title != "" {
		fmt.Fprintf(&b, "\nTitle: %s", p.Title)
	}
	if p.Description != "" {
		fmt.Fprintf(&b, "\nDescription: %s", p.Description)
	}
	if p.Text != "" {
		fmt.Fprintf(&b, "\n\n%s", p.Text)
	}
	return b.String(), nil
}

func (w *webTools) searchWeb(ctx context.Context, input searchWebInput) (string, error) {
	query := strings.TrimSpace(input.Query)
	if query == "" {
		return "", newError(ErrorInvalidInput, "query must not be empty")
	}
	if w.searchURL == "" {
		return "", newError(ErrorNotConfigured, "web search endpoint is not configured")
	}

	count := input.MaxResults
	if count <= 0 {
		count = defaultSearchCount
	}
	if count > maxSearchCount {
		count = maxSearchCount
	}

	base, err := url.Parse(w.searchURL)
	if err != nil {
		return "", newError(ErrorNotConfigured, "invalid search url: %v", err)
	}
	u := *base
	values := u.Query()
	values.Set("q", query)
	u.RawQuery = values.Encode()

	body, _, err := w.get(ctx, u.String())
	if err != nil {
		return "", err
	}

	results := parseSearchResults(body, count)
	if len(results) == 0 {
		return fmt.Sprintf("No results for %q.", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:", query)
	for i, result := range results {
		fmt.Fprintf(&b, "\n%d. %s\n   %s", i+1, result.Title, result.URL)
		if result.Snippet != "" {
			fmt.Fprintf(&b, "\n   %s", result.Snippet)
		}
	}
	return b.String(), nil
}

func (w *webTools) get(ctx context.Context, target string) ([]byte, string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, "", newError(ErrorInvalidInput, "build request: %v", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", newError(ErrorUpstream, "fetch %s: %v", target, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", newError(ErrorUpstream, "HTTP %d from %s", resp.StatusCode, target)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return nil, "", newError(ErrorUpstream, "read %s: %v", target, err)
	}

	return body, resp.Header.Get("Content-Type"), nil
}

func parseHTTPURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(strings.ToLower(raw), "www.") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", newError(ErrorInvalidInput, "not a valid URL: %q", raw)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", newError(ErrorInvalidInput, "unsupported URL scheme %q", u.Scheme)
	}

	return u.String(), nil
}

func parsePage(body []byte, contentType string) page {
	if contentType != "" && !strings.Contains(contentType, "html") {
		return page{Text: truncateRunes(strings.TrimSpace(string(bytes.ToValidUTF8(body, nil))), maxPageText)}
	}

	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return page{Text: truncateRunes(string(body), maxPageText)}
	}

	var p page
	var text strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "svg", "nav", "footer":
				return
			case "title":
				if p.Title == "" {
					p.Title = collapse(textContent(n))
				}
				return
			case "meta":
				name := strings.ToLower(attr(n, "name") + attr(n, "property"))
				if p.Description == "" && (name == "description" || name == "og:description") {
					p.Description = collapse(attr(n, "content"))
				}
			case "p", "div", "li", "br", "h1", "h2", "h3", "h4", "section", "article", "tr":
				text.WriteString("\n")
			}
		}
		if n.Type == html.TextNode {
			if chunk := collapse(n.Data); chunk != "" {
				text.WriteString(chunk)
				text.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	p.Text = truncateRunes(compactLines(text.String()), maxPageText)
	return p
}

// parseSearchResults reads DuckDuckGo's HTML result page.
func parseSearchResults(body []byte, limit int) []searchResult {
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil
	}

	var out []searchResult
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n == nil {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" {
			switch {
			case hasClass(n, "result__a") && len(out) < limit:
				href := attr(n, "href")
				title := collapse(textContent(n))
				if href != "" && title != "" {
					out = append(out, searchResult{Title: title, URL: normalizeResultURL(href)})
				}
			case hasClass(n, "result__snippet") && len(out) > 0 && out[len(out)-1].Snippet == "":
				out[len(out)-1].Snippet = collapse(textContent(n))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	return out
}

// normalizeResultURL unwraps DuckDuckGo redirect links (/l/?uddg=...).
func normalizeResultURL(href string) string {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}

	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return u.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func compactLines(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "…"
}
