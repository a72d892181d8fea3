package websearch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// FetchText retrieves url and extracts its visible text, stripping markup.
// Grounded on original_source/core/providers/web_fetch.py +
// web_extract.py's fetch-then-extract split; uses golang.org/x/net/html
// (already pulled transitively by the gin stack) instead of a hand-rolled
// tag stripper.
func FetchText(ctx context.Context, url string, maxChars int) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "local-first-assistant/1.0 (+web_research skill)")
	client := &http.Client{Timeout: 12 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("fetch %s: status %d", url, resp.StatusCode)
	}
	body := io.LimitReader(resp.Body, 2<<20)
	text, err := extractText(body)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if maxChars > 0 && len(text) > maxChars {
		text = text[:maxChars]
	}
	return text, nil
}

var skipTags = map[string]bool{"script": true, "style": true, "noscript": true, "svg": true}

func extractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var walk func(*html.Node, bool)
	walk = func(n *html.Node, skip bool) {
		if n.Type == html.ElementNode && skipTags[n.Data] {
			skip = true
		}
		if n.Type == html.TextNode && !skip {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				sb.WriteString(trimmed)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, skip)
		}
	}
	walk(doc, false)
	return sb.String(), nil
}
