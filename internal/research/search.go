package research

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"golang.org/x/net/html"

	"studymate/internal/config"
	"studymate/internal/logging"
	"studymate/internal/types"
)

// SearchClient returns ranked results for one query. Implementations must
// be safe for concurrent use.
type SearchClient interface {
	Search(ctx context.Context, query string) ([]types.SearchResult, error)
}

// HTMLSearchClient queries the DuckDuckGo HTML endpoint and parses the
// result list out of the returned page. No API key is needed.
type HTMLSearchClient struct {
	endpoint   string
	userAgent  string
	maxResults int
	httpClient *http.Client
}

// NewHTMLSearchClient builds a search client from the research config.
func NewHTMLSearchClient(cfg config.ResearchConfig) *HTMLSearchClient {
	return &HTMLSearchClient{
		endpoint:   cfg.SearchURL,
		userAgent:  cfg.UserAgent,
		maxResults: 10,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Search performs one query and returns up to maxResults parsed results.
func (c *HTMLSearchClient) Search(ctx context.Context, query string) ([]types.SearchResult, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("search HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}

	results := parseSearchHTML(string(body), c.maxResults)
	logging.ResearchDebug("search %q returned %d results", query, len(results))
	return results, nil
}

// parseSearchHTML walks the result page and pulls out anchor/snippet pairs.
// The DuckDuckGo HTML endpoint marks result links with class "result__a"
// and snippets with "result__snippet".
func parseSearchHTML(page string, limit int) []types.SearchResult {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return nil
	}

	var results []types.SearchResult
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if len(results) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.Data == "a" && hasClass(n, "result__a") {
			href := attrValue(n, "href")
			if target := decodeRedirect(href); target != "" {
				results = append(results, types.SearchResult{
					Title: textContent(n),
					URL:   target,
				})
			}
		}
		if n.Type == html.ElementNode && hasClass(n, "result__snippet") && len(results) > 0 {
			last := &results[len(results)-1]
			if last.Snippet == "" {
				last.Snippet = textContent(n)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)
	return results
}

// decodeRedirect unwraps the uddg= redirect parameter DuckDuckGo wraps
// result links in. Plain absolute links pass through unchanged.
func decodeRedirect(href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return ""
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	if u.Scheme == "http" || u.Scheme == "https" {
		return href
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, f := range strings.Fields(attrValue(n, "class")) {
		if f == class {
			return true
		}
	}
	return false
}

func attrValue(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(node *html.Node) {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteString(" ")
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(n)
	return strings.Join(strings.Fields(sb.String()), " ")
}
