package research

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/net/html"

	"studymate/internal/config"
	"studymate/internal/logging"
)

// ErrBlockPage marks pages that returned an interstitial instead of
// content (captcha walls, consent screens, bot checks).
var ErrBlockPage = errors.New("page is a block or consent interstitial")

// blockSignatures flag interstitial pages. Matched case-insensitively
// against the cleaned page text.
var blockSignatures = []string{
	"captcha",
	"verify you are human",
	"access denied",
	"enable javascript",
	"checking your browser",
	"cloudflare",
	"consent to the use of cookies",
}

// Fetcher downloads a page and reduces it to clean article text.
type Fetcher struct {
	cfg        config.ResearchConfig
	httpClient *http.Client
}

// NewFetcher builds a fetcher with the configured per-page timeout.
func NewFetcher(cfg config.ResearchConfig) *Fetcher {
	return &Fetcher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.FetchTimeout},
	}
}

// Fetch downloads rawURL and returns its cleaned text. The body read is
// capped at MaxPageBytes and the cleaned text at MaxCleanLen. Returns
// ErrBlockPage when the page looks like an interstitial rather than
// content.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.cfg.MaxPageBytes))
	if err != nil {
		return "", err
	}

	text := CleanHTML(string(body), f.cfg.MaxCleanLen)
	if text == "" {
		return "", fmt.Errorf("no text content at %s", rawURL)
	}
	if IsBlockPage(text) {
		logging.ResearchDebug("block page detected at %s", rawURL)
		return "", ErrBlockPage
	}
	return text, nil
}

// CleanHTML parses markup and returns whitespace-collapsed visible text,
// skipping script, style, nav and similar chrome elements, truncated to
// maxLen runes.
func CleanHTML(page string, maxLen int) string {
	doc, err := html.Parse(strings.NewReader(page))
	if err != nil {
		return ""
	}

	skip := map[string]bool{
		"script": true, "style": true, "noscript": true,
		"nav": true, "header": true, "footer": true, "aside": true,
	}

	var sb strings.Builder
	var traverse func(*html.Node)
	traverse = func(n *html.Node) {
		if n.Type == html.ElementNode && skip[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			traverse(c)
		}
	}
	traverse(doc)

	text := strings.Join(strings.Fields(sb.String()), " ")
	if maxLen > 0 && len(text) > maxLen {
		// Cut on a rune boundary so a multibyte character never splits.
		if runes := []rune(text); len(runes) > maxLen {
			text = string(runes[:maxLen])
		}
	}
	return text
}

// IsBlockPage reports whether cleaned text looks like an interstitial.
// Short pages dominated by a block signature are the usual shape; long
// article text that merely mentions a signature word is let through.
func IsBlockPage(text string) bool {
	lower := strings.ToLower(text)
	for _, sig := range blockSignatures {
		if strings.Contains(lower, sig) {
			// A real article mentioning "cloudflare" can be thousands
			// of chars; interstitials are short.
			if len(lower) < 1500 {
				return true
			}
		}
	}
	return false
}
