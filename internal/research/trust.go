// Package research turns a student question into grounded facts: it decides
// whether the web is needed, plans search queries, fetches trusted pages,
// extracts claims, and synthesizes an answer from them.
package research

import (
	"net/url"
	"strings"

	"studymate/internal/config"
)

// TrustChecker applies the source allow-list. Trust is decided on the
// hostname alone; the URL path never influences the outcome.
type TrustChecker struct {
	domains []string
	tlds    []string
}

// NewTrustChecker compiles the policy allow-list. Entries are normalized to
// lowercase once so per-URL checks stay cheap.
func NewTrustChecker(policy *config.Policy) *TrustChecker {
	tc := &TrustChecker{
		domains: make([]string, 0, len(policy.TrustedDomains)),
		tlds:    make([]string, 0, len(policy.TrustedTLDs)),
	}
	for _, d := range policy.TrustedDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d != "" {
			tc.domains = append(tc.domains, d)
		}
	}
	for _, t := range policy.TrustedTLDs {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" && !strings.HasPrefix(t, ".") {
			t = "." + t
		}
		if t != "" {
			tc.tlds = append(tc.tlds, t)
		}
	}
	return tc
}

// Trusted reports whether rawURL points at an allow-listed source. A domain
// entry matches the hostname itself and any subdomain of it; a TLD entry
// matches as a hostname suffix.
func (tc *TrustChecker) Trusted(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	for _, d := range tc.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	for _, t := range tc.tlds {
		if strings.HasSuffix(host, t) {
			return true
		}
	}
	return false
}
