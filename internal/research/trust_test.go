package research

import (
	"testing"

	"studymate/internal/config"
)

func TestTrustedByDomain(t *testing.T) {
	tc := NewTrustChecker(&config.Policy{
		TrustedDomains: []string{"wikipedia.org", "khanacademy.org"},
	})

	cases := []struct {
		url  string
		want bool
	}{
		{"https://en.wikipedia.org/wiki/Photosynthesis", true},
		{"https://wikipedia.org/", true},
		{"https://www.khanacademy.org/science", true},
		{"https://notwikipedia.org.evil.com/page", false},
		{"https://fakewikipedia.org/page", false},
		{"https://randomblog.net/post", false},
	}
	for _, tc2 := range cases {
		if got := tc.Trusted(tc2.url); got != tc2.want {
			t.Errorf("Trusted(%q) = %v, want %v", tc2.url, got, tc2.want)
		}
	}
}

func TestTrustedByTLD(t *testing.T) {
	tc := NewTrustChecker(&config.Policy{
		TrustedTLDs: []string{".edu", ".gov", "org"},
	})

	cases := []struct {
		url  string
		want bool
	}{
		{"https://mit.edu/physics", true},
		{"https://nasa.gov/mars", true},
		{"https://archive.org/details/x", true},
		{"https://example.com/edu", false},
		{"https://edu.example.com/", false},
	}
	for _, tc2 := range cases {
		if got := tc.Trusted(tc2.url); got != tc2.want {
			t.Errorf("Trusted(%q) = %v, want %v", tc2.url, got, tc2.want)
		}
	}
}

func TestTrustedIgnoresPathAndCase(t *testing.T) {
	tc := NewTrustChecker(&config.Policy{TrustedDomains: []string{"britannica.com"}})

	if !tc.Trusted("https://WWW.BRITANNICA.COM/science/photosynthesis?ref=untrusted.net") {
		t.Error("hostname match should be case-insensitive and ignore the path")
	}
	if tc.Trusted("https://evil.net/britannica.com") {
		t.Error("trusted string in the path must not grant trust")
	}
}

func TestTrustedRejectsUnparseable(t *testing.T) {
	tc := NewTrustChecker(&config.Policy{TrustedTLDs: []string{".org"}})
	if tc.Trusted("://not a url") {
		t.Error("unparseable URL must not be trusted")
	}
	if tc.Trusted("") {
		t.Error("empty URL must not be trusted")
	}
}
