package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Policy holds the data-driven governance lists. All of it is externally
// editable YAML; the compiled-in defaults below keep the system usable
// with no policy directory at all.
//
// Files under PolicyDir:
//
//	trusted_domains.yaml  -> TrustedDomains, TrustedTLDs
//	safety_keywords.yaml  -> SafetyCategories, RedirectTemplates
//	video_keywords.yaml   -> BannedVideoKeywords, StopWords
type Policy struct {
	TrustedDomains      []string         `yaml:"trusted_domains"`
	TrustedTLDs         []string         `yaml:"trusted_tlds"`
	SafetyCategories    []SafetyCategory `yaml:"safety_categories"`
	RedirectTemplates   []string         `yaml:"redirect_templates"`
	BannedVideoKeywords []string         `yaml:"banned_video_keywords"`
	StopWords           []string         `yaml:"stop_words"`
}

// SafetyCategory is one ordered keyword category for the safety gate.
// Declaration order is evaluation order; first match wins.
type SafetyCategory struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// DefaultPolicy returns the compiled-in policy lists.
func DefaultPolicy() *Policy {
	return &Policy{
		TrustedDomains: []string{
			"wikipedia.org",
			"britannica.com",
			"khanacademy.org",
			"nationalgeographic.com",
			"nasa.gov",
			"bbc.co.uk",
			"sciencedirect.com",
			"nature.com",
		},
		TrustedTLDs: []string{".edu", ".gov", ".org"},
		SafetyCategories: []SafetyCategory{
			{
				Name: "sexual",
				Keywords: []string{
					"sex", "porn", "nude", "naked", "explicit content",
				},
			},
			{
				Name: "violence",
				Keywords: []string{
					"kill", "gun", "stab", "murder", "kill myself",
					"hurt someone", "suicide", "weapon",
				},
			},
			{
				Name: "drugs",
				Keywords: []string{
					"weed", "meth", "cocaine", "heroin", "get high",
					"drugs", "vape",
				},
			},
			{
				Name: "inappropriate",
				Keywords: []string{
					"gambling", "bet money", "dark web", "how to cheat",
					"steal",
				},
			},
			{
				Name: "slang",
				Keywords: []string{
					"wtf", "stfu", "omfg",
				},
			},
		},
		RedirectTemplates: []string{
			"That's outside what we study together. What subject should we look at instead?",
			"Let's keep our time focused on learning. Which topic would you like to explore?",
			"That isn't something I can help with here. Want to pick a school subject?",
			"We should stick to study topics. Is there something from class you're curious about?",
			"Let's get back to learning. What would you like to understand better today?",
		},
		BannedVideoKeywords: []string{
			"prank", "reaction", "gaming", "funny", "meme", "challenge",
			"unboxing", "vlog", "tiktok", "shorts compilation", "asmr",
			"music video", "official video", "trailer",
		},
		StopWords: []string{
			"the", "a", "an", "of", "and", "or", "to", "in", "on", "for",
			"with", "about", "what", "is", "are", "how", "why", "does",
			"this", "that", "it", "better", "another", "more",
		},
	}
}

// LoadPolicy reads the policy files under dir, overlaying each file that
// exists onto the defaults. An empty dir returns the defaults unchanged.
func LoadPolicy(dir string) (*Policy, error) {
	p := DefaultPolicy()
	if dir == "" {
		return p, nil
	}

	type overlay struct {
		file  string
		apply func(*Policy, *Policy)
	}
	overlays := []overlay{
		{"trusted_domains.yaml", func(dst, src *Policy) {
			if len(src.TrustedDomains) > 0 {
				dst.TrustedDomains = src.TrustedDomains
			}
			if len(src.TrustedTLDs) > 0 {
				dst.TrustedTLDs = src.TrustedTLDs
			}
		}},
		{"safety_keywords.yaml", func(dst, src *Policy) {
			if len(src.SafetyCategories) > 0 {
				dst.SafetyCategories = src.SafetyCategories
			}
			if len(src.RedirectTemplates) > 0 {
				dst.RedirectTemplates = src.RedirectTemplates
			}
		}},
		{"video_keywords.yaml", func(dst, src *Policy) {
			if len(src.BannedVideoKeywords) > 0 {
				dst.BannedVideoKeywords = src.BannedVideoKeywords
			}
			if len(src.StopWords) > 0 {
				dst.StopWords = src.StopWords
			}
		}},
	}

	for _, o := range overlays {
		path := filepath.Join(dir, o.file)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("read policy %s: %w", path, err)
		}
		var src Policy
		if err := yaml.Unmarshal(data, &src); err != nil {
			return nil, fmt.Errorf("parse policy %s: %w", path, err)
		}
		o.apply(p, &src)
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate rejects policies that would break gate or filter invariants.
func (p *Policy) Validate() error {
	if len(p.RedirectTemplates) == 0 {
		return fmt.Errorf("policy: at least one redirect template required")
	}
	for _, cat := range p.SafetyCategories {
		if cat.Name == "" {
			return fmt.Errorf("policy: safety category with empty name")
		}
	}
	for _, tld := range p.TrustedTLDs {
		if !strings.HasPrefix(tld, ".") {
			return fmt.Errorf("policy: trusted TLD %q must start with a dot", tld)
		}
	}
	return nil
}
