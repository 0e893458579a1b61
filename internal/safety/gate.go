// Package safety implements the pre-model keyword gate. A gate hit fully
// bypasses the language model: the orchestrator answers with a fixed
// redirection template instead. Matching is deterministic and data-driven;
// the keyword lists live in policy config, not code.
package safety

import (
	"regexp"
	"strings"
	"sync"

	"studymate/internal/config"
	"studymate/internal/logging"
)

// Gate classifies utterances against ordered keyword categories.
type Gate struct {
	mu         sync.Mutex
	categories []category
	templates  []string
	rotation   map[string]int
}

type category struct {
	name     string
	matchers []matcher
}

// matcher is one compiled keyword. Short tokens (≤4 runes) use
// word-boundary matching so "sex" does not fire on "sextant"; longer
// phrases use plain substring containment.
type matcher struct {
	keyword string
	re      *regexp.Regexp // nil for substring matchers
}

// wordBoundaryLimit is the keyword length (in runes) at or below which
// word-boundary matching is used.
const wordBoundaryLimit = 4

// NewGate compiles a gate from policy data.
func NewGate(policy *config.Policy) *Gate {
	g := &Gate{
		templates: policy.RedirectTemplates,
		rotation:  make(map[string]int),
	}
	for _, pc := range policy.SafetyCategories {
		c := category{name: pc.Name}
		for _, kw := range pc.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			m := matcher{keyword: kw}
			if len([]rune(kw)) <= wordBoundaryLimit {
				m.re = regexp.MustCompile(`\b` + regexp.QuoteMeta(kw) + `\b`)
			}
			c.matchers = append(c.matchers, m)
		}
		g.categories = append(g.categories, c)
	}
	return g
}

// Check returns the first matching category name. Categories are evaluated
// in declaration order; there is no severity ranking. The empty string
// means no violation. Pure function of the input text.
func (g *Gate) Check(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, c := range g.categories {
		for _, m := range c.matchers {
			if m.re != nil {
				if m.re.MatchString(lower) {
					logging.SafetyDebug("keyword %q matched category %s", m.keyword, c.name)
					return c.name, true
				}
				continue
			}
			if strings.Contains(lower, m.keyword) {
				logging.SafetyDebug("phrase %q matched category %s", m.keyword, c.name)
				return c.name, true
			}
		}
	}
	return "", false
}

// Redirect returns the next rotating redirection template for a category.
// Templates carry no apology language; rotation keeps repeated blocks from
// sounding canned.
func (g *Gate) Redirect(categoryName string) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	i := g.rotation[categoryName]
	g.rotation[categoryName] = i + 1
	return g.templates[i%len(g.templates)]
}

// Templates exposes the configured templates (for tests asserting the
// response is one of the fixed set).
func (g *Gate) Templates() []string {
	return g.templates
}
