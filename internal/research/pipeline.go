package research

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"studymate/internal/config"
	"studymate/internal/llm"
	"studymate/internal/logging"
	"studymate/internal/types"
)

// SynthesisFallback is returned when the final synthesis call fails. It is
// deterministic and carries no apology language.
const SynthesisFallback = "That's a great question. Let's explore this together. What do you already know about it?"

const webNeedSystem = `Decide whether answering the student's question requires current or real-time information from the web (recent events, live data, changing facts).
Answer with exactly one word: yes or no.`

const planSystem = `Convert the student's question into at most %d short, neutral web search queries.
Return ONLY a JSON object: {"queries": ["...", "..."]}
Rules:
- Plain search phrasing, no teaching tone, no question marks.
- Each query focuses on one aspect of the question.
- Fewer queries is fine when the question is narrow.`

const synthesisSystem = `You are a friendly tutor for school students. Write a short micro-lesson answering the question.
Rules:
- Teach only the surface definition of the concept. Do not explain sub-mechanisms or advanced detail.
- Keep it to a few sentences in plain language.
- End with exactly one short checking question for the student.
- %s`

type queriesPayload struct {
	Queries []string `json:"queries"`
}

// Answer is the output of one research run.
type Answer struct {
	Text    string
	Facts   []types.Fact
	Sources []types.SourceRef
	UsedWeb bool
}

// candidate is one trusted search hit awaiting fetch and extraction.
type candidate struct {
	result types.SearchResult
}

// Pipeline runs the grounded-research chain for one question.
type Pipeline struct {
	cfg       config.ResearchConfig
	primary   llm.Client
	fallback  llm.Client
	search    SearchClient
	fetcher   *Fetcher
	trust     *TrustChecker
	extractor *Extractor
}

// NewPipeline wires the pipeline from config and policy. search may be nil,
// in which case the HTML search client is used.
func NewPipeline(cfg config.ResearchConfig, policy *config.Policy, primary, fallback llm.Client, search SearchClient) *Pipeline {
	if search == nil {
		search = NewHTMLSearchClient(cfg)
	}
	return &Pipeline{
		cfg:       cfg,
		primary:   primary,
		fallback:  fallback,
		search:    search,
		fetcher:   NewFetcher(cfg),
		trust:     NewTrustChecker(policy),
		extractor: NewExtractor(primary, fallback, cfg.FactsPerPage),
	}
}

// NeedsWeb asks the model whether the question needs live information.
// forceWeb short-circuits to true. A model failure degrades to false so the
// turn still gets a background-knowledge answer.
func (p *Pipeline) NeedsWeb(ctx context.Context, question string, forceWeb bool) bool {
	if forceWeb {
		return true
	}
	resp, err := p.primary.CompleteWithSystem(ctx, webNeedSystem, question)
	if err != nil {
		logging.ResearchDebug("web-need decision failed, staying offline: %v", err)
		return false
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(resp)), "yes")
}

// PlanQueries converts the question into at most MaxQueries search queries.
// On any failure the question itself is used as the single query.
func (p *Pipeline) PlanQueries(ctx context.Context, question string) []string {
	system := fmt.Sprintf(planSystem, p.cfg.MaxQueries)

	var payload queriesPayload
	if err := llm.CompleteJSON(ctx, p.primary, p.fallback, system, question, &payload); err != nil {
		logging.ResearchDebug("query planning failed, using raw question: %v", err)
		return []string{question}
	}

	queries := make([]string, 0, p.cfg.MaxQueries)
	for _, q := range payload.Queries {
		q = strings.TrimSpace(q)
		if q == "" {
			continue
		}
		queries = append(queries, q)
		if len(queries) >= p.cfg.MaxQueries {
			break
		}
	}
	if len(queries) == 0 {
		return []string{question}
	}
	return queries
}

// Run executes the full chain: web-need decision, query planning, trusted
// fetch and extraction, then synthesis. It never returns an empty answer;
// every failure branch degrades toward background knowledge.
func (p *Pipeline) Run(ctx context.Context, question string, forceWeb bool, mode types.Mode) (*Answer, error) {
	if !p.NeedsWeb(ctx, question, forceWeb) {
		logging.Research("answering %q from background knowledge", question)
		text := p.Synthesize(ctx, question, nil, mode)
		return &Answer{Text: text}, nil
	}

	queries := p.PlanQueries(ctx, question)
	logging.Research("researching %q with %d queries", question, len(queries))

	candidates := p.searchAll(ctx, queries)
	facts, sources := p.gather(ctx, question, candidates)

	text := p.Synthesize(ctx, question, facts, mode)
	return &Answer{Text: text, Facts: facts, Sources: sources, UsedWeb: true}, nil
}

// searchAll fans the planned queries out concurrently and merges their
// trusted, URL-deduplicated results. A failed query contributes nothing;
// the rest still count.
func (p *Pipeline) searchAll(ctx context.Context, queries []string) []candidate {
	var mu sync.Mutex
	var merged []candidate
	seen := make(map[string]bool)

	g, gctx := errgroup.WithContext(ctx)
	for _, query := range queries {
		g.Go(func() error {
			results, err := p.search.Search(gctx, query)
			if err != nil {
				logging.ResearchDebug("search %q failed: %v", query, err)
				return nil
			}
			mu.Lock()
			defer mu.Unlock()
			for _, r := range results {
				if seen[r.URL] || !p.trust.Trusted(r.URL) {
					continue
				}
				seen[r.URL] = true
				merged = append(merged, candidate{result: r})
			}
			return nil
		})
	}
	g.Wait()

	logging.ResearchDebug("%d trusted candidates after merge", len(merged))
	return merged
}

// gather fetches and extracts candidates in order until the fact or source
// budget is exhausted. A blocked or failed page falls back to its search
// snippet; a source that yields nothing is skipped.
func (p *Pipeline) gather(ctx context.Context, question string, candidates []candidate) ([]types.Fact, []types.SourceRef) {
	var facts []types.Fact
	var sources []types.SourceRef

	for _, c := range candidates {
		if len(facts) >= p.cfg.MaxFacts || len(sources) >= p.cfg.MaxSources {
			break
		}

		text, err := p.fetcher.Fetch(ctx, c.result.URL)
		if err != nil {
			logging.ResearchDebug("fetch %s failed (%v), trying snippet", c.result.URL, err)
			text = strings.TrimSpace(c.result.Snippet)
			if text == "" {
				continue
			}
		}

		extracted, err := p.extractor.Extract(ctx, question, c.result.Title, c.result.URL, text)
		if err != nil {
			logging.ResearchDebug("extraction skipped for %s: %v", c.result.URL, err)
			continue
		}
		if len(extracted) == 0 {
			continue
		}

		if remaining := p.cfg.MaxFacts - len(facts); len(extracted) > remaining {
			extracted = extracted[:remaining]
		}
		facts = append(facts, extracted...)
		sources = append(sources, types.SourceRef{SourceName: c.result.Title, URL: c.result.URL})
	}

	logging.Research("gathered %d facts from %d sources", len(facts), len(sources))
	return facts, sources
}

// Synthesize produces the micro-lesson from gathered facts, or from
// background knowledge when none were gathered. Never returns empty text;
// a failed call yields the deterministic fallback.
func (p *Pipeline) Synthesize(ctx context.Context, question string, facts []types.Fact, mode types.Mode) string {
	system := fmt.Sprintf(synthesisSystem, toneRule(mode))

	var user strings.Builder
	fmt.Fprintf(&user, "Student question: %s\n", question)
	if len(facts) > 0 {
		user.WriteString("\nGround your answer ONLY in these researched facts:\n")
		for i, f := range facts {
			fmt.Fprintf(&user, "%d. %s (source: %s)\n", i+1, f.Claim, f.SourceName)
		}
	} else {
		user.WriteString("\nNo researched facts are available. Answer from your own background knowledge.\n")
	}

	text, err := p.primary.CompleteWithSystem(ctx, system, user.String())
	if err != nil || strings.TrimSpace(text) == "" {
		logging.Research("synthesis failed, using fallback: %v", err)
		return SynthesisFallback
	}
	return text
}

func toneRule(mode types.Mode) string {
	switch mode {
	case types.ModeResearch:
		return "Mention that the answer comes from reliable sources when facts are provided."
	case types.ModeTeaching:
		return "Use an encouraging, step-by-step teaching tone."
	default:
		return "Keep a warm conversational tone."
	}
}
