package research

import (
	"context"
	"fmt"
	"strings"

	"studymate/internal/llm"
	"studymate/internal/types"
)

const extractSystem = `You extract factual claims from reference text for a tutoring assistant.
Rules:
- Return ONLY a JSON object: {"claims": ["...", "..."]}
- At most %d claims.
- Each claim is one short declarative sentence of verifiable fact.
- No opinions, no advice, no speculation, no marketing language.
- Claims must come from the provided text, not your own knowledge.
- If the text holds no usable facts, return {"claims": []}.`

type claimsPayload struct {
	Claims []string `json:"claims"`
}

// Extractor pulls short factual claims out of cleaned page text.
type Extractor struct {
	primary   llm.Client
	fallback  llm.Client
	perSource int
}

// NewExtractor builds an extractor capped at perSource claims per page.
func NewExtractor(primary, fallback llm.Client, perSource int) *Extractor {
	if perSource < 1 {
		perSource = 3
	}
	return &Extractor{primary: primary, fallback: fallback, perSource: perSource}
}

// Extract returns at most perSource facts from one source's cleaned text,
// each tagged with the source name and URL.
func (e *Extractor) Extract(ctx context.Context, question, sourceName, sourceURL, cleanText string) ([]types.Fact, error) {
	system := fmt.Sprintf(extractSystem, e.perSource)
	user := fmt.Sprintf("Question being researched: %s\n\nSource text:\n%s", question, cleanText)

	var payload claimsPayload
	if err := llm.CompleteJSON(ctx, e.primary, e.fallback, system, user, &payload); err != nil {
		return nil, fmt.Errorf("extract claims from %s: %w", sourceURL, err)
	}

	facts := make([]types.Fact, 0, e.perSource)
	for _, claim := range payload.Claims {
		claim = strings.TrimSpace(claim)
		if claim == "" {
			continue
		}
		facts = append(facts, types.Fact{
			Claim:      claim,
			SourceName: sourceName,
			URL:        sourceURL,
		})
		if len(facts) >= e.perSource {
			break
		}
	}
	return facts, nil
}
