package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"studymate/internal/logging"
)

// ExtractJSON finds the outermost JSON object in a model reply, tolerating
// surrounding prose and markdown fences.
func ExtractJSON(response string) (string, bool) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		return "", false
	}
	return response[start : end+1], true
}

// CompleteJSON issues a completion expected to produce a JSON object and
// unmarshals it into out. On malformed output it retries exactly once
// against the fallback client (a stronger model), then fails with ErrSchema.
func CompleteJSON(ctx context.Context, primary, fallback Client, systemPrompt, userPrompt string, out interface{}) error {
	if err := completeJSONOnce(ctx, primary, systemPrompt, userPrompt, out); err == nil {
		return nil
	} else if ctx.Err() != nil {
		return err
	} else {
		logging.APIDebug("structured call failed on primary, retrying on fallback: %v", err)
	}

	retry := fallback
	if retry == nil {
		retry = primary
	}
	if err := completeJSONOnce(ctx, retry, systemPrompt, userPrompt, out); err != nil {
		return fmt.Errorf("%w: fallback also failed: %v", ErrSchema, err)
	}
	return nil
}

func completeJSONOnce(ctx context.Context, client Client, systemPrompt, userPrompt string, out interface{}) error {
	response, err := client.CompleteWithSystem(ctx, systemPrompt, userPrompt)
	if err != nil {
		return err
	}
	jsonStr, ok := ExtractJSON(response)
	if !ok {
		return fmt.Errorf("%w: no JSON object in reply", ErrSchema)
	}
	if err := json.Unmarshal([]byte(jsonStr), out); err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return nil
}
