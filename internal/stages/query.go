package stages

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/tmc/langchaingo/llms"
)

// QueryPolicy derives search queries from shopping-list items. Rewrite
// returns one query per item, in item order. Identity is a valid policy.
type QueryPolicy interface {
	Rewrite(ctx context.Context, items []string) ([]string, error)
}

// LLMQueryPolicy batches the whole list into a single completion that
// strips quantities while keeping brand and dietary qualifiers.
type LLMQueryPolicy struct {
	Model   llms.Model
	Prompts *PromptManager
}

func NewLLMQueryPolicy(model llms.Model, prompts *PromptManager) *LLMQueryPolicy {
	return &LLMQueryPolicy{Model: model, Prompts: prompts}
}

func (p *LLMQueryPolicy) Rewrite(ctx context.Context, items []string) ([]string, error) {
	encoded, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	input := fmt.Sprintf("Input List: %s", encoded)

	response, err := complete(ctx, p.Model, p.Prompts.Get(PromptOptimizer), input)
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Queries []string `json:"queries"`
	}
	if err := json.Unmarshal([]byte(stripCodeFence(response)), &parsed); err != nil {
		return nil, fmt.Errorf("malformed optimizer reply: %v", err)
	}
	if len(parsed.Queries) != len(items) {
		return nil, fmt.Errorf("optimizer returned %d queries for %d items", len(parsed.Queries), len(items))
	}
	return parsed.Queries, nil
}

// rewriteQueries applies the policy, falling back to the items themselves
// on any failure. Earlier items keep their position so queries and items
// stay paired.
func rewriteQueries(ctx context.Context, policy QueryPolicy, items []string) []string {
	if policy == nil {
		return items
	}
	queries, err := policy.Rewrite(ctx, items)
	if err != nil {
		log.Printf("Query optimization failed, searching raw items: %v", err)
		return items
	}
	return queries
}
