package stages

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/freshfetch/internal/catalog"
)

// NoMatch is the sentinel a selection policy returns when no candidate is
// acceptable.
const NoMatch = -1

// SelectionPolicy picks the best-matching candidate for one item. It
// returns a position in options or NoMatch, and never fails: a policy that
// cannot decide must still return something. Positions are slice positions;
// the candidate's page index is only for the catalog's AddToCart.
type SelectionPolicy interface {
	Select(ctx context.Context, item, query string, options []catalog.Candidate) int
}

var firstIntRe = regexp.MustCompile(`-?\d+`)

// LLMSelector delegates the choice to a model. An unparsable reply falls
// back to the first option; the catalog already ranked by relevance.
type LLMSelector struct {
	Model   llms.Model
	Prompts *PromptManager
}

func NewLLMSelector(model llms.Model, prompts *PromptManager) *LLMSelector {
	return &LLMSelector{Model: model, Prompts: prompts}
}

func (s *LLMSelector) Select(ctx context.Context, item, query string, options []catalog.Candidate) int {
	var b strings.Builder
	fmt.Fprintf(&b, "User wants: '%s'\n", item)
	fmt.Fprintf(&b, "Search Query used: '%s'\n\nAvailable Options:\n", query)
	for i, opt := range options {
		fmt.Fprintf(&b, "Index %d: %s\n   - Price: %s\n", i, opt.Title, opt.PriceText)
	}
	b.WriteString("\n")
	b.WriteString(s.Prompts.Get(PromptSelector))

	response, err := complete(ctx, s.Model, "", b.String())
	if err != nil {
		return 0
	}
	match := firstIntRe.FindString(response)
	if match == "" {
		return 0
	}
	idx, err := strconv.Atoi(match)
	if err != nil {
		return 0
	}
	return idx
}

// RankedSelector is a deterministic, model-free policy: pick the first
// candidate whose title shares a word with the requested item, NoMatch when
// none does. Keeps the procurement loop testable offline.
type RankedSelector struct{}

func (RankedSelector) Select(ctx context.Context, item, query string, options []catalog.Candidate) int {
	_ = ctx
	_ = query
	wanted := tokenize(item)
	for i, opt := range options {
		for tok := range tokenize(opt.Title) {
			if wanted[tok] {
				return i
			}
		}
	}
	return NoMatch
}

func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,()-")
		if len(f) > 2 {
			tokens[f] = true
		}
	}
	return tokens
}
