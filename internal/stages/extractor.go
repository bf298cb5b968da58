package stages

import (
	"context"
	"log"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/freshfetch/internal/pipeline"
)

// PurchaseHistory supplies past buys for preference learning and records
// new plans. The concrete store lives in internal/store.
type PurchaseHistory interface {
	AllPastItems() (string, error)
	SavePlan(prompt, planJSON string, shoppingList []string) error
}

// Extractor consolidates the plan's ingredients into a flat shopping list,
// minus whatever the pantry already covers.
type Extractor struct {
	Model   llms.Model
	Prompts *PromptManager
	History PurchaseHistory
}

func NewExtractor(model llms.Model, prompts *PromptManager, history PurchaseHistory) *Extractor {
	return &Extractor{Model: model, Prompts: prompts, History: history}
}

func (e *Extractor) Name() pipeline.StageName { return pipeline.StageExtractor }

func (e *Extractor) Run(ctx context.Context, state pipeline.State) (pipeline.Update, error) {
	pastBuys := ""
	if e.History != nil {
		items, err := e.History.AllPastItems()
		if err != nil {
			log.Printf("Warning: failed to load purchase history: %v", err)
		} else {
			pastBuys = items
		}
	}

	system := e.Prompts.Get(PromptExtractor)
	system = strings.ReplaceAll(system, "{pantry}", state.Pantry)
	system = strings.ReplaceAll(system, "{history}", pastBuys)

	response, err := complete(ctx, e.Model, system, state.PlanJSON)
	if err != nil {
		return pipeline.Update{}, err
	}

	items := splitList(response)

	if e.History != nil && len(items) > 0 {
		if err := e.History.SavePlan(state.LastUserMessage(), state.PlanJSON, items); err != nil {
			log.Printf("Warning: failed to save plan history: %v", err)
		}
	}

	return pipeline.Update{ShoppingList: items}, nil
}

// splitList turns a comma-separated model reply into clean items. An
// unusable reply yields an empty list, never an error.
func splitList(response string) []string {
	items := []string{}
	for _, raw := range strings.Split(response, ",") {
		clean := strings.TrimSpace(whitespaceRe.ReplaceAllString(raw, " "))
		if clean != "" {
			items = append(items, clean)
		}
	}
	return items
}
