package stages

import (
	"context"
	"encoding/json"
	"log"

	"github.com/tmc/langchaingo/llms"

	"github.com/rahul/freshfetch/internal/pipeline"
)

// emptyPlan is the fallback when the model returns malformed JSON; a bad
// completion must never fail the stage.
const emptyPlan = `{"schedule": []}`

// Planner turns the user's request into a structured meal plan document.
type Planner struct {
	Model   llms.Model
	Prompts *PromptManager
}

func NewPlanner(model llms.Model, prompts *PromptManager) *Planner {
	return &Planner{Model: model, Prompts: prompts}
}

func (p *Planner) Name() pipeline.StageName { return pipeline.StagePlanner }

func (p *Planner) Run(ctx context.Context, state pipeline.State) (pipeline.Update, error) {
	input := state.LastUserMessage()

	response, err := complete(ctx, p.Model, p.Prompts.Get(PromptPlanner), input)
	if err != nil {
		return pipeline.Update{}, err
	}

	planJSON := stripCodeFence(response)
	if !json.Valid([]byte(planJSON)) {
		log.Printf("Planner returned malformed JSON, using empty schedule")
		planJSON = emptyPlan
	}

	// A fresh plan starts a fresh budget.
	zero := 0.0
	return pipeline.Update{
		PlanJSON:     &planJSON,
		RunningTotal: &zero,
	}, nil
}
