package stages

import (
	"context"
	"errors"

	"github.com/rahul/freshfetch/internal/pipeline"
)

// ErrNotApproved marks a checkout attempted before the caller approved the
// cart. The session stays resumable; approval arrives via PatchState.
var ErrNotApproved = errors.New("checkout requires approval")

// Review is a pipeline participant only: the actual review happens outside
// the engine while the session sits at the checkout interrupt point.
type Review struct{}

func (Review) Name() pipeline.StageName { return pipeline.StageReview }

func (Review) Run(ctx context.Context, state pipeline.State) (pipeline.Update, error) {
	return pipeline.Update{}, nil
}

// Checkout is the terminal gate. It only confirms the handoff the shopper
// already initiated; an unapproved cart fails the stage.
type Checkout struct{}

func (Checkout) Name() pipeline.StageName { return pipeline.StageCheckout }

func (Checkout) Run(ctx context.Context, state pipeline.State) (pipeline.Update, error) {
	if !state.Approved {
		return pipeline.Update{}, ErrNotApproved
	}
	return pipeline.Update{
		AppendMessages: []pipeline.Message{{Role: "system", Content: "Handoff."}},
	}, nil
}
