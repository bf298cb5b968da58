package stages

import (
	"context"
	"fmt"
	"log"

	"github.com/rahul/freshfetch/internal/catalog"
	"github.com/rahul/freshfetch/internal/governance"
	"github.com/rahul/freshfetch/internal/observability"
	"github.com/rahul/freshfetch/internal/pipeline"
)

// DefaultBudgetLimit applies when the caller never set a ceiling. The
// stage itself takes the limit in the state at face value; a limit of 0
// cuts everything.
const DefaultBudgetLimit = 200.0

// maxOptions bounds how many candidates reach the selection policy.
const maxOptions = 5

// Shopper walks the shopping list in order, giving earlier items first
// claim on the budget. Every requested item ends up in exactly one of
// CartItems or MissingItems; a single item's failure never aborts the loop.
type Shopper struct {
	Catalog   catalog.Catalog
	Queries   QueryPolicy           // nil means identity
	Selection SelectionPolicy
	Policy    governance.PolicyEngine // nil disables purchase rules
	Logger    *observability.Logger
	SessionID string
}

func (s *Shopper) Name() pipeline.StageName { return pipeline.StageShopper }

func (s *Shopper) Run(ctx context.Context, state pipeline.State) (pipeline.Update, error) {
	list := state.ShoppingList
	total := state.RunningTotal
	limit := state.BudgetLimit

	queries := rewriteQueries(ctx, s.Queries, list)

	// Non-nil empty slices so a re-run replaces earlier results instead
	// of leaving them in place.
	cart := []pipeline.CartItem{}
	missing := []pipeline.MissingItem{}

	for i, item := range list {
		query := queries[i]

		// The gate is checked before, not after, each attempt: the one
		// purchase that crosses the limit is allowed through, everything
		// after it is cut without touching the catalog.
		if total >= limit {
			missing = append(missing, pipeline.MissingItem{OriginalItem: item, Reason: pipeline.ReasonBudgetCut})
			s.logItem(item, "budget_cut", "", 0)
			continue
		}

		options := s.search(ctx, query)
		if len(options) == 0 && query != item {
			// The optimized query found nothing; the raw item sometimes does.
			options = s.search(ctx, item)
		}
		if len(options) == 0 {
			missing = append(missing, pipeline.MissingItem{OriginalItem: item, Reason: pipeline.ReasonNotFound})
			s.logItem(item, "not_found", query, 0)
			continue
		}
		if len(options) > maxOptions {
			options = options[:maxOptions]
		}

		idx := s.Selection.Select(ctx, item, query, options)
		if idx < 0 || idx >= len(options) {
			missing = append(missing, pipeline.MissingItem{OriginalItem: item, Reason: pipeline.ReasonNoGoodMatch})
			s.logItem(item, "no_good_match", query, 0)
			continue
		}
		chosen := options[idx]

		if s.denied(ctx, item, chosen) {
			missing = append(missing, pipeline.MissingItem{OriginalItem: item, Reason: pipeline.ReasonNoGoodMatch})
			s.logItem(item, "no_good_match", chosen.Title, chosen.Price)
			continue
		}

		added, err := s.Catalog.AddToCart(ctx, chosen.Index)
		if err != nil {
			log.Printf("Add to cart failed for %q: %v", item, err)
			added = false
		}
		if added {
			cart = append(cart, pipeline.CartItem{OriginalItem: item, ResolvedTitle: chosen.Title, Price: chosen.Price})
			total += chosen.Price
			s.logItem(item, "added", chosen.Title, chosen.Price)
			continue
		}

		// Fallback ladder: one brute-force search-and-add on the query,
		// committing at whatever price the first result shows.
		result, err := s.Catalog.SearchAndAdd(ctx, query)
		if err == nil && result.Added {
			cart = append(cart, pipeline.CartItem{OriginalItem: item, ResolvedTitle: item, Price: result.Price})
			total += result.Price
			s.logItem(item, "added_fallback", query, result.Price)
			continue
		}
		missing = append(missing, pipeline.MissingItem{OriginalItem: item, Reason: pipeline.ReasonNotFound})
		s.logItem(item, "not_found", query, 0)
	}

	if s.Logger != nil {
		s.Logger.LogBudget(s.SessionID, total, limit)
	}

	// The handoff runs exactly once, however many items succeeded. Its
	// outcome is reported but never changes the cart/missing partition.
	handoff, err := s.Catalog.CheckoutHandoff(ctx)
	if err != nil {
		log.Printf("Checkout handoff error: %v", err)
		handoff = false
	}
	if s.Logger != nil {
		s.Logger.LogHandoff(s.SessionID, handoff)
	}

	note := fmt.Sprintf("Shopping done: %d in cart, %d missing, total $%.2f. Checkout handoff initiated: %t.",
		len(cart), len(missing), total, handoff)

	return pipeline.Update{
		CartItems:    cart,
		MissingItems: missing,
		RunningTotal: &total,
		AppendMessages: []pipeline.Message{
			{Role: "system", Content: note},
		},
	}, nil
}

// search treats transport errors like empty results; per-item failures
// surface as missing items, never as stage failures.
func (s *Shopper) search(ctx context.Context, query string) []catalog.Candidate {
	options, err := s.Catalog.Search(ctx, query)
	if err != nil {
		log.Printf("Catalog search failed for %q: %v", query, err)
		return nil
	}
	return options
}

func (s *Shopper) denied(ctx context.Context, item string, chosen catalog.Candidate) bool {
	if s.Policy == nil {
		return false
	}
	res, err := s.Policy.Evaluate(ctx, governance.Request{Item: item, Title: chosen.Title, Price: chosen.Price})
	if err != nil {
		log.Printf("Policy evaluation failed for %q: %v", item, err)
		return false
	}
	if res.Effect == governance.EffectDeny {
		log.Printf("Purchase of %q denied: %s", item, res.Reason)
		return true
	}
	return false
}

func (s *Shopper) logItem(item, outcome, detail string, price float64) {
	if s.Logger != nil {
		s.Logger.LogItem(s.SessionID, item, outcome, detail, price)
	}
}
