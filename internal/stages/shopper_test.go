package stages

import (
	"context"
	"errors"
	"testing"

	"github.com/rahul/freshfetch/internal/catalog"
	"github.com/rahul/freshfetch/internal/governance"
	"github.com/rahul/freshfetch/internal/pipeline"
)

// fakeCatalog serves scripted search results and records every call.
type fakeCatalog struct {
	results    map[string][]catalog.Candidate
	addOK      bool
	addErr     error
	saaResults map[string]catalog.AddResult
	saaErr     error
	handoffOK  bool
	handoffErr error

	searches []string
	adds     []int
	saas     []string
	handoffs int
}

func (c *fakeCatalog) Search(_ context.Context, query string) ([]catalog.Candidate, error) {
	c.searches = append(c.searches, query)
	return c.results[query], nil
}

func (c *fakeCatalog) AddToCart(_ context.Context, index int) (bool, error) {
	c.adds = append(c.adds, index)
	return c.addOK, c.addErr
}

func (c *fakeCatalog) SearchAndAdd(_ context.Context, query string) (catalog.AddResult, error) {
	c.saas = append(c.saas, query)
	return c.saaResults[query], c.saaErr
}

func (c *fakeCatalog) CheckoutHandoff(_ context.Context) (bool, error) {
	c.handoffs++
	return c.handoffOK, c.handoffErr
}

func (c *fakeCatalog) Close() {}

// selectFunc adapts a function to SelectionPolicy.
type selectFunc func(ctx context.Context, item, query string, options []catalog.Candidate) int

func (f selectFunc) Select(ctx context.Context, item, query string, options []catalog.Candidate) int {
	return f(ctx, item, query, options)
}

var pickFirst = selectFunc(func(_ context.Context, _, _ string, options []catalog.Candidate) int {
	return 0
})

func candidates(entries ...catalog.Candidate) []catalog.Candidate { return entries }

func one(title string, price float64) []catalog.Candidate {
	return candidates(catalog.Candidate{Index: 0, Title: title, PriceText: "", Price: price})
}

// checkPartition asserts every requested item landed in exactly one of
// cart or missing, and that the total advanced by exactly the cart prices
// from the starting total.
func checkPartition(t *testing.T, list []string, start float64, upd pipeline.Update) {
	t.Helper()
	seen := make(map[string]int)
	sum := 0.0
	for _, ci := range upd.CartItems {
		seen[ci.OriginalItem]++
		sum += ci.Price
	}
	for _, mi := range upd.MissingItems {
		seen[mi.OriginalItem]++
	}
	for _, item := range list {
		if seen[item] != 1 {
			t.Fatalf("item %q appears %d times across cart+missing", item, seen[item])
		}
	}
	if len(upd.CartItems)+len(upd.MissingItems) != len(list) {
		t.Fatalf("partition size %d+%d != %d items",
			len(upd.CartItems), len(upd.MissingItems), len(list))
	}
	if upd.RunningTotal == nil {
		t.Fatal("running total not set")
	}
	if *upd.RunningTotal != start+sum {
		t.Fatalf("running total %v != start %v + cart sum %v", *upd.RunningTotal, start, sum)
	}
}

func TestShopper_BudgetOvershootThenCut(t *testing.T) {
	cat := &fakeCatalog{
		results: map[string][]catalog.Candidate{
			"apple": one("Gala Apples", 3.00),
			"beef":  one("Ground Beef 1lb", 12.00),
			"rice":  one("Jasmine Rice", 8.00),
		},
		addOK:     true,
		handoffOK: true,
	}
	s := &Shopper{Catalog: cat, Selection: pickFirst}

	list := []string{"apple", "beef", "rice"}
	upd, err := s.Run(context.Background(), pipeline.State{ShoppingList: list, BudgetLimit: 10})
	if err != nil {
		t.Fatal(err)
	}
	checkPartition(t, list, 0, upd)

	// beef crosses the limit but is allowed through; rice is cut without a
	// catalog call.
	if *upd.RunningTotal != 15.00 {
		t.Fatalf("expected total 15.00, got %.2f", *upd.RunningTotal)
	}
	if len(upd.CartItems) != 2 {
		t.Fatalf("expected 2 cart items, got %+v", upd.CartItems)
	}
	if len(upd.MissingItems) != 1 || upd.MissingItems[0].Reason != pipeline.ReasonBudgetCut {
		t.Fatalf("expected rice budget_cut, got %+v", upd.MissingItems)
	}
	for _, q := range cat.searches {
		if q == "rice" {
			t.Fatal("budget-cut item should never reach the catalog")
		}
	}
}

func TestShopper_AtLimitOnEntryCutsEverything(t *testing.T) {
	cat := &fakeCatalog{handoffOK: true}
	s := &Shopper{Catalog: cat, Selection: pickFirst}

	list := []string{"apple", "beef"}
	upd, err := s.Run(context.Background(), pipeline.State{
		ShoppingList: list,
		BudgetLimit:  10,
		RunningTotal: 10,
	})
	if err != nil {
		t.Fatal(err)
	}
	checkPartition(t, list, 10, upd)
	if len(cat.searches) != 0 {
		t.Fatalf("no item should have been searched: %v", cat.searches)
	}
	for _, mi := range upd.MissingItems {
		if mi.Reason != pipeline.ReasonBudgetCut {
			t.Fatalf("expected budget_cut, got %+v", mi)
		}
	}
	if cat.handoffs != 1 {
		t.Fatalf("handoff should still run once, ran %d times", cat.handoffs)
	}
}

func TestShopper_ZeroBudgetCutsEverything(t *testing.T) {
	cat := &fakeCatalog{
		results:   map[string][]catalog.Candidate{"apple": one("Gala Apples", 3.00)},
		addOK:     true,
		handoffOK: true,
	}
	s := &Shopper{Catalog: cat, Selection: pickFirst}

	// A limit of 0 is a real limit, not a request for the default.
	list := []string{"apple"}
	upd, err := s.Run(context.Background(), pipeline.State{ShoppingList: list, BudgetLimit: 0})
	if err != nil {
		t.Fatal(err)
	}
	checkPartition(t, list, 0, upd)
	if len(cat.searches) != 0 {
		t.Fatalf("must make zero catalog calls, searched: %v", cat.searches)
	}
	if len(upd.MissingItems) != 1 || upd.MissingItems[0].Reason != pipeline.ReasonBudgetCut {
		t.Fatalf("expected budget_cut, got %+v", upd.MissingItems)
	}
}

func TestShopper_EmptyResultsRetryRawItemThenNotFound(t *testing.T) {
	cat := &fakeCatalog{handoffOK: true}
	queries := queriesFunc(func(_ context.Context, items []string) ([]string, error) {
		out := make([]string, len(items))
		for i, it := range items {
			out[i] = "optimized " + it
		}
		return out, nil
	})
	s := &Shopper{Catalog: cat, Queries: queries, Selection: pickFirst}

	list := []string{"dragon fruit"}
	upd, err := s.Run(context.Background(), pipeline.State{ShoppingList: list, BudgetLimit: 100})
	if err != nil {
		t.Fatal(err)
	}
	checkPartition(t, list, 0, upd)
	if len(upd.MissingItems) != 1 || upd.MissingItems[0].Reason != pipeline.ReasonNotFound {
		t.Fatalf("expected not_found, got %+v", upd.MissingItems)
	}
	// Optimized query first, then the raw item.
	if len(cat.searches) != 2 || cat.searches[0] != "optimized dragon fruit" || cat.searches[1] != "dragon fruit" {
		t.Fatalf("unexpected search sequence: %v", cat.searches)
	}
}

func TestShopper_SelectionNoMatch(t *testing.T) {
	cat := &fakeCatalog{
		results:   map[string][]catalog.Candidate{"apple": one("Phone Case", 9.99)},
		handoffOK: true,
	}
	reject := selectFunc(func(_ context.Context, _, _ string, _ []catalog.Candidate) int {
		return NoMatch
	})
	s := &Shopper{Catalog: cat, Selection: reject}

	upd, err := s.Run(context.Background(), pipeline.State{ShoppingList: []string{"apple"}, BudgetLimit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(upd.MissingItems) != 1 || upd.MissingItems[0].Reason != pipeline.ReasonNoGoodMatch {
		t.Fatalf("expected no_good_match, got %+v", upd.MissingItems)
	}
	if len(cat.adds) != 0 {
		t.Fatal("rejected item must not be added to the cart")
	}
}

func TestShopper_OutOfBoundsSelectionIsNoGoodMatch(t *testing.T) {
	cat := &fakeCatalog{
		results:   map[string][]catalog.Candidate{"apple": one("Gala Apples", 3.00)},
		handoffOK: true,
	}
	wild := selectFunc(func(_ context.Context, _, _ string, _ []catalog.Candidate) int {
		return 7
	})
	s := &Shopper{Catalog: cat, Selection: wild}

	upd, err := s.Run(context.Background(), pipeline.State{ShoppingList: []string{"apple"}, BudgetLimit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(upd.MissingItems) != 1 || upd.MissingItems[0].Reason != pipeline.ReasonNoGoodMatch {
		t.Fatalf("expected no_good_match, got %+v", upd.MissingItems)
	}
}

func TestShopper_AddsByPageIndexOfChosenCandidate(t *testing.T) {
	// Page indexes can be sparse when the scrape skips empty-title cards;
	// the selection position and the page index are different spaces.
	cat := &fakeCatalog{
		results: map[string][]catalog.Candidate{
			"apple": candidates(
				catalog.Candidate{Index: 1, Title: "Apple Juice 64oz", Price: 3.29},
				catalog.Candidate{Index: 3, Title: "Gala Apples 3lb Bag", Price: 4.49},
			),
		},
		addOK:     true,
		handoffOK: true,
	}
	second := selectFunc(func(_ context.Context, _, _ string, _ []catalog.Candidate) int {
		return 1
	})
	s := &Shopper{Catalog: cat, Selection: second}

	upd, err := s.Run(context.Background(), pipeline.State{ShoppingList: []string{"apple"}, BudgetLimit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(cat.adds) != 1 || cat.adds[0] != 3 {
		t.Fatalf("expected add at page index 3, got %v", cat.adds)
	}
	if len(upd.CartItems) != 1 || upd.CartItems[0].ResolvedTitle != "Gala Apples 3lb Bag" {
		t.Fatalf("wrong candidate purchased: %+v", upd.CartItems)
	}
}

func TestShopper_FallbackSearchAndAdd(t *testing.T) {
	cat := &fakeCatalog{
		results:    map[string][]catalog.Candidate{"milk": one("Whole Milk Gallon", 4.50)},
		addOK:      false, // direct add fails, fallback takes over
		saaResults: map[string]catalog.AddResult{"milk": {Added: true, Price: 4.50}},
		handoffOK:  true,
	}
	s := &Shopper{Catalog: cat, Selection: pickFirst}

	list := []string{"milk"}
	upd, err := s.Run(context.Background(), pipeline.State{ShoppingList: list, BudgetLimit: 100})
	if err != nil {
		t.Fatal(err)
	}
	checkPartition(t, list, 0, upd)
	if len(upd.CartItems) != 1 {
		t.Fatalf("fallback should have succeeded: %+v", upd)
	}
	// The fallback cannot know which title it grabbed; it records the item.
	if upd.CartItems[0].ResolvedTitle != "milk" || upd.CartItems[0].Price != 4.50 {
		t.Fatalf("unexpected fallback cart entry: %+v", upd.CartItems[0])
	}
	if len(cat.saas) != 1 {
		t.Fatalf("expected one fallback call, got %v", cat.saas)
	}
}

func TestShopper_FallbackFailureIsNotFound(t *testing.T) {
	cat := &fakeCatalog{
		results:   map[string][]catalog.Candidate{"milk": one("Whole Milk Gallon", 4.50)},
		addOK:     false,
		saaErr:    errors.New("page changed"),
		handoffOK: true,
	}
	s := &Shopper{Catalog: cat, Selection: pickFirst}

	upd, err := s.Run(context.Background(), pipeline.State{ShoppingList: []string{"milk"}, BudgetLimit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(upd.MissingItems) != 1 || upd.MissingItems[0].Reason != pipeline.ReasonNotFound {
		t.Fatalf("expected not_found, got %+v", upd.MissingItems)
	}
}

func TestShopper_GovernanceDenyIsNoGoodMatch(t *testing.T) {
	cat := &fakeCatalog{
		results:   map[string][]catalog.Candidate{"wine": one("Red Wine 750ml", 15.00)},
		addOK:     true,
		handoffOK: true,
	}
	policy := governance.NewDefaultPolicyEngine()
	if err := policy.DenyTitle("wine"); err != nil {
		t.Fatal(err)
	}
	s := &Shopper{Catalog: cat, Selection: pickFirst, Policy: policy}

	upd, err := s.Run(context.Background(), pipeline.State{ShoppingList: []string{"wine"}, BudgetLimit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(upd.MissingItems) != 1 || upd.MissingItems[0].Reason != pipeline.ReasonNoGoodMatch {
		t.Fatalf("expected denial as no_good_match, got %+v", upd.MissingItems)
	}
	if len(cat.adds) != 0 {
		t.Fatal("denied item must not be added")
	}
}

func TestShopper_TruncatesCandidatesForSelection(t *testing.T) {
	many := make([]catalog.Candidate, 8)
	for i := range many {
		many[i] = catalog.Candidate{Index: i, Title: "Olive Oil", Price: 9.00}
	}
	cat := &fakeCatalog{
		results:   map[string][]catalog.Candidate{"olive oil": many},
		addOK:     true,
		handoffOK: true,
	}
	var got int
	counter := selectFunc(func(_ context.Context, _, _ string, options []catalog.Candidate) int {
		got = len(options)
		return 0
	})
	s := &Shopper{Catalog: cat, Selection: counter}

	if _, err := s.Run(context.Background(), pipeline.State{ShoppingList: []string{"olive oil"}, BudgetLimit: 100}); err != nil {
		t.Fatal(err)
	}
	if got != maxOptions {
		t.Fatalf("selection saw %d options, want %d", got, maxOptions)
	}
}

func TestShopper_EmptyListStillReplacesAndHandsOff(t *testing.T) {
	cat := &fakeCatalog{handoffOK: true}
	s := &Shopper{Catalog: cat, Selection: pickFirst}

	upd, err := s.Run(context.Background(), pipeline.State{})
	if err != nil {
		t.Fatal(err)
	}
	// Non-nil empty slices so a re-run wipes out earlier results.
	if upd.CartItems == nil || upd.MissingItems == nil {
		t.Fatalf("cart/missing must be non-nil for replace semantics: %+v", upd)
	}
	if cat.handoffs != 1 {
		t.Fatalf("handoff ran %d times", cat.handoffs)
	}
}

func TestShopper_HandoffErrorDoesNotFailStage(t *testing.T) {
	cat := &fakeCatalog{
		results:    map[string][]catalog.Candidate{"apple": one("Gala Apples", 3.00)},
		addOK:      true,
		handoffErr: errors.New("button not found"),
	}
	s := &Shopper{Catalog: cat, Selection: pickFirst}

	upd, err := s.Run(context.Background(), pipeline.State{ShoppingList: []string{"apple"}, BudgetLimit: 100})
	if err != nil {
		t.Fatal(err)
	}
	if len(upd.CartItems) != 1 {
		t.Fatalf("handoff failure must not disturb the cart: %+v", upd)
	}
	if len(upd.AppendMessages) != 1 {
		t.Fatalf("expected a summary message, got %+v", upd.AppendMessages)
	}
}

// queriesFunc adapts a function to QueryPolicy.
type queriesFunc func(ctx context.Context, items []string) ([]string, error)

func (f queriesFunc) Rewrite(ctx context.Context, items []string) ([]string, error) {
	return f(ctx, items)
}

func TestRewriteQueries_FallsBackOnError(t *testing.T) {
	failing := queriesFunc(func(_ context.Context, _ []string) ([]string, error) {
		return nil, errors.New("model offline")
	})
	items := []string{"apple", "beef"}
	got := rewriteQueries(context.Background(), failing, items)
	if len(got) != 2 || got[0] != "apple" || got[1] != "beef" {
		t.Fatalf("expected identity fallback, got %v", got)
	}
	if nilGot := rewriteQueries(context.Background(), nil, items); len(nilGot) != 2 {
		t.Fatalf("nil policy should be identity: %v", nilGot)
	}
}
