package catalog

import (
	"context"
	"strconv"
	"strings"
)

// Candidate is one search result. Index is the item's position on the
// results page, which is what AddToCart targets.
type Candidate struct {
	Index     int     `json:"index"`
	Title     string  `json:"title"`
	PriceText string  `json:"price_text"`
	Price     float64 `json:"price"`
}

// AddResult is the outcome of the one-shot SearchAndAdd fallback.
type AddResult struct {
	Added bool    `json:"added"`
	Price float64 `json:"price"`
}

// Catalog is the shopping backend consumed by the shopper stage. An empty
// Search result is a valid non-error outcome; errors are reserved for
// transport-level failure. One Catalog represents one external shopping
// session and must not be shared by concurrently running sessions.
type Catalog interface {
	// Search returns the top results for a query, relevance-ranked by
	// the backend, bounded to a small top-K.
	Search(ctx context.Context, query string) ([]Candidate, error)
	// AddToCart adds the result at the given page index to the cart.
	AddToCart(ctx context.Context, index int) (bool, error)
	// SearchAndAdd searches and adds the first result in one shot.
	SearchAndAdd(ctx context.Context, query string) (AddResult, error)
	// CheckoutHandoff navigates to the cart and initiates checkout.
	CheckoutHandoff(ctx context.Context) (bool, error)
	// Close releases the underlying shopping session.
	Close()
}

// ParsePrice converts a scraped price string ("$1,299.99") to a float.
// Unparsable or negative input yields 0 rather than an error; a bad price
// must never fail an item.
func ParsePrice(s string) float64 {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || v < 0 {
		return 0
	}
	return v
}
