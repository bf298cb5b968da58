package catalog

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
)

const (
	defaultStorefrontURL = "https://www.amazon.com/alm/storefront?almBrandId=QW1hem9uIEZyZXNo"
	cartURL              = "https://www.amazon.com/gp/cart/view.html"

	searchBoxSel  = `input#twotabsearchtextbox`
	resultCardSel = `div[data-component-type="s-search-result"]`

	// The catalog is assumed relevance-ranked; only the top few results
	// are worth offering to the selection policy.
	maxSearchResults = 3
)

// collectOptionsJS reads title and price text out of the top search result
// cards. Prices missing from a card come back as "0.00".
const collectOptionsJS = `
(() => {
	const cards = document.querySelectorAll('div[data-component-type="s-search-result"]');
	const out = [];
	for (let i = 0; i < cards.length && i < %d; i++) {
		const card = cards[i];
		const titleEl = card.querySelector('h2');
		const priceEl = card.querySelector('.a-price .a-offscreen');
		out.push({
			index: i,
			title: titleEl ? titleEl.innerText.trim() : '',
			price_text: priceEl ? priceEl.innerText.trim() : '0.00',
		});
	}
	return out;
})()`

// clickAddToCartJS clicks the add-to-cart control inside the result card at
// the given index. Amazon renders the button in a few variants.
const clickAddToCartJS = `
(() => {
	const cards = document.querySelectorAll('div[data-component-type="s-search-result"]');
	if (%d >= cards.length) { return false; }
	const card = cards[%d];
	const btn = card.querySelector("button[name='submit.addToCart']")
		|| card.querySelector("input[name='submit.addToCart']")
		|| card.querySelector("button[aria-label*='Add to cart']");
	if (!btn) { return false; }
	btn.scrollIntoView();
	btn.click();
	return true;
})()`

// clickCheckoutJS tries the Fresh checkout controls in priority order.
const clickCheckoutJS = `
(() => {
	const byName = document.querySelector("input[name='proceedToALMCheckout-QW1hem9uIEZyZXNo']");
	if (byName) { byName.click(); return true; }
	for (const btn of document.querySelectorAll('button, input[type=submit]')) {
		const label = (btn.innerText || btn.value || '') + ' ' + (btn.getAttribute('aria-label') || '');
		if (label.includes('Check out Fresh Cart') || label.includes('Proceed to checkout')) {
			btn.click();
			return true;
		}
	}
	return false;
})()`

// AmazonFresh drives a real browser session against Amazon Fresh. Login
// state survives restarts through the Chrome profile directory.
type AmazonFresh struct {
	Headless      bool
	ProfileDir    string
	StorefrontURL string

	mu            sync.Mutex
	allocCtx      context.Context
	browserCtx    context.Context
	allocCancel   context.CancelFunc
	browserCancel context.CancelFunc
}

func NewAmazonFresh(headless bool, profileDir string) *AmazonFresh {
	return &AmazonFresh{
		Headless:      headless,
		ProfileDir:    profileDir,
		StorefrontURL: defaultStorefrontURL,
	}
}

func (a *AmazonFresh) initBrowser(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.browserCtx != nil {
		select {
		case <-a.browserCtx.Done():
			a.cleanup()
		default:
			return nil
		}
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.Flag("headless", a.Headless),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if a.ProfileDir != "" {
		opts = append(opts, chromedp.UserDataDir(a.ProfileDir))
	}

	a.allocCtx, a.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	a.browserCtx, a.browserCancel = chromedp.NewContext(a.allocCtx)

	if err := chromedp.Run(a.browserCtx, chromedp.Navigate(a.StorefrontURL)); err != nil {
		return err
	}
	log.Printf("Browser ready at %s", a.StorefrontURL)
	return nil
}

func (a *AmazonFresh) cleanup() {
	if a.browserCancel != nil {
		a.browserCancel()
	}
	if a.allocCancel != nil {
		a.allocCancel()
	}
	a.browserCtx = nil
	a.allocCtx = nil
}

// Close releases the browser session. The profile directory keeps cookies
// for the next run.
func (a *AmazonFresh) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cleanup()
}

// actionCtx returns a context bounded for one browser interaction.
func (a *AmazonFresh) actionCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(a.browserCtx, 60*time.Second)
}

// runSearch types the query into the storefront search box and waits for
// result cards to render. A missing results selector is not an error; the
// page may legitimately have no results.
func (a *AmazonFresh) runSearch(ctx context.Context, query string) error {
	if err := a.initBrowser(ctx); err != nil {
		return fmt.Errorf("failed to initialize browser: %v", err)
	}

	actionCtx, cancel := a.actionCtx()
	defer cancel()

	if err := chromedp.Run(actionCtx,
		chromedp.WaitVisible(searchBoxSel, chromedp.ByQuery),
		chromedp.SetValue(searchBoxSel, query, chromedp.ByQuery),
		chromedp.SendKeys(searchBoxSel, kb.Enter, chromedp.ByQuery),
	); err != nil {
		return err
	}

	waitCtx, waitCancel := context.WithTimeout(a.browserCtx, 3*time.Second)
	defer waitCancel()
	_ = chromedp.Run(waitCtx, chromedp.WaitReady(resultCardSel, chromedp.ByQuery))
	return nil
}

func (a *AmazonFresh) Search(ctx context.Context, query string) ([]Candidate, error) {
	if err := a.runSearch(ctx, query); err != nil {
		return nil, err
	}

	actionCtx, cancel := a.actionCtx()
	defer cancel()

	var rows []struct {
		Index     int    `json:"index"`
		Title     string `json:"title"`
		PriceText string `json:"price_text"`
	}
	js := fmt.Sprintf(collectOptionsJS, maxSearchResults)
	if err := chromedp.Run(actionCtx, chromedp.Evaluate(js, &rows)); err != nil {
		return nil, err
	}

	var options []Candidate
	for _, r := range rows {
		if r.Title == "" {
			continue
		}
		options = append(options, Candidate{
			Index:     r.Index,
			Title:     r.Title,
			PriceText: r.PriceText,
			Price:     ParsePrice(r.PriceText),
		})
	}
	return options, nil
}

func (a *AmazonFresh) AddToCart(ctx context.Context, index int) (bool, error) {
	if a.browserCtx == nil {
		return false, fmt.Errorf("browser not started")
	}

	actionCtx, cancel := a.actionCtx()
	defer cancel()

	var clicked bool
	js := fmt.Sprintf(clickAddToCartJS, index, index)
	if err := chromedp.Run(actionCtx, chromedp.Evaluate(js, &clicked)); err != nil {
		return false, err
	}
	if clicked {
		// Give the cart widget a moment before the next search mutates
		// the page.
		_ = chromedp.Run(actionCtx, chromedp.Sleep(2*time.Second))
	}
	return clicked, nil
}

// SearchAndAdd is the brute-force fallback: search the query and add the
// first result, reporting whatever price the card shows.
func (a *AmazonFresh) SearchAndAdd(ctx context.Context, query string) (AddResult, error) {
	options, err := a.Search(ctx, query)
	if err != nil {
		return AddResult{}, err
	}
	if len(options) == 0 {
		return AddResult{}, nil
	}

	added, err := a.AddToCart(ctx, options[0].Index)
	if err != nil {
		return AddResult{}, err
	}
	if !added {
		return AddResult{}, nil
	}
	return AddResult{Added: true, Price: options[0].Price}, nil
}

func (a *AmazonFresh) CheckoutHandoff(ctx context.Context) (bool, error) {
	if err := a.initBrowser(ctx); err != nil {
		return false, fmt.Errorf("failed to initialize browser: %v", err)
	}

	actionCtx, cancel := a.actionCtx()
	defer cancel()

	var clicked bool
	if err := chromedp.Run(actionCtx,
		chromedp.Navigate(cartURL),
		chromedp.Sleep(3*time.Second),
		chromedp.Evaluate(clickCheckoutJS, &clicked),
	); err != nil {
		return false, err
	}
	return clicked, nil
}
