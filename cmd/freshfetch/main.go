package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/rahul/freshfetch/internal/catalog"
	"github.com/rahul/freshfetch/internal/governance"
	"github.com/rahul/freshfetch/internal/observability"
	"github.com/rahul/freshfetch/internal/pipeline"
	"github.com/rahul/freshfetch/internal/recipes"
	"github.com/rahul/freshfetch/internal/stages"
	"github.com/rahul/freshfetch/internal/store"
	"github.com/rahul/freshfetch/pkg/config"
)

func main() {
	configPath := flag.String("config", "config.json", "path to the config file")
	sessionID := flag.String("session", "", "session id to resume (new session when empty)")
	request := flag.String("request", "", "meal planning request for a new session")
	recipeURL := flag.String("recipe", "", "recipe URL to fold into the planning request")
	budget := flag.Float64("budget", 0, "budget limit (overrides config and saved setting)")
	pantryPath := flag.String("pantry", "", "pantry YAML file (overrides config)")
	flag.Parse()

	observability.PrintBanner()
	observability.InitializeTerminal()
	defer observability.CleanupTerminal()

	// Route all log output through the terminal mutex so it never
	// interrupts the dashboard's cursor save/restore sequence.
	log.SetOutput(observability.NewTermWriter())

	cfg := config.LoadConfig(*configPath)

	checkpoints, err := store.NewCheckpointStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}
	history, err := store.NewHistoryStore(cfg.Memory.Path)
	if err != nil {
		log.Fatal(err)
	}

	// Initialize LLM (using default enabled provider)
	pName, pCfg := cfg.GetDefaultProvider()
	if pName == "" {
		log.Fatal("No enabled provider found in config")
	}

	var model llms.Model
	switch pName {
	case "openai", "openrouter":
		opts := []openai.Option{
			openai.WithToken(pCfg.APIKey),
			openai.WithModel(pCfg.Model),
		}
		if pCfg.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(pCfg.BaseURL))
		}
		model, err = openai.New(opts...)
	default:
		log.Fatalf("Provider %s not yet implemented in main", pName)
	}
	if err != nil {
		log.Fatal(err)
	}

	prompts := stages.NewPromptManager(cfg.App.PromptsDir)
	logger := observability.NewLogger()

	gov := governance.NewDefaultPolicyEngine()
	gov.MaxItemPrice = cfg.Governance.MaxItemPrice
	for _, term := range cfg.Governance.BannedTerms {
		if err := gov.DenyTitle(term); err != nil {
			log.Printf("Warning: invalid banned term %q: %v", term, err)
		}
	}

	// One catalog handle per logical session; released on exit.
	browser := catalog.NewAmazonFresh(cfg.Browser.Headless, cfg.Browser.ProfileDir)
	if cfg.Browser.StorefrontURL != "" {
		browser.StorefrontURL = cfg.Browser.StorefrontURL
	}
	defer browser.Close()

	id := *sessionID
	newSession := id == ""
	if newSession {
		id = uuid.NewString()
	}

	shopper := &stages.Shopper{
		Catalog:   browser,
		Queries:   stages.NewLLMQueryPolicy(stages.WithTranscript(model, logger, id, "optimizer"), prompts),
		Selection: stages.NewLLMSelector(stages.WithTranscript(model, logger, id, "selector"), prompts),
		Policy:    gov,
		Logger:    logger,
		SessionID: id,
	}

	engine, err := pipeline.NewEngine(
		checkpoints,
		[]pipeline.Stage{
			stages.NewPlanner(stages.WithTranscript(model, logger, id, "planner"), prompts),
			stages.NewExtractor(stages.WithTranscript(model, logger, id, "extractor"), prompts, history),
			shopper,
			stages.Review{},
			stages.Checkout{},
		},
		[]pipeline.StageName{pipeline.StageShopper, pipeline.StageCheckout},
		logger,
	)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Live status line (1-second updates)
	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				observability.Heartbeat()
				observability.PrintLiveStatus()
			}
		}
	}()

	stdin := bufio.NewReader(os.Stdin)

	if newSession {
		if *request == "" {
			log.Fatal("-request is required for a new session")
		}
		limit := resolveBudget(*budget, cfg, history)

		pantryFile := *pantryPath
		if pantryFile == "" {
			pantryFile = cfg.App.PantryFile
		}
		pantry, err := config.LoadPantry(pantryFile)
		if err != nil {
			log.Fatalf("failed to load pantry: %v", err)
		}

		fullRequest := *request
		if *recipeURL != "" {
			content, err := recipes.NewFetcher().Fetch(ctx, *recipeURL)
			if err != nil {
				log.Printf("Warning: could not fetch recipe: %v", err)
			} else {
				fullRequest += "\n\nInclude this recipe in the plan:\n" + content
			}
		}

		log.Printf("Starting session %s (budget $%.2f)", id, limit)
		initial := pipeline.State{
			Conversation: []pipeline.Message{{Role: "human", Content: fullRequest}},
			BudgetLimit:  limit,
			Pantry:       pantry,
		}
		if _, err := engine.Start(ctx, id, initial); err != nil {
			log.Fatalf("pipeline failed: %v", err)
		}
		_ = history.SaveSetting("budget_limit", strconv.FormatFloat(limit, 'f', 2, 64))
	} else {
		log.Printf("Resuming session %s", id)
	}

	runSession(ctx, engine, id, stdin)
}

// resolveBudget picks the budget from the flag, the saved setting, or the
// config default, in that order.
func resolveBudget(flagValue float64, cfg *config.Config, history *store.HistoryStore) float64 {
	if flagValue > 0 {
		return flagValue
	}
	if saved := history.GetSetting("budget_limit", ""); saved != "" {
		if v, err := strconv.ParseFloat(saved, 64); err == nil && v > 0 {
			return v
		}
	}
	if cfg.App.BudgetLimit > 0 {
		return cfg.App.BudgetLimit
	}
	return stages.DefaultBudgetLimit
}

// runSession walks the session through its interrupt points until it
// completes or the user bails out.
func runSession(ctx context.Context, engine *pipeline.Engine, id string, stdin *bufio.Reader) {
	for {
		pending, err := engine.PendingStage(ctx, id)
		if errors.Is(err, pipeline.ErrNoSession) {
			log.Fatalf("unknown session %s", id)
		}
		if err != nil {
			log.Fatal(err)
		}

		cp := mustState(ctx, engine, id)

		switch pending {
		case "":
			printSummary(cp)
			log.Printf("Session %s complete.", id)
			return

		case pipeline.StageShopper:
			fmt.Println("\nShopping list:")
			for i, item := range cp.ShoppingList {
				fmt.Printf("  %d. %s\n", i+1, item)
			}
			fmt.Print("\nEdit list (comma-separated) or press Enter to shop, 'q' to quit: ")
			line := readLine(stdin)
			if line == "q" {
				log.Printf("Session %s paused before shopper; resume with -session %s", id, id)
				return
			}
			if line != "" {
				edited := splitCSV(line)
				if err := engine.PatchState(ctx, id, pipeline.Update{ShoppingList: edited}, pipeline.StageShopper); err != nil {
					log.Fatal(err)
				}
				log.Printf("Shopping list replaced (%d items)", len(edited))
			}

		case pipeline.StageCheckout:
			printSummary(cp)
			fmt.Print("\nApprove checkout? [y/N]: ")
			if readLine(stdin) != "y" {
				log.Printf("Not approved. Session %s paused before checkout; resume with -session %s", id, id)
				return
			}
			approved := true
			if err := engine.PatchState(ctx, id, pipeline.Update{Approved: &approved}, ""); err != nil {
				log.Fatal(err)
			}
		}

		if _, err := engine.Resume(ctx, id); err != nil {
			var stageErr *pipeline.StageError
			if errors.As(err, &stageErr) {
				log.Fatalf("stage %s failed: %v (session %s is resumable)", stageErr.Stage, stageErr.Err, id)
			}
			if errors.Is(err, pipeline.ErrCompleted) {
				continue
			}
			log.Fatal(err)
		}
	}
}

func mustState(ctx context.Context, engine *pipeline.Engine, id string) pipeline.State {
	state, err := engine.SessionState(ctx, id)
	if err != nil {
		log.Fatal(err)
	}
	return state
}

func printSummary(state pipeline.State) {
	fmt.Println("\nCart:")
	for _, item := range state.CartItems {
		fmt.Printf("  + %s ($%.2f) [for: %s]\n", item.ResolvedTitle, item.Price, item.OriginalItem)
	}
	if len(state.MissingItems) > 0 {
		fmt.Println("Missing:")
		for _, item := range state.MissingItems {
			fmt.Printf("  - %s (%s)\n", item.OriginalItem, item.Reason)
		}
	}
	fmt.Printf("Total: $%.2f of $%.2f budget\n", state.RunningTotal, state.BudgetLimit)
}

func readLine(r *bufio.Reader) string {
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return ""
	}
	return strings.TrimSpace(line)
}

func splitCSV(line string) []string {
	parts := []string{}
	for _, p := range strings.Split(line, ",") {
		p = strings.TrimSpace(p)
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}
