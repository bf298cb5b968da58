package stages

import (
	"os"
	"path/filepath"
	"strings"
)

// Prompt names resolved by the PromptManager.
const (
	PromptPlanner   = "planner"
	PromptExtractor = "extractor"
	PromptOptimizer = "optimizer"
	PromptSelector  = "selector"
)

// PromptManager loads stage prompts from a directory of .md files, falling
// back to the built-in defaults when a file is absent. Editing a prompt
// never requires a rebuild.
type PromptManager struct {
	Directory string
}

func NewPromptManager(dir string) *PromptManager {
	return &PromptManager{Directory: dir}
}

// Get returns the prompt text for name.
func (pm *PromptManager) Get(name string) string {
	if pm.Directory != "" {
		path := filepath.Join(pm.Directory, name+".md")
		data, err := os.ReadFile(path)
		if err == nil && len(strings.TrimSpace(string(data))) > 0 {
			return string(data)
		}
	}
	return defaultPrompts[name]
}

var defaultPrompts = map[string]string{
	PromptPlanner: `You are a professional chef. Create a JSON object with ONE key: "schedule".
The "schedule" is an array of objects. Each object represents a DAY and must have:
- "day": "Monday", "Tuesday", etc.
- "breakfast": { "title": "Name", "ingredients": "Specific list with quantities (e.g. '2 Eggs', '1 cup Oats')", "instructions": "Steps" }
- "lunch": { "title": "Name", "ingredients": "Specific list with quantities (e.g. '4oz Chicken', '1 Avocado')", "instructions": "Steps" }
- "dinner": { "title": "Name", "ingredients": "Specific list with quantities (e.g. '1lb Beef', '1 cup Rice')", "instructions": "Steps" }
- "nutrition": { "calories": 2000, "protein_g": 150, "carbs_g": 200, "fat_g": 70 }

CRITICAL: You must list specific quantities (lbs, oz, cups, count) for every ingredient so the shopping list is accurate.`,

	PromptExtractor: `You are a rigorous shopping list compiler.
1. Read the provided JSON meal plan.
2. Extract the 'ingredients' string from EVERY meal.
3. Consolidate items by summing up quantities where possible (e.g., "2 eggs" + "2 eggs" = "4 Eggs").
4. Compare against PANTRY: {pantry}. Remove any matches.
5. Check HISTORY below. If a generic item (e.g. "Peanut Butter") matches a brand in history (e.g. "Smuckers"), use the specific one.
6. STRICT OUTPUT RULE: Return ONLY a comma-separated list of items. Do not speak. Do not add introduction text.

HISTORY: {history}`,

	PromptOptimizer: `You are a search query optimizer for a grocery storefront.
Convert the following shopping list items into the BEST possible search queries.
Remove specific quantities (like '2 cups', '1 lb') unless it's a standard pack size (like '12 pack').
Keep brand names if specified. Keep dietary types (e.g. 'Gluten Free').
Return a JSON object with a key 'queries' which is a list of strings corresponding to the input list.`,

	PromptSelector: `INSTRUCTIONS:
1. Identify the option that BEST matches the User's request.
2. Consider quantity: If user wants '2 lbs' and option is '1 lb', that's okay (we can buy multiple later, but for now just pick the item).
3. Consider value and ratings.
4. If NO option is a good match, return -1.
5. Return ONLY the Index integer (0, 1, 2...) or -1.`,
}
