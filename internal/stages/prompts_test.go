package stages

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPromptManager_FileOverridesDefault(t *testing.T) {
	dir := t.TempDir()
	custom := "You are a frugal chef."
	if err := os.WriteFile(filepath.Join(dir, "planner.md"), []byte(custom), 0o644); err != nil {
		t.Fatal(err)
	}

	pm := NewPromptManager(dir)
	if got := pm.Get(PromptPlanner); got != custom {
		t.Fatalf("got %q", got)
	}
	// Names without an override file fall back to the built-in text.
	if got := pm.Get(PromptSelector); !strings.Contains(got, "Index") {
		t.Fatalf("unexpected default selector prompt: %q", got)
	}
}

func TestPromptManager_EmptyFileFallsBack(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "optimizer.md"), []byte("   \n"), 0o644); err != nil {
		t.Fatal(err)
	}

	pm := NewPromptManager(dir)
	if got := pm.Get(PromptOptimizer); !strings.Contains(got, "queries") {
		t.Fatalf("blank file should fall back to default: %q", got)
	}
}

func TestGatePrompts_AllDefaultsPresent(t *testing.T) {
	pm := NewPromptManager("")
	for _, name := range []string{PromptPlanner, PromptExtractor, PromptOptimizer, PromptSelector} {
		if pm.Get(name) == "" {
			t.Fatalf("missing default prompt %q", name)
		}
	}
}
