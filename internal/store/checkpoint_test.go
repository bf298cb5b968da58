package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rahul/freshfetch/internal/pipeline"
)

func newTestCheckpointStore(t *testing.T) *CheckpointStore {
	t.Helper()
	s, err := NewCheckpointStore(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.DB.Close() })
	return s
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	s := newTestCheckpointStore(t)

	cp := &pipeline.Checkpoint{
		SessionID: "s1",
		Pending:   pipeline.StageShopper,
		ResumeAs:  pipeline.StageShopper,
		State: pipeline.State{
			Conversation: []pipeline.Message{{Role: "human", Content: "plan my week"}},
			PlanJSON:     `{"schedule":[]}`,
			ShoppingList: []string{"apple", "beef"},
			CartItems:    []pipeline.CartItem{{OriginalItem: "apple", ResolvedTitle: "Gala Apples", Price: 3}},
			MissingItems: []pipeline.MissingItem{{OriginalItem: "beef", Reason: pipeline.ReasonNotFound}},
			RunningTotal: 3,
			BudgetLimit:  50,
		},
		History:   []pipeline.StageRecord{{Stage: pipeline.StagePlanner, CompletedAt: time.Now()}},
		LastError: "transient",
		UpdatedAt: time.Now(),
	}
	if err := s.Save("s1", cp); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("expected a checkpoint")
	}
	if got.Pending != pipeline.StageShopper || got.ResumeAs != pipeline.StageShopper || got.LastError != "transient" {
		t.Fatalf("metadata lost: %+v", got)
	}
	if len(got.State.ShoppingList) != 2 || got.State.RunningTotal != 3 || got.State.BudgetLimit != 50 {
		t.Fatalf("state lost: %+v", got.State)
	}
	if len(got.State.CartItems) != 1 || got.State.CartItems[0].ResolvedTitle != "Gala Apples" {
		t.Fatalf("cart lost: %+v", got.State.CartItems)
	}
	if len(got.History) != 1 || got.History[0].Stage != pipeline.StagePlanner {
		t.Fatalf("history lost: %+v", got.History)
	}
}

func TestCheckpointStore_UnknownSessionIsNilNil(t *testing.T) {
	s := newTestCheckpointStore(t)

	got, err := s.Load("ghost")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown session, got %+v", got)
	}
}

func TestCheckpointStore_SaveReplaces(t *testing.T) {
	s := newTestCheckpointStore(t)

	first := &pipeline.Checkpoint{SessionID: "s1", Pending: pipeline.StagePlanner, UpdatedAt: time.Now()}
	if err := s.Save("s1", first); err != nil {
		t.Fatal(err)
	}
	second := &pipeline.Checkpoint{SessionID: "s1", Pending: pipeline.StageCheckout, UpdatedAt: time.Now()}
	if err := s.Save("s1", second); err != nil {
		t.Fatal(err)
	}

	got, err := s.Load("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Pending != pipeline.StageCheckout {
		t.Fatalf("save did not replace: %+v", got)
	}
}

func TestCheckpointStore_Clear(t *testing.T) {
	s := newTestCheckpointStore(t)

	cp := &pipeline.Checkpoint{SessionID: "s1", Pending: pipeline.StagePlanner, UpdatedAt: time.Now()}
	if err := s.Save("s1", cp); err != nil {
		t.Fatal(err)
	}
	if err := s.Clear("s1"); err != nil {
		t.Fatal(err)
	}
	got, err := s.Load("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("session survived Clear: %+v", got)
	}
}
