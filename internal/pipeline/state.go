package pipeline

import "time"

// StageName identifies one unit of pipeline work.
type StageName string

const (
	StagePlanner   StageName = "planner"
	StageExtractor StageName = "extractor"
	StageShopper   StageName = "shopper"
	StageReview    StageName = "review"
	StageCheckout  StageName = "checkout"
)

// StageOrder is the fixed execution order. The engine supports exactly this
// topology; there are no conditional edges.
var StageOrder = []StageName{
	StagePlanner,
	StageExtractor,
	StageShopper,
	StageReview,
	StageCheckout,
}

// Message is one entry in the accumulated conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CartItem records one successful procurement, substitutions included.
type CartItem struct {
	OriginalItem  string  `json:"original_item"`
	ResolvedTitle string  `json:"resolved_title"`
	Price         float64 `json:"price"`
}

// MissReason explains why a requested item did not make it into the cart.
type MissReason string

const (
	ReasonNotFound    MissReason = "not_found"
	ReasonNoGoodMatch MissReason = "no_good_match"
	ReasonBudgetCut   MissReason = "budget_cut"
)

// MissingItem records one requested item that was not procured.
type MissingItem struct {
	OriginalItem string     `json:"original_item"`
	Reason       MissReason `json:"reason"`
}

// State is the single record threaded through all stages. Every field is
// declared up front; zero values are the documented defaults.
type State struct {
	Conversation []Message     `json:"conversation"`
	PlanJSON     string        `json:"plan_json"`
	ShoppingList []string      `json:"shopping_list"`
	CartItems    []CartItem    `json:"cart_items"`
	MissingItems []MissingItem `json:"missing_items"`
	RunningTotal float64       `json:"running_total"`
	BudgetLimit  float64       `json:"budget_limit"`
	Approved     bool          `json:"approved"`
	Pantry       string        `json:"pantry"`
}

// LastUserMessage returns the content of the most recent "human" message,
// or "" if there is none.
func (s State) LastUserMessage() string {
	for i := len(s.Conversation) - 1; i >= 0; i-- {
		if s.Conversation[i].Role == "human" {
			return s.Conversation[i].Content
		}
	}
	return ""
}

// Update is a partial state change returned by a stage or supplied via
// PatchState. Nil pointers and nil slices leave the field untouched; a
// non-nil empty slice clears it. Messages are always appended, never
// replaced.
type Update struct {
	AppendMessages []Message
	PlanJSON       *string
	ShoppingList   []string
	CartItems      []CartItem
	MissingItems   []MissingItem
	RunningTotal   *float64
	BudgetLimit    *float64
	Approved       *bool
	Pantry         *string
}

// Apply merges the update into the state.
func (u Update) Apply(s *State) {
	s.Conversation = append(s.Conversation, u.AppendMessages...)
	if u.PlanJSON != nil {
		s.PlanJSON = *u.PlanJSON
	}
	if u.ShoppingList != nil {
		s.ShoppingList = u.ShoppingList
	}
	if u.CartItems != nil {
		s.CartItems = u.CartItems
	}
	if u.MissingItems != nil {
		s.MissingItems = u.MissingItems
	}
	if u.RunningTotal != nil {
		s.RunningTotal = *u.RunningTotal
	}
	if u.BudgetLimit != nil {
		s.BudgetLimit = *u.BudgetLimit
	}
	if u.Approved != nil {
		s.Approved = *u.Approved
	}
	if u.Pantry != nil {
		s.Pantry = *u.Pantry
	}
}

// StageRecord is one completed stage in a session's history.
type StageRecord struct {
	Stage       StageName `json:"stage"`
	CompletedAt time.Time `json:"completed_at"`
}

// Checkpoint is the durable snapshot of one session. Pending is the stage
// the session is paused before ("" when the run has completed); ResumeAs,
// when set, overrides Pending on the next Resume.
type Checkpoint struct {
	SessionID string        `json:"session_id"`
	Pending   StageName     `json:"pending"`
	ResumeAs  StageName     `json:"resume_as,omitempty"`
	State     State         `json:"state"`
	History   []StageRecord `json:"history"`
	LastError string        `json:"last_error,omitempty"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// CheckpointStore is the durable persistence consumed by the engine.
// Load returns (nil, nil) for an unknown session. Save is an atomic
// replace and must be visible to the next Load in the same process.
type CheckpointStore interface {
	Load(sessionID string) (*Checkpoint, error)
	Save(sessionID string, cp *Checkpoint) error
	Clear(sessionID string) error
}

// nextStage returns the stage after s, or "" when s is the last stage.
func nextStage(s StageName) StageName {
	for i, name := range StageOrder {
		if name == s && i+1 < len(StageOrder) {
			return StageOrder[i+1]
		}
	}
	return ""
}

// validStage reports whether s names a stage in the fixed topology.
func validStage(s StageName) bool {
	for _, name := range StageOrder {
		if name == s {
			return true
		}
	}
	return false
}
