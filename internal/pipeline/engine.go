package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rahul/freshfetch/internal/observability"
)

var (
	// ErrNoSession is returned when the session id has no checkpoint.
	ErrNoSession = errors.New("no such session")
	// ErrCompleted is returned when resuming a session that already ran
	// to the terminal stage.
	ErrCompleted = errors.New("session already completed")
)

// StageError reports a stage function failure. The session remains
// resumable from its last persisted checkpoint.
type StageError struct {
	Stage StageName
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Stage is a unit of pipeline work. Run receives the full current state
// and returns a partial update; fields it does not set are left untouched.
type Stage interface {
	Name() StageName
	Run(ctx context.Context, state State) (Update, error)
}

// RunResult is returned by Start and Resume. Pending is the interrupt
// point the session halted before, or "" when Completed.
type RunResult struct {
	SessionID string
	Pending   StageName
	Completed bool
	State     State
}

// Engine drives the fixed stage graph, persisting a checkpoint after every
// stage and halting before any stage in its interrupt set. One logical
// session executes single-threaded; distinct sessions may run concurrently.
type Engine struct {
	store      CheckpointStore
	stages     map[StageName]Stage
	interrupts map[StageName]bool
	logger     *observability.Logger

	mu       sync.Mutex
	sessions map[string]*sync.Mutex
}

// NewEngine builds an engine over the given stages. Interrupt points are an
// explicit, data-defined set consulted after each stage completes.
func NewEngine(store CheckpointStore, stages []Stage, interrupts []StageName, logger *observability.Logger) (*Engine, error) {
	byName := make(map[StageName]Stage, len(stages))
	for _, st := range stages {
		if !validStage(st.Name()) {
			return nil, fmt.Errorf("unknown stage %q", st.Name())
		}
		byName[st.Name()] = st
	}
	for _, name := range StageOrder {
		if byName[name] == nil {
			return nil, fmt.Errorf("missing stage %q", name)
		}
	}
	points := make(map[StageName]bool, len(interrupts))
	for _, name := range interrupts {
		if !validStage(name) {
			return nil, fmt.Errorf("unknown interrupt point %q", name)
		}
		points[name] = true
	}
	if logger == nil {
		logger = observability.NewLogger()
	}
	return &Engine{
		store:      store,
		stages:     byName,
		interrupts: points,
		logger:     logger,
		sessions:   make(map[string]*sync.Mutex),
	}, nil
}

// sessionLock returns the mutex serializing all checkpoint mutation for one
// session id.
func (e *Engine) sessionLock(sessionID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.sessions[sessionID]
	if !ok {
		l = &sync.Mutex{}
		e.sessions[sessionID] = l
	}
	return l
}

// Start creates (or overwrites) the checkpoint for sessionID and executes
// from the entry stage until the next interrupt point or completion.
func (e *Engine) Start(ctx context.Context, sessionID string, initial State) (*RunResult, error) {
	l := e.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	cp := &Checkpoint{
		SessionID: sessionID,
		Pending:   StageOrder[0],
		State:     initial,
	}
	if err := e.persist(cp); err != nil {
		return nil, err
	}
	if e.interrupts[cp.Pending] {
		return &RunResult{SessionID: sessionID, Pending: cp.Pending, State: cp.State}, nil
	}
	return e.run(ctx, cp)
}

// PendingStage returns the stage sessionID is paused before, or "" if the
// run completed. ErrNoSession when the session does not exist.
func (e *Engine) PendingStage(ctx context.Context, sessionID string) (StageName, error) {
	_ = ctx
	l := e.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	cp, err := e.store.Load(sessionID)
	if err != nil {
		return "", fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		return "", ErrNoSession
	}
	if cp.ResumeAs != "" {
		return cp.ResumeAs, nil
	}
	return cp.Pending, nil
}

// SessionState returns a copy of sessionID's persisted state for
// inspection while the session is paused.
func (e *Engine) SessionState(ctx context.Context, sessionID string) (State, error) {
	_ = ctx
	l := e.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	cp, err := e.store.Load(sessionID)
	if err != nil {
		return State{}, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		return State{}, ErrNoSession
	}
	return cp.State, nil
}

// PatchState merges upd into the persisted state without executing any
// stage. When resumeAs is non-empty the next Resume begins at that stage
// instead of the originally pending one.
func (e *Engine) PatchState(ctx context.Context, sessionID string, upd Update, resumeAs StageName) error {
	_ = ctx
	if resumeAs != "" && !validStage(resumeAs) {
		return fmt.Errorf("unknown stage %q", resumeAs)
	}
	l := e.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	cp, err := e.store.Load(sessionID)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		return ErrNoSession
	}
	upd.Apply(&cp.State)
	if resumeAs != "" {
		cp.ResumeAs = resumeAs
	}
	return e.persist(cp)
}

// Resume continues execution from the recorded pending stage (or the
// ResumeAs override) through to the next interrupt point or completion.
// The stage being resumed into always executes, interrupt point or not;
// calling Resume is the caller's go-ahead.
func (e *Engine) Resume(ctx context.Context, sessionID string) (*RunResult, error) {
	l := e.sessionLock(sessionID)
	l.Lock()
	defer l.Unlock()

	cp, err := e.store.Load(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil {
		return nil, ErrNoSession
	}
	if cp.ResumeAs != "" {
		cp.Pending = cp.ResumeAs
		cp.ResumeAs = ""
	}
	if cp.Pending == "" {
		return nil, ErrCompleted
	}
	return e.run(ctx, cp)
}

// run executes cp.Pending and advances until the next interrupt point or
// the end of the graph. The caller holds the session lock.
func (e *Engine) run(ctx context.Context, cp *Checkpoint) (*RunResult, error) {
	for {
		stage := e.stages[cp.Pending]
		observability.SetStatus(cp.SessionID, string(stage.Name()))
		e.logger.LogStageStart(cp.SessionID, string(stage.Name()))

		upd, err := stage.Run(ctx, cp.State)
		if err != nil {
			cp.LastError = err.Error()
			e.logger.LogStageError(cp.SessionID, string(stage.Name()), err)
			if perr := e.persist(cp); perr != nil {
				return nil, perr
			}
			observability.SetStatus(cp.SessionID, "")
			return nil, &StageError{Stage: stage.Name(), Err: err}
		}

		upd.Apply(&cp.State)
		cp.History = append(cp.History, StageRecord{Stage: stage.Name(), CompletedAt: time.Now()})
		cp.LastError = ""
		cp.Pending = nextStage(stage.Name())

		// The snapshot lands before the interrupt decision so a crash
		// here never loses the stage's work.
		if err := e.persist(cp); err != nil {
			return nil, err
		}
		e.logger.LogStageEnd(cp.SessionID, string(stage.Name()))

		if cp.Pending == "" {
			observability.SetStatus(cp.SessionID, "")
			return &RunResult{SessionID: cp.SessionID, Completed: true, State: cp.State}, nil
		}
		if e.interrupts[cp.Pending] {
			observability.SetStatus(cp.SessionID, "")
			return &RunResult{SessionID: cp.SessionID, Pending: cp.Pending, State: cp.State}, nil
		}
	}
}

// persist saves the checkpoint, refusing to let execution advance past a
// stage whose result could not be made durable.
func (e *Engine) persist(cp *Checkpoint) error {
	cp.UpdatedAt = time.Now()
	if err := e.store.Save(cp.SessionID, cp); err != nil {
		return fmt.Errorf("checkpoint save: %w", err)
	}
	e.logger.LogCheckpoint(cp.SessionID, string(cp.Pending))
	return nil
}
