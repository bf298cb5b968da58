package observability

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// EventType defines the category of the log event.
type EventType string

const (
	EventTypeStageStart EventType = "stage_start"
	EventTypeStageEnd   EventType = "stage_end"
	EventTypeStageError EventType = "stage_error"
	EventTypeCheckpoint EventType = "checkpoint"
	EventTypeItem       EventType = "item"
	EventTypeBudget     EventType = "budget"
	EventTypeHandoff    EventType = "handoff"
	EventTypeLLM        EventType = "llm"
)

// Event represents a structured log entry.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// Logger handles structured logging.
type Logger struct {
	llmLogPath string
	maxSize    int64
}

func NewLogger() *Logger {
	return &Logger{
		llmLogPath: filepath.Join("logs", "llm.jsonl"),
		maxSize:    10 * 1024 * 1024, // 10MB
	}
}

// Log emits a structured JSON event to stdout.
func (l *Logger) Log(evt Event) {
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	data, err := json.Marshal(evt)
	if err != nil {
		fmt.Printf("{\"error\": \"failed to marshal event: %v\"}\n", err)
		return
	}
	fmt.Println(string(data))

	if evt.Type == EventTypeLLM {
		l.writeToFile(data)
	}
}

func (l *Logger) writeToFile(data []byte) {
	if err := os.MkdirAll(filepath.Dir(l.llmLogPath), 0755); err != nil {
		log.Printf("failed to create log directory: %v", err)
		return
	}

	// Check size before writing
	info, err := os.Stat(l.llmLogPath)
	if err == nil && info.Size() > l.maxSize {
		l.rotateLogs()
	}

	f, err := os.OpenFile(l.llmLogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("failed to open log file: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		log.Printf("failed to write to log file: %v", err)
	}
}

func (l *Logger) rotateLogs() {
	// Simple rotation: keep one .old file
	oldPath := l.llmLogPath + ".old"
	_ = os.Remove(oldPath)
	_ = os.Rename(l.llmLogPath, oldPath)
}

// Helper methods for common events

func (l *Logger) LogStageStart(sessionID, stage string) {
	l.Log(Event{
		Type:      EventTypeStageStart,
		SessionID: sessionID,
		Stage:     stage,
		Data:      map[string]string{"status": "running"},
	})
}

func (l *Logger) LogStageEnd(sessionID, stage string) {
	l.Log(Event{
		Type:      EventTypeStageEnd,
		SessionID: sessionID,
		Stage:     stage,
		Data:      map[string]string{"status": "completed"},
	})
}

func (l *Logger) LogStageError(sessionID, stage string, err error) {
	l.Log(Event{
		Type:      EventTypeStageError,
		SessionID: sessionID,
		Stage:     stage,
		Data:      map[string]string{"error": err.Error()},
	})
}

func (l *Logger) LogCheckpoint(sessionID, pending string) {
	l.Log(Event{
		Type:      EventTypeCheckpoint,
		SessionID: sessionID,
		Data:      map[string]string{"pending": pending},
	})
}

// LogItem records the outcome of one shopping-list item.
func (l *Logger) LogItem(sessionID, item, outcome, detail string, price float64) {
	l.Log(Event{
		Type:      EventTypeItem,
		SessionID: sessionID,
		Stage:     "shopper",
		Data: map[string]any{
			"item":    item,
			"outcome": outcome,
			"detail":  detail,
			"price":   price,
		},
	})
}

func (l *Logger) LogBudget(sessionID string, total, limit float64) {
	l.Log(Event{
		Type:      EventTypeBudget,
		SessionID: sessionID,
		Stage:     "shopper",
		Data: map[string]any{
			"running_total": total,
			"budget_limit":  limit,
		},
	})
}

func (l *Logger) LogHandoff(sessionID string, ok bool) {
	l.Log(Event{
		Type:      EventTypeHandoff,
		SessionID: sessionID,
		Stage:     "shopper",
		Data:      map[string]bool{"initiated": ok},
	})
}

func (l *Logger) LogLLM(sessionID, stage string, prompt any, response string) {
	l.Log(Event{
		Type:      EventTypeLLM,
		SessionID: sessionID,
		Stage:     stage,
		Data: map[string]any{
			"prompt":   prompt,
			"response": response,
		},
	})
}
