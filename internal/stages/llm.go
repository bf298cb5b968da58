package stages

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/tmc/langchaingo/llms"
)

var (
	codeFenceRe  = regexp.MustCompile("(?m)^```(?:json)?|```$")
	whitespaceRe = regexp.MustCompile(`\s+`)
)

// stripCodeFence removes markdown code fences a model tends to wrap JSON in.
func stripCodeFence(s string) string {
	return strings.TrimSpace(codeFenceRe.ReplaceAllString(strings.TrimSpace(s), ""))
}

// complete runs one system+human exchange and returns the text of the
// first choice.
func complete(ctx context.Context, model llms.Model, system, input string) (string, error) {
	var messages []llms.MessageContent
	if system != "" {
		messages = append(messages, llms.MessageContent{
			Role:  llms.ChatMessageTypeSystem,
			Parts: []llms.ContentPart{llms.TextPart(system)},
		})
	}
	messages = append(messages, llms.MessageContent{
		Role:  llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{llms.TextPart(input)},
	})

	resp, err := model.GenerateContent(ctx, messages)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("model returned no choices")
	}
	return resp.Choices[0].Content, nil
}

// TranscriptLog is the sink for recorded model exchanges.
type TranscriptLog interface {
	LogLLM(sessionID, stage string, prompt any, response string)
}

// transcriptModel records every completed exchange before handing the
// response back.
type transcriptModel struct {
	inner     llms.Model
	log       TranscriptLog
	sessionID string
	stage     string
}

// WithTranscript wraps model so each exchange lands in the LLM transcript
// log under the given stage label. A nil log returns model unchanged.
func WithTranscript(model llms.Model, log TranscriptLog, sessionID, stage string) llms.Model {
	if log == nil {
		return model
	}
	return &transcriptModel{inner: model, log: log, sessionID: sessionID, stage: stage}
}

func (m *transcriptModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	resp, err := m.inner.GenerateContent(ctx, messages, options...)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) > 0 {
		m.log.LogLLM(m.sessionID, m.stage, promptText(messages), resp.Choices[0].Content)
	}
	return resp, nil
}

func (m *transcriptModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return m.inner.Call(ctx, prompt, options...)
}

func promptText(messages []llms.MessageContent) string {
	var b strings.Builder
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if text, ok := part.(llms.TextContent); ok {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(text.Text)
			}
		}
	}
	return b.String()
}
