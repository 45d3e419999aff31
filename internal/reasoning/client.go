// Package reasoning adapts the external reasoning service (an
// OpenAI-compatible chat completions API) behind purpose-specific calls.
// The adapter only ever sends conversation text and pre-fetched data
// snippets; it never holds credentials for the data stores.
package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"hellobot-orchestrator/internal/common/metrics"
	"hellobot-orchestrator/internal/models"
)

var (
	ErrReasoningTimeout     = errors.New("REASONING_TIMEOUT")
	ErrReasoningMalformed   = errors.New("REASONING_MALFORMED")
	ErrReasoningUnavailable = errors.New("REASONING_UNAVAILABLE")
)

// Purpose identifies which of the three reasoning passes is being made.
type Purpose string

const (
	PurposeExtractIntent      Purpose = "EXTRACT_INTENT"
	PurposeGenerateSlotPrompt Purpose = "GENERATE_SLOT_PROMPT"
	PurposeFrameAnswer        Purpose = "FRAME_ANSWER"
)

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Config holds adapter settings.
type Config struct {
	BaseURL       string
	APIKey        string
	Model         string
	Timeout       time.Duration
	Temperature   float64
	HistoryWindow int
}

// Extraction is the parsed result of an EXTRACT_INTENT pass.
type Extraction struct {
	Intent string
	Slots  map[string]string
}

// Adapter is the reasoning service client. One call per pass, no retries:
// failure handling belongs to the caller.
type Adapter struct {
	config   *Config
	registry *models.Registry
	client   *http.Client
	logger   Logger
}

func NewAdapter(config *Config, registry *models.Registry, log Logger) *Adapter {
	return &Adapter{
		config:   config,
		registry: registry,
		// No HTTP client timeout, rely only on context
		client: &http.Client{},
		logger: log.With(map[string]interface{}{
			"component": "reasoning",
		}),
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// ExtractIntent runs the first pass: classify the user's goal and pull
// slot values out of the latest message.
func (a *Adapter) ExtractIntent(ctx context.Context, conv *models.Conversation) (*Extraction, error) {
	content, err := a.complete(ctx, PurposeExtractIntent, a.extractionMessages(conv), true)
	if err != nil {
		return nil, err
	}
	return parseExtraction(content, a.registry)
}

// GenerateSlotPrompt runs the second pass for a missing slot: produce the
// natural-language question asking the user for it.
func (a *Adapter) GenerateSlotPrompt(ctx context.Context, conv *models.Conversation, slot models.SlotDefinition) (string, error) {
	content, err := a.complete(ctx, PurposeGenerateSlotPrompt, a.slotPromptMessages(conv, slot), false)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(content)
	if text == "" {
		text = fmt.Sprintf("Could you tell me your %s?", strings.ReplaceAll(slot.Name, "_", " "))
	}
	return text, nil
}

// ClarifyIntent asks the user to restate their request when no intent
// could be resolved.
func (a *Adapter) ClarifyIntent(ctx context.Context, conv *models.Conversation) (string, error) {
	content, err := a.complete(ctx, PurposeGenerateSlotPrompt, a.clarifyMessages(conv), false)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(content)
	if text == "" {
		text = "I'm not sure I understood. Could you rephrase what you need help with?"
	}
	return text, nil
}

// FrameAnswer runs the third pass: turn retrieved data into the final
// user-facing answer. When found is false the prompt states explicitly
// that no record matched, so the model never fabricates data.
func (a *Adapter) FrameAnswer(ctx context.Context, conv *models.Conversation, data map[string]interface{}, found bool) (string, error) {
	content, err := a.complete(ctx, PurposeFrameAnswer, a.frameMessages(conv, data, found), false)
	if err != nil {
		return "", err
	}
	text := strings.TrimSpace(content)
	if text == "" {
		if found {
			text = "Here is what I found for your request."
		} else {
			text = "I could not find any matching records for your request."
		}
	}
	return text, nil
}

func (a *Adapter) complete(ctx context.Context, purpose Purpose, messages []chatMessage, jsonMode bool) (string, error) {
	start := time.Now()
	defer func() {
		metrics.ReasoningPassDuration.WithLabelValues(string(purpose)).Observe(time.Since(start).Seconds())
	}()

	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	reqBody := chatRequest{
		Model:       a.config.Model,
		Messages:    messages,
		Temperature: a.config.Temperature,
	}
	if jsonMode {
		reqBody.ResponseFormat = &struct {
			Type string `json:"type"`
		}{Type: "json_object"}
	}

	body, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, "POST", a.config.BaseURL+"/v1/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if a.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		// Only a blown deadline counts as a timeout. Caller-side
		// cancellation is an availability problem from our perspective.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %s", ErrReasoningTimeout, purpose)
		}
		return "", fmt.Errorf("%w: %v", ErrReasoningUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		a.logger.Error("reasoning call failed", map[string]interface{}{
			"purpose": string(purpose),
			"status":  resp.StatusCode,
		})
		return "", fmt.Errorf("%w: status %d", ErrReasoningUnavailable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %v", ErrReasoningMalformed, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty choices", ErrReasoningMalformed)
	}

	return parsed.Choices[0].Message.Content, nil
}
