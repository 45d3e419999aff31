// Package orchestrator implements the slot-filling controller: the per-turn
// state machine that drives extraction, slot prompting, data retrieval and
// answer framing for each conversation.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	apperrors "hellobot-orchestrator/internal/common/errors"
	"hellobot-orchestrator/internal/common/metrics"
	"hellobot-orchestrator/internal/conversation"
	"hellobot-orchestrator/internal/datasource"
	"hellobot-orchestrator/internal/models"
	"hellobot-orchestrator/internal/reasoning"
)

// ErrConversationNotFound is returned by Snapshot for unknown ids.
var ErrConversationNotFound = errors.New("CONVERSATION_NOT_FOUND")

// Store is the conversation persistence boundary.
type Store interface {
	Load(ctx context.Context, id string) (*models.Conversation, error)
	Save(ctx context.Context, conv *models.Conversation) error
}

// Reasoner is the reasoning service boundary.
type Reasoner interface {
	ExtractIntent(ctx context.Context, conv *models.Conversation) (*reasoning.Extraction, error)
	GenerateSlotPrompt(ctx context.Context, conv *models.Conversation, slot models.SlotDefinition) (string, error)
	ClarifyIntent(ctx context.Context, conv *models.Conversation) (string, error)
	FrameAnswer(ctx context.Context, conv *models.Conversation, data map[string]interface{}, found bool) (string, error)
}

// DataRouter is the data retrieval boundary.
type DataRouter interface {
	Fetch(ctx context.Context, intent *models.IntentDefinition, slots map[string]string) (*datasource.Record, error)
}

// Logger interface definition
type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// TurnResult is the outcome of one processed user message.
type TurnResult struct {
	ConversationID    string
	Intent            string
	Slots             map[string]string
	ResponseText      string
	AwaitingMoreInput bool
}

// Engine processes one user message per cycle. A cycle mutates a working
// copy only; state is persisted in a single save once the cycle completes,
// so a failed cycle leaves the stored conversation untouched.
type Engine struct {
	store    Store
	reasoner Reasoner
	router   DataRouter
	registry *models.Registry
	locks    *keyedMutex
	logger   Logger
}

func NewEngine(store Store, reasoner Reasoner, router DataRouter, registry *models.Registry, log Logger) *Engine {
	return &Engine{
		store:    store,
		reasoner: reasoner,
		router:   router,
		registry: registry,
		locks:    newKeyedMutex(),
		logger: log.With(map[string]interface{}{
			"component": "orchestrator",
		}),
	}
}

// HandleTurn runs the full cycle for one user message. Messages for the
// same conversation are strictly serialized; the lock is held across all
// network calls so a second message queues behind the first.
func (e *Engine) HandleTurn(ctx context.Context, conversationID, userMessage string) (*TurnResult, error) {
	unlock := e.locks.Lock(conversationID)
	defer unlock()

	metrics.ActiveCycles.Inc()
	defer metrics.ActiveCycles.Dec()

	loaded, err := e.store.Load(ctx, conversationID)
	if errors.Is(err, conversation.ErrNotFound) {
		loaded = models.NewConversation(conversationID)
	} else if err != nil {
		return nil, e.failCycle(conversationID, "load conversation", err)
	}

	working := loaded.Clone()

	// A message after a completed cycle starts a new one. Filled slots and
	// the previous intent survive so follow-ups can build on them.
	if working.Status == models.StatusComplete {
		working.Status = models.StatusAwaitingIntent
		working.PendingSlot = ""
	}

	working.Append(models.RoleUser, userMessage)

	extraction, err := e.reasoner.ExtractIntent(ctx, working)
	if err != nil {
		return nil, e.failCycle(conversationID, "extract intent", err)
	}

	// No resolvable intent and nothing in flight: ask the user to restate
	// instead of guessing. Slots and status stay untouched.
	if extraction.Intent == "" && working.ActiveIntent == "" {
		text, err := e.reasoner.ClarifyIntent(ctx, working)
		if err != nil {
			return nil, e.failCycle(conversationID, "clarify intent", err)
		}
		working.Append(models.RoleAssistant, text)
		if err := e.store.Save(ctx, working); err != nil {
			return nil, e.failCycle(conversationID, "save conversation", err)
		}
		metrics.TurnsProcessed.WithLabelValues("clarification").Inc()
		return e.result(working, text, true), nil
	}

	if extraction.Intent != "" && extraction.Intent != working.ActiveIntent {
		if newIntent, ok := e.registry.Intent(extraction.Intent); ok && working.ActiveIntent != "" {
			retainRelevantSlots(working, newIntent)
		}
		working.ActiveIntent = extraction.Intent
		working.PendingSlot = ""
	}

	intent, ok := e.registry.Intent(working.ActiveIntent)
	if !ok {
		return nil, e.failCycle(conversationID, "resolve intent",
			fmt.Errorf("active intent %q not registered", working.ActiveIntent))
	}

	e.mergeExtractedSlots(working, extraction)

	if missing := firstMissingSlot(working, intent); missing != "" {
		working.PendingSlot = missing
		working.Status = models.StatusAwaitingSlot

		slotDef, _ := e.registry.Slot(missing)
		text, err := e.reasoner.GenerateSlotPrompt(ctx, working, slotDef)
		if err != nil {
			return nil, e.failCycle(conversationID, "generate slot prompt", err)
		}

		working.Append(models.RoleAssistant, text)
		if err := e.store.Save(ctx, working); err != nil {
			return nil, e.failCycle(conversationID, "save conversation", err)
		}

		metrics.TurnsProcessed.WithLabelValues("awaiting_slot").Inc()
		return e.result(working, text, true), nil
	}

	working.PendingSlot = ""
	working.Status = models.StatusReadyToExecute

	record, err := e.router.Fetch(ctx, intent, working.Slots)
	found := true
	if errors.Is(err, datasource.ErrNotFound) {
		found = false
	} else if err != nil {
		return nil, e.failCycle(conversationID, "fetch data", err)
	}

	var data map[string]interface{}
	if found {
		applyDerivedSlots(working, intent, record)
		data = record.Fields
	}

	text, err := e.reasoner.FrameAnswer(ctx, working, data, found)
	if err != nil {
		return nil, e.failCycle(conversationID, "frame answer", err)
	}

	working.Append(models.RoleAssistant, text)
	working.Status = models.StatusComplete

	if err := e.store.Save(ctx, working); err != nil {
		return nil, e.failCycle(conversationID, "save conversation", err)
	}

	metrics.TurnsProcessed.WithLabelValues("complete").Inc()
	return e.result(working, text, false), nil
}

// Snapshot returns the stored conversation without taking the cycle lock.
// Saves are atomic whole-record writes, so a plain load always observes the
// last completed cycle. Pure read, no side effects. A single load decides
// presence, so a record expiring mid-request cannot surface as an empty
// conversation.
func (e *Engine) Snapshot(ctx context.Context, conversationID string) (*models.Conversation, error) {
	conv, err := e.store.Load(ctx, conversationID)
	if errors.Is(err, conversation.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrConversationNotFound, conversationID)
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (e *Engine) result(conv *models.Conversation, text string, awaiting bool) *TurnResult {
	slots := make(map[string]string, len(conv.Slots))
	for k, v := range conv.Slots {
		slots[k] = v
	}
	return &TurnResult{
		ConversationID:    conv.ID,
		Intent:            conv.ActiveIntent,
		Slots:             slots,
		ResponseText:      text,
		AwaitingMoreInput: awaiting,
	}
}

// failCycle classifies the failure into a StandardError and records it in
// logs and metrics. The working copy is discarded by the caller returning
// early; nothing partial is persisted.
func (e *Engine) failCycle(conversationID, stage string, err error) error {
	stdErr := classifyFailure(err)
	e.logger.Error("cycle failed", map[string]interface{}{
		"conversationId": conversationID,
		"stage":          stage,
		"errorCode":      string(stdErr.Code),
		"category":       apperrors.GetErrorCategory(stdErr.Code),
		"retryable":      stdErr.Retryable,
		"details":        stdErr.Details,
	})
	metrics.CycleFailures.WithLabelValues(string(stdErr.Code)).Inc()
	return err
}

// classifyFailure wraps a cycle failure into the structured error taxonomy.
func classifyFailure(err error) *apperrors.StandardError {
	switch {
	case errors.Is(err, conversation.ErrStoreUnavailable):
		return apperrors.NewStoreUnavailableError(err)
	case errors.Is(err, reasoning.ErrReasoningTimeout):
		return apperrors.NewReasoningTimeoutError(err.Error())
	case errors.Is(err, reasoning.ErrReasoningMalformed):
		return apperrors.NewReasoningMalformedError(err.Error())
	case errors.Is(err, reasoning.ErrReasoningUnavailable):
		return apperrors.NewReasoningUnavailableError(err)
	case errors.Is(err, datasource.ErrSourceUnavailable):
		return apperrors.NewSourceUnavailableError("datasource", err)
	default:
		return apperrors.NewInternalError(err)
	}
}
