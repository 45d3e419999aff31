package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "hellobot-orchestrator/internal/common/errors"
	"hellobot-orchestrator/internal/conversation"
	"hellobot-orchestrator/internal/datasource"
	"hellobot-orchestrator/internal/models"
	"hellobot-orchestrator/internal/reasoning"
)

// ==========================
// Test Logger Implementation
// ==========================

// TestLogger implements the Logger interface for testing
type TestLogger struct {
	t *testing.T
}

func NewTestLogger(t *testing.T) *TestLogger { return &TestLogger{t: t} }

func (l *TestLogger) Info(msg string, fields map[string]interface{})  { l.t.Logf("INFO: %s %v", msg, fields) }
func (l *TestLogger) Warn(msg string, fields map[string]interface{})  { l.t.Logf("WARN: %s %v", msg, fields) }
func (l *TestLogger) Error(msg string, fields map[string]interface{}) { l.t.Logf("ERROR: %s %v", msg, fields) }
func (l *TestLogger) With(fields map[string]interface{}) Logger       { return l }

// ==========================
// Scripted Fakes
// ==========================

// fakeReasoner returns scripted extractions in order and canned text for
// the generative passes.
type fakeReasoner struct {
	mu          sync.Mutex
	extractions []*reasoning.Extraction
	extractErr  error
	frameErr    error
	callIndex   int
	delay       time.Duration

	lastFrameData  map[string]interface{}
	lastFrameFound bool
	framedFound    int
	framedNotFound int
}

func (f *fakeReasoner) ExtractIntent(ctx context.Context, conv *models.Conversation) (*reasoning.Extraction, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	if f.callIndex >= len(f.extractions) {
		return &reasoning.Extraction{Slots: map[string]string{}}, nil
	}
	e := f.extractions[f.callIndex]
	f.callIndex++
	return e, nil
}

func (f *fakeReasoner) GenerateSlotPrompt(ctx context.Context, conv *models.Conversation, slot models.SlotDefinition) (string, error) {
	return fmt.Sprintf("What is your %s?", slot.Name), nil
}

func (f *fakeReasoner) ClarifyIntent(ctx context.Context, conv *models.Conversation) (string, error) {
	return "Could you rephrase that?", nil
}

func (f *fakeReasoner) FrameAnswer(ctx context.Context, conv *models.Conversation, data map[string]interface{}, found bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.frameErr != nil {
		return "", f.frameErr
	}
	f.lastFrameData = data
	f.lastFrameFound = found
	if found {
		f.framedFound++
		return "Here is your answer.", nil
	}
	f.framedNotFound++
	return "I could not find any matching records.", nil
}

// fakeRouter returns a scripted record or error and remembers what it was
// asked for.
type fakeRouter struct {
	mu         sync.Mutex
	record     *datasource.Record
	err        error
	calls      int
	lastIntent string
	lastSlots  map[string]string
}

func (f *fakeRouter) Fetch(ctx context.Context, intent *models.IntentDefinition, slots map[string]string) (*datasource.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastIntent = intent.Name
	f.lastSlots = make(map[string]string, len(slots))
	for k, v := range slots {
		f.lastSlots[k] = v
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.record, nil
}

// failingSaveStore wraps a real store but refuses to persist.
type failingSaveStore struct {
	*conversation.Store
}

func (f *failingSaveStore) Save(ctx context.Context, conv *models.Conversation) error {
	return conversation.ErrStoreUnavailable
}

// ==========================
// Test Helper Functions
// ==========================

func testRegistry(t *testing.T) *models.Registry {
	registry, err := models.NewRegistry(
		[]models.IntentDefinition{
			{
				Name:          "get_order_status",
				Description:   "look up the current status of an order",
				RequiredSlots: []string{"order_id"},
				DataSource:    models.DataSourceTransactional,
				Query:         models.QueryTemplate{KeyField: "order_id", KeySlot: "order_id"},
				DerivedSlots:  map[string]string{"status": "order_status"},
			},
			{
				Name:          "get_delivery_estimate",
				Description:   "estimate when an order will arrive",
				RequiredSlots: []string{"order_id"},
				DataSource:    models.DataSourceKnowledge,
				Query:         models.QueryTemplate{Index: "delivery_policies", KeyField: "status", KeySlot: "order_status"},
			},
			{
				Name:        "ask_refund_policy",
				Description: "explain the refund policy",
				DataSource:  models.DataSourceKnowledge,
				Query:       models.QueryTemplate{Index: "refund_policies"},
			},
		},
		[]models.SlotDefinition{
			{Name: "order_id", Type: models.SlotTypeIdentifier},
			{Name: "order_status", Type: models.SlotTypeString},
		},
	)
	require.NoError(t, err)
	return registry
}

func newTestStore(t *testing.T) *conversation.Store {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return conversation.NewStore(client, 30*time.Minute)
}

func extraction(intent string, slots map[string]string) *reasoning.Extraction {
	if slots == nil {
		slots = map[string]string{}
	}
	return &reasoning.Extraction{Intent: intent, Slots: slots}
}

func orderRecord(status string) *datasource.Record {
	return &datasource.Record{
		Source: models.DataSourceTransactional,
		Fields: map[string]interface{}{
			"order_id": "ORD-123",
			"user_id":  "u-7",
			"status":   status,
		},
	}
}

func assertInvariants(t *testing.T, registry *models.Registry, conv *models.Conversation) {
	t.Helper()

	if conv.PendingSlot != "" {
		assert.Equal(t, models.StatusAwaitingSlot, conv.Status)
		intent, ok := registry.Intent(conv.ActiveIntent)
		require.True(t, ok)
		assert.Contains(t, intent.RequiredSlots, conv.PendingSlot)
	} else {
		assert.NotEqual(t, models.StatusAwaitingSlot, conv.Status)
	}
}

// ==========================
// Happy Path: Slot Filling
// ==========================

func TestEngine_SlotFillingThenAnswer(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", nil),                               // turn 1: intent, no slot yet
		extraction("get_order_status", map[string]string{"order_id": "ORD-123"}), // turn 2: slot provided
	}}
	router := &fakeRouter{record: orderRecord("shipped")}
	registry := testRegistry(t)
	engine := NewEngine(store, reasoner, router, registry, NewTestLogger(t))
	ctx := context.Background()

	// Turn 1: intent resolved, order_id missing
	result, err := engine.HandleTurn(ctx, "c-1", "where is my order?")
	require.NoError(t, err)
	assert.True(t, result.AwaitingMoreInput)
	assert.Equal(t, "get_order_status", result.Intent)
	assert.Equal(t, "What is your order_id?", result.ResponseText)
	assert.Equal(t, 0, router.calls)

	saved, err := store.Load(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingSlot, saved.Status)
	assert.Equal(t, "order_id", saved.PendingSlot)
	assertInvariants(t, registry, saved)

	// Turn 2: slot filled, data fetched, answer framed
	result, err = engine.HandleTurn(ctx, "c-1", "it's ORD-123")
	require.NoError(t, err)
	assert.False(t, result.AwaitingMoreInput)
	assert.Equal(t, "Here is your answer.", result.ResponseText)
	assert.Equal(t, "ORD-123", result.Slots["order_id"])
	assert.Equal(t, 1, router.calls)
	assert.Equal(t, "ORD-123", router.lastSlots["order_id"])

	saved, err = store.Load(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, saved.Status)
	assert.Empty(t, saved.PendingSlot)
	assertInvariants(t, registry, saved)

	// Full alternating history persisted, append-only
	require.Len(t, saved.Turns, 4)
	assert.Equal(t, models.RoleUser, saved.Turns[0].Role)
	assert.Equal(t, models.RoleAssistant, saved.Turns[1].Role)
	assert.Equal(t, models.RoleUser, saved.Turns[2].Role)
	assert.Equal(t, models.RoleAssistant, saved.Turns[3].Role)

	// Derived slot captured from the retrieved record
	assert.Equal(t, "shipped", saved.Slots["order_status"])
}

func TestEngine_OneShotWhenAllSlotsPresent(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", map[string]string{"order_id": "ORD-123"}),
	}}
	router := &fakeRouter{record: orderRecord("processing")}
	engine := NewEngine(store, reasoner, router, testRegistry(t), NewTestLogger(t))

	result, err := engine.HandleTurn(context.Background(), "c-1", "status of ORD-123 please")
	require.NoError(t, err)
	assert.False(t, result.AwaitingMoreInput)
	assert.Equal(t, 1, router.calls)
	assert.True(t, reasoner.lastFrameFound)
	assert.Equal(t, "processing", reasoner.lastFrameData["status"])
}

// ==========================
// Not Found Handling
// ==========================

func TestEngine_NotFoundFramedHonestly(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", map[string]string{"order_id": "ORD-404"}),
	}}
	router := &fakeRouter{err: fmt.Errorf("%w: order ORD-404", datasource.ErrNotFound)}
	engine := NewEngine(store, reasoner, router, testRegistry(t), NewTestLogger(t))
	ctx := context.Background()

	result, err := engine.HandleTurn(ctx, "c-1", "where is ORD-404?")
	require.NoError(t, err)
	assert.False(t, result.AwaitingMoreInput)
	assert.Equal(t, "I could not find any matching records.", result.ResponseText)
	assert.False(t, reasoner.lastFrameFound)
	assert.Nil(t, reasoner.lastFrameData)

	saved, err := store.Load(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusComplete, saved.Status)
}

// ==========================
// Intent Change and Slot Reuse
// ==========================

func TestEngine_FollowUpReusesSlotsAcrossIntents(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", map[string]string{"order_id": "ORD-123"}),
		extraction("get_delivery_estimate", nil), // follow-up names no slots
	}}
	router := &fakeRouter{record: orderRecord("shipped")}
	engine := NewEngine(store, reasoner, router, testRegistry(t), NewTestLogger(t))
	ctx := context.Background()

	// First cycle completes and derives order_status from the record
	result, err := engine.HandleTurn(ctx, "c-1", "status of ORD-123?")
	require.NoError(t, err)
	assert.False(t, result.AwaitingMoreInput)
	assert.Equal(t, "shipped", result.Slots["order_status"])

	// Follow-up: switched intent reuses order_id and order_status, so no
	// slot prompt and the knowledge query is keyed by the derived status
	router.record = &datasource.Record{
		Source: models.DataSourceKnowledge,
		Fields: map[string]interface{}{"estimate_days": "2-3 business days"},
	}

	result, err = engine.HandleTurn(ctx, "c-1", "when will it arrive?")
	require.NoError(t, err)
	assert.False(t, result.AwaitingMoreInput)
	assert.Equal(t, "get_delivery_estimate", result.Intent)
	assert.Equal(t, 2, router.calls)
	assert.Equal(t, "get_delivery_estimate", router.lastIntent)
	assert.Equal(t, "ORD-123", router.lastSlots["order_id"])
	assert.Equal(t, "shipped", router.lastSlots["order_status"])
}

func TestEngine_IntentChangeDropsIrrelevantSlots(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", map[string]string{"order_id": "ORD-123"}),
		extraction("ask_refund_policy", nil),
	}}
	router := &fakeRouter{record: orderRecord("shipped")}
	engine := NewEngine(store, reasoner, router, testRegistry(t), NewTestLogger(t))
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "c-1", "status of ORD-123?")
	require.NoError(t, err)

	router.record = &datasource.Record{
		Source: models.DataSourceKnowledge,
		Fields: map[string]interface{}{"policy": "30 day refunds"},
	}

	result, err := engine.HandleTurn(ctx, "c-1", "what's your refund policy?")
	require.NoError(t, err)
	assert.Equal(t, "ask_refund_policy", result.Intent)

	// Refund policy has no use for order slots, so they were dropped
	saved, err := store.Load(ctx, "c-1")
	require.NoError(t, err)
	assert.NotContains(t, saved.Slots, "order_id")
	assert.NotContains(t, saved.Slots, "order_status")
}

// ==========================
// Clarification
// ==========================

func TestEngine_UnresolvableIntentAsksForRestatement(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("", nil),
	}}
	router := &fakeRouter{}
	registry := testRegistry(t)
	engine := NewEngine(store, reasoner, router, registry, NewTestLogger(t))
	ctx := context.Background()

	result, err := engine.HandleTurn(ctx, "c-1", "tell me a joke")
	require.NoError(t, err)
	assert.True(t, result.AwaitingMoreInput)
	assert.Empty(t, result.Intent)
	assert.Equal(t, "Could you rephrase that?", result.ResponseText)
	assert.Equal(t, 0, router.calls)

	// Status and slots untouched, but the exchange is persisted
	saved, err := store.Load(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingIntent, saved.Status)
	assert.Empty(t, saved.Slots)
	assert.Len(t, saved.Turns, 2)
	assertInvariants(t, registry, saved)
}

func TestEngine_UnknownIntentKeepsActiveIntent(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", nil),
		// User answers the slot question, extractor resolves nothing new
		extraction("", map[string]string{"order_id": "ORD-123"}),
	}}
	router := &fakeRouter{record: orderRecord("shipped")}
	engine := NewEngine(store, reasoner, router, testRegistry(t), NewTestLogger(t))
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "c-1", "where is my order?")
	require.NoError(t, err)

	result, err := engine.HandleTurn(ctx, "c-1", "ORD-123")
	require.NoError(t, err)
	assert.Equal(t, "get_order_status", result.Intent)
	assert.False(t, result.AwaitingMoreInput)
}

// ==========================
// Slot Validation
// ==========================

func TestEngine_InvalidSlotValueKeepsAsking(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", map[string]string{"order_id": "not a valid id!"}),
	}}
	router := &fakeRouter{}
	engine := NewEngine(store, reasoner, router, testRegistry(t), NewTestLogger(t))
	ctx := context.Background()

	result, err := engine.HandleTurn(ctx, "c-1", "my order is weird")
	require.NoError(t, err)
	assert.True(t, result.AwaitingMoreInput)
	assert.NotContains(t, result.Slots, "order_id")
	assert.Equal(t, 0, router.calls)

	saved, err := store.Load(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingSlot, saved.Status)
	assert.Equal(t, "order_id", saved.PendingSlot)
}

// ==========================
// Failure Semantics
// ==========================

func TestEngine_ReasoningFailureLeavesStateUntouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Seed a mid-flight conversation
	seedReasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", nil),
	}}
	engine := NewEngine(store, seedReasoner, &fakeRouter{}, testRegistry(t), NewTestLogger(t))
	_, err := engine.HandleTurn(ctx, "c-1", "where is my order?")
	require.NoError(t, err)

	before, err := store.Load(ctx, "c-1")
	require.NoError(t, err)

	// Reasoning now times out; the cycle must fail without persisting
	failing := &fakeReasoner{extractErr: reasoning.ErrReasoningTimeout}
	engine = NewEngine(store, failing, &fakeRouter{}, testRegistry(t), NewTestLogger(t))

	_, err = engine.HandleTurn(ctx, "c-1", "ORD-123")
	require.Error(t, err)
	assert.ErrorIs(t, err, reasoning.ErrReasoningTimeout)

	after, err := store.Load(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, len(before.Turns), len(after.Turns))
	assert.Equal(t, before.Status, after.Status)
	assert.Equal(t, before.PendingSlot, after.PendingSlot)
}

func TestEngine_FramingTimeoutKeepsFilledSlots(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// First cycle fills the slot but fails during answer framing
	reasoner := &fakeReasoner{
		frameErr: reasoning.ErrReasoningTimeout,
		extractions: []*reasoning.Extraction{
			extraction("get_order_status", nil),
			extraction("", map[string]string{"order_id": "ORD-123"}),
		},
	}
	engine := NewEngine(store, reasoner, &fakeRouter{record: orderRecord("shipped")}, testRegistry(t), NewTestLogger(t))

	_, err := engine.HandleTurn(ctx, "c-1", "where is my order?")
	require.NoError(t, err)

	_, err = engine.HandleTurn(ctx, "c-1", "ORD-123")
	require.Error(t, err)
	assert.ErrorIs(t, err, reasoning.ErrReasoningTimeout)

	// The stored record still reflects the last completed cycle: the slot
	// question was asked but the failed cycle's slot fill was discarded
	saved, err := store.Load(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAwaitingSlot, saved.Status)
	assert.Equal(t, "order_id", saved.PendingSlot)
	assert.NotContains(t, saved.Slots, "order_id")
	assert.Len(t, saved.Turns, 2)
}

func TestEngine_SourceUnavailableFailsCycle(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", map[string]string{"order_id": "ORD-123"}),
	}}
	router := &fakeRouter{err: datasource.ErrSourceUnavailable}
	engine := NewEngine(store, reasoner, router, testRegistry(t), NewTestLogger(t))
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "c-1", "status of ORD-123?")
	require.Error(t, err)
	assert.ErrorIs(t, err, datasource.ErrSourceUnavailable)

	// Nothing persisted for the failed cycle
	exists, err := store.Exists(ctx, "c-1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestEngine_SaveFailureDiscardsCycle(t *testing.T) {
	store := &failingSaveStore{Store: newTestStore(t)}
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", map[string]string{"order_id": "ORD-123"}),
	}}
	engine := NewEngine(store, reasoner, &fakeRouter{record: orderRecord("shipped")}, testRegistry(t), NewTestLogger(t))

	_, err := engine.HandleTurn(context.Background(), "c-1", "status of ORD-123?")
	require.Error(t, err)
	assert.ErrorIs(t, err, conversation.ErrStoreUnavailable)
}

func TestClassifyFailure_BuildsStandardErrors(t *testing.T) {
	tests := []struct {
		name          string
		err           error
		expectedCode  apperrors.ErrorCode
		expectedRetry bool
	}{
		{
			name:         "store unavailable",
			err:          fmt.Errorf("%w: load c-1: connection refused", conversation.ErrStoreUnavailable),
			expectedCode: apperrors.ErrCodeStoreUnavailable,
		},
		{
			name:         "reasoning timeout",
			err:          fmt.Errorf("%w: EXTRACT_INTENT", reasoning.ErrReasoningTimeout),
			expectedCode: apperrors.ErrCodeReasoningTimeout,
		},
		{
			name:         "reasoning malformed",
			err:          fmt.Errorf("%w: empty choices", reasoning.ErrReasoningMalformed),
			expectedCode: apperrors.ErrCodeReasoningMalformed,
		},
		{
			name:         "reasoning unavailable",
			err:          fmt.Errorf("%w: status 502", reasoning.ErrReasoningUnavailable),
			expectedCode: apperrors.ErrCodeReasoningUnavailable,
		},
		{
			name:          "source unavailable is retryable",
			err:           fmt.Errorf("%w: knowledge search", datasource.ErrSourceUnavailable),
			expectedCode:  apperrors.ErrCodeSourceUnavailable,
			expectedRetry: true,
		},
		{
			name:         "anything else is internal",
			err:          fmt.Errorf("active intent %q not registered", "write_a_poem"),
			expectedCode: apperrors.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdErr := classifyFailure(tt.err)

			require.NotNil(t, stdErr)
			assert.Equal(t, tt.expectedCode, stdErr.Code)
			assert.Equal(t, tt.expectedRetry, stdErr.Retryable)
			assert.NotEmpty(t, stdErr.Message)
			assert.NotEmpty(t, stdErr.Details)
			assert.False(t, stdErr.Timestamp.IsZero())
		})
	}
}

// ==========================
// Snapshot
// ==========================

func TestEngine_SnapshotIsPureRead(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", nil),
	}}
	engine := NewEngine(store, reasoner, &fakeRouter{}, testRegistry(t), NewTestLogger(t))
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "c-1", "where is my order?")
	require.NoError(t, err)

	first, err := engine.Snapshot(ctx, "c-1")
	require.NoError(t, err)
	second, err := engine.Snapshot(ctx, "c-1")
	require.NoError(t, err)

	assert.Equal(t, first.Turns, second.Turns)
	assert.Equal(t, first.Status, second.Status)
	assert.Len(t, first.Turns, 2)
}

func TestEngine_SnapshotUnknownConversation(t *testing.T) {
	store := newTestStore(t)
	engine := NewEngine(store, &fakeReasoner{}, &fakeRouter{}, testRegistry(t), NewTestLogger(t))

	_, err := engine.Snapshot(context.Background(), "no-such-id")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestEngine_SnapshotAfterExpiryIsNotFound(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	store := conversation.NewStore(client, time.Minute)

	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", nil),
	}}
	engine := NewEngine(store, reasoner, &fakeRouter{}, testRegistry(t), NewTestLogger(t))
	ctx := context.Background()

	_, err := engine.HandleTurn(ctx, "c-1", "where is my order?")
	require.NoError(t, err)

	_, err = engine.Snapshot(ctx, "c-1")
	require.NoError(t, err)

	// An evicted record reads as 404, never as a fresh empty conversation
	mr.FastForward(2 * time.Minute)

	_, err = engine.Snapshot(ctx, "c-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

// ==========================
// Concurrency
// ==========================

func TestEngine_SameConversationTurnsNeverInterleave(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{
		delay: 20 * time.Millisecond,
		extractions: []*reasoning.Extraction{
			extraction("get_order_status", nil),
			extraction("get_order_status", nil),
		},
	}
	registry := testRegistry(t)
	engine := NewEngine(store, reasoner, &fakeRouter{}, registry, NewTestLogger(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := engine.HandleTurn(ctx, "c-1", fmt.Sprintf("message %d", n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	saved, err := store.Load(ctx, "c-1")
	require.NoError(t, err)

	// Two full cycles, strictly serialized: user/assistant pairs
	require.Len(t, saved.Turns, 4)
	assert.Equal(t, models.RoleUser, saved.Turns[0].Role)
	assert.Equal(t, models.RoleAssistant, saved.Turns[1].Role)
	assert.Equal(t, models.RoleUser, saved.Turns[2].Role)
	assert.Equal(t, models.RoleAssistant, saved.Turns[3].Role)
	assertInvariants(t, registry, saved)
}

func TestEngine_DifferentConversationsProceedIndependently(t *testing.T) {
	store := newTestStore(t)
	reasoner := &fakeReasoner{extractions: []*reasoning.Extraction{
		extraction("get_order_status", nil),
		extraction("get_order_status", nil),
	}}
	engine := NewEngine(store, reasoner, &fakeRouter{}, testRegistry(t), NewTestLogger(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, id := range []string{"c-1", "c-2"} {
		wg.Add(1)
		go func(conversationID string) {
			defer wg.Done()
			_, err := engine.HandleTurn(ctx, conversationID, "where is my order?")
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	for _, id := range []string{"c-1", "c-2"} {
		saved, err := store.Load(ctx, id)
		require.NoError(t, err)
		assert.Len(t, saved.Turns, 2)
	}
}
