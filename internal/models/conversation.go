package models

import "time"

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Status is the per-conversation orchestration state.
type Status string

const (
	StatusAwaitingIntent Status = "AWAITING_INTENT"
	StatusAwaitingSlot   Status = "AWAITING_SLOT"
	StatusReadyToExecute Status = "READY_TO_EXECUTE"
	StatusComplete       Status = "COMPLETE"
)

// Message is a single turn. Immutable once appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Conversation is the state record for one conversation id. It is owned by
// the conversation store; the orchestrator only ever mutates a working copy
// for the duration of a single cycle.
type Conversation struct {
	ID           string            `json:"id"`
	Turns        []Message         `json:"turns"`
	Slots        map[string]string `json:"slots"`
	ActiveIntent string            `json:"activeIntent,omitempty"`
	PendingSlot  string            `json:"pendingSlot,omitempty"`
	Status       Status            `json:"status"`
	LastUpdated  time.Time         `json:"lastUpdated"`
}

// NewConversation returns a fresh record in the initial state.
func NewConversation(id string) *Conversation {
	return &Conversation{
		ID:          id,
		Turns:       []Message{},
		Slots:       map[string]string{},
		Status:      StatusAwaitingIntent,
		LastUpdated: time.Now().UTC(),
	}
}

// Append adds a turn to the history. History is append-only; nothing ever
// removes or rewrites entries.
func (c *Conversation) Append(role Role, content string) {
	c.Turns = append(c.Turns, Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now().UTC(),
	})
}

// Window returns up to the last n turns for prompt conditioning. The stored
// history itself is never truncated.
func (c *Conversation) Window(n int) []Message {
	if n <= 0 || len(c.Turns) <= n {
		return c.Turns
	}
	return c.Turns[len(c.Turns)-n:]
}

// Clone returns a deep copy the orchestrator can mutate without touching the
// loaded record.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Turns = make([]Message, len(c.Turns))
	copy(cp.Turns, c.Turns)
	cp.Slots = make(map[string]string, len(c.Slots))
	for k, v := range c.Slots {
		cp.Slots[k] = v
	}
	return &cp
}
