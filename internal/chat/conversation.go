package chat

import (
	"fmt"
	"sync"

	"github.com/mwiater/csvchat/internal/providers"
)

const (
	// GreetingMessage opens every new session.
	GreetingMessage = "Hi! Ask something about your CSV and I'll ground my answer on matching rows."
	// ResetMessage replaces the history when the user starts over.
	ResetMessage = "New chat started!"
)

// Conversation is an append-only list of turns in insertion order.
type Conversation struct {
	mu    sync.Mutex
	turns []providers.ChatMessage
}

// NewConversation returns a conversation seeded with one assistant turn.
func NewConversation(seed string) *Conversation {
	c := &Conversation{}
	c.Reset(seed)
	return c
}

// Append adds a turn. Roles outside the known set are rejected.
func (c *Conversation) Append(role providers.Role, content string) error {
	if !role.Valid() {
		return fmt.Errorf("unknown conversation role %q", role)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = append(c.turns, providers.ChatMessage{Role: role, Content: content})
	return nil
}

// Reset discards every turn and seeds the history with an assistant turn.
// An empty seed leaves the history empty.
func (c *Conversation) Reset(seed string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.turns = c.turns[:0:0]
	if seed != "" {
		c.turns = append(c.turns, providers.ChatMessage{Role: providers.RoleAssistant, Content: seed})
	}
}

// History returns a copy of the turns.
func (c *Conversation) History() []providers.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]providers.ChatMessage(nil), c.turns...)
}

// Len returns the number of turns.
func (c *Conversation) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.turns)
}
