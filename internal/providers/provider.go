// Package providers defines the interface between the chat session and a
// text generation backend, plus the iterator the session consumes answers
// through.
package providers

import (
	"context"
	"errors"
	"time"

	"github.com/mwiater/csvchat/internal/appconfig"
)

var (
	// ErrUnavailable means the backend could not be reached at all.
	ErrUnavailable = errors.New("provider unavailable")
	// ErrProtocol means the backend answered with something other than a
	// well-formed stream.
	ErrProtocol = errors.New("provider protocol error")
)

// Role identifies who authored a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatMessage is a single conversation turn.
type ChatMessage struct {
	Role    Role
	Content string
}

// StreamMetadata carries the timing and token counts reported with the final
// stream line.
type StreamMetadata struct {
	Model              string
	CreatedAt          time.Time
	Done               bool
	TotalDuration      int64
	LoadDuration       int64
	PromptEvalCount    int
	PromptEvalDuration int64
	EvalCount          int
	EvalDuration       int64
}

// GenerateRequest is one prompt sent for completion.
type GenerateRequest struct {
	Host       appconfig.Host
	Model      string
	Prompt     string
	Parameters appconfig.Parameters
	// Session tags request logs with the chat session that issued them.
	Session string
}

// StreamCallbacks receive fragments as they arrive and the metadata once the
// stream is done. A non-nil error from either callback ends the stream and is
// returned unchanged by Stream.
type StreamCallbacks struct {
	OnChunk    func(fragment string) error
	OnComplete func(StreamMetadata) error
}

// Provider is implemented by generation backends.
type Provider interface {
	// LoadedModels lists the models currently held in memory by host.
	LoadedModels(ctx context.Context, host appconfig.Host) ([]string, error)
	// EnsureModelReady loads model on host so the first question is not
	// charged with the load time.
	EnsureModelReady(ctx context.Context, host appconfig.Host, model string) error
	// Stream sends req and forwards the generated fragments in order.
	Stream(ctx context.Context, req GenerateRequest, callbacks StreamCallbacks) error
	// Close releases provider resources.
	Close() error
}
