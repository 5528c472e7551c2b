package providers

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"
)

var errStopped = errors.New("stream stopped by consumer")

// TokenStream is a single, lazily started generation. Nothing is sent until
// All is ranged over, and the stream runs at most once.
type TokenStream struct {
	ctx      context.Context
	provider Provider
	req      GenerateRequest

	started atomic.Bool
	err     error
	meta    StreamMetadata
}

// NewTokenStream prepares a stream of req against provider.
func NewTokenStream(ctx context.Context, provider Provider, req GenerateRequest) *TokenStream {
	return &TokenStream{ctx: ctx, provider: provider, req: req}
}

// All yields answer fragments in arrival order. A failure is reported as one
// final human-readable fragment instead of an error; cancelling the context
// ends the sequence without one. Breaking out of the loop stops the request.
// Ranging a second time yields nothing.
func (s *TokenStream) All() iter.Seq[string] {
	return func(yield func(string) bool) {
		if !s.started.CompareAndSwap(false, true) {
			return
		}

		stopped := false
		err := s.provider.Stream(s.ctx, s.req, StreamCallbacks{
			OnChunk: func(fragment string) error {
				if fragment == "" {
					return nil
				}
				if !yield(fragment) {
					stopped = true
					return errStopped
				}
				return nil
			},
			OnComplete: func(meta StreamMetadata) error {
				s.meta = meta
				return nil
			},
		})
		if err == nil || stopped || errors.Is(err, errStopped) {
			return
		}
		if s.ctx.Err() != nil {
			return
		}

		s.err = err
		yield(FailureMessage(s.req.Host.URL, err))
	}
}

// Err returns the failure that ended the stream, if any. It is only
// meaningful after All has finished.
func (s *TokenStream) Err() error {
	return s.err
}

// Metadata returns what the backend reported with its final line.
func (s *TokenStream) Metadata() StreamMetadata {
	return s.meta
}

// FailureMessage renders err as the fragment shown in place of an answer.
func FailureMessage(hostURL string, err error) string {
	if errors.Is(err, ErrUnavailable) {
		return fmt.Sprintf("⚠️ Cannot reach Ollama at %s. Is `ollama serve` running?", hostURL)
	}
	return fmt.Sprintf("⚠️ Error: %v", err)
}
