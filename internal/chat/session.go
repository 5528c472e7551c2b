package chat

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/dataset"
	"github.com/mwiater/csvchat/internal/logging"
	"github.com/mwiater/csvchat/internal/providers"
	"github.com/mwiater/csvchat/internal/rag"
)

// ErrEmptyQuestion is returned by Ask for blank input.
var ErrEmptyQuestion = errors.New("question is empty")

// Answer is the outcome of one question.
type Answer struct {
	Question      string
	Results       rag.RankedResult
	Rows          []dataset.Record
	Context       string
	ContextTokens int
	Prompt        string
	Text          string
	Meta          providers.StreamMetadata
	// Err is the stream failure already rendered into Text, if any.
	Err       error
	Retrieval time.Duration
	Duration  time.Duration
}

// Session owns everything one chat needs: settings, the loaded dataset, the
// index cache, the provider and the conversation.
type Session struct {
	ID string

	mu       sync.RWMutex
	cfg      appconfig.Config
	ds       *dataset.Dataset
	onReload func(*dataset.Dataset, error)

	cache        *rag.Cache
	provider     providers.Provider
	conversation *Conversation
}

// NewSession binds cfg, ds and provider into a session seeded with the
// greeting turn.
func NewSession(cfg *appconfig.Config, ds *dataset.Dataset, provider providers.Provider) (*Session, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if ds == nil {
		return nil, fmt.Errorf("dataset is nil")
	}
	if provider == nil {
		return nil, fmt.Errorf("provider is nil")
	}
	if _, err := cfg.ChatHost(); err != nil {
		return nil, err
	}
	s := &Session{
		ID:           uuid.NewString(),
		cfg:          *cfg,
		ds:           ds,
		cache:        rag.NewCache(),
		provider:     provider,
		conversation: NewConversation(GreetingMessage),
	}
	s.cfg.TextColumns = append([]string(nil), cfg.TextColumns...)
	logging.LogEvent("[CHAT %s] session started: %s, %s", s.ID, ds.Name, ds.Summary())
	return s, nil
}

// Settings returns a copy of the current configuration.
func (s *Session) Settings() appconfig.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.cfg
	cfg.TextColumns = append([]string(nil), s.cfg.TextColumns...)
	return cfg
}

// Dataset returns the dataset currently in use.
func (s *Session) Dataset() *dataset.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ds
}

// Conversation returns the session history.
func (s *Session) Conversation() *Conversation {
	return s.conversation
}

// Selection returns the index selection for the current settings. With no
// configured columns the first three dataset columns are used.
func (s *Session) Selection() rag.Selection {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selectionLocked()
}

func (s *Session) selectionLocked() rag.Selection {
	return rag.SelectionFromConfig(&s.cfg).Resolve(s.ds)
}

// Prepare builds the index for the current settings ahead of the first
// question.
func (s *Session) Prepare() (*rag.Snapshot, error) {
	s.mu.RLock()
	ds, sel := s.ds, s.selectionLocked()
	s.mu.RUnlock()
	return s.cache.Ensure(ds, sel)
}

// WarmUp asks the provider to load the configured model.
func (s *Session) WarmUp(ctx context.Context) error {
	cfg := s.Settings()
	host, err := cfg.ChatHost()
	if err != nil {
		return err
	}
	return s.provider.EnsureModelReady(ctx, host, cfg.Model)
}

// Retrieve ranks the dataset against question and renders the context block.
func (s *Session) Retrieve(question string) (Answer, error) {
	s.mu.RLock()
	ds, sel, cfg := s.ds, s.selectionLocked(), s.cfg
	s.mu.RUnlock()

	start := time.Now()
	results, err := s.cache.Search(ds, sel, question, cfg.TopK)
	if err != nil {
		return Answer{}, err
	}
	answer := Answer{Question: question, Results: results, Retrieval: time.Since(start)}
	answer.Rows = make([]dataset.Record, len(results))
	for i, res := range results {
		answer.Rows[i] = ds.Record(res.Index)
	}
	answer.Context, answer.ContextTokens = rag.FormatContext(results, ds, sel.Columns, cfg.ContextTokenLimit)
	answer.Prompt = rag.BuildPrompt(rag.DefaultInstruction, question, answer.Context)
	return answer, nil
}

// Ask retrieves context for question, streams the model answer to onToken
// and records the user and assistant turns. A retrieval error leaves the
// history untouched. A model failure is not an error: its message becomes
// the assistant turn and is also reported in Answer.Err.
func (s *Session) Ask(ctx context.Context, question string, onToken func(string)) (Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return Answer{}, ErrEmptyQuestion
	}

	start := time.Now()
	answer, err := s.Retrieve(question)
	if err != nil {
		logging.LogEvent("[CHAT %s] retrieval failed: %v", s.ID, err)
		return Answer{}, err
	}
	if err := s.conversation.Append(providers.RoleUser, question); err != nil {
		return Answer{}, err
	}
	logging.LogEvent("[CHAT %s] retrieved rows %v in %s", s.ID, answer.Results.Indices(), answer.Retrieval)

	cfg := s.Settings()
	host, err := cfg.ChatHost()
	if err != nil {
		return Answer{}, err
	}
	stream := providers.NewTokenStream(ctx, s.provider, providers.GenerateRequest{
		Host:       host,
		Model:      cfg.Model,
		Prompt:     answer.Prompt,
		Parameters: cfg.GenerationParameters(),
		Session:    s.ID,
	})

	var text strings.Builder
	for fragment := range stream.All() {
		text.WriteString(fragment)
		if onToken != nil {
			onToken(fragment)
		}
	}

	answer.Text = text.String()
	answer.Meta = stream.Metadata()
	answer.Err = stream.Err()
	answer.Duration = time.Since(start)
	if err := s.conversation.Append(providers.RoleAssistant, answer.Text); err != nil {
		return answer, err
	}
	return answer, nil
}

// Reset starts a new conversation. Settings and the index are kept.
func (s *Session) Reset() {
	s.conversation.Reset(ResetMessage)
	logging.LogEvent("[CHAT %s] conversation reset", s.ID)
}

// Apply executes a slash command and returns the status line to show.
// Setting changes are validated as a whole and rolled back when invalid.
func (s *Session) Apply(cmd Command) (string, error) {
	switch cmd.Kind {
	case CommandReset:
		s.Reset()
		return ResetMessage, nil
	case CommandHelp:
		return CommandHelpText, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cfg
	var status string
	switch cmd.Kind {
	case CommandTopK:
		n, err := strconv.Atoi(cmd.Arg)
		if err != nil {
			return "", fmt.Errorf("top-k must be a whole number: %q", cmd.Arg)
		}
		next.TopK = n
		status = fmt.Sprintf("Top-k set to %d", n)
	case CommandRows:
		n, err := strconv.Atoi(cmd.Arg)
		if err != nil {
			return "", fmt.Errorf("row limit must be a whole number: %q", cmd.Arg)
		}
		next.MaxRows = n
		status = fmt.Sprintf("Row limit set to %d", n)
	case CommandTemperature:
		t, err := strconv.ParseFloat(cmd.Arg, 64)
		if err != nil {
			return "", fmt.Errorf("temperature must be a number: %q", cmd.Arg)
		}
		next.Temperature = &t
		status = fmt.Sprintf("Temperature set to %.2f", t)
	case CommandTokens:
		n, err := strconv.Atoi(cmd.Arg)
		if err != nil {
			return "", fmt.Errorf("max tokens must be a whole number: %q", cmd.Arg)
		}
		next.MaxTokens = n
		status = fmt.Sprintf("Max new tokens set to %d", n)
	case CommandModel:
		next.Model = cmd.Arg
		status = fmt.Sprintf("Model set to %s", cmd.Arg)
	case CommandColumns:
		columns := splitColumns(cmd.Arg)
		if len(columns) == 0 {
			return "", fmt.Errorf("%w: select at least one text column", rag.ErrConfiguration)
		}
		for _, col := range columns {
			if !s.ds.HasColumn(col) {
				return "", fmt.Errorf("%w: column %q not found (have %s)", rag.ErrConfiguration, col, strings.Join(s.ds.Columns, ", "))
			}
		}
		next.TextColumns = columns
		status = fmt.Sprintf("Indexing columns: %s", strings.Join(columns, ", "))
	default:
		return "", fmt.Errorf("unsupported command %d", cmd.Kind)
	}

	if err := next.Validate(); err != nil {
		return "", err
	}
	s.cfg = next
	logging.LogEvent("[CHAT %s] %s", s.ID, status)
	return status, nil
}

func splitColumns(arg string) []string {
	var columns []string
	for _, col := range strings.Split(arg, ",") {
		if col = strings.TrimSpace(col); col != "" {
			columns = append(columns, col)
		}
	}
	return columns
}

// SetReloadHook registers fn to run after every dataset reload attempt.
func (s *Session) SetReloadHook(fn func(*dataset.Dataset, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReload = fn
}

// Reload reads the dataset from the configured path again and drops the
// cached index. On failure the previous dataset stays in use.
func (s *Session) Reload() error {
	s.mu.RLock()
	path, hook := s.cfg.Dataset, s.onReload
	s.mu.RUnlock()

	ds, err := dataset.Load(path)
	if err == nil {
		s.mu.Lock()
		s.ds = ds
		s.mu.Unlock()
		s.cache.Invalidate()
		logging.LogEvent("[CHAT %s] dataset reloaded: %s", s.ID, ds.Summary())
	} else {
		logging.LogEvent("[CHAT %s] dataset reload failed: %v", s.ID, err)
	}
	if hook != nil {
		hook(ds, err)
	}
	return err
}

// Watch reloads the dataset whenever its file changes, until ctx is done.
func (s *Session) Watch(ctx context.Context) error {
	path := s.Settings().Dataset
	return dataset.Watch(ctx, path, func() {
		_ = s.Reload()
	})
}
