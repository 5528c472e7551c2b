// internal/cli/commands_test.go
package csvchat

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fatih/color"
	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/chat"
	"github.com/mwiater/csvchat/internal/logging"
	"github.com/mwiater/csvchat/internal/providers"
	"github.com/spf13/cobra"
)

const carsCSV = "name,color,notes\nroadster,red,fast and loud\ncruiser,blue,slow\nhatch,red,cheap to run\n"

type fakeProvider struct {
	mu        sync.Mutex
	fragments []string
	models    map[string][]string
	prompts   []string
	closed    bool
}

func (p *fakeProvider) LoadedModels(_ context.Context, host appconfig.Host) ([]string, error) {
	models, ok := p.models[host.URL]
	if !ok {
		return nil, providers.ErrUnavailable
	}
	return models, nil
}

func (p *fakeProvider) EnsureModelReady(context.Context, appconfig.Host, string) error {
	return nil
}

func (p *fakeProvider) Stream(_ context.Context, req providers.GenerateRequest, cb providers.StreamCallbacks) error {
	p.mu.Lock()
	p.prompts = append(p.prompts, req.Prompt)
	p.mu.Unlock()
	for _, f := range p.fragments {
		if err := cb.OnChunk(f); err != nil {
			return err
		}
	}
	return cb.OnComplete(providers.StreamMetadata{Model: req.Model, Done: true, EvalCount: len(p.fragments)})
}

func (p *fakeProvider) Close() error {
	p.closed = true
	return nil
}

func testSetup(t *testing.T) (configPath string) {
	t.Helper()
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "cars.csv")
	if err := os.WriteFile(csvPath, []byte(carsCSV), 0o644); err != nil {
		t.Fatalf("write csv: %v", err)
	}
	body := `{"dataset": "` + filepath.ToSlash(csvPath) + `", "topK": 2, "logFile": "` + filepath.ToSlash(filepath.Join(dir, "csvchat.log")) + `"}`
	configPath = filepath.Join(dir, "config.json")
	if err := os.WriteFile(configPath, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return configPath
}

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	b := new(bytes.Buffer)
	rootCmd.SetOut(b)
	rootCmd.SetErr(b)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		currentConfig = nil
		logging.Close()
	})
	err := rootCmd.Execute()
	return b.String(), err
}

func TestChatCmd(t *testing.T) {
	configPath := testSetup(t)
	provider := &fakeProvider{}

	originalStartGUI, originalProvider := startGUI, newProvider
	defer func() { startGUI, newProvider = originalStartGUI, originalProvider }()

	newProvider = func(*appconfig.Config) (providers.Provider, error) { return provider, nil }
	var got *chat.Session
	startGUI = func(_ context.Context, session *chat.Session, _ context.CancelFunc) error {
		got = session
		return nil
	}

	if _, err := executeRoot(t, "--config", configPath, "chat"); err != nil {
		t.Fatalf("chat command error: %v", err)
	}
	if got == nil {
		t.Fatal("expected the chat UI to be started with a session")
	}
	if got.Dataset().Len() != 3 {
		t.Fatalf("expected 3 rows, got %d", got.Dataset().Len())
	}
	if got.Settings().TopK != 2 {
		t.Fatalf("expected topK 2 from config, got %d", got.Settings().TopK)
	}
	if !provider.closed {
		t.Fatal("expected provider to be closed")
	}
}

func TestChatCmdRequiresDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{"logFile": "` + filepath.ToSlash(filepath.Join(filepath.Dir(path), "csvchat.log")) + `"}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	originalStartGUI := startGUI
	defer func() { startGUI = originalStartGUI }()
	startGUI = func(context.Context, *chat.Session, context.CancelFunc) error {
		t.Fatal("chat UI should not start without a dataset")
		return nil
	}

	if _, err := executeRoot(t, "--config", path, "chat"); err == nil {
		t.Fatal("expected error without a dataset")
	}
}

func TestRunAsk(t *testing.T) {
	configPath := testSetup(t)
	cfg, err := loadConfig(newTestViper(t), configPath)
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}
	color.NoColor = true
	provider := &fakeProvider{fragments: []string{"The ", "roadster."}}

	var out bytes.Buffer
	err = chat.Run(cfg, provider, func(ctx context.Context, session *chat.Session, _ context.CancelFunc) error {
		return runAsk(ctx, &out, session, "which car is red", true)
	})
	if err != nil {
		t.Fatalf("runAsk error: %v", err)
	}

	text := out.String()
	if !strings.Contains(text, "Top-matching rows") {
		t.Fatalf("expected rows heading, got %q", text)
	}
	if !strings.Contains(text, "name=roadster | color=red") {
		t.Fatalf("expected the red roadster row, got %q", text)
	}
	if !strings.Contains(text, "Assistant: The roadster.") {
		t.Fatalf("expected streamed answer, got %q", text)
	}
	if strings.Index(text, "Assistant: ") > strings.Index(text, "Top-matching rows") {
		t.Fatalf("expected rows from the finished answer after the stream, got %q", text)
	}
	if strings.Count(text, "ROW ") != 2 {
		t.Fatalf("expected exactly topK rows, got %q", text)
	}
	if len(provider.prompts) != 1 || !strings.Contains(provider.prompts[0], "QUESTION:\nwhich car is red") {
		t.Fatalf("unexpected prompts: %v", provider.prompts)
	}
}

func TestRunAskEmptyQuestion(t *testing.T) {
	configPath := testSetup(t)
	cfg, err := loadConfig(newTestViper(t), configPath)
	if err != nil {
		t.Fatalf("loadConfig error: %v", err)
	}

	var out bytes.Buffer
	err = chat.Run(cfg, &fakeProvider{}, func(ctx context.Context, session *chat.Session, _ context.CancelFunc) error {
		return runAsk(ctx, &out, session, "   ", false)
	})
	if !errors.Is(err, chat.ErrEmptyQuestion) {
		t.Fatalf("expected ErrEmptyQuestion, got %v", err)
	}
}

func TestRunShowModels(t *testing.T) {
	color.NoColor = true
	cfg := &appconfig.Config{
		Model: "phi3",
		Hosts: []appconfig.Host{
			{Name: "up", URL: "http://up:11434"},
			{Name: "idle", URL: "http://idle:11434"},
			{Name: "down", URL: "http://down:11434"},
		},
	}
	provider := &fakeProvider{models: map[string][]string{
		"http://up:11434":   {"phi3:latest", "llama3"},
		"http://idle:11434": {},
	}}

	var out bytes.Buffer
	if err := runShowModels(context.Background(), &out, cfg, provider); err != nil {
		t.Fatalf("runShowModels error: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"up (http://up:11434)",
		"* phi3:latest",
		"  llama3",
		"(no models loaded)",
		"Cannot reach Ollama at http://down:11434",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}
}

func TestListCommands(t *testing.T) {
	root := &cobra.Command{Use: "csvchat", Short: "root"}
	group := &cobra.Command{Use: "rag", Short: "Retrieval utilities"}
	group.AddCommand(&cobra.Command{Use: "preview", Short: "Preview", Run: func(*cobra.Command, []string) {}})
	root.AddCommand(group)

	var out bytes.Buffer
	runListCommands(&out, root)
	text := out.String()
	if !strings.Contains(text, "csvchat rag preview") {
		t.Fatalf("expected nested command path, got %q", text)
	}
	if !strings.Contains(text, "Retrieval utilities") {
		t.Fatalf("expected description, got %q", text)
	}
}
