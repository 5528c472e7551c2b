// internal/providers/ollama/provider_test.go
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/logging"
	"github.com/mwiater/csvchat/internal/providers"
)

func newTestProvider() *Provider {
	return New(&appconfig.Config{TimeoutSeconds: 5})
}

func generateRequest(url string) providers.GenerateRequest {
	temperature := 0.7
	numPredict := 256
	return providers.GenerateRequest{
		Host:   appconfig.Host{Name: "test", URL: url},
		Model:  "phi3",
		Prompt: "QUESTION:\nhi\n\nANSWER:",
		Parameters: appconfig.Parameters{
			Temperature: &temperature,
			NumPredict:  &numPredict,
		},
	}
}

func streamAll(t *testing.T, p *Provider, req providers.GenerateRequest) (string, providers.StreamMetadata, error) {
	t.Helper()
	var b strings.Builder
	var meta providers.StreamMetadata
	err := p.Stream(context.Background(), req, providers.StreamCallbacks{
		OnChunk: func(fragment string) error {
			b.WriteString(fragment)
			return nil
		},
		OnComplete: func(m providers.StreamMetadata) error {
			meta = m
			return nil
		},
	})
	return b.String(), meta, err
}

// TestProviderStreamPayload verifies the request body sent to /api/generate.
func TestProviderStreamPayload(t *testing.T) {
	t.Parallel()

	var capturedBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/generate" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		capturedBody, _ = io.ReadAll(r.Body)
		_, _ = w.Write([]byte(`{"response":"ok","done":true}` + "\n"))
	}))
	defer server.Close()

	if _, _, err := streamAll(t, newTestProvider(), generateRequest(server.URL)); err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}

	var payload struct {
		Model   string         `json:"model"`
		Prompt  string         `json:"prompt"`
		Stream  bool           `json:"stream"`
		Options map[string]any `json:"options"`
	}
	if err := json.Unmarshal(capturedBody, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Model != "phi3" || !payload.Stream {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if !strings.HasSuffix(payload.Prompt, "ANSWER:") {
		t.Fatalf("unexpected prompt: %q", payload.Prompt)
	}
	if payload.Options["temperature"] != 0.7 {
		t.Fatalf("expected temperature 0.7, got %v", payload.Options["temperature"])
	}
	if payload.Options["num_predict"] != float64(256) {
		t.Fatalf("expected num_predict 256, got %v", payload.Options["num_predict"])
	}
}

// TestProviderStreamStopsAtDone checks fragment order, blank line handling and
// that lines after the done marker are ignored.
func TestProviderStreamStopsAtDone(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		lines := []string{
			`{"model":"phi3","response":"Hel","done":false}`,
			``,
			`{"model":"phi3","response":"lo","done":false}`,
			`{"model":"phi3","response":"","done":true,"eval_count":2}`,
			`{"model":"phi3","response":" ignored","done":false}`,
			`not json`,
		}
		_, _ = w.Write([]byte(strings.Join(lines, "\n") + "\n"))
	}))
	defer server.Close()

	text, meta, err := streamAll(t, newTestProvider(), generateRequest(server.URL))
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	if text != "Hello" {
		t.Fatalf("expected Hello, got %q", text)
	}
	if !meta.Done || meta.EvalCount != 2 || meta.Model != "phi3" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
}

// TestProviderStreamEOFWithoutDone keeps the fragments of a cut-off stream
// and records the truncation in the log.
func TestProviderStreamEOFWithoutDone(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "csvchat.log")
	if err := logging.InitFileOnly(logPath); err != nil {
		t.Fatalf("init logging: %v", err)
	}
	t.Cleanup(func() { logging.Close() })

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"model":"phi3","response":"Hel","done":false}` + "\n"))
	}))
	defer server.Close()

	text, meta, err := streamAll(t, newTestProvider(), generateRequest(server.URL))
	if err != nil {
		t.Fatalf("Stream returned error: %v", err)
	}
	if text != "Hel" {
		t.Fatalf("expected Hel, got %q", text)
	}
	if meta.Done {
		t.Fatalf("expected metadata without done, got %+v", meta)
	}

	if err := logging.Close(); err != nil {
		t.Fatalf("close logging: %v", err)
	}
	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), "stream ended before a done line") {
		t.Fatalf("expected truncation to be logged, got:\n%s", raw)
	}
}

func TestProviderStreamUnreachable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := server.URL
	server.Close()

	req := generateRequest(url)
	_, _, err := streamAll(t, newTestProvider(), req)
	if !errors.Is(err, providers.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}

	stream := providers.NewTokenStream(context.Background(), newTestProvider(), req)
	var fragments []string
	for fragment := range stream.All() {
		fragments = append(fragments, fragment)
	}
	want := "⚠️ Cannot reach Ollama at " + url + ". Is `ollama serve` running?"
	if len(fragments) != 1 || fragments[0] != want {
		t.Fatalf("expected single unavailable fragment, got %q", fragments)
	}
}

func TestProviderStreamProtocolErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantMsg string
	}{
		{name: "non-200", status: http.StatusNotFound, body: `{"error":"model 'phi3' not found"}`, wantMsg: "404"},
		{name: "malformed line", status: http.StatusOK, body: "{\"response\":\"a\"}\n{broken\n", wantMsg: "malformed stream line"},
		{name: "error line", status: http.StatusOK, body: `{"error":"out of memory"}` + "\n", wantMsg: "out of memory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			_, _, err := streamAll(t, newTestProvider(), generateRequest(server.URL))
			if !errors.Is(err, providers.ErrProtocol) {
				t.Fatalf("expected ErrProtocol, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Fatalf("expected %q in error, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestProviderStreamCallbackErrorStops(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{\"response\":\"a\"}\n{\"response\":\"b\"}\n{\"done\":true}\n"))
	}))
	defer server.Close()

	stop := errors.New("stop")
	calls := 0
	err := newTestProvider().Stream(context.Background(), generateRequest(server.URL), providers.StreamCallbacks{
		OnChunk: func(string) error {
			calls++
			return stop
		},
	})
	if !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected one callback, got %d", calls)
	}
}

func TestLoadedModels(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/ps" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"models":[{"name":"phi3:latest"},{"name":"llama3:8b"}]}`))
	}))
	defer server.Close()

	models, err := newTestProvider().LoadedModels(context.Background(), appconfig.Host{URL: server.URL})
	if err != nil {
		t.Fatalf("LoadedModels: %v", err)
	}
	if len(models) != 2 || models[0] != "phi3:latest" {
		t.Fatalf("unexpected models: %v", models)
	}
}

func TestEnsureModelReady(t *testing.T) {
	t.Parallel()

	var payload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &payload)
		_, _ = w.Write([]byte(`{"model":"phi3","response":"","done":true}`))
	}))
	defer server.Close()

	if err := newTestProvider().EnsureModelReady(context.Background(), appconfig.Host{URL: server.URL}, "phi3"); err != nil {
		t.Fatalf("EnsureModelReady: %v", err)
	}
	if payload["model"] != "phi3" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if _, ok := payload["prompt"]; ok {
		t.Fatalf("warm-up request should not carry a prompt: %v", payload)
	}
}
