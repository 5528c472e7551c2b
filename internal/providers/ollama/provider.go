// internal/providers/ollama/provider.go
// Package ollama provides a Provider backed by the Ollama HTTP API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/logging"
	"github.com/mwiater/csvchat/internal/providers"
)

const maxLineBytes = 1 << 20

// Provider implements providers.Provider using the Ollama HTTP API.
type Provider struct {
	client  *http.Client
	timeout time.Duration
}

// New constructs a Provider configured with the application's request timeout.
func New(cfg *appconfig.Config) *Provider {
	timeout := cfg.RequestTimeout()
	return &Provider{
		client: &http.Client{
			Transport: &http.Transport{ForceAttemptHTTP2: false},
		},
		timeout: timeout,
	}
}

// ollamaPsResponse defines the structure of the response from the /api/ps endpoint.
type ollamaPsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// generateLine is one NDJSON line of a streaming /api/generate response.
type generateLine struct {
	Model              string `json:"model"`
	Response           string `json:"response"`
	Done               bool   `json:"done"`
	Error              string `json:"error,omitempty"`
	TotalDuration      int64  `json:"total_duration"`
	LoadDuration       int64  `json:"load_duration"`
	PromptEvalCount    int    `json:"prompt_eval_count"`
	PromptEvalDuration int64  `json:"prompt_eval_duration"`
	EvalCount          int    `json:"eval_count"`
	EvalDuration       int64  `json:"eval_duration"`
}

// LoadedModels returns the models currently loaded in memory on the host.
func (p *Provider) LoadedModels(ctx context.Context, host appconfig.Host) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	endpoint := host.URL + "/api/ps"
	logging.LogRequest("CSVCHAT->LLM", hostIdentifier(host), "", "", map[string]string{"method": http.MethodGet, "url": endpoint})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: /api/ps returned %s", providers.ErrProtocol, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	logging.LogRequest("LLM->CSVCHAT", hostIdentifier(host), "", "", body)

	var ps ollamaPsResponse
	if err := json.Unmarshal(body, &ps); err != nil {
		return nil, fmt.Errorf("%w: decode /api/ps: %v", providers.ErrProtocol, err)
	}

	names := make([]string, len(ps.Models))
	for i, m := range ps.Models {
		names[i] = m.Name
	}
	return names, nil
}

// EnsureModelReady sends a generate request without a prompt, which makes
// Ollama load the model and return immediately.
func (p *Provider) EnsureModelReady(ctx context.Context, host appconfig.Host, model string) error {
	payload := map[string]any{
		"model":  model,
		"stream": false,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	logging.LogRequest("CSVCHAT->LLM", hostIdentifier(host), model, "", body)

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host.URL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return classifyTransportError(host, err)
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	logging.LogRequest("LLM->CSVCHAT", hostIdentifier(host), model, "", respBody)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: /api/generate returned %s: %s", providers.ErrProtocol, resp.Status, strings.TrimSpace(string(respBody)))
	}

	return nil
}

// Stream posts the prompt to /api/generate with streaming enabled and hands
// each response fragment to callbacks.OnChunk. It returns as soon as a line
// reports done, without draining the rest of the body.
func (p *Provider) Stream(ctx context.Context, req providers.GenerateRequest, callbacks providers.StreamCallbacks) error {
	hostID := hostIdentifier(req.Host)
	payload := map[string]any{
		"model":   req.Model,
		"prompt":  req.Prompt,
		"stream":  true,
		"options": buildOptions(req.Parameters),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if pretty, perr := json.MarshalIndent(payload, "", "  "); perr == nil {
		logging.LogRequest("CSVCHAT->LLM", hostID, req.Model, req.Session, pretty)
	} else {
		logging.LogRequest("CSVCHAT->LLM", hostID, req.Model, req.Session, body)
	}

	streamCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, req.Host.URL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(req.Host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxLineBytes))
		logging.LogRequest("LLM->CSVCHAT", hostID, req.Model, req.Session, raw)
		return fmt.Errorf("%w: /api/generate returned %s: %s", providers.ErrProtocol, resp.Status, strings.TrimSpace(string(raw)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var final generateLine
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		logging.LogRequest("LLM->CSVCHAT", hostID, req.Model, req.Session, line)

		var chunk generateLine
		if err := json.Unmarshal(line, &chunk); err != nil {
			return fmt.Errorf("%w: malformed stream line %q: %v", providers.ErrProtocol, truncate(line, 80), err)
		}
		if chunk.Error != "" {
			return fmt.Errorf("%w: %s", providers.ErrProtocol, chunk.Error)
		}

		if callbacks.OnChunk != nil && chunk.Response != "" {
			if err := callbacks.OnChunk(chunk.Response); err != nil {
				return err
			}
		}

		if chunk.Done {
			final = chunk
			break
		}
	}
	if !final.Done {
		if err := scanner.Err(); err != nil {
			return classifyTransportError(req.Host, err)
		}
		logging.LogEvent("[%s] %s stream ended before a done line; the answer may be truncated", hostID, req.Model)
	}

	if callbacks.OnComplete != nil {
		modelName := final.Model
		if modelName == "" {
			modelName = req.Model
		}
		meta := providers.StreamMetadata{
			Model:              modelName,
			CreatedAt:          time.Now(),
			Done:               final.Done,
			TotalDuration:      final.TotalDuration,
			LoadDuration:       final.LoadDuration,
			PromptEvalCount:    final.PromptEvalCount,
			PromptEvalDuration: final.PromptEvalDuration,
			EvalCount:          final.EvalCount,
			EvalDuration:       final.EvalDuration,
		}
		if err := callbacks.OnComplete(meta); err != nil {
			return err
		}
	}

	return nil
}

func buildOptions(params appconfig.Parameters) map[string]any {
	options := map[string]any{}
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	}
	if params.NumPredict != nil {
		options["num_predict"] = *params.NumPredict
	}
	return options
}

// classifyTransportError marks connection failures as providers.ErrUnavailable.
// Context errors pass through unchanged so callers can tell a cancel apart.
func classifyTransportError(host appconfig.Host, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, syscall.ECONNREFUSED),
		errors.As(err, &dnsErr),
		errors.As(err, &opErr) && opErr.Op == "dial":
		return fmt.Errorf("%w: %s: %v", providers.ErrUnavailable, host.URL, err)
	}
	return err
}

func hostIdentifier(host appconfig.Host) string {
	name := strings.TrimSpace(host.Name)
	if name != "" {
		return name
	}
	if url := strings.TrimSpace(host.URL); url != "" {
		return url
	}
	return "ollama-host"
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Close releases idle connections held by the provider.
func (p *Provider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
