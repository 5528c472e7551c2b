// internal/appconfig/appconfig.go
// Package appconfig manages loading and interpreting application configuration.
package appconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	// DefaultConfigPath is the default path to the application's configuration file.
	DefaultConfigPath = "config/config.json"
	// legacyConfigPath is checked when the default path does not exist.
	legacyConfigPath = "csvchat.json"
	// defaultRequestTimeout bounds a single generate call. Local models can be
	// very slow, so this is large but finite.
	defaultRequestTimeout = 0xFFFF * time.Second

	DefaultHostURL     = "http://localhost:11434"
	DefaultModel       = "phi3"
	DefaultTopK        = 3
	DefaultMaxRows     = 1000
	DefaultTemperature = 0.7
	DefaultMaxTokens   = 256

	MinTopK        = 1
	MaxTopK        = 10
	MinRows        = 1
	MaxRows        = 100000
	MinTemperature = 0.0
	MaxTemperature = 1.5
	MinMaxTokens   = 32
	MaxMaxTokens   = 1024
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config represents the top-level application configuration.
type Config struct {
	Hosts             []Host   `json:"hosts" mapstructure:"hosts"`
	Host              string   `json:"host,omitempty" mapstructure:"host"`
	Model             string   `json:"model,omitempty" mapstructure:"model"`
	Dataset           string   `json:"dataset,omitempty" mapstructure:"dataset"`
	TextColumns       []string `json:"textColumns,omitempty" mapstructure:"textColumns"`
	TopK              int      `json:"topK,omitempty" mapstructure:"topK"`
	MaxRows           int      `json:"maxRows,omitempty" mapstructure:"maxRows"`
	Temperature       *float64 `json:"temperature,omitempty" mapstructure:"temperature"`
	MaxTokens         int      `json:"maxTokens,omitempty" mapstructure:"maxTokens"`
	ContextTokenLimit int      `json:"contextTokenLimit,omitempty" mapstructure:"contextTokenLimit"`
	StemLanguage      string   `json:"stemLanguage,omitempty" mapstructure:"stemLanguage"`
	WatchDataset      bool     `json:"watchDataset" mapstructure:"watchDataset"`
	TimeoutSeconds    int      `json:"timeout,omitempty" mapstructure:"timeout"`
	Debug             bool     `json:"debug" mapstructure:"debug"`
	LogFile           string   `json:"logFile,omitempty" mapstructure:"logFile"`
	ConfigPath        string   `json:"-" mapstructure:"-"`
}

// Host represents a single Ollama-compatible server.
type Host struct {
	Name string `json:"name" mapstructure:"name"`
	URL  string `json:"url" mapstructure:"url"`
	Type string `json:"type" mapstructure:"type"`
}

// Parameters are the sampling options forwarded to the inference server.
type Parameters struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  *int     `json:"num_predict,omitempty"`
}

// RequestTimeout returns the timeout duration for HTTP requests, falling back to the default if not specified.
func (c Config) RequestTimeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultRequestTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// LogFilePath returns the path to the application log file, applying a default if not set.
func (c Config) LogFilePath() string {
	if path := c.LogFile; strings.TrimSpace(path) != "" {
		return path
	}
	return "csvchat.log"
}

// TemperatureValue returns the configured temperature or the default.
func (c Config) TemperatureValue() float64 {
	if c.Temperature == nil {
		return DefaultTemperature
	}
	return *c.Temperature
}

// GenerationParameters builds the sampling options sent with each prompt.
func (c Config) GenerationParameters() Parameters {
	temperature := c.TemperatureValue()
	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return Parameters{Temperature: &temperature, NumPredict: &maxTokens}
}

// ChatHost resolves the host used for generation. An empty Host selects the
// first configured entry.
func (c Config) ChatHost() (Host, error) {
	if len(c.Hosts) == 0 {
		return Host{}, fmt.Errorf("%w: at least one host is required", ErrInvalidConfig)
	}
	name := strings.TrimSpace(c.Host)
	if name == "" {
		return c.Hosts[0], nil
	}
	for _, host := range c.Hosts {
		if host.Name == name {
			return host, nil
		}
	}
	return Host{}, fmt.Errorf("%w: host %q not found in config hosts", ErrInvalidConfig, name)
}

// ApplyDefaults fills zero values that have no valid zero meaning.
func (c *Config) ApplyDefaults() {
	if len(c.Hosts) == 0 {
		c.Hosts = []Host{{Name: "local", URL: DefaultHostURL, Type: "ollama"}}
	}
	for i := range c.Hosts {
		if strings.TrimSpace(c.Hosts[i].Type) == "" {
			c.Hosts[i].Type = "ollama"
		}
		c.Hosts[i].URL = strings.TrimRight(strings.TrimSpace(c.Hosts[i].URL), "/")
	}
	if strings.TrimSpace(c.Model) == "" {
		c.Model = DefaultModel
	}
	if c.TopK == 0 {
		c.TopK = DefaultTopK
	}
	if c.MaxRows == 0 {
		c.MaxRows = DefaultMaxRows
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = int(defaultRequestTimeout.Seconds())
	}
}

// Validate checks every operator knob against its allowed range.
func (c Config) Validate() error {
	var problems []string
	for i, host := range c.Hosts {
		if strings.TrimSpace(host.URL) == "" {
			problems = append(problems, fmt.Sprintf("hosts[%d].url is required", i))
		}
		if host.Type != "" && host.Type != "ollama" {
			problems = append(problems, fmt.Sprintf("hosts[%d].type %q is not supported", i, host.Type))
		}
	}
	if _, err := c.ChatHost(); err != nil {
		problems = append(problems, strings.TrimPrefix(err.Error(), ErrInvalidConfig.Error()+": "))
	}
	if c.TopK < MinTopK || c.TopK > MaxTopK {
		problems = append(problems, fmt.Sprintf("topK must be between %d and %d, got %d", MinTopK, MaxTopK, c.TopK))
	}
	if c.MaxRows < MinRows || c.MaxRows > MaxRows {
		problems = append(problems, fmt.Sprintf("maxRows must be between %d and %d, got %d", MinRows, MaxRows, c.MaxRows))
	}
	if t := c.TemperatureValue(); t < MinTemperature || t > MaxTemperature {
		problems = append(problems, fmt.Sprintf("temperature must be between %.1f and %.1f, got %v", MinTemperature, MaxTemperature, t))
	}
	if c.MaxTokens < MinMaxTokens || c.MaxTokens > MaxMaxTokens {
		problems = append(problems, fmt.Sprintf("maxTokens must be between %d and %d, got %d", MinMaxTokens, MaxMaxTokens, c.MaxTokens))
	}
	if c.ContextTokenLimit < 0 {
		problems = append(problems, "contextTokenLimit must be zero or greater")
	}
	if !SupportedStemLanguage(c.StemLanguage) {
		problems = append(problems, fmt.Sprintf("stemLanguage %q is not supported", c.StemLanguage))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// SupportedStemLanguage reports whether the analyzer can stem the language.
// The empty string disables stemming.
func SupportedStemLanguage(lang string) bool {
	switch strings.ToLower(strings.TrimSpace(lang)) {
	case "", "english", "spanish", "french", "russian", "swedish", "norwegian", "hungarian":
		return true
	}
	return false
}

// ResolvePath returns the config file to read for path. The default path
// falls back to the legacy location. ok is false when no file exists.
func ResolvePath(path string) (resolved string, ok bool) {
	if path == "" {
		path = DefaultConfigPath
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return path, true
	}
	if path == DefaultConfigPath {
		if info, err := os.Stat(legacyConfigPath); err == nil && !info.IsDir() {
			return legacyConfigPath, true
		}
	}
	return path, false
}
