// internal/providerfactory/factory.go
package providerfactory

import (
	"fmt"
	"strings"

	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/logging"
	"github.com/mwiater/csvchat/internal/providers"
	"github.com/mwiater/csvchat/internal/providers/ollama"
)

// NewProvider selects the generation backend for the configured hosts. Only
// Ollama hosts are supported; an empty type means Ollama.
func NewProvider(cfg *appconfig.Config) (providers.Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config provided to provider factory")
	}

	types, err := collectHostTypes(cfg)
	if err != nil {
		return nil, err
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("no hosts configured")
	}

	logging.LogEvent("provider ready: ollama (%d host(s))", len(cfg.Hosts))
	return ollama.New(cfg), nil
}

func collectHostTypes(cfg *appconfig.Config) (map[string]bool, error) {
	types := make(map[string]bool)
	for _, host := range cfg.Hosts {
		hostType := strings.ToLower(strings.TrimSpace(host.Type))
		switch hostType {
		case "", "ollama":
			types["ollama"] = true
		default:
			return nil, fmt.Errorf("unsupported host type %q for host %q", host.Type, host.Name)
		}
	}
	return types, nil
}
