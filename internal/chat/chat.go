// Package chat ties retrieval and generation together into a conversation
// over one CSV dataset.
package chat

import (
	"context"
	"fmt"

	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/dataset"
	"github.com/mwiater/csvchat/internal/logging"
	"github.com/mwiater/csvchat/internal/providers"
)

// Run loads the configured dataset, builds a session around provider and
// hands it to start. With WatchDataset set, the dataset file is watched until
// start returns.
func Run(
	cfg *appconfig.Config,
	provider providers.Provider,
	start func(context.Context, *Session, context.CancelFunc) error,
) error {
	if cfg == nil {
		return fmt.Errorf("configuration is not loaded")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ds, err := dataset.Load(cfg.Dataset)
	if err != nil {
		return err
	}
	session, err := NewSession(cfg, ds, provider)
	if err != nil {
		return err
	}

	if cfg.WatchDataset {
		go func() {
			if err := session.Watch(ctx); err != nil {
				logging.LogEvent("[CHAT %s] dataset watch stopped: %v", session.ID, err)
			}
		}()
	}

	return start(ctx, session, cancel)
}
