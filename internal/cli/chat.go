// internal/cli/chat.go
package csvchat

import (
	"github.com/mwiater/csvchat/internal/chat"
	"github.com/mwiater/csvchat/internal/logging"
	"github.com/mwiater/csvchat/internal/providerfactory"
	"github.com/mwiater/csvchat/internal/tui"
	"github.com/spf13/cobra"
)

var (
	startGUI    = tui.StartGUI
	newProvider = providerfactory.NewProvider
)

// chatCmd represents the 'chat' command.
var chatCmd = &cobra.Command{
	Use:         "chat",
	Short:       "Start an interactive chat over the configured CSV",
	Long:        `The 'chat' command loads the CSV, builds the retrieval index and opens an interactive chat whose answers are grounded on the best matching rows.`,
	Annotations: map[string]string{annotationTUI: "true"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if err := requireDataset(cfg); err != nil {
			return err
		}

		provider, err := newProvider(cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := provider.Close(); err != nil {
				logging.LogEvent("provider shutdown error: %v", err)
			}
		}()

		return chat.Run(cfg, provider, startGUI)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}
