package csvchat

import (
	"github.com/mwiater/csvchat/internal/rag"
	"github.com/spf13/cobra"
)

// ragCmd groups retrieval-related CLI commands.
var ragCmd = &cobra.Command{
	Use:   "rag",
	Short: "Retrieval utilities",
}

// ragPreviewCmd previews retrieval and context assembly for a query.
var ragPreviewCmd = &cobra.Command{
	Use:   "preview <query>",
	Short: "Preview row retrieval and context assembly without calling a model",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if err := requireDataset(cfg); err != nil {
			return err
		}
		return rag.RunPreviewCommand(cmd.OutOrStdout(), cfg, args)
	},
}

func init() {
	rootCmd.AddCommand(ragCmd)
	ragCmd.AddCommand(ragPreviewCmd)
}
