// internal/cli/show.go
package csvchat

import (
	"context"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/providers"
	"github.com/spf13/cobra"
)

// showCmd represents the 'show' command group for displaying resources.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Group commands for displaying resources",
	Long:  `The 'show' command groups subcommands that display resources or information related to csvchat.`,
}

// showConfigCmd prints the merged configuration.
var showConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show config settings",
	Long:  `Show config settings ensuring that the JSON configs are loaded properly and overridden by flags and CSVCHAT_* variables accordingly.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := GetConfig()
		file := ""
		if cfg != nil {
			file = cfg.ConfigPath
		}
		appconfig.ShowConfig(cmd.OutOrStdout(), file, cfg)
	},
}

// showModelsCmd lists the models each configured host has loaded.
var showModelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Show the models currently loaded on each host",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if cfg == nil {
			return fmt.Errorf("config is nil")
		}
		provider, err := newProvider(cfg)
		if err != nil {
			return err
		}
		defer provider.Close()
		return runShowModels(cmd.Context(), cmd.OutOrStdout(), cfg, provider)
	},
}

func runShowModels(ctx context.Context, out io.Writer, cfg *appconfig.Config, provider providers.Provider) error {
	if ctx == nil {
		ctx = context.Background()
	}
	hostStyle := color.New(color.FgCyan, color.Bold)
	failStyle := color.New(color.FgRed)

	for _, host := range cfg.Hosts {
		hostStyle.Fprintf(out, "%s (%s)\n", host.Name, host.URL)
		models, err := provider.LoadedModels(ctx, host)
		if err != nil {
			failStyle.Fprintf(out, "  %s\n", providers.FailureMessage(host.URL, err))
			continue
		}
		if len(models) == 0 {
			fmt.Fprintln(out, "  (no models loaded)")
			continue
		}
		for _, model := range models {
			marker := " "
			if model == cfg.Model || model == cfg.Model+":latest" {
				marker = "*"
			}
			fmt.Fprintf(out, "  %s %s\n", marker, model)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(showCmd)
	showCmd.AddCommand(showConfigCmd)
	showCmd.AddCommand(showModelsCmd)
}
