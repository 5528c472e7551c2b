package appconfig

import (
	"fmt"
	"io"

	"github.com/k0kubun/pp"
)

// ShowConfig prints the current configuration summary.
func ShowConfig(out io.Writer, file string, cfg *Config) {
	if file == "" {
		fmt.Fprintln(out, "No config file loaded (using defaults).")
	} else {
		fmt.Fprintf(out, "Config file: %s\n\n", file)
	}

	if cfg == nil {
		fmt.Fprintln(out, "Configuration is not loaded.")
		return
	}

	host, err := cfg.ChatHost()
	hostLine := fmt.Sprintf("%s (%s)", host.Name, host.URL)
	if err != nil {
		hostLine = err.Error()
	}

	fmt.Fprintln(out, "Current configuration:")
	fmt.Fprintf(out, "  Debug:              %v\n", cfg.Debug)
	fmt.Fprintf(out, "  Host:               %s\n", hostLine)
	fmt.Fprintf(out, "  Model:              %s\n", cfg.Model)
	fmt.Fprintf(out, "  Dataset:            %s\n", cfg.Dataset)
	fmt.Fprintf(out, "  Text Columns:       %v\n", cfg.TextColumns)
	fmt.Fprintf(out, "  Top K:              %d\n", cfg.TopK)
	fmt.Fprintf(out, "  Max Rows:           %d\n", cfg.MaxRows)
	fmt.Fprintf(out, "  Temperature:        %.2f\n", cfg.TemperatureValue())
	fmt.Fprintf(out, "  Max Tokens:         %d\n", cfg.MaxTokens)
	fmt.Fprintf(out, "  Context Token Limit: %d\n", cfg.ContextTokenLimit)
	fmt.Fprintf(out, "  Stem Language:      %s\n", cfg.StemLanguage)
	fmt.Fprintf(out, "  Watch Dataset:      %v\n", cfg.WatchDataset)
	fmt.Fprintf(out, "  Request Timeout:    %s\n", cfg.RequestTimeout())
	fmt.Fprintf(out, "  Log File:           %s\n", cfg.LogFilePath())

	if cfg.Debug {
		pp.ColoringEnabled = false
		fmt.Fprintln(out)
		pp.Fprintln(out, cfg)
	}
}
