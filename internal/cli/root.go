// internal/cli/root.go
package csvchat

import (
	"fmt"
	"os"

	"github.com/mwiater/csvchat/internal/appconfig"
	"github.com/mwiater/csvchat/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// annotationTUI marks commands that own the terminal; their logs go to the
// log file only.
const annotationTUI = "tui"

var (
	cfgFile       string
	currentConfig *appconfig.Config
	appVersion    = "dev"
	appCommit     = "none"
	appDate       = "unknown"
)

// configKeys are the viper keys that can be set from flags, CSVCHAT_* env
// variables or the JSON config file.
var configKeys = []string{
	"debug",
	"host",
	"model",
	"dataset",
	"textColumns",
	"topK",
	"maxRows",
	"temperature",
	"maxTokens",
	"contextTokenLimit",
	"stemLanguage",
	"watchDataset",
	"timeout",
	"logFile",
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:           "csvchat",
	Short:         "csvchat — ask questions about a CSV file with a local Ollama model",
	SilenceUsage:  true,
	SilenceErrors: false,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(viper.GetViper(), cfgFile)
		if err != nil {
			return err
		}
		currentConfig = cfg

		logPath := currentConfig.LogFilePath()
		if cmd.Annotations[annotationTUI] == "true" || !currentConfig.Debug {
			err = logging.InitFileOnly(logPath)
		} else {
			err = logging.Init(logPath)
		}
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", appVersion, appCommit, appDate)

	defer logging.Close()
	if err := rootCmd.Execute(); err != nil {
		logging.Close()
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", appconfig.DefaultConfigPath, "config file (e.g., config/config.json)")
	registerFlags(rootCmd.PersistentFlags())
	configureViper(viper.GetViper(), rootCmd.PersistentFlags())
}

// registerFlags declares one persistent flag per config key.
func registerFlags(flags *pflag.FlagSet) {
	flags.Bool("debug", false, "enable debug logging")
	flags.String("host", "", "name of the configured host to use (default: first host)")
	flags.StringP("model", "m", appconfig.DefaultModel, "Ollama model name")
	flags.StringP("dataset", "d", "", "path to the CSV file")
	flags.StringSlice("textColumns", nil, "columns joined into the searchable text (default: first three)")
	flags.IntP("topK", "k", appconfig.DefaultTopK, "rows retrieved as context (1-10)")
	flags.Int("maxRows", appconfig.DefaultMaxRows, "only index the first N rows")
	flags.Float64("temperature", appconfig.DefaultTemperature, "sampling temperature (0-1.5)")
	flags.Int("maxTokens", appconfig.DefaultMaxTokens, "maximum new tokens per answer (32-1024)")
	flags.Int("contextTokenLimit", 0, "truncate the context block at N words (0 = no limit)")
	flags.String("stemLanguage", "", "stem terms in this language before indexing (empty = off)")
	flags.Bool("watchDataset", false, "reload the dataset when the file changes")
	flags.Int("timeout", 0, "request timeout in seconds (0 = default)")
	flags.String("logFile", "", "path to the log file")
}

// configureViper binds flags to viper keys and enables CSVCHAT_* env
// overrides. Precedence is flags > env > config file > flag defaults.
func configureViper(v *viper.Viper, flags *pflag.FlagSet) {
	v.SetEnvPrefix("CSVCHAT")
	v.AutomaticEnv()
	for _, key := range configKeys {
		_ = v.BindPFlag(key, flags.Lookup(key))
	}
}

// loadConfig reads the config file at path, if any, merges it with flags and
// env through v and returns the validated result.
func loadConfig(v *viper.Viper, path string) (*appconfig.Config, error) {
	resolved, found := appconfig.ResolvePath(path)
	if found {
		if err := appconfig.ValidateFile(resolved); err != nil {
			return nil, err
		}
		v.SetConfigFile(resolved)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	} else if path != "" && path != appconfig.DefaultConfigPath {
		return nil, fmt.Errorf("no configuration file found at %q", path)
	}

	var cfg appconfig.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if found {
		cfg.ConfigPath = resolved
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// GetConfig returns the loaded application configuration for other packages.
func GetConfig() *appconfig.Config {
	return currentConfig
}

// SetVersionInfo allows the main package to inject build-time variables.
func SetVersionInfo(version, commit, date string) {
	appVersion = version
	appCommit = commit
	appDate = date
}

// requireDataset fails early with a usable message when no CSV is configured.
func requireDataset(cfg *appconfig.Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if cfg.Dataset == "" {
		return fmt.Errorf("no dataset configured: pass --dataset or set \"dataset\" in %s", appconfig.DefaultConfigPath)
	}
	return nil
}
