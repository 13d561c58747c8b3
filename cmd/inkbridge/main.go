// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the inkbridge CLI.
// See docs/SETUP_GUIDE.md for configuration.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/inkbridge/internal/secrets"
	"github.com/pdiddy/inkbridge/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets secrets.Set

// rootCmd is the base command for the inkbridge CLI.
var rootCmd = &cobra.Command{
	Use:   "inkbridge",
	Short: "Sync handwritten reMarkable notebooks into searchable notes",
	Long: `inkbridge turns handwritten reMarkable notebooks into text notes. Each sync
lists the synced document tree, works out which notebooks changed since they
were last published to each destination, renders and recognizes their pages,
and publishes the text to Apple Notes or an Obsidian vault.

Progress is kept per destination in processed_notebooks_<name>.json, so one
failing destination never holds back another.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		s, err := secrets.Load(".secrets/", os.Stderr)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", s.Keys())
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./inkbridge.yaml or ~/.config/inkbridge/inkbridge.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("inkbridge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "inkbridge"))
		}
	}

	viper.SetEnvPrefix("INKBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	viper.BindEnv("ocr.api_key", "INKBRIDGE_OCR_API_KEY", "GOOGLE_VISION_API_KEY")
	viper.BindEnv("ocr.credentials_path", "INKBRIDGE_OCR_CREDENTIALS_PATH", "GOOGLE_APPLICATION_CREDENTIALS")
	viper.BindEnv("repair.api_key", "INKBRIDGE_REPAIR_API_KEY", "OPENAI_API_KEY")
	setDefaults(viper.GetViper(), types.DefaultConfig())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every scalar key so environment variables reach
// Unmarshal even when the config file omits them.
func setDefaults(v *viper.Viper, d types.Config) {
	v.SetDefault("sync.max_notebooks_per_run", d.Sync.MaxNotebooksPerRun)
	v.SetDefault("sync.state_dir", d.Sync.StateDir)
	v.SetDefault("sync.cache_dir", d.Sync.CacheDir)
	v.SetDefault("sync.work_dir", d.Sync.WorkDir)
	v.SetDefault("sync.output_dir", d.Sync.OutputDir)
	v.SetDefault("sync.log_path", d.Sync.LogPath)
	v.SetDefault("sync.history_db", d.Sync.HistoryDB)
	v.SetDefault("source.dir", d.Source.Dir)
	v.SetDefault("source.render_command", d.Source.RenderCommand)
	v.SetDefault("source.render_timeout", d.Source.RenderTimeout)
	v.SetDefault("ocr.credentials_path", d.OCR.CredentialsPath)
	v.SetDefault("ocr.credentials_json", d.OCR.CredentialsJSON)
	v.SetDefault("ocr.timeout", d.OCR.Timeout)
	v.SetDefault("ocr.endpoint", d.OCR.Endpoint)
	v.SetDefault("ocr.max_attempts", d.OCR.MaxAttempts)
	v.SetDefault("repair.enabled", d.Repair.Enabled)
	v.SetDefault("repair.model", d.Repair.Model)
	v.SetDefault("repair.timeout", d.Repair.Timeout)
	v.SetDefault("repair.endpoint", d.Repair.Endpoint)
	v.SetDefault("repair.prompt_file", d.Repair.PromptFile)
}

// loadConfig decodes viper's settings over the defaults, fills keys from
// .secrets/, and normalizes destinations. It does not validate.
func loadConfig(v *viper.Viper, s secrets.Set) (types.Config, error) {
	cfg := types.DefaultConfig()
	defaultDests := cfg.Destinations
	cfg.Destinations = nil
	if err := v.Unmarshal(&cfg); err != nil {
		return types.Config{}, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}
	if !v.IsSet("destinations") {
		cfg.Destinations = defaultDests
	}

	cfg.OCR.APIKey = s.Default(secrets.VisionAPIKey, strings.TrimSpace(cfg.OCR.APIKey))
	cfg.Repair.APIKey = s.Default(secrets.OpenAIAPIKey, strings.TrimSpace(cfg.Repair.APIKey))
	cfg.Normalize()
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
