// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the research-editor CLI. It plans a
// research question into sections, researches and reviews every section in
// parallel, and publishes the joined report.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/research-editor/internal/httputil"
	"github.com/pdiddy/research-editor/internal/secrets"
	"github.com/pdiddy/research-editor/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// loadedSecrets holds API keys loaded from .secrets/ at startup.
var loadedSecrets secrets.Set

// rootCmd is the base command for the research-editor CLI.
var rootCmd = &cobra.Command{
	Use:   "research-editor",
	Short: "Plan, research, review, and publish multi-section reports",
	Long: `research-editor turns a research question into a report. A planner
splits the question into sections; each section is researched from the web,
a local corpus, or both, then reviewed against the task guidelines and revised
until accepted or out of revisions. The sections are joined in plan order and
published as Markdown, HTML, or YAML.

Use "run" for a full run, "plan" to preview the outline, and "corpus" to
manage the local document index.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(dir, os.Stderr)
		if err != nil {
			return err
		}
		loadedSecrets = s
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			fmt.Fprintf(os.Stderr, "Loaded secrets: %v\n", keys)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./research-editor.yaml or ~/.config/research-editor/config.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory of API key files")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("research-editor")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "research-editor"))
		}
	}

	viper.SetEnvPrefix("RESEARCH_EDITOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// setDefaults registers every configuration key so AutomaticEnv can
// override nested keys (for example RESEARCH_EDITOR_AI_PROVIDER).
func setDefaults(v *viper.Viper) {
	v.SetDefault("ai.provider", string(types.ProviderAnthropic))
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.max_retries", 3)
	v.SetDefault("ai.max_tokens", 4096)

	v.SetDefault("retrieval.timeout", 30*time.Second)
	v.SetDefault("retrieval.user_agent", httputil.DefaultUserAgent)
	v.SetDefault("retrieval.max_results", 5)
	v.SetDefault("retrieval.fetch", string(types.FetchHTTP))
	v.SetDefault("retrieval.max_document_chars", 20000)
	v.SetDefault("retrieval.scholar", false)

	v.SetDefault("corpus.dir", "corpus")
	v.SetDefault("corpus.max_results", 8)
	v.SetDefault("corpus.convert_pdf", false)
	v.SetDefault("corpus.container_runtime", "")
	v.SetDefault("corpus.markitdown_image", "markitdown:latest")

	v.SetDefault("output.dir", "outputs")
	v.SetDefault("output.formats", []string{string(types.OutputMarkdown)})

	v.SetDefault("run.timeout", time.Duration(0))
	v.SetDefault("run.max_parallel", 0)
}

// loadConfig decodes the merged configuration (defaults, config file,
// environment) and fills the API key from secrets when none is configured.
func loadConfig(v *viper.Viper) (types.EditorConfig, error) {
	var cfg types.EditorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding config: %w", err)
	}
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = loadedSecrets.APIKey(cfg.AI.Provider)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
