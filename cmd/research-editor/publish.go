// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/research-editor/internal/report"
)

var publishCmd = &cobra.Command{
	Use:   "publish <result.yaml>",
	Short: "Re-render a saved run result in other formats",
	Long: `Publish reads a result written by "run --format yaml" and writes it again
in the requested formats, without calling any model.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

func runPublish(cmd *cobra.Command, args []string) error {
	result, err := report.LoadResult(args[0])
	if err != nil {
		return err
	}

	names, _ := cmd.Flags().GetStringSlice("format")
	outDir, _ := cmd.Flags().GetString("output-dir")
	if outDir == "" {
		cfg, err := loadConfig(viper.GetViper())
		if err != nil {
			return err
		}
		outDir = cfg.Output.Dir
	}

	paths, err := (&report.Publisher{Dir: outDir}).Publish(*result, report.ParseFormats(names))
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Fprintln(os.Stdout, path)
	}
	return nil
}

func init() {
	publishCmd.Flags().StringSlice("format", []string{"markdown", "html"}, "publish formats: markdown, html, yaml")
	publishCmd.Flags().String("output-dir", "", "directory for published reports (default: config output.dir)")

	rootCmd.AddCommand(publishCmd)
}
