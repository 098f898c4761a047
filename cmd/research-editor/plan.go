// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-editor/internal/plan"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Preview the report outline without researching sections",
	Long: `Plan runs the initial briefing and the planning stage only, then prints
the resulting title, date, and sections as YAML. Use it to tune max_sections
or human feedback before a full run.`,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	spec, err := taskFromFlags(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}

	eventsPath, _ := cmd.Flags().GetString("events-file")
	p, err := newPipeline(cfg, spec, eventsPath)
	if err != nil {
		return err
	}
	defer p.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	briefing, err := initialResearch(ctx, cmd, p, spec)
	if err != nil {
		return err
	}
	planner := &plan.Planner{Invoker: p.invoker, Reporter: p.reporter, MaxTokens: cfg.AI.MaxTokens}
	rp, err := planner.Plan(ctx, briefing, spec)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(rp)
	if err != nil {
		return fmt.Errorf("encoding plan: %w", err)
	}
	_, err = os.Stdout.Write(out)
	return err
}

func init() {
	addTaskFlags(planCmd)
	planCmd.Flags().String("initial-research", "", "file holding a briefing to plan from instead of researching one")
	planCmd.Flags().Bool("skip-briefing", false, "plan from the query alone")

	rootCmd.AddCommand(planCmd)
}
