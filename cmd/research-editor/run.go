// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/research-editor/internal/orchestrator"
	"github.com/pdiddy/research-editor/internal/plan"
	"github.com/pdiddy/research-editor/internal/report"
	"github.com/pdiddy/research-editor/internal/topic"
	"github.com/pdiddy/research-editor/pkg/types"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Research a question end to end and publish the report",
	Long: `Run loads the task, gathers an initial briefing, plans the report sections,
and researches every section in parallel. With follow_guidelines set, each
draft is reviewed against the task guidelines and revised until the reviewer
accepts it or max_revisions is reached. A section that fails keeps its place in
the report as a placeholder.

The joined report is written to the output directory in each publish format.`,
	RunE: runRun,
}

func runRun(cmd *cobra.Command, args []string) error {
	spec, err := taskFromFlags(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("timeout") {
		cfg.Run.Timeout, _ = cmd.Flags().GetDuration("timeout")
	}
	if cmd.Flags().Changed("max-parallel") {
		cfg.Run.MaxParallel, _ = cmd.Flags().GetInt("max-parallel")
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

	orch := &orchestrator.Orchestrator{
		Planner: &plan.Planner{Invoker: p.invoker, Reporter: p.reporter, MaxTokens: cfg.AI.MaxTokens},
		Topics: &topic.Workflow{
			Steps: &topic.Agents{
				Retriever: p.retriever,
				Invoker:   p.invoker,
				Reporter:  p.reporter,
				MaxTokens: cfg.AI.MaxTokens,
			},
			Reporter: p.reporter,
		},
		Reporter:    p.reporter,
		RunTimeout:  cfg.Run.Timeout,
		MaxParallel: cfg.Run.MaxParallel,
	}
	result, err := orch.Run(ctx, spec, briefing)
	if err != nil {
		return err
	}

	unknown := report.UnknownLinks(result)
	for _, section := range sortedKeys(unknown) {
		fmt.Fprintf(os.Stderr, "warning: section %q links to URLs outside its sources: %s\n", section, strings.Join(unknown[section], ", "))
	}

	formats := publishFormats(cmd, spec, cfg)
	outDir, _ := cmd.Flags().GetString("output-dir")
	if outDir == "" {
		outDir = cfg.Output.Dir
	}
	paths, err := (&report.Publisher{Dir: outDir}).Publish(result, formats)
	if err != nil {
		return err
	}
	for _, path := range paths {
		fmt.Fprintln(os.Stdout, path)
	}

	u := p.invoker.Usage()
	s := result.Summary()
	fmt.Fprintf(os.Stderr, "run %s: %d sections (%d accepted, %d exhausted, %d failed); %d model calls, %d input / %d output tokens\n",
		result.RunID, s.Total(), s.Accepted, s.Exhausted, s.Failed, u.Calls, u.InputTokens, u.OutputTokens)
	if s.HasFailures() {
		return fmt.Errorf("%d section(s) failed", s.Failed)
	}
	return nil
}

// initialResearch reads the briefing from --initial-research when given and
// otherwise asks the briefer for one.
func initialResearch(ctx context.Context, cmd *cobra.Command, p *pipeline, spec types.TaskSpec) (string, error) {
	if path, _ := cmd.Flags().GetString("initial-research"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading initial research: %w", err)
		}
		return string(data), nil
	}
	if skip, _ := cmd.Flags().GetBool("skip-briefing"); skip {
		return "", nil
	}
	b := &plan.Briefer{Retriever: p.retriever, Invoker: p.invoker, Reporter: p.reporter}
	return b.InitialResearch(ctx, spec)
}

// publishFormats picks --format, then the task's publish_formats, then the
// configured defaults.
func publishFormats(cmd *cobra.Command, spec types.TaskSpec, cfg types.EditorConfig) []types.OutputFormat {
	if names, _ := cmd.Flags().GetStringSlice("format"); len(names) > 0 {
		return report.ParseFormats(names)
	}
	if len(spec.Publish) > 0 {
		return report.ParseFormats(spec.Publish)
	}
	names := make([]string, len(cfg.Output.Formats))
	for i, f := range cfg.Output.Formats {
		names[i] = string(f)
	}
	return report.ParseFormats(names)
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func init() {
	addTaskFlags(runCmd)
	runCmd.Flags().Duration("timeout", 0, "bound the research phase (0 = config run.timeout)")
	runCmd.Flags().Int("max-parallel", 0, "maximum sections researched at once (0 = all)")
	runCmd.Flags().String("initial-research", "", "file holding a briefing to plan from instead of researching one")
	runCmd.Flags().Bool("skip-briefing", false, "plan from the query alone")
	runCmd.Flags().StringSlice("format", nil, "publish formats: markdown, html, yaml (default: task or config)")
	runCmd.Flags().String("output-dir", "", "directory for published reports (default: config output.dir)")

	rootCmd.AddCommand(runCmd)
}
