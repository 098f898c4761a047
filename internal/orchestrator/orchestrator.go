// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package orchestrator runs a research task end to end: it plans once, runs
// one topic workflow per planned section concurrently, and joins the results
// back into plan order.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/research-editor/internal/progress"
	"github.com/pdiddy/research-editor/internal/topic"
	"github.com/pdiddy/research-editor/pkg/types"
)

// Planner produces the research plan for a task.
type Planner interface {
	Plan(ctx context.Context, initialResearch string, task types.TaskSpec) (types.ResearchPlan, error)
}

// TopicRunner runs one topic to a terminal state. *topic.Workflow
// implements it.
type TopicRunner interface {
	Run(ctx context.Context, task types.TaskSpec, topic string) (types.TopicResult, error)
}

// Orchestrator coordinates planning and the per-topic fan-out.
type Orchestrator struct {
	Planner  Planner
	Topics   TopicRunner
	Reporter progress.Reporter

	// RunTimeout bounds the topic phase of a run; zero means no limit.
	// Topics still running when it expires are recorded as timed out.
	RunTimeout time.Duration

	// MaxParallel bounds concurrently running topics; zero runs every
	// section at once.
	MaxParallel int

	// NewID returns the run identifier. Nil uses a random UUID.
	NewID func() string
}

// Run plans the task and researches every section. Only a planning failure
// is returned as an error; topic failures become placeholders in the
// result, which always has one entry per planned section in plan order.
func (o *Orchestrator) Run(ctx context.Context, task types.TaskSpec, initialResearch string) (types.AggregatedResult, error) {
	start := time.Now()
	result := types.AggregatedResult{RunID: o.newID(), Query: task.Query}

	plan, err := o.Planner.Plan(ctx, initialResearch, task)
	if err != nil {
		return result, fmt.Errorf("run %s: %w", result.RunID, err)
	}
	result.Plan = plan

	o.emit(progress.EventParallelResearch, progress.Message{
		Agent: progress.AgentEditor,
		Text:  fmt.Sprintf("Running parallel research for the following queries: %v", plan.Sections),
	})

	runCtx := ctx
	if o.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, o.RunTimeout)
		defer cancel()
	}

	result.Topics = o.fanOut(runCtx, task, plan.Sections)

	s := result.Summary()
	o.emit(progress.EventRunComplete, progress.RunEvent{
		RunID:     result.RunID,
		Accepted:  s.Accepted,
		Exhausted: s.Exhausted,
		Failed:    s.Failed,
		Elapsed:   time.Since(start),
	})
	return result, nil
}

// fanOut starts one workflow per section and collects their results by
// index, so the slice is in plan order regardless of completion order. When
// ctx ends before every workflow has reported, the missing topics are
// recorded as timed out and their goroutines are left to observe ctx.
func (o *Orchestrator) fanOut(ctx context.Context, task types.TaskSpec, sections []string) []types.TopicResult {
	type topicResult struct {
		index int
		res   types.TopicResult
	}

	ch := make(chan topicResult, len(sections))
	var sem chan struct{}
	if o.MaxParallel > 0 && o.MaxParallel < len(sections) {
		sem = make(chan struct{}, o.MaxParallel)
	}

	var wg sync.WaitGroup
	for i, section := range sections {
		wg.Add(1)
		go func(i int, section string) {
			defer wg.Done()
			if sem != nil {
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					return
				}
			}
			ch <- topicResult{index: i, res: o.runTopic(ctx, task, section)}
		}(i, section)
	}

	go func() {
		wg.Wait()
		close(ch)
	}()

	results := make([]types.TopicResult, len(sections))
	done := make([]bool, len(sections))
	collect := func(r topicResult) {
		results[r.index] = r.res
		done[r.index] = true
	}

wait:
	for {
		select {
		case r, ok := <-ch:
			if !ok {
				break wait
			}
			collect(r)
		case <-ctx.Done():
			for {
				select {
				case r, ok := <-ch:
					if !ok {
						break wait
					}
					collect(r)
				default:
					break wait
				}
			}
		}
	}

	for i, section := range sections {
		if !done[i] {
			results[i] = placeholder(section, &topic.StepError{Topic: section, Kind: types.KindTimeout, Err: ctx.Err()})
		}
	}
	return results
}

// runTopic runs one workflow and normalizes its outcome. A panicking
// workflow is confined to its own topic.
func (o *Orchestrator) runTopic(ctx context.Context, task types.TaskSpec, section string) (res types.TopicResult) {
	defer func() {
		if r := recover(); r != nil {
			res = placeholder(section, &topic.StepError{
				Topic: section,
				Kind:  types.KindResearchFailed,
				Err:   fmt.Errorf("workflow panic: %v", r),
			})
		}
	}()

	res, err := o.Topics.Run(ctx, task, section)
	if err != nil && !res.Failed() {
		res = placeholder(section, err)
	}
	res.Topic = section
	return res
}

// placeholder builds the failed entry for a topic.
func placeholder(section string, err error) types.TopicResult {
	kind := types.KindResearchFailed
	var se *topic.StepError
	if errors.As(err, &se) {
		kind = se.Kind
	}
	return types.TopicResult{
		Topic:     section,
		State:     types.StateFailed,
		ErrorKind: kind,
		Error:     err.Error(),
	}
}

func (o *Orchestrator) newID() string {
	if o.NewID != nil {
		return o.NewID()
	}
	return uuid.NewString()
}

func (o *Orchestrator) emit(eventType string, payload any) {
	progress.Emit(o.Reporter, progress.ChannelLogs, eventType, payload)
}
