// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-editor/internal/llm"
	"github.com/pdiddy/research-editor/internal/progress"
	"github.com/pdiddy/research-editor/pkg/types"
)

// scriptedInvoker records requests and answers with a fixed text or error.
type scriptedInvoker struct {
	text     string
	err      error
	requests []llm.Request
}

func (s *scriptedInvoker) Invoke(_ context.Context, req llm.Request) (llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return llm.Response{}, s.err
	}
	return llm.Response{Text: s.text}, nil
}

// fixedRetriever returns fixed documents or an error.
type fixedRetriever struct {
	docs []types.Document
	err  error
}

func (f *fixedRetriever) Name() string { return "fixed" }

func (f *fixedRetriever) Retrieve(context.Context, string) ([]types.Document, error) {
	return f.docs, f.err
}

var fixedNow = func() time.Time { return time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC) }

func task(maxSections int) types.TaskSpec {
	return types.TaskSpec{Query: "Grid-scale energy storage", MaxSections: maxSections}.WithDefaults()
}

func TestPlan_TruncatesToMaxSections(t *testing.T) {
	inv := &scriptedInvoker{text: `{"title":"Storage","date":"09/03/2026","sections":["A","B","C","D","E"]}`}
	p := &Planner{Invoker: inv, Now: fixedNow}

	plan, err := p.Plan(context.Background(), "summary", task(3))
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, plan.Sections)
	assert.Equal(t, "Storage", plan.Title)
	assert.Equal(t, "09/03/2026", plan.Date)
}

func TestPlan_HonorsFewerSections(t *testing.T) {
	inv := &scriptedInvoker{text: `{"title":"T","date":"d","sections":["Only one"]}`}
	p := &Planner{Invoker: inv}

	plan, err := p.Plan(context.Background(), "", task(4))
	require.NoError(t, err)
	assert.Equal(t, []string{"Only one"}, plan.Sections)
}

func TestPlan_RequestShape(t *testing.T) {
	inv := &scriptedInvoker{text: "```json\n{\"title\":\"T\",\"sections\":[\"A\"]}\n```"}
	rec := &progress.Recorder{}
	p := &Planner{Invoker: inv, Reporter: rec, Now: fixedNow}

	plan, err := p.Plan(context.Background(), "batteries are cheap", task(2))
	require.NoError(t, err)
	assert.Equal(t, "09/03/2026", plan.Date, "missing date filled from clock")

	require.Len(t, inv.requests, 1)
	req := inv.requests[0]
	assert.Equal(t, types.TierSmart, req.Tier)
	assert.Equal(t, llm.ShapeStructured, req.Shape)
	assert.Contains(t, req.User, "Today's date is 09/03/2026")
	assert.Contains(t, req.User, "Research summary report: 'batteries are cheap'")
	assert.Contains(t, req.User, "maximum of 2 section headers")
	assert.NotContains(t, req.User, "Human feedback")

	require.Len(t, rec.OfType(progress.EventPlanning), 1)
	planEvents := rec.OfType(progress.EventPlan)
	require.Len(t, planEvents, 1)
	assert.Equal(t, progress.PlanEvent{Title: "T", Sections: []string{"A"}}, planEvents[0].Payload)
}

func TestPlan_EmptyResearchDegrades(t *testing.T) {
	inv := &scriptedInvoker{text: `{"title":"T","date":"d","sections":["A"]}`}
	p := &Planner{Invoker: inv}

	_, err := p.Plan(context.Background(), "  ", task(2))
	require.NoError(t, err)
	assert.Contains(t, inv.requests[0].User, "Plan from the research question alone: 'Grid-scale energy storage'")
}

func TestPlan_HumanFeedback(t *testing.T) {
	tests := []struct {
		name     string
		include  bool
		feedback string
		want     bool
	}{
		{"included", true, "Focus on policy", true},
		{"flag off", false, "Focus on policy", false},
		{"negative", true, "No.", false},
		{"none", true, "  NONE ", false},
		{"empty", true, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &scriptedInvoker{text: `{"title":"T","date":"d","sections":["A"]}`}
			ts := task(3)
			ts.IncludeHumanFeedback = tt.include
			ts.HumanFeedback = tt.feedback

			_, err := (&Planner{Invoker: inv}).Plan(context.Background(), "r", ts)
			require.NoError(t, err)
			if tt.want {
				assert.Contains(t, inv.requests[0].User, "Human feedback: "+tt.feedback)
			} else {
				assert.NotContains(t, inv.requests[0].User, "Human feedback")
			}
		})
	}
}

func TestPlan_Failures(t *testing.T) {
	tests := []struct {
		name string
		inv  *scriptedInvoker
	}{
		{"model error", &scriptedInvoker{err: errors.New("quota exceeded")}},
		{"unparsable", &scriptedInvoker{text: "Here are some ideas: storage, grids."}},
		{"no usable sections", &scriptedInvoker{text: `{"title":"T","sections":["Introduction","Conclusion"," "]}`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := (&Planner{Invoker: tt.inv}).Plan(context.Background(), "r", task(3))
			assert.ErrorIs(t, err, ErrPlanningFailed)
		})
	}
}

func TestSanitize(t *testing.T) {
	in := []string{
		"Introduction",
		"  Lithium-ion   costs ",
		"lithium-ion costs",
		"",
		"2. Conclusion",
		"Pumped hydro",
		"References",
		"Policy",
		"Extra",
	}
	assert.Equal(t, []string{"Lithium-ion costs", "Pumped hydro", "Policy"}, Sanitize(in, 3))
	assert.Equal(t, []string{"Lithium-ion costs", "Pumped hydro", "Policy", "Extra"}, Sanitize(in, 0))
}

func TestIsNegativeFeedback(t *testing.T) {
	for _, s := range []string{"", "no", "No!", "n/a", "None.", "  nothing "} {
		assert.True(t, IsNegativeFeedback(s), s)
	}
	for _, s := range []string{"no conclusion section please", "Focus on Europe"} {
		assert.False(t, IsNegativeFeedback(s), s)
	}
}

func TestInitialResearch(t *testing.T) {
	inv := &scriptedInvoker{text: "  Storage is growing fast.  "}
	b := &Briefer{
		Retriever: &fixedRetriever{docs: []types.Document{{URL: "https://a", Text: "capacity doubled"}}},
		Invoker:   inv,
	}

	got, err := b.InitialResearch(context.Background(), task(3))
	require.NoError(t, err)
	assert.Equal(t, "Storage is growing fast.", got)

	req := inv.requests[0]
	assert.Equal(t, types.TierFast, req.Tier)
	assert.Equal(t, llm.ShapeText, req.Shape)
	assert.Contains(t, req.User, "Source: https://a\ncapacity doubled")
}

func TestInitialResearch_Degrades(t *testing.T) {
	rec := &progress.Recorder{}
	b := &Briefer{
		Retriever: &fixedRetriever{err: errors.New("offline")},
		Invoker:   &scriptedInvoker{err: errors.New("overloaded")},
		Reporter:  rec,
	}

	got, err := b.InitialResearch(context.Background(), task(3))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Len(t, rec.OfType(progress.EventWarning), 2)
	assert.Len(t, rec.OfType(progress.EventInitialResearch), 1)
}

func TestInitialResearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	b := &Briefer{Invoker: &scriptedInvoker{err: context.Canceled}}

	_, err := b.InitialResearch(ctx, task(3))
	assert.ErrorIs(t, err, context.Canceled)
}
