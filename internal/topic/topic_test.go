// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package topic

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-editor/internal/llm"
	"github.com/pdiddy/research-editor/internal/progress"
	"github.com/pdiddy/research-editor/pkg/types"
)

// fakeSteps scripts the three actions and counts calls.
type fakeSteps struct {
	mu sync.Mutex

	researchErr error
	reviewErr   error
	reviseErr   error

	// reviews is consumed one per Review call; "" means accept. When it
	// runs out, the last entry repeats.
	reviews []string

	research, review, revise int
	maxIterationSeen         int
}

func (f *fakeSteps) Research(_ context.Context, _ types.TaskSpec, s types.TopicDraftState) (types.TopicDraftState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.research++
	if f.researchErr != nil {
		return s, f.researchErr
	}
	s.Draft = &types.Draft{Topic: s.Topic, Content: "draft v0"}
	// A step cannot move the workflow on its own.
	s.State = types.StateAccepted
	s.Iteration = 99
	return s, nil
}

func (f *fakeSteps) Review(_ context.Context, _ types.TaskSpec, s types.TopicDraftState) (types.TopicDraftState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.review++
	if s.Iteration > f.maxIterationSeen {
		f.maxIterationSeen = s.Iteration
	}
	if f.reviewErr != nil {
		return s, f.reviewErr
	}
	r := ""
	if len(f.reviews) > 0 {
		idx := f.review - 1
		if idx >= len(f.reviews) {
			idx = len(f.reviews) - 1
		}
		r = f.reviews[idx]
	}
	if r == "" {
		s.Review = nil
	} else {
		s.Review = &r
	}
	return s, nil
}

func (f *fakeSteps) Revise(_ context.Context, _ types.TaskSpec, s types.TopicDraftState) (types.TopicDraftState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revise++
	if f.reviseErr != nil {
		return s, f.reviseErr
	}
	d := *s.Draft
	d.Content = fmt.Sprintf("draft v%d", f.revise)
	notes := "addressed " + *s.Review
	s.Draft = &d
	s.RevisionNotes = &notes
	return s, nil
}

func reviewTask(maxRevisions int) types.TaskSpec {
	return types.TaskSpec{
		Query:            "q",
		MaxSections:      3,
		MaxRevisions:     maxRevisions,
		FollowGuidelines: true,
		Guidelines:       []string{"Use APA citations"},
	}.WithDefaults()
}

func topicStates(rec *progress.Recorder) []string {
	var out []string
	for _, e := range rec.OfType(progress.EventTopicState) {
		out = append(out, e.Payload.(progress.TopicEvent).State)
	}
	return out
}

func TestNext(t *testing.T) {
	tests := []struct {
		from    types.TopicState
		ev      Event
		want    types.TopicState
		wantErr bool
	}{
		{types.StateResearching, EventResearchOK, types.StateReviewing, false},
		{types.StateResearching, EventSkippedReview, types.StateAccepted, false},
		{types.StateResearching, EventResearchErr, types.StateFailed, false},
		{types.StateReviewing, EventReviewNone, types.StateAccepted, false},
		{types.StateReviewing, EventReviewFeedbackBudget, types.StateRevising, false},
		{types.StateReviewing, EventReviewFeedbackExhausted, types.StateRejectedExhausted, false},
		{types.StateReviewing, EventReviewErr, types.StateFailed, false},
		{types.StateRevising, EventReviseOK, types.StateReviewing, false},
		{types.StateRevising, EventReviseErr, types.StateFailed, false},
		{types.StateRevising, EventReviewNone, "", true},
		{types.StateAccepted, EventResearchOK, "", true},
		{types.StateFailed, EventReviseOK, "", true},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := Next(tt.from, tt.ev)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReviewEvent(t *testing.T) {
	fb := "fix it"
	assert.Equal(t, EventReviewNone, reviewEvent(nil, 0, 3))
	assert.Equal(t, EventReviewFeedbackBudget, reviewEvent(&fb, 2, 3))
	assert.Equal(t, EventReviewFeedbackExhausted, reviewEvent(&fb, 3, 3))
	assert.Equal(t, EventReviewFeedbackExhausted, reviewEvent(&fb, 0, 0))
}

func TestRun_GuidelinesDisabled(t *testing.T) {
	steps := &fakeSteps{reviews: []string{"never asked"}}
	rec := &progress.Recorder{}
	task := reviewTask(3)
	task.FollowGuidelines = false

	res, err := (&Workflow{Steps: steps, Reporter: rec}).Run(context.Background(), task, "Batteries")
	require.NoError(t, err)

	assert.Equal(t, types.StateAccepted, res.State)
	assert.True(t, res.Accepted)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, 1, steps.research)
	assert.Zero(t, steps.review)
	assert.Zero(t, steps.revise)
	assert.Equal(t, []string{"researching", "accepted"}, topicStates(rec))
}

func TestRun_AcceptedAtFirstReview(t *testing.T) {
	steps := &fakeSteps{reviews: []string{""}}
	res, err := (&Workflow{Steps: steps}).Run(context.Background(), reviewTask(3), "Batteries")
	require.NoError(t, err)

	assert.Equal(t, types.StateAccepted, res.State)
	assert.Equal(t, 0, res.Iterations)
	assert.Equal(t, 1, steps.review)
	assert.Zero(t, steps.revise)
	require.NotNil(t, res.Draft)
	assert.Equal(t, "draft v0", res.Draft.Content)
}

func TestRun_AcceptedAfterRevision(t *testing.T) {
	steps := &fakeSteps{reviews: []string{"add data", ""}}
	rec := &progress.Recorder{}
	res, err := (&Workflow{Steps: steps, Reporter: rec}).Run(context.Background(), reviewTask(3), "Batteries")
	require.NoError(t, err)

	assert.Equal(t, types.StateAccepted, res.State)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, "draft v1", res.Draft.Content)
	assert.Equal(t, []string{"researching", "reviewing", "revising", "reviewing", "accepted"}, topicStates(rec))
}

func TestRun_RevisionBudgetExhausted(t *testing.T) {
	steps := &fakeSteps{reviews: []string{"still weak"}}
	res, err := (&Workflow{Steps: steps}).Run(context.Background(), reviewTask(2), "Batteries")
	require.NoError(t, err, "exhaustion is not an error")

	assert.Equal(t, types.StateRejectedExhausted, res.State)
	assert.False(t, res.Accepted)
	assert.Equal(t, 2, steps.revise)
	assert.Equal(t, 3, steps.review)
	assert.Equal(t, 2, res.Iterations)
	require.NotNil(t, res.Draft, "best-effort draft kept")
	assert.Equal(t, "draft v2", res.Draft.Content)
	assert.Empty(t, res.ErrorKind)
}

func TestRun_IterationNeverExceedsBudget(t *testing.T) {
	for _, max := range []int{0, 1, 2, 5} {
		t.Run(fmt.Sprintf("max=%d", max), func(t *testing.T) {
			steps := &fakeSteps{reviews: []string{"more"}}
			res, err := (&Workflow{Steps: steps}).Run(context.Background(), reviewTask(max), "T")
			require.NoError(t, err)
			assert.Equal(t, max, res.Iterations)
			assert.Equal(t, max, steps.revise)
			assert.LessOrEqual(t, steps.maxIterationSeen, max)
			assert.True(t, res.State.IsTerminal())
		})
	}
}

func TestRun_StepFailures(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name     string
		steps    *fakeSteps
		kind     types.ErrorKind
		sentinel error
	}{
		{"research", &fakeSteps{researchErr: boom}, types.KindResearchFailed, ErrTopicResearchFailed},
		{"review", &fakeSteps{reviewErr: boom}, types.KindReviewFailed, ErrTopicReviewFailed},
		{"revise", &fakeSteps{reviews: []string{"x"}, reviseErr: boom}, types.KindReviseFailed, ErrTopicReviseFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &progress.Recorder{}
			res, err := (&Workflow{Steps: tt.steps, Reporter: rec}).Run(context.Background(), reviewTask(2), "Grid")

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)
			assert.ErrorIs(t, err, boom)
			var se *StepError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, "Grid", se.Topic)
			assert.Equal(t, tt.kind, se.Kind)

			assert.Equal(t, types.StateFailed, res.State)
			assert.True(t, res.Failed())
			assert.Nil(t, res.Draft)
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.Contains(t, res.Error, "boom")

			states := rec.OfType(progress.EventTopicState)
			last := states[len(states)-1].Payload.(progress.TopicEvent)
			assert.Equal(t, "failed", last.State)
			assert.Contains(t, last.Error, "boom")
		})
	}
}

func TestRun_CancelledContextIsTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	steps := &fakeSteps{}

	res, err := (&Workflow{Steps: steps}).Run(ctx, reviewTask(2), "Grid")
	assert.ErrorIs(t, err, ErrTimeout)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, types.KindTimeout, res.ErrorKind)
	assert.Zero(t, steps.research, "no step runs on a done context")
}

func TestRun_MissingDraftFailsResearch(t *testing.T) {
	steps := stepsFunc{research: func(s types.TopicDraftState) (types.TopicDraftState, error) { return s, nil }}
	_, err := (&Workflow{Steps: steps}).Run(context.Background(), reviewTask(1), "Grid")
	assert.ErrorIs(t, err, ErrTopicResearchFailed)
}

func TestRun_ReporterPanicDoesNotChangeOutcome(t *testing.T) {
	panicky := progress.Func(func(string, string, any) { panic("observer down") })
	steps := &fakeSteps{reviews: []string{"a", ""}}

	var res types.TopicResult
	var err error
	require.NotPanics(t, func() {
		res, err = (&Workflow{Steps: steps, Reporter: panicky}).Run(context.Background(), reviewTask(3), "T")
	})
	require.NoError(t, err)
	assert.Equal(t, types.StateAccepted, res.State)
	assert.Equal(t, 1, res.Iterations)
}

// stepsFunc adapts a research function; review and revise are unused.
type stepsFunc struct {
	research func(types.TopicDraftState) (types.TopicDraftState, error)
}

func (s stepsFunc) Research(_ context.Context, _ types.TaskSpec, st types.TopicDraftState) (types.TopicDraftState, error) {
	return s.research(st)
}

func (s stepsFunc) Review(_ context.Context, _ types.TaskSpec, st types.TopicDraftState) (types.TopicDraftState, error) {
	return st, nil
}

func (s stepsFunc) Revise(_ context.Context, _ types.TaskSpec, st types.TopicDraftState) (types.TopicDraftState, error) {
	return st, nil
}

// --- step adapters ---

// scriptedInvoker answers requests in order and records them.
type scriptedInvoker struct {
	answers  []string
	err      error
	requests []llm.Request
}

func (s *scriptedInvoker) Invoke(_ context.Context, req llm.Request) (llm.Response, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return llm.Response{}, s.err
	}
	if len(s.answers) == 0 {
		return llm.Response{}, errors.New("no scripted answer")
	}
	a := s.answers[0]
	s.answers = s.answers[1:]
	return llm.Response{Text: a}, nil
}

type fixedRetriever struct {
	docs []types.Document
	err  error
}

func (f *fixedRetriever) Name() string { return "fixed" }

func (f *fixedRetriever) Retrieve(context.Context, string) ([]types.Document, error) {
	return f.docs, f.err
}

func TestAgents_Research(t *testing.T) {
	inv := &scriptedInvoker{answers: []string{"## Batteries\n\nCells are cheap."}}
	a := &Agents{
		Retriever: &fixedRetriever{docs: []types.Document{
			{URL: "https://a", Title: "A", Text: "lithium prices fell", ImageURL: "https://img/1.png"},
			{URL: "https://b", Title: "B", Text: "pumped hydro", ImageURL: "https://img/1.png"},
		}},
		Invoker: inv,
	}
	task := reviewTask(1)
	task.Tone = types.ToneAnalytical

	st, err := a.Research(context.Background(), task, types.TopicDraftState{Topic: "Batteries"})
	require.NoError(t, err)
	require.NotNil(t, st.Draft)
	assert.Equal(t, "## Batteries\n\nCells are cheap.", st.Draft.Content)
	assert.Equal(t, []string{"https://a", "https://b"}, st.Draft.Sources)
	assert.Equal(t, []string{"https://img/1.png"}, st.Draft.Images)

	req := inv.requests[0]
	assert.Equal(t, types.TierSmart, req.Tier)
	assert.Contains(t, req.User, `"Batteries"`)
	assert.Contains(t, req.User, types.ToneAnalytical.Description())
	assert.Contains(t, req.User, "lithium prices fell")
}

func TestAgents_ResearchRetrievalError(t *testing.T) {
	a := &Agents{Retriever: &fixedRetriever{err: errors.New("offline")}, Invoker: &scriptedInvoker{}}
	_, err := a.Research(context.Background(), reviewTask(1), types.TopicDraftState{Topic: "T"})
	assert.ErrorContains(t, err, "offline")
}

func TestAgents_Review(t *testing.T) {
	draft := &types.Draft{Content: "body"}
	notes := "added citations"

	tests := []struct {
		name       string
		answer     string
		notes      *string
		wantReview string
		accepted   bool
	}{
		{name: "structured accept", answer: `{"accepted": true, "feedback": ""}`, accepted: true},
		{name: "structured feedback", answer: `{"accepted": false, "feedback": "cite sources"}`, wantReview: "cite sources"},
		{name: "rejected with sentinel feedback", answer: `{"accepted": false, "feedback": "None"}`, wantReview: `{"accepted": false, "feedback": "None"}`},
		{name: "rejected without feedback", answer: `{"accepted": false}`, wantReview: `{"accepted": false}`},
		{name: "feedback only", answer: `{"feedback": "shorten the intro"}`, wantReview: "shorten the intro"},
		{name: "feedback only sentinel", answer: `{"feedback": "n/a"}`, accepted: true},
		{name: "object without decision keys", answer: `{"verdict": "reject", "notes": "cite sources"}`, wantReview: `{"verdict": "reject", "notes": "cite sources"}`},
		{
			name:       "prose quoting json",
			answer:     `The draft must show the config, e.g. {"model": "gpt"}, and cite sources.`,
			wantReview: `The draft must show the config, e.g. {"model": "gpt"}, and cite sources.`,
		},
		{name: "text sentinel", answer: "None.", accepted: true},
		{name: "text feedback", answer: "Please add numbers.", wantReview: "Please add numbers."},
		{name: "with revision notes", answer: `{"accepted": true}`, notes: &notes, accepted: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := &scriptedInvoker{answers: []string{tt.answer}}
			rec := &progress.Recorder{}
			a := &Agents{Invoker: inv, Reporter: rec}
			task := reviewTask(2)
			task.Verbose = true

			st, err := a.Review(context.Background(), task, types.TopicDraftState{Topic: "T", Draft: draft, RevisionNotes: tt.notes})
			require.NoError(t, err)
			if tt.accepted {
				assert.Nil(t, st.Review)
			} else {
				require.NotNil(t, st.Review)
				assert.Equal(t, tt.wantReview, *st.Review)
			}

			req := inv.requests[0]
			assert.Equal(t, llm.ShapeStructured, req.Shape)
			assert.Contains(t, req.User, "- Use APA citations")
			assert.Equal(t, tt.notes != nil, strings.Contains(req.User, "ONLY if critical"))
			assert.Len(t, rec.OfType(progress.EventReviewFeedback), 2)
		})
	}
}

func TestAgents_Revise(t *testing.T) {
	inv := &scriptedInvoker{answers: []string{"```json\n{\"draft\": \"better body\", \"revision_notes\": \"added figures\"}\n```"}}
	a := &Agents{Invoker: inv}
	review := "needs figures"
	in := types.TopicDraftState{
		Topic:  "T",
		Draft:  &types.Draft{Topic: "T", Content: "body", Sources: []string{"https://a"}},
		Review: &review,
	}

	st, err := a.Revise(context.Background(), reviewTask(2), in)
	require.NoError(t, err)
	assert.Equal(t, "better body", st.Draft.Content)
	assert.Equal(t, []string{"https://a"}, st.Draft.Sources)
	require.NotNil(t, st.RevisionNotes)
	assert.Equal(t, "added figures", *st.RevisionNotes)
	assert.Equal(t, "body", in.Draft.Content, "input draft untouched")
	assert.Contains(t, inv.requests[0].User, "needs figures")
}

func TestAgents_ReviseUnparsable(t *testing.T) {
	review := "x"
	a := &Agents{Invoker: &scriptedInvoker{answers: []string{"I rewrote it for you."}}}
	_, err := a.Revise(context.Background(), reviewTask(2), types.TopicDraftState{
		Draft: &types.Draft{Content: "body"}, Review: &review,
	})
	assert.Error(t, err)
}

func TestIsNoFeedback(t *testing.T) {
	for _, s := range []string{"", "None", " none. ", "NULL", "\"None\"", "No feedback!"} {
		assert.True(t, IsNoFeedback(s), s)
	}
	for _, s := range []string{"None of the guidelines are met", "Add sources"} {
		assert.False(t, IsNoFeedback(s), s)
	}
}
