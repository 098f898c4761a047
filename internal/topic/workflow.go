// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package topic

import (
	"context"
	"errors"

	"github.com/pdiddy/research-editor/internal/progress"
	"github.com/pdiddy/research-editor/pkg/types"
)

// Steps performs the three workflow actions. Each reads the task and the
// current draft state and returns an updated copy; none may touch state
// owned by another topic.
type Steps interface {
	// Research writes a fresh draft for state.Topic, ignoring any prior draft.
	Research(ctx context.Context, task types.TaskSpec, state types.TopicDraftState) (types.TopicDraftState, error)

	// Review sets state.Review to the reviewer's feedback, or nil when the
	// draft is accepted.
	Review(ctx context.Context, task types.TaskSpec, state types.TopicDraftState) (types.TopicDraftState, error)

	// Revise rewrites state.Draft to address state.Review and sets
	// state.RevisionNotes.
	Revise(ctx context.Context, task types.TaskSpec, state types.TopicDraftState) (types.TopicDraftState, error)
}

// Workflow drives one topic through the state machine.
type Workflow struct {
	Steps    Steps
	Reporter progress.Reporter
}

// Run executes the workflow for topic until it reaches a terminal state.
// The returned result is always populated. The error is a *StepError when
// the topic failed and nil for accepted or exhausted topics.
func (w *Workflow) Run(ctx context.Context, task types.TaskSpec, topic string) (types.TopicResult, error) {
	state := types.TopicDraftState{Topic: topic, State: types.StateResearching}
	w.emit(state, nil)

	var failure *StepError
	for !state.State.IsTerminal() {
		ev, next, err := w.step(ctx, task, state)
		if err != nil {
			failure = err
		}

		to, terr := Next(state.State, ev)
		if terr != nil {
			// Unreachable with the events step produces; fail the topic
			// rather than loop.
			failure = &StepError{Topic: topic, Kind: failureKind(state.State), Err: terr}
			to = types.StateFailed
		}
		next.State = to
		next.Terminal = to.IsTerminal()
		state = next
		w.emit(state, failure)
	}

	result := types.TopicResult{
		Topic:      topic,
		State:      state.State,
		Draft:      state.Draft,
		Accepted:   state.State == types.StateAccepted,
		Iterations: state.Iteration,
	}
	if failure != nil {
		result.Draft = nil
		result.ErrorKind = failure.Kind
		result.Error = failure.Error()
		return result, failure
	}
	return result, nil
}

// step runs the action for the current state and returns the resulting
// event and updated state. Topic, state, and iteration stay under the
// workflow's control regardless of what the step returns.
func (w *Workflow) step(ctx context.Context, task types.TaskSpec, state types.TopicDraftState) (Event, types.TopicDraftState, *StepError) {
	kind := failureKind(state.State)
	failed := map[types.TopicState]Event{
		types.StateResearching: EventResearchErr,
		types.StateReviewing:   EventReviewErr,
		types.StateRevising:    EventReviseErr,
	}[state.State]

	if err := ctx.Err(); err != nil {
		return failed, state, stepFailure(ctx, state.Topic, kind, err)
	}

	var (
		next types.TopicDraftState
		err  error
	)
	switch state.State {
	case types.StateResearching:
		next, err = w.Steps.Research(ctx, task, state)
		if err == nil && next.Draft == nil {
			err = errors.New("research produced no draft")
		}
	case types.StateReviewing:
		next, err = w.Steps.Review(ctx, task, state)
	case types.StateRevising:
		next, err = w.Steps.Revise(ctx, task, state)
		if err == nil && next.Draft == nil {
			err = errors.New("revision produced no draft")
		}
	}
	if err != nil {
		return failed, state, stepFailure(ctx, state.Topic, kind, err)
	}

	next.Topic = state.Topic
	next.Iteration = state.Iteration

	switch state.State {
	case types.StateResearching:
		next.Review = nil
		if !task.FollowGuidelines {
			return EventSkippedReview, next, nil
		}
		return EventResearchOK, next, nil
	case types.StateReviewing:
		next.Draft = state.Draft
		return reviewEvent(next.Review, next.Iteration, task.MaxRevisions), next, nil
	default:
		next.Iteration++
		next.Review = nil
		return EventReviseOK, next, nil
	}
}

func failureKind(s types.TopicState) types.ErrorKind {
	switch s {
	case types.StateReviewing:
		return types.KindReviewFailed
	case types.StateRevising:
		return types.KindReviseFailed
	default:
		return types.KindResearchFailed
	}
}

func (w *Workflow) emit(state types.TopicDraftState, failure *StepError) {
	ev := progress.TopicEvent{
		Topic:     state.Topic,
		State:     string(state.State),
		Iteration: state.Iteration,
	}
	if failure != nil && state.State == types.StateFailed {
		ev.Error = failure.Error()
	}
	progress.Emit(w.Reporter, progress.ChannelLogs, progress.EventTopicState, ev)
}
