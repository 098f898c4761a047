// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package topic runs the per-section workflow: research a draft, review it
// against the task guidelines, and revise it until the reviewer accepts or
// the revision budget runs out.
package topic

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/research-editor/pkg/types"
)

// Event is the outcome of one step, used to select the next state.
type Event string

const (
	EventResearchOK              Event = "research_ok"
	EventResearchErr             Event = "research_err"
	EventSkippedReview           Event = "skipped_review"
	EventReviewNone              Event = "review_none"
	EventReviewFeedbackBudget    Event = "review_feedback_budget"
	EventReviewFeedbackExhausted Event = "review_feedback_exhausted"
	EventReviewErr               Event = "review_err"
	EventReviseOK                Event = "revise_ok"
	EventReviseErr               Event = "revise_err"
)

type edge struct {
	from  types.TopicState
	event Event
}

// transitions is the complete state machine. Terminal states have no
// outgoing edges.
var transitions = map[edge]types.TopicState{
	{types.StateResearching, EventResearchOK}:            types.StateReviewing,
	{types.StateResearching, EventSkippedReview}:         types.StateAccepted,
	{types.StateResearching, EventResearchErr}:           types.StateFailed,
	{types.StateReviewing, EventReviewNone}:              types.StateAccepted,
	{types.StateReviewing, EventReviewFeedbackBudget}:    types.StateRevising,
	{types.StateReviewing, EventReviewFeedbackExhausted}: types.StateRejectedExhausted,
	{types.StateReviewing, EventReviewErr}:               types.StateFailed,
	{types.StateRevising, EventReviseOK}:                 types.StateReviewing,
	{types.StateRevising, EventReviseErr}:                types.StateFailed,
}

// ErrInvalidTransition is returned by Next for an event the current state
// does not accept.
var ErrInvalidTransition = errors.New("invalid topic transition")

// Next returns the state reached from from on ev.
func Next(from types.TopicState, ev Event) (types.TopicState, error) {
	to, ok := transitions[edge{from, ev}]
	if !ok {
		return from, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, from, ev)
	}
	return to, nil
}

// reviewEvent classifies a review outcome against the revision budget.
func reviewEvent(review *string, iteration, maxRevisions int) Event {
	switch {
	case review == nil:
		return EventReviewNone
	case iteration < maxRevisions:
		return EventReviewFeedbackBudget
	default:
		return EventReviewFeedbackExhausted
	}
}

// Sentinel errors, one per failure kind.
var (
	ErrTopicResearchFailed = errors.New("topic research failed")
	ErrTopicReviewFailed   = errors.New("topic review failed")
	ErrTopicReviseFailed   = errors.New("topic revise failed")
	ErrTimeout             = errors.New("topic timed out")
)

var kindErrors = map[types.ErrorKind]error{
	types.KindResearchFailed: ErrTopicResearchFailed,
	types.KindReviewFailed:   ErrTopicReviewFailed,
	types.KindReviseFailed:   ErrTopicReviseFailed,
	types.KindTimeout:        ErrTimeout,
}

// StepError records why a topic failed. It matches both its kind sentinel
// and the underlying cause under errors.Is.
type StepError struct {
	Topic string
	Kind  types.ErrorKind
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("topic %q: %s: %v", e.Topic, e.Kind, e.Err)
}

// Unwrap returns the kind sentinel and the cause.
func (e *StepError) Unwrap() []error {
	return []error{kindErrors[e.Kind], e.Err}
}

// stepFailure builds the error for a failed step. Failures caused by a done
// context are classified as timeouts regardless of the step.
func stepFailure(ctx context.Context, topic string, kind types.ErrorKind, err error) *StepError {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		kind = types.KindTimeout
	}
	return &StepError{Topic: topic, Kind: kind, Err: err}
}
