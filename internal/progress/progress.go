// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package progress delivers structured progress events from the pipeline to
// observers. Emission is fire-and-forget: a Reporter must never block the
// caller on delivery and must never panic back into it.
package progress

import (
	"fmt"
	"sync"
	"time"
)

// Reporter receives progress events. Implementations must be safe for
// concurrent use from many topic workflows.
type Reporter interface {
	Emit(channel, eventType string, payload any)
}

// ChannelLogs is the channel all pipeline events are emitted on.
const ChannelLogs = "logs"

// Event types emitted by the pipeline.
const (
	EventInitialResearch  = "initial_research"
	EventPlanning         = "planning"
	EventPlan             = "plan"
	EventParallelResearch = "parallel_research"
	EventTopicState       = "topic_state"
	EventReviewFeedback   = "review_feedback"
	EventRunComplete      = "run_complete"
	EventWarning          = "warning"
)

// Agent labels identify which role produced a message.
const (
	AgentChiefEditor = "CHIEF_EDITOR"
	AgentEditor      = "EDITOR"
	AgentResearcher  = "RESEARCHER"
	AgentReviewer    = "REVIEWER"
	AgentReviser     = "REVISER"
	AgentPublisher   = "PUBLISHER"
)

// Message is a free-text payload attributed to an agent.
type Message struct {
	Agent string `json:"agent"`
	Text  string `json:"text"`
}

// TopicEvent is the payload of a topic state transition.
type TopicEvent struct {
	Topic     string `json:"topic"`
	State     string `json:"state"`
	Iteration int    `json:"iteration"`
	Error     string `json:"error,omitempty"`
}

// PlanEvent is the payload emitted once the research plan is known.
type PlanEvent struct {
	Title    string   `json:"title"`
	Sections []string `json:"sections"`
}

// RunEvent summarizes a finished run.
type RunEvent struct {
	RunID     string        `json:"run_id"`
	Accepted  int           `json:"accepted"`
	Exhausted int           `json:"exhausted"`
	Failed    int           `json:"failed"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Event is an emitted event as stored or serialized by adapters.
type Event struct {
	Channel   string    `json:"channel"`
	Type      string    `json:"type"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// Emit delivers an event to r, swallowing any panic raised by the reporter.
// A nil reporter discards the event.
func Emit(r Reporter, channel, eventType string, payload any) {
	if r == nil {
		return
	}
	defer func() { _ = recover() }()
	r.Emit(channel, eventType, payload)
}

// Func adapts a function to Reporter.
type Func func(channel, eventType string, payload any)

// Emit calls f.
func (f Func) Emit(channel, eventType string, payload any) { f(channel, eventType, payload) }

// Discard drops every event.
var Discard Reporter = Func(func(string, string, any) {})

// Multi fans each event out to every reporter. A panicking reporter does not
// prevent delivery to the others.
type Multi []Reporter

// Emit forwards the event to each reporter.
func (m Multi) Emit(channel, eventType string, payload any) {
	for _, r := range m {
		Emit(r, channel, eventType, payload)
	}
}

// Recorder keeps every event in memory. Tests use it to assert on emissions.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit appends the event.
func (r *Recorder) Emit(channel, eventType string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Event{Channel: channel, Type: eventType, Payload: payload, Timestamp: time.Now()})
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(eventType string) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Describe renders a payload as a one-line human-readable message.
func Describe(eventType string, payload any) (agent, text string) {
	switch p := payload.(type) {
	case Message:
		return p.Agent, p.Text
	case TopicEvent:
		text = fmt.Sprintf("%s: %s (iteration %d)", p.Topic, p.State, p.Iteration)
		if p.Error != "" {
			text += ": " + p.Error
		}
		return AgentEditor, text
	case PlanEvent:
		return AgentEditor, fmt.Sprintf("planned %q with %d sections: %v", p.Title, len(p.Sections), p.Sections)
	case RunEvent:
		return AgentEditor, fmt.Sprintf("run %s finished in %s: %d accepted, %d exhausted, %d failed",
			p.RunID, p.Elapsed.Round(time.Millisecond), p.Accepted, p.Exhausted, p.Failed)
	case string:
		return AgentEditor, p
	default:
		return AgentEditor, fmt.Sprintf("%s: %v", eventType, p)
	}
}
