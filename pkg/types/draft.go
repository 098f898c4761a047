// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ResearchPlan is the outline produced once by the planning stage.
type ResearchPlan struct {
	// Title is the report title.
	Title string `json:"title" yaml:"title"`

	// Date is the publication date as written by the planner.
	Date string `json:"date" yaml:"date"`

	// Sections lists subtopic names in report order. Names are non-empty
	// and distinct; introduction, conclusion, and references never appear.
	Sections []string `json:"sections" yaml:"sections"`
}

// TopicState is a node of the per-topic workflow state machine.
type TopicState string

const (
	StateResearching       TopicState = "researching"
	StateReviewing         TopicState = "reviewing"
	StateRevising          TopicState = "revising"
	StateAccepted          TopicState = "accepted"
	StateRejectedExhausted TopicState = "rejected_exhausted"
	StateFailed            TopicState = "failed"
)

// IsTerminal reports whether no further transitions leave s.
func (s TopicState) IsTerminal() bool {
	switch s {
	case StateAccepted, StateRejectedExhausted, StateFailed:
		return true
	default:
		return false
	}
}

// Draft is the written content for one topic.
type Draft struct {
	// Topic is the subtopic the draft covers.
	Topic string `json:"topic" yaml:"topic"`

	// Content is the Markdown body of the section.
	Content string `json:"content" yaml:"content"`

	// Sources lists the URLs the draft was grounded on.
	Sources []string `json:"sources,omitempty" yaml:"sources,omitempty"`

	// Images lists up to two lead images selected during research.
	Images []string `json:"images,omitempty" yaml:"images,omitempty"`
}

// TopicDraftState is the working state of one topic workflow. It is owned by
// exactly one workflow for its lifetime.
type TopicDraftState struct {
	Topic string     `json:"topic" yaml:"topic"`
	State TopicState `json:"state" yaml:"state"`

	// Draft is nil until the first research pass completes.
	Draft *Draft `json:"draft,omitempty" yaml:"draft,omitempty"`

	// Review is nil when there is no outstanding feedback.
	Review *string `json:"review,omitempty" yaml:"review,omitempty"`

	// RevisionNotes explains what the latest revise pass changed.
	RevisionNotes *string `json:"revision_notes,omitempty" yaml:"revision_notes,omitempty"`

	// Iteration counts completed revise passes.
	Iteration int `json:"iteration" yaml:"iteration"`

	Terminal bool `json:"terminal" yaml:"terminal"`
}

// ErrorKind names why a topic failed.
type ErrorKind string

const (
	KindResearchFailed ErrorKind = "topic_research_failed"
	KindReviewFailed   ErrorKind = "topic_review_failed"
	KindReviseFailed   ErrorKind = "topic_revise_failed"
	KindTimeout        ErrorKind = "timeout"
)

// TopicResult is one entry of the aggregated result: either a draft or an
// error placeholder for the topic.
type TopicResult struct {
	Topic string     `json:"topic" yaml:"topic"`
	State TopicState `json:"state" yaml:"state"`

	// Draft is set for accepted and rejected_exhausted topics.
	Draft *Draft `json:"draft,omitempty" yaml:"draft,omitempty"`

	// Accepted is false for best-effort drafts that exhausted the revision budget.
	Accepted bool `json:"accepted" yaml:"accepted"`

	Iterations int `json:"iterations" yaml:"iterations"`

	// ErrorKind and Error are set only for failed topics.
	ErrorKind ErrorKind `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Failed reports whether the entry is an error placeholder.
func (r TopicResult) Failed() bool {
	return r.State == StateFailed
}

// AggregatedResult is the ordered outcome of a run. Topics has one entry per
// planned section, in plan order.
type AggregatedResult struct {
	RunID  string        `json:"run_id" yaml:"run_id"`
	Query  string        `json:"query" yaml:"query"`
	Plan   ResearchPlan  `json:"plan" yaml:"plan"`
	Topics []TopicResult `json:"topics" yaml:"topics"`
}

// Summary counts topic outcomes.
type Summary struct {
	Accepted  int
	Exhausted int
	Failed    int
}

// Total returns the number of topics counted.
func (s Summary) Total() int {
	return s.Accepted + s.Exhausted + s.Failed
}

// HasFailures reports whether any topic failed.
func (s Summary) HasFailures() bool {
	return s.Failed > 0
}

// Summary counts the outcomes in r.
func (r AggregatedResult) Summary() Summary {
	var s Summary
	for _, t := range r.Topics {
		switch t.State {
		case StateAccepted:
			s.Accepted++
		case StateRejectedExhausted:
			s.Exhausted++
		default:
			s.Failed++
		}
	}
	return s
}

// Drafts returns the drafts present in r, in plan order, skipping placeholders.
func (r AggregatedResult) Drafts() []Draft {
	var out []Draft
	for _, t := range r.Topics {
		if t.Draft != nil {
			out = append(out, *t.Draft)
		}
	}
	return out
}
