// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the research-editor pipeline:
// the task descriptor, the research plan, per-topic draft state, the
// aggregated result, and retrieved documents.
package types

import (
	"fmt"
	"strings"
)

// Tone selects the writing voice of generated drafts.
type Tone string

const (
	ToneObjective   Tone = "objective"
	ToneFormal      Tone = "formal"
	ToneAnalytical  Tone = "analytical"
	TonePersuasive  Tone = "persuasive"
	ToneInformative Tone = "informative"
	ToneExplanatory Tone = "explanatory"
	ToneDescriptive Tone = "descriptive"
	ToneCritical    Tone = "critical"
	ToneComparative Tone = "comparative"
	ToneSpeculative Tone = "speculative"
	ToneReflective  Tone = "reflective"
	ToneNarrative   Tone = "narrative"
	ToneHumorous    Tone = "humorous"
	ToneOptimistic  Tone = "optimistic"
	TonePessimistic Tone = "pessimistic"
)

// toneDescriptions holds the instruction fragment injected into writing prompts.
var toneDescriptions = map[Tone]string{
	ToneObjective:   "impartial and unbiased presentation of facts and findings",
	ToneFormal:      "adheres to academic standards with sophisticated language and structure",
	ToneAnalytical:  "critical evaluation and detailed examination of data and theories",
	TonePersuasive:  "convincing the audience of a particular viewpoint or argument",
	ToneInformative: "providing clear and comprehensive information on a topic",
	ToneExplanatory: "clarifying complex concepts and processes",
	ToneDescriptive: "detailed depiction of phenomena, experiments, or case studies",
	ToneCritical:    "judging the validity and relevance of the research and its conclusions",
	ToneComparative: "juxtaposing different theories, data, or methods to highlight differences and similarities",
	ToneSpeculative: "exploring hypotheses and potential implications or future research directions",
	ToneReflective:  "considering the research process and personal insights or experiences",
	ToneNarrative:   "telling a story to illustrate research findings or methodologies",
	ToneHumorous:    "light-hearted and engaging, usually to make the content more relatable",
	ToneOptimistic:  "highlighting positive findings and potential benefits",
	TonePessimistic: "focusing on limitations, challenges, or negative outcomes",
}

// Valid reports whether t is a known tone.
func (t Tone) Valid() bool {
	_, ok := toneDescriptions[t]
	return ok
}

// Description returns the prompt fragment for t, or the objective description
// for unknown tones.
func (t Tone) Description() string {
	if d, ok := toneDescriptions[t]; ok {
		return d
	}
	return toneDescriptions[ToneObjective]
}

// ReportSource selects where the research step gathers documents.
type ReportSource string

const (
	SourceWeb    ReportSource = "web"
	SourceLocal  ReportSource = "local"
	SourceHybrid ReportSource = "hybrid"
)

// ModelTier names the two model classes a task may address.
type ModelTier string

const (
	TierFast  ModelTier = "fast"
	TierSmart ModelTier = "smart"
)

// Default limits. WithDefaults applies DefaultMaxSections; DefaultMaxRevisions
// is applied by the task loader when a descriptor omits max_revisions, since
// zero is a valid budget.
const (
	DefaultMaxSections  = 3
	DefaultMaxRevisions = 3
	DefaultReportType   = "research_report"
)

// TaskSpec is the immutable description of one research run. It is decoded
// from a task descriptor (task.yaml or task.json), defaulted, validated, and
// then shared read-only by every workflow of the run.
type TaskSpec struct {
	// Query is the research question.
	Query string `json:"query" yaml:"query"`

	// ReportType tags the kind of report each subtopic produces.
	ReportType string `json:"report_type" yaml:"report_type"`

	// Tone selects the writing voice.
	Tone Tone `json:"tone" yaml:"tone"`

	// Source selects web, local corpus, or hybrid research.
	Source ReportSource `json:"source" yaml:"source"`

	// MaxSections bounds the number of planned subtopics.
	MaxSections int `json:"max_sections" yaml:"max_sections"`

	// MaxRevisions bounds the review/revise cycles of each topic.
	MaxRevisions int `json:"max_revisions" yaml:"max_revisions"`

	// Guidelines are the ordered rules a reviewer checks drafts against.
	Guidelines []string `json:"guidelines" yaml:"guidelines"`

	// FollowGuidelines enables the review/revise loop.
	FollowGuidelines bool `json:"follow_guidelines" yaml:"follow_guidelines"`

	// IncludeHumanFeedback lets HumanFeedback constrain planning.
	IncludeHumanFeedback bool `json:"include_human_feedback" yaml:"include_human_feedback"`

	// HumanFeedback is optional free text from the requester.
	HumanFeedback string `json:"human_feedback,omitempty" yaml:"human_feedback,omitempty"`

	// FastModel is the model identifier for the fast tier.
	FastModel string `json:"fast_model" yaml:"fast_model"`

	// SmartModel is the model identifier for the smart tier.
	SmartModel string `json:"smart_model" yaml:"smart_model"`

	// Verbose emits review feedback and guideline details as progress events.
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Publish lists output formats written after the run: markdown, html, yaml.
	Publish []string `json:"publish_formats,omitempty" yaml:"publish_formats,omitempty"`
}

// WithDefaults returns a copy of t with zero-valued fields filled in.
func (t TaskSpec) WithDefaults() TaskSpec {
	if t.ReportType == "" {
		t.ReportType = DefaultReportType
	}
	if t.Tone == "" {
		t.Tone = ToneObjective
	}
	if t.Source == "" {
		t.Source = SourceWeb
	}
	if t.MaxSections <= 0 {
		t.MaxSections = DefaultMaxSections
	}
	if t.FastModel == "" {
		t.FastModel = t.SmartModel
	}
	if t.SmartModel == "" {
		t.SmartModel = t.FastModel
	}
	t.Guidelines = append([]string(nil), t.Guidelines...)
	t.Publish = append([]string(nil), t.Publish...)
	return t
}

// Validate reports the first problem that makes t unusable for a run.
func (t TaskSpec) Validate() error {
	if strings.TrimSpace(t.Query) == "" {
		return fmt.Errorf("task query is empty")
	}
	if t.MaxSections < 1 {
		return fmt.Errorf("max_sections must be at least 1, got %d", t.MaxSections)
	}
	if t.MaxRevisions < 0 {
		return fmt.Errorf("max_revisions must not be negative, got %d", t.MaxRevisions)
	}
	if t.Tone != "" && !t.Tone.Valid() {
		return fmt.Errorf("unknown tone %q", t.Tone)
	}
	switch t.Source {
	case "", SourceWeb, SourceLocal, SourceHybrid:
	default:
		return fmt.Errorf("unknown source %q: use web, local, or hybrid", t.Source)
	}
	if t.FollowGuidelines && len(t.Guidelines) == 0 {
		return fmt.Errorf("follow_guidelines is set but no guidelines are given")
	}
	return nil
}

// ModelFor returns the model identifier configured for tier.
func (t TaskSpec) ModelFor(tier ModelTier) string {
	if tier == TierFast {
		return t.FastModel
	}
	return t.SmartModel
}
