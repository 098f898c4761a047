// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package topic

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/research-editor/internal/llm"
	"github.com/pdiddy/research-editor/internal/progress"
	"github.com/pdiddy/research-editor/internal/retrieve"
	"github.com/pdiddy/research-editor/pkg/types"
)

const (
	researcherSystem = "You are a research writer. You write one well-sourced section of a larger report, " +
		"grounded only in the sources you are given."
	reviewerSystem = "You are an expert research article reviewer. Your goal is to review research drafts " +
		"and provide feedback to the reviser only based on specific guidelines."
	reviserSystem = "You are an expert writer. Your goal is to revise drafts based on reviewer notes."
)

// Agents implements Steps with a content retriever and a model invoker.
type Agents struct {
	Retriever retrieve.Retriever
	Invoker   llm.Invoker
	Reporter  progress.Reporter

	// Parent is the overall research question each section belongs to.
	// When empty the task query is used.
	Parent string

	// MaxSourceChars caps the source text placed in one research prompt
	// (default 24000).
	MaxSourceChars int

	// MaxTokens caps each completion; zero uses the invoker default.
	MaxTokens int
}

// Research retrieves sources for the topic and writes a fresh draft with the
// smart tier.
func (a *Agents) Research(ctx context.Context, task types.TaskSpec, state types.TopicDraftState) (types.TopicDraftState, error) {
	var docs []types.Document
	if a.Retriever != nil {
		var err error
		docs, err = a.Retriever.Retrieve(ctx, state.Topic)
		if err != nil {
			return state, fmt.Errorf("retrieving sources: %w", err)
		}
	}

	resp, err := a.Invoker.Invoke(ctx, llm.Request{
		System:    researcherSystem,
		User:      a.researchPrompt(task, state.Topic, docs),
		Tier:      types.TierSmart,
		Shape:     llm.ShapeText,
		MaxTokens: a.MaxTokens,
	})
	if err != nil {
		return state, fmt.Errorf("writing draft: %w", err)
	}
	content := strings.TrimSpace(resp.Text)
	if content == "" {
		return state, fmt.Errorf("writing draft: %w", llm.ErrEmptyResponse)
	}

	state.Draft = &types.Draft{
		Topic:   state.Topic,
		Content: content,
		Sources: retrieve.URLs(docs),
		Images:  retrieve.SelectImages(docs, retrieve.MaxImages),
	}
	return state, nil
}

func (a *Agents) researchPrompt(task types.TaskSpec, topic string, docs []types.Document) string {
	parent := a.Parent
	if parent == "" {
		parent = task.Query
	}
	budget := a.MaxSourceChars
	if budget <= 0 {
		budget = 24000
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Write the report section %q for the research question %q.\n", topic, parent)
	fmt.Fprintf(&b, "Report type: %s. Write in a %s tone: %s.\n", task.ReportType, task.Tone, task.Tone.Description())
	b.WriteString("Use Markdown. Start with a level-two heading naming the section. " +
		"Do not write an introduction or conclusion for the whole report. " +
		"Cite sources inline as Markdown links using their URLs.\n")
	if len(docs) == 0 {
		b.WriteString("\nNo sources were retrieved. Write from general knowledge and say so briefly.\n")
		return b.String()
	}
	b.WriteString("\nSources:\n")
	used := 0
	for _, d := range docs {
		if used >= budget {
			break
		}
		text := retrieve.Truncate(d.Text, budget-used)
		used += len(text)
		fmt.Fprintf(&b, "\nURL: %s\nTitle: %s\n%s\n", d.URL, d.Title, text)
	}
	return b.String()
}

// reviewDecision is the structured answer requested from the reviewer.
type reviewDecision struct {
	Accepted *bool   `json:"accepted"`
	Feedback *string `json:"feedback"`
}

// Review asks the smart tier to judge the draft against the guidelines.
// When earlier revision notes exist the reviewer is told to hold back all
// but critical feedback.
func (a *Agents) Review(ctx context.Context, task types.TaskSpec, state types.TopicDraftState) (types.TopicDraftState, error) {
	if state.Draft == nil {
		return state, fmt.Errorf("reviewing %q: no draft", state.Topic)
	}
	if task.Verbose {
		progress.Emit(a.Reporter, progress.ChannelLogs, progress.EventReviewFeedback, progress.Message{
			Agent: progress.AgentReviewer,
			Text:  fmt.Sprintf("Following guidelines %v...", task.Guidelines),
		})
	}

	resp, err := a.Invoker.Invoke(ctx, llm.Request{
		System:    reviewerSystem,
		User:      reviewPrompt(task, state),
		Tier:      types.TierSmart,
		Shape:     llm.ShapeStructured,
		MaxTokens: a.MaxTokens,
	})
	if err != nil {
		return state, fmt.Errorf("reviewing draft: %w", err)
	}

	state.Review = ParseReview(resp.Text)
	if task.Verbose {
		text := "Review feedback is: none"
		if state.Review != nil {
			text = "Review feedback is: " + *state.Review
		}
		progress.Emit(a.Reporter, progress.ChannelLogs, progress.EventReviewFeedback, progress.Message{
			Agent: progress.AgentReviewer,
			Text:  text,
		})
	}
	return state, nil
}

func reviewPrompt(task types.TaskSpec, state types.TopicDraftState) string {
	var b strings.Builder
	b.WriteString("You have been tasked with reviewing the draft which was written by a non-expert based on specific guidelines.\n" +
		"Please accept the draft if it is good enough to publish, or send it for revision, along with your notes to guide the revision.\n" +
		"If not all of the guideline criteria are met, you should send appropriate revision notes.\n")
	if state.RevisionNotes != nil && strings.TrimSpace(*state.RevisionNotes) != "" {
		fmt.Fprintf(&b, "\nThe reviser has already revised the draft based on your previous review notes with the following feedback:\n%s\n"+
			"Please provide additional feedback ONLY if critical since the reviser has already made changes based on your previous feedback.\n"+
			"If you think the article is sufficient or that only non-critical revisions are required, accept it.\n",
			*state.RevisionNotes)
	}
	b.WriteString("\nGuidelines:\n")
	for _, g := range task.Guidelines {
		fmt.Fprintf(&b, "- %s\n", g)
	}
	fmt.Fprintf(&b, "\nDraft:\n%s\n", state.Draft.Content)
	b.WriteString("\nRespond with a JSON object: {\"accepted\": true or false, \"feedback\": \"revision notes, empty when accepted\"}.\n")
	return b.String()
}

// ParseReview reads a reviewer answer. Nil means no outstanding feedback.
//
// The answer is read as a structured record only when it carries an
// "accepted" or "feedback" key. accepted:true accepts; accepted:false with
// empty or sentinel feedback keeps the whole answer as feedback. Any other
// answer is accepted only when the full text is a no-feedback sentinel.
func ParseReview(text string) *string {
	var d reviewDecision
	if err := llm.DecodeStructured(text, &d); err == nil && (d.Accepted != nil || d.Feedback != nil) {
		var feedback string
		if d.Feedback != nil {
			feedback = strings.TrimSpace(*d.Feedback)
		}
		switch {
		case d.Accepted != nil && *d.Accepted:
			return nil
		case d.Accepted == nil && IsNoFeedback(feedback):
			return nil
		case !IsNoFeedback(feedback):
			return &feedback
		}
	} else if IsNoFeedback(text) {
		return nil
	}
	feedback := strings.TrimSpace(text)
	return &feedback
}

// noFeedback lists the normalized answers that mean "accept".
var noFeedback = map[string]bool{
	"":            true,
	"none":        true,
	"null":        true,
	"nil":         true,
	"n/a":         true,
	"no feedback": true,
}

// IsNoFeedback reports whether s, after trimming whitespace, quotes, and
// punctuation and ignoring case, is a no-feedback sentinel.
func IsNoFeedback(s string) bool {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return noFeedback[strings.Trim(s, ".,;:!?\"'`*()[] ")]
}

// revision is the structured answer requested from the reviser.
type revision struct {
	Draft         string `json:"draft"`
	RevisionNotes string `json:"revision_notes"`
}

// Revise asks the smart tier to rewrite the draft according to the review.
func (a *Agents) Revise(ctx context.Context, task types.TaskSpec, state types.TopicDraftState) (types.TopicDraftState, error) {
	if state.Draft == nil || state.Review == nil {
		return state, fmt.Errorf("revising %q: draft and review are required", state.Topic)
	}

	prompt := fmt.Sprintf("Draft:\n%s\n\nReviewer's notes:\n%s\n\n"+
		"You have been tasked by your reviewer with revising the following draft, which was written by a non-expert.\n"+
		"Keep the %s tone and the Markdown structure, and keep every source link that still applies.\n"+
		"Respond with a JSON object: {\"draft\": \"the full revised section in Markdown\", "+
		"\"revision_notes\": \"what you changed to address the reviewer's notes\"}.\n",
		state.Draft.Content, *state.Review, task.Tone)

	resp, err := a.Invoker.Invoke(ctx, llm.Request{
		System:    reviserSystem,
		User:      prompt,
		Tier:      types.TierSmart,
		Shape:     llm.ShapeStructured,
		MaxTokens: a.MaxTokens,
	})
	if err != nil {
		return state, fmt.Errorf("revising draft: %w", err)
	}

	var rev revision
	if err := llm.DecodeStructured(resp.Text, &rev); err != nil {
		return state, fmt.Errorf("revising draft: %w", err)
	}
	content := strings.TrimSpace(rev.Draft)
	if content == "" {
		return state, fmt.Errorf("revising draft: %w", llm.ErrEmptyResponse)
	}

	revised := *state.Draft
	revised.Content = content
	notes := strings.TrimSpace(rev.RevisionNotes)
	state.Draft = &revised
	state.RevisionNotes = &notes

	if task.Verbose {
		progress.Emit(a.Reporter, progress.ChannelLogs, progress.EventReviewFeedback, progress.Message{
			Agent: progress.AgentReviser,
			Text:  "Revision notes: " + notes,
		})
	}
	return state, nil
}
