// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package plan turns an initial research briefing and the task parameters
// into a research plan: a title, a date, and an ordered, bounded list of
// section names.
package plan

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/pdiddy/research-editor/internal/llm"
	"github.com/pdiddy/research-editor/internal/progress"
	"github.com/pdiddy/research-editor/internal/retrieve"
	"github.com/pdiddy/research-editor/pkg/types"
)

// ErrPlanningFailed is returned when the model call fails or its answer
// cannot be read as a plan. A run cannot continue without a plan.
var ErrPlanningFailed = errors.New("planning failed")

// planningSystem is the role given to the planning model.
const planningSystem = "You are a research editor. Your goal is to oversee the research project " +
	"from inception to completion. Your main task is to plan the article section layout " +
	"based on an initial research summary."

var planningPromptTmpl = template.Must(template.New("planning").Parse(`Today's date is {{.Today}}.
{{if .Research}}Research summary report: '{{.Research}}'
{{else}}No initial research summary is available. Plan from the research question alone: '{{.Query}}'
{{end}}{{if .Feedback}}Human feedback: {{.Feedback}}
You must plan the sections based on the human feedback.
{{end}}
Your task is to generate an outline of section headers for the research project based on the research summary report above.
You must generate a maximum of {{.MaxSections}} section headers.
You must focus ONLY on related research topics for subheaders and do NOT include introduction, conclusion, and references.
You must return nothing but a JSON object with the fields "title" (string), "date" (string), and "sections" (list of section headers):
{"title": "string research title", "date": "today's date", "sections": ["section header 1", "section header 2"]}
`))

// Planner produces research plans with a model invoker.
type Planner struct {
	Invoker  llm.Invoker
	Reporter progress.Reporter

	// Now returns the current time. Nil means time.Now.
	Now func() time.Time

	// MaxTokens caps the planning completion; zero uses the invoker default.
	MaxTokens int
}

// Plan asks the smart tier for an outline and sanitizes the answer. An empty
// initialResearch degrades to planning from the query alone.
func (p *Planner) Plan(ctx context.Context, initialResearch string, task types.TaskSpec) (types.ResearchPlan, error) {
	progress.Emit(p.Reporter, progress.ChannelLogs, progress.EventPlanning, progress.Message{
		Agent: progress.AgentEditor,
		Text:  "Planning an outline layout based on initial research...",
	})

	prompt, err := renderPrompt(p.now(), initialResearch, task)
	if err != nil {
		return types.ResearchPlan{}, fmt.Errorf("%w: rendering prompt: %v", ErrPlanningFailed, err)
	}

	resp, err := p.Invoker.Invoke(ctx, llm.Request{
		System:    planningSystem,
		User:      prompt,
		Tier:      types.TierSmart,
		Shape:     llm.ShapeStructured,
		MaxTokens: p.MaxTokens,
	})
	if err != nil {
		return types.ResearchPlan{}, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	var raw struct {
		Title    string   `json:"title"`
		Date     string   `json:"date"`
		Sections []string `json:"sections"`
	}
	if err := llm.DecodeStructured(resp.Text, &raw); err != nil {
		return types.ResearchPlan{}, fmt.Errorf("%w: %w", ErrPlanningFailed, err)
	}

	sections := Sanitize(raw.Sections, task.MaxSections)
	if len(sections) == 0 {
		return types.ResearchPlan{}, fmt.Errorf("%w: model returned no usable sections", ErrPlanningFailed)
	}

	plan := types.ResearchPlan{
		Title:    strings.TrimSpace(raw.Title),
		Date:     strings.TrimSpace(raw.Date),
		Sections: sections,
	}
	if plan.Title == "" {
		plan.Title = task.Query
	}
	if plan.Date == "" {
		plan.Date = p.now().Format("02/01/2006")
	}

	progress.Emit(p.Reporter, progress.ChannelLogs, progress.EventPlan, progress.PlanEvent{
		Title:    plan.Title,
		Sections: plan.Sections,
	})
	return plan, nil
}

func (p *Planner) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func renderPrompt(now time.Time, initialResearch string, task types.TaskSpec) (string, error) {
	data := struct {
		Today       string
		Research    string
		Query       string
		Feedback    string
		MaxSections int
	}{
		Today:       now.Format("02/01/2006"),
		Research:    strings.TrimSpace(initialResearch),
		Query:       task.Query,
		MaxSections: task.MaxSections,
	}
	if task.IncludeHumanFeedback && !IsNegativeFeedback(task.HumanFeedback) {
		data.Feedback = strings.TrimSpace(task.HumanFeedback)
	}

	var buf bytes.Buffer
	if err := planningPromptTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// negativeFeedback lists answers that mean "no feedback".
var negativeFeedback = map[string]bool{
	"":            true,
	"no":          true,
	"nope":        true,
	"none":        true,
	"n/a":         true,
	"na":          true,
	"nil":         true,
	"null":        true,
	"nothing":     true,
	"no feedback": true,
	"no changes":  true,
	"looks good":  true,
	"lgtm":        true,
}

// IsNegativeFeedback reports whether feedback is empty or a plain refusal.
func IsNegativeFeedback(feedback string) bool {
	return negativeFeedback[normalize(feedback)]
}

// excludedSections are headers a plan must never contain.
var excludedSections = map[string]bool{
	"introduction":      true,
	"intro":             true,
	"conclusion":        true,
	"conclusions":       true,
	"references":        true,
	"reference":         true,
	"bibliography":      true,
	"summary":           true,
	"executive summary": true,
}

// Sanitize drops blank, duplicate, and excluded headers and truncates the
// remainder to maxSections. Order is preserved.
func Sanitize(sections []string, maxSections int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, s := range sections {
		name := strings.Join(strings.Fields(s), " ")
		key := normalize(stripNumbering(name))
		if key == "" || seen[key] || excludedSections[key] {
			continue
		}
		seen[key] = true
		out = append(out, name)
		if maxSections > 0 && len(out) == maxSections {
			break
		}
	}
	return out
}

// stripNumbering removes a leading "1." or "2)" outline marker.
func stripNumbering(s string) string {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i > 0 && i < len(s) && (s[i] == '.' || s[i] == ')') {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

// normalize lowercases s, collapses whitespace, and trims surrounding
// punctuation.
func normalize(s string) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	return strings.Trim(s, ".,;:!?\"'`*()[] ")
}

// initialResearchSystem is the role given to the briefing model.
const initialResearchSystem = "You are a chief editor conducting initial research for a report. " +
	"Summarize the current state of knowledge on the topic from the sources provided."

// Briefer produces the initial research briefing that seeds planning.
type Briefer struct {
	Retriever retrieve.Retriever
	Invoker   llm.Invoker
	Reporter  progress.Reporter

	// MaxSourceChars caps the source text placed in the prompt (default 12000).
	MaxSourceChars int
}

// InitialResearch retrieves sources for the task query and summarizes them
// with the fast tier. Retrieval and model failures degrade to an empty
// briefing with a warning event; only cancellation of ctx is returned.
func (b *Briefer) InitialResearch(ctx context.Context, task types.TaskSpec) (string, error) {
	progress.Emit(b.Reporter, progress.ChannelLogs, progress.EventInitialResearch, progress.Message{
		Agent: progress.AgentResearcher,
		Text:  "Running initial research on the following query: " + task.Query,
	})

	var docs []types.Document
	if b.Retriever != nil {
		var err error
		docs, err = b.Retriever.Retrieve(ctx, task.Query)
		if err != nil {
			b.warn(fmt.Sprintf("initial research retrieval failed: %v", err))
		}
	}

	budget := b.MaxSourceChars
	if budget <= 0 {
		budget = 12000
	}
	var sources strings.Builder
	for _, d := range docs {
		if sources.Len() >= budget {
			break
		}
		fmt.Fprintf(&sources, "Source: %s\n%s\n\n", d.URL, retrieve.Truncate(d.Text, budget-sources.Len()))
	}

	user := fmt.Sprintf("Research question: %s\nTone: %s.\n", task.Query, task.Tone.Description())
	if sources.Len() > 0 {
		user += "\nSources:\n" + sources.String()
	}
	user += "\nWrite a concise research summary of the question in a few paragraphs."

	resp, err := b.Invoker.Invoke(ctx, llm.Request{
		System: initialResearchSystem,
		User:   user,
		Tier:   types.TierFast,
		Shape:  llm.ShapeText,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		b.warn(fmt.Sprintf("initial research summary failed: %v", err))
		return "", nil
	}
	return strings.TrimSpace(resp.Text), nil
}

func (b *Briefer) warn(msg string) {
	progress.Emit(b.Reporter, progress.ChannelLogs, progress.EventWarning, msg)
}
