// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders an aggregated result into publishable documents and
// checks that each draft's inline links point at the sources it was grounded on.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-editor/pkg/types"
)

// maxNameRunes bounds the query part of an output filename.
const maxNameRunes = 80

// linkPattern matches inline Markdown links and images: [text](url).
var linkPattern = regexp.MustCompile(`!?\[[^\[\]]*\]\(([^()\s]+)\)`)

// unsafeName matches characters dropped from output filenames.
var unsafeName = regexp.MustCompile(`[^\w\s-]`)

// Filename returns the base name, without extension, of the files written for
// a run of query at now: task_<unix seconds>_<query>.
func Filename(query string, now time.Time) string {
	name := strings.TrimSpace(unsafeName.ReplaceAllString(query, ""))
	name = strings.Join(strings.Fields(name), "_")
	if r := []rune(name); len(r) > maxNameRunes {
		name = strings.TrimRight(string(r[:maxNameRunes]), "_-")
	}
	base := fmt.Sprintf("task_%d", now.Unix())
	if name == "" {
		return base
	}
	return base + "_" + name
}

// Markdown composes the full report: title, date, contents, one section per
// planned topic in plan order, and a deduplicated reference list. Failed
// topics keep their place with a short notice.
func Markdown(result types.AggregatedResult) string {
	var b strings.Builder
	title := result.Plan.Title
	if title == "" {
		title = result.Query
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	if result.Plan.Date != "" {
		fmt.Fprintf(&b, "#### Date: %s\n\n", result.Plan.Date)
	}

	if len(result.Topics) > 0 {
		b.WriteString("## Table of Contents\n\n")
		for i, t := range result.Topics {
			fmt.Fprintf(&b, "%d. %s\n", i+1, t.Topic)
		}
		b.WriteString("\n")
	}

	for _, t := range result.Topics {
		writeSection(&b, t)
	}

	if refs := References(result); len(refs) > 0 {
		b.WriteString("## References\n\n")
		for _, r := range refs {
			fmt.Fprintf(&b, "- <%s>\n", r)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeSection(b *strings.Builder, t types.TopicResult) {
	if t.Draft == nil {
		fmt.Fprintf(b, "## %s\n\n", t.Topic)
		fmt.Fprintf(b, "> This section could not be researched (%s).\n\n", t.ErrorKind)
		return
	}

	content := strings.TrimSpace(t.Draft.Content)
	if !strings.HasPrefix(content, "#") {
		fmt.Fprintf(b, "## %s\n\n", t.Topic)
	}
	b.WriteString(content)
	b.WriteString("\n\n")

	for _, img := range t.Draft.Images {
		fmt.Fprintf(b, "![%s](%s)\n\n", t.Topic, img)
	}
	if t.State == types.StateRejectedExhausted {
		fmt.Fprintf(b, "> This section did not pass review after %d revisions.\n\n", t.Iterations)
	}
}

// References returns the distinct source URLs of every draft, in first-seen
// order.
func References(result types.AggregatedResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, d := range result.Drafts() {
		for _, s := range d.Sources {
			if s == "" || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// UnknownLinks scans each draft for inline links whose target is neither one
// of the draft's sources nor one of its images. It returns the offending URLs
// keyed by topic, each list sorted. Topics without findings are omitted.
func UnknownLinks(result types.AggregatedResult) map[string][]string {
	out := make(map[string][]string)
	for _, d := range result.Drafts() {
		known := make(map[string]bool, len(d.Sources)+len(d.Images))
		for _, s := range d.Sources {
			known[s] = true
		}
		for _, s := range d.Images {
			known[s] = true
		}

		seen := make(map[string]bool)
		for _, link := range extractLinks(d.Content) {
			if !known[link] && !seen[link] {
				seen[link] = true
				out[d.Topic] = append(out[d.Topic], link)
			}
		}
		sort.Strings(out[d.Topic])
	}
	for k, v := range out {
		if len(v) == 0 {
			delete(out, k)
		}
	}
	return out
}

// extractLinks returns the absolute http(s) link targets in text. Relative
// links and anchors are ignored.
func extractLinks(text string) []string {
	var links []string
	for _, m := range linkPattern.FindAllStringSubmatch(text, -1) {
		u := m[1]
		if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") {
			links = append(links, u)
		}
	}
	return links
}

// LoadResult reads a result previously written in YAML form.
func LoadResult(path string) (*types.AggregatedResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading result: %w", err)
	}
	var result types.AggregatedResult
	if err := yaml.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parsing result: %w", err)
	}
	return &result, nil
}

// Publisher writes reports to a directory.
type Publisher struct {
	Dir string

	// Now stamps output filenames; nil uses time.Now.
	Now func() time.Time
}

// Publish writes result in each requested format and returns the paths
// written, in format order. Unknown formats are rejected before anything is
// written; an empty list writes Markdown only.
func (p *Publisher) Publish(result types.AggregatedResult, formats []types.OutputFormat) ([]string, error) {
	if len(formats) == 0 {
		formats = []types.OutputFormat{types.OutputMarkdown}
	}
	for _, f := range formats {
		switch f {
		case types.OutputMarkdown, types.OutputHTML, types.OutputYAML:
		default:
			return nil, fmt.Errorf("unknown publish format %q: use markdown, html, or yaml", f)
		}
	}

	dir := p.Dir
	if dir == "" {
		dir = "outputs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	base := filepath.Join(dir, Filename(result.Query, now()))
	md := Markdown(result)

	var paths []string
	for _, f := range formats {
		var (
			path string
			data []byte
			err  error
		)
		switch f {
		case types.OutputMarkdown:
			path, data = base+".md", []byte(md)
		case types.OutputHTML:
			path = base + ".html"
			data, err = HTML(result.Plan.Title, md)
		case types.OutputYAML:
			path = base + ".yaml"
			data, err = yaml.Marshal(result)
		}
		if err != nil {
			return paths, fmt.Errorf("rendering %s: %w", f, err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return paths, fmt.Errorf("writing %s: %w", path, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ParseFormats converts format names, trimming and lowercasing each one and
// dropping duplicates.
func ParseFormats(names []string) []types.OutputFormat {
	seen := make(map[types.OutputFormat]bool)
	var out []types.OutputFormat
	for _, n := range names {
		f := types.OutputFormat(strings.ToLower(strings.TrimSpace(n)))
		if f == "md" {
			f = types.OutputMarkdown
		}
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
