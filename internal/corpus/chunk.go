// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package corpus

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type section struct {
	heading string
	body    string
}

// parseDocument returns a document title and its chunks. Markdown and text
// are split on ## and ### headings; the first # heading becomes the title.
// HTML is reduced to text and split on h2 and h3 elements.
func parseDocument(content, ext string) (string, []section) {
	switch strings.ToLower(ext) {
	case ".html", ".htm":
		return chunkHTML(content)
	default:
		return markdownTitle(content), chunkByHeadings(content)
	}
}

// markdownTitle returns the text of the first level-one heading.
func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(trimmed, "# "))
		}
	}
	return ""
}

// chunkByHeadings splits Markdown into sections on ## or ### boundaries.
// Each section carries the heading text and the body up to the next heading.
// Sections with an empty body are dropped.
func chunkByHeadings(content string) []section {
	var sections []section
	currentHeading := ""
	var bodyLines []string

	flush := func() {
		body := strings.TrimSpace(strings.Join(bodyLines, "\n"))
		if body != "" {
			sections = append(sections, section{heading: currentHeading, body: body})
		}
		bodyLines = nil
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			continue
		}
		if isHeading(trimmed) {
			flush()
			currentHeading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			continue
		}
		bodyLines = append(bodyLines, line)
	}
	flush()
	return sections
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ")
}

// chunkHTML extracts the page title and one section per h2/h3 heading.
// Text before the first heading forms an untitled section.
func chunkHTML(content string) (string, []section) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return "", nil
	}
	title := strings.TrimSpace(doc.Find("title").First().Text())
	if title == "" {
		title = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	doc.Find("script, style, nav, footer").Remove()

	var sections []section
	cur := section{}
	var body []string
	flush := func() {
		text := strings.TrimSpace(strings.Join(body, "\n"))
		if text != "" {
			cur.body = text
			sections = append(sections, cur)
		}
		body = nil
	}
	doc.Find("body").Find("h2, h3, p, li, pre, blockquote, td").Each(func(_ int, s *goquery.Selection) {
		if goquery.NodeName(s) == "h2" || goquery.NodeName(s) == "h3" {
			flush()
			cur = section{heading: strings.TrimSpace(s.Text())}
			return
		}
		if text := strings.Join(strings.Fields(s.Text()), " "); text != "" {
			body = append(body, text)
		}
	})
	flush()
	return title, sections
}
