// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var page = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
<article>
{{.Body}}
</article>
</body>
</html>
`))

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

// HTML converts a Markdown report into a standalone page. The converted body
// is sanitized with the UGC policy before it is embedded.
func HTML(title, md string) ([]byte, error) {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return nil, fmt.Errorf("converting markdown: %w", err)
	}
	safe := bluemonday.UGCPolicy().SanitizeBytes(body.Bytes())

	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(safe)})
	if err != nil {
		return nil, fmt.Errorf("rendering page: %w", err)
	}
	return out.Bytes(), nil
}
