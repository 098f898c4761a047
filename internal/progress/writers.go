// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// JSONLines writes each event as one JSON object per line.
type JSONLines struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewJSONLines returns a reporter writing to w.
func NewJSONLines(w io.Writer) *JSONLines {
	return &JSONLines{w: w, now: time.Now}
}

// Emit marshals and writes the event. Write errors are ignored.
func (j *JSONLines) Emit(channel, eventType string, payload any) {
	data, err := json.Marshal(Event{Channel: channel, Type: eventType, Payload: payload, Timestamp: j.now()})
	if err != nil {
		data, _ = json.Marshal(Event{
			Channel:   channel,
			Type:      eventType,
			Payload:   map[string]string{"error": fmt.Sprintf("failed to marshal payload: %v", err)},
			Timestamp: j.now(),
		})
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	_, _ = j.w.Write(append(data, '\n'))
}

// agentColors assigns a foreground color per agent label.
var agentColors = map[string]lipgloss.Color{
	AgentChiefEditor: lipgloss.Color("#C678DD"),
	AgentEditor:      lipgloss.Color("#5B8DEF"),
	AgentResearcher:  lipgloss.Color("#56B6C2"),
	AgentReviewer:    lipgloss.Color("#E5C07B"),
	AgentReviser:     lipgloss.Color("#98C379"),
	AgentPublisher:   lipgloss.Color("#AAAAAA"),
}

// Console writes one human-readable line per event, prefixed by the agent
// label. Labels are colored only when the destination is a terminal.
type Console struct {
	mu       sync.Mutex
	w        io.Writer
	styled   bool
	renderer *lipgloss.Renderer
	warn     lipgloss.Style
}

// NewConsole returns a console reporter writing to w.
func NewConsole(w io.Writer) *Console {
	styled := false
	if f, ok := w.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	r := lipgloss.NewRenderer(w)
	return &Console{
		w:        w,
		styled:   styled,
		renderer: r,
		warn:     r.NewStyle().Foreground(lipgloss.Color("#E06C75")).Bold(true),
	}
}

// Emit renders and writes the event.
func (c *Console) Emit(_, eventType string, payload any) {
	agent, text := Describe(eventType, payload)
	label := "[" + agent + "]"
	if eventType == EventWarning {
		label = "warning:"
	}
	if c.styled {
		if eventType == EventWarning {
			label = c.warn.Render(label)
		} else {
			label = c.renderer.NewStyle().Bold(true).Foreground(agentColors[agent]).Render(label)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s %s\n", label, text)
}
