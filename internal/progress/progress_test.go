// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package progress

import (
	"bufio"
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmit_SwallowsPanics(t *testing.T) {
	panicky := Func(func(string, string, any) { panic("reporter exploded") })
	assert.NotPanics(t, func() { Emit(panicky, ChannelLogs, EventPlanning, "x") })
	assert.NotPanics(t, func() { Emit(nil, ChannelLogs, EventPlanning, "x") })
}

func TestMulti_DeliversPastPanickingReporter(t *testing.T) {
	rec := &Recorder{}
	m := Multi{Func(func(string, string, any) { panic("boom") }), rec}
	m.Emit(ChannelLogs, EventPlan, PlanEvent{Title: "T"})

	require.Len(t, rec.Events(), 1)
	assert.Equal(t, EventPlan, rec.Events()[0].Type)
}

// blockingReporter blocks every Emit until release is closed.
type blockingReporter struct {
	release chan struct{}
	rec     Recorder
}

func (b *blockingReporter) Emit(channel, eventType string, payload any) {
	<-b.release
	b.rec.Emit(channel, eventType, payload)
}

func TestAsync_NeverBlocksEmitter(t *testing.T) {
	slow := &blockingReporter{release: make(chan struct{})}
	a := NewAsync(slow, 2)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			a.Emit(ChannelLogs, EventTopicState, i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked on a slow reporter")
	}

	close(slow.release)
	a.Close()

	delivered := len(slow.rec.Events())
	assert.Equal(t, int64(50), int64(delivered)+a.Dropped())
	assert.Greater(t, a.Dropped(), int64(0))
}

func TestAsync_CloseFlushesAndDropsLateEvents(t *testing.T) {
	rec := &Recorder{}
	a := NewAsync(rec, 0)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Emit(ChannelLogs, EventTopicState, i)
		}(i)
	}
	wg.Wait()
	a.Close()
	a.Close()

	assert.Len(t, rec.Events(), 10)

	a.Emit(ChannelLogs, EventTopicState, "late")
	assert.Len(t, rec.Events(), 10)
	assert.Equal(t, int64(1), a.Dropped())
}

func TestJSONLines_WritesOneObjectPerEvent(t *testing.T) {
	var buf bytes.Buffer
	j := NewJSONLines(&buf)
	j.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	j.Emit(ChannelLogs, EventTopicState, TopicEvent{Topic: "Batteries", State: "accepted", Iteration: 1})
	j.Emit(ChannelLogs, EventWarning, make(chan int))

	sc := bufio.NewScanner(&buf)
	var lines []map[string]any
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 2)

	assert.Equal(t, "topic_state", lines[0]["type"])
	payload := lines[0]["payload"].(map[string]any)
	assert.Equal(t, "Batteries", payload["topic"])
	assert.Equal(t, "2026-01-02T03:04:05Z", lines[0]["timestamp"])

	bad := lines[1]["payload"].(map[string]any)
	assert.Contains(t, bad["error"], "failed to marshal payload")
}

func TestConsole_PlainOutputForNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	c := NewConsole(&buf)

	c.Emit(ChannelLogs, EventReviewFeedback, Message{Agent: AgentReviewer, Text: "add sources"})
	c.Emit(ChannelLogs, EventWarning, "corpus unavailable")
	c.Emit(ChannelLogs, EventTopicState, TopicEvent{Topic: "Grid", State: "failed", Error: "timeout"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "[REVIEWER] add sources", lines[0])
	assert.Equal(t, "warning: corpus unavailable", lines[1])
	assert.Equal(t, "[EDITOR] Grid: failed (iteration 0): timeout", lines[2])
}

func TestDescribe(t *testing.T) {
	agent, text := Describe(EventRunComplete, RunEvent{RunID: "r1", Accepted: 2, Failed: 1, Elapsed: 1500 * time.Millisecond})
	assert.Equal(t, AgentEditor, agent)
	assert.Equal(t, "run r1 finished in 1.5s: 2 accepted, 0 exhausted, 1 failed", text)

	_, text = Describe("custom", 42)
	assert.Equal(t, "custom: 42", text)
}
