package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/eclipse/paho.golang/paho"

	"github.com/huraaa/Agent-one/internal/config"
	"github.com/huraaa/Agent-one/internal/tracing"
)

type fakeConn struct {
	mu        sync.Mutex
	published []*paho.Publish
	err       error
	block     chan struct{} // when set, event publishes wait on it
}

func (f *fakeConn) Publish(_ context.Context, p *paho.Publish) (*paho.PublishResponse, error) {
	if f.block != nil && !p.Retain {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, p)
	return &paho.PublishResponse{}, f.err
}

func (f *fakeConn) AwaitConnection(context.Context) error { return nil }
func (f *fakeConn) Disconnect(context.Context) error      { return nil }

func (f *fakeConn) topics() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, p := range f.published {
		out = append(out, p.Topic)
	}
	return out
}

func started(fc *fakeConn) *Publisher {
	p := New(config.MQTTConfig{Broker: "mqtt://localhost:1883", Topic: "agentone/"}, nil)
	p.attach(fc)
	return p
}

func TestPublisher_EmitThenStop(t *testing.T) {
	fc := &fakeConn{}
	p := started(fc)

	p.Emit(context.Background(), tracing.Event{
		Name:      "tool.calculator.end",
		Span:      "tool.calculator",
		Kind:      tracing.KindEnd,
		RequestID: "0123456789ab",
		Duration:  0.012,
	})
	p.Emit(context.Background(), tracing.Event{Name: "cache.hit", Kind: "event"})
	if err := p.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []string{
		"agentone/run/0123456789ab/tool/calculator",
		"agentone/event/cache/hit",
		"agentone/availability",
	}
	got := fc.topics()
	if len(got) != len(want) {
		t.Fatalf("topics = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("topic %d = %q, want %q", i, got[i], want[i])
		}
	}

	ev := fc.published[0]
	if ev.Retain {
		t.Error("events must not be retained")
	}
	var payload map[string]any
	if err := json.Unmarshal(ev.Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload["event"] != "tool.calculator.end" || payload["duration_s"] != 0.012 {
		t.Errorf("payload = %v", payload)
	}

	last := fc.published[2]
	if string(last.Payload) != "offline" || !last.Retain || last.QoS != 1 {
		t.Errorf("availability = %+v", last)
	}
}

func TestPublisher_Topic(t *testing.T) {
	p := New(config.MQTTConfig{Topic: "agentone"}, nil)
	tests := []struct {
		ev   tracing.Event
		want string
	}{
		{tracing.Event{Span: "tool.a+b#c"}, "agentone/event/tool/a_b_c"},
		{tracing.Event{Span: "model.call", RequestID: "r/1"}, "agentone/run/r_1/model/call"},
		{tracing.Event{Name: "guard.blocked", RequestID: "abc"}, "agentone/run/abc/guard/blocked"},
	}
	for _, tt := range tests {
		if got := p.topic(tt.ev); got != tt.want {
			t.Errorf("topic(%+v) = %q, want %q", tt.ev, got, tt.want)
		}
	}
}

func TestPublisher_DropsWhenFull(t *testing.T) {
	fc := &fakeConn{block: make(chan struct{})}
	p := started(fc)

	// One event is held by the blocked publish, queueSize more fill the
	// buffer, and the rest are dropped.
	for range queueSize + 10 {
		p.Emit(context.Background(), tracing.Event{Name: "agent.tool_calls"})
	}
	close(fc.block)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := p.dropped.Load(); n < 9 || n > 10 {
		t.Errorf("dropped = %d, want 9 or 10", n)
	}
	if got := len(fc.topics()); got != queueSize+10-int(p.dropped.Load())+1 {
		t.Errorf("published %d messages with %d dropped", got, p.dropped.Load())
	}
}

func TestPublisher_Inactive(t *testing.T) {
	p := New(config.MQTTConfig{Broker: "mqtt://localhost:1883", Topic: "agentone"}, nil)
	p.Emit(context.Background(), tracing.Event{Name: "agent.run.start"})
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("Stop before Start: %v", err)
	}

	fc := &fakeConn{}
	p = started(fc)
	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	p.Emit(context.Background(), tracing.Event{Name: "late"})
	if err := p.Stop(context.Background()); err != nil {
		t.Errorf("second Stop: %v", err)
	}
	if got := fc.topics(); len(got) != 1 {
		t.Errorf("topics after stop = %v, want only availability", got)
	}
}

func TestPublisher_PublishErrorDropped(t *testing.T) {
	fc := &fakeConn{err: errors.New("not connected")}
	p := started(fc)
	p.Emit(context.Background(), tracing.Event{Name: "agent.run.end", Span: "agent.run"})
	if err := p.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := len(fc.topics()); got != 2 {
		t.Errorf("publish attempts = %d, want 2", got)
	}
}
