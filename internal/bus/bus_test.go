package bus

import (
	"testing"
	"time"

	"github.com/lucasnoah/droidscope/internal/exploration"
)

func TestTopicBroadcast(t *testing.T) {
	topic := NewTopic[exploration.LogEvent](8)
	a := topic.Subscribe()
	b := topic.Subscribe()
	defer a.Close()
	defer b.Close()

	topic.Publish(exploration.LogEvent{Message: "hello", Type: exploration.LogInfo})

	for name, sub := range map[string]*Subscriber[exploration.LogEvent]{"a": a, "b": b} {
		select {
		case ev := <-sub.Events():
			if ev.Message != "hello" {
				t.Errorf("%s: Message = %q, want %q", name, ev.Message, "hello")
			}
		case <-time.After(time.Second):
			t.Fatalf("%s: no event received", name)
		}
	}
}

func TestLateSubscriberNoReplay(t *testing.T) {
	topic := NewTopic[exploration.ProgressEvent](8)
	topic.Publish(exploration.ProgressEvent{Percentage: 25})

	sub := topic.Subscribe()
	defer sub.Close()

	select {
	case ev := <-sub.Events():
		t.Fatalf("late subscriber should not see earlier events, got %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	topic := NewTopic[exploration.ProgressEvent](2)
	sub := topic.Subscribe()
	defer sub.Close()

	// Far more events than the buffer holds; Publish must not block even
	// though nobody is draining.
	done := make(chan struct{})
	go func() {
		for i := 0; i <= 100; i++ {
			topic.Publish(exploration.ProgressEvent{Percentage: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow consumer")
	}
}

func TestSlowConsumerDropsOldestKeepsTerminal(t *testing.T) {
	topic := NewTopic[exploration.ProgressEvent](4)
	sub := topic.Subscribe()
	defer sub.Close()

	for i := 10; i <= 90; i += 10 {
		topic.Publish(exploration.ProgressEvent{Percentage: i})
	}
	topic.Publish(exploration.ProgressEvent{Percentage: 100})

	// Drain whatever survived; the terminal event must be the last one.
	var last exploration.ProgressEvent
	var count int
	for {
		select {
		case ev := <-sub.Events():
			last = ev
			count++
		default:
			if count == 0 {
				t.Fatal("no events buffered")
			}
			if last.Percentage != 100 {
				t.Errorf("last buffered percentage = %d, want 100", last.Percentage)
			}
			if count > 4 {
				t.Errorf("buffered %d events, buffer is 4", count)
			}
			return
		}
	}
}

func TestSubscriberCloseDetaches(t *testing.T) {
	topic := NewTopic[exploration.LogEvent](4)
	sub := topic.Subscribe()
	if n := topic.SubscriberCount(); n != 1 {
		t.Fatalf("SubscriberCount = %d, want 1", n)
	}

	sub.Close()
	sub.Close() // idempotent

	if n := topic.SubscriberCount(); n != 0 {
		t.Fatalf("SubscriberCount after Close = %d, want 0", n)
	}

	// Channel is closed.
	if _, ok := <-sub.Events(); ok {
		t.Error("expected closed event channel")
	}

	// Publishing after detach must not panic.
	topic.Publish(exploration.LogEvent{Message: "after"})
}

func TestKeepaliveSynthesis(t *testing.T) {
	b := New(Options{BufferSize: 4, KeepaliveInterval: 40 * time.Millisecond})
	defer b.Close()

	sub := b.Progress.Subscribe()
	defer sub.Close()

	select {
	case ev := <-sub.Events():
		if !ev.Keepalive {
			t.Errorf("expected keepalive event, got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("no keepalive synthesized on idle topic")
	}
}

func TestKeepaliveSuppressedByTraffic(t *testing.T) {
	b := New(Options{BufferSize: 16, KeepaliveInterval: 60 * time.Millisecond})
	defer b.Close()

	sub := b.Logs.Subscribe()
	defer sub.Close()

	// Keep the topic busy for longer than the keepalive interval.
	stop := time.After(150 * time.Millisecond)
	tick := time.NewTicker(20 * time.Millisecond)
	defer tick.Stop()
busy:
	for {
		select {
		case <-tick.C:
			b.PublishLog("work", exploration.LogInfo)
		case <-stop:
			break busy
		}
	}

	for {
		select {
		case ev := <-sub.Events():
			if ev.Keepalive {
				t.Error("keepalive published on a busy topic")
			}
		default:
			return
		}
	}
}

func TestBusHelpersSetFields(t *testing.T) {
	b := New(Options{BufferSize: 4, KeepaliveInterval: time.Hour})
	defer b.Close()

	ps := b.Progress.Subscribe()
	ls := b.Logs.Subscribe()
	ss := b.Stages.Subscribe()
	defer ps.Close()
	defer ls.Close()
	defer ss.Close()

	b.PublishProgress("Stage 1: Basic Exploration", 5)
	b.PublishLog("starting", exploration.LogInfo)
	b.PublishStage(1, exploration.StageRunning, "Starting basic exploration...")

	pe := <-ps.Events()
	if pe.Percentage != 5 || pe.Message == "" || pe.Timestamp == "" {
		t.Errorf("progress event = %+v", pe)
	}
	le := <-ls.Events()
	if le.Type != exploration.LogInfo || le.Timestamp == "" {
		t.Errorf("log event = %+v", le)
	}
	se := <-ss.Events()
	if se.Stage != 1 || se.Status != exploration.StageRunning {
		t.Errorf("stage event = %+v", se)
	}
}
