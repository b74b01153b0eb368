// Package bus implements the in-process publish/subscribe channels that carry
// live exploration events to any number of connected listeners.
package bus

import (
	"sync"
	"time"

	"github.com/lucasnoah/droidscope/internal/exploration"
)

// DefaultBufferSize is the per-subscriber buffer used when none is configured.
const DefaultBufferSize = 64

// DefaultKeepaliveInterval is how long a topic may stay idle before a
// keepalive event is synthesized for its subscribers.
const DefaultKeepaliveInterval = 30 * time.Second

// Topic is a broadcast channel for one event type. Publishing never blocks:
// each subscriber has a bounded buffer and the oldest entry is dropped when a
// slow consumer falls behind, so the newest event (including a terminal one)
// always lands. Late subscribers receive only events published after they
// attach.
type Topic[T any] struct {
	mu       sync.Mutex
	subs     map[*Subscriber[T]]struct{}
	bufSize  int
	lastSent time.Time
}

// NewTopic creates a Topic with the given per-subscriber buffer size.
func NewTopic[T any](bufSize int) *Topic[T] {
	if bufSize <= 0 {
		bufSize = DefaultBufferSize
	}
	return &Topic[T]{
		subs:     make(map[*Subscriber[T]]struct{}),
		bufSize:  bufSize,
		lastSent: time.Now(),
	}
}

// Subscriber is one attached listener on a Topic.
type Subscriber[T any] struct {
	ch    chan T
	topic *Topic[T]
	once  sync.Once
}

// Events returns the subscriber's receive channel. It is closed when the
// subscriber detaches via Close.
func (s *Subscriber[T]) Events() <-chan T {
	return s.ch
}

// Close detaches the subscriber from its topic and closes the event channel.
// Safe to call more than once.
func (s *Subscriber[T]) Close() {
	s.once.Do(func() {
		t := s.topic
		t.mu.Lock()
		delete(t.subs, s)
		t.mu.Unlock()
		close(s.ch)
	})
}

// Subscribe attaches a new subscriber to the topic.
func (t *Topic[T]) Subscribe() *Subscriber[T] {
	sub := &Subscriber[T]{
		ch:    make(chan T, t.bufSize),
		topic: t,
	}
	t.mu.Lock()
	t.subs[sub] = struct{}{}
	t.mu.Unlock()
	return sub
}

// Publish broadcasts ev to every current subscriber without blocking.
func (t *Topic[T]) Publish(ev T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastSent = time.Now()
	for sub := range t.subs {
		deliver(sub.ch, ev)
	}
}

// deliver enqueues ev, evicting the oldest buffered event if the buffer is
// full. The second send can only miss if another goroutine refilled the
// buffer in between, in which case the event is dropped like any other
// overflow.
func deliver[T any](ch chan T, ev T) {
	select {
	case ch <- ev:
		return
	default:
	}
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- ev:
	default:
	}
}

// SubscriberCount returns the number of attached subscribers.
func (t *Topic[T]) SubscriberCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs)
}

// idleSince returns how long ago the topic last published.
func (t *Topic[T]) idleSince() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return time.Since(t.lastSent)
}

// Options configures a Bus.
type Options struct {
	BufferSize        int
	KeepaliveInterval time.Duration
}

// Bus bundles the three exploration event channels and synthesizes keepalive
// events on each when it has been idle for the configured interval, so SSE
// transports stay open through long agent turns.
type Bus struct {
	Progress *Topic[exploration.ProgressEvent]
	Logs     *Topic[exploration.LogEvent]
	Stages   *Topic[exploration.StageStatusEvent]

	interval time.Duration
	done     chan struct{}
	closeOnce sync.Once
}

// New creates a Bus and starts its keepalive loop.
func New(opts Options) *Bus {
	interval := opts.KeepaliveInterval
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}
	b := &Bus{
		Progress: NewTopic[exploration.ProgressEvent](opts.BufferSize),
		Logs:     NewTopic[exploration.LogEvent](opts.BufferSize),
		Stages:   NewTopic[exploration.StageStatusEvent](opts.BufferSize),
		interval: interval,
		done:     make(chan struct{}),
	}
	go b.keepaliveLoop()
	return b
}

// Close stops the keepalive loop. Subscribers are not closed; they detach
// themselves when their stream ends.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}

func (b *Bus) keepaliveLoop() {
	tick := time.NewTicker(b.interval / 2)
	defer tick.Stop()
	for {
		select {
		case <-b.done:
			return
		case <-tick.C:
		}
		if b.Progress.SubscriberCount() > 0 && b.Progress.idleSince() >= b.interval {
			b.Progress.Publish(exploration.ProgressEvent{Keepalive: true})
		}
		if b.Logs.SubscriberCount() > 0 && b.Logs.idleSince() >= b.interval {
			b.Logs.Publish(exploration.LogEvent{Keepalive: true})
		}
		if b.Stages.SubscriberCount() > 0 && b.Stages.idleSince() >= b.interval {
			b.Stages.Publish(exploration.StageStatusEvent{Keepalive: true})
		}
	}
}

// PublishProgress publishes a progress event with the current timestamp.
func (b *Bus) PublishProgress(message string, percentage int) {
	b.Progress.Publish(exploration.ProgressEvent{
		Message:    message,
		Percentage: percentage,
		Timestamp:  time.Now().Format(time.RFC3339),
	})
}

// PublishLog publishes a log event with the current timestamp.
func (b *Bus) PublishLog(message, logType string) {
	b.Logs.Publish(exploration.LogEvent{
		Message:   message,
		Type:      logType,
		Timestamp: time.Now().Format("15:04:05"),
	})
}

// PublishStage publishes a stage status update.
func (b *Bus) PublishStage(stage int, status, message string) {
	b.Stages.Publish(exploration.StageStatusEvent{
		Stage:   stage,
		Status:  status,
		Message: message,
	})
}
