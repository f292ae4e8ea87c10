// Package events carries driver actions to the monitor.
//
// A channel is one producer and one consumer. Sends never block and the
// receiver drains everything queued so far in a single non-blocking call.
package events

import (
	"errors"
	"sync"
	"time"

	"github.com/torosent/walwatch/internal/trace"
)

// ErrClosed is returned by Send after the sender was closed.
var ErrClosed = errors.New("event channel closed")

// MessageKind discriminates Message.
type MessageKind int

const (
	MessageEvent MessageKind = iota + 1
	MessageTitle
)

func (k MessageKind) String() string {
	switch k {
	case MessageEvent:
		return "event"
	case MessageTitle:
		return "title"
	default:
		return "unknown"
	}
}

// Message is either a timestamped event or a title update.
type Message struct {
	Kind  MessageKind
	Event trace.Event
	Title string
}

type queue struct {
	mu     sync.Mutex
	items  []Message
	closed bool
}

// Sender is the producing end of a channel.
type Sender struct {
	q   *queue
	now func() time.Time
}

// Receiver is the consuming end of a channel.
type Receiver struct {
	q *queue
}

// Option customizes a channel.
type Option func(*Sender)

// WithClock sets the clock used by Sender.Event.
func WithClock(now func() time.Time) Option {
	return func(s *Sender) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a connected sender and receiver.
func New(opts ...Option) (*Sender, *Receiver) {
	q := &queue{}
	s := &Sender{q: q, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, &Receiver{q: q}
}

// Send enqueues msg.
func (s *Sender) Send(msg Message) error {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	if s.q.closed {
		return ErrClosed
	}
	s.q.items = append(s.q.items, msg)
	return nil
}

// Event sends an event labelled label, stamped with the current time.
func (s *Sender) Event(label string) error {
	return s.Send(Message{Kind: MessageEvent, Event: trace.Event{Timestamp: s.now(), Label: label}})
}

// Title sends a title update.
func (s *Sender) Title(title string) error {
	return s.Send(Message{Kind: MessageTitle, Title: title})
}

// Close stops further sends. Queued messages remain receivable.
func (s *Sender) Close() {
	s.q.mu.Lock()
	s.q.closed = true
	s.q.mu.Unlock()
}

// TryReceiveAll returns every queued message in send order, or nil when the
// queue is empty.
func (r *Receiver) TryReceiveAll() []Message {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	if len(r.q.items) == 0 {
		return nil
	}
	out := r.q.items
	r.q.items = nil
	return out
}

// Closed reports whether the sender has been closed.
func (r *Receiver) Closed() bool {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return r.q.closed
}
