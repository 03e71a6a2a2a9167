// Package events provides a publish/subscribe event bus for
// operational observability. Events flow from components (agent loop,
// organizer, memory extractor, chat transport) to subscribers (the
// MQTT publisher, future metrics collectors). The bus is nil-safe:
// calling Publish on a nil *Bus is a no-op, so components do not need
// guard checks.
package events

import (
	"sync"
	"time"
)

// Source constants identify which component published an event.
const (
	// SourceAgent identifies events from the turn loop.
	SourceAgent = "agent"
	// SourceOrganizer identifies events from the file organization loop.
	SourceOrganizer = "organizer"
	// SourceExtractor identifies events from memory extraction.
	SourceExtractor = "extractor"
	// SourceChat identifies events from the chat transport.
	SourceChat = "chat"
)

// Kind constants describe the type of event within a source.
const (
	// KindRequestStart signals the beginning of a user turn.
	// Data: request_id, identity.
	KindRequestStart = "request_start"
	// KindToolCall signals the start of a tool batch dispatch.
	// Data: request_id, tools.
	KindToolCall = "tool_call"
	// KindRequestComplete signals the end of a user turn.
	// Data: request_id, identity, tool_calls, elapsed_ms.
	KindRequestComplete = "request_complete"
	// KindRequestFailed signals a turn that ended in a model failure.
	// Data: request_id, identity, error.
	KindRequestFailed = "request_failed"

	// KindOrganizeStart signals the organization loop starting.
	// Data: path.
	KindOrganizeStart = "organize_start"
	// KindOrganizeComplete signals the organization loop finishing.
	// Data: path, rounds.
	KindOrganizeComplete = "organize_complete"

	// KindExtractComplete signals a successful memory extraction pass.
	// Data: identity.
	KindExtractComplete = "extract_complete"
	// KindExtractFailed signals a swallowed extraction failure.
	// Data: identity, error.
	KindExtractFailed = "extract_failed"

	// KindClientConnected signals a chat client connecting.
	// Data: identity, remote.
	KindClientConnected = "client_connected"
	// KindClientDisconnected signals a chat client disconnecting.
	// Data: identity, remote.
	KindClientDisconnected = "client_disconnected"
)

// Event represents a single operational event published by a component.
type Event struct {
	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"ts"`
	// Source identifies the component that published the event.
	Source string `json:"source"`
	// Kind describes the type of event within the source.
	Kind string `json:"kind"`
	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive
// events on buffered channels; slow subscribers miss events rather
// than blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so that
	// Unsubscribe can accept the caller's <-chan Event view.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full — drop the event rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
