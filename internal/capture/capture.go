// Package capture holds the bounded-buffer data model shared by the browser
// capture pipelines and the bridge's own per-session event history. Buffers
// are rings of at most MaxEntries items with FIFO eviction; websocket frame
// payloads are truncated to MaxPayloadBytes before buffering.
package capture

import (
	"encoding/json"
	"sync"
)

const (
	// MaxEntries bounds every capture buffer.
	MaxEntries = 1000
	// MaxPayloadBytes caps a buffered websocket frame payload.
	MaxPayloadBytes = 10 * 1024
)

// NetworkLogEntry pairs a request with its response by the provider-supplied
// request id.
type NetworkLogEntry struct {
	RequestID    string `json:"requestId"`
	URL          string `json:"url"`
	Method       string `json:"method,omitempty"`
	Status       int    `json:"status,omitempty"`
	MimeType     string `json:"mimeType,omitempty"`
	RequestTime  int64  `json:"requestTime,omitempty"`
	ResponseTime int64  `json:"responseTime,omitempty"`
	Failed       bool   `json:"failed,omitempty"`
	ErrorText    string `json:"errorText,omitempty"`
}

// ConsoleLogEntry is one console message with the head of its stack trace.
type ConsoleLogEntry struct {
	Level     string `json:"level"`
	Text      string `json:"text"`
	URL       string `json:"url,omitempty"`
	Line      int    `json:"line,omitempty"`
	StackHead string `json:"stackHead,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// WebSocketFrameEntry is one captured frame with direction and a payload
// truncated to MaxPayloadBytes.
type WebSocketFrameEntry struct {
	URL       string `json:"url,omitempty"`
	Direction string `json:"direction"`
	Opcode    int    `json:"opcode,omitempty"`
	Payload   string `json:"payload,omitempty"`
	Truncated bool   `json:"truncated,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`
}

// TruncatePayload enforces the frame payload cap and reports whether the
// payload was cut.
func TruncatePayload(payload string) (string, bool) {
	if len(payload) <= MaxPayloadBytes {
		return payload, false
	}
	return payload[:MaxPayloadBytes], true
}

// TruncateRaw caps an arbitrary JSON payload the same way. Cutting at a byte
// offset would split a JSON token, so the kept head is re-encoded as a JSON
// string: the result always marshals again.
func TruncateRaw(raw json.RawMessage) (json.RawMessage, bool) {
	if len(raw) <= MaxPayloadBytes {
		return raw, false
	}
	// Marshaling a string cannot fail; invalid UTF-8 is replaced.
	cut, _ := json.Marshal(string(raw[:MaxPayloadBytes]))
	return cut, true
}

// Ring is a bounded FIFO buffer. totalAdded counts every append and is never
// decremented, so callers can detect eviction between reads.
type Ring[T any] struct {
	mu         sync.RWMutex
	entries    []T
	capacity   int
	totalAdded int64
}

// NewRing returns a ring with the given capacity; non-positive capacities
// fall back to MaxEntries.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = MaxEntries
	}
	return &Ring[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Add appends an entry, evicting the oldest when the ring is full.
func (r *Ring[T]) Add(entry T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) >= r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
	}
	r.entries = append(r.entries, entry)
	r.totalAdded++
}

// Snapshot returns the buffered entries oldest-first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len reports the current entry count.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// TotalAdded reports the monotonic append count, eviction included.
func (r *Ring[T]) TotalAdded() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.totalAdded
}

// Clear drops all buffered entries without resetting TotalAdded.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = r.entries[:0]
}
