package wsbridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/adityalohuni/browser-bridge/internal/protocol"
)

const (
	// MaxPending bounds the pending-request table. Inserting past the
	// bound evicts the oldest entry with a back-pressure rejection.
	MaxPending = 50
	// MaxWait caps every request regardless of the caller's own timeout.
	MaxWait = 60 * time.Second

	staleAfter    = 60 * time.Second
	sweepPeriod   = 15 * time.Second
	warnThreshold = 5
)

// targetKind records where a request was routed so the right pendings
// reject when that peer goes away.
type targetKind int

const (
	targetController targetKind = iota
	targetAgent
	// targetServer is the peer-client case: every request rides the one
	// socket to the bridge server.
	targetServer
)

type result struct {
	frame protocol.Frame
	err   error
}

type pending struct {
	id        string
	seq       uint64
	sessionID string
	target    targetKind
	createdAt time.Time
	ch        chan result
}

// Stats counts correlator outcomes since start.
type Stats struct {
	Issued   uint64 `json:"issued"`
	Resolved uint64 `json:"resolved"`
	Rejected uint64 `json:"rejected"`
	Evicted  uint64 `json:"evicted"`
	Stale    uint64 `json:"stale"`
}

// Correlator owns the pending-request table: it mints request ids, holds
// the completion channels, evicts on overflow, and sweeps stale entries.
// Every registered request completes exactly once, by resolve or reject.
type Correlator struct {
	log *slog.Logger

	mu      sync.Mutex
	seq     uint64
	entries map[string]*pending
	stats   Stats

	stop     chan struct{}
	stopOnce sync.Once
}

func NewCorrelator(log *slog.Logger) *Correlator {
	c := &Correlator{
		log:     log,
		entries: make(map[string]*pending),
		stop:    make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

// register mints an id scoped by session (bg_ for the background sentinel,
// req_ otherwise) and parks a completion channel for it.
func (c *Correlator) register(sessionID string, target targetKind) (string, chan result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	c.stats.Issued++
	prefix := "req"
	if sessionID == protocol.BackgroundSessionID {
		prefix = "bg"
	}
	id := fmt.Sprintf("%s_%d_%d", prefix, c.seq, time.Now().UnixMilli())
	if len(c.entries) >= MaxPending {
		c.evictOldestLocked()
	}
	e := &pending{
		id:        id,
		seq:       c.seq,
		sessionID: sessionID,
		target:    target,
		createdAt: time.Now(),
		ch:        make(chan result, 1),
	}
	c.entries[id] = e
	return id, e.ch
}

// evictOldestLocked drops the entry with the oldest embedded timestamp,
// sequence number breaking ties.
func (c *Correlator) evictOldestLocked() {
	var oldest *pending
	for _, e := range c.entries {
		if oldest == nil || e.createdAt.Before(oldest.createdAt) ||
			(e.createdAt.Equal(oldest.createdAt) && e.seq < oldest.seq) {
			oldest = e
		}
	}
	if oldest == nil {
		return
	}
	delete(c.entries, oldest.id)
	c.stats.Evicted++
	oldest.ch <- result{err: fmt.Errorf("%w: evicted for a newer request", ErrBackPressure)}
}

// resolve completes a pending with a response frame. Unknown ids report
// false; the caller drops those silently as late arrivals.
func (c *Correlator) resolve(f protocol.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[f.RequestID]
	if !ok {
		return false
	}
	delete(c.entries, f.RequestID)
	c.stats.Resolved++
	e.ch <- result{frame: f}
	return true
}

// reject completes a pending with an error.
func (c *Correlator) reject(id string, err error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return false
	}
	delete(c.entries, id)
	c.stats.Rejected++
	e.ch <- result{err: err}
	return true
}

// rejectWhere rejects every pending the predicate selects, returning how
// many were hit. Used for disconnect cascades.
func (c *Correlator) rejectWhere(pred func(sessionID string, target targetKind) bool, err error) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for id, e := range c.entries {
		if !pred(e.sessionID, e.target) {
			continue
		}
		delete(c.entries, id)
		c.stats.Rejected++
		e.ch <- result{err: err}
		n++
	}
	return n
}

// await blocks until the pending completes, the caller's context ends, or
// the global cap elapses. Completions race the timeout; the pending path
// wins when both fire.
func (c *Correlator) await(ctx context.Context, id string, ch chan result, label string) (protocol.Frame, error) {
	timer := time.NewTimer(MaxWait)
	defer timer.Stop()
	select {
	case r := <-ch:
		return r.frame, r.err
	case <-ctx.Done():
		err := fmt.Errorf("%s: %w (%w)", label, ErrTimeout, ctx.Err())
		if !c.reject(id, err) {
			r := <-ch
			return r.frame, r.err
		}
		return protocol.Frame{}, err
	case <-timer.C:
		err := fmt.Errorf("%s after %s: %w", label, MaxWait, ErrTimeout)
		if !c.reject(id, err) {
			r := <-ch
			return r.frame, r.err
		}
		return protocol.Frame{}, err
	}
}

func (c *Correlator) sweepLoop() {
	ticker := time.NewTicker(sweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.sweep(time.Now())
		case <-c.stop:
			return
		}
	}
}

// sweep rejects entries older than the stale threshold and logs when the
// table is running deep.
func (c *Correlator) sweep(now time.Time) {
	c.mu.Lock()
	var expired []*pending
	for id, e := range c.entries {
		if now.Sub(e.createdAt) > staleAfter {
			delete(c.entries, id)
			c.stats.Stale++
			c.stats.Rejected++
			expired = append(expired, e)
		}
	}
	depth := len(c.entries)
	for _, e := range expired {
		e.ch <- result{err: fmt.Errorf("%s: %w", e.id, ErrStale)}
	}
	c.mu.Unlock()

	if len(expired) > 0 {
		c.log.Warn("rejected stale pending requests", "count", len(expired), "threshold", staleAfter.String())
	}
	if depth > warnThreshold {
		c.log.Warn("pending request table is deep", "depth", depth, "limit", MaxPending)
	}
}

// Depth reports the current number of pendings.
func (c *Correlator) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns the running counters.
func (c *Correlator) Snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Close stops the sweeper and rejects everything still pending.
func (c *Correlator) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
	c.rejectWhere(func(string, targetKind) bool { return true },
		fmt.Errorf("%w: bridge shutting down", ErrPeerGone))
}
