// Package sse implements a Server-Sent Events broker for real-time updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Event types.
const (
	TypeScanStarted   = "scan.started"
	TypeScanProgress  = "scan.progress"
	TypeScanFinished  = "scan.finished"
	TypeReportCreated = "report.created"
	TypeReportUpdated = "report.updated"
	TypeReportDeleted = "report.deleted"
)

const (
	defaultKeepAlive = 15 * time.Second
	clientBuffer     = 64
)

// hub is the state owned by the broker loop.
type hub struct {
	clients      map[chan []byte]struct{}
	seq          uint64
	lastScan     []byte
	lastProgress time.Time
}

// frame encodes ev as one SSE message and fans it out. Slow clients whose
// buffer is full miss the frame.
func (h *hub) frame(ev Event) {
	payload, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	h.seq++
	raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", h.seq, ev.Type, payload))
	if ev.Type == TypeScanStarted || ev.Type == TypeScanFinished {
		h.lastScan = raw
	}
	for ch := range h.clients {
		select {
		case ch <- raw:
		default:
		}
	}
}

// Broker fans scan and report events out to SSE clients.
//
// A single goroutine owns the hub. Public methods hand it closures over ops,
// so no mutexes are required. Every event carries an increasing id, and the
// most recent scan.started or scan.finished frame is replayed to each new
// subscriber so a client that connects mid-scan knows a scan is running.
type Broker struct {
	progressMin time.Duration
	keepAlive   time.Duration

	ops     chan func(*hub)
	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. Scan progress events closer together than
// progressThrottle are dropped.
func NewBroker(progressThrottle time.Duration) *Broker {
	if progressThrottle <= 0 {
		progressThrottle = time.Second
	}
	b := &Broker{
		progressMin: progressThrottle,
		keepAlive:   defaultKeepAlive,
		ops:         make(chan func(*hub), 256),
		stop:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}
	go b.loop()
	return b
}

// WithKeepAlive sets the interval of comment pings on idle streams. Call it
// before serving.
func (b *Broker) WithKeepAlive(d time.Duration) *Broker {
	if d > 0 {
		b.keepAlive = d
	}
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)
	h := &hub{clients: make(map[chan []byte]struct{})}
	for {
		select {
		case <-b.stop:
			for ch := range h.clients {
				close(ch)
			}
			return
		case op := <-b.ops:
			op(h)
		}
	}
}

// submit queues op for the loop. It reports false once the broker is closed.
func (b *Broker) submit(op func(*hub)) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.ops <- op:
		return true
	case <-b.stopped:
		return false
	}
}

// Close stops the loop and closes every subscriber channel.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stop)
	}
	<-b.stopped
}

// Subscribe registers a client. The returned channel is closed on Unsubscribe
// or Close.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	added := make(chan struct{})
	ok := b.submit(func(h *hub) {
		h.clients[ch] = struct{}{}
		if h.lastScan != nil {
			ch <- h.lastScan
		}
		close(added)
	})
	if ok {
		select {
		case <-added:
			return ch
		case <-b.stopped:
		}
	}
	// The loop closes registered channels on shutdown; only close ours if it
	// never got registered.
	select {
	case <-added:
	default:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.submit(func(h *hub) {
		if _, ok := h.clients[ch]; ok {
			delete(h.clients, ch)
			close(ch)
		}
	})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !b.submit(func(h *hub) { resp <- len(h.clients) }) {
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(ev Event) {
	b.submit(func(h *hub) { h.frame(ev) })
}

// PublishReportEvent publishes a report file change. kind is one of created,
// updated or deleted; anything else is ignored.
func (b *Broker) PublishReportEvent(kind, path string) {
	var typ string
	switch kind {
	case "created":
		typ = TypeReportCreated
	case "updated":
		typ = TypeReportUpdated
	case "deleted":
		typ = TypeReportDeleted
	default:
		return
	}
	b.Publish(Event{Type: typ, Data: map[string]string{"path": path}})
}

// PublishProgress publishes a throttled scan.progress event.
func (b *Broker) PublishProgress(stage, message string) {
	b.submit(func(h *hub) {
		now := time.Now()
		if now.Sub(h.lastProgress) < b.progressMin {
			return
		}
		h.lastProgress = now
		h.frame(Event{Type: TypeScanProgress, Data: map[string]string{"stage": stage, "message": message}})
	})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
