// Package sse implements a Server-Sent Events broker that streams note
// lifecycle and graph refresh events to connected clients.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event is a single SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// noteChange carries one indexer change into the broker loop.
type noteChange struct {
	kind string
	path string
}

// validKinds are the change kinds the indexer reports.
var validKinds = map[string]struct{}{
	"created": {},
	"updated": {},
	"deleted": {},
}

// Broker fans events out to every connected SSE client.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable
// state (clients + graph throttle timestamp). Public methods communicate with
// this loop through channels, so no mutexes are required.
type Broker struct {
	graphMin time.Duration

	joinCh   chan chan []byte
	leaveCh  chan chan []byte
	eventCh  chan Event
	changeCh chan noteChange
	countCh  chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates an SSE broker. graphThrottle is the minimum interval
// between graph.updated events; note events are never throttled.
func NewBroker(graphThrottle time.Duration) *Broker {
	if graphThrottle <= 0 {
		graphThrottle = 2 * time.Second
	}

	b := &Broker{
		graphMin: graphThrottle,
		joinCh:   make(chan chan []byte),
		leaveCh:  make(chan chan []byte),
		eventCh:  make(chan Event, 256),
		changeCh: make(chan noteChange, 256),
		countCh:  make(chan chan int),
		stopCh:   make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	go b.loop()
	return b
}

// fanout renders an event as an SSE frame and offers it to every client.
// Clients whose buffer is full are skipped; the loop never blocks on a slow
// reader.
func fanout(clients map[chan []byte]struct{}, e Event) {
	payload, err := json.Marshal(e.Data)
	if err != nil {
		return
	}
	raw := fmt.Appendf(nil, "event: %s\ndata: %s\n\n", e.Type, payload)

	for ch := range clients {
		select {
		case ch <- raw:
		default:
		}
	}
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var graphSentAt time.Time

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.joinCh:
			clients[ch] = struct{}{}

		case ch := <-b.leaveCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case e := <-b.eventCh:
			fanout(clients, e)

		case c := <-b.changeCh:
			if _, ok := validKinds[c.kind]; !ok {
				continue
			}
			fanout(clients, Event{Type: "note." + c.kind, Data: map[string]string{"path": c.path}})

			// Any note change may move links around, so the graph is
			// refreshed too, at most once per throttle window.
			if now := time.Now(); now.Sub(graphSentAt) >= b.graphMin {
				graphSentAt = now
				fanout(clients, Event{Type: "graph.updated", Data: map[string]string{}})
			}

		case resp := <-b.countCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops the broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a client and returns the channel its events arrive
// on.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.joinCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe detaches a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.leaveCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount reports how many clients are connected.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an arbitrary event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.eventCh <- event:
	case <-b.stopped:
	}
}

// PublishNoteEvent publishes a note.<kind> event plus a throttled
// graph.updated. Its signature matches the indexer's change callback, so the
// broker method can be wired in directly.
func (b *Broker) PublishNoteEvent(kind, path string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- noteChange{kind: kind, path: path}:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client until it disconnects or the
// broker closes.
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

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
