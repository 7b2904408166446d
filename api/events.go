package api

import (
	"bufio"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/papercomputeco/engram/pkg/sse"
	"github.com/papercomputeco/engram/pkg/window"
)

// subscriberBuffer sizes each SSE client's event channel. A client that
// falls this far behind misses events, matching the window's own
// non-blocking observer policy.
const subscriberBuffer = 64

// keepAliveInterval paces SSE comments on idle streams so intermediaries
// do not reap the connection.
const keepAliveInterval = 15 * time.Second

// eventBroker fans the engine's single window event channel out to any
// number of SSE subscribers. Without it concurrent clients would compete
// for reads and each see only a slice of the feed.
type eventBroker struct {
	mu      sync.Mutex
	clients map[chan window.Event]struct{}

	done     chan struct{}
	stopOnce sync.Once
}

func newEventBroker() *eventBroker {
	return &eventBroker{
		clients: make(map[chan window.Event]struct{}),
		done:    make(chan struct{}),
	}
}

// run pumps events from source to every subscriber until stop is called.
// Subscriber sends are non-blocking: a stalled client misses events
// instead of stalling the feed.
func (b *eventBroker) run(source <-chan window.Event) {
	for {
		select {
		case <-b.done:
			return
		case ev := <-source:
			b.mu.Lock()
			for ch := range b.clients {
				select {
				case ch <- ev:
				default:
				}
			}
			b.mu.Unlock()
		}
	}
}

// subscribe registers a new client channel. The returned cancel func
// removes the subscription; events arriving after cancel are discarded.
func (b *eventBroker) subscribe() (<-chan window.Event, func()) {
	ch := make(chan window.Event, subscriberBuffer)

	b.mu.Lock()
	b.clients[ch] = struct{}{}
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
	}

	return ch, cancel
}

// stop ends the pump loop. Subscriber channels stay open so in-flight
// reads drain cleanly.
func (b *eventBroker) stop() {
	b.stopOnce.Do(func() {
		close(b.done)
	})
}

// handleWindowEvents streams window admissions and evictions as SSE.
// The SSE event type mirrors the window event type and the data payload
// is the JSON-encoded event.
func (s *Server) handleWindowEvents(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	events, cancel := s.broker.subscribe()

	s.logger.Debug("window event stream opened")

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()

		enc := sse.NewWriter(w)

		// Open with a comment so clients see the stream is live before
		// the first window event lands.
		if err := enc.WriteComment("connected"); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}

		keepAlive := time.NewTicker(keepAliveInterval)
		defer keepAlive.Stop()

		for {
			select {
			case ev := <-events:
				data, err := json.Marshal(ev)
				if err != nil {
					return
				}
				if err := enc.WriteEvent(&sse.Event{Type: string(ev.Type), Data: string(data)}); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			case <-keepAlive.C:
				// Write errors here mean the client went away.
				if err := enc.WriteComment("keep-alive"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}
