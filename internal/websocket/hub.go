package websocket

import (
	"context"
	"encoding/json"

	"github.com/golang/glog"

	"im-sync/internal/state"
)

// Hub fans LocalState changes out to local subscribers, such as a UI
// attached to GET /events.
type Hub struct {
	// Registered subscribers.
	subscribers map[*Subscriber]struct{}

	// Encoded changes to broadcast.
	broadcast chan []byte

	register   chan *Subscriber
	unregister chan *Subscriber

	// Closed when Run returns.
	done chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]struct{}),
		broadcast:   make(chan []byte, 256),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		done:        make(chan struct{}),
	}
}

// Attach publishes every change of st until the returned function is called.
func (h *Hub) Attach(st *state.LocalState) (detach func()) {
	return st.Subscribe(h.Publish)
}

// Publish queues c for every subscriber. It never blocks: when the hub is
// behind, the change is dropped.
func (h *Hub) Publish(c state.Change) {
	data, err := json.Marshal(c)
	if err != nil {
		glog.Errorf("hub: encode %s change: %v", c.Kind, err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		glog.Warningf("hub: broadcast queue full, dropping %s change", c.Kind)
	}
}

// Run serves the hub until ctx is done, then closes every subscriber.
func (h *Hub) Run(ctx context.Context) {
	glog.V(1).Info("hub: run loop started")
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for s := range h.subscribers {
				delete(h.subscribers, s)
				close(s.send)
			}
			glog.V(1).Info("hub: run loop stopped")
			return

		case s := <-h.register:
			h.subscribers[s] = struct{}{}
			glog.V(1).Infof("hub: subscriber %s registered", s.remote)

		case s := <-h.unregister:
			if _, ok := h.subscribers[s]; ok {
				delete(h.subscribers, s)
				close(s.send)
				glog.V(1).Infof("hub: subscriber %s unregistered", s.remote)
			}

		case data := <-h.broadcast:
			for s := range h.subscribers {
				select {
				case s.send <- data:
				default:
					glog.Warningf("hub: subscriber %s is too slow, closing it", s.remote)
					delete(h.subscribers, s)
					close(s.send)
				}
			}
		}
	}
}

func (h *Hub) add(s *Subscriber) bool {
	select {
	case h.register <- s:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) remove(s *Subscriber) {
	select {
	case h.unregister <- s:
	case <-h.done:
	}
}
