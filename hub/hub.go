// Package hub contains everything used to serve the queue to browsers: the Hub that holds the one live
// subscription on the queue collection and fans its snapshots out, and the websocket Connector that
// gives every connection its own identity session and queue membership.
package hub

import (
	"context"
	"sync"

	log "queueserver/cloudlog"
	"queueserver/collections"
	"queueserver/queue"
)

// Type definitions mostly to facilitate testing; can drop in a faked struct without relying on
// the underlying Firestore dependencies.
type watcher interface {
	WatchQueue(ctx context.Context, fn func([]collections.QueueEntry)) error
}

// Subscriber receives the updates of a Hub. Only the newest update is kept: a subscriber that falls
// behind skips straight to the latest snapshot.
type Subscriber struct {
	updates chan queue.Update
}

// Updates is closed when the subscriber is unsubscribed or the hub stops.
func (s *Subscriber) Updates() <-chan queue.Update {
	return s.updates
}

// Hub maintains the set of subscribers and sends every snapshot of the queue collection to them.
type Hub struct {
	db watcher

	// Registered subscribers.
	subscribers map[*Subscriber]bool

	// Register requests.
	register chan *Subscriber

	// Unregister requests.
	unregister chan *Subscriber

	// Updates from the queue listener.
	inbound chan queue.Update

	// The last good update, handed to new subscribers.
	latest *queue.Update

	// Closed once Run has returned; registration after that gives a closed subscriber.
	done chan struct{}

	// Set by Run once the listener has stopped.
	mu       sync.Mutex
	watchErr error
}

// NewHub returns a Hub that listens to db once Run is called.
func NewHub(db watcher) *Hub {
	return &Hub{
		db:          db,
		subscribers: make(map[*Subscriber]bool),
		register:    make(chan *Subscriber),
		unregister:  make(chan *Subscriber),
		inbound:     make(chan queue.Update),
		done:        make(chan struct{}),
	}
}

// Run starts the queue listener and serves subscribers until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	log.Print("start queue hub")
	go h.watch(ctx)
	defer func() {
		for sub := range h.subscribers {
			delete(h.subscribers, sub)
			close(sub.updates)
		}
		close(h.done)
		log.Print("close queue hub")
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case sub := <-h.register:
			h.subscribers[sub] = true
			if update, ok := h.current(); ok {
				deliver(sub, update)
			}
		case sub := <-h.unregister:
			if _, ok := h.subscribers[sub]; ok {
				delete(h.subscribers, sub)
				close(sub.updates)
			}
		case update := <-h.inbound:
			if update.Err == nil {
				latest := update
				h.latest = &latest
			} else {
				h.mu.Lock()
				h.watchErr = update.Err
				h.mu.Unlock()
				if h.latest != nil {
					update.View = h.latest.View
				}
			}
			for sub := range h.subscribers {
				deliver(sub, update)
			}
		}
	}
}

// Subscribe registers a new subscriber. It gets the latest snapshot right away when there is one,
// along with the listener error if the listener has stopped.
func (h *Hub) Subscribe() *Subscriber {
	sub := &Subscriber{updates: make(chan queue.Update, 1)}
	select {
	case h.register <- sub:
	case <-h.done:
		close(sub.updates)
	}
	return sub
}

// Unsubscribe removes sub and closes its channel.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}
	select {
	case h.unregister <- sub:
	case <-h.done:
	}
}

// current is what a new subscriber starts from: the last good view, together with the listener
// error once the listener has stopped.
func (h *Hub) current() (queue.Update, bool) {
	var update queue.Update
	if h.latest != nil {
		update.View = h.latest.View
	}
	h.mu.Lock()
	update.Err = h.watchErr
	h.mu.Unlock()
	return update, h.latest != nil || update.Err != nil
}

// Err returns the error that stopped the queue listener, if it stopped.
func (h *Hub) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.watchErr
}

// watch runs the listener. The Firestore client retries transient failures itself, so an error
// here ends the subscription for good. Run records it and reports it to every subscriber,
// including the ones that come later.
func (h *Hub) watch(ctx context.Context) {
	err := h.db.WatchQueue(ctx, func(entries []collections.QueueEntry) {
		h.publish(ctx, queue.Update{View: queue.BuildView(entries)})
	})
	if err == nil {
		return
	}
	log.Printf("Queue listener stopped: %v", err)
	h.publish(ctx, queue.Update{Err: err})
}

func (h *Hub) publish(ctx context.Context, update queue.Update) {
	select {
	case h.inbound <- update:
	case <-ctx.Done():
	}
}

// deliver replaces whatever update sub hasn't read yet with update. Only the hub sends on
// sub.updates, so the last send can't block.
func deliver(sub *Subscriber, update queue.Update) {
	select {
	case sub.updates <- update:
		return
	default:
	}
	select {
	case <-sub.updates:
	default:
	}
	sub.updates <- update
}
