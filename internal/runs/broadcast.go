package runs

import (
	"sync"

	"github.com/onnwee/nbody-barneshut/backend/internal/metrics"
)

// subscriberBuffer is how many frames a slow client may lag behind before
// frames are dropped for it.
const subscriberBuffer = 32

// Message is one websocket payload. Frames are binary msgpack, the closing
// summary is JSON text.
type Message struct {
	Binary bool
	Data   []byte
}

// Subscription delivers the messages of one run. C is closed after the
// final message.
type Subscription struct {
	C <-chan Message

	ch chan Message
	b  *broadcaster
}

// Close detaches the subscription. It is safe to call more than once and
// after the run has finished.
func (s *Subscription) Close() {
	s.b.remove(s)
}

// broadcaster fans messages of a single run out to its subscribers.
type broadcaster struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[*Subscription]struct{})}
}

func (b *broadcaster) subscribe() (*Subscription, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, false
	}
	ch := make(chan Message, subscriberBuffer)
	s := &Subscription{C: ch, ch: ch, b: b}
	b.subs[s] = struct{}{}
	metrics.WebSocketConnections.Inc()
	return s, true
}

func (b *broadcaster) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[s]; ok {
		delete(b.subs, s)
		close(s.ch)
		metrics.WebSocketConnections.Dec()
	}
}

func (b *broadcaster) active() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs) > 0
}

// publish delivers msg to every subscriber with room for it.
func (b *broadcaster) publish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		select {
		case s.ch <- msg:
			metrics.WebSocketMessagesSent.Inc()
		default:
			metrics.WebSocketMessagesDropped.Inc()
		}
	}
}

// finish delivers the final message, evicting the oldest queued frame when
// a buffer is full, and closes every subscription.
func (b *broadcaster) finish(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for s := range b.subs {
		select {
		case s.ch <- msg:
		default:
			select {
			case <-s.ch:
				metrics.WebSocketMessagesDropped.Inc()
			default:
			}
			s.ch <- msg
		}
		metrics.WebSocketMessagesSent.Inc()
		close(s.ch)
		delete(b.subs, s)
		metrics.WebSocketConnections.Dec()
	}
}
