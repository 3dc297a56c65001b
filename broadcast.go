package termcast

import "sync"

// DefaultHistoryCap is the default soft cap on retained byte history: large
// enough to cover a generous rows+scrollback+margin budget at worst-case
// width without unbounded growth.
const DefaultHistoryCap = 4 << 20 // 4 MiB

// defaultSubscriberQueueCap bounds the number of queued chunks per
// subscriber before the lag policy in Broadcaster.offer kicks in.
const defaultSubscriberQueueCap = 256

// Broadcaster is a single-producer / many-consumer byte multiplexer. The
// producer is PTY's read loop; consumers are Subscriber handles held by
// session coordinators. The broadcaster never blocks the producer on a slow
// consumer: it drops the oldest queued chunk for that subscriber, marking it
// lagged, and closes the subscriber if it overflows a second time.
type Broadcaster struct {
	mu         sync.Mutex
	history    []byte
	historyCap int
	subs       map[*Subscriber]struct{}
}

// NewBroadcaster returns a Broadcaster retaining at most historyCap bytes of
// history.
func NewBroadcaster(historyCap int) *Broadcaster {
	if historyCap <= 0 {
		historyCap = DefaultHistoryCap
	}
	return &Broadcaster{
		historyCap: historyCap,
		subs:       make(map[*Subscriber]struct{}),
	}
}

// Publish appends chunk to history (trimming the head at a UTF-8 boundary
// if the cap is exceeded) and offers it to every subscriber under the lag
// policy. Bytes are never reinterpreted or reordered.
func (b *Broadcaster) Publish(chunk []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history = append(b.history, chunk...)
	if excess := len(b.history) - b.historyCap; excess > 0 {
		cut := utf8BoundaryAtOrAfter(b.history, excess)
		b.history = append([]byte(nil), b.history[cut:]...)
	}

	for sub := range b.subs {
		b.offer(sub, chunk)
	}
}

// offer delivers chunk to sub's queue, applying the overflow policy. Closed
// subscribers are dropped from the fan-out set.
func (b *Broadcaster) offer(sub *Subscriber, chunk []byte) {
	sub.mu.Lock()
	if sub.closed {
		sub.mu.Unlock()
		return
	}

	if len(sub.queue) >= sub.cap {
		sub.queue = sub.queue[1:]
		if sub.lagged {
			sub.closed = true
			ch := sub.notify
			sub.mu.Unlock()
			close(ch)
			delete(b.subs, sub)
			return
		}
		sub.lagged = true
	}

	sub.queue = append(sub.queue, chunk)
	ch := sub.notify
	sub.notify = make(chan struct{})
	sub.mu.Unlock()
	close(ch)
}

// Subscribe atomically clones the current history and registers a fresh
// subscriber under the same lock that guards Publish, guaranteeing the
// snapshot and subsequent live chunks concatenate to a contiguous,
// non-duplicated suffix of the global stream.
func (b *Broadcaster) Subscribe() (*Subscriber, []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()

	snapshot := append([]byte(nil), b.history...)
	sub := &Subscriber{
		cap:    defaultSubscriberQueueCap,
		notify: make(chan struct{}),
	}
	b.subs[sub] = struct{}{}
	return sub, snapshot
}

// Unsubscribe removes sub from the fan-out set. Safe to call more than once
// and safe to call on an already-closed subscriber.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// CloseAll closes every live subscriber and clears the fan-out set. Called
// once by the PTY read loop when the child process's output stream ends.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for sub := range b.subs {
		sub.mu.Lock()
		if !sub.closed {
			sub.closed = true
			ch := sub.notify
			sub.mu.Unlock()
			close(ch)
		} else {
			sub.mu.Unlock()
		}
	}
	b.subs = make(map[*Subscriber]struct{})
}

// Subscriber is a bounded-capacity ordered queue of byte chunks, created by
// Broadcaster.Subscribe and destroyed on disconnect or overflow-close.
type Subscriber struct {
	mu     sync.Mutex
	queue  [][]byte
	cap    int
	lagged bool
	closed bool
	notify chan struct{}
}

// Wait returns a channel that is closed the next time a chunk is queued or
// the subscriber is closed; each queued chunk puts a fresh channel in place.
// Callers select on it alongside their other event sources and then call
// Pop in a loop.
func (s *Subscriber) Wait() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notify
}

// Pop removes and returns the oldest queued chunk, if any.
func (s *Subscriber) Pop() ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil, false
	}
	chunk := s.queue[0]
	s.queue = s.queue[1:]
	return chunk, true
}

// Closed reports whether the subscriber has been closed, either by the
// broadcaster (repeat overflow, PTY end) or by the owning session.
func (s *Subscriber) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Lagged reports whether this subscriber has ever dropped a chunk.
func (s *Subscriber) Lagged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lagged
}

// utf8BoundaryAtOrAfter returns the smallest index >= at that starts a UTF-8
// code point (or rune-invalid single byte) in buf, so a head-trim never
// splits a multi-byte sequence. Continuation bytes have the high bits 10.
func utf8BoundaryAtOrAfter(buf []byte, at int) int {
	for at < len(buf) && buf[at]&0xC0 == 0x80 {
		at++
	}
	return at
}
