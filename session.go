package termcast

import (
	"context"
	"sync"
	"time"
)

// batchInterval is the ~10ms outbound batching cadence spec.md §4.5
// mandates: below human-perceptible latency, above the cost of coalescing
// a typical PTY output burst into one frame.
const batchInterval = 10 * time.Millisecond

// Transport is the small capability abstraction spec.md §9 calls for: a
// message-oriented duplex channel between a coordinator and one viewer,
// implemented for real viewers by a websocket connection and for tests by
// an in-memory fake.
type Transport interface {
	SendBinary(p []byte) error
	SendText(p []byte) error
	Recv() ([]byte, error)
	Close() error
}

// sizeCell is the shared (rows, cols) pair spec.md §3 and §5 describe:
// single-writer (the Resize handler), many-reader (the trimmer), guarded by
// a mutex rather than a channel since every read needs the latest value
// with no ordering relative to other state.
type sizeCell struct {
	mu   sync.RWMutex
	rows int
	cols int
}

func newSizeCell(rows, cols int) *sizeCell {
	return &sizeCell{rows: rows, cols: cols}
}

func (s *sizeCell) get() (rows, cols int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rows, s.cols
}

func (s *sizeCell) set(rows, cols int) {
	s.mu.Lock()
	s.rows, s.cols = rows, cols
	s.mu.Unlock()
}

// Session is the per-viewer state machine of spec.md §4.5: it subscribes
// to a PTY's broadcaster, batches outbound bytes on a fixed tick, trims the
// batch to a safe suffix before sending, forwards viewer input to the PTY,
// and records every Input/Output/Resize event to a Transcript.
type Session struct {
	pty        *PTY
	transcript *Transcript
	transport  Transport
	size       *sizeCell
	scrollback int

	sessionStart time.Time
}

// NewSession constructs a Session. cfg.Rows/cfg.Cols seed the initial size
// cell; cfg.Scrollback is the backscroll budget passed to Trim on every
// batch.
func NewSession(pty *PTY, transcript *Transcript, transport Transport, cfg Config) *Session {
	return &Session{
		pty:          pty,
		transcript:   transcript,
		transport:    transport,
		size:         newSizeCell(cfg.Rows, cfg.Cols),
		scrollback:   cfg.Scrollback,
		sessionStart: transcript.SessionStart(),
	}
}

// Run drives the session to completion: Opening then Running, per spec.md
// §4.5. It returns when the viewer disconnects, the transport errors, the
// PTY's broadcaster closes the subscription, or ctx is canceled.
func (s *Session) Run(ctx context.Context) error {
	sub, snapshot := s.pty.Subscribe()
	defer s.pty.Unsubscribe(sub)

	if len(snapshot) > 0 {
		if err := s.transport.SendBinary(snapshot); err != nil {
			return err
		}
	}

	return s.runLoop(ctx, sub)
}

// runLoop implements the Running state: concurrently await a live chunk,
// the batching tick, and a viewer message.
func (s *Session) runLoop(ctx context.Context, sub *Subscriber) error {
	ticker := time.NewTicker(batchInterval)
	defer ticker.Stop()

	var outbound []byte

	msgs := make(chan []byte)
	recvErrs := make(chan error, 1)
	go s.recvLoop(ctx, msgs, recvErrs)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-sub.Wait():
			for {
				chunk, ok := sub.Pop()
				if !ok {
					break
				}
				outbound = append(outbound, chunk...)
			}
			if sub.Closed() {
				return nil
			}

		case <-ticker.C:
			if len(outbound) == 0 {
				continue
			}
			rows, cols := s.size.get()
			start := Trim(outbound, rows, cols, s.scrollback)
			sendable := outbound[start:]
			elapsed := s.elapsed()
			s.transcript.RecordOutput(elapsed, sendable)
			if err := s.transport.SendBinary(sendable); err != nil {
				return err
			}
			outbound = nil

		case raw := <-msgs:
			if err := s.handleMessage(raw); err != nil {
				return err
			}

		case err := <-recvErrs:
			return err
		}
	}
}

// recvLoop repeatedly calls transport.Recv, forwarding each frame to msgs
// and terminating on the first error (viewer gone or underlying transport
// failure).
func (s *Session) recvLoop(ctx context.Context, msgs chan<- []byte, errs chan<- error) {
	for {
		raw, err := s.transport.Recv()
		if err != nil {
			errs <- err
			return
		}
		select {
		case msgs <- raw:
		case <-ctx.Done():
			return
		}
	}
}

// handleMessage dispatches one decoded viewer frame per spec.md §4.5 and
// §6. Malformed frames are dropped, not fatal, per spec.md §7.
func (s *Session) handleMessage(raw []byte) error {
	msg, err := Decode(raw)
	if err != nil {
		return nil
	}

	switch m := msg.(type) {
	case DataMsg:
		elapsed := s.elapsed()
		payload := []byte(m.Value)
		s.transcript.RecordInput(elapsed, payload)
		_, err := s.pty.Write(payload)
		return err

	case ResizeMsg:
		elapsed := s.elapsed()
		s.transcript.RecordResize(elapsed, EncodeResizePayload(m.Rows, m.Cols))
		if err := s.pty.Resize(int(m.Rows), int(m.Cols)); err != nil {
			return err
		}
		s.size.set(int(m.Rows), int(m.Cols))
		return nil

	case HeartbeatMsg:
		s.transcript.RecordHeartbeat(uint32(time.Now().Unix()))
		return s.transport.SendText(HeartbeatPong())

	default:
		return nil
	}
}

func (s *Session) elapsed() float32 {
	return float32(time.Since(s.sessionStart).Seconds())
}
