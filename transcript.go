package termcast

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"time"
)

// EventKind tags a recorded transcript event.
type EventKind uint8

const (
	Input  EventKind = 0
	Output EventKind = 1
	Resize EventKind = 2
)

// compressedFlag is bit 7 of the on-disk flags byte: set when the stored
// payload is a flate-compressed frame of the logical payload.
const compressedFlag = 0x80

// compressThreshold is the logical payload size above which the recorder
// compresses before writing, per spec.md §4.4.
const compressThreshold = 256

// Event is one raw transcript record: a typed payload with an elapsed-time
// stamp relative to session start.
type Event struct {
	Elapsed float32
	Kind    EventKind
	Payload []byte
}

// eventQueueCap and heartbeatQueueCap bound the in-memory channels the
// public API enqueues onto. A full channel means the writer task has
// fallen behind; per spec.md §7 ("Channel send failure on the recorder
// API"), the enqueue is dropped rather than blocking the caller.
const (
	eventQueueCap     = 1024
	heartbeatQueueCap = 256
)

// Transcript is the asynchronous single-writer sink of spec.md §4.4. Its
// public methods are non-blocking and fire-and-forget; a dedicated
// goroutine drains both channels and owns the underlying files exclusively.
type Transcript struct {
	events     chan Event
	heartbeats chan uint32
	done       chan struct{}

	sessionStart time.Time

	verbose         bool
	verboseInterval time.Duration
	castLineOut     io.Writer
	accum           bytes.Buffer
}

// NewTranscript opens (creating/truncating) the cast file and heartbeat
// sidecar named in cfg and starts the writer goroutine. castLineOut
// receives the verbose-telemetry structured log lines (spec.md §4.4); pass
// os.Stdout in production, matching spec.md §6's "process's standard
// output".
func NewTranscript(cfg Config, castLineOut io.Writer) (*Transcript, error) {
	castFile, err := os.OpenFile(cfg.CastPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("termcast: open cast file: %w", err)
	}
	hbFile, err := os.OpenFile(cfg.HeartbeatPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		castFile.Close()
		return nil, fmt.Errorf("termcast: open heartbeat file: %w", err)
	}

	t := &Transcript{
		events:          make(chan Event, eventQueueCap),
		heartbeats:      make(chan uint32, heartbeatQueueCap),
		done:            make(chan struct{}),
		sessionStart:    time.Now(),
		verbose:         cfg.VerboseLog,
		verboseInterval: cfg.VerboseInterval,
		castLineOut:     castLineOut,
	}
	go t.run(castFile, hbFile)
	return t, nil
}

// SessionStart reports the wall-clock time the transcript was opened, used
// by callers to compute each event's elapsed seconds.
func (t *Transcript) SessionStart() time.Time {
	return t.sessionStart
}

// RecordInput enqueues an Input event. Enqueue failures are silently
// dropped per spec.md §7.
func (t *Transcript) RecordInput(elapsed float32, payload []byte) {
	t.record(Event{Elapsed: elapsed, Kind: Input, Payload: payload})
}

// RecordOutput enqueues an Output event.
func (t *Transcript) RecordOutput(elapsed float32, payload []byte) {
	t.record(Event{Elapsed: elapsed, Kind: Output, Payload: payload})
}

// RecordResize enqueues a Resize event. payload must be the 4-byte
// rows‖cols encoding spec.md §3 defines; EncodeResizePayload produces it.
func (t *Transcript) RecordResize(elapsed float32, payload []byte) {
	t.record(Event{Elapsed: elapsed, Kind: Resize, Payload: payload})
}

func (t *Transcript) record(e Event) {
	select {
	case t.events <- e:
	default:
	}
}

// RecordHeartbeat enqueues a heartbeat timestamp (seconds since Unix
// epoch).
func (t *Transcript) RecordHeartbeat(unixSeconds uint32) {
	select {
	case t.heartbeats <- unixSeconds:
	default:
	}
}

// Close stops the writer goroutine and closes both underlying files. It
// blocks until any events already queued have been flushed.
func (t *Transcript) Close() {
	close(t.events)
	<-t.done
}

// EncodeResizePayload produces the 4-byte rows‖cols payload spec.md §3
// mandates for Resize events.
func EncodeResizePayload(rows, cols uint16) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint16(b[0:2], rows)
	binary.LittleEndian.PutUint16(b[2:4], cols)
	return b
}

// run drains both channels until events is closed, then closes hbFile and
// castFile and signals done. It owns both files exclusively for their
// lifetime.
func (t *Transcript) run(castFile, hbFile *os.File) {
	defer close(t.done)
	defer castFile.Close()
	defer hbFile.Close()

	var tick <-chan time.Time
	if t.verbose {
		ticker := time.NewTicker(t.verboseInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case e, ok := <-t.events:
			if !ok {
				t.drainHeartbeats(hbFile)
				return
			}
			t.writeEvent(castFile, e)

		case ts := <-t.heartbeats:
			writeHeartbeat(hbFile, ts)

		case <-tick:
			t.flushVerbose()
		}
	}
}

// drainHeartbeats flushes any heartbeats still queued once events has
// closed, so a Close doesn't silently lose already-enqueued heartbeats.
func (t *Transcript) drainHeartbeats(hbFile *os.File) {
	for {
		select {
		case ts := <-t.heartbeats:
			writeHeartbeat(hbFile, ts)
		default:
			return
		}
	}
}

// writeEvent encodes e per the on-disk layout of spec.md §4.4 and appends
// it to castFile, flushing so a crash loses at most the in-flight kernel
// buffer. A write error is logged; the writer continues (recorder I/O
// errors are non-fatal, per spec.md §7).
func (t *Transcript) writeEvent(castFile *os.File, e Event) {
	frame := EncodeEvent(e)
	if t.verbose {
		t.accum.Write(frame)
	}
	if _, err := castFile.Write(frame); err != nil {
		Log.Error("transcript: cast write failed", "error", err)
		return
	}
	if err := castFile.Sync(); err != nil {
		Log.Error("transcript: cast sync failed", "error", err)
	}
}

// writeHeartbeat appends a raw 4-byte LE u32 heartbeat record and flushes.
func writeHeartbeat(hbFile *os.File, unixSeconds uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], unixSeconds)
	if _, err := hbFile.Write(b[:]); err != nil {
		Log.Error("transcript: heartbeat write failed", "error", err)
		return
	}
	if err := hbFile.Sync(); err != nil {
		Log.Error("transcript: heartbeat sync failed", "error", err)
	}
}

// flushVerbose compresses and base64-encodes the accumulator, if
// non-empty, and emits it as a "cast" structured log line, clearing the
// accumulator. A missed or empty tick is simply a no-op — the delay
// policy spec.md §4.4 calls for, not a burst on the next tick.
func (t *Transcript) flushVerbose() {
	if t.accum.Len() == 0 {
		return
	}
	compressed, err := deflate(t.accum.Bytes())
	if err != nil {
		Log.Error("transcript: verbose compress failed", "error", err)
		t.accum.Reset()
		return
	}
	blob := base64.StdEncoding.EncodeToString(compressed)
	if err := writeCastLine(t.castLineOut, float64(t.sessionStart.Unix()), blob); err != nil {
		Log.Error("transcript: cast line write failed", "error", err)
	}
	t.accum.Reset()
}

// EncodeEvent renders e to the exact on-disk record layout of spec.md
// §4.4: a 4-byte LE float elapsed, a 1-byte flags (kind in bits 0-1,
// compressed in bit 7), an unsigned varint length, then the payload (raw,
// or flate-compressed when the logical payload exceeds compressThreshold).
// Resize payloads are always exactly 4 bytes and so are always stored raw.
func EncodeEvent(e Event) []byte {
	var out bytes.Buffer

	var elapsedBits [4]byte
	binary.LittleEndian.PutUint32(elapsedBits[:], math.Float32bits(e.Elapsed))
	out.Write(elapsedBits[:])

	payload := e.Payload
	flags := byte(e.Kind)
	if e.Kind != Resize && len(payload) > compressThreshold {
		if compressed, err := deflate(payload); err == nil {
			payload = compressed
			flags |= compressedFlag
		}
	}
	out.WriteByte(flags)

	var lenBuf [binary.MaxVarintLen64]byte
	n := putUvarint(lenBuf[:], uint64(len(payload)))
	out.Write(lenBuf[:n])
	out.Write(payload)

	return out.Bytes()
}

// DecodeEvent parses exactly one record from the front of buf per the
// layout EncodeEvent writes, returning the event and the number of bytes
// consumed. An incomplete record at the end of buf yields consumed == 0.
func DecodeEvent(buf []byte) (e Event, consumed int, err error) {
	if len(buf) < 5 {
		return Event{}, 0, nil
	}
	elapsed := math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4]))
	flags := buf[4]
	kind := EventKind(flags & 0x03)
	compressed := flags&compressedFlag != 0

	length, n := binary.Uvarint(buf[5:])
	if n <= 0 {
		return Event{}, 0, nil
	}
	start := 5 + n
	end := start + int(length)
	if end > len(buf) {
		return Event{}, 0, nil
	}

	payload := buf[start:end]
	if compressed {
		payload, err = inflate(payload)
		if err != nil {
			return Event{}, 0, fmt.Errorf("termcast: decode event payload: %w", err)
		}
	} else {
		payload = append([]byte(nil), payload...)
	}

	return Event{Elapsed: elapsed, Kind: kind, Payload: payload}, end, nil
}

// putUvarint is the unsigned LEB128 encoder spec.md §4.4 names explicitly
// ("7-bit groups, high bit = more"); encoding/binary.PutUvarint already
// implements exactly this, so this is a thin named wrapper for call-site
// clarity rather than a reimplementation.
func putUvarint(buf []byte, v uint64) int {
	return binary.PutUvarint(buf, v)
}

// deflate compresses src with compress/flate at BestSpeed (level 1), the
// block compressor spec.md §4.4 calls for.
func deflate(src []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// inflate reverses deflate.
func inflate(src []byte) ([]byte, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	return io.ReadAll(r)
}
