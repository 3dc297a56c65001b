package termcast

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestEncodeEvent_UncompressedRoundTrip(t *testing.T) {
	// S4: Event Output, elapsed=1.5, payload=b"hi".
	e := Event{Elapsed: 1.5, Kind: Output, Payload: []byte("hi")}
	got := EncodeEvent(e)

	wantHex := "0000c03f" + "01" + "02" + "6869"
	wantBytes, err := hex.DecodeString(wantHex)
	if err != nil {
		t.Fatalf("bad test fixture: %v", err)
	}
	if !bytes.Equal(got, wantBytes) {
		t.Fatalf("EncodeEvent() = % x, want % x", got, wantBytes)
	}

	decoded, n, err := DecodeEvent(got)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if n != len(got) {
		t.Errorf("consumed = %d, want %d", n, len(got))
	}
	if decoded.Elapsed != e.Elapsed || decoded.Kind != e.Kind || !bytes.Equal(decoded.Payload, e.Payload) {
		t.Errorf("decoded = %+v, want %+v", decoded, e)
	}
}

func TestEncodeEvent_CompressedRoundTrip(t *testing.T) {
	// S5: Event Output, elapsed=0.0, payload = 512 bytes of 'A'.
	payload := bytes.Repeat([]byte{'A'}, 512)
	e := Event{Elapsed: 0, Kind: Output, Payload: payload}
	got := EncodeEvent(e)

	flags := got[4]
	if flags&compressedFlag == 0 {
		t.Fatalf("expected compressed flag set for 512-byte payload")
	}

	decoded, _, err := DecodeEvent(got)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Errorf("decoded payload mismatch: got %d bytes, want %d", len(decoded.Payload), len(payload))
	}
}

func TestEncodeEvent_ResizeAlwaysRaw(t *testing.T) {
	payload := EncodeResizePayload(24, 80)
	e := Event{Elapsed: 0, Kind: Resize, Payload: payload}
	got := EncodeEvent(e)
	if got[4]&compressedFlag != 0 {
		t.Errorf("resize payload must never be compressed")
	}

	decoded, _, err := DecodeEvent(got)
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if !bytes.Equal(decoded.Payload, payload) {
		t.Errorf("payload mismatch: % x vs % x", decoded.Payload, payload)
	}
}

func TestEncodeEvent_RoundTripVariousSizes(t *testing.T) {
	sizes := []int{0, 1, 256, 257, 10000}
	for _, size := range sizes {
		payload := bytes.Repeat([]byte{'z'}, size)
		for _, kind := range []EventKind{Input, Output} {
			e := Event{Elapsed: 3.25, Kind: kind, Payload: payload}
			encoded := EncodeEvent(e)
			decoded, n, err := DecodeEvent(encoded)
			if err != nil {
				t.Fatalf("size %d kind %d: DecodeEvent() error = %v", size, kind, err)
			}
			if n != len(encoded) {
				t.Errorf("size %d kind %d: consumed = %d, want %d", size, kind, n, len(encoded))
			}
			if decoded.Kind != kind || decoded.Elapsed != e.Elapsed || !bytes.Equal(decoded.Payload, payload) {
				t.Errorf("size %d kind %d: round trip mismatch", size, kind)
			}
		}
	}
}

func TestDecodeEvent_IncompleteRecord(t *testing.T) {
	full := EncodeEvent(Event{Elapsed: 1, Kind: Output, Payload: []byte("hello world")})
	_, n, err := DecodeEvent(full[:len(full)-2])
	if err != nil {
		t.Fatalf("DecodeEvent() error = %v", err)
	}
	if n != 0 {
		t.Errorf("consumed = %d for truncated record, want 0", n)
	}
}

func TestTranscript_WritesEventsAndHeartbeats(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CastPath:      filepath.Join(dir, "session.cast"),
		HeartbeatPath: filepath.Join(dir, "session.heartbeat"),
	}
	var logOut bytes.Buffer
	tr, err := NewTranscript(cfg, &logOut)
	if err != nil {
		t.Fatalf("NewTranscript() error = %v", err)
	}

	tr.RecordOutput(0.1, []byte("hello"))
	tr.RecordInput(0.2, []byte("ls\n"))
	tr.RecordResize(0.3, EncodeResizePayload(30, 100))
	tr.RecordHeartbeat(1700000000)
	tr.Close()

	cast, err := os.ReadFile(cfg.CastPath)
	if err != nil {
		t.Fatalf("read cast file: %v", err)
	}
	var events []Event
	for len(cast) > 0 {
		e, n, err := DecodeEvent(cast)
		if err != nil {
			t.Fatalf("DecodeEvent() error = %v", err)
		}
		if n == 0 {
			t.Fatalf("DecodeEvent() made no progress on %d remaining bytes", len(cast))
		}
		events = append(events, e)
		cast = cast[n:]
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].Kind != Output || string(events[0].Payload) != "hello" {
		t.Errorf("event 0 = %+v", events[0])
	}
	if events[1].Kind != Input || string(events[1].Payload) != "ls\n" {
		t.Errorf("event 1 = %+v", events[1])
	}
	if events[2].Kind != Resize {
		t.Errorf("event 2 = %+v", events[2])
	}

	hb, err := os.ReadFile(cfg.HeartbeatPath)
	if err != nil {
		t.Fatalf("read heartbeat file: %v", err)
	}
	if len(hb)%4 != 0 || len(hb) == 0 {
		t.Errorf("heartbeat file length = %d, want a positive multiple of 4", len(hb))
	}
}

func TestTranscript_VerboseFlushEmitsCastLine(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		CastPath:        filepath.Join(dir, "session.cast"),
		HeartbeatPath:   filepath.Join(dir, "session.heartbeat"),
		VerboseLog:      true,
		VerboseInterval: 20 * time.Millisecond,
	}
	var logOut bytes.Buffer
	tr, err := NewTranscript(cfg, &logOut)
	if err != nil {
		t.Fatalf("NewTranscript() error = %v", err)
	}
	tr.RecordOutput(0, []byte("some output bytes to accumulate"))

	deadline := time.After(2 * time.Second)
	for logOut.Len() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for verbose cast line")
		case <-time.After(10 * time.Millisecond):
		}
	}
	tr.Close()

	line := strings.TrimSpace(logOut.String())
	if !strings.HasPrefix(line, `["cast",[`) {
		t.Errorf("cast line = %q, want prefix %q", line, `["cast",[`)
	}
}

func TestEncodeResizePayload(t *testing.T) {
	got := EncodeResizePayload(24, 80)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0] != 24 || got[1] != 0 || got[2] != 80 || got[3] != 0 {
		t.Errorf("got % x, want rows=24 cols=80 little-endian", got)
	}
}
