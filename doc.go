// Package termcast is the streaming core of a browser-accessible terminal.
//
// It owns a pseudo-terminal running a child shell, fans out its output to
// any number of connected viewers over a message-oriented duplex transport,
// accepts keyboard input and resize events from those viewers, and records
// a compact binary transcript of the session to disk.
//
// # Architecture
//
// Five pieces, leaves first:
//
//   - [PTY]: owns the OS pseudo-terminal and the child process attached to
//     it. Its read loop publishes chunks to a [Broadcaster].
//   - [Broadcaster]: holds the byte history and fans live chunks out to
//     subscribers, handing each new subscriber a consistent snapshot + tail.
//   - [Trim]: a pure function that finds the byte offset at which a raw
//     terminal stream can be safely truncated while preserving the last N
//     visual rows, without splitting a UTF-8 code point or an SGR escape.
//   - [Transcript]: an asynchronous single-writer sink that encodes Input,
//     Output, and Resize events to a framed, varint-length, optionally
//     compressed on-disk log, plus a heartbeat sidecar.
//   - [Session]: the per-viewer state machine tying the above together —
//     subscribe, batch, trim, send, record.
//
// # Quick start
//
//	p, err := termcast.StartPTY("/bin/bash", nil, 24, 80, termcast.DefaultHistoryCap)
//	tr, err := termcast.NewTranscript(termcast.Config{CastPath: "session.cast", HeartbeatPath: "session.heartbeat"}, os.Stdout)
//	sess := termcast.NewSession(p, tr, transport, termcast.Config{Rows: 24, Cols: 80, Scrollback: 1000})
//	sess.Run(ctx)
//
// # Non-goals
//
// termcast does not interpret terminal escape sequences into a cell grid —
// it treats PTY output as an opaque byte stream whose only structure is
// line breaks, UTF-8 boundaries, printable width, and SGR escape runs. It
// does not provide authentication, multi-tenant isolation, or replay
// tooling — only recording.
package termcast
