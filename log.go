package termcast

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
)

// Log is the package-level structured logger every component writes
// through, so operational logs and the verbose-telemetry cast line (spec.md
// §4.4, §6 "Structured log output") share one sink. InitLog replaces it;
// until InitLog is called it discards nothing special — it writes text to
// stderr at info level, a safe default for library use and tests.
var Log = slog.New(slog.NewTextHandler(os.Stderr, nil))

// InitLog replaces Log with a handler writing to w at the given level
// ("debug", "info", "warn", "error"; unrecognized values fall back to
// info). json selects slog.NewJSONHandler to satisfy spec.md §6's
// line-delimited-JSON log output requirement; otherwise a text handler is
// used, matching local/dev ergonomics.
func InitLog(w io.Writer, level string, json bool) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}
	var h slog.Handler
	if json {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	Log = slog.New(h)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// writeCastLine writes the exact line-delimited structured log record
// spec.md §4.4 and §6 require for verbose telemetry — a JSON two-element
// array ["cast", [session_start_timestamp, base64_blob]] followed by a
// newline — directly to w. This bypasses slog's own record framing: the
// wire format here is a contract with the browser-side tooling that
// consumes cast lines, not a human-facing log line, so it is written
// literally rather than wrapped in slog's key/value structure.
func writeCastLine(w io.Writer, sessionStart float64, base64Blob string) error {
	line, err := json.Marshal([]any{"cast", []any{sessionStart, base64Blob}})
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = w.Write(line)
	return err
}
