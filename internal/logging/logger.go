// Package logging provides leveled logging and cascade tracing for gkmerge.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TraceLogger for structured JSONL cascade and merge events (cascade.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LevelTrace is a custom slog level below Debug. At this level every
// cascade round and merge is written to the trace file.
const LevelTrace = slog.LevelDebug - 4

// TraceFile is the name of the JSONL trace inside the trace directory.
const TraceFile = "cascade.jsonl"

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "error", "warn", "info", "debug", "trace"
// (case-insensitive). Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// sink is the shared, locked destination of a TraceLogger and its children.
type sink struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// TraceLogger writes cascade and merge events as JSONL. It implements
// network.Tracer and is safe for concurrent use, so one logger can serve
// every realization of an experiment. A nil TraceLogger is safe to use;
// all methods are no-ops on nil receiver.
type TraceLogger struct {
	sink   *sink
	fields map[string]any
}

// NewTraceLogger creates a trace logger appending to dir/cascade.jsonl.
// Below "trace" level it returns nil and no file is created.
// Returns nil if the file cannot be opened.
func NewTraceLogger(dir string, level string) *TraceLogger {
	if ParseLevel(level) > LevelTrace {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, TraceFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &TraceLogger{sink: &sink{w: f, c: f}}
}

// NewTraceWriter creates a trace logger writing to w. Close does not close w.
func NewTraceWriter(w io.Writer) *TraceLogger {
	return &TraceLogger{sink: &sink{w: w}}
}

// With returns a logger that adds fields to every event, sharing the
// destination of tl. Event keys win over fields on conflict.
func (tl *TraceLogger) With(fields map[string]any) *TraceLogger {
	if tl == nil {
		return nil
	}
	merged := make(map[string]any, len(tl.fields)+len(fields))
	for k, v := range tl.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &TraceLogger{sink: tl.sink, fields: merged}
}

// Log writes an event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
func (tl *TraceLogger) Log(event map[string]any) {
	if tl == nil || tl.sink == nil {
		return
	}

	entry := make(map[string]any, len(tl.fields)+len(event)+1)
	for k, v := range tl.fields {
		entry[k] = v
	}
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	tl.sink.mu.Lock()
	defer tl.sink.mu.Unlock()
	if tl.sink.w == nil {
		return
	}
	_, _ = tl.sink.w.Write(data)
}

// Close closes the underlying file and turns further Log calls into no-ops
// for tl and every logger derived from it.
func (tl *TraceLogger) Close() {
	if tl == nil || tl.sink == nil {
		return
	}

	tl.sink.mu.Lock()
	defer tl.sink.mu.Unlock()

	if tl.sink.c != nil {
		tl.sink.c.Close()
	}
	tl.sink.w = nil
	tl.sink.c = nil
}
