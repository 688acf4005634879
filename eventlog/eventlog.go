// Package eventlog appends line-delimited handoff events to a local log
// file. The log exists for monitoring and postmortems only; nothing in the
// orchestration layer reads it back for control decisions.
package eventlog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hiveflow/hiveflow/types"
)

// Logger appends HandoffEvent records as JSON lines. Safe for concurrent
// use within a process; the file is opened in append mode so concurrent
// processes interleave whole lines.
type Logger struct {
	path   string
	file   *os.File
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// New opens (or creates) the event log at path.
func New(path string, logger *zap.Logger) (*Logger, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create event log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open event log: %w", err)
	}
	return &Logger{
		path:   path,
		file:   file,
		logger: logger.With(zap.String("component", "event_log")),
	}, nil
}

// Append writes one event line. A failed write is logged and swallowed:
// monitoring must never fail the orchestration path.
func (l *Logger) Append(event types.HandoffEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		l.logger.Error("failed to marshal event", zap.Error(err))
		return
	}
	if _, err := l.file.Write(append(data, '\n')); err != nil {
		l.logger.Error("failed to append event", zap.Error(err))
	}
}

// Path returns the log file path.
func (l *Logger) Path() string { return l.path }

// Close flushes and closes the log file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.file.Close()
}

// Read returns all events currently in the log. Intended for tests and
// postmortem tooling, not the hot path.
func Read(path string) ([]types.HandoffEvent, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var events []types.HandoffEvent
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var event types.HandoffEvent
		if err := json.Unmarshal(line, &event); err != nil {
			return nil, fmt.Errorf("corrupt event line: %w", err)
		}
		events = append(events, event)
	}
	return events, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
