// Package runlog holds the append-only text sinks a batch run leaves behind:
// one line per account outcome and one line per account that ran out of
// retries.
package runlog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// TimestampLayout is the timestamp format used inside failure lines.
const TimestampLayout = "2006-01-02 15:04:05"

// Sink serializes whole-line writes to an underlying writer.
type Sink struct {
	mu     sync.Mutex
	w      io.Writer
	closer io.Closer
}

func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// OpenSink opens path for appending, creating it and its directory if needed.
func OpenSink(path string) (*Sink, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &Sink{w: f, closer: f}, nil
}

// WriteLine appends line plus a newline with a single Write call.
func (s *Sink) WriteLine(line string) error {
	line = strings.TrimRight(line, "\r\n") + "\n"
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.w, line)
	return err
}

func (s *Sink) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// OutcomeLog is the results file: "<email>,<keyword>" per line.
type OutcomeLog struct {
	sink *Sink
}

func NewOutcomeLog(sink *Sink) *OutcomeLog {
	return &OutcomeLog{sink: sink}
}

func (l *OutcomeLog) Append(email, keyword string) error {
	return l.sink.WriteLine(email + "," + keyword)
}

// FailureLog is the failed-accounts file.
type FailureLog struct {
	sink *Sink
}

func NewFailureLog(sink *Sink) *FailureLog {
	return &FailureLog{sink: sink}
}

// Exhausted records an account for which every retry strategy failed.
func (l *FailureLog) Exhausted(at time.Time, email string) error {
	return l.sink.WriteLine(fmt.Sprintf("[%s] Failed after retries: %s", at.Format(TimestampLayout), email))
}

// Crashed records an account whose processing broke out of the retry
// controller itself.
func (l *FailureLog) Crashed(at time.Time, email string, cause error) error {
	msg := "unknown error"
	if cause != nil {
		msg = strings.ReplaceAll(cause.Error(), "\n", " ")
	}
	return l.sink.WriteLine(fmt.Sprintf("[%s] Failed: %s: %s", at.Format(TimestampLayout), email, msg))
}
