package snapshot

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/polzovatel/outlook-sweeper/internal/browser"
)

const (
	defaultDir     = "screenshots"
	captureTimeout = 15 * time.Second
	excerptLength  = 300
)

var unsafeChars = regexp.MustCompile(`[^\w.-]`)

// Summary is a compact view of the page at the moment something went wrong.
type Summary struct {
	URL        string
	Title      string
	Visible    string
	Screenshot string
}

func (s Summary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\nTITLE: %s\nTEXT: %s\n", s.URL, s.Title, s.Visible)
	if s.Screenshot != "" {
		fmt.Fprintf(&b, "SCREENSHOT: %s\n", s.Screenshot)
	}
	return b.String()
}

// Excerpt is the first part of the visible text, for log lines.
func (s Summary) Excerpt() string {
	if len(s.Visible) > excerptLength {
		return s.Visible[:excerptLength]
	}
	return s.Visible
}

// Recorder stores diagnostics under one directory.
type Recorder struct {
	dir string
	now func() time.Time
}

func NewRecorder(dir string) *Recorder {
	if dir == "" {
		dir = defaultDir
	}
	return &Recorder{dir: dir, now: time.Now}
}

// Capture collects the page location, its visible text and a screenshot.
// A failed screenshot still returns what was collected, with the error.
func (r *Recorder) Capture(ctx context.Context, ctrl browser.Controller, label string) (Summary, error) {
	ctx, cancel := WithDeadline(ctx, captureTimeout)
	defer cancel()

	var s Summary
	s.URL, s.Title = ctrl.Location(ctx)
	if text, err := ctrl.Read(ctx, "body"); err == nil {
		s.Visible = strings.TrimSpace(text)
	}

	path := r.Path(label)
	if err := ctrl.Screenshot(ctx, path); err != nil {
		return s, fmt.Errorf("screenshot: %w", err)
	}
	s.Screenshot = path
	return s, nil
}

// Path is where a screenshot for label taken now would be written.
func (r *Recorder) Path(label string) string {
	name := SafeName(label) + "_" + r.now().Format("20060102_150405") + ".png"
	return filepath.Join(r.dir, name)
}

// SafeName replaces everything but word characters, dots and dashes.
func SafeName(s string) string {
	s = unsafeChars.ReplaceAllString(s, "_")
	if s == "" {
		return "snapshot"
	}
	return s
}

// WithDeadline shortens context to avoid long snapshot waits.
func WithDeadline(ctx context.Context, dur time.Duration) (context.Context, context.CancelFunc) {
	if dur <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, dur)
}
