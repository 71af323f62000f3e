package snapshot

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polzovatel/outlook-sweeper/internal/browser"
)

type pageStub struct {
	browser.Controller
	text    string
	shotErr error
	shots   []string
}

func (p *pageStub) Location(context.Context) (string, string) {
	return "https://outlook.live.com/mail/0/", "Mail - Outlook"
}

func (p *pageStub) Read(context.Context, string) (string, error) { return p.text, nil }

func (p *pageStub) Screenshot(_ context.Context, path string) error {
	p.shots = append(p.shots, path)
	return p.shotErr
}

func fixedRecorder(dir string) *Recorder {
	r := NewRecorder(dir)
	r.now = func() time.Time { return time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC) }
	return r
}

func TestCaptureCollectsPageState(t *testing.T) {
	page := &pageStub{text: "  Something went wrong  "}
	r := fixedRecorder("shots")

	s, err := r.Capture(context.Background(), page, "bob@x.com flow")
	require.NoError(t, err)
	assert.Equal(t, "Mail - Outlook", s.Title)
	assert.Equal(t, "Something went wrong", s.Visible)
	assert.Equal(t, filepath.Join("shots", "bob_x.com_flow_20250304_050607.png"), s.Screenshot)
	assert.Equal(t, []string{s.Screenshot}, page.shots)
	assert.Contains(t, s.String(), "SCREENSHOT: ")
}

func TestCaptureKeepsSummaryWhenScreenshotFails(t *testing.T) {
	page := &pageStub{text: "body", shotErr: errors.New("target closed")}

	s, err := fixedRecorder("").Capture(context.Background(), page, "x")
	require.Error(t, err)
	assert.Equal(t, "body", s.Visible)
	assert.Empty(t, s.Screenshot)
}

func TestExcerptTruncates(t *testing.T) {
	s := Summary{Visible: strings.Repeat("a", 1000)}
	assert.Len(t, s.Excerpt(), excerptLength)
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "a_b_c.d-e", SafeName("a@b/c.d-e"))
	assert.Equal(t, "snapshot", SafeName(""))
}
