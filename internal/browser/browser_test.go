package browser

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, defaultNavTimeout, o.NavTimeout)
	assert.Equal(t, defaultActionTime, o.ActionTimeout)
	assert.Equal(t, defaultConnectTime, o.ConnectTimeout)
	assert.Equal(t, defaultTypingDelay, o.TypingDelay)
	assert.Equal(t, "en-US", o.Locale)

	o = Options{NavTimeout: time.Second, Locale: "de-DE"}.withDefaults()
	assert.Equal(t, time.Second, o.NavTimeout)
	assert.Equal(t, "de-DE", o.Locale)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("  abc \n"))
	assert.Len(t, truncate(strings.Repeat("x", maxReadLength+50)), maxReadLength)
}

func TestWrap(t *testing.T) {
	assert.NoError(t, wrap(nil))
	base := errors.New("timeout 10000ms exceeded")
	err := wrap(base)
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "playwright: timeout 10000ms exceeded", err.Error())
}

func TestTimeoutFallsBackToActionTimeout(t *testing.T) {
	c := &controller{opts: Options{ActionTimeout: 3 * time.Second}}
	assert.Equal(t, 3*time.Second, c.timeout(0))
	assert.Equal(t, time.Second, c.timeout(time.Second))
}

func TestMillis(t *testing.T) {
	assert.Equal(t, 1500.0, *ms(1500 * time.Millisecond))
}
