package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"
)

const (
	defaultNavTimeout    = 40 * time.Second
	defaultActionTime    = 10 * time.Second
	defaultConnectTime   = 30 * time.Second
	defaultTypingDelay   = 100 * time.Millisecond
	defaultLocale        = "en-US"
	maxReadLength        = 1200
	languageScriptFormat = `Object.defineProperty(navigator, 'language', {get: () => '%s'});
Object.defineProperty(navigator, 'languages', {get: () => ['%s', '%s']});`
)

// Controller exposes the page actions the mailbox flows need. Selectors are
// playwright selectors, so "xpath=//..." works alongside CSS.
type Controller interface {
	Close(ctx context.Context) error
	Navigate(ctx context.Context, url string) error
	WaitForLoad(ctx context.Context, timeout time.Duration) error
	WaitFor(ctx context.Context, selector string, timeout time.Duration) error
	WaitGone(ctx context.Context, selector string, timeout time.Duration) error
	Click(ctx context.Context, selector string, timeout time.Duration) error
	ClickFirst(ctx context.Context, selectors []string, timeout time.Duration) (string, error)
	RightClick(ctx context.Context, selector string, timeout time.Duration) error
	Type(ctx context.Context, selector, text string, timeout time.Duration) error
	Press(ctx context.Context, key string) error
	VisibleAttr(ctx context.Context, selector, attr string) ([]string, error)
	ChildAttr(ctx context.Context, selector, child, attr string, timeout time.Duration) (string, error)
	ScrollIntoView(ctx context.Context, selector string) error
	Read(ctx context.Context, selector string) (string, error)
	Screenshot(ctx context.Context, path string) error
	Location(ctx context.Context) (url, title string)
}

// Options tune the pages handed out by a Launcher.
type Options struct {
	NavTimeout     time.Duration
	ActionTimeout  time.Duration
	ConnectTimeout time.Duration
	TypingDelay    time.Duration
	Locale         string
}

func (o Options) withDefaults() Options {
	if o.NavTimeout <= 0 {
		o.NavTimeout = defaultNavTimeout
	}
	if o.ActionTimeout <= 0 {
		o.ActionTimeout = defaultActionTime
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTime
	}
	if o.TypingDelay <= 0 {
		o.TypingDelay = defaultTypingDelay
	}
	if strings.TrimSpace(o.Locale) == "" {
		o.Locale = defaultLocale
	}
	return o
}

// Launcher owns the playwright driver. Browsers are not launched locally:
// every page comes from an already running profile reached over CDP.
type Launcher struct {
	pw   *playwright.Playwright
	opts Options
}

func NewLauncher(ctx context.Context, opts Options) (*Launcher, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pw, err := playwright.Run(&playwright.RunOptions{SkipInstallBrowsers: true})
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	return &Launcher{pw: pw, opts: opts.withDefaults()}, nil
}

// Attach connects to the DevTools endpoint of a running browser and opens a
// fresh page in its default context, so the profile's fingerprint and
// cookies apply.
func (l *Launcher) Attach(ctx context.Context, endpoint string) (Controller, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	browser, err := l.pw.Chromium.ConnectOverCDP(endpoint, playwright.BrowserTypeConnectOverCDPOptions{
		Timeout: ms(l.opts.ConnectTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("connect over cdp: %w", err)
	}

	var bctx playwright.BrowserContext
	if contexts := browser.Contexts(); len(contexts) > 0 {
		bctx = contexts[0]
	} else {
		bctx, err = browser.NewContext()
		if err != nil {
			_ = browser.Close()
			return nil, fmt.Errorf("new context: %w", err)
		}
	}

	script := fmt.Sprintf(languageScriptFormat, l.opts.Locale, l.opts.Locale, strings.Split(l.opts.Locale, "-")[0])
	if err := bctx.AddInitScript(playwright.Script{Content: playwright.String(script)}); err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("init script: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("new page: %w", err)
	}
	page.SetDefaultTimeout(float64(l.opts.ActionTimeout.Milliseconds()))
	page.SetDefaultNavigationTimeout(float64(l.opts.NavTimeout.Milliseconds()))

	return &controller{browser: browser, page: page, opts: l.opts}, nil
}

func (l *Launcher) Close() error {
	if l.pw != nil {
		return l.pw.Stop()
	}
	return nil
}

type controller struct {
	browser playwright.Browser
	page    playwright.Page
	opts    Options
}

func (c *controller) Close(ctx context.Context) error {
	_ = ctx
	var errs []error
	if c.page != nil {
		if err := c.page.Close(); err != nil {
			errs = append(errs, wrap(err))
		}
	}
	if c.browser != nil {
		if err := c.browser.Close(); err != nil {
			errs = append(errs, wrap(err))
		}
	}
	return errors.Join(errs...)
}

func (c *controller) Navigate(ctx context.Context, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateLoad,
		Timeout:   ms(c.opts.NavTimeout),
	})
	return wrap(err)
}

// WaitForLoad waits for the load event, the playwright equivalent of
// document.readyState reaching "complete".
func (c *controller) WaitForLoad(ctx context.Context, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if timeout <= 0 {
		timeout = c.opts.NavTimeout
	}
	return wrap(c.page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
		State:   playwright.LoadStateLoad,
		Timeout: ms(timeout),
	}))
}

func (c *controller) WaitFor(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(c.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(c.timeout(timeout)),
	}))
}

func (c *controller) WaitGone(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(c.page.Locator(selector).First().WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateDetached,
		Timeout: ms(c.timeout(timeout)),
	}))
}

func (c *controller) Click(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	// First() avoids strict mode violations when several elements match.
	first := c.page.Locator(selector).First()
	if err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(c.timeout(timeout)),
	}); err != nil {
		return wrap(err)
	}
	_ = first.ScrollIntoViewIfNeeded()
	return wrap(first.Click())
}

// ClickFirst tries selectors in order and clicks the first visible match.
// It returns the selector that worked.
func (c *controller) ClickFirst(ctx context.Context, selectors []string, timeout time.Duration) (string, error) {
	var lastErr error
	for _, sel := range selectors {
		if err := c.Click(ctx, sel, timeout); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			lastErr = err
			continue
		}
		return sel, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no selectors given")
	}
	return "", fmt.Errorf("none of %d selectors clickable: %w", len(selectors), lastErr)
}

func (c *controller) RightClick(ctx context.Context, selector string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	first := c.page.Locator(selector).First()
	if err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(c.timeout(timeout)),
	}); err != nil {
		return wrap(err)
	}
	if err := first.Hover(); err != nil {
		return wrap(err)
	}
	return wrap(first.Click(playwright.LocatorClickOptions{
		Button: playwright.MouseButtonRight,
	}))
}

// Type clears the field and types text key by key.
func (c *controller) Type(ctx context.Context, selector, text string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	first := c.page.Locator(selector).First()
	if err := first.WaitFor(playwright.LocatorWaitForOptions{
		State:   playwright.WaitForSelectorStateVisible,
		Timeout: ms(c.timeout(timeout)),
	}); err != nil {
		return wrap(err)
	}
	if err := first.Click(); err != nil {
		return wrap(err)
	}
	if err := first.Fill(""); err != nil {
		return wrap(err)
	}
	return wrap(first.PressSequentially(text, playwright.LocatorPressSequentiallyOptions{
		Delay: playwright.Float(float64(c.opts.TypingDelay.Milliseconds())),
	}))
}

func (c *controller) Press(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(c.page.Keyboard().Press(key))
}

// VisibleAttr returns the non-empty attr values of every visible match.
func (c *controller) VisibleAttr(ctx context.Context, selector, attr string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	items, err := c.page.Locator(selector).All()
	if err != nil {
		return nil, wrap(err)
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		visible, err := item.IsVisible()
		if err != nil || !visible {
			continue
		}
		val, err := item.GetAttribute(attr)
		if err != nil || val == "" {
			continue
		}
		out = append(out, val)
	}
	return out, nil
}

// ChildAttr reads attr from the first child matching child inside the first
// element matching selector.
func (c *controller) ChildAttr(ctx context.Context, selector, child, attr string, timeout time.Duration) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	loc := c.page.Locator(selector).First().Locator(child).First()
	val, err := loc.GetAttribute(attr, playwright.LocatorGetAttributeOptions{
		Timeout: ms(c.timeout(timeout)),
	})
	if err != nil {
		return "", wrap(err)
	}
	return val, nil
}

func (c *controller) ScrollIntoView(ctx context.Context, selector string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(c.page.Locator(selector).First().ScrollIntoViewIfNeeded())
}

// Read returns the inner text of selector, or of the body when selector is
// empty, checking child frames when the main frame has nothing.
func (c *controller) Read(ctx context.Context, selector string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(selector) == "" {
		selector = "body"
	}
	val, err := c.page.InnerText(selector, playwright.PageInnerTextOptions{Timeout: playwright.Float(5000)})
	if err == nil && strings.TrimSpace(val) != "" {
		return truncate(val), nil
	}
	for _, frame := range c.page.Frames() {
		if frame == c.page.MainFrame() {
			continue
		}
		fval, ferr := frame.InnerText(selector, playwright.FrameInnerTextOptions{Timeout: playwright.Float(3000)})
		if ferr == nil && strings.TrimSpace(fval) != "" {
			return truncate(fval), nil
		}
	}
	if err != nil {
		return "", wrap(err)
	}
	return truncate(val), nil
}

func (c *controller) Screenshot(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("screenshot dir: %w", err)
	}
	_, err := c.page.Screenshot(playwright.PageScreenshotOptions{
		Path: playwright.String(path),
	})
	return wrap(err)
}

func (c *controller) Location(ctx context.Context) (string, string) {
	_ = ctx
	title, _ := c.page.Title()
	return c.page.URL(), title
}

func (c *controller) timeout(d time.Duration) time.Duration {
	if d <= 0 {
		return c.opts.ActionTimeout
	}
	return d
}

func ms(d time.Duration) *float64 {
	return playwright.Float(float64(d.Milliseconds()))
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxReadLength {
		return s[:maxReadLength]
	}
	return s
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("playwright: %w", err)
}
