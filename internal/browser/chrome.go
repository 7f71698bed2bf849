package browser

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"go.uber.org/zap"
)

const (
	defaultLaunchTimeout = 30 * time.Second
	defaultActionTimeout = 10 * time.Second
	defaultNavTimeout    = 30 * time.Second
	// perCharTypingBudget extends the action timeout for long text input.
	perCharTypingBudget = 5 * time.Millisecond
)

// ChromeLauncher starts headless Chrome through chromedp.
type ChromeLauncher struct {
	logger *zap.Logger
}

// NewChromeLauncher returns a launcher that logs browser events to logger.
func NewChromeLauncher(logger *zap.Logger) *ChromeLauncher {
	return &ChromeLauncher{logger: logger.Named("chrome")}
}

// allocatorOptions assembles the exec allocator flags for a configurable browser instance.
func allocatorOptions(opts LaunchOptions) []chromedp.ExecAllocatorOption {
	out := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	out = append(out,
		// Later flags override the defaults; this hides navigator.webdriver.
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-gpu", opts.Headless),
	)
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		out = append(out, chromedp.WindowSize(opts.ViewportWidth, opts.ViewportHeight))
	}
	if opts.UserAgent != "" {
		out = append(out, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.ExecPath != "" {
		out = append(out, chromedp.ExecPath(opts.ExecPath))
	}

	for _, arg := range opts.Args {
		parts := strings.SplitN(arg, "=", 2)
		name := strings.TrimPrefix(parts[0], "--")
		if len(parts) == 2 {
			out = append(out, chromedp.Flag(name, parts[1]))
		} else {
			out = append(out, chromedp.Flag(name, true))
		}
	}

	// Required inside containers.
	if runtime.GOOS == "linux" {
		out = append(out,
			chromedp.Flag("no-sandbox", true),
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}
	return out
}

func withDefaults(opts LaunchOptions) LaunchOptions {
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = defaultLaunchTimeout
	}
	if opts.ActionTimeout <= 0 {
		opts.ActionTimeout = defaultActionTimeout
	}
	if opts.NavTimeout <= 0 {
		opts.NavTimeout = defaultNavTimeout
	}
	return opts
}

// Launch starts the browser process, opens one tab, applies the viewport and verifies the
// browser responds before returning.
func (l *ChromeLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	opts = withDefaults(opts)
	l.logger.Info("Launching browser", zap.Bool("headless", opts.Headless))

	// The browser outlives the launching call, so it hangs off the background context
	// and is released only by Close.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), allocatorOptions(opts)...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(l.logger.Sugar().Debugf))

	p := &chromePage{
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
		allocCancel: allocCancel,
		opts:        opts,
		logger:      l.logger,
	}

	// The first Run allocates the browser. It must not carry a timeout or the browser
	// would be torn down with it, so the bound is enforced from outside.
	started := make(chan error, 1)
	go func() { started <- chromedp.Run(tabCtx) }()

	timer := time.NewTimer(opts.LaunchTimeout)
	defer timer.Stop()
	select {
	case err := <-started:
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("browser failed to start: %w", err)
		}
	case <-timer.C:
		_ = p.Close()
		return nil, &TimeoutError{Op: "browser launch", Timeout: opts.LaunchTimeout}
	case <-ctx.Done():
		_ = p.Close()
		return nil, ctx.Err()
	}

	liveness := []chromedp.Action{chromedp.Navigate("about:blank")}
	if opts.ViewportWidth > 0 && opts.ViewportHeight > 0 {
		liveness = append([]chromedp.Action{
			chromedp.EmulateViewport(int64(opts.ViewportWidth), int64(opts.ViewportHeight)),
		}, liveness...)
	}
	if err := p.run(ctx, "browser liveness check", opts.LaunchTimeout, liveness...); err != nil {
		_ = p.Close()
		return nil, err
	}

	l.logger.Info("Browser launched and responsive.")
	return p, nil
}

// chromePage implements Page over one chromedp tab.
type chromePage struct {
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	allocCancel context.CancelFunc
	opts        LaunchOptions
	logger      *zap.Logger
	closeOnce   sync.Once
}

var _ Page = (*chromePage)(nil)

// run executes actions against the tab bounded by both ctx and timeout.
func (p *chromePage) run(ctx context.Context, op string, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.tabCtx, ctx)
	defer cancel()
	opCtx, cancelOp := context.WithTimeout(runCtx, timeout)
	defer cancelOp()

	err := chromedp.Run(opCtx, actions...)
	if err == nil {
		return nil
	}
	if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
		p.logger.Debug("Browser action timed out.", zap.String("op", op), zap.Duration("timeout", timeout))
		return &TimeoutError{Op: op, Timeout: timeout, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, "navigate to "+url, p.opts.NavTimeout, chromedp.Navigate(url))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.opts.ActionTimeout
	}
	return p.run(ctx, "wait for "+selector, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) Exists(ctx context.Context, selector string) (bool, error) {
	var found bool
	script := fmt.Sprintf("document.querySelector(%s) !== null", strconv.Quote(selector))
	err := p.run(ctx, "query "+selector, p.opts.ActionTimeout, chromedp.Evaluate(script, &found))
	return found, err
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	return p.run(ctx, "click "+selector, p.opts.ActionTimeout,
		chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible))
}

func (p *chromePage) ClickAndWaitNavigation(ctx context.Context, selector string) error {
	navigated := make(chan struct{}, 1)
	listenCtx, stopListening := context.WithCancel(p.tabCtx)
	defer stopListening()

	// Full loads and history API navigations both count; the editor is a single page app.
	chromedp.ListenTarget(listenCtx, func(ev interface{}) {
		switch ev.(type) {
		case *page.EventLoadEventFired, *page.EventNavigatedWithinDocument:
			select {
			case navigated <- struct{}{}:
			default:
			}
		}
	})

	if err := p.Click(ctx, selector); err != nil {
		return err
	}

	timer := time.NewTimer(p.opts.NavTimeout)
	defer timer.Stop()
	select {
	case <-navigated:
		return nil
	case <-timer.C:
		return &TimeoutError{Op: "navigation after clicking " + selector, Timeout: p.opts.NavTimeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// clearScript empties inputs and textareas through their value and editable elements
// through their content, then notifies the page's listeners.
const clearScript = `(function(sel) {
	const el = document.querySelector(sel);
	if (!el) return false;
	if ('value' in el) { el.value = ''; } else { el.textContent = ''; }
	el.dispatchEvent(new Event('input', { bubbles: true }));
	return true;
})(%s)`

func (p *chromePage) Clear(ctx context.Context, selector string) error {
	var found bool
	script := fmt.Sprintf(clearScript, strconv.Quote(selector))
	if err := p.run(ctx, "clear "+selector, p.opts.ActionTimeout, chromedp.Evaluate(script, &found)); err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("clear %s: element not found", selector)
	}
	return nil
}

func (p *chromePage) Type(ctx context.Context, selector, text string) error {
	timeout := p.opts.ActionTimeout + time.Duration(len([]rune(text)))*perCharTypingBudget
	return p.run(ctx, "type into "+selector, timeout,
		chromedp.SendKeys(selector, text, chromedp.ByQuery, chromedp.NodeVisible))
}

// keyCodes carries the DOM code and virtual key code needed for modified key presses.
var keyCodes = map[string]struct {
	code string
	vk   int64
}{
	KeyEnter: {code: "Enter", vk: 13},
	KeyS:     {code: "KeyS", vk: 83},
}

func cdpModifiers(mods Modifier) input.Modifier {
	var m input.Modifier
	if mods&ModAlt != 0 {
		m |= input.ModifierAlt
	}
	if mods&ModCtrl != 0 {
		m |= input.ModifierCtrl
	}
	if mods&ModMeta != 0 {
		m |= input.ModifierMeta
	}
	if mods&ModShift != 0 {
		m |= input.ModifierShift
	}
	return m
}

func (p *chromePage) Press(ctx context.Context, key string, mods Modifier) error {
	op := "press " + key
	if mods == 0 {
		if key == KeyEnter {
			return p.run(ctx, op, p.opts.ActionTimeout, chromedp.KeyEvent(kb.Enter))
		}
		return p.run(ctx, op, p.opts.ActionTimeout, chromedp.KeyEvent(key))
	}

	codes, ok := keyCodes[key]
	if !ok {
		return fmt.Errorf("%s: no key code mapping", op)
	}
	m := cdpModifiers(mods)
	keyDown := input.DispatchKeyEvent(input.KeyDown).
		WithModifiers(m).
		WithKey(key).
		WithCode(codes.code).
		WithWindowsVirtualKeyCode(codes.vk)
	keyUp := input.DispatchKeyEvent(input.KeyUp).
		WithModifiers(m).
		WithKey(key).
		WithCode(codes.code).
		WithWindowsVirtualKeyCode(codes.vk)
	return p.run(ctx, op, p.opts.ActionTimeout, keyDown, keyUp)
}

func (p *chromePage) OuterHTML(ctx context.Context, selector string) (string, error) {
	var html string
	err := p.run(ctx, "read html of "+selector, p.opts.ActionTimeout,
		chromedp.OuterHTML(selector, &html, chromedp.ByQuery))
	return html, err
}

func (p *chromePage) URL(ctx context.Context) (string, error) {
	var url string
	err := p.run(ctx, "read location", p.opts.ActionTimeout, chromedp.Location(&url))
	return url, err
}

func (p *chromePage) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	// Quality 100 yields PNG.
	err := p.run(ctx, "screenshot", p.opts.NavTimeout, chromedp.FullScreenshot(&buf, 100))
	return buf, err
}

// Close shuts the tab and the browser process. Safe to call more than once.
func (p *chromePage) Close() error {
	var err error
	p.closeOnce.Do(func() {
		// Cancel attempts a graceful browser shutdown before the allocator kills it.
		if cerr := chromedp.Cancel(p.tabCtx); cerr != nil && !errors.Is(cerr, context.Canceled) {
			err = cerr
		}
		p.tabCancel()
		p.allocCancel()
	})
	return err
}
