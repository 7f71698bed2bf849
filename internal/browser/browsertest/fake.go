// Package browsertest provides an in-memory browser.Page for exercising UI flows.
package browsertest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xkilldash9x/autonote/internal/browser"
)

// Call records one interaction with a FakePage.
type Call struct {
	Method   string
	Selector string
	Value    string
	Mods     browser.Modifier
}

// FakePage simulates a tab. Elements exist when their selector is in Present; form
// fields hold text in Values. Hooks let a test model page reactions such as a login
// marker appearing after submit.
type FakePage struct {
	mu sync.Mutex

	Calls      []Call
	Present    map[string]bool
	Values     map[string]string
	HTML       map[string]string
	CurrentURL string
	Shot       []byte
	ShotErr    error
	CloseCount int

	OnClick    map[string]func(p *FakePage)
	OnNavigate map[string]func(p *FakePage)
	OnPress    map[string]func(p *FakePage, mods browser.Modifier)

	failures map[string][]error
}

var _ browser.Page = (*FakePage)(nil)

// NewFakePage returns an empty page.
func NewFakePage() *FakePage {
	return &FakePage{
		Present:    map[string]bool{},
		Values:     map[string]string{},
		HTML:       map[string]string{},
		OnClick:    map[string]func(*FakePage){},
		OnNavigate: map[string]func(*FakePage){},
		OnPress:    map[string]func(*FakePage, browser.Modifier){},
		failures:   map[string][]error{},
		Shot:       []byte("\x89PNG fake"),
	}
}

func key(method, target string) string { return method + ":" + target }

// FailNext queues errors returned by the next calls of method on target, in order.
func (p *FakePage) FailNext(method, target string, errs ...error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	k := key(method, target)
	p.failures[k] = append(p.failures[k], errs...)
}

// Show marks selectors as present.
func (p *FakePage) Show(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		p.Present[s] = true
	}
}

// Hide marks selectors as absent.
func (p *FakePage) Hide(selectors ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, s := range selectors {
		delete(p.Present, s)
	}
}

// SetURL moves the page to url without recording a navigation, as a form post would.
func (p *FakePage) SetURL(url string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CurrentURL = url
}

// Value returns the text held by a field.
func (p *FakePage) Value(selector string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Values[selector]
}

// CallsTo returns the recorded calls of method.
func (p *FakePage) CallsTo(method string) []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Call
	for _, c := range p.Calls {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Methods returns the ordered method names of all recorded calls.
func (p *FakePage) Methods() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.Calls))
	for _, c := range p.Calls {
		out = append(out, c.Method)
	}
	return out
}

// begin records the call and pops a queued failure. Caller must not hold mu.
func (p *FakePage) begin(ctx context.Context, c Call, target string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, c)
	if err := ctx.Err(); err != nil {
		return err
	}
	k := key(c.Method, target)
	if queue := p.failures[k]; len(queue) > 0 {
		p.failures[k] = queue[1:]
		return queue[0]
	}
	return nil
}

func (p *FakePage) present(selector string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Present[selector]
}

func (p *FakePage) Navigate(ctx context.Context, url string) error {
	if err := p.begin(ctx, Call{Method: "Navigate", Value: url}, url); err != nil {
		return err
	}
	p.mu.Lock()
	p.CurrentURL = url
	hook := p.OnNavigate[url]
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *FakePage) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := p.begin(ctx, Call{Method: "WaitVisible", Selector: selector}, selector); err != nil {
		return err
	}
	if !p.present(selector) {
		return &browser.TimeoutError{Op: "wait for " + selector, Timeout: timeout}
	}
	return nil
}

func (p *FakePage) Exists(ctx context.Context, selector string) (bool, error) {
	if err := p.begin(ctx, Call{Method: "Exists", Selector: selector}, selector); err != nil {
		return false, err
	}
	return p.present(selector), nil
}

func (p *FakePage) click(ctx context.Context, method, selector string) error {
	if err := p.begin(ctx, Call{Method: method, Selector: selector}, selector); err != nil {
		return err
	}
	if !p.present(selector) {
		return fmt.Errorf("click %s: element not found", selector)
	}
	p.mu.Lock()
	hook := p.OnClick[selector]
	p.mu.Unlock()
	if hook != nil {
		hook(p)
	}
	return nil
}

func (p *FakePage) Click(ctx context.Context, selector string) error {
	return p.click(ctx, "Click", selector)
}

func (p *FakePage) ClickAndWaitNavigation(ctx context.Context, selector string) error {
	return p.click(ctx, "ClickAndWaitNavigation", selector)
}

func (p *FakePage) Clear(ctx context.Context, selector string) error {
	if err := p.begin(ctx, Call{Method: "Clear", Selector: selector}, selector); err != nil {
		return err
	}
	if !p.present(selector) {
		return fmt.Errorf("clear %s: element not found", selector)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Values[selector] = ""
	return nil
}

func (p *FakePage) Type(ctx context.Context, selector, text string) error {
	if err := p.begin(ctx, Call{Method: "Type", Selector: selector, Value: text}, selector); err != nil {
		return err
	}
	if !p.present(selector) {
		return fmt.Errorf("type into %s: element not found", selector)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Values[selector] += text
	return nil
}

func (p *FakePage) Press(ctx context.Context, k string, mods browser.Modifier) error {
	if err := p.begin(ctx, Call{Method: "Press", Value: k, Mods: mods}, k); err != nil {
		return err
	}
	p.mu.Lock()
	hook := p.OnPress[k]
	p.mu.Unlock()
	if hook != nil {
		hook(p, mods)
	}
	return nil
}

func (p *FakePage) OuterHTML(ctx context.Context, selector string) (string, error) {
	if err := p.begin(ctx, Call{Method: "OuterHTML", Selector: selector}, selector); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	html, ok := p.HTML[selector]
	if !ok {
		return "", fmt.Errorf("read html of %s: element not found", selector)
	}
	return html, nil
}

func (p *FakePage) URL(ctx context.Context) (string, error) {
	if err := p.begin(ctx, Call{Method: "URL"}, ""); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.CurrentURL, nil
}

func (p *FakePage) Screenshot(ctx context.Context) ([]byte, error) {
	if err := p.begin(ctx, Call{Method: "Screenshot"}, ""); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Shot, p.ShotErr
}

func (p *FakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, Call{Method: "Close"})
	p.CloseCount++
	return nil
}

// ErrLaunch is a ready-made launch failure.
var ErrLaunch = errors.New("chrome executable not found")

// FakeLauncher hands out FakePages.
type FakeLauncher struct {
	mu sync.Mutex
	// Setup prepares each new page, for example to model the login surface.
	Setup func(p *FakePage)
	// Errs are returned, in order, by the next launches.
	Errs     []error
	Pages    []*FakePage
	Launches int
	LastOpts browser.LaunchOptions
}

var _ browser.Launcher = (*FakeLauncher)(nil)

func (l *FakeLauncher) Launch(ctx context.Context, opts browser.LaunchOptions) (browser.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Launches++
	l.LastOpts = opts
	if len(l.Errs) > 0 {
		err := l.Errs[0]
		l.Errs = l.Errs[1:]
		return nil, err
	}
	p := NewFakePage()
	if l.Setup != nil {
		l.Setup(p)
	}
	l.Pages = append(l.Pages, p)
	return p, nil
}

// Last returns the most recently launched page.
func (l *FakeLauncher) Last() *FakePage {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.Pages) == 0 {
		return nil
	}
	return l.Pages[len(l.Pages)-1]
}
