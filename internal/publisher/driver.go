// Package publisher drives the note.com web UI: it composes and publishes articles and reads
// back the account's publication history.
package publisher

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autonote/api/schemas"
	"github.com/xkilldash9x/autonote/internal/browser"
	"github.com/xkilldash9x/autonote/internal/config"
	"github.com/xkilldash9x/autonote/internal/humanoid"
	"github.com/xkilldash9x/autonote/internal/retry"
)

const (
	defaultListLimit = 10
	// limitCheckWindow is how many recent entries the posting limit looks at.
	limitCheckWindow  = 5
	screenshotTimeout = 15 * time.Second
)

// Publication outcomes reported to the result observer.
const (
	ResultPublished = "published"
	ResultDraft     = "draft"
	ResultFailed    = "failed"
)

// Session is the browser session the driver operates. *browser.Session implements it.
type Session interface {
	Acquire(ctx context.Context) (func(), error)
	Authenticate(ctx context.Context, creds browser.Credentials) error
	Page() (browser.Page, error)
	Close() error
}

// Driver publishes articles through a Session. Every public operation holds the session
// lease for its duration. The caller owns the session lifetime and must Close the driver
// when its task ends, including on failure.
type Driver struct {
	session       Session
	creds         browser.Credentials
	note          config.NoteConfig
	screenshotDir string
	retryOpts     []retry.Option
	human         *humanoid.Humanoid
	now           func() time.Time
	observe       func(result string)
	logger        *zap.Logger
}

// Option configures a Driver.
type Option func(*Driver)

// WithScreenshotDir sets where failure screenshots are written. "~" is expanded.
func WithScreenshotDir(dir string) Option {
	return func(d *Driver) { d.screenshotDir = dir }
}

// WithRetry sets the retry policy applied to each UI step.
func WithRetry(opts ...retry.Option) Option {
	return func(d *Driver) { d.retryOpts = opts }
}

// WithHumanoid sets the pacer used for settle delays.
func WithHumanoid(h *humanoid.Humanoid) Option {
	return func(d *Driver) { d.human = h }
}

// WithClock sets the time source. Its location defines "today" for posting limits.
func WithClock(now func() time.Time) Option {
	return func(d *Driver) { d.now = now }
}

// WithResultObserver receives the outcome of every PostArticle call.
func WithResultObserver(fn func(result string)) Option {
	return func(d *Driver) { d.observe = fn }
}

// New creates a driver for the given session and account.
func New(session Session, note config.NoteConfig, logger *zap.Logger, opts ...Option) *Driver {
	d := &Driver{
		session:       session,
		creds:         browser.Credentials{Email: note.Email, Password: note.Password},
		note:          note,
		screenshotDir: ".",
		human:         humanoid.New(),
		now:           time.Now,
		observe:       func(string) {},
		logger:        logger.Named("publisher"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// step runs one idempotent UI step under the retry policy, labelling failures with its name.
func (d *Driver) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	opts := append([]retry.Option{}, d.retryOpts...)
	opts = append(opts, retry.WithName(name), retry.WithLogger(d.logger))
	if err := retry.Do(ctx, fn, opts...); err != nil {
		return &PublicationError{Step: name, Err: err}
	}
	return nil
}

// once runs a step that must not be repeated.
func (d *Driver) once(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if err := fn(ctx); err != nil {
		return &PublicationError{Step: name, Err: err}
	}
	return nil
}

func (d *Driver) pause(ctx context.Context, name string, delay time.Duration) error {
	if err := d.human.Pause(ctx, delay); err != nil {
		return &PublicationError{Step: name, Err: err}
	}
	return nil
}

// ready authenticates lazily and returns the page. The caller holds the lease.
func (d *Driver) ready(ctx context.Context) (browser.Page, error) {
	if err := d.session.Authenticate(ctx, d.creds); err != nil {
		return nil, err
	}
	return d.session.Page()
}

// PostArticle composes the article and, when opts.PublishNow is set, publishes it with the
// requested pricing and hashtags. Otherwise the article is left as a draft.
func (d *Driver) PostArticle(ctx context.Context, article schemas.Article, opts schemas.PublishOptions) (*schemas.PublicationResult, error) {
	if err := article.Validate(); err != nil {
		return nil, &PublicationError{Step: "validate article", Err: err}
	}
	if err := opts.Validate(); err != nil {
		return nil, &PublicationError{Step: "validate options", Err: err}
	}

	release, err := d.session.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	result, err := d.postArticle(ctx, article, opts)
	if err != nil {
		d.logger.Error("Failed to post article", zap.String("title", article.Title), zap.Error(err))
		d.captureScreenshot(ctx)
		d.observe(ResultFailed)
		return nil, err
	}
	if opts.PublishNow {
		d.observe(ResultPublished)
	} else {
		d.observe(ResultDraft)
	}
	return result, nil
}

func (d *Driver) postArticle(ctx context.Context, article schemas.Article, opts schemas.PublishOptions) (*schemas.PublicationResult, error) {
	p, err := d.ready(ctx)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Posting article", zap.String("title", article.Title), zap.Bool("publish_now", opts.PublishNow))
	if err := d.compose(ctx, p, article); err != nil {
		return nil, err
	}

	if opts.PublishNow {
		if err := d.publish(ctx, p, opts); err != nil {
			return nil, err
		}
	} else {
		d.logger.Info("Leaving article as draft", zap.String("title", article.Title))
	}

	var current string
	if err := d.once(ctx, "read article url", func(ctx context.Context) error {
		var err error
		current, err = p.URL(ctx)
		return err
	}); err != nil {
		return nil, err
	}

	d.logger.Info("Article posted", zap.String("title", article.Title), zap.String("url", current))
	return &schemas.PublicationResult{
		Success:  true,
		URL:      current,
		Title:    article.Title,
		PostedAt: d.now(),
	}, nil
}

// compose opens a fresh editor and enters the title and the plain text body.
func (d *Driver) compose(ctx context.Context, p browser.Page, article schemas.Article) error {
	sel := d.note.Selectors

	if err := d.step(ctx, "open editor", func(ctx context.Context) error {
		return p.Navigate(ctx, d.note.ComposeURL)
	}); err != nil {
		return err
	}
	if err := d.step(ctx, "wait for editor", func(ctx context.Context) error {
		return p.WaitVisible(ctx, sel.Editor, d.note.EditorTimeout)
	}); err != nil {
		return err
	}
	if err := d.step(ctx, "fill title", func(ctx context.Context) error {
		if err := p.WaitVisible(ctx, sel.Title, 0); err != nil {
			return err
		}
		return browser.Fill(ctx, p, sel.Title, article.Title)
	}); err != nil {
		return err
	}
	if err := d.step(ctx, "focus body", func(ctx context.Context) error {
		if err := p.WaitVisible(ctx, sel.Body, 0); err != nil {
			return err
		}
		return p.Click(ctx, sel.Body)
	}); err != nil {
		return err
	}
	if err := d.pause(ctx, "focus body", d.note.Delays.BodyFocus); err != nil {
		return err
	}

	body := PlainText(article.Content)
	if err := d.step(ctx, "fill body", func(ctx context.Context) error {
		return browser.Fill(ctx, p, sel.Body, body)
	}); err != nil {
		return err
	}
	return d.pause(ctx, "fill body", d.note.Delays.TypingSettle)
}

// publish applies the publish settings and confirms. The confirmation runs exactly once.
func (d *Driver) publish(ctx context.Context, p browser.Page, opts schemas.PublishOptions) error {
	sel := d.note.Selectors
	d.logger.Info("Publishing article")

	if err := d.step(ctx, "open publish settings", func(ctx context.Context) error {
		// A retry must not toggle an already open modal shut.
		open, err := p.Exists(ctx, sel.PublishModal)
		if err != nil {
			return err
		}
		if !open {
			if err := p.WaitVisible(ctx, sel.PublishButton, 0); err != nil {
				return err
			}
			if err := p.Click(ctx, sel.PublishButton); err != nil {
				return err
			}
		}
		return p.WaitVisible(ctx, sel.PublishModal, 0)
	}); err != nil {
		return err
	}

	if opts.IsPaid {
		if err := d.step(ctx, "select paid pricing", func(ctx context.Context) error {
			return p.Click(ctx, sel.PaidOption)
		}); err != nil {
			return err
		}
		price := strconv.Itoa(opts.Price)
		if err := d.step(ctx, "set price", func(ctx context.Context) error {
			return browser.Fill(ctx, p, sel.Price, price)
		}); err != nil {
			return err
		}
	}

	if err := d.applyHashtags(ctx, p, opts.Hashtags); err != nil {
		return err
	}

	if err := d.once(ctx, "confirm publication", func(ctx context.Context) error {
		return p.ClickAndWaitNavigation(ctx, sel.Confirm)
	}); err != nil {
		return err
	}
	d.logger.Info("Article published")
	return nil
}

func (d *Driver) applyHashtags(ctx context.Context, p browser.Page, tags []string) error {
	if len(tags) == 0 {
		return nil
	}
	sel := d.note.Selectors

	var present bool
	if err := d.step(ctx, "find hashtag input", func(ctx context.Context) error {
		var err error
		present, err = p.Exists(ctx, sel.Hashtag)
		return err
	}); err != nil {
		return err
	}
	if !present {
		d.logger.Warn("Hashtag input not found, publishing without tags", zap.Strings("hashtags", tags))
		return nil
	}

	delay := d.note.Delays.Hashtag
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		if err := d.step(ctx, "enter hashtag", func(ctx context.Context) error {
			return browser.Fill(ctx, p, sel.Hashtag, tag)
		}); err != nil {
			return err
		}
		// Enter commits the tag; repeating it could add a duplicate.
		if err := d.once(ctx, "commit hashtag", func(ctx context.Context) error {
			return p.Press(ctx, browser.KeyEnter, 0)
		}); err != nil {
			return err
		}
		if err := d.human.RandomDelay(ctx, delay, 2*delay); err != nil {
			return &PublicationError{Step: "commit hashtag", Err: err}
		}
	}
	return nil
}

// SaveDraft stores the editor contents with the save shortcut. The editor is composed first
// when the article is not already open in it. Success is assumed once the settle delay passes
// without error; the platform shows no confirmation marker.
func (d *Driver) SaveDraft(ctx context.Context, article schemas.Article) error {
	if err := article.Validate(); err != nil {
		return &PublicationError{Step: "validate article", Err: err}
	}

	release, err := d.session.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	if err := d.saveDraft(ctx, article); err != nil {
		d.logger.Error("Failed to save draft", zap.String("title", article.Title), zap.Error(err))
		d.captureScreenshot(ctx)
		return err
	}
	d.logger.Info("Draft saved", zap.String("title", article.Title))
	return nil
}

func (d *Driver) saveDraft(ctx context.Context, article schemas.Article) error {
	p, err := d.ready(ctx)
	if err != nil {
		return err
	}

	var editing bool
	if err := d.step(ctx, "check editor", func(ctx context.Context) error {
		var err error
		editing, err = p.Exists(ctx, d.note.Selectors.Editor)
		return err
	}); err != nil {
		return err
	}
	if !editing {
		if err := d.compose(ctx, p, article); err != nil {
			return err
		}
	}

	if err := d.step(ctx, "save draft", func(ctx context.Context) error {
		return p.Press(ctx, browser.KeyS, browser.ModCtrl)
	}); err != nil {
		return err
	}
	return d.pause(ctx, "save draft", d.note.Delays.DraftSettle)
}

// GetArticleList reads up to limit entries from the account page in the order rendered.
// A non-positive limit reads the default of 10.
func (d *Driver) GetArticleList(ctx context.Context, limit int) ([]schemas.ArticleEntry, error) {
	release, err := d.session.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	entries, err := d.getArticleList(ctx, limit)
	if err != nil {
		d.logger.Error("Failed to get article list", zap.Error(err))
		return nil, err
	}
	return entries, nil
}

func (d *Driver) getArticleList(ctx context.Context, limit int) ([]schemas.ArticleEntry, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	p, err := d.ready(ctx)
	if err != nil {
		return nil, err
	}

	d.logger.Info("Fetching article list", zap.Int("limit", limit))
	if err := d.step(ctx, "open account page", func(ctx context.Context) error {
		return p.Navigate(ctx, d.note.AccountURL)
	}); err != nil {
		return nil, err
	}

	var html string
	if err := d.step(ctx, "read article list", func(ctx context.Context) error {
		var err error
		html, err = p.OuterHTML(ctx, "body")
		return err
	}); err != nil {
		return nil, err
	}

	entries, err := parseArticleList(html, d.note, limit, d.now())
	if err != nil {
		return nil, &PublicationError{Step: "parse article list", Err: err}
	}
	d.logger.Info("Retrieved articles", zap.Int("count", len(entries)))
	return entries, nil
}

// parseArticleList extracts entries that have both a title and a link. Relative links are
// resolved against the account page URL.
func parseArticleList(html string, note config.NoteConfig, limit int, now time.Time) ([]schemas.ArticleEntry, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}
	base, _ := url.Parse(note.AccountURL)
	sel := note.Selectors

	entries := []schemas.ArticleEntry{}
	doc.Find(sel.ListItem).EachWithBreak(func(i int, item *goquery.Selection) bool {
		if i >= limit {
			return false
		}
		title := item.Find(sel.ListTitle).First()
		link := item.Find(sel.ListLink).First()
		href, ok := link.Attr("href")
		if title.Length() == 0 || !ok {
			return true
		}

		entry := schemas.ArticleEntry{
			Title: strings.TrimSpace(title.Text()),
			URL:   resolveLink(base, href),
		}
		if dateSel := item.Find(sel.ListDate).First(); dateSel.Length() > 0 {
			entry.RawDate = strings.TrimSpace(dateSel.Text())
			if t, ok := parseEntryDate(entry.RawDate, now); ok {
				entry.Date = t
			}
		}
		entries = append(entries, entry)
		return true
	})
	return entries, nil
}

func resolveLink(base *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil || base == nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

// CheckPostingLimits reports whether today's post may go out. When history cannot be read
// it fails open: posting is allowed and the failure is only logged.
func (d *Driver) CheckPostingLimits(ctx context.Context) schemas.PostingLimitCheck {
	entries, err := d.GetArticleList(ctx, limitCheckWindow)
	if err != nil {
		d.logger.Warn("Failed to check posting limits, allowing post", zap.Error(err))
		return schemas.PostingLimitCheck{CanPost: true, RecentArticles: []schemas.ArticleEntry{}}
	}
	check := EvaluatePostingLimit(entries, d.now())
	d.logger.Info("Posting limit evaluated",
		zap.Bool("can_post", check.CanPost),
		zap.Int("today_post_count", check.TodayPostCount),
	)
	return check
}

// VerifyLogin signs in without opening the editor.
func (d *Driver) VerifyLogin(ctx context.Context) error {
	release, err := d.session.Acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, err = d.ready(ctx)
	return err
}

// Close releases the browser. It does not wait for the lease so shutdown cannot hang
// behind a stuck operation.
func (d *Driver) Close() error {
	return d.session.Close()
}

// captureScreenshot writes a full page screenshot for diagnosis. Every failure here is
// logged and swallowed.
func (d *Driver) captureScreenshot(ctx context.Context) {
	p, err := d.session.Page()
	if err != nil {
		return
	}

	// The operation's context may already be done; the screenshot gets its own bound.
	shotCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), screenshotTimeout)
	defer cancel()

	data, err := p.Screenshot(shotCtx)
	if err != nil {
		d.logger.Warn("Failed to take screenshot", zap.Error(err))
		return
	}

	dir, err := homedir.Expand(d.screenshotDir)
	if err != nil {
		d.logger.Warn("Failed to resolve screenshot directory", zap.String("dir", d.screenshotDir), zap.Error(err))
		return
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		d.logger.Warn("Failed to create screenshot directory", zap.String("dir", dir), zap.Error(err))
		return
	}
	path := filepath.Join(dir, fmt.Sprintf("error-screenshot-%d.png", d.now().UnixMilli()))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		d.logger.Warn("Failed to write screenshot", zap.String("path", path), zap.Error(err))
		return
	}
	d.logger.Info("Saved error screenshot", zap.String("path", path))
}
