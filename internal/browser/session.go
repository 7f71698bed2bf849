// internal/browser/session.go
package browser

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/autonote/internal/retry"
)

const (
	defaultAuthTimeout  = 10 * time.Second
	defaultPollInterval = 250 * time.Millisecond
)

// LoginSelectors locate the login form and the markers that report its outcome.
type LoginSelectors struct {
	Email    string
	Password string
	Submit   string
	// AuthMarker appears only once the account is signed in.
	AuthMarker string
	// InvalidCredentials appears when the form rejects the credentials. Optional.
	InvalidCredentials string
}

// SessionConfig configures a Session.
type SessionConfig struct {
	Launch    LaunchOptions
	LoginURL  string
	Selectors LoginSelectors
	// AuthTimeout bounds the wait for the authenticated marker.
	AuthTimeout  time.Duration
	PollInterval time.Duration
	// Retry configures per-step retries of the login flow.
	Retry []retry.Option
	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)
}

// Session owns one browser process and its single tab, and tracks whether the account is
// signed in. A Session is reusable: once closed, the next Initialize or Authenticate
// starts a fresh browser.
//
// Only one logical operation may drive the tab at a time. Callers hold the lease from
// Acquire for the duration of such an operation.
type Session struct {
	launcher Launcher
	cfg      SessionConfig
	logger   *zap.Logger

	lease chan struct{}

	// mu guards the fields below. It is never held across page I/O, so Close is not
	// blocked by an operation in flight.
	mu    sync.Mutex
	state State
	page  Page
	id    string
	// epoch is bumped by every Close. Work started under an older epoch is discarded.
	epoch uint64
}

// NewSession creates an uninitialized session.
func NewSession(launcher Launcher, cfg SessionConfig, logger *zap.Logger) *Session {
	if cfg.AuthTimeout <= 0 {
		cfg.AuthTimeout = defaultAuthTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	return &Session{
		launcher: launcher,
		cfg:      cfg,
		logger:   logger.Named("session"),
		lease:    make(chan struct{}, 1),
		state:    StateUninitialized,
	}
}

// Acquire takes exclusive use of the session, waiting while another operation holds it.
// The returned release func is idempotent.
func (s *Session) Acquire(ctx context.Context) (func(), error) {
	select {
	case s.lease <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-s.lease })
	}, nil
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// apply runs the state machine. Caller holds mu.
func (s *Session) apply(ev event) error {
	from := s.state
	to, err := transition(from, ev)
	if err != nil {
		return err
	}
	s.state = to
	s.logger.Debug("Session state changed",
		zap.String("session_id", s.id),
		zap.Stringer("from", from),
		zap.Stringer("to", to),
	)
	if s.cfg.OnTransition != nil && from != to {
		s.cfg.OnTransition(from, to)
	}
	return nil
}

// Initialize launches the browser if the session is not already running one.
func (s *Session) Initialize(ctx context.Context) error {
	_, _, err := s.ensurePage(ctx)
	return err
}

// ensurePage returns the running tab and the epoch it belongs to, launching a browser when
// none is running. The launch happens without mu held.
func (s *Session) ensurePage(ctx context.Context) (Page, uint64, error) {
	s.mu.Lock()
	if s.state == StateInitialized || s.state == StateAuthenticated {
		p, epoch := s.page, s.epoch
		s.mu.Unlock()
		return p, epoch, nil
	}
	epoch := s.epoch
	s.mu.Unlock()

	page, err := s.launcher.Launch(ctx, s.cfg.Launch)
	if err != nil {
		s.logger.Error("Failed to launch browser", zap.Error(err))
		return nil, 0, &SessionInitError{Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.epoch != epoch:
		s.discard(page)
		return nil, 0, &SessionInitError{Err: ErrSessionClosed}
	case s.state == StateInitialized || s.state == StateAuthenticated:
		// Another caller won the launch.
		s.discard(page)
		return s.page, s.epoch, nil
	}
	s.page = page
	s.id = uuid.NewString()
	s.logger.Info("Browser session initialized", zap.String("session_id", s.id))
	if err := s.apply(eventLaunched); err != nil {
		return nil, 0, err
	}
	return page, s.epoch, nil
}

func (s *Session) discard(p Page) {
	if err := p.Close(); err != nil {
		s.logger.Warn("Error closing surplus browser", zap.Error(err))
	}
}

// Authenticate signs in, initializing the browser first when needed. It is a no-op when
// the session is already authenticated. A Close while the login is running makes it fail
// with ErrSessionClosed.
func (s *Session) Authenticate(ctx context.Context, creds Credentials) error {
	s.mu.Lock()
	if s.state == StateAuthenticated {
		s.logger.Debug("Already authenticated", zap.String("session_id", s.id))
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	p, epoch, err := s.ensurePage(ctx)
	if err != nil {
		return err
	}
	id := s.sessionID()

	s.logger.Info("Signing in", zap.String("session_id", id), zap.String("email", creds.Email))
	loginErr := s.login(ctx, p, creds)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.logger.Warn("Session closed during sign in", zap.String("session_id", id), zap.NamedError("login_error", loginErr))
		return &AuthenticationError{Reason: ReasonStepFailed, Err: ErrSessionClosed}
	}
	if loginErr != nil {
		s.logger.Error("Sign in failed", zap.String("session_id", id), zap.Error(loginErr))
		return loginErr
	}
	s.logger.Info("Signed in", zap.String("session_id", id))
	return s.apply(eventLoggedIn)
}

func (s *Session) sessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// step runs one idempotent UI step under the configured retry policy.
func (s *Session) step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	opts := append([]retry.Option{}, s.cfg.Retry...)
	opts = append(opts, retry.WithName(name), retry.WithLogger(s.logger))
	return retry.Do(ctx, fn, opts...)
}

func (s *Session) login(ctx context.Context, p Page, creds Credentials) error {
	sel := s.cfg.Selectors
	stepFailed := func(err error) error {
		return &AuthenticationError{Reason: ReasonStepFailed, Err: err}
	}

	if err := s.step(ctx, "open login page", func(ctx context.Context) error {
		return p.Navigate(ctx, s.cfg.LoginURL)
	}); err != nil {
		return stepFailed(err)
	}
	if err := s.step(ctx, "wait for login form", func(ctx context.Context) error {
		return p.WaitVisible(ctx, sel.Email, 0)
	}); err != nil {
		return stepFailed(err)
	}
	if err := s.step(ctx, "fill email", func(ctx context.Context) error {
		return Fill(ctx, p, sel.Email, creds.Email)
	}); err != nil {
		return stepFailed(err)
	}
	if err := s.step(ctx, "fill password", func(ctx context.Context) error {
		return Fill(ctx, p, sel.Password, creds.Password)
	}); err != nil {
		return stepFailed(err)
	}

	// Submitting twice could trip the login throttle, so this step runs once.
	if err := p.ClickAndWaitNavigation(ctx, sel.Submit); err != nil {
		if !IsTimeout(err) {
			return stepFailed(err)
		}
		// Client side routing may not raise a navigation event; the marker decides.
		s.logger.Debug("No navigation after login submit", zap.Error(err))
	}

	return s.awaitMarker(ctx, p)
}

// awaitMarker polls for the authenticated marker, checking the rejection marker on each
// pass so bad credentials fail fast instead of waiting out the timeout.
func (s *Session) awaitMarker(ctx context.Context, p Page) error {
	sel := s.cfg.Selectors
	deadline := time.Now().Add(s.cfg.AuthTimeout)
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		ok, err := p.Exists(ctx, sel.AuthMarker)
		if err == nil && ok {
			return nil
		}
		if sel.InvalidCredentials != "" {
			if rejected, err := p.Exists(ctx, sel.InvalidCredentials); err == nil && rejected {
				return &AuthenticationError{Reason: ReasonInvalidCredentials}
			}
		}
		if !time.Now().Before(deadline) {
			return &AuthenticationError{
				Reason: ReasonMarkerTimeout,
				Err:    &TimeoutError{Op: "wait for " + sel.AuthMarker, Timeout: s.cfg.AuthTimeout, Err: err},
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return &AuthenticationError{Reason: ReasonStepFailed, Err: ctx.Err()}
		}
	}
}

// Page returns the tab of a running session.
func (s *Session) Page() (Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.page == nil || (s.state != StateInitialized && s.state != StateAuthenticated) {
		return nil, ErrNotInitialized
	}
	return s.page, nil
}

// Close releases the browser. It is safe to call from any state and more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.epoch++
	if s.state == StateClosed {
		return nil
	}

	var err error
	if s.page != nil {
		err = s.page.Close()
		s.page = nil
		if err != nil {
			s.logger.Warn("Error closing browser", zap.String("session_id", s.id), zap.Error(err))
		}
	}
	if terr := s.apply(eventClosed); terr != nil {
		err = errors.Join(err, terr)
	}
	s.logger.Info("Browser session closed", zap.String("session_id", s.id))
	return err
}

// Fill clears a field and types text into it, so repeating it leaves the same value.
func Fill(ctx context.Context, p Page, selector, text string) error {
	if err := p.Clear(ctx, selector); err != nil {
		return err
	}
	return p.Type(ctx, selector, text)
}
