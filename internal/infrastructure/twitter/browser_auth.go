package twitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"SignalMonitor/internal/domain"
	"SignalMonitor/internal/ports"
)

const (
	usernameInput  = `input[autocomplete="username"]`
	passwordInput  = `input[name="password"]`
	challengeInput = `input[data-testid="ocfEnterTextTextInput"]`
)

// BrowserOptions configures the headless login flow.
type BrowserOptions struct {
	LoginURL    string
	Headless    bool
	Interactive bool
	// ChallengeWait bounds how long an operator gets to finish a verification
	// prompt in the visible browser when Interactive is set.
	ChallengeWait time.Duration
	Timeout       time.Duration
}

// BrowserAuthenticator logs in through a real Chrome instance and returns the
// resulting cookies as the session.
type BrowserAuthenticator struct {
	opts   BrowserOptions
	logger *slog.Logger
}

var _ ports.Authenticator = (*BrowserAuthenticator)(nil)

// NewBrowserAuthenticator wires the login flow.
func NewBrowserAuthenticator(opts BrowserOptions, logger *slog.Logger) *BrowserAuthenticator {
	if opts.LoginURL == "" {
		opts.LoginURL = defaultBaseURL + "/i/flow/login"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 90 * time.Second
	}
	if opts.ChallengeWait <= 0 {
		opts.ChallengeWait = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserAuthenticator{opts: opts, logger: logger}
}

// Authenticate runs the username, optional email confirmation and password
// steps. A verification prompt after the password yields
// domain.ErrChallengeRequired unless the operator completes it interactively.
func (a *BrowserAuthenticator) Authenticate(ctx context.Context, creds domain.Credentials) (domain.Session, error) {
	if creds.Username == "" || creds.Password == "" {
		return domain.Session{}, fmt.Errorf("missing username or password: %w", domain.ErrAuthRequired)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", a.opts.Headless && !a.opts.Interactive),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(defaultUserAgent),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	defer browserCancel()

	budget := a.opts.Timeout
	if a.opts.Interactive {
		budget += a.opts.ChallengeWait
	}
	runCtx, cancel := context.WithTimeout(browserCtx, budget)
	defer cancel()

	a.logger.Info("starting browser login", "url", a.opts.LoginURL, "headless", a.opts.Headless)

	err := chromedp.Run(runCtx,
		chromedp.Navigate(a.opts.LoginURL),
		chromedp.WaitVisible(usernameInput, chromedp.ByQuery),
		chromedp.SendKeys(usernameInput, creds.Username+kb.Enter, chromedp.ByQuery),
		chromedp.Sleep(2*time.Second),
	)
	if err != nil {
		return domain.Session{}, a.wrapRunErr(ctx, "username step", err)
	}

	// an "unusual activity" prompt asks for the email or phone before the password
	if present, err := a.present(runCtx, challengeInput); err != nil {
		return domain.Session{}, a.wrapRunErr(ctx, "identity check", err)
	} else if present {
		if creds.Email == "" {
			return a.awaitOperator(ctx, runCtx, "identity confirmation requested and no email configured")
		}
		err := chromedp.Run(runCtx,
			chromedp.SendKeys(challengeInput, creds.Email+kb.Enter, chromedp.ByQuery),
			chromedp.Sleep(2*time.Second),
		)
		if err != nil {
			return domain.Session{}, a.wrapRunErr(ctx, "identity step", err)
		}
	}

	err = chromedp.Run(runCtx,
		chromedp.WaitVisible(passwordInput, chromedp.ByQuery),
		chromedp.SendKeys(passwordInput, creds.Password+kb.Enter, chromedp.ByQuery),
		chromedp.Sleep(3*time.Second),
	)
	if err != nil {
		return domain.Session{}, a.wrapRunErr(ctx, "password step", err)
	}

	if present, err := a.present(runCtx, challengeInput); err != nil {
		return domain.Session{}, a.wrapRunErr(ctx, "verification check", err)
	} else if present {
		return a.awaitOperator(ctx, runCtx, "verification code requested")
	}

	if err := a.waitForHome(runCtx, 30*time.Second); err != nil {
		return domain.Session{}, fmt.Errorf("login did not reach home: %w", domain.ErrAuth)
	}

	return a.collectSession(runCtx)
}

func (a *BrowserAuthenticator) awaitOperator(parent, runCtx context.Context, reason string) (domain.Session, error) {
	if !a.opts.Interactive {
		return domain.Session{}, fmt.Errorf("%s: %w", reason, domain.ErrChallengeRequired)
	}

	a.logger.Warn("waiting for operator to finish login in the browser", "reason", reason, "timeout", a.opts.ChallengeWait)
	if err := a.waitForHome(runCtx, a.opts.ChallengeWait); err != nil {
		if parent.Err() != nil {
			return domain.Session{}, parent.Err()
		}
		return domain.Session{}, fmt.Errorf("%s: operator did not finish in time: %w", reason, domain.ErrChallengeRequired)
	}
	return a.collectSession(runCtx)
}

func (a *BrowserAuthenticator) waitForHome(ctx context.Context, limit time.Duration) error {
	deadline := time.Now().Add(limit)
	for {
		var location string
		if err := chromedp.Run(ctx, chromedp.Location(&location)); err != nil {
			return err
		}
		if strings.Contains(location, "/home") {
			return nil
		}
		if time.Now().After(deadline) {
			return errors.New("timed out waiting for home")
		}
		if err := chromedp.Run(ctx, chromedp.Sleep(time.Second)); err != nil {
			return err
		}
	}
}

func (a *BrowserAuthenticator) present(ctx context.Context, selector string) (bool, error) {
	var count int
	err := chromedp.Run(ctx,
		chromedp.Evaluate(fmt.Sprintf(`document.querySelectorAll('%s').length`, strings.ReplaceAll(selector, `'`, `\'`)), &count),
	)
	return count > 0, err
}

func (a *BrowserAuthenticator) collectSession(ctx context.Context) (domain.Session, error) {
	var cookies []*network.Cookie
	err := chromedp.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return domain.Session{}, fmt.Errorf("read cookies: %w: %v", domain.ErrTransient, err)
	}

	jar := make(map[string]string, len(cookies))
	for _, c := range cookies {
		jar[c.Name] = c.Value
	}
	if jar["auth_token"] == "" {
		return domain.Session{}, fmt.Errorf("login finished without auth_token cookie: %w", domain.ErrAuth)
	}

	a.logger.Info("browser login succeeded", "cookies", len(jar))
	return domain.Session{
		Credentials:   jar,
		Status:        domain.SessionActive,
		LastValidated: time.Now(),
	}, nil
}

func (a *BrowserAuthenticator) wrapRunErr(parent context.Context, step string, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s timed out: %w", step, domain.ErrTransient)
	}
	return fmt.Errorf("%s: %w: %v", step, domain.ErrTransient, err)
}
