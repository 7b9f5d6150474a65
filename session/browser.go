package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"

	"github.com/aluiziolira/go-scrape-baldor/models"
)

// Login page selectors.
const (
	emailInputSelector  = "input#EmailLoginForm_email"
	loginMarkerSelector = "div.loginbox.user-menu.js-user-menu"
)

// BrowserOptions configures the automated browser.
type BrowserOptions struct {
	UserAgent    string
	Headless     bool
	LoginTimeout time.Duration
}

// Browser is a live chromedp session. It is not safe for concurrent use.
type Browser struct {
	ctx         context.Context
	cancel      context.CancelFunc
	cancelAlloc context.CancelFunc
	opts        BrowserOptions
}

// NewBrowser starts a browser. Close must be called to release it.
func NewBrowser(ctx context.Context, opts BrowserOptions) (*Browser, error) {
	if opts.LoginTimeout <= 0 {
		opts.LoginTimeout = 15 * time.Second
	}

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
		chromedp.Flag("headless", opts.Headless),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	browserCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(func(format string, args ...any) {
			slog.Debug("browser", slog.String("message", fmt.Sprintf(format, args...)))
		}),
	)

	// An empty Run launches the browser process.
	if err := chromedp.Run(browserCtx); err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	return &Browser{
		ctx:         browserCtx,
		cancel:      cancel,
		cancelAlloc: cancelAlloc,
		opts:        opts,
	}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() {
	if b == nil {
		return
	}
	b.cancel()
	b.cancelAlloc()
}

// Login submits the account on the login page, waits for the signed-in user
// menu and returns the browser's cookies.
func (b *Browser) Login(ctx context.Context, loginURL string, creds Credentials) (models.CredentialBundle, error) {
	if err := creds.Validate(); err != nil {
		return models.CredentialBundle{}, err
	}

	formCtx, cancelForm := b.bounded(ctx)
	defer cancelForm()
	err := chromedp.Run(formCtx,
		chromedp.Navigate(loginURL),
		chromedp.WaitVisible(emailInputSelector, chromedp.ByQuery),
		chromedp.SendKeys(emailInputSelector, creds.Email+kb.Tab+creds.Password+kb.Enter, chromedp.ByQuery),
	)
	if err != nil {
		return models.CredentialBundle{}, fmt.Errorf("submit login form: %w", err)
	}

	waitCtx, cancelWait := b.bounded(ctx)
	defer cancelWait()
	if err := chromedp.Run(waitCtx, chromedp.WaitVisible(loginMarkerSelector, chromedp.ByQuery)); err != nil {
		return models.CredentialBundle{}, loginWaitError(err, b.opts.LoginTimeout)
	}

	var cookies []*network.Cookie
	err = chromedp.Run(b.ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return models.CredentialBundle{}, fmt.Errorf("read browser cookies: %w", err)
	}

	slog.Debug("browser login complete", slog.Int("cookies", len(cookies)))
	return bundleFromCookies(cookies), nil
}

// NavClasses waits for selector on pageURL and returns the class attribute
// of every match. An empty pageURL reuses the current page.
func (b *Browser) NavClasses(ctx context.Context, pageURL, selector string) ([]string, error) {
	runCtx, cancel := b.bounded(ctx)
	defer cancel()

	js := fmt.Sprintf(`Array.from(document.querySelectorAll(%s)).map(e => e.getAttribute("class") || "")`, strconv.Quote(selector))

	var actions []chromedp.Action
	if pageURL != "" {
		actions = append(actions, chromedp.Navigate(pageURL))
	}
	var classes []string
	actions = append(actions,
		chromedp.WaitReady(selector, chromedp.ByQuery),
		chromedp.Evaluate(js, &classes),
	)
	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, fmt.Errorf("read navigation %q: %w", selector, err)
	}
	return classes, nil
}

// bounded derives a context from the browser that expires after the login
// timeout and is also cancelled with ctx.
func (b *Browser) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithTimeout(b.ctx, b.opts.LoginTimeout)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func loginWaitError(err error, timeout time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &AuthTimeoutError{Marker: loginMarkerSelector, Timeout: timeout, Err: err}
	}
	return fmt.Errorf("wait for login: %w", err)
}

func bundleFromCookies(cookies []*network.Cookie) models.CredentialBundle {
	out := make([]models.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if c == nil {
			continue
		}
		out = append(out, models.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain})
	}
	return models.NewCredentialBundle(out...)
}

// BrowserProvider logs in with a fresh browser per call.
type BrowserProvider struct {
	LoginURL string
	Options  BrowserOptions
}

// Authenticate implements Provider.
func (p *BrowserProvider) Authenticate(ctx context.Context, creds Credentials) (models.CredentialBundle, error) {
	if err := creds.Validate(); err != nil {
		return models.CredentialBundle{}, err
	}
	b, err := NewBrowser(ctx, p.Options)
	if err != nil {
		return models.CredentialBundle{}, err
	}
	defer b.Close()
	return b.Login(ctx, p.LoginURL, creds)
}
