// Package browser loads pages in a Chrome instance controlled with go-rod.
//
// A Manager owns one browser process and admits a bounded number of live pages. Every page is created in its own
// incognito browser context so pages never share cookies or storage.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/jackc/pagecheck/runner"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const defaultMaxPages = 1

type ManagerConfig struct {
	// ControlURL is the DevTools WebSocket URL of an already running browser. If empty a browser is launched.
	ControlURL string

	// ShowBrowser launches the browser with a visible window. It is ignored when ControlURL is set.
	ShowBrowser bool

	// MaxPages is the maximum number of simultaneously live pages. Load blocks while the limit is reached. Defaults
	// to 1.
	MaxPages int

	Logger *zerolog.Logger
}

type Manager struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	slots    *semaphore.Weighted
	logger   *zerolog.Logger

	live  atomic.Int64
	loads atomic.Int64
}

// NewManager launches or connects to a browser.
func NewManager(ctx context.Context, config ManagerConfig) (*Manager, error) {
	maxPages := config.MaxPages
	if maxPages == 0 {
		maxPages = defaultMaxPages
	}
	if maxPages < 0 {
		return nil, fmt.Errorf("max pages must be positive, got %d", maxPages)
	}

	logger := config.Logger
	if logger == nil {
		logger = zerolog.Ctx(ctx)
	}

	m := &Manager{
		slots:  semaphore.NewWeighted(int64(maxPages)),
		logger: logger,
	}

	controlURL := config.ControlURL
	if controlURL == "" {
		m.launcher = launcher.New().Headless(!config.ShowBrowser).Context(ctx)
		var err error
		controlURL, err = m.launcher.Launch()
		if err != nil {
			return nil, fmt.Errorf("launch browser: %w", err)
		}
		logger.Info().Str("control_url", controlURL).Bool("headless", !config.ShowBrowser).Msg("launched browser")
	}

	m.browser = rod.New().ControlURL(controlURL)
	err := m.browser.Connect()
	if err != nil {
		m.killLauncher()
		return nil, fmt.Errorf("connect to browser at %s: %w", controlURL, err)
	}
	logger.Info().Str("control_url", controlURL).Int("max_pages", maxPages).Msg("connected to browser")

	return m, nil
}

// Load acquires a page slot, opens target in a fresh page and waits for the page's load event. It fails with
// runner.ErrNavigationTimeout if the page is not loaded within timeout, runner.ErrNavigationError if the browser
// reports a network error or the document has an HTTP error status, and runner.ErrCancelled if ctx is cancelled.
//
// The caller must Close the returned Page. On error everything acquired by Load has already been released.
func (m *Manager) Load(ctx context.Context, target string, timeout time.Duration) (*Page, error) {
	err := m.slots.Acquire(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: waiting for a browser page: %w", runner.ErrCancelled, err)
	}

	p := &Page{manager: m, target: target}
	m.live.Add(1)
	m.loads.Add(1)

	err = p.open(ctx, timeout)
	if err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

// Navigator returns m as a runner.Navigator.
func (m *Manager) Navigator() runner.Navigator {
	return runner.NavigatorFunc(func(ctx context.Context, target string, timeout time.Duration) (runner.Surface, error) {
		page, err := m.Load(ctx, target, timeout)
		if err != nil {
			return nil, err
		}
		return page, nil
	})
}

// Live returns the number of pages that have been loaded and not yet closed.
func (m *Manager) Live() int {
	return int(m.live.Load())
}

// Loads returns the number of times Load has acquired a page slot.
func (m *Manager) Loads() int {
	return int(m.loads.Load())
}

// Close closes the browser. If the Manager launched the browser the process is killed and its user data removed.
func (m *Manager) Close() error {
	err := m.browser.Close()
	m.killLauncher()
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	return nil
}

func (m *Manager) killLauncher() {
	if m.launcher != nil {
		m.launcher.Kill()
		m.launcher.Cleanup()
	}
}

// Page is a loaded page. It is not safe for concurrent use.
type Page struct {
	manager   *Manager
	target    string
	incognito *rod.Browser
	page      *rod.Page

	closeOnce sync.Once
	closeErr  error
}

const responseStatusJS = `() => {
	const entry = performance.getEntriesByType("navigation")[0];
	return entry && entry.responseStatus ? entry.responseStatus : 0;
}`

const bodyTextJS = `() => document.body ? document.body.innerText : ""`

func (p *Page) open(ctx context.Context, timeout time.Duration) error {
	var err error
	p.incognito, err = p.manager.browser.Incognito()
	if err != nil {
		return fmt.Errorf("%w: create browser context: %w", runner.ErrNavigationError, err)
	}

	p.page, err = p.incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		return fmt.Errorf("%w: create page: %w", runner.ErrNavigationError, err)
	}

	loading := p.page.Context(ctx).Timeout(timeout)
	defer loading.CancelTimeout()

	err = loading.Navigate(p.target)
	if err == nil {
		err = loading.WaitLoad()
	}
	if err != nil {
		return p.classifyLoadError(ctx, timeout, err)
	}

	status, err := loading.Eval(responseStatusJS)
	if err != nil {
		return p.classifyLoadError(ctx, timeout, err)
	}
	if code := status.Value.Int(); code >= 400 {
		return fmt.Errorf("%w: %s responded with HTTP status %d", runner.ErrNavigationError, p.target, code)
	}

	p.manager.logger.Debug().Str("target", p.target).Msg("page loaded")
	return nil
}

func (p *Page) classifyLoadError(ctx context.Context, timeout time.Duration, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: loading %s: %w", runner.ErrCancelled, p.target, ctxErr)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s did not finish loading within %v", runner.ErrNavigationTimeout, p.target, timeout)
	}

	var navErr *rod.NavigationError
	if errors.As(err, &navErr) {
		return fmt.Errorf("%w: %s: %s", runner.ErrNavigationError, p.target, navErr.Reason)
	}

	return fmt.Errorf("%w: %s: %w", runner.ErrNavigationError, p.target, err)
}

// Text returns the rendered text of the page body.
func (p *Page) Text(ctx context.Context) (string, error) {
	obj, err := p.page.Context(ctx).Eval(bodyTextJS)
	if err != nil {
		return "", fmt.Errorf("read page text: %w", err)
	}

	return obj.Value.Str(), nil
}

// Target returns the URL the page was loaded from.
func (p *Page) Target() string {
	return p.target
}

// Rod returns the underlying rod page.
func (p *Page) Rod() *rod.Page {
	return p.page
}

// Close closes the page and its browser context and releases its slot. It is safe to call more than once.
func (p *Page) Close() error {
	p.closeOnce.Do(func() {
		if p.page != nil {
			err := p.page.Close()
			if err != nil {
				p.closeErr = fmt.Errorf("close page: %w", err)
			}
		}
		if p.incognito != nil {
			err := p.incognito.Close()
			if err != nil && p.closeErr == nil {
				p.closeErr = fmt.Errorf("close browser context: %w", err)
			}
		}

		p.manager.live.Add(-1)
		p.manager.slots.Release(1)
	})

	return p.closeErr
}
