// Package testbrowser provides browser pages for tests.
package testbrowser

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/jackc/pagecheck/browser"
	"github.com/jackc/pagecheck/eventually"
	"github.com/jackc/pagecheck/runner"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type ManagerConfig struct {
	// ControlURL of an already running browser. Defaults to the BROWSER_URL environment variable. If both are empty a
	// browser is launched.
	ControlURL string

	// MaxPages defaults to the MAX_CONCURRENT_BROWSER_TESTS environment variable or 1.
	MaxPages int

	Logger *zerolog.Logger
}

type Manager struct {
	manager *browser.Manager
}

func NewManager(config ManagerConfig) (*Manager, error) {
	if config.ControlURL == "" {
		config.ControlURL = os.Getenv("BROWSER_URL")
	}

	if config.MaxPages == 0 {
		config.MaxPages = 1
		if n, err := strconv.ParseInt(os.Getenv("MAX_CONCURRENT_BROWSER_TESTS"), 10, 32); err == nil {
			config.MaxPages = int(n)
		}
	}

	manager, err := browser.NewManager(context.Background(), browser.ManagerConfig{
		ControlURL:  config.ControlURL,
		ShowBrowser: os.Getenv("SHOW_BROWSER") != "",
		MaxPages:    config.MaxPages,
		Logger:      config.Logger,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{manager: manager}, nil
}

// Browser returns the underlying browser.Manager.
func (m *Manager) Browser() *browser.Manager {
	return m.manager
}

// Navigator returns a runner.Navigator backed by the shared browser.
func (m *Manager) Navigator() runner.Navigator {
	return m.manager.Navigator()
}

func (m *Manager) Close() error {
	return m.manager.Close()
}

// Load opens target in a new page that is closed when t finishes. It fails t if the page does not load.
func (m *Manager) Load(t testing.TB, target string) *Page {
	t.Helper()

	page, err := m.manager.Load(context.Background(), target, 30*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		page.Close()
	})

	return &Page{t: t, page: page}
}

type Page struct {
	t    testing.TB
	page *browser.Page
}

func (p *Page) Page() *browser.Page {
	return p.page
}

// HasContent fails the test unless the page text contains text within the default deadline.
func (p *Page) HasContent(text string) eventually.Verdict {
	p.t.Helper()

	verdict, err := eventually.Check(context.Background(), p.page, eventually.Assertion{
		Predicate:    eventually.Contains(text),
		Deadline:     runner.DefaultDeadline,
		PollInterval: runner.DefaultPollInterval,
	})
	require.NoError(p.t, err)
	require.NoErrorf(p.t, verdict.Err(), "last seen content:\n%s", verdict.LastSeenContent)

	return verdict
}
