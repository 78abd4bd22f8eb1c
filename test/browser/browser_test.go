package browser_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/jackc/pagecheck/httpz"
	"github.com/jackc/pagecheck/runner"
	"github.com/jackc/pagecheck/test/testbrowser"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var concurrentTestBrowser *testbrowser.Manager

func TestMain(m *testing.M) {
	os.Exit(func() int {
		logger := zerolog.New(zerolog.NewConsoleWriter()).Level(zerolog.WarnLevel).With().Timestamp().Logger()

		var err error
		concurrentTestBrowser, err = testbrowser.NewManager(testbrowser.ManagerConfig{Logger: &logger})
		if err != nil {
			fmt.Println("failed to create browser manager:", err)
			return 1
		}
		defer concurrentTestBrowser.Close()

		return m.Run()
	}())
}

// startServer serves the status page application with options until t finishes.
func startServer(t testing.TB, options httpz.Options) *httptest.Server {
	t.Helper()

	logger := zerolog.Nop()
	handler, err := httpz.NewHandler(&logger, options)
	require.NoError(t, err)

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return server
}

// startHandlerServer serves h until t finishes.
func startHandlerServer(t testing.TB, h http.HandlerFunc) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(h)
	t.Cleanup(server.Close)

	return server
}

func newRunner(t testing.TB, config runner.Config) *runner.Runner {
	t.Helper()

	logger := zerolog.Nop()
	r, err := runner.New(concurrentTestBrowser.Navigator(), config, &logger)
	require.NoError(t, err)

	return r
}
