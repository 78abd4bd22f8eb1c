package view_test

import (
	"bytes"
	"context"
	"encoding/json"
	"regexp"
	"testing"

	"github.com/jackc/pagecheck/view"
	"github.com/stretchr/testify/require"
)

var statusPageConfigRegexp = regexp.MustCompile(`<script id="status-page-config" type="application/json">(.*)\n</script>`)

func TestStatusPage(t *testing.T) {
	buf := &bytes.Buffer{}
	err := view.StatusPage(view.StatusPageParams{Title: "DevOps <Assignment>", APIBaseURL: "http://localhost:8000"}).Render(context.Background(), buf)
	require.NoError(t, err)

	html := buf.String()
	require.Contains(t, html, "<title>DevOps &lt;Assignment&gt;</title>")
	require.Contains(t, html, "<h1>DevOps &lt;Assignment&gt;</h1>")
	require.Contains(t, html, `<p id="status">Status: connecting...</p>`)

	match := statusPageConfigRegexp.FindStringSubmatch(html)
	require.Len(t, match, 2)

	var config map[string]string
	err = json.Unmarshal([]byte(match[1]), &config)
	require.NoError(t, err)
	require.Equal(t, map[string]string{
		"apiBaseURL":  "http://localhost:8000",
		"connected":   view.StatusConnected,
		"unreachable": view.StatusUnreachable,
	}, config)
}

func TestStatusPageConfigIsNotHTML(t *testing.T) {
	buf := &bytes.Buffer{}
	err := view.StatusPage(view.StatusPageParams{Title: "t", APIBaseURL: "</script><script>alert(1)</script>"}).Render(context.Background(), buf)
	require.NoError(t, err)

	html := buf.String()
	require.NotContains(t, html, "<script>alert(1)")

	match := statusPageConfigRegexp.FindStringSubmatch(html)
	require.Len(t, match, 2)

	var config map[string]string
	err = json.Unmarshal([]byte(match[1]), &config)
	require.NoError(t, err)
	require.Equal(t, "</script><script>alert(1)</script>", config["apiBaseURL"])
}
