package view

const (
	StatusConnecting  = "Status: connecting..."
	StatusConnected   = "Status: Backend is connected!"
	StatusUnreachable = "Status: Backend is unreachable"
)

type StatusPageParams struct {
	Title string

	// APIBaseURL is prefixed to /api/health and /api/message. Empty means the same origin.
	APIBaseURL string
}

// statusPageConfig is read by the status page script from the status-page-config element.
type statusPageConfig struct {
	APIBaseURL  string `json:"apiBaseURL"`
	Connected   string `json:"connected"`
	Unreachable string `json:"unreachable"`
}

func newStatusPageConfig(params StatusPageParams) statusPageConfig {
	return statusPageConfig{
		APIBaseURL:  params.APIBaseURL,
		Connected:   StatusConnected,
		Unreachable: StatusUnreachable,
	}
}
