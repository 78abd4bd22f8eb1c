package runner

import (
	"fmt"
	"time"
)

const (
	DefaultDeadline          = 4 * time.Second
	DefaultPollInterval      = 50 * time.Millisecond
	DefaultNavigationTimeout = 30 * time.Second
)

// FailurePolicy controls whether a case stops at the first failing assertion.
type FailurePolicy int

const (
	// FailFast stops a case at its first failing assertion. Later assertions are not evaluated.
	FailFast FailurePolicy = iota

	// FailAccumulate evaluates every assertion and reports all failures.
	FailAccumulate
)

func (p FailurePolicy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case FailAccumulate:
		return "fail-accumulate"
	default:
		return fmt.Sprintf("FailurePolicy(%d)", int(p))
	}
}

func (p FailurePolicy) validate() error {
	if p != FailFast && p != FailAccumulate {
		return fmt.Errorf("%w: unknown failure policy %v", ErrInvalidAssertionConfig, p)
	}
	return nil
}

// ParseFailurePolicy parses "fail-fast" or "fail-accumulate".
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch s {
	case "fail-fast", "failfast":
		return FailFast, nil
	case "fail-accumulate", "failaccumulate":
		return FailAccumulate, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q: must be fail-fast or fail-accumulate", s)
	}
}

// Config holds the defaults applied to every Case run by a Runner. Zero durations are replaced by the package
// defaults.
type Config struct {
	DefaultDeadline     time.Duration
	DefaultPollInterval time.Duration
	NavigationTimeout   time.Duration
	FailurePolicy       FailurePolicy
}

func (c Config) withDefaults() Config {
	if c.DefaultDeadline == 0 {
		c.DefaultDeadline = DefaultDeadline
	}
	if c.DefaultPollInterval == 0 {
		c.DefaultPollInterval = DefaultPollInterval
	}
	if c.NavigationTimeout == 0 {
		c.NavigationTimeout = DefaultNavigationTimeout
	}
	return c
}

func (c Config) Validate() error {
	if c.DefaultDeadline <= 0 {
		return fmt.Errorf("%w: default deadline must be positive, got %v", ErrInvalidAssertionConfig, c.DefaultDeadline)
	}
	if c.DefaultPollInterval <= 0 {
		return fmt.Errorf("%w: default poll interval must be positive, got %v", ErrInvalidAssertionConfig, c.DefaultPollInterval)
	}
	if c.NavigationTimeout <= 0 {
		return fmt.Errorf("%w: navigation timeout must be positive, got %v", ErrInvalidAssertionConfig, c.NavigationTimeout)
	}
	return c.FailurePolicy.validate()
}
