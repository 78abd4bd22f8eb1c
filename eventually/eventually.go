// Package eventually implements assertions over content that changes asynchronously.
//
// An assertion repeatedly samples the current text of a rendering surface until a predicate holds or a deadline
// elapses. A predicate that never holds is reported as a TimedOut verdict rather than an error. Errors are reserved
// for invalid assertions and cancellation.
package eventually

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// MinPollInterval is the smallest interval between samples. Shorter positive intervals are raised to it.
const MinPollInterval = time.Millisecond

var ErrInvalidAssertionConfig = errors.New("invalid assertion config")
var ErrAssertionTimeout = errors.New("assertion timed out")
var ErrCancelled = errors.New("cancelled")

// Sampler reads the current textual content of a rendering surface.
type Sampler interface {
	Text(ctx context.Context) (string, error)
}

// SamplerFunc adapts a function to a Sampler.
type SamplerFunc func(ctx context.Context) (string, error)

func (f SamplerFunc) Text(ctx context.Context) (string, error) {
	return f(ctx)
}

// Predicate is a pure function of the current content. Description is used in reports.
type Predicate struct {
	Description string
	Match       func(text string) bool
}

func (p Predicate) String() string {
	return p.Description
}

// Contains returns a Predicate that holds when the content contains s.
func Contains(s string) Predicate {
	return Predicate{
		Description: fmt.Sprintf("contains %q", s),
		Match: func(text string) bool {
			return strings.Contains(text, s)
		},
	}
}

// Matches returns a Predicate that holds when re matches somewhere in the content.
func Matches(re *regexp.Regexp) Predicate {
	return Predicate{
		Description: fmt.Sprintf("matches /%s/", re.String()),
		Match:       re.MatchString,
	}
}

type Assertion struct {
	// Name is optional. It identifies the assertion in logs and reports.
	Name string

	Predicate    Predicate
	Deadline     time.Duration
	PollInterval time.Duration
}

// Validate returns an error wrapping ErrInvalidAssertionConfig if a cannot be evaluated.
func (a Assertion) Validate() error {
	if a.Predicate.Match == nil {
		return fmt.Errorf("%w: predicate is missing", ErrInvalidAssertionConfig)
	}
	if a.Deadline <= 0 {
		return fmt.Errorf("%w: deadline must be positive, got %v", ErrInvalidAssertionConfig, a.Deadline)
	}
	if a.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive, got %v", ErrInvalidAssertionConfig, a.PollInterval)
	}

	return nil
}

// Label returns the name of the assertion, or the predicate description if it is unnamed.
func (a Assertion) Label() string {
	if a.Name != "" {
		return a.Name
	}
	return a.Predicate.Description
}

type Status int

const (
	Passed Status = iota + 1
	TimedOut
)

func (s Status) String() string {
	switch s {
	case Passed:
		return "passed"
	case TimedOut:
		return "timed out"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Verdict is the immutable outcome of one assertion.
type Verdict struct {
	Name      string
	Predicate string
	Status    Status

	// Elapsed is the time from the first sample to the sample that decided the verdict.
	Elapsed time.Duration

	Samples int

	// LastSeenContent is the content of the final sample.
	LastSeenContent string

	// LastSampleErr is the error of the final sample, if it failed.
	LastSampleErr error
}

// Passed reports whether the predicate held.
func (v Verdict) Passed() bool {
	return v.Status == Passed
}

// Err returns nil if v passed. Otherwise it returns an error wrapping ErrAssertionTimeout.
func (v Verdict) Err() error {
	if v.Status == Passed {
		return nil
	}

	if v.LastSampleErr != nil {
		return fmt.Errorf("%w: %s not satisfied after %v (%d samples, last sample failed: %v)", ErrAssertionTimeout, v.Predicate, v.Elapsed, v.Samples, v.LastSampleErr)
	}
	return fmt.Errorf("%w: %s not satisfied after %v (%d samples)", ErrAssertionTimeout, v.Predicate, v.Elapsed, v.Samples)
}

// Check evaluates a against sampler. The first sample is taken immediately. If the predicate does not hold, sampler
// is sampled every PollInterval until the predicate holds or Deadline has elapsed. The final sample is taken at the
// deadline.
//
// Check only returns an error if a is invalid or ctx is cancelled. A predicate that never holds results in a
// TimedOut Verdict.
func Check(ctx context.Context, sampler Sampler, a Assertion) (Verdict, error) {
	err := a.Validate()
	if err != nil {
		return Verdict{}, err
	}

	pollInterval := a.PollInterval
	if pollInterval < MinPollInterval {
		pollInterval = MinPollInterval
	}

	logger := zerolog.Ctx(ctx).With().Str("assertion", a.Label()).Logger()

	verdict := Verdict{
		Name:      a.Name,
		Predicate: a.Predicate.Description,
	}

	start := time.Now()
	deadline := start.Add(a.Deadline)

	for {
		if err := ctx.Err(); err != nil {
			return verdict, fmt.Errorf("%w: %w", ErrCancelled, err)
		}

		text, err := sampler.Text(ctx)
		verdict.Samples++
		verdict.Elapsed = time.Since(start)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return verdict, fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
			}
			verdict.LastSampleErr = err
			logger.Debug().Err(err).Int("sample", verdict.Samples).Dur("elapsed", verdict.Elapsed).Msg("sample failed")
		} else {
			verdict.LastSeenContent = text
			verdict.LastSampleErr = nil
			if a.Predicate.Match(text) {
				verdict.Status = Passed
				logger.Debug().Int("samples", verdict.Samples).Dur("elapsed", verdict.Elapsed).Msg("predicate satisfied")
				return verdict, nil
			}
		}

		if verdict.Elapsed >= a.Deadline {
			verdict.Status = TimedOut
			logger.Debug().Int("samples", verdict.Samples).Dur("elapsed", verdict.Elapsed).Msg("deadline elapsed")
			return verdict, nil
		}

		// The schedule is anchored at start. Ticks missed by a slow sample are skipped.
		tick := verdict.Elapsed/pollInterval + 1
		next := start.Add(tick * pollInterval)
		if next.After(deadline) {
			next = deadline
		}

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return verdict, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		case <-timer.C:
		}
	}
}
