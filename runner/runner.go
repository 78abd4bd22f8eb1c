// Package runner sequences content assertions against a single loaded page.
//
// A Case loads one target through a Navigator, evaluates its assertions strictly in order and always releases the
// loaded Surface before returning, whether the case passed, failed, was cancelled or panicked.
package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pagecheck/eventually"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var ErrNavigationTimeout = errors.New("navigation timed out")
var ErrNavigationError = errors.New("navigation failed")

// Errors produced by the assertion engine. They are repeated here so callers of runner need only one import.
var (
	ErrInvalidAssertionConfig = eventually.ErrInvalidAssertionConfig
	ErrAssertionTimeout       = eventually.ErrAssertionTimeout
	ErrCancelled              = eventually.ErrCancelled
)

// Surface is a loaded, live rendering surface. It is owned by one Case and closed exactly once.
type Surface interface {
	eventually.Sampler
	Close() error
}

// Navigator loads a target into a fresh Surface. Load must block until the surface signals it is ready or timeout
// elapses. Failures should wrap ErrNavigationTimeout, ErrNavigationError or ErrCancelled.
type Navigator interface {
	Load(ctx context.Context, target string, timeout time.Duration) (Surface, error)
}

// NavigatorFunc adapts a function to a Navigator.
type NavigatorFunc func(ctx context.Context, target string, timeout time.Duration) (Surface, error)

func (f NavigatorFunc) Load(ctx context.Context, target string, timeout time.Duration) (Surface, error) {
	return f(ctx, target, timeout)
}

type Case struct {
	Name   string
	Target string

	// Assertions are evaluated in order. A zero Deadline or PollInterval is replaced by the Config default.
	Assertions []eventually.Assertion

	// FailurePolicy overrides Config.FailurePolicy when not nil.
	FailurePolicy *FailurePolicy

	// NavigationTimeout overrides Config.NavigationTimeout when not zero.
	NavigationTimeout time.Duration
}

type CaseStatus int

const (
	CasePassed CaseStatus = iota + 1
	CaseFailed
)

func (s CaseStatus) String() string {
	switch s {
	case CasePassed:
		return "passed"
	case CaseFailed:
		return "failed"
	default:
		return fmt.Sprintf("CaseStatus(%d)", int(s))
	}
}

// Failure describes one assertion that did not pass.
type Failure struct {
	Assertion       string
	Predicate       string
	LastSeenContent string
	Elapsed         time.Duration
	Err             error
}

type CaseVerdict struct {
	ID     uuid.UUID
	Name   string
	Target string
	Status CaseStatus

	// Verdicts holds one entry per evaluated assertion in evaluation order. With FailFast the assertions after the
	// first failure are not evaluated and have no entry.
	Verdicts []eventually.Verdict

	Failures []Failure

	// Cause is set when the case could not evaluate its assertions: invalid configuration, navigation failure or
	// cancellation. It is nil when the case failed only because of assertion timeouts.
	Cause error

	StartedAt time.Time
	Elapsed   time.Duration
}

func (cv *CaseVerdict) Passed() bool {
	return cv.Status == CasePassed
}

// Err summarizes why the case failed. It returns nil if the case passed.
func (cv *CaseVerdict) Err() error {
	if cv.Status == CasePassed {
		return nil
	}
	if cv.Cause != nil {
		return cv.Cause
	}

	errs := make([]error, 0, len(cv.Failures))
	for _, f := range cv.Failures {
		errs = append(errs, f.Err)
	}
	return errors.Join(errs...)
}

type Runner struct {
	navigator Navigator
	config    Config
	logger    *zerolog.Logger
}

// New returns a Runner. config is validated and missing values are filled with defaults.
func New(navigator Navigator, config Config, logger *zerolog.Logger) (*Runner, error) {
	config = config.withDefaults()
	err := config.Validate()
	if err != nil {
		return nil, err
	}

	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	return &Runner{
		navigator: navigator,
		config:    config,
		logger:    logger,
	}, nil
}

func (r *Runner) Config() Config {
	return r.config
}

// Assertions returns the assertions of c with Config defaults applied.
func (r *Runner) Assertions(c Case) []eventually.Assertion {
	assertions := make([]eventually.Assertion, len(c.Assertions))
	for i, a := range c.Assertions {
		if a.Deadline == 0 {
			a.Deadline = r.config.DefaultDeadline
		}
		if a.PollInterval == 0 {
			a.PollInterval = r.config.DefaultPollInterval
		}
		assertions[i] = a
	}
	return assertions
}

// Validate checks that every assertion of c is valid once defaults are applied.
func (r *Runner) Validate(c Case) error {
	if c.Target == "" {
		return fmt.Errorf("%w: case %q has no target", ErrInvalidAssertionConfig, c.Name)
	}
	if len(c.Assertions) == 0 {
		return fmt.Errorf("%w: case %q has no assertions", ErrInvalidAssertionConfig, c.Name)
	}
	if c.NavigationTimeout < 0 {
		return fmt.Errorf("%w: case %q navigation timeout must not be negative", ErrInvalidAssertionConfig, c.Name)
	}
	if c.FailurePolicy != nil {
		err := c.FailurePolicy.validate()
		if err != nil {
			return err
		}
	}

	for i, a := range r.Assertions(c) {
		err := a.Validate()
		if err != nil {
			return fmt.Errorf("case %q assertion %d (%s): %w", c.Name, i, a.Label(), err)
		}
	}

	return nil
}

// Run loads c.Target and evaluates the assertions of c in order. The loaded Surface is released before Run returns.
func (r *Runner) Run(ctx context.Context, c Case) *CaseVerdict {
	cv := &CaseVerdict{
		ID:        uuid.Must(uuid.NewV7()),
		Name:      c.Name,
		Target:    c.Target,
		StartedAt: time.Now(),
	}

	logger := r.logger.With().Str("case", c.Name).Str("case_id", cv.ID.String()).Str("target", c.Target).Logger()
	ctx = logger.WithContext(ctx)

	defer func() {
		cv.Elapsed = time.Since(cv.StartedAt)
		if p := recover(); p != nil {
			cv.Status = CaseFailed
			logger.Error().Interface("panic", p).Dur("elapsed", cv.Elapsed).Msg("case panicked")
			panic(p)
		}
		if cv.Cause == nil && len(cv.Failures) == 0 {
			cv.Status = CasePassed
			logger.Info().Dur("elapsed", cv.Elapsed).Msg("case passed")
		} else {
			cv.Status = CaseFailed
			logger.Warn().Err(cv.Err()).Dur("elapsed", cv.Elapsed).Int("failures", len(cv.Failures)).Msg("case failed")
		}
	}()

	err := r.Validate(c)
	if err != nil {
		cv.Cause = err
		return cv
	}

	policy := r.config.FailurePolicy
	if c.FailurePolicy != nil {
		policy = *c.FailurePolicy
	}

	navigationTimeout := r.config.NavigationTimeout
	if c.NavigationTimeout != 0 {
		navigationTimeout = c.NavigationTimeout
	}

	logger.Debug().Stringer("failure_policy", policy).Dur("navigation_timeout", navigationTimeout).Msg("loading target")
	surface, err := r.navigator.Load(ctx, c.Target, navigationTimeout)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ErrCancelled) {
			err = fmt.Errorf("%w: %w", ErrCancelled, err)
		}
		cv.Cause = fmt.Errorf("load %s: %w", c.Target, err)
		return cv
	}
	defer func() {
		err := surface.Close()
		if err != nil {
			logger.Warn().Err(err).Msg("failed to release surface")
		}
	}()

	for _, a := range r.Assertions(c) {
		verdict, err := eventually.Check(ctx, surface, a)
		if err != nil {
			cv.Cause = fmt.Errorf("assertion %s: %w", a.Label(), err)
			return cv
		}

		cv.Verdicts = append(cv.Verdicts, verdict)
		if verdict.Passed() {
			logger.Info().Str("assertion", a.Label()).Dur("elapsed", verdict.Elapsed).Int("samples", verdict.Samples).Msg("assertion passed")
			continue
		}

		logger.Warn().Str("assertion", a.Label()).Dur("elapsed", verdict.Elapsed).Int("samples", verdict.Samples).Str("last_seen_content", verdict.LastSeenContent).Msg("assertion timed out")
		cv.Failures = append(cv.Failures, Failure{
			Assertion:       a.Label(),
			Predicate:       verdict.Predicate,
			LastSeenContent: verdict.LastSeenContent,
			Elapsed:         verdict.Elapsed,
			Err:             verdict.Err(),
		})

		if policy == FailFast {
			break
		}
	}

	return cv
}

// RunAll runs cases with at most concurrency cases in flight at once. Each case loads its own Surface. The returned
// verdicts are in the order of cases. Cancelling ctx cancels every running case.
func (r *Runner) RunAll(ctx context.Context, cases []Case, concurrency int) []*CaseVerdict {
	if concurrency < 1 {
		concurrency = 1
	}

	verdicts := make([]*CaseVerdict, len(cases))
	eg := &errgroup.Group{}
	eg.SetLimit(concurrency)
	for i, c := range cases {
		i, c := i, c
		eg.Go(func() error {
			verdicts[i] = r.Run(ctx, c)
			return nil
		})
	}
	eg.Wait()

	return verdicts
}
