// Package casefile reads case definitions from YAML.
//
// A case file looks like:
//
//	defaults:
//	  deadline: 4s
//	  pollInterval: 50ms
//	  failurePolicy: fail-fast
//	  navigationTimeout: 30s
//	cases:
//	  - name: frontend shows backend status
//	    target: http://localhost:3000
//	    failurePolicy: fail-accumulate
//	    assertions:
//	      - contains: DevOps Assignment
//	      - contains: "Status: Backend is connected!"
//	        deadline: 10s
//	      - matches: successfully integrated
package casefile

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"github.com/jackc/pagecheck/eventually"
	"github.com/jackc/pagecheck/runner"
	"gopkg.in/yaml.v3"
)

type File struct {
	Defaults Defaults `yaml:"defaults"`
	Cases    []Case   `yaml:"cases"`
}

type Defaults struct {
	Deadline          time.Duration `yaml:"deadline"`
	PollInterval      time.Duration `yaml:"pollInterval"`
	FailurePolicy     string        `yaml:"failurePolicy"`
	NavigationTimeout time.Duration `yaml:"navigationTimeout"`
}

type Case struct {
	Name              string        `yaml:"name"`
	Target            string        `yaml:"target"`
	FailurePolicy     string        `yaml:"failurePolicy"`
	NavigationTimeout time.Duration `yaml:"navigationTimeout"`
	Assertions        []Assertion   `yaml:"assertions"`
}

type Assertion struct {
	Name         string        `yaml:"name"`
	Contains     *string       `yaml:"contains"`
	Matches      *string       `yaml:"matches"`
	Deadline     time.Duration `yaml:"deadline"`
	PollInterval time.Duration `yaml:"pollInterval"`
}

// Suite is a parsed case file.
type Suite struct {
	Cases []runner.Case

	// The defaults section. Zero values and a nil FailurePolicy were not set in the file.
	DefaultDeadline     time.Duration
	DefaultPollInterval time.Duration
	NavigationTimeout   time.Duration
	FailurePolicy       *runner.FailurePolicy
}

// Apply returns config with the values set in the defaults section of the file replacing those of config.
func (s *Suite) Apply(config runner.Config) runner.Config {
	if s.DefaultDeadline != 0 {
		config.DefaultDeadline = s.DefaultDeadline
	}
	if s.DefaultPollInterval != 0 {
		config.DefaultPollInterval = s.DefaultPollInterval
	}
	if s.NavigationTimeout != 0 {
		config.NavigationTimeout = s.NavigationTimeout
	}
	if s.FailurePolicy != nil {
		config.FailurePolicy = *s.FailurePolicy
	}
	return config
}

// Load reads and parses the case file at path.
func Load(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read case file: %w", err)
	}

	suite, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return suite, nil
}

// Parse parses a case file.
func Parse(data []byte) (*Suite, error) {
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	var file File
	err := decoder.Decode(&file)
	if err != nil {
		return nil, fmt.Errorf("parse case file: %w", err)
	}

	suite := &Suite{
		DefaultDeadline:     file.Defaults.Deadline,
		DefaultPollInterval: file.Defaults.PollInterval,
		NavigationTimeout:   file.Defaults.NavigationTimeout,
	}
	if suite.DefaultDeadline < 0 || suite.DefaultPollInterval < 0 || suite.NavigationTimeout < 0 {
		return nil, errors.New("defaults: durations must not be negative")
	}
	if file.Defaults.FailurePolicy != "" {
		policy, err := runner.ParseFailurePolicy(file.Defaults.FailurePolicy)
		if err != nil {
			return nil, fmt.Errorf("defaults: %w", err)
		}
		suite.FailurePolicy = &policy
	}

	if len(file.Cases) == 0 {
		return nil, errors.New("no cases defined")
	}

	names := make(map[string]struct{}, len(file.Cases))
	for i, fc := range file.Cases {
		c, err := fc.toCase()
		if err != nil {
			return nil, fmt.Errorf("case %d: %w", i, err)
		}
		if _, ok := names[c.Name]; ok {
			return nil, fmt.Errorf("case %d: duplicate name %q", i, c.Name)
		}
		names[c.Name] = struct{}{}
		suite.Cases = append(suite.Cases, c)
	}

	return suite, nil
}

func (fc Case) toCase() (runner.Case, error) {
	if fc.Name == "" {
		return runner.Case{}, errors.New("name is required")
	}

	err := ValidateTarget(fc.Target)
	if err != nil {
		return runner.Case{}, fmt.Errorf("%s: %w", fc.Name, err)
	}

	c := runner.Case{
		Name:              fc.Name,
		Target:            fc.Target,
		NavigationTimeout: fc.NavigationTimeout,
	}

	if fc.FailurePolicy != "" {
		policy, err := runner.ParseFailurePolicy(fc.FailurePolicy)
		if err != nil {
			return runner.Case{}, fmt.Errorf("%s: %w", fc.Name, err)
		}
		c.FailurePolicy = &policy
	}

	if len(fc.Assertions) == 0 {
		return runner.Case{}, fmt.Errorf("%s: at least one assertion is required", fc.Name)
	}

	for i, fa := range fc.Assertions {
		a, err := fa.toAssertion()
		if err != nil {
			return runner.Case{}, fmt.Errorf("%s: assertion %d: %w", fc.Name, i, err)
		}
		c.Assertions = append(c.Assertions, a)
	}

	return c, nil
}

func (fa Assertion) toAssertion() (eventually.Assertion, error) {
	a := eventually.Assertion{
		Name:         fa.Name,
		Deadline:     fa.Deadline,
		PollInterval: fa.PollInterval,
	}

	switch {
	case fa.Contains != nil && fa.Matches != nil:
		return a, errors.New("only one of contains and matches may be set")
	case fa.Contains != nil:
		if *fa.Contains == "" {
			return a, errors.New("contains must not be empty")
		}
		a.Predicate = eventually.Contains(*fa.Contains)
	case fa.Matches != nil:
		re, err := regexp.Compile(*fa.Matches)
		if err != nil {
			return a, fmt.Errorf("matches: %w", err)
		}
		a.Predicate = eventually.Matches(re)
	default:
		return a, errors.New("one of contains or matches is required")
	}

	if a.Deadline < 0 {
		return a, fmt.Errorf("deadline must not be negative, got %v", a.Deadline)
	}
	if a.PollInterval < 0 {
		return a, fmt.Errorf("pollInterval must not be negative, got %v", a.PollInterval)
	}

	return a, nil
}

// ValidateTarget checks that target is an absolute http or https URL.
func ValidateTarget(target string) error {
	if target == "" {
		return errors.New("target is required")
	}

	u, err := url.Parse(target)
	if err != nil {
		return fmt.Errorf("invalid target: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("target %q must be an absolute http or https URL", target)
	}

	return nil
}
