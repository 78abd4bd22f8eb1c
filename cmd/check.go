package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jackc/envconf"
	"github.com/jackc/pagecheck/browser"
	"github.com/jackc/pagecheck/casefile"
	"github.com/jackc/pagecheck/db"
	"github.com/jackc/pagecheck/eventually"
	"github.com/jackc/pagecheck/httpz"
	"github.com/jackc/pagecheck/report"
	"github.com/jackc/pagecheck/runner"
	"github.com/jackc/pagecheck/view"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// defaultContains is checked when neither a case file nor --contains is given.
var defaultContains = []string{
	httpz.DefaultTitle,
	view.StatusConnected,
	httpz.DefaultMessage,
}

var checkEnvconf = envconf.New()

// checkCmd represents the check command.
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that pages eventually show expected content",
	Args:  cobra.NoArgs,

	Run: func(cmd *cobra.Command, args []string) {
		exitCode := runCheck(cmd)
		if exitCode != 0 {
			os.Exit(exitCode)
		}
	},
}

func runCheck(cmd *cobra.Command) int {
	logFormat, _ := cmd.Flags().GetString("log-format")
	verbose, _ := cmd.Flags().GetBool("verbose")
	level := zerolog.WarnLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := setupLogger(logFormat, level)

	format, _ := cmd.Flags().GetString("format")
	if format != "table" && format != "json" {
		logger.Error().Str("format", format).Msg("Unknown report format: must be table or json")
		return 2
	}

	config, err := checkConfigFromEnv()
	if err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 2
	}

	cases, config, err := checkCases(cmd, config)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid cases")
		return 2
	}

	if cmd.Flags().Changed("deadline") {
		config.DefaultDeadline, _ = cmd.Flags().GetDuration("deadline")
	}
	if cmd.Flags().Changed("poll-interval") {
		config.DefaultPollInterval, _ = cmd.Flags().GetDuration("poll-interval")
	}
	if cmd.Flags().Changed("navigation-timeout") {
		config.NavigationTimeout, _ = cmd.Flags().GetDuration("navigation-timeout")
	}

	if failAccumulate, _ := cmd.Flags().GetBool("fail-accumulate"); failAccumulate {
		config.FailurePolicy = runner.FailAccumulate
	}

	maxPages, err := strconv.Atoi(checkEnvconf.Value("MAX_CONCURRENT_BROWSERS"))
	if err != nil {
		logger.Error().Err(err).Msg("Invalid MAX_CONCURRENT_BROWSERS")
		return 2
	}
	headless, err := strconv.ParseBool(checkEnvconf.Value("BROWSER_HEADLESS"))
	if err != nil {
		logger.Error().Err(err).Msg("Invalid BROWSER_HEADLESS")
		return 2
	}
	if showBrowser, _ := cmd.Flags().GetBool("show-browser"); showBrowser {
		headless = false
	}

	concurrency, _ := cmd.Flags().GetInt("concurrency")
	if concurrency <= 0 {
		concurrency = maxPages
	}

	ctx, cancel := setupInterruptContext(logger)
	defer cancel()

	if timeout, _ := cmd.Flags().GetDuration("timeout"); timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	manager, err := browser.NewManager(ctx, browser.ManagerConfig{
		ControlURL:  checkEnvconf.Value("BROWSER_URL"),
		ShowBrowser: !headless,
		MaxPages:    maxPages,
		Logger:      logger,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start browser")
		return 2
	}
	defer func() {
		err := manager.Close()
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to close browser")
		}
	}()

	r, err := runner.New(manager.Navigator(), config, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Invalid configuration")
		return 2
	}

	for _, c := range cases {
		err := r.Validate(c)
		if err != nil {
			logger.Error().Err(err).Msg("Invalid case")
			return 2
		}
	}

	verdicts := r.RunAll(ctx, cases, concurrency)

	err = writeReport(cmd.OutOrStdout(), format, verdicts)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to write report")
		return 2
	}

	if record, _ := cmd.Flags().GetBool("record"); record {
		err := recordVerdicts(context.Background(), checkEnvconf.Value("DATABASE_URL"), verdicts)
		if err != nil {
			logger.Error().Err(err).Msg("Failed to record case runs")
			return 2
		}
	}

	return report.ExitCode(verdicts)
}

func writeReport(w io.Writer, format string, verdicts []*runner.CaseVerdict) error {
	switch format {
	case "table":
		return report.WriteTable(w, verdicts)
	case "json":
		return report.WriteJSON(w, verdicts)
	default:
		return fmt.Errorf("unknown report format %q", format)
	}
}

func checkConfigFromEnv() (runner.Config, error) {
	var config runner.Config
	var err error

	for _, d := range []struct {
		name string
		dst  *time.Duration
	}{
		{"PAGECHECK_DEADLINE", &config.DefaultDeadline},
		{"PAGECHECK_POLL_INTERVAL", &config.DefaultPollInterval},
		{"PAGECHECK_NAVIGATION_TIMEOUT", &config.NavigationTimeout},
	} {
		*d.dst, err = time.ParseDuration(checkEnvconf.Value(d.name))
		if err != nil {
			return config, fmt.Errorf("%s: %w", d.name, err)
		}
	}

	config.FailurePolicy, err = runner.ParseFailurePolicy(checkEnvconf.Value("PAGECHECK_FAILURE_POLICY"))
	if err != nil {
		return config, fmt.Errorf("PAGECHECK_FAILURE_POLICY: %w", err)
	}

	return config, nil
}

// checkCases returns the cases selected by the flags of cmd and config updated with the defaults of a case file.
func checkCases(cmd *cobra.Command, config runner.Config) ([]runner.Case, runner.Config, error) {
	if path, _ := cmd.Flags().GetString("file"); path != "" {
		suite, err := casefile.Load(path)
		if err != nil {
			return nil, config, err
		}
		return suite.Cases, suite.Apply(config), nil
	}

	target, _ := cmd.Flags().GetString("url")
	err := casefile.ValidateTarget(target)
	if err != nil {
		return nil, config, err
	}

	contains, _ := cmd.Flags().GetStringArray("contains")
	if len(contains) == 0 {
		contains = defaultContains
	}

	c := runner.Case{Name: target, Target: target}
	for _, s := range contains {
		c.Assertions = append(c.Assertions, eventually.Assertion{Predicate: eventually.Contains(s)})
	}

	return []runner.Case{c}, config, nil
}

// recordVerdicts stores verdicts in the database at databaseURL. Every verdict is attempted. The returned error
// joins the failures.
func recordVerdicts(ctx context.Context, databaseURL string, verdicts []*runner.CaseVerdict) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	dbpool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	var errs []error
	for _, cv := range verdicts {
		err := db.RecordCaseVerdict(ctx, dbpool, cv)
		if err != nil {
			errs = append(errs, fmt.Errorf("record case %q: %w", cv.Name, err))
		}
	}

	return errors.Join(errs...)
}

func init() {
	checkEnvconf.Register(envconf.Item{Name: "BROWSER_URL", Default: "", Description: "DevTools WebSocket URL of a running browser. If empty a browser is launched."})
	checkEnvconf.Register(envconf.Item{Name: "BROWSER_HEADLESS", Default: "true", Description: "Launch the browser without a window"})
	checkEnvconf.Register(envconf.Item{Name: "MAX_CONCURRENT_BROWSERS", Default: "1", Description: "Maximum number of simultaneously loaded pages"})
	checkEnvconf.Register(envconf.Item{Name: "DATABASE_URL", Default: "", Description: "The PostgreSQL connection string used by --record"})
	checkEnvconf.Register(envconf.Item{Name: "PAGECHECK_DEADLINE", Default: runner.DefaultDeadline.String(), Description: "Default time an assertion may take to hold"})
	checkEnvconf.Register(envconf.Item{Name: "PAGECHECK_POLL_INTERVAL", Default: runner.DefaultPollInterval.String(), Description: "Default time between samples of page content"})
	checkEnvconf.Register(envconf.Item{Name: "PAGECHECK_FAILURE_POLICY", Default: runner.FailFast.String(), Description: "fail-fast or fail-accumulate"})
	checkEnvconf.Register(envconf.Item{Name: "PAGECHECK_NAVIGATION_TIMEOUT", Default: runner.DefaultNavigationTimeout.String(), Description: "Time a page may take to load"})

	checkCmd.Long = envconfLong(`Check that pages eventually show expected content.

Cases come from a YAML case file (--file) or from --url and --contains. With neither a case file nor --contains the
page at --url is checked for the title, connected status and message of the status page application.

The exit status is 0 if every case passed, 1 if a case failed and 2 if the cases could not be run or their results
could not be reported or recorded.`, checkEnvconf.Items())

	checkCmd.Flags().StringP("file", "f", "", "YAML case file.")
	checkCmd.Flags().StringP("url", "u", "http://localhost:3000", "Page to check when no case file is given.")
	checkCmd.Flags().StringArrayP("contains", "c", nil, "Text the page must eventually contain. May be repeated.")
	checkCmd.Flags().Duration("deadline", runner.DefaultDeadline, "Default time an assertion may take to hold.")
	checkCmd.Flags().Duration("poll-interval", runner.DefaultPollInterval, "Default time between samples of page content.")
	checkCmd.Flags().Duration("navigation-timeout", runner.DefaultNavigationTimeout, "Time a page may take to load.")
	checkCmd.Flags().Bool("fail-accumulate", false, "Evaluate every assertion of a case instead of stopping at the first failure.")
	checkCmd.Flags().Duration("timeout", 0, "Cancel every case still running after this long. 0 means no limit.")
	checkCmd.Flags().Int("concurrency", 0, "Number of cases run at once. Defaults to MAX_CONCURRENT_BROWSERS.")
	checkCmd.Flags().String("format", "table", "Report format (table or json)")
	checkCmd.Flags().Bool("record", false, "Record the results in the database at DATABASE_URL.")
	checkCmd.Flags().Bool("show-browser", false, "Show the browser window.")
	checkCmd.Flags().String("log-format", "console", "Log format (json or console)")
	checkCmd.Flags().BoolP("verbose", "v", false, "Log at debug level.")

	rootCmd.AddCommand(checkCmd)
}
