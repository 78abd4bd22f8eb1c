package cmd

import (
	"context"
	"os"
	"sync"

	"github.com/jackc/pagecheck/httpz"
	"github.com/jackc/pagecheck/server"
	"github.com/spf13/cobra"
)

var shutdownSignals = []os.Signal{os.Interrupt}

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the status page application",
	Long: `Run the status page application. It serves a frontend page at / that asks the backend at /api/health and
/api/message whether it is reachable and shows the result. It is a target for the check command.`,
	Args: cobra.NoArgs,

	Run: func(cmd *cobra.Command, args []string) {
		listenAddress, _ := cmd.Flags().GetString("listen-address")
		logFormat, _ := cmd.Flags().GetString("log-format")
		verbose, _ := cmd.Flags().GetBool("verbose")

		var options httpz.Options
		options.Title, _ = cmd.Flags().GetString("title")
		options.Message, _ = cmd.Flags().GetString("message")
		options.APIBaseURL, _ = cmd.Flags().GetString("api-base-url")
		options.HealthDelay, _ = cmd.Flags().GetDuration("health-delay")
		options.BackendDisabled, _ = cmd.Flags().GetBool("backend-disabled")

		logger := setupLogger(logFormat, parseLogLevel(verbose))
		processCtx, processCancel := setupInterruptContext(logger)
		defer processCancel()

		handler, err := httpz.NewHandler(logger, options)
		if err != nil {
			logger.Fatal().Err(err).Msg("Could not create HTTP handler")
		}

		server, err := server.NewServer(listenAddress, handler, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("Could not create web server")
		}

		wg := &sync.WaitGroup{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := server.Serve()
			if err != nil {
				logger.Fatal().Err(err).Msg("HTTP server failed to start")
			}
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-processCtx.Done()
			err := server.Shutdown(context.Background())
			if err != nil {
				logger.Error().Err(err).Msg("HTTP server failed to cleanly shutdown")
			}
		}()

		wg.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("listen-address", "l", "127.0.0.1:3000", "The address to listen on for HTTP requests.")
	serveCmd.Flags().String("log-format", "json", "Log format (json or console)")
	serveCmd.Flags().BoolP("verbose", "v", false, "Log at debug level.")
	serveCmd.Flags().String("title", httpz.DefaultTitle, "Heading of the frontend page.")
	serveCmd.Flags().String("message", httpz.DefaultMessage, "Message returned by /api/message.")
	serveCmd.Flags().String("api-base-url", "", "Where the frontend finds the backend. Empty means the same origin.")
	serveCmd.Flags().Duration("health-delay", 0, "Delay every /api/health response.")
	serveCmd.Flags().Bool("backend-disabled", false, "Respond to API requests with 503 Service Unavailable.")
}
