package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"

	"github.com/jackc/pagecheck/db"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

func setupLogger(logFormat string, level zerolog.Level) *zerolog.Logger {
	var logWriter io.Writer
	if logFormat == "json" {
		logWriter = os.Stderr
	} else {
		logWriter = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	logger := zerolog.New(logWriter).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger

	return &logger
}

func setupPGXConnPool(ctx context.Context, databaseURL string, logger *zerolog.Logger) *pgxpool.Pool {
	dbpool, err := db.Connect(ctx, databaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}

	return dbpool
}

// setupInterruptContext returns a context that is cancelled when one of shutdownSignals is received. A second signal
// terminates the program.
func setupInterruptContext(logger *zerolog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(logger.WithContext(context.Background()))

	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, shutdownSignals...)
	go func() {
		select {
		case s := <-interruptChan:
			signal.Reset() // Only listen for one interrupt. If another interrupt signal is received allow it to terminate the program.
			logger.Info().Str("signal", s.String()).Msg("shutdown signal received")
			cancel()
		case <-ctx.Done():
			signal.Stop(interruptChan)
		}
	}()

	return ctx, cancel
}

func parseLogLevel(verbose bool) zerolog.Level {
	if verbose {
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
