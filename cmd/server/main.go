package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"

	"github.com/Tyrowin/gochat-presence/internal/server"
)

var (
	// Build information. Populated at build-time via -ldflags flag.
	version = "dev"
	commit  = "HEAD"
)

type flags struct {
	configPath      string
	envFile         string
	logLevel        string
	logFile         string
	shutdownTimeout time.Duration
}

func main() {
	if err := setupLogger("info", ""); err != nil {
		panic(err)
	}

	f := &flags{}
	app := &cli.Command{
		Name:    "gochat-server",
		Usage:   "Real-time chat coordinator with presence, private threads, reactions and typing indicators",
		Version: fmt.Sprintf("%s (%s)", version, commit),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "path to a YAML config file (optional)",
				Sources:     cli.EnvVars("GOCHAT_CONFIG"),
				Destination: &f.configPath,
			},
			&cli.StringFlag{
				Name:        "env-file",
				Usage:       "dotenv file loaded before reading the environment",
				Sources:     cli.EnvVars("GOCHAT_ENV_FILE"),
				Value:       ".env",
				Destination: &f.envFile,
			},
			&cli.StringFlag{
				Name:        "log-level",
				Usage:       "log level (debug, info, warn, error, fatal, panic)",
				Sources:     cli.EnvVars("GOCHAT_LOG_LEVEL"),
				Value:       "info",
				Destination: &f.logLevel,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "path to log file (optional)",
				Sources:     cli.EnvVars("GOCHAT_LOG_FILE"),
				Destination: &f.logFile,
			},
			&cli.DurationFlag{
				Name:        "shutdown-timeout",
				Usage:       "time allowed for connections to drain on shutdown",
				Value:       10 * time.Second,
				Destination: &f.shutdownTimeout,
			},
		},
		Action: func(ctx context.Context, _ *cli.Command) error {
			return run(ctx, f)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := app.Run(ctx, os.Args)
	stop()
	if err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	if err := setupLogger(f.logLevel, f.logFile); err != nil {
		return err
	}

	if f.envFile != "" {
		// A missing dotenv file is normal outside development.
		if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load env file: %w", err)
		}
	}

	cfg, err := server.LoadConfig(f.configPath, os.Environ())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	s, err := server.New(cfg, log.Logger)
	if err != nil {
		return err
	}

	log.Info().
		Str("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int64("max_message_size", cfg.MaxMessageSize).
		Msg("starting GoChat server")

	return s.Serve(ctx, f.shutdownTimeout)
}

func setupLogger(level string, logFile string) error {
	parsedLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %w", err)
	}

	var output io.Writer = zerolog.ConsoleWriter{Out: os.Stderr}

	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}

		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		output = io.MultiWriter(output, file)
	}

	log.Logger = log.Output(output).Level(parsedLevel)
	return nil
}
