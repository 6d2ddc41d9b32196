// Command fxbot is the entry point of the fxbot trading engine. It loads
// configuration, validates it, sets up logging and signal handling, and
// starts the application in the configured mode.
//
//	fxbot -config config.toml
//	fxbot encrypt-secret -out bridge_secret.json
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/alanyoungcy/fxbot/internal/app"
	"github.com/alanyoungcy/fxbot/internal/config"
	"github.com/alanyoungcy/fxbot/internal/crypto"
	"github.com/alanyoungcy/fxbot/internal/logging"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "encrypt-secret" {
		if err := encryptSecret(os.Args[2:]); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-secret: %v\n", err)
			os.Exit(1)
		}
		return
	}

	configPath := flag.String("config", "config.toml", "path to configuration file (.toml, .yaml)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", *configPath, err)
		os.Exit(1)
	}

	logger, ring, closeLog := logging.New(logging.Options{
		Level:      cfg.LogLevel,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
		RingSize:   cfg.Log.RingSize,
	})
	defer func() { _ = closeLog() }()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redacted := config.RedactedConfig(cfg)
	logger.Info("fxbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("bridge", redacted.Bridge),
	)

	application := app.New(cfg, logger, ring)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := application.Run(ctx)
	application.Close()
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", runErr.Error()))
		_ = closeLog()
		os.Exit(1)
	}

	logger.Info("fxbot stopped")
}

// encryptSecret reads the bridge secret and a password from stdin and writes
// the encrypted blob that bridge.encrypted_secret_path points at.
func encryptSecret(args []string) error {
	fs := flag.NewFlagSet("encrypt-secret", flag.ContinueOnError)
	out := fs.String("out", "bridge_secret.json", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in := bufio.NewReader(os.Stdin)
	secret, err := prompt(in, "bridge secret: ")
	if err != nil {
		return err
	}
	password, err := prompt(in, "password: ")
	if err != nil {
		return err
	}

	blob, err := crypto.EncryptSecret(secret, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, blob, 0o600); err != nil {
		return fmt.Errorf("writing %s: %w", *out, err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *out)
	return nil
}

func prompt(r *bufio.Reader, label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := r.ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading %s %w", strings.TrimSuffix(label, " "), err)
	}
	return strings.TrimSpace(line), nil
}
