package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/aardg/massabalans/internal/cli"
	"github.com/aardg/massabalans/pkg/config"
	pkgerrors "github.com/aardg/massabalans/pkg/errors"
	"github.com/aardg/massabalans/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	// bootstrap logger early (then re-init after config load)
	logg := logger.New(logger.Options{ServiceName: "massabalans"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(ctx, ".env not loaded")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "config load failed", err)
		stop()
		os.Exit(pkgerrors.ExitCode(err))
	}

	logg = logger.New(logger.Options{
		ServiceName: "massabalans",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
		Output:      os.Stderr,
	})
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	code := cli.Execute(ctx, cfg, logg, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
