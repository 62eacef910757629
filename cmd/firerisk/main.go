// Command firerisk builds the wildfire ignition risk tables and publishes the
// daily risk payload.
package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/wildfire-risk-etl/internal/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		var se *domain.SourceError
		if errors.As(err, &se) {
			slog.Error("required source unavailable", "source", se.Source, "error", se.Err)
		} else {
			slog.Error("command failed", "error", err)
		}
		os.Exit(1)
	}
}
