// cmd/client/main.go
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"minilibrary/internal/clients"
	"minilibrary/internal/console"
	"minilibrary/internal/logging"

	"github.com/alecthomas/kong"
)

// CLI is the interactive client's command line.
type CLI struct {
	Server   string        `help:"Base URL of the catalog API" default:"http://localhost:9999" env:"MINILIBRARY_SERVER"`
	Timeout  time.Duration `help:"Per-request timeout" default:"10s"`
	LogLevel string        `help:"debug, info, warn or error" default:"warn"`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("minilibrary"),
		kong.Description("Interactive client for the MiniLibrary catalog"),
		kong.UsageOnError(),
	)

	level, err := logging.ParseLevel(cli.LogLevel)
	kctx.FatalIfErrorf(err)
	logger := logging.New(os.Stderr, level, "text")
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	kctx.FatalIfErrorf(run(ctx, cli, logger))
}

func run(ctx context.Context, cli CLI, logger *slog.Logger) error {
	client := clients.NewLibraryClient(cli.Server, &http.Client{Timeout: cli.Timeout})

	fmt.Printf("Connecting to %s ...\n", cli.Server)
	if err := client.Health(ctx); err != nil {
		logger.Debug("health check failed", "server", cli.Server, "error", err)
		return fmt.Errorf("could not connect to %s, is the API running?", cli.Server)
	}
	fmt.Println("Connected.")

	return console.New(client, os.Stdin, os.Stdout).Run(ctx)
}
