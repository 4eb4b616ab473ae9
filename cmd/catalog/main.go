// cmd/catalog/main.go
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"minilibrary/internal/api"
	"minilibrary/internal/auth"
	"minilibrary/internal/catalog"
	"minilibrary/internal/config"
	"minilibrary/internal/logging"
	"minilibrary/internal/store"
	"minilibrary/internal/telemetry"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := config.New()
	var configPath string

	cmd := &cobra.Command{
		Use:           "catalog",
		Short:         "Serve the MiniLibrary book catalog API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.ReadFile(v, configPath); err != nil {
				return err
			}
			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			level, err := logging.ParseLevel(cfg.Log.Level)
			if err != nil {
				return err
			}
			logger := logging.New(os.Stderr, level, cfg.Log.Format)
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, cfg, logger); err != nil {
				logger.Error("catalog service failed", "error", err)
				return err
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "path to a YAML config file")
	flags.String("listen", v.GetString("listen"), "address to listen on")
	flags.String("store-driver", v.GetString("store.driver"), "catalog store: memory, sqlite or postgres")
	flags.String("store-dsn", v.GetString("store.dsn"), "data source name for sql stores")
	flags.String("log-level", v.GetString("log.level"), "debug, info, warn or error")
	flags.String("log-format", v.GetString("log.format"), "text or json")
	flags.String("otlp-endpoint", "", "OTLP/HTTP trace endpoint (host:port); empty disables tracing")
	flags.Bool("metrics", v.GetBool("telemetry.metrics"), "serve Prometheus metrics on /metrics")

	bindFlags(v, cmd, map[string]string{
		"listen":        "listen",
		"store-driver":  "store.driver",
		"store-dsn":     "store.dsn",
		"log-level":     "log.level",
		"log-format":    "log.format",
		"otlp-endpoint": "telemetry.otlp-endpoint",
		"metrics":       "telemetry.metrics",
	})
	cmd.AddCommand(newHashPasswordCommand())
	return cmd
}

// newHashPasswordCommand prints the auth.password-hash value for a password
// given as an argument or on the first line of stdin.
func newHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the encoded argon2id hash of a password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}
			hash, err := auth.HashPassword(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func bindFlags(v *viper.Viper, cmd *cobra.Command, keys map[string]string) {
	for flag, key := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", flag, err))
		}
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	tel, err := telemetry.Setup(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	backend, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return err
	}
	defer backend.Store.Close()

	svc, err := catalog.NewService(backend.Store, backend.Journal, logger)
	if err != nil {
		return err
	}

	key := auth.SigningKey(cfg.Auth.Secret)
	issuer, err := auth.NewIssuer(key, cfg.Auth.Issuer, cfg.Auth.Audience,
		auth.Credential{Username: cfg.Auth.User, PasswordHash: cfg.Auth.PasswordHash}, cfg.Auth.TTL)
	if err != nil {
		return err
	}
	var limiter *rate.Limiter
	if cfg.Auth.LoginRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.Auth.LoginRate), cfg.Auth.LoginBurst)
	}

	router := api.NewRouter(api.Deps{
		Catalog: catalog.NewHandler(svc, logger),
		Login:   auth.NewHandler(issuer, limiter, logger),
		Gate:    auth.NewGate(key, cfg.Auth.Issuer, cfg.Auth.Audience),
		Metrics: tel.MetricsHandler(),
		Logger:  logger,
	})

	srv := &http.Server{Addr: cfg.Listen, Handler: router}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("catalog service listening", "addr", cfg.Listen, "store", cfg.Store.Driver)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
