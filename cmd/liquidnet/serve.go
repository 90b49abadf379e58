package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"liquidnet/catalog"
	"liquidnet/config"
	"liquidnet/journal"
	"liquidnet/middleware"
	"liquidnet/server"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the online-features server",
	Long: `Run the server until SIGINT or SIGTERM, then shut down gracefully.
Without --config the defaults of "liquidnet config init server" apply.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.DefaultServer()
		cfg.Advertise = cfg.Listen
		if configPath != "" {
			var err error
			if cfg, err = config.LoadServer(configPath); err != nil {
				return err
			}
		}
		if listen, _ := cmd.Flags().GetString("listen"); listen != "" {
			cfg.Listen, cfg.Advertise = listen, listen
		}
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().String("listen", "", "listen address, overrides the config file")
}

func serve(cfg config.Server) (err error) {
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	cat, err := catalog.New()
	if err != nil {
		return err
	}
	reg, err := openRegistry(cfg.Registry, logger)
	if err != nil {
		return fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() { err = multierr.Append(err, reg.Close()) }()

	svr := server.NewServer(cat, server.Options{
		ServiceName: cfg.ServiceName,
		IdleTimeout: cfg.IdleTimeout,
		RegistryTTL: cfg.RegistryTTL,
		Logger:      logger,
	})
	svr.Use(middleware.LoggingMiddleware(logger))
	if cfg.RateLimit > 0 {
		svr.Use(middleware.RateLimitMiddleware(cfg.RateLimit, cfg.RateBurst))
	}
	if cfg.JournalPath != "" {
		var j *journal.Journal
		if j, err = journal.Open(cfg.JournalPath, journal.Options{Sync: cfg.JournalSync}); err != nil {
			return err
		}
		defer func() { err = multierr.Append(err, j.Close()) }()
		svr.Use(journal.Middleware(j, cat, logger))
	}
	if cfg.HandlerTimeout > 0 {
		svr.Use(middleware.TimeOutMiddleware(cfg.HandlerTimeout))
	}
	if err := svr.Register(NewOnline(logger)); err != nil {
		return err
	}

	served := make(chan error, 1)
	go func() { served <- svr.Serve("tcp", cfg.Listen, cfg.Advertise, reg) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-served:
		return err
	case s := <-sig:
		logger.Info("shutting down", zap.Stringer("signal", s))
	}
	shutdownErr := svr.Shutdown(shutdownTimeout)
	if err := <-served; err != nil && !errors.Is(err, server.ErrNotServing) {
		shutdownErr = multierr.Append(shutdownErr, err)
	}
	return shutdownErr
}
