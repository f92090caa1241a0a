package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/mirkobrombin/go-doorlock/v1/actuator"
	"github.com/mirkobrombin/go-doorlock/v1/arbiter"
	"github.com/mirkobrombin/go-doorlock/v1/auth"
	"github.com/mirkobrombin/go-doorlock/v1/config"
	"github.com/mirkobrombin/go-doorlock/v1/coordinator"
	"github.com/mirkobrombin/go-doorlock/v1/hal"
	"github.com/mirkobrombin/go-doorlock/v1/httpapi"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
	"github.com/mirkobrombin/go-doorlock/v1/metrics"
	"github.com/mirkobrombin/go-doorlock/v1/sensors"
	"github.com/mirkobrombin/go-doorlock/v1/statestore"
	"github.com/mirkobrombin/go-doorlock/v1/watchbus"
)

func runServe(ctx context.Context, v *viper.Viper, p prompter) error {
	configFile, err := loadConfigFile(v)
	if err != nil {
		return err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	logger, err := newLogger(os.Stderr, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("welcome to doorlockd", "pid", os.Getpid(), "listen", cfg.Listen, "hal", cfg.HAL)
	if configFile != "" {
		logger.Info("loaded config file", "path", configFile)
	}

	if err := ensurePasswordFile(cfg.PasswordFile, p); err != nil {
		return err
	}

	b := &backends{cfg: cfg}
	defer b.closer.close(logger)

	store := b.store()
	if err := b.claim(ctx, store, logger); err != nil {
		return err
	}
	initial, err := resolveInitialState(ctx, cfg.InitialState, store, p, logger)
	if err != nil {
		return err
	}

	provider, err := openHAL(cfg)
	if err != nil {
		return err
	}
	return serve(ctx, cfg, provider, b, store, initial, logger)
}

// serve wires every component around one arbiter and runs them until ctx
// is cancelled or one of them fails.
func serve(ctx context.Context, cfg config.Config, provider hal.Provider, b *backends, store statestore.Store, initial lock.State, logger *slog.Logger) error {
	reg := metrics.NewRegistry()
	metrics.RegisterMetrics(reg)

	var coordOpts []coordinator.Option
	if cfg.Trace {
		tp, err := newTracerProvider()
		if err != nil {
			return err
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
			defer cancel()
			_ = tp.Shutdown(shutdownCtx)
		}()
		coordOpts = append(coordOpts, coordinator.WithTracerProvider(tp))
	}

	wb := watchbus.NewInMemory()
	notifiers := lock.Notifiers{watchbus.NewNotifier(wb, watchbus.LockTopic)}
	remote, err := b.notifier()
	if err != nil {
		return err
	}
	if remote != nil {
		notifiers = append(notifiers, remote)
	}

	arb := arbiter.New(arbiter.WithLogger(logger), arbiter.WithNotifier(notifiers))
	act, err := actuator.New(provider, cfg.Pins, cfg.Profile, initial, actuator.WithLogger(logger))
	if err != nil {
		return err
	}
	coord := coordinator.New(arb, act, initial, append(coordOpts,
		coordinator.WithStore(store),
		coordinator.WithNotifier(notifiers),
		coordinator.WithLogger(logger),
	)...)

	limiter, err := auth.NewLimiter(cfg.Limiter)
	if err != nil {
		return err
	}
	defer limiter.Close()

	api := httpapi.New(arb, coord, auth.NewFileVerifier(cfg.PasswordFile),
		httpapi.WithLimiter(limiter),
		httpapi.WithWatchBus(wb),
		httpapi.WithGatherer(reg),
		httpapi.WithTracing(cfg.Trace),
		httpapi.WithLogger(logger),
	)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return coord.Run(gctx) })
	if b.lease != nil {
		g.Go(func() error { return b.lease.Keep(gctx) })
	}

	if cfg.ButtonEnabled {
		btn, err := sensors.NewButton(provider, cfg.Button, arb, sensors.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("button: %w", err)
		}
		g.Go(func() error { return btn.Run(gctx) })
	}
	if cfg.AutoLockEnabled {
		ranger, err := sensors.NewUltrasonic(provider, cfg.Ultrasonic)
		if err != nil {
			return fmt.Errorf("ultrasonic: %w", err)
		}
		al, err := sensors.NewAutoLocker(ranger, cfg.AutoLock, arb, sensors.WithLogger(logger))
		if err != nil {
			return fmt.Errorf("auto-locker: %w", err)
		}
		g.Go(func() error { return al.Run(gctx) })
	}

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("doorlock: http shutdown failed", "error", err)
		}
		return nil
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		logger.Info("doorlockd stopped")
		return nil
	}
	return err
}
