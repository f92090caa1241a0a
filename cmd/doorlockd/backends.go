package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/mirkobrombin/go-doorlock/v1/config"
	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/hal"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
	"github.com/mirkobrombin/go-doorlock/v1/statestore"
	"github.com/mirkobrombin/go-doorlock/v1/syncbus"
)

// closers runs cleanups in reverse order of registration.
type closers []func() error

func (c *closers) add(fn func() error) { *c = append(*c, fn) }

func (c closers) close(logger *slog.Logger) {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i](); err != nil {
			logger.Warn("doorlock: cleanup failed", "error", err)
		}
	}
}

func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("%w: log-level %q", dlerrors.ErrConfiguration, level)
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func newTracerProvider() (*sdktrace.TracerProvider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(tp)
	return tp, nil
}

// backends holds the connections shared between the state store and the
// notifier.
type backends struct {
	cfg    config.Config
	redis  *redis.Client
	lease  *statestore.Lease
	closer closers
}

func (b *backends) redisClient() *redis.Client {
	if b.redis == nil {
		b.redis = redis.NewClient(&redis.Options{Addr: b.cfg.RedisAddr})
		b.closer.add(b.redis.Close)
	}
	return b.redis
}

func (b *backends) store() statestore.Store {
	switch b.cfg.Store {
	case config.StoreRedis:
		return statestore.NewRedis(b.redisClient(), statestore.WithKey(b.cfg.RedisKey))
	case config.StoreMemory:
		return statestore.NewMemory()
	default:
		return statestore.NewFile(b.cfg.StateFile)
	}
}

// claim takes the ownership lease of a Redis state key. Other stores are
// local to the host and need none.
func (b *backends) claim(ctx context.Context, store statestore.Store, logger *slog.Logger) error {
	rs, ok := store.(*statestore.Redis)
	if !ok {
		return nil
	}
	l := rs.Lease(b.cfg.RedisLeaseTTL, logger)
	if err := l.Acquire(ctx); err != nil {
		return err
	}
	b.lease = l
	b.closer.add(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return l.Release(ctx)
	})
	return nil
}

// notifyBus returns nil when lock events stay local.
func (b *backends) notifyBus() (syncbus.Bus, error) {
	switch b.cfg.Notify {
	case config.NotifyNATS:
		conn, err := nats.Connect(b.cfg.NATSURL, nats.Name("doorlockd"))
		if err != nil {
			return nil, fmt.Errorf("connect nats %s: %w", b.cfg.NATSURL, err)
		}
		b.closer.add(func() error { conn.Close(); return nil })
		return syncbus.NewNATSBus(conn), nil
	case config.NotifyRedis:
		return syncbus.NewRedisBus(b.redisClient()), nil
	case config.NotifyKafka:
		kcfg := sarama.NewConfig()
		kcfg.ClientID = "doorlockd"
		kcfg.Producer.Return.Successes = true
		bus, err := syncbus.NewKafkaBus(b.cfg.KafkaBrokers, kcfg)
		if err != nil {
			return nil, fmt.Errorf("connect kafka %v: %w", b.cfg.KafkaBrokers, err)
		}
		b.closer.add(bus.Close)
		return bus, nil
	}
	return nil, nil
}

// notifier wraps the outbound bus with a circuit breaker so an unreachable
// broker does not slow the coordinator down.
func (b *backends) notifier() (lock.Notifier, error) {
	bus, err := b.notifyBus()
	if err != nil || bus == nil {
		return nil, err
	}
	breaker := syncbus.NewCircuitBreaker(bus, b.cfg.BreakerThreshold, b.cfg.BreakerTimeout)
	return syncbus.NewNotifier(breaker, b.cfg.NotifySubject), nil
}

func openHAL(cfg config.Config) (hal.Provider, error) {
	if cfg.HAL == config.HALStub {
		// Idle levels: an active-low button reads released and the echo
		// line never rises.
		return hal.NewStub(cfg.Button.ActiveLow).Level(cfg.Ultrasonic.Echo, false), nil
	}
	p, err := hal.NewPeriph()
	if err != nil {
		return nil, err
	}
	return p, nil
}

var errNoInitialState = errors.New("initial lock state unknown: set --state or DOORLOCK_STATE")

// resolveInitialState picks the boot state: explicit configuration, then
// the last persisted state, then the operator.
func resolveInitialState(ctx context.Context, explicit string, store statestore.Store, p prompter, logger *slog.Logger) (lock.State, error) {
	if explicit != "" {
		return lock.ParseState(explicit)
	}
	if store != nil {
		s, ok, err := store.Load(ctx)
		switch {
		case err != nil:
			logger.Warn("doorlock: stored state unavailable", "error", err)
		case ok:
			logger.Info("initial state restored from store", "state", s)
			return s, nil
		}
	}
	if !p.Interactive() {
		return lock.Unlocked, errNoInitialState
	}
	for {
		line, err := p.Line("Current lock state (locked/unlocked): ")
		if err != nil {
			return lock.Unlocked, fmt.Errorf("read initial state: %w", err)
		}
		s, err := lock.ParseState(line)
		if err == nil {
			return s, nil
		}
		logger.Warn("doorlock: invalid lock state", "input", line)
	}
}
