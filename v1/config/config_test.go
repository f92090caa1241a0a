package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/hal"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(LegacyStateEnv, "")
	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":8080" || cfg.Store != StoreFile || cfg.Notify != NotifyNone {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.InitialState != "" {
		t.Fatalf("expected no initial state, got %q", cfg.InitialState)
	}
	if cfg.Pins.Phases != [4]hal.PinID{23, 24, 18, 4} {
		t.Fatalf("unexpected phases %v", cfg.Pins.Phases)
	}
	if cfg.Button.Pin != 21 || cfg.Ultrasonic.Trigger != 16 || cfg.Ultrasonic.Echo != 20 {
		t.Fatalf("unexpected sensor pins: %+v %+v", cfg.Button, cfg.Ultrasonic)
	}
	if cfg.AutoLock.Policy.ThresholdCM != 6 || cfg.AutoLock.Policy.AutoLockAfter != time.Minute {
		t.Fatalf("unexpected policy %+v", cfg.AutoLock.Policy)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DOORLOCK_STATE", "locked")
	t.Setenv("DOORLOCK_STORE", "redis")
	t.Setenv("DOORLOCK_NOTIFY", "kafka")
	t.Setenv("DOORLOCK_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("DOORLOCK_AUTOLOCK_AFTER", "30s")
	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InitialState != "locked" || cfg.Store != StoreRedis {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.AutoLock.Policy.AutoLockAfter != 30*time.Second {
		t.Fatalf("unexpected auto-lock %v", cfg.AutoLock.Policy.AutoLockAfter)
	}
}

func TestLegacyStateEnv(t *testing.T) {
	t.Setenv(LegacyStateEnv, "unlocked")
	cfg, err := Load(New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InitialState != "unlocked" {
		t.Fatalf("expected legacy state, got %q", cfg.InitialState)
	}

	t.Setenv("DOORLOCK_STATE", "locked")
	cfg, err = Load(New())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.InitialState != "locked" {
		t.Fatalf("expected DOORLOCK_STATE to win, got %q", cfg.InitialState)
	}
}

func TestLoadRejects(t *testing.T) {
	cases := map[string]map[string]string{
		"bad state":      {"state": "ajar"},
		"bad store":      {"store": "sqlite"},
		"bad notify":     {"notify": "mqtt"},
		"bad hal":        {"hal": "serial"},
		"short phases":   {"phase-pins": "1,2,3"},
		"bad phase":      {"phase-pins": "1,2,x,4"},
		"pin collision":  {"button-pin": "17"},
		"echo collision": {"echo-pin": "16"},
		"zero steps":     {"steps": "0"},
		"zero threshold": {"autolock-threshold-cm": "0"},
		"zero lockout":   {"auth-lockout": "0s"},
		"short lease":    {"store": "redis", "redis-lease-ttl": "1ms"},
	}
	for name, set := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(LegacyStateEnv, "")
			v := New()
			for k, val := range set {
				v.Set(k, val)
			}
			if _, err := Load(v); !errors.Is(err, dlerrors.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestDisabledSensorsSkipPinCheck(t *testing.T) {
	t.Setenv(LegacyStateEnv, "")
	v := New()
	v.Set("autolock", false)
	v.Set("echo-pin", 16)
	if _, err := Load(v); err != nil {
		t.Fatalf("load: %v", err)
	}
}

func TestReadFile(t *testing.T) {
	t.Setenv(LegacyStateEnv, "")
	path := filepath.Join(t.TempDir(), "doorlock.yaml")
	body := "listen: \":9090\"\nstore: memory\nbutton-debounce: 80ms\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	v := New()
	if err := ReadFile(v, path); err != nil {
		t.Fatalf("read: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" || cfg.Store != StoreMemory || cfg.Button.Debounce != 80*time.Millisecond {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if err := ReadFile(New(), filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestReadFileListValues(t *testing.T) {
	t.Setenv(LegacyStateEnv, "")
	path := filepath.Join(t.TempDir(), "doorlock.yaml")
	body := "notify: kafka\nkafka-brokers:\n  - k1:9092\n  - k2:9092\nphase-pins: [5, 6, 12, 13]\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	v := New()
	if err := ReadFile(v, path); err != nil {
		t.Fatalf("read: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "k1:9092" {
		t.Fatalf("unexpected brokers %v", cfg.KafkaBrokers)
	}
	if cfg.Pins.Phases != [4]hal.PinID{5, 6, 12, 13} {
		t.Fatalf("unexpected phases %v", cfg.Pins.Phases)
	}
}
