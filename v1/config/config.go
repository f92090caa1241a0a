// Package config loads doorlockd settings from flags, DOORLOCK_* environment
// variables and an optional YAML file, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mirkobrombin/go-doorlock/v1/actuator"
	"github.com/mirkobrombin/go-doorlock/v1/auth"
	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/hal"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
	"github.com/mirkobrombin/go-doorlock/v1/sensors"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "DOORLOCK"

// LegacyStateEnv is the variable older deployments set the initial state
// with.
const LegacyStateEnv = "LOCK_STATE"

// Store backends.
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Notify backends.
const (
	NotifyNone  = "none"
	NotifyNATS  = "nats"
	NotifyRedis = "redis"
	NotifyKafka = "kafka"
)

// HAL providers.
const (
	HALPeriph = "periph"
	HALStub   = "stub"
)

// Config is the resolved process configuration.
type Config struct {
	Listen          string
	LogLevel        string
	LogFormat       string
	Trace           bool
	ShutdownTimeout time.Duration

	// InitialState is empty when neither the flag nor the environment set it.
	InitialState string

	PasswordFile string
	Limiter      auth.LimiterConfig

	Store     string
	StateFile string
	RedisAddr string
	RedisKey  string
	// RedisLeaseTTL bounds how long a crashed owner keeps the Redis state
	// key claimed.
	RedisLeaseTTL time.Duration

	Notify           string
	NotifySubject    string
	NATSURL          string
	KafkaBrokers     []string
	BreakerThreshold int
	BreakerTimeout   time.Duration

	HAL     string
	Pins    actuator.Pins
	Profile actuator.Profile

	ButtonEnabled bool
	Button        sensors.ButtonConfig

	AutoLockEnabled bool
	Ultrasonic      sensors.UltrasonicConfig
	AutoLock        sensors.AutoLockerConfig
}

// New returns a viper instance with every default set and the environment
// bound.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// SetDefaults registers the default of every key.
func SetDefaults(v *viper.Viper) {
	pins := actuator.DefaultPins()
	profile := actuator.DefaultProfile()
	button := sensors.DefaultButtonConfig()
	us := sensors.DefaultUltrasonicConfig()
	al := sensors.DefaultAutoLockerConfig()
	lim := auth.DefaultLimiterConfig()

	v.SetDefault("listen", ":8080")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("trace", false)
	v.SetDefault("shutdown-timeout", 5*time.Second)
	v.SetDefault("state", "")

	v.SetDefault("password-file", "password_hash.txt")
	v.SetDefault("auth-max-failures", lim.MaxFailures)
	v.SetDefault("auth-lockout", lim.Lockout)

	v.SetDefault("store", StoreFile)
	v.SetDefault("state-file", "lock_state")
	v.SetDefault("redis-addr", "localhost:6379")
	v.SetDefault("redis-key", "doorlock:state")
	v.SetDefault("redis-lease-ttl", 15*time.Second)

	v.SetDefault("notify", NotifyNone)
	v.SetDefault("notify-subject", "doorlock.events")
	v.SetDefault("nats-url", "nats://127.0.0.1:4222")
	v.SetDefault("kafka-brokers", "localhost:9092")
	v.SetDefault("notify-breaker-threshold", 5)
	v.SetDefault("notify-breaker-timeout", 30*time.Second)

	v.SetDefault("hal", HALPeriph)
	v.SetDefault("led-ready", int(pins.Indicator.Ready))
	v.SetDefault("led-busy", int(pins.Indicator.Busy))
	v.SetDefault("led-state", int(pins.Indicator.State))
	v.SetDefault("phase-pins", joinPins(pins.Phases[:]))
	v.SetDefault("steps", profile.Steps)
	v.SetDefault("base-delay", profile.BaseDelay)
	v.SetDefault("target-delay", profile.TargetDelay)
	v.SetDefault("accel", profile.Accel)

	v.SetDefault("button", true)
	v.SetDefault("button-pin", int(button.Pin))
	v.SetDefault("button-active-low", button.ActiveLow)
	v.SetDefault("button-poll", button.PollInterval)
	v.SetDefault("button-debounce", button.Debounce)

	v.SetDefault("autolock", true)
	v.SetDefault("trigger-pin", int(us.Trigger))
	v.SetDefault("echo-pin", int(us.Echo))
	v.SetDefault("echo-timeout", us.EchoTimeout)
	v.SetDefault("autolock-threshold-cm", al.Policy.ThresholdCM)
	v.SetDefault("autolock-after", al.Policy.AutoLockAfter)
	v.SetDefault("autolock-tolerance", al.Policy.Tolerance)
	v.SetDefault("autolock-interval", al.Interval)
	v.SetDefault("autolock-cooldown", al.Cooldown)
}

// ReadFile merges a YAML or JSON config file into v.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %q: %w", path, err)
	}
	return nil
}

// Load resolves v into a validated Config.
func Load(v *viper.Viper) (Config, error) {
	phases, err := parsePins(listValue(v, "phase-pins"))
	if err != nil {
		return Config{}, err
	}
	if len(phases) != 4 {
		return Config{}, fmt.Errorf("%w: phase-pins needs 4 pins, got %d", dlerrors.ErrConfiguration, len(phases))
	}

	cfg := Config{
		Listen:          v.GetString("listen"),
		LogLevel:        strings.ToLower(v.GetString("log-level")),
		LogFormat:       strings.ToLower(v.GetString("log-format")),
		Trace:           v.GetBool("trace"),
		ShutdownTimeout: v.GetDuration("shutdown-timeout"),
		InitialState:    strings.TrimSpace(v.GetString("state")),

		PasswordFile: v.GetString("password-file"),
		Limiter: auth.LimiterConfig{
			MaxFailures: v.GetInt("auth-max-failures"),
			Lockout:     v.GetDuration("auth-lockout"),
		},

		Store:     strings.ToLower(v.GetString("store")),
		StateFile: v.GetString("state-file"),
		RedisAddr: v.GetString("redis-addr"),
		RedisKey:  v.GetString("redis-key"),

		RedisLeaseTTL: v.GetDuration("redis-lease-ttl"),

		Notify:           strings.ToLower(v.GetString("notify")),
		NotifySubject:    v.GetString("notify-subject"),
		NATSURL:          v.GetString("nats-url"),
		KafkaBrokers:     listValue(v, "kafka-brokers"),
		BreakerThreshold: v.GetInt("notify-breaker-threshold"),
		BreakerTimeout:   v.GetDuration("notify-breaker-timeout"),

		HAL: strings.ToLower(v.GetString("hal")),
		Pins: actuator.Pins{
			Indicator: actuator.IndicatorPins{
				Ready: hal.PinID(v.GetInt("led-ready")),
				Busy:  hal.PinID(v.GetInt("led-busy")),
				State: hal.PinID(v.GetInt("led-state")),
			},
			Phases: [4]hal.PinID{phases[0], phases[1], phases[2], phases[3]},
		},
		Profile: actuator.Profile{
			Steps:       v.GetInt("steps"),
			BaseDelay:   v.GetDuration("base-delay"),
			TargetDelay: v.GetDuration("target-delay"),
			Accel:       v.GetDuration("accel"),
		},

		ButtonEnabled: v.GetBool("button"),
		Button: sensors.ButtonConfig{
			Pin:          hal.PinID(v.GetInt("button-pin")),
			ActiveLow:    v.GetBool("button-active-low"),
			PollInterval: v.GetDuration("button-poll"),
			Debounce:     v.GetDuration("button-debounce"),
		},

		AutoLockEnabled: v.GetBool("autolock"),
		Ultrasonic: sensors.UltrasonicConfig{
			Trigger:      hal.PinID(v.GetInt("trigger-pin")),
			Echo:         hal.PinID(v.GetInt("echo-pin")),
			TriggerPulse: sensors.DefaultUltrasonicConfig().TriggerPulse,
			EchoTimeout:  v.GetDuration("echo-timeout"),
		},
		AutoLock: sensors.AutoLockerConfig{
			Policy: sensors.PolicyConfig{
				ThresholdCM:   v.GetInt64("autolock-threshold-cm"),
				AutoLockAfter: v.GetDuration("autolock-after"),
				Tolerance:     v.GetInt("autolock-tolerance"),
			},
			Interval: v.GetDuration("autolock-interval"),
			Cooldown: v.GetDuration("autolock-cooldown"),
		},
	}
	if cfg.InitialState == "" {
		cfg.InitialState = strings.TrimSpace(os.Getenv(LegacyStateEnv))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects inconsistent settings before any pin is claimed.
func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("%w: listen address required", dlerrors.ErrConfiguration)
	}
	if c.InitialState != "" {
		if _, err := lock.ParseState(c.InitialState); err != nil {
			return err
		}
	}
	if err := oneOf("store", c.Store, StoreFile, StoreRedis, StoreMemory); err != nil {
		return err
	}
	if err := oneOf("notify", c.Notify, NotifyNone, NotifyNATS, NotifyRedis, NotifyKafka); err != nil {
		return err
	}
	if err := oneOf("hal", c.HAL, HALPeriph, HALStub); err != nil {
		return err
	}
	if err := oneOf("log-format", c.LogFormat, "text", "json"); err != nil {
		return err
	}
	if c.Notify != NotifyNone && c.BreakerThreshold <= 0 {
		return fmt.Errorf("%w: notify-breaker-threshold must be positive", dlerrors.ErrConfiguration)
	}
	if c.Limiter.MaxFailures > 0 && c.Limiter.Lockout <= 0 {
		return fmt.Errorf("%w: auth-lockout must be positive", dlerrors.ErrConfiguration)
	}
	if c.Store == StoreRedis && c.RedisLeaseTTL < 3*time.Millisecond {
		return fmt.Errorf("%w: redis-lease-ttl too short: %v", dlerrors.ErrConfiguration, c.RedisLeaseTTL)
	}
	if c.Notify == NotifyKafka && len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("%w: kafka-brokers required", dlerrors.ErrConfiguration)
	}
	if err := c.Profile.Validate(); err != nil {
		return err
	}
	if c.ButtonEnabled {
		if err := c.Button.Validate(); err != nil {
			return err
		}
	}
	if c.AutoLockEnabled {
		if err := c.Ultrasonic.Validate(); err != nil {
			return err
		}
		if err := c.AutoLock.Validate(); err != nil {
			return err
		}
	}
	return c.checkPins()
}

type pinClaim struct {
	id   hal.PinID
	name string
}

// checkPins rejects two functions wired to the same GPIO.
func (c Config) checkPins() error {
	claims := []pinClaim{
		{c.Pins.Indicator.Ready, "led-ready"},
		{c.Pins.Indicator.Busy, "led-busy"},
		{c.Pins.Indicator.State, "led-state"},
	}
	for i, p := range c.Pins.Phases {
		claims = append(claims, pinClaim{p, fmt.Sprintf("phase %d", i)})
	}
	if c.ButtonEnabled {
		claims = append(claims, pinClaim{c.Button.Pin, "button-pin"})
	}
	if c.AutoLockEnabled {
		claims = append(claims,
			pinClaim{c.Ultrasonic.Trigger, "trigger-pin"},
			pinClaim{c.Ultrasonic.Echo, "echo-pin"})
	}
	used := make(map[hal.PinID]string, len(claims))
	for _, cl := range claims {
		if prev, ok := used[cl.id]; ok {
			return fmt.Errorf("%w: %s used by both %s and %s", dlerrors.ErrConfiguration, cl.id, prev, cl.name)
		}
		used[cl.id] = cl.name
	}
	return nil
}

func oneOf(key, val string, allowed ...string) error {
	for _, a := range allowed {
		if val == a {
			return nil
		}
	}
	return fmt.Errorf("%w: %s must be one of %s, got %q", dlerrors.ErrConfiguration, key, strings.Join(allowed, ", "), val)
}

func splitList(s string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		out = append(out, strings.TrimSpace(f))
	}
	return out
}

// listValue accepts both a comma separated string, as flags and the
// environment provide, and a YAML sequence.
func listValue(v *viper.Viper, key string) []string {
	switch raw := v.Get(key).(type) {
	case string:
		return splitList(raw)
	case []string:
		return raw
	case []any:
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			out = append(out, strings.TrimSpace(fmt.Sprint(item)))
		}
		return out
	default:
		return splitList(v.GetString(key))
	}
}

func parsePins(fields []string) ([]hal.PinID, error) {
	var out []hal.PinID
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("%w: invalid pin %q", dlerrors.ErrConfiguration, f)
		}
		out = append(out, hal.PinID(n))
	}
	return out, nil
}

func joinPins(pins []hal.PinID) string {
	parts := make([]string, len(pins))
	for i, p := range pins {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, ",")
}
