// Command doorlockd drives a stepper-motor door lock from a push button, a
// proximity sensor and an HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/mirkobrombin/go-doorlock/v1/config"
)

func main() {
	os.Exit(submain(context.Background()))
}

func submain(ctx context.Context) int {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd := newRootCommand(config.New(), terminalPrompter{})
	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "doorlockd: %v\n", err)
		}
		return 1
	}
	return 0
}

func newRootCommand(v *viper.Viper, p prompter) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "doorlockd",
		Short:         "doorlockd serializes lock and unlock requests onto a single stepper-motor lock",
		SilenceErrors: true,
		Example: `
  # First boot on a Raspberry Pi, state and password prompted on the terminal
  doorlockd

  # Unattended start with a known state and a Redis-backed state store
  DOORLOCK_STATE=locked DOORLOCK_STORE=redis DOORLOCK_REDIS_ADDR=10.0.0.2:6379 doorlockd

  # Publish lock events to NATS
  doorlockd --notify nats --nats-url nats://broker:4222

  # Development without GPIO
  doorlockd --hal stub --autolock=false --store memory --state unlocked
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			return runServe(cmd.Context(), v, p)
		},
	}

	defaults := viper.New()
	config.SetDefaults(defaults)

	persistent := cmd.PersistentFlags()
	persistent.StringP("config", "c", "", "path to a YAML config file")
	persistent.String("password-file", defaults.GetString("password-file"), "bcrypt password hash file")
	persistent.String("log-level", defaults.GetString("log-level"), "log level (debug, info, warn, error)")
	persistent.String("log-format", defaults.GetString("log-format"), "log format (text, json)")

	persistent.String("listen", defaults.GetString("listen"), "HTTP listen address")
	persistent.Bool("trace", false, "export OpenTelemetry spans to stdout")
	persistent.Duration("shutdown-timeout", defaults.GetDuration("shutdown-timeout"), "HTTP graceful shutdown bound")
	persistent.String("state", "", "initial lock state (locked, unlocked); must match the hardware")

	persistent.Int("auth-max-failures", defaults.GetInt("auth-max-failures"), "failed passcodes per client before lockout (0 disables)")
	persistent.Duration("auth-lockout", defaults.GetDuration("auth-lockout"), "lockout window after too many failures")

	persistent.String("store", defaults.GetString("store"), "state store (file, redis, memory)")
	persistent.String("state-file", defaults.GetString("state-file"), "state file for the file store")
	persistent.String("redis-addr", defaults.GetString("redis-addr"), "Redis address for the redis store and notifier")
	persistent.String("redis-key", defaults.GetString("redis-key"), "Redis key holding the lock state")
	persistent.Duration("redis-lease-ttl", defaults.GetDuration("redis-lease-ttl"), "ownership lease on the Redis state key")

	persistent.String("notify", defaults.GetString("notify"), "lock event notifier (none, nats, redis, kafka)")
	persistent.String("notify-subject", defaults.GetString("notify-subject"), "subject, channel or topic for lock events")
	persistent.String("nats-url", defaults.GetString("nats-url"), "NATS server URL")
	persistent.String("kafka-brokers", defaults.GetString("kafka-brokers"), "comma separated Kafka brokers")
	persistent.Int("notify-breaker-threshold", defaults.GetInt("notify-breaker-threshold"), "consecutive publish failures that open the notifier breaker")
	persistent.Duration("notify-breaker-timeout", defaults.GetDuration("notify-breaker-timeout"), "how long the notifier breaker stays open")

	persistent.String("hal", defaults.GetString("hal"), "GPIO provider (periph, stub)")
	persistent.Int("led-ready", defaults.GetInt("led-ready"), "ready LED pin")
	persistent.Int("led-busy", defaults.GetInt("led-busy"), "busy LED pin")
	persistent.Int("led-state", defaults.GetInt("led-state"), "locked-state LED pin")
	persistent.String("phase-pins", defaults.GetString("phase-pins"), "four comma separated stepper phase pins")
	persistent.Int("steps", defaults.GetInt("steps"), "steps per actuation")
	persistent.Duration("base-delay", defaults.GetDuration("base-delay"), "initial inter-step delay")
	persistent.Duration("target-delay", defaults.GetDuration("target-delay"), "cruise inter-step delay")
	persistent.Duration("accel", defaults.GetDuration("accel"), "delay reduction per step")

	persistent.Bool("button", defaults.GetBool("button"), "monitor the push button")
	persistent.Int("button-pin", defaults.GetInt("button-pin"), "push button pin")
	persistent.Bool("button-active-low", defaults.GetBool("button-active-low"), "button reads low when pressed")
	persistent.Duration("button-poll", defaults.GetDuration("button-poll"), "button poll interval")
	persistent.Duration("button-debounce", defaults.GetDuration("button-debounce"), "button debounce interval")

	persistent.Bool("autolock", defaults.GetBool("autolock"), "lock automatically when the door stays closed")
	persistent.Int("trigger-pin", defaults.GetInt("trigger-pin"), "ultrasonic trigger pin")
	persistent.Int("echo-pin", defaults.GetInt("echo-pin"), "ultrasonic echo pin")
	persistent.Duration("echo-timeout", defaults.GetDuration("echo-timeout"), "bound on each echo edge")
	persistent.Int64("autolock-threshold-cm", defaults.GetInt64("autolock-threshold-cm"), "distance below which the door counts as closed")
	persistent.Duration("autolock-after", defaults.GetDuration("autolock-after"), "how long the door must stay closed")
	persistent.Int("autolock-tolerance", defaults.GetInt("autolock-tolerance"), "far readings tolerated before the count restarts")
	persistent.Duration("autolock-interval", defaults.GetDuration("autolock-interval"), "proximity sampling interval")
	persistent.Duration("autolock-cooldown", defaults.GetDuration("autolock-cooldown"), "pause after an auto-lock")

	bindFlags(v, persistent)

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the lock controller (default)",
		Args:  cobra.NoArgs,
		RunE:  cmd.RunE,
	})
	cmd.AddCommand(newPasswdCommand(v, p))
	return cmd
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

func loadConfigFile(v *viper.Viper) (string, error) {
	path := strings.TrimSpace(v.GetString("config"))
	if path == "" {
		return "", nil
	}
	if err := config.ReadFile(v, path); err != nil {
		return "", err
	}
	return path, nil
}
