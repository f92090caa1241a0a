package sensors

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mirkobrombin/go-doorlock/v1/actuator"
	"github.com/mirkobrombin/go-doorlock/v1/arbiter"
	"github.com/mirkobrombin/go-doorlock/v1/clock"
	"github.com/mirkobrombin/go-doorlock/v1/coordinator"
	dlerrors "github.com/mirkobrombin/go-doorlock/v1/errors"
	"github.com/mirkobrombin/go-doorlock/v1/hal"
	"github.com/mirkobrombin/go-doorlock/v1/lock"
	"github.com/mirkobrombin/go-doorlock/v1/metrics"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// recordingSubmitter accepts everything, or returns err when set. It calls
// cancel once limit submissions have been seen. With clock set it also
// records when each submission happened and how many sleeps preceded it.
type recordingSubmitter struct {
	mu     sync.Mutex
	got    []lock.Instruction
	err    error
	limit  int
	cancel context.CancelFunc

	clock *clock.Fake
	calls []submission
}

type submission struct {
	at     time.Time
	sleeps int
}

func (r *recordingSubmitter) Submit(ctx context.Context, in lock.Instruction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, in)
	if r.clock != nil {
		r.calls = append(r.calls, submission{at: r.clock.Now(), sleeps: len(r.clock.Sleeps())})
	}
	if r.limit > 0 && len(r.got) >= r.limit && r.cancel != nil {
		r.cancel()
	}
	return r.err
}

func (r *recordingSubmitter) Calls() []submission {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]submission(nil), r.calls...)
}

func (r *recordingSubmitter) Got() []lock.Instruction {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]lock.Instruction(nil), r.got...)
}

func echoFor(cm float64) time.Duration {
	seconds := 2 * cm / 100 / SpeedOfSound
	return time.Duration(seconds * float64(time.Second))
}

func TestDistanceRoundTrip(t *testing.T) {
	for _, cm := range []int64{5, 50, 400} {
		d := DistanceFromEcho(echoFor(float64(cm)))
		if d.CM() != cm {
			t.Fatalf("%dcm: got %d (%v)", cm, d.CM(), d.MM())
		}
		if d.CMFloat() != float64(cm) {
			t.Fatalf("%dcm: got %v", cm, d.CMFloat())
		}
	}
}

func TestDistanceRounding(t *testing.T) {
	d := Distance(59.6)
	if d.CM() != 6 || d.CMFloat() != 6.0 {
		t.Fatalf("59.6mm: cm %d float %v", d.CM(), d.CMFloat())
	}
	d = Distance(59.4)
	if d.CM() != 5 || d.CMFloat() != 5.9 {
		t.Fatalf("59.4mm: cm %d float %v", d.CM(), d.CMFloat())
	}
	if FromCM(12).String() != "12.0cm" {
		t.Fatalf("unexpected string %q", FromCM(12).String())
	}
}

func TestButtonPressedDebounced(t *testing.T) {
	sim := hal.NewSim()
	cfg := DefaultButtonConfig()
	fc := clock.NewFake(epoch)
	b, err := NewButton(sim, cfg, &recordingSubmitter{}, WithClock(fc))
	if err != nil {
		t.Fatalf("new button: %v", err)
	}
	ctx := context.Background()

	sim.SetInput(cfg.Pin, true)
	if ok, _ := b.Pressed(ctx); ok {
		t.Fatal("released button reported pressed")
	}

	var reads atomic.Int32
	sim.SetInputFunc(cfg.Pin, func() bool { return reads.Add(1) > 1 })
	if ok, _ := b.Pressed(ctx); ok {
		t.Fatal("bounce reported as press")
	}

	sim.SetInput(cfg.Pin, false)
	if ok, _ := b.Pressed(ctx); !ok {
		t.Fatal("held button not reported")
	}
	sleeps := fc.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != cfg.Debounce {
		t.Fatalf("unexpected debounce sleeps %v", sleeps)
	}
}

func TestButtonActiveHigh(t *testing.T) {
	sim := hal.NewSim()
	cfg := DefaultButtonConfig()
	cfg.ActiveLow = false
	b, err := NewButton(sim, cfg, &recordingSubmitter{}, WithClock(clock.NewFake(epoch)))
	if err != nil {
		t.Fatalf("new button: %v", err)
	}
	sim.SetInput(cfg.Pin, true)
	if ok, _ := b.Pressed(context.Background()); !ok {
		t.Fatal("active-high press not detected")
	}
}

func TestButtonRunDropsBusyPresses(t *testing.T) {
	sim := hal.NewSim()
	cfg := DefaultButtonConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := &recordingSubmitter{err: dlerrors.ErrBusy, limit: 3, cancel: cancel}
	b, err := NewButton(sim, cfg, sub, WithClock(clock.NewFake(epoch)))
	if err != nil {
		t.Fatalf("new button: %v", err)
	}
	before := testutil.ToFloat64(metrics.ButtonPressesTotal)

	if err := b.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}
	got := sub.Got()
	if len(got) != 3 {
		t.Fatalf("expected 3 submissions, got %d", len(got))
	}
	for _, in := range got {
		if in.Kind != lock.KindReverse || in.Source != lock.Button {
			t.Fatalf("unexpected instruction %v", in)
		}
	}
	if d := testutil.ToFloat64(metrics.ButtonPressesTotal) - before; d != 3 {
		t.Fatalf("press counter moved by %v", d)
	}
}

func TestButtonConfigValidate(t *testing.T) {
	cfg := DefaultButtonConfig()
	cfg.PollInterval = 0
	if _, err := NewButton(hal.NewSim(), cfg, &recordingSubmitter{}); !errors.Is(err, dlerrors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

// A press is seen by the button loop, flows through the arbiter and leaves
// the lock reversed after exactly one actuation.
func TestButtonPressReversesLock(t *testing.T) {
	for _, tc := range []struct {
		initial, want lock.State
	}{
		{lock.Locked, lock.Unlocked},
		{lock.Unlocked, lock.Locked},
	} {
		t.Run(tc.initial.String(), func(t *testing.T) {
			sim := hal.NewSim()
			pins := actuator.DefaultPins()
			cfg := DefaultButtonConfig()
			cfg.PollInterval = time.Millisecond
			cfg.Debounce = time.Millisecond

			var held atomic.Bool
			held.Store(true)
			sim.SetInputFunc(cfg.Pin, func() bool { return !held.Load() })
			sim.OnWrite(func(w hal.Write) {
				if w.Pin == pins.Indicator.Busy && w.High {
					held.Store(false)
				}
			})

			act, err := actuator.New(sim, pins, actuator.DefaultProfile(), tc.initial,
				actuator.WithClock(clock.NewFake(epoch)))
			if err != nil {
				t.Fatalf("actuator: %v", err)
			}
			arb := arbiter.New()
			coord := coordinator.New(arb, act, tc.initial)
			btn, err := NewButton(sim, cfg, arb)
			if err != nil {
				t.Fatalf("button: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go coord.Run(ctx)
			go btn.Run(ctx)

			deadline := time.Now().Add(2 * time.Second)
			for coord.State() != tc.want || arb.Busy() {
				if time.Now().After(deadline) {
					t.Fatalf("lock not %v, state %v busy %v", tc.want, coord.State(), arb.Busy())
				}
				time.Sleep(time.Millisecond)
			}
			time.Sleep(20 * time.Millisecond)

			moves := 0
			for _, high := range sim.WritesTo(pins.Indicator.Busy) {
				if high {
					moves++
				}
			}
			if moves != 1 {
				t.Fatalf("expected one actuation, got %d", moves)
			}
			if coord.State() != tc.want {
				t.Fatalf("state %v after settling, want %v", coord.State(), tc.want)
			}
		})
	}
}

func newTestUltrasonic(t *testing.T, sim *hal.Sim) (*Ultrasonic, UltrasonicConfig) {
	t.Helper()
	cfg := DefaultUltrasonicConfig()
	cfg.EchoTimeout = 20 * time.Millisecond
	u, err := NewUltrasonic(sim, cfg)
	if err != nil {
		t.Fatalf("new ultrasonic: %v", err)
	}
	return u, cfg
}

func TestUltrasonicNoEchoTimesOut(t *testing.T) {
	sim := hal.NewSim()
	u, cfg := newTestUltrasonic(t, sim)
	start := time.Now()
	_, err := u.Read(context.Background())
	if !errors.Is(err, dlerrors.ErrRangingTimeout) {
		t.Fatalf("expected ranging timeout, got %v", err)
	}
	if el := time.Since(start); el > cfg.EchoTimeout+50*time.Millisecond {
		t.Fatalf("read blocked for %v", el)
	}
	levels := sim.WritesTo(cfg.Trigger)
	if len(levels) != 3 || levels[0] || !levels[1] || levels[2] {
		t.Fatalf("unexpected trigger writes %v", levels)
	}
}

func TestUltrasonicStuckEchoTimesOut(t *testing.T) {
	sim := hal.NewSim()
	u, cfg := newTestUltrasonic(t, sim)
	sim.SetInput(cfg.Echo, true)
	start := time.Now()
	if _, err := u.Read(context.Background()); !errors.Is(err, dlerrors.ErrRangingTimeout) {
		t.Fatalf("expected ranging timeout, got %v", err)
	}
	if el := time.Since(start); el > cfg.EchoTimeout+50*time.Millisecond {
		t.Fatalf("read blocked for %v", el)
	}
}

func TestUltrasonicMeasuresEcho(t *testing.T) {
	sim := hal.NewSim()
	u, cfg := newTestUltrasonic(t, sim)

	var fired atomic.Int64
	sim.OnWrite(func(w hal.Write) {
		if w.Pin == cfg.Trigger && !w.High {
			fired.Store(time.Now().UnixNano())
		}
	})
	delay, width := 200*time.Microsecond, echoFor(50)
	sim.SetInputFunc(cfg.Echo, func() bool {
		at := fired.Load()
		if at == 0 {
			return false
		}
		since := time.Since(time.Unix(0, at))
		return since >= delay && since < delay+width
	})

	d, err := u.Read(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if d.CM() < 45 || d.CM() > 60 {
		t.Fatalf("measured %v, want about 50cm", d)
	}
}

func TestPolicyFiresAfterDwell(t *testing.T) {
	p := NewPolicy(DefaultPolicyConfig(), epoch)
	near := FromCM(3)
	if p.Observe(epoch.Add(59*time.Second), near) {
		t.Fatal("fired before the dwell time")
	}
	if !p.Observe(epoch.Add(60*time.Second), near) {
		t.Fatal("did not fire at the dwell time")
	}
	p.Reset(epoch.Add(65 * time.Second))
	if p.Observe(epoch.Add(90*time.Second), near) {
		t.Fatal("fired before the dwell time after reset")
	}
}

func TestPolicyTolerance(t *testing.T) {
	cfg := DefaultPolicyConfig()
	p := NewPolicy(cfg, epoch)
	far := FromCM(float64(cfg.ThresholdCM))
	for i := 1; i <= cfg.Tolerance; i++ {
		p.Observe(epoch.Add(time.Duration(i)*time.Second), far)
	}
	if !p.Observe(epoch.Add(61*time.Second), FromCM(2)) {
		t.Fatal("far readings within tolerance must not restart the dwell")
	}

	p = NewPolicy(cfg, epoch)
	for i := 1; i <= cfg.Tolerance+1; i++ {
		p.Observe(epoch.Add(time.Duration(i)*time.Second), far)
	}
	if p.Observe(epoch.Add(61*time.Second), FromCM(2)) {
		t.Fatal("exceeding the tolerance must restart the dwell")
	}
	if !p.Observe(epoch.Add(64*time.Second), FromCM(2)) {
		t.Fatal("expected fire 60s after the restart")
	}
}

type scriptedRanger struct {
	reads  int
	limit  int
	cancel context.CancelFunc
	d      Distance
	err    error
}

func (r *scriptedRanger) Read(ctx context.Context) (Distance, error) {
	r.reads++
	if r.reads >= r.limit {
		r.cancel()
	}
	return r.d, r.err
}

// Seventy seconds of a closed door produce exactly one auto-lock.
func TestAutoLockerSingleEmission(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := clock.NewFake(epoch)
	ranger := &scriptedRanger{limit: 70, cancel: cancel, d: FromCM(3)}
	sub := &recordingSubmitter{}
	al, err := NewAutoLocker(ranger, DefaultAutoLockerConfig(), sub, WithClock(fc))
	if err != nil {
		t.Fatalf("new auto-locker: %v", err)
	}
	if err := al.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}
	got := sub.Got()
	if len(got) != 1 {
		t.Fatalf("expected one auto-lock, got %d", len(got))
	}
	if got[0].Kind != lock.KindEnsureLocked || got[0].Source != lock.AutoSensor {
		t.Fatalf("unexpected instruction %v", got[0])
	}
}

// Each emission is followed by the cooldown before sampling resumes, and
// the next one needs a full dwell counted from the end of the cooldown.
func TestAutoLockerCooldownBetweenEmissions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fc := clock.NewFake(epoch)
	cfg := DefaultAutoLockerConfig()
	ranger := &scriptedRanger{limit: 130, cancel: cancel, d: FromCM(3)}
	sub := &recordingSubmitter{clock: fc}
	al, err := NewAutoLocker(ranger, cfg, sub, WithClock(fc))
	if err != nil {
		t.Fatalf("new auto-locker: %v", err)
	}
	if err := al.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}

	calls := sub.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected two auto-locks, got %d", len(calls))
	}
	sleeps := fc.Sleeps()
	for i, c := range calls {
		if c.sleeps+1 >= len(sleeps) {
			t.Fatalf("emission %d: no sleeps recorded after it", i)
		}
		if got := sleeps[c.sleeps]; got != cfg.Cooldown {
			t.Fatalf("emission %d: first sleep %v, want cooldown %v", i, got, cfg.Cooldown)
		}
		if got := sleeps[c.sleeps+1]; got != cfg.Interval {
			t.Fatalf("emission %d: second sleep %v, want interval %v", i, got, cfg.Interval)
		}
	}
	if first := calls[0].at.Sub(epoch); first < cfg.Policy.AutoLockAfter {
		t.Fatalf("first auto-lock after %v, before the dwell", first)
	}
	cooldownEnd := calls[0].at.Add(cfg.Cooldown)
	if gap := calls[1].at.Sub(cooldownEnd); gap < cfg.Policy.AutoLockAfter {
		t.Fatalf("second auto-lock %v after the cooldown, want at least %v", gap, cfg.Policy.AutoLockAfter)
	}
}

func TestAutoLockerSkipsTimeouts(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ranger := &scriptedRanger{limit: 100, cancel: cancel, err: dlerrors.ErrRangingTimeout}
	sub := &recordingSubmitter{}
	al, err := NewAutoLocker(ranger, DefaultAutoLockerConfig(), sub, WithClock(clock.NewFake(epoch)))
	if err != nil {
		t.Fatalf("new auto-locker: %v", err)
	}
	before := testutil.ToFloat64(metrics.RangingTimeoutsTotal)
	if err := al.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v", err)
	}
	if len(sub.Got()) != 0 {
		t.Fatal("timeouts must never lock")
	}
	if d := testutil.ToFloat64(metrics.RangingTimeoutsTotal) - before; d != 99 {
		t.Fatalf("timeout counter moved by %v", d)
	}
}
