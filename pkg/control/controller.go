// Package control runs the arm's scheduler: one goroutine that owns all
// joint state, applies operator commands and writes pulse widths to the
// driver.
package control

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/multierr"

	"github.com/gwillem/armctl/pkg/load"
	"github.com/gwillem/armctl/pkg/motion"
	"github.com/gwillem/armctl/pkg/pwm"
	"github.com/gwillem/armctl/pkg/robot"
)

// ErrAlreadyRunning is returned by Start on a controller that is running.
var ErrAlreadyRunning = errors.New("controller already running")

const (
	commandBuffer = 64
	eventBuffer   = 256
	logBuffer     = 64

	defaultInterval = 30 * time.Millisecond
)

// JointSnapshot is a read-only view of one joint.
type JointSnapshot struct {
	Name       robot.JointName
	Channel    int
	Mode       motion.Mode
	PulseWidth int
	Target     int
	// Normalized is the position in [-100, 100] across the joint's travel.
	Normalized float64
}

// Snapshot is a consistent read-only view of the whole arm.
type Snapshot struct {
	Joints      []JointSnapshot
	Stop        StopState
	SpeedFactor float64
	PowerStable bool
	// Preset is the preset being ramped to, if any.
	Preset string
}

// Config holds everything a controller needs.
type Config struct {
	Registry *robot.Registry
	Channel  pwm.Channel
	Params   motion.Params
	Options  Options
}

// Controller manages the control loop. Commands go in through Submit and
// are applied on the loop goroutine, which is the only writer of joint
// state and the only caller of the channel.
type Controller struct {
	reg      *robot.Registry
	joints   []robot.JointConfig
	ch       pwm.Channel
	planner  *motion.Planner
	monitor  *load.Monitor
	opts     Options
	interval time.Duration

	cmds   chan Command
	stopCh chan struct{}
	events chan Event
	logCh  chan string

	mu      sync.RWMutex
	states  []motion.JointState
	stop    StopState
	speed   float64
	preset  string
	running bool

	// Loop goroutine only.
	written []int
	ramp    *activeRamp
	gen     uint64
}

// NewController creates a controller. The arm is not touched until Start.
func NewController(cfg Config) (*Controller, error) {
	if cfg.Registry == nil || cfg.Registry.Len() == 0 {
		return nil, &robot.ConfigError{Reason: "no joints configured"}
	}
	if cfg.Channel == nil {
		return nil, errors.New("controller: no pwm channel")
	}
	if cfg.Params.NormalizationDistance <= 0 {
		return nil, &robot.ConfigError{Reason: "normalization distance must be positive"}
	}

	opts := cfg.Options
	if opts.SpeedFactor == 0 {
		opts.SpeedFactor = 1
	}
	if opts.SpeedFactor < MinSpeedFactor || opts.SpeedFactor > MaxSpeedFactor {
		return nil, &robot.ConfigError{Reason: fmt.Sprintf("speed factor %.2f out of range", opts.SpeedFactor)}
	}
	if opts.ReconnectAttempts <= 0 {
		opts.ReconnectAttempts = 1
	}

	interval := opts.Interval
	if interval <= 0 {
		interval = cfg.Registry.MinInterval().D()
	}
	if interval <= 0 {
		interval = defaultInterval
	}

	joints := cfg.Registry.Joints()
	states := make([]motion.JointState, len(joints))
	written := make([]int, len(joints))
	for i, j := range joints {
		states[i] = motion.NewJointState(j)
		written[i] = -1
	}

	return &Controller{
		reg:      cfg.Registry,
		joints:   joints,
		ch:       cfg.Channel,
		planner:  motion.NewPlanner(cfg.Params),
		monitor:  load.NewMonitor(opts.RapidThreshold, opts.RapidLimit),
		opts:     opts,
		interval: interval,
		cmds:     make(chan Command, commandBuffer),
		stopCh:   make(chan struct{}, 1),
		events:   make(chan Event, eventBuffer),
		logCh:    make(chan string, logBuffer),
		states:   states,
		speed:    opts.SpeedFactor,
		written:  written,
	}, nil
}

// Close releases the pwm channel.
func (c *Controller) Close() error {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()
	return c.ch.Close()
}

// Submit queues a command for the loop. It blocks only while the queue is
// full. An EmergencyStop never blocks: it bypasses the queue and is handled
// before anything already queued. Repeated stops before the loop gets to
// them count as one.
func (c *Controller) Submit(ctx context.Context, cmd Command) error {
	if _, ok := cmd.(EmergencyStop); ok {
		select {
		case c.stopCh <- struct{}{}:
		default:
		}
		return nil
	}
	select {
	case c.cmds <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events returns a channel that receives status updates. When the reader
// falls behind the oldest events are dropped.
func (c *Controller) Events() <-chan Event {
	return c.events
}

// Logs returns a channel that receives log messages.
func (c *Controller) Logs() <-chan string {
	return c.logCh
}

// Interval returns the base tick period.
func (c *Controller) Interval() time.Duration {
	return c.interval
}

// Snapshot returns the current state of every joint.
func (c *Controller) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Joints:      make([]JointSnapshot, len(c.joints)),
		Stop:        c.stop,
		SpeedFactor: c.speed,
		PowerStable: c.monitor.Stable(),
		Preset:      c.preset,
	}
	for i, j := range c.joints {
		st := c.states[i]
		s.Joints[i] = JointSnapshot{
			Name:       j.Name,
			Channel:    j.Channel,
			Mode:       st.Mode,
			PulseWidth: st.PulseWidth(),
			Target:     int(math.Round(st.Target)),
			Normalized: j.Normalize(st.Current),
		}
	}
	return s
}

func (c *Controller) log(format string, args ...any) {
	msg := fmt.Sprintf("[%s] %s", time.Now().Format("15:04:05"), fmt.Sprintf(format, args...))
	select {
	case c.logCh <- msg:
	default:
		// Drop if channel full
	}
}

func (c *Controller) emit(e Event) {
	select {
	case c.events <- e:
	default:
		select {
		case <-c.events:
		default:
		}
		select {
		case c.events <- e:
		default:
		}
	}
}

func (c *Controller) status(format string, args ...any) {
	text := fmt.Sprintf(format, args...)
	c.log("%s", text)
	c.emit(StatusChanged{Text: text})
}

// Start activates the arm and runs the control loop until ctx is done or
// the driver is lost for good. On return every channel has been disabled.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyRunning
	}
	c.running = true
	c.mu.Unlock()

	err := c.activate(ctx)
	if err == nil {
		c.status("Ready")
		c.log("Control loop started, tick %v", c.interval)
		err = c.loop(ctx)
	}

	if serr := c.shutdown(); serr != nil {
		c.log("Warning: shutdown: %v", serr)
	}
	return err
}

func (c *Controller) loop(ctx context.Context) error {
	timer := time.NewTimer(c.period())
	defer timer.Stop()

	var health <-chan time.Time
	if c.opts.HealthInterval > 0 {
		t := time.NewTicker(c.opts.HealthInterval)
		defer t.Stop()
		health = t.C
	}

	for {
		select {
		case <-c.stopCh:
			if err := c.emergencyStop(ctx); err != nil {
				return err
			}
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			if err := c.emergencyStop(ctx); err != nil {
				return err
			}
		case cmd := <-c.cmds:
			if err := c.handle(ctx, cmd); err != nil {
				return err
			}
		case <-timer.C:
			if err := c.step(ctx); err != nil {
				return err
			}
			timer.Reset(c.period())
		case <-health:
			if err := c.checkConnection(ctx); err != nil {
				return err
			}
		}
	}
}

// period is the current tick period: slower while the supply looks
// unstable, faster with a higher speed factor.
func (c *Controller) period() time.Duration {
	c.mu.RLock()
	speed := c.speed
	c.mu.RUnlock()
	return time.Duration(float64(c.interval) * c.monitor.Multiplier() / speed)
}

// activate engages every joint at its starting position.
func (c *Controller) activate(ctx context.Context) error {
	var lost bool
	for i := range c.joints {
		if i > 0 {
			if err := c.pause(ctx, c.opts.ReactivateDelay); err != nil {
				return err
			}
		}
		if err := c.dispatch(ctx, i, c.states[i].PulseWidth()); err != nil && pwm.IsConnectionLost(err) {
			lost = true
			break
		}
	}
	if lost {
		return c.reconnect(ctx)
	}
	return nil
}

// shutdown disables every channel, leaving the servos unpowered.
func (c *Controller) shutdown() error {
	c.mu.Lock()
	c.running = false
	c.gen++
	c.ramp = nil
	c.preset = ""
	c.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var err error
	for i, j := range c.joints {
		if i > 0 {
			time.Sleep(c.opts.StopDelay)
		}
		err = multierr.Append(err, c.ch.SetPulseWidth(ctx, j.Channel, pwm.Disabled))
		c.written[i] = pwm.Disabled
	}
	c.log("Servos disabled")
	return err
}

// handle applies one command.
func (c *Controller) handle(ctx context.Context, cmd Command) error {
	if c.stopState() != Running {
		c.discard(cmd)
		return nil
	}

	switch cmd := cmd.(type) {
	case JogStart:
		c.jogStart(cmd)
	case JogEnd:
		c.jogEnd(cmd)
	case SetTarget:
		c.setTarget(cmd)
	case PresetMove:
		c.presetMove(cmd)
	case SelfTest:
		c.selfTest()
	case SetSpeedFactor:
		c.setSpeedFactor(cmd.Factor)
	case EmergencyStop:
		return c.emergencyStop(ctx)
	}
	return nil
}

func (c *Controller) lookup(name robot.JointName) (int, bool) {
	i, ok := c.reg.Index(name)
	if !ok {
		c.status("Unknown joint %s", name)
		return 0, false
	}
	if c.states[i].Mode == motion.Faulted {
		c.log("Ignoring %s: joint is faulted", name)
		return 0, false
	}
	return i, true
}

func (c *Controller) jogStart(cmd JogStart) {
	i, ok := c.lookup(cmd.Joint)
	if !ok {
		return
	}
	if cmd.Direction == 0 {
		return
	}
	cfg := c.joints[i]

	target := float64(cfg.MinPW)
	arrow := "-"
	if float64(cmd.Direction)*cfg.Sign() > 0 {
		target = float64(cfg.MaxPW)
	}
	if cmd.Direction > 0 {
		arrow = "+"
	}

	c.mu.Lock()
	st := &c.states[i]
	st.SetTarget(cfg, target)
	st.Mode = motion.Jogging
	st.Settle = false
	st.LastCommand = time.Now()
	c.mu.Unlock()

	c.status("Moving: %s %s", cfg.Name, arrow)
}

func (c *Controller) jogEnd(cmd JogEnd) {
	i, ok := c.reg.Index(cmd.Joint)
	if !ok {
		return
	}
	c.mu.Lock()
	st := &c.states[i]
	if st.Mode != motion.Jogging {
		c.mu.Unlock()
		return
	}
	st.Hold()
	st.Mode = motion.Idle
	c.mu.Unlock()

	c.status("Ready")
}

func (c *Controller) setTarget(cmd SetTarget) {
	i, ok := c.lookup(cmd.Joint)
	if !ok {
		return
	}
	cfg := c.joints[i]

	c.mu.Lock()
	st := &c.states[i]
	st.SetTarget(cfg, float64(cmd.PulseWidth))
	st.Mode = motion.Jogging
	st.Settle = true
	st.LastCommand = time.Now()
	target := st.Target
	c.mu.Unlock()

	c.status("Moving: %s to %.0fμs", cfg.Name, target)
}

func (c *Controller) setSpeedFactor(f float64) {
	if !(f >= MinSpeedFactor && f <= MaxSpeedFactor) {
		c.log("Ignoring speed factor %.2f, want %.1f..%.1f", f, MinSpeedFactor, MaxSpeedFactor)
		return
	}
	c.mu.Lock()
	c.speed = f
	c.mu.Unlock()
	c.log("Speed factor %.2f", f)
}

func (c *Controller) stopState() StopState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.stop
}

// step runs one tick: the active preset ramp advances one step, then every
// jogging joint is eased toward its target.
func (c *Controller) step(ctx context.Context) error {
	if c.ramp != nil {
		if err := c.stepRamp(ctx); err != nil {
			if pwm.IsConnectionLost(err) {
				return c.reconnect(ctx)
			}
		}
	}

	c.mu.RLock()
	speed := c.speed
	c.mu.RUnlock()

	for i, cfg := range c.joints {
		c.mu.RLock()
		next := c.states[i]
		c.mu.RUnlock()
		if next.Mode != motion.Jogging {
			continue
		}
		if c.planner.Ease(cfg, &next, speed) && next.Settle {
			next.Mode = motion.Idle
			next.Settle = false
		}

		if pw := next.PulseWidth(); pw != c.written[i] {
			if err := c.dispatch(ctx, i, pw); err != nil {
				if pwm.IsConnectionLost(err) {
					return c.reconnect(ctx)
				}
				continue
			}
		}
		c.commit(i, next)
	}
	return nil
}

// commit stores a joint state once its pulse width is on the servo.
func (c *Controller) commit(i int, st motion.JointState) {
	c.mu.Lock()
	st.LastCommand = c.states[i].LastCommand
	c.states[i] = st
	c.mu.Unlock()
}

// dispatch writes a pulse width to joint i. A failed write faults the
// joint; the error is returned so callers can tell a lost connection apart.
func (c *Controller) dispatch(ctx context.Context, i, pw int) error {
	if err := c.write(ctx, i, pw); err != nil {
		return err
	}
	c.emit(PositionChanged{Joint: c.joints[i].Name, PulseWidth: pw})
	return nil
}

// write sends one pulse width to the driver and feeds the load monitor.
func (c *Controller) write(ctx context.Context, i, pw int) error {
	cfg := c.joints[i]
	if err := c.ch.SetPulseWidth(ctx, cfg.Channel, pw); err != nil {
		if !pwm.IsConnectionLost(err) {
			c.fault(i, err)
		}
		return err
	}
	c.written[i] = pw

	now := time.Now()
	c.mu.Lock()
	c.states[i].LastCommand = now
	c.mu.Unlock()

	if changed, stable := c.monitor.Observe(now); changed {
		c.emit(PowerStabilityChanged{Stable: stable})
		if stable {
			c.log("Power: Stable")
		} else {
			c.log("Power: Unstable, slowing down")
		}
	}
	return nil
}

// fault takes joint i out of service at its last committed position. It
// stays put until the next emergency stop clears it.
func (c *Controller) fault(i int, err error) {
	name := c.joints[i].Name
	c.mu.Lock()
	st := &c.states[i]
	st.Hold()
	st.Mode = motion.Faulted
	c.mu.Unlock()

	c.written[i] = -1
	c.log("Error: %s: %v", name, err)
	c.emit(JointFaulted{Joint: name, Reason: err.Error()})
}

// pause waits for d without taking commands off the queue.
func (c *Controller) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
