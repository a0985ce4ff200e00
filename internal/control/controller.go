// Package control runs the heating control loop: it samples the sensors,
// asks the planner what to do and carries the plan out on the hardware.
package control

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/sweeney/valve-controller/internal/actuator"
	"github.com/sweeney/valve-controller/internal/clock"
	"github.com/sweeney/valve-controller/internal/logic"
)

var (
	// ErrCycleInProgress is returned when a cycle is requested while another runs.
	ErrCycleInProgress = errors.New("control: cycle already in progress")
	// ErrNotStarted is returned by Cycle before Start has completed.
	ErrNotStarted = errors.New("control: controller not started")
)

// TemperatureSource returns the water temperature in Celsius.
type TemperatureSource interface {
	Read() (float64, error)
}

// Thermostat reports whether the external thermostat wants heat.
type Thermostat interface {
	CallingForHeat() (bool, error)
}

// Switch is a binary actuator that confirms the state it ends up in.
type Switch interface {
	SetOn(on bool) (bool, error)
	IsOn() bool
}

// Valve moves the mixing valve by discrete fractions, blocking until done.
type Valve interface {
	OpenBy(f logic.Fraction) error
	CloseBy(f logic.Fraction) error
}

// Observer receives controller events. Observe is called from the control
// goroutine and must not block for long.
type Observer interface {
	Observe(e logic.Event)
}

// Hardware bundles the devices the controller drives. Indicator and Power
// may be nil.
type Hardware struct {
	Temperature TemperatureSource
	Thermostat  Thermostat
	Pump        Switch
	Indicator   Switch
	Power       Switch // "running" output, switched on at startup
	Valve       Valve
}

// Config holds the controller settings.
type Config struct {
	Logic              logic.Config
	StartupSettle      time.Duration
	MismatchEscalation int
}

// DefaultConfig returns the reference controller settings.
func DefaultConfig() Config {
	return Config{
		Logic:              logic.DefaultConfig(),
		StartupSettle:      5 * time.Second,
		MismatchEscalation: 3,
	}
}

// Controller owns the control loop state. Only one cycle runs at a time.
type Controller struct {
	mu sync.Mutex

	cfg        Config
	hw         Hardware
	clock      clock.Clock
	log        *log.Logger
	observers  []Observer
	planner    *logic.Planner
	mismatches *logic.MismatchCounter

	state     logic.State
	started   bool
	escalated bool
	// valveStuck latches after a valve line failed to de-energize; it
	// clears on the next clean move.
	valveStuck bool

	// per-cycle context used when emitting events
	temp    float64
	calling bool
	plan    logic.Plan
}

// New creates a controller. Report lines are written to logger.
func New(cfg Config, hw Hardware, clk clock.Clock, logger *log.Logger, observers ...Observer) *Controller {
	return &Controller{
		cfg:        cfg,
		hw:         hw,
		clock:      clk,
		log:        logger,
		observers:  observers,
		planner:    logic.NewPlanner(cfg.Logic),
		mismatches: logic.NewMismatchCounter(cfg.MismatchEscalation),
		temp:       math.NaN(),
	}
}

// Start runs the startup sequence: valve fully open, pump on, settle, then
// record the baseline temperature.
func (c *Controller) Start() error {
	if !c.mu.TryLock() {
		return ErrCycleInProgress
	}
	defer c.mu.Unlock()

	c.setPower()
	c.log.Print("Setup run...")

	// Unknown position: assume closed until the full opening is confirmed,
	// so a failed travel leaves the first hot cycle to reopen it.
	c.state = logic.State{Position: logic.ClosedPosition, PreviousTemp: math.NaN()}
	open := logic.Action{Kind: logic.ActionOpenValve, Fraction: logic.Full, Eighths: logic.ClosedPosition, ValveOpen: true}
	if c.moveValve(open) {
		c.log.Print("The valve is open")
	}

	c.setPump(true)

	c.log.Printf("Pump test run... (%v)", c.cfg.StartupSettle)
	c.clock.Sleep(c.cfg.StartupSettle)

	t, err := c.hw.Temperature.Read()
	if err != nil {
		c.log.Printf("temperature read error: %v", err)
		t = math.NaN()
	}
	c.temp = t
	if c.planner.Plausible(t) {
		c.state.PreviousTemp = t
		c.showTemp()
	} else {
		c.log.Printf("Baseline temperature %.2f °C is not plausible", t)
		c.emit(logic.EventSensorFault, "baseline temperature not plausible")
	}

	c.log.Print("-----------------------------------")
	c.log.Print("Test completed, controller start...")
	c.log.Print("-----------------------------------")

	c.setIndicator(c.valveStuck)
	c.started = true
	c.emit(logic.EventStartup, "")
	return nil
}

// Cycle runs one decision cycle and returns the plan that was carried out.
// It blocks for every wait and valve movement in the plan.
func (c *Controller) Cycle() (logic.Plan, error) {
	if !c.mu.TryLock() {
		return logic.Plan{}, ErrCycleInProgress
	}
	defer c.mu.Unlock()

	if !c.started {
		return logic.Plan{}, ErrNotStarted
	}

	t, err := c.hw.Temperature.Read()
	if err != nil {
		c.log.Printf("temperature read error: %v", err)
		t = math.NaN()
	}
	calling, thermErr := c.hw.Thermostat.CallingForHeat()
	if thermErr != nil {
		c.log.Printf("thermostat read error: %v", thermErr)
		calling = false
	}
	c.temp = t
	c.calling = calling

	// The plan is made against a copy; c.state only follows the actions
	// that have actually been carried out.
	planned := c.state
	c.plan = c.planner.Plan(&planned, logic.Input{Temperature: t, CallingForHeat: calling})

	fault := thermErr != nil
	if fault {
		c.emit(logic.EventSensorFault, fmt.Sprintf("thermostat read error: %v", thermErr))
	}
	switch c.plan.Trend {
	case logic.TrendRising:
		c.log.Print("Rising temperature")
		c.emit(logic.EventTrend, "")
	case logic.TrendFalling:
		c.log.Print("Falling temperature")
		c.emit(logic.EventTrend, "")
	}
	if c.plan.Interlock {
		c.emit(logic.EventInterlock, "")
	}
	if c.plan.SensorFault {
		fault = true
		c.emit(logic.EventSensorFault, fmt.Sprintf("temperature %.2f °C not plausible", t))
	}

	for _, a := range c.plan.Actions {
		c.execute(a)
	}
	c.state.ValveOpen = planned.ValveOpen
	c.state.PreviousTemp = planned.PreviousTemp

	c.setIndicator(fault || c.escalated || c.valveStuck)
	c.emit(logic.EventCycle, "")
	return c.plan, nil
}

// Run starts the controller if needed and then cycles until ctx is done.
// The context is only checked between cycles; a running cycle always completes.
func (c *Controller) Run(ctx context.Context) error {
	if !c.Started() {
		if err := c.Start(); err != nil {
			return err
		}
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if _, err := c.Cycle(); err != nil {
			return err
		}
	}
}

// Started reports whether the startup sequence has completed.
func (c *Controller) Started() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// State returns a copy of the loop state. It blocks while a cycle runs.
func (c *Controller) State() logic.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetState replaces the loop state, for taking over a valve whose position
// is known without running the startup travel.
func (c *Controller) SetState(st logic.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = st
	c.started = true
}

// Mismatches returns the number of actuator mismatches seen since startup.
func (c *Controller) Mismatches() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mismatches.Total()
}

func (c *Controller) execute(a logic.Action) {
	if a.Kind != logic.ActionOpenValve && a.Kind != logic.ActionCloseValve {
		c.state.Apply(a)
	}
	switch a.Kind {
	case logic.ActionReport:
		c.log.Print(a.Message)
	case logic.ActionShowTemp:
		c.showTemp()
	case logic.ActionWait:
		c.log.Printf("Wait... (%v)", a.Wait)
		c.clock.Sleep(a.Wait)
	case logic.ActionPumpOn:
		c.setPump(true)
	case logic.ActionPumpOff:
		c.setPump(false)
	case logic.ActionOpenValve, logic.ActionCloseValve:
		c.moveValve(a)
	}
}

func (c *Controller) showTemp() {
	c.log.Printf("Temp:\t%.2f °C", c.temp)
}

// setPump commands the pump and reconciles the believed state with the
// state the relay confirms.
func (c *Controller) setPump(on bool) {
	word := onOff(on)
	c.log.Printf("Turning %s the pump...", word)

	confirmed, err := c.hw.Pump.SetOn(on)
	if err == nil && confirmed == on {
		c.log.Printf("The pump is %s", word)
		c.state.PumpOn = on
		c.mismatches.Record(true)
		c.escalated = false
		if on {
			c.emit(logic.EventPumpOn, "")
		} else {
			c.emit(logic.EventPumpOff, "")
		}
		return
	}

	var msg string
	if err != nil {
		c.state.PumpOn = c.hw.Pump.IsOn()
		msg = fmt.Sprintf("pump switch-%s error: %v", word, err)
	} else {
		c.state.PumpOn = confirmed
		msg = fmt.Sprintf("pump switch-%s error: relay reports %s", word, onOff(confirmed))
	}
	c.log.Print(msg)
	c.emit(logic.EventMismatch, msg)

	if c.mismatches.Record(false) {
		c.escalated = true
		msg := fmt.Sprintf("pump relay not responding after %d consecutive attempts", c.mismatches.Consecutive())
		c.log.Print(msg)
		c.emit(logic.EventEscalation, msg)
	}
}

// moveValve carries out a valve action and books its position change once
// the valve has travelled. A valve that could not be driven at all keeps
// its position.
func (c *Controller) moveValve(a logic.Action) bool {
	var err error
	if a.Kind == logic.ActionOpenValve {
		c.log.Printf("Opening of the valve: %s", a.Fraction)
		err = c.hw.Valve.OpenBy(a.Fraction)
	} else {
		c.log.Printf("Closing of the valve: %s", a.Fraction)
		err = c.hw.Valve.CloseBy(a.Fraction)
	}

	evt := logic.EventValveClose
	if a.Kind == logic.ActionOpenValve {
		evt = logic.EventValveOpen
	}

	switch {
	case err == nil:
		c.valveStuck = false
		c.state.Apply(a)
		c.emitFraction(evt, a.Fraction, "")
		return true
	case errors.Is(err, actuator.ErrTravelTimeout):
		c.log.Printf("valve watchdog: %v", err)
		c.state.Apply(a)
		c.emitFraction(logic.EventTimeout, a.Fraction, err.Error())
		c.emitFraction(evt, a.Fraction, "")
		return true
	case errors.Is(err, actuator.ErrStopFailed):
		// The pulse ran, so the valve moved at least the commanded travel.
		c.log.Printf("valve fault: %v", err)
		c.valveStuck = true
		c.state.Apply(a)
		c.emitFraction(logic.EventValveFault, a.Fraction, err.Error())
		c.emitFraction(evt, a.Fraction, "")
		return true
	default:
		c.log.Printf("valve fault: %v", err)
		c.emitFraction(logic.EventValveFault, a.Fraction, err.Error())
		return false
	}
}

// setPower energizes the "running" output. A failure is reported but does
// not hold up heating.
func (c *Controller) setPower() {
	if c.hw.Power == nil {
		return
	}
	confirmed, err := c.hw.Power.SetOn(true)
	switch {
	case err != nil:
		msg := fmt.Sprintf("power switch-on error: %v", err)
		c.log.Print(msg)
		c.emit(logic.EventMismatch, msg)
	case !confirmed:
		msg := "power switch-on error: relay reports off"
		c.log.Print(msg)
		c.emit(logic.EventMismatch, msg)
	}
}

func (c *Controller) setIndicator(on bool) {
	if c.hw.Indicator == nil || c.hw.Indicator.IsOn() == on {
		return
	}
	confirmed, err := c.hw.Indicator.SetOn(on)
	if err != nil {
		c.log.Printf("indicator error: %v", err)
		return
	}
	if confirmed != on {
		c.log.Printf("indicator switch-%s error", onOff(on))
	}
}

func (c *Controller) emit(t logic.EventType, msg string) {
	c.emitFraction(t, 0, msg)
}

func (c *Controller) emitFraction(t logic.EventType, f logic.Fraction, msg string) {
	if len(c.observers) == 0 {
		return
	}
	e := logic.Event{
		Timestamp:      c.clock.Now(),
		Type:           t,
		Band:           c.plan.Band,
		Trend:          c.plan.Trend,
		Temperature:    c.temp,
		CallingForHeat: c.calling,
		State:          c.state,
		Fraction:       f,
		Message:        msg,
	}
	for _, o := range c.observers {
		o.Observe(e)
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
