package logic

import (
	"fmt"
	"math"
	"time"
)

// Config holds the thresholds and settle times of the control loop.
type Config struct {
	ColdBelow       float64 // below this the water is too cold to circulate
	OverheatAbove   float64 // above this the valve is throttled
	TrendHysteresis float64 // minimum change reported as rising/falling
	MinPlausible    float64 // readings outside [MinPlausible, MaxPlausible] are sensor faults
	MaxPlausible    float64

	ThrottleCap     int // overheat throttling never closes beyond this many eighths
	TrimClosedAbove int // thermostat trim treats positions above this as closed
	InterlockAbove  int // positions above this force the pump off

	IdleWait       time.Duration
	TrimSettle     time.Duration
	OverheatSettle time.Duration
}

// DefaultConfig returns the reference thresholds of the appliance.
func DefaultConfig() Config {
	return Config{
		ColdBelow:       40,
		OverheatAbove:   65,
		TrendHysteresis: 0.3,
		MinPlausible:    0,
		MaxPlausible:    100,
		ThrottleCap:     6,
		TrimClosedAbove: 5,
		InterlockAbove:  7,
		IdleWait:        time.Second,
		TrimSettle:      35 * time.Second,
		OverheatSettle:  60 * time.Second,
	}
}

// Planner turns a State and a sensor Input into the actions of one cycle.
type Planner struct {
	cfg Config
}

// NewPlanner creates a planner with the given configuration.
func NewPlanner(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

// Config returns the planner configuration.
func (p *Planner) Config() Config {
	return p.cfg
}

// Plausible reports whether t can be trusted as a water temperature.
func (p *Planner) Plausible(t float64) bool {
	return !math.IsNaN(t) && t >= p.cfg.MinPlausible && t <= p.cfg.MaxPlausible
}

// Classify returns the temperature band of t.
func (p *Planner) Classify(t float64) Band {
	switch {
	case !p.Plausible(t):
		return BandInvalid
	case t < p.cfg.ColdBelow:
		return BandCold
	case t > p.cfg.OverheatAbove:
		return BandOverheat
	default:
		return BandNormal
	}
}

// TrendOf compares cur against the reference temperature ref.
// A NaN reference never yields a trend.
func (p *Planner) TrendOf(ref, cur float64) Trend {
	switch {
	case cur > ref+p.cfg.TrendHysteresis:
		return TrendRising
	case cur < ref-p.cfg.TrendHysteresis:
		return TrendFalling
	default:
		return TrendNone
	}
}

// Plan decides one cycle. It mutates st to the state the system will be in
// once every returned action has been carried out.
func (p *Planner) Plan(st *State, in Input) Plan {
	b := &builder{st: st}
	plan := Plan{Band: p.Classify(in.Temperature)}

	plausible := plan.Band != BandInvalid
	if plausible {
		plan.Trend = p.TrendOf(st.PreviousTemp, in.Temperature)
		defer func() { st.PreviousTemp = in.Temperature }()
	}

	// Interlock runs before anything else and ends the cycle.
	if st.Position > p.cfg.InterlockAbove && (st.ValveOpen || st.PumpOn) {
		plan.Interlock = true
		b.report("The valve is completely closed, the pump turns off")
		st.ValveOpen = false
		b.pumpOff()
		b.wait(p.cfg.IdleWait)
		plan.Actions = b.actions
		return plan
	}

	if !plausible {
		plan.SensorFault = true
		b.report(fmt.Sprintf("Temperature reading %.2f °C is not plausible, skipping cycle", in.Temperature))
		b.wait(p.cfg.IdleWait)
		plan.Actions = b.actions
		return plan
	}

	switch plan.Band {
	case BandCold:
		p.cold(b, in)
	case BandNormal:
		p.normal(b, in)
	case BandOverheat:
		p.overheat(b, in)
	}

	plan.Actions = b.actions
	return plan
}

func (p *Planner) cold(b *builder, in Input) {
	if in.CallingForHeat {
		b.open(Quarter, "The water is cold but the thermostat is on, opening the valve by a quarter")
		b.st.ValveOpen = b.st.Position < ClosedPosition
		if !b.st.PumpOn {
			b.pumpOn()
		}
	}
	b.wait(p.cfg.IdleWait)
}

func (p *Planner) normal(b *builder, in Input) {
	if !b.st.ValveOpen {
		b.open(Full, "Valve opening fully")
		b.st.ValveOpen = true
		b.pumpOn()
	}
	p.trim(b, in)
}

func (p *Planner) overheat(b *builder, in Input) {
	if !b.st.ValveOpen {
		b.open(Half, fmt.Sprintf("Water temperature above %.0f °C, valve opening by half", p.cfg.OverheatAbove))
		b.st.ValveOpen = true
		b.pumpOn()
		b.wait(p.cfg.OverheatSettle)
		return
	}

	throttled := false
	if b.st.Position < p.cfg.ThrottleCap {
		b.close(Eighth, fmt.Sprintf("Water temperature above %.0f °C, throttling the valve by one eighth", p.cfg.OverheatAbove))
		throttled = true
	}
	b.wait(p.cfg.OverheatSettle)
	if throttled {
		return
	}

	if !in.CallingForHeat {
		p.closedValve(b)
		return
	}
	if !b.st.PumpOn {
		b.pumpOn()
	}
	b.report(fmt.Sprintf("The valve is held at the throttle limit (%d/8 closed)", b.st.Position))
}

func (p *Planner) trim(b *builder, in Input) {
	if !in.CallingForHeat {
		if b.st.Position > p.cfg.TrimClosedAbove {
			p.closedValve(b)
			return
		}
		b.close(Eighth, "The thermostat is off, closing the valve by one eighth")
		b.showTemp()
		b.wait(p.cfg.TrimSettle)
		return
	}

	if b.st.Position != OpenPosition {
		if !b.st.PumpOn {
			b.pumpOn()
		}
		if b.st.Position >= 2 {
			b.open(Quarter, "The thermostat is on, opening the valve by a quarter")
		}
		if b.st.Position == 1 {
			b.open(Eighth, "The thermostat is on, opening the valve by one eighth")
		}
	} else {
		b.showTemp()
		b.wait(p.cfg.TrimSettle)
	}
	b.showTemp()
	b.wait(p.cfg.TrimSettle)
}

// closedValve handles a valve that is effectively closed while no heat is wanted.
func (p *Planner) closedValve(b *builder) {
	if b.st.PumpOn {
		b.report(fmt.Sprintf("The valve is %d/8 closed, turning the pump off", b.st.Position))
		b.pumpOff()
		return
	}
	b.report(fmt.Sprintf("The valve is closed (%d/8) and the pump is off", b.st.Position))
	b.showTemp()
	b.wait(p.cfg.IdleWait)
}

// builder accumulates actions and keeps the state in lock-step with them.
type builder struct {
	st      *State
	actions []Action
}

func (b *builder) add(a Action) {
	a.ValveOpen = b.st.ValveOpen
	b.actions = append(b.actions, a)
}

func (b *builder) report(msg string) {
	b.add(Action{Kind: ActionReport, Message: msg})
}

func (b *builder) showTemp() {
	b.add(Action{Kind: ActionShowTemp})
}

func (b *builder) wait(d time.Duration) {
	if d > 0 {
		b.add(Action{Kind: ActionWait, Wait: d})
	}
}

func (b *builder) pumpOn() {
	b.st.PumpOn = true
	b.add(Action{Kind: ActionPumpOn})
}

func (b *builder) pumpOff() {
	b.st.PumpOn = false
	b.add(Action{Kind: ActionPumpOff})
}

// open commands up to f of opening travel, never more than the valve has left.
func (b *builder) open(f Fraction, msg string) {
	n := min(f.Eighths(), b.st.Position)
	if n <= 0 {
		return
	}
	b.report(msg)
	for _, step := range Steps(n) {
		b.st.Position -= step.Eighths()
		b.add(Action{Kind: ActionOpenValve, Fraction: step, Eighths: step.Eighths()})
	}
}

// close commands up to f of closing travel, never more than the valve has left.
func (b *builder) close(f Fraction, msg string) {
	n := min(f.Eighths(), ClosedPosition-b.st.Position)
	if n <= 0 {
		return
	}
	b.report(msg)
	for _, step := range Steps(n) {
		b.st.Position += step.Eighths()
		b.add(Action{Kind: ActionCloseValve, Fraction: step, Eighths: step.Eighths()})
	}
}

// Steps splits a travel of n eighths into the fewest fractions, largest first.
func Steps(n int) []Fraction {
	var out []Fraction
	for _, f := range []Fraction{Full, Half, Quarter, Eighth} {
		for n >= f.Eighths() {
			out = append(out, f)
			n -= f.Eighths()
		}
	}
	return out
}
