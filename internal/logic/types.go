// Package logic contains the pure decision logic of the heating control loop.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Waits are returned as durations inside a Plan; executing them is the caller's job.
package logic

import (
	"fmt"
	"strings"
	"time"
)

// Fraction is a discrete amount of valve travel.
type Fraction int

const (
	Full Fraction = iota
	Half
	Quarter
	Eighth
)

// Divisor returns how many times the fraction fits into full travel.
func (f Fraction) Divisor() int {
	switch f {
	case Full:
		return 1
	case Half:
		return 2
	case Quarter:
		return 4
	case Eighth:
		return 8
	}
	return 0
}

// Eighths returns the travel of the fraction in eighths.
func (f Fraction) Eighths() int {
	d := f.Divisor()
	if d == 0 {
		return 0
	}
	return ClosedPosition / d
}

func (f Fraction) String() string {
	switch f {
	case Full:
		return "FULL"
	case Half:
		return "HALF"
	case Quarter:
		return "QUARTER"
	case Eighth:
		return "EIGHTH"
	default:
		return fmt.Sprintf("Fraction(%d)", int(f))
	}
}

// ParseFraction maps a fraction name (full, half, quarter, eighth) to a Fraction.
func ParseFraction(s string) (Fraction, error) {
	switch strings.ToLower(s) {
	case "full":
		return Full, nil
	case "half":
		return Half, nil
	case "quarter":
		return Quarter, nil
	case "eighth":
		return Eighth, nil
	}
	return 0, fmt.Errorf("unknown fraction %q (want full, half, quarter or eighth)", s)
}

// Valve positions in eighths closed.
const (
	OpenPosition   = 0
	ClosedPosition = 8
)

// Band is the temperature classification of a cycle.
type Band string

const (
	BandCold     Band = "COLD"
	BandNormal   Band = "HOT_NORMAL"
	BandOverheat Band = "OVERHEAT"
	BandInvalid  Band = "INVALID"
)

// Trend is the diagnostic temperature direction between two cycles.
type Trend string

const (
	TrendNone    Trend = ""
	TrendRising  Trend = "RISING"
	TrendFalling Trend = "FALLING"
)

// State is everything the control loop remembers between cycles.
type State struct {
	ValveOpen    bool
	PumpOn       bool
	Position     int // eighths closed, 0..8
	PreviousTemp float64
}

// Input is a single cycle's sensor sample.
type Input struct {
	Temperature    float64 // NaN when the sensor could not be read
	CallingForHeat bool
}

// ActionKind identifies one step of a plan.
type ActionKind string

const (
	ActionReport     ActionKind = "REPORT"
	ActionShowTemp   ActionKind = "SHOW_TEMP"
	ActionOpenValve  ActionKind = "OPEN_VALVE"
	ActionCloseValve ActionKind = "CLOSE_VALVE"
	ActionPumpOn     ActionKind = "PUMP_ON"
	ActionPumpOff    ActionKind = "PUMP_OFF"
	ActionWait       ActionKind = "WAIT"
)

// Action is a single command issued by the planner.
type Action struct {
	Kind     ActionKind
	Fraction Fraction      // valve actions only
	Eighths  int           // position change applied by a valve action
	Wait     time.Duration // wait actions only
	Message  string        // report actions only

	// ValveOpen is the valve-open flag once this action is done.
	ValveOpen bool
}

// Plan is the ordered outcome of one decision cycle.
type Plan struct {
	Band        Band
	Trend       Trend
	Interlock   bool
	SensorFault bool
	Actions     []Action
}

// Kinds returns the action kinds in order. Handy for assertions and logs.
func (p Plan) Kinds() []ActionKind {
	out := make([]ActionKind, len(p.Actions))
	for i, a := range p.Actions {
		out[i] = a.Kind
	}
	return out
}

// Apply books an action that has been carried out: the position change of a
// valve move and the valve-open flag planned with it.
func (s *State) Apply(a Action) {
	switch a.Kind {
	case ActionOpenValve:
		s.Position -= a.Eighths
	case ActionCloseValve:
		s.Position += a.Eighths
	}
	s.ValveOpen = a.ValveOpen
}

// EventType represents something the controller reports to observers.
type EventType string

const (
	EventStartup     EventType = "STARTUP"
	EventCycle       EventType = "CYCLE"
	EventValveOpen   EventType = "VALVE_OPEN"
	EventValveClose  EventType = "VALVE_CLOSE"
	EventPumpOn      EventType = "PUMP_ON"
	EventPumpOff     EventType = "PUMP_OFF"
	EventTrend       EventType = "TREND"
	EventInterlock   EventType = "INTERLOCK"
	EventSensorFault EventType = "SENSOR_FAULT"
	EventMismatch    EventType = "ACTUATOR_MISMATCH"
	EventEscalation  EventType = "ESCALATION"
	EventValveFault  EventType = "VALVE_FAULT"
	EventTimeout     EventType = "VALVE_TIMEOUT"
)

// Event is emitted by the controller after something happened.
type Event struct {
	Timestamp      time.Time
	Type           EventType
	Band           Band
	Trend          Trend
	Temperature    float64
	CallingForHeat bool
	State          State
	Fraction       Fraction
	Message        string
}

// IsFault reports whether the event type is a fault.
func (t EventType) IsFault() bool {
	switch t {
	case EventSensorFault, EventMismatch, EventEscalation, EventValveFault, EventTimeout:
		return true
	}
	return false
}
