package actuator

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sweeney/valve-controller/internal/clock"
	"github.com/sweeney/valve-controller/internal/gpio"
	"github.com/sweeney/valve-controller/internal/logic"
)

// ErrTravelTimeout is returned when a travel pulse ran longer than allowed.
// The pulse was still completed, so the commanded position stands.
var ErrTravelTimeout = errors.New("valve travel exceeded watchdog")

// ErrStopFailed is returned when the direction line could not be released
// after a full pulse. The travel was delivered but the motor may still run.
var ErrStopFailed = errors.New("valve line stuck energized")

// Direction of valve travel.
type Direction string

const (
	Opening Direction = "opening"
	Closing Direction = "closing"
)

// Progress is called while the valve is travelling.
type Progress func(dir Direction, total, remaining time.Duration)

// ValveConfig holds the timing of the valve motor.
type ValveConfig struct {
	FullTravel     time.Duration // time to drive from fully open to fully closed
	ReportInterval time.Duration // progress reporting period
	Tolerance      time.Duration // watchdog slack on top of the computed duration
}

// DefaultValveConfig returns the timing of the NR230 actuator.
func DefaultValveConfig() ValveConfig {
	return ValveConfig{
		FullTravel:     200 * time.Second,
		ReportInterval: 10 * time.Second,
		Tolerance:      5 * time.Second,
	}
}

// TravelTime returns the pulse length for moving the valve by f.
func TravelTime(full time.Duration, f logic.Fraction) time.Duration {
	d := f.Divisor()
	if d == 0 {
		return 0
	}
	return full / time.Duration(d)
}

// Valve is a motorized valve with one output line per direction and no
// position feedback. Position is implied by the pulses it has been given.
type Valve struct {
	open     gpio.Output
	close    gpio.Output
	clock    clock.Clock
	cfg      ValveConfig
	progress Progress
}

// NewValve creates a valve on the two direction lines.
func NewValve(open, close gpio.Output, clk clock.Clock, cfg ValveConfig, progress Progress) *Valve {
	return &Valve{open: open, close: close, clock: clk, cfg: cfg, progress: progress}
}

// OpenBy drives the valve open by f and blocks until the pulse is done.
func (v *Valve) OpenBy(f logic.Fraction) error {
	return v.travel(Opening, v.open, v.close, f)
}

// CloseBy drives the valve closed by f and blocks until the pulse is done.
func (v *Valve) CloseBy(f logic.Fraction) error {
	return v.travel(Closing, v.close, v.open, f)
}

// Stop de-energizes both direction lines.
func (v *Valve) Stop() error {
	return errors.Join(v.open.Set(false), v.close.Set(false))
}

func (v *Valve) travel(dir Direction, drive, hold gpio.Output, f logic.Fraction) error {
	d := TravelTime(v.cfg.FullTravel, f)
	if d <= 0 {
		return fmt.Errorf("%s: invalid fraction %s", dir, f)
	}

	// Never energize both windings at once.
	if err := hold.Set(false); err != nil {
		return fmt.Errorf("%s: release opposite line: %w", dir, err)
	}
	if err := drive.Set(true); err != nil {
		return fmt.Errorf("%s: energize: %w", dir, err)
	}

	start := v.clock.Now()
	for {
		elapsed := v.clock.Now().Sub(start)
		if elapsed >= d {
			break
		}
		remaining := d - elapsed
		if v.progress != nil {
			v.progress(dir, d, remaining)
		}
		step := remaining
		if v.cfg.ReportInterval > 0 && v.cfg.ReportInterval < step {
			step = v.cfg.ReportInterval
		}
		v.clock.Sleep(step)
	}

	elapsed := v.clock.Now().Sub(start)
	if err := release(drive, hold); err != nil {
		return fmt.Errorf("%s %s: de-energize: %v: %w", dir, f, err, ErrStopFailed)
	}
	if elapsed > d+v.cfg.Tolerance {
		return fmt.Errorf("%s %s: ran %v, expected %v: %w", dir, f, elapsed, d, ErrTravelTimeout)
	}
	return nil
}

// release de-energizes drive after a pulse. A failed write is retried once,
// after making sure the opposite line is low.
func release(drive, hold gpio.Output) error {
	err := drive.Set(false)
	if err == nil {
		return nil
	}
	if herr := hold.Set(false); herr != nil {
		err = errors.Join(err, herr)
	}
	if drive.Set(false) == nil {
		return nil
	}
	return err
}

// LogProgress returns a Progress that prints the remaining travel to l.
func LogProgress(l *log.Logger) Progress {
	return func(dir Direction, total, remaining time.Duration) {
		l.Printf("Valve %s: %d sec remaining", dir, int(remaining.Seconds()))
	}
}
