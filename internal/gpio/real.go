//go:build linux

package gpio

import (
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/warthog618/go-gpiocdev"
)

const consumer = "valve-controller"

// Chip is an open GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named chip, retrying with exponential backoff for up to
// maxElapsed. The chip device can appear late during boot.
func OpenChip(name string, maxElapsed time.Duration) (*Chip, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = maxElapsed

	var chip *gpiocdev.Chip
	err := backoff.Retry(func() error {
		c, err := gpiocdev.NewChip(name, gpiocdev.WithConsumer(consumer))
		if err != nil {
			log.Printf("gpio: open %s: %v", name, err)
			return err
		}
		chip = c
		return nil
	}, bo)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

// Input requests pin as an input line.
func (c *Chip) Input(pin int, cfg InputConfig) (*RealInput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput}
	if cfg.PullUp {
		opts = append(opts, gpiocdev.WithPullUp)
	} else {
		opts = append(opts, gpiocdev.WithPullDown)
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	if cfg.Debounce > 0 {
		opts = append(opts, gpiocdev.WithDebounce(cfg.Debounce))
	}

	line, err := c.chip.RequestLine(pin, opts...)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", pin, err)
	}
	return &RealInput{line: line, pin: pin}, nil
}

// Output requests pin as an output line, initially low.
func (c *Chip) Output(pin int) (*RealOutput, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &RealOutput{line: line, pin: pin}, nil
}

// Close releases the chip. Lines must be closed separately.
func (c *Chip) Close() error {
	return c.chip.Close()
}

// RealInput is an input line on actual hardware.
type RealInput struct {
	line *gpiocdev.Line
	pin  int
}

// Read returns the logical level; the kernel applies active-low and debounce.
func (r *RealInput) Read() (bool, error) {
	v, err := r.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", r.pin, err)
	}
	return v == 1, nil
}

// Close reconfigures the line to input with pull-down (matching Pi boot
// defaults) and releases it.
func (r *RealInput) Close() error {
	return closeLine(r.line, r.pin)
}

// RealOutput is an output line on actual hardware.
type RealOutput struct {
	line *gpiocdev.Line
	pin  int
}

// Set drives the line.
func (o *RealOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := o.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", o.pin, err)
	}
	return nil
}

// Value reads back the level on the line.
func (o *RealOutput) Value() (bool, error) {
	v, err := o.line.Value()
	if err != nil {
		return false, fmt.Errorf("read back pin %d: %w", o.pin, err)
	}
	return v == 1, nil
}

// Close drives the line low, then hands it back as an input with pull-down so
// relays and the valve motor stay de-energized through a reboot.
func (o *RealOutput) Close() error {
	var errs []error
	if err := o.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("drive pin %d low: %w", o.pin, err))
	}
	if err := closeLine(o.line, o.pin); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

func closeLine(line *gpiocdev.Line, pin int) error {
	var errs []error
	if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", pin, err))
	}
	if err := line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", pin, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
