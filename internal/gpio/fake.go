package gpio

import "errors"

// FakeInput is a test double that returns scripted line levels.
type FakeInput struct {
	// Samples contains scripted values to return.
	// Each call to Read() consumes the next sample.
	Samples []bool
	// index tracks current position in Samples
	index int
	// Closed tracks if Close was called
	Closed bool
	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given samples.
func NewFakeInput(samples ...bool) *FakeInput {
	return &FakeInput{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeInput) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Samples) == 0 {
		return false, errors.New("no samples configured")
	}
	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return sample, nil
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the input to the beginning of samples.
func (f *FakeInput) Reset() {
	f.index = 0
	f.Closed = false
}

// FakeOutput is a test double that records every write.
type FakeOutput struct {
	// Level is the level currently driven.
	Level bool
	// Writes records every Set call in order.
	Writes []bool
	// Stuck makes Value report StuckLevel regardless of what was driven,
	// simulating a welded or dead relay.
	Stuck      bool
	StuckLevel bool
	// SetError, if set, will be returned by Set and the level is not changed.
	SetError error
	// ReleaseError, if set, is returned by Set(false) only: the line can be
	// driven high but not released.
	ReleaseError error
	// ValueError, if set, will be returned by Value.
	ValueError error
	// Closed tracks if Close was called
	Closed bool
}

// NewFakeOutput creates a FakeOutput driven low.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the write and updates Level.
func (f *FakeOutput) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	if !on && f.ReleaseError != nil {
		return f.ReleaseError
	}
	f.Writes = append(f.Writes, on)
	f.Level = on
	return nil
}

// Value returns Level, or StuckLevel when Stuck is set.
func (f *FakeOutput) Value() (bool, error) {
	if f.ValueError != nil {
		return false, f.ValueError
	}
	if f.Stuck {
		return f.StuckLevel, nil
	}
	return f.Level, nil
}

// Close drives the line low and marks it closed.
func (f *FakeOutput) Close() error {
	f.Level = false
	f.Closed = true
	return nil
}
