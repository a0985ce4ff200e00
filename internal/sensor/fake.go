package sensor

import "errors"

// FakeADC is a test double that returns scripted raw samples.
type FakeADC struct {
	Samples   []int
	index     int
	ReadError error
}

// ReadRaw returns the next scripted sample, repeating the last one.
func (f *FakeADC) ReadRaw() (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}
	v := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}
	return v, nil
}

// FakeTemperature returns scripted Celsius readings.
type FakeTemperature struct {
	// Readings are consumed one per Read; the last one repeats.
	Readings []float64
	index    int
	// Errors maps a read index to an error returned instead of the reading.
	Errors map[int]error
	// Reads counts calls to Read.
	Reads int
}

// NewFakeTemperature creates a FakeTemperature with the given readings.
func NewFakeTemperature(readings ...float64) *FakeTemperature {
	return &FakeTemperature{Readings: readings}
}

// Read returns the next scripted reading.
func (f *FakeTemperature) Read() (float64, error) {
	n := f.Reads
	f.Reads++
	if err, ok := f.Errors[n]; ok {
		return 0, err
	}
	if len(f.Readings) == 0 {
		return 0, errors.New("no readings configured")
	}
	v := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return v, nil
}
