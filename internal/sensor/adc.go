package sensor

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ADC returns raw analog samples.
type ADC interface {
	ReadRaw() (int, error)
}

// DefaultIIOPath is channel 0 of the first industrial-I/O ADC.
const DefaultIIOPath = "/sys/bus/iio/devices/iio:device0/in_voltage0_raw"

// IIOADC reads a Linux industrial-I/O ADC channel through sysfs.
type IIOADC struct {
	Path string
}

// NewIIOADC returns an ADC reading the given sysfs raw channel file.
func NewIIOADC(path string) *IIOADC {
	return &IIOADC{Path: path}
}

// ReadRaw samples the channel. Each call triggers a fresh conversion.
func (a *IIOADC) ReadRaw() (int, error) {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return 0, fmt.Errorf("read adc: %w", err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("parse adc sample %q: %w", strings.TrimSpace(string(data)), err)
	}
	return v, nil
}
