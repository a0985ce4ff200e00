// Package config loads the controller configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/valve-controller/internal/actuator"
	"github.com/sweeney/valve-controller/internal/control"
	"github.com/sweeney/valve-controller/internal/gpio"
	"github.com/sweeney/valve-controller/internal/logic"
	"github.com/sweeney/valve-controller/internal/mqtt"
	"github.com/sweeney/valve-controller/internal/sensor"
)

// PinDisabled marks an optional line as not wired.
const PinDisabled = -1

// Config is the complete daemon configuration.
type Config struct {
	Control    ControlConfig     `yaml:"control"`
	Valve      ValveConfig       `yaml:"valve"`
	Thermistor sensor.Thermistor `yaml:"thermistor"`
	GPIO       GPIOConfig        `yaml:"gpio"`
	ADC        ADCConfig         `yaml:"adc"`
	MQTT       MQTTConfig        `yaml:"mqtt"`
	HTTP       HTTPConfig        `yaml:"http"`
}

// ControlConfig holds the thresholds and timings of the control loop.
type ControlConfig struct {
	ColdBelow          float64       `yaml:"cold_below"`
	OverheatAbove      float64       `yaml:"overheat_above"`
	TrendHysteresis    float64       `yaml:"trend_hysteresis"`
	MinPlausible       float64       `yaml:"min_plausible"`
	MaxPlausible       float64       `yaml:"max_plausible"`
	ThrottleCap        int           `yaml:"throttle_cap"`
	TrimClosedAbove    int           `yaml:"trim_closed_above"`
	InterlockAbove     int           `yaml:"interlock_above"`
	IdleWait           time.Duration `yaml:"idle_wait"`
	TrimSettle         time.Duration `yaml:"trim_settle"`
	OverheatSettle     time.Duration `yaml:"overheat_settle"`
	StartupSettle      time.Duration `yaml:"startup_settle"`
	MismatchEscalation int           `yaml:"mismatch_escalation"`
}

// ValveConfig holds the valve motor timing.
type ValveConfig struct {
	FullTravel     time.Duration `yaml:"full_travel"`
	ReportInterval time.Duration `yaml:"report_interval"`
	Tolerance      time.Duration `yaml:"tolerance"`
}

// GPIOConfig maps the devices onto BCM line offsets.
type GPIOConfig struct {
	Chip               string        `yaml:"chip"`
	ChipTimeout        time.Duration `yaml:"chip_timeout"`
	ThermostatPin      int           `yaml:"thermostat_pin"`
	ThermostatDebounce time.Duration `yaml:"thermostat_debounce"`
	PumpPin            int           `yaml:"pump_pin"`
	PumpSensePin       int           `yaml:"pump_sense_pin"`
	LEDPin             int           `yaml:"led_pin"`
	PowerPin           int           `yaml:"power_pin"` // "running" relay, energized at startup
	ValveOpenPin       int           `yaml:"valve_open_pin"`
	ValveClosePin      int           `yaml:"valve_close_pin"`
}

// ADCConfig locates the thermistor channel.
type ADCConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig configures the event mirror. An empty broker disables it.
type MQTTConfig struct {
	Broker          string        `yaml:"broker"`
	ClientID        string        `yaml:"client_id"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
	BufferSize      int           `yaml:"buffer_size"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerOpen     time.Duration `yaml:"breaker_open"`
	PublishCycles   bool          `yaml:"publish_cycles"`
}

// HTTPConfig configures the status server. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig returns the reference configuration of the appliance.
func DefaultConfig() Config {
	lc := logic.DefaultConfig()
	cc := control.DefaultConfig()
	vc := actuator.DefaultValveConfig()
	mo := mqtt.DefaultOptions("")
	bs := mqtt.DefaultBreakerSettings()

	return Config{
		Control: ControlConfig{
			ColdBelow:          lc.ColdBelow,
			OverheatAbove:      lc.OverheatAbove,
			TrendHysteresis:    lc.TrendHysteresis,
			MinPlausible:       lc.MinPlausible,
			MaxPlausible:       lc.MaxPlausible,
			ThrottleCap:        lc.ThrottleCap,
			TrimClosedAbove:    lc.TrimClosedAbove,
			InterlockAbove:     lc.InterlockAbove,
			IdleWait:           lc.IdleWait,
			TrimSettle:         lc.TrimSettle,
			OverheatSettle:     lc.OverheatSettle,
			StartupSettle:      cc.StartupSettle,
			MismatchEscalation: cc.MismatchEscalation,
		},
		Valve: ValveConfig{
			FullTravel:     vc.FullTravel,
			ReportInterval: vc.ReportInterval,
			Tolerance:      vc.Tolerance,
		},
		Thermistor: sensor.DefaultThermistor(),
		GPIO: GPIOConfig{
			Chip:               gpio.DefaultChip,
			ChipTimeout:        30 * time.Second,
			ThermostatPin:      gpio.DefaultPinThermostat,
			ThermostatDebounce: 50 * time.Millisecond,
			PumpPin:            gpio.DefaultPinPump,
			PumpSensePin:       PinDisabled,
			LEDPin:             gpio.DefaultPinLED,
			PowerPin:           PinDisabled,
			ValveOpenPin:       gpio.DefaultPinValveOpen,
			ValveClosePin:      gpio.DefaultPinValveClose,
		},
		ADC: ADCConfig{Path: sensor.DefaultIIOPath},
		MQTT: MQTTConfig{
			ClientID:        mo.ClientID,
			Heartbeat:       15 * time.Minute,
			BufferSize:      mo.BufferSize,
			BreakerFailures: bs.Failures,
			BreakerOpen:     bs.Open,
		},
	}
}

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
}

// Load reads and parses the YAML file at path. Missing fields keep their
// defaults. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return &cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks that all config values are consistent.
func Validate(cfg *Config) error {
	c := cfg.Control
	switch {
	case c.ColdBelow >= c.OverheatAbove:
		return ValidationError{Field: "control.cold_below", Message: "must be below control.overheat_above"}
	case c.MinPlausible >= c.MaxPlausible:
		return ValidationError{Field: "control.min_plausible", Message: "must be below control.max_plausible"}
	case c.TrendHysteresis < 0:
		return ValidationError{Field: "control.trend_hysteresis", Message: "must not be negative"}
	case c.InterlockAbove < 0 || c.InterlockAbove >= logic.ClosedPosition:
		return ValidationError{Field: "control.interlock_above", Message: "must be between 0 and 7"}
	case c.ThrottleCap < 0 || c.ThrottleCap > c.InterlockAbove:
		return ValidationError{Field: "control.throttle_cap", Message: "must be between 0 and control.interlock_above"}
	case c.TrimClosedAbove < 0 || c.TrimClosedAbove > logic.ClosedPosition:
		return ValidationError{Field: "control.trim_closed_above", Message: "must be between 0 and 8"}
	case c.IdleWait <= 0:
		// Cold and closed-valve cycles only wait this long; zero spins the loop.
		return ValidationError{Field: "control.idle_wait", Message: "must be positive"}
	case c.TrimSettle < 0 || c.OverheatSettle < 0 || c.StartupSettle < 0:
		return ValidationError{Field: "control", Message: "waits must not be negative"}
	case c.MismatchEscalation < 0:
		return ValidationError{Field: "control.mismatch_escalation", Message: "must not be negative"}
	}

	v := cfg.Valve
	switch {
	case v.FullTravel <= 0:
		return ValidationError{Field: "valve.full_travel", Message: "must be positive"}
	case v.ReportInterval <= 0:
		return ValidationError{Field: "valve.report_interval", Message: "must be positive"}
	case v.Tolerance < 0:
		return ValidationError{Field: "valve.tolerance", Message: "must not be negative"}
	}

	t := cfg.Thermistor
	switch {
	case t.ReferenceOhms <= 0:
		return ValidationError{Field: "thermistor.reference_ohms", Message: "must be positive"}
	case t.NominalOhms <= 0:
		return ValidationError{Field: "thermistor.nominal_ohms", Message: "must be positive"}
	case t.Beta <= 0:
		return ValidationError{Field: "thermistor.beta", Message: "must be positive"}
	case t.ADCMax <= 1:
		return ValidationError{Field: "thermistor.adc_max", Message: "must be greater than 1"}
	}

	if err := validatePins(cfg.GPIO); err != nil {
		return err
	}

	if cfg.MQTT.Broker != "" {
		if cfg.MQTT.BufferSize <= 0 {
			return ValidationError{Field: "mqtt.buffer_size", Message: "must be positive"}
		}
		if cfg.MQTT.BreakerFailures == 0 {
			return ValidationError{Field: "mqtt.breaker_failures", Message: "must be positive"}
		}
		if cfg.MQTT.Heartbeat < 0 {
			return ValidationError{Field: "mqtt.heartbeat", Message: "must not be negative"}
		}
	}
	return nil
}

func validatePins(g GPIOConfig) error {
	if g.Chip == "" {
		return ValidationError{Field: "gpio.chip", Message: "required field is empty"}
	}
	pins := []struct {
		field    string
		pin      int
		optional bool
	}{
		{"gpio.thermostat_pin", g.ThermostatPin, false},
		{"gpio.pump_pin", g.PumpPin, false},
		{"gpio.valve_open_pin", g.ValveOpenPin, false},
		{"gpio.valve_close_pin", g.ValveClosePin, false},
		{"gpio.pump_sense_pin", g.PumpSensePin, true},
		{"gpio.led_pin", g.LEDPin, true},
		{"gpio.power_pin", g.PowerPin, true},
	}
	seen := make(map[int]string)
	for _, p := range pins {
		if p.optional && p.pin == PinDisabled {
			continue
		}
		if p.pin < 0 {
			return ValidationError{Field: p.field, Message: "must not be negative"}
		}
		if other, ok := seen[p.pin]; ok {
			return ValidationError{Field: p.field, Message: fmt.Sprintf("line %d already used by %s", p.pin, other)}
		}
		seen[p.pin] = p.field
	}
	return nil
}

// Logic returns the planner configuration.
func (c *Config) Logic() logic.Config {
	return logic.Config{
		ColdBelow:       c.Control.ColdBelow,
		OverheatAbove:   c.Control.OverheatAbove,
		TrendHysteresis: c.Control.TrendHysteresis,
		MinPlausible:    c.Control.MinPlausible,
		MaxPlausible:    c.Control.MaxPlausible,
		ThrottleCap:     c.Control.ThrottleCap,
		TrimClosedAbove: c.Control.TrimClosedAbove,
		InterlockAbove:  c.Control.InterlockAbove,
		IdleWait:        c.Control.IdleWait,
		TrimSettle:      c.Control.TrimSettle,
		OverheatSettle:  c.Control.OverheatSettle,
	}
}

// Controller returns the controller configuration.
func (c *Config) Controller() control.Config {
	return control.Config{
		Logic:              c.Logic(),
		StartupSettle:      c.Control.StartupSettle,
		MismatchEscalation: c.Control.MismatchEscalation,
	}
}

// ValveTiming returns the valve actuator timing.
func (c *Config) ValveTiming() actuator.ValveConfig {
	return actuator.ValveConfig{
		FullTravel:     c.Valve.FullTravel,
		ReportInterval: c.Valve.ReportInterval,
		Tolerance:      c.Valve.Tolerance,
	}
}

// MQTTOptions returns the publisher options for the configured broker.
func (c *Config) MQTTOptions() mqtt.Options {
	o := mqtt.DefaultOptions(c.MQTT.Broker)
	if c.MQTT.ClientID != "" {
		o.ClientID = c.MQTT.ClientID
	}
	o.BufferSize = c.MQTT.BufferSize
	return o
}

// Breaker returns the circuit breaker settings for the publisher.
func (c *Config) Breaker() mqtt.BreakerSettings {
	return mqtt.BreakerSettings{Failures: c.MQTT.BreakerFailures, Open: c.MQTT.BreakerOpen}
}
