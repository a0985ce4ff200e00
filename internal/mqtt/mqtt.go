// Package mqtt mirrors controller events to an MQTT broker, with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/valve-controller/internal/logic"
)

// Topic is the MQTT topic for controller events.
const Topic = "heating/valve-controller/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "heating/valve-controller/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a controller event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event logic.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Controller ControllerPayload `json:"controller"`
}

// ControllerPayload contains the controller event details.
type ControllerPayload struct {
	Timestamp   string       `json:"timestamp"`
	Event       string       `json:"event"`
	Band        string       `json:"band,omitempty"`
	Trend       string       `json:"trend,omitempty"`
	Temperature *float64     `json:"temperature"`
	Thermostat  bool         `json:"thermostat"`
	Valve       ValveState   `json:"valve"`
	Pump        ChannelState `json:"pump"`
	Message     string       `json:"message,omitempty"`
}

// ValveState is the believed valve position in eighths closed.
type ValveState struct {
	Open     bool   `json:"open"`
	Position int    `json:"position"`
	Fraction string `json:"fraction,omitempty"`
}

// ChannelState represents a binary output's state.
type ChannelState struct {
	State string `json:"state"`
}

// FormatPayload creates the JSON payload for a controller event.
// A NaN temperature is encoded as null.
func FormatPayload(event logic.Event) ([]byte, error) {
	payload := Payload{
		Controller: ControllerPayload{
			Timestamp:  event.Timestamp.UTC().Format(time.RFC3339),
			Event:      string(event.Type),
			Band:       string(event.Band),
			Trend:      string(event.Trend),
			Thermostat: event.CallingForHeat,
			Valve: ValveState{
				Open:     event.State.ValveOpen,
				Position: event.State.Position,
			},
			Pump:    ChannelState{State: onOff(event.State.PumpOn)},
			Message: event.Message,
		},
	}
	if !math.IsNaN(event.Temperature) {
		t := math.Round(event.Temperature*100) / 100
		payload.Controller.Temperature = &t
	}
	switch event.Type {
	case logic.EventValveOpen, logic.EventValveClose, logic.EventValveFault, logic.EventTimeout:
		payload.Controller.Valve.Fraction = event.Fraction.String()
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
