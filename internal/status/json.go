package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	Temperature   *float64     `json:"temperature"`
	Thermostat    bool         `json:"thermostat"`
	Band          string       `json:"band"`
	Trend         string       `json:"trend,omitempty"`
	Valve         ValveJSON    `json:"valve"`
	Pump          string       `json:"pump"`
	LastEvent     string       `json:"last_event,omitempty"`
	LastFault     string       `json:"last_fault,omitempty"`
	LastFaultAt   string       `json:"last_fault_at,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ValveJSON is the believed valve position.
type ValveJSON struct {
	Open          bool `json:"open"`
	EighthsClosed int  `json:"eighths_closed"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Cycles      int `json:"cycles"`
	ValveOpens  int `json:"valve_open"`
	ValveCloses int `json:"valve_close"`
	PumpOn      int `json:"pump_on"`
	PumpOff     int `json:"pump_off"`
	Interlocks  int `json:"interlock"`
	Faults      int `json:"faults"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	ColdBelow     float64 `json:"cold_below"`
	OverheatAbove float64 `json:"overheat_above"`
	FullTravelSec int64   `json:"full_travel_sec"`
	HeartbeatMs   int64   `json:"heartbeat_ms"`
	Broker        string  `json:"broker"`
	HTTPAddr      string  `json:"http_addr"`
}

func buildInner(snap Snapshot) StatusInner {
	band := string(snap.Band)
	if band == "" {
		band = "UNKNOWN"
	}
	pump := "OFF"
	if snap.State.PumpOn {
		pump = "ON"
	}

	inner := StatusInner{
		Ready:         snap.Started,
		Thermostat:    snap.CallingForHeat,
		Band:          band,
		Trend:         string(snap.Trend),
		Valve:         ValveJSON{Open: snap.State.ValveOpen, EighthsClosed: snap.State.Position},
		Pump:          pump,
		LastEvent:     string(snap.LastEvent),
		LastFault:     snap.LastFault,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Cycles:      snap.Counts.Cycles,
			ValveOpens:  snap.Counts.ValveOpens,
			ValveCloses: snap.Counts.ValveCloses,
			PumpOn:      snap.Counts.PumpOn,
			PumpOff:     snap.Counts.PumpOff,
			Interlocks:  snap.Counts.Interlocks,
			Faults:      snap.Counts.Faults,
		},
		Config: ConfigJSON{
			ColdBelow:     snap.Config.ColdBelow,
			OverheatAbove: snap.Config.OverheatAbove,
			FullTravelSec: snap.Config.FullTravelSec,
			HeartbeatMs:   snap.Config.HeartbeatMs,
			Broker:        snap.Config.Broker,
			HTTPAddr:      snap.Config.HTTPAddr,
		},
	}
	if !math.IsNaN(snap.Temperature) {
		t := math.Round(snap.Temperature*100) / 100
		inner.Temperature = &t
	}
	if !snap.LastFaultAt.IsZero() {
		inner.LastFaultAt = snap.LastFaultAt.UTC().Format(time.RFC3339)
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
