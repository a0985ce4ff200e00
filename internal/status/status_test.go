package status

import (
	"encoding/json"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/valve-controller/internal/logic"
)

func event(typ logic.EventType, pos int, pump bool) logic.Event {
	return logic.Event{
		Timestamp:   time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC),
		Type:        typ,
		Band:        logic.BandOverheat,
		Temperature: 70.5,
		State:       logic.State{ValveOpen: true, PumpOn: pump, Position: pos},
	}
}

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cfg := Config{ColdBelow: 40, OverheatAbove: 65, Broker: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.OverheatAbove != 65 {
		t.Errorf("Config.OverheatAbove: got %v, want 65", snap.Config.OverheatAbove)
	}
	if snap.Started {
		t.Error("expected Started=false initially")
	}
	if !math.IsNaN(snap.Temperature) {
		t.Errorf("expected NaN temperature initially, got %v", snap.Temperature)
	}
	if snap.MQTTConnected {
		t.Error("expected MQTTConnected=false initially")
	}
}

func TestObserveUpdatesSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.Observe(event(logic.EventStartup, 0, true))
	tr.Observe(event(logic.EventValveClose, 1, true))
	tr.Observe(event(logic.EventCycle, 1, true))
	tr.Observe(event(logic.EventValveClose, 2, true))
	tr.Observe(event(logic.EventCycle, 2, true))
	tr.Observe(event(logic.EventPumpOff, 2, false))

	snap := tr.Snapshot()
	if !snap.Started {
		t.Error("expected Started=true after STARTUP")
	}
	if snap.State.Position != 2 || snap.State.PumpOn {
		t.Errorf("State: got %+v", snap.State)
	}
	if snap.Temperature != 70.5 || snap.Band != logic.BandOverheat {
		t.Errorf("Temperature/Band: got %v/%s", snap.Temperature, snap.Band)
	}
	if snap.Counts.Cycles != 2 || snap.Counts.ValveCloses != 2 || snap.Counts.PumpOff != 1 {
		t.Errorf("Counts: got %+v", snap.Counts)
	}
	if snap.LastEvent != logic.EventPumpOff {
		t.Errorf("LastEvent: got %s, want PUMP_OFF", snap.LastEvent)
	}
	if snap.Counts.Faults != 0 || snap.LastFault != "" {
		t.Errorf("unexpected fault: %q", snap.LastFault)
	}
}

func TestObserveRecordsFaults(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	e := event(logic.EventSensorFault, 0, true)
	e.Temperature = math.NaN()
	e.Message = "temperature read error"
	tr.Observe(e)
	tr.Observe(event(logic.EventEscalation, 0, false))

	snap := tr.Snapshot()
	if snap.Counts.Faults != 2 {
		t.Errorf("Faults: got %d, want 2", snap.Counts.Faults)
	}
	if snap.LastFault != "ESCALATION" {
		t.Errorf("LastFault: got %q, want ESCALATION", snap.LastFault)
	}
	if !snap.LastFaultAt.Equal(e.Timestamp) {
		t.Errorf("LastFaultAt: got %v", snap.LastFaultAt)
	}
}

func TestSetMQTTConnected(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetMQTTConnected(true)
	if !tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=true")
	}

	tr.SetMQTTConnected(false)
	if tr.Snapshot().MQTTConnected {
		t.Error("expected MQTTConnected=false")
	}
}

func TestSetNetwork(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.Observe(event(logic.EventValveClose, 3, true))

	snap1 := tr.Snapshot()
	tr.Observe(event(logic.EventValveClose, 4, true))

	if snap1.State.Position != 3 {
		t.Error("snapshot should be a copy; position was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Started:        true,
		State:          logic.State{ValveOpen: true, PumpOn: true, Position: 3},
		Temperature:    52.345,
		CallingForHeat: true,
		Band:           logic.BandNormal,
		Trend:          logic.TrendRising,
		Counts:         EventCounts{Cycles: 12, ValveOpens: 2},
		StartTime:      start,
		Now:            start.Add(15 * time.Minute),
		MQTTConnected:  true,
		Config:         Config{ColdBelow: 40, OverheatAbove: 65, FullTravelSec: 200, Broker: "tcp://localhost:1883", HTTPAddr: ":80"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if !s.Ready {
		t.Error("expected Ready=true")
	}
	if s.Temperature == nil || *s.Temperature != 52.35 {
		t.Errorf("Temperature: got %v, want 52.35", s.Temperature)
	}
	if !s.Thermostat {
		t.Error("expected Thermostat=true")
	}
	if s.Band != "HOT_NORMAL" || s.Trend != "RISING" {
		t.Errorf("Band/Trend: got %q/%q", s.Band, s.Trend)
	}
	if s.Valve.EighthsClosed != 3 || !s.Valve.Open {
		t.Errorf("Valve: got %+v", s.Valve)
	}
	if s.Pump != "ON" {
		t.Errorf("Pump: got %q, want ON", s.Pump)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if !s.MQTT.Connected {
		t.Error("expected MQTT.Connected=true")
	}
	if s.Counts.Cycles != 12 || s.Counts.ValveOpens != 2 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.Config.FullTravelSec != 200 {
		t.Errorf("Config.FullTravelSec: got %d, want 200", s.Config.FullTravelSec)
	}
	// Event and Reason should be omitted
	if s.Event != "" || s.Reason != "" {
		t.Errorf("expected empty Event/Reason for web format, got %q/%q", s.Event, s.Reason)
	}
}

func TestFormatJSONBeforeFirstCycle(t *testing.T) {
	tr := NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Config{})

	var parsed map[string]map[string]interface{}
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed["status"]
	if s["band"] != "UNKNOWN" {
		t.Errorf("band: got %v, want UNKNOWN", s["band"])
	}
	if v, ok := s["temperature"]; !ok || v != nil {
		t.Errorf("temperature: got %v, want null", v)
	}
	if s["pump"] != "OFF" {
		t.Errorf("pump: got %v, want OFF", s["pump"])
	}
	if _, exists := s["last_fault"]; exists {
		t.Error("last_fault should be omitted without a fault")
	}
}

func TestFormatStatusEvent(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Started:   true,
		State:     logic.State{PumpOn: true},
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
		Config:    Config{Broker: "tcp://localhost:1883"},
	}

	data := FormatStatusEvent(snap, "HEARTBEAT", "")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "HEARTBEAT" {
		t.Errorf("Event: got %q, want HEARTBEAT", parsed.Status.Event)
	}
	if parsed.Status.Pump != "ON" {
		t.Errorf("Pump: got %q, want ON", parsed.Status.Pump)
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
}

func TestFormatStatusEventShutdown(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	snap := Snapshot{StartTime: start, Now: start.Add(30 * time.Minute)}

	data := FormatStatusEvent(snap, "SHUTDOWN", "SIGTERM")

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if parsed.Status.Event != "SHUTDOWN" {
		t.Errorf("Event: got %q, want SHUTDOWN", parsed.Status.Event)
	}
	if parsed.Status.Reason != "SIGTERM" {
		t.Errorf("Reason: got %q, want SIGTERM", parsed.Status.Reason)
	}
}

func TestFormatStatusEventOmitsReasonWhenEmpty(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
	}

	data := FormatStatusEvent(snap, "STARTUP", "")

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	status := raw["status"].(map[string]interface{})
	if _, exists := status["reason"]; exists {
		t.Error("reason should be omitted when empty")
	}
	if status["event"] != "STARTUP" {
		t.Errorf("event: got %v, want STARTUP", status["event"])
	}
}

func TestFormatJSONWithNetwork(t *testing.T) {
	snap := Snapshot{
		StartTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC),
		Network:   &NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected", SSID: "MyNet"},
	}

	var parsed StatusJSON
	json.Unmarshal(FormatJSON(snap), &parsed)

	if parsed.Status.Network == nil {
		t.Fatal("expected Network in JSON")
	}
	if parsed.Status.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want 192.168.1.42", parsed.Status.Network.IP)
	}
	if parsed.Status.Network.SSID != "MyNet" {
		t.Errorf("Network.SSID: got %q, want MyNet", parsed.Status.Network.SSID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.Observe(event(logic.EventCycle, i%8, i%2 == 0))
			tr.SetMQTTConnected(i%2 == 0)
			tr.SetNetwork(&NetworkInfo{IP: "1.2.3.4"})
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = FormatJSON(snap)
		}
	}()

	wg.Wait()
}
