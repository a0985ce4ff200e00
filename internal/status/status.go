// Package status provides a thread-safe view of the controller for the web
// page and MQTT status events. The Tracker is a controller observer.
package status

import (
	"math"
	"sync"
	"time"

	"github.com/sweeney/valve-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	ColdBelow     float64
	OverheatAbove float64
	FullTravelSec int64
	HeartbeatMs   int64
	Broker        string
	HTTPAddr      string
}

// EventCounts tallies controller events since startup.
type EventCounts struct {
	Cycles      int
	ValveOpens  int
	ValveCloses int
	PumpOn      int
	PumpOff     int
	Interlocks  int
	Faults      int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Started        bool
	State          logic.State
	Temperature    float64
	CallingForHeat bool
	Band           logic.Band
	Trend          logic.Trend
	LastEvent      logic.EventType
	LastEventAt    time.Time
	LastFault      string
	LastFaultAt    time.Time
	Counts         EventCounts
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime:   startTime,
			Temperature: math.NaN(),
			Config:      cfg,
		},
	}
}

// Observe folds a controller event into the snapshot.
func (t *Tracker) Observe(e logic.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.snap
	s.State = e.State
	s.Temperature = e.Temperature
	s.CallingForHeat = e.CallingForHeat
	s.Band = e.Band
	s.Trend = e.Trend
	s.LastEvent = e.Type
	s.LastEventAt = e.Timestamp

	switch e.Type {
	case logic.EventStartup:
		s.Started = true
	case logic.EventCycle:
		s.Counts.Cycles++
	case logic.EventValveOpen:
		s.Counts.ValveOpens++
	case logic.EventValveClose:
		s.Counts.ValveCloses++
	case logic.EventPumpOn:
		s.Counts.PumpOn++
	case logic.EventPumpOff:
		s.Counts.PumpOff++
	case logic.EventInterlock:
		s.Counts.Interlocks++
	}
	if e.Type.IsFault() {
		s.Counts.Faults++
		s.LastFault = string(e.Type)
		if e.Message != "" {
			s.LastFault += ": " + e.Message
		}
		s.LastFaultAt = e.Timestamp
	}
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
