package cli

import (
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/valve-controller/internal/mqtt"
	"github.com/sweeney/valve-controller/internal/status"
)

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper renames them, update the constants.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		assert.Equal(t, canonical, got)
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, &status.NetworkInfo{
		Type:       "wifi",
		IP:         "192.168.1.100",
		Status:     "connected",
		Gateway:    "192.168.1.1",
		WifiStatus: "connected",
		SSID:       "MyNetwork",
	}, info)
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	assert.Nil(t, readNetworkInfo())
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "")

	info := readNetworkInfo()
	require.NotNil(t, info)
	assert.Equal(t, "connected", info.Status)
	assert.Empty(t, info.IP)
}

// --- runLoop ---

type loopRig struct {
	l         loop
	done      chan error
	heartbeat chan time.Time
	refresh   chan time.Time
	sig       chan os.Signal
	cancelled chan struct{}
	pub       *mqtt.FakePublisher
	tracker   *status.Tracker
	stops     int
}

// newLoopRig wires runLoop to channels the test drives. The fake controller
// finishes as soon as it is cancelled unless stuck is set.
func newLoopRig(stuck bool) *loopRig {
	r := &loopRig{
		done:      make(chan error, 1),
		heartbeat: make(chan time.Time),
		refresh:   make(chan time.Time),
		sig:       make(chan os.Signal, 1),
		cancelled: make(chan struct{}),
		pub:       mqtt.NewFakePublisher(),
	}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.tracker = status.NewTracker(start, status.Config{Broker: "tcp://localhost:1883"})
	r.l = loop{
		cancel: func() {
			close(r.cancelled)
			if !stuck {
				r.done <- nil
			}
		},
		done:       r.done,
		publisher:  r.pub,
		mqttStatus: r.pub,
		tracker:    r.tracker,
		now:        func() time.Time { return start.Add(15 * time.Minute) },
		heartbeat:  r.heartbeat,
		refresh:    r.refresh,
		sig:        r.sig,
		grace:      50 * time.Millisecond,
		stopValve: func() error {
			r.stops++
			return nil
		},
	}
	return r
}

func (r *loopRig) start() <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- runLoop(r.l) }()
	return errCh
}

func systemEvents(pub *mqtt.FakePublisher, name string) []mqtt.SystemEvent {
	var out []mqtt.SystemEvent
	for _, e := range pub.SystemEvents {
		if e.Event == name {
			out = append(out, e)
		}
	}
	return out
}

func TestRunLoopShutdownSIGTERM(t *testing.T) {
	r := newLoopRig(false)
	errCh := r.start()

	r.sig <- syscall.SIGTERM
	require.NoError(t, <-errCh)

	select {
	case <-r.cancelled:
	default:
		t.Fatal("controller was not cancelled")
	}

	shutdowns := systemEvents(r.pub, "SHUTDOWN")
	require.Len(t, shutdowns, 1)
	assert.Equal(t, "SIGTERM", shutdowns[0].Reason)
	assert.True(t, shutdowns[0].Retained)

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(shutdowns[0].RawPayload, &sj))
	assert.Equal(t, "SHUTDOWN", sj.Status.Event)
	assert.Equal(t, "SIGTERM", sj.Status.Reason)
}

func TestRunLoopShutdownSIGINT(t *testing.T) {
	r := newLoopRig(false)
	errCh := r.start()

	r.sig <- syscall.SIGINT
	require.NoError(t, <-errCh)

	shutdowns := systemEvents(r.pub, "SHUTDOWN")
	require.Len(t, shutdowns, 1)
	assert.Equal(t, "SIGINT", shutdowns[0].Reason)
}

func TestRunLoopShutdownUnknownSignal(t *testing.T) {
	r := newLoopRig(false)
	errCh := r.start()

	r.sig <- syscall.SIGHUP
	require.NoError(t, <-errCh)

	shutdowns := systemEvents(r.pub, "SHUTDOWN")
	require.Len(t, shutdowns, 1)
	assert.Equal(t, "UNKNOWN", shutdowns[0].Reason)
}

func TestRunLoopGraceTimeout(t *testing.T) {
	r := newLoopRig(true)
	errCh := r.start()

	r.sig <- syscall.SIGTERM
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runLoop did not return after the grace period")
	}
	assert.Equal(t, 1, r.stops, "valve stopped once the grace period ran out")
}

func TestRunLoopGraceTimeoutStopError(t *testing.T) {
	r := newLoopRig(true)
	r.l.stopValve = func() error {
		r.stops++
		return errors.New("line busy")
	}
	errCh := r.start()

	r.sig <- syscall.SIGTERM
	assert.NoError(t, <-errCh, "a failed stop is logged, the daemon still exits")
	assert.Equal(t, 1, r.stops)
}

func TestRunLoopCleanShutdownLeavesValveToController(t *testing.T) {
	r := newLoopRig(false)
	errCh := r.start()

	r.sig <- syscall.SIGTERM
	require.NoError(t, <-errCh)
	assert.Zero(t, r.stops)
}

func TestRunLoopHeartbeat(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkIP, "192.168.1.42")

	r := newLoopRig(false)
	r.pub.Connected = true
	errCh := r.start()

	r.heartbeat <- time.Time{}
	r.sig <- syscall.SIGTERM
	require.NoError(t, <-errCh)

	heartbeats := systemEvents(r.pub, "HEARTBEAT")
	require.Len(t, heartbeats, 1)
	assert.False(t, heartbeats[0].Retained, "heartbeats are not retained")

	var sj status.StatusJSON
	require.NoError(t, json.Unmarshal(heartbeats[0].RawPayload, &sj))
	assert.Equal(t, "HEARTBEAT", sj.Status.Event)
	assert.Equal(t, int64(900), sj.Status.UptimeSeconds)
	assert.True(t, sj.Status.MQTT.Connected)
	require.NotNil(t, sj.Status.Network)
	assert.Equal(t, "192.168.1.42", sj.Status.Network.IP)
}

func TestRunLoopRefreshUpdatesConnection(t *testing.T) {
	r := newLoopRig(false)
	r.pub.Connected = true
	errCh := r.start()

	r.refresh <- time.Time{}
	r.sig <- syscall.SIGTERM
	require.NoError(t, <-errCh)

	assert.True(t, r.tracker.Snapshot().MQTTConnected)
}

func TestRunLoopPublishErrorDoesNotStop(t *testing.T) {
	r := newLoopRig(false)
	r.pub.PublishSystemError = errors.New("broker unavailable")
	errCh := r.start()

	r.heartbeat <- time.Time{}
	r.sig <- syscall.SIGTERM
	require.NoError(t, <-errCh)
	assert.Empty(t, r.pub.SystemEvents)
}

func TestRunLoopControllerError(t *testing.T) {
	r := newLoopRig(false)
	errCh := r.start()

	r.done <- errors.New("startup: open valve: stuck")
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "controller: startup: open valve: stuck")
	assert.Empty(t, systemEvents(r.pub, "SHUTDOWN"))
}

func TestRunLoopControllerFinished(t *testing.T) {
	r := newLoopRig(false)
	errCh := r.start()

	r.done <- nil
	assert.NoError(t, <-errCh)
}

func TestRunLoopWithoutPublisher(t *testing.T) {
	r := newLoopRig(false)
	r.l.publisher = nil
	r.l.mqttStatus = nil
	errCh := r.start()

	r.refresh <- time.Time{}
	r.sig <- syscall.SIGTERM
	require.NoError(t, <-errCh)
	assert.Empty(t, r.pub.SystemEvents)
}

func TestPublishSystemStartupIsRetained(t *testing.T) {
	pub := mqtt.NewFakePublisher()
	tr := status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), status.Config{})
	now := func() time.Time { return time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC) }

	publishSystem(pub, pub, tr, now, "STARTUP", "")

	require.Len(t, pub.SystemEvents, 1)
	e := pub.SystemEvents[0]
	assert.Equal(t, "STARTUP", e.Event)
	assert.True(t, e.Retained)
	assert.Equal(t, now(), e.Timestamp)
	assert.NotEmpty(t, e.RawPayload)
}
