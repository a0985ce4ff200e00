package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/valve-controller/internal/actuator"
	"github.com/sweeney/valve-controller/internal/clock"
	"github.com/sweeney/valve-controller/internal/config"
	"github.com/sweeney/valve-controller/internal/control"
	"github.com/sweeney/valve-controller/internal/metrics"
	"github.com/sweeney/valve-controller/internal/mqtt"
	"github.com/sweeney/valve-controller/internal/status"
	"github.com/sweeney/valve-controller/internal/web"
)

const (
	// shutdownGrace bounds how long a signal waits for the running cycle.
	shutdownGrace = 10 * time.Second
	// statusRefresh is how often the tracker's MQTT state is refreshed.
	statusRefresh = 5 * time.Second
)

var (
	flagBroker string
	flagHTTP   string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the startup sequence, then control until SIGINT/SIGTERM",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("broker") {
			cfg.MQTT.Broker = flagBroker
		}
		if cmd.Flags().Changed("http") {
			cfg.HTTP.Addr = flagHTTP
		}
		if err := config.Validate(cfg); err != nil {
			return err
		}
		return run(cfg)
	},
}

func init() {
	runCmd.Flags().StringVar(&flagBroker, "broker", "", "MQTT broker address, overrides mqtt.broker (empty to disable)")
	runCmd.Flags().StringVar(&flagHTTP, "http", "", "HTTP status address, overrides http.addr (empty to disable)")
}

func run(cfg *config.Config) error {
	clk := clock.Real{}
	logger := log.Default()

	hw, err := openHardware(cfg, clk, actuator.LogProgress(logger))
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Printf("release gpio: %v", err)
		}
	}()

	tracker := status.NewTracker(time.Now(), status.Config{
		ColdBelow:     cfg.Control.ColdBelow,
		OverheatAbove: cfg.Control.OverheatAbove,
		FullTravelSec: int64(cfg.Valve.FullTravel.Seconds()),
		HeartbeatMs:   cfg.MQTT.Heartbeat.Milliseconds(),
		Broker:        cfg.MQTT.Broker,
		HTTPAddr:      cfg.HTTP.Addr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	recorder := metrics.New()
	observers := []control.Observer{tracker, recorder}

	// The mirror is optional: a missing broker never stops the heating.
	var (
		publisher  mqtt.Publisher
		mqttStatus mqtt.ConnectionStatus
	)
	if cfg.MQTT.Broker != "" {
		rp, err := mqtt.NewRealPublisher(cfg.MQTTOptions())
		if err != nil {
			log.Printf("mqtt disabled: %v", err)
		} else {
			bp := mqtt.NewBreakerPublisher(rp, cfg.Breaker())
			defer bp.Close()
			publisher, mqttStatus = bp, bp

			mirror := mqtt.NewMirror(bp)
			mirror.Cycles = cfg.MQTT.PublishCycles
			observers = append(observers, mirror)

			tracker.SetMQTTConnected(bp.IsConnected())
			publishSystem(publisher, mqttStatus, tracker, time.Now, "STARTUP", "")
		}
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, recorder.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTP.Addr)
	}

	ctrl := control.New(cfg.Controller(), hw.control(), clk, logger, observers...)

	log.Printf("started: cold<%.1f overheat>%.1f travel=%v broker=%q heartbeat=%v",
		cfg.Control.ColdBelow, cfg.Control.OverheatAbove, cfg.Valve.FullTravel, cfg.MQTT.Broker, cfg.MQTT.Heartbeat)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	var heartbeat <-chan time.Time
	if publisher != nil && cfg.MQTT.Heartbeat > 0 {
		t := time.NewTicker(cfg.MQTT.Heartbeat)
		defer t.Stop()
		heartbeat = t.C
	}
	refresh := time.NewTicker(statusRefresh)
	defer refresh.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return runLoop(loop{
		cancel:     cancel,
		done:       done,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		now:        time.Now,
		heartbeat:  heartbeat,
		refresh:    refresh.C,
		sig:        sigCh,
		grace:      shutdownGrace,
		stopValve:  hw.valve.Stop,
	})
}

// loop carries what the supervision loop needs. publisher and mqttStatus
// are nil when the mirror is disabled. stopValve de-energizes the valve
// motor when a cycle outlives the shutdown grace period.
type loop struct {
	cancel     context.CancelFunc
	done       <-chan error
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	now        func() time.Time
	heartbeat  <-chan time.Time
	refresh    <-chan time.Time
	sig        <-chan os.Signal
	grace      time.Duration
	stopValve  func() error
}

// runLoop supervises the control goroutine: it publishes heartbeats and, on
// a signal, the shutdown event before stopping the controller.
func runLoop(l loop) error {
	for {
		select {
		case err := <-l.done:
			if err != nil {
				return fmt.Errorf("controller: %w", err)
			}
			return nil

		case s := <-l.sig:
			log.Printf("received %v, shutting down", s)
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			publishSystem(l.publisher, l.mqttStatus, l.tracker, l.now, "SHUTDOWN", signalName)

			l.cancel()
			select {
			case <-l.done:
			case <-time.After(l.grace):
				// The abandoned cycle may be mid-travel; cut the motor before
				// the outputs are released.
				log.Printf("cycle still running after %v, stopping the valve", l.grace)
				if l.stopValve != nil {
					if err := l.stopValve(); err != nil {
						log.Printf("stop valve: %v", err)
					}
				}
			}
			return nil

		case <-l.heartbeat:
			if net := readNetworkInfo(); net != nil && l.tracker != nil {
				l.tracker.SetNetwork(net)
			}
			publishSystem(l.publisher, l.mqttStatus, l.tracker, l.now, "HEARTBEAT", "")

		case <-l.refresh:
			if l.tracker != nil && l.mqttStatus != nil {
				l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
			}
		}
	}
}

// publishSystem sends a lifecycle event carrying the full status snapshot.
// STARTUP and SHUTDOWN are retained so the broker shows the last known state.
func publishSystem(pub mqtt.Publisher, conn mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, event, reason string) {
	if pub == nil {
		return
	}
	e := mqtt.SystemEvent{
		Timestamp: now(),
		Event:     event,
		Reason:    reason,
		Retained:  event != "HEARTBEAT",
	}
	if tracker != nil {
		if conn != nil {
			tracker.SetMQTTConnected(conn.IsConnected())
		}
		snap := tracker.Snapshot()
		snap.Now = e.Timestamp
		e.RawPayload = status.FormatStatusEvent(snap, event, reason)
	}
	if err := pub.PublishSystem(e); err != nil {
		log.Printf("failed to publish %s event: %v", event, err)
		return
	}
	log.Printf("published %s event", event)
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
