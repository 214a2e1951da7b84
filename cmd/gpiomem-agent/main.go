// Command gpiomem-agent exposes configured GPIO pins over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpillora/backoff"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/gpiomem/internal/config"
	"github.com/sweeney/gpiomem/internal/gpio"
	"github.com/sweeney/gpiomem/internal/logger"
	"github.com/sweeney/gpiomem/internal/metrics"
	"github.com/sweeney/gpiomem/internal/mqtt"
	"github.com/sweeney/gpiomem/internal/pins"
	"github.com/sweeney/gpiomem/internal/status"
	"github.com/sweeney/gpiomem/internal/web"
)

func main() {
	cfg, printState, err := loadConfig(afero.NewOsFs(), os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
	}

	log, err := logger.New(logger.Options{Level: cfg.LogLevel, JSON: cfg.LogJSON})
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(2)
	}
	defer log.Sync()

	if err := run(cfg, printState, log); err != nil {
		log.Fatal("fatal", zap.Error(err))
	}
}

// loadConfig reads the config file named by -config and applies any flags
// that were set explicitly on top of it.
func loadConfig(fs afero.Fs, args []string) (config.Config, bool, error) {
	def := config.Default()
	flags := flag.NewFlagSet("gpiomem-agent", flag.ContinueOnError)
	path := flags.String("config", config.DefaultPath, "Path to the YAML config file")
	backend := flags.String("backend", def.Backend, "GPIO backend (gpiomem, cdev, sim)")
	device := flags.String("device", def.Device, "Register device or chip name (empty for the backend default)")
	poll := flags.Duration("poll", def.Poll, "GPIO sampling interval")
	heartbeat := flags.Duration("heartbeat", def.Heartbeat, "Heartbeat interval (0 to disable)")
	broker := flags.String("broker", def.Broker, `MQTT broker address ("off" disables)`)
	httpAddr := flags.String("http", def.HTTPAddr, `HTTP status address ("off" disables)`)
	logLevel := flags.String("log-level", def.LogLevel, "Log level (debug, info, warn, error)")
	logJSON := flags.Bool("log-json", def.LogJSON, "Log as JSON")
	printState := flags.Bool("print-state", false, "Print current pin levels and exit")

	if err := flags.Parse(args); err != nil {
		return config.Config{}, false, err
	}

	cfg, err := config.Load(fs, *path)
	if err != nil {
		return config.Config{}, false, err
	}

	flags.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "backend":
			cfg.Backend = *backend
		case "device":
			cfg.Device = *device
		case "poll":
			cfg.Poll = *poll
		case "heartbeat":
			cfg.Heartbeat = *heartbeat
		case "broker":
			cfg.Broker = offToEmpty(*broker)
		case "http":
			cfg.HTTPAddr = offToEmpty(*httpAddr)
		case "log-level":
			cfg.LogLevel = *logLevel
		case "log-json":
			cfg.LogJSON = *logJSON
		}
	})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, false, err
	}
	return cfg, *printState, nil
}

func offToEmpty(s string) string {
	if s == "off" {
		return ""
	}
	return s
}

func run(cfg config.Config, printState bool, log *zap.Logger) error {
	specs, err := cfg.PinSpecs()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ctrl, err := openController(ctx, func() (gpio.Controller, error) {
		return gpio.Open(cfg.Backend, cfg.Device)
	}, cfg.OpenAttempts, &backoff.Backoff{Min: 200 * time.Millisecond, Max: 5 * time.Second, Factor: 2, Jitter: true}, log)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	ctrl = gpio.Synchronized(ctrl)
	defer ctrl.Close()

	// Print state mode
	if printState {
		return printLevels(os.Stdout, pins.NewBank(ctrl, specs, nil, nil, log))
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(time.Now(), status.Config{
		Backend:     cfg.Backend,
		Device:      cfg.Device,
		PollMs:      cfg.Poll.Milliseconds(),
		HeartbeatMs: cfg.Heartbeat.Milliseconds(),
		Broker:      cfg.Broker,
		TopicPrefix: cfg.TopicPrefix,
		HTTPPort:    cfg.HTTPAddr,
	}, pins.TrackerPins(specs))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	m := metrics.New()
	bank := pins.NewBank(ctrl, specs, tracker, m, log.Named("pins"))
	if err := bank.Setup(); err != nil {
		return fmt.Errorf("setup pins: %w", err)
	}
	bank.Sample()

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if cfg.Broker != "" {
		p, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:      cfg.Broker,
			ClientID:    cfg.ClientID,
			TopicPrefix: cfg.TopicPrefix,
			Logger:      log,
			Stats:       m,
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer p.Close()
		publisher, mqttStatus = p, p
		bank.SetPublisher(p)

		if err := p.SubscribeCommands(func(cmd mqtt.Command) {
			bank.Drive(cmd.Name, cmd.Level, pins.SourceMQTT)
		}); err != nil {
			log.Warn("subscribe failed", zap.Error(err))
		}
	}

	l := &loop{
		bank:       bank,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		metrics:    m,
		heartbeat:  cfg.Heartbeat,
		now:        time.Now,
		log:        log,
	}
	l.startup()

	g, gctx := errgroup.WithContext(ctx)

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker, bank, m.Handler())
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			return srv.Shutdown(sctx)
		})
		log.Info("http status server listening", zap.String("addr", cfg.HTTPAddr))
	}

	log.Info("started",
		zap.String("backend", cfg.Backend),
		zap.Int("pins", len(specs)),
		zap.Duration("poll", cfg.Poll),
		zap.String("broker", cfg.Broker),
		zap.Duration("heartbeat", cfg.Heartbeat))

	ticker := time.NewTicker(cfg.Poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	g.Go(func() error {
		defer cancel()
		return l.run(gctx, ticker.C, sigCh)
	})
	return g.Wait()
}

// openController calls open until it succeeds or attempts are exhausted,
// sleeping between tries as directed by b.
func openController(ctx context.Context, open func() (gpio.Controller, error), attempts int, b *backoff.Backoff, log *zap.Logger) (gpio.Controller, error) {
	for attempt := 1; ; attempt++ {
		ctrl, err := open()
		if err == nil {
			return ctrl, nil
		}
		if attempt >= attempts {
			return nil, fmt.Errorf("after %d attempts: %w", attempt, err)
		}
		d := b.Duration()
		log.Warn("open failed, retrying", zap.Int("attempt", attempt), zap.Duration("backoff", d), zap.Error(err))
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func printLevels(w io.Writer, bank *pins.Bank) error {
	for _, s := range bank.Specs() {
		level, err := bank.Read(s.Name)
		if err != nil {
			return fmt.Errorf("read %s: %w", s.Name, err)
		}
		fmt.Fprintf(w, "%s (BCM %d, %s): %s\n", s.Name, s.Pin, s.Direction, level)
	}
	return nil
}

// loop samples pins on every tick and publishes heartbeats until a signal
// arrives or ctx is cancelled.
type loop struct {
	bank       *pins.Bank
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	heartbeat  time.Duration
	now        func() time.Time
	log        *zap.Logger
}

func (l *loop) refreshConnection() {
	if l.mqttStatus == nil {
		return
	}
	connected := l.mqttStatus.IsConnected()
	l.tracker.SetMQTTConnected(connected)
	if l.metrics != nil {
		l.metrics.SetMQTTConnected(connected)
	}
}

func (l *loop) publishSystem(event, reason string, retained bool) {
	if l.publisher == nil {
		return
	}
	l.refreshConnection()
	snap := l.tracker.Snapshot()
	err := l.publisher.PublishSystem(mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      event,
		Reason:     reason,
		Retained:   retained,
		RawPayload: status.FormatStatusEvent(snap, event, reason),
	})
	if err != nil {
		l.log.Warn("system publish failed", zap.String("event", event), zap.Error(err))
		return
	}
	l.log.Info("published system event", zap.String("event", event))
}

// startup announces the agent with a full status snapshot and the initial
// pin levels.
func (l *loop) startup() {
	l.publishSystem("STARTUP", "", true)
	l.bank.Report(pins.SourceStartup)
}

func (l *loop) run(ctx context.Context, tick <-chan time.Time, sig <-chan os.Signal) error {
	lastHeartbeat := l.now()

	for {
		select {
		case s := <-sig:
			l.log.Info("shutting down", zap.Stringer("signal", s))
			l.publishSystem("SHUTDOWN", signalName(s), true)
			return nil

		case <-ctx.Done():
			l.publishSystem("SHUTDOWN", "STOPPED", true)
			return nil

		case <-tick:
			t := l.now()
			l.bank.Sample()
			l.refreshConnection()

			if l.heartbeat <= 0 || t.Sub(lastHeartbeat) < l.heartbeat {
				continue
			}
			lastHeartbeat = t
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				l.tracker.SetNetwork(net)
			}
			snap := l.tracker.Snapshot()
			l.log.Debug("heartbeat",
				zap.Duration("uptime", snap.Uptime()),
				zap.Int("commands", snap.Counts.Commands),
				zap.Int("read_errors", snap.Counts.ReadErrors))
			l.publishSystem("HEARTBEAT", "", false)
			l.bank.Report(pins.SourceHeartbeat)
		}
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
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
