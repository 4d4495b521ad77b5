// Command delivery-sensor samples the delivery mechanism's limit switches,
// distance and temperature sensors and streams the derived state to the
// flight controller over MAVLink.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/delivery-sensor/internal/config"
	"github.com/sweeney/delivery-sensor/internal/controller"
	"github.com/sweeney/delivery-sensor/internal/filter"
	"github.com/sweeney/delivery-sensor/internal/gpio"
	"github.com/sweeney/delivery-sensor/internal/link"
	"github.com/sweeney/delivery-sensor/internal/logging"
	"github.com/sweeney/delivery-sensor/internal/logic"
	"github.com/sweeney/delivery-sensor/internal/mavlink"
	"github.com/sweeney/delivery-sensor/internal/mqtt"
	"github.com/sweeney/delivery-sensor/internal/sensor"
	"github.com/sweeney/delivery-sensor/internal/status"
	"github.com/sweeney/delivery-sensor/internal/web"
)

var version = "dev"

const shutdownTimeout = 5 * time.Second

// flags holds the command line values. Only flags that were set override the
// configuration file.
type flags struct {
	ConfigFile string
	LogLevel   string
	PrintState bool
	HTTPAddr   string
	Broker     string
	LinkDevice string
}

// runFunc is the daemon body, swapped out in tests.
type runFunc func(cfg *config.Config, printState bool) error

func main() {
	if err := newApp(run).Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newApp(body runFunc) *cli.App {
	var f flags

	app := &cli.App{
		Name:    "delivery-sensor",
		Usage:   "stream delivery mechanism sensor state to the flight controller",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Destination: &f.ConfigFile, Value: config.DefaultFile, Usage: "load configuration from `FILE`"},
			&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Destination: &f.LogLevel, Usage: "`LEVEL` overrides log.level (debug|info|warn|error)"},
			&cli.BoolFlag{Name: "print-state", Destination: &f.PrintState, Usage: "print the latch limit switches and exit"},
			&cli.StringFlag{Name: "http", Destination: &f.HTTPAddr, Usage: "HTTP status `ADDR` (empty to disable)"},
			&cli.StringFlag{Name: "broker", Destination: &f.Broker, Usage: "MQTT broker `URL` (empty to disable)"},
			&cli.StringFlag{Name: "link-device", Destination: &f.LinkDevice, Usage: "flight controller serial `DEVICE`"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load(f.ConfigFile)
			if err != nil {
				return err
			}
			applyFlags(c, cfg, f)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}
			if _, err := portOptions(cfg); err != nil {
				return fmt.Errorf("invalid config: link: %w", err)
			}
			return body(cfg, f.PrintState)
		},
	}
	sort.Sort(cli.FlagsByName(app.Flags))
	return app
}

func applyFlags(c *cli.Context, cfg *config.Config, f flags) {
	if c.IsSet("log-level") {
		cfg.Log.Level = f.LogLevel
	}
	if c.IsSet("http") {
		cfg.HTTP.Addr = f.HTTPAddr
	}
	if c.IsSet("broker") {
		cfg.MQTT.Broker = f.Broker
	}
	if c.IsSet("link-device") {
		cfg.Link.Device = f.LinkDevice
	}
}

func run(cfg *config.Config, printState bool) error {
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// The pin layer is the only mandatory hardware; without it nothing can
	// be sensed.
	reader, err := gpio.NewRealReader(cfg.GPIO.Chip, cfg.Pins(), cfg.GPIO.Invert)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	if printState {
		return printLatches(os.Stdout, reader, cfg.GPIO.Latches)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	return serve(context.Background(), cfg, reader, sigCh, log)
}

// portOptions returns the normalized serial framing of the link.
func portOptions(cfg *config.Config) (mavlink.PortOptions, error) {
	return mavlink.PortOptions{
		BaudRate: cfg.Link.Baud,
		DataBits: cfg.Link.DataBits,
		StopBits: cfg.Link.StopBits,
		Parity:   cfg.Link.Parity,
	}.Normalize()
}

// runner is a background unit started in the errgroup.
type runner interface {
	Run(ctx context.Context) error
}

func serve(ctx context.Context, cfg *config.Config, reader gpio.Reader, sig <-chan os.Signal, log *zap.Logger) error {
	var runners []runner

	var in controller.Inputs
	for i, lp := range cfg.GPIO.Latches {
		open := newLimitSampler(fmt.Sprintf("latch%d_open", i+1), reader, lp.OpenPin, cfg, log)
		closed := newLimitSampler(fmt.Sprintf("latch%d_close", i+1), reader, lp.ClosePin, cfg, log)
		in.Latches = append(in.Latches, controller.LatchInputs{Open: open, Close: closed})
		runners = append(runners, open, closed)
	}

	if tof, err := sensor.OpenVL53L0X(cfg.Distance.I2CBus, cfg.Distance.I2CAddr); err != nil {
		log.Warn("distance sensor unavailable", zap.Error(err))
	} else {
		defer tof.Close()
		median := filter.NewMedian(cfg.Filter.DistanceWindow)
		distance := sensor.NewSampler[float64]("distance", tof, cfg.Sampling.DistanceInterval.Std(),
			sensor.WithOnSample(median.Push),
			sensor.WithLogger[float64](log.Named("sampler")),
		)
		in.Distance = distance
		in.DistanceFilter = median
		runners = append(runners, distance)
	}

	if therm, err := sensor.NewW1Thermometer(sensor.DefaultW1Root, cfg.Temperature.Device); err != nil {
		log.Warn("temperature sensor unavailable", zap.Error(err))
	} else {
		temperature := sensor.NewSampler[float64]("temperature", therm, cfg.Sampling.TemperatureInterval.Std(),
			sensor.WithLogger[float64](log.Named("sampler")),
		)
		in.Temperature = temperature
		runners = append(runners, temperature)
	}

	opts, err := portOptions(cfg)
	if err != nil {
		return err
	}
	transport := mavlink.NewTransport(opts, log.Named("mavlink"))
	transport.SystemID = cfg.Link.SystemID
	transport.ComponentID = cfg.Link.ComponentID

	manager := link.NewManager(transport, link.Config{
		Endpoint:         cfg.Link.Device,
		QueueSize:        cfg.Link.QueueSize,
		HandshakeTimeout: cfg.Link.HandshakeTimeout.Std(),
		ReconnectDelay:   cfg.Link.ReconnectDelay.Std(),
	}, log.Named("link"), link.WithStateHook(func(s link.State) {
		log.Debug("link state", zap.Stringer("state", s))
	}))
	runners = append(runners, manager)

	return runDaemon(ctx, cfg, in, manager, runners, sig, log)
}

// runDaemon wires the publisher, tracker and status page around the control
// loop and runs every unit until the loop returns.
func runDaemon(ctx context.Context, cfg *config.Config, in controller.Inputs, sink controller.Sink, runners []runner, sig <-chan os.Signal, log *zap.Logger) error {
	var publisher mqtt.Publisher = mqtt.DisabledPublisher{}
	if cfg.MQTT.Broker != "" {
		publisher = mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.ClientID, log.Named("mqtt"))
	}
	defer publisher.Close()

	// Tracker exists before STARTUP so the event carries a full snapshot.
	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	publishStartup(publisher, tracker, log)

	loop, err := controller.NewLoop(in, sink, controller.Config{
		LimitWindow: cfg.Filter.LimitWindow,
		Range:       logic.Range{Min: cfg.Distance.MinMM, Max: cfg.Distance.MaxMM},
		Heartbeat:   cfg.MQTT.Heartbeat.Std(),
	}, log.Named("loop"), controller.WithPublisher(publisher), controller.WithTracker(tracker))
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	for _, r := range runners {
		r := r
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker)
		g.Go(func() error {
			log.Info("http status server listening", zap.String("addr", cfg.HTTP.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server error", zap.Error(err))
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			return srv.Shutdown(sctx)
		})
	}

	log.Info("started",
		zap.String("version", version),
		zap.Duration("loop", cfg.Loop.Interval.Std()),
		zap.String("link_device", cfg.Link.Device),
		zap.Int("link_baud", cfg.Link.Baud),
		zap.String("broker", cfg.MQTT.Broker),
	)

	g.Go(func() error {
		defer cancel()
		ticker := time.NewTicker(cfg.Loop.Interval.Std())
		defer ticker.Stop()
		return loop.Run(gctx, ticker.C, sig)
	})

	return g.Wait()
}

func newLimitSampler(name string, reader gpio.Reader, pin int, cfg *config.Config, log *zap.Logger) *sensor.Sampler[bool] {
	return sensor.NewSampler[bool](name, gpio.Switch{Reader: reader, Pin: pin}, cfg.Sampling.LimitInterval.Std(),
		sensor.WithLogger[bool](log.Named("sampler")),
	)
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		LoopMs:            cfg.Loop.Interval.Std().Milliseconds(),
		LimitPollMs:       cfg.Sampling.LimitInterval.Std().Milliseconds(),
		DistancePollMs:    cfg.Sampling.DistanceInterval.Std().Milliseconds(),
		TemperaturePollMs: cfg.Sampling.TemperatureInterval.Std().Milliseconds(),
		LimitWindow:       cfg.Filter.LimitWindow,
		DistanceWindow:    cfg.Filter.DistanceWindow,
		RangeMinMM:        cfg.Distance.MinMM,
		RangeMaxMM:        cfg.Distance.MaxMM,
		LinkDevice:        cfg.Link.Device,
		HeartbeatMs:       cfg.MQTT.Heartbeat.Std().Milliseconds(),
		Broker:            cfg.MQTT.Broker,
		HTTPAddr:          cfg.HTTP.Addr,
	}
}

func publishStartup(publisher mqtt.Publisher, tracker *status.Tracker, log *zap.Logger) {
	snap := tracker.Snapshot()
	event := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(event); err != nil {
		log.Error("failed to publish startup event", zap.Error(err))
		return
	}
	log.Info("published startup event")
}

// printLatches reads every limit switch once and prints the raw latch state.
func printLatches(w io.Writer, reader gpio.Reader, latches []config.LatchPins) error {
	for i, lp := range latches {
		open, err := reader.Read(lp.OpenPin)
		if err != nil {
			return fmt.Errorf("read gpio %d: %w", lp.OpenPin, err)
		}
		closed, err := reader.Read(lp.ClosePin)
		if err != nil {
			return fmt.Errorf("read gpio %d: %w", lp.ClosePin, err)
		}
		fmt.Fprintf(w, "latch%d: %s (open=%t close=%t)\n", i+1, logic.DeriveLatchState(open, closed), open, closed)
	}
	return nil
}
