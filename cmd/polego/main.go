package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cjeanneret/PoleGo/internal/config"
	"github.com/cjeanneret/PoleGo/internal/debug"
	"github.com/cjeanneret/PoleGo/internal/hw/actuator"
	"github.com/cjeanneret/PoleGo/internal/hw/adc"
	"github.com/cjeanneret/PoleGo/internal/hw/gpio"
	"github.com/cjeanneret/PoleGo/internal/logic/control"
	"github.com/cjeanneret/PoleGo/internal/logic/policy"
	"github.com/cjeanneret/PoleGo/internal/logic/units"
	"github.com/cjeanneret/PoleGo/internal/telemetry"
	"github.com/cjeanneret/PoleGo/internal/web"
)

// Run modes selected with -mode.
const (
	modeRun     = "run"
	modeMonitor = "monitor"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("%v", err)
	}
}

func run() error {
	// CLI flags
	webPort := &webPortFlag{defaultPort: 8080}
	flag.Var(webPort, "web", "start web server on port; -web= for default 8080, -web 8980 for custom port")
	cfgPath := flag.String("config", filepath.Join("configs", "default.yaml"), "path to config file")
	mode := flag.String("mode", modeRun, "run: balance the pole; monitor: print the estimated state without actuation")
	leftDwellS := flag.Float64("left_dwell_s", 0, "override left dwell in seconds (0-5)")
	rightDwellS := flag.Float64("right_dwell_s", 0, "override right dwell in seconds (0-5)")
	targetAngleRad := flag.Float64("target_angle_rad", 0, "override reward target angle in radians (0-2π)")
	maxTicks := flag.Int("ticks", 0, "stop after this many ticks (0 = until interrupted)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}

	// Validate CLI overrides (only non-zero values are applied; zero means "use config default")
	if err := validateCLIOverrides(*leftDwellS, *rightDwellS, *targetAngleRad); err != nil {
		return fmt.Errorf("invalid CLI override: %w", err)
	}
	if *mode != modeRun && *mode != modeMonitor {
		return fmt.Errorf("invalid -mode %q (run or monitor)", *mode)
	}
	if *maxTicks < 0 {
		return fmt.Errorf("-ticks must be >= 0, got %d", *maxTicks)
	}
	applyOverrides(cfg, web.Overrides{
		LeftDwellSeconds:  *leftDwellS,
		RightDwellSeconds: *rightDwellS,
		TargetAngleRad:    *targetAngleRad,
	})
	if *maxTicks > 0 {
		cfg.Control.MaxTicks = *maxTicks
	}

	// Initialize debug system
	debug.Init(cfg.Defaults.DebugLevel)
	debug.Section("Initialization")
	debug.Value("Config path", *cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mode", *mode)

	// Initialize GPIO driver
	debug.Value("Mock hardware", cfg.Defaults.MockHardware)
	debug.Step(1, "Initializing GPIO driver")
	gpioDriver, err := gpio.NewDriver(cfg.Defaults.MockHardware)
	if err != nil {
		return fmt.Errorf("init GPIO failed: %w", err)
	}
	defer func() {
		if err := gpioDriver.Close(); err != nil {
			log.Printf("closing GPIO driver failed: %v", err)
		}
	}()

	// Initialize actuator. Release runs before the GPIO driver is closed.
	debug.Step(2, "Initializing actuator")
	act, err := actuator.NewPWM(gpioDriver, actuator.Config{
		Pin:         cfg.Actuator.Pin,
		FrequencyHz: cfg.Actuator.FrequencyHz,
	})
	if err != nil {
		return fmt.Errorf("init actuator failed: %w", err)
	}
	defer func() {
		if err := act.Release(); err != nil {
			log.Printf("releasing actuator failed: %v", err)
		}
	}()
	debug.PrintStruct("Actuator config", cfg.Actuator)

	// Initialize sensor
	debug.Step(3, "Initializing sensor")
	sensor, err := newSensorFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init sensor failed: %w", err)
	}
	defer func() {
		if err := sensor.Close(); err != nil {
			log.Printf("closing sensor failed: %v", err)
		}
	}()
	debug.Value("Sensor type", cfg.Sensor.Type)
	debug.Value("Angle channel", *cfg.Sensor.AngleChannel)
	debug.Value("Position channel", *cfg.Sensor.PositionChannel)

	if port := webPort.port(); port > 0 {
		webAddr := fmt.Sprintf(":%d", port)
		broadcaster := web.NewStatusBroadcaster()
		ticks := web.NewTickFeed()
		debug.SetOutput(io.MultiWriter(os.Stdout, web.BroadcastWriter(broadcaster)))

		runControl := func(ctx context.Context, overrides web.Overrides) error {
			return executeControl(ctx, cfg, sensor, act, *mode, overrides, ticks)
		}
		formDefaults := web.FormConfig{
			LeftDwellSeconds:  cfg.LeftDwell().Seconds(),
			RightDwellSeconds: cfg.RightDwell().Seconds(),
			TargetAngleRad:    cfg.TargetAngle(),
			Policy:            cfg.Control.Policy,
		}
		srv := web.NewServer(webAddr, broadcaster, ticks, runControl, formDefaults)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("web server: %w", err)
		}
		return nil
	}

	// Run once with current config (already has CLI overrides applied)
	err = executeControl(ctx, cfg, sensor, act, *mode, web.Overrides{})
	if errors.Is(err, context.Canceled) {
		debug.Info("Interrupted")
		return nil
	}
	if err != nil {
		return fmt.Errorf("control failed: %w", err)
	}
	return nil
}

// executeControl runs the control loop (or the monitor) with the given config
// and overrides, then exports the recorded ticks. It applies overrides to a
// copy of the config.
func executeControl(
	ctx context.Context,
	baseCfg *config.Config,
	sensor adc.Sensor,
	act actuator.Actuator,
	mode string,
	overrides web.Overrides,
	observers ...control.Observer,
) error {
	cfg := applyOverridesToCopy(baseCfg, overrides)

	debug.Step(4, "Building control loop")
	loopCfg, err := controlConfig(cfg)
	if err != nil {
		return err
	}
	loop, err := control.NewLoop(sensor, act, newPolicyFromConfig(cfg), loopCfg)
	if err != nil {
		return fmt.Errorf("create control loop: %w", err)
	}

	rec := telemetry.NewRecorder(cfg.Telemetry.MaxSamples)
	loop.AddObserver(rec)
	for _, o := range observers {
		loop.AddObserver(o)
	}

	debug.Summary("Control Summary")
	debug.Info("Dwell: left=%v right=%v", loopCfg.Dwell.Left(), loopCfg.Dwell.Right())
	debug.Info("Ratios: angle=%g position=%g", loopCfg.Ratios.Angle(), loopCfg.Ratios.Position())
	debug.Info("Target angle: %.4f rad, policy: %s", loopCfg.TargetAngle, cfg.Control.Policy)

	if mode == modeMonitor {
		err = loop.Monitor(ctx, cfg.MonitorInterval())
	} else {
		err = loop.Run(ctx)
	}

	samples := rec.Samples()
	debug.Section("Run Complete")
	debug.Value("Ticks", len(samples))
	if len(samples) > 0 {
		var total float64
		for _, s := range samples {
			total += s.Reward
		}
		debug.Value("Mean reward", total/float64(len(samples)))
	}

	if terr := exportTelemetry(cfg, rec); terr != nil {
		err = errors.Join(err, terr)
	}
	return err
}

// controlConfig builds the loop configuration from a validated config.
func controlConfig(cfg *config.Config) (control.Config, error) {
	channels, err := cfg.Channels()
	if err != nil {
		return control.Config{}, fmt.Errorf("sensor channels: %w", err)
	}
	ratios, err := cfg.Ratios()
	if err != nil {
		return control.Config{}, fmt.Errorf("calibration: %w", err)
	}
	dwell, err := cfg.DwellTimes()
	if err != nil {
		return control.Config{}, fmt.Errorf("dwell: %w", err)
	}
	return control.Config{
		Channels:               channels,
		Ratios:                 ratios,
		Dwell:                  dwell,
		TargetAngle:            cfg.TargetAngle(),
		MaxConsecutiveFailures: cfg.Control.MaxConsecutiveFailures,
		MaxTicks:               cfg.Control.MaxTicks,
	}, nil
}

// exportTelemetry writes the CSV and plots configured in the telemetry section.
func exportTelemetry(cfg *config.Config, rec *telemetry.Recorder) error {
	var errs []error
	if cfg.Telemetry.CSVPath != "" {
		if err := rec.WriteCSV(cfg.Telemetry.CSVPath); err != nil {
			errs = append(errs, fmt.Errorf("telemetry csv: %w", err))
		} else {
			debug.Info("Telemetry written to %s", cfg.Telemetry.CSVPath)
		}
	}
	if cfg.Telemetry.PlotDir != "" && len(rec.Samples()) > 0 {
		if err := rec.SavePlots(cfg.Telemetry.PlotDir); err != nil {
			errs = append(errs, fmt.Errorf("telemetry plots: %w", err))
		} else {
			debug.Info("Plots written to %s", cfg.Telemetry.PlotDir)
		}
	}
	return errors.Join(errs...)
}

// validateCLIOverrides checks that CLI overrides are within the ranges the web form accepts.
// Zero values are ignored (they mean "use config default").
func validateCLIOverrides(leftDwell, rightDwell, targetAngle float64) error {
	return web.ValidateOverrides(web.Overrides{
		LeftDwellSeconds:  leftDwell,
		RightDwellSeconds: rightDwell,
		TargetAngleRad:    targetAngle,
	})
}

// applyOverrides sets the non-zero overrides on cfg. Pointer fields get new
// pointers, so a shallow copy of cfg never shares the overridden values.
func applyOverrides(cfg *config.Config, overrides web.Overrides) {
	if v := overrides.LeftDwellSeconds; v > 0 {
		cfg.Dwell.LeftSeconds = &v
	}
	if v := overrides.RightDwellSeconds; v > 0 {
		cfg.Dwell.RightSeconds = &v
	}
	if v := overrides.TargetAngleRad; v > 0 {
		cfg.Control.TargetAngleRad = &v
	}
}

// applyOverridesToCopy returns a new config with overrides applied.
// Zero values in overrides mean "use base config".
func applyOverridesToCopy(baseCfg *config.Config, overrides web.Overrides) *config.Config {
	cfg := *baseCfg
	applyOverrides(&cfg, overrides)
	return &cfg
}

// webPortFlag implements flag.Value for -web: 0 = disabled, -web= or -web 8080 → 8080, -web 8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	if w.val == 0 {
		return "0"
	}
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) port() int { return w.val }

// newSensorFromConfig selects a sensor implementation based on configuration.
func newSensorFromConfig(cfg *config.Config) (adc.Sensor, error) {
	switch cfg.Sensor.Type {
	case config.SensorADS1115:
		s, err := adc.NewADS1115(adc.ADS1115Config{
			Bus:          cfg.Sensor.I2CBus,
			Address:      cfg.Sensor.I2CAddress,
			MaxVoltageMv: cfg.Sensor.MaxVoltageMv,
			DataRateHz:   cfg.Sensor.DataRateHz,
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SensorSerial:
		s, err := adc.OpenSerial(adc.SerialConfig{
			Port:        cfg.Sensor.SerialPort,
			BaudRate:    cfg.Sensor.BaudRate,
			ReadTimeout: cfg.ReadTimeout(),
		})
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.SensorMock:
		s, err := newMockSensor(cfg)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported sensor type: %s", cfg.Sensor.Type)
	}
}

// mockSamples is the length of the synthetic trace replayed by the mock sensor.
const mockSamples = 400

// newMockSensor replays a pole swinging around the target angle while the
// cart oscillates around 0.5 m, encoded with the configured calibration.
func newMockSensor(cfg *config.Config) (*adc.Mock, error) {
	ratios, err := cfg.Ratios()
	if err != nil {
		return nil, err
	}
	channels, err := cfg.Channels()
	if err != nil {
		return nil, err
	}

	readings := make([]adc.Reading, mockSamples)
	for i := range readings {
		angle := cfg.TargetAngle() + 0.3*math.Sin(float64(i)*0.2)
		position := 0.5 + 0.1*math.Sin(float64(i)*0.1)
		rawPosition, rawAngle := units.ToRaw(position, angle, ratios)

		var raw [units.NumChannels]int
		raw[channels.PositionChannel()] = rawPosition
		raw[channels.AngleChannel()] = rawAngle
		readings[i] = adc.Reading{Raw0: raw[0], Raw1: raw[1]}
	}
	return adc.NewMock(readings...), nil
}

// newPolicyFromConfig selects the decision policy.
func newPolicyFromConfig(cfg *config.Config) policy.Policy {
	if cfg.Control.Policy == config.PolicyPID {
		return policy.NewPID(policy.PIDConfig{
			Kp: cfg.Control.PID.Kp,
			Ki: cfg.Control.PID.Ki,
			Kd: cfg.Control.PID.Kd,
		}, cfg.TargetAngle())
	}
	return policy.NewAlternating()
}
