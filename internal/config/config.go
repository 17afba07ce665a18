package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cjeanneret/PoleGo/internal/logic/motion"
	"github.com/cjeanneret/PoleGo/internal/logic/units"
)

// MaxConfigFileBytes bounds the size of a config file accepted by Load.
const MaxConfigFileBytes = 64 * 1024

// Sensor types accepted in sensor.type.
const (
	SensorADS1115 = "ads1115"
	SensorSerial  = "serial"
	SensorMock    = "mock"
)

// Decision policies accepted in control.policy.
const (
	PolicyAlternate = "alternate"
	PolicyPID       = "pid"
)

// SensorConfig describes the analog front end (angle and position encoders).
type SensorConfig struct {
	Type            string `yaml:"type"`             // ads1115, serial or mock
	I2CBus          string `yaml:"i2c_bus"`          // periph bus name, "" = first available
	I2CAddress      uint16 `yaml:"i2c_address"`      // default 0x48
	MaxVoltageMv    int    `yaml:"max_voltage_mv"`   // PGA full scale, default 4096
	DataRateHz      int    `yaml:"data_rate_hz"`     // default 860
	SerialPort      string `yaml:"serial_port"`      // e.g. /dev/ttyACM0
	BaudRate        int    `yaml:"baud_rate"`        // default 115200
	ReadTimeoutMs   int    `yaml:"read_timeout_ms"`  // serial read timeout, default 500
	AngleChannel    *int   `yaml:"angle_channel"`    // required
	PositionChannel *int   `yaml:"position_channel"` // required
}

// ActuatorConfig describes the PWM output driving the cart motor.
type ActuatorConfig struct {
	Pin         int `yaml:"pin"`          // BCM 12 or 13 (board 32 / 33)
	FrequencyHz int `yaml:"frequency_hz"` // default 1000
}

// CalibrationConfig holds the raw-count to physical-unit divisors.
type CalibrationConfig struct {
	AngleRatio    float64 `yaml:"angle_ratio"`    // counts per radian
	PositionRatio float64 `yaml:"position_ratio"` // counts per meter
}

// DwellConfig holds the settling time after each move. Both are required:
// 0 is a valid dwell, so an absent key is not the same as zero.
type DwellConfig struct {
	LeftSeconds  *float64 `yaml:"left_seconds"`
	RightSeconds *float64 `yaml:"right_seconds"`
}

// PIDGains configures the pid policy.
type PIDGains struct {
	Kp float64 `yaml:"kp"`
	Ki float64 `yaml:"ki"`
	Kd float64 `yaml:"kd"`
}

// ControlConfig tunes the control loop.
type ControlConfig struct {
	TargetAngleRad         *float64 `yaml:"target_angle_rad"`         // default π (upright)
	MaxConsecutiveFailures int      `yaml:"max_consecutive_failures"` // default 3
	MaxTicks               int      `yaml:"max_ticks"`                // 0 = until stopped
	MonitorIntervalMs      int      `yaml:"monitor_interval_ms"`      // default 100
	Policy                 string   `yaml:"policy"`                   // alternate (default) or pid
	PID                    PIDGains `yaml:"pid"`
}

// TelemetryConfig is optional: where to export the ticks of a run.
type TelemetryConfig struct {
	CSVPath    string `yaml:"csv_path"`
	PlotDir    string `yaml:"plot_dir"`
	MaxSamples int    `yaml:"max_samples"` // 0 = unbounded
}

// DefaultsConfig contains generic parameters.
type DefaultsConfig struct {
	DebugLevel   int  `yaml:"debug_level"`   // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockHardware bool `yaml:"mock_hardware"` // mock GPIO and sensor (true=dev/test, false=real Raspberry Pi)
}

// Config aggregates all application configuration.
type Config struct {
	Sensor      SensorConfig      `yaml:"sensor"`
	Actuator    ActuatorConfig    `yaml:"actuator"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Dwell       DwellConfig       `yaml:"dwell"`
	Control     ControlConfig     `yaml:"control"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Defaults    DefaultsConfig    `yaml:"defaults"`
}

// ValidateConfigPath accepts only a .yaml file whose parent directory is
// named "configs", without any ".." element.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, elem := range strings.Split(filepath.ToSlash(path), "/") {
		if elem == ".." {
			return fmt.Errorf("config path %q must not contain '..'", path)
		}
	}
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".yaml" {
		return fmt.Errorf("config path %q must have a .yaml extension", path)
	}
	abs, err := filepath.Abs(clean)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if filepath.Base(filepath.Dir(abs)) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxConfigFileBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if len(data) > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", MaxConfigFileBytes)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Sensor.Type == "" {
		c.Sensor.Type = SensorADS1115
	}
	if c.Defaults.MockHardware {
		c.Sensor.Type = SensorMock
	}
	if c.Sensor.I2CAddress == 0 {
		c.Sensor.I2CAddress = 0x48
	}
	if c.Sensor.MaxVoltageMv <= 0 {
		c.Sensor.MaxVoltageMv = 4096
	}
	if c.Sensor.DataRateHz <= 0 {
		c.Sensor.DataRateHz = 860
	}
	if c.Sensor.BaudRate <= 0 {
		c.Sensor.BaudRate = 115200
	}
	if c.Sensor.ReadTimeoutMs <= 0 {
		c.Sensor.ReadTimeoutMs = 500
	}
	if c.Actuator.FrequencyHz <= 0 {
		c.Actuator.FrequencyHz = 1000
	}
	if c.Control.TargetAngleRad == nil {
		target := math.Pi
		c.Control.TargetAngleRad = &target
	}
	if c.Control.MaxConsecutiveFailures <= 0 {
		c.Control.MaxConsecutiveFailures = 3
	}
	if c.Control.MonitorIntervalMs <= 0 {
		c.Control.MonitorIntervalMs = 100
	}
	if c.Control.Policy == "" {
		c.Control.Policy = PolicyAlternate
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks every section. Load calls it after applying defaults.
func (c *Config) Validate() error {
	switch c.Sensor.Type {
	case SensorADS1115, SensorMock:
	case SensorSerial:
		if c.Sensor.SerialPort == "" {
			return fmt.Errorf("sensor.serial_port is required for sensor type %q", SensorSerial)
		}
	default:
		return fmt.Errorf("unsupported sensor type: %s", c.Sensor.Type)
	}
	if c.Sensor.AngleChannel == nil || c.Sensor.PositionChannel == nil {
		return fmt.Errorf("sensor.angle_channel and sensor.position_channel are required")
	}
	if _, err := c.Channels(); err != nil {
		return fmt.Errorf("sensor channels: %w", err)
	}

	if _, err := c.Ratios(); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}

	if c.Dwell.LeftSeconds == nil || c.Dwell.RightSeconds == nil {
		return fmt.Errorf("dwell.left_seconds and dwell.right_seconds are required")
	}
	if !finite(*c.Dwell.LeftSeconds) || !finite(*c.Dwell.RightSeconds) {
		return fmt.Errorf("dwell times must be finite")
	}
	if _, err := c.DwellTimes(); err != nil {
		return fmt.Errorf("dwell: %w", err)
	}

	if c.Control.TargetAngleRad != nil && !finite(*c.Control.TargetAngleRad) {
		return fmt.Errorf("control.target_angle_rad must be finite")
	}
	switch c.Control.Policy {
	case PolicyAlternate, PolicyPID:
	default:
		return fmt.Errorf("unsupported control policy: %s", c.Control.Policy)
	}
	if c.Control.MaxTicks < 0 {
		return fmt.Errorf("control.max_ticks must be >= 0, got %d", c.Control.MaxTicks)
	}

	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

// Channels returns the validated channel mapping.
func (c *Config) Channels() (units.ChannelMap, error) {
	if c.Sensor.AngleChannel == nil || c.Sensor.PositionChannel == nil {
		return units.ChannelMap{}, units.ErrInvalidChannel
	}
	return units.NewChannelMap(*c.Sensor.AngleChannel, *c.Sensor.PositionChannel)
}

// Ratios returns the validated calibration ratios.
func (c *Config) Ratios() (units.CalibrationRatios, error) {
	return units.NewCalibrationRatios(c.Calibration.AngleRatio, c.Calibration.PositionRatio)
}

// LeftDwell returns the settling time after a left move.
func (c *Config) LeftDwell() time.Duration {
	if c.Dwell.LeftSeconds == nil {
		return 0
	}
	return seconds(*c.Dwell.LeftSeconds)
}

// RightDwell returns the settling time after a right move.
func (c *Config) RightDwell() time.Duration {
	if c.Dwell.RightSeconds == nil {
		return 0
	}
	return seconds(*c.Dwell.RightSeconds)
}

// DwellTimes returns both dwell times as a validated pair.
func (c *Config) DwellTimes() (motion.DwellTimes, error) {
	return motion.NewDwellTimes(c.LeftDwell(), c.RightDwell())
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}

// TargetAngle returns the reward target in radians.
func (c *Config) TargetAngle() float64 {
	if c.Control.TargetAngleRad == nil {
		return math.Pi
	}
	return *c.Control.TargetAngleRad
}

// MonitorInterval returns the sampling period of monitor mode.
func (c *Config) MonitorInterval() time.Duration {
	return time.Duration(c.Control.MonitorIntervalMs) * time.Millisecond
}

// ReadTimeout returns the serial read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Sensor.ReadTimeoutMs) * time.Millisecond
}
