package adc

import (
	"fmt"

	"github.com/cjeanneret/PoleGo/internal/debug"
	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ads1x15"
	"periph.io/x/host/v3"
)

// ADS1115Config describes how the ADC is wired and sampled.
type ADS1115Config struct {
	Bus          string // periph I2C bus name, "" = first available
	Address      uint16 // I2C address, 0 = 0x48
	MaxVoltageMv int    // full scale range, 0 = 4096 mV
	DataRateHz   int    // samples per second, 0 = 860
}

// ADS1115 samples channels A0 and A1 of a TI ADS1115 through periph.io.
type ADS1115 struct {
	bus  i2c.BusCloser
	dev  *ads1x15.Dev
	pins [2]ads1x15.PinADC
}

// NewADS1115 opens the I2C bus and configures both single-ended channels.
func NewADS1115(cfg ADS1115Config) (*ADS1115, error) {
	if cfg.Address == 0 {
		cfg.Address = 0x48
	}
	if cfg.MaxVoltageMv <= 0 {
		cfg.MaxVoltageMv = 4096
	}
	if cfg.DataRateHz <= 0 {
		cfg.DataRateHz = 860
	}

	debug.Info("Initializing ADS1115 on bus %q at 0x%02x", cfg.Bus, cfg.Address)

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}

	bus, err := i2creg.Open(cfg.Bus)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", cfg.Bus, err)
	}

	opts := ads1x15.DefaultOpts
	opts.I2cAddress = cfg.Address
	dev, err := ads1x15.NewADS1115(bus, &opts)
	if err != nil {
		_ = bus.Close()
		return nil, fmt.Errorf("ADS1115 at 0x%02x: %w", cfg.Address, err)
	}

	a := &ADS1115{bus: bus, dev: dev}
	maxVoltage := physic.ElectricPotential(cfg.MaxVoltageMv) * physic.MilliVolt
	rate := physic.Frequency(cfg.DataRateHz) * physic.Hertz
	for i, ch := range []ads1x15.Channel{ads1x15.Channel0, ads1x15.Channel1} {
		pin, err := dev.PinForChannel(ch, maxVoltage, rate, ads1x15.BestQuality)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("ADS1115 channel A%d: %w", i, err)
		}
		a.pins[i] = pin
	}

	debug.Verbose("ADS1115 ready: range %s, %s", maxVoltage, rate)
	return a, nil
}

func (a *ADS1115) read() ([2]analog.Sample, error) {
	var samples [2]analog.Sample
	for i, pin := range a.pins {
		s, err := pin.Read()
		if err != nil {
			return samples, fmt.Errorf("%w: read A%d: %v", ErrSensorIO, i, err)
		}
		samples[i] = s
	}
	return samples, nil
}

// ReadRawChannels reads A0 then A1.
func (a *ADS1115) ReadRawChannels() (int, int, error) {
	s, err := a.read()
	if err != nil {
		return 0, 0, err
	}
	debug.Sample(int(s[0].Raw), int(s[1].Raw))
	return int(s[0].Raw), int(s[1].Raw), nil
}

// ReadVoltages reads A0 then A1 and converts them to volts.
func (a *ADS1115) ReadVoltages() (float64, float64, error) {
	s, err := a.read()
	if err != nil {
		return 0, 0, err
	}
	return float64(s[0].V) / float64(physic.Volt), float64(s[1].V) / float64(physic.Volt), nil
}

func (a *ADS1115) Close() error {
	debug.Trace("ADS1115 Close")
	for _, pin := range a.pins {
		if pin != nil {
			_ = pin.Halt()
		}
	}
	if a.dev != nil {
		_ = a.dev.Halt()
	}
	return a.bus.Close()
}
