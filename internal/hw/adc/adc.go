package adc

import "errors"

// ErrSensorIO wraps every failure to obtain a sample pair from the hardware.
var ErrSensorIO = errors.New("sensor I/O error")

// Sensor is the high-level interface used by the control loop.
// It represents the two analog channels of the cart-pole, regardless of
// how they are sampled (I2C ADC, microcontroller over serial, etc.).
type Sensor interface {
	// ReadRawChannels returns one sample per channel, in channel order.
	ReadRawChannels() (raw0, raw1 int, err error)
	Close() error
}

// VoltageReader is implemented by sensors that know their reference voltage.
type VoltageReader interface {
	// ReadVoltages returns the tension measured on each channel, in volts.
	ReadVoltages() (v0, v1 float64, err error)
}
