package units

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrInvalidRatio is returned for a calibration ratio that is not finite and > 0.
	ErrInvalidRatio = errors.New("invalid calibration ratio")
	// ErrInvalidChannel is returned for a channel mapping that is out of range or ambiguous.
	ErrInvalidChannel = errors.New("invalid channel mapping")
)

// CalibrationRatios converts raw ADC counts to physical units by division.
// Build it with NewCalibrationRatios; the zero value is not usable.
type CalibrationRatios struct {
	angle    float64 // counts per radian
	position float64 // counts per meter
}

// NewCalibrationRatios validates both ratios once so conversions never divide by zero.
func NewCalibrationRatios(angleRatio, positionRatio float64) (CalibrationRatios, error) {
	if !validRatio(angleRatio) {
		return CalibrationRatios{}, fmt.Errorf("%w: angle ratio %g", ErrInvalidRatio, angleRatio)
	}
	if !validRatio(positionRatio) {
		return CalibrationRatios{}, fmt.Errorf("%w: position ratio %g", ErrInvalidRatio, positionRatio)
	}
	return CalibrationRatios{angle: angleRatio, position: positionRatio}, nil
}

func validRatio(r float64) bool {
	return r > 0 && !math.IsInf(r, 0) && !math.IsNaN(r)
}

// Angle returns the counts per radian.
func (r CalibrationRatios) Angle() float64 { return r.angle }

// Position returns the counts per meter.
func (r CalibrationRatios) Position() float64 { return r.position }

// ToPhysical converts a raw sample pair to meters and radians.
func ToPhysical(rawPosition, rawAngle int, r CalibrationRatios) (positionM, angleRad float64) {
	return float64(rawPosition) / r.position, float64(rawAngle) / r.angle
}

// ToRaw is the inverse of ToPhysical, rounded to the nearest count.
func ToRaw(positionM, angleRad float64, r CalibrationRatios) (rawPosition, rawAngle int) {
	return int(math.Round(positionM * r.position)), int(math.Round(angleRad * r.angle))
}

// ChannelMap says which ADC channel carries which quantity.
type ChannelMap struct {
	angle    int
	position int
}

// NumChannels is the number of analog channels sampled per read.
const NumChannels = 2

// NewChannelMap validates that angle and position use distinct channels in [0, NumChannels).
func NewChannelMap(angleChannel, positionChannel int) (ChannelMap, error) {
	if angleChannel < 0 || angleChannel >= NumChannels {
		return ChannelMap{}, fmt.Errorf("%w: angle channel %d", ErrInvalidChannel, angleChannel)
	}
	if positionChannel < 0 || positionChannel >= NumChannels {
		return ChannelMap{}, fmt.Errorf("%w: position channel %d", ErrInvalidChannel, positionChannel)
	}
	if angleChannel == positionChannel {
		return ChannelMap{}, fmt.Errorf("%w: angle and position both on channel %d", ErrInvalidChannel, angleChannel)
	}
	return ChannelMap{angle: angleChannel, position: positionChannel}, nil
}

// AngleChannel returns the channel index of the angle encoder.
func (m ChannelMap) AngleChannel() int { return m.angle }

// PositionChannel returns the channel index of the position encoder.
func (m ChannelMap) PositionChannel() int { return m.position }

// Split picks the position and angle samples out of a channel-ordered pair.
func (m ChannelMap) Split(raw0, raw1 int) (rawPosition, rawAngle int) {
	raw := [NumChannels]int{raw0, raw1}
	return raw[m.position], raw[m.angle]
}
