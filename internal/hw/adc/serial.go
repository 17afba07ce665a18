package adc

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/cjeanneret/PoleGo/internal/debug"
	"go.bug.st/serial"
)

// ErrReadTimeout is returned when the port read timeout expires with no data.
var ErrReadTimeout = errors.New("serial read timeout")

// SerialConfig describes a microcontroller streaming "raw0,raw1\n" lines.
type SerialConfig struct {
	Port        string        // e.g. /dev/ttyACM0
	BaudRate    int           // 0 = 115200
	ReadTimeout time.Duration // 0 = 500ms
}

// Serial reads sample pairs from a line-oriented serial stream.
type Serial struct {
	port    io.ReadCloser
	r       *bufio.Reader
	partial string // bytes of a line interrupted by a read error
}

// timeoutReader reports an expired port timeout, which go.bug.st/serial
// signals as a read of zero bytes with no error.
type timeoutReader struct {
	r io.Reader
}

func (t timeoutReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n == 0 && err == nil && len(p) > 0 {
		return 0, ErrReadTimeout
	}
	return n, err
}

// OpenSerial opens the serial port and returns a sensor reading from it.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 115200
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}

	debug.Info("Opening serial sensor on %s at %d baud", cfg.Port, cfg.BaudRate)

	port, err := serial.Open(cfg.Port, &serial.Mode{BaudRate: cfg.BaudRate})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", cfg.Port, err)
	}
	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Port, err)
	}
	return NewLineSensor(port), nil
}

// NewLineSensor wraps any stream carrying "raw0,raw1" lines.
func NewLineSensor(rc io.ReadCloser) *Serial {
	return &Serial{
		port: rc,
		r:    bufio.NewReader(timeoutReader{r: rc}),
	}
}

// ReadRawChannels returns the next well-formed line. Blank lines are skipped;
// a malformed line fails the read.
func (s *Serial) ReadRawChannels() (int, int, error) {
	for {
		line, err := s.r.ReadString('\n')
		line = s.partial + line
		s.partial = ""
		if err != nil && (err != io.EOF || line == "") {
			s.partial = line
			return 0, 0, fmt.Errorf("%w: serial read: %w", ErrSensorIO, err)
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		raw0, raw1, perr := parseLine(line)
		if perr != nil {
			return 0, 0, perr
		}
		debug.Sample(raw0, raw1)
		return raw0, raw1, nil
	}
}

func parseLine(line string) (int, int, error) {
	parts := strings.Split(line, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: malformed line %q", ErrSensorIO, line)
	}
	raw0, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: channel 0 in %q: %v", ErrSensorIO, line, err)
	}
	raw1, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: channel 1 in %q: %v", ErrSensorIO, line, err)
	}
	return raw0, raw1, nil
}

func (s *Serial) Close() error {
	debug.Trace("Serial sensor Close")
	return s.port.Close()
}
