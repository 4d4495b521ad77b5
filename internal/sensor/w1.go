package sensor

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
)

// DefaultW1Root is where the Linux w1 bus exposes its slaves.
const DefaultW1Root = "/sys/bus/w1/devices"

// DS18B20 family code prefix.
const ds18b20Family = "28-"

// powerOnScratchpad is the temperature register before the first conversion
// completes; the driver reports it as t=85000.
var powerOnScratchpad = []byte("50 05 ")

// ErrPowerOnReset is returned for the 85 C value a DS18B20 reports before its
// first conversion.
var ErrPowerOnReset = errors.New("w1: power-on reset value")

// W1Thermometer reads a DS18B20 through the kernel w1-therm driver.
type W1Thermometer struct {
	path string
}

// NewW1Thermometer locates the thermometer under root. An empty device picks
// the first DS18B20 on the bus.
func NewW1Thermometer(root, device string) (*W1Thermometer, error) {
	if root == "" {
		root = DefaultW1Root
	}
	if device == "" {
		matches, err := filepath.Glob(filepath.Join(root, ds18b20Family+"*"))
		if err != nil {
			return nil, err
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("%w: no DS18B20 under %s", ErrNoDevice, root)
		}
		sort.Strings(matches)
		device = filepath.Base(matches[0])
	}

	path := filepath.Join(root, device, "w1_slave")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNoDevice, device, err)
	}
	return &W1Thermometer{path: path}, nil
}

// Read returns the temperature in degrees Celsius.
func (t *W1Thermometer) Read() (float64, error) {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", t.path, err)
	}
	return parseW1Slave(data)
}

// parseW1Slave decodes the two-line w1_slave format:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func parseW1Slave(data []byte) (float64, error) {
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) < 2 {
		return 0, fmt.Errorf("w1: short read (%d lines)", len(lines))
	}
	if !bytes.HasSuffix(bytes.TrimSpace(lines[0]), []byte("YES")) {
		return 0, fmt.Errorf("w1: crc check failed")
	}

	i := bytes.Index(lines[1], []byte("t="))
	if i < 0 {
		return 0, fmt.Errorf("w1: missing temperature field")
	}
	milli, err := strconv.Atoi(string(bytes.TrimSpace(lines[1][i+2:])))
	if err != nil {
		return 0, fmt.Errorf("w1: parse temperature: %w", err)
	}
	if milli == 85000 && bytes.HasPrefix(lines[1], powerOnScratchpad) {
		return 0, ErrPowerOnReset
	}
	return float64(milli) / 1000, nil
}
