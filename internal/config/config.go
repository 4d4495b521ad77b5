// Package config loads the controller configuration from a YAML file laid
// over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// DefaultFile is the configuration path used when none is given.
const DefaultFile = "/etc/delivery-sensor/config.yaml"

// Duration is a time.Duration written as a Go duration string ("10ms", "1s").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config defines the struct of the configuration file.
type Config struct {
	GPIO        GPIOConfig        `yaml:"gpio"`
	Sampling    SamplingConfig    `yaml:"sampling"`
	Filter      FilterConfig      `yaml:"filter"`
	Distance    DistanceConfig    `yaml:"distance"`
	Temperature TemperatureConfig `yaml:"temperature"`
	Link        LinkConfig        `yaml:"link"`
	Loop        LoopConfig        `yaml:"loop"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        HTTPConfig        `yaml:"http"`
	Log         LogConfig         `yaml:"log"`
}

// LatchPins are the BCM pin numbers of one latch's limit switches.
type LatchPins struct {
	OpenPin  int `yaml:"open_pin"`
	ClosePin int `yaml:"close_pin"`
}

type GPIOConfig struct {
	Chip    string      `yaml:"chip"`
	Invert  bool        `yaml:"invert"`
	Latches []LatchPins `yaml:"latches"`
}

type SamplingConfig struct {
	LimitInterval       Duration `yaml:"limit_interval"`
	DistanceInterval    Duration `yaml:"distance_interval"`
	TemperatureInterval Duration `yaml:"temperature_interval"`
}

type FilterConfig struct {
	LimitWindow    int `yaml:"limit_window"`
	DistanceWindow int `yaml:"distance_window"`
}

type DistanceConfig struct {
	MinMM   float64 `yaml:"min_mm"`
	MaxMM   float64 `yaml:"max_mm"`
	I2CBus  string  `yaml:"i2c_bus"`
	I2CAddr uint16  `yaml:"i2c_addr"`
}

type TemperatureConfig struct {
	// Device is a w1 slave id such as 28-00000a1b2c3d; empty picks the first.
	Device string `yaml:"device"`
}

// LinkConfig configures the flight controller serial link. Parity is one of
// N, E or O.
type LinkConfig struct {
	Device           string   `yaml:"device"`
	Baud             int      `yaml:"baud"`
	DataBits         int      `yaml:"data_bits"`
	StopBits         int      `yaml:"stop_bits"`
	Parity           string   `yaml:"parity"`
	SystemID         uint8    `yaml:"system_id"`
	ComponentID      uint8    `yaml:"component_id"`
	HandshakeTimeout Duration `yaml:"handshake_timeout"`
	ReconnectDelay   Duration `yaml:"reconnect_delay"`
	QueueSize        int      `yaml:"queue_size"`
}

type LoopConfig struct {
	Interval Duration `yaml:"interval"`
}

// MQTTConfig configures the optional telemetry mirror. An empty broker
// disables it.
type MQTTConfig struct {
	Broker    string   `yaml:"broker"`
	ClientID  string   `yaml:"client_id"`
	Heartbeat Duration `yaml:"heartbeat"`
}

// HTTPConfig configures the status page. An empty address disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Chip: "gpiochip0",
			Latches: []LatchPins{
				{OpenPin: 24, ClosePin: 22},
				{OpenPin: 25, ClosePin: 23},
			},
		},
		Sampling: SamplingConfig{
			LimitInterval:       Duration(10 * time.Millisecond),
			DistanceInterval:    Duration(50 * time.Millisecond),
			TemperatureInterval: Duration(time.Second),
		},
		Filter: FilterConfig{
			LimitWindow:    10,
			DistanceWindow: 40,
		},
		Distance: DistanceConfig{
			MinMM:   50,
			MaxMM:   350,
			I2CAddr: 0x29,
		},
		Link: LinkConfig{
			Device:           "/dev/serial0",
			Baud:             57600,
			DataBits:         8,
			StopBits:         1,
			Parity:           "N",
			SystemID:         255,
			ComponentID:      10,
			HandshakeTimeout: Duration(5 * time.Second),
			ReconnectDelay:   Duration(time.Second),
			QueueSize:        64,
		},
		Loop: LoopConfig{
			Interval: Duration(100 * time.Millisecond),
		},
		MQTT: MQTTConfig{
			ClientID:  "delivery-sensor",
			Heartbeat: Duration(15 * time.Minute),
		},
		HTTP: HTTPConfig{
			Addr: ":80",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads path over the defaults. A missing file at DefaultFile is not
// an error; any other missing file is.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && path == DefaultFile {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := Parse(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML into cfg, leaving unspecified fields untouched.
func Parse(data []byte, cfg *Config) error {
	return yaml.UnmarshalStrict(data, cfg)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if len(c.GPIO.Latches) != 2 {
		return fmt.Errorf("gpio.latches: exactly two latches are required, got %d", len(c.GPIO.Latches))
	}
	for i, l := range c.GPIO.Latches {
		if l.OpenPin < 0 || l.ClosePin < 0 {
			return fmt.Errorf("gpio.latches[%d]: pins must not be negative", i)
		}
		if l.OpenPin == l.ClosePin {
			return fmt.Errorf("gpio.latches[%d]: open and close pin are both %d", i, l.OpenPin)
		}
	}

	intervals := []struct {
		name string
		d    Duration
	}{
		{"sampling.limit_interval", c.Sampling.LimitInterval},
		{"sampling.distance_interval", c.Sampling.DistanceInterval},
		{"sampling.temperature_interval", c.Sampling.TemperatureInterval},
		{"link.handshake_timeout", c.Link.HandshakeTimeout},
		{"loop.interval", c.Loop.Interval},
	}
	for _, iv := range intervals {
		if iv.d <= 0 {
			return fmt.Errorf("%s: must be positive, got %s", iv.name, iv.d.Std())
		}
	}
	if c.Link.ReconnectDelay < 0 {
		return errors.New("link.reconnect_delay: must not be negative")
	}
	if c.MQTT.Heartbeat < 0 {
		return errors.New("mqtt.heartbeat: must not be negative")
	}

	if c.Filter.LimitWindow < 1 {
		return fmt.Errorf("filter.limit_window: must be at least 1, got %d", c.Filter.LimitWindow)
	}
	if c.Filter.DistanceWindow < 1 {
		return fmt.Errorf("filter.distance_window: must be at least 1, got %d", c.Filter.DistanceWindow)
	}
	if c.Distance.MinMM >= c.Distance.MaxMM {
		return fmt.Errorf("distance: min_mm (%v) must be below max_mm (%v)", c.Distance.MinMM, c.Distance.MaxMM)
	}
	if c.Link.QueueSize < 1 {
		return fmt.Errorf("link.queue_size: must be at least 1, got %d", c.Link.QueueSize)
	}
	if c.Link.Device == "" {
		return errors.New("link.device: required")
	}
	return nil
}

// Pins returns every limit switch pin in latch order, open before close.
func (c *Config) Pins() []int {
	pins := make([]int, 0, 2*len(c.GPIO.Latches))
	for _, l := range c.GPIO.Latches {
		pins = append(pins, l.OpenPin, l.ClosePin)
	}
	return pins
}
