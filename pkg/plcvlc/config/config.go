package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v2"

	"github.com/norasector/plcvlc/pkg/sci"
)

const (
	ProgramEchoback = "echoback"
	ProgramEdgeBits = "edge_bits"
	ProgramSampler  = "sampler"
	ProgramTransmit = "transmit"

	DeviceSerial = "serial"
	DeviceGPIO   = "gpio"
	DeviceFile   = "file"
	DeviceNone   = "none"

	ADCWaveform = "waveform"
	ADCFile     = "file"
)

var (
	ErrUnknownProgram = errors.New("config: unknown program")
	ErrUnknownDevice  = errors.New("config: unknown device")
)

type Config struct {
	Program          string         `yaml:"program"`
	Device           string         `yaml:"device"`
	LogLevel         string         `yaml:"log_level"`
	PlaybackLocation string         `yaml:"playback_location"`
	PlaybackInterval time.Duration  `yaml:"playback_interval"`
	StatusInterval   time.Duration  `yaml:"status_interval"`
	QueueDepth       int            `yaml:"queue_depth"`
	Link             sci.PortConfig `yaml:"link"`
	Console          sci.PortConfig `yaml:"console"`
	GPIO             GPIO           `yaml:"gpio"`
	Echoback         Echoback       `yaml:"echoback"`
	EdgeBits         EdgeBits       `yaml:"edge_bits"`
	Sampler          Sampler        `yaml:"sampler"`
	Transmit         Transmit       `yaml:"transmit"`

	OutputDestinations []OutputDestination `yaml:"output_destinations"`
	VizServer          struct {
		Port           int           `yaml:"port"`
		UpdateInterval time.Duration `yaml:"update_interval"`
	} `yaml:"viz_server"`
	InfluxDB struct {
		Host         string `yaml:"host"`
		Token        string `yaml:"token"`
		Organization string `yaml:"organization"`
		Bucket       string `yaml:"bucket"`
	} `yaml:"influxdb"`
}

type GPIO struct {
	XINT1Pin string `yaml:"xint1_pin"`
	XINT2Pin string `yaml:"xint2_pin"`
	// Edge polarity; nil keeps the default (XINT1 rising, XINT2 falling).
	XINT1Rising *bool    `yaml:"xint1_rising"`
	XINT2Rising *bool    `yaml:"xint2_rising"`
	MonitorPins []string `yaml:"monitor_pins,flow"`
}

type Echoback struct {
	BufferLen int `yaml:"buffer_len"`
}

type EdgeBits struct {
	// SymbolBits edges make one symbol; 0 only accumulates.
	SymbolBits *int `yaml:"symbol_bits"`
}

type Sampler struct {
	BufferLen    int           `yaml:"buffer_len"`
	SamplePeriod time.Duration `yaml:"sample_period"`
	StopOnWindow bool          `yaml:"stop_on_window"`
	ADC          ADC           `yaml:"adc"`
	// Low pass smoothing of each window, in Hz. A zero cutoff disables it.
	LowpassCutoff     float64 `yaml:"lowpass_cutoff"`
	LowpassTransition float64 `yaml:"lowpass_transition"`
}

type ADC struct {
	Source        string `yaml:"source"`
	Message       string `yaml:"message"`
	SamplesPerBit int    `yaml:"samples_per_bit"`
	High          uint16 `yaml:"high"`
	Low           uint16 `yaml:"low"`
}

type Transmit struct {
	Message  string        `yaml:"message"`
	Interval time.Duration `yaml:"interval"`
	Repeat   int           `yaml:"repeat"`
}

type OutputDestination struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Load reads, defaults and validates the YAML file at path.
func Load(path string) (*Config, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(contents)
}

// Parse is Load for an in-memory document.
func Parse(contents []byte) (*Config, error) {
	var c Config
	if err := yaml.UnmarshalStrict(contents, &c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Device == "" {
		c.Device = DeviceSerial
		if c.PlaybackLocation != "" {
			c.Device = DeviceFile
		}
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.PlaybackInterval == 0 {
		c.PlaybackInterval = 10 * time.Millisecond
	}
	if c.StatusInterval == 0 {
		c.StatusInterval = 5 * time.Second
	}
	if c.QueueDepth == 0 {
		c.QueueDepth = 64
	}
	if c.Link.Baud == 0 {
		c.Link.Baud = sci.DefaultLinkBaud
	}
	if c.Console.Baud == 0 {
		c.Console.Baud = sci.DefaultConsoleBaud
	}
	if c.GPIO.XINT1Pin == "" {
		c.GPIO.XINT1Pin = "GPIO17"
	}
	if c.GPIO.XINT2Pin == "" {
		c.GPIO.XINT2Pin = "GPIO27"
	}
	if c.Echoback.BufferLen == 0 {
		c.Echoback.BufferLen = 50
	}
	if c.EdgeBits.SymbolBits == nil {
		n := 16
		c.EdgeBits.SymbolBits = &n
	}
	if c.Sampler.BufferLen == 0 {
		c.Sampler.BufferLen = 30
	}
	if c.Sampler.SamplePeriod == 0 {
		c.Sampler.SamplePeriod = time.Millisecond
	}
	if c.Sampler.ADC.Source == "" {
		c.Sampler.ADC.Source = ADCWaveform
		if c.Device == DeviceFile {
			c.Sampler.ADC.Source = ADCFile
		}
	}
	if c.Sampler.ADC.Message == "" {
		c.Sampler.ADC.Message = "U"
	}
	if c.Sampler.ADC.SamplesPerBit == 0 {
		c.Sampler.ADC.SamplesPerBit = 4
	}
	if c.Sampler.ADC.High == 0 && c.Sampler.ADC.Low == 0 {
		c.Sampler.ADC.High = 4095
	}
}

func (c *Config) Validate() error {
	switch c.Program {
	case ProgramEchoback, ProgramEdgeBits, ProgramSampler, ProgramTransmit:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownProgram, c.Program)
	}

	switch c.Device {
	case DeviceSerial, DeviceGPIO, DeviceNone:
	case DeviceFile:
		if c.PlaybackLocation == "" {
			return fmt.Errorf("config: device file needs playback_location")
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDevice, c.Device)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("config: log_level: %w", err)
	}
	if (c.Program == ProgramTransmit || c.Device == DeviceSerial) && c.Link.Port == "" {
		return fmt.Errorf("config: link.port is required for program %s on device %s", c.Program, c.Device)
	}
	if c.Sampler.ADC.Source != ADCWaveform && c.Sampler.ADC.Source != ADCFile {
		return fmt.Errorf("config: unknown sampler adc source %q", c.Sampler.ADC.Source)
	}
	if c.Sampler.ADC.Source == ADCFile && c.Device != DeviceFile && c.Program == ProgramSampler {
		return fmt.Errorf("config: sampler adc source file needs device file")
	}
	if c.Echoback.BufferLen%2 != 0 {
		return fmt.Errorf("config: echoback.buffer_len must be even, got %d", c.Echoback.BufferLen)
	}
	if n := *c.EdgeBits.SymbolBits; n < 0 || n > 32 {
		return fmt.Errorf("config: edge_bits.symbol_bits must be within 0..32, got %d", n)
	}
	if c.Sampler.LowpassCutoff != 0 {
		nyquist := 0.5 / c.Sampler.SamplePeriod.Seconds()
		if c.Sampler.LowpassCutoff < 0 || c.Sampler.LowpassCutoff >= nyquist {
			return fmt.Errorf("config: sampler.lowpass_cutoff must be within 0..%g Hz", nyquist)
		}
		if c.Sampler.LowpassTransition <= 0 {
			return fmt.Errorf("config: sampler.lowpass_transition must be positive")
		}
	}
	for _, d := range c.OutputDestinations {
		if d.Host == "" || d.Port <= 0 {
			return fmt.Errorf("config: invalid output destination %s:%d", d.Host, d.Port)
		}
	}
	return nil
}

// Level returns the parsed log level. Validate has already checked it.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
