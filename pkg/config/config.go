package config

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const (
	DeviceCharDev    = "chardev"
	DeviceSerial     = "serial"
	DeviceSimulation = "simulation"

	OutputConsole = "console"
	OutputMQTT    = "mqtt"
	OutputRedis   = "redis"
	OutputSQLite  = "sqlite"

	DefaultDevicePath = "/dev/hcsr04_driver"
)

type SimulationConfig struct {
	Seed        int64   `json:"seed" yaml:"seed"`
	MinCM       float64 `json:"min_cm" yaml:"min_cm"`
	MaxCM       float64 `json:"max_cm" yaml:"max_cm"`
	TimeoutRate float64 `json:"timeout_rate" yaml:"timeout_rate"`
}

type DeviceConfig struct {
	Type       string           `json:"type" yaml:"type"`
	Path       string           `json:"path" yaml:"path"`
	Serial     SerialConfig     `json:"serial" yaml:"serial"`
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
}

type MQTTConfig struct {
	Server            string `json:"server" yaml:"server"`
	Username          string `json:"username" yaml:"username"`
	Password          string `json:"password" yaml:"password"`
	ClientID          string `json:"client_id" yaml:"client_id"`
	StateTopic        string `json:"state_topic" yaml:"state_topic"`
	DiscoveryTopic    string `json:"discovery_topic" yaml:"discovery_topic"`
	DiscoveryName     string `json:"discovery_name" yaml:"discovery_name"`
	DiscoveryUniqueID string `json:"discovery_unique_id" yaml:"discovery_unique_id"`
}

type RedisConfig struct {
	Addr     string `json:"addr" yaml:"addr"`
	Password string `json:"password" yaml:"password"`
	DB       int    `json:"db" yaml:"db"`
	Channel  string `json:"channel" yaml:"channel"`
	// MaxLen bounds the per-device history list.
	MaxLen int64 `json:"max_len" yaml:"max_len"`
}

type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

type OutputConfig struct {
	Type       string        `json:"type" yaml:"type"`
	IntervalMs int           `json:"interval_ms,omitempty" yaml:"interval_ms,omitempty"`
	MQTT       *MQTTConfig   `json:"mqtt,omitempty" yaml:"mqtt,omitempty"`
	Redis      *RedisConfig  `json:"redis,omitempty" yaml:"redis,omitempty"`
	SQLite     *SQLiteConfig `json:"sqlite,omitempty" yaml:"sqlite,omitempty"`
}

type LogConfig struct {
	Level    string `json:"level" yaml:"level"`
	Format   string `json:"format" yaml:"format"`
	Output   string `json:"output" yaml:"output"`
	FilePath string `json:"file_path" yaml:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Listen  string `json:"listen" yaml:"listen"`
}

type Config struct {
	Device DeviceConfig `json:"device" yaml:"device"`
	// Cycles is the number of ranging cycles to run; 0 runs until signalled.
	Cycles               int            `json:"cycles" yaml:"cycles"`
	IntervalMs           int            `json:"interval_ms" yaml:"interval_ms"`
	MaxConsecutiveErrors int            `json:"max_consecutive_errors" yaml:"max_consecutive_errors"`
	Outputs              []OutputConfig `json:"outputs" yaml:"outputs"`
	Log                  LogConfig      `json:"log" yaml:"log"`
	Metrics              MetricsConfig  `json:"metrics" yaml:"metrics"`
}

func DefaultConfig() Config {
	return Config{
		Device: DeviceConfig{
			Type: DeviceCharDev,
			Path: DefaultDevicePath,
			Simulation: SimulationConfig{
				MinCM:       2,
				MaxCM:       400,
				TimeoutRate: 0.05,
			},
		},
		Cycles:     1000000,
		IntervalMs: 1000,
		Outputs:    []OutputConfig{{Type: OutputConsole, IntervalMs: 1000}},
		Log:        LogConfig{Level: "info", Format: "text", Output: "stderr"},
		Metrics:    MetricsConfig{Listen: ":9090"},
	}
}

// LoadFromFlags loads configuration from the process command line.
func LoadFromFlags() (Config, error) {
	return Load(os.Args[1:])
}

// Load builds a Config from defaults, an optional JSON or YAML file, HCSR04_*
// environment variables and finally the given command-line arguments, each
// layer overriding the previous one.
func Load(args []string) (Config, error) {
	fs := flag.NewFlagSet("hcsr04-exerciser", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "Path to JSON or YAML config file")
	flagDeviceType := fs.String("device-type", "", "device type: chardev|serial|simulation")
	flagDevice := fs.String("device", "", "Device path (e.g. /dev/hcsr04_driver or /dev/ttyUSB0)")
	flagBaud := fs.Int("baud-rate", 0, "Serial baud rate (serial device only)")
	flagCycles := fs.Int("cycles", -1, "Number of ranging cycles, 0 runs until interrupted")
	flagInterval := fs.Int("interval-ms", -1, "Delay between cycles in ms")
	flagMaxErrors := fs.Int("max-errors", -1, "Abort after this many consecutive failed cycles, 0 never aborts")
	flagOutputs := fs.String("outputs", "", "Comma-separated outputs (console,mqtt,redis,sqlite)")
	flagOutputIntervals := fs.String("output-intervals", "", "Comma-separated output intervals e.g. console=1000,mqtt=5000")
	flagMQTTServer := fs.String("mqtt-server", "", "MQTT server (tcp://host:port)")
	flagMQTTUser := fs.String("mqtt-user", "", "MQTT username")
	flagMQTTPass := fs.String("mqtt-pass", "", "MQTT password")
	flagClientID := fs.String("mqtt-client-id", "", "MQTT client id")
	flagTopic := fs.String("mqtt-topic", "", "MQTT state topic")
	flagRedisAddr := fs.String("redis-addr", "", "Redis address (host:port)")
	flagSQLitePath := fs.String("sqlite-path", "", "SQLite database file")
	flagLogLevel := fs.String("log-level", "", "Log level: debug|info|warn|error")
	flagLogFormat := fs.String("log-format", "", "Log format: text|json")
	flagMetrics := fs.String("metrics-listen", "", "Serve Prometheus metrics on this address")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := DefaultConfig()

	if *cfgPath != "" {
		if err := loadFile(*cfgPath, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}

	if *flagDeviceType != "" {
		cfg.Device.Type = *flagDeviceType
	}
	if *flagDevice != "" {
		cfg.Device.Path = *flagDevice
	}
	if *flagBaud > 0 {
		cfg.Device.Serial.BaudRate = *flagBaud
	}
	if *flagCycles != -1 {
		cfg.Cycles = *flagCycles
	}
	if *flagInterval != -1 {
		cfg.IntervalMs = *flagInterval
	}
	if *flagMaxErrors != -1 {
		cfg.MaxConsecutiveErrors = *flagMaxErrors
	}
	if *flagOutputs != "" {
		parts := parseCSV(*flagOutputs)
		outs := make([]OutputConfig, 0, len(parts))
		for _, p := range parts {
			outs = append(outs, OutputConfig{Type: strings.ToLower(p)})
		}
		cfg.Outputs = outs
	}
	if *flagOutputIntervals != "" {
		intervals, err := parseKeyIntMap(*flagOutputIntervals)
		if err != nil {
			return cfg, fmt.Errorf("output-intervals: %w", err)
		}
		for i := range cfg.Outputs {
			if v, ok := intervals[cfg.Outputs[i].Type]; ok {
				cfg.Outputs[i].IntervalMs = v
			}
		}
	}
	if *flagMQTTServer != "" || *flagMQTTUser != "" || *flagMQTTPass != "" || *flagClientID != "" || *flagTopic != "" {
		for _, o := range cfg.outputsOfType(OutputMQTT) {
			if o.MQTT == nil {
				o.MQTT = &MQTTConfig{}
			}
			setIf(&o.MQTT.Server, *flagMQTTServer)
			setIf(&o.MQTT.Username, *flagMQTTUser)
			setIf(&o.MQTT.Password, *flagMQTTPass)
			setIf(&o.MQTT.ClientID, *flagClientID)
			setIf(&o.MQTT.StateTopic, *flagTopic)
		}
	}
	if *flagRedisAddr != "" {
		for _, o := range cfg.outputsOfType(OutputRedis) {
			if o.Redis == nil {
				o.Redis = &RedisConfig{}
			}
			o.Redis.Addr = *flagRedisAddr
		}
	}
	if *flagSQLitePath != "" {
		for _, o := range cfg.outputsOfType(OutputSQLite) {
			if o.SQLite == nil {
				o.SQLite = &SQLiteConfig{}
			}
			o.SQLite.Path = *flagSQLitePath
		}
	}
	setIf(&cfg.Log.Level, *flagLogLevel)
	setIf(&cfg.Log.Format, *flagLogFormat)
	if *flagMetrics != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = *flagMetrics
	}

	// ensure outputs have interval default
	for i := range cfg.Outputs {
		if cfg.Outputs[i].IntervalMs == 0 {
			cfg.Outputs[i].IntervalMs = cfg.IntervalMs
		}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration and normalises the serial options.
func (c *Config) Validate() error {
	if c.IntervalMs <= 0 {
		return errors.New("interval-ms must be > 0")
	}
	if c.Cycles < 0 {
		return errors.New("cycles must be >= 0")
	}
	if c.MaxConsecutiveErrors < 0 {
		return errors.New("max-errors must be >= 0")
	}
	switch c.Device.Type {
	case DeviceCharDev, DeviceSerial:
		if c.Device.Path == "" {
			return fmt.Errorf("device path is required for %s device", c.Device.Type)
		}
	case DeviceSimulation:
		s := c.Device.Simulation
		if s.MinCM < 0 || s.MaxCM < s.MinCM {
			return fmt.Errorf("invalid simulation range %.2f..%.2f cm", s.MinCM, s.MaxCM)
		}
		if s.TimeoutRate < 0 || s.TimeoutRate > 1 {
			return fmt.Errorf("simulation timeout_rate %.2f must be within [0,1]", s.TimeoutRate)
		}
	default:
		return fmt.Errorf("unknown device type %q", c.Device.Type)
	}
	if c.Device.Type == DeviceSerial {
		opts, err := c.Device.Serial.Normalize()
		if err != nil {
			return fmt.Errorf("serial: %w", err)
		}
		c.Device.Serial = opts
	}
	for i := range c.Outputs {
		o := &c.Outputs[i]
		o.Type = strings.ToLower(strings.TrimSpace(o.Type))
		switch o.Type {
		case OutputConsole, OutputMQTT, OutputRedis, OutputSQLite:
		default:
			return fmt.Errorf("unknown output type %q", o.Type)
		}
	}
	return nil
}

func (c *Config) outputsOfType(t string) []*OutputConfig {
	var out []*OutputConfig
	for i := range c.Outputs {
		if strings.ToLower(c.Outputs[i].Type) == t {
			out = append(out, &c.Outputs[i])
		}
	}
	if len(out) == 0 {
		c.Outputs = append(c.Outputs, OutputConfig{Type: t})
		out = append(out, &c.Outputs[len(c.Outputs)-1])
	}
	return out
}

func loadFile(path string, cfg *Config) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(b, cfg)
	default:
		err = json.Unmarshal(b, cfg)
	}
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// envOverrides lists the HCSR04_* variables honoured on top of the config
// file. Numeric values are pointers so that an unset variable can be told
// apart from an explicit zero.
type envOverrides struct {
	DeviceType    string `env:"HCSR04_DEVICE_TYPE"`
	Device        string `env:"HCSR04_DEVICE"`
	Cycles        *int   `env:"HCSR04_CYCLES"`
	IntervalMs    *int   `env:"HCSR04_INTERVAL_MS"`
	LogLevel      string `env:"HCSR04_LOG_LEVEL"`
	LogFormat     string `env:"HCSR04_LOG_FORMAT"`
	MQTTServer    string `env:"HCSR04_MQTT_SERVER"`
	MQTTUser      string `env:"HCSR04_MQTT_USER"`
	MQTTPass      string `env:"HCSR04_MQTT_PASS"`
	RedisAddr     string `env:"HCSR04_REDIS_ADDR"`
	RedisPassword string `env:"HCSR04_REDIS_PASSWORD"`
	MetricsListen string `env:"HCSR04_METRICS_LISTEN"`
}

func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	setIf(&cfg.Device.Type, o.DeviceType)
	setIf(&cfg.Device.Path, o.Device)
	if o.Cycles != nil {
		cfg.Cycles = *o.Cycles
	}
	if o.IntervalMs != nil {
		cfg.IntervalMs = *o.IntervalMs
	}
	setIf(&cfg.Log.Level, o.LogLevel)
	setIf(&cfg.Log.Format, o.LogFormat)
	if o.MQTTServer != "" || o.MQTTUser != "" || o.MQTTPass != "" {
		for _, out := range cfg.outputsOfType(OutputMQTT) {
			if out.MQTT == nil {
				out.MQTT = &MQTTConfig{}
			}
			setIf(&out.MQTT.Server, o.MQTTServer)
			setIf(&out.MQTT.Username, o.MQTTUser)
			setIf(&out.MQTT.Password, o.MQTTPass)
		}
	}
	if o.RedisAddr != "" || o.RedisPassword != "" {
		for _, out := range cfg.outputsOfType(OutputRedis) {
			if out.Redis == nil {
				out.Redis = &RedisConfig{}
			}
			setIf(&out.Redis.Addr, o.RedisAddr)
			setIf(&out.Redis.Password, o.RedisPassword)
		}
	}
	if o.MetricsListen != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Listen = o.MetricsListen
	}
	return nil
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func parseCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func parseKeyIntMap(s string) (map[string]int, error) {
	out := make(map[string]int)
	for _, p := range parseCSV(s) {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("invalid entry %q, want key=value", p)
		}
		v, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, fmt.Errorf("invalid value for %q: %w", kv[0], err)
		}
		out[strings.ToLower(strings.TrimSpace(kv[0]))] = v
	}
	return out, nil
}
