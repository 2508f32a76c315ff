package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	dsdetect "github.com/e7canasta/ds-detect"
)

// Config represents the complete ds-detect configuration
type Config struct {
	Input            string          `yaml:"input"`
	StatsIntervalS   int             `yaml:"stats_interval_s"`   // Performance report period in seconds (default: 5)
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"` // Async sink drain timeout in seconds (default: 5)
	StreamMux        StreamMuxConfig `yaml:"streammux"`
	Infer            InferConfig     `yaml:"infer"`
	Tracker          TrackerConfig   `yaml:"tracker"`
	Render           RenderConfig    `yaml:"render"`
	Output           OutputConfig    `yaml:"output"`
}

// StreamMuxConfig contains nvstreammux settings
type StreamMuxConfig struct {
	Width                int `yaml:"width"`
	Height               int `yaml:"height"`
	BatchSize            int `yaml:"batch_size"`
	BatchedPushTimeoutUS int `yaml:"batched_push_timeout_us"`
}

// InferConfig contains nvinfer settings
type InferConfig struct {
	ConfigFile string `yaml:"config_file"`
}

// TrackerConfig contains nvtracker settings
type TrackerConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	LLLibFile    string `yaml:"ll_lib_file"`
	LLConfigFile string `yaml:"ll_config_file"`
}

// RenderConfig contains display settings
type RenderConfig struct {
	Headless bool `yaml:"headless"` // fakesink instead of nveglglessink
}

// OutputConfig contains detection outputs
type OutputConfig struct {
	CSV              CSVConfig    `yaml:"csv"`
	SQLite           SQLiteConfig `yaml:"sqlite"`
	MQTT             MQTTConfig   `yaml:"mqtt"`
	SubscriberBuffer int          `yaml:"subscriber_buffer"` // channel size per async sink
}

// CSVConfig contains the CSV sink settings
type CSVConfig struct {
	Path     string `yaml:"path"`
	Header   bool   `yaml:"header"`
	Extended bool   `yaml:"extended"`
}

// SQLiteConfig enables the SQLite sink when Path is set
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig enables the MQTT sink when Broker is set
type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	ClientID string `yaml:"client_id"`
	Topic    string `yaml:"topic"`
	QoS      byte   `yaml:"qos"`
	Encoding string `yaml:"encoding"` // json, msgpack
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Input:            dsdetect.DefaultInputPath,
		StatsIntervalS:   5,
		ShutdownTimeoutS: int(dsdetect.DefaultShutdownTimeout / time.Second),
		StreamMux: StreamMuxConfig{
			Width:                dsdetect.DefaultMuxWidth,
			Height:               dsdetect.DefaultMuxHeight,
			BatchSize:            dsdetect.DefaultBatchSize,
			BatchedPushTimeoutUS: dsdetect.DefaultBatchedPushTimeout,
		},
		Infer: InferConfig{
			ConfigFile: dsdetect.DefaultInferConfigPath,
		},
		Tracker: TrackerConfig{
			Enabled:      true,
			Width:        dsdetect.DefaultTrackerWidth,
			Height:       dsdetect.DefaultTrackerHeight,
			LLLibFile:    dsdetect.DefaultTrackerLibFile,
			LLConfigFile: dsdetect.DefaultTrackerConfigFile,
		},
		Output: OutputConfig{
			CSV: CSVConfig{
				Path: dsdetect.DefaultCSVPath,
			},
			MQTT: MQTTConfig{
				ClientID: "ds-detect",
				Topic:    "ds-detect/detections",
				Encoding: "json",
			},
			SubscriberBuffer: dsdetect.DefaultSubscriberBuffer,
		},
	}
}

// Load reads and parses a YAML configuration file
//
// Keys missing from the file keep their Default() value. An empty path
// returns the validated defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Pipeline maps the file configuration onto the runner configuration.
func (c *Config) Pipeline() dsdetect.Config {
	return dsdetect.Config{
		InputPath:          c.Input,
		CSVPath:            c.Output.CSV.Path,
		CSVHeader:          c.Output.CSV.Header,
		CSVExtended:        c.Output.CSV.Extended,
		MuxWidth:           c.StreamMux.Width,
		MuxHeight:          c.StreamMux.Height,
		BatchSize:          c.StreamMux.BatchSize,
		BatchedPushTimeout: c.StreamMux.BatchedPushTimeoutUS,
		InferConfigPath:    c.Infer.ConfigFile,
		TrackerEnabled:     c.Tracker.Enabled,
		TrackerWidth:       c.Tracker.Width,
		TrackerHeight:      c.Tracker.Height,
		TrackerLibFile:     c.Tracker.LLLibFile,
		TrackerConfigFile:  c.Tracker.LLConfigFile,
		Headless:           c.Render.Headless,
		SubscriberBuffer:   c.Output.SubscriberBuffer,
		ShutdownTimeout:    time.Duration(c.ShutdownTimeoutS) * time.Second,
	}
}

// StatsInterval returns the performance report period.
func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalS) * time.Second
}
