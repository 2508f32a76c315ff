package config

import "fmt"

// Validate checks if the configuration is valid
func Validate(cfg *Config) error {
	if cfg.Input == "" {
		return fmt.Errorf("input is required")
	}

	if cfg.StreamMux.Width <= 0 || cfg.StreamMux.Height <= 0 {
		return fmt.Errorf("streammux.width and streammux.height must be > 0")
	}
	if cfg.StreamMux.BatchSize <= 0 {
		return fmt.Errorf("streammux.batch_size must be > 0")
	}
	if cfg.StreamMux.BatchedPushTimeoutUS < -1 {
		return fmt.Errorf("streammux.batched_push_timeout_us must be >= -1")
	}

	if cfg.Infer.ConfigFile == "" {
		return fmt.Errorf("infer.config_file is required")
	}

	if cfg.Tracker.Enabled {
		if cfg.Tracker.Width <= 0 || cfg.Tracker.Height <= 0 {
			return fmt.Errorf("tracker.width and tracker.height must be > 0")
		}
		if cfg.Tracker.LLLibFile == "" {
			return fmt.Errorf("tracker.ll_lib_file is required when tracker.enabled")
		}
	}

	if cfg.Output.CSV.Path == "" {
		return fmt.Errorf("output.csv.path is required")
	}
	if cfg.Output.SubscriberBuffer <= 0 {
		cfg.Output.SubscriberBuffer = 64 // default
	}

	if err := ValidateMQTT(cfg.Output.MQTT); err != nil {
		return fmt.Errorf("mqtt validation failed: %w", err)
	}

	if cfg.StatsIntervalS <= 0 {
		cfg.StatsIntervalS = 5 // default
	}
	if cfg.ShutdownTimeoutS <= 0 {
		cfg.ShutdownTimeoutS = 5 // default
	}

	return nil
}

// ValidateMQTT checks the MQTT output. An empty broker disables it.
func ValidateMQTT(m MQTTConfig) error {
	if m.Broker == "" {
		return nil
	}
	if m.Topic == "" {
		return fmt.Errorf("output.mqtt.topic is required when a broker is set")
	}
	if m.QoS > 2 {
		return fmt.Errorf("output.mqtt.qos must be 0, 1 or 2, got %d", m.QoS)
	}
	switch m.Encoding {
	case "", "json", "msgpack":
	default:
		return fmt.Errorf("output.mqtt.encoding must be 'json' or 'msgpack', got '%s'", m.Encoding)
	}
	return nil
}
