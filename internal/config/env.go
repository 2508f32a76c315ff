package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DSDETECT_"

// LoadDotEnv loads KEY=VALUE files into the process environment.
//
// Variables already set in the environment win. Missing files are skipped.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}

	existing := make([]string, 0, len(files))
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to stat env file %s: %w", f, err)
		}
		existing = append(existing, f)
	}
	if len(existing) == 0 {
		return nil
	}

	if err := godotenv.Load(existing...); err != nil {
		return fmt.Errorf("failed to load env files: %w", err)
	}
	return nil
}

// ApplyEnv overrides cfg with DSDETECT_* environment variables.
//
// Malformed numeric or boolean values are reported rather than ignored.
func ApplyEnv(cfg *Config) error {
	setString(&cfg.Input, "INPUT")
	setString(&cfg.Infer.ConfigFile, "INFER_CONFIG")
	setString(&cfg.Tracker.LLLibFile, "TRACKER_LL_LIB_FILE")
	setString(&cfg.Tracker.LLConfigFile, "TRACKER_LL_CONFIG_FILE")
	setString(&cfg.Output.CSV.Path, "OUTPUT")
	setString(&cfg.Output.SQLite.Path, "SQLITE_PATH")
	setString(&cfg.Output.MQTT.Broker, "MQTT_BROKER")
	setString(&cfg.Output.MQTT.ClientID, "MQTT_CLIENT_ID")
	setString(&cfg.Output.MQTT.Topic, "MQTT_TOPIC")
	setString(&cfg.Output.MQTT.Encoding, "MQTT_ENCODING")

	ints := []struct {
		dst *int
		key string
	}{
		{&cfg.StreamMux.Width, "MUX_WIDTH"},
		{&cfg.StreamMux.Height, "MUX_HEIGHT"},
		{&cfg.StreamMux.BatchSize, "MUX_BATCH_SIZE"},
		{&cfg.StatsIntervalS, "STATS_INTERVAL_S"},
	}
	for _, i := range ints {
		if err := setInt(i.dst, i.key); err != nil {
			return err
		}
	}

	bools := []struct {
		dst *bool
		key string
	}{
		{&cfg.Tracker.Enabled, "TRACKER_ENABLED"},
		{&cfg.Render.Headless, "HEADLESS"},
		{&cfg.Output.CSV.Header, "CSV_HEADER"},
		{&cfg.Output.CSV.Extended, "CSV_EXTENDED"},
	}
	for _, b := range bools {
		if err := setBool(b.dst, b.key); err != nil {
			return err
		}
	}

	return nil
}

func setString(dst *string, key string) {
	if value := os.Getenv(EnvPrefix + key); value != "" {
		*dst = value
	}
}

func setInt(dst *int, key string) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s%s: invalid integer %q", EnvPrefix, key, value)
	}
	*dst = n
	return nil
}

func setBool(dst *bool, key string) error {
	value := os.Getenv(EnvPrefix + key)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s%s: invalid boolean %q", EnvPrefix, key, value)
	}
	*dst = b
	return nil
}
