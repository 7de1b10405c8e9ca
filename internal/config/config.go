// Package config loads client settings from a JSON or TOML file and RAYVTT_*
// environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/erilali/rayvtt/internal/conn"
	"github.com/erilali/rayvtt/internal/identity"
	"github.com/erilali/rayvtt/internal/journal"
	"github.com/erilali/rayvtt/internal/logger"
)

const EnvPrefix = "RAYVTT_"

// Duration reads "5s"-style strings from every config source.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", text, err)
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

type Heartbeat struct {
	Interval Duration `json:"interval" toml:"interval" env:"INTERVAL"`
	Timeout  Duration `json:"timeout" toml:"timeout" env:"TIMEOUT"`
}

type Backoff struct {
	Initial Duration `json:"initial" toml:"initial" env:"INITIAL"`
	Max     Duration `json:"max" toml:"max" env:"MAX"`
}

type Config struct {
	Endpoint         string           `json:"endpoint" toml:"endpoint" env:"ENDPOINT"`
	Namespace        string           `json:"namespace" toml:"namespace" env:"NAMESPACE"`
	DataDir          string           `json:"data_dir" toml:"data_dir" env:"DATA_DIR"`
	Heartbeat        Heartbeat        `json:"heartbeat" toml:"heartbeat" envPrefix:"HEARTBEAT_"`
	Backoff          Backoff          `json:"backoff" toml:"backoff" envPrefix:"BACKOFF_"`
	HandshakeTimeout Duration         `json:"handshake_timeout" toml:"handshake_timeout" env:"HANDSHAKE_TIMEOUT"`
	WriteTimeout     Duration         `json:"write_timeout" toml:"write_timeout" env:"WRITE_TIMEOUT"`
	NATSURL          string           `json:"nats_url" toml:"nats_url" env:"NATS_URL"`
	JournalSubject   string           `json:"journal_subject" toml:"journal_subject" env:"JOURNAL_SUBJECT"`
	StatusAddr       string           `json:"status_addr" toml:"status_addr" env:"STATUS_ADDR"`
	Log              logger.LogConfig `json:"log" toml:"log"`
}

func Default() Config {
	c := conn.DefaultConfig()
	return Config{
		Endpoint:         "ws://localhost:8080",
		Namespace:        identity.DefaultNamespace,
		DataDir:          defaultDataDir(),
		Heartbeat:        Heartbeat{Interval: Duration(c.HeartbeatInterval), Timeout: Duration(c.PongTimeout)},
		Backoff:          Backoff{Initial: Duration(c.BackoffFloor), Max: Duration(c.BackoffCap)},
		HandshakeTimeout: Duration(c.HandshakeTimeout),
		WriteTimeout:     Duration(c.WriteTimeout),
		JournalSubject:   journal.DefaultSubjectPrefix,
		Log:              logger.DefaultLogConfig(),
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "rayvtt")
	}
	return ".rayvtt"
}

// Load returns defaults overlaid with the file at path (if it exists) and then
// the environment. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

func decodeFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil
			}
			return fmt.Errorf("load config %s: %w", path, err)
		}
		return nil
	default:
		file, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return fmt.Errorf("load config %s: %w", path, err)
		}
		return nil
	}
}

// Validate rejects settings the connection manager cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Endpoint) == "" {
		return errors.New("config: endpoint is required")
	}
	if c.Backoff.Initial < 0 || c.Backoff.Max < 0 || c.Heartbeat.Interval < 0 || c.Heartbeat.Timeout < 0 {
		return errors.New("config: durations must not be negative")
	}
	if c.Backoff.Max != 0 && c.Backoff.Initial > c.Backoff.Max {
		return fmt.Errorf("config: backoff initial %s exceeds max %s", c.Backoff.Initial.Std(), c.Backoff.Max.Std())
	}
	return nil
}

// Conn converts the timing settings for the connection manager.
func (c Config) Conn() conn.Config {
	return conn.Config{
		HeartbeatInterval: c.Heartbeat.Interval.Std(),
		PongTimeout:       c.Heartbeat.Timeout.Std(),
		BackoffFloor:      c.Backoff.Initial.Std(),
		BackoffCap:        c.Backoff.Max.Std(),
		HandshakeTimeout:  c.HandshakeTimeout.Std(),
		WriteTimeout:      c.WriteTimeout.Std(),
	}
}
