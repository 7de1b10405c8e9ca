package conn

import "time"

const (
	defaultHeartbeatInterval = 5 * time.Second
	defaultPongTimeout       = 10 * time.Second
	defaultBackoffFloor      = 1 * time.Second
	defaultBackoffCap        = 10 * time.Second
	defaultHandshakeTimeout  = 10 * time.Second
	defaultWriteTimeout      = 10 * time.Second
	defaultReadLimit         = 64 * 1024
)

// Config holds the reconnect and liveness timings.
type Config struct {
	HeartbeatInterval time.Duration
	PongTimeout       time.Duration
	BackoffFloor      time.Duration
	BackoffCap        time.Duration
	HandshakeTimeout  time.Duration
	WriteTimeout      time.Duration
	ReadLimit         int64
}

func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: defaultHeartbeatInterval,
		PongTimeout:       defaultPongTimeout,
		BackoffFloor:      defaultBackoffFloor,
		BackoffCap:        defaultBackoffCap,
		HandshakeTimeout:  defaultHandshakeTimeout,
		WriteTimeout:      defaultWriteTimeout,
		ReadLimit:         defaultReadLimit,
	}
}

// withDefaults fills zero fields so a partially populated Config stays usable.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.BackoffFloor <= 0 {
		c.BackoffFloor = d.BackoffFloor
	}
	if c.BackoffCap < c.BackoffFloor {
		c.BackoffCap = c.BackoffFloor
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = d.HandshakeTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = d.ReadLimit
	}
	return c
}

// nextBackoff doubles delay up to ceiling.
func nextBackoff(delay, ceiling time.Duration) time.Duration {
	delay *= 2
	if delay > ceiling {
		return ceiling
	}
	return delay
}
