package tftp

import (
	"encoding/json"
	"net"
	"strconv"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// Duration is a time.Duration that reads and writes JSON strings such as "5s".
type Duration time.Duration

// MarshalJSON implements json.Marshaler
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// TransferLogConfig selects where finished transfers are recorded.
type TransferLogConfig struct {
	Type     string `json:"type"` // "memory" or "bbolt"
	Location string `json:"location"`
}

// Config defines configuration parameters for the Server.
type Config struct {
	Address     string            `json:"address"`
	Root        string            `json:"root"`
	AckTimeout  Duration          `json:"ack_timeout"`
	MaxAttempts int               `json:"max_attempts"`
	TransferLog TransferLogConfig `json:"transfer_log"`
	LogLevel    string            `json:"log_level"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() *Config {
	return &Config{
		Address:     ":" + strconv.Itoa(DefaultPort),
		Root:        ".",
		AckTimeout:  Duration(DefaultAckTimeout),
		MaxAttempts: DefaultMaxAttempts,
		TransferLog: TransferLogConfig{Type: "memory"},
		LogLevel:    "info",
	}
}

// SenderConfig returns the configuration for the server's sessions.
func (c *Config) SenderConfig() SenderConfig {
	return SenderConfig{
		AckTimeout:  time.Duration(c.AckTimeout),
		MaxAttempts: c.MaxAttempts,
	}.withDefaults()
}

// SetPort replaces the port of the listening address.
func (c *Config) SetPort(port int) error {
	host, _, err := net.SplitHostPort(c.Address)
	if err != nil {
		return errors.Wrapf(err, "invalid address %s", c.Address)
	}
	c.Address = net.JoinHostPort(host, strconv.Itoa(port))
	return nil
}

// Validate fills missing fields with defaults, expands paths and checks the result.
func (c *Config) Validate() error {
	def := DefaultConfig()
	if c.Address == "" {
		c.Address = def.Address
	}
	if c.Root == "" {
		c.Root = def.Root
	}
	if c.AckTimeout <= 0 {
		c.AckTimeout = def.AckTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.TransferLog.Type == "" {
		c.TransferLog.Type = def.TransferLog.Type
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}

	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return errors.Wrapf(err, "invalid address %s", c.Address)
	}

	var err error
	if c.Root, err = homedir.Expand(c.Root); err != nil {
		return errors.Wrap(err, "invalid root")
	}
	if c.TransferLog.Location, err = homedir.Expand(c.TransferLog.Location); err != nil {
		return errors.Wrap(err, "invalid transfer log location")
	}

	switch c.TransferLog.Type {
	case "memory":
	case "bbolt":
		if c.TransferLog.Location == "" {
			return errors.New("bbolt transfer log requires a location")
		}
	default:
		return errors.Errorf("unknown transfer log type %s", c.TransferLog.Type)
	}
	return nil
}
