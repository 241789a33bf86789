package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConnectorType identifies which transport backend should be used.
type ConnectorType string

// SinkType identifies which transcript sink records the session.
type SinkType string

const (
	ConnectorTCP    ConnectorType = "tcp"
	ConnectorSerial ConnectorType = "serial"
	ConnectorNull   ConnectorType = "null"

	SinkConsole SinkType = "console"
	SinkFile    SinkType = "file"
	SinkSQLite  SinkType = "sqlite"

	DefaultHost       = "127.0.0.1"
	DefaultPort       = 8080
	DefaultSerialBaud = 115200
)

// LoggingConfig defines runtime diagnostic logging behavior.
type LoggingConfig struct {
	Level     string `json:"level"`
	LogToFile bool   `json:"log_to_file"`
}

// ConnectionConfig contains connector-specific connection parameters.
type ConnectionConfig struct {
	Connector  ConnectorType `json:"connector"`
	Host       string        `json:"host"`
	Port       int           `json:"port"`
	SerialPort string        `json:"serial_port"`
	SerialBaud int           `json:"serial_baud"`
}

// SessionConfig stores how the driver treats received and typed data.
type SessionConfig struct {
	SplitLines      bool `json:"split_lines"`
	FlushBeforeWait bool `json:"flush_before_wait"`
	CRLF            bool `json:"crlf"`
	IgnoreBlank     bool `json:"ignore_blank"`
}

// TranscriptConfig selects the transcript sink and its destination.
type TranscriptConfig struct {
	Sink   SinkType `json:"sink"`
	Prefix string   `json:"prefix"`
	Path   string   `json:"path"`
}

// AppConfig is the root persisted application configuration.
type AppConfig struct {
	Connection ConnectionConfig `json:"connection"`
	Session    SessionConfig    `json:"session"`
	Transcript TranscriptConfig `json:"transcript"`
	Logging    LoggingConfig    `json:"logging"`
}

func Default() AppConfig {
	return AppConfig{
		Connection: ConnectionConfig{
			Connector:  ConnectorTCP,
			Host:       DefaultHost,
			Port:       DefaultPort,
			SerialPort: "",
			SerialBaud: DefaultSerialBaud,
		},
		Session: SessionConfig{},
		Transcript: TranscriptConfig{
			Sink:   SinkConsole,
			Prefix: "log/cui",
			Path:   "log/cui.db",
		},
		Logging: LoggingConfig{
			Level:     "info",
			LogToFile: false,
		},
	}
}

func Load(path string) (AppConfig, error) {
	cfg := Default()
	cleanPath := filepath.Clean(path)
	// #nosec G304 -- path is supplied by the operator on the command line.
	raw, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}

		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	if err := json.Unmarshal(raw, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("decode config json: %w", err)
	}

	cfg.FillMissingDefaults()

	return cfg, nil
}

func (c *AppConfig) FillMissingDefaults() {
	if c.Connection.Connector == "" {
		c.Connection.Connector = ConnectorTCP
	}
	if c.Connection.Host == "" {
		c.Connection.Host = DefaultHost
	}
	if c.Connection.Port <= 0 {
		c.Connection.Port = DefaultPort
	}
	if c.Connection.SerialBaud <= 0 {
		c.Connection.SerialBaud = DefaultSerialBaud
	}
	if c.Transcript.Sink == "" {
		c.Transcript.Sink = SinkConsole
	}
	if c.Transcript.Prefix == "" {
		c.Transcript.Prefix = "log/cui"
	}
	if c.Transcript.Path == "" {
		c.Transcript.Path = "log/cui.db"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

func (c AppConfig) Validate() error {
	switch c.Connection.Connector {
	case ConnectorTCP:
		if strings.TrimSpace(c.Connection.Host) == "" {
			return errors.New("tcp host is required")
		}
		if c.Connection.Port <= 0 || c.Connection.Port > 65535 {
			return fmt.Errorf("tcp port out of range: %d", c.Connection.Port)
		}
	case ConnectorSerial:
		if strings.TrimSpace(c.Connection.SerialPort) == "" {
			return errors.New("serial port is required")
		}
		if c.Connection.SerialBaud <= 0 {
			return errors.New("serial baud must be positive")
		}
	case ConnectorNull:
	default:
		return fmt.Errorf("unknown connector: %s", c.Connection.Connector)
	}

	switch c.Transcript.Sink {
	case SinkConsole:
	case SinkFile:
		if strings.TrimSpace(c.Transcript.Prefix) == "" {
			return errors.New("transcript prefix is required")
		}
	case SinkSQLite:
		if strings.TrimSpace(c.Transcript.Path) == "" {
			return errors.New("transcript path is required")
		}
	default:
		return fmt.Errorf("unknown transcript sink: %s", c.Transcript.Sink)
	}

	return nil
}

func Save(path string, cfg AppConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, raw, 0o600); err != nil {
		return fmt.Errorf("write temp config: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp config: %w", err)
	}

	return nil
}
