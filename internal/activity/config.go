package activity

import (
	"fmt"

	"tally/internal/config"
)

// Type selects where action outcomes are recorded.
type Type string

const (
	NoneBackend   Type = config.ActivityNone
	SQLiteBackend Type = config.ActivitySQLite
	AMQPBackend   Type = config.ActivityAMQP
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is known
func (t Type) IsValid() bool {
	switch t {
	case NoneBackend, SQLiteBackend, AMQPBackend:
		return true
	default:
		return false
	}
}

// Config holds what the factory needs to build a sink.
type Config struct {
	Type Type

	// SQLite journal; also read by the activity panel in amqp mode
	SQLiteDBPath string

	// AMQP publisher
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string
}

// FromAppConfig converts the application config to a sink config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	t := Type(appConfig.ActivityBackend)
	if !t.IsValid() {
		return Config{}, fmt.Errorf("invalid activity backend in config: %s", appConfig.ActivityBackend)
	}

	return Config{
		Type:         t,
		SQLiteDBPath: appConfig.SQLiteDBPath,
		AMQPURL:      appConfig.AMQPURL,
		AMQPExchange: appConfig.AMQPExchange,
		AMQPQueue:    appConfig.AMQPQueue,
	}, nil
}

// Validate validates the sink configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid activity backend: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite activity backend")
		}
	case AMQPBackend:
		if c.AMQPURL == "" || c.AMQPExchange == "" || c.AMQPQueue == "" {
			return fmt.Errorf("AMQP URL, exchange and queue are required for amqp activity backend")
		}
	}
	return nil
}
