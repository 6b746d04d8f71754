// SPDX-License-Identifier: MIT
//
// Copyright © 2018 Kent Gibson <warthog618@gmail.com>.

package main

import (
	"flag"
	"os"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/warthog618/sim7080/queue"
	"github.com/warthog618/sim7080/sim7080"
)

// Config holds the application configuration.
type Config struct {
	Serial  SerialConfig  `yaml:"serial"`
	Power   PowerConfig   `yaml:"power"`
	Network NetworkConfig `yaml:"network"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	NTP     NTPConfig     `yaml:"ntp"`
	Queue   QueueConfig   `yaml:"queue"`
	Metrics MetricsConfig `yaml:"metrics"`
	Log     LogConfig     `yaml:"log"`
}

// SerialConfig describes the link to the modem.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
	// Timeout is the default time to wait for each response line.
	Timeout time.Duration `yaml:"timeout"`
	// Trace logs the raw serial traffic when running verbose.
	Trace bool `yaml:"trace"`
}

// PowerConfig describes the power key GPIO.
type PowerConfig struct {
	// Driver is "gpiocdev", "rpio" or "none".
	Driver string `yaml:"driver"`
	Chip   string `yaml:"chip"`
	Pin    int    `yaml:"pin"`
}

// NetworkConfig describes the cellular network.
type NetworkConfig struct {
	// APN is empty to use the APN provided by the network.
	APN string `yaml:"apn"`
}

// MQTTConfig describes the broker and the topic published to.
type MQTTConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	ClientID   string `yaml:"client_id"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	QoS        int    `yaml:"qos"`
	CACert     string `yaml:"ca_cert"`
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	Topic      string `yaml:"topic"`
}

// Session returns the MQTT session described by the config.
func (c MQTTConfig) Session() sim7080.Session {
	return sim7080.Session{
		Host:       c.Host,
		Port:       c.Port,
		ClientID:   c.ClientID,
		Username:   c.Username,
		Password:   c.Password,
		QoS:        c.QoS,
		CACert:     c.CACert,
		ClientCert: c.ClientCert,
		ClientKey:  c.ClientKey,
	}
}

// NTPConfig describes the time server.
type NTPConfig struct {
	Server string `yaml:"server"`
}

// QueueConfig describes the outbound queue drained by serve.
type QueueConfig struct {
	// Driver is "redis" or "sqlite".
	Driver     string `yaml:"driver"`
	Name       string `yaml:"name"`
	RedisAddr  string `yaml:"redis_addr"`
	SQLitePath string `yaml:"sqlite_path"`
	// Idle is the period between polls of an empty queue.
	Idle time.Duration `yaml:"idle"`
}

// Queue returns the queue backend described by the config.
func (c QueueConfig) Queue() queue.Config {
	return queue.Config{
		Driver:     c.Driver,
		Name:       c.Name,
		RedisAddr:  c.RedisAddr,
		SQLitePath: c.SQLitePath,
	}
}

// MetricsConfig describes the health and metrics listener.
type MetricsConfig struct {
	// Addr is empty to disable the listener.
	Addr string `yaml:"addr"`
}

// LogConfig describes the logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ConfigOption is a function that modifies a Config.
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order,
// and validates the result.
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the config values are usable.
func (c *Config) Validate() error {
	if c.Serial.Baud <= 0 {
		return errors.Errorf("invalid serial baud %d", c.Serial.Baud)
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		return errors.Errorf("invalid mqtt qos %d", c.MQTT.QoS)
	}
	return nil
}

// WithDefaults applies default configuration values.
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.Serial = SerialConfig{
			Port:    "/dev/ttyS0",
			Baud:    115200,
			Timeout: time.Second,
		}
		c.Power = PowerConfig{
			Driver: "gpiocdev",
			Chip:   "gpiochip0",
			Pin:    4,
		}
		c.MQTT.Port = 8883
		c.MQTT.QoS = 1
		c.NTP.Server = "pool.ntp.org"
		c.Queue = QueueConfig{
			Driver:     "redis",
			Name:       "timetrack_events",
			RedisAddr:  "localhost:6379",
			SQLitePath: "/var/lib/sim7080/queue.db",
			Idle:       10 * time.Second,
		}
		c.Log.Level = "info"
		return nil
	}
}

// WithFile loads configuration from a YAML file.
//
// Keys missing from the file retain their current values. A missing file is
// only an error if the file is required.
func WithFile(path string, required bool) ConfigOption {
	return func(c *Config) error {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) && !required {
				return nil
			}
			return errors.Wrap(err, "read config")
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			return errors.Wrapf(err, "parse config %s", path)
		}
		return nil
	}
}

// WithEnv loads configuration from environment variables.
func WithEnv() ConfigOption {
	return func(c *Config) error {
		strs := []struct {
			name string
			val  *string
		}{
			{"SERIAL_PORT", &c.Serial.Port},
			{"POWER_DRIVER", &c.Power.Driver},
			{"MOBILE_APN", &c.Network.APN},
			{"MQTT_HOST", &c.MQTT.Host},
			{"MQTT_CLIENTID", &c.MQTT.ClientID},
			{"MQTT_USER", &c.MQTT.Username},
			{"MQTT_PASSWORD", &c.MQTT.Password},
			{"MQTT_TOPIC", &c.MQTT.Topic},
			{"NTP_SERVER", &c.NTP.Server},
			{"QUEUE_DRIVER", &c.Queue.Driver},
			{"REDIS_ADDR", &c.Queue.RedisAddr},
			{"METRICS_ADDR", &c.Metrics.Addr},
			{"LOG_LEVEL", &c.Log.Level},
		}
		for _, s := range strs {
			if v := os.Getenv(s.name); v != "" {
				*s.val = v
			}
		}
		ints := []struct {
			name string
			val  *int
		}{
			{"SERIAL_BAUD", &c.Serial.Baud},
			{"MQTT_PORT", &c.MQTT.Port},
			{"MQTT_QOS", &c.MQTT.QoS},
		}
		for _, i := range ints {
			v := os.Getenv(i.name)
			if v == "" {
				continue
			}
			n, err := strconv.Atoi(v)
			if err != nil {
				return errors.Wrapf(err, "environment %s", i.name)
			}
			*i.val = n
		}
		return nil
	}
}

// WithFlags loads configuration from command-line flags.
//
// Only flags explicitly set on the command line are applied.
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		var err error
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "port":
				c.Serial.Port = f.Value.String()
			case "baud":
				b, perr := strconv.Atoi(f.Value.String())
				if perr != nil {
					err = errors.Wrap(perr, "flag baud")
					return
				}
				c.Serial.Baud = b
			case "apn":
				c.Network.APN = f.Value.String()
			case "log-level":
				c.Log.Level = f.Value.String()
			}
		})
		return err
	}
}
