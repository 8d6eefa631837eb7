package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Modem    ModemConfig    `mapstructure:"modem"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Delivery DeliveryConfig `mapstructure:"delivery"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	AuthToken    string        `mapstructure:"auth_token"`
}

type StorageConfig struct {
	Driver string       `mapstructure:"driver"`
	SQLite SQLiteConfig `mapstructure:"sqlite"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// ModemConfig describes the CLI-driven modem transport. The send command is
// run with SMS_RECEIVER and SMS_TEXT in its environment; the inbox command
// must print a JSON array of received messages and leave the SIM inbox empty.
type ModemConfig struct {
	SendCommand  string        `mapstructure:"send_command"`
	InboxCommand string        `mapstructure:"inbox_command"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type DispatchConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
}

type DeliveryConfig struct {
	Interval    time.Duration `mapstructure:"interval"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxInFlight int           `mapstructure:"max_in_flight"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load(path string) (*Config, error) {
	if path != "" {
		viper.SetConfigFile(path)
	} else {
		viper.SetConfigName("smsbridge")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/smsbridge")
	}

	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("SMSBRIDGE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 30*time.Second)
	viper.SetDefault("server.write_timeout", 30*time.Second)

	viper.SetDefault("storage.driver", "sqlite")
	viper.SetDefault("storage.sqlite.path", "./data/smsbridge.db")

	viper.SetDefault("modem.send_command", `gammu sendsms TEXT "$SMS_RECEIVER" -text "$SMS_TEXT"`)
	viper.SetDefault("modem.inbox_command", "smsbridge-inbox")
	viper.SetDefault("modem.poll_interval", 1*time.Second)

	viper.SetDefault("dispatch.interval", 1*time.Second)
	viper.SetDefault("dispatch.send_timeout", 30*time.Second)
	viper.SetDefault("dispatch.max_in_flight", 8)

	viper.SetDefault("delivery.interval", 1*time.Second)
	viper.SetDefault("delivery.timeout", 10*time.Second)
	viper.SetDefault("delivery.max_in_flight", 16)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
}
