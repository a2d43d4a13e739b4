package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KorensAI/openclaw-mission-control/gateway"
)

// dashboard defaults target the local daemon on its standard loopback port
const (
	DefaultGatewayUrl = "ws://127.0.0.1:18789/ws"
	DefaultApiUrl     = "http://127.0.0.1:18789"
)

// Duration decodes yaml duration strings ("15s", "500ms").
type Duration time.Duration

func (self *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*self = Duration(d)
	return nil
}

type ReconnectConfig struct {
	Base        Duration `yaml:"base"`
	Cap         Duration `yaml:"cap"`
	JitterMax   Duration `yaml:"jitter_max"`
	MaxAttempts int      `yaml:"max_attempts"`
}

type HeartbeatConfig struct {
	Interval Duration `yaml:"interval"`
	Timeout  Duration `yaml:"timeout"`
}

type Config struct {
	GatewayUrl string `yaml:"gateway_url"`
	ApiUrl     string `yaml:"api_url"`
	AuthToken  string `yaml:"auth_token"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
}

func DefaultConfig() *Config {
	return &Config{
		GatewayUrl: DefaultGatewayUrl,
		ApiUrl:     DefaultApiUrl,
	}
}

// DefaultPath is ~/.openclaw/mission-control.yml, next to the daemon's own
// configuration.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".openclaw", "mission-control.yml")
}

// LoadConfig reads the yaml config at path. A missing file is not an
// error; the defaults apply.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	configBytes, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return config, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(configBytes, config); err != nil {
		return nil, err
	}
	if config.GatewayUrl == "" {
		config.GatewayUrl = DefaultGatewayUrl
	}
	if config.ApiUrl == "" {
		config.ApiUrl = DefaultApiUrl
	}
	return config, nil
}

// ConnectionSettings maps the config onto the gateway settings, keeping the
// defaults for anything unset.
func (self *Config) ConnectionSettings() *gateway.ConnectionSettings {
	settings := gateway.DefaultConnectionSettings()
	if 0 < self.Reconnect.Base {
		settings.ReconnectBase = time.Duration(self.Reconnect.Base)
	}
	if 0 < self.Reconnect.Cap {
		settings.ReconnectCap = time.Duration(self.Reconnect.Cap)
	}
	if 0 < self.Reconnect.JitterMax {
		settings.ReconnectJitterMax = time.Duration(self.Reconnect.JitterMax)
	}
	if 0 < self.Reconnect.MaxAttempts {
		settings.MaxReconnectAttempts = self.Reconnect.MaxAttempts
	}
	if 0 < self.Heartbeat.Interval {
		settings.HeartbeatInterval = time.Duration(self.Heartbeat.Interval)
	}
	if 0 < self.Heartbeat.Timeout {
		settings.HeartbeatTimeout = time.Duration(self.Heartbeat.Timeout)
	}
	return settings
}
