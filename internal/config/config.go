package config

import (
	"os"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultMediaDir       = "data/media"
	DefaultGatewayAPIURL  = "https://api.gupshup.io/sm/api/v1/msg"
	DefaultGatewayMedia   = "https://api.gupshup.io/sm/api/v1/media"
	DefaultBackendTimeout = 15
	DefaultSpeechLanguage = "pt"
	DefaultSpeechVoice    = "alloy"
	DefaultSendRate       = 10
	DefaultSendBurst      = 5
	DefaultTestStatus     = 200
)

type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Backend  BackendConfig  `toml:"backend"`
	Gateway  GatewayConfig  `toml:"gateway"`
	Speech   SpeechConfig   `toml:"speech"`
	Sessions SessionsConfig `toml:"sessions"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr string `toml:"addr" validate:"required"`
	// MediaDir is where synthesized audio artifacts are written; it is
	// served statically under /media.
	MediaDir string `toml:"media_dir" validate:"required"`
	// MediaHome is the public base URL the gateway can reach this bridge
	// on, used to build artifact download links.
	MediaHome string `toml:"media_home" validate:"omitempty,url"`
	// TestStatus overrides the HTTP status of test-mode webhook replies.
	TestStatus int `toml:"test_status" validate:"gte=100,lt=600"`
}

type BackendConfig struct {
	BaseURL string `toml:"base_url" validate:"required,url"`
	Secret  string `toml:"secret" validate:"required"`
	// BotID is the backend-side account id whose activities count as
	// replies; everything else in a conversation poll is discarded.
	BotID          string `toml:"bot_id" validate:"required"`
	TimeoutSeconds int    `toml:"timeout_seconds" validate:"gt=0"`
}

type GatewayConfig struct {
	APIURL   string `toml:"api_url" validate:"required,url"`
	MediaURL string `toml:"media_url" validate:"required,url"`
	APIKey   string `toml:"api_key" validate:"required"`
	// Source is the WhatsApp business number messages are sent from.
	Source string `toml:"source" validate:"required"`
	// AppName is the gateway app used to resolve inbound voice notes.
	AppName   string  `toml:"app_name" validate:"required"`
	SendRate  float64 `toml:"send_rate" validate:"gt=0"`
	SendBurst int     `toml:"send_burst" validate:"gt=0"`
}

type SpeechConfig struct {
	// APIKey empty disables the speech bridge: voice notes fall through
	// to inline audio forwarding and replies stay text-only.
	APIKey   string `toml:"api_key"`
	BaseURL  string `toml:"base_url" validate:"omitempty,url"`
	Language string `toml:"language"`
	Voice    string `toml:"voice"`
}

type SessionsConfig struct {
	// IdleTTL in minutes; zero disables the idle-session sweeper.
	IdleTTLMinutes int    `toml:"idle_ttl_minutes" validate:"gte=0"`
	SweepSchedule  string `toml:"sweep_schedule"`
}

func Load(path string) (Config, error) {
	cfg := Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr:       DefaultHTTPAddr,
			MediaDir:   DefaultMediaDir,
			TestStatus: DefaultTestStatus,
		},
		Backend: BackendConfig{
			TimeoutSeconds: DefaultBackendTimeout,
		},
		Gateway: GatewayConfig{
			APIURL:    DefaultGatewayAPIURL,
			MediaURL:  DefaultGatewayMedia,
			SendRate:  DefaultSendRate,
			SendBurst: DefaultSendBurst,
		},
		Speech: SpeechConfig{
			Language: DefaultSpeechLanguage,
			Voice:    DefaultSpeechVoice,
		},
		Sessions: SessionsConfig{
			SweepSchedule: "@every 10m",
		},
	}

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate checks the loaded config for the fields the bridge cannot run
// without. Load stays lenient so `wabridge version` and friends work with no
// config file present.
func (c Config) Validate() error {
	return validator.New().Struct(c)
}
