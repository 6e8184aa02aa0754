package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

const DefaultConfigPath = "~/.picochat/config.json"

type Config struct {
	Endpoint EndpointConfig `json:"endpoint" yaml:"endpoint" toml:"endpoint"`
	Widget   WidgetConfig   `json:"widget" yaml:"widget" toml:"widget"`
	WebChat  WebChatConfig  `json:"webchat" yaml:"webchat" toml:"webchat"`
	Log      LogConfig      `json:"log" yaml:"log" toml:"log"`
	mu       sync.RWMutex
}

// EndpointConfig locates the answering backend. URL, when set, is used as is;
// otherwise the endpoint is derived from BaseURL once at startup.
type EndpointConfig struct {
	URL            string   `json:"url,omitempty" yaml:"url,omitempty" toml:"url,omitempty" env:"PICOCHAT_ENDPOINT_URL"`
	BaseURL        string   `json:"base_url" yaml:"base_url" toml:"base_url" env:"PICOCHAT_ENDPOINT_BASE_URL"`
	Path           string   `json:"path" yaml:"path" toml:"path" env:"PICOCHAT_ENDPOINT_PATH"`
	LocalURL       string   `json:"local_url" yaml:"local_url" toml:"local_url" env:"PICOCHAT_ENDPOINT_LOCAL_URL"`
	LocalHosts     []string `json:"local_hosts" yaml:"local_hosts" toml:"local_hosts" env:"PICOCHAT_ENDPOINT_LOCAL_HOSTS"`
	TimeoutSeconds int      `json:"timeout_seconds" yaml:"timeout_seconds" toml:"timeout_seconds" env:"PICOCHAT_ENDPOINT_TIMEOUT_SECONDS"` // 0 disables the per-turn limit
}

type WidgetConfig struct {
	Title     string   `json:"title" yaml:"title" toml:"title" env:"PICOCHAT_WIDGET_TITLE"`
	QuickAsks []string `json:"quick_asks" yaml:"quick_asks" toml:"quick_asks" env:"PICOCHAT_WIDGET_QUICK_ASKS" envSeparator:"|"`
}

type WebChatConfig struct {
	Host   string `json:"host" yaml:"host" toml:"host" env:"PICOCHAT_WEBCHAT_HOST"`
	Port   int    `json:"port" yaml:"port" toml:"port" env:"PICOCHAT_WEBCHAT_PORT"`
	ShowQR bool   `json:"show_qr" yaml:"show_qr" toml:"show_qr" env:"PICOCHAT_WEBCHAT_SHOW_QR"`
}

type LogConfig struct {
	Level string `json:"level" yaml:"level" toml:"level" env:"PICOCHAT_LOG_LEVEL"`
	JSON  bool   `json:"json" yaml:"json" toml:"json" env:"PICOCHAT_LOG_JSON"`
	File  string `json:"file,omitempty" yaml:"file,omitempty" toml:"file,omitempty" env:"PICOCHAT_LOG_FILE"`
}

func DefaultConfig() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			BaseURL:        "http://localhost",
			Path:           "/api/chat",
			LocalURL:       "http://127.0.0.1:5000/api/chat",
			LocalHosts:     []string{"localhost"},
			TimeoutSeconds: 120,
		},
		Widget: WidgetConfig{
			Title: "Match Assistant",
			QuickAsks: []string{
				"Alpha FC vs Beta United score",
				"Who is the top scorer?",
				"What is Alpha FC ranking?",
			},
		},
		WebChat: WebChatConfig{
			Host: "127.0.0.1",
			Port: 18800,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	// Support full config from env var (for containers / serverless)
	if cfgJSON := os.Getenv("PICOCHAT_CONFIG_JSON"); cfgJSON != "" {
		if err := json.Unmarshal([]byte(cfgJSON), cfg); err != nil {
			return nil, fmt.Errorf("parsing PICOCHAT_CONFIG_JSON: %w", err)
		}
		if err := env.Parse(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	path = ExpandHome(path)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	case ".toml":
		_, err := toml.Decode(string(data), cfg)
		return err
	default:
		return json.Unmarshal(data, cfg)
	}
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	path = ExpandHome(path)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ResolveEndpoint returns the absolute URL turns are posted to. Local
// development hosts use LocalURL; any other host gets Path resolved against
// BaseURL.
func (c *Config) ResolveEndpoint() (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Endpoint.Resolve()
}

func (e EndpointConfig) Resolve() (string, error) {
	if e.URL != "" {
		u, err := url.Parse(e.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return "", fmt.Errorf("endpoint url %q must be absolute", e.URL)
		}
		return e.URL, nil
	}

	base, err := url.Parse(e.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("endpoint base_url %q must be absolute", e.BaseURL)
	}

	host := strings.ToLower(base.Hostname())
	for _, local := range e.LocalHosts {
		if host == strings.ToLower(strings.TrimSpace(local)) {
			if e.LocalURL == "" {
				return "", fmt.Errorf("endpoint local_url is required for local host %q", host)
			}
			return e.LocalURL, nil
		}
	}

	path := e.Path
	if path == "" {
		path = "/api/chat"
	}
	rel, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("endpoint path %q: %w", path, err)
	}
	return base.ResolveReference(rel).String(), nil
}

func (c *Config) Timeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Endpoint.TimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Endpoint.TimeoutSeconds) * time.Second
}

func (c *Config) WebChatAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.WebChat.Host, c.WebChat.Port)
}

func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
