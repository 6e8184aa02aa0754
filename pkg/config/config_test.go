package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveEndpoint(t *testing.T) {
	tests := []struct {
		name     string
		endpoint EndpointConfig
		want     string
		wantErr  bool
	}{
		{
			name:     "local development host uses local url",
			endpoint: DefaultConfig().Endpoint,
			want:     "http://127.0.0.1:5000/api/chat",
		},
		{
			name: "local host match ignores case and port",
			endpoint: EndpointConfig{
				BaseURL:    "http://LOCALHOST:8080/",
				LocalURL:   "http://127.0.0.1:5000/api/chat",
				LocalHosts: []string{"localhost"},
			},
			want: "http://127.0.0.1:5000/api/chat",
		},
		{
			name: "deployed host resolves relative path",
			endpoint: EndpointConfig{
				BaseURL:    "https://chat.example.com/widget/",
				Path:       "/api/chat",
				LocalURL:   "http://127.0.0.1:5000/api/chat",
				LocalHosts: []string{"localhost"},
			},
			want: "https://chat.example.com/api/chat",
		},
		{
			name: "empty path defaults",
			endpoint: EndpointConfig{
				BaseURL: "https://chat.example.com",
			},
			want: "https://chat.example.com/api/chat",
		},
		{
			name: "explicit url wins",
			endpoint: EndpointConfig{
				URL:        "https://backend.internal/v2/chat",
				BaseURL:    "http://localhost",
				LocalURL:   "http://127.0.0.1:5000/api/chat",
				LocalHosts: []string{"localhost"},
			},
			want: "https://backend.internal/v2/chat",
		},
		{
			name:     "relative explicit url is rejected",
			endpoint: EndpointConfig{URL: "/api/chat"},
			wantErr:  true,
		},
		{
			name:     "relative base url is rejected",
			endpoint: EndpointConfig{BaseURL: "chat.example.com"},
			wantErr:  true,
		},
		{
			name: "local host without local url",
			endpoint: EndpointConfig{
				BaseURL:    "http://localhost",
				LocalHosts: []string{"localhost"},
			},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.endpoint.Resolve()
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	assert.Equal(t, DefaultConfig().Widget.QuickAsks, cfg.Widget.QuickAsks)
	assert.Equal(t, 120*time.Second, cfg.Timeout())
	assert.Equal(t, "127.0.0.1:18800", cfg.WebChatAddr())
}

func TestLoadConfigFormats(t *testing.T) {
	files := map[string]string{
		"config.json": `{
			"endpoint": {"base_url": "https://chat.example.com", "timeout_seconds": 30},
			"widget": {"title": "Scores", "quick_asks": ["one"]}
		}`,
		"config.yaml": `
endpoint:
  base_url: https://chat.example.com
  timeout_seconds: 30
widget:
  title: Scores
  quick_asks:
    - one
`,
		"config.toml": `
[endpoint]
base_url = "https://chat.example.com"
timeout_seconds = 30

[widget]
title = "Scores"
quick_asks = ["one"]
`,
	}

	for name, content := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, os.WriteFile(path, []byte(content), 0644))

			cfg, err := LoadConfig(path)
			require.NoError(t, err)

			endpoint, err := cfg.ResolveEndpoint()
			require.NoError(t, err)
			assert.Equal(t, "https://chat.example.com/api/chat", endpoint)
			assert.Equal(t, 30*time.Second, cfg.Timeout())
			assert.Equal(t, "Scores", cfg.Widget.Title)
			assert.Equal(t, []string{"one"}, cfg.Widget.QuickAsks)
			// untouched sections keep their defaults
			assert.Equal(t, 18800, cfg.WebChat.Port)
		})
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("PICOCHAT_ENDPOINT_URL", "https://override.example.com/chat")
	t.Setenv("PICOCHAT_WIDGET_QUICK_ASKS", "first, with comma|second")
	t.Setenv("PICOCHAT_ENDPOINT_TIMEOUT_SECONDS", "0")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)

	endpoint, err := cfg.ResolveEndpoint()
	require.NoError(t, err)
	assert.Equal(t, "https://override.example.com/chat", endpoint)
	assert.Equal(t, []string{"first, with comma", "second"}, cfg.Widget.QuickAsks)
	assert.Equal(t, time.Duration(0), cfg.Timeout())
}

func TestLoadConfigFromJSONEnv(t *testing.T) {
	t.Setenv("PICOCHAT_CONFIG_JSON", `{"webchat": {"port": 9000}}`)

	cfg, err := LoadConfig("/nonexistent/config.json")
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.WebChat.Port)
}

func TestLoadConfigInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestSaveConfigRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")
	cfg := DefaultConfig()
	cfg.Widget.Title = "Saved"

	require.NoError(t, SaveConfig(path, cfg))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "Saved", loaded.Widget.Title)
	assert.Equal(t, cfg.Endpoint.LocalHosts, loaded.Endpoint.LocalHosts)
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, "", ExpandHome(""))
	assert.Equal(t, home, ExpandHome("~"))
	assert.Equal(t, filepath.Join(home, ".picochat/config.json"), ExpandHome("~/.picochat/config.json"))
	assert.Equal(t, "/etc/picochat.json", ExpandHome("/etc/picochat.json"))
}
