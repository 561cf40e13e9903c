package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/google/uuid"
)

const (
	defaultHTTPAddr        = ":8080"
	defaultWSAddr          = ":3002"
	defaultSessionGrace    = 60 * time.Second
	defaultRefreshInterval = 2 * time.Second
	defaultConfigDirName   = "browser-bridge"
	defaultConfigFileName  = "config.toml"
)

type Settings struct {
	Path               string
	HTTPAddr           string
	WSAddr             string
	SessionGrace       time.Duration
	DebugToken         string
	TUIBaseURL         string
	TUIRefreshInterval time.Duration
}

type fileConfig struct {
	HTTP httpConfig `toml:"http"`
	WS   wsConfig   `toml:"ws"`
	Auth authConfig `toml:"auth"`
	TUI  tuiConfig  `toml:"tui"`
}

type httpConfig struct {
	Addr         string `toml:"addr"`
	SessionGrace string `toml:"session_grace"`
}

type wsConfig struct {
	Addr string `toml:"addr"`
}

type authConfig struct {
	DebugToken string `toml:"debug_token"`
}

type tuiConfig struct {
	BaseURL         string `toml:"base_url"`
	RefreshInterval string `toml:"refresh_interval"`
}

// LoadOrCreate reads the config file, fills in defaults and a generated
// debug token, and writes the file back when anything was missing.
func LoadOrCreate(path string) (Settings, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Settings{}, err
		}
	}

	cfg := defaultFileConfig()
	exists := false
	if _, err := os.Stat(path); err == nil {
		exists = true
		var onDisk fileConfig
		if _, err := toml.DecodeFile(path, &onDisk); err != nil {
			return Settings{}, fmt.Errorf("decode config %s: %w", path, err)
		}
		mergeFileConfig(&cfg, onDisk)
	} else if !errors.Is(err, os.ErrNotExist) {
		return Settings{}, fmt.Errorf("stat config %s: %w", path, err)
	}

	changed := false
	if strings.TrimSpace(cfg.Auth.DebugToken) == "" {
		cfg.Auth.DebugToken = randomToken()
		changed = true
	}
	if strings.TrimSpace(cfg.HTTP.Addr) == "" {
		cfg.HTTP.Addr = defaultHTTPAddr
		changed = true
	}
	if strings.TrimSpace(cfg.HTTP.SessionGrace) == "" {
		cfg.HTTP.SessionGrace = defaultSessionGrace.String()
		changed = true
	}
	if strings.TrimSpace(cfg.WS.Addr) == "" {
		cfg.WS.Addr = defaultWSAddr
		changed = true
	}
	if strings.TrimSpace(cfg.TUI.BaseURL) == "" {
		cfg.TUI.BaseURL = deriveBaseURL(cfg.HTTP.Addr)
		changed = true
	}
	if strings.TrimSpace(cfg.TUI.RefreshInterval) == "" {
		cfg.TUI.RefreshInterval = defaultRefreshInterval.String()
		changed = true
	}

	if !exists || changed {
		if err := writeConfig(path, cfg); err != nil {
			return Settings{}, err
		}
	}

	return toSettings(path, cfg)
}

// Save writes settings to disk and returns the normalized values loaded back
// from the config file (including defaults and a generated token when needed).
func Save(settings Settings) (Settings, error) {
	path := strings.TrimSpace(settings.Path)
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return Settings{}, err
		}
	}

	cfg := fileConfig{
		HTTP: httpConfig{
			Addr:         settings.HTTPAddr,
			SessionGrace: settings.SessionGrace.String(),
		},
		WS: wsConfig{
			Addr: settings.WSAddr,
		},
		Auth: authConfig{
			DebugToken: settings.DebugToken,
		},
		TUI: tuiConfig{
			BaseURL:         settings.TUIBaseURL,
			RefreshInterval: settings.TUIRefreshInterval.String(),
		},
	}

	if err := writeConfig(path, cfg); err != nil {
		return Settings{}, err
	}
	return LoadOrCreate(path)
}

func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", defaultConfigDirName, defaultConfigFileName), nil
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		HTTP: httpConfig{
			Addr:         defaultHTTPAddr,
			SessionGrace: defaultSessionGrace.String(),
		},
		WS: wsConfig{
			Addr: defaultWSAddr,
		},
		TUI: tuiConfig{
			RefreshInterval: defaultRefreshInterval.String(),
		},
	}
}

func mergeFileConfig(dst *fileConfig, src fileConfig) {
	if v := strings.TrimSpace(src.HTTP.Addr); v != "" {
		dst.HTTP.Addr = v
	}
	if v := strings.TrimSpace(src.HTTP.SessionGrace); v != "" {
		dst.HTTP.SessionGrace = v
	}
	if v := strings.TrimSpace(src.WS.Addr); v != "" {
		dst.WS.Addr = v
	}
	if v := strings.TrimSpace(src.Auth.DebugToken); v != "" {
		dst.Auth.DebugToken = v
	}
	if v := strings.TrimSpace(src.TUI.BaseURL); v != "" {
		dst.TUI.BaseURL = v
	}
	if v := strings.TrimSpace(src.TUI.RefreshInterval); v != "" {
		dst.TUI.RefreshInterval = v
	}
}

func toSettings(path string, cfg fileConfig) (Settings, error) {
	grace, err := time.ParseDuration(cfg.HTTP.SessionGrace)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid http.session_grace duration: %w", err)
	}
	refresh, err := time.ParseDuration(cfg.TUI.RefreshInterval)
	if err != nil {
		return Settings{}, fmt.Errorf("invalid tui.refresh_interval duration: %w", err)
	}
	return Settings{
		Path:               path,
		HTTPAddr:           cfg.HTTP.Addr,
		WSAddr:             cfg.WS.Addr,
		SessionGrace:       grace,
		DebugToken:         cfg.Auth.DebugToken,
		TUIBaseURL:         cfg.TUI.BaseURL,
		TUIRefreshInterval: refresh,
	}, nil
}

func writeConfig(path string, cfg fileConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("open config file: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString("# browser-bridge config for bridged, bridgectl and bridge-tui\n\n"); err != nil {
		return fmt.Errorf("write config header: %w", err)
	}
	if err := toml.NewEncoder(file).Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// deriveBaseURL turns a listen address into a URL the local tools can dial.
func deriveBaseURL(addr string) string {
	host := strings.TrimSpace(addr)
	if host == "" {
		host = defaultHTTPAddr
	}
	if strings.Contains(host, "://") {
		return strings.TrimRight(host, "/")
	}
	if strings.HasPrefix(host, ":") {
		return "http://127.0.0.1" + host
	}
	h, p, err := net.SplitHostPort(host)
	if err == nil {
		if h == "" || h == "0.0.0.0" || h == "::" || h == "[::]" {
			h = "127.0.0.1"
		}
		return "http://" + net.JoinHostPort(h, p)
	}
	if strings.Contains(host, ":") {
		return "http://" + host
	}
	return "http://" + net.JoinHostPort(host, "8080")
}

func randomToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
