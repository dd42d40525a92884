package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/rs/zerolog/log"
	"gopkg.in/ini.v1"

	"github.com/taxdesk/taxdesk/internal/constants"
)

// Config is the client configuration, loaded from an INI file and
// overridden by environment variables and command-line flags.
//
// INI format:
//
//	[portal]
//	api_url = https://portal.taxdesk.app
//	token = <bearer token>
//	client_id = 1234
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 0
//	user =
//	no_proxy = localhost,127.0.0.1
//	warmup = false
//
//	[upload]
//	workers = 3
//	max_retries = 3
//	max_file_size_mb = 50
//	preview_dir =
type Config struct {
	// Portal connection
	APIBaseURL string
	Token      string
	ClientID   string

	// Proxy settings
	ProxyMode     string // "no-proxy", "system", "basic", "ntlm"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // never persisted; prompted at runtime
	NoProxy       string // Comma-separated list of hosts to bypass proxy
	ProxyWarmup   bool

	// Upload staging
	UploadWorkers int
	MaxRetries    int
	MaxFileSizeMB int
	PreviewDir    string
}

// Proxy modes
const (
	ProxyModeNone   = "no-proxy"
	ProxyModeSystem = "system"
	ProxyModeBasic  = "basic"
	ProxyModeNTLM   = "ntlm"
)

// Environment variables consulted by ApplyEnv.
const (
	EnvAPIURL    = "TAXDESK_API_URL"
	EnvToken     = "TAXDESK_TOKEN"
	EnvClientID  = "TAXDESK_CLIENT_ID"
	EnvProxyMode = "TAXDESK_PROXY_MODE"
)

// Connection errors
var (
	ErrMissingAPIURL = errors.New("api_url is required")
	ErrMissingToken  = errors.New("token is required (set it with 'taxdesk config init' or TAXDESK_TOKEN)")
)

// NewConfig returns a config populated with defaults.
func NewConfig() *Config {
	return &Config{
		APIBaseURL:    constants.DefaultAPIBaseURL,
		ProxyMode:     ProxyModeNone,
		UploadWorkers: constants.DefaultUploadWorkers,
		MaxRetries:    constants.DefaultUploadMaxRetries,
		MaxFileSizeMB: constants.DefaultMaxFileSizeMB,
	}
}

// LoadConfig loads configuration from an INI file.
// If the file doesn't exist, returns a config with default values and no error.
// If the file exists but is invalid, returns an error.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	iniFile, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	portal := iniFile.Section("portal")
	cfg.APIBaseURL = portal.Key("api_url").MustString(cfg.APIBaseURL)
	cfg.Token = portal.Key("token").String()
	cfg.ClientID = portal.Key("client_id").String()

	proxy := iniFile.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(0)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()
	cfg.ProxyWarmup = proxy.Key("warmup").MustBool(false)
	if proxy.HasKey("password") && proxy.Key("password").String() != "" {
		// SECURITY: proxy passwords are entered at runtime via secure prompt
		log.Warn().Str("path", path).Msg("proxy password in config file is ignored - you will be prompted instead")
	}

	upload := iniFile.Section("upload")
	cfg.UploadWorkers = upload.Key("workers").MustInt(cfg.UploadWorkers)
	cfg.MaxRetries = upload.Key("max_retries").MustInt(cfg.MaxRetries)
	cfg.MaxFileSizeMB = upload.Key("max_file_size_mb").MustInt(cfg.MaxFileSizeMB)
	cfg.PreviewDir = upload.Key("preview_dir").String()

	return cfg, nil
}

// SaveConfig saves configuration to an INI file.
// Creates parent directories if they don't exist.
// The token is stored in the file - the file is written with 0600 permissions.
func SaveConfig(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultConfigPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	iniFile := ini.Empty()

	portal, err := iniFile.NewSection("portal")
	if err != nil {
		return fmt.Errorf("failed to create portal section: %w", err)
	}
	portal.Key("api_url").SetValue(cfg.APIBaseURL)
	portal.Key("token").SetValue(cfg.Token)
	portal.Key("client_id").SetValue(cfg.ClientID)

	// proxy password intentionally omitted
	proxy, err := iniFile.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.ProxyMode)
	proxy.Key("host").SetValue(cfg.ProxyHost)
	proxy.Key("port").SetValue(strconv.Itoa(cfg.ProxyPort))
	proxy.Key("user").SetValue(cfg.ProxyUser)
	proxy.Key("no_proxy").SetValue(cfg.NoProxy)
	proxy.Key("warmup").SetValue(strconv.FormatBool(cfg.ProxyWarmup))

	upload, err := iniFile.NewSection("upload")
	if err != nil {
		return fmt.Errorf("failed to create upload section: %w", err)
	}
	upload.Key("workers").SetValue(strconv.Itoa(cfg.UploadWorkers))
	upload.Key("max_retries").SetValue(strconv.Itoa(cfg.MaxRetries))
	upload.Key("max_file_size_mb").SetValue(strconv.Itoa(cfg.MaxFileSizeMB))
	upload.Key("preview_dir").SetValue(cfg.PreviewDir)

	// Use temporary file + rename for atomicity
	tmpPath := path + ".tmp"
	if err := iniFile.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set config permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config: %w", err)
	}

	return nil
}

// ApplyEnv overrides file values with TAXDESK_* environment variables.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvAPIURL); v != "" {
		c.APIBaseURL = v
	}
	if v := os.Getenv(EnvToken); v != "" {
		c.Token = v
	}
	if v := os.Getenv(EnvClientID); v != "" {
		c.ClientID = v
	}
	if v := os.Getenv(EnvProxyMode); v != "" {
		c.ProxyMode = v
	}
	if envProxy := os.Getenv("HTTPS_PROXY"); envProxy != "" && c.ProxyHost == "" {
		c.parseProxyURL(envProxy)
	}
	c.normalize()
}

// MergeWithFlags merges config with command-line flags.
// Priority: flags > environment > config file > defaults
func (c *Config) MergeWithFlags(token, apiBaseURL, clientID, proxyMode, proxyHost string, proxyPort int) {
	if token != "" {
		c.Token = token
	}
	if apiBaseURL != "" {
		c.APIBaseURL = apiBaseURL
	}
	if clientID != "" {
		c.ClientID = clientID
	}
	if proxyMode != "" {
		c.ProxyMode = proxyMode
	}
	if proxyHost != "" {
		c.ProxyHost = proxyHost
	}
	if proxyPort > 0 {
		c.ProxyPort = proxyPort
	}
	c.normalize()
}

func (c *Config) normalize() {
	c.APIBaseURL = strings.TrimRight(strings.TrimSpace(c.APIBaseURL), "/")
	if c.APIBaseURL != "" && !strings.HasPrefix(c.APIBaseURL, "http") {
		c.APIBaseURL = "https://" + c.APIBaseURL
	}
	c.ProxyMode = strings.ToLower(strings.TrimSpace(c.ProxyMode))
	if c.ProxyMode == "" {
		c.ProxyMode = ProxyModeNone
	}
}

// parseProxyURL parses a proxy URL from environment variable
func (c *Config) parseProxyURL(proxyURL string) {
	proxyURL = strings.TrimPrefix(proxyURL, "http://")
	proxyURL = strings.TrimPrefix(proxyURL, "https://")
	proxyURL = strings.TrimSuffix(proxyURL, "/")

	parts := strings.Split(proxyURL, ":")
	if len(parts) >= 1 {
		c.ProxyHost = parts[0]
	}
	if len(parts) >= 2 {
		if port, err := strconv.Atoi(parts[1]); err == nil {
			c.ProxyPort = port
		}
	}
	if c.ProxyHost != "" && (c.ProxyMode == ProxyModeNone || c.ProxyMode == "") {
		c.ProxyMode = ProxyModeSystem
	}
}

// Validate checks field ranges and proxy consistency.
func (c *Config) Validate() error {
	needsHost := c.ProxyMode == ProxyModeBasic || c.ProxyMode == ProxyModeNTLM
	return validation.ValidateStruct(c,
		validation.Field(&c.APIBaseURL, validation.Required, is.URL),
		validation.Field(&c.ProxyMode, validation.In(ProxyModeNone, ProxyModeSystem, ProxyModeBasic, ProxyModeNTLM)),
		validation.Field(&c.ProxyHost, validation.When(needsHost, validation.Required)),
		validation.Field(&c.ProxyPort, validation.Min(0), validation.Max(65535)),
		validation.Field(&c.UploadWorkers, validation.Min(1), validation.Max(constants.MaxUploadWorkers)),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.MaxFileSizeMB, validation.Min(1)),
	)
}

// ValidateForConnection checks only what an API call needs.
func (c *Config) ValidateForConnection() error {
	if strings.TrimSpace(c.APIBaseURL) == "" {
		return ErrMissingAPIURL
	}
	if strings.TrimSpace(c.Token) == "" {
		return ErrMissingToken
	}
	return nil
}

// MaxFileSizeBytes converts the configured limit to bytes.
func (c *Config) MaxFileSizeBytes() int64 {
	return int64(c.MaxFileSizeMB) * 1024 * 1024
}

// ResolvedPreviewDir returns PreviewDir or the default temp location.
func (c *Config) ResolvedPreviewDir() string {
	if c.PreviewDir != "" {
		return c.PreviewDir
	}
	return DefaultPreviewDirectory()
}

// MaskedToken returns the token with all but the last four characters hidden.
func (c *Config) MaskedToken() string {
	if len(c.Token) <= 4 {
		return strings.Repeat("*", len(c.Token))
	}
	return strings.Repeat("*", 8) + c.Token[len(c.Token)-4:]
}
