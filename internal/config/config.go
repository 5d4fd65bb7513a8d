// Package config provides configuration management for drive-index.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/ini.v1"

	"github.com/driveindex/drive-index/internal/constants"
)

// Environment variables that override the config file.
const (
	EnvBaseURL = "DRIVE_INDEX_URL"
	EnvDrive   = "DRIVE_INDEX_DRIVE"
)

// Config is the explicit site and client configuration handed to the API
// client and the listing controller.
//
// INI format:
//
//	[site]
//	name = Drive Index
//	base_url = https://index.example.workers.dev
//	drive_names = My Drive, Shared
//	default_drive = 0
//	enable_rename = true
//	enable_delete = true
//
//	[client]
//	search_debounce_ms = 500
//	reload_delay_ms = 1000
//	optimistic_updates = true
//	rollback_on_failure = false
//	requests_per_second = 5
//	burst = 20
//	max_retries = 3
//	parallel_downloads = 3
//
//	[proxy]
//	mode = no-proxy
//	host =
//	port = 8080
//	user =
//	no_proxy =
type Config struct {
	SiteName     string
	BaseURL      string
	DriveNames   []string
	DefaultDrive int
	EnableRename bool
	EnableDelete bool

	SearchDebounce    time.Duration
	ReloadDelay       time.Duration
	OptimisticUpdates bool
	RollbackOnFailure bool
	RequestsPerSecond float64
	Burst             float64
	MaxRetries        int
	ParallelDownloads int

	// Proxy settings
	ProxyMode     string // "no-proxy", "system", "basic", "ntlm"
	ProxyHost     string
	ProxyPort     int
	ProxyUser     string
	ProxyPassword string // never persisted
	NoProxy       string // Comma-separated list of hosts to bypass proxy
}

// Validation errors
var (
	ErrMissingBaseURL   = errors.New("base_url is required")
	ErrInvalidBaseURL   = errors.New("base_url must start with http:// or https://")
	ErrInvalidDrive     = errors.New("default_drive must be a non-negative index into drive_names")
	ErrInvalidRate      = errors.New("requests_per_second and burst must be positive")
	ErrInvalidParallel  = errors.New("parallel_downloads must be between 1 and 8")
	ErrInvalidProxy     = errors.New("proxy mode must be one of no-proxy, system, basic, ntlm")
	ErrMissingProxyHost = errors.New("proxy host is required for basic and ntlm modes")
)

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		SiteName:          "Drive Index",
		DriveNames:        []string{"My Drive"},
		EnableRename:      true,
		EnableDelete:      true,
		SearchDebounce:    constants.SearchDebounce,
		ReloadDelay:       constants.ReloadDelay,
		OptimisticUpdates: true,
		RequestsPerSecond: constants.DefaultRequestsPerSecond,
		Burst:             constants.DefaultBurst,
		MaxRetries:        3,
		ParallelDownloads: constants.DefaultParallelDownloads,
		ProxyMode:         "no-proxy",
		ProxyPort:         8080,
	}
}

// DefaultPath returns the default config file location:
//   - Windows: %USERPROFILE%\.config\drive-index\config
//   - Unix: ~/.config/drive-index/config
func DefaultPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config"), nil
}

// Load reads configuration from an INI file. A missing file yields defaults.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return cfg, nil
		}
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	site := f.Section("site")
	cfg.SiteName = site.Key("name").MustString(cfg.SiteName)
	cfg.BaseURL = strings.TrimSuffix(site.Key("base_url").String(), "/")
	if names := site.Key("drive_names").Strings(","); len(names) > 0 {
		cfg.DriveNames = names
	}
	cfg.DefaultDrive = site.Key("default_drive").MustInt(0)
	cfg.EnableRename = site.Key("enable_rename").MustBool(true)
	cfg.EnableDelete = site.Key("enable_delete").MustBool(true)

	client := f.Section("client")
	cfg.SearchDebounce = time.Duration(client.Key("search_debounce_ms").MustInt(500)) * time.Millisecond
	cfg.ReloadDelay = time.Duration(client.Key("reload_delay_ms").MustInt(1000)) * time.Millisecond
	cfg.OptimisticUpdates = client.Key("optimistic_updates").MustBool(true)
	cfg.RollbackOnFailure = client.Key("rollback_on_failure").MustBool(false)
	cfg.RequestsPerSecond = client.Key("requests_per_second").MustFloat64(cfg.RequestsPerSecond)
	cfg.Burst = client.Key("burst").MustFloat64(cfg.Burst)
	cfg.MaxRetries = client.Key("max_retries").MustInt(cfg.MaxRetries)
	cfg.ParallelDownloads = client.Key("parallel_downloads").MustInt(cfg.ParallelDownloads)

	proxy := f.Section("proxy")
	cfg.ProxyMode = proxy.Key("mode").MustString(cfg.ProxyMode)
	cfg.ProxyHost = proxy.Key("host").String()
	cfg.ProxyPort = proxy.Key("port").MustInt(cfg.ProxyPort)
	cfg.ProxyUser = proxy.Key("user").String()
	cfg.NoProxy = proxy.Key("no_proxy").String()

	return cfg, nil
}

// Save writes the configuration to an INI file atomically. The proxy password
// is never written.
func Save(cfg *Config, path string) error {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return fmt.Errorf("failed to determine config path: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f := ini.Empty()

	site, err := f.NewSection("site")
	if err != nil {
		return fmt.Errorf("failed to create site section: %w", err)
	}
	site.Key("name").SetValue(cfg.SiteName)
	site.Key("base_url").SetValue(cfg.BaseURL)
	site.Key("drive_names").SetValue(strings.Join(cfg.DriveNames, ", "))
	site.Key("default_drive").SetValue(strconv.Itoa(cfg.DefaultDrive))
	site.Key("enable_rename").SetValue(strconv.FormatBool(cfg.EnableRename))
	site.Key("enable_delete").SetValue(strconv.FormatBool(cfg.EnableDelete))

	client, err := f.NewSection("client")
	if err != nil {
		return fmt.Errorf("failed to create client section: %w", err)
	}
	client.Key("search_debounce_ms").SetValue(strconv.FormatInt(cfg.SearchDebounce.Milliseconds(), 10))
	client.Key("reload_delay_ms").SetValue(strconv.FormatInt(cfg.ReloadDelay.Milliseconds(), 10))
	client.Key("optimistic_updates").SetValue(strconv.FormatBool(cfg.OptimisticUpdates))
	client.Key("rollback_on_failure").SetValue(strconv.FormatBool(cfg.RollbackOnFailure))
	client.Key("requests_per_second").SetValue(strconv.FormatFloat(cfg.RequestsPerSecond, 'f', -1, 64))
	client.Key("burst").SetValue(strconv.FormatFloat(cfg.Burst, 'f', -1, 64))
	client.Key("max_retries").SetValue(strconv.Itoa(cfg.MaxRetries))
	client.Key("parallel_downloads").SetValue(strconv.Itoa(cfg.ParallelDownloads))

	proxy, err := f.NewSection("proxy")
	if err != nil {
		return fmt.Errorf("failed to create proxy section: %w", err)
	}
	proxy.Key("mode").SetValue(cfg.ProxyMode)
	proxy.Key("host").SetValue(cfg.ProxyHost)
	proxy.Key("port").SetValue(strconv.Itoa(cfg.ProxyPort))
	proxy.Key("user").SetValue(cfg.ProxyUser)
	proxy.Key("no_proxy").SetValue(cfg.NoProxy)

	return saveAtomic(f, path)
}

// MergeWithEnv applies environment overrides.
func (cfg *Config) MergeWithEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvBaseURL)); v != "" {
		cfg.BaseURL = strings.TrimSuffix(v, "/")
	}
	if v := strings.TrimSpace(os.Getenv(EnvDrive)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DefaultDrive = n
		}
	}
}

// MergeWithFlags applies command-line overrides. Empty values and a negative
// drive leave the current setting alone.
func (cfg *Config) MergeWithFlags(baseURL string, drive int) {
	if baseURL != "" {
		cfg.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if drive >= 0 {
		cfg.DefaultDrive = drive
	}
}

// Validate checks the settings needed to talk to the worker.
func (cfg *Config) Validate() error {
	base := strings.TrimSpace(cfg.BaseURL)
	if base == "" {
		return ErrMissingBaseURL
	}
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return ErrInvalidBaseURL
	}
	if cfg.DefaultDrive < 0 || (len(cfg.DriveNames) > 0 && cfg.DefaultDrive >= len(cfg.DriveNames)) {
		return ErrInvalidDrive
	}
	if cfg.RequestsPerSecond <= 0 || cfg.Burst <= 0 {
		return ErrInvalidRate
	}
	if cfg.ParallelDownloads < 1 || cfg.ParallelDownloads > constants.MaxParallelDownloads {
		return ErrInvalidParallel
	}
	switch strings.ToLower(cfg.ProxyMode) {
	case "", "no-proxy", "system":
	case "basic", "ntlm":
		if cfg.ProxyHost == "" {
			return ErrMissingProxyHost
		}
	default:
		return ErrInvalidProxy
	}
	return nil
}

// DriveName returns the display name of a drive, or "Drive <n>".
func (cfg *Config) DriveName(drive int) string {
	if drive >= 0 && drive < len(cfg.DriveNames) {
		return cfg.DriveNames[drive]
	}
	return fmt.Sprintf("Drive %d", drive)
}

// Set assigns a single key given as "section.key". Used by `config set`.
func (cfg *Config) Set(key, value string) error {
	var err error
	switch key {
	case "site.name":
		cfg.SiteName = value
	case "site.base_url":
		cfg.BaseURL = strings.TrimSuffix(value, "/")
	case "site.drive_names":
		var names []string
		for _, n := range strings.Split(value, ",") {
			if n = strings.TrimSpace(n); n != "" {
				names = append(names, n)
			}
		}
		cfg.DriveNames = names
	case "site.default_drive":
		cfg.DefaultDrive, err = strconv.Atoi(value)
	case "site.enable_rename":
		cfg.EnableRename, err = strconv.ParseBool(value)
	case "site.enable_delete":
		cfg.EnableDelete, err = strconv.ParseBool(value)
	case "client.search_debounce_ms":
		cfg.SearchDebounce, err = parseMillis(value)
	case "client.reload_delay_ms":
		cfg.ReloadDelay, err = parseMillis(value)
	case "client.optimistic_updates":
		cfg.OptimisticUpdates, err = strconv.ParseBool(value)
	case "client.rollback_on_failure":
		cfg.RollbackOnFailure, err = strconv.ParseBool(value)
	case "client.requests_per_second":
		cfg.RequestsPerSecond, err = strconv.ParseFloat(value, 64)
	case "client.burst":
		cfg.Burst, err = strconv.ParseFloat(value, 64)
	case "client.max_retries":
		cfg.MaxRetries, err = strconv.Atoi(value)
	case "client.parallel_downloads":
		cfg.ParallelDownloads, err = strconv.Atoi(value)
	case "proxy.mode":
		cfg.ProxyMode = value
	case "proxy.host":
		cfg.ProxyHost = value
	case "proxy.port":
		cfg.ProxyPort, err = strconv.Atoi(value)
	case "proxy.user":
		cfg.ProxyUser = value
	case "proxy.no_proxy":
		cfg.NoProxy = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	return nil
}

func parseMillis(value string) (time.Duration, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return time.Duration(n) * time.Millisecond, nil
}

// saveAtomic writes an INI file through a temp file and rename, restricting
// permissions to the owner.
func saveAtomic(f *ini.File, path string) error {
	tmpPath := path + ".tmp"
	if err := f.SaveTo(tmpPath); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	if runtime.GOOS != "windows" {
		if err := os.Chmod(tmpPath, 0600); err != nil {
			os.Remove(tmpPath)
			return fmt.Errorf("failed to set permissions: %w", err)
		}
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save %s: %w", filepath.Base(path), err)
	}
	return nil
}

// SaveINI writes any INI file with the same atomic, owner-only semantics as
// Save. The prefs store uses it.
func SaveINI(f *ini.File, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	return saveAtomic(f, path)
}
