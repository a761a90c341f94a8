// Package config resolves the shell's runtime configuration: where the bundled
// resources live, where per-user data goes, and how the backend is launched.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables recognised by Load.
const (
	EnvResourceDir   = "VERBA_RESOURCE_DIR"
	EnvDataDir       = "VERBA_DATA_DIR"
	EnvDSN           = "VERBA_DSN"
	EnvPython        = "VERBA_PYTHON"
	EnvShutdownGrace = "VERBA_SHUTDOWN_GRACE"
	EnvNotify        = "VERBA_NOTIFY"
)

const (
	// EnvFileName 数据目录下的可选环境变量文件
	EnvFileName = "verba.env"

	DefaultShutdownGrace = 5 * time.Second
)

// Config 运行配置
type Config struct {
	// ResourceDir is the application's read-only resource directory.
	// Empty when the lookup failed; ResourceErr then holds the reason.
	ResourceDir string
	ResourceErr error

	// DataDir 用户可写数据目录（日志、历史数据库、PID 文件）
	DataDir string

	// DSN overrides the default SQLite history database.
	DSN string

	// Python is an interpreter tried before the bundled one.
	Python string

	ShutdownGrace time.Duration
	Notify        bool
}

// Overrides carries values given on the command line. Zero values are unset.
type Overrides struct {
	ResourceDir   string
	DataDir       string
	Python        string
	ShutdownGrace time.Duration
}

// Load builds the configuration. Precedence: overrides > environment >
// <data dir>/verba.env > defaults.
func Load(o Overrides) (*Config, error) {
	dataDir := firstNonEmpty(o.DataDir, os.Getenv(EnvDataDir), DefaultDataDir())
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data directory %s: %w", dataDir, err)
	}

	// godotenv.Load never overrides variables that are already set
	envFile := filepath.Join(dataDir, EnvFileName)
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
		log.Printf("[Config] Loaded environment from %s", envFile)
	}

	cfg := &Config{
		DataDir:       dataDir,
		DSN:           os.Getenv(EnvDSN),
		Python:        firstNonEmpty(o.Python, os.Getenv(EnvPython)),
		ShutdownGrace: DefaultShutdownGrace,
		Notify:        true,
	}

	if dir := firstNonEmpty(o.ResourceDir, os.Getenv(EnvResourceDir)); dir != "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			cfg.ResourceErr = err
		} else {
			cfg.ResourceDir = abs
		}
	} else {
		cfg.ResourceDir, cfg.ResourceErr = ResolveResourceDir(os.Executable, runtime.GOOS)
	}

	switch {
	case o.ShutdownGrace > 0:
		cfg.ShutdownGrace = o.ShutdownGrace
	case os.Getenv(EnvShutdownGrace) != "":
		d, err := time.ParseDuration(os.Getenv(EnvShutdownGrace))
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid %s %q", EnvShutdownGrace, os.Getenv(EnvShutdownGrace))
		}
		cfg.ShutdownGrace = d
	}

	if v := os.Getenv(EnvNotify); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", EnvNotify, v)
		}
		cfg.Notify = enabled
	}

	return cfg, nil
}

// ResolveResourceDir applies the platform's application-resource convention to
// the running executable:
//   - macOS app bundle: Contents/MacOS/<exe> -> Contents/Resources
//   - Linux package:    <prefix>/bin/<exe>   -> <prefix>/lib/verba (when present)
//   - otherwise the executable's directory
func ResolveResourceDir(executable func() (string, error), goos string) (string, error) {
	exe, err := executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	if exe == "" {
		return "", errors.New("locate executable: empty path")
	}
	if resolved, err := filepath.EvalSymlinks(exe); err == nil {
		exe = resolved
	}
	dir := filepath.Dir(exe)

	switch goos {
	case "darwin":
		if filepath.Base(dir) == "MacOS" {
			return filepath.Join(filepath.Dir(dir), "Resources"), nil
		}
	case "linux":
		if filepath.Base(dir) == "bin" {
			lib := filepath.Join(filepath.Dir(dir), "lib", "verba")
			if st, err := os.Stat(lib); err == nil && st.IsDir() {
				return lib, nil
			}
		}
	}
	return dir, nil
}

// DefaultDataDir returns the default data directory path (~/.config/verba)
func DefaultDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fallback to current directory if home dir is unavailable
		return "."
	}
	return filepath.Join(homeDir, ".config", "verba")
}

// DBPath 默认 SQLite 历史数据库路径
func (c *Config) DBPath() string { return filepath.Join(c.DataDir, "verba.db") }

// LogPath 应用日志路径
func (c *Config) LogPath() string { return filepath.Join(c.DataDir, "verba.log") }

// BackendLogPath 后端 stdout/stderr 日志路径
func (c *Config) BackendLogPath() string { return filepath.Join(c.DataDir, "backend.log") }

// PIDPath 后端 PID 文件路径
func (c *Config) PIDPath() string { return filepath.Join(c.DataDir, "backend.pid") }

// HistoryDSN returns DSN when set, otherwise the SQLite file in the data dir.
func (c *Config) HistoryDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return "sqlite://" + c.DBPath()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
