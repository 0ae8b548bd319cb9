// Package config loads the control server's runtime configuration from
// environment variables and an optional YAML tuning file, and watches the
// tuning file for hot-reloadable changes.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/motivo-run/motivo-server/internal/logger"
)

// Config is the full set of knobs the server reads at startup, per spec.md §6.
type Config struct {
	WSHost      string `mapstructure:"ws_host"`
	WSPort      int    `mapstructure:"ws_port"`
	MediaPort   int    `mapstructure:"media_port"`
	FramesDir   string `mapstructure:"frames_dir"`
	DownloadDir string `mapstructure:"downloads_dir"`
	CacheDir    string `mapstructure:"cache_dir"`
	PolicyPath  string `mapstructure:"policy_path"`
	BufferPath  string `mapstructure:"buffer_path"`
	LedgerPath  string `mapstructure:"ledger_path"`
	LogLevel    string `mapstructure:"log_level"`
	LogFile     string `mapstructure:"log_file"`

	// Tuning is not filled in by Load; Manager.Tuning returns the current,
	// possibly hot-reloaded, tuning values.
	Tuning Tuning `mapstructure:"-"`
}

// Tuning holds the subset of configuration that may change at runtime
// without restarting the process — batch size defaults, worker pool size,
// and the frame rate target. A config file change only ever updates these;
// it never touches the policy, buffer, or listen addresses.
type Tuning struct {
	DefaultBatchSize int `mapstructure:"default_batch_size"`
	WorkerPoolSize   int `mapstructure:"worker_pool_size"`
	FrameRate        int `mapstructure:"frame_rate"`
}

func defaultTuning() Tuning {
	return Tuning{DefaultBatchSize: 750, WorkerPoolSize: 8, FrameRate: 60}
}

// Manager owns the loaded config plus the optional hot-reload watch on the
// YAML tuning file. Reads of Tuning are protected by a mutex since the
// fsnotify callback runs on its own goroutine.
type Manager struct {
	v *viper.Viper

	mu     sync.RWMutex
	cfg    Config
	tuning Tuning

	watcher *fsnotify.Watcher
}

// Load reads environment variables (MOTIVO_*) and, if present, a
// motivo.yaml tuning file, following the teacher's envOr fallback
// convention (cmd/wt/serve.go) layered under viper's declarative binding.
func Load(configPath string) (*Manager, error) {
	v := viper.New()
	v.SetEnvPrefix("MOTIVO")
	v.AutomaticEnv()

	v.SetDefault("ws_host", "0.0.0.0")
	v.SetDefault("ws_port", 8765)
	v.SetDefault("media_port", 8766)
	v.SetDefault("frames_dir", "./shared-frames")
	v.SetDefault("downloads_dir", "./downloads")
	v.SetDefault("cache_dir", "./context-cache")
	v.SetDefault("policy_path", "")
	v.SetDefault("buffer_path", "")
	v.SetDefault("ledger_path", "./recordings.db")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")

	def := defaultTuning()
	v.SetDefault("default_batch_size", def.DefaultBatchSize)
	v.SetDefault("worker_pool_size", def.WorkerPoolSize)
	v.SetDefault("frame_rate", def.FrameRate)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			v.SetConfigType("yaml")
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("read config file %s: %w", configPath, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	m := &Manager{
		v:   v,
		cfg: cfg,
		tuning: Tuning{
			DefaultBatchSize: v.GetInt("default_batch_size"),
			WorkerPoolSize:   v.GetInt("worker_pool_size"),
			FrameRate:        v.GetInt("frame_rate"),
		},
	}

	if configPath != "" {
		if err := m.watch(configPath); err != nil {
			logger.Warn("config hot-reload disabled", "error", err)
		}
	}

	return m, nil
}

// watch installs an fsnotify watch on the tuning file's directory and
// re-reads Tuning on write events. Directory-level watching (rather than
// watching the file itself) survives editors that replace the file via
// rename, matching common fsnotify usage in long-running daemons.
func (m *Manager) watch(configPath string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	dir := filepath.Dir(configPath)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	m.watcher = w

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(configPath) {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				m.reload(configPath)
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("config watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (m *Manager) reload(configPath string) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	def := defaultTuning()
	v.SetDefault("default_batch_size", def.DefaultBatchSize)
	v.SetDefault("worker_pool_size", def.WorkerPoolSize)
	v.SetDefault("frame_rate", def.FrameRate)

	if err := v.ReadInConfig(); err != nil {
		logger.Warn("config hot-reload: failed to read", "error", err)
		return
	}

	next := Tuning{
		DefaultBatchSize: v.GetInt("default_batch_size"),
		WorkerPoolSize:   v.GetInt("worker_pool_size"),
		FrameRate:        v.GetInt("frame_rate"),
	}
	m.mu.Lock()
	if next.DefaultBatchSize < 10 || next.DefaultBatchSize > 5000 {
		logger.Warn("config hot-reload: default_batch_size out of range, ignoring", "value", next.DefaultBatchSize)
		next.DefaultBatchSize = m.tuning.DefaultBatchSize
	}
	m.tuning = next
	m.mu.Unlock()
	logger.Info("config hot-reloaded", "tuning", next)
}

// Config returns the static (non-hot-reloadable) configuration.
func (m *Manager) Config() Config {
	return m.cfg
}

// Tuning returns the current, possibly hot-reloaded, tuning values.
func (m *Manager) Tuning() Tuning {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tuning
}

// Close stops the hot-reload watcher, if any.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
