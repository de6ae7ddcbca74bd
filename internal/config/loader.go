package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ServiceFile = "costrouter.yaml"
	RoutingFile = "routing.yaml"

	envPrefix = "COSTROUTER_"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:default} patterns in a string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envVarPattern.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		varName := submatch[1]
		defaultVal := ""
		if len(submatch) >= 3 {
			defaultVal = submatch[2]
		}
		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		return defaultVal
	})
}

// LoadFile reads a YAML file, expands env vars, and unmarshals into dest.
func LoadFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	expanded := expandEnvVars(string(data))
	if err := yaml.Unmarshal([]byte(expanded), dest); err != nil {
		return fmt.Errorf("%w: parse config file %s: %v", ErrInvalid, path, err)
	}
	return nil
}

// LoadDotEnv loads KEY=VALUE files into the process environment. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", p, err)
		}
	}
	return nil
}

// LoadService reads the service settings from dir, applying defaults first
// and COSTROUTER_* environment overrides last. A missing file is not an error.
func LoadService(dir string) (*Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(dir, ServiceFile)
	if err := LoadFile(path, cfg); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load service config: %w", err)
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: envPrefix}); err != nil {
		return nil, fmt.Errorf("%w: environment overrides: %v", ErrInvalid, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadRouting reads and validates routing.yaml from dir.
func LoadRouting(dir string) (*RoutingConfig, error) {
	rc := &RoutingConfig{}
	if err := LoadFile(filepath.Join(dir, RoutingFile), rc); err != nil {
		return nil, fmt.Errorf("load routing config: %w", err)
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}
	return rc, nil
}

// Loader manages configuration loading and hot-reload via fsnotify.
type Loader struct {
	configDir string
	mu        sync.RWMutex
	cfg       *Config
	routing   *RoutingConfig
	watchers  []func(*RoutingConfig) error
	logger    *slog.Logger
}

func NewLoader(configDir string, logger *slog.Logger) *Loader {
	return &Loader{
		configDir: configDir,
		logger:    logger,
	}
}

// Load reads both configuration files. Nothing is replaced unless both parse
// and validate.
func (l *Loader) Load() error {
	cfg, err := LoadService(l.configDir)
	if err != nil {
		return err
	}
	routing, err := LoadRouting(l.configDir)
	if err != nil {
		return err
	}

	l.mu.Lock()
	l.cfg = cfg
	l.routing = routing
	l.mu.Unlock()

	l.logger.Info("configuration loaded", "dir", l.configDir, "models", len(routing.Models))
	return nil
}

func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cfg
}

func (l *Loader) Routing() *RoutingConfig {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.routing
}

// OnReload registers a callback that receives the new routing config after a
// reload. Service settings such as ports are only read at startup.
func (l *Loader) OnReload(fn func(*RoutingConfig) error) {
	l.watchers = append(l.watchers, fn)
}

// Reload re-reads the routing config and hands it to every callback. The
// stored config is only replaced when all callbacks accept it.
func (l *Loader) Reload() error {
	routing, err := LoadRouting(l.configDir)
	if err != nil {
		return err
	}
	for _, fn := range l.watchers {
		if err := fn(routing); err != nil {
			return fmt.Errorf("apply routing config: %w", err)
		}
	}
	l.mu.Lock()
	l.routing = routing
	l.mu.Unlock()
	return nil
}

// Watch starts watching the config directory for changes and reloads on
// modification. The returned function stops the watcher.
func (l *Loader) Watch() (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(l.configDir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch config dir %s: %w", l.configDir, err)
	}

	done := make(chan struct{})
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-done:
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != RoutingFile {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					l.logger.Info("routing config changed, reloading", "file", event.Name)
					if err := l.Reload(); err != nil {
						l.logger.Error("failed to reload routing config, keeping previous", "error", err)
						continue
					}
					l.logger.Info("routing config reloaded")
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				l.logger.Error("fsnotify error", "error", err)
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}
