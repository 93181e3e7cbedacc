package config

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vitalyst/enrich/internal/secret"
)

// Manager holds the live configuration and watches the backing file for
// provider-catalog updates. Reloads swap the config pointer atomically;
// readers never see a partially applied config. Applying a reloaded
// config to running components is the OnChange callbacks' job.
type Manager struct {
	config   atomic.Pointer[Config]
	path     string
	secrets  *secret.Manager
	watcher  *fsnotify.Watcher
	onChange []func(*Config)
	logger   *slog.Logger
}

// NewManager loads the configuration at path, resolves provider secret
// references, and returns a manager ready for Watch.
func NewManager(ctx context.Context, path string, secrets *secret.Manager, logger *slog.Logger) (*Manager, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := resolveSecrets(ctx, cfg, secrets); err != nil {
		return nil, err
	}

	m := &Manager{
		path:    path,
		secrets: secrets,
		logger:  logger,
	}
	m.config.Store(cfg)
	return m, nil
}

// Get returns the current configuration. Safe for concurrent use.
func (m *Manager) Get() *Config {
	return m.config.Load()
}

// OnChange registers a callback invoked after each successful reload.
// Register all callbacks before calling Watch.
func (m *Manager) OnChange(fn func(*Config)) {
	m.onChange = append(m.onChange, fn)
}

// Watch starts watching the configuration file. Reloads are debounced
// so editors that write in several bursts trigger one reload.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	m.watcher = watcher

	if err := watcher.Add(m.path); err != nil {
		_ = watcher.Close()
		return err
	}

	go m.watchLoop(ctx)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context) {
	const debounceDelay = 500 * time.Millisecond
	var debounceTimer *time.Timer

	for {
		select {
		case <-ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			_ = m.watcher.Close()
			return

		case ev, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					m.reload(ctx)
				})
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", "error", err)
		}
	}
}

func (m *Manager) reload(ctx context.Context) {
	newCfg, err := LoadFromFile(m.path)
	if err != nil {
		m.logger.Error("config reload failed, keeping current", "error", err)
		return
	}
	if err := resolveSecrets(ctx, newCfg, m.secrets); err != nil {
		m.logger.Error("config reload failed resolving secrets, keeping current", "error", err)
		return
	}

	m.config.Store(newCfg)
	m.logger.Info("configuration reloaded", "providers", len(newCfg.Providers))

	for _, fn := range m.onChange {
		fn(newCfg)
	}
}

// Close stops the watcher.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func resolveSecrets(ctx context.Context, cfg *Config, secrets *secret.Manager) error {
	if secrets == nil {
		return nil
	}
	for i := range cfg.Providers {
		val, err := secrets.Resolve(ctx, cfg.Providers[i].APIKey)
		if err != nil {
			return err
		}
		cfg.Providers[i].APIKey = val
	}
	return nil
}
