package config

import (
	"context"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/FairForge/vaultaire/internal/apperrors"
	"github.com/FairForge/vaultaire/internal/keys"
)

// Watcher keeps a live Config and key Provider in sync with their files on
// disk. A config file edit is reparsed and swapped in; a keystore file edit
// reopens the Provider right away and swaps it in for the cached one.
type Watcher struct {
	mu         sync.RWMutex
	cfg        *Config
	provider   keys.Provider
	passphrase string
	logger     *zap.Logger
	fw         *fsnotify.Watcher

	cfgPath     string
	keyfilePath string
}

// NewWatcher loads path, opens the configured key provider, and starts
// watching both files for changes. Call Close to stop watching.
func NewWatcher(ctx context.Context, path, passphrase string, logger *zap.Logger) (*Watcher, error) {
	const op = "config.NewWatcher"

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	provider, err := keys.Open(ctx, cfg.Keys.ToKeys(cfg.KeyfilePath, passphrase))
	if err != nil {
		return nil, apperrors.Wrap(op, apperrors.Config, "open key provider: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, apperrors.Wrap(op, apperrors.Config, "new watcher: %w", err)
	}
	for _, watched := range []string{path, cfg.KeyfilePath} {
		if err := fw.Add(filepath.Dir(watched)); err != nil {
			logger.Warn("config watch add failed", zap.String("path", watched), zap.Error(err))
		}
	}

	w := &Watcher{
		cfg:         cfg,
		provider:    provider,
		passphrase:  passphrase,
		logger:      logger,
		fw:          fw,
		cfgPath:     path,
		keyfilePath: cfg.KeyfilePath,
	}
	go w.run(ctx)
	return w, nil
}

func (w *Watcher) run(ctx context.Context) {
	defer func() { _ = w.fw.Close() }()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			switch filepath.Clean(ev.Name) {
			case filepath.Clean(w.cfgPath):
				w.reloadConfig()
			case filepath.Clean(w.keyfilePath):
				w.invalidateKeys(ctx)
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reloadConfig() {
	cfg, err := Load(w.cfgPath)
	if err != nil {
		w.logger.Warn("config reload failed", zap.String("path", w.cfgPath), zap.Error(err))
		return
	}
	w.mu.Lock()
	w.cfg = cfg
	w.keyfilePath = cfg.KeyfilePath
	w.mu.Unlock()
	w.logger.Info("config reloaded", zap.String("path", w.cfgPath))
}

// invalidateKeys reopens the key provider from the keyfile's current
// on-disk contents, replacing the cached one.
func (w *Watcher) invalidateKeys(ctx context.Context) {
	w.mu.RLock()
	cfg := w.cfg
	w.mu.RUnlock()

	provider, err := keys.Open(ctx, cfg.Keys.ToKeys(cfg.KeyfilePath, w.passphrase))
	if err != nil {
		w.logger.Warn("keyfile reload failed", zap.String("path", cfg.KeyfilePath), zap.Error(err))
		return
	}
	w.mu.Lock()
	w.provider = provider
	w.mu.Unlock()
	w.logger.Info("key provider reloaded", zap.String("path", cfg.KeyfilePath))
}

// Config returns the currently loaded configuration.
func (w *Watcher) Config() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.cfg
}

// Keys returns the currently open key provider.
func (w *Watcher) Keys() keys.Provider {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.provider
}

// Close stops the filesystem watch.
func (w *Watcher) Close() error {
	return w.fw.Close()
}
