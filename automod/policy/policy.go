// Moderation policy files: TOML overrides on top of the engine defaults, with hot reload.
//
// Keys match the koanf tags on engine.Config. Durations are written as strings ("30s"). Keys left out of the file keep their default value.
package policy

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/ninjabot/ninjaguard/automod/engine"
)

// Quiet period after a file change before reloading, since editors often write a file in several steps
const reloadDelay = 200 * time.Millisecond

// Reads the policy file at path over base, and validates the result.
func Load(path string, base engine.Config) (engine.Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
		return base, fmt.Errorf("loading policy file %s: %w", path, err)
	}
	cfg := base
	if err := k.Unmarshal("", &cfg); err != nil {
		return base, fmt.Errorf("decoding policy file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return base, err
	}
	return cfg, nil
}

// Implemented by *engine.Engine
type Updater interface {
	UpdateConfig(cfg engine.Config) error
}

// Watch reloads the policy file whenever it changes and hands valid policies to target. Invalid files are logged and skipped; the running policy stays in effect. Returns when ctx is cancelled.
func Watch(ctx context.Context, path string, base engine.Config, target Updater, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("source", "policy-watcher", "path", path)

	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// watch the directory, so that replace-by-rename saves are seen too
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watching policy directory: %w", err)
	}

	timer := time.NewTimer(reloadDelay)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
				logger.Debug("policy file modified", "op", ev.Op.String())
				timer.Reset(reloadDelay)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher error", "err", err)
		case <-timer.C:
			cfg, err := Load(abs, base)
			if err != nil {
				logger.Error("ignoring invalid policy file", "err", err)
				continue
			}
			if err := target.UpdateConfig(cfg); err != nil {
				logger.Error("policy rejected", "err", err)
				continue
			}
			logger.Info("policy reloaded")
		}
	}
}
