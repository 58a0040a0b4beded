package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 200 * time.Millisecond

// Watch blocks until ctx is done, calling apply with the freshly loaded
// bridge config, BRIDGE_* overrides included, whenever path settles after a
// change. Invalid documents are logged and skipped; the previous config
// stays in effect.
func Watch(ctx context.Context, path string, logger *zap.Logger, apply func(*BridgeConfig)) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	// Watch the directory: atomic saves replace the file inode.
	base := filepath.Base(path)
	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}
	logger.Info("watching config", zap.String("path", path))

	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(watchDebounce)
		} else {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(watchDebounce)
		}
		timerCh = timer.C
	}
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != base {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			schedule()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watch error", zap.Error(err))
		case <-timerCh:
			timerCh = nil
			cfg, err := readBridge(path)
			if err != nil {
				logger.Warn("config reload rejected", zap.String("reason", err.Error()))
				continue
			}
			logger.Info("config reloaded", zap.String("path", path))
			apply(cfg)
		}
	}
}
