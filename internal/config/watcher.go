package config

import (
	"context"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// PollInterval is the safety-net stat interval used alongside (or instead of) fsnotify.
var PollInterval = 30 * time.Second

// Watch reloads the config file whenever it changes and hands the result to onChange.
// Falls back to mtime polling when fsnotify is unavailable. Returns when ctx is done.
func Watch(ctx context.Context, path string, log *zap.Logger, onChange func(*Config)) {
	log = log.With(zap.String("component", "config_watcher"), zap.String("path", path))

	var lastMod time.Time
	if fi, err := os.Stat(path); err == nil {
		lastMod = fi.ModTime()
	}

	reload := func(reason string) {
		cfg, err := Load(path)
		if err != nil {
			log.Warn("config reload failed, keeping previous settings", zap.String("trigger", reason), zap.Error(err))
			return
		}
		log.Info("config reloaded", zap.String("trigger", reason))
		onChange(cfg)
	}

	var events <-chan fsnotify.Event
	var errs <-chan error
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Warn("fsnotify unavailable, polling only", zap.Error(err))
	} else if err := watcher.Add(path); err != nil {
		log.Warn("cannot watch config file, polling only", zap.Error(err))
		watcher.Close()
	} else {
		events = watcher.Events
		errs = watcher.Errors
		defer watcher.Close()
	}

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				// editors write in bursts
				time.Sleep(100 * time.Millisecond)
				if fi, err := os.Stat(path); err == nil {
					lastMod = fi.ModTime()
				}
				reload("fsnotify")
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			log.Warn("config watcher error", zap.Error(err))
		case <-ticker.C:
			fi, err := os.Stat(path)
			if err != nil || !fi.ModTime().After(lastMod) {
				continue
			}
			lastMod = fi.ModTime()
			reload("poll")
		}
	}
}
