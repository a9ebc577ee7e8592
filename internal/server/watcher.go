/*
Copyright 2024 The Spotalis Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package server

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

const debounceWindow = 500 * time.Millisecond

// ConfigWatcher watches configPath's directory (ConfigMap volumes update via
// a "..data" symlink swap, not an in-place write to configPath, so both the
// directory and the symlink swap itself must be watched) and calls onChange
// once per burst of writes, after a quiescence window.
type ConfigWatcher struct {
	configPath string
	onChange   func()
	log        logr.Logger
}

// NewConfigWatcher constructs a watcher that invokes onChange after
// configPath settles following a write.
func NewConfigWatcher(configPath string, onChange func(), log logr.Logger) *ConfigWatcher {
	return &ConfigWatcher{configPath: configPath, onChange: onChange, log: log}
}

// Run blocks until ctx is done, debouncing filesystem events on configPath.
func (w *ConfigWatcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsw.Close()

	dir := filepath.Dir(w.configPath)
	if err := fsw.Add(dir); err != nil {
		return err
	}

	w.log.Info("watching config directory", "dir", dir, "file", w.configPath)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if !w.isRelevant(event) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				timer.Reset(debounceWindow)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.log.Error(err, "config watcher error")
		case <-timerChan(timer):
			w.log.Info("config file stable, reloading")
			w.onChange()
		}
	}
}

// isRelevant reports whether event should trigger a reload. A ConfigMap
// volume updates by atomically retargeting the "..data" symlink to a new
// "..<timestamp>" directory and relinking configPath through it; the file
// named configPath itself is never written to, so fsnotify never reports an
// event whose Name is configPath in that deployment. Watch for the
// "..data" symlink swap (Create/Rename/Remove of that entry) in addition to
// a direct write to configPath, which covers a plain bind-mounted file such
// as in tests.
func (w *ConfigWatcher) isRelevant(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) == filepath.Clean(w.configPath) {
		return true
	}
	if filepath.Base(event.Name) == "..data" {
		return event.Op&(fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
	}
	return false
}

// timerChan returns t.C, or a nil channel (which blocks forever in a
// select) when t itself is nil — avoids a nil-timer panic before the first
// event arrives.
func timerChan(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}
