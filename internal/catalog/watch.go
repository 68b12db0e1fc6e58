// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	xglog "github.com/guestflow/guestflow/internal/log"
)

// Watch reloads the published snapshot whenever the file changes on disk.
// It blocks until ctx is cancelled. Editors and atomic-rename writers
// produce bursts of events, so reloads are debounced.
func (m *Manager) Watch(ctx context.Context) error {
	logger := xglog.WithComponent("catalog")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory: atomic renames replace the file inode, which
	// would silently detach a file-level watch.
	if err := watcher.Add(filepath.Dir(m.path)); err != nil {
		return err
	}

	var (
		debounce *time.Timer
		pending  <-chan time.Time
	)
	target := filepath.Clean(m.path)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce == nil {
				debounce = time.NewTimer(250 * time.Millisecond)
			} else {
				debounce.Reset(250 * time.Millisecond)
			}
			pending = debounce.C
		case <-pending:
			pending = nil
			if err := m.Reload(ctx); err != nil {
				logger.Error().Err(err).Msg("snapshot reload failed; keeping previous configuration")
				continue
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn().Err(err).Msg("config watcher error")
		}
	}
}
