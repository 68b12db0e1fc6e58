// SPDX-License-Identifier: MIT

package catalog

import (
	"context"
	"fmt"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"
)

// Save publishes a new snapshot: the file is written atomically so the
// watcher and any concurrent reader only ever observe a complete document,
// then the in-memory state is refreshed.
func (m *Manager) Save(ctx context.Context, snap Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	buf, err := yaml.Marshal(&snap)
	if err != nil {
		return fmt.Errorf("catalog: marshal snapshot: %w", err)
	}
	if err := renameio.WriteFile(m.path, buf, 0o644); err != nil {
		return fmt.Errorf("catalog: write %s: %w", m.path, err)
	}
	return m.Reload(ctx)
}
