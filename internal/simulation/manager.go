package simulation

import (
	"context"
	"log/slog"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Manager owns the whitelist file lifecycle: initial load, explicit
// administrative reloads, and optional file watching. Reloads replace the
// resolver's table atomically; a bad file never evicts the running table.
type Manager struct {
	path     string
	resolver *Resolver
	watcher  *fsnotify.Watcher
	logger   *slog.Logger
}

// NewManager loads the whitelist from path and wires it into a resolver.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}

	table, err := LoadTable(path)
	if err != nil {
		return nil, err
	}

	return &Manager{
		path:     path,
		resolver: NewResolver(table, logger),
		logger:   logger,
	}, nil
}

// Resolver returns the resolver backed by this manager.
func (m *Manager) Resolver() *Resolver {
	return m.resolver
}

// Reload re-reads the whitelist file and swaps the table in. This is the
// administrative update path; request traffic never mutates the table.
func (m *Manager) Reload() error {
	table, err := LoadTable(m.path)
	if err != nil {
		m.logger.Error("whitelist reload failed, keeping current table", "error", err)
		return err
	}
	m.resolver.Replace(table)
	return nil
}

// Watch starts watching the whitelist file for changes. Rapid successive
// writes are debounced before reloading.
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

		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					_ = m.Reload()
				})
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("whitelist watcher error", "error", err)
		}
	}
}

// Close stops the file watcher.
func (m *Manager) Close() error {
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
