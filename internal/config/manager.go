package config

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// reloadDebounce coalesces the burst of filesystem events an editor save or
// configmap update produces into a single reload.
const reloadDebounce = 500 * time.Millisecond

// Manager serves the live engine configuration and pushes accepted file
// changes to subscribers. Reads never block: the current configuration is
// swapped atomically, and a file that fails to load or validate leaves the
// last good one in effect.
type Manager struct {
	path    string
	current atomic.Pointer[Config]
	logger  *slog.Logger

	mu      sync.Mutex
	subs    []func(*Config)
	watcher *fsnotify.Watcher
}

// NewManager loads the configuration at path, failing fast if it does not
// validate.
func NewManager(path string, logger *slog.Logger) (*Manager, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	m := &Manager{path: path, logger: logger}
	m.current.Store(cfg)
	return m, nil
}

// Get returns the configuration currently in effect. Safe for concurrent
// use.
func (m *Manager) Get() *Config {
	return m.current.Load()
}

// OnChange subscribes fn to accepted reloads. Subscribing is safe before or
// after Watch; fn runs on the watch goroutine and must not block.
func (m *Manager) OnChange(fn func(*Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs = append(m.subs, fn)
}

// Watch reloads the file whenever it changes on disk, until ctx is done.
func (m *Manager) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(m.path); err != nil {
		_ = watcher.Close()
		return err
	}

	m.mu.Lock()
	m.watcher = watcher
	m.mu.Unlock()

	go m.watchLoop(ctx, watcher)
	return nil
}

func (m *Manager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	// The timer starts drained; each relevant event pushes the pending
	// reload out by the debounce window, so reloads run serially on this
	// goroutine.
	timer := time.NewTimer(reloadDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(reloadDebounce)

		case <-timer.C:
			m.reload()

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Error("config watcher error", "path", m.path, "error", err)
		}
	}
}

// reload swaps in the file's current contents and notifies subscribers. A
// rejected file keeps the running configuration serving.
func (m *Manager) reload() {
	next, err := LoadFromFile(m.path)
	if err != nil {
		m.logger.Error("config reload rejected, keeping current",
			"path", m.path,
			"error", err,
		)
		return
	}

	m.current.Store(next)
	m.logger.Info("configuration reloaded", "path", m.path)

	m.mu.Lock()
	subs := make([]func(*Config), len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
}

// Close stops watching. The last loaded configuration keeps serving.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}
