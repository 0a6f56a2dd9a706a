package config

import (
	"context"
	"errors"
	"hash/fnv"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	logx "rhythm/pkg/logx"
)

var errWatcherClosed = errors.New("watcher channels closed")

// Manager loads the config file and watches it for changes. Updates are
// published to a small buffered channel; the daemon applies them from the
// scheduler goroutine, so a slow consumer only ever delays itself.
type Manager struct {
	path string

	mu  sync.RWMutex
	cfg *Config

	// lastHash tracks the last successfully committed config content, so
	// editors that fire several write events for one save don't trigger
	// redundant publishes.
	lastHash uint64

	updates chan *Config
	log     logx.Logger
}

func NewManager(path string, log logx.Logger) *Manager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Manager{
		path:    path,
		updates: make(chan *Config, 4),
		log:     log,
	}
}

// Load parses the file and commits the result.
func (m *Manager) Load() (*Config, error) {
	b, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}
	m.commit(cfg, hashBytes(b))
	return cfg, nil
}

func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Updates delivers each successfully reloaded config. The channel is never
// closed while Watch runs.
func (m *Manager) Updates() <-chan *Config {
	return m.updates
}

func (m *Manager) commit(cfg *Config, hash uint64) {
	m.mu.Lock()
	m.cfg = cfg
	m.lastHash = hash
	m.mu.Unlock()
}

// Watch blocks until ctx is cancelled, reloading the file on change events.
//
// fsnotify watchers occasionally go bad (editor rename dances, stale
// inotify state); the watcher is recreated with a small backoff when its
// channels close.
func (m *Manager) Watch(ctx context.Context) error {
	const (
		debounceDelay      = 200 * time.Millisecond
		restartBackoffBase = 250 * time.Millisecond
		restartBackoffMax  = 5 * time.Second
	)
	dir := filepath.Dir(m.path)
	file := filepath.Base(m.path)

	backoff := restartBackoffBase
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		w, err := fsnotify.NewWatcher()
		if err == nil {
			err = w.Add(dir)
		}
		if err != nil {
			m.log.Warn("config watcher setup failed; retrying", logx.Err(err), logx.Duration("backoff", backoff))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, restartBackoffMax)
			continue
		}
		backoff = restartBackoffBase

		if err := m.watchOnce(ctx, w, file, debounceDelay); err != nil {
			_ = w.Close()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.log.Warn("config watcher died; restarting", logx.Err(err))
			continue
		}
		_ = w.Close()
		return nil
	}
}

// watchOnce drives a single watcher until it breaks or ctx is cancelled.
func (m *Manager) watchOnce(ctx context.Context, w *fsnotify.Watcher, file string, debounceDelay time.Duration) error {
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	reload := make(chan struct{}, 1)
	arm := func() {
		if debounce != nil {
			debounce.Stop()
		}
		debounce = time.AfterFunc(debounceDelay, func() {
			select {
			case reload <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reload:
			m.reload()
		case ev, ok := <-w.Events:
			if !ok {
				return errWatcherClosed
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			m.log.Debug("config change detected; scheduling reload", logx.String("path", m.path))
			arm()
		case err, ok := <-w.Errors:
			if !ok {
				return errWatcherClosed
			}
			m.log.Warn("config watcher error", logx.Err(err))
		}
	}
}

func (m *Manager) reload() {
	b, err := os.ReadFile(m.path)
	if err != nil {
		m.log.Warn("config reload read failed; keeping previous config", logx.Err(err))
		return
	}

	h := hashBytes(b)
	m.mu.RLock()
	same := h == m.lastHash
	m.mu.RUnlock()
	if same {
		m.log.Debug("config unchanged; skipping reload")
		return
	}

	cfg, err := Parse(b)
	if err != nil {
		m.log.Warn("config reload failed; keeping previous config", logx.Err(err))
		return
	}

	m.commit(cfg, h)
	m.log.Info("config reloaded", logx.String("path", m.path))

	// Deliver the newest config; drop one stale update if the buffer is full.
	select {
	case m.updates <- cfg:
	default:
		select {
		case <-m.updates:
		default:
		}
		select {
		case m.updates <- cfg:
		default:
		}
	}
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
