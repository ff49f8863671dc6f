package daemon

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/agentsync/agentsync/internal/engine"
	"github.com/agentsync/agentsync/internal/state"
)

// Handle identifies one running watcher.
type Handle struct {
	ID        string
	Root      string
	StartedAt time.Time

	watcher *Watcher
	closers []io.Closer
}

// Watcher returns the underlying watcher.
func (h *Handle) Watcher() *Watcher {
	return h.watcher
}

// Manager is a registry of running watchers, one per absolute project root.
type Manager struct {
	mu      sync.Mutex
	handles map[string]*Handle
	logger  *zap.Logger
}

// NewManager creates an empty manager. A nil logger disables logging.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		handles: make(map[string]*Handle),
		logger:  logger.Named("manager"),
	}
}

var defaultManager = NewManager(nil)

// Default returns the process-wide manager used by StartWatching.
func Default() *Manager {
	return defaultManager
}

// Start creates and starts a watcher for opts.Root. It fails with
// ErrAlreadyWatching if the root is already watched by this manager.
func (m *Manager) Start(runner Runner, opts Options) (*Handle, error) {
	return m.start(runner, opts)
}

func (m *Manager) start(runner Runner, opts Options, closers ...io.Closer) (*Handle, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, &SetupError{Root: opts.Root, Err: err}
	}
	opts.Root = root

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.handles[root]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyWatching, root)
	}

	w, err := NewWatcher(runner, opts)
	if err != nil {
		return nil, err
	}
	if err := w.Start(); err != nil {
		return nil, err
	}

	h := &Handle{
		ID:        uuid.NewString(),
		Root:      root,
		StartedAt: time.Now(),
		watcher:   w,
		closers:   closers,
	}
	m.handles[root] = h
	m.logger.Debug("watcher registered", zap.String("root", root), zap.String("handle", h.ID))
	return h, nil
}

// Stop stops the watcher behind h and releases its resources.
func (m *Manager) Stop(h *Handle) error {
	if h == nil {
		return ErrNotWatching
	}
	m.mu.Lock()
	cur, ok := m.handles[h.Root]
	if !ok || cur != h {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotWatching, h.Root)
	}
	delete(m.handles, h.Root)
	m.mu.Unlock()

	errs := []error{h.watcher.Stop()}
	for _, c := range h.closers {
		errs = append(errs, c.Close())
	}
	m.logger.Debug("watcher unregistered", zap.String("root", h.Root), zap.String("handle", h.ID))
	return errors.Join(errs...)
}

// StopAll stops every watcher. Used on process shutdown.
func (m *Manager) StopAll() error {
	var errs []error
	for _, h := range m.Handles() {
		if err := m.Stop(h); err != nil && !errors.Is(err, ErrNotWatching) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Handles returns the running watchers sorted by root.
func (m *Manager) Handles() []*Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Handle, 0, len(m.handles))
	for _, h := range m.handles {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Root < out[j].Root })
	return out
}

// Lookup returns the handle watching root.
func (m *Manager) Lookup(root string) (*Handle, bool) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[abs]
	return h, ok
}

// StartWatching opens the project's state store, builds a sync engine over it
// and starts a watcher on the default manager. The store is closed by
// StopWatching.
func StartWatching(opts Options) (*Handle, error) {
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, &SetupError{Root: opts.Root, Err: err}
	}
	opts.Root = root

	statePath := opts.StatePath
	if statePath == "" {
		statePath = state.DefaultPath
	}
	if !filepath.IsAbs(statePath) {
		statePath = filepath.Join(root, filepath.FromSlash(statePath))
	}
	st, err := state.OpenSQLite(statePath)
	if err != nil {
		return nil, &SetupError{Root: root, Err: err}
	}

	e, err := engine.New(engine.Config{
		Registry: opts.Registry,
		State:    st,
		RulesDir: opts.RulesDir,
		Logger:   opts.Logger,
	})
	if err != nil {
		st.Close()
		return nil, &SetupError{Root: root, Err: err}
	}

	h, err := defaultManager.start(e, opts, st)
	if err != nil {
		st.Close()
		return nil, err
	}
	return h, nil
}

// StopWatching stops a watcher started with StartWatching.
func StopWatching(h *Handle) error {
	return defaultManager.Stop(h)
}
