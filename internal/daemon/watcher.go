package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/agentsync/agentsync/internal/engine"
	"github.com/agentsync/agentsync/internal/ignore"
	"github.com/agentsync/agentsync/internal/registry"
	"github.com/agentsync/agentsync/internal/rules"
)

// DefaultDebounce is the quiet period that ends a burst of events.
const DefaultDebounce = time.Second

// Runner runs one sync pass. *engine.Engine implements it.
type Runner interface {
	Run(ctx context.Context, root string, opts engine.Options) (*engine.SyncResult, error)
}

// Options configures a Watcher.
type Options struct {
	Root string
	// RulesDir is absolute or root-relative. Defaults to rules.DefaultDir.
	RulesDir string
	// StatePath is used by StartWatching only. Defaults to state.DefaultPath.
	StatePath string
	AutoSync  bool
	// Debounce defaults to DefaultDebounce.
	Debounce       time.Duration
	WatchPatterns  []string
	IgnorePatterns []string
	// Tools restricts passes to these ids.
	Tools []registry.ToolID
	// Registry defaults to registry.Default().
	Registry *registry.Registry
	Logger   *zap.Logger

	// OnManifest receives manifest-changed events.
	OnManifest func(Event)
	// OnPass receives the outcome of every pass.
	OnPass func(*engine.SyncResult, error)
}

// Stats summarizes a watcher's activity.
type Stats struct {
	Events    int       `json:"events"`
	Passes    int       `json:"passes"`
	LastPass  time.Time `json:"lastPass,omitempty"`
	LastError string    `json:"lastError,omitempty"`
}

// Watcher watches one project root.
type Watcher struct {
	runner     Runner
	opts       Options
	root       string
	classifier *Classifier
	logger     *zap.Logger

	fs      *fsnotify.Watcher
	pending chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
	stats   Stats
}

// NewWatcher validates opts and prepares a watcher. Call Start to begin.
func NewWatcher(runner Runner, opts Options) (*Watcher, error) {
	if runner == nil {
		return nil, &SetupError{Root: opts.Root, Err: errors.New("runner cannot be nil")}
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, &SetupError{Root: opts.Root, Err: err}
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, &SetupError{Root: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &SetupError{Root: root, Err: fmt.Errorf("%s is not a directory", root)}
	}

	if opts.RulesDir == "" {
		opts.RulesDir = rules.DefaultDir
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Registry == nil {
		opts.Registry = registry.Default()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	opts.Root = root

	ign, err := ignore.LoadFromDir(root, opts.IgnorePatterns...)
	if err != nil {
		return nil, &SetupError{Root: root, Err: fmt.Errorf("failed to load ignore patterns: %w", err)}
	}

	return &Watcher{
		runner:     runner,
		opts:       opts,
		root:       root,
		classifier: NewClassifier(root, opts.Registry, opts.RulesDir, opts.WatchPatterns, ign),
		logger:     opts.Logger.Named("watcher").With(zap.String("root", root)),
		pending:    make(chan struct{}, 1),
	}, nil
}

// Root returns the absolute project root.
func (w *Watcher) Root() string {
	return w.root
}

// Start subscribes to the project tree and starts the event and pass loops.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return &SetupError{Root: w.root, Err: errors.New("watcher already running")}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return &SetupError{Root: w.root, Err: fmt.Errorf("failed to create fsnotify watcher: %w", err)}
	}
	w.fs = fsw

	if err := w.addTree(w.root); err != nil {
		fsw.Close()
		return &SetupError{Root: w.root, Err: err}
	}
	if w.classifier.rulesOutsideRoot() {
		if err := w.addTree(w.classifier.RulesDir()); err != nil {
			w.logger.Warn("rules directory not watched", zap.String("dir", w.classifier.RulesDir()), zap.Error(err))
		}
	}

	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.running = true
	w.wg.Add(2)
	go w.eventLoop()
	go w.passLoop()

	w.logger.Info("watching",
		zap.Bool("auto_sync", w.opts.AutoSync),
		zap.Duration("debounce", w.opts.Debounce),
		zap.Int("dirs", len(fsw.WatchList())))
	return nil
}

// Stop stops watching. It blocks until a running pass has reached a point
// where no artifact is half written, and is safe to call more than once.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	err := w.fs.Close()
	w.wg.Wait()
	w.logger.Info("stopped")
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

// IsRunning reports whether the watcher is started.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// Stats returns a snapshot of the watcher's counters.
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Trigger queues a pass without waiting for the debounce window. It is a
// no-op when a pass is already queued.
func (w *Watcher) Trigger() {
	select {
	case w.pending <- struct{}{}:
	default:
	}
}

// addTree adds dir and every non-ignored directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != dir && w.classifier.Ignored(p, true) {
			return filepath.SkipDir
		}
		if err := w.fs.Add(p); err != nil {
			if p == dir {
				return fmt.Errorf("failed to watch %s: %w", p, err)
			}
			w.logger.Warn("directory not watched", zap.String("dir", p), zap.Error(err))
		}
		return nil
	})
}

func (w *Watcher) eventLoop() {
	defer w.wg.Done()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.ctx.Done():
			return

		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !w.handle(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.opts.Debounce)
			} else {
				timer.Reset(w.opts.Debounce)
			}
			timerC = timer.C

		case <-timerC:
			timerC = nil
			w.Trigger()

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

// handle classifies one raw event and reports whether it should (re)arm the
// debounce timer.
func (w *Watcher) handle(ev fsnotify.Event) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			return w.handleNewDir(ev.Name)
		}
	}

	e, ok := w.classifier.Classify(ev.Name, ev.Op)
	if !ok {
		return false
	}
	return w.dispatch(e)
}

// handleNewDir starts watching a directory created after Start and treats
// the files already inside it as created.
func (w *Watcher) handleNewDir(dir string) bool {
	if w.classifier.Ignored(dir, true) {
		return false
	}
	if err := w.addTree(dir); err != nil {
		w.logger.Warn("new directory not watched", zap.String("dir", dir), zap.Error(err))
		return false
	}
	arm := false
	_ = filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if e, ok := w.classifier.Classify(p, fsnotify.Create); ok && w.dispatch(e) {
			arm = true
		}
		return nil
	})
	return arm
}

func (w *Watcher) dispatch(e Event) bool {
	w.mu.Lock()
	w.stats.Events++
	w.mu.Unlock()

	log := w.logger.With(zap.String("path", e.Path), zap.String("class", string(e.Class)))
	if e.Tool != "" {
		log = log.With(zap.String("tool", string(e.Tool)))
	}

	switch {
	case e.Class == ClassArtifactRemoved:
		log.Info("artifact removed; it will not be recreated until an explicit sync")
		return false
	case e.Class == ClassManifestChanged:
		log.Info("dependency manifest changed")
		if w.opts.OnManifest != nil {
			w.opts.OnManifest(e)
		}
		return false
	case !w.opts.AutoSync:
		log.Info("change detected; auto-sync disabled")
		return false
	default:
		log.Debug("change detected")
		return e.Class.TriggersPass()
	}
}

// passLoop drains the one-slot queue, running one pass per item.
func (w *Watcher) passLoop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.pending:
			if w.ctx.Err() != nil {
				return
			}
			w.runPass()
		}
	}
}

func (w *Watcher) runPass() {
	opts := engine.Incremental(w.opts.AutoSync)
	opts.Tools = w.opts.Tools

	res, err := w.runner.Run(w.ctx, w.root, opts)

	w.mu.Lock()
	w.stats.Passes++
	w.stats.LastPass = time.Now()
	w.stats.LastError = ""
	if err != nil {
		w.stats.LastError = err.Error()
	}
	w.mu.Unlock()

	if err != nil {
		w.logger.Error("sync pass failed", zap.Error(err))
	} else if res != nil && res.Changed() {
		w.logger.Info("sync pass updated artifacts",
			zap.Int("written", res.Written), zap.Int("merged", res.Merged), zap.Int("errors", res.Errors))
	}
	if w.opts.OnPass != nil {
		w.opts.OnPass(res, err)
	}
}
