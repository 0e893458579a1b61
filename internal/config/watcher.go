package config

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"studymate/internal/logging"
)

// PolicyWatcher watches the policy directory for changes and reloads the
// policy lists without a restart, so the trusted-domain and banned-keyword
// files stay editable in production.
type PolicyWatcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	dir         string
	current     *Policy
	onReload    func(*Policy)
	debounceMap map[string]time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewPolicyWatcher creates a watcher over dir. onReload (optional) is
// invoked after every successful reload.
func NewPolicyWatcher(dir string, onReload func(*Policy)) (*PolicyWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	initial, err := LoadPolicy(dir)
	if err != nil {
		w.Close()
		return nil, err
	}

	return &PolicyWatcher{
		watcher:     w,
		dir:         dir,
		current:     initial,
		onReload:    onReload,
		debounceMap: make(map[string]time.Time),
		debounceDur: 500 * time.Millisecond, // editors fire multiple events per save
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Policy returns the currently loaded policy.
func (pw *PolicyWatcher) Policy() *Policy {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	return pw.current
}

// Start begins watching. Non-blocking; the watch loop runs until Stop or
// ctx cancellation.
func (pw *PolicyWatcher) Start(ctx context.Context) error {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	if pw.running {
		return nil
	}
	if err := pw.watcher.Add(pw.dir); err != nil {
		return err
	}
	pw.running = true

	go pw.loop(ctx)
	return nil
}

func (pw *PolicyWatcher) loop(ctx context.Context) {
	defer close(pw.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-pw.stopCh:
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".yaml") {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if pw.debounced(event.Name) {
				continue
			}
			pw.reload(event.Name)
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryConfig).Warn("policy watcher error: %v", err)
		}
	}
}

func (pw *PolicyWatcher) debounced(name string) bool {
	pw.mu.Lock()
	defer pw.mu.Unlock()
	now := time.Now()
	if last, ok := pw.debounceMap[name]; ok && now.Sub(last) < pw.debounceDur {
		return true
	}
	pw.debounceMap[name] = now
	return false
}

func (pw *PolicyWatcher) reload(changed string) {
	p, err := LoadPolicy(pw.dir)
	if err != nil {
		// Keep serving the previous lists rather than dropping policy.
		logging.Get(logging.CategoryConfig).Warn("policy reload failed after %s changed: %v",
			filepath.Base(changed), err)
		return
	}

	pw.mu.Lock()
	pw.current = p
	cb := pw.onReload
	pw.mu.Unlock()

	logging.Config("policy reloaded after %s changed", filepath.Base(changed))
	if cb != nil {
		cb(p)
	}
}

// Stop terminates the watch loop and releases the inotify handle. Safe to
// call even when Start never ran or failed.
func (pw *PolicyWatcher) Stop() {
	pw.mu.Lock()
	if !pw.running {
		pw.mu.Unlock()
		pw.watcher.Close()
		return
	}
	pw.running = false
	pw.mu.Unlock()

	close(pw.stopCh)
	pw.watcher.Close()
	<-pw.doneCh
}
