package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/helicon-ai/inquiro/internal/research"
	"github.com/helicon-ai/inquiro/internal/search"
)

// SourceProfile tunes search behavior for one strategy. Profiles live
// as YAML files in the profiles directory and reload on change
// without a restart.
type SourceProfile struct {
	Strategy       string   `yaml:"strategy"`
	Qualifier      string   `yaml:"qualifier"`
	MaxResults     int      `yaml:"max_results"`
	BlockedDomains []string `yaml:"blocked_domains"`
	MinRelevance   float64  `yaml:"min_relevance"`
}

// ProfileChangeHandler is notified after a profile file is loaded or
// reloaded.
type ProfileChangeHandler func(name string, profile SourceProfile)

// ProfileWatcher keeps source profiles in sync with the files on disk.
type ProfileWatcher struct {
	dir      string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	mu       sync.RWMutex
	profiles map[string]SourceProfile
	handlers []ProfileChangeHandler
	stopCh   chan struct{}
}

// NewProfileWatcher loads every profile in dir and begins watching it.
func NewProfileWatcher(dir string, logger *zap.Logger) (*ProfileWatcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("profiles: create watcher: %w", err)
	}

	pw := &ProfileWatcher{
		dir:      dir,
		logger:   logger,
		watcher:  watcher,
		profiles: make(map[string]SourceProfile),
		stopCh:   make(chan struct{}),
	}
	if err := pw.loadAll(); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("profiles: watch dir: %w", err)
	}
	go pw.watchLoop()
	return pw, nil
}

// Get returns the profile by file base name (without extension).
func (pw *ProfileWatcher) Get(name string) (SourceProfile, bool) {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	p, ok := pw.profiles[name]
	return p, ok
}

// All returns a snapshot of every loaded profile.
func (pw *ProfileWatcher) All() map[string]SourceProfile {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	out := make(map[string]SourceProfile, len(pw.profiles))
	for k, v := range pw.profiles {
		out[k] = v
	}
	return out
}

// ProfileFor resolves the loaded profile for a search strategy. It
// satisfies the search gateway's profile provider.
func (pw *ProfileWatcher) ProfileFor(strategy research.SearchStrategy) (search.Profile, bool) {
	pw.mu.RLock()
	defer pw.mu.RUnlock()
	for _, p := range pw.profiles {
		if p.Strategy == string(strategy) {
			return search.Profile{
				Qualifier:      p.Qualifier,
				MaxResults:     p.MaxResults,
				BlockedDomains: p.BlockedDomains,
				MinRelevance:   p.MinRelevance,
			}, true
		}
	}
	return search.Profile{}, false
}

// OnChange registers a handler for profile loads and reloads.
func (pw *ProfileWatcher) OnChange(h ProfileChangeHandler) {
	pw.mu.Lock()
	pw.handlers = append(pw.handlers, h)
	pw.mu.Unlock()
}

// Stop ends watching. Loaded profiles stay readable.
func (pw *ProfileWatcher) Stop() error {
	close(pw.stopCh)
	return pw.watcher.Close()
}

func (pw *ProfileWatcher) loadAll() error {
	entries, err := os.ReadDir(pw.dir)
	if err != nil {
		return fmt.Errorf("profiles: read dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}
		if err := pw.loadFile(filepath.Join(pw.dir, e.Name())); err != nil {
			pw.logger.Warn("Skipping invalid profile",
				zap.String("file", e.Name()),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (pw *ProfileWatcher) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var profile SourceProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	pw.mu.Lock()
	pw.profiles[name] = profile
	handlers := make([]ProfileChangeHandler, len(pw.handlers))
	copy(handlers, pw.handlers)
	pw.mu.Unlock()

	pw.logger.Info("Source profile loaded",
		zap.String("name", name),
		zap.String("strategy", profile.Strategy),
	)
	for _, h := range handlers {
		h(name, profile)
	}
	return nil
}

func (pw *ProfileWatcher) watchLoop() {
	for {
		select {
		case <-pw.stopCh:
			return
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if !isYAML(event.Name) {
				continue
			}
			switch {
			case event.Op&fsnotify.Write == fsnotify.Write,
				event.Op&fsnotify.Create == fsnotify.Create:
				if err := pw.loadFile(event.Name); err != nil {
					pw.logger.Warn("Profile reload failed",
						zap.String("file", event.Name),
						zap.Error(err),
					)
				}
			case event.Op&fsnotify.Remove == fsnotify.Remove,
				event.Op&fsnotify.Rename == fsnotify.Rename:
				name := strings.TrimSuffix(filepath.Base(event.Name), filepath.Ext(event.Name))
				pw.mu.Lock()
				delete(pw.profiles, name)
				pw.mu.Unlock()
				pw.logger.Info("Source profile removed", zap.String("name", name))
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.logger.Error("Profile watcher error", zap.Error(err))
		}
	}
}

func isYAML(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}
