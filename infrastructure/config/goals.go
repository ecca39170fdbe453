package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/recon-go/domain/config"
	"github.com/felixgeelhaar/recon-go/domain/goal"
	"github.com/felixgeelhaar/recon-go/infrastructure/logging"
)

type goalsDocument struct {
	Goals []goal.Spec `yaml:"goals"`
}

// LoadGoalsFile reads extra goals from a YAML document with a top-level
// "goals" list. Every goal is validated.
func LoadGoalsFile(path string) ([]goal.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, path)
		}
		return nil, fmt.Errorf("failed to read goals file: %w", err)
	}

	var doc goalsDocument
	if err := yaml.Unmarshal([]byte(ExpandEnv(string(data))), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidFormat, err)
	}
	for _, s := range doc.Goals {
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return doc.Goals, nil
}

// ApplyGoalsFile replaces the registry with the built-in goals followed by
// the goals in path. The registry is unchanged on error.
func ApplyGoalsFile(registry *goal.Registry, path string) error {
	extra, err := LoadGoalsFile(path)
	if err != nil {
		return err
	}
	return registry.Replace(append(goal.Builtin(), extra...))
}

// GoalWatcher reloads a goals file into a registry when it changes.
type GoalWatcher struct {
	path     string
	registry *goal.Registry

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	reloads int
}

// NewGoalWatcher creates a watcher for path.
func NewGoalWatcher(path string, registry *goal.Registry) *GoalWatcher {
	return &GoalWatcher{path: filepath.Clean(path), registry: registry}
}

// Start loads the file once and then watches its directory until ctx ends.
// Editors often replace files instead of writing them in place, so the
// directory is watched rather than the file.
func (w *GoalWatcher) Start(ctx context.Context) error {
	if err := ApplyGoalsFile(w.registry, w.path); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to watch goals file: %w", err)
	}

	w.mu.Lock()
	w.watcher = watcher
	w.mu.Unlock()

	go w.loop(ctx, watcher)
	return nil
}

func (w *GoalWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher) {
	defer watcher.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			logging.Warn().
				Add(logging.Component("goal_watcher")).
				Add(logging.ErrorField(err)).
				Msg("goals watcher error")
		}
	}
}

func (w *GoalWatcher) reload() {
	if err := ApplyGoalsFile(w.registry, w.path); err != nil {
		logging.Warn().
			Add(logging.Component("goal_watcher")).
			Add(logging.Str("path", w.path)).
			Add(logging.ErrorField(err)).
			Msg("ignoring invalid goals file")
		return
	}

	w.mu.Lock()
	w.reloads++
	w.mu.Unlock()

	logging.Info().
		Add(logging.Component("goal_watcher")).
		Add(logging.Count("goals", w.registry.Len())).
		Msg("goals reloaded")
}

// Reloads returns the number of successful reloads after the initial load.
func (w *GoalWatcher) Reloads() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.reloads
}

// Close stops watching.
func (w *GoalWatcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Close()
}
