// Package preset manages named instruction presets: a YAML file on disk,
// an in-memory library, and an optional live-reload watcher.
package preset

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"promptforge/internal/logging"
)

// Preset bundles the run parameters a user applies as one unit.
type Preset struct {
	Name            string `yaml:"name"`
	Instruction     string `yaml:"instruction"`
	OutputsPerRound int    `yaml:"outputs_per_round,omitempty"`
	Rounds          int    `yaml:"rounds,omitempty"`
	Translation     bool   `yaml:"translation,omitempty"`
}

// presetFile is the on-disk document shape.
type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// Library holds the presets loaded from one YAML file. Safe for
// concurrent use; the watcher reloads it in place.
type Library struct {
	mu      sync.RWMutex
	path    string
	presets map[string]Preset
}

// NewLibrary creates a library bound to path. The file is not read until
// Load; a missing file is an empty library, not an error.
func NewLibrary(path string) *Library {
	return &Library{
		path:    path,
		presets: make(map[string]Preset),
	}
}

// Path returns the YAML file this library is bound to.
func (l *Library) Path() string {
	return l.path
}

// Load reads the preset file, replacing the in-memory set. A missing
// file leaves the library empty.
func (l *Library) Load() error {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.PresetDebug("preset file %s not found, starting empty", l.path)
			l.mu.Lock()
			l.presets = make(map[string]Preset)
			l.mu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to read preset file: %w", err)
	}

	var doc presetFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse preset file: %w", err)
	}

	next := make(map[string]Preset, len(doc.Presets))
	for _, p := range doc.Presets {
		if p.Name == "" {
			logging.PresetWarn("skipping unnamed preset in %s", l.path)
			continue
		}
		next[p.Name] = p
	}

	l.mu.Lock()
	l.presets = next
	l.mu.Unlock()

	logging.Preset("loaded %d preset(s) from %s", len(next), l.path)
	return nil
}

// Save writes the current set back to the file, creating parent
// directories as needed. Presets are written in name order so the file
// diffs cleanly.
func (l *Library) Save() error {
	doc := presetFile{Presets: l.List()}

	data, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to marshal presets: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create preset directory: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write preset file: %w", err)
	}

	logging.Preset("saved %d preset(s) to %s", len(doc.Presets), l.path)
	return nil
}

// Get looks up a preset by name.
func (l *Library) Get(name string) (Preset, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.presets[name]
	return p, ok
}

// List returns all presets sorted by name.
func (l *Library) List() []Preset {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Preset, 0, len(l.presets))
	for _, p := range l.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Set adds or replaces a preset. The caller persists with Save.
func (l *Library) Set(p Preset) error {
	if p.Name == "" {
		return fmt.Errorf("preset name must not be empty")
	}
	l.mu.Lock()
	l.presets[p.Name] = p
	l.mu.Unlock()
	return nil
}

// Remove deletes a preset by name, reporting whether it existed.
func (l *Library) Remove(name string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	_, ok := l.presets[name]
	delete(l.presets, name)
	return ok
}

// Len returns the number of presets currently loaded.
func (l *Library) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.presets)
}
