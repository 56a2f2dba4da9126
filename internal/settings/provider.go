// Package settings holds the runtime options an operator can change without
// restarting the service: source units, allowlists, the shared secret, and the
// retention window. Options live in a key-value Provider and are parsed into a
// typed Settings value on every use.
package settings

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider is a key-value store of option strings.
type Provider interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// Memory is a Provider backed by a map.
type Memory struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates a Memory provider seeded with values.
func NewMemory(values map[string]string) *Memory {
	m := &Memory{values: make(map[string]string, len(values))}
	maps.Copy(m.values, values)
	return m
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// document is the on-disk layout of a settings file.
type document struct {
	UpdatedAt time.Time         `yaml:"updated_at"`
	Options   map[string]string `yaml:"options"`
}

// File is a Provider persisted as YAML. Reads are served from memory; every
// Set rewrites the file.
type File struct {
	path string

	mu     sync.RWMutex
	values map[string]string
}

// OpenFile loads the settings file at path. A missing file yields an empty
// provider; the file is created on the first Set.
func OpenFile(path string) (*File, error) {
	f := &File{path: path, values: map[string]string{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if doc.Options != nil {
		f.values = doc.Options
	}
	return f, nil
}

func (f *File) Get(key string) (string, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *File) Set(key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	prev, had := f.values[key]
	f.values[key] = value
	if err := f.save(); err != nil {
		if had {
			f.values[key] = prev
		} else {
			delete(f.values, key)
		}
		return err
	}
	return nil
}

// save writes the current values. Callers hold f.mu.
func (f *File) save() error {
	data, err := yaml.Marshal(document{
		UpdatedAt: time.Now().UTC(),
		Options:   f.values,
	})
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
