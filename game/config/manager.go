package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrConfigNotFound = errors.New("configuration not found")
	ErrInvalidConfig  = errors.New("invalid configuration")
)

// Manager loads and caches engine tuning files from a directory.
type Manager struct {
	configDir string
	cache     map[string]json.RawMessage
	mu        sync.RWMutex
}

// NewManager creates a configuration manager over configDir. The directory
// may be empty; it just has to exist.
func NewManager(configDir string) (*Manager, error) {
	if _, err := os.Stat(configDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("config directory does not exist: %s", configDir)
	}
	return &Manager{
		configDir: configDir,
		cache:     make(map[string]json.RawMessage),
	}, nil
}

// Tuning unmarshals the tuning file for gameType into out. A missing file
// leaves out untouched so the engine's defaults apply.
func (m *Manager) Tuning(gameType string, out any) error {
	raw, err := m.load(gameType)
	if err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return nil
		}
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, gameType, err)
	}
	return nil
}

// List returns the game types that have a tuning file on disk.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(m.configDir)
	if err != nil {
		return nil, fmt.Errorf("read config directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}
	return names, nil
}

func (m *Manager) load(gameType string) (json.RawMessage, error) {
	m.mu.RLock()
	if raw, ok := m.cache[gameType]; ok {
		m.mu.RUnlock()
		return raw, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if raw, ok := m.cache[gameType]; ok {
		return raw, nil
	}

	path := filepath.Join(m.configDir, gameType+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("read tuning file %s: %w", path, err)
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid JSON", ErrInvalidConfig, path)
	}
	m.cache[gameType] = data
	return data, nil
}
