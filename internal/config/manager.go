package config

import "sync"

// Manager serializes read-modify-write cycles against the config file.
// Handlers mutate through Update so two concurrent API calls never lose
// each other's writes.
type Manager struct {
	path string
	mu   sync.Mutex
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) Path() string {
	return m.path
}

// Load reads the current configuration.
func (m *Manager) Load() (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Load(m.path)
}

// Update loads the config, applies fn, and saves the result. If fn
// returns an error nothing is written.
func (m *Manager) Update(fn func(*Config) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	if err := fn(cfg); err != nil {
		return err
	}
	return Save(m.path, cfg)
}
