package config

import (
	"os"
	"sync"
)

// Store keeps a Config together with the file it came from.
type Store struct {
	mu   sync.Mutex
	path string
	data Config
}

func NewStore(path string) *Store {
	return &Store{path: path, data: Default()}
}

// Load reads the file. A missing file is created with the defaults.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, err := Load(s.path)
	if err != nil {
		return err
	}
	s.data = cfg
	if s.path == "" {
		return nil
	}
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return Save(s.path, s.data)
	}
	return nil
}

func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.path == "" {
		return nil
	}
	return Save(s.path, s.data)
}

func (s *Store) Path() string { return s.path }

func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data
}

// Update applies fn to the stored config.
func (s *Store) Update(fn func(*Config)) {
	s.mu.Lock()
	fn(&s.data)
	s.mu.Unlock()
}
