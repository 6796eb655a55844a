package memstore

import (
	"context"
	"sync"
)

// Prefs mirrors prefstore.Store.
type Prefs struct {
	faults
	mu sync.Mutex
	kv map[string]string
}

// Peek returns the stored value without counting a call.
func (s *Prefs) Peek(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok
}

func (s *Prefs) Get(ctx context.Context, key string) (string, bool, error) {
	if err := s.hit("Get"); err != nil {
		return "", false, err
	}
	v, ok := s.Peek(key)
	return v, ok, nil
}

func (s *Prefs) Set(ctx context.Context, key, value string) error {
	if err := s.hit("Set"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	return nil
}

func (s *Prefs) Delete(ctx context.Context, key string) error {
	if err := s.hit("Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}
