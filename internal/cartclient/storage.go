package cartclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sakashimaa/ravolux/internal/domain"
)

const (
	KeySessionID = "session_id"
	KeyCartID    = "cart_id"
	KeyUser      = "user"
	KeyRole      = "role"
	KeyAuthToken = "authToken"
)

// Storage is the client's persistent key/value state.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Delete(key string) error
}

type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	return v, ok
}

func (s *MemoryStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

func (s *MemoryStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

// FileStorage keeps the state in a JSON object on disk and rewrites the
// whole file on every change.
type FileStorage struct {
	mu   sync.Mutex
	path string
	data map[string]string
}

func NewFileStorage(path string) (*FileStorage, error) {
	s := &FileStorage{
		path: path,
		data: make(map[string]string),
	}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read storage file: %w", err)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &s.data); err != nil {
			return nil, fmt.Errorf("decode storage file: %w", err)
		}
	}

	return s, nil
}

func (s *FileStorage) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	return v, ok
}

func (s *FileStorage) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	s.data[key] = value

	if err := s.flush(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}

	return nil
}

func (s *FileStorage) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.data[key]
	if !had {
		return nil
	}
	delete(s.data, key)

	if err := s.flush(); err != nil {
		s.data[key] = prev
		return err
	}

	return nil
}

func (s *FileStorage) flush() error {
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		return fmt.Errorf("encode storage: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("create storage dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return fmt.Errorf("write storage file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace storage file: %w", err)
	}

	return nil
}

// AuthUser is the signed-in customer as persisted by the client.
type AuthUser struct {
	ID    int64       `json:"id"`
	Email string      `json:"email"`
	Name  string      `json:"name,omitempty"`
	Role  domain.Role `json:"role"`
	Token string      `json:"-"`
}

func SaveAuthUser(s Storage, user *AuthUser) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("encode user: %w", err)
	}

	if err := s.Set(KeyUser, string(raw)); err != nil {
		return err
	}
	if err := s.Set(KeyRole, string(user.Role)); err != nil {
		return err
	}

	return s.Set(KeyAuthToken, user.Token)
}

// LoadAuthUser returns nil when nobody is signed in.
func LoadAuthUser(s Storage) (*AuthUser, error) {
	raw, ok := s.Get(KeyUser)
	if !ok || raw == "" {
		return nil, nil
	}

	user := new(AuthUser)
	if err := json.Unmarshal([]byte(raw), user); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	user.Token, _ = s.Get(KeyAuthToken)

	if role, ok := s.Get(KeyRole); ok && role != "" {
		user.Role = domain.Role(role)
	}

	return user, nil
}

func ClearAuthUser(s Storage) error {
	for _, key := range []string{KeyUser, KeyRole, KeyAuthToken} {
		if err := s.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func storedCartID(s Storage) (int64, bool) {
	raw, ok := s.Get(KeyCartID)
	if !ok {
		return 0, false
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
