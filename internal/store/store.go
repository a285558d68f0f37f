package store

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"coinex/internal/models"

	"github.com/google/uuid"
)

var (
	ErrUserExists   = errors.New("username already taken")
	ErrUserNotFound = errors.New("user not found")
)

// Store holds registered users in memory. There is no database in this demo;
// state does not survive a restart.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*models.User
	byUsername map[string]*models.User
}

// New creates an empty store
func New() *Store {
	return &Store{
		byID:       make(map[string]*models.User),
		byUsername: make(map[string]*models.User),
	}
}

// CreateUser inserts a new user
func (s *Store) CreateUser(username, passwordHash string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[username]; ok {
		return nil, fmt.Errorf("failed to create user %q: %w", username, ErrUserExists)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     username,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now(),
	}
	s.byID[user.ID] = user
	s.byUsername[username] = user

	copied := *user
	return &copied, nil
}

// GetUserByUsername retrieves a user by username
func (s *Store) GetUserByUsername(username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}

// GetUser retrieves a user by id
func (s *Store) GetUser(id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copied := *user
	return &copied, nil
}
