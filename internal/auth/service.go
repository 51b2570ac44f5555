package auth

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates name/password credentials. Accounts holding a role
// outside the permission matrix cannot sign in.
func (s *Service) Authenticate(ctx context.Context, name, password string) (*User, error) {
	user, err := s.repo.FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.Role.Valid() {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}
