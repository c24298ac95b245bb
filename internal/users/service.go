package users

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/relaytrack/relaytrack/internal/shared"
)

// ErrBadCredentials is returned on any authentication failure; callers get
// no hint whether the code or the password was wrong.
var ErrBadCredentials = errors.New("invalid user code or password")

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context) ([]User, error) {
	return s.repo.List(ctx)
}

func (s *Service) Get(ctx context.Context, id int64) (User, error) {
	if id <= 0 {
		return User{}, errors.New("invalid user ID")
	}
	return s.repo.Get(ctx, id)
}

// Create hashes the plaintext password and stores the user.
func (s *Service) Create(ctx context.Context, u User, password string) (User, error) {
	if strings.TrimSpace(u.Code) == "" {
		return User{}, errors.New("user code is required")
	}
	if password == "" {
		return User{}, errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return User{}, err
	}
	u.PasswordHash = string(hash)
	return s.repo.Create(ctx, u)
}

// Authenticate checks a user code and password pair.
func (s *Service) Authenticate(ctx context.Context, code, password string) (User, error) {
	u, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return User{}, ErrBadCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return User{}, ErrBadCredentials
	}
	return u, nil
}

// UserCodeExists reports whether a field user with the given code exists.
func (s *Service) UserCodeExists(ctx context.Context, code string) (bool, error) {
	_, err := s.repo.GetByCode(ctx, code)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ReassignDevice binds a device to the user with the given code. Any other
// user currently holding the device loses it; a device belongs to exactly
// one user and the newest binding wins.
func (s *Service) ReassignDevice(ctx context.Context, userCode, deviceID string) error {
	if deviceID == "" {
		return errors.New("device ID is required")
	}
	u, err := s.repo.GetByCode(ctx, userCode)
	if err != nil {
		return err
	}
	if err := s.repo.ClearDevice(ctx, deviceID); err != nil {
		return err
	}
	return s.repo.AssignDevice(ctx, u.ID, deviceID)
}
