package users

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"rollcall/internal/apperr"
	"rollcall/internal/auth"
)

var errDuplicate = errors.New("duplicate user")

// Service handles registration and credential checks.
type Service struct {
	repo *Repository
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func validRole(role string) bool {
	return role == auth.RoleStudent || role == auth.RoleTeacher || role == auth.RoleAdmin
}

// Register creates a user with a bcrypt-hashed password.
func (s *Service) Register(ctx context.Context, username, email, password, role string) (*User, error) {
	if username == "" || email == "" {
		return nil, apperr.Validation("username and email are required")
	}
	if len(password) < 6 {
		return nil, apperr.Validation("password must be at least 6 characters long")
	}
	if role == "" {
		role = auth.RoleStudent
	}
	if !validRole(role) {
		return nil, apperr.Validation("role must be one of student, teacher, admin")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.Insert(ctx, username, email, string(hash), role)
	if err != nil {
		if errors.Is(err, errDuplicate) {
			return nil, apperr.Conflict("username or email already registered")
		}
		return nil, err
	}
	return u, nil
}

// Authenticate verifies a username/password pair.
func (s *Service) Authenticate(ctx context.Context, username, password string) (*User, error) {
	u, hash, err := s.repo.ByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if u == nil || bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, apperr.Forbidden("invalid username or password")
	}
	return u, nil
}

// ByID returns the user or a typed not-found error.
func (s *Service) ByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.ByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, apperr.NotFound("user not found")
	}
	return u, nil
}

// StudentByEmail resolves a student account by email for roster additions.
func (s *Service) StudentByEmail(ctx context.Context, email string) (*User, error) {
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	u, err := s.repo.ByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil || u.Role != auth.RoleStudent {
		return nil, apperr.NotFound("no student with this email")
	}
	return u, nil
}
