package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Service keeps the relay's accounts and issues session tokens.
type Service struct {
	jwtConfig *JWTConfig
	cost      int

	mu       sync.RWMutex
	accounts map[string]string // username -> bcrypt hash
}

// Option configures a Service.
type Option func(*Service)

// WithPasswordCost sets the bcrypt cost for new accounts.
func WithPasswordCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// NewService creates a new authentication service with no accounts.
func NewService(jwtConfig *JWTConfig, opts ...Option) *Service {
	s := &Service{
		jwtConfig: jwtConfig,
		cost:      bcrypt.DefaultCost,
		accounts:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Seed registers every username/password pair, skipping existing accounts.
func (s *Service) Seed(ctx context.Context, accounts map[string]string) error {
	for username, password := range accounts {
		if _, err := s.Register(ctx, username, password); err != nil && !errors.Is(err, ErrUserExists) {
			return fmt.Errorf("seed account %q: %w", username, err)
		}
	}
	return nil
}

// Register creates a new account with hashed password and returns a token.
func (s *Service) Register(ctx context.Context, username, password string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) < 1 || len(username) > 64 || strings.ContainsAny(username, " @/") {
		return "", ErrInvalidUsername
	}
	if len(password) < 6 {
		return "", ErrInvalidPassword
	}

	hashedPassword, err := hashPassword(password, s.cost)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	if _, exists := s.accounts[username]; exists {
		s.mu.Unlock()
		return "", ErrUserExists
	}
	s.accounts[username] = hashedPassword
	s.mu.Unlock()

	return s.issue(username)
}

// Login validates credentials and returns a token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	if err := s.Authenticate(ctx, username, password); err != nil {
		return "", err
	}
	return s.issue(username)
}

// Authenticate checks credentials without issuing a token.
func (s *Service) Authenticate(_ context.Context, username, password string) error {
	s.mu.RLock()
	hash, ok := s.accounts[username]
	s.mu.RUnlock()
	if !ok {
		return ErrInvalidCredentials
	}
	if err := ComparePassword(hash, password); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// ValidateToken validates a token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

func (s *Service) issue(username string) (string, error) {
	token, err := GenerateToken(s.jwtConfig, username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
