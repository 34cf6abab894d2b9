package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/leadboard/internal/config"
	"github.com/leadboard/internal/models"
	"github.com/leadboard/internal/repository"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Claims are the custom JWT claims carried by access tokens
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// authService is the concrete implementation of AuthService
type authService struct {
	users repository.UserRepository
	cfg   config.AuthConfig
	now   func() time.Time
	log   zerolog.Logger
}

func newAuthService(users repository.UserRepository, cfg config.AuthConfig, log zerolog.Logger) *authService {
	return &authService{
		users: users,
		cfg:   cfg,
		now:   time.Now,
		log:   log.With().Str("service", "auth").Logger(),
	}
}

// Login verifies credentials and issues a signed token
func (s *authService) Login(ctx context.Context, username, password string) (*models.LoginResponse, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	if user == nil {
		return nil, ErrInvalidLogin
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.log.Info().Str("username", username).Msg("Rejected login")
		return nil, ErrInvalidLogin
	}

	token, err := s.issue(user)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	s.log.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("User logged in")
	return &models.LoginResponse{Token: token, User: *user}, nil
}

func (s *authService) issue(user *models.User) (string, error) {
	now := s.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.cfg.Issuer,
			Subject:   user.ID,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Username: user.Username,
		Name:     user.Name,
		Role:     user.Role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.JWTSecret))
}

// Authenticate validates a token and returns the user it was issued to
func (s *authService) Authenticate(tokenString string) (*models.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.cfg.JWTSecret), nil
	}, jwt.WithIssuer(s.cfg.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" || !models.ValidRoles[claims.Role] {
		return nil, ErrInvalidToken
	}

	return &models.User{
		ID:       claims.Subject,
		Username: claims.Username,
		Name:     claims.Name,
		Role:     claims.Role,
	}, nil
}

// CreateUser stores a new user with a bcrypt password hash
func (s *authService) CreateUser(ctx context.Context, username, name, role, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, invalid("username is required")
	}
	if !models.ValidRoles[role] {
		return nil, invalid("role must be one of: %s, %s", models.RoleAdmin, models.RoleSalesTeam)
	}
	if len(password) < 8 {
		return nil, invalid("password must be at least 8 characters")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	if name == "" {
		name = username
	}
	user := &models.User{
		ID:           uuid.New().String(),
		Username:     username,
		Name:         name,
		Role:         role,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// EnsureAdmin creates the bootstrap admin account when configured and missing
func (s *authService) EnsureAdmin(ctx context.Context) error {
	if s.cfg.AdminUsername == "" || s.cfg.AdminPassword == "" {
		return nil
	}

	existing, err := s.users.GetByUsername(ctx, s.cfg.AdminUsername)
	if err != nil {
		return fmt.Errorf("look up admin: %w", err)
	}
	if existing != nil {
		return nil
	}

	user, err := s.CreateUser(ctx, s.cfg.AdminUsername, "Administrator", models.RoleAdmin, s.cfg.AdminPassword)
	if err != nil {
		return err
	}
	s.log.Info().Str("user_id", user.ID).Str("username", user.Username).Msg("Bootstrap admin created")
	return nil
}
