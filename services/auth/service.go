// Package auth issues and validates admin session tokens.
package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upb/llm-failover-router/services"
)

const (
	// AdminRole is the only role a session can carry.
	AdminRole = "admin"

	issuer            = "llm-failover-router"
	DefaultSessionTTL = 24 * time.Hour
)

// ErrTokenExpired is returned for a well-formed session past its expiry.
var ErrTokenExpired = errors.New("token expired")

// Claims are the session token claims
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Session is an issued admin token.
type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Config holds the session settings
type Config struct {
	Password   string
	JWTSecret  string
	SessionTTL time.Duration
}

// Service authenticates the single admin principal.
type Service struct {
	passwordDigest [32]byte
	hasPassword    bool
	secret         []byte
	ttl            time.Duration
	logger         *zap.Logger
	now            func() time.Time
}

// NewService creates the admin auth service. Without a JWT secret, a random
// one is generated and sessions do not survive a restart.
func NewService(cfg Config, logger *zap.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}
	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString() + uuid.NewString()
		logger.Warn("ADMIN_JWT_SECRET not set, using an ephemeral signing secret")
	}
	return &Service{
		passwordDigest: sha256.Sum256([]byte(cfg.Password)),
		hasPassword:    cfg.Password != "",
		secret:         []byte(secret),
		ttl:            cfg.SessionTTL,
		logger:         logger,
		now:            time.Now,
	}
}

// Login checks password and returns a signed session.
func (s *Service) Login(ctx context.Context, password string) (*Session, error) {
	if !s.hasPassword {
		s.logger.Error("admin login attempted but ADMIN_PASSWORD is not configured")
		return nil, services.ErrAdminNotConfigured
	}

	// constant time over equal-length digests
	given := sha256.Sum256([]byte(password))
	if subtle.ConstantTimeCompare(given[:], s.passwordDigest[:]) != 1 {
		s.logger.Warn("admin login failed")
		return nil, services.ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	claims := Claims{
		Role: AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   AdminRole,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, services.WrapInternal("failed to sign session", err)
	}

	s.logger.Info("admin session issued", zap.Time("expires_at", expiresAt))
	return &Session{Token: token, ExpiresAt: expiresAt}, nil
}

// ValidateToken verifies signature, issuer, expiry and role.
func (s *Service) ValidateToken(_ context.Context, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%w: %v", services.ErrInvalidToken, err)
	}
	if !token.Valid || claims.Role != AdminRole {
		return nil, services.ErrInvalidToken
	}
	return claims, nil
}

// TTL returns the session lifetime.
func (s *Service) TTL() time.Duration {
	return s.ttl
}
