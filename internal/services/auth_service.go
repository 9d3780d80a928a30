package services

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/Mateo9804/gastoclaro/internal/apperrors"
	"github.com/Mateo9804/gastoclaro/internal/caching"
	"github.com/Mateo9804/gastoclaro/internal/models"
	"github.com/Mateo9804/gastoclaro/internal/repositories"
)

const (
	tokenIssuer = "gastoclaro"

	// Failed logins allowed per email inside LoginThrottleWindow.
	LoginThrottleLimit  = 10
	LoginThrottleWindow = 15 * time.Minute
)

// AuthService handles login, session tokens and password changes
type AuthService interface {
	Login(ctx context.Context, email, password string) (*models.TokenResponse, error)
	Logout(ctx context.Context, claims *TokenClaims) error
	ValidateToken(ctx context.Context, token string) (*TokenClaims, error)
	IsRevoked(ctx context.Context, claims *TokenClaims) (bool, error)
	ResolvePrincipal(ctx context.Context, claims *TokenClaims) (models.Principal, error)
	CurrentUser(ctx context.Context, p models.Principal) (*models.SessionUser, error)
	ChangePassword(ctx context.Context, p models.Principal, req models.ChangePasswordRequest) error
}

// TokenClaims represents JWT claims
type TokenClaims struct {
	UserID   string  `json:"user_id"`
	TenantID *string `json:"tenant_id,omitempty"`
	Role     string  `json:"role"`
	jwt.RegisteredClaims
}

// Principal converts verified claims into the request principal.
func (c *TokenClaims) Principal() (models.Principal, error) {
	userID, err := uuid.Parse(c.UserID)
	if err != nil {
		return models.Principal{}, fmt.Errorf("invalid user id in token: %w", err)
	}
	p := models.Principal{UserID: userID, Role: models.Role(c.Role)}
	if c.TenantID != nil {
		tenantID, err := uuid.Parse(*c.TenantID)
		if err != nil {
			return models.Principal{}, fmt.Errorf("invalid tenant id in token: %w", err)
		}
		p.TenantID = &tenantID
	}
	return p, nil
}

type authService struct {
	userRepo   repositories.UserRepository
	tenantRepo repositories.TenantRepository
	cacheSvc   caching.CacheService
	clock      clockwork.Clock
	logger     *zap.Logger
	jwtSecret  []byte
	tokenTTL   time.Duration
	bcryptCost int
}

type AuthServiceConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// NewAuthService creates a new authentication service
func NewAuthService(
	userRepo repositories.UserRepository,
	tenantRepo repositories.TenantRepository,
	cacheSvc caching.CacheService,
	clock clockwork.Clock,
	logger *zap.Logger,
	cfg AuthServiceConfig,
) AuthService {
	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &authService{
		userRepo:   userRepo,
		tenantRepo: tenantRepo,
		cacheSvc:   cacheSvc,
		clock:      clock,
		logger:     logger,
		jwtSecret:  []byte(cfg.JWTSecret),
		tokenTTL:   cfg.TokenTTL,
		bcryptCost: cfg.BcryptCost,
	}
}

// HashPassword hashes a plain password with bcrypt. A cost <= 0 uses bcrypt.DefaultCost.
func HashPassword(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

func checkPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

func loginThrottleKey(email string) string {
	return "login:" + email
}

func (s *authService) Login(ctx context.Context, email, password string) (*models.TokenResponse, error) {
	email = normalizeEmail(email)
	key := loginThrottleKey(email)

	failures, err := s.cacheSvc.RateLimitCount(ctx, key)
	if err != nil {
		s.logger.Warn("login throttle unavailable", zap.Error(err))
	} else if failures >= LoginThrottleLimit {
		return nil, apperrors.ErrTooManyAttempts
	}

	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}
	if user == nil || !checkPassword(user.PasswordHash, password) {
		if err := s.cacheSvc.IncrementRateLimit(ctx, key, LoginThrottleWindow); err != nil {
			s.logger.Warn("failed to record login failure", zap.Error(err))
		}
		return nil, apperrors.ErrInvalidCredentials
	}

	if err := s.cacheSvc.ResetRateLimit(ctx, key); err != nil {
		s.logger.Warn("failed to reset login throttle", zap.Error(err))
	}

	session, err := s.sessionUser(ctx, user)
	if err != nil {
		return nil, err
	}
	token, err := s.issueToken(user)
	if err != nil {
		return nil, err
	}

	s.logger.Info("user logged in", zap.String("user_id", user.ID.String()), zap.String("role", string(user.Role)))
	return &models.TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokenTTL.Seconds()),
		User:        *session,
	}, nil
}

func (s *authService) issueToken(user *models.User) (string, error) {
	now := s.clock.Now()
	claims := TokenClaims{
		UserID: user.ID.String(),
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   user.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	if user.TenantID != nil {
		tenantID := user.TenantID.String()
		claims.TenantID = &tenantID
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign JWT: %w", err)
	}
	return signed, nil
}

func (s *authService) sessionUser(ctx context.Context, user *models.User) (*models.SessionUser, error) {
	session := &models.SessionUser{
		ID:        user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Role:      user.Role,
		CompanyID: user.TenantID,
	}
	if user.TenantID == nil {
		return session, nil
	}
	tenant, err := s.tenantRepo.GetByID(ctx, *user.TenantID)
	if err != nil {
		return nil, err
	}
	session.Company = &tenant.Name
	session.Plan = &tenant.Plan
	session.UserLimit = &tenant.UserLimit
	return session, nil
}

// Logout revokes the token until its natural expiry.
func (s *authService) Logout(ctx context.Context, claims *TokenClaims) error {
	if claims == nil || claims.ID == "" {
		return apperrors.ErrUnauthenticated
	}
	var ttl time.Duration
	if claims.ExpiresAt != nil {
		ttl = claims.ExpiresAt.Sub(s.clock.Now())
	}
	return s.cacheSvc.RevokeToken(ctx, claims.ID, ttl)
}

// ValidateToken validates JWT access token
func (s *authService) ValidateToken(ctx context.Context, token string) (*TokenClaims, error) {
	parsed, err := jwt.ParseWithClaims(token, &TokenClaims{}, func(t *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrUnauthenticated, err)
	}

	claims, ok := parsed.Claims.(*TokenClaims)
	if !ok || !parsed.Valid {
		return nil, apperrors.ErrUnauthenticated
	}
	revoked, err := s.IsRevoked(ctx, claims)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, apperrors.ErrUnauthenticated
	}
	return claims, nil
}

func (s *authService) IsRevoked(ctx context.Context, claims *TokenClaims) (bool, error) {
	return s.cacheSvc.IsTokenRevoked(ctx, claims.ID)
}

// ResolvePrincipal rebuilds the principal from the current user row. Role and
// tenant in the token are only a hint; a user that no longer exists, or was
// moved to another tenant, is unauthenticated.
func (s *authService) ResolvePrincipal(ctx context.Context, claims *TokenClaims) (models.Principal, error) {
	hint, err := claims.Principal()
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %v", apperrors.ErrUnauthenticated, err)
	}
	user, err := s.userRepo.GetByID(ctx, hint.UserID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return models.Principal{}, apperrors.ErrUnauthenticated
		}
		return models.Principal{}, err
	}
	if !sameTenant(user.TenantID, hint.TenantID) {
		return models.Principal{}, apperrors.ErrUnauthenticated
	}
	return models.Principal{UserID: user.ID, TenantID: user.TenantID, Role: user.Role}, nil
}

func sameTenant(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *authService) CurrentUser(ctx context.Context, p models.Principal) (*models.SessionUser, error) {
	user, err := s.userRepo.GetByID(ctx, p.UserID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return nil, apperrors.ErrUnauthenticated
		}
		return nil, err
	}
	return s.sessionUser(ctx, user)
}

func (s *authService) ChangePassword(ctx context.Context, p models.Principal, req models.ChangePasswordRequest) error {
	user, err := s.userRepo.GetByID(ctx, p.UserID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return apperrors.ErrUnauthenticated
		}
		return err
	}
	if !checkPassword(user.PasswordHash, req.CurrentPassword) {
		return apperrors.NewValidation("current_password", "the current password is incorrect")
	}
	if len(req.NewPassword) < 8 {
		return apperrors.NewValidation("new_password", "must be at least 8 characters")
	}
	if req.NewPassword != req.NewPasswordConfirmation {
		return apperrors.NewValidation("new_password", "confirmation does not match")
	}

	hash, err := HashPassword(req.NewPassword, s.bcryptCost)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, user.ID, hash); err != nil {
		return err
	}
	s.logger.Info("password changed", zap.String("user_id", user.ID.String()))
	return nil
}

