package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/fpp-api/internal/models"
	appErrors "github.com/noah-isme/fpp-api/pkg/errors"
)

type authUserRepository interface {
	Create(ctx context.Context, user *models.User) error
	FindByMobile(ctx context.Context, mobile string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id, name, village string) error
}

type notifier interface {
	Emit(ctx context.Context, userID, message string, severity models.NotificationSeverity)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	TokenSecret  string
	TokenExpiry  time.Duration
	Issuer       string
	VAOSecretKey string
}

// AuthService provides registration, login and token validation.
type AuthService struct {
	repo          authUserRepository
	notifications notifier
	validator     *validator.Validate
	logger        *zap.Logger
	config        AuthConfig
}

// NewAuthService constructs an AuthService instance. notifications may be nil.
func NewAuthService(repo authUserRepository, notifications notifier, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &AuthService{repo: repo, notifications: notifications, validator: validate, logger: logger, config: config}
}

// Register creates a new account. VAO signups must present the shared secret
// key; everyone else registers as a farmer.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid registration payload")
	}
	if req.Role != models.RoleFarmer && req.Role != models.RoleVAO {
		return nil, appErrors.Clone(appErrors.ErrValidation, "role must be FARMER or VAO")
	}
	if req.Role == models.RoleVAO && req.SecretKey != s.config.VAOSecretKey {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid VAO secret key")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Name:         req.Name,
		Mobile:       req.Mobile,
		PasswordHash: string(hash),
		Role:         req.Role,
		Village:      req.Village,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, appErrors.Clone(appErrors.ErrConflict, "mobile number already registered")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	if s.notifications != nil {
		s.notifications.Emit(ctx, user.ID, fmt.Sprintf("Welcome to the paddy procurement portal, %s.", user.Name), models.SeverityInfo)
	}

	return s.issueToken(user)
}

// Login authenticates a user by mobile number and password. When the payload
// carries a role, the stored role must match it.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.AuthResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}

	user, err := s.repo.FindByMobile(ctx, req.Mobile)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}
	if req.Role != "" && user.Role != req.Role {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "account is not registered for this role")
	}

	return s.issueToken(user)
}

// ValidateToken parses and validates an access token.
func (s *AuthService) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	claims := &models.JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.TokenSecret), nil
	})
	if err != nil || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired token")
	}
	return claims, nil
}

// Profile returns the current account details.
func (s *AuthService) Profile(ctx context.Context, userID string) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	info := userInfo(user)
	return &info, nil
}

// UpdateProfile edits the self-service fields of an account. A village change
// only affects requests submitted afterwards.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, req models.UpdateProfileRequest) (*models.UserInfo, error) {
	user, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	name := user.Name
	if req.Name != "" {
		name = req.Name
	}
	village := user.Village
	if req.Village != "" {
		village = req.Village
	}

	if err := s.repo.UpdateProfile(ctx, userID, name, village); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update profile")
	}

	user.Name = name
	user.Village = village
	info := userInfo(user)
	return &info, nil
}

func (s *AuthService) issueToken(user *models.User) (*models.AuthResponse, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.config.TokenExpiry)
	claims := &models.JWTClaims{
		UserID:  user.ID,
		Role:    user.Role,
		Village: user.Village,
		Name:    user.Name,
		Mobile:  user.Mobile,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.TokenSecret))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign token")
	}

	return &models.AuthResponse{
		AccessToken: signed,
		ExpiresIn:   int64(s.config.TokenExpiry.Seconds()),
		User:        userInfo(user),
		IssuedAt:    now,
	}, nil
}

func userInfo(user *models.User) models.UserInfo {
	return models.UserInfo{
		ID:      user.ID,
		Name:    user.Name,
		Mobile:  user.Mobile,
		Role:    user.Role,
		Village: user.Village,
	}
}
