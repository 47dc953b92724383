package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cio-chat/backend/internal/models"
	"cio-chat/backend/pkg/cache"
	"cio-chat/backend/pkg/jwt"
	"cio-chat/backend/pkg/logger"

	"gorm.io/gorm"
)

// GormProvider is the hosted identity adapter backed by the users table
type GormProvider struct {
	db     *gorm.DB
	tokens *jwt.Service
	users  *cache.Cache[Session]
	log    *logger.Logger
}

// NewGormProvider creates the hosted identity adapter. Verified principals are cached
// for a minute so that reconnecting views don't hit the database on every token check.
func NewGormProvider(db *gorm.DB, tokens *jwt.Service, log *logger.Logger) *GormProvider {
	return &GormProvider{
		db:     db,
		tokens: tokens,
		users:  cache.New[Session](time.Minute, 5*time.Minute, 10000),
		log:    log.WithComponent("identity.gorm"),
	}
}

// Migrate creates or updates the users table
func (p *GormProvider) Migrate() error {
	return p.db.AutoMigrate(&models.User{})
}

// Close stops the principal cache sweep
func (p *GormProvider) Close() {
	p.users.Close()
}

func (p *GormProvider) SignInWithPassword(ctx context.Context, email, password string) (*Credential, error) {
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, NewError(CodeInvalidEmail, err)
	}

	var user models.User
	err := p.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewError(CodeUserNotFound, nil)
	}
	if err != nil {
		return nil, NewError(CodeNetworkRequestFail, fmt.Errorf("failed to look up user: %w", err))
	}

	if !models.CheckPasswordHash(password, user.Password) {
		return nil, NewError(CodeWrongPassword, nil)
	}

	if err := p.db.WithContext(ctx).Model(&user).Update("last_login", time.Now()).Error; err != nil {
		p.log.Warn("Failed to record last login", "uid", user.ID, "error", err.Error())
	}

	return p.credential(&user)
}

func (p *GormProvider) CreateUserWithPassword(ctx context.Context, email, password string) (*Credential, error) {
	if err := validateCredentials(email, password); err != nil {
		return nil, err
	}

	user := models.User{
		Email:    normalizeEmail(email),
		Password: password,
	}

	err := p.db.WithContext(ctx).Create(&user).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil, NewError(CodeEmailAlreadyInUse, nil)
	}
	if err != nil {
		return nil, NewError(CodeNetworkRequestFail, fmt.Errorf("failed to create user: %w", err))
	}

	p.log.Info("User registered", "uid", user.ID)
	return p.credential(&user)
}

func (p *GormProvider) UpdateProfile(ctx context.Context, uid, displayName string) (*Credential, error) {
	result := p.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", uid).Update("display_name", displayName)
	if result.Error != nil {
		return nil, NewError(CodeNetworkRequestFail, fmt.Errorf("failed to update profile: %w", result.Error))
	}
	if result.RowsAffected == 0 {
		return nil, NewError(CodeUserNotFound, nil)
	}

	p.users.Delete(uid)

	var user models.User
	if err := p.db.WithContext(ctx).First(&user, "id = ?", uid).Error; err != nil {
		return nil, NewError(CodeNetworkRequestFail, fmt.Errorf("failed to reload user: %w", err))
	}
	return p.credential(&user)
}

func (p *GormProvider) VerifyToken(ctx context.Context, token string) (*Session, error) {
	claims, err := p.tokens.ValidateToken(token)
	if err != nil {
		return nil, NewError(CodeInvalidToken, err)
	}

	if s, ok := p.users.Get(claims.UID); ok {
		return &s, nil
	}

	var user models.User
	err = p.db.WithContext(ctx).First(&user, "id = ?", claims.UID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, NewError(CodeUserNotFound, nil)
	}
	if err != nil {
		return nil, NewError(CodeNetworkRequestFail, fmt.Errorf("failed to look up user: %w", err))
	}

	s := sessionOf(&user)
	p.users.Set(s.UID, s)
	return &s, nil
}

func (p *GormProvider) credential(user *models.User) (*Credential, error) {
	s := sessionOf(user)
	token, err := p.tokens.GenerateToken(s.UID, s.Email, s.DisplayName)
	if err != nil {
		return nil, NewError(CodeInternalError, err)
	}
	p.users.Set(s.UID, s)
	return &Credential{Session: s, Token: token}, nil
}

func sessionOf(user *models.User) Session {
	return Session{UID: user.ID, Email: user.Email, DisplayName: user.DisplayName}
}
