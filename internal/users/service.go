package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ErrUserNotFound indicates the requested user id has no stored profile.
var ErrUserNotFound = errors.New("users: user not found")

// ServiceConfig describes the dependencies required for profile lookups.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
}

// Service reads user profiles and maintains their durable presence flags.
type Service struct {
	db  *gorm.DB
	now func() time.Time
}

// NewService constructs the user service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Service{
		db:  cfg.Database,
		now: clock,
	}, nil
}

// GetByID loads the stored profile for the given user id.
func (s *Service) GetByID(ctx context.Context, userID string) (User, error) {
	if normalize(userID) == "" {
		return User{}, ErrUserNotFound
	}

	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, err
	}
	return user, nil
}

// SetOnline flips the durable presence flag and bumps last_active for the user.
func (s *Service) SetOnline(ctx context.Context, userID string, online bool) error {
	if normalize(userID) == "" {
		return ErrUserNotFound
	}

	return s.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"is_online":   online,
			"last_active": s.now().UTC(),
		}).Error
}

// ResetOnlineFlags clears any online markers left behind by a previous process.
// Presence is process-local, so a restart invalidates every stored flag.
func (s *Service) ResetOnlineFlags(ctx context.Context) error {
	return s.db.WithContext(ctx).
		Model(&User{}).
		Where("is_online = ?", true).
		Update("is_online", false).Error
}
