package auth

import (
	"context"
	"errors"
	"strings"
	"time"
	_ "time/tzdata"

	"gorm.io/gorm"
)

var (
	ErrEmailTaken         = errors.New("email already used")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

type User struct {
	ID           uint64    `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Timezone     string    `gorm:"type:text;not null;default:'UTC'" json:"timezone"`
	CreatedAt    time.Time `gorm:"not null;default:now()" json:"created_at"`
}

type UserStore struct {
	DB *gorm.DB
}

// Create registers a user. An unknown timezone falls back to UTC.
func (s *UserStore) Create(ctx context.Context, email, password, timezone string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	u := User{Email: NormalizeEmail(email), PasswordHash: hash, Timezone: ValidTimezone(timezone)}
	if err := s.DB.WithContext(ctx).Create(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "23505") {
			return nil, ErrEmailTaken
		}
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	var u User
	if err := s.DB.WithContext(ctx).Where("email = ?", NormalizeEmail(email)).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !ComparePassword(u.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return &u, nil
}

func (s *UserStore) Get(ctx context.Context, id uint64) (*User, error) {
	var u User
	if err := s.DB.WithContext(ctx).First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *UserStore) SetTimezone(ctx context.Context, id uint64, tz string) (string, error) {
	tz = ValidTimezone(tz)
	err := s.DB.WithContext(ctx).Model(&User{}).Where("id = ?", id).Update("timezone", tz).Error
	return tz, err
}

// Timezone returns the user's IANA zone, UTC when unknown.
func (s *UserStore) Timezone(ctx context.Context, id uint64) string {
	var tz string
	err := s.DB.WithContext(ctx).Model(&User{}).Where("id = ?", id).Select("timezone").Scan(&tz).Error
	if err != nil {
		return "UTC"
	}
	return ValidTimezone(tz)
}

func NormalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}

func ValidTimezone(tz string) string {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return "UTC"
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return "UTC"
	}
	return tz
}
