package calendar

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNoAccount = errors.New("calendar: no linked account")

// Account holds a user's Google OAuth tokens.
type Account struct {
	UserID       uint64     `gorm:"primaryKey"`
	CalendarID   string     `gorm:"type:text;not null;default:'primary'"`
	AccessToken  string     `gorm:"type:text;not null"`
	RefreshToken string     `gorm:"type:text;not null;default:''"`
	TokenExpiry  *time.Time `gorm:"type:timestamptz"`
	CreatedAt    time.Time  `gorm:"not null;default:now()"`
	UpdatedAt    time.Time  `gorm:"not null;default:now()"`
}

func (Account) TableName() string { return "calendar_accounts" }

func (a *Account) Token() *oauth2.Token {
	t := &oauth2.Token{
		AccessToken:  a.AccessToken,
		RefreshToken: a.RefreshToken,
		TokenType:    "Bearer",
	}
	if a.TokenExpiry != nil {
		t.Expiry = *a.TokenExpiry
	}
	return t
}

type AccountStore struct {
	DB *gorm.DB
}

func (s *AccountStore) Get(ctx context.Context, userID uint64) (*Account, error) {
	var a Account
	err := s.DB.WithContext(ctx).First(&a, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoAccount
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *AccountStore) Save(ctx context.Context, a *Account) error {
	if a.CalendarID == "" {
		a.CalendarID = "primary"
	}
	a.UpdatedAt = time.Now()
	return s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"calendar_id", "access_token", "refresh_token", "token_expiry", "updated_at"}),
		}).
		Create(a).Error
}

// SaveToken stores a refreshed token.
func (s *AccountStore) SaveToken(ctx context.Context, userID uint64, t *oauth2.Token) error {
	changes := map[string]any{
		"access_token": t.AccessToken,
		"updated_at":   time.Now(),
	}
	if t.RefreshToken != "" {
		changes["refresh_token"] = t.RefreshToken
	}
	if !t.Expiry.IsZero() {
		changes["token_expiry"] = t.Expiry
	}
	return s.DB.WithContext(ctx).Model(&Account{}).Where("user_id = ?", userID).Updates(changes).Error
}

func (s *AccountStore) Delete(ctx context.Context, userID uint64) error {
	return s.DB.WithContext(ctx).Delete(&Account{}, "user_id = ?", userID).Error
}
