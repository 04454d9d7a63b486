package service

import (
	"context"
	"errors"

	"github.com/Kylemerian/real-time-web-chat/internal/auth"
	"github.com/Kylemerian/real-time-web-chat/internal/config"
	"github.com/Kylemerian/real-time-web-chat/internal/models"
	"gorm.io/gorm"
)

// UserService 封装用户注册、登录与 Telegram 绑定。
type UserService struct {
	db  *gorm.DB
	cfg config.Config
}

func NewUserService(db *gorm.DB, cfg config.Config) *UserService {
	return &UserService{db: db, cfg: cfg}
}

// Register 创建新用户，login 与昵称都要求唯一。
func (s *UserService) Register(ctx context.Context, username, nickname, password string) (*models.User, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrUsernameTaken
	}
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("nickname = ?", nickname).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrNicknameTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Username: username, Nickname: nickname, PasswordHash: hash}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// Login 校验口令并签发访问令牌。
func (s *UserService) Login(ctx context.Context, username, password string) (string, *models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", nil, ErrInvalidCredentials
		}
		return "", nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return "", nil, ErrInvalidCredentials
	}
	token, err := auth.GenerateAccessToken(user.ID, s.cfg.JWTSecret, s.cfg.AccessTokenTTLMinutes)
	if err != nil {
		return "", nil, err
	}
	return token, &user, nil
}

func (s *UserService) ByID(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// BindTelegram 记录用户的 Telegram chat id，离线通知按此投递。
func (s *UserService) BindTelegram(ctx context.Context, userID uint, tgID int64) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).Update("tg_id", tgID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
