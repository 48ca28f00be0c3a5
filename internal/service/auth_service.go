package service

import (
	"context"
	"fmt"
	"recall_edu_backend/internal/config"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/repository"
	"recall_edu_backend/internal/util"

	"golang.org/x/crypto/bcrypt"
)

type AuthService struct {
	UserRepo *repository.UserRepository
	Cfg      *config.JWTConfig
}

func NewAuthService(userRepo *repository.UserRepository, cfg *config.JWTConfig) *AuthService {
	return &AuthService{UserRepo: userRepo, Cfg: cfg}
}

// HashPassword 用户初始化时使用
func HashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// Login 校验邮箱与密码并签发 JWT；账号不存在、已禁用或密码错误统一返回 ErrInvalidCredentials
func (s *AuthService) Login(ctx context.Context, email, password string) (string, *model.User, error) {
	user, err := s.UserRepo.FindByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %w", util.ErrPersistence, err)
	}
	if user == nil || user.Disabled || user.Password == "" {
		return "", nil, util.ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return "", nil, util.ErrInvalidCredentials
	}

	token, err := util.IssueAccessToken(user, s.Cfg.Secret, s.Cfg.ExpireTime)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}
