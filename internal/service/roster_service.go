package service

import (
	"context"
	"fmt"
	"recall_edu_backend/internal/model"
	"recall_edu_backend/internal/repository"
	"recall_edu_backend/internal/util"
)

// Roster 判断某个用户是否为可作答的学生
type Roster interface {
	FindLearner(ctx context.Context, id uint) (*model.User, error)
}

type RosterService struct {
	UserRepo *repository.UserRepository
}

func NewRosterService(userRepo *repository.UserRepository) *RosterService {
	return &RosterService{UserRepo: userRepo}
}

func (s *RosterService) FindLearner(ctx context.Context, id uint) (*model.User, error) {
	user, err := s.UserRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%w: load user: %v", util.ErrPersistence, err)
	}
	if user == nil || !user.IsLearner() {
		return nil, fmt.Errorf("%w: %w", util.ErrNotFound, util.ErrStudentNotFound)
	}
	return user, nil
}
