package service

import (
	"context"
	"strings"

	"karyarasa/internal/domain"
	"karyarasa/internal/repository"
)

// UserService минимум вокруг пользователей. Регистрация и аутентификация живут
// во внешнем identity-провайдере; здесь только профиль, на который ссылаются заказы
type UserService struct {
	users repository.UserRepository
}

func NewUserService(users repository.UserRepository) *UserService {
	return &UserService{users: users}
}

func (s *UserService) Create(ctx context.Context, u domain.User) (*domain.User, error) {
	if u.Name == "" || !strings.Contains(u.Email, "@") {
		return nil, ErrInvalidInput
	}
	cp := u
	if err := s.users.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *UserService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	return s.users.GetByID(ctx, id)
}
