package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"karyarasa/internal/domain"
	"karyarasa/internal/repository"
)

// ProductService инкапсулирует бизнес-логику каталога: товары и категории
type ProductService struct {
	products   repository.ProductRepository
	categories repository.CategoryRepository
}

func NewProductService(products repository.ProductRepository, categories repository.CategoryRepository) *ProductService {
	return &ProductService{products: products, categories: categories}
}

var ErrInvalidInput = errors.New("invalid input")

func (s *ProductService) Create(ctx context.Context, p domain.Product) (*domain.Product, error) {
	if p.Name == "" || p.CategoryID <= 0 || p.SellerID <= 0 || !p.Price.IsPositive() || p.Stock < 0 {
		return nil, ErrInvalidInput
	}
	// category must exist
	if _, err := s.categories.GetByID(ctx, p.CategoryID); err != nil {
		return nil, err
	}
	cp := p
	if err := s.products.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *ProductService) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	return s.products.GetByID(ctx, id)
}

// ProductUpdate частичное обновление: nil-поле сохраняет текущее значение
type ProductUpdate struct {
	Name        *string
	Description *string
	CategoryID  *int64
	Price       *decimal.Decimal
	Stock       *int64
	ImageURL    *string
}

func (s *ProductService) Update(ctx context.Context, id int64, upd ProductUpdate) (*domain.Product, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	cur, err := s.products.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if upd.Name != nil {
		if *upd.Name == "" {
			return nil, ErrInvalidInput
		}
		cur.Name = *upd.Name
	}
	if upd.Description != nil {
		cur.Description = *upd.Description
	}
	if upd.Price != nil {
		if !upd.Price.IsPositive() {
			return nil, ErrInvalidInput
		}
		cur.Price = *upd.Price
	}
	if upd.Stock != nil {
		if *upd.Stock < 0 {
			return nil, ErrInvalidInput
		}
		cur.Stock = *upd.Stock
	}
	if upd.ImageURL != nil {
		cur.ImageURL = *upd.ImageURL
	}
	if upd.CategoryID != nil {
		if _, err := s.categories.GetByID(ctx, *upd.CategoryID); err != nil {
			return nil, err
		}
		cur.CategoryID = *upd.CategoryID
	}
	if err := s.products.Update(ctx, cur); err != nil {
		return nil, err
	}
	return cur, nil
}

func (s *ProductService) Delete(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidInput
	}
	return s.products.Delete(ctx, id)
}

func (s *ProductService) List(ctx context.Context, f repository.ProductFilter) ([]domain.Product, error) {
	return s.products.List(ctx, f)
}

func (s *ProductService) CreateCategory(ctx context.Context, c domain.Category) (*domain.Category, error) {
	if c.Name == "" {
		return nil, ErrInvalidInput
	}
	cp := c
	if err := s.categories.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *ProductService) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	return s.categories.GetByID(ctx, id)
}

func (s *ProductService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.categories.List(ctx)
}

func (s *ProductService) DeleteCategory(ctx context.Context, id int64) error {
	if id <= 0 {
		return ErrInvalidInput
	}
	return s.categories.Delete(ctx, id)
}
