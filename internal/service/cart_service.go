package service

import (
	"context"
	"errors"

	"karyarasa/internal/domain"
	"karyarasa/internal/repository"
)

// CartService корзина покупателя. Цены позиций здесь не трогаем:
// прайсинг случается только при checkout
type CartService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
}

func NewCartService(carts repository.CartRepository, products repository.ProductRepository) *CartService {
	return &CartService{carts: carts, products: products}
}

// AddItem кладёт товар в корзину, лениво создавая её при первом добавлении
func (s *CartService) AddItem(ctx context.Context, userID, productID, quantity int64) (*domain.CartItem, error) {
	if userID <= 0 || productID <= 0 || quantity <= 0 {
		return nil, ErrInvalidInput
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	cart, err := s.carts.GetOrCreateByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	item := domain.CartItem{CartID: cart.ID, ProductID: productID, Quantity: quantity}
	if err := s.carts.AddItem(ctx, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

// GetCart возвращает корзину с позициями; отсутствие корзины — пустая корзина, не ошибка
func (s *CartService) GetCart(ctx context.Context, userID int64) (*domain.Cart, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}
	cart, err := s.carts.GetByUser(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return &domain.Cart{UserID: userID, Items: []domain.CartItem{}}, nil
	}
	if err != nil {
		return nil, err
	}
	items, err := s.carts.ListItems(ctx, cart.ID)
	if err != nil {
		return nil, err
	}
	cart.Items = items
	return cart, nil
}

func (s *CartService) RemoveItem(ctx context.Context, userID, productID int64) error {
	if userID <= 0 || productID <= 0 {
		return ErrInvalidInput
	}
	cart, err := s.carts.GetByUser(ctx, userID)
	if err != nil {
		return err
	}
	return s.carts.RemoveItem(ctx, cart.ID, productID)
}
