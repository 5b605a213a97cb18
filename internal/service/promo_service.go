package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"karyarasa/internal/domain"
	"karyarasa/internal/repository"
)

// ErrPromoInvalid промокод не найден или неактивен; checkout с таким кодом не проходит
var ErrPromoInvalid = errors.New("invalid promo code")

var oneHundred = decimal.NewFromInt(100)

// PromoService хранение промокодов и вычисление скидки
type PromoService struct {
	promos repository.PromoRepository
}

func NewPromoService(promos repository.PromoRepository) *PromoService {
	return &PromoService{promos: promos}
}

func (s *PromoService) Create(ctx context.Context, p domain.PromoCode) (*domain.PromoCode, error) {
	if p.Code == "" || p.DiscountPercent.IsNegative() || p.DiscountAmount.IsNegative() ||
		p.DiscountPercent.GreaterThan(oneHundred) {
		return nil, ErrInvalidInput
	}
	cp := p
	if err := s.promos.Create(ctx, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

func (s *PromoService) List(ctx context.Context) ([]domain.PromoCode, error) {
	return s.promos.List(ctx)
}

// Resolve считает скидку для подитога. Код сравнивается с учётом регистра.
// Процент имеет приоритет над фиксированной суммой; сумма не ограничивается
// подитогом — итог прижимает к нулю уже оформитель заказа
func (s *PromoService) Resolve(ctx context.Context, code string, subtotal decimal.Decimal) (decimal.Decimal, error) {
	promo, err := s.promos.GetActiveByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrPromoInvalid, code)
	}
	if err != nil {
		return decimal.Zero, err
	}
	if !promo.DiscountPercent.IsZero() {
		return subtotal.Mul(promo.DiscountPercent).Div(oneHundred).Round(2), nil
	}
	if !promo.DiscountAmount.IsZero() {
		return promo.DiscountAmount, nil
	}
	return decimal.Zero, nil
}
