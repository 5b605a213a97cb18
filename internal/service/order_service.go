package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"karyarasa/internal/domain"
	"karyarasa/internal/metrics"
	"karyarasa/internal/repository"
)

var (
	// ErrEmptyCart у пользователя нет корзины или она пуста
	ErrEmptyCart = errors.New("cart is empty")
	// ErrProductNotFound позиция корзины ссылается на удалённый товар
	ErrProductNotFound = errors.New("product not found")
	// ErrNotEnoughStock остатка не хватает на запрошенное количество
	ErrNotEnoughStock = errors.New("not enough stock")
	// ErrStockConflict валидация прошла, но конкурентный checkout успел списать
	// остаток раньше нас; клиенту имеет смысл повторить запрос
	ErrStockConflict = errors.New("concurrent stock conflict")
)

// OrderService оформление заказа: превращает корзину в неизменяемый заказ.
// Валидация, прайсинг, скидка, запись заказа, списание остатков и удаление
// корзины выполняются одной транзакцией — либо всё, либо ничего
type OrderService struct {
	carts    repository.CartRepository
	products repository.ProductRepository
	users    repository.UserRepository
	orders   repository.OrderRepository
	promo    *PromoService
	tx       repository.TxManager
	metrics  *metrics.CheckoutMetrics
}

func NewOrderService(
	carts repository.CartRepository,
	products repository.ProductRepository,
	users repository.UserRepository,
	orders repository.OrderRepository,
	promo *PromoService,
	tx repository.TxManager,
	m *metrics.CheckoutMetrics,
) *OrderService {
	return &OrderService{
		carts:    carts,
		products: products,
		users:    users,
		orders:   orders,
		promo:    promo,
		tx:       tx,
		metrics:  m,
	}
}

// checkoutLine товар, уже провалидированный и оценённый для одной позиции корзины
type checkoutLine struct {
	product  *domain.Product
	quantity int64
}

// Checkout оформляет корзину пользователя в заказ.
//
// Шаги: загрузка корзины → валидация и прайсинг позиций → скидка →
// запись заказа со снапшотами и списание остатков → удаление корзины.
// Первые три шага только читают; любая их ошибка не оставляет следов.
// Ошибка в фазе записи откатывает транзакцию целиком
func (s *OrderService) Checkout(ctx context.Context, userID int64, promoCode string) (*domain.Order, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}
	started := time.Now()
	var created *domain.Order
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		cart, err := s.carts.GetByUser(ctx, userID)
		if errors.Is(err, repository.ErrNotFound) {
			return ErrEmptyCart
		}
		if err != nil {
			return err
		}
		items, err := s.carts.ListItems(ctx, cart.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrEmptyCart
		}
		// фиксированный порядок обхода: исход не должен зависеть от того,
		// как хранилище вернуло позиции
		sort.Slice(items, func(i, j int) bool { return items[i].ProductID < items[j].ProductID })

		// validate & price, no mutations yet
		lines := make([]checkoutLine, 0, len(items))
		subtotal := decimal.Zero
		for _, it := range items {
			p, err := s.products.GetByID(ctx, it.ProductID)
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("%w: product %d", ErrProductNotFound, it.ProductID)
			}
			if err != nil {
				return err
			}
			if p.Stock < it.Quantity {
				return fmt.Errorf("%w: %s", ErrNotEnoughStock, p.Name)
			}
			subtotal = subtotal.Add(p.Price.Mul(decimal.NewFromInt(it.Quantity)))
			lines = append(lines, checkoutLine{product: p, quantity: it.Quantity})
		}

		// discount; невалидный промокод блокирует checkout, а не даёт нулевую скидку
		total := subtotal
		if promoCode != "" {
			discount, err := s.promo.Resolve(ctx, promoCode, subtotal)
			if err != nil {
				return err
			}
			total = subtotal.Sub(discount)
			if total.IsNegative() {
				total = decimal.Zero
			}
		}

		// mutation window: order row, snapshot items, stock decrements, cart teardown
		order := &domain.Order{
			UserID:     userID,
			TotalPrice: total,
			Status:     domain.OrderStatusPending,
			Timestamp:  time.Now().UTC(),
		}
		for _, ln := range lines {
			sellerName, err := s.sellerName(ctx, ln.product.SellerID)
			if err != nil {
				return err
			}
			order.Items = append(order.Items, domain.OrderItem{
				ProductID:   ln.product.ID,
				ProductName: ln.product.Name,
				SellerName:  sellerName,
				ImageURL:    ln.product.ImageURL,
				Quantity:    ln.quantity,
				Price:       ln.product.Price,
			})
		}
		if err := s.orders.Create(ctx, order); err != nil {
			return err
		}
		for _, ln := range lines {
			if err := s.products.DecrementStock(ctx, ln.product.ID, ln.quantity); err != nil {
				if errors.Is(err, repository.ErrInsufficientStock) {
					return fmt.Errorf("%w: %s", ErrStockConflict, ln.product.Name)
				}
				return err
			}
		}
		if err := s.carts.Delete(ctx, cart.ID); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		s.metrics.Observe(checkoutOutcome(err), started)
		return nil, err
	}
	s.metrics.Observe("success", started)
	return created, nil
}

// sellerName снапшот имени продавца; удалённый продавец не ломает checkout
func (s *OrderService) sellerName(ctx context.Context, sellerID int64) (string, error) {
	u, err := s.users.GetByID(ctx, sellerID)
	if errors.Is(err, repository.ErrNotFound) {
		return "Unknown", nil
	}
	if err != nil {
		return "", err
	}
	return u.Name, nil
}

func checkoutOutcome(err error) string {
	switch {
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrProductNotFound):
		return "product_not_found"
	case errors.Is(err, ErrNotEnoughStock):
		return "insufficient_stock"
	case errors.Is(err, ErrPromoInvalid):
		return "promo_invalid"
	case errors.Is(err, ErrStockConflict):
		return "stock_conflict"
	default:
		return "error"
	}
}

// GetOrder возвращает заказ с позициями
func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	return s.orders.GetByID(ctx, id)
}

// ListUserOrders все заказы пользователя; пользователь должен существовать
func (s *OrderService) ListUserOrders(ctx context.Context, userID int64) ([]domain.Order, error) {
	if userID <= 0 {
		return nil, ErrInvalidInput
	}
	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.orders.ListByUser(ctx, userID)
}

func (s *OrderService) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.orders.ListAll(ctx)
}

// UpdateStatus меняет только статус и подтверждение оплаты — ядро заказа неизменяемо
func (s *OrderService) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, paymentProof string) (*domain.Order, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusPaid:
	default:
		return nil, ErrInvalidInput
	}
	return s.orders.UpdateStatus(ctx, id, status, paymentProof)
}
