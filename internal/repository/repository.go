package repository

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"

	"karyarasa/internal/domain"
)

// ErrNotFound возвращается, когда сущность не найдена
var ErrNotFound = errors.New("not found")

// ErrInsufficientStock возвращается условным списанием, когда остаток
// меньше запрошенного количества. Списание либо проходит целиком, либо не трогает строку
var ErrInsufficientStock = errors.New("insufficient stock")

// ProductFilter параметры фильтрации списка товаров
type ProductFilter struct {
	NameSubstring string
	CategoryID    *int64
	MinPrice      *decimal.Decimal
	MaxPrice      *decimal.Decimal
}

// UserRepository минимальный интерфейс пользователей: регистрация и аутентификация
// живут во внешнем identity-провайдере, здесь только то, что нужно заказам
type UserRepository interface {
	Create(ctx context.Context, u *domain.User) error
	GetByID(ctx context.Context, id int64) (*domain.User, error)
}

// CategoryRepository интерфейс репозитория категорий
type CategoryRepository interface {
	Create(ctx context.Context, c *domain.Category) error
	GetByID(ctx context.Context, id int64) (*domain.Category, error)
	List(ctx context.Context) ([]domain.Category, error)
	Delete(ctx context.Context, id int64) error
}

// ProductRepository интерфейс репозитория товаров
type ProductRepository interface {
	Create(ctx context.Context, p *domain.Product) error
	GetByID(ctx context.Context, id int64) (*domain.Product, error)
	Update(ctx context.Context, p *domain.Product) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, f ProductFilter) ([]domain.Product, error)
	// DecrementStock атомарно списывает остаток: сравнение и запись — одна операция,
	// при нехватке возвращает ErrInsufficientStock и ничего не меняет
	DecrementStock(ctx context.Context, productID, by int64) error
}

// CartRepository интерфейс корзин. Delete каскадно удаляет позиции
type CartRepository interface {
	GetOrCreateByUser(ctx context.Context, userID int64) (*domain.Cart, error)
	GetByUser(ctx context.Context, userID int64) (*domain.Cart, error)
	ListItems(ctx context.Context, cartID int64) ([]domain.CartItem, error)
	AddItem(ctx context.Context, item *domain.CartItem) error
	RemoveItem(ctx context.Context, cartID, productID int64) error
	Delete(ctx context.Context, cartID int64) error
}

// PromoRepository интерфейс промокодов. Код сравнивается с учётом регистра
type PromoRepository interface {
	Create(ctx context.Context, p *domain.PromoCode) error
	GetActiveByCode(ctx context.Context, code string) (*domain.PromoCode, error)
	List(ctx context.Context) ([]domain.PromoCode, error)
}

// OrderRepository интерфейс заказов. Create сохраняет заказ вместе с позициями
type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id int64) (*domain.Order, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Order, error)
	ListAll(ctx context.Context) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, paymentProof string) (*domain.Order, error)
}

// TxManager абстракция транзакции. Для in-memory — глобальная блокировка записи,
// для Postgres — sql.Tx в контексте
type TxManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// helper: case-insensitive contains
func containsIgnoreCase(s, substr string) bool {
	if substr == "" {
		return true
	}
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
