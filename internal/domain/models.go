package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User участник маркетплейса; продавец или покупатель определяется ролью
type User struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Address     string `json:"address,omitempty"`
	Role        string `json:"role"` // "user", "owner", "admin"
	BankAccount string `json:"bank_account,omitempty"`
}

// Category категория каталога
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Product товар каталога. Цена — fixed-point decimal, никакого float
type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CategoryID  int64           `json:"category_id"`
	SellerID    int64           `json:"seller_id"`
	Price       decimal.Decimal `json:"price"`
	Stock       int64           `json:"stock"`
	ImageURL    string          `json:"image_url,omitempty"`
}

// Cart корзина; у пользователя не больше одной
type Cart struct {
	ID     int64      `json:"id"`
	UserID int64      `json:"user_id"`
	Items  []CartItem `json:"items"`
}

// CartItem позиция корзины. Цена здесь не хранится: при checkout берётся живая цена товара
type CartItem struct {
	ID        int64 `json:"id"`
	CartID    int64 `json:"cart_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int64 `json:"quantity"`
}

// PromoCode правило скидки. Процент имеет приоритет над фиксированной суммой
type PromoCode struct {
	ID              int64           `json:"id"`
	Code            string          `json:"code"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount"`
	IsActive        bool            `json:"is_active"`
}

// OrderStatus статус оплаты заказа
type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
)

// Order результат успешного checkout. После создания меняются только
// Status и PaymentProof, всё остальное — неизменяемая история
type Order struct {
	ID           int64           `json:"id"`
	UserID       int64           `json:"user_id"`
	TotalPrice   decimal.Decimal `json:"total_price"`
	Status       OrderStatus     `json:"status"`
	PaymentProof string          `json:"payment_proof,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
	Items        []OrderItem     `json:"items"`
}

// OrderItem строка заказа со снапшотом товара на момент commit:
// имя, продавец, картинка и цена копируются и больше не перечитываются из каталога
type OrderItem struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"order_id"`
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	SellerName  string          `json:"seller_name"`
	ImageURL    string          `json:"image_url,omitempty"`
	Quantity    int64           `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
}
