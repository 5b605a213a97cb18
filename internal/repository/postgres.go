package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"karyarasa/internal/domain"
)

// PostgresStore общий Postgres-бэкенд; репозитории-обёртки разделяют его.
// Внутри WithTransaction все запросы идут через sql.Tx, положенный в контекст
type PostgresStore struct {
	DB *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{DB: db}, nil
}

type pgTxKey struct{}

// querier общий срез *sql.DB и *sql.Tx
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := ctx.Value(pgTxKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.DB
}

// Migrate создаёт схему, если её ещё нет
func (s *PostgresStore) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT 'user',
			bank_account TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS categories (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		)`,
		`CREATE TABLE IF NOT EXISTS products (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category_id BIGINT NOT NULL REFERENCES categories(id),
			seller_id BIGINT NOT NULL REFERENCES users(id),
			price NUMERIC(12,2) NOT NULL CHECK (price > 0),
			stock BIGINT NOT NULL CHECK (stock >= 0),
			image_url TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE TABLE IF NOT EXISTS carts (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL UNIQUE REFERENCES users(id)
		)`,
		`CREATE TABLE IF NOT EXISTS cart_items (
			id BIGSERIAL PRIMARY KEY,
			cart_id BIGINT NOT NULL REFERENCES carts(id) ON DELETE CASCADE,
			product_id BIGINT NOT NULL,
			quantity BIGINT NOT NULL CHECK (quantity > 0),
			UNIQUE (cart_id, product_id)
		)`,
		`CREATE TABLE IF NOT EXISTS promo_codes (
			id BIGSERIAL PRIMARY KEY,
			code TEXT NOT NULL UNIQUE,
			discount_percent NUMERIC(5,2) NOT NULL DEFAULT 0,
			discount_amount NUMERIC(12,2) NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS transactions (
			id BIGSERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL REFERENCES users(id),
			total_price NUMERIC(12,2) NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_proof TEXT NOT NULL DEFAULT '',
			ts TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS transaction_items (
			id BIGSERIAL PRIMARY KEY,
			transaction_id BIGINT NOT NULL REFERENCES transactions(id),
			product_id BIGINT NOT NULL,
			product_name TEXT NOT NULL,
			seller_name TEXT NOT NULL,
			image_url TEXT NOT NULL DEFAULT '',
			quantity BIGINT NOT NULL,
			price NUMERIC(12,2) NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// PostgresProducts ProductRepository
type PostgresProducts struct{ store *PostgresStore }

func NewPostgresProducts(store *PostgresStore) *PostgresProducts {
	return &PostgresProducts{store: store}
}

var _ ProductRepository = (*PostgresProducts)(nil)

func (r *PostgresProducts) Create(ctx context.Context, p *domain.Product) error {
	return r.store.q(ctx).QueryRowContext(ctx,
		`INSERT INTO products (name, description, category_id, seller_id, price, stock, image_url)
		 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		p.Name, p.Description, p.CategoryID, p.SellerID, p.Price, p.Stock, p.ImageURL,
	).Scan(&p.ID)
}

func (r *PostgresProducts) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT id, name, description, category_id, seller_id, price, stock, image_url
		 FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Description, &p.CategoryID, &p.SellerID, &p.Price, &p.Stock, &p.ImageURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresProducts) Update(ctx context.Context, p *domain.Product) error {
	res, err := r.store.q(ctx).ExecContext(ctx,
		`UPDATE products SET name=$1, description=$2, category_id=$3, price=$4, stock=$5, image_url=$6
		 WHERE id=$7`,
		p.Name, p.Description, p.CategoryID, p.Price, p.Stock, p.ImageURL, p.ID,
	)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresProducts) Delete(ctx context.Context, id int64) error {
	res, err := r.store.q(ctx).ExecContext(ctx, `DELETE FROM products WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresProducts) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	query := `SELECT id, name, description, category_id, seller_id, price, stock, image_url FROM products WHERE 1=1`
	args := make([]any, 0, 4)
	if f.NameSubstring != "" {
		args = append(args, "%"+f.NameSubstring+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	if f.CategoryID != nil {
		args = append(args, *f.CategoryID)
		query += fmt.Sprintf(" AND category_id = $%d", len(args))
	}
	if f.MinPrice != nil {
		args = append(args, *f.MinPrice)
		query += fmt.Sprintf(" AND price >= $%d", len(args))
	}
	if f.MaxPrice != nil {
		args = append(args, *f.MaxPrice)
		query += fmt.Sprintf(" AND price <= $%d", len(args))
	}
	query += " ORDER BY id"
	rows, err := r.store.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Product, 0)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.CategoryID, &p.SellerID, &p.Price, &p.Stock, &p.ImageURL); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DecrementStock списание одним UPDATE: проверка остатка и запись атомарны,
// гонка check-then-act между конкурентными checkout сюда не пролезает
func (r *PostgresProducts) DecrementStock(ctx context.Context, productID, by int64) error {
	res, err := r.store.q(ctx).ExecContext(ctx,
		`UPDATE products SET stock = stock - $1 WHERE id = $2 AND stock >= $1`,
		by, productID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists bool
	if err := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM products WHERE id = $1)`, productID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}
	return ErrInsufficientStock
}

// PostgresUsers UserRepository
type PostgresUsers struct{ store *PostgresStore }

func NewPostgresUsers(store *PostgresStore) *PostgresUsers { return &PostgresUsers{store: store} }

var _ UserRepository = (*PostgresUsers)(nil)

func (r *PostgresUsers) Create(ctx context.Context, u *domain.User) error {
	if u.Role == "" {
		u.Role = "user"
	}
	return r.store.q(ctx).QueryRowContext(ctx,
		`INSERT INTO users (name, email, phone, address, role, bank_account)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		u.Name, u.Email, u.Phone, u.Address, u.Role, u.BankAccount,
	).Scan(&u.ID)
}

func (r *PostgresUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	var u domain.User
	err := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT id, name, email, phone, address, role, bank_account FROM users WHERE id = $1`, id,
	).Scan(&u.ID, &u.Name, &u.Email, &u.Phone, &u.Address, &u.Role, &u.BankAccount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// PostgresCategories CategoryRepository
type PostgresCategories struct{ store *PostgresStore }

func NewPostgresCategories(store *PostgresStore) *PostgresCategories {
	return &PostgresCategories{store: store}
}

var _ CategoryRepository = (*PostgresCategories)(nil)

func (r *PostgresCategories) Create(ctx context.Context, c *domain.Category) error {
	return r.store.q(ctx).QueryRowContext(ctx,
		`INSERT INTO categories (name) VALUES ($1) RETURNING id`, c.Name,
	).Scan(&c.ID)
}

func (r *PostgresCategories) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresCategories) List(ctx context.Context) ([]domain.Category, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Category, 0)
	for rows.Next() {
		var c domain.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresCategories) Delete(ctx context.Context, id int64) error {
	res, err := r.store.q(ctx).ExecContext(ctx, `DELETE FROM categories WHERE id=$1`, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// PostgresCarts CartRepository
type PostgresCarts struct{ store *PostgresStore }

func NewPostgresCarts(store *PostgresStore) *PostgresCarts { return &PostgresCarts{store: store} }

var _ CartRepository = (*PostgresCarts)(nil)

func (r *PostgresCarts) GetOrCreateByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	c := domain.Cart{UserID: userID}
	err := r.store.q(ctx).QueryRowContext(ctx,
		`INSERT INTO carts (user_id) VALUES ($1)
		 ON CONFLICT (user_id) DO UPDATE SET user_id = EXCLUDED.user_id
		 RETURNING id`, userID,
	).Scan(&c.ID)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresCarts) GetByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	var c domain.Cart
	err := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT id, user_id FROM carts WHERE user_id = $1`, userID,
	).Scan(&c.ID, &c.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *PostgresCarts) ListItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx,
		`SELECT id, cart_id, product_id, quantity FROM cart_items WHERE cart_id = $1 ORDER BY product_id`, cartID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.CartItem, 0)
	for rows.Next() {
		var it domain.CartItem
		if err := rows.Scan(&it.ID, &it.CartID, &it.ProductID, &it.Quantity); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PostgresCarts) AddItem(ctx context.Context, item *domain.CartItem) error {
	return r.store.q(ctx).QueryRowContext(ctx,
		`INSERT INTO cart_items (cart_id, product_id, quantity) VALUES ($1,$2,$3)
		 ON CONFLICT (cart_id, product_id)
		 DO UPDATE SET quantity = cart_items.quantity + EXCLUDED.quantity
		 RETURNING id, quantity`,
		item.CartID, item.ProductID, item.Quantity,
	).Scan(&item.ID, &item.Quantity)
}

func (r *PostgresCarts) RemoveItem(ctx context.Context, cartID, productID int64) error {
	res, err := r.store.q(ctx).ExecContext(ctx,
		`DELETE FROM cart_items WHERE cart_id=$1 AND product_id=$2`, cartID, productID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *PostgresCarts) Delete(ctx context.Context, cartID int64) error {
	// cart_items уходят по ON DELETE CASCADE
	res, err := r.store.q(ctx).ExecContext(ctx, `DELETE FROM carts WHERE id=$1`, cartID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// PostgresPromos PromoRepository
type PostgresPromos struct{ store *PostgresStore }

func NewPostgresPromos(store *PostgresStore) *PostgresPromos { return &PostgresPromos{store: store} }

var _ PromoRepository = (*PostgresPromos)(nil)

func (r *PostgresPromos) Create(ctx context.Context, p *domain.PromoCode) error {
	return r.store.q(ctx).QueryRowContext(ctx,
		`INSERT INTO promo_codes (code, discount_percent, discount_amount, is_active)
		 VALUES ($1,$2,$3,$4) RETURNING id`,
		p.Code, p.DiscountPercent, p.DiscountAmount, p.IsActive,
	).Scan(&p.ID)
}

func (r *PostgresPromos) GetActiveByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	var p domain.PromoCode
	err := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT id, code, discount_percent, discount_amount, is_active
		 FROM promo_codes WHERE code = $1 AND is_active`, code,
	).Scan(&p.ID, &p.Code, &p.DiscountPercent, &p.DiscountAmount, &p.IsActive)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PostgresPromos) List(ctx context.Context) ([]domain.PromoCode, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx,
		`SELECT id, code, discount_percent, discount_amount, is_active FROM promo_codes ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.PromoCode, 0)
	for rows.Next() {
		var p domain.PromoCode
		if err := rows.Scan(&p.ID, &p.Code, &p.DiscountPercent, &p.DiscountAmount, &p.IsActive); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PostgresOrders OrderRepository
type PostgresOrders struct{ store *PostgresStore }

func NewPostgresOrders(store *PostgresStore) *PostgresOrders { return &PostgresOrders{store: store} }

var _ OrderRepository = (*PostgresOrders)(nil)

func (r *PostgresOrders) Create(ctx context.Context, o *domain.Order) error {
	if o.Status == "" {
		o.Status = domain.OrderStatusPending
	}
	q := r.store.q(ctx)
	err := q.QueryRowContext(ctx,
		`INSERT INTO transactions (user_id, total_price, status, payment_proof, ts)
		 VALUES ($1,$2,$3,$4,$5) RETURNING id, ts`,
		o.UserID, o.TotalPrice, o.Status, o.PaymentProof, o.Timestamp,
	).Scan(&o.ID, &o.Timestamp)
	if err != nil {
		return err
	}
	for i := range o.Items {
		it := &o.Items[i]
		it.OrderID = o.ID
		err := q.QueryRowContext(ctx,
			`INSERT INTO transaction_items (transaction_id, product_id, product_name, seller_name, image_url, quantity, price)
			 VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
			it.OrderID, it.ProductID, it.ProductName, it.SellerName, it.ImageURL, it.Quantity, it.Price,
		).Scan(&it.ID)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *PostgresOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	var o domain.Order
	err := r.store.q(ctx).QueryRowContext(ctx,
		`SELECT id, user_id, total_price, status, payment_proof, ts FROM transactions WHERE id = $1`, id,
	).Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.PaymentProof, &o.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := r.loadItems(ctx, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (r *PostgresOrders) loadItems(ctx context.Context, orderID int64) ([]domain.OrderItem, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx,
		`SELECT id, transaction_id, product_id, product_name, seller_name, image_url, quantity, price
		 FROM transaction_items WHERE transaction_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.OrderItem, 0)
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.SellerName, &it.ImageURL, &it.Quantity, &it.Price); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (r *PostgresOrders) list(ctx context.Context, query string, args ...any) ([]domain.Order, error) {
	rows, err := r.store.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]domain.Order, 0)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.PaymentProof, &o.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		items, err := r.loadItems(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Items = items
	}
	return out, nil
}

func (r *PostgresOrders) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	return r.list(ctx,
		`SELECT id, user_id, total_price, status, payment_proof, ts FROM transactions WHERE user_id = $1 ORDER BY id`,
		userID)
}

func (r *PostgresOrders) ListAll(ctx context.Context) ([]domain.Order, error) {
	return r.list(ctx,
		`SELECT id, user_id, total_price, status, payment_proof, ts FROM transactions ORDER BY id`)
}

func (r *PostgresOrders) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, paymentProof string) (*domain.Order, error) {
	var query string
	var args []any
	if paymentProof != "" {
		query = `UPDATE transactions SET status=$1, payment_proof=$2 WHERE id=$3`
		args = []any{status, paymentProof, id}
	} else {
		query = `UPDATE transactions SET status=$1 WHERE id=$2`
		args = []any{status, id}
	}
	res, err := r.store.q(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

// PostgresTx настоящая транзакция БД; fn видит sql.Tx через контекст
type PostgresTx struct{ store *PostgresStore }

func NewPostgresTx(store *PostgresStore) *PostgresTx { return &PostgresTx{store: store} }

var _ TxManager = (*PostgresTx)(nil)

func (t *PostgresTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx, err := t.store.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	ctx = context.WithValue(ctx, pgTxKey{}, tx)
	if err := fn(ctx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
