package repository

import (
	"context"
	"sync"
	"time"

	"karyarasa/internal/domain"
)

// MemoryStore объединённое in-memory хранилище и простой генератор ID.
// Используется в тестах и при запуске без DATABASE_URL
type MemoryStore struct {
	mu sync.RWMutex

	nextUserID      int64
	nextCategoryID  int64
	nextProdID      int64
	nextCartID      int64
	nextCartItemID  int64
	nextPromoID     int64
	nextOrderID     int64
	nextOrderItemID int64

	usersByID       map[int64]domain.User
	categoriesByID  map[int64]domain.Category
	productsByID    map[int64]domain.Product
	cartsByID       map[int64]domain.Cart
	cartIDByUser    map[int64]int64
	cartItemsByCart map[int64][]domain.CartItem
	promosByID      map[int64]domain.PromoCode
	ordersByID      map[int64]domain.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextUserID:      1,
		nextCategoryID:  1,
		nextProdID:      1,
		nextCartID:      1,
		nextCartItemID:  1,
		nextPromoID:     1,
		nextOrderID:     1,
		nextOrderItemID: 1,
		usersByID:       make(map[int64]domain.User),
		categoriesByID:  make(map[int64]domain.Category),
		productsByID:    make(map[int64]domain.Product),
		cartsByID:       make(map[int64]domain.Cart),
		cartIDByUser:    make(map[int64]int64),
		cartItemsByCart: make(map[int64][]domain.CartItem),
		promosByID:      make(map[int64]domain.PromoCode),
		ordersByID:      make(map[int64]domain.Order),
	}
}

// transaction-aware locking helpers
type txKey struct{}

func isTx(ctx context.Context) bool {
	v := ctx.Value(txKey{})
	if v == nil {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

func (m *MemoryStore) rlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RLock()
	}
}
func (m *MemoryStore) runlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.RUnlock()
	}
}
func (m *MemoryStore) wlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Lock()
	}
}
func (m *MemoryStore) wunlock(ctx context.Context) {
	if !isTx(ctx) {
		m.mu.Unlock()
	}
}

// snapshot копирует всё изменяемое состояние; restore откатывает к нему.
// Вызываются только под mu из MemoryTx
type memSnapshot struct {
	counters        [8]int64
	usersByID       map[int64]domain.User
	categoriesByID  map[int64]domain.Category
	productsByID    map[int64]domain.Product
	cartsByID       map[int64]domain.Cart
	cartIDByUser    map[int64]int64
	cartItemsByCart map[int64][]domain.CartItem
	promosByID      map[int64]domain.PromoCode
	ordersByID      map[int64]domain.Order
}

func (m *MemoryStore) snapshot() *memSnapshot {
	s := &memSnapshot{
		counters: [8]int64{
			m.nextUserID, m.nextCategoryID, m.nextProdID, m.nextCartID,
			m.nextCartItemID, m.nextPromoID, m.nextOrderID, m.nextOrderItemID,
		},
		usersByID:       make(map[int64]domain.User, len(m.usersByID)),
		categoriesByID:  make(map[int64]domain.Category, len(m.categoriesByID)),
		productsByID:    make(map[int64]domain.Product, len(m.productsByID)),
		cartsByID:       make(map[int64]domain.Cart, len(m.cartsByID)),
		cartIDByUser:    make(map[int64]int64, len(m.cartIDByUser)),
		cartItemsByCart: make(map[int64][]domain.CartItem, len(m.cartItemsByCart)),
		promosByID:      make(map[int64]domain.PromoCode, len(m.promosByID)),
		ordersByID:      make(map[int64]domain.Order, len(m.ordersByID)),
	}
	for k, v := range m.usersByID {
		s.usersByID[k] = v
	}
	for k, v := range m.categoriesByID {
		s.categoriesByID[k] = v
	}
	for k, v := range m.productsByID {
		s.productsByID[k] = v
	}
	for k, v := range m.cartsByID {
		s.cartsByID[k] = v
	}
	for k, v := range m.cartIDByUser {
		s.cartIDByUser[k] = v
	}
	for k, v := range m.cartItemsByCart {
		s.cartItemsByCart[k] = append([]domain.CartItem(nil), v...)
	}
	for k, v := range m.promosByID {
		s.promosByID[k] = v
	}
	for k, v := range m.ordersByID {
		v.Items = append([]domain.OrderItem(nil), v.Items...)
		s.ordersByID[k] = v
	}
	return s
}

func (m *MemoryStore) restore(s *memSnapshot) {
	m.nextUserID, m.nextCategoryID, m.nextProdID, m.nextCartID = s.counters[0], s.counters[1], s.counters[2], s.counters[3]
	m.nextCartItemID, m.nextPromoID, m.nextOrderID, m.nextOrderItemID = s.counters[4], s.counters[5], s.counters[6], s.counters[7]
	m.usersByID = s.usersByID
	m.categoriesByID = s.categoriesByID
	m.productsByID = s.productsByID
	m.cartsByID = s.cartsByID
	m.cartIDByUser = s.cartIDByUser
	m.cartItemsByCart = s.cartItemsByCart
	m.promosByID = s.promosByID
	m.ordersByID = s.ordersByID
}

// Ensure interfaces
var _ ProductRepository = (*MemoryStore)(nil)

// ProductRepository implementation
func (m *MemoryStore) Create(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p.ID = m.nextProdID
	m.nextProdID++
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) GetByID(ctx context.Context, id int64) (*domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	p, ok := m.productsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	// return copy
	cp := p
	return &cp, nil
}

func (m *MemoryStore) Update(ctx context.Context, p *domain.Product) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.productsByID[p.ID]; !ok {
		return ErrNotFound
	}
	m.productsByID[p.ID] = *p
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	if _, ok := m.productsByID[id]; !ok {
		return ErrNotFound
	}
	delete(m.productsByID, id)
	return nil
}

func (m *MemoryStore) List(ctx context.Context, f ProductFilter) ([]domain.Product, error) {
	m.rlock(ctx)
	defer m.runlock(ctx)
	out := make([]domain.Product, 0)
	for _, p := range m.productsByID {
		if !containsIgnoreCase(p.Name, f.NameSubstring) {
			continue
		}
		if f.CategoryID != nil && p.CategoryID != *f.CategoryID {
			continue
		}
		if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
			continue
		}
		if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// DecrementStock сравнивает и списывает под одной блокировкой
func (m *MemoryStore) DecrementStock(ctx context.Context, productID, by int64) error {
	m.wlock(ctx)
	defer m.wunlock(ctx)
	p, ok := m.productsByID[productID]
	if !ok {
		return ErrNotFound
	}
	if p.Stock < by {
		return ErrInsufficientStock
	}
	p.Stock -= by
	m.productsByID[productID] = p
	return nil
}

// MemoryUsers UserRepository поверх общего стора
type MemoryUsers struct{ store *MemoryStore }

func NewMemoryUsers(store *MemoryStore) *MemoryUsers { return &MemoryUsers{store: store} }

var _ UserRepository = (*MemoryUsers)(nil)

func (mu *MemoryUsers) Create(ctx context.Context, u *domain.User) error {
	mu.store.wlock(ctx)
	defer mu.store.wunlock(ctx)
	u.ID = mu.store.nextUserID
	mu.store.nextUserID++
	if u.Role == "" {
		u.Role = "user"
	}
	mu.store.usersByID[u.ID] = *u
	return nil
}

func (mu *MemoryUsers) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	mu.store.rlock(ctx)
	defer mu.store.runlock(ctx)
	u, ok := mu.store.usersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := u
	return &cp, nil
}

// MemoryCategories CategoryRepository поверх общего стора
type MemoryCategories struct{ store *MemoryStore }

func NewMemoryCategories(store *MemoryStore) *MemoryCategories {
	return &MemoryCategories{store: store}
}

var _ CategoryRepository = (*MemoryCategories)(nil)

func (mc *MemoryCategories) Create(ctx context.Context, c *domain.Category) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	c.ID = mc.store.nextCategoryID
	mc.store.nextCategoryID++
	mc.store.categoriesByID[c.ID] = *c
	return nil
}

func (mc *MemoryCategories) GetByID(ctx context.Context, id int64) (*domain.Category, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	c, ok := mc.store.categoriesByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (mc *MemoryCategories) List(ctx context.Context) ([]domain.Category, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	out := make([]domain.Category, 0, len(mc.store.categoriesByID))
	for _, c := range mc.store.categoriesByID {
		out = append(out, c)
	}
	return out, nil
}

func (mc *MemoryCategories) Delete(ctx context.Context, id int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if _, ok := mc.store.categoriesByID[id]; !ok {
		return ErrNotFound
	}
	delete(mc.store.categoriesByID, id)
	return nil
}

// MemoryCarts CartRepository поверх общего стора
type MemoryCarts struct{ store *MemoryStore }

func NewMemoryCarts(store *MemoryStore) *MemoryCarts { return &MemoryCarts{store: store} }

var _ CartRepository = (*MemoryCarts)(nil)

func (mc *MemoryCarts) GetOrCreateByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if id, ok := mc.store.cartIDByUser[userID]; ok {
		c := mc.store.cartsByID[id]
		cp := c
		return &cp, nil
	}
	c := domain.Cart{ID: mc.store.nextCartID, UserID: userID}
	mc.store.nextCartID++
	mc.store.cartsByID[c.ID] = c
	mc.store.cartIDByUser[userID] = c.ID
	return &c, nil
}

func (mc *MemoryCarts) GetByUser(ctx context.Context, userID int64) (*domain.Cart, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	id, ok := mc.store.cartIDByUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := mc.store.cartsByID[id]
	cp := c
	return &cp, nil
}

func (mc *MemoryCarts) ListItems(ctx context.Context, cartID int64) ([]domain.CartItem, error) {
	mc.store.rlock(ctx)
	defer mc.store.runlock(ctx)
	items := mc.store.cartItemsByCart[cartID]
	return append([]domain.CartItem(nil), items...), nil
}

// AddItem добавляет позицию; повторное добавление того же товара суммирует количество
func (mc *MemoryCarts) AddItem(ctx context.Context, item *domain.CartItem) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	if _, ok := mc.store.cartsByID[item.CartID]; !ok {
		return ErrNotFound
	}
	items := mc.store.cartItemsByCart[item.CartID]
	for i, it := range items {
		if it.ProductID == item.ProductID {
			items[i].Quantity += item.Quantity
			item.ID = it.ID
			item.Quantity = items[i].Quantity
			return nil
		}
	}
	item.ID = mc.store.nextCartItemID
	mc.store.nextCartItemID++
	mc.store.cartItemsByCart[item.CartID] = append(items, *item)
	return nil
}

func (mc *MemoryCarts) RemoveItem(ctx context.Context, cartID, productID int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	items := mc.store.cartItemsByCart[cartID]
	for i, it := range items {
		if it.ProductID == productID {
			mc.store.cartItemsByCart[cartID] = append(items[:i], items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// Delete удаляет корзину вместе с позициями
func (mc *MemoryCarts) Delete(ctx context.Context, cartID int64) error {
	mc.store.wlock(ctx)
	defer mc.store.wunlock(ctx)
	c, ok := mc.store.cartsByID[cartID]
	if !ok {
		return ErrNotFound
	}
	delete(mc.store.cartsByID, cartID)
	delete(mc.store.cartIDByUser, c.UserID)
	delete(mc.store.cartItemsByCart, cartID)
	return nil
}

// MemoryPromos PromoRepository поверх общего стора
type MemoryPromos struct{ store *MemoryStore }

func NewMemoryPromos(store *MemoryStore) *MemoryPromos { return &MemoryPromos{store: store} }

var _ PromoRepository = (*MemoryPromos)(nil)

func (mp *MemoryPromos) Create(ctx context.Context, p *domain.PromoCode) error {
	mp.store.wlock(ctx)
	defer mp.store.wunlock(ctx)
	p.ID = mp.store.nextPromoID
	mp.store.nextPromoID++
	mp.store.promosByID[p.ID] = *p
	return nil
}

// GetActiveByCode сравнение кода строгое, с учётом регистра
func (mp *MemoryPromos) GetActiveByCode(ctx context.Context, code string) (*domain.PromoCode, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	for _, p := range mp.store.promosByID {
		if p.Code == code && p.IsActive {
			cp := p
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (mp *MemoryPromos) List(ctx context.Context) ([]domain.PromoCode, error) {
	mp.store.rlock(ctx)
	defer mp.store.runlock(ctx)
	out := make([]domain.PromoCode, 0, len(mp.store.promosByID))
	for _, p := range mp.store.promosByID {
		out = append(out, p)
	}
	return out, nil
}

// MemoryOrders OrderRepository поверх общего стора
type MemoryOrders struct{ store *MemoryStore }

func NewMemoryOrders(store *MemoryStore) *MemoryOrders { return &MemoryOrders{store: store} }

var _ OrderRepository = (*MemoryOrders)(nil)

func (mo *MemoryOrders) Create(ctx context.Context, o *domain.Order) error {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o.ID = mo.store.nextOrderID
	mo.store.nextOrderID++
	if o.Timestamp.IsZero() {
		o.Timestamp = time.Now().UTC()
	}
	if o.Status == "" {
		o.Status = domain.OrderStatusPending
	}
	for i := range o.Items {
		o.Items[i].ID = mo.store.nextOrderItemID
		mo.store.nextOrderItemID++
		o.Items[i].OrderID = o.ID
	}
	cp := *o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	mo.store.ordersByID[o.ID] = cp
	return nil
}

func (mo *MemoryOrders) GetByID(ctx context.Context, id int64) (*domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp, nil
}

func (mo *MemoryOrders) ListByUser(ctx context.Context, userID int64) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	out := make([]domain.Order, 0)
	for _, o := range mo.store.ordersByID {
		if o.UserID != userID {
			continue
		}
		cp := o
		cp.Items = append([]domain.OrderItem(nil), o.Items...)
		out = append(out, cp)
	}
	return out, nil
}

func (mo *MemoryOrders) ListAll(ctx context.Context) ([]domain.Order, error) {
	mo.store.rlock(ctx)
	defer mo.store.runlock(ctx)
	out := make([]domain.Order, 0, len(mo.store.ordersByID))
	for _, o := range mo.store.ordersByID {
		cp := o
		cp.Items = append([]domain.OrderItem(nil), o.Items...)
		out = append(out, cp)
	}
	return out, nil
}

func (mo *MemoryOrders) UpdateStatus(ctx context.Context, id int64, status domain.OrderStatus, paymentProof string) (*domain.Order, error) {
	mo.store.wlock(ctx)
	defer mo.store.wunlock(ctx)
	o, ok := mo.store.ordersByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	o.Status = status
	if paymentProof != "" {
		o.PaymentProof = paymentProof
	}
	mo.store.ordersByID[id] = o
	cp := o
	cp.Items = append([]domain.OrderItem(nil), o.Items...)
	return &cp, nil
}

// MemoryTx эмулирует транзакцию: блокировка записи на время fn плюс
// снапшот состояния, который восстанавливается при ошибке
type MemoryTx struct{ store *MemoryStore }

func NewMemoryTx(store *MemoryStore) *MemoryTx { return &MemoryTx{store: store} }

var _ TxManager = (*MemoryTx)(nil)

func (tx *MemoryTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	tx.store.mu.Lock()
	defer tx.store.mu.Unlock()
	snap := tx.store.snapshot()
	ctx = context.WithValue(ctx, txKey{}, true)
	if err := fn(ctx); err != nil {
		tx.store.restore(snap)
		return err
	}
	return nil
}
