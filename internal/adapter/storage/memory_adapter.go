package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/checkout-engine/internal/core/domain"
	"github.com/rl1809/checkout-engine/internal/port"
)

var (
	_ port.Catalog           = (*MemoryAdapter)(nil)
	_ port.CustomerDirectory = (*MemoryAdapter)(nil)
	_ port.AddressRepository = (*MemoryAdapter)(nil)
	_ port.StockLedger       = (*MemoryAdapter)(nil)
	_ port.BasketRepository  = (*MemoryAdapter)(nil)
	_ port.OrderRepository   = (*MemoryAdapter)(nil)
	_ port.Transactor        = (*MemoryAdapter)(nil)
)

// MemoryAdapter keeps the whole store in process. Stock is guarded per
// product and basket merges per (customer, product) key. WithinTx gives
// atomicity through an undo journal, not isolation.
type MemoryAdapter struct {
	catalogMu sync.RWMutex
	products  map[int64]*productSlot
	customers map[int64]domain.Customer
	addresses map[int64]domain.Address
	addrSeq   int64

	basketMu sync.Mutex
	lines    map[int64]domain.BasketLine
	lineSeq  int64
	keyLocks map[basketKey]*keyLock

	orderMu sync.RWMutex
	orders  map[string]domain.Order

	now func() time.Time
}

type productSlot struct {
	mu      sync.Mutex
	product domain.Product
}

type basketKey struct {
	customerID int64
	productID  int64
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products:  make(map[int64]*productSlot),
		customers: make(map[int64]domain.Customer),
		addresses: make(map[int64]domain.Address),
		lines:     make(map[int64]domain.BasketLine),
		keyLocks:  make(map[basketKey]*keyLock),
		orders:    make(map[string]domain.Order),
		now:       time.Now,
	}
}

// PutProduct inserts or replaces a product, including its quantity.
func (m *MemoryAdapter) PutProduct(p domain.Product) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	now := m.now()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if slot, ok := m.products[p.ID]; ok {
		slot.mu.Lock()
		slot.product = p
		slot.mu.Unlock()
		return
	}
	m.products[p.ID] = &productSlot{product: p}
}

func (m *MemoryAdapter) PutCustomer(c domain.Customer) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()
	m.customers[c.ID] = c
}

// --- transactions ---

type journalKey struct{}

type journal struct {
	mu   sync.Mutex
	undo []func()
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(journalKey{}).(*journal); ok {
		return fn(ctx)
	}

	j := &journal{}
	if err := fn(context.WithValue(ctx, journalKey{}, j)); err != nil {
		j.rollback()
		return err
	}
	return nil
}

func (j *journal) rollback() {
	j.mu.Lock()
	defer j.mu.Unlock()
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
}

func onRollback(ctx context.Context, fn func()) {
	j, ok := ctx.Value(journalKey{}).(*journal)
	if !ok {
		return
	}
	j.mu.Lock()
	j.undo = append(j.undo, fn)
	j.mu.Unlock()
}

// --- catalog ---

func (m *MemoryAdapter) slot(id int64) (*productSlot, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	slot, ok := m.products[id]
	if !ok {
		return nil, domain.NewNotFound("product", id)
	}
	return slot, nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id int64) (domain.Product, error) {
	slot, err := m.slot(id)
	if err != nil {
		return domain.Product{}, err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()
	return slot.product, nil
}

func (m *MemoryAdapter) SaveProduct(ctx context.Context, p domain.Product) error {
	slot, err := m.slot(p.ID)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	if slot.product.Version != p.Version {
		return ErrOptimisticLock
	}
	slot.product.Name = p.Name
	slot.product.UnitPrice = p.UnitPrice
	slot.product.BrandID = p.BrandID
	slot.product.CategoryID = p.CategoryID
	slot.product.Version++
	slot.product.UpdatedAt = m.now()
	return nil
}

func (m *MemoryAdapter) GetCustomer(ctx context.Context, id int64) (domain.Customer, error) {
	m.catalogMu.RLock()
	defer m.catalogMu.RUnlock()

	c, ok := m.customers[id]
	if !ok {
		return domain.Customer{}, domain.NewNotFound("customer", id)
	}
	return c, nil
}

func (m *MemoryAdapter) SaveAddress(ctx context.Context, a domain.Address) (domain.Address, error) {
	m.catalogMu.Lock()
	defer m.catalogMu.Unlock()

	m.addrSeq++
	a.ID = m.addrSeq
	m.addresses[a.ID] = a

	id := a.ID
	onRollback(ctx, func() {
		m.catalogMu.Lock()
		delete(m.addresses, id)
		m.catalogMu.Unlock()
	})
	return a, nil
}

// --- stock ledger ---

func (m *MemoryAdapter) Get(ctx context.Context, productID int64) (domain.Product, error) {
	return m.GetProduct(ctx, productID)
}

func (m *MemoryAdapter) CheckAndReserve(ctx context.Context, productID int64, quantity int) (domain.Product, error) {
	products, err := m.ReserveAll(ctx, []domain.Reservation{{ProductID: productID, Quantity: quantity}})
	if err != nil {
		return domain.Product{}, err
	}
	return products[productID], nil
}

func (m *MemoryAdapter) ReserveAll(ctx context.Context, reservations []domain.Reservation) (map[int64]domain.Product, error) {
	reservations = domain.NormalizeReservations(reservations)

	slots := make([]*productSlot, len(reservations))
	for i, r := range reservations {
		if r.Quantity <= 0 {
			return nil, domain.ErrInvalidQuantity
		}
		slot, err := m.slot(r.ProductID)
		if err != nil {
			return nil, err
		}
		slots[i] = slot
	}

	// ascending product id, the same order every caller uses
	for _, slot := range slots {
		slot.mu.Lock()
	}
	defer func() {
		for _, slot := range slots {
			slot.mu.Unlock()
		}
	}()

	for i, r := range reservations {
		if available := slots[i].product.Quantity; available < r.Quantity {
			return nil, &domain.InsufficientStockError{ProductID: r.ProductID, Available: available, Requested: r.Quantity}
		}
	}

	now := m.now()
	out := make(map[int64]domain.Product, len(reservations))
	for i, r := range reservations {
		slots[i].product.Quantity -= r.Quantity
		slots[i].product.UpdatedAt = now
		out[r.ProductID] = slots[i].product
	}

	onRollback(ctx, func() {
		for _, r := range reservations {
			_ = m.Restore(context.Background(), r.ProductID, r.Quantity)
		}
	})
	return out, nil
}

func (m *MemoryAdapter) Restore(ctx context.Context, productID int64, quantity int) error {
	slot, err := m.slot(productID)
	if err != nil {
		return err
	}
	slot.mu.Lock()
	defer slot.mu.Unlock()

	added := quantity
	if added > math.MaxInt-slot.product.Quantity {
		added = math.MaxInt - slot.product.Quantity
	}
	slot.product.Quantity += added
	slot.product.UpdatedAt = m.now()

	onRollback(ctx, func() {
		slot.mu.Lock()
		slot.product.Quantity -= added
		slot.mu.Unlock()
	})
	return nil
}

// --- basket ---

// lockKey serializes merges on one (customer, product) key. The entry is
// dropped once nobody holds or waits for it.
func (m *MemoryAdapter) lockKey(k basketKey) func() {
	m.basketMu.Lock()
	l, ok := m.keyLocks[k]
	if !ok {
		l = &keyLock{}
		m.keyLocks[k] = l
	}
	l.refs++
	m.basketMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()

		m.basketMu.Lock()
		defer m.basketMu.Unlock()
		l.refs--
		if l.refs == 0 {
			delete(m.keyLocks, k)
		}
	}
}

func (m *MemoryAdapter) findLineLocked(k basketKey) (domain.BasketLine, bool) {
	for _, l := range m.lines {
		if l.CustomerID == k.customerID && l.ProductID == k.productID {
			return l, true
		}
	}
	return domain.BasketLine{}, false
}

func (m *MemoryAdapter) findLine(k basketKey) (domain.BasketLine, bool) {
	m.basketMu.Lock()
	defer m.basketMu.Unlock()
	return m.findLineLocked(k)
}

// storeLineLocked writes line over previous and journals the undo. Caller
// holds basketMu.
func (m *MemoryAdapter) storeLineLocked(ctx context.Context, line domain.BasketLine, existed bool, previous domain.BasketLine) domain.BasketLine {
	now := m.now()
	if !existed {
		m.lineSeq++
		line.ID = m.lineSeq
		line.CreatedAt = now
	}
	line.UpdatedAt = now
	m.lines[line.ID] = line

	onRollback(ctx, func() {
		m.basketMu.Lock()
		defer m.basketMu.Unlock()
		if existed {
			m.lines[previous.ID] = previous
		} else {
			delete(m.lines, line.ID)
		}
	})
	return line
}

// UpsertLine runs fn outside basketMu, so the line can be removed or
// consumed meanwhile. The write only lands if the line is still what fn saw;
// otherwise fn runs again on the fresh state.
func (m *MemoryAdapter) UpsertLine(ctx context.Context, customerID, productID int64, fn func(current int) (int, error)) (domain.BasketLine, error) {
	k := basketKey{customerID: customerID, productID: productID}
	unlock := m.lockKey(k)
	defer unlock()

	for {
		seen, found := m.findLine(k)
		qty, err := fn(seen.Quantity)
		if err != nil {
			return domain.BasketLine{}, err
		}

		m.basketMu.Lock()
		current, still := m.findLineLocked(k)
		if still != found || current != seen {
			m.basketMu.Unlock()
			continue
		}
		line := current
		if !found {
			line = domain.BasketLine{CustomerID: customerID, ProductID: productID}
		}
		line.Quantity = qty
		line = m.storeLineLocked(ctx, line, found, current)
		m.basketMu.Unlock()
		return line, nil
	}
}

func (m *MemoryAdapter) UpdateLine(ctx context.Context, lineID int64, fn func(line domain.BasketLine) (int, error)) (domain.BasketLine, error) {
	m.basketMu.Lock()
	line, ok := m.lines[lineID]
	m.basketMu.Unlock()
	if !ok {
		return domain.BasketLine{}, domain.NewNotFound("basket line", lineID)
	}

	unlock := m.lockKey(basketKey{customerID: line.CustomerID, productID: line.ProductID})
	defer unlock()

	for {
		m.basketMu.Lock()
		seen, ok := m.lines[lineID]
		m.basketMu.Unlock()
		if !ok {
			return domain.BasketLine{}, domain.NewNotFound("basket line", lineID)
		}

		qty, err := fn(seen)
		if err != nil {
			return domain.BasketLine{}, err
		}

		m.basketMu.Lock()
		current, ok := m.lines[lineID]
		if !ok {
			m.basketMu.Unlock()
			return domain.BasketLine{}, domain.NewNotFound("basket line", lineID)
		}
		if current != seen {
			m.basketMu.Unlock()
			continue
		}
		line := current
		line.Quantity = qty
		line = m.storeLineLocked(ctx, line, true, current)
		m.basketMu.Unlock()
		return line, nil
	}
}

func (m *MemoryAdapter) ListLines(ctx context.Context, customerID int64) ([]domain.BasketLine, error) {
	m.basketMu.Lock()
	defer m.basketMu.Unlock()

	var out []domain.BasketLine
	for _, l := range m.lines {
		if l.CustomerID == customerID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryAdapter) CountLines(ctx context.Context, customerID int64) (int, error) {
	lines, err := m.ListLines(ctx, customerID)
	return len(lines), err
}

// LockLines is ListLines; the memory store has no row locks to hold.
func (m *MemoryAdapter) LockLines(ctx context.Context, customerID int64) ([]domain.BasketLine, error) {
	return m.ListLines(ctx, customerID)
}

func (m *MemoryAdapter) ConsumeLines(ctx context.Context, consumed []domain.BasketLine) error {
	m.basketMu.Lock()
	defer m.basketMu.Unlock()

	var previous []domain.BasketLine
	for _, c := range consumed {
		cur, ok := m.lines[c.ID]
		if !ok {
			continue
		}
		previous = append(previous, cur)
		if cur.Quantity <= c.Quantity {
			delete(m.lines, c.ID)
			continue
		}
		cur.Quantity -= c.Quantity
		cur.UpdatedAt = m.now()
		m.lines[c.ID] = cur
	}
	m.restoreLinesOnRollback(ctx, previous)
	return nil
}

func (m *MemoryAdapter) DeleteLines(ctx context.Context, lineIDs ...int64) error {
	m.basketMu.Lock()
	defer m.basketMu.Unlock()

	var removed []domain.BasketLine
	for _, id := range lineIDs {
		if l, ok := m.lines[id]; ok {
			removed = append(removed, l)
			delete(m.lines, id)
		}
	}
	m.restoreLinesOnRollback(ctx, removed)
	return nil
}

func (m *MemoryAdapter) ClearBasket(ctx context.Context, customerID int64) error {
	m.basketMu.Lock()
	defer m.basketMu.Unlock()

	var removed []domain.BasketLine
	for id, l := range m.lines {
		if l.CustomerID == customerID {
			removed = append(removed, l)
			delete(m.lines, id)
		}
	}
	m.restoreLinesOnRollback(ctx, removed)
	return nil
}

func (m *MemoryAdapter) restoreLinesOnRollback(ctx context.Context, removed []domain.BasketLine) {
	if len(removed) == 0 {
		return
	}
	onRollback(ctx, func() {
		m.basketMu.Lock()
		defer m.basketMu.Unlock()
		for _, l := range removed {
			m.lines[l.ID] = l
		}
	})
}

// --- orders ---

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order domain.Order) error {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	if _, exists := m.orders[order.ID]; exists {
		return fmt.Errorf("insert order: duplicate id %s", order.ID)
	}
	order.Lines = append([]domain.OrderLine(nil), order.Lines...)
	m.orders[order.ID] = order

	onRollback(ctx, func() {
		m.orderMu.Lock()
		delete(m.orders, order.ID)
		m.orderMu.Unlock()
	})
	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, domain.NewNotFound("order", id)
	}
	return o, nil
}

func (m *MemoryAdapter) UpdateOrderStatus(ctx context.Context, id string, from, to domain.OrderStatus) (domain.Order, error) {
	m.orderMu.Lock()
	defer m.orderMu.Unlock()

	o, ok := m.orders[id]
	if !ok {
		return domain.Order{}, domain.NewNotFound("order", id)
	}
	if o.Status != from {
		return domain.Order{}, &domain.TransitionError{From: o.Status, To: to}
	}

	previous := o
	o.Status = to
	o.UpdatedAt = m.now()
	m.orders[id] = o

	onRollback(ctx, func() {
		m.orderMu.Lock()
		m.orders[id] = previous
		m.orderMu.Unlock()
	})
	return o, nil
}

func (m *MemoryAdapter) listOrders(keep func(domain.Order) bool) []domain.Order {
	m.orderMu.RLock()
	defer m.orderMu.RUnlock()

	var out []domain.Order
	for _, o := range m.orders {
		if keep(o) {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *MemoryAdapter) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return m.listOrders(func(domain.Order) bool { return true }), nil
}

func (m *MemoryAdapter) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]domain.Order, error) {
	out := m.listOrders(func(o domain.Order) bool {
		return o.CustomerID != nil && *o.CustomerID == customerID
	})
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *MemoryAdapter) ListOrdersByStatus(ctx context.Context, status domain.OrderStatus) ([]domain.Order, error) {
	return m.listOrders(func(o domain.Order) bool { return o.Status == status }), nil
}
