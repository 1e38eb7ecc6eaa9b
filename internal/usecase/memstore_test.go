package usecase_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"printstudio/internal/domain/model"
	repo "printstudio/internal/repository"

	"gorm.io/datatypes"
)

var errInjected = errors.New("injected failure")

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// テスト用のインメモリDB。WithinTx は作業コピーに書き、エラーなら捨てる。
type memStore struct {
	mu    sync.Mutex
	state *memState
	// "Orders.UpdateStatus" のように指定したメソッドでエラーを返す
	failOn string
}

type memState struct {
	seq       int64
	orders    map[int64]model.Order
	items     map[int64][]model.OrderItem
	timeline  []model.OrderTimelineEntry
	payments  map[int64]model.Payment
	txns      map[int64]model.Transaction
	carts     map[int64]model.Cart
	cartItems map[int64]model.CartItem
	products  map[int64]model.Product
	audits    []model.AuditLog
}

func newMemStore() *memStore {
	return &memStore{state: &memState{
		orders:    map[int64]model.Order{},
		items:     map[int64][]model.OrderItem{},
		payments:  map[int64]model.Payment{},
		txns:      map[int64]model.Transaction{},
		carts:     map[int64]model.Cart{},
		cartItems: map[int64]model.CartItem{},
		products:  map[int64]model.Product{},
	}}
}

func (s *memState) clone() *memState {
	c := &memState{
		seq:       s.seq,
		orders:    make(map[int64]model.Order, len(s.orders)),
		items:     make(map[int64][]model.OrderItem, len(s.items)),
		timeline:  append([]model.OrderTimelineEntry(nil), s.timeline...),
		payments:  make(map[int64]model.Payment, len(s.payments)),
		txns:      make(map[int64]model.Transaction, len(s.txns)),
		carts:     make(map[int64]model.Cart, len(s.carts)),
		cartItems: make(map[int64]model.CartItem, len(s.cartItems)),
		products:  make(map[int64]model.Product, len(s.products)),
		audits:    append([]model.AuditLog(nil), s.audits...),
	}
	for k, v := range s.orders {
		c.orders[k] = v
	}
	for k, v := range s.items {
		c.items[k] = append([]model.OrderItem(nil), v...)
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.txns {
		c.txns[k] = v
	}
	for k, v := range s.carts {
		c.carts[k] = v
	}
	for k, v := range s.cartItems {
		c.cartItems[k] = v
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	return c
}

func (s *memState) nextID() int64 {
	s.seq++
	return s.seq
}

func (m *memStore) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memRepos{s: work, failOn: m.failOn}); err != nil {
		return err
	}
	// direct() が持つポインタを生かすため中身を差し替える
	*m.state = *work
	return nil
}

// トランザクション外から使うリポジトリ（コミット済みの状態を直接読む）
func (m *memStore) direct() *memRepos {
	return &memRepos{s: m.state, failOn: m.failOn}
}

// テストの前提データを入れる
func (m *memStore) seed(fn func(s *memState)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.state)
}

func (m *memStore) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

type memRepos struct {
	s      *memState
	failOn string
}

func (r *memRepos) hit(name string) error {
	if r.failOn == name {
		return errInjected
	}
	return nil
}

func (r *memRepos) Orders() repo.OrderRepository             { return memOrders{r} }
func (r *memRepos) OrderItems() repo.OrderItemRepository     { return memOrderItems{r} }
func (r *memRepos) Timeline() repo.OrderTimelineRepository   { return memTimeline{r} }
func (r *memRepos) Payments() repo.PaymentRepository         { return memPayments{r} }
func (r *memRepos) Transactions() repo.TransactionRepository { return memTxns{r} }
func (r *memRepos) Carts() repo.CartRepository               { return memCarts{r} }
func (r *memRepos) CartItems() repo.CartItemRepository       { return memCarts{r} }
func (r *memRepos) Products() repo.ProductRepository         { return memProducts{r} }
func (r *memRepos) AuditLogs() repo.AuditLogRepository       { return memAudit{r} }

type memOrders struct{ r *memRepos }

func (o memOrders) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	v, ok := o.r.s.orders[orderID]
	if !ok || v.DeletedAt.Valid {
		return model.Order{}, repo.ErrNotFound
	}
	return v, nil
}

func (o memOrders) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	return o.FindByID(ctx, orderID)
}

func (o memOrders) List(ctx context.Context, f repo.OrderListFilter) ([]model.Order, int64, error) {
	var all []model.Order
	for _, v := range o.r.s.orders {
		if v.DeletedAt.Valid {
			continue
		}
		if f.UserID != nil && v.UserID != *f.UserID {
			continue
		}
		if f.Status != "" && string(v.Status) != f.Status {
			continue
		}
		all = append(all, v)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })

	total := int64(len(all))
	if f.Offset >= len(all) {
		return []model.Order{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[f.Offset:end], total, nil
}

func (o memOrders) Create(ctx context.Context, order model.Order) (int64, error) {
	if err := o.r.hit("Orders.Create"); err != nil {
		return 0, err
	}
	order.ID = o.r.s.nextID()
	o.r.s.orders[order.ID] = order
	return order.ID, nil
}

func (o memOrders) update(name string, orderID int64, fn func(*model.Order)) error {
	if err := o.r.hit(name); err != nil {
		return err
	}
	v, ok := o.r.s.orders[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	fn(&v)
	o.r.s.orders[orderID] = v
	return nil
}

func (o memOrders) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	return o.update("Orders.UpdateStatus", orderID, func(v *model.Order) { v.Status = status })
}

func (o memOrders) UpdateTrackingNumber(ctx context.Context, orderID int64, trackingNumber string) error {
	return o.update("Orders.UpdateTrackingNumber", orderID, func(v *model.Order) { v.TrackingNumber = &trackingNumber })
}

func (o memOrders) UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) error {
	return o.update("Orders.UpdatePaymentStatus", orderID, func(v *model.Order) { v.PaymentStatus = status })
}

func (o memOrders) AppendNote(ctx context.Context, orderID int64, note string) error {
	return o.update("Orders.AppendNote", orderID, func(v *model.Order) {
		if v.Notes == "" {
			v.Notes = note
			return
		}
		v.Notes += "\n" + note
	})
}

func (o memOrders) SoftDelete(ctx context.Context, orderID int64) error {
	return o.update("Orders.SoftDelete", orderID, func(v *model.Order) {
		v.DeletedAt.Time = testNow
		v.DeletedAt.Valid = true
	})
}

type memOrderItems struct{ r *memRepos }

func (o memOrderItems) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	if err := o.r.hit("OrderItems.CreateBulk"); err != nil {
		return err
	}
	for _, it := range items {
		it.ID = o.r.s.nextID()
		it.OrderID = orderID
		o.r.s.items[orderID] = append(o.r.s.items[orderID], it)
	}
	return nil
}

func (o memOrderItems) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return append([]model.OrderItem(nil), o.r.s.items[orderID]...), nil
}

type memTimeline struct{ r *memRepos }

func (t memTimeline) Append(ctx context.Context, entry model.OrderTimelineEntry) error {
	if err := t.r.hit("Timeline.Append"); err != nil {
		return err
	}
	entry.ID = t.r.s.nextID()
	t.r.s.timeline = append(t.r.s.timeline, entry)
	return nil
}

func (t memTimeline) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderTimelineEntry, error) {
	var out []model.OrderTimelineEntry
	for _, e := range t.r.s.timeline {
		if e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

type memPayments struct{ r *memRepos }

func (p memPayments) Create(ctx context.Context, v model.Payment) (int64, error) {
	if err := p.r.hit("Payments.Create"); err != nil {
		return 0, err
	}
	v.ID = p.r.s.nextID()
	v.CreatedAt = testNow
	p.r.s.payments[v.ID] = v
	return v.ID, nil
}

func (p memPayments) FindByID(ctx context.Context, paymentID int64) (model.Payment, error) {
	v, ok := p.r.s.payments[paymentID]
	if !ok {
		return model.Payment{}, repo.ErrNotFound
	}
	return v, nil
}

func (p memPayments) FindByIDForUpdate(ctx context.Context, paymentID int64) (model.Payment, error) {
	return p.FindByID(ctx, paymentID)
}

func (p memPayments) ListByOrderID(ctx context.Context, orderID int64) ([]model.Payment, error) {
	var out []model.Payment
	for _, v := range p.r.s.payments {
		if v.OrderID == orderID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (p memPayments) CountFailedByOrderID(ctx context.Context, orderID int64) (int64, error) {
	var n int64
	for _, v := range p.r.s.payments {
		if v.OrderID == orderID && v.Status == model.PaymentRecordFailed {
			n++
		}
	}
	return n, nil
}

func (p memPayments) MarkCompleted(ctx context.Context, paymentID int64, receiptNumber string, at time.Time) error {
	if err := p.r.hit("Payments.MarkCompleted"); err != nil {
		return err
	}
	v, ok := p.r.s.payments[paymentID]
	if !ok || v.Status != model.PaymentRecordPending {
		return repo.ErrNotFound
	}
	v.Status = model.PaymentRecordCompleted
	v.ReceiptNumber = nil
	if receiptNumber != "" {
		v.ReceiptNumber = &receiptNumber
	}
	v.CompletedAt = &at
	p.r.s.payments[paymentID] = v
	return nil
}

func (p memPayments) MarkFailed(ctx context.Context, paymentID int64, reason string) error {
	if err := p.r.hit("Payments.MarkFailed"); err != nil {
		return err
	}
	v, ok := p.r.s.payments[paymentID]
	if !ok || v.Status == model.PaymentRecordCompleted {
		return repo.ErrNotFound
	}
	v.Status = model.PaymentRecordFailed
	v.FailureReason = &reason
	v.RetryCount++
	p.r.s.payments[paymentID] = v
	return nil
}

func (p memPayments) SetReceipt(ctx context.Context, paymentID int64, receiptNumber string) error {
	if err := p.r.hit("Payments.SetReceipt"); err != nil {
		return err
	}
	v, ok := p.r.s.payments[paymentID]
	if !ok || v.Status != model.PaymentRecordCompleted || v.ReceiptNumber != nil {
		return repo.ErrNotFound
	}
	v.ReceiptNumber = &receiptNumber
	p.r.s.payments[paymentID] = v
	return nil
}

type memTxns struct{ r *memRepos }

func (t memTxns) Create(ctx context.Context, v model.Transaction) (int64, error) {
	if err := t.r.hit("Transactions.Create"); err != nil {
		return 0, err
	}
	v.ID = t.r.s.nextID()
	t.r.s.txns[v.ID] = v
	return v.ID, nil
}

func (t memTxns) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (model.Transaction, error) {
	for _, v := range t.r.s.txns {
		if v.CheckoutRequestID == checkoutRequestID {
			return v, nil
		}
	}
	return model.Transaction{}, repo.ErrNotFound
}

func (t memTxns) FindByCheckoutRequestIDForUpdate(ctx context.Context, checkoutRequestID string) (model.Transaction, error) {
	return t.FindByCheckoutRequestID(ctx, checkoutRequestID)
}

func (t memTxns) FindLatestByPaymentID(ctx context.Context, paymentID int64) (model.Transaction, error) {
	var (
		latest model.Transaction
		found  bool
	)
	for _, v := range t.r.s.txns {
		if v.PaymentID == paymentID && (!found || v.ID > latest.ID) {
			latest, found = v, true
		}
	}
	if !found {
		return model.Transaction{}, repo.ErrNotFound
	}
	return latest, nil
}

func (t memTxns) MarkResult(ctx context.Context, txID int64, status model.TransactionStatus, resultCode string, resultDesc string, raw []byte) error {
	if err := t.r.hit("Transactions.MarkResult"); err != nil {
		return err
	}
	v, ok := t.r.s.txns[txID]
	if !ok {
		return repo.ErrNotFound
	}
	v.Status = status
	v.ResultCode = &resultCode
	v.ResultDescription = &resultDesc
	v.RawCallback = datatypes.JSON(raw)
	t.r.s.txns[txID] = v
	return nil
}

type memCarts struct{ r *memRepos }

func (c memCarts) GetOrCreateActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	if cart, err := c.FindActiveByUserID(ctx, userID); err == nil {
		return cart, nil
	}
	cart := model.Cart{ID: c.r.s.nextID(), UserID: userID, Status: model.CartStatusActive}
	c.r.s.carts[cart.ID] = cart
	return cart, nil
}

func (c memCarts) FindActiveByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	for _, v := range c.r.s.carts {
		if v.UserID == userID && v.Status == model.CartStatusActive {
			return v, nil
		}
	}
	return model.Cart{}, repo.ErrNotFound
}

func (c memCarts) LockActiveSnapshot(ctx context.Context, userID int64) (model.CartSnapshot, error) {
	cart, err := c.FindActiveByUserID(ctx, userID)
	if err != nil {
		return model.CartSnapshot{}, err
	}
	items, _ := c.ListByCartID(ctx, cart.ID)
	return model.CartSnapshot{Cart: cart, Items: items}, nil
}

func (c memCarts) Clear(ctx context.Context, cartID int64) error {
	if err := c.r.hit("Carts.Clear"); err != nil {
		return err
	}
	for id, it := range c.r.s.cartItems {
		if it.CartID == cartID {
			delete(c.r.s.cartItems, id)
		}
	}
	return nil
}

func (c memCarts) ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error) {
	var out []model.CartItem
	for _, it := range c.r.s.cartItems {
		if it.CartID == cartID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c memCarts) UpsertVariant(ctx context.Context, item model.CartItem) error {
	for id, it := range c.r.s.cartItems {
		if it.CartID == item.CartID && it.SameVariant(item.ProductID, item.DesignID, item.Size, item.Color) {
			it.Quantity += item.Quantity
			it.UnitPriceSnapshot = item.UnitPriceSnapshot
			c.r.s.cartItems[id] = it
			return nil
		}
	}
	item.ID = c.r.s.nextID()
	c.r.s.cartItems[item.ID] = item
	return nil
}

func (c memCarts) UpdateQuantity(ctx context.Context, cartItemID int64, qty int64) error {
	it, ok := c.r.s.cartItems[cartItemID]
	if !ok {
		return repo.ErrNotFound
	}
	it.Quantity = qty
	c.r.s.cartItems[cartItemID] = it
	return nil
}

func (c memCarts) DeleteByID(ctx context.Context, cartItemID int64) error {
	if _, ok := c.r.s.cartItems[cartItemID]; !ok {
		return repo.ErrNotFound
	}
	delete(c.r.s.cartItems, cartItemID)
	return nil
}

func (c memCarts) FindByID(ctx context.Context, cartItemID int64) (model.CartItem, error) {
	it, ok := c.r.s.cartItems[cartItemID]
	if !ok {
		return model.CartItem{}, repo.ErrNotFound
	}
	return it, nil
}

func (c memCarts) IsOwnedByUser(ctx context.Context, cartItemID int64, userID int64) (bool, error) {
	it, ok := c.r.s.cartItems[cartItemID]
	if !ok {
		return false, nil
	}
	cart, ok := c.r.s.carts[it.CartID]
	return ok && cart.UserID == userID && cart.Status == model.CartStatusActive, nil
}

type memProducts struct{ r *memRepos }

func (p memProducts) ListActive(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	var out []model.Product
	for _, v := range p.r.s.products {
		if v.IsActive {
			out = append(out, v)
		}
	}
	return out, int64(len(out)), nil
}

func (p memProducts) FindByID(ctx context.Context, id int64) (model.Product, error) {
	v, ok := p.r.s.products[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return v, nil
}

type memAudit struct{ r *memRepos }

func (a memAudit) Create(ctx context.Context, log model.AuditLog) error {
	if err := a.r.hit("AuditLogs.Create"); err != nil {
		return err
	}
	log.ID = a.r.s.nextID()
	a.r.s.audits = append(a.r.s.audits, log)
	return nil
}

func (a memAudit) List(ctx context.Context, f repo.AuditLogFilter) ([]model.AuditLog, error) {
	var out []model.AuditLog
	for _, l := range a.r.s.audits {
		if f.ResourceID != nil && l.ResourceID != *f.ResourceID {
			continue
		}
		if f.ResourceType != nil && l.ResourceType != *f.ResourceType {
			continue
		}
		out = append(out, l)
	}
	return out, nil
}
