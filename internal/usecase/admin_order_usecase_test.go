package usecase_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"printstudio/internal/domain/model"
	repo "printstudio/internal/repository"
	"printstudio/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// =====================
// TxManager / TxRepos mocks
// =====================

// AdminTxManagerMock は WithinTx の中で渡す repos を固定して unit テストを回す
type AdminTxManagerMock struct {
	mock.Mock
	Repos repo.TxRepos
}

func (m *AdminTxManagerMock) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	m.Called(ctx)
	return fn(m.Repos)
}

type AdminTxReposMock struct {
	orders     repo.OrderRepository
	orderItems repo.OrderItemRepository
	timeline   repo.OrderTimelineRepository
	audit      repo.AuditLogRepository
}

func (r *AdminTxReposMock) Orders() repo.OrderRepository           { return r.orders }
func (r *AdminTxReposMock) OrderItems() repo.OrderItemRepository   { return r.orderItems }
func (r *AdminTxReposMock) Timeline() repo.OrderTimelineRepository { return r.timeline }
func (r *AdminTxReposMock) AuditLogs() repo.AuditLogRepository     { return r.audit }

// AdminOrderUsecase では使わない
func (r *AdminTxReposMock) Payments() repo.PaymentRepository         { return nil }
func (r *AdminTxReposMock) Transactions() repo.TransactionRepository { return nil }
func (r *AdminTxReposMock) Carts() repo.CartRepository               { return nil }
func (r *AdminTxReposMock) CartItems() repo.CartItemRepository       { return nil }
func (r *AdminTxReposMock) Products() repo.ProductRepository         { return nil }

// =====================
// Repository mocks
// =====================

type AdminOrderRepoMock struct{ mock.Mock }

func (m *AdminOrderRepoMock) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	panic("not used in AdminOrderUsecase tests")
}

func (m *AdminOrderRepoMock) FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error) {
	args := m.Called(ctx, orderID)
	o, _ := args.Get(0).(model.Order)
	return o, args.Error(1)
}

func (m *AdminOrderRepoMock) List(ctx context.Context, f repo.OrderListFilter) ([]model.Order, int64, error) {
	args := m.Called(ctx, f)
	orders, _ := args.Get(0).([]model.Order)
	return orders, args.Get(1).(int64), args.Error(2)
}

func (m *AdminOrderRepoMock) Create(ctx context.Context, order model.Order) (int64, error) {
	panic("not used in AdminOrderUsecase tests")
}

func (m *AdminOrderRepoMock) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *AdminOrderRepoMock) UpdateTrackingNumber(ctx context.Context, orderID int64, trackingNumber string) error {
	args := m.Called(ctx, orderID, trackingNumber)
	return args.Error(0)
}

func (m *AdminOrderRepoMock) UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *AdminOrderRepoMock) AppendNote(ctx context.Context, orderID int64, note string) error {
	args := m.Called(ctx, orderID, note)
	return args.Error(0)
}

func (m *AdminOrderRepoMock) SoftDelete(ctx context.Context, orderID int64) error {
	panic("not used in AdminOrderUsecase tests")
}

type AdminOrderItemRepoMock struct{ mock.Mock }

func (m *AdminOrderItemRepoMock) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	panic("not used in AdminOrderUsecase tests")
}

func (m *AdminOrderItemRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	args := m.Called(ctx, orderID)
	items, _ := args.Get(0).([]model.OrderItem)
	return items, args.Error(1)
}

type AdminTimelineRepoMock struct{ mock.Mock }

func (m *AdminTimelineRepoMock) Append(ctx context.Context, entry model.OrderTimelineEntry) error {
	args := m.Called(ctx, entry)
	return args.Error(0)
}

func (m *AdminTimelineRepoMock) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderTimelineEntry, error) {
	panic("not used in AdminOrderUsecase tests")
}

type AdminAuditRepoMock struct{ mock.Mock }

func (m *AdminAuditRepoMock) Create(ctx context.Context, log model.AuditLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *AdminAuditRepoMock) List(ctx context.Context, filter repo.AuditLogFilter) ([]model.AuditLog, error) {
	args := m.Called(ctx, filter)
	logs, _ := args.Get(0).([]model.AuditLog)
	return logs, args.Error(1)
}

// =====================
// Helper: error contains（HTTPErrorの実装詳細に依存しない）
// =====================

func assertErrContains(t *testing.T, err error, wantSubstr string) {
	t.Helper()
	if assert.Error(t, err) {
		assert.True(t, strings.Contains(err.Error(), wantSubstr), "err=%q want contains %q", err.Error(), wantSubstr)
	}
}

type adminFixture struct {
	tx       *AdminTxManagerMock
	orders   *AdminOrderRepoMock
	items    *AdminOrderItemRepoMock
	timeline *AdminTimelineRepoMock
	audit    *AdminAuditRepoMock
	uc       *usecase.AdminOrderUsecase
}

func newAdminFixture() *adminFixture {
	f := &adminFixture{
		tx:       new(AdminTxManagerMock),
		orders:   new(AdminOrderRepoMock),
		items:    new(AdminOrderItemRepoMock),
		timeline: new(AdminTimelineRepoMock),
		audit:    new(AdminAuditRepoMock),
	}
	f.tx.Repos = &AdminTxReposMock{
		orders:     f.orders,
		orderItems: f.items,
		timeline:   f.timeline,
		audit:      f.audit,
	}
	f.uc = usecase.NewAdminOrderUsecase(f.tx, f.orders, f.items, f.audit, fixedClock{t: testNow})
	return f
}

const adminID int64 = 1

// =====================
// List tests
// =====================

func TestAdminOrderUsecase_List_InvalidStatus(t *testing.T) {
	f := newAdminFixture()

	_, err := f.uc.List(context.Background(), usecase.AdminListOrdersInput{Status: "LOST"})

	assertErrContains(t, err, "invalid status")
	f.orders.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_List_ClampsLimitAndCallsItemsPerOrder(t *testing.T) {
	f := newAdminFixture()

	orders := []model.Order{
		{ID: 10, Status: model.OrderStatusPending},
		{ID: 11, Status: model.OrderStatusPaid},
	}
	f.orders.On("List", mock.Anything, repo.OrderListFilter{Limit: 100}).Return(orders, int64(2), nil)
	f.items.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(11)).Return([]model.OrderItem{}, nil)

	out, err := f.uc.List(context.Background(), usecase.AdminListOrdersInput{Limit: 1000})

	require.NoError(t, err)
	assert.Len(t, out.Items, 2)
	assert.Equal(t, 100, out.Limit)
	f.orders.AssertExpectations(t)
	f.items.AssertExpectations(t)
}

// =====================
// UpdateOrderStatus tests
// =====================

func TestAdminOrderUsecase_UpdateOrderStatus_Forward(t *testing.T) {
	f := newAdminFixture()
	ctx := context.Background()

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(10)).
		Return(model.Order{ID: 10, Status: model.OrderStatusProduction}, nil)
	f.orders.On("UpdateStatus", mock.Anything, int64(10), model.OrderStatusShipping).Return(nil)
	f.orders.On("UpdateTrackingNumber", mock.Anything, int64(10), "KE123456").Return(nil)
	f.timeline.On("Append", mock.Anything, mock.MatchedBy(func(e model.OrderTimelineEntry) bool {
		return e.OrderID == 10 && e.Status == model.OrderStatusShipping &&
			e.Note == "Status changed from PRODUCTION to SHIPPING"
	})).Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.ActorUserID == adminID &&
			l.Action == model.AuditActionUpdateOrderStatus &&
			l.ResourceID == 10 &&
			strings.Contains(l.BeforeJSON, "PRODUCTION") &&
			strings.Contains(l.AfterJSON, "SHIPPING") &&
			strings.Contains(l.AfterJSON, "KE123456")
	})).Return(nil)
	f.items.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	out, err := f.uc.UpdateOrderStatus(ctx, adminID, 10, usecase.StatusUpdate{
		Status:         model.OrderStatusShipping,
		TrackingNumber: "KE123456",
	})

	require.NoError(t, err)
	assert.Equal(t, "SHIPPING", out.Status)
	require.NotNil(t, out.TrackingNumber)
	assert.Equal(t, "KE123456", *out.TrackingNumber)

	f.tx.AssertExpectations(t)
	f.orders.AssertExpectations(t)
	f.timeline.AssertExpectations(t)
	f.audit.AssertExpectations(t)
}

func TestAdminOrderUsecase_UpdateOrderStatus_BackwardsIsInvalidState(t *testing.T) {
	f := newAdminFixture()

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(10)).
		Return(model.Order{ID: 10, Status: model.OrderStatusShipping}, nil)

	_, err := f.uc.UpdateOrderStatus(context.Background(), adminID, 10, usecase.StatusUpdate{Status: model.OrderStatusPending})

	assert.True(t, errors.Is(err, usecase.ErrInvalidState))
	assertErrContains(t, err, "cannot change order status from SHIPPING to PENDING")
	f.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	f.timeline.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_UpdateOrderStatus_SameStatusIsNoop(t *testing.T) {
	f := newAdminFixture()

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(10)).
		Return(model.Order{ID: 10, Status: model.OrderStatusProcessing}, nil)
	f.items.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	out, err := f.uc.UpdateOrderStatus(context.Background(), adminID, 10, usecase.StatusUpdate{Status: model.OrderStatusProcessing})

	require.NoError(t, err)
	assert.Equal(t, "PROCESSING", out.Status)
	f.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	f.audit.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_UpdateOrderStatus_NotFound(t *testing.T) {
	f := newAdminFixture()

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(99)).Return(model.Order{}, repo.ErrNotFound)

	_, err := f.uc.UpdateOrderStatus(context.Background(), adminID, 99, usecase.StatusUpdate{Status: model.OrderStatusPaid})

	assert.True(t, errors.Is(err, usecase.ErrNotFound))
}

func TestAdminOrderUsecase_UpdateOrderStatus_AuditFailureRollsBack(t *testing.T) {
	f := newAdminFixture()

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(10)).
		Return(model.Order{ID: 10, Status: model.OrderStatusPaid}, nil)
	f.orders.On("UpdateStatus", mock.Anything, int64(10), model.OrderStatusProcessing).Return(nil)
	f.timeline.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.audit.On("Create", mock.Anything, mock.Anything).Return(errors.New("db down"))

	_, err := f.uc.UpdateOrderStatus(context.Background(), adminID, 10, usecase.StatusUpdate{Status: model.OrderStatusProcessing})

	assert.True(t, errors.Is(err, usecase.ErrInternal))
	f.items.AssertNotCalled(t, "ListByOrderID", mock.Anything, mock.Anything)
}

// =====================
// UpdateOrder (tagged variants)
// =====================

func TestAdminOrderUsecase_UpdateOrder_Tracking(t *testing.T) {
	f := newAdminFixture()

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(10)).
		Return(model.Order{ID: 10, Status: model.OrderStatusShipping}, nil)
	f.orders.On("UpdateTrackingNumber", mock.Anything, int64(10), "KE999").Return(nil)
	f.timeline.On("Append", mock.Anything, mock.MatchedBy(func(e model.OrderTimelineEntry) bool {
		return e.Note == "Tracking number: KE999" && e.Status == model.OrderStatusShipping
	})).Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdateTracking
	})).Return(nil)
	f.items.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	out, err := f.uc.UpdateOrder(context.Background(), adminID, 10, usecase.TrackingUpdate{TrackingNumber: "KE999"})

	require.NoError(t, err)
	require.NotNil(t, out.TrackingNumber)
	assert.Equal(t, "KE999", *out.TrackingNumber)
	f.orders.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	f.audit.AssertExpectations(t)
}

func TestAdminOrderUsecase_UpdateOrder_Note(t *testing.T) {
	f := newAdminFixture()

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(10)).
		Return(model.Order{ID: 10, Status: model.OrderStatusProduction, Notes: "rush"}, nil)
	f.orders.On("AppendNote", mock.Anything, int64(10), "reprinted front").Return(nil)
	f.timeline.On("Append", mock.Anything, mock.Anything).Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionAddOrderNote
	})).Return(nil)
	f.items.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	out, err := f.uc.UpdateOrder(context.Background(), adminID, 10, usecase.NoteUpdate{Note: "reprinted front"})

	require.NoError(t, err)
	assert.Equal(t, "rush\nreprinted front", out.Notes)
	assert.Equal(t, "PRODUCTION", out.Status)
}

// =====================
// UpdatePaymentStatus tests
// =====================

func TestAdminOrderUsecase_UpdatePaymentStatus_UnknownStatus(t *testing.T) {
	f := newAdminFixture()

	_, err := f.uc.UpdatePaymentStatus(context.Background(), adminID, 10, "PAID_TWICE")

	assert.True(t, errors.Is(err, usecase.ErrValidation))
	f.tx.AssertNotCalled(t, "WithinTx", mock.Anything)
}

func TestAdminOrderUsecase_UpdatePaymentStatus_CompletedIsTerminal(t *testing.T) {
	f := newAdminFixture()

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(10)).
		Return(model.Order{ID: 10, PaymentStatus: model.PaymentStatusCompleted}, nil)

	_, err := f.uc.UpdatePaymentStatus(context.Background(), adminID, 10, "pending")

	assert.True(t, errors.Is(err, usecase.ErrInvalidState))
	f.orders.AssertNotCalled(t, "UpdatePaymentStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestAdminOrderUsecase_UpdatePaymentStatus_FailedToPending(t *testing.T) {
	f := newAdminFixture()

	f.tx.On("WithinTx", mock.Anything).Return(nil)
	f.orders.On("FindByIDForUpdate", mock.Anything, int64(10)).
		Return(model.Order{ID: 10, PaymentStatus: model.PaymentStatusFailed}, nil)
	f.orders.On("UpdatePaymentStatus", mock.Anything, int64(10), model.PaymentStatusPending).Return(nil)
	f.audit.On("Create", mock.Anything, mock.MatchedBy(func(l model.AuditLog) bool {
		return l.Action == model.AuditActionUpdatePaymentStatus && strings.Contains(l.AfterJSON, "PENDING")
	})).Return(nil)
	f.items.On("ListByOrderID", mock.Anything, int64(10)).Return([]model.OrderItem{}, nil)

	out, err := f.uc.UpdatePaymentStatus(context.Background(), adminID, 10, "PENDING")

	require.NoError(t, err)
	assert.Equal(t, "PENDING", out.PaymentStatus)
	f.audit.AssertExpectations(t)
}

func TestAdminOrderUsecase_AuditTrail(t *testing.T) {
	f := newAdminFixture()

	f.audit.On("List", mock.Anything, mock.MatchedBy(func(fl repo.AuditLogFilter) bool {
		return fl.ResourceID != nil && *fl.ResourceID == 10 && fl.Limit == 20
	})).Return([]model.AuditLog{
		{ID: 1, ActorUserID: adminID, Action: model.AuditActionUpdateOrderStatus, BeforeJSON: `{"status":"PAID"}`, AfterJSON: `{"status":"PROCESSING"}`},
	}, nil)

	logs, err := f.uc.AuditTrail(context.Background(), 10, 0, 0)

	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "UPDATE_ORDER_STATUS", logs[0].Action)
}
