package repository

import (
	"context"
	"time"

	"printstudio/internal/domain/model"
)

type OrderListFilter struct {
	UserID *int64
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type OrderRepository interface {
	FindByID(ctx context.Context, orderID int64) (model.Order, error)
	//同じトランザクション内の更新のために行ロックして取得
	FindByIDForUpdate(ctx context.Context, orderID int64) (model.Order, error)
	List(ctx context.Context, f OrderListFilter) ([]model.Order, int64, error)
	Create(ctx context.Context, order model.Order) (int64, error)
	UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error
	UpdateTrackingNumber(ctx context.Context, orderID int64, trackingNumber string) error
	UpdatePaymentStatus(ctx context.Context, orderID int64, status model.PaymentStatus) error
	AppendNote(ctx context.Context, orderID int64, note string) error
	SoftDelete(ctx context.Context, orderID int64) error
}
