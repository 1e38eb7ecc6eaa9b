package repository

import (
	"context"

	"printstudio/internal/domain/model"
)

type OrderItemRepository interface {
	CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error)
}

// 追記のみ
type OrderTimelineRepository interface {
	Append(ctx context.Context, entry model.OrderTimelineEntry) error
	ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderTimelineEntry, error)
}
