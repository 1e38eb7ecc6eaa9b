package repository

import (
	"context"

	"printstudio/internal/domain/model"

	"gorm.io/gorm"
)

type OrderItemGormRepository struct {
	db *gorm.DB
}

func NewOrderItemGormRepository(db *gorm.DB) *OrderItemGormRepository {
	return &OrderItemGormRepository{db: db}
}

func (r *OrderItemGormRepository) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	rows := make([]model.OrderItem, len(items))
	for i := range items {
		rows[i] = items[i]
		rows[i].OrderID = orderID
	}
	return r.db.WithContext(ctx).Create(&rows).Error
}

func (r *OrderItemGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	var items []model.OrderItem
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id asc").Find(&items).Error
	if err != nil {
		return []model.OrderItem{}, err
	}
	return items, nil
}

type OrderTimelineGormRepository struct {
	db *gorm.DB
}

func NewOrderTimelineGormRepository(db *gorm.DB) *OrderTimelineGormRepository {
	return &OrderTimelineGormRepository{db: db}
}

func (r *OrderTimelineGormRepository) Append(ctx context.Context, entry model.OrderTimelineEntry) error {
	return r.db.WithContext(ctx).Create(&entry).Error
}

func (r *OrderTimelineGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderTimelineEntry, error) {
	var entries []model.OrderTimelineEntry
	err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id asc").Find(&entries).Error
	if err != nil {
		return []model.OrderTimelineEntry{}, err
	}
	return entries, nil
}
