package repository

import (
	"context"

	"printstudio/internal/domain/model"
)

type ProductListQuery struct {
	Limit    int
	Offset   int
	Q        string
	Category string
}

// 商品カタログは読み取りのみ
type ProductRepository interface {
	ListActive(ctx context.Context, q ProductListQuery) ([]model.Product, int64, error)
	FindByID(ctx context.Context, id int64) (model.Product, error)
}
