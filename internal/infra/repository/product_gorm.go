package repository

import (
	"context"
	"errors"

	"printstudio/internal/domain/model"
	repo "printstudio/internal/repository"

	"gorm.io/gorm"
)

type ProductGormRepository struct {
	db *gorm.DB
}

func NewProductGormRepository(db *gorm.DB) *ProductGormRepository {
	return &ProductGormRepository{db: db}
}

func (r *ProductGormRepository) ListActive(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	db := r.db.WithContext(ctx).Model(&model.Product{}).Where("is_active = ?", true)
	if q.Q != "" {
		db = db.Where("name ILIKE ?", "%"+q.Q+"%")
	}
	if q.Category != "" {
		db = db.Where("category = ?", q.Category)
	}

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return []model.Product{}, 0, err
	}

	var items []model.Product
	if err := db.Order("id asc").Limit(q.Limit).Offset(q.Offset).Find(&items).Error; err != nil {
		return []model.Product{}, 0, err
	}
	return items, total, nil
}

func (r *ProductGormRepository) FindByID(ctx context.Context, id int64) (model.Product, error) {
	var p model.Product
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Product{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Product{}, err
	}
	return p, nil
}
