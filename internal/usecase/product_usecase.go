package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"printstudio/internal/domain/model"
	repo "printstudio/internal/repository"
)

// 商品カタログ（読み取りのみ）
type ProductUsecase struct {
	productRepo repo.ProductRepository
}

func NewProductUsecase(productRepo repo.ProductRepository) *ProductUsecase {
	return &ProductUsecase{productRepo: productRepo}
}

// GET /productsの入力DTO
type ListProductsInput struct {
	Limit    int
	Offset   int
	Q        string
	Category string
}

type ProductListOutput struct {
	Items  []model.Product `json:"items"`
	Total  int64           `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

func (u *ProductUsecase) ListProducts(ctx context.Context, in ListProductsInput) (ProductListOutput, error) {
	if in.Limit <= 0 {
		in.Limit = defaultListLimit
	}
	if in.Limit > maxListLimit {
		in.Limit = maxListLimit
	}
	if in.Offset < 0 {
		return ProductListOutput{}, validationError("invalid offset", map[string]string{"offset": "must not be negative"})
	}
	if len(in.Q) > 100 {
		return ProductListOutput{}, validationError("q too long", map[string]string{"q": "max 100 characters"})
	}

	items, total, err := u.productRepo.ListActive(ctx, repo.ProductListQuery{
		Limit:    in.Limit,
		Offset:   in.Offset,
		Q:        strings.TrimSpace(in.Q),
		Category: strings.TrimSpace(in.Category),
	})
	if err != nil {
		return ProductListOutput{}, internalError()
	}

	return ProductListOutput{
		Items:  items,
		Total:  total,
		Limit:  in.Limit,
		Offset: in.Offset,
	}, nil
}

func (u *ProductUsecase) GetProduct(ctx context.Context, productID int64) (model.Product, error) {
	if productID <= 0 {
		return model.Product{}, NewHTTPError(http.StatusBadRequest, "invalid product id")
	}

	p, err := u.productRepo.FindByID(ctx, productID)
	if errors.Is(err, repo.ErrNotFound) {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	if err != nil {
		return model.Product{}, internalError()
	}

	if !p.IsActive {
		return model.Product{}, NewHTTPError(http.StatusNotFound, "not found")
	}
	return p, nil
}
