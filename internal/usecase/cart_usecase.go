package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"printstudio/internal/domain/model"
	repo "printstudio/internal/repository"

	"gorm.io/datatypes"
)

// 1明細あたりの上限（在庫は持たない）
const maxCartLineQuantity = 100

// CartUsecase は /cart の業務ロジックです。
type CartUsecase struct {
	cartRepo     repo.CartRepository
	cartItemRepo repo.CartItemRepository
	productRepo  repo.ProductRepository
}

func NewCartUsecase(
	cartRepo repo.CartRepository,
	cartItemRepo repo.CartItemRepository,
	productRepo repo.ProductRepository,
) *CartUsecase {
	return &CartUsecase{
		cartRepo:     cartRepo,
		cartItemRepo: cartItemRepo,
		productRepo:  productRepo,
	}
}

// price は unit_price_snapshot（追加時点の価格）を返します。
type CartItemResponse struct {
	ID            int64           `json:"id"`
	ProductID     int64           `json:"product_id"`
	DesignID      string          `json:"design_id"`
	Name          string          `json:"name"`
	Size          string          `json:"size,omitempty"`
	Color         string          `json:"color,omitempty"`
	CustomOptions json.RawMessage `json:"custom_options,omitempty"`
	Price         int64           `json:"price"`
	Quantity      int64           `json:"quantity"`
}

type CartResponse struct {
	Items    []CartItemResponse `json:"items"`
	Subtotal int64              `json:"subtotal"`
}

type AddCartInput struct {
	ProductID     int64
	DesignID      string
	Size          string
	Color         string
	CustomOptions json.RawMessage
	Quantity      int64
}

type UpdateCartItemInput struct {
	Quantity int64
}

// GetCart はカート取得（無ければACTIVEを作って空を返す）。
func (u *CartUsecase) GetCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, internalError()
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// AddToCart はカートに追加（同じバリエーションは数量加算）。
func (u *CartUsecase) AddToCart(ctx context.Context, userID int64, in AddCartInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	in.DesignID = strings.TrimSpace(in.DesignID)
	in.Size = strings.ToUpper(strings.TrimSpace(in.Size))
	in.Color = strings.TrimSpace(in.Color)

	fields := map[string]string{}
	if in.ProductID <= 0 {
		fields["product_id"] = "required"
	}
	if in.DesignID == "" {
		fields["design_id"] = "required"
	}
	if in.Quantity < 1 || in.Quantity > maxCartLineQuantity {
		fields["quantity"] = "must be between 1 and 100"
	}
	if len(in.CustomOptions) > 0 && !json.Valid(in.CustomOptions) {
		fields["custom_options"] = "must be a JSON value"
	}
	if len(fields) > 0 {
		return CartResponse{}, validationError("invalid cart item", fields)
	}

	// 商品チェック（公開のみ）
	p, err := u.productRepo.FindByID(ctx, in.ProductID)
	if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
		return CartResponse{}, validationError("product unavailable", map[string]string{"product_id": "not available"})
	}
	if err != nil {
		return CartResponse{}, internalError()
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, internalError()
	}

	items, err := u.cartItemRepo.ListByCartID(ctx, cart.ID)
	if err != nil {
		return CartResponse{}, internalError()
	}
	for _, it := range items {
		if it.SameVariant(in.ProductID, in.DesignID, in.Size, in.Color) && it.Quantity+in.Quantity > maxCartLineQuantity {
			return CartResponse{}, validationError("quantity exceeded", map[string]string{"quantity": "line limit is 100"})
		}
	}

	if err := u.cartItemRepo.UpsertVariant(ctx, model.CartItem{
		CartID:            cart.ID,
		ProductID:         in.ProductID,
		DesignID:          in.DesignID,
		Size:              in.Size,
		Color:             in.Color,
		CustomOptions:     datatypes.JSON(in.CustomOptions),
		Quantity:          in.Quantity,
		UnitPriceSnapshot: p.BasePrice,
	}); err != nil {
		return CartResponse{}, internalError()
	}

	return u.buildCartResponse(ctx, cart.ID)
}

// 数量変更（所有チェック）
func (u *CartUsecase) UpdateCartItem(ctx context.Context, userID int64, cartItemID int64, in UpdateCartItemInput) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if in.Quantity < 1 || in.Quantity > maxCartLineQuantity {
		return CartResponse{}, validationError("invalid quantity", map[string]string{"quantity": "must be between 1 and 100"})
	}

	if err := u.checkOwned(ctx, userID, cartItemID); err != nil {
		return CartResponse{}, err
	}

	if err := u.cartItemRepo.UpdateQuantity(ctx, cartItemID, in.Quantity); err != nil {
		return CartResponse{}, mapRepoErr(err)
	}

	cart, err := u.cartRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, internalError()
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// 明細削除
func (u *CartUsecase) DeleteCartItem(ctx context.Context, userID int64, cartItemID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if cartItemID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	if err := u.checkOwned(ctx, userID, cartItemID); err != nil {
		return CartResponse{}, err
	}

	if err := u.cartItemRepo.DeleteByID(ctx, cartItemID); err != nil {
		return CartResponse{}, mapRepoErr(err)
	}

	cart, err := u.cartRepo.FindActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, internalError()
	}
	return u.buildCartResponse(ctx, cart.ID)
}

// カートを空にする
func (u *CartUsecase) ClearCart(ctx context.Context, userID int64) (CartResponse, error) {
	if userID <= 0 {
		return CartResponse{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	cart, err := u.cartRepo.GetOrCreateActiveByUserID(ctx, userID)
	if err != nil {
		return CartResponse{}, internalError()
	}
	if err := u.cartRepo.Clear(ctx, cart.ID); err != nil {
		return CartResponse{}, internalError()
	}
	return CartResponse{Items: []CartItemResponse{}}, nil
}

func (u *CartUsecase) checkOwned(ctx context.Context, userID int64, cartItemID int64) error {
	owned, err := u.cartItemRepo.IsOwnedByUser(ctx, cartItemID, userID)
	if err != nil {
		return internalError()
	}
	if !owned {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	return nil
}

// cartIDの明細をまとめてCartResponseを作る。
func (u *CartUsecase) buildCartResponse(ctx context.Context, cartID int64) (CartResponse, error) {
	items, err := u.cartItemRepo.ListByCartID(ctx, cartID)
	if err != nil {
		return CartResponse{}, internalError()
	}

	respItems := make([]CartItemResponse, 0, len(items))
	var subtotal int64

	for _, it := range items {
		p, err := u.productRepo.FindByID(ctx, it.ProductID)
		if err != nil || !p.IsActive {
			continue
		}

		respItems = append(respItems, CartItemResponse{
			ID:            it.ID,
			ProductID:     it.ProductID,
			DesignID:      it.DesignID,
			Name:          p.Name,
			Size:          it.Size,
			Color:         it.Color,
			CustomOptions: json.RawMessage(it.CustomOptions),
			Price:         it.UnitPriceSnapshot,
			Quantity:      it.Quantity,
		})

		subtotal += it.UnitPriceSnapshot * it.Quantity
	}

	return CartResponse{Items: respItems, Subtotal: subtotal}, nil
}
