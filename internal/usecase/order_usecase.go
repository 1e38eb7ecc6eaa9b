package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"printstudio/internal/domain/model"
	"printstudio/internal/domain/pricing"
	repo "printstudio/internal/repository"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

type OrderUsecase struct {
	tx     repo.TransactionManager
	orders repo.OrderRepository
	items  repo.OrderItemRepository
	clock  Clock
}

func NewOrderUsecase(tx repo.TransactionManager, orders repo.OrderRepository, items repo.OrderItemRepository, clock Clock) *OrderUsecase {
	return &OrderUsecase{tx: tx, orders: orders, items: items, clock: clock}
}

// 送料・税率はハンドラ側で設定から決める（クライアントの値は信用しない）
type CreateOrderInput struct {
	ShippingMethod  model.ShippingMethod
	ShippingAddress model.ShippingAddress
	ShippingCost    int64
	TaxRate         decimal.Decimal
	Notes           string
}

type OrderItemOutput struct {
	ProductID     int64          `json:"product_id"`
	DesignID      string         `json:"design_id"`
	Name          string         `json:"name"`
	Size          string         `json:"size,omitempty"`
	Color         string         `json:"color,omitempty"`
	CustomOptions datatypes.JSON `json:"custom_options,omitempty"`
	Price         int64          `json:"price"`
	Quantity      int64          `json:"quantity"`
}

type TimelineOutput struct {
	Status    string    `json:"status"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

type OrderOutput struct {
	ID              int64                 `json:"id"`
	UserID          int64                 `json:"user_id"`
	Status          string                `json:"status"`
	PaymentStatus   string                `json:"payment_status"`
	ShippingMethod  string                `json:"shipping_method"`
	ShippingAddress model.ShippingAddress `json:"shipping_address"`
	ShippingCost    int64                 `json:"shipping_cost"`
	TaxRate         string                `json:"tax_rate"`
	Subtotal        int64                 `json:"subtotal"`
	TaxAmount       int64                 `json:"tax_amount"`
	Total           int64                 `json:"total"`
	TrackingNumber  *string               `json:"tracking_number,omitempty"`
	Notes           string                `json:"notes,omitempty"`
	CreatedAt       time.Time             `json:"created_at"`
	UpdatedAt       time.Time             `json:"updated_at"`
	Items           []OrderItemOutput     `json:"items"`
	Timeline        []TimelineOutput      `json:"timeline,omitempty"`
}

type ListOrdersInput struct {
	Status string
	Limit  int
	Offset int
}

type OrderListOutput struct {
	Items  []OrderOutput `json:"items"`
	Total  int64         `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// カートから注文を作る。カートのクリアまで同じトランザクション。
func (u *OrderUsecase) CreateOrder(ctx context.Context, userID int64, in CreateOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if fields := validateShipping(in); len(fields) > 0 {
		return OrderOutput{}, validationError("invalid order", fields)
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		snap, err := r.Carts().LockActiveSnapshot(ctx, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return emptyCartError()
		}
		if err != nil {
			return internalError()
		}
		if snap.IsEmpty() {
			return emptyCartError()
		}

		orderItems := make([]model.OrderItem, 0, len(snap.Items))
		lines := make([]pricing.Line, 0, len(snap.Items))
		for _, ci := range snap.Items {
			p, err := r.Products().FindByID(ctx, ci.ProductID)
			if errors.Is(err, repo.ErrNotFound) || (err == nil && !p.IsActive) {
				return validationError("product unavailable", map[string]string{
					"product_id": fmt.Sprintf("%d", ci.ProductID),
				})
			}
			if err != nil {
				return internalError()
			}

			orderItems = append(orderItems, model.OrderItem{
				ProductID:           ci.ProductID,
				DesignID:            ci.DesignID,
				ProductNameSnapshot: p.Name,
				Size:                ci.Size,
				Color:               ci.Color,
				CustomOptions:       ci.CustomOptions,
				UnitPriceSnapshot:   ci.UnitPriceSnapshot,
				Quantity:            ci.Quantity,
			})
			lines = append(lines, pricing.Line{UnitPrice: ci.UnitPriceSnapshot, Quantity: ci.Quantity})
		}

		totals, err := pricing.Compute(lines, in.ShippingCost, in.TaxRate)
		if err != nil {
			return validationError(err.Error(), nil)
		}

		now := u.clock.Now()
		order := model.Order{
			UserID:          userID,
			Status:          model.OrderStatusPending,
			PaymentStatus:   model.PaymentStatusUnpaid,
			ShippingMethod:  in.ShippingMethod,
			ShippingAddress: datatypes.NewJSONType(in.ShippingAddress),
			ShippingCost:    totals.ShippingCost,
			TaxRate:         in.TaxRate,
			Subtotal:        totals.Subtotal,
			TaxAmount:       totals.TaxAmount,
			Total:           totals.Total,
			Notes:           in.Notes,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return internalError()
		}
		order.ID = orderID

		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return internalError()
		}

		entry := model.OrderTimelineEntry{OrderID: orderID, Status: model.OrderStatusPending, Note: "Order placed", CreatedAt: now}
		if err := r.Timeline().Append(ctx, entry); err != nil {
			return internalError()
		}

		if err := r.Carts().Clear(ctx, snap.Cart.ID); err != nil {
			return internalError()
		}

		out = toOrderOutput(order, orderItems, []model.OrderTimelineEntry{entry})
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func (u *OrderUsecase) ListMyOrders(ctx context.Context, userID int64, in ListOrdersInput) (OrderListOutput, error) {
	if userID <= 0 {
		return OrderListOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return listOrders(ctx, u.orders, u.items, repo.OrderListFilter{
		UserID: &userID,
		Status: in.Status,
		Limit:  in.Limit,
		Offset: in.Offset,
	})
}

func (u *OrderUsecase) GetMyOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return internalError()
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusForbidden, "forbidden")
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return internalError()
		}
		timeline, err := r.Timeline().ListByOrderID(ctx, orderID)
		if err != nil {
			return internalError()
		}

		out = toOrderOutput(o, items, timeline)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// PENDING / CANCELLED 以外は履歴として残す
func (u *OrderUsecase) DeleteOrder(ctx context.Context, userID int64, orderID int64) error {
	if userID <= 0 {
		return NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	return u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if errors.Is(err, repo.ErrNotFound) {
			return NewHTTPError(http.StatusNotFound, "not found")
		}
		if err != nil {
			return internalError()
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusForbidden, "forbidden")
		}
		if o.HasPaymentActivity() {
			return invalidStateError(fmt.Sprintf("cannot delete order with payment status %s", o.PaymentStatus))
		}
		if !o.IsDeletable() {
			return invalidStateError(fmt.Sprintf("cannot delete order in status %s", o.Status))
		}

		if err := r.Orders().SoftDelete(ctx, orderID); err != nil {
			return internalError()
		}

		return appendAudit(ctx, r, newAuditLog(userID, model.AuditActionDeleteOrder, model.AuditResourceOrder, orderID,
			map[string]string{"status": string(o.Status)}, nil, u.clock.Now()))
	})
}

func listOrders(ctx context.Context, orders repo.OrderRepository, items repo.OrderItemRepository, f repo.OrderListFilter) (OrderListOutput, error) {
	if f.Status != "" {
		if _, ok := model.ParseOrderStatus(f.Status); !ok {
			return OrderListOutput{}, validationError("invalid status", map[string]string{"status": "unknown status"})
		}
	}
	if f.Offset < 0 {
		return OrderListOutput{}, validationError("invalid offset", map[string]string{"offset": "must not be negative"})
	}
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}

	list, total, err := orders.List(ctx, f)
	if err != nil {
		return OrderListOutput{}, internalError()
	}

	outs := make([]OrderOutput, 0, len(list))
	for _, o := range list {
		its, err := items.ListByOrderID(ctx, o.ID)
		if err != nil {
			return OrderListOutput{}, internalError()
		}
		outs = append(outs, toOrderOutput(o, its, nil))
	}

	return OrderListOutput{Items: outs, Total: total, Limit: f.Limit, Offset: f.Offset}, nil
}

func validateShipping(in CreateOrderInput) map[string]string {
	fields := map[string]string{}

	switch in.ShippingMethod {
	case model.ShippingMethodStandard, model.ShippingMethodExpress, model.ShippingMethodPickup:
	default:
		fields["shipping_method"] = "unknown shipping method"
	}

	if in.ShippingMethod != model.ShippingMethodPickup {
		a := in.ShippingAddress
		if a.Name == "" {
			fields["shipping_address.name"] = "required"
		}
		if a.Line1 == "" {
			fields["shipping_address.line1"] = "required"
		}
		if a.City == "" {
			fields["shipping_address.city"] = "required"
		}
	}
	if in.ShippingCost < 0 {
		fields["shipping_cost"] = "must not be negative"
	}
	return fields
}

func toOrderOutput(o model.Order, items []model.OrderItem, timeline []model.OrderTimelineEntry) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for _, it := range items {
		outItems = append(outItems, OrderItemOutput{
			ProductID:     it.ProductID,
			DesignID:      it.DesignID,
			Name:          it.ProductNameSnapshot,
			Size:          it.Size,
			Color:         it.Color,
			CustomOptions: it.CustomOptions,
			Price:         it.UnitPriceSnapshot,
			Quantity:      it.Quantity,
		})
	}

	var outTimeline []TimelineOutput
	for _, e := range timeline {
		outTimeline = append(outTimeline, TimelineOutput{Status: string(e.Status), Note: e.Note, CreatedAt: e.CreatedAt})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		ShippingMethod:  string(o.ShippingMethod),
		ShippingAddress: o.ShippingAddress.Data(),
		ShippingCost:    o.ShippingCost,
		TaxRate:         o.TaxRate.String(),
		Subtotal:        o.Subtotal,
		TaxAmount:       o.TaxAmount,
		Total:           o.Total,
		TrackingNumber:  o.TrackingNumber,
		Notes:           o.Notes,
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
		Items:           outItems,
		Timeline:        outTimeline,
	}
}
