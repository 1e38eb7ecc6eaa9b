package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"printstudio/internal/domain/model"
	repo "printstudio/internal/repository"
)

type AdminOrderUsecase struct {
	tx        repo.TransactionManager
	orders    repo.OrderRepository
	items     repo.OrderItemRepository
	auditRepo repo.AuditLogRepository
	clock     Clock
}

func NewAdminOrderUsecase(
	tx repo.TransactionManager,
	orders repo.OrderRepository,
	items repo.OrderItemRepository,
	auditRepo repo.AuditLogRepository,
	clock Clock,
) *AdminOrderUsecase {
	return &AdminOrderUsecase{tx: tx, orders: orders, items: items, auditRepo: auditRepo, clock: clock}
}

type AdminListOrdersInput struct {
	UserID *int64
	Status string
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}

type AuditLogOutput struct {
	ID          int64     `json:"id"`
	ActorUserID int64     `json:"actor_user_id"`
	Action      string    `json:"action"`
	Before      string    `json:"before"`
	After       string    `json:"after"`
	CreatedAt   time.Time `json:"created_at"`
}

// 注文一覧
func (u *AdminOrderUsecase) List(ctx context.Context, in AdminListOrdersInput) (OrderListOutput, error) {
	return listOrders(ctx, u.orders, u.items, repo.OrderListFilter{
		UserID: in.UserID,
		Status: in.Status,
		From:   in.From,
		To:     in.To,
		Limit:  in.Limit,
		Offset: in.Offset,
	})
}

// 更新の種類ごとに振り分ける
func (u *AdminOrderUsecase) UpdateOrder(ctx context.Context, actorAdminUserID int64, orderID int64, upd OrderUpdate) (OrderOutput, error) {
	switch v := upd.(type) {
	case StatusUpdate:
		return u.UpdateOrderStatus(ctx, actorAdminUserID, orderID, v)
	case TrackingUpdate:
		return u.updateOrder(ctx, actorAdminUserID, orderID, func(r repo.TxRepos, o *model.Order) error {
			before := trackingOf(o)
			if err := r.Orders().UpdateTrackingNumber(ctx, orderID, v.TrackingNumber); err != nil {
				return mapRepoErr(err)
			}
			o.TrackingNumber = &v.TrackingNumber
			if err := r.Timeline().Append(ctx, model.OrderTimelineEntry{
				OrderID:   orderID,
				Status:    o.Status,
				Note:      "Tracking number: " + v.TrackingNumber,
				CreatedAt: u.clock.Now(),
			}); err != nil {
				return internalError()
			}
			return appendAudit(ctx, r, newAuditLog(actorAdminUserID, model.AuditActionUpdateTracking, model.AuditResourceOrder, orderID,
				map[string]string{"tracking_number": before}, map[string]string{"tracking_number": v.TrackingNumber}, u.clock.Now()))
		})
	case NoteUpdate:
		return u.updateOrder(ctx, actorAdminUserID, orderID, func(r repo.TxRepos, o *model.Order) error {
			if err := r.Orders().AppendNote(ctx, orderID, v.Note); err != nil {
				return mapRepoErr(err)
			}
			if o.Notes == "" {
				o.Notes = v.Note
			} else {
				o.Notes = o.Notes + "\n" + v.Note
			}
			if err := r.Timeline().Append(ctx, model.OrderTimelineEntry{
				OrderID:   orderID,
				Status:    o.Status,
				Note:      v.Note,
				CreatedAt: u.clock.Now(),
			}); err != nil {
				return internalError()
			}
			return appendAudit(ctx, r, newAuditLog(actorAdminUserID, model.AuditActionAddOrderNote, model.AuditResourceOrder, orderID,
				nil, map[string]string{"note": v.Note}, u.clock.Now()))
		})
	}
	return OrderOutput{}, validationError("invalid update", nil)
}

// 遷移表にない変更は InvalidState。同じステータスなら何もしない。
func (u *AdminOrderUsecase) UpdateOrderStatus(ctx context.Context, actorAdminUserID int64, orderID int64, in StatusUpdate) (OrderOutput, error) {
	if _, ok := model.ParseOrderStatus(string(in.Status)); !ok {
		return OrderOutput{}, validationError("invalid status", map[string]string{"status": "unknown status"})
	}

	return u.updateOrder(ctx, actorAdminUserID, orderID, func(r repo.TxRepos, o *model.Order) error {
		if o.Status == in.Status {
			return nil
		}
		if !model.CanTransitionOrder(o.Status, in.Status) {
			return invalidStateError(fmt.Sprintf("cannot change order status from %s to %s", o.Status, in.Status))
		}

		before := o.Status
		if err := r.Orders().UpdateStatus(ctx, orderID, in.Status); err != nil {
			return mapRepoErr(err)
		}
		o.Status = in.Status

		if in.TrackingNumber != "" {
			if err := r.Orders().UpdateTrackingNumber(ctx, orderID, in.TrackingNumber); err != nil {
				return mapRepoErr(err)
			}
			o.TrackingNumber = &in.TrackingNumber
		}

		note := in.Note
		if note == "" {
			note = fmt.Sprintf("Status changed from %s to %s", before, in.Status)
		}
		if err := r.Timeline().Append(ctx, model.OrderTimelineEntry{
			OrderID:   orderID,
			Status:    in.Status,
			Note:      note,
			CreatedAt: u.clock.Now(),
		}); err != nil {
			return internalError()
		}

		after := map[string]string{"status": string(in.Status)}
		if in.TrackingNumber != "" {
			after["tracking_number"] = in.TrackingNumber
		}
		return appendAudit(ctx, r, newAuditLog(actorAdminUserID, model.AuditActionUpdateOrderStatus, model.AuditResourceOrder, orderID,
			map[string]string{"status": string(before)}, after, u.clock.Now()))
	})
}

// 支払いステータスの手動変更（返金前の FAILED 戻しなど）
func (u *AdminOrderUsecase) UpdatePaymentStatus(ctx context.Context, actorAdminUserID int64, orderID int64, status string) (OrderOutput, error) {
	st, ok := model.ParsePaymentStatus(strings.ToUpper(strings.TrimSpace(status)))
	if !ok {
		return OrderOutput{}, validationError("invalid payment status", map[string]string{"payment_status": "unknown status"})
	}

	return u.updateOrder(ctx, actorAdminUserID, orderID, func(r repo.TxRepos, o *model.Order) error {
		if o.PaymentStatus == st {
			return nil
		}
		if !model.CanTransitionPayment(o.PaymentStatus, st) {
			return invalidStateError(fmt.Sprintf("cannot change payment status from %s to %s", o.PaymentStatus, st))
		}

		before := o.PaymentStatus
		if err := r.Orders().UpdatePaymentStatus(ctx, orderID, st); err != nil {
			return mapRepoErr(err)
		}
		o.PaymentStatus = st

		return appendAudit(ctx, r, newAuditLog(actorAdminUserID, model.AuditActionUpdatePaymentStatus, model.AuditResourceOrder, orderID,
			map[string]string{"payment_status": string(before)}, map[string]string{"payment_status": string(st)}, u.clock.Now()))
	})
}

// 注文の監査ログ
func (u *AdminOrderUsecase) AuditTrail(ctx context.Context, orderID int64, limit, offset int) ([]AuditLogOutput, error) {
	if orderID <= 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	rt := model.AuditResourceOrder

	logs, err := u.auditRepo.List(ctx, repo.AuditLogFilter{
		ResourceType: &rt,
		ResourceID:   &orderID,
		Limit:        limit,
		Offset:       offset,
	})
	if err != nil {
		return nil, internalError()
	}

	outs := make([]AuditLogOutput, 0, len(logs))
	for _, l := range logs {
		outs = append(outs, AuditLogOutput{
			ID:          l.ID,
			ActorUserID: l.ActorUserID,
			Action:      string(l.Action),
			Before:      l.BeforeJSON,
			After:       l.AfterJSON,
			CreatedAt:   l.CreatedAt,
		})
	}
	return outs, nil
}

// 行ロックで注文を取り、fnで更新して最新の状態を返す
func (u *AdminOrderUsecase) updateOrder(ctx context.Context, actorAdminUserID int64, orderID int64, fn func(r repo.TxRepos, o *model.Order) error) (OrderOutput, error) {
	if actorAdminUserID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, orderID)
		if err != nil {
			return mapRepoErr(err)
		}

		if err := fn(r, &o); err != nil {
			return err
		}

		items, err := r.OrderItems().ListByOrderID(ctx, orderID)
		if err != nil {
			return internalError()
		}
		out = toOrderOutput(o, items, nil)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

func trackingOf(o *model.Order) string {
	if o.TrackingNumber == nil {
		return ""
	}
	return *o.TrackingNumber
}

func mapRepoErr(err error) error {
	if _, ok := AsHTTPError(err); ok {
		return err
	}
	if errors.Is(err, repo.ErrNotFound) {
		return NewHTTPError(http.StatusNotFound, "not found")
	}
	return internalError()
}

func newAuditLog(actor int64, action model.AuditAction, rt model.AuditResourceType, id int64, before, after map[string]string, at time.Time) model.AuditLog {
	return model.AuditLog{
		ActorUserID:  actor,
		Action:       action,
		ResourceType: rt,
		ResourceID:   id,
		BeforeJSON:   toJSON(before),
		AfterJSON:    toJSON(after),
		CreatedAt:    at,
	}
}

func toJSON(m map[string]string) string {
	if m == nil {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

func appendAudit(ctx context.Context, r repo.TxRepos, l model.AuditLog) error {
	if err := r.AuditLogs().Create(ctx, l); err != nil {
		return internalError()
	}
	return nil
}
