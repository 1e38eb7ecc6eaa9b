package repository

import (
	"context"
	"errors"
	"time"

	"printstudio/internal/domain/model"
	repo "printstudio/internal/repository"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PaymentGormRepository struct {
	db *gorm.DB
}

func NewPaymentGormRepository(db *gorm.DB) *PaymentGormRepository {
	return &PaymentGormRepository{db: db}
}

func (r *PaymentGormRepository) Create(ctx context.Context, p model.Payment) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&p).Error; err != nil {
		return 0, err
	}
	return p.ID, nil
}

func (r *PaymentGormRepository) FindByID(ctx context.Context, paymentID int64) (model.Payment, error) {
	return r.find(r.db.WithContext(ctx), paymentID)
}

func (r *PaymentGormRepository) FindByIDForUpdate(ctx context.Context, paymentID int64) (model.Payment, error) {
	return r.find(r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), paymentID)
}

func (r *PaymentGormRepository) find(q *gorm.DB, paymentID int64) (model.Payment, error) {
	var p model.Payment
	err := q.Where("id = ?", paymentID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Payment{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Payment{}, err
	}
	return p, nil
}

func (r *PaymentGormRepository) ListByOrderID(ctx context.Context, orderID int64) ([]model.Payment, error) {
	var items []model.Payment
	if err := r.db.WithContext(ctx).Where("order_id = ?", orderID).Order("id desc").Find(&items).Error; err != nil {
		return []model.Payment{}, err
	}
	return items, nil
}

func (r *PaymentGormRepository) CountFailedByOrderID(ctx context.Context, orderID int64) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("order_id = ? AND status = ?", orderID, model.PaymentRecordFailed).
		Count(&n).Error
	return n, err
}

// ポーリング経由ではレシート番号が無いので NULL のまま
func (r *PaymentGormRepository) MarkCompleted(ctx context.Context, paymentID int64, receiptNumber string, at time.Time) error {
	var receipt interface{}
	if receiptNumber != "" {
		receipt = receiptNumber
	}

	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ?", paymentID, model.PaymentRecordPending).
		Updates(map[string]interface{}{
			"status":         model.PaymentRecordCompleted,
			"receipt_number": receipt,
			"completed_at":   at,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *PaymentGormRepository) MarkFailed(ctx context.Context, paymentID int64, reason string) error {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status <> ?", paymentID, model.PaymentRecordCompleted).
		Updates(map[string]interface{}{
			"status":         model.PaymentRecordFailed,
			"failure_reason": reason,
			"retry_count":    gorm.Expr("retry_count + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

func (r *PaymentGormRepository) SetReceipt(ctx context.Context, paymentID int64, receiptNumber string) error {
	res := r.db.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status = ? AND receipt_number IS NULL", paymentID, model.PaymentRecordCompleted).
		Update("receipt_number", receiptNumber)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type TransactionGormRepository struct {
	db *gorm.DB
}

func NewTransactionGormRepository(db *gorm.DB) *TransactionGormRepository {
	return &TransactionGormRepository{db: db}
}

func (r *TransactionGormRepository) Create(ctx context.Context, t model.Transaction) (int64, error) {
	if err := r.db.WithContext(ctx).Create(&t).Error; err != nil {
		return 0, err
	}
	return t.ID, nil
}

func (r *TransactionGormRepository) FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (model.Transaction, error) {
	return r.findBy(r.db.WithContext(ctx), "checkout_request_id = ?", checkoutRequestID)
}

// 同じセッションのコールバックとポーリングが競合しないように行ロック
func (r *TransactionGormRepository) FindByCheckoutRequestIDForUpdate(ctx context.Context, checkoutRequestID string) (model.Transaction, error) {
	q := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
	return r.findBy(q, "checkout_request_id = ?", checkoutRequestID)
}

func (r *TransactionGormRepository) FindLatestByPaymentID(ctx context.Context, paymentID int64) (model.Transaction, error) {
	return r.findBy(r.db.WithContext(ctx).Order("id desc"), "payment_id = ?", paymentID)
}

func (r *TransactionGormRepository) findBy(q *gorm.DB, cond string, arg interface{}) (model.Transaction, error) {
	var t model.Transaction
	err := q.Where(cond, arg).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.Transaction{}, repo.ErrNotFound
	}
	if err != nil {
		return model.Transaction{}, err
	}
	return t, nil
}

func (r *TransactionGormRepository) MarkResult(ctx context.Context, txID int64, status model.TransactionStatus, resultCode string, resultDesc string, raw []byte) error {
	updates := map[string]interface{}{
		"status":             status,
		"result_code":        resultCode,
		"result_description": resultDesc,
	}
	if len(raw) > 0 {
		updates["raw_callback"] = datatypes.JSON(raw)
	}

	res := r.db.WithContext(ctx).Model(&model.Transaction{}).
		Where("id = ?", txID).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repo.ErrNotFound
	}
	return nil
}
