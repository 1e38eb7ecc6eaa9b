package repository

import (
	"context"
	"time"

	"printstudio/internal/domain/model"
)

type PaymentRepository interface {
	Create(ctx context.Context, p model.Payment) (int64, error)
	FindByID(ctx context.Context, paymentID int64) (model.Payment, error)
	FindByIDForUpdate(ctx context.Context, paymentID int64) (model.Payment, error)
	ListByOrderID(ctx context.Context, orderID int64) ([]model.Payment, error)
	CountFailedByOrderID(ctx context.Context, orderID int64) (int64, error)
	// PENDING の行だけ更新する。更新できなければ ErrNotFound
	MarkCompleted(ctx context.Context, paymentID int64, receiptNumber string, at time.Time) error
	// 失敗理由を残してリトライ回数を+1
	MarkFailed(ctx context.Context, paymentID int64, reason string) error
	// 受領番号のない COMPLETED 行にだけ書き込む。更新できなければ ErrNotFound
	SetReceipt(ctx context.Context, paymentID int64, receiptNumber string) error
}

type TransactionRepository interface {
	Create(ctx context.Context, t model.Transaction) (int64, error)
	FindByCheckoutRequestID(ctx context.Context, checkoutRequestID string) (model.Transaction, error)
	FindByCheckoutRequestIDForUpdate(ctx context.Context, checkoutRequestID string) (model.Transaction, error)
	FindLatestByPaymentID(ctx context.Context, paymentID int64) (model.Transaction, error)
	MarkResult(ctx context.Context, txID int64, status model.TransactionStatus, resultCode string, resultDesc string, raw []byte) error
}
