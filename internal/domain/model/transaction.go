package model

import (
	"time"

	"gorm.io/datatypes"
)

type TransactionStatus string

const (
	TransactionInitiated TransactionStatus = "INITIATED"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
)

// プロバイダ側の記録。CheckoutRequestID がコールバックの突き合わせキー。
type Transaction struct {
	ID                  int64             `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID           int64             `gorm:"not null;index" json:"payment_id"`
	MerchantRequestID   string            `gorm:"type:varchar(100)" json:"merchant_request_id"`
	CheckoutRequestID   string            `gorm:"type:varchar(100);not null;uniqueIndex" json:"checkout_request_id"`
	Status              TransactionStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ResponseCode        string            `gorm:"type:varchar(20)" json:"response_code"`
	ResponseDescription string            `gorm:"type:text" json:"response_description"`
	ResultCode          *string           `gorm:"type:varchar(20)" json:"result_code,omitempty"`
	ResultDescription   *string           `gorm:"type:text" json:"result_description,omitempty"`
	// 監査・再処理用にコールバック本文をそのまま残す
	RawCallback datatypes.JSON `gorm:"type:jsonb" json:"-"`
	CreatedAt   time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (t Transaction) IsTerminal() bool {
	return t.Status == TransactionCompleted || t.Status == TransactionFailed
}
