package model

import "time"

type PaymentRecordStatus string

const (
	PaymentRecordPending   PaymentRecordStatus = "PENDING"
	PaymentRecordCompleted PaymentRecordStatus = "COMPLETED"
	PaymentRecordFailed    PaymentRecordStatus = "FAILED"
)

// 支払い試行。1注文に複数。
// COMPLETED になったら以後は更新しない。
type Payment struct {
	ID            int64               `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID       int64               `gorm:"not null;index" json:"order_id"`
	UserID        int64               `gorm:"not null;index" json:"user_id"`
	Amount        int64               `gorm:"not null" json:"amount"`
	PhoneNumber   string              `gorm:"type:varchar(20);not null" json:"phone_number"`
	Status        PaymentRecordStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	ReceiptNumber *string             `gorm:"type:varchar(50);uniqueIndex" json:"receipt_number,omitempty"`
	FailureReason *string             `gorm:"type:text" json:"failure_reason,omitempty"`
	RetryCount    int                 `gorm:"not null;default:0" json:"retry_count"`
	CompletedAt   *time.Time          `json:"completed_at,omitempty"`
	CreatedAt     time.Time           `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time           `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (p Payment) IsTerminal() bool {
	return p.Status == PaymentRecordCompleted || p.Status == PaymentRecordFailed
}
