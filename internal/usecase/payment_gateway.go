package usecase

import (
	"context"
	"time"
)

// 決済プロバイダ（M-Pesa STK push）の窓口
type PaymentGateway interface {
	InitiatePayment(ctx context.Context, req PushPaymentRequest) (PushPaymentResult, error)
	// コールバック本文を解釈する。成功/失敗は本文のフラグで判定する。
	ProcessCallback(payload []byte) (CallbackResult, error)
	CheckPaymentStatus(ctx context.Context, paymentID int64, transactionID string) (PaymentStatusResult, error)
}

type PushPaymentRequest struct {
	Phone       string
	Amount      int64
	OrderID     int64
	Description string
}

type PushPaymentResult struct {
	Success bool
	// CheckoutRequestID
	TransactionID       string
	MerchantRequestID   string
	ResponseCode        string
	ResponseDescription string
	CheckoutURL         string
	CustomerMessage     string
	Message             string
}

type CallbackResult struct {
	CheckoutRequestID string
	MerchantRequestID string
	Success           bool
	ReceiptNumber     string
	Amount            int64
	ResultCode        string
	ResultDescription string
	PhoneNumber       string
	TransactionDate   *time.Time
}

type GatewayStatus string

const (
	GatewayStatusPending   GatewayStatus = "PENDING"
	GatewayStatusCompleted GatewayStatus = "COMPLETED"
	GatewayStatusFailed    GatewayStatus = "FAILED"
)

type PaymentStatusResult struct {
	Status            GatewayStatus `json:"status"`
	ResultCode        string        `json:"result_code"`
	ResultDescription string        `json:"result_description"`
	ReceiptNumber     string        `json:"receipt_number,omitempty"`
	Amount            int64         `json:"amount,omitempty"`
	TransactionDate   *time.Time    `json:"transaction_date,omitempty"`
	PhoneNumber       string        `json:"phone_number,omitempty"`
}

func (r PaymentStatusResult) IsTerminal() bool {
	return r.Status == GatewayStatusCompleted || r.Status == GatewayStatusFailed
}
