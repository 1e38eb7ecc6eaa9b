package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type OrderStatus string

const (
	OrderStatusPending      OrderStatus = "PENDING"
	OrderStatusPaid         OrderStatus = "PAID"
	OrderStatusProcessing   OrderStatus = "PROCESSING"
	OrderStatusProduction   OrderStatus = "PRODUCTION"
	OrderStatusQualityCheck OrderStatus = "QUALITY_CHECK"
	OrderStatusShipping     OrderStatus = "SHIPPING"
	OrderStatusDelivered    OrderStatus = "DELIVERED"
	OrderStatusCancelled    OrderStatus = "CANCELLED"
	OrderStatusRefunded     OrderStatus = "REFUNDED"
)

type PaymentStatus string

const (
	PaymentStatusUnpaid    PaymentStatus = "UNPAID"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusCompleted PaymentStatus = "COMPLETED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

type ShippingMethod string

const (
	ShippingMethodStandard ShippingMethod = "standard"
	ShippingMethodExpress  ShippingMethod = "express"
	ShippingMethodPickup   ShippingMethod = "pickup"
)

// 配送先（注文時点のスナップショット）
type ShippingAddress struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	County     string `json:"county,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
}

// 金額はすべて通貨の最小単位（KES）で持つ。
// Total = Subtotal + ShippingCost + TaxAmount
type Order struct {
	ID              int64                               `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64                               `gorm:"not null;index" json:"user_id"`
	Status          OrderStatus                         `gorm:"type:varchar(20);not null;index" json:"status"`
	PaymentStatus   PaymentStatus                       `gorm:"type:varchar(20);not null;index" json:"payment_status"`
	ShippingMethod  ShippingMethod                      `gorm:"type:varchar(20);not null" json:"shipping_method"`
	ShippingAddress datatypes.JSONType[ShippingAddress] `gorm:"type:jsonb;not null" json:"shipping_address"`
	ShippingCost    int64                               `gorm:"not null" json:"shipping_cost"`
	TaxRate         decimal.Decimal                     `gorm:"type:numeric(6,4);not null" json:"tax_rate"`
	Subtotal        int64                               `gorm:"not null" json:"subtotal"`
	TaxAmount       int64                               `gorm:"not null" json:"tax_amount"`
	Total           int64                               `gorm:"not null" json:"total"`
	TrackingNumber  *string                             `gorm:"type:varchar(100)" json:"tracking_number,omitempty"`
	Notes           string                              `gorm:"type:text" json:"notes"`
	CreatedAt       time.Time                           `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                           `gorm:"not null;autoUpdateTime" json:"updated_at"`
	DeletedAt       gorm.DeletedAt                      `gorm:"index" json:"-"`
}
