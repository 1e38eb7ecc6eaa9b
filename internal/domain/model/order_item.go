package model

import (
	"time"

	"gorm.io/datatypes"
)

// 注文明細。作成後は変更しない。
type OrderItem struct {
	ID                  int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID             int64          `gorm:"not null;index" json:"order_id"`
	ProductID           int64          `gorm:"not null;index" json:"product_id"`
	DesignID            string         `gorm:"type:varchar(64);not null" json:"design_id"`
	ProductNameSnapshot string         `gorm:"type:varchar(255);not null" json:"product_name_snapshot"`
	Size                string         `gorm:"type:varchar(20)" json:"size"`
	Color               string         `gorm:"type:varchar(40)" json:"color"`
	CustomOptions       datatypes.JSON `gorm:"type:jsonb" json:"custom_options,omitempty"`
	UnitPriceSnapshot   int64          `gorm:"not null" json:"unit_price_snapshot"`
	Quantity            int64          `gorm:"not null" json:"quantity"`
	CreatedAt           time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (it OrderItem) LineTotal() int64 {
	return it.UnitPriceSnapshot * it.Quantity
}
