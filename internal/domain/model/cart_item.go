package model

import (
	"time"

	"gorm.io/datatypes"
)

// カートの明細
// 追加時点の価格を必ず保存。
type CartItem struct {
	ID                int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	CartID            int64          `gorm:"not null;index" json:"cart_id"`
	ProductID         int64          `gorm:"not null;index" json:"product_id"`
	DesignID          string         `gorm:"type:varchar(64);not null" json:"design_id"`
	Size              string         `gorm:"type:varchar(20)" json:"size"`
	Color             string         `gorm:"type:varchar(40)" json:"color"`
	CustomOptions     datatypes.JSON `gorm:"type:jsonb" json:"custom_options,omitempty"`
	Quantity          int64          `gorm:"not null" json:"quantity"`
	UnitPriceSnapshot int64          `gorm:"not null;column:unit_price_snapshot" json:"unit_price_snapshot"`
	CreatedAt         time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}
