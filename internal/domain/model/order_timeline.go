package model

import "time"

// フルフィルメントの履歴（追記のみ）
type OrderTimelineEntry struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID   int64       `gorm:"not null;index" json:"order_id"`
	Status    OrderStatus `gorm:"type:varchar(20);not null" json:"status"`
	Note      string      `gorm:"type:text" json:"note"`
	CreatedAt time.Time   `gorm:"not null;autoCreateTime" json:"created_at"`
}
