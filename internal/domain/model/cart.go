package model

import "time"

type CartStatus string

const (
	CartStatusActive CartStatus = "ACTIVE"
)

// 1ユーザーにつきACTIVEは1つ
type Cart struct {
	ID        int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID    int64      `gorm:"not null;index" json:"user_id"`
	Status    CartStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	CreatedAt time.Time  `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time  `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

// 注文作成に使うカートの中身
type CartSnapshot struct {
	Cart  Cart
	Items []CartItem
}

func (s CartSnapshot) IsEmpty() bool {
	return len(s.Items) == 0
}

// 同じ商品・デザイン・サイズ・色なら同じ行にまとめる
func (it CartItem) SameVariant(productID int64, designID, size, color string) bool {
	return it.ProductID == productID && it.DesignID == designID && it.Size == size && it.Color == color
}
