package model

// 製造フロー上の順番。CANCELLED/REFUNDED は含めない。
var orderProgress = map[OrderStatus]int{
	OrderStatusPending:      0,
	OrderStatusPaid:         1,
	OrderStatusProcessing:   2,
	OrderStatusProduction:   3,
	OrderStatusQualityCheck: 4,
	OrderStatusShipping:     5,
	OrderStatusDelivered:    6,
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	if _, ok := orderProgress[st]; ok {
		return st, true
	}
	if st == OrderStatusCancelled || st == OrderStatusRefunded {
		return st, true
	}
	return "", false
}

// 前進のみ許可（飛ばしはOK）。
// CANCELLED は DELIVERED 前ならどこからでも、REFUNDED は DELIVERED 前と CANCELLED から。
func CanTransitionOrder(from, to OrderStatus) bool {
	if from == to {
		return false
	}

	switch to {
	case OrderStatusCancelled:
		_, inFlow := orderProgress[from]
		return inFlow && from != OrderStatusDelivered
	case OrderStatusRefunded:
		if from == OrderStatusCancelled {
			return true
		}
		_, inFlow := orderProgress[from]
		return inFlow && from != OrderStatusDelivered
	}

	fromRank, ok := orderProgress[from]
	if !ok {
		// CANCELLED / REFUNDED は終端
		return false
	}
	toRank, ok := orderProgress[to]
	if !ok {
		return false
	}
	return toRank > fromRank
}

// 削除できるのは PENDING / CANCELLED だけ。支払い中・支払い済みの注文は残す。
func (o Order) IsDeletable() bool {
	if o.HasPaymentActivity() {
		return false
	}
	return o.Status == OrderStatusPending || o.Status == OrderStatusCancelled
}

// 決済結果がまだ届きうる、または入金済み
func (o Order) HasPaymentActivity() bool {
	return o.PaymentStatus == PaymentStatusPending || o.PaymentStatus == PaymentStatusCompleted
}

func ParsePaymentStatus(s string) (PaymentStatus, bool) {
	switch st := PaymentStatus(s); st {
	case PaymentStatusUnpaid, PaymentStatusPending, PaymentStatusCompleted, PaymentStatusFailed:
		return st, true
	}
	return "", false
}

// COMPLETED は終端。FAILED から PENDING へは手動リトライ。
func CanTransitionPayment(from, to PaymentStatus) bool {
	switch from {
	case PaymentStatusUnpaid:
		return to == PaymentStatusPending || to == PaymentStatusCompleted || to == PaymentStatusFailed
	case PaymentStatusPending:
		return to == PaymentStatusCompleted || to == PaymentStatusFailed
	case PaymentStatusFailed:
		return to == PaymentStatusPending || to == PaymentStatusCompleted
	}
	return false
}

// 支払い開始できる状態か
func (o Order) AcceptsPayment() bool {
	return o.PaymentStatus == PaymentStatusUnpaid || o.PaymentStatus == PaymentStatusFailed
}
