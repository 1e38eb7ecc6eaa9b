package usecase

import (
	"strings"

	"printstudio/internal/domain/model"
)

// 管理者の注文更新。種類ごとに型を分ける。
type OrderUpdate interface {
	orderUpdate()
}

type StatusUpdate struct {
	Status         model.OrderStatus
	Note           string
	TrackingNumber string
}

type TrackingUpdate struct {
	TrackingNumber string
}

type NoteUpdate struct {
	Note string
}

func (StatusUpdate) orderUpdate()   {}
func (TrackingUpdate) orderUpdate() {}
func (NoteUpdate) orderUpdate()     {}

const (
	UpdateKindStatus   = "status"
	UpdateKindTracking = "tracking"
	UpdateKindNote     = "note"
)

// リクエストの生の値から更新を組み立てる。不正なら ValidationError。
func ParseOrderUpdate(kind, status, note, trackingNumber string) (OrderUpdate, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	note = strings.TrimSpace(note)
	trackingNumber = strings.TrimSpace(trackingNumber)

	// kind 省略時は status があればステータス更新
	if kind == "" && status != "" {
		kind = UpdateKindStatus
	}

	switch kind {
	case UpdateKindStatus:
		st, ok := model.ParseOrderStatus(strings.ToUpper(strings.TrimSpace(status)))
		if !ok {
			return nil, validationError("invalid status", map[string]string{"status": "unknown status"})
		}
		return StatusUpdate{Status: st, Note: note, TrackingNumber: trackingNumber}, nil
	case UpdateKindTracking:
		if trackingNumber == "" {
			return nil, validationError("invalid tracking number", map[string]string{"tracking_number": "required"})
		}
		return TrackingUpdate{TrackingNumber: trackingNumber}, nil
	case UpdateKindNote:
		if note == "" {
			return nil, validationError("invalid note", map[string]string{"note": "required"})
		}
		return NoteUpdate{Note: note}, nil
	}
	return nil, validationError("invalid update", map[string]string{"type": "must be status, tracking or note"})
}
