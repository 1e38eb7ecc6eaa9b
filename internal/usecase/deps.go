package usecase

import (
	"time"

	"github.com/google/uuid"
)

// 時刻（テストで差し替える）
type Clock interface {
	Now() time.Time
}

// ID発行（セッションIDなど）
type IDGenerator interface {
	NewID() string
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func SystemClock() Clock { return systemClock{} }

type uuidGenerator struct{}

func (uuidGenerator) NewID() string { return uuid.NewString() }

func UUIDGenerator() IDGenerator { return uuidGenerator{} }
