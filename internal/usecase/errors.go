package usecase

import (
	"errors"
	"fmt"
	"net/http"
)

// エラーの種類。HTTPError.Err に入れて errors.Is で判定する。
var (
	ErrValidation   = errors.New("validation error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrEmptyCart    = errors.New("cart empty")
	ErrConflict     = errors.New("conflict")
	ErrGateway      = errors.New("payment gateway error")
	ErrInternal     = errors.New("internal error")
)

type HTTPError struct {
	Status  int
	Message string
	Err     error
	// フィールド単位のエラー（400のみ）
	Fields map[string]string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func NewHTTPError(status int, message string) error {
	return &HTTPError{
		Status:  status,
		Message: message,
		Err:     kindForStatus(status),
	}
}

func AsHTTPError(err error) (*HTTPError, bool) {
	var he *HTTPError
	ok := errors.As(err, &he)
	return he, ok
}

func validationError(message string, fields map[string]string) error {
	return &HTTPError{Status: http.StatusBadRequest, Message: message, Err: ErrValidation, Fields: fields}
}

func invalidStateError(message string) error {
	return &HTTPError{Status: http.StatusBadRequest, Message: message, Err: ErrInvalidState}
}

func emptyCartError() error {
	return &HTTPError{Status: http.StatusBadRequest, Message: "cart empty", Err: ErrEmptyCart}
}

// 決済ゲートウェイの失敗は5xxにせずクライアントエラーで返す
func gatewayError(message string) error {
	return &HTTPError{Status: http.StatusBadRequest, Message: message, Err: ErrGateway}
}

func internalError() error {
	return &HTTPError{Status: http.StatusInternalServerError, Message: "internal error", Err: ErrInternal}
}

func kindForStatus(status int) error {
	switch status {
	case http.StatusBadRequest:
		return ErrValidation
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusForbidden:
		return ErrForbidden
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	default:
		return ErrInternal
	}
}

// validator パッケージ向け
func NewValidationError(message string, fields map[string]string) error {
	return validationError(message, fields)
}
