package mpesa

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"printstudio/internal/usecase"

	"github.com/go-faster/errors"
)

type callbackEnvelope struct {
	Body struct {
		STKCallback *stkCallback `json:"stkCallback"`
	} `json:"Body"`
}

type stkCallback struct {
	MerchantRequestID string      `json:"MerchantRequestID"`
	CheckoutRequestID string      `json:"CheckoutRequestID"`
	ResultCode        json.Number `json:"ResultCode"`
	ResultDesc        string      `json:"ResultDesc"`
	CallbackMetadata  *struct {
		Item []callbackItem `json:"Item"`
	} `json:"CallbackMetadata"`
}

type callbackItem struct {
	Name  string          `json:"Name"`
	Value json.RawMessage `json:"Value"`
}

// コールバック本文を解釈する。成否は ResultCode で判定する。
func (c *Client) ProcessCallback(payload []byte) (usecase.CallbackResult, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var env callbackEnvelope
	if err := dec.Decode(&env); err != nil {
		return usecase.CallbackResult{}, errors.Wrap(err, "decode callback")
	}
	cb := env.Body.STKCallback
	if cb == nil {
		return usecase.CallbackResult{}, errors.New("missing Body.stkCallback")
	}
	if cb.CheckoutRequestID == "" {
		return usecase.CallbackResult{}, errors.New("missing CheckoutRequestID")
	}
	if cb.ResultCode == "" {
		return usecase.CallbackResult{}, errors.New("missing ResultCode")
	}

	res := usecase.CallbackResult{
		CheckoutRequestID: cb.CheckoutRequestID,
		MerchantRequestID: cb.MerchantRequestID,
		Success:           cb.ResultCode.String() == resultCodeSuccess,
		ResultCode:        cb.ResultCode.String(),
		ResultDescription: cb.ResultDesc,
	}

	if cb.CallbackMetadata == nil {
		return res, nil
	}
	for _, it := range cb.CallbackMetadata.Item {
		v := itemString(it.Value)
		switch it.Name {
		case "MpesaReceiptNumber":
			res.ReceiptNumber = v
		case "Amount":
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				res.Amount = int64(f)
			}
		case "PhoneNumber":
			res.PhoneNumber = v
		case "TransactionDate":
			res.TransactionDate = parseTransactionDate(v)
		}
	}

	if res.Success && res.ReceiptNumber == "" {
		return usecase.CallbackResult{}, errors.New("success callback without MpesaReceiptNumber")
	}
	return res, nil
}

// Value は数値の場合と文字列の場合がある
func itemString(raw json.RawMessage) string {
	s := strings.TrimSpace(string(raw))
	if unq, err := strconv.Unquote(s); err == nil {
		return unq
	}
	return s
}
