package mpesa

import (
	"context"
	"strconv"
	"time"

	"printstudio/internal/usecase"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

var _ usecase.PaymentGateway = (*Client)(nil)

const (
	resultCodeSuccess = "0"
	// 照会APIが「処理中」で返すエラーコード
	errorCodeProcessing = "500.001.1001"
	// 結果コードとしての「処理中」
	resultCodeProcessing = "4999"
)

type stkPushRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	TransactionType   string `json:"TransactionType"`
	Amount            int64  `json:"Amount"`
	PartyA            string `json:"PartyA"`
	PartyB            string `json:"PartyB"`
	PhoneNumber       string `json:"PhoneNumber"`
	CallBackURL       string `json:"CallBackURL"`
	AccountReference  string `json:"AccountReference"`
	TransactionDesc   string `json:"TransactionDesc"`
}

type stkPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

type stkQueryRequest struct {
	BusinessShortCode string `json:"BusinessShortCode"`
	Password          string `json:"Password"`
	Timestamp         string `json:"Timestamp"`
	CheckoutRequestID string `json:"CheckoutRequestID"`
}

type stkQueryResponse struct {
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResultCode          string `json:"ResultCode"`
	ResultDesc          string `json:"ResultDesc"`
}

// STK push を送る。プロバイダが受け付けなかった場合は Success=false で返す。
func (c *Client) InitiatePayment(ctx context.Context, req usecase.PushPaymentRequest) (usecase.PushPaymentResult, error) {
	if req.Amount <= 0 {
		return usecase.PushPaymentResult{}, errors.Errorf("invalid amount %d", req.Amount)
	}

	ts := c.timestamp()
	body := stkPushRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		TransactionType:   c.cfg.TransactionType,
		Amount:            req.Amount,
		PartyA:            req.Phone,
		PartyB:            c.cfg.ShortCode,
		PhoneNumber:       req.Phone,
		CallBackURL:       c.cfg.CallbackURL,
		AccountReference:  accountReference(req.OrderID),
		TransactionDesc:   truncate(req.Description, 13),
	}

	var resp stkPushResponse
	if err := c.postJSON(ctx, "/mpesa/stkpush/v1/processrequest", body, &resp); err != nil {
		return usecase.PushPaymentResult{}, errors.Wrap(err, "stk push")
	}

	c.log.Info("stk push sent",
		zap.Int64("order_id", req.OrderID),
		zap.String("checkout_request_id", resp.CheckoutRequestID),
		zap.String("response_code", resp.ResponseCode),
	)

	res := usecase.PushPaymentResult{
		Success:             resp.ResponseCode == resultCodeSuccess && resp.CheckoutRequestID != "",
		TransactionID:       resp.CheckoutRequestID,
		MerchantRequestID:   resp.MerchantRequestID,
		ResponseCode:        resp.ResponseCode,
		ResponseDescription: resp.ResponseDescription,
		CustomerMessage:     resp.CustomerMessage,
	}
	if !res.Success {
		res.Message = resp.ResponseDescription
	}
	return res, nil
}

// STK push の状態を照会する
func (c *Client) CheckPaymentStatus(ctx context.Context, paymentID int64, transactionID string) (usecase.PaymentStatusResult, error) {
	if transactionID == "" {
		return usecase.PaymentStatusResult{}, errors.New("empty checkout request id")
	}

	ts := c.timestamp()
	body := stkQueryRequest{
		BusinessShortCode: c.cfg.ShortCode,
		Password:          c.password(ts),
		Timestamp:         ts,
		CheckoutRequestID: transactionID,
	}

	var resp stkQueryResponse
	err := c.postJSON(ctx, "/mpesa/stkpushquery/v1/query", body, &resp)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Code == errorCodeProcessing {
		return usecase.PaymentStatusResult{
			Status:            usecase.GatewayStatusPending,
			ResultCode:        apiErr.Code,
			ResultDescription: apiErr.Message,
		}, nil
	}
	if err != nil {
		return usecase.PaymentStatusResult{}, errors.Wrapf(err, "stk query payment %d", paymentID)
	}

	return usecase.PaymentStatusResult{
		Status:            statusForResultCode(resp.ResultCode),
		ResultCode:        resp.ResultCode,
		ResultDescription: resp.ResultDesc,
	}, nil
}

func statusForResultCode(code string) usecase.GatewayStatus {
	switch code {
	case resultCodeSuccess:
		return usecase.GatewayStatusCompleted
	case "", resultCodeProcessing:
		return usecase.GatewayStatusPending
	}
	return usecase.GatewayStatusFailed
}

func accountReference(orderID int64) string {
	return "ORDER" + strconv.FormatInt(orderID, 10)
}

// Daraja の文字数制限に合わせる
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func parseTransactionDate(v string) *time.Time {
	t, err := time.ParseInLocation(timestampLayout, v, eat)
	if err != nil {
		return nil
	}
	return &t
}
