package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"printstudio/internal/domain/model"
	repo "printstudio/internal/repository"

	"go.uber.org/zap"
)

type PaymentUsecase struct {
	tx          repo.TransactionManager
	gateway     PaymentGateway
	clock       Clock
	log         *zap.Logger
	maxAttempts int
}

func NewPaymentUsecase(tx repo.TransactionManager, gateway PaymentGateway, clock Clock, log *zap.Logger, maxAttempts int) *PaymentUsecase {
	if log == nil {
		log = zap.NewNop()
	}
	return &PaymentUsecase{tx: tx, gateway: gateway, clock: clock, log: log, maxAttempts: maxAttempts}
}

type InitiatePaymentInput struct {
	OrderID int64
	Phone   string
}

type PaymentOutput struct {
	ID            int64      `json:"id"`
	OrderID       int64      `json:"order_id"`
	Amount        int64      `json:"amount"`
	PhoneNumber   string     `json:"phone_number"`
	Status        string     `json:"status"`
	ReceiptNumber *string    `json:"receipt_number,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	RetryCount    int        `json:"retry_count"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

type InitiatePaymentOutput struct {
	Payment         PaymentOutput `json:"payment"`
	TransactionID   string        `json:"transaction_id"`
	CheckoutURL     string        `json:"checkout_url,omitempty"`
	CustomerMessage string        `json:"customer_message,omitempty"`
}

type PaymentStatusOutput struct {
	PaymentID         int64      `json:"payment_id"`
	Status            string     `json:"status"`
	ResultCode        string     `json:"result_code,omitempty"`
	ResultDescription string     `json:"result_description,omitempty"`
	ReceiptNumber     string     `json:"receipt_number,omitempty"`
	Amount            int64      `json:"amount"`
	TransactionDate   *time.Time `json:"transaction_date,omitempty"`
	PhoneNumber       string     `json:"phone_number,omitempty"`
	Cached            bool       `json:"cached"`
}

// プロバイダへ返す応答
type CallbackAck struct {
	HTTPStatus int    `json:"-"`
	ResultCode int    `json:"resultCode"`
	ResultDesc string `json:"resultDesc"`
}

var errTransactionNotFound = errors.New("transaction not found")

// 適用する決済結果（コールバック/ポーリング共通）
type paymentOutcome struct {
	success    bool
	receipt    string
	resultCode string
	resultDesc string
	raw        []byte
}

// STK push を送る。ゲートウェイ呼び出し中はロックを持たない。
func (u *PaymentUsecase) InitiatePayment(ctx context.Context, userID int64, in InitiatePaymentInput) (InitiatePaymentOutput, error) {
	if userID <= 0 {
		return InitiatePaymentOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if in.OrderID <= 0 {
		return InitiatePaymentOutput{}, validationError("invalid order id", map[string]string{"order_id": "required"})
	}
	phone, err := model.NormalizeMSISDN(in.Phone)
	if err != nil {
		return InitiatePaymentOutput{}, validationError("invalid phone number", map[string]string{"phone": err.Error()})
	}

	var (
		payment model.Payment
		order   model.Order
	)

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByIDForUpdate(ctx, in.OrderID)
		if err != nil {
			return mapRepoErr(err)
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusForbidden, "forbidden")
		}
		if !o.AcceptsPayment() {
			return invalidStateError(fmt.Sprintf("order payment status is %s", o.PaymentStatus))
		}
		if o.Status == model.OrderStatusCancelled || o.Status == model.OrderStatusRefunded {
			return invalidStateError(fmt.Sprintf("order is %s", o.Status))
		}

		if u.maxAttempts > 0 {
			failed, err := r.Payments().CountFailedByOrderID(ctx, o.ID)
			if err != nil {
				return internalError()
			}
			if failed >= int64(u.maxAttempts) {
				return invalidStateError("maximum payment attempts reached")
			}
		}

		existing, err := r.Payments().ListByOrderID(ctx, o.ID)
		if err != nil {
			return internalError()
		}
		for _, p := range existing {
			if p.Status == model.PaymentRecordPending {
				return invalidStateError("a payment is already in progress")
			}
		}

		p := model.Payment{
			OrderID:     o.ID,
			UserID:      userID,
			Amount:      o.Total,
			PhoneNumber: phone,
			Status:      model.PaymentRecordPending,
		}
		id, err := r.Payments().Create(ctx, p)
		if err != nil {
			return internalError()
		}
		p.ID = id

		payment = p
		order = o
		return nil
	})
	if err != nil {
		return InitiatePaymentOutput{}, err
	}

	res, gwErr := u.gateway.InitiatePayment(ctx, PushPaymentRequest{
		Phone:       phone,
		Amount:      order.Total,
		OrderID:     order.ID,
		Description: fmt.Sprintf("Order %d", order.ID),
	})
	if gwErr == nil && !res.Success {
		gwErr = errors.New(res.Message)
	}
	if gwErr != nil {
		reason := gwErr.Error()
		if reason == "" {
			reason = "payment request rejected"
		}
		u.log.Warn("stk push failed",
			zap.Int64("order_id", order.ID),
			zap.Int64("payment_id", payment.ID),
			zap.Error(gwErr),
		)

		if err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			return r.Payments().MarkFailed(ctx, payment.ID, reason)
		}); err != nil {
			u.log.Error("mark payment failed", zap.Int64("payment_id", payment.ID), zap.Error(err))
			return InitiatePaymentOutput{}, internalError()
		}
		return InitiatePaymentOutput{}, gatewayError(reason)
	}

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		if _, err := r.Transactions().Create(ctx, model.Transaction{
			PaymentID:           payment.ID,
			MerchantRequestID:   res.MerchantRequestID,
			CheckoutRequestID:   res.TransactionID,
			Status:              model.TransactionInitiated,
			ResponseCode:        res.ResponseCode,
			ResponseDescription: res.ResponseDescription,
		}); err != nil {
			return internalError()
		}

		o, err := r.Orders().FindByIDForUpdate(ctx, order.ID)
		if err != nil {
			return mapRepoErr(err)
		}
		if model.CanTransitionPayment(o.PaymentStatus, model.PaymentStatusPending) {
			if err := r.Orders().UpdatePaymentStatus(ctx, o.ID, model.PaymentStatusPending); err != nil {
				return mapRepoErr(err)
			}
		}
		return nil
	})
	if err != nil {
		u.log.Error("record stk push",
			zap.Int64("payment_id", payment.ID),
			zap.String("checkout_request_id", res.TransactionID),
			zap.Error(err),
		)
		// 取引が残らないと結果を受け取れないので、この試行は失敗扱いにして再試行できるようにする
		if mfErr := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			return r.Payments().MarkFailed(ctx, payment.ID, "payment request could not be recorded")
		}); mfErr != nil {
			u.log.Error("mark payment failed", zap.Int64("payment_id", payment.ID), zap.Error(mfErr))
		}
		return InitiatePaymentOutput{}, err
	}

	return InitiatePaymentOutput{
		Payment:         toPaymentOutput(payment),
		TransactionID:   res.TransactionID,
		CheckoutURL:     res.CheckoutURL,
		CustomerMessage: res.CustomerMessage,
	}, nil
}

// プロバイダからの通知。エラーは外に出さず、必ず応答を返す。
func (u *PaymentUsecase) HandleCallback(ctx context.Context, payload []byte) CallbackAck {
	res, err := u.gateway.ProcessCallback(payload)
	if err != nil {
		u.log.Warn("invalid callback payload", zap.Error(err))
		return CallbackAck{HTTPStatus: http.StatusOK, ResultCode: 1, ResultDesc: "invalid payload"}
	}

	log := u.log.With(zap.String("checkout_request_id", res.CheckoutRequestID))

	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		txn, err := r.Transactions().FindByCheckoutRequestIDForUpdate(ctx, res.CheckoutRequestID)
		if errors.Is(err, repo.ErrNotFound) {
			return errTransactionNotFound
		}
		if err != nil {
			return err
		}

		return u.applyOutcome(ctx, r, txn, paymentOutcome{
			success:    res.Success,
			receipt:    res.ReceiptNumber,
			resultCode: res.ResultCode,
			resultDesc: res.ResultDescription,
			raw:        payload,
		})
	})

	switch {
	case errors.Is(err, errTransactionNotFound):
		log.Warn("callback for unknown transaction")
		return CallbackAck{HTTPStatus: http.StatusNotFound, ResultCode: 1, ResultDesc: "transaction not found"}
	case err != nil:
		log.Error("callback processing failed", zap.Error(err))
		return CallbackAck{HTTPStatus: http.StatusOK, ResultCode: 1, ResultDesc: "callback processing failed"}
	}

	log.Info("callback processed", zap.Bool("success", res.Success), zap.String("result_code", res.ResultCode))
	return CallbackAck{HTTPStatus: http.StatusOK, ResultCode: 0, ResultDesc: "Accepted"}
}

// 終端ならキャッシュを返す。未確定ならプロバイダに問い合わせ、確定していれば保存してから返す。
func (u *PaymentUsecase) CheckStatus(ctx context.Context, userID int64, paymentID int64) (PaymentStatusOutput, error) {
	p, err := u.findOwnPayment(ctx, userID, paymentID)
	if err != nil {
		return PaymentStatusOutput{}, err
	}
	if p.IsTerminal() {
		return cachedStatus(p), nil
	}

	var txn model.Transaction
	err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		t, err := r.Transactions().FindLatestByPaymentID(ctx, p.ID)
		if err != nil {
			return err
		}
		txn = t
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		// push がまだ記録されていない
		return cachedStatus(p), nil
	}
	if err != nil {
		return PaymentStatusOutput{}, internalError()
	}

	live, err := u.gateway.CheckPaymentStatus(ctx, p.ID, txn.CheckoutRequestID)
	if err != nil {
		u.log.Warn("stk query failed",
			zap.Int64("payment_id", p.ID),
			zap.String("checkout_request_id", txn.CheckoutRequestID),
			zap.Error(err),
		)
		return PaymentStatusOutput{}, gatewayError("payment status unavailable")
	}

	if live.IsTerminal() {
		raw, err := json.Marshal(live)
		if err != nil {
			return PaymentStatusOutput{}, internalError()
		}
		err = u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
			t, err := r.Transactions().FindByCheckoutRequestIDForUpdate(ctx, txn.CheckoutRequestID)
			if err != nil {
				return err
			}
			return u.applyOutcome(ctx, r, t, paymentOutcome{
				success:    live.Status == GatewayStatusCompleted,
				receipt:    live.ReceiptNumber,
				resultCode: live.ResultCode,
				resultDesc: live.ResultDescription,
				raw:        raw,
			})
		})
		if err != nil {
			u.log.Error("persist polled status", zap.Int64("payment_id", p.ID), zap.Error(err))
			return PaymentStatusOutput{}, internalError()
		}
		u.log.Info("polled status persisted", zap.Int64("payment_id", p.ID), zap.String("status", string(live.Status)))
	}

	amount := live.Amount
	if amount == 0 {
		amount = p.Amount
	}
	return PaymentStatusOutput{
		PaymentID:         p.ID,
		Status:            string(live.Status),
		ResultCode:        live.ResultCode,
		ResultDescription: live.ResultDescription,
		ReceiptNumber:     live.ReceiptNumber,
		Amount:            amount,
		TransactionDate:   live.TransactionDate,
		PhoneNumber:       live.PhoneNumber,
	}, nil
}

func (u *PaymentUsecase) GetPayment(ctx context.Context, userID int64, paymentID int64) (PaymentOutput, error) {
	p, err := u.findOwnPayment(ctx, userID, paymentID)
	if err != nil {
		return PaymentOutput{}, err
	}
	return toPaymentOutput(p), nil
}

// 注文の支払い試行一覧
func (u *PaymentUsecase) ListOrderPayments(ctx context.Context, userID int64, orderID int64) ([]PaymentOutput, error) {
	if userID <= 0 {
		return nil, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return nil, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var outs []PaymentOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err != nil {
			return mapRepoErr(err)
		}
		if o.UserID != userID {
			return NewHTTPError(http.StatusForbidden, "forbidden")
		}

		ps, err := r.Payments().ListByOrderID(ctx, orderID)
		if err != nil {
			return internalError()
		}
		outs = make([]PaymentOutput, 0, len(ps))
		for _, p := range ps {
			outs = append(outs, toPaymentOutput(p))
		}
		return nil
	})

	if err != nil {
		return nil, err
	}
	return outs, nil
}

// 結果を取引・支払い・注文にまとめて反映する。呼び出し側のトランザクション内で使う。
// 取引が終端なら受領番号の補完以外は何もしない（同じコールバックの再送）。
func (u *PaymentUsecase) applyOutcome(ctx context.Context, r repo.TxRepos, txn model.Transaction, out paymentOutcome) error {
	if txn.IsTerminal() {
		return u.fillReceipt(ctx, r, txn, out)
	}

	p, err := r.Payments().FindByIDForUpdate(ctx, txn.PaymentID)
	if err != nil {
		return err
	}
	if p.Status == model.PaymentRecordCompleted {
		return nil
	}

	o, err := r.Orders().FindByIDForUpdate(ctx, p.OrderID)
	if err != nil {
		return err
	}

	now := u.clock.Now()

	if !out.success {
		if err := r.Transactions().MarkResult(ctx, txn.ID, model.TransactionFailed, out.resultCode, out.resultDesc, out.raw); err != nil {
			return err
		}
		if err := r.Payments().MarkFailed(ctx, p.ID, out.resultDesc); err != nil {
			return err
		}
		if o.PaymentStatus == model.PaymentStatusPending {
			return r.Orders().UpdatePaymentStatus(ctx, o.ID, model.PaymentStatusFailed)
		}
		return nil
	}

	if err := r.Transactions().MarkResult(ctx, txn.ID, model.TransactionCompleted, out.resultCode, out.resultDesc, out.raw); err != nil {
		return err
	}
	if err := r.Payments().MarkCompleted(ctx, p.ID, out.receipt, now); err != nil {
		return err
	}
	if model.CanTransitionPayment(o.PaymentStatus, model.PaymentStatusCompleted) {
		if err := r.Orders().UpdatePaymentStatus(ctx, o.ID, model.PaymentStatusCompleted); err != nil {
			return err
		}
	}

	switch {
	case model.CanTransitionOrder(o.Status, model.OrderStatusProcessing):
		if err := r.Orders().UpdateStatus(ctx, o.ID, model.OrderStatusProcessing); err != nil {
			return err
		}
		return r.Timeline().Append(ctx, model.OrderTimelineEntry{
			OrderID:   o.ID,
			Status:    model.OrderStatusProcessing,
			Note:      paymentNote(out.receipt),
			CreatedAt: now,
		})
	case o.Status == model.OrderStatusCancelled:
		// 取消後に入金された。返金は手作業。
		return r.Timeline().Append(ctx, model.OrderTimelineEntry{
			OrderID:   o.ID,
			Status:    o.Status,
			Note:      paymentNote(out.receipt) + "; order was cancelled, refund required",
			CreatedAt: now,
		})
	}
	return nil
}

// ポーリングで完了した支払いには受領番号がない。後から届いた成功通知で埋め、生データも差し替える。
func (u *PaymentUsecase) fillReceipt(ctx context.Context, r repo.TxRepos, txn model.Transaction, out paymentOutcome) error {
	if txn.Status != model.TransactionCompleted || !out.success || out.receipt == "" {
		return nil
	}

	p, err := r.Payments().FindByIDForUpdate(ctx, txn.PaymentID)
	if err != nil {
		return err
	}
	if p.Status != model.PaymentRecordCompleted || p.ReceiptNumber != nil {
		return nil
	}

	if err := r.Payments().SetReceipt(ctx, p.ID, out.receipt); err != nil {
		return err
	}
	return r.Transactions().MarkResult(ctx, txn.ID, model.TransactionCompleted, out.resultCode, out.resultDesc, out.raw)
}

func (u *PaymentUsecase) findOwnPayment(ctx context.Context, userID int64, paymentID int64) (model.Payment, error) {
	if userID <= 0 {
		return model.Payment{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if paymentID <= 0 {
		return model.Payment{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var p model.Payment
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		found, err := r.Payments().FindByID(ctx, paymentID)
		if err != nil {
			return mapRepoErr(err)
		}
		if found.UserID != userID {
			return NewHTTPError(http.StatusForbidden, "forbidden")
		}
		p = found
		return nil
	})
	return p, err
}

func paymentNote(receipt string) string {
	if receipt == "" {
		return "Payment received"
	}
	return "Payment received, M-Pesa receipt " + receipt
}

func cachedStatus(p model.Payment) PaymentStatusOutput {
	out := PaymentStatusOutput{
		PaymentID:   p.ID,
		Status:      string(p.Status),
		Amount:      p.Amount,
		PhoneNumber: p.PhoneNumber,
		Cached:      true,
	}
	if p.ReceiptNumber != nil {
		out.ReceiptNumber = *p.ReceiptNumber
	}
	if p.FailureReason != nil {
		out.ResultDescription = *p.FailureReason
	}
	out.TransactionDate = p.CompletedAt
	return out
}

func toPaymentOutput(p model.Payment) PaymentOutput {
	return PaymentOutput{
		ID:            p.ID,
		OrderID:       p.OrderID,
		Amount:        p.Amount,
		PhoneNumber:   p.PhoneNumber,
		Status:        string(p.Status),
		ReceiptNumber: p.ReceiptNumber,
		FailureReason: p.FailureReason,
		RetryCount:    p.RetryCount,
		CompletedAt:   p.CompletedAt,
		CreatedAt:     p.CreatedAt,
	}
}
