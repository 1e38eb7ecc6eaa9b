// Package mpesa は Safaricom Daraja API（STK push）のクライアント。
package mpesa

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"printstudio/internal/config"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Daraja のタイムスタンプは東アフリカ時間
var eat = time.FixedZone("EAT", 3*60*60)

const timestampLayout = "20060102150405"

// Daraja のエラー応答
type APIError struct {
	StatusCode int
	RequestID  string `json:"requestId"`
	Code       string `json:"errorCode"`
	Message    string `json:"errorMessage"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mpesa: http %d: %s %s", e.StatusCode, e.Code, e.Message)
}

type Client struct {
	cfg    config.MPesaConfig
	http   *http.Client
	tokens *tokenSource
	now    func() time.Time
	log    *zap.Logger
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

func New(cfg config.MPesaConfig, cache TokenCache, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
		log:  log.Named("mpesa"),
	}
	for _, o := range opts {
		o(c)
	}
	c.tokens = &tokenSource{client: c, cache: cache}
	return c
}

// 認証付きで JSON を POST する
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return errors.Wrap(err, "access token")
	}

	body, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "post %s", path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// キャッシュのトークンが失効していた
		c.tokens.Invalidate(ctx)
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return errors.Wrap(err, "decode response")
	}
	return nil
}

// Password = base64(ShortCode + PassKey + Timestamp)
func (c *Client) password(ts string) string {
	return encodePassword(c.cfg.ShortCode, c.cfg.PassKey, ts)
}

func (c *Client) timestamp() string {
	return c.now().In(eat).Format(timestampLayout)
}
