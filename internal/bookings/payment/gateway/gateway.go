// Package gateway is an HTTP client for the external payment gateway.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	bookingserrors "skyport/internal/bookings/errors"
	"skyport/internal/bookings/payment"
	"skyport/pkg/client"
)

const (
	chargesPath = "/v1/charges"
	refundsPath = "/v1/refunds"
)

type Client struct {
	http *client.HttpClient
}

var _ payment.Processor = (*Client)(nil)

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	hc := client.NewHttpClientWithTimeout(baseURL, timeout)
	if apiKey != "" {
		hc.Headers["Authorization"] = "Bearer " + apiKey
	}
	return &Client{http: hc}
}

type chargeRequest struct {
	IdempotencyKey string `json:"idempotency_key"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	Token          string `json:"payment_method_token"`
}

type chargeResponse struct {
	ReceiptID string `json:"receipt_id"`
}

type refundRequest struct {
	ReceiptID string `json:"receipt_id"`
}

type refundResponse struct {
	RefundID string `json:"refund_id"`
}

func (c *Client) Charge(ctx context.Context, key string, amount int64, currency, token string) (string, error) {
	resp, err := c.http.POSTWithHeaders(ctx, chargesPath, chargeRequest{
		IdempotencyKey: key,
		Amount:         amount,
		Currency:       currency,
		Token:          token,
	}, map[string]string{"Idempotency-Key": key})
	if err != nil {
		return "", unavailable(err)
	}
	if err := classify(resp); err != nil {
		return "", err
	}

	var body chargeResponse
	if err := resp.DecodeJSON(&body); err != nil || body.ReceiptID == "" {
		return "", unavailable(fmt.Errorf("malformed charge response: %w", errors.Join(err, errors.New("missing receipt_id"))))
	}
	return body.ReceiptID, nil
}

func (c *Client) Refund(ctx context.Context, receiptID string) (string, error) {
	resp, err := c.http.POSTWithHeaders(ctx, refundsPath, refundRequest{ReceiptID: receiptID},
		map[string]string{"Idempotency-Key": "refund:" + receiptID})
	if err != nil {
		return "", unavailable(err)
	}
	if err := classify(resp); err != nil {
		return "", err
	}

	var body refundResponse
	if err := resp.DecodeJSON(&body); err != nil || body.RefundID == "" {
		return "", unavailable(fmt.Errorf("malformed refund response: %w", errors.Join(err, errors.New("missing refund_id"))))
	}
	return body.RefundID, nil
}

// classify maps gateway statuses: 2xx succeeds, 408, 429 and 5xx are
// transient, any other 4xx is a decline carrying the gateway's reason.
func classify(resp *client.Response) error {
	switch code := resp.StatusCode; {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests, code >= 500:
		return unavailable(fmt.Errorf("gateway returned %d: %s", code, client.GetErrorMessage(resp)))
	default:
		return payment.Declined(client.GetErrorMessage(resp))
	}
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %w", bookingserrors.ErrProcessorUnavailable, err)
}
