/**
 * @description
 * This package provides a client for the Cashfree payment gateway API. It
 * encapsulates authenticated HTTP requests for order creation and order
 * status polling, plus the webhook signature check that gates every
 * state-mutating callback.
 *
 * @dependencies
 * - bytes, context, crypto/hmac, encoding/json, net/http, time: Standard Go libraries.
 */
package cashfree

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

const apiVersion = "2023-08-01"

// Provider order statuses surfaced by the orders endpoint.
const (
	OrderStatusActive     = "ACTIVE"
	OrderStatusPaid       = "PAID"
	OrderStatusExpired    = "EXPIRED"
	OrderStatusTerminated = "TERMINATED"
)

// ErrInvalidSignature is returned when a webhook payload fails the HMAC
// check. Callers must not mutate any state on this error.
var ErrInvalidSignature = errors.New("cashfree: webhook signature mismatch")

// Client is a client for the Cashfree PG API.
type Client struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client

	maxRetries int
	backoff    time.Duration
}

// NewClient creates a new Cashfree API client.
func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		BaseURL:      baseURL,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
	}
}

// Customer carries the customer details attached to an order.
type Customer struct {
	ID    string `json:"customer_id"`
	Name  string `json:"customer_name"`
	Email string `json:"customer_email"`
	Phone string `json:"customer_phone"`
}

// CreateOrderRequest is the payload for POST /pg/orders.
type CreateOrderRequest struct {
	OrderID       string      `json:"order_id"`
	OrderAmount   json.Number `json:"order_amount"` // decimal rupees
	OrderCurrency string      `json:"order_currency"`
	Customer      Customer    `json:"customer_details"`
	OrderMeta     struct {
		ReturnURL string `json:"return_url,omitempty"`
		NotifyURL string `json:"notify_url,omitempty"`
	} `json:"order_meta"`
}

// Order is the provider's view of an order. The raw payload is kept so the
// client application can hand the checkout session to its SDK untouched.
type Order struct {
	OrderID          string         `json:"order_id"`
	OrderStatus      string         `json:"order_status"`
	PaymentSessionID string         `json:"payment_session_id"`
	Raw              map[string]any `json:"-"`
}

// ErrorResponse represents an error returned by the Cashfree API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Code       string `json:"code"`
	Type       string `json:"type"`
}

func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("cashfree api error (http %d): %s - %s", e.StatusCode, e.Code, e.Message)
}

// IsRetryable reports whether the failure is transient. Validation and
// not-found style failures must be surfaced immediately, not retried.
func (e *ErrorResponse) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// CreateOrder creates a payment order. The caller-supplied orderID is the
// idempotency key: Cashfree rejects a second create for the same order_id, so
// a retried request cannot produce a second charge.
func (c *Client) CreateOrder(ctx context.Context, orderID string, amountPaise int64, currency string, customer Customer, returnURL, notifyURL string) (*Order, error) {
	reqPayload := CreateOrderRequest{
		OrderID:       orderID,
		OrderAmount:   paiseToRupees(amountPaise),
		OrderCurrency: currency,
		Customer:      customer,
	}
	reqPayload.OrderMeta.ReturnURL = returnURL
	reqPayload.OrderMeta.NotifyURL = notifyURL

	return c.doOrder(ctx, http.MethodPost, "/pg/orders", reqPayload)
}

// GetOrder fetches the authoritative status of an order. Used by the
// reconciliation pass for orders stuck in PENDING after a lost webhook.
func (c *Client) GetOrder(ctx context.Context, orderID string) (*Order, error) {
	return c.doOrder(ctx, http.MethodGet, "/pg/orders/"+orderID, nil)
}

func (c *Client) doOrder(ctx context.Context, method, path string, payload any) (*Order, error) {
	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.backoff * time.Duration(attempt)):
			}
		}

		order, err := c.doOnce(ctx, method, path, body)
		if err == nil {
			return order, nil
		}
		lastErr = err

		var apiErr *ErrorResponse
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) (*Order, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-version", apiVersion)
	req.Header.Set("x-client-id", c.ClientID)
	req.Header.Set("x-client-secret", c.ClientSecret)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("cashfree request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cashfree response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &ErrorResponse{StatusCode: resp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, apiErr); jsonErr != nil {
			apiErr.Message = string(respBody)
		}
		return nil, apiErr
	}

	var order Order
	if err := json.Unmarshal(respBody, &order); err != nil {
		return nil, fmt.Errorf("failed to decode cashfree order: %w", err)
	}
	if err := json.Unmarshal(respBody, &order.Raw); err != nil {
		return nil, fmt.Errorf("failed to decode cashfree order payload: %w", err)
	}
	return &order, nil
}

// paiseToRupees renders an integer paise amount as a decimal rupee string.
// This is the only place the internal integer representation leaves the
// system as a decimal.
func paiseToRupees(paise int64) json.Number {
	return json.Number(strconv.FormatInt(paise/100, 10) + "." + fmt.Sprintf("%02d", paise%100))
}

// WebhookEvent is the decoded body of a payment webhook delivery.
type WebhookEvent struct {
	Type string `json:"type"`
	Data struct {
		Order struct {
			OrderID string `json:"order_id"`
		} `json:"order"`
		Payment struct {
			CfPaymentID   json.Number `json:"cf_payment_id"`
			PaymentStatus string      `json:"payment_status"`
			PaymentGroup  string      `json:"payment_group"`
			PaymentTime   string      `json:"payment_time"`
		} `json:"payment"`
	} `json:"data"`
	EventTime string `json:"event_time"`
}

// Paid reports whether the event describes a captured payment.
func (e *WebhookEvent) Paid() bool {
	return e.Data.Payment.PaymentStatus == "SUCCESS"
}

// ComputeSignature returns the expected webhook signature for a raw body and
// timestamp header: base64(HMAC-SHA256(timestamp + body, clientSecret)).
// It is a pure function of its inputs so it can be tested in isolation.
func ComputeSignature(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// VerifyWebhook authenticates a raw webhook delivery against its signature
// headers and decodes it. It must be called before any store mutation; an
// ErrInvalidSignature result means the payload is untrusted and is dropped.
func (c *Client) VerifyWebhook(body []byte, signature, timestamp string) (*WebhookEvent, error) {
	expected := ComputeSignature(c.ClientSecret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return nil, ErrInvalidSignature
	}

	var event WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if event.Data.Order.OrderID == "" {
		return nil, errors.New("webhook payload missing order id")
	}
	return &event, nil
}
