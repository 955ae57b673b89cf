// internal/clients/payment_client.go
package clients

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/time/rate"

	"libradesk/internal/payments"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Request headers sent to the gateway.
const (
	HeaderRequestID = "X-Request-ID"
	HeaderSignature = "X-Signature"
)

// PaymentClient is a payments.Gateway reached over HTTP. Requests are
// throttled client side and guarded by a circuit breaker; a request is never
// retried.
type PaymentClient struct {
	baseURL string
	key     []byte
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
	log     logrus.FieldLogger
}

var _ payments.Gateway = (*PaymentClient)(nil)

// PaymentClientOption configures a PaymentClient.
type PaymentClientOption func(*PaymentClient)

// WithHTTPClient replaces the default client with its 10 second timeout.
func WithHTTPClient(c *http.Client) PaymentClientOption {
	return func(p *PaymentClient) { p.http = c }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) PaymentClientOption {
	return func(p *PaymentClient) { p.log = log }
}

// NewPaymentClient returns a client for the gateway at baseURL. Bodies are
// signed with a BLAKE2b-256 MAC keyed by key, which must be at most 64 bytes.
// ratePerMinute <= 0 disables throttling.
func NewPaymentClient(baseURL string, key []byte, ratePerMinute int, opts ...PaymentClientOption) (*PaymentClient, error) {
	if len(key) > blake2b.Size {
		return nil, fmt.Errorf("signing key longer than %d bytes", blake2b.Size)
	}

	limit, burst := rate.Inf, 1
	if ratePerMinute > 0 {
		limit, burst = rate.Every(time.Minute/time.Duration(ratePerMinute)), ratePerMinute
	}

	c := &PaymentClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		key:     key,
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(limit, burst),
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}

	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "payment-gateway",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("circuit breaker state changed")
		},
	})
	return c, nil
}

type paymentRequest struct {
	PatronID    string  `json:"patron_id"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
}

type refundRequest struct {
	TransactionID string  `json:"transaction_id"`
	Amount        float64 `json:"amount"`
}

// ProcessPayment charges amount to the patron.
func (c *PaymentClient) ProcessPayment(ctx context.Context, patronID string, amount float64, description string) (payments.PaymentResult, error) {
	var res payments.PaymentResult
	err := c.call(ctx, "/payments", paymentRequest{PatronID: patronID, Amount: amount, Description: description}, &res)
	if err != nil {
		return payments.PaymentResult{}, err
	}
	return res, nil
}

// RefundPayment refunds amount on a previous transaction.
func (c *PaymentClient) RefundPayment(ctx context.Context, transactionID string, amount float64) (payments.RefundResult, error) {
	var res payments.RefundResult
	err := c.call(ctx, "/refunds", refundRequest{TransactionID: transactionID, Amount: amount}, &res)
	if err != nil {
		return payments.RefundResult{}, err
	}
	return res, nil
}

// call posts body to path and decodes the gateway's answer into out. A 4xx
// answer carries a declined result; a 5xx answer or a transport failure is an
// error and counts against the breaker.
func (c *PaymentClient) call(ctx context.Context, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	signature, err := c.sign(payload)
	if err != nil {
		return err
	}
	requestID := uuid.NewString()

	_, err = c.breaker.Execute(func() (interface{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderRequestID, requestID)
		req.Header.Set(HeaderSignature, signature)

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusInternalServerError {
			io.Copy(io.Discard, resp.Body)
			return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return nil, fmt.Errorf("failed to decode response: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{"path": path, "request_id": requestID}).
			Error("payment gateway request failed")
		return err
	}
	return nil
}

func (c *PaymentClient) sign(payload []byte) (string, error) {
	mac, err := blake2b.New256(c.key)
	if err != nil {
		return "", fmt.Errorf("init signer: %w", err)
	}
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Sign returns the signature the gateway should expect for payload.
func Sign(key, payload []byte) (string, error) {
	c := PaymentClient{key: key}
	return c.sign(payload)
}
