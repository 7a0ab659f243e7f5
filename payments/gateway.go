package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// Order is the gateway-side order handle the client pays against.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"` // paise
	Currency string `json:"currency"`
}

// Gateway creates payment orders at the external provider. Calls are
// blocking I/O and must respect the context deadline.
type Gateway interface {
	CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*Order, error)
	KeyID() string
}

var ErrGatewayTimeout = errors.New("gateway timed out")

// RazorpayGateway is the production Gateway. Constructed from env; nil when
// the keys are missing so the rest of the service still boots (orders then
// fail with 503 instead of panicking).
type RazorpayGateway struct {
	keyID   string
	client  *razorpay.Client
	timeout time.Duration
}

func maskKey(k string) string {
	if len(k) < 12 {
		return "****"
	}
	return k[:7] + "..." + k[len(k)-4:]
}

// NewRazorpayFromEnv returns a configured gateway or nil when
// RAZORPAY_KEY_ID / RAZORPAY_KEY_SECRET are not set.
func NewRazorpayFromEnv() *RazorpayGateway {
	keyID := os.Getenv("RAZORPAY_KEY_ID")
	secret := os.Getenv("RAZORPAY_KEY_SECRET")
	if keyID == "" || secret == "" {
		return nil
	}
	timeout := 15 * time.Second
	if v := os.Getenv("RAZORPAY_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			timeout = time.Duration(n) * time.Second
		}
	}
	log.Printf("[payments][gateway] razorpay configured key=%s timeout=%s", maskKey(keyID), timeout)
	return &RazorpayGateway{
		keyID:   keyID,
		client:  razorpay.NewClient(keyID, secret),
		timeout: timeout,
	}
}

func (g *RazorpayGateway) KeyID() string { return g.keyID }

// CreateOrder opens an order at Razorpay. The SDK call has no context
// support, so it runs in a goroutine and the deadline is enforced here; a
// late result is discarded (the pending enrollment never gets an order id
// and is simply never finalized).
func (g *RazorpayGateway) CreateOrder(ctx context.Context, amountPaise int64, currency, receipt string) (*Order, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		body map[string]interface{}
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		body, err := g.client.Order.Create(map[string]interface{}{
			"amount":   amountPaise,
			"currency": currency,
			"receipt":  receipt,
		}, nil)
		ch <- result{body: body, err: err}
	}()

	select {
	case <-ctx.Done():
		log.Printf("[payments][gateway] order create timed out receipt=%s", receipt)
		return nil, ErrGatewayTimeout
	case res := <-ch:
		if res.err != nil {
			log.Printf("[payments][gateway] order create failed receipt=%s err=%v", receipt, res.err)
			return nil, res.err
		}
		return orderFromResponse(res.body)
	}
}

func orderFromResponse(body map[string]interface{}) (*Order, error) {
	id, _ := body["id"].(string)
	if id == "" {
		return nil, fmt.Errorf("gateway response missing order id")
	}
	order := &Order{ID: id}
	switch v := body["amount"].(type) {
	case float64:
		order.Amount = int64(v)
	case int64:
		order.Amount = v
	}
	order.Currency, _ = body["currency"].(string)
	return order, nil
}
