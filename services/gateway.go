package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"shepsigrad-server/utils"
)

// CheckoutSession is what the external gateway hands back for a new payment.
type CheckoutSession struct {
	Reference       string `json:"reference"`
	ConfirmationURL string `json:"confirmation_url"`
}

// PaymentGateway is the external payment provider capability. Implementations
// must bound every call; a timeout surfaces as GatewayTimeout and leaves
// local state untouched.
type PaymentGateway interface {
	CreateCheckout(ctx context.Context, amount float64, currency, returnURL string) (*CheckoutSession, error)
	Refund(ctx context.Context, reference string) error
}

// GatewayCallTimeout bounds every outbound gateway call.
const GatewayCallTimeout = 10 * time.Second

// HTTPPaymentGateway talks to the checkout provider over its REST API.
type HTTPPaymentGateway struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPPaymentGateway() *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		baseURL: os.Getenv("PAYMENT_GATEWAY_URL"),
		apiKey:  os.Getenv("PAYMENT_GATEWAY_API_KEY"),
		client:  &http.Client{Timeout: GatewayCallTimeout},
	}
}

func (g *HTTPPaymentGateway) CreateCheckout(ctx context.Context, amount float64, currency, returnURL string) (*CheckoutSession, error) {
	body, _ := json.Marshal(map[string]interface{}{
		"amount":     amount,
		"currency":   currency,
		"return_url": returnURL,
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/checkout", bytes.NewReader(body))
	if err != nil {
		return nil, utils.NewGatewayError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, classifyGatewayError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, utils.NewGatewayError(fmt.Sprintf("checkout failed with status %d", resp.StatusCode))
	}

	var session CheckoutSession
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, utils.NewGatewayError("invalid checkout response: " + err.Error())
	}
	if session.Reference == "" || session.ConfirmationURL == "" {
		return nil, utils.NewGatewayError("checkout response missing reference or confirmation url")
	}
	return &session, nil
}

func (g *HTTPPaymentGateway) Refund(ctx context.Context, reference string) error {
	body, _ := json.Marshal(map[string]string{"reference": reference})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/refund", bytes.NewReader(body))
	if err != nil {
		return utils.NewGatewayError(err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return classifyGatewayError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return utils.NewGatewayError(fmt.Sprintf("refund failed with status %d", resp.StatusCode))
	}
	return nil
}

// classifyGatewayError separates timeouts from other provider failures so
// callers can tell "retry later, nothing changed" from "provider rejected".
func classifyGatewayError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return utils.NewGatewayTimeout("payment gateway timed out")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return utils.NewGatewayTimeout("payment gateway timed out")
	}
	return utils.NewGatewayError(err.Error())
}
