package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// StatusSucceeded is the sole settlement signal the redemption flow consumes.
const StatusSucceeded = "succeeded"

// Payment is the provider's view of a payment.
type Payment struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

// Settled reports whether the payment has completed successfully.
func (p *Payment) Settled() bool { return p.Status == StatusSucceeded }

// Client is an authenticated payment-provider REST client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// GetPayment fetches the settlement status for a payment id.
func (c *Client) GetPayment(ctx context.Context, id string) (*Payment, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/payments/"+id, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider GetPayment %s: status %d", id, resp.StatusCode)
	}
	var p Payment
	return &p, json.NewDecoder(resp.Body).Decode(&p)
}

// BaseURL returns the configured provider base URL.
func (c *Client) BaseURL() string { return c.baseURL }
