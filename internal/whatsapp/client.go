package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client calls the WhatsApp gateway service. With Skip set it logs the
// message and reports success, so the pipeline runs without a gateway
// in dev and tests.
type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
	Skip    bool
}

// New creates a client with a bounded request timeout. The timeout is
// the delivery deadline: a slow gateway counts as a failed send.
func New(baseURL, token string, skip bool, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: baseURL,
		Token:   token,
		Skip:    skip,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

type sendMessageRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// Send delivers one message to a guardian phone number.
func (c *Client) Send(ctx context.Context, to, body string) error {
	if c.Skip {
		log.Printf("whatsapp skip: would send to %s: %s", to, body)
		return nil
	}
	if to == "" {
		return fmt.Errorf("destination required")
	}

	payload, err := json.Marshal(sendMessageRequest{To: to, Body: body})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("whatsapp gateway error %s: %s", resp.Status, string(respBody))
	}
	return nil
}

// Health checks gateway availability.
func (c *Client) Health(ctx context.Context) error {
	if c.Skip {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/healthz", nil)
	if err != nil {
		return err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("whatsapp gateway unhealthy: %s", resp.Status)
	}
	return nil
}
